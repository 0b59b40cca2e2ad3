package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcoot/pingpong/internal/api/response"
	"github.com/mcoot/pingpong/internal/model"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Admin sign-in and access management",
	}

	cmd.AddCommand(newAdminLoginCmd())
	cmd.AddCommand(newAdminAddCmd())

	return cmd
}

func newAdminLoginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in as an admin",
		Long: `Sign in with an admin account. Accounts that are not on the admins
allow-list are signed straight back out.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				var err error
				if password, err = readLine(cmd, "Password: "); err != nil {
					return err
				}
			}

			principal, err := app.Session.SignInAdmin(cmd.Context(), email, password)
			if err != nil {
				return err
			}

			newOutput(cmd).Print(response.Principal{ID: string(principal.ID), Email: principal.Email})
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email (required)")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted if omitted)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newAdminAddCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an admin account, or grant admin to an existing one",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			account, err := app.Store.GetAccountByEmail(ctx, email)
			switch {
			case errors.Is(err, model.ErrAccountNotFound):
				if password == "" {
					return fmt.Errorf("--password is required for a new account")
				}
				if account, err = app.AuthService.CreateAccount(ctx, email, password); err != nil {
					return err
				}
			case err != nil:
				return err
			}

			if err := app.Store.AddAdmin(ctx, account.ID); err != nil {
				return fmt.Errorf("adding admin: %w", err)
			}

			newOutput(cmd).Print(response.Principal{ID: string(account.ID), Email: account.Email})
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password for a new account")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

// readLine prompts on stderr and reads one line from the command's input
func readLine(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// confirm asks before an irreversible action unless yes is set
func confirm(cmd *cobra.Command, yes bool, prompt string) (bool, error) {
	if yes {
		return true, nil
	}
	answer, err := readLine(cmd, prompt+" [y/N]: ")
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}
