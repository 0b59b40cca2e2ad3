package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcoot/pingpong/internal/api/response"
	"github.com/mcoot/pingpong/internal/model"
)

func newJoinCmd() *cobra.Command {
	var name, room string

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Register as a player, or sign back in",
		Long: `Register with a name and room number. Joining again with the same
name and room (case-insensitive) signs back in to the same player.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			existed := registered(name, room)

			player, err := app.Session.RegisterOrSignIn(cmd.Context(), name, room)
			if err != nil {
				return err
			}

			newOutput(cmd).Print(response.RegisterResponse{
				Player:  response.PlayerFromModel(player),
				Created: !existed,
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Your name (required)")
	cmd.Flags().StringVar(&room, "room", "", "Your room number (required)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("room")

	return cmd
}

// registered reports whether the cache already holds a player with this
// registration key
func registered(name, room string) bool {
	for _, p := range app.Cache.Players() {
		if p.MatchesRegistration(strings.TrimSpace(name), strings.TrimSpace(room)) {
			return true
		}
	}
	return false
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in player and admin session",
		RunE: func(cmd *cobra.Command, args []string) error {
			var player *model.Player
			if p, ok := app.Session.CurrentPlayer(); ok {
				player = &p
			}
			newOutput(cmd).Print(WhoamiFromIdentity(app.Session.Current(), player))
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out the player and any admin session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Session.SignOut(cmd.Context()); err != nil {
				return err
			}
			newOutput(cmd).PrintMessage("Signed out")
			return nil
		},
	}
}

func newOutput(cmd *cobra.Command) *Output {
	return NewOutput(cfg.Output, cmd.OutOrStdout(), cmd.ErrOrStderr())
}
