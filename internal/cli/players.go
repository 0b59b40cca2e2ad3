package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcoot/pingpong/internal/api/response"
	"github.com/mcoot/pingpong/internal/model"
)

func newPlayersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "players",
		Short: "List registered players",
		RunE: func(cmd *cobra.Command, args []string) error {
			newOutput(cmd).Print(PlayerList(response.PlayersFromModel(app.Cache.Players())))
			return nil
		},
	}
}

func newLeaderboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard",
		Short: "Show players ranked by wins",
		RunE: func(cmd *cobra.Command, args []string) error {
			newOutput(cmd).Print(Leaderboard(response.PlayersFromModel(app.Cache.Leaderboard())))
			return nil
		},
	}
}

func newPlayerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "player",
		Short: "Player management commands (admin)",
	}

	cmd.AddCommand(newPlayerDeleteCmd())

	return cmd
}

func newPlayerDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <player-id>",
		Short: "Delete a player",
		Long: `Delete a player permanently. Their matches are kept and show the
player as Unknown.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := model.PlayerID(args[0])

			ok, err := confirm(cmd, yes, fmt.Sprintf("Delete player %s?", app.Cache.PlayerName(id)))
			if err != nil {
				return err
			}
			out := newOutput(cmd)
			if !ok {
				out.PrintMessage("Cancelled")
				return nil
			}

			if err := app.Tournament.DeletePlayer(cmd.Context(), app.Session.Current(), id); err != nil {
				return err
			}
			out.PrintMessage(fmt.Sprintf("Deleted player %s", id))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}
