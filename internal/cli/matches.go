package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcoot/pingpong/internal/api/response"
	"github.com/mcoot/pingpong/internal/model"
	"github.com/mcoot/pingpong/internal/services/scoring"
)

func newMatchesCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "matches",
		Short: "List matches, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			matches := app.Cache.Matches()
			if status != "" {
				s := model.MatchStatus(status)
				if !s.Valid() {
					return fmt.Errorf("invalid status %q: use upcoming, live or finished", status)
				}
				matches = app.Cache.MatchesByStatus(s)
			}

			newOutput(cmd).Print(MatchList(response.MatchesFromModel(matches, app.Cache.PlayerName)))
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only show matches with this status: upcoming, live, finished")

	return cmd
}

func newMatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match management commands (admin)",
	}

	cmd.AddCommand(newMatchCreateCmd())
	cmd.AddCommand(newMatchScoreCmd())
	cmd.AddCommand(newMatchDeleteCmd())

	return cmd
}

func newMatchCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <player1-id> <player2-id>",
		Short: "Schedule a match between two players",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			match, err := app.Tournament.CreateMatch(cmd.Context(), app.Session.Current(),
				model.PlayerID(args[0]), model.PlayerID(args[1]))
			if err != nil {
				return err
			}

			newOutput(cmd).Print(response.MatchFromModel(match, app.Cache.PlayerName))
			return nil
		},
	}
}

func newMatchScoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score <match-id> <player1-score> <player2-score>",
		Short: "Record the current score of a match",
		Long: `Record both scores. The match goes live once a point is scored and
finishes when a side reaches 11 with a two point lead; the winner and
loser records are updated then.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := app.Tournament.UpdateScore(cmd.Context(), app.Session.Current(),
				model.MatchID(args[0]), scoring.ParseScore(args[1]), scoring.ParseScore(args[2]))
			if err != nil {
				return err
			}

			newOutput(cmd).Print(response.ScoreResponseFromResult(result, app.Cache.PlayerName))
			return nil
		},
	}
}

func newMatchDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <match-id>",
		Short: "Delete a match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := model.MatchID(args[0])

			ok, err := confirm(cmd, yes, fmt.Sprintf("Delete match %s?", id))
			if err != nil {
				return err
			}
			out := newOutput(cmd)
			if !ok {
				out.PrintMessage("Cancelled")
				return nil
			}

			if err := app.Tournament.DeleteMatch(cmd.Context(), app.Session.Current(), id); err != nil {
				return err
			}
			out.PrintMessage(fmt.Sprintf("Deleted match %s", id))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}
