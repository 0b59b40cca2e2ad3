// Package scoring decides when a ping-pong match is over and what it does to
// the players' records. It is pure and never touches storage.
package scoring

import (
	"strings"

	"github.com/mcoot/pingpong/internal/model"
)

const (
	// WinningScore is the score a side must reach to be able to finish a match
	WinningScore = 11
	// WinningMargin is the lead required to finish a match
	WinningMargin = 2
)

// Input is a proposed score change for one match
type Input struct {
	CurrentScore1 int
	CurrentScore2 int
	NewScore1     int
	NewScore2     int
	Player1       model.PlayerID
	Player2       model.PlayerID
}

// Outcome is the result of applying the proposed scores
type Outcome struct {
	Status   model.MatchStatus
	Complete bool
	Winner   model.PlayerID
	Loser    model.PlayerID
	// Deltas holds the stat changes to apply, empty unless Complete
	Deltas map[model.PlayerID]model.StatsDelta
}

// WinnerID returns the winner as a nullable column value
func (o Outcome) WinnerID() *model.PlayerID {
	if !o.Complete {
		return nil
	}
	w := o.Winner
	return &w
}

// Patch returns the match update that records this outcome
func (o Outcome) Patch(in Input) model.MatchPatch {
	return model.MatchPatch{
		Player1Score: in.NewScore1,
		Player2Score: in.NewScore2,
		Status:       o.Status,
		WinnerID:     o.WinnerID(),
	}
}

// IsComplete reports whether the scores end a match: first to 11, win by 2, no cap
func IsComplete(s1, s2 int) bool {
	return (s1 >= WinningScore || s2 >= WinningScore) && abs(s1-s2) >= WinningMargin
}

// Evaluate decides the match status and stat deltas for the new scores.
// An incomplete score moves the match to live.
func Evaluate(in Input) Outcome {
	if !IsComplete(in.NewScore1, in.NewScore2) {
		return Outcome{
			Status: model.MatchStatusLive,
			Deltas: map[model.PlayerID]model.StatsDelta{},
		}
	}

	winner, loser := in.Player2, in.Player1
	if in.NewScore1 > in.NewScore2 {
		winner, loser = in.Player1, in.Player2
	}
	return Outcome{
		Status:   model.MatchStatusFinished,
		Complete: true,
		Winner:   winner,
		Loser:    loser,
		Deltas: map[model.PlayerID]model.StatsDelta{
			winner: {Wins: 1},
			loser:  {Losses: 1},
		},
	}
}

// ParseScore reads a score typed by a person. Leading digits are used and the
// rest ignored; empty, non-numeric and negative input read as 0.
func ParseScore(s string) int {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "+")

	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
		if n > maxScore {
			return maxScore
		}
	}
	return n
}

// maxScore caps parsed input so absurd strings cannot overflow
const maxScore = 1_000_000

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
