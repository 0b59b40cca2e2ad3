package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcoot/pingpong/internal/model"
)

func TestEvaluate_Completion(t *testing.T) {
	tests := []struct {
		name     string
		s1, s2   int
		complete bool
		winner   model.PlayerID
	}{
		{"eleven nine", 11, 9, true, "p1"},
		{"ten nine", 10, 9, false, ""},
		{"deuce won by two", 12, 10, true, "p1"},
		{"deuce lead of one", 14, 13, false, ""},
		{"long deuce", 15, 13, true, "p1"},
		{"player two wins", 7, 11, true, "p2"},
		{"eleven ten", 11, 10, false, ""},
		{"shutout", 11, 0, true, "p1"},
		{"nil nil", 0, 0, false, ""},
		{"no cap", 30, 28, true, "p1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Evaluate(Input{NewScore1: tt.s1, NewScore2: tt.s2, Player1: "p1", Player2: "p2"})
			assert.Equal(t, tt.complete, out.Complete)
			assert.Equal(t, tt.winner, out.Winner)
			if tt.complete {
				assert.Equal(t, model.MatchStatusFinished, out.Status)
			} else {
				assert.Equal(t, model.MatchStatusLive, out.Status)
				assert.Empty(t, out.Deltas)
				assert.Nil(t, out.WinnerID())
			}
		})
	}
}

func TestEvaluate_Deltas(t *testing.T) {
	out := Evaluate(Input{CurrentScore1: 9, CurrentScore2: 10, NewScore1: 11, NewScore2: 13, Player1: "ana", Player2: "ben"})

	assert.True(t, out.Complete)
	assert.Equal(t, model.PlayerID("ben"), out.Winner)
	assert.Equal(t, model.PlayerID("ana"), out.Loser)
	assert.Equal(t, model.StatsDelta{Wins: 1}, out.Deltas["ben"])
	assert.Equal(t, model.StatsDelta{Losses: 1}, out.Deltas["ana"])
	assert.Len(t, out.Deltas, 2)
}

func TestOutcome_Patch(t *testing.T) {
	in := Input{NewScore1: 11, NewScore2: 9, Player1: "p1", Player2: "p2"}
	patch := Evaluate(in).Patch(in)

	assert.Equal(t, 11, patch.Player1Score)
	assert.Equal(t, 9, patch.Player2Score)
	assert.Equal(t, model.MatchStatusFinished, patch.Status)
	if assert.NotNil(t, patch.WinnerID) {
		assert.Equal(t, model.PlayerID("p1"), *patch.WinnerID)
	}

	in = Input{NewScore1: 5, NewScore2: 3, Player1: "p1", Player2: "p2"}
	patch = Evaluate(in).Patch(in)
	assert.Equal(t, model.MatchStatusLive, patch.Status)
	assert.Nil(t, patch.WinnerID)
}

func TestParseScore(t *testing.T) {
	tests := map[string]int{
		"":        0,
		"   ":     0,
		"11":      11,
		" 7 ":     7,
		"+4":      4,
		"abc":     0,
		"-3":      0,
		"12abc":   12,
		"0009":    9,
		"3.5":     3,
		"9999999": maxScore,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseScore(in), "input %q", in)
	}
}
