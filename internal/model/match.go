package model

import "time"

// MatchID uniquely identifies a match row
type MatchID string

// MatchStatus is the lifecycle phase of a match
type MatchStatus string

const (
	MatchStatusUpcoming MatchStatus = "upcoming"
	MatchStatusLive     MatchStatus = "live"
	MatchStatusFinished MatchStatus = "finished"
)

// Valid reports whether s is a known status
func (s MatchStatus) Valid() bool {
	switch s {
	case MatchStatusUpcoming, MatchStatusLive, MatchStatusFinished:
		return true
	}
	return false
}

// rank orders statuses along upcoming -> live -> finished
func (s MatchStatus) rank() int {
	switch s {
	case MatchStatusUpcoming:
		return 0
	case MatchStatusLive:
		return 1
	case MatchStatusFinished:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next keeps the status monotonic
func (s MatchStatus) CanTransitionTo(next MatchStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == MatchStatusFinished {
		return false
	}
	return next.rank() >= s.rank()
}

// Match is a single game between two players
type Match struct {
	ID           MatchID     `json:"id"`
	Player1ID    PlayerID    `json:"player1_id"`
	Player2ID    PlayerID    `json:"player2_id"`
	Player1Score int         `json:"player1_score"`
	Player2Score int         `json:"player2_score"`
	Status       MatchStatus `json:"status"`
	WinnerID     *PlayerID   `json:"winner_id"`
	Version      int64       `json:"version"`
	CreatedAt    time.Time   `json:"created_at"`
}

// HasPlayer reports whether the player takes part in the match
func (m *Match) HasPlayer(id PlayerID) bool {
	return m.Player1ID == id || m.Player2ID == id
}

// Opponent returns the other player in the match
func (m *Match) Opponent(id PlayerID) PlayerID {
	if m.Player1ID == id {
		return m.Player2ID
	}
	return m.Player1ID
}

// Winner returns the winner id, or empty if the match is not finished
func (m *Match) Winner() PlayerID {
	if m.WinnerID == nil {
		return ""
	}
	return *m.WinnerID
}

// MatchPatch is a partial update of a match's score state
type MatchPatch struct {
	Player1Score int
	Player2Score int
	Status       MatchStatus
	WinnerID     *PlayerID
}

// CheckPatch reports whether the patch may be written over the match's
// current state. Stores call it inside their write lock or transaction.
func (m *Match) CheckPatch(p MatchPatch) error {
	if m.Status == MatchStatusFinished {
		return ErrMatchFinished
	}
	if !m.Status.CanTransitionTo(p.Status) {
		return ErrInvalidStatusTransition
	}
	return nil
}

// Apply copies the patch onto the match
func (p MatchPatch) Apply(m *Match) {
	m.Player1Score = p.Player1Score
	m.Player2Score = p.Player2Score
	m.Status = p.Status
	m.WinnerID = p.WinnerID
}
