package request

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mcoot/pingpong/internal/services/scoring"
)

// RegisterRequest is the request body for registering or signing in a player
type RegisterRequest struct {
	Name string `json:"name"`
	Room string `json:"room"`
}

// LoginRequest is the request body for admin sign-in
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateMatchRequest is the request body for scheduling a match
type CreateMatchRequest struct {
	Player1ID string `json:"player1_id"`
	Player2ID string `json:"player2_id"`
}

// UpdateScoreRequest is the request body for entering a score
type UpdateScoreRequest struct {
	Player1Score Score `json:"player1_score"`
	Player2Score Score `json:"player2_score"`
}

// Score accepts a JSON number or a string typed into a form. Strings are read
// leniently: leading digits count and anything else reads as 0.
type Score int

// UnmarshalJSON implements json.Unmarshaler
func (s *Score) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Score(scoring.ParseScore(str))
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("score must be an integer: %w", err)
	}
	*s = Score(n)
	return nil
}
