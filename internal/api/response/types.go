package response

import (
	"time"

	"github.com/mcoot/pingpong/internal/model"
	"github.com/mcoot/pingpong/internal/services/auth"
	"github.com/mcoot/pingpong/internal/services/cache"
	"github.com/mcoot/pingpong/internal/services/tournament"
)

// Player represents a player in API responses
type Player struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Room        string  `json:"room"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	GamesPlayed int     `json:"games_played"`
	WinRate     float64 `json:"win_rate"`
}

// PlayerFromModel converts a model.Player to a response Player
func PlayerFromModel(p *model.Player) Player {
	return Player{
		ID:          string(p.ID),
		Name:        p.Name,
		Room:        p.Room(),
		Wins:        p.Wins,
		Losses:      p.Losses,
		GamesPlayed: p.GamesPlayed(),
		WinRate:     p.WinRate(),
	}
}

// PlayersFromModel converts a list of players
func PlayersFromModel(players []model.Player) []Player {
	out := make([]Player, len(players))
	for i := range players {
		out[i] = PlayerFromModel(&players[i])
	}
	return out
}

// RegisterResponse is the response for player registration
type RegisterResponse struct {
	Player  Player `json:"player"`
	Created bool   `json:"created"`
}

// MatchPlayer is one side of a match
type MatchPlayer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// Match represents a match in API responses
type Match struct {
	ID        string      `json:"id"`
	Player1   MatchPlayer `json:"player1"`
	Player2   MatchPlayer `json:"player2"`
	Status    string      `json:"status"`
	WinnerID  *string     `json:"winner_id"`
	CreatedAt time.Time   `json:"created_at"`
}

// NameFunc resolves a player id to a display name
type NameFunc func(model.PlayerID) string

// MatchFromModel converts a model.Match, naming players with name
func MatchFromModel(m *model.Match, name NameFunc) Match {
	out := Match{
		ID:        string(m.ID),
		Player1:   MatchPlayer{ID: string(m.Player1ID), Name: name(m.Player1ID), Score: m.Player1Score},
		Player2:   MatchPlayer{ID: string(m.Player2ID), Name: name(m.Player2ID), Score: m.Player2Score},
		Status:    string(m.Status),
		CreatedAt: m.CreatedAt,
	}
	if m.WinnerID != nil {
		w := string(*m.WinnerID)
		out.WinnerID = &w
	}
	return out
}

// MatchesFromModel converts a list of matches
func MatchesFromModel(matches []model.Match, name NameFunc) []Match {
	out := make([]Match, len(matches))
	for i := range matches {
		out[i] = MatchFromModel(&matches[i], name)
	}
	return out
}

// ScoreResponse is the response for a score update. StatsWarning is set when
// the match was saved but a player's record could not be updated.
type ScoreResponse struct {
	Match        Match  `json:"match"`
	Complete     bool   `json:"complete"`
	StatsWarning string `json:"stats_warning,omitempty"`
}

// ScoreResponseFromResult converts a tournament.ScoreResult
func ScoreResponseFromResult(r *tournament.ScoreResult, name NameFunc) ScoreResponse {
	resp := ScoreResponse{
		Match:    MatchFromModel(r.Match, name),
		Complete: r.Outcome.Complete,
	}
	if r.StatsErr != nil {
		resp.StatsWarning = r.StatsErr.Error()
	}
	return resp
}

// Principal is an authenticated account
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// LoginResponse is the response for admin sign-in
type LoginResponse struct {
	Principal Principal `json:"principal"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginResponseFromSession creates a LoginResponse from a session
func LoginResponseFromSession(s *auth.Session) LoginResponse {
	return LoginResponse{
		Principal: Principal{ID: string(s.Principal.ID), Email: s.Principal.Email},
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
	}
}

// Health is the response for the health check
type Health struct {
	Status string      `json:"status"`
	Loaded bool        `json:"loaded"`
	Stats  cache.Stats `json:"stats"`
}
