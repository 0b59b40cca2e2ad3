package model

import (
	"strings"
	"time"
)

// PlayerID uniquely identifies a player row
type PlayerID string

// Player is a registered tournament participant
type Player struct {
	ID        PlayerID  `json:"id"`
	Name      string    `json:"name"`
	Nickname  string    `json:"nickname"` // room number, joint registration key with Name
	Wins      int       `json:"wins"`
	Losses    int       `json:"losses"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// Room returns the room number the player registered with
func (p *Player) Room() string {
	return p.Nickname
}

// MatchesRegistration reports whether the player was registered with the given
// name and room, compared case-insensitively
func (p *Player) MatchesRegistration(name, room string) bool {
	return strings.EqualFold(p.Name, name) && strings.EqualFold(p.Nickname, room)
}

// GamesPlayed returns the number of finished matches the player took part in
func (p *Player) GamesPlayed() int {
	return p.Wins + p.Losses
}

// WinRate returns the fraction of finished matches won, 0 if none played
func (p *Player) WinRate() float64 {
	played := p.GamesPlayed()
	if played == 0 {
		return 0
	}
	return float64(p.Wins) / float64(played)
}

// StatsDelta is an increment applied to a player's win/loss counters
type StatsDelta struct {
	Wins   int
	Losses int
}

// IsZero reports whether the delta changes nothing
func (d StatsDelta) IsZero() bool {
	return d.Wins == 0 && d.Losses == 0
}
