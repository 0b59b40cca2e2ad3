package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/mcoot/pingpong/internal/api/response"
	"github.com/mcoot/pingpong/internal/model"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
	errW   io.Writer
}

// NewOutput creates a new Output formatter
func NewOutput(format string, w, errW io.Writer) *Output {
	return &Output{format: format, w: w, errW: errW}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.w, string(data))
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

// PrintWarning reports a problem that did not fail the command
func (o *Output) PrintWarning(msg string) {
	fmt.Fprintf(o.errW, "Warning: %s\n", msg)
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case response.RegisterResponse:
		o.printRegister(v)
	case Whoami:
		o.printWhoami(v)
	case response.Principal:
		fmt.Fprintf(o.w, "Admin: %s (%s)\n", v.Email, v.ID)
	case PlayerList:
		o.printPlayers(v)
	case Leaderboard:
		o.printLeaderboard(v)
	case MatchList:
		o.printMatches(v)
	case response.Match:
		o.printMatch(v)
	case response.ScoreResponse:
		o.printScore(v)
	case response.Health:
		o.printHealth(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// Whoami describes the acting identity
type Whoami struct {
	Kind   string              `json:"kind"`
	Player *response.Player    `json:"player,omitempty"`
	Admin  *response.Principal `json:"admin,omitempty"`
}

// WhoamiFromIdentity converts the session identity, including the stored
// player while an admin session is active
func WhoamiFromIdentity(id model.Identity, player *model.Player) Whoami {
	out := Whoami{Kind: string(id.Kind)}
	if player != nil {
		p := response.PlayerFromModel(player)
		out.Player = &p
	}
	if id.Admin != nil {
		out.Admin = &response.Principal{ID: string(id.Admin.ID), Email: id.Admin.Email}
	}
	return out
}

// PlayerList is players in registration order
type PlayerList []response.Player

// Leaderboard is players ranked by record
type Leaderboard []response.Player

// MatchList is matches newest first
type MatchList []response.Match

func (o *Output) printRegister(r response.RegisterResponse) {
	if r.Created {
		fmt.Fprintf(o.w, "Registered %s (room %s)\n", r.Player.Name, r.Player.Room)
	} else {
		fmt.Fprintf(o.w, "Welcome back %s (room %s)\n", r.Player.Name, r.Player.Room)
	}
	fmt.Fprintf(o.w, "Player ID: %s\n", r.Player.ID)
}

func (o *Output) printWhoami(w Whoami) {
	switch {
	case w.Admin != nil:
		fmt.Fprintf(o.w, "Admin: %s (%s)\n", w.Admin.Email, w.Admin.ID)
	case w.Player == nil:
		fmt.Fprintln(o.w, "Not signed in")
		return
	}
	if w.Player != nil {
		fmt.Fprintf(o.w, "Player: %s (room %s) %d-%d\n", w.Player.Name, w.Player.Room, w.Player.Wins, w.Player.Losses)
	}
}

func (o *Output) printPlayers(players PlayerList) {
	if len(players) == 0 {
		fmt.Fprintln(o.w, "No players registered")
		return
	}
	fmt.Fprintf(o.w, "Players (%d):\n", len(players))
	for _, p := range players {
		fmt.Fprintf(o.w, "  - %s (room %s) [%s]\n", p.Name, p.Room, p.ID)
	}
}

func (o *Output) printLeaderboard(players Leaderboard) {
	if len(players) == 0 {
		fmt.Fprintln(o.w, "No players registered")
		return
	}
	fmt.Fprintf(o.w, "%-4s %-20s %-8s %4s %4s %6s\n", "#", "Player", "Room", "W", "L", "Win%")
	for i, p := range players {
		fmt.Fprintf(o.w, "%-4d %-20s %-8s %4d %4d %5.0f%%\n", i+1, p.Name, p.Room, p.Wins, p.Losses, p.WinRate*100)
	}
}

func (o *Output) printMatches(matches MatchList) {
	if len(matches) == 0 {
		fmt.Fprintln(o.w, "No matches")
		return
	}
	for _, m := range matches {
		o.printMatch(m)
	}
}

func (o *Output) printMatch(m response.Match) {
	winner := ""
	if m.WinnerID != nil {
		switch *m.WinnerID {
		case m.Player1.ID:
			winner = " winner: " + m.Player1.Name
		case m.Player2.ID:
			winner = " winner: " + m.Player2.Name
		}
	}
	fmt.Fprintf(o.w, "[%s] %s %d - %d %s (%s)%s\n",
		m.ID, m.Player1.Name, m.Player1.Score, m.Player2.Score, m.Player2.Name, m.Status, winner)
}

func (o *Output) printScore(s response.ScoreResponse) {
	o.printMatch(s.Match)
	if s.Complete {
		fmt.Fprintln(o.w, "Match complete!")
	}
	if s.StatsWarning != "" {
		o.PrintWarning("player records not fully updated: " + s.StatsWarning)
	}
}

func (o *Output) printHealth(h response.Health) {
	fmt.Fprintf(o.w, "Status: %s\n", h.Status)
	fmt.Fprintf(o.w, "Loaded: %t\n", h.Loaded)
	fmt.Fprintf(o.w, "Players: %d  Matches: %d (live %d, upcoming %d, finished %d)\n",
		h.Stats.Players, h.Stats.Matches, h.Stats.Live, h.Stats.Upcoming, h.Stats.Finished)
}
