// Package components renders the public scoreboard as templ components.
package components

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/mcoot/pingpong/internal/model"
	"github.com/mcoot/pingpong/internal/services/cache"
	"github.com/mcoot/pingpong/internal/services/scoring"
)

// NameFunc resolves a player id to a display name
type NameFunc func(model.PlayerID) string

// ScoreboardData is everything the scoreboard page shows
type ScoreboardData struct {
	Live        []model.Match
	Upcoming    []model.Match
	Finished    []model.Match
	Leaderboard []model.Player
	Stats       cache.Stats
	Loaded      bool
	Name        NameFunc
}

// writer accumulates the first write error so components can render in
// straight-line code
type writer struct {
	w   io.Writer
	err error
}

func (w *writer) raw(s string) {
	if w.err != nil {
		return
	}
	_, w.err = io.WriteString(w.w, s)
}

func (w *writer) text(s string) {
	w.raw(templ.EscapeString(s))
}

func (w *writer) printf(format string, args ...any) {
	w.raw(fmt.Sprintf(format, args...))
}

// Page wraps body in the HTML document. The page reloads its sections when
// the live feed reports a change.
func Page(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		w.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		w.raw(`<title>`)
		w.text(title)
		w.raw(`</title></head><body>`)
		if w.err != nil {
			return w.err
		}
		if err := body.Render(ctx, out); err != nil {
			return err
		}
		w.raw(`<script>
(function () {
  var source = new EventSource("/events");
  source.addEventListener("change", function () {
    fetch(window.location.pathname + "?fragment=1")
      .then(function (r) { return r.text(); })
      .then(function (html) { document.getElementById("scoreboard").outerHTML = html; });
  });
})();
</script></body></html>`)
		return w.err
	})
}

// Scoreboard renders the live, upcoming and finished matches and the leaderboard
func Scoreboard(d ScoreboardData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<main id="scoreboard">`)

		w.raw(`<section id="live"><h2>Live Scoreboard</h2>`)
		live := len(d.Live)
		w.printf(`<p class="live-count"><span>%d</span> %s in progress</p>`, live, plural(live, "match", "matches"))
		if !d.Loaded {
			w.raw(`<p class="notice">Loading tournament data&hellip;</p>`)
		}
		if live == 0 {
			w.raw(`<p class="empty">No matches in progress</p>`)
		}
		for i := range d.Live {
			matchCard(w, &d.Live[i], d.Name)
		}
		w.raw(`</section>`)

		w.raw(`<section id="upcoming"><h2>Upcoming</h2>`)
		if len(d.Upcoming) == 0 {
			w.raw(`<p class="empty">No matches scheduled</p>`)
		}
		for i := range d.Upcoming {
			matchCard(w, &d.Upcoming[i], d.Name)
		}
		w.raw(`</section>`)

		w.raw(`<section id="finished"><h2>Results</h2>`)
		if len(d.Finished) == 0 {
			w.raw(`<p class="empty">No results yet</p>`)
		}
		for i := range d.Finished {
			matchCard(w, &d.Finished[i], d.Name)
		}
		w.raw(`</section>`)

		leaderboard(w, d.Leaderboard)

		w.printf(`<footer class="stats" data-players="%d" data-matches="%d">%d players &middot; %d matches</footer>`,
			d.Stats.Players, d.Stats.Matches, d.Stats.Players, d.Stats.Matches)
		w.raw(`</main>`)
		return w.err
	})
}

func matchCard(w *writer, m *model.Match, name NameFunc) {
	w.printf(`<article class="match %s" data-match-id="%s">`, m.Status, templ.EscapeString(string(m.ID)))

	switch m.Status {
	case model.MatchStatusLive:
		w.raw(`<span class="badge live">Live</span>`)
	case model.MatchStatusFinished:
		w.raw(`<span class="badge finished">Final</span>`)
	}

	side := func(id model.PlayerID, score, other int) {
		class := "player"
		if score > other {
			class += " leading"
		}
		if m.Winner() == id {
			class += " winner"
		}
		w.printf(`<div class="%s"><span class="name">`, class)
		w.text(name(id))
		w.printf(`</span><span class="score">%d</span></div>`, score)
	}
	side(m.Player1ID, m.Player1Score, m.Player2Score)
	w.raw(`<span class="vs">VS</span>`)
	side(m.Player2ID, m.Player2Score, m.Player1Score)

	if m.Status == model.MatchStatusLive {
		w.printf(`<div class="progress" style="width: %d%%"></div>`, progress(m.Player1Score, m.Player2Score))
	}
	w.raw(`</article>`)
}

func leaderboard(w *writer, players []model.Player) {
	w.raw(`<section id="leaderboard"><h2>Leaderboard</h2>`)
	if len(players) == 0 {
		w.raw(`<p class="empty">No players registered</p></section>`)
		return
	}
	w.raw(`<table><thead><tr><th>#</th><th>Player</th><th>Room</th><th>W</th><th>L</th><th>Win %</th></tr></thead><tbody>`)
	for i := range players {
		p := &players[i]
		w.printf(`<tr data-player-id="%s"><td class="rank">%d</td><td class="name">`, templ.EscapeString(string(p.ID)), i+1)
		w.text(p.Name)
		w.raw(`</td><td class="room">`)
		w.text(p.Room())
		w.printf(`</td><td class="wins">%d</td><td class="losses">%d</td><td class="rate">%.0f</td></tr>`,
			p.Wins, p.Losses, p.WinRate()*100)
	}
	w.raw(`</tbody></table></section>`)
}

// progress is how far a live match is toward the first-to-11 target, in percent
func progress(score1, score2 int) int {
	pct := (score1 + score2) * 100 / (2 * scoring.WinningScore)
	if pct > 100 {
		return 100
	}
	return pct
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// ErrorPage is a standalone page for failures while rendering
func ErrorPage(message string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>Error</title></head><body>`)
		w.raw(`<main id="error"><h1>Something went wrong</h1><p>`)
		w.text(message)
		w.raw(`</p><p><a href="/">Back to the scoreboard</a></p></main></body></html>`)
		return w.err
	})
}
