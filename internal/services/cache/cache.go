// Package cache keeps an in-memory mirror of the players and matches
// collections. It loads a snapshot, then patches it from the store's change
// feed, and tells listeners after every change.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mcoot/pingpong/internal/model"
	"github.com/mcoot/pingpong/internal/storage"
	"github.com/mcoot/pingpong/internal/storage/changefeed"
)

// UnknownPlayerName is shown for player ids with no cached record
const UnknownPlayerName = "Unknown"

// Listener is told about every event applied to the cache, plus a reload
// event for each collection after a snapshot
type Listener func(ev model.ChangeEvent)

// Stats summarises the tournament
type Stats struct {
	Players  int `json:"players"`
	Matches  int `json:"matches"`
	Live     int `json:"live"`
	Upcoming int `json:"upcoming"`
	Finished int `json:"finished"`
}

// Config holds configuration for the cache
type Config struct {
	// ResubscribeBackoff is the wait between failed resubscribe attempts
	ResubscribeBackoff time.Duration
}

// DefaultConfig returns default cache configuration
func DefaultConfig() Config {
	return Config{ResubscribeBackoff: time.Second}
}

// Cache is the synchronized view of players and matches
type Cache struct {
	store  storage.Store
	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	players collection[model.Player]
	matches collection[model.Match]
	loaded  bool

	lmu       sync.Mutex
	listeners map[int]Listener
	nextID    int

	smu  sync.Mutex
	subs map[model.Collection]*changefeed.Subscription

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// New creates an empty cache over the store
func New(store storage.Store, cfg Config, logger *slog.Logger) *Cache {
	if cfg.ResubscribeBackoff <= 0 {
		cfg.ResubscribeBackoff = DefaultConfig().ResubscribeBackoff
	}
	return &Cache{
		store:     store,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "cache")),
		players:   newPlayers(),
		matches:   newMatches(),
		listeners: make(map[int]Listener),
		subs:      make(map[model.Collection]*changefeed.Subscription),
	}
}

// Start subscribes to both collections, then loads the initial snapshot and
// keeps applying events until Close or until ctx ends. A failed initial load
// is logged, not returned; the cache stays usable and fills in from events.
func (c *Cache) Start(ctx context.Context) error {
	for _, col := range model.Collections() {
		sub, err := c.store.Subscribe(ctx, col)
		if err != nil {
			c.releaseSubscriptions()
			return fmt.Errorf("subscribing to %s: %w", col, err)
		}
		c.smu.Lock()
		c.subs[col] = sub
		c.smu.Unlock()
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.run(runCtx)

	if err := c.InitialLoad(ctx); err != nil {
		c.logger.Error("initial load failed", slog.String("error", err.Error()))
	}
	return nil
}

// Close stops event delivery and releases both subscriptions
func (c *Cache) Close() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		c.releaseSubscriptions()
		c.wg.Wait()
	})
}

func (c *Cache) releaseSubscriptions() {
	c.smu.Lock()
	defer c.smu.Unlock()
	for col, sub := range c.subs {
		sub.Unsubscribe()
		delete(c.subs, col)
	}
}

func (c *Cache) subscription(col model.Collection) *changefeed.Subscription {
	c.smu.Lock()
	defer c.smu.Unlock()
	return c.subs[col]
}

// run drains both subscriptions until the context ends
func (c *Cache) run(ctx context.Context) {
	defer c.wg.Done()
	defer c.releaseSubscriptions()

	players := c.subscription(model.CollectionPlayers)
	matches := c.subscription(model.CollectionMatches)

	for {
		var pc, mc <-chan model.ChangeEvent
		if players != nil {
			pc = players.C()
		}
		if matches != nil {
			mc = matches.C()
		}

		select {
		case <-ctx.Done():
			return
		case ev, ok := <-pc:
			if !ok {
				players = c.resync(ctx, players)
				continue
			}
			c.handle(ev)
		case ev, ok := <-mc:
			if !ok {
				matches = c.resync(ctx, matches)
				continue
			}
			c.handle(ev)
		}
	}
}

func (c *Cache) handle(ev model.ChangeEvent) {
	if err := c.ApplyChangeEvent(ev); err != nil {
		c.logger.Warn("failed to apply change event",
			slog.String("collection", string(ev.Collection)),
			slog.String("kind", string(ev.Kind)),
			slog.Int64("seq", ev.Seq),
			slog.String("error", err.Error()))
	}
}

// resync handles a subscription that ended. Overflows are resynced with a
// fresh subscription and a full reload; anything else stops that stream.
func (c *Cache) resync(ctx context.Context, sub *changefeed.Subscription) *changefeed.Subscription {
	col := sub.Collection()
	err := sub.Err()
	if !errors.Is(err, model.ErrSubscriptionOverflow) {
		if err != nil && ctx.Err() == nil {
			c.logger.Warn("subscription ended", slog.String("collection", string(col)), slog.String("error", err.Error()))
		}
		return nil
	}

	c.logger.Warn("subscription overflowed, resyncing", slog.String("collection", string(col)))
	sub.Unsubscribe()
	for {
		fresh, err := c.store.Subscribe(ctx, col)
		if err == nil {
			c.smu.Lock()
			c.subs[col] = fresh
			c.smu.Unlock()

			if err := c.InitialLoad(ctx); err != nil {
				c.logger.Error("resync load failed", slog.String("error", err.Error()))
			}
			return fresh
		}
		c.logger.Error("resubscribe failed",
			slog.String("collection", string(col)),
			slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.ResubscribeBackoff):
		}
	}
}

// InitialLoad fetches both collections in parallel and merges them in. Each
// failure is logged and does not stop the other snapshot; an error is
// returned only when both fail.
func (c *Cache) InitialLoad(ctx context.Context) error {
	c.mu.Lock()
	c.players.beginLoad()
	c.matches.beginLoad()
	c.mu.Unlock()

	var playersErr, matchesErr error
	var g errgroup.Group

	g.Go(func() error {
		rows, err := c.store.ListPlayers(ctx)
		c.mu.Lock()
		c.players.endLoad(rows, err == nil)
		c.mu.Unlock()
		if err != nil {
			playersErr = fmt.Errorf("loading players: %w", err)
			c.logger.Error("failed to load players", slog.String("error", err.Error()))
			return nil
		}
		c.logger.Info("players loaded", slog.Int("count", len(rows)))
		c.notify(model.ChangeEvent{Kind: model.ChangeReload, Collection: model.CollectionPlayers})
		return nil
	})
	g.Go(func() error {
		rows, err := c.store.ListMatches(ctx)
		c.mu.Lock()
		c.matches.endLoad(rows, err == nil)
		c.mu.Unlock()
		if err != nil {
			matchesErr = fmt.Errorf("loading matches: %w", err)
			c.logger.Error("failed to load matches", slog.String("error", err.Error()))
			return nil
		}
		c.logger.Info("matches loaded", slog.Int("count", len(rows)))
		c.notify(model.ChangeEvent{Kind: model.ChangeReload, Collection: model.CollectionMatches})
		return nil
	})
	_ = g.Wait()

	if playersErr == nil || matchesErr == nil {
		c.mu.Lock()
		c.loaded = true
		c.mu.Unlock()
		return nil
	}
	return errors.Join(playersErr, matchesErr)
}

// ApplyChangeEvent patches the mirror with one event. Stale or duplicate
// events (seq not newer than the known version) are ignored; deleting a
// missing record is a no-op.
func (c *Cache) ApplyChangeEvent(ev model.ChangeEvent) error {
	var result applyResult
	var err error

	c.mu.Lock()
	switch ev.Collection {
	case model.CollectionPlayers:
		result, err = c.players.apply(ev)
	case model.CollectionMatches:
		result, err = c.matches.apply(ev)
	default:
		err = fmt.Errorf("%w: unknown collection %q", model.ErrMalformedEvent, ev.Collection)
	}
	c.mu.Unlock()

	if err != nil {
		return err
	}
	switch result {
	case resultStale:
		c.logger.Debug("ignoring stale change event",
			slog.String("collection", string(ev.Collection)),
			slog.String("kind", string(ev.Kind)),
			slog.Int64("seq", ev.Seq))
	case resultApplied:
		c.notify(ev)
	}
	return nil
}

// Listen registers fn for change notifications and returns a func removing it
func (c *Cache) Listen(fn Listener) (unlisten func()) {
	c.lmu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.lmu.Unlock()

	return func() {
		c.lmu.Lock()
		delete(c.listeners, id)
		c.lmu.Unlock()
	}
}

func (c *Cache) notify(ev model.ChangeEvent) {
	c.lmu.Lock()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.lmu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

// Read side

// Loaded reports whether at least one snapshot has been applied
func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Players returns every player in snapshot order, new registrations last
func (c *Cache) Players() []model.Player {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.players.snapshot()
}

// Leaderboard returns players ranked by wins, then fewest losses, then name
func (c *Cache) Leaderboard() []model.Player {
	players := c.Players()
	sort.SliceStable(players, func(i, j int) bool {
		a, b := players[i], players[j]
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		if a.Losses != b.Losses {
			return a.Losses < b.Losses
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
	return players
}

// Matches returns every match, newest first
func (c *Cache) Matches() []model.Match {
	c.mu.RLock()
	defer c.mu.RUnlock()
	matches := c.matches.snapshot()
	for i := range matches {
		matches[i].WinnerID = copyWinner(matches[i].WinnerID)
	}
	return matches
}

// MatchesByStatus returns the matches in the given status, newest first
func (c *Cache) MatchesByStatus(status model.MatchStatus) []model.Match {
	var out []model.Match
	for _, m := range c.Matches() {
		if m.Status == status {
			out = append(out, m)
		}
	}
	return out
}

// Player returns the cached player with the given id
func (c *Cache) Player(id model.PlayerID) (model.Player, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := c.players.index(string(id))
	if i < 0 {
		return model.Player{}, false
	}
	return c.players.items[i], true
}

// Match returns the cached match with the given id
func (c *Cache) Match(id model.MatchID) (model.Match, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := c.matches.index(string(id))
	if i < 0 {
		return model.Match{}, false
	}
	m := c.matches.items[i]
	m.WinnerID = copyWinner(m.WinnerID)
	return m, true
}

// PlayerName returns the player's name, or UnknownPlayerName
func (c *Cache) PlayerName(id model.PlayerID) string {
	if p, ok := c.Player(id); ok {
		return p.Name
	}
	return UnknownPlayerName
}

// Stats counts players and matches by status
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := Stats{
		Players: len(c.players.items),
		Matches: len(c.matches.items),
	}
	for _, m := range c.matches.items {
		switch m.Status {
		case model.MatchStatusLive:
			stats.Live++
		case model.MatchStatusUpcoming:
			stats.Upcoming++
		case model.MatchStatusFinished:
			stats.Finished++
		}
	}
	return stats
}

func copyWinner(w *model.PlayerID) *model.PlayerID {
	if w == nil {
		return nil
	}
	id := *w
	return &id
}
