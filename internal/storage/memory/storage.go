package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcoot/pingpong/internal/model"
	"github.com/mcoot/pingpong/internal/storage"
	"github.com/mcoot/pingpong/internal/storage/changefeed"
)

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu sync.RWMutex

	players  map[model.PlayerID]*model.Player
	matches  map[model.MatchID]*model.Match
	admins   map[model.PrincipalID]struct{}
	accounts map[string]*model.Account // keyed by normalized email
	seq      map[model.Collection]int64

	feed   *changefeed.Feed
	logger *slog.Logger
}

// New creates a new in-memory storage instance
func New(logger *slog.Logger) *Storage {
	return NewWithBuffer(changefeed.DefaultBufferSize, logger)
}

// NewWithBuffer creates an in-memory storage with a custom change feed buffer
func NewWithBuffer(buffer int, logger *slog.Logger) *Storage {
	return &Storage{
		players:  make(map[model.PlayerID]*model.Player),
		matches:  make(map[model.MatchID]*model.Match),
		admins:   make(map[model.PrincipalID]struct{}),
		accounts: make(map[string]*model.Account),
		seq:      make(map[model.Collection]int64),
		feed:     changefeed.New(buffer, logger),
		logger:   logger.With(slog.String("component", "memory-storage")),
	}
}

// Ensure Storage implements the interface
var _ storage.Store = (*Storage)(nil)

// nextSeq must be called with mu held
func (s *Storage) nextSeq(c model.Collection) int64 {
	s.seq[c]++
	return s.seq[c]
}

// publish must be called with mu held so events leave in commit order
func (s *Storage) publish(ev model.ChangeEvent, err error) {
	if err != nil {
		s.logger.Error("failed to encode change event",
			slog.String("collection", string(ev.Collection)),
			slog.String("kind", string(ev.Kind)),
			slog.Int64("seq", ev.Seq),
			slog.String("error", err.Error()))
		return
	}
	s.feed.Publish(ev)
}

// Player operations

func (s *Storage) ListPlayers(ctx context.Context) ([]model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	players := make([]model.Player, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, *p)
	}
	storage.SortPlayers(players)
	return players, nil
}

func (s *Storage) GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[id]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	cp := *player
	return &cp, nil
}

func (s *Storage) FindPlayer(ctx context.Context, name, room string) (*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *model.Player
	for _, p := range s.players {
		if !p.MatchesRegistration(name, room) {
			continue
		}
		// Oldest registration wins if the convention was ever broken
		if found == nil || p.CreatedAt.Before(found.CreatedAt) {
			found = p
		}
	}
	if found == nil {
		return nil, model.ErrPlayerNotFound
	}
	cp := *found
	return &cp, nil
}

func (s *Storage) InsertPlayer(ctx context.Context, player *model.Player) (*model.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := *player
	if p.ID == "" {
		p.ID = model.PlayerID(uuid.NewString())
	}
	if _, exists := s.players[p.ID]; exists {
		return nil, model.ErrRecordExists
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.Version = s.nextSeq(model.CollectionPlayers)
	s.players[p.ID] = &p

	s.publish(model.NewPlayerEvent(model.ChangeInsert, p.Version, &p))
	cp := p
	return &cp, nil
}

func (s *Storage) ApplyPlayerStats(ctx context.Context, id model.PlayerID, delta model.StatsDelta) (*model.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[id]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	p.Wins += delta.Wins
	p.Losses += delta.Losses
	p.Version = s.nextSeq(model.CollectionPlayers)

	s.publish(model.NewPlayerEvent(model.ChangeUpdate, p.Version, p))
	cp := *p
	return &cp, nil
}

func (s *Storage) DeletePlayer(ctx context.Context, id model.PlayerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[id]
	if !ok {
		return model.ErrPlayerNotFound
	}
	delete(s.players, id)
	seq := s.nextSeq(model.CollectionPlayers)

	s.publish(model.NewPlayerEvent(model.ChangeDelete, seq, p))
	return nil
}

// Match operations

func (s *Storage) ListMatches(ctx context.Context) ([]model.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matches := make([]model.Match, 0, len(s.matches))
	for _, m := range s.matches {
		matches = append(matches, copyMatch(m))
	}
	storage.SortMatches(matches)
	return matches, nil
}

func (s *Storage) GetMatch(ctx context.Context, id model.MatchID) (*model.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, model.ErrMatchNotFound
	}
	cp := copyMatch(m)
	return &cp, nil
}

func (s *Storage) InsertMatch(ctx context.Context, match *model.Match) (*model.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := copyMatch(match)
	if m.ID == "" {
		m.ID = model.MatchID(uuid.NewString())
	}
	if _, exists := s.matches[m.ID]; exists {
		return nil, model.ErrRecordExists
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.Version = s.nextSeq(model.CollectionMatches)
	s.matches[m.ID] = &m

	s.publish(model.NewMatchEvent(model.ChangeInsert, m.Version, &m))
	cp := copyMatch(&m)
	return &cp, nil
}

func (s *Storage) UpdateMatch(ctx context.Context, id model.MatchID, patch model.MatchPatch) (*model.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[id]
	if !ok {
		return nil, model.ErrMatchNotFound
	}
	if err := m.CheckPatch(patch); err != nil {
		return nil, err
	}
	patch.Apply(m)
	m.WinnerID = copyWinner(patch.WinnerID)
	m.Version = s.nextSeq(model.CollectionMatches)

	s.publish(model.NewMatchEvent(model.ChangeUpdate, m.Version, m))
	cp := copyMatch(m)
	return &cp, nil
}

func (s *Storage) DeleteMatch(ctx context.Context, id model.MatchID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[id]
	if !ok {
		return model.ErrMatchNotFound
	}
	delete(s.matches, id)
	seq := s.nextSeq(model.CollectionMatches)

	s.publish(model.NewMatchEvent(model.ChangeDelete, seq, m))
	return nil
}

// Admin allow-list operations

func (s *Storage) IsAdmin(ctx context.Context, id model.PrincipalID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.admins[id]
	return ok, nil
}

func (s *Storage) AddAdmin(ctx context.Context, id model.PrincipalID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[id] = struct{}{}
	return nil
}

func (s *Storage) RemoveAdmin(ctx context.Context, id model.PrincipalID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.admins, id)
	return nil
}

// Account operations

func (s *Storage) SaveAccount(ctx context.Context, account *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := *account
	a.Email = storage.NormalizeEmail(a.Email)
	s.accounts[a.Email] = &a
	return nil
}

func (s *Storage) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[storage.NormalizeEmail(email)]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

// Change feed

func (s *Storage) Subscribe(ctx context.Context, collection model.Collection) (*changefeed.Subscription, error) {
	return s.feed.Subscribe(collection), nil
}

// SubscriberCount returns the number of live change feed subscriptions
func (s *Storage) SubscriberCount() int {
	return s.feed.SubscriberCount()
}

// Close ends all subscriptions
func (s *Storage) Close() error {
	s.feed.Close()
	return nil
}

func copyMatch(m *model.Match) model.Match {
	cp := *m
	cp.WinnerID = copyWinner(m.WinnerID)
	return cp
}

func copyWinner(w *model.PlayerID) *model.PlayerID {
	if w == nil {
		return nil
	}
	id := *w
	return &id
}
