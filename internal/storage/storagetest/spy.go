package storagetest

import (
	"context"
	"sync"

	"github.com/mcoot/pingpong/internal/model"
	"github.com/mcoot/pingpong/internal/storage"
	"github.com/mcoot/pingpong/internal/storage/changefeed"
)

// Spy wraps a Store, counting calls per method and injecting failures
type Spy struct {
	Inner storage.Store

	mu       sync.Mutex
	calls    map[string]int
	failures map[string][]error
	failAll  map[string]error
	after    map[string]func()
}

// NewSpy wraps inner
func NewSpy(inner storage.Store) *Spy {
	return &Spy{
		Inner:    inner,
		calls:    make(map[string]int),
		failures: make(map[string][]error),
		failAll:  make(map[string]error),
		after:    make(map[string]func()),
	}
}

var _ storage.Store = (*Spy)(nil)

// FailNext makes the next n calls to method return err
func (s *Spy) FailNext(method string, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.failures[method] = append(s.failures[method], err)
	}
}

// FailAlways makes every call to method return err until Reset
func (s *Spy) FailAlways(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll[method] = err
}

// AfterNext runs fn once, right after the next call to method returns from
// the wrapped store. Tests use it to interleave a competing write.
func (s *Spy) AfterNext(method string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.after[method] = fn
}

// takeAfter removes and returns the hook queued for method
func (s *Spy) takeAfter(method string) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn := s.after[method]
	delete(s.after, method)
	if fn == nil {
		return func() {}
	}
	return fn
}

// Reset clears counters and injected failures
func (s *Spy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = make(map[string]int)
	s.failures = make(map[string][]error)
	s.failAll = make(map[string]error)
	s.after = make(map[string]func())
}

// Calls returns how many times method was called
func (s *Spy) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// TotalCalls returns the number of calls to any method
func (s *Spy) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// record counts the call and returns an injected failure, if any
func (s *Spy) record(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[method]++
	if err := s.failAll[method]; err != nil {
		return err
	}
	if queued := s.failures[method]; len(queued) > 0 {
		s.failures[method] = queued[1:]
		return queued[0]
	}
	return nil
}

func (s *Spy) ListPlayers(ctx context.Context) ([]model.Player, error) {
	if err := s.record("ListPlayers"); err != nil {
		return nil, err
	}
	return s.Inner.ListPlayers(ctx)
}

func (s *Spy) GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	if err := s.record("GetPlayer"); err != nil {
		return nil, err
	}
	return s.Inner.GetPlayer(ctx, id)
}

func (s *Spy) FindPlayer(ctx context.Context, name, room string) (*model.Player, error) {
	if err := s.record("FindPlayer"); err != nil {
		return nil, err
	}
	return s.Inner.FindPlayer(ctx, name, room)
}

func (s *Spy) InsertPlayer(ctx context.Context, player *model.Player) (*model.Player, error) {
	if err := s.record("InsertPlayer"); err != nil {
		return nil, err
	}
	return s.Inner.InsertPlayer(ctx, player)
}

func (s *Spy) ApplyPlayerStats(ctx context.Context, id model.PlayerID, delta model.StatsDelta) (*model.Player, error) {
	if err := s.record("ApplyPlayerStats"); err != nil {
		return nil, err
	}
	return s.Inner.ApplyPlayerStats(ctx, id, delta)
}

func (s *Spy) DeletePlayer(ctx context.Context, id model.PlayerID) error {
	if err := s.record("DeletePlayer"); err != nil {
		return err
	}
	return s.Inner.DeletePlayer(ctx, id)
}

func (s *Spy) ListMatches(ctx context.Context) ([]model.Match, error) {
	if err := s.record("ListMatches"); err != nil {
		return nil, err
	}
	return s.Inner.ListMatches(ctx)
}

func (s *Spy) GetMatch(ctx context.Context, id model.MatchID) (*model.Match, error) {
	if err := s.record("GetMatch"); err != nil {
		return nil, err
	}
	defer s.takeAfter("GetMatch")()
	return s.Inner.GetMatch(ctx, id)
}

func (s *Spy) InsertMatch(ctx context.Context, match *model.Match) (*model.Match, error) {
	if err := s.record("InsertMatch"); err != nil {
		return nil, err
	}
	return s.Inner.InsertMatch(ctx, match)
}

func (s *Spy) UpdateMatch(ctx context.Context, id model.MatchID, patch model.MatchPatch) (*model.Match, error) {
	if err := s.record("UpdateMatch"); err != nil {
		return nil, err
	}
	return s.Inner.UpdateMatch(ctx, id, patch)
}

func (s *Spy) DeleteMatch(ctx context.Context, id model.MatchID) error {
	if err := s.record("DeleteMatch"); err != nil {
		return err
	}
	return s.Inner.DeleteMatch(ctx, id)
}

func (s *Spy) IsAdmin(ctx context.Context, id model.PrincipalID) (bool, error) {
	if err := s.record("IsAdmin"); err != nil {
		return false, err
	}
	return s.Inner.IsAdmin(ctx, id)
}

func (s *Spy) AddAdmin(ctx context.Context, id model.PrincipalID) error {
	if err := s.record("AddAdmin"); err != nil {
		return err
	}
	return s.Inner.AddAdmin(ctx, id)
}

func (s *Spy) RemoveAdmin(ctx context.Context, id model.PrincipalID) error {
	if err := s.record("RemoveAdmin"); err != nil {
		return err
	}
	return s.Inner.RemoveAdmin(ctx, id)
}

func (s *Spy) SaveAccount(ctx context.Context, account *model.Account) error {
	if err := s.record("SaveAccount"); err != nil {
		return err
	}
	return s.Inner.SaveAccount(ctx, account)
}

func (s *Spy) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	if err := s.record("GetAccountByEmail"); err != nil {
		return nil, err
	}
	return s.Inner.GetAccountByEmail(ctx, email)
}

func (s *Spy) Subscribe(ctx context.Context, collection model.Collection) (*changefeed.Subscription, error) {
	if err := s.record("Subscribe"); err != nil {
		return nil, err
	}
	return s.Inner.Subscribe(ctx, collection)
}

func (s *Spy) Close() error {
	return s.Inner.Close()
}
