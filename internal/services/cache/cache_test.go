package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/pingpong/internal/model"
	"github.com/mcoot/pingpong/internal/storage/memory"
	"github.com/mcoot/pingpong/internal/storage/storagetest"
	"github.com/mcoot/pingpong/internal/testutil"
)

type CacheSuite struct {
	suite.Suite
	store *memory.Storage
	spy   *storagetest.Spy
	cache *Cache
	ctx   context.Context

	mu     sync.Mutex
	events []model.ChangeEvent
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New(testutil.NopLogger())
	s.spy = storagetest.NewSpy(s.store)
	s.cache = New(s.spy, DefaultConfig(), testutil.NopLogger())
	s.events = nil
	s.cache.Listen(func(ev model.ChangeEvent) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.events = append(s.events, ev)
	})
}

func (s *CacheSuite) TearDownTest() {
	s.cache.Close()
	_ = s.store.Close()
}

func (s *CacheSuite) notified() []model.ChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ChangeEvent(nil), s.events...)
}

func (s *CacheSuite) playerEvent(kind model.ChangeKind, seq int64, p model.Player) model.ChangeEvent {
	p.Version = seq
	ev, err := model.NewPlayerEvent(kind, seq, &p)
	s.Require().NoError(err)
	return ev
}

func (s *CacheSuite) matchEvent(kind model.ChangeKind, seq int64, m model.Match) model.ChangeEvent {
	m.Version = seq
	ev, err := model.NewMatchEvent(kind, seq, &m)
	s.Require().NoError(err)
	return ev
}

func (s *CacheSuite) apply(ev model.ChangeEvent) {
	s.Require().NoError(s.cache.ApplyChangeEvent(ev))
}

var (
	ana = model.Player{ID: "ana", Name: "Ana", Nickname: "101"}
	ben = model.Player{ID: "ben", Name: "Ben", Nickname: "102"}
)

// ApplyChangeEvent tests

func (s *CacheSuite) TestInsertAppendsPlayersAndPrependsMatches() {
	s.apply(s.playerEvent(model.ChangeInsert, 1, ana))
	s.apply(s.playerEvent(model.ChangeInsert, 2, ben))
	s.apply(s.matchEvent(model.ChangeInsert, 1, model.Match{ID: "m1", Player1ID: "ana", Player2ID: "ben", Status: model.MatchStatusUpcoming}))
	s.apply(s.matchEvent(model.ChangeInsert, 2, model.Match{ID: "m2", Player1ID: "ben", Player2ID: "ana", Status: model.MatchStatusUpcoming}))

	players := s.cache.Players()
	s.Require().Len(players, 2)
	s.Equal(model.PlayerID("ana"), players[0].ID)
	s.Equal(model.PlayerID("ben"), players[1].ID)

	matches := s.cache.Matches()
	s.Require().Len(matches, 2)
	s.Equal(model.MatchID("m2"), matches[0].ID)
	s.Equal(model.MatchID("m1"), matches[1].ID)
	s.Len(s.notified(), 4)
}

func (s *CacheSuite) TestUpdateIsIdempotent() {
	s.apply(s.playerEvent(model.ChangeInsert, 1, ana))
	updated := ana
	updated.Wins = 1
	ev := s.playerEvent(model.ChangeUpdate, 2, updated)

	s.apply(ev)
	s.apply(ev)

	players := s.cache.Players()
	s.Require().Len(players, 1)
	s.Equal(1, players[0].Wins)
	s.Len(s.notified(), 2)
}

func (s *CacheSuite) TestStaleEventIsIgnored() {
	newer := ana
	newer.Wins = 3
	s.apply(s.playerEvent(model.ChangeUpdate, 5, newer))

	older := ana
	older.Wins = 1
	s.apply(s.playerEvent(model.ChangeUpdate, 4, older))

	p, ok := s.cache.Player("ana")
	s.Require().True(ok)
	s.Equal(3, p.Wins)
	s.Equal(int64(5), p.Version)
}

func (s *CacheSuite) TestDuplicateInsertIsTreatedAsUpdate() {
	s.apply(s.playerEvent(model.ChangeInsert, 1, ana))
	renamed := ana
	renamed.Name = "Ana B"
	s.apply(s.playerEvent(model.ChangeInsert, 2, renamed))

	players := s.cache.Players()
	s.Require().Len(players, 1)
	s.Equal("Ana B", players[0].Name)
}

func (s *CacheSuite) TestUpdateOfMissingRecordUpserts() {
	s.apply(s.matchEvent(model.ChangeUpdate, 3, model.Match{ID: "m1", Player1ID: "ana", Player2ID: "ben", Status: model.MatchStatusLive}))

	m, ok := s.cache.Match("m1")
	s.Require().True(ok)
	s.Equal(model.MatchStatusLive, m.Status)
}

func (s *CacheSuite) TestDeleteOfMissingRecordIsNoop() {
	s.apply(s.playerEvent(model.ChangeInsert, 1, ana))

	s.apply(s.playerEvent(model.ChangeDelete, 2, ben))

	s.Len(s.cache.Players(), 1)
	s.Len(s.notified(), 1)
}

func (s *CacheSuite) TestDeleteRemovesAndBlocksLateInsert() {
	s.apply(s.playerEvent(model.ChangeInsert, 1, ana))
	s.apply(s.playerEvent(model.ChangeDelete, 3, ana))
	s.Empty(s.cache.Players())

	// A delayed update from before the delete must not bring the row back
	s.apply(s.playerEvent(model.ChangeUpdate, 2, ana))
	s.Empty(s.cache.Players())
}

func (s *CacheSuite) TestZeroSeqBypassesVersionCheck() {
	newer := ana
	newer.Wins = 3
	s.apply(s.playerEvent(model.ChangeUpdate, 5, newer))

	raw, err := model.NewPlayerEvent(model.ChangeUpdate, 0, &model.Player{ID: "ana", Name: "Ana", Wins: 1})
	s.Require().NoError(err)
	s.apply(raw)

	p, _ := s.cache.Player("ana")
	s.Equal(1, p.Wins)
}

func (s *CacheSuite) TestMalformedEvents() {
	err := s.cache.ApplyChangeEvent(model.ChangeEvent{Kind: model.ChangeInsert, Collection: model.CollectionPlayers, Seq: 1})
	s.ErrorIs(err, model.ErrMalformedEvent)

	err = s.cache.ApplyChangeEvent(model.ChangeEvent{Kind: model.ChangeInsert, Collection: "scores", Seq: 1, New: []byte(`{"id":"x"}`)})
	s.ErrorIs(err, model.ErrMalformedEvent)

	err = s.cache.ApplyChangeEvent(model.ChangeEvent{Kind: "upsert", Collection: model.CollectionPlayers, Seq: 1, New: []byte(`{"id":"x"}`)})
	s.ErrorIs(err, model.ErrMalformedEvent)

	s.Empty(s.cache.Players())
}

// InitialLoad tests

func (s *CacheSuite) TestInitialLoadOrdersSnapshots() {
	_, err := s.store.InsertPlayer(s.ctx, &model.Player{ID: "ben", Name: "Ben", Nickname: "102", Wins: 1})
	s.Require().NoError(err)
	_, err = s.store.InsertPlayer(s.ctx, &model.Player{ID: "ana", Name: "Ana", Nickname: "101", Wins: 4})
	s.Require().NoError(err)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	_, err = s.store.InsertMatch(s.ctx, &model.Match{ID: "m1", Player1ID: "ana", Player2ID: "ben", Status: model.MatchStatusUpcoming, CreatedAt: base})
	s.Require().NoError(err)
	_, err = s.store.InsertMatch(s.ctx, &model.Match{ID: "m2", Player1ID: "ana", Player2ID: "ben", Status: model.MatchStatusUpcoming, CreatedAt: base.Add(time.Minute)})
	s.Require().NoError(err)

	s.Require().NoError(s.cache.InitialLoad(s.ctx))

	s.True(s.cache.Loaded())
	players := s.cache.Players()
	s.Require().Len(players, 2)
	s.Equal("Ana", players[0].Name)
	matches := s.cache.Matches()
	s.Require().Len(matches, 2)
	s.Equal(model.MatchID("m2"), matches[0].ID)

	var reloads int
	for _, ev := range s.notified() {
		if ev.Kind == model.ChangeReload {
			reloads++
		}
	}
	s.Equal(2, reloads)
}

func (s *CacheSuite) TestInitialLoadPartialFailure() {
	_, err := s.store.InsertMatch(s.ctx, &model.Match{ID: "m1", Player1ID: "ana", Player2ID: "ben", Status: model.MatchStatusLive})
	s.Require().NoError(err)
	s.spy.FailNext("ListPlayers", 1, errors.New("players table locked"))

	s.NoError(s.cache.InitialLoad(s.ctx))
	s.Len(s.cache.Matches(), 1)
	s.Empty(s.cache.Players())
}

func (s *CacheSuite) TestInitialLoadTotalFailure() {
	s.spy.FailNext("ListPlayers", 1, errors.New("offline"))
	s.spy.FailNext("ListMatches", 1, errors.New("offline"))

	err := s.cache.InitialLoad(s.ctx)
	s.Require().Error(err)
	s.Contains(err.Error(), "loading players")
	s.Contains(err.Error(), "loading matches")
	s.False(s.cache.Loaded())
}

func (s *CacheSuite) TestSnapshotKeepsNewerEventVersion() {
	_, err := s.store.InsertPlayer(s.ctx, &model.Player{ID: "ana", Name: "Ana", Nickname: "101"})
	s.Require().NoError(err)

	// An event newer than anything the snapshot will contain
	newer := ana
	newer.Wins = 7
	s.apply(s.playerEvent(model.ChangeUpdate, 100, newer))

	s.Require().NoError(s.cache.InitialLoad(s.ctx))

	p, ok := s.cache.Player("ana")
	s.Require().True(ok)
	s.Equal(7, p.Wins)
}

func (s *CacheSuite) TestSnapshotDropsRecordsMissingFromStore() {
	s.apply(s.playerEvent(model.ChangeInsert, 1, ben))

	s.Require().NoError(s.cache.InitialLoad(s.ctx))

	s.Empty(s.cache.Players())
}

// Read side tests

func (s *CacheSuite) TestLeaderboardOrdering() {
	s.apply(s.playerEvent(model.ChangeInsert, 1, model.Player{ID: "a", Name: "Cat", Wins: 2, Losses: 3}))
	s.apply(s.playerEvent(model.ChangeInsert, 2, model.Player{ID: "b", Name: "bob", Wins: 2, Losses: 1}))
	s.apply(s.playerEvent(model.ChangeInsert, 3, model.Player{ID: "c", Name: "Al", Wins: 2, Losses: 1}))
	s.apply(s.playerEvent(model.ChangeInsert, 4, model.Player{ID: "d", Name: "Dee", Wins: 5}))

	board := s.cache.Leaderboard()
	s.Require().Len(board, 4)
	s.Equal("Dee", board[0].Name)
	s.Equal("Al", board[1].Name)
	s.Equal("bob", board[2].Name)
	s.Equal("Cat", board[3].Name)
}

func (s *CacheSuite) TestPlayerNameAndStats() {
	s.apply(s.playerEvent(model.ChangeInsert, 1, ana))
	s.apply(s.matchEvent(model.ChangeInsert, 1, model.Match{ID: "m1", Status: model.MatchStatusLive}))
	s.apply(s.matchEvent(model.ChangeInsert, 2, model.Match{ID: "m2", Status: model.MatchStatusUpcoming}))
	s.apply(s.matchEvent(model.ChangeInsert, 3, model.Match{ID: "m3", Status: model.MatchStatusFinished}))
	s.apply(s.matchEvent(model.ChangeInsert, 4, model.Match{ID: "m4", Status: model.MatchStatusLive}))

	s.Equal("Ana", s.cache.PlayerName("ana"))
	s.Equal(UnknownPlayerName, s.cache.PlayerName("ghost"))
	s.Equal(Stats{Players: 1, Matches: 4, Live: 2, Upcoming: 1, Finished: 1}, s.cache.Stats())

	live := s.cache.MatchesByStatus(model.MatchStatusLive)
	s.Require().Len(live, 2)
	s.Equal(model.MatchID("m4"), live[0].ID)
}

func (s *CacheSuite) TestReadersGetCopies() {
	winner := model.PlayerID("ana")
	s.apply(s.matchEvent(model.ChangeInsert, 1, model.Match{ID: "m1", Status: model.MatchStatusFinished, WinnerID: &winner}))

	m, _ := s.cache.Match("m1")
	*m.WinnerID = "ben"
	m.Status = model.MatchStatusLive

	again, _ := s.cache.Match("m1")
	s.Equal(model.PlayerID("ana"), again.Winner())
	s.Equal(model.MatchStatusFinished, again.Status)
}

func (s *CacheSuite) TestUnlisten() {
	var calls int
	unlisten := s.cache.Listen(func(model.ChangeEvent) { calls++ })
	s.apply(s.playerEvent(model.ChangeInsert, 1, ana))
	unlisten()
	s.apply(s.playerEvent(model.ChangeInsert, 2, ben))
	s.Equal(1, calls)
}

// Lifecycle tests

func (s *CacheSuite) TestStartFollowsStoreWrites() {
	s.Require().NoError(s.cache.Start(s.ctx))

	_, err := s.store.InsertPlayer(s.ctx, &model.Player{ID: "ana", Name: "Ana", Nickname: "101"})
	s.Require().NoError(err)

	s.Eventually(func() bool {
		_, ok := s.cache.Player("ana")
		return ok
	}, testutil.EventTimeout, 10*time.Millisecond)
}

func (s *CacheSuite) TestCloseReleasesSubscriptions() {
	s.Require().NoError(s.cache.Start(s.ctx))
	s.Equal(2, s.store.SubscriberCount())

	s.cache.Close()
	s.cache.Close()

	s.Equal(0, s.store.SubscriberCount())
}

func (s *CacheSuite) TestStartFailsWhenSubscribeFails() {
	s.spy.FailNext("Subscribe", 1, errors.New("realtime unavailable"))
	s.Error(s.cache.Start(s.ctx))
	s.Equal(0, s.store.SubscriberCount())
}

func TestCache_OverflowTriggersResync(t *testing.T) {
	ctx := context.Background()
	store := memory.NewWithBuffer(1, testutil.NopLogger())
	defer store.Close()

	c := New(store, DefaultConfig(), testutil.NopLogger())
	defer c.Close()

	// Block the drain goroutine inside a listener so the buffer fills up
	release := make(chan struct{})
	var once sync.Once
	c.Listen(func(ev model.ChangeEvent) {
		if ev.Kind == model.ChangeInsert {
			once.Do(func() { <-release })
		}
	})

	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}

	for _, id := range []model.PlayerID{"p1", "p2", "p3", "p4"} {
		if _, err := store.InsertPlayer(ctx, &model.Player{ID: id, Name: string(id), Nickname: "1"}); err != nil {
			t.Fatal(err)
		}
	}
	close(release)

	deadline := time.Now().Add(testutil.EventTimeout)
	for time.Now().Before(deadline) {
		if len(c.Players()) == 4 && store.SubscriberCount() == 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("cache did not resync: %d players, %d subscriptions", len(c.Players()), store.SubscriberCount())
}
