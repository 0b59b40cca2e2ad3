package redis

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/pingpong/internal/model"
	"github.com/mcoot/pingpong/internal/storage"
	"github.com/mcoot/pingpong/internal/storage/storagetest"
	"github.com/mcoot/pingpong/internal/testutil"
)

type StorageSuite struct {
	storagetest.Suite
	mini *miniredis.Miniredis
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) SetupTest() {
	s.mini = miniredis.RunT(s.T())
	s.NewStore = func() storage.Store {
		client := redis.NewClient(&redis.Options{
			Addr: s.mini.Addr(),
		})
		store, err := NewWithClient(client, DefaultConfig(), testutil.NopLogger())
		s.Require().NoError(err)
		return store
	}
	s.Suite.SetupTest()
}

func (s *StorageSuite) TestKeysArePrefixed() {
	_, err := s.Store.InsertPlayer(s.Ctx, &model.Player{ID: "p1", Name: "Ana", Nickname: "101"})
	s.Require().NoError(err)

	s.True(s.mini.Exists("pingpong:player:p1"))
	s.True(s.mini.Exists("pingpong:idx:registration:3:ana:101"))
	members, err := s.mini.Members("pingpong:idx:players")
	s.Require().NoError(err)
	s.Equal([]string{"p1"}, members)

	seq, err := s.mini.Get("pingpong:seq:players")
	s.Require().NoError(err)
	s.Equal("1", seq)
}

func (s *StorageSuite) TestDeleteClearsIndexes() {
	_, err := s.Store.InsertPlayer(s.Ctx, &model.Player{ID: "p1", Name: "Ana", Nickname: "101"})
	s.Require().NoError(err)

	s.Require().NoError(s.Store.DeletePlayer(s.Ctx, "p1"))

	s.False(s.mini.Exists("pingpong:player:p1"))
	s.False(s.mini.Exists("pingpong:idx:registration:3:ana:101"))
	players, err := s.Store.ListPlayers(s.Ctx)
	s.Require().NoError(err)
	s.Empty(players)
}

func (s *StorageSuite) TestStoresSharingRedisSeeEachOthersWrites() {
	other := s.NewStore()
	defer other.Close()

	sub, err := other.Subscribe(s.Ctx, model.CollectionMatches)
	s.Require().NoError(err)
	defer sub.Unsubscribe()

	m, err := s.Store.InsertMatch(s.Ctx, &model.Match{ID: "m1", Player1ID: "p1", Player2ID: "p2", Status: model.MatchStatusUpcoming})
	s.Require().NoError(err)

	ev := testutil.NextEvent(s.T(), sub)
	s.Equal(model.ChangeInsert, ev.Kind)
	s.Equal(m.Version, ev.Seq)
}

func (s *StorageSuite) TestMalformedMessagesAreSkipped() {
	sub, err := s.Store.Subscribe(s.Ctx, model.CollectionPlayers)
	s.Require().NoError(err)
	defer sub.Unsubscribe()

	s.mini.Publish("pingpong:changes:players", "{not json")

	valid, err := json.Marshal(model.ChangeEvent{
		Kind:       model.ChangeUpdate,
		Collection: model.CollectionPlayers,
		Seq:        42,
		New:        json.RawMessage(`{"id":"p9"}`),
	})
	s.Require().NoError(err)
	s.mini.Publish("pingpong:changes:players", string(valid))

	ev := testutil.NextEvent(s.T(), sub)
	s.Equal(int64(42), ev.Seq)
}

func (s *StorageSuite) TestCloseIsIdempotent() {
	s.Require().NoError(s.Store.Close())
	s.Require().NoError(s.Store.Close())
	s.Store = nil
}

func (s *StorageSuite) TestConcurrentStatIncrements() {
	_, err := s.Store.InsertPlayer(s.Ctx, &model.Player{ID: "p1", Name: "Ana", Nickname: "101", CreatedAt: time.Now().UTC()})
	s.Require().NoError(err)

	done := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func() {
			_, err := s.Store.ApplyPlayerStats(s.Ctx, "p1", model.StatsDelta{Wins: 1})
			done <- err
		}()
	}
	for i := 0; i < 5; i++ {
		s.Require().NoError(<-done)
	}

	p, err := s.Store.GetPlayer(s.Ctx, "p1")
	s.Require().NoError(err)
	s.Equal(5, p.Wins)
}
