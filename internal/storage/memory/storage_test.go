package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/pingpong/internal/model"
	"github.com/mcoot/pingpong/internal/storage"
	"github.com/mcoot/pingpong/internal/storage/storagetest"
	"github.com/mcoot/pingpong/internal/testutil"
)

type StorageSuite struct {
	storagetest.Suite
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, &StorageSuite{
		Suite: storagetest.Suite{
			NewStore: func() storage.Store { return New(testutil.NopLogger()) },
		},
	})
}

func (s *StorageSuite) TestReturnedRecordsAreCopies() {
	p := &model.Player{ID: "p1", Name: "Ana", Nickname: "101"}
	_, err := s.Store.InsertPlayer(s.Ctx, p)
	s.Require().NoError(err)
	p.Name = "Mutated"

	got, err := s.Store.GetPlayer(s.Ctx, "p1")
	s.Require().NoError(err)
	s.Equal("Ana", got.Name)
	got.Wins = 99

	again, err := s.Store.GetPlayer(s.Ctx, "p1")
	s.Require().NoError(err)
	s.Equal(0, again.Wins)
}

func (s *StorageSuite) TestSlowSubscriberOverflows() {
	store := NewWithBuffer(2, testutil.NopLogger())
	defer store.Close()

	sub, err := store.Subscribe(s.Ctx, model.CollectionPlayers)
	s.Require().NoError(err)

	for _, id := range []model.PlayerID{"p1", "p2", "p3"} {
		_, err := store.InsertPlayer(s.Ctx, &model.Player{ID: id, Name: string(id), Nickname: "1"})
		s.Require().NoError(err)
	}

	// Buffered events are still delivered before the channel closes
	count := 0
	for range sub.C() {
		count++
	}
	s.Equal(2, count)
	s.ErrorIs(sub.Err(), model.ErrSubscriptionOverflow)
}

func (s *StorageSuite) TestCloseEndsSubscriptions() {
	sub, err := s.Store.Subscribe(s.Ctx, model.CollectionMatches)
	s.Require().NoError(err)

	s.Require().NoError(s.Store.Close())

	_, ok := <-sub.C()
	s.False(ok)
	s.ErrorIs(sub.Err(), model.ErrSubscriptionClosed)
	s.Store = nil
}

func TestPublishLogsEncodeFailure(t *testing.T) {
	logger, logs := testutil.CaptureLogger()
	s := New(logger)
	defer func() { _ = s.Close() }()

	sub, err := s.Subscribe(context.Background(), model.CollectionMatches)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	s.mu.Lock()
	s.publish(model.ChangeEvent{Kind: model.ChangeUpdate, Collection: model.CollectionMatches, Seq: 7}, errors.New("unsupported value"))
	s.mu.Unlock()

	out := logs.String()
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, "failed to encode change event")
	assert.Contains(t, out, `"collection":"matches"`)
	assert.Contains(t, out, `"seq":7`)
	assert.Empty(t, sub.C())
}
