// Package storagetest holds the behaviour every storage.Store backend must share.
package storagetest

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/pingpong/internal/model"
	"github.com/mcoot/pingpong/internal/storage"
	"github.com/mcoot/pingpong/internal/testutil"
)

// Suite runs the store contract against a backend. Embed it in a backend
// suite and set NewStore, or run it directly.
type Suite struct {
	suite.Suite

	// NewStore returns a fresh, empty store for each test
	NewStore func() storage.Store

	Store storage.Store
	Ctx   context.Context
}

func (s *Suite) SetupTest() {
	s.Ctx = context.Background()
	s.Store = s.NewStore()
}

func (s *Suite) TearDownTest() {
	if s.Store != nil {
		_ = s.Store.Close()
	}
}

func (s *Suite) insertPlayer(id, name, room string, wins, losses int) *model.Player {
	p, err := s.Store.InsertPlayer(s.Ctx, &model.Player{
		ID:        model.PlayerID(id),
		Name:      name,
		Nickname:  room,
		Wins:      wins,
		Losses:    losses,
		CreatedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	})
	s.Require().NoError(err)
	return p
}

func (s *Suite) insertMatch(id string, p1, p2 model.PlayerID, created time.Time) *model.Match {
	m, err := s.Store.InsertMatch(s.Ctx, &model.Match{
		ID:        model.MatchID(id),
		Player1ID: p1,
		Player2ID: p2,
		Status:    model.MatchStatusUpcoming,
		CreatedAt: created,
	})
	s.Require().NoError(err)
	return m
}

// Player tests

func (s *Suite) TestInsertAndGetPlayer() {
	inserted := s.insertPlayer("p1", "Ana", "101", 0, 0)
	s.Positive(inserted.Version)

	got, err := s.Store.GetPlayer(s.Ctx, "p1")
	s.Require().NoError(err)
	s.Equal("Ana", got.Name)
	s.Equal("101", got.Room())
	s.Equal(inserted.Version, got.Version)
}

func (s *Suite) TestInsertPlayerAssignsID() {
	p, err := s.Store.InsertPlayer(s.Ctx, &model.Player{Name: "Ana", Nickname: "101"})
	s.Require().NoError(err)
	s.NotEmpty(p.ID)
	s.False(p.CreatedAt.IsZero())
}

func (s *Suite) TestInsertDuplicatePlayer() {
	s.insertPlayer("p1", "Ana", "101", 0, 0)
	_, err := s.Store.InsertPlayer(s.Ctx, &model.Player{ID: "p1", Name: "Ana", Nickname: "101"})
	s.ErrorIs(err, model.ErrRecordExists)
}

func (s *Suite) TestGetPlayerNotFound() {
	_, err := s.Store.GetPlayer(s.Ctx, "nonexistent")
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *Suite) TestFindPlayerIsCaseInsensitive() {
	s.insertPlayer("p1", "Ana", "101A", 0, 0)

	got, err := s.Store.FindPlayer(s.Ctx, "ana", "101a")
	s.Require().NoError(err)
	s.Equal(model.PlayerID("p1"), got.ID)

	_, err = s.Store.FindPlayer(s.Ctx, "ana", "102")
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *Suite) TestFindPlayerSeparatorInParts() {
	s.insertPlayer("p1", "Ana:B", "101", 0, 0)

	_, err := s.Store.FindPlayer(s.Ctx, "Ana", "b:101")
	s.ErrorIs(err, model.ErrPlayerNotFound)

	s.insertPlayer("p2", "Ana", "b:101", 0, 0)
	got, err := s.Store.FindPlayer(s.Ctx, "ana", "B:101")
	s.Require().NoError(err)
	s.Equal(model.PlayerID("p2"), got.ID)
	got, err = s.Store.FindPlayer(s.Ctx, "ana:b", "101")
	s.Require().NoError(err)
	s.Equal(model.PlayerID("p1"), got.ID)
}

func (s *Suite) TestListPlayersOrderedByWins() {
	s.insertPlayer("p1", "Cat", "1", 1, 0)
	s.insertPlayer("p2", "Ana", "2", 3, 1)
	s.insertPlayer("p3", "Ben", "3", 1, 2)

	players, err := s.Store.ListPlayers(s.Ctx)
	s.Require().NoError(err)
	s.Require().Len(players, 3)
	s.Equal("Ana", players[0].Name)
	s.Equal("Ben", players[1].Name)
	s.Equal("Cat", players[2].Name)
}

func (s *Suite) TestApplyPlayerStats() {
	before := s.insertPlayer("p1", "Ana", "101", 2, 1)

	after, err := s.Store.ApplyPlayerStats(s.Ctx, "p1", model.StatsDelta{Wins: 1})
	s.Require().NoError(err)
	s.Equal(3, after.Wins)
	s.Equal(1, after.Losses)
	s.Greater(after.Version, before.Version)

	after, err = s.Store.ApplyPlayerStats(s.Ctx, "p1", model.StatsDelta{Losses: 2})
	s.Require().NoError(err)
	s.Equal(3, after.Wins)
	s.Equal(3, after.Losses)
}

func (s *Suite) TestApplyPlayerStatsNotFound() {
	_, err := s.Store.ApplyPlayerStats(s.Ctx, "ghost", model.StatsDelta{Wins: 1})
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *Suite) TestDeletePlayer() {
	s.insertPlayer("p1", "Ana", "101", 0, 0)

	s.Require().NoError(s.Store.DeletePlayer(s.Ctx, "p1"))

	_, err := s.Store.GetPlayer(s.Ctx, "p1")
	s.ErrorIs(err, model.ErrPlayerNotFound)
	s.ErrorIs(s.Store.DeletePlayer(s.Ctx, "p1"), model.ErrPlayerNotFound)
}

// Match tests

func (s *Suite) TestInsertAndGetMatch() {
	created := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.insertMatch("m1", "p1", "p2", created)

	got, err := s.Store.GetMatch(s.Ctx, "m1")
	s.Require().NoError(err)
	s.Equal(model.PlayerID("p1"), got.Player1ID)
	s.Equal(model.MatchStatusUpcoming, got.Status)
	s.Nil(got.WinnerID)
	s.True(created.Equal(got.CreatedAt))
}

func (s *Suite) TestGetMatchNotFound() {
	_, err := s.Store.GetMatch(s.Ctx, "nonexistent")
	s.ErrorIs(err, model.ErrMatchNotFound)
}

func (s *Suite) TestListMatchesNewestFirst() {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.insertMatch("m1", "p1", "p2", base)
	s.insertMatch("m2", "p1", "p3", base.Add(time.Hour))
	s.insertMatch("m3", "p2", "p3", base.Add(30*time.Minute))

	matches, err := s.Store.ListMatches(s.Ctx)
	s.Require().NoError(err)
	s.Require().Len(matches, 3)
	s.Equal(model.MatchID("m2"), matches[0].ID)
	s.Equal(model.MatchID("m3"), matches[1].ID)
	s.Equal(model.MatchID("m1"), matches[2].ID)
}

func (s *Suite) TestUpdateMatch() {
	inserted := s.insertMatch("m1", "p1", "p2", time.Now().UTC())
	winner := model.PlayerID("p1")

	updated, err := s.Store.UpdateMatch(s.Ctx, "m1", model.MatchPatch{
		Player1Score: 11,
		Player2Score: 7,
		Status:       model.MatchStatusFinished,
		WinnerID:     &winner,
	})
	s.Require().NoError(err)
	s.Greater(updated.Version, inserted.Version)

	got, err := s.Store.GetMatch(s.Ctx, "m1")
	s.Require().NoError(err)
	s.Equal(11, got.Player1Score)
	s.Equal(7, got.Player2Score)
	s.Equal(model.MatchStatusFinished, got.Status)
	s.Equal(winner, got.Winner())
}

func (s *Suite) TestUpdateMatchRefusesFinished() {
	s.insertMatch("m1", "p1", "p2", time.Now().UTC())
	winner := model.PlayerID("p1")
	_, err := s.Store.UpdateMatch(s.Ctx, "m1", model.MatchPatch{
		Player1Score: 11,
		Player2Score: 6,
		Status:       model.MatchStatusFinished,
		WinnerID:     &winner,
	})
	s.Require().NoError(err)

	other := model.PlayerID("p2")
	_, err = s.Store.UpdateMatch(s.Ctx, "m1", model.MatchPatch{
		Player1Score: 6,
		Player2Score: 11,
		Status:       model.MatchStatusFinished,
		WinnerID:     &other,
	})
	s.ErrorIs(err, model.ErrMatchFinished)

	got, err := s.Store.GetMatch(s.Ctx, "m1")
	s.Require().NoError(err)
	s.Equal(11, got.Player1Score)
	s.Equal(winner, got.Winner())
}

func (s *Suite) TestUpdateMatchRefusesBackwardsStatus() {
	s.insertMatch("m1", "p1", "p2", time.Now().UTC())
	_, err := s.Store.UpdateMatch(s.Ctx, "m1", model.MatchPatch{Player1Score: 1, Status: model.MatchStatusLive})
	s.Require().NoError(err)

	_, err = s.Store.UpdateMatch(s.Ctx, "m1", model.MatchPatch{Status: model.MatchStatusUpcoming})
	s.ErrorIs(err, model.ErrInvalidStatusTransition)
}

func (s *Suite) TestUpdateMatchNotFound() {
	_, err := s.Store.UpdateMatch(s.Ctx, "ghost", model.MatchPatch{Status: model.MatchStatusLive})
	s.ErrorIs(err, model.ErrMatchNotFound)
}

func (s *Suite) TestDeleteMatch() {
	s.insertMatch("m1", "p1", "p2", time.Now().UTC())

	s.Require().NoError(s.Store.DeleteMatch(s.Ctx, "m1"))
	_, err := s.Store.GetMatch(s.Ctx, "m1")
	s.ErrorIs(err, model.ErrMatchNotFound)
	s.ErrorIs(s.Store.DeleteMatch(s.Ctx, "m1"), model.ErrMatchNotFound)
}

// Admin and account tests

func (s *Suite) TestAdminAllowList() {
	ok, err := s.Store.IsAdmin(s.Ctx, "u1")
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(s.Store.AddAdmin(s.Ctx, "u1"))
	ok, err = s.Store.IsAdmin(s.Ctx, "u1")
	s.Require().NoError(err)
	s.True(ok)

	s.Require().NoError(s.Store.RemoveAdmin(s.Ctx, "u1"))
	ok, err = s.Store.IsAdmin(s.Ctx, "u1")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *Suite) TestSaveAndGetAccount() {
	err := s.Store.SaveAccount(s.Ctx, &model.Account{
		ID:           "u1",
		Email:        "Admin@Example.com",
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	})
	s.Require().NoError(err)

	got, err := s.Store.GetAccountByEmail(s.Ctx, "admin@example.com ")
	s.Require().NoError(err)
	s.Equal(model.PrincipalID("u1"), got.ID)
	s.Equal("hash", got.PasswordHash)

	_, err = s.Store.GetAccountByEmail(s.Ctx, "nobody@example.com")
	s.ErrorIs(err, model.ErrAccountNotFound)
}

// Change feed tests

func (s *Suite) TestPlayerWritesPublishEvents() {
	sub, err := s.Store.Subscribe(s.Ctx, model.CollectionPlayers)
	s.Require().NoError(err)
	defer sub.Unsubscribe()

	inserted := s.insertPlayer("p1", "Ana", "101", 0, 0)
	ev := testutil.NextEvent(s.T(), sub)
	s.Equal(model.ChangeInsert, ev.Kind)
	s.Equal(inserted.Version, ev.Seq)
	p, err := ev.DecodePlayer()
	s.Require().NoError(err)
	s.Equal("Ana", p.Name)

	updated, err := s.Store.ApplyPlayerStats(s.Ctx, "p1", model.StatsDelta{Wins: 1})
	s.Require().NoError(err)
	ev = testutil.NextEvent(s.T(), sub)
	s.Equal(model.ChangeUpdate, ev.Kind)
	s.Equal(updated.Version, ev.Seq)

	s.Require().NoError(s.Store.DeletePlayer(s.Ctx, "p1"))
	ev = testutil.NextEvent(s.T(), sub)
	s.Equal(model.ChangeDelete, ev.Kind)
	s.Greater(ev.Seq, updated.Version)
	id, err := ev.RecordID()
	s.Require().NoError(err)
	s.Equal("p1", id)
}

func (s *Suite) TestMatchWritesPublishEvents() {
	sub, err := s.Store.Subscribe(s.Ctx, model.CollectionMatches)
	s.Require().NoError(err)
	defer sub.Unsubscribe()

	s.insertMatch("m1", "p1", "p2", time.Now().UTC())
	ev := testutil.NextEvent(s.T(), sub)
	s.Equal(model.ChangeInsert, ev.Kind)
	s.Equal(model.CollectionMatches, ev.Collection)

	_, err = s.Store.UpdateMatch(s.Ctx, "m1", model.MatchPatch{Status: model.MatchStatusLive, Player1Score: 1})
	s.Require().NoError(err)
	ev = testutil.NextEvent(s.T(), sub)
	s.Equal(model.ChangeUpdate, ev.Kind)
	m, err := ev.DecodeMatch()
	s.Require().NoError(err)
	s.Equal(model.MatchStatusLive, m.Status)
	s.Equal(1, m.Player1Score)
}

func (s *Suite) TestSubscriptionFiltersByCollection() {
	sub, err := s.Store.Subscribe(s.Ctx, model.CollectionMatches)
	s.Require().NoError(err)
	defer sub.Unsubscribe()

	s.insertPlayer("p1", "Ana", "101", 0, 0)
	s.insertMatch("m1", "p1", "p2", time.Now().UTC())

	ev := testutil.NextEvent(s.T(), sub)
	s.Equal(model.CollectionMatches, ev.Collection)
}

func (s *Suite) TestFailedWritesPublishNothing() {
	sub, err := s.Store.Subscribe(s.Ctx, model.CollectionPlayers)
	s.Require().NoError(err)
	defer sub.Unsubscribe()

	s.Error(s.Store.DeletePlayer(s.Ctx, "ghost"))
	_, err = s.Store.ApplyPlayerStats(s.Ctx, "ghost", model.StatsDelta{Wins: 1})
	s.Error(err)

	testutil.NoEvent(s.T(), sub, 100*time.Millisecond)
}
