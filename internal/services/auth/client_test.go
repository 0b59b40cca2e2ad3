package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/pingpong/internal/dependencies/mocks"
	"github.com/mcoot/pingpong/internal/localstore"
	"github.com/mcoot/pingpong/internal/storage/memory"
	"github.com/mcoot/pingpong/internal/testutil"
)

type ClientSuite struct {
	suite.Suite
	clock   *mocks.MockClock
	service *Service
	local   *localstore.Memory
	client  *Client
	ctx     context.Context

	mu      sync.Mutex
	changes []*Session
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.service = New(memory.New(testutil.NopLogger()), s.clock, mocks.NewMockIDs(),
		Config{Secret: "test-secret", SessionDuration: time.Hour})
	s.local = localstore.NewMemory()
	s.client = NewClient(s.service, s.local, testutil.NopLogger())
	s.changes = nil

	_, err := s.service.CreateAccount(s.ctx, "ref@example.com", "correct-horse")
	s.Require().NoError(err)
}

func (s *ClientSuite) record() func() {
	return s.client.OnAuthStateChange(func(session *Session) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.changes = append(s.changes, session)
	})
}

func (s *ClientSuite) recorded() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Session(nil), s.changes...)
}

func (s *ClientSuite) TestNoSessionInitially() {
	session, err := s.client.GetSession(s.ctx)
	s.Require().NoError(err)
	s.Nil(session)
}

func (s *ClientSuite) TestSignInPersistsAndNotifies() {
	defer s.record()()

	session, err := s.client.SignInWithPassword(s.ctx, "ref@example.com", "correct-horse")
	s.Require().NoError(err)

	token, ok, err := s.local.Get(s.ctx, SessionKey)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(session.Token, token)

	changes := s.recorded()
	s.Require().Len(changes, 1)
	s.Equal(session.Principal, changes[0].Principal)
}

func (s *ClientSuite) TestSessionRestoredByNewClient() {
	session, err := s.client.SignInWithPassword(s.ctx, "ref@example.com", "correct-horse")
	s.Require().NoError(err)

	restored := NewClient(s.service, s.local, testutil.NopLogger())
	got, err := restored.GetSession(s.ctx)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(session.Principal, got.Principal)
}

func (s *ClientSuite) TestInvalidStoredTokenIsDiscarded() {
	s.Require().NoError(s.local.Set(s.ctx, SessionKey, "garbage"))

	got, err := s.client.GetSession(s.ctx)
	s.Require().NoError(err)
	s.Nil(got)

	_, ok, err := s.local.Get(s.ctx, SessionKey)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *ClientSuite) TestExpiryEndsSessionAndNotifies() {
	_, err := s.client.SignInWithPassword(s.ctx, "ref@example.com", "correct-horse")
	s.Require().NoError(err)
	defer s.record()()

	s.clock.Advance(2 * time.Hour)

	got, err := s.client.GetSession(s.ctx)
	s.Require().NoError(err)
	s.Nil(got)

	changes := s.recorded()
	s.Require().Len(changes, 1)
	s.Nil(changes[0])
}

func (s *ClientSuite) TestSignOut() {
	_, err := s.client.SignInWithPassword(s.ctx, "ref@example.com", "correct-horse")
	s.Require().NoError(err)
	defer s.record()()

	s.Require().NoError(s.client.SignOut(s.ctx))

	got, err := s.client.GetSession(s.ctx)
	s.Require().NoError(err)
	s.Nil(got)
	_, ok, _ := s.local.Get(s.ctx, SessionKey)
	s.False(ok)
	s.Len(s.recorded(), 1)
}

func (s *ClientSuite) TestFailedSignInKeepsState() {
	defer s.record()()

	_, err := s.client.SignInWithPassword(s.ctx, "ref@example.com", "wrong-password")
	s.ErrorIs(err, ErrInvalidCredentials)
	s.Empty(s.recorded())
}

func (s *ClientSuite) TestLocalWriteFailureFailsSignIn() {
	s.local.FailWrites = errors.New("disk full")

	_, err := s.client.SignInWithPassword(s.ctx, "ref@example.com", "correct-horse")
	s.Error(err)

	s.local.FailWrites = nil
	got, err := s.client.GetSession(s.ctx)
	s.Require().NoError(err)
	s.Nil(got)
}

func (s *ClientSuite) TestUnsubscribeStopsNotifications() {
	unsubscribe := s.record()
	unsubscribe()
	unsubscribe()

	_, err := s.client.SignInWithPassword(s.ctx, "ref@example.com", "correct-horse")
	s.Require().NoError(err)
	s.Empty(s.recorded())
}
