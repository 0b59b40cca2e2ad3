package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/pingpong/internal/api"
	"github.com/mcoot/pingpong/internal/api/apierr"
	"github.com/mcoot/pingpong/internal/api/response"
	"github.com/mcoot/pingpong/internal/factory"
	"github.com/mcoot/pingpong/internal/model"
	"github.com/mcoot/pingpong/internal/testutil"
)

// testServer wires the API over an in-memory application
type testServer struct {
	handler http.Handler
	app     *factory.TestApp
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	app := factory.NewTestApp()
	require.NoError(t, app.Start(context.Background()))
	t.Cleanup(func() { _ = app.Close() })

	router := api.NewRouter(api.RouterConfig{
		Logger:      testutil.NopLogger(),
		Store:       app.Store,
		AuthService: app.AuthService,
		Tournament:  app.Tournament,
		Cache:       app.Cache,
	})

	return &testServer{handler: router, app: app}
}

func (ts *testServer) request(method, path string, body any, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	switch b := body.(type) {
	case nil:
		reqBody = bytes.NewBuffer(nil)
	case string:
		reqBody = bytes.NewBufferString(b)
	default:
		data, _ := json.Marshal(b)
		reqBody = bytes.NewBuffer(data)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	return decode[apierr.ErrorResponse](t, rr).Error.Code
}

// adminToken creates an allow-listed account and logs in through the API
func (ts *testServer) adminToken(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	account, err := ts.app.AuthService.CreateAccount(ctx, "ref@example.com", "correct-horse")
	require.NoError(t, err)
	require.NoError(t, ts.app.Store.AddAdmin(ctx, account.ID))

	rr := ts.request(http.MethodPost, "/api/v1/admin/login",
		map[string]string{"email": "ref@example.com", "password": "correct-horse"}, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return decode[response.LoginResponse](t, rr).Token
}

func (ts *testServer) register(t *testing.T, name, room string) response.Player {
	t.Helper()
	rr := ts.request(http.MethodPost, "/api/v1/players", map[string]string{"name": name, "room": room}, "")
	require.Contains(t, []int{http.StatusCreated, http.StatusOK}, rr.Code, rr.Body.String())
	player := decode[response.RegisterResponse](t, rr).Player
	require.Eventually(t, func() bool {
		_, ok := ts.app.Cache.Player(model.PlayerID(player.ID))
		return ok
	}, testutil.EventTimeout, 5*time.Millisecond)
	return player
}

func (ts *testServer) createMatch(t *testing.T, token, p1, p2 string) response.Match {
	t.Helper()
	rr := ts.request(http.MethodPost, "/api/v1/matches",
		map[string]string{"player1_id": p1, "player2_id": p2}, token)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[response.Match](t, rr)
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	health := decode[response.Health](t, rr)
	assert.Equal(t, "ok", health.Status)
	assert.True(t, health.Loaded)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestRegisterPlayer(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodPost, "/api/v1/players", map[string]string{"name": "Ana", "room": "A-204"}, "")
	require.Equal(t, http.StatusCreated, rr.Code)
	first := decode[response.RegisterResponse](t, rr)
	assert.True(t, first.Created)
	assert.Equal(t, "Ana", first.Player.Name)
	assert.Equal(t, "A-204", first.Player.Room)
	assert.Zero(t, first.Player.Wins)

	// Same name and room in another case signs in instead
	rr = ts.request(http.MethodPost, "/api/v1/players", map[string]string{"name": "ANA", "room": "a-204"}, "")
	require.Equal(t, http.StatusOK, rr.Code)
	second := decode[response.RegisterResponse](t, rr)
	assert.False(t, second.Created)
	assert.Equal(t, first.Player.ID, second.Player.ID)

	require.Eventually(t, func() bool {
		players := decode[[]response.Player](t, ts.request(http.MethodGet, "/api/v1/players", nil, ""))
		return len(players) == 1
	}, testutil.EventTimeout, 5*time.Millisecond)
}

func TestRegisterPlayer_Validation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body any
	}{
		{"missing name", map[string]string{"room": "101"}},
		{"blank room", map[string]string{"name": "Ana", "room": "  "}},
		{"malformed body", "{not json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.request(http.MethodPost, "/api/v1/players", tt.body, "")
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, apierr.CodeInvalidRequest, errorCode(t, rr))
		})
	}
}

func TestAdminLogin(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	_, err := ts.app.AuthService.CreateAccount(ctx, "fan@example.com", "correct-horse")
	require.NoError(t, err)

	// Not on the allow-list
	rr := ts.request(http.MethodPost, "/api/v1/admin/login",
		map[string]string{"email": "fan@example.com", "password": "correct-horse"}, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	// Wrong password
	rr = ts.request(http.MethodPost, "/api/v1/admin/login",
		map[string]string{"email": "fan@example.com", "password": "nope-nope"}, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, apierr.CodeInvalidCredentials, errorCode(t, rr))

	// Missing fields
	rr = ts.request(http.MethodPost, "/api/v1/admin/login", map[string]string{"email": "fan@example.com"}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	token := ts.adminToken(t)
	assert.NotEmpty(t, token)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	ana := ts.register(t, "Ana", "A-204")
	ben := ts.register(t, "Ben", "B-101")
	body := map[string]string{"player1_id": ana.ID, "player2_id": ben.ID}

	// No token
	rr := ts.request(http.MethodPost, "/api/v1/matches", body, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// Garbage token
	rr = ts.request(http.MethodPost, "/api/v1/matches", body, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// Valid session, not allow-listed
	_, err := ts.app.AuthService.CreateAccount(ctx, "fan@example.com", "correct-horse")
	require.NoError(t, err)
	session, err := ts.app.AuthService.SignInWithPassword(ctx, "fan@example.com", "correct-horse")
	require.NoError(t, err)
	rr = ts.request(http.MethodPost, "/api/v1/matches", body, session.Token)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	// Revoked after login
	token := ts.adminToken(t)
	ts.createMatch(t, token, ana.ID, ben.ID)
	account, err := ts.app.Store.GetAccountByEmail(ctx, "ref@example.com")
	require.NoError(t, err)
	require.NoError(t, ts.app.Store.RemoveAdmin(ctx, account.ID))
	rr = ts.request(http.MethodPost, "/api/v1/matches", body, token)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestCreateMatch_Validation(t *testing.T) {
	ts := newTestServer(t)
	token := ts.adminToken(t)
	ana := ts.register(t, "Ana", "A-204")

	rr := ts.request(http.MethodPost, "/api/v1/matches",
		map[string]string{"player1_id": ana.ID, "player2_id": ana.ID}, token)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.request(http.MethodPost, "/api/v1/matches",
		map[string]string{"player1_id": ana.ID}, token)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.request(http.MethodPost, "/api/v1/matches",
		map[string]string{"player1_id": ana.ID, "player2_id": "ghost"}, token)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, apierr.CodePlayerNotFound, errorCode(t, rr))
}

func TestMatchLifecycle(t *testing.T) {
	ts := newTestServer(t)
	token := ts.adminToken(t)
	ana := ts.register(t, "Ana", "A-204")
	ben := ts.register(t, "Ben", "B-101")

	match := ts.createMatch(t, token, ana.ID, ben.ID)
	assert.Equal(t, string(model.MatchStatusUpcoming), match.Status)
	assert.Equal(t, "Ana", match.Player1.Name)
	assert.Nil(t, match.WinnerID)

	require.Eventually(t, func() bool {
		upcoming := decode[[]response.Match](t, ts.request(http.MethodGet, "/api/v1/matches?status=upcoming", nil, ""))
		return len(upcoming) == 1
	}, testutil.EventTimeout, 5*time.Millisecond)

	// Partial score, sent as form strings
	rr := ts.request(http.MethodPut, "/api/v1/matches/"+match.ID+"/score",
		`{"player1_score":"5","player2_score":"3abc"}`, token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	partial := decode[response.ScoreResponse](t, rr)
	assert.False(t, partial.Complete)
	assert.Equal(t, string(model.MatchStatusLive), partial.Match.Status)
	assert.Equal(t, 3, partial.Match.Player2.Score)

	// Finishing score
	rr = ts.request(http.MethodPut, "/api/v1/matches/"+match.ID+"/score",
		map[string]int{"player1_score": 11, "player2_score": 6}, token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	final := decode[response.ScoreResponse](t, rr)
	assert.True(t, final.Complete)
	assert.Empty(t, final.StatsWarning)
	require.NotNil(t, final.Match.WinnerID)
	assert.Equal(t, ana.ID, *final.Match.WinnerID)

	require.Eventually(t, func() bool {
		board := decode[[]response.Player](t, ts.request(http.MethodGet, "/api/v1/leaderboard", nil, ""))
		return len(board) == 2 && board[0].ID == ana.ID && board[0].Wins == 1 && board[1].Losses == 1
	}, testutil.EventTimeout, 5*time.Millisecond)

	// Finished matches cannot be rescored
	rr = ts.request(http.MethodPut, "/api/v1/matches/"+match.ID+"/score",
		map[string]int{"player1_score": 12, "player2_score": 10}, token)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, apierr.CodeMatchFinished, errorCode(t, rr))

	// Deletion needs confirmation
	rr = ts.request(http.MethodDelete, "/api/v1/matches/"+match.ID, nil, token)
	assert.Equal(t, http.StatusPreconditionRequired, rr.Code)
	rr = ts.request(http.MethodDelete, "/api/v1/matches/"+match.ID+"?confirm=true", nil, token)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = ts.request(http.MethodDelete, "/api/v1/matches/"+match.ID+"?confirm=true", nil, token)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUpdateScore_StatsWarning(t *testing.T) {
	ts := newTestServer(t)
	token := ts.adminToken(t)
	ana := ts.register(t, "Ana", "A-204")
	ben := ts.register(t, "Ben", "B-101")
	match := ts.createMatch(t, token, ana.ID, ben.ID)

	// Ben is removed before the result is entered
	rr := ts.request(http.MethodDelete, "/api/v1/players/"+ben.ID+"?confirm=true", nil, token)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.request(http.MethodPut, "/api/v1/matches/"+match.ID+"/score",
		map[string]int{"player1_score": 11, "player2_score": 2}, token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	result := decode[response.ScoreResponse](t, rr)
	assert.True(t, result.Complete)
	assert.Contains(t, result.StatsWarning, ben.ID)

	require.Eventually(t, func() bool {
		finished := decode[[]response.Match](t, ts.request(http.MethodGet, "/api/v1/matches?status=finished", nil, ""))
		return len(finished) == 1 && finished[0].Player2.Name == "Unknown"
	}, testutil.EventTimeout, 5*time.Millisecond)
}

func TestUpdateScore_Invalid(t *testing.T) {
	ts := newTestServer(t)
	token := ts.adminToken(t)
	ana := ts.register(t, "Ana", "A-204")
	ben := ts.register(t, "Ben", "B-101")
	match := ts.createMatch(t, token, ana.ID, ben.ID)

	rr := ts.request(http.MethodPut, "/api/v1/matches/"+match.ID+"/score",
		map[string]int{"player1_score": -1, "player2_score": 2}, token)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apierr.CodeInvalidScore, errorCode(t, rr))

	rr = ts.request(http.MethodPut, "/api/v1/matches/"+match.ID+"/score",
		`{"player1_score":1.5,"player2_score":2}`, token)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.request(http.MethodPut, "/api/v1/matches/missing/score",
		map[string]int{"player1_score": 1, "player2_score": 2}, token)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListMatches_InvalidStatus(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/matches?status=paused", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServer_StartAndShutdown(t *testing.T) {
	ts := newTestServer(t)
	cfg := api.DefaultServerConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	srv := api.NewServer(ts.handler, cfg, testutil.NopLogger())
	require.NoError(t, srv.Listen())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, strings.HasSuffix(srv.Addr(), ":0"))

	require.NoError(t, srv.Shutdown(context.Background()))
	require.NoError(t, <-errCh)
}
