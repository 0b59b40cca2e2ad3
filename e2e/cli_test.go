package e2e_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/pingpong/internal/api"
	"github.com/mcoot/pingpong/internal/api/response"
	"github.com/mcoot/pingpong/internal/config"
	"github.com/mcoot/pingpong/internal/factory"
	"github.com/mcoot/pingpong/internal/testutil"
	"github.com/mcoot/pingpong/internal/web"
)

const jwtSecret = "e2e-secret"

// cliRunner runs the CLI binary as one client with its own local database
type cliRunner struct {
	binaryPath string
	serverURL  string
	env        []string
}

// buildCLI compiles the CLI once per test
func buildCLI(t *testing.T) string {
	t.Helper()

	projectRoot := findProjectRoot(t)
	binaryPath := filepath.Join(t.TempDir(), "pingpong")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/pingpong")
	cmd.Dir = projectRoot
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "failed to build CLI: %s", string(output))
	return binaryPath
}

func newCLIRunner(t *testing.T, binaryPath, redisURL, serverURL string) *cliRunner {
	t.Helper()
	return &cliRunner{
		binaryPath: binaryPath,
		serverURL:  serverURL,
		env: append(os.Environ(),
			"STORAGE_TYPE=redis",
			"REDIS_URL="+redisURL,
			"JWT_SECRET="+jwtSecret,
			"LOCAL_DB_PATH="+filepath.Join(t.TempDir(), "local.db"),
		),
	}
}

func (r *cliRunner) run(args ...string) (string, string, error) {
	fullArgs := append([]string{"--server", r.serverURL, "--output", "json"}, args...)

	cmd := exec.Command(r.binaryPath, fullArgs...)
	cmd.Env = r.env
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func runJSON[T any](t *testing.T, r *cliRunner, args ...string) T {
	t.Helper()
	out, stderr, err := r.run(args...)
	require.NoError(t, err, "pingpong %v: %s", args, stderr)

	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func findProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err)

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// startTestServer runs the scoreboard server against the shared redis
func startTestServer(t *testing.T, redisURL string) string {
	t.Helper()

	env := config.Default()
	env.StorageType = config.StorageRedis
	env.RedisURL = redisURL
	env.JWTSecret = jwtSecret

	logger := testutil.NopLogger()
	app, err := factory.New(factory.Config{Env: env, Logger: logger})
	require.NoError(t, err)
	require.NoError(t, app.Start(context.Background()))

	mux := http.NewServeMux()
	mux.Handle("/api/", api.NewRouter(api.RouterConfig{
		Logger:      logger,
		Store:       app.Store,
		AuthService: app.AuthService,
		Tournament:  app.Tournament,
		Cache:       app.Cache,
	}))
	mux.Handle("/", web.NewRouter(web.RouterConfig{
		Logger: logger,
		Cache:  app.Cache,
		Hub:    app.Hub,
	}))

	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = "127.0.0.1"
	serverConfig.Port = 0
	server := api.NewServer(mux, serverConfig, logger)
	require.NoError(t, server.Listen())
	go func() { _ = server.Start() }()

	t.Cleanup(func() {
		app.Hub.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
		_ = app.Close()
	})

	serverURL := "http://" + server.Addr()
	waitForServer(t, serverURL+"/api/v1/health")
	return serverURL
}

func waitForServer(t *testing.T, url string) {
	t.Helper()

	client := &http.Client{Timeout: 100 * time.Millisecond}
	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Fatal("server did not become ready in time")
}

func getJSON[T any](t *testing.T, url string) T {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type whoamiResponse struct {
	Kind   string              `json:"kind"`
	Player *response.Player    `json:"player"`
	Admin  *response.Principal `json:"admin"`
}

func TestCLI_TournamentAcrossProcesses(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the CLI binary")
	}

	mini := miniredis.RunT(t)
	redisURL := "redis://" + mini.Addr()
	serverURL := startTestServer(t, redisURL)
	binary := buildCLI(t)

	referee := newCLIRunner(t, binary, redisURL, serverURL)
	ana := newCLIRunner(t, binary, redisURL, serverURL)
	ben := newCLIRunner(t, binary, redisURL, serverURL)

	// Bootstrap an admin
	principal := runJSON[response.Principal](t, referee, "admin", "add", "--email", "ref@example.com", "--password", "correct-horse")
	assert.Equal(t, "ref@example.com", principal.Email)

	// Players join from their own machines
	anaJoin := runJSON[response.RegisterResponse](t, ana, "join", "--name", "Ana", "--room", "A-204")
	assert.True(t, anaJoin.Created)
	benJoin := runJSON[response.RegisterResponse](t, ben, "join", "--name", "Ben", "--room", "B-101")
	assert.True(t, benJoin.Created)

	again := runJSON[response.RegisterResponse](t, ana, "join", "--name", "ANA", "--room", "a-204")
	assert.False(t, again.Created)
	assert.Equal(t, anaJoin.Player.ID, again.Player.ID)

	// The session survives between invocations
	who := runJSON[whoamiResponse](t, ana, "whoami")
	assert.Equal(t, "player", who.Kind)
	require.NotNil(t, who.Player)
	assert.Equal(t, "Ana", who.Player.Name)

	// Players cannot run matches
	_, stderr, err := ana.run("match", "create", anaJoin.Player.ID, benJoin.Player.ID)
	require.Error(t, err)
	assert.Contains(t, stderr, "admin privileges required")

	// The referee signs in once and scores the match over several invocations
	runJSON[response.Principal](t, referee, "admin", "login", "--email", "ref@example.com", "--password", "correct-horse")
	who = runJSON[whoamiResponse](t, referee, "whoami")
	assert.Equal(t, "admin", who.Kind)

	match := runJSON[response.Match](t, referee, "match", "create", anaJoin.Player.ID, benJoin.Player.ID)
	assert.Equal(t, "upcoming", match.Status)

	live := runJSON[response.ScoreResponse](t, referee, "match", "score", match.ID, "5", "3")
	assert.Equal(t, "live", live.Match.Status)
	assert.False(t, live.Complete)

	final := runJSON[response.ScoreResponse](t, referee, "match", "score", match.ID, "11", "6")
	assert.True(t, final.Complete)
	assert.Equal(t, "finished", final.Match.Status)
	require.NotNil(t, final.Match.WinnerID)
	assert.Equal(t, anaJoin.Player.ID, *final.Match.WinnerID)
	assert.Empty(t, final.StatsWarning)

	// The server saw it all through the change feed
	require.Eventually(t, func() bool {
		board := getJSON[[]response.Player](t, serverURL+"/api/v1/leaderboard")
		return len(board) == 2 && board[0].Name == "Ana" && board[0].Wins == 1 && board[1].Losses == 1
	}, 5*time.Second, 20*time.Millisecond)

	// Deleting needs confirmation
	_, _, err = referee.run("player", "delete", benJoin.Player.ID)
	require.Error(t, err)
	_, stderr, err = referee.run("player", "delete", benJoin.Player.ID, "--yes")
	require.NoError(t, err, stderr)

	require.Eventually(t, func() bool {
		players := getJSON[[]response.Player](t, serverURL+"/api/v1/players")
		return len(players) == 1
	}, 5*time.Second, 20*time.Millisecond)

	matches := runJSON[[]response.Match](t, ana, "matches")
	require.Len(t, matches, 1)
	assert.Equal(t, "Unknown", matches[0].Player2.Name)

	health := runJSON[response.Health](t, ana, "health")
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Stats.Players)

	// Logging out clears the stored session
	_, stderr, err = referee.run("logout")
	require.NoError(t, err, stderr)
	who = runJSON[whoamiResponse](t, referee, "whoami")
	assert.Equal(t, "none", who.Kind)
}
