package factory

import (
	"time"

	"github.com/mcoot/pingpong/internal/config"
	"github.com/mcoot/pingpong/internal/dependencies/mocks"
	"github.com/mcoot/pingpong/internal/localstore"
	"github.com/mcoot/pingpong/internal/storage/memory"
	"github.com/mcoot/pingpong/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Memory is the backing store
	Memory *memory.Storage
	// LocalMemory is the client-side store
	LocalMemory *localstore.Memory

	// Mocks for test control
	MockClock *mocks.MockClock
	MockIDs   *mocks.MockIDs
}

// NewTestApp creates an App over in-memory stores with mocked dependencies
func NewTestApp() *TestApp {
	store := memory.New(testutil.NopLogger())
	local := localstore.NewMemory()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockClock.Step = time.Second
	mockIDs := mocks.NewMockIDs()

	env := config.Default()
	env.JWTSecret = "test-secret"

	app := newWithDependencies(store, local, mockClock, mockIDs, env, testutil.NopLogger())

	return &TestApp{
		App:         app,
		Memory:      store,
		LocalMemory: local,
		MockClock:   mockClock,
		MockIDs:     mockIDs,
	}
}
