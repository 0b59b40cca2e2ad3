package mocks

import (
	"fmt"
	"sync"

	"github.com/mcoot/pingpong/internal/dependencies/ids"
)

// MockIDs is a deterministic Generator for testing
type MockIDs struct {
	mu sync.Mutex

	// Prefix is prepended to the counter, e.g. "id-1"
	Prefix string
	// Queued ids are handed out first, in order
	Queued []string
	next   int
}

// Ensure MockIDs implements Generator
var _ ids.Generator = (*MockIDs)(nil)

// NewMockIDs creates a MockIDs producing "id-1", "id-2", ...
func NewMockIDs() *MockIDs {
	return &MockIDs{Prefix: "id-"}
}

// NewID returns the next queued id, or the next counter value
func (g *MockIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.Queued) > 0 {
		id := g.Queued[0]
		g.Queued = g.Queued[1:]
		return id
	}
	g.next++
	return fmt.Sprintf("%s%d", g.Prefix, g.next)
}

// Queue adds ids to be returned before counter values
func (g *MockIDs) Queue(values ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Queued = append(g.Queued, values...)
}
