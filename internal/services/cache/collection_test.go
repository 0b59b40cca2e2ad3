package cache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/pingpong/internal/model"
)

func deletePlayerEvent(t *testing.T, id string, seq int64) model.ChangeEvent {
	t.Helper()
	ev, err := model.NewPlayerEvent(model.ChangeDelete, seq, &model.Player{ID: model.PlayerID(id), Name: id})
	require.NoError(t, err)
	return ev
}

func TestCollection_TombstonesAreBounded(t *testing.T) {
	c := newPlayers()
	total := maxTombstones + 10
	for i := 1; i <= total; i++ {
		_, err := c.apply(deletePlayerEvent(t, fmt.Sprintf("p%d", i), int64(i)))
		require.NoError(t, err)
	}

	assert.Len(t, c.tombstones, maxTombstones)
	assert.NotContains(t, c.tombstones, "p10")
	assert.Contains(t, c.tombstones, "p11")
	assert.Contains(t, c.tombstones, fmt.Sprintf("p%d", total))
}

func TestCollection_TombstonesKeptDuringLoad(t *testing.T) {
	c := newPlayers()
	c.beginLoad()
	total := maxTombstones + 10
	for i := 1; i <= total; i++ {
		_, err := c.apply(deletePlayerEvent(t, fmt.Sprintf("p%d", i), int64(i)))
		require.NoError(t, err)
	}
	assert.Len(t, c.tombstones, total)

	// A failed load keeps tombstones, now capped
	c.endLoad(nil, false)
	assert.Len(t, c.tombstones, maxTombstones)
	assert.Contains(t, c.tombstones, "p11")

	// A successful load clears them
	c.beginLoad()
	c.endLoad([]model.Player{}, true)
	assert.Empty(t, c.tombstones)
}
