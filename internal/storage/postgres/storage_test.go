package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/pingpong/internal/model"
	"github.com/mcoot/pingpong/internal/storage"
	"github.com/mcoot/pingpong/internal/storage/storagetest"
	"github.com/mcoot/pingpong/internal/testutil"
)

// testDatabaseEnv names a disposable database for the integration suite.
// Its tables are truncated before every test.
const testDatabaseEnv = "PINGPONG_TEST_DATABASE_URL"

func TestDecodeNotification(t *testing.T) {
	ev, err := decodeNotification(`{"kind":"update","collection":"matches","seq":9,"new":{"id":"m1"}}`)
	require.NoError(t, err)
	assert.Equal(t, model.ChangeUpdate, ev.Kind)
	assert.Equal(t, model.CollectionMatches, ev.Collection)
	assert.Equal(t, int64(9), ev.Seq)

	_, err = decodeNotification(`not json`)
	assert.ErrorIs(t, err, model.ErrMalformedEvent)

	_, err = decodeNotification(`{"seq":1}`)
	assert.ErrorIs(t, err, model.ErrMalformedEvent)
}

func TestNullableWinner(t *testing.T) {
	assert.False(t, nullableWinner(nil).Valid)

	id := model.PlayerID("p1")
	w := nullableWinner(&id)
	assert.True(t, w.Valid)
	assert.Equal(t, "p1", w.String)
}

func TestNotFound(t *testing.T) {
	assert.ErrorIs(t, notFound(sql.ErrNoRows, model.ErrMatchNotFound), model.ErrMatchNotFound)
	assert.ErrorIs(t, notFound(sql.ErrConnDone, model.ErrMatchNotFound), sql.ErrConnDone)
}

type StorageSuite struct {
	storagetest.Suite
	url string
}

func TestStorageSuite(t *testing.T) {
	url := os.Getenv(testDatabaseEnv)
	if url == "" {
		t.Skipf("%s not set", testDatabaseEnv)
	}
	suite.Run(t, &StorageSuite{url: url})
}

func (s *StorageSuite) SetupTest() {
	s.NewStore = func() storage.Store {
		cfg := DefaultConfig()
		cfg.URL = s.url
		store, err := New(cfg, testutil.NopLogger())
		s.Require().NoError(err)

		_, err = store.db.ExecContext(context.Background(), `TRUNCATE players, matches, admins, accounts`)
		s.Require().NoError(err)
		return store
	}
	s.Suite.SetupTest()
}
