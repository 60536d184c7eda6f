package exportlog

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntry(t *testing.T) {
	e := NewEntry("abc", ViaDownload, []byte("png"), 500, 400)

	assert.Equal(t, "abc", e.SessionID)
	assert.Equal(t, ViaDownload, e.Via)
	assert.Equal(t, fmt.Sprintf("%x", sha256.Sum256([]byte("png"))), e.SHA256)
	assert.Equal(t, 3, e.Bytes)
	assert.Equal(t, 500, e.Width)
	assert.Equal(t, 400, e.Height)
	assert.False(t, e.CreatedAt.IsZero())
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	require.NoError(t, r.Record(context.Background(), Entry{}))
	n, err := r.Count(context.Background(), "x")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, r.Close())
}

// TestStore needs a disposable database, e.g.
// EXPORTLOG_TEST_DSN=postgres://postgres@localhost:5432/postgres?sslmode=disable
func TestStore(t *testing.T) {
	dsn := os.Getenv("EXPORTLOG_TEST_DSN")
	if dsn == "" {
		t.Skip("EXPORTLOG_TEST_DSN not set")
	}

	ctx := context.Background()
	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	id := uuid.New().String()
	require.NoError(t, s.Record(ctx, NewEntry(id, ViaDownload, []byte("a"), 500, 500)))
	require.NoError(t, s.Record(ctx, NewEntry(id, ViaEmail, []byte("b"), 500, 500)))

	n, err := s.Count(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
