package sqlite

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/skycastle-service/internal/domain"
	"github.com/couchcryptid/skycastle-service/internal/storetest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.HistoryStore {
		return newTestStore(t)
	})
}

func TestStore_InMemory(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, ":memory:", discardLogger())
	require.NoError(t, err)
	defer s.Close()

	d, _ := domain.ParseDate("2024-11-02")
	require.NoError(t, s.UpsertObserved(ctx, d, domain.ObservedFields{Note: "x"}))
	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_ReopenKeepsRows(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")
	d, _ := domain.ParseDate("2024-11-02")

	s, err := Open(ctx, path, discardLogger())
	require.NoError(t, err)
	require.NoError(t, s.UpsertPredicted(ctx, d, storetest.Predicted(0.8, 0.4, 0.32, domain.LabelFogOnly)))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, discardLogger())
	require.NoError(t, err)
	defer s.Close()
	rec, ok, err := s.Get(ctx, d)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.LabelFogOnly, rec.Event)
	require.NoError(t, s.CheckReadiness(ctx))
}
