package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"hivemind/internal/platform/cas"
	"hivemind/internal/platform/database"
)

// Runs against a real server only; set HIVEMIND_TEST_DSN to enable.
func newTestRepo(t *testing.T) *ContentRepo {
	t.Helper()
	dsn := os.Getenv("HIVEMIND_TEST_DSN")
	if dsn == "" {
		t.Skip("HIVEMIND_TEST_DSN not set")
	}

	ctx := context.Background()
	db, err := database.NewPostgres(ctx, dsn)
	require.NoError(t, err)

	repo := NewContentRepo(db)
	require.NoError(t, repo.Migrate(ctx))
	require.NoError(t, repo.Migrate(ctx), "migrations must be idempotent")
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestContentRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.Put(ctx, []byte("opinion"))
	require.NoError(t, err)
	again, err := repo.Put(ctx, []byte("opinion"))
	require.NoError(t, err)
	require.True(t, id.Equals(again))

	data, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []byte("opinion"), data)

	missing, err := cas.Sum([]byte("never stored"))
	require.NoError(t, err)
	_, err = repo.Get(ctx, missing)
	require.True(t, errors.Is(err, cas.ErrContentNotFound))
}

func TestRefUpsert(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first, err := repo.Put(ctx, []byte("state-1"))
	require.NoError(t, err)
	second, err := repo.Put(ctx, []byte("state-2"))
	require.NoError(t, err)

	name := "test:" + first.String()
	require.NoError(t, repo.SetRef(ctx, name, first))
	require.NoError(t, repo.SetRef(ctx, name, second))

	got, err := repo.Ref(ctx, name)
	require.NoError(t, err)
	require.True(t, got.Equals(second))

	_, err = repo.Ref(ctx, "test:absent")
	require.True(t, errors.Is(err, cas.ErrRefNotFound))
}
