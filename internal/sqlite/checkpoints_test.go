package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/volunteerhq/galaxysync/internal/repository"
)

func TestCheckpointRepository_GetNotFound(t *testing.T) {
	db := NewTestDB(t)
	repo := NewCheckpointRepository(db)

	_, err := repo.Get(context.Background(), "users")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCheckpointRepository_MarkAttempt(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewCheckpointRepository(db)

	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkAttempt(ctx, "users", at))

	cp, err := repo.Get(ctx, "users")
	require.NoError(t, err)
	require.Equal(t, "users", cp.Resource)
	require.NotNil(t, cp.LastSync)
	require.True(t, cp.LastSync.Equal(at))
	require.Nil(t, cp.LastSuccess)
}

func TestCheckpointRepository_MarkSuccessSetsBothTimestamps(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewCheckpointRepository(db)

	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkSuccess(ctx, "hours", at))

	cp, err := repo.Get(ctx, "hours")
	require.NoError(t, err)
	require.NotNil(t, cp.LastSync)
	require.NotNil(t, cp.LastSuccess)
	require.True(t, cp.LastSuccess.Equal(at))
	require.True(t, cp.LastSync.Equal(at))
}

func TestCheckpointRepository_FailedAttemptAdvancesOnlyLastSync(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewCheckpointRepository(db)

	first := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	later := first.Add(time.Hour)

	require.NoError(t, repo.MarkSuccess(ctx, "needs", first))
	require.NoError(t, repo.MarkAttempt(ctx, "needs", later))

	cp, err := repo.Get(ctx, "needs")
	require.NoError(t, err)
	require.True(t, cp.LastSync.Equal(later))
	require.True(t, cp.LastSuccess.Equal(first))
	require.False(t, cp.LastSuccess.After(*cp.LastSync))
}

func TestCheckpointRepository_SuccessPullsLastSyncForward(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewCheckpointRepository(db)

	first := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	later := first.Add(time.Hour)

	require.NoError(t, repo.MarkAttempt(ctx, "events", first))
	require.NoError(t, repo.MarkSuccess(ctx, "events", later))

	cp, err := repo.Get(ctx, "events")
	require.NoError(t, err)
	require.True(t, cp.LastSync.Equal(later))
	require.True(t, cp.LastSuccess.Equal(later))
}

func TestCheckpointRepository_List(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewCheckpointRepository(db)

	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkAttempt(ctx, "users", at))
	require.NoError(t, repo.MarkSuccess(ctx, "agencies", at))

	cps, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, cps, 2)
	require.Equal(t, "agencies", cps[0].Resource)
	require.Equal(t, "users", cps[1].Resource)
}
