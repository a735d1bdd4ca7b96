package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/playloop/arena/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotAt(id string, takenAt time.Time, status models.TournamentStatus) *models.TournamentSnapshot {
	return &models.TournamentSnapshot{
		TournamentID: id,
		Status:       status,
		TakenAt:      takenAt,
		Tournament: &models.Tournament{
			ID:           id,
			Status:       status,
			GameSequence: []string{"jetpack"},
			MaxRounds:    1,
		},
	}
}

func TestMemorySnapshotRepository_PersistAndLoad(t *testing.T) {
	repo := NewMemorySnapshotRepository()
	ctx := context.Background()

	snap := snapshotAt("t1", time.Now(), models.StatusWaiting)
	require.NoError(t, repo.Persist(ctx, snap))

	got, err := repo.LoadOnStartup(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.TournamentID)
	assert.Equal(t, models.StatusWaiting, got.Status)
	assert.Equal(t, []string{"jetpack"}, got.Tournament.GameSequence)
}

func TestMemorySnapshotRepository_LoadMissing(t *testing.T) {
	repo := NewMemorySnapshotRepository()

	got, err := repo.LoadOnStartup(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
	assert.Nil(t, got)
}

func TestMemorySnapshotRepository_Delete(t *testing.T) {
	repo := NewMemorySnapshotRepository()
	ctx := context.Background()

	require.NoError(t, repo.Persist(ctx, snapshotAt("t1", time.Now(), models.StatusCompleted)))
	require.NoError(t, repo.Delete(ctx, "t1"))

	_, err := repo.LoadOnStartup(ctx, "t1")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	// Deleting an absent snapshot is not an error.
	assert.NoError(t, repo.Delete(ctx, "t1"))
}

func TestMemorySnapshotRepository_IgnoresStaleWrites(t *testing.T) {
	repo := NewMemorySnapshotRepository()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, repo.Persist(ctx, snapshotAt("t1", base, models.StatusRoundActive)))
	require.NoError(t, repo.Persist(ctx, snapshotAt("t1", base.Add(-time.Minute), models.StatusWaiting)))

	got, err := repo.LoadOnStartup(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRoundActive, got.Status, "older snapshot must not replace a newer one")
}

func TestMemorySnapshotRepository_StoresAndReturnsClones(t *testing.T) {
	repo := NewMemorySnapshotRepository()
	ctx := context.Background()

	snap := snapshotAt("t1", time.Now(), models.StatusWaiting)
	require.NoError(t, repo.Persist(ctx, snap))
	snap.Tournament.GameSequence[0] = "mutated-after-persist"

	got, err := repo.LoadOnStartup(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "jetpack", got.Tournament.GameSequence[0])

	got.Tournament.Status = models.StatusCompleted
	again, err := repo.LoadOnStartup(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, again.Tournament.Status)
}
