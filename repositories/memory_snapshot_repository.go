package repositories

import (
	"context"
	"sync"

	"github.com/playloop/arena/models"
)

// memorySnapshotRepository keeps snapshots in process memory. It backs the
// service when no DATABASE_URL is configured and doubles as the test
// implementation; the core passes every property against it.
type memorySnapshotRepository struct {
	mu        sync.RWMutex
	snapshots map[string]*models.TournamentSnapshot
}

func NewMemorySnapshotRepository() SnapshotRepository {
	return &memorySnapshotRepository{
		snapshots: make(map[string]*models.TournamentSnapshot),
	}
}

func (r *memorySnapshotRepository) Persist(ctx context.Context, snapshot *models.TournamentSnapshot) error {
	clone := *snapshot
	clone.Tournament = snapshot.Tournament.Clone()
	r.mu.Lock()
	defer r.mu.Unlock()
	// Persists are asynchronous and may arrive out of order; a newer
	// snapshot is never replaced by an older one.
	if existing, ok := r.snapshots[snapshot.TournamentID]; ok && existing.TakenAt.After(snapshot.TakenAt) {
		return nil
	}
	r.snapshots[snapshot.TournamentID] = &clone
	return nil
}

func (r *memorySnapshotRepository) LoadOnStartup(ctx context.Context, tournamentID string) (*models.TournamentSnapshot, error) {
	r.mu.RLock()
	snap, ok := r.snapshots[tournamentID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	clone := *snap
	clone.Tournament = snap.Tournament.Clone()
	return &clone, nil
}

func (r *memorySnapshotRepository) Delete(ctx context.Context, tournamentID string) error {
	r.mu.Lock()
	delete(r.snapshots, tournamentID)
	r.mu.Unlock()
	return nil
}
