package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playloop/arena/models"
)

// entry pairs a tournament with the mutex that serializes every mutation to
// it. Different tournaments proceed fully in parallel; the registry's own map
// lock is independent and never held while an entry is being mutated.
type entry struct {
	mu         sync.Mutex
	tournament *models.Tournament
}

// Registry is the process-wide store of active tournaments. It owns creation,
// lookup and eviction; all state inside an entry is mutated only through
// withTournament.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Create allocates a new tournament in the waiting state and registers it.
func (r *Registry) Create(gameSequence []string, maxRounds int, passcodeHash string) *models.Tournament {
	now := r.now().UTC()
	t := &models.Tournament{
		ID:                uuid.NewString(),
		Status:            models.StatusWaiting,
		GameSequence:      append([]string(nil), gameSequence...),
		MaxRounds:         maxRounds,
		Players:           []*models.Player{},
		Rounds:            []*models.Round{},
		CurrentRoundIndex: 0,
		Leaderboard:       []models.LeaderboardEntry{},
		PasscodeHash:      passcodeHash,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	r.mu.Lock()
	r.entries[t.ID] = &entry{tournament: t}
	r.mu.Unlock()

	return t.Clone()
}

// Restore registers a tournament rebuilt from a snapshot. The existing entry
// wins if the id is already live.
func (r *Registry) Restore(t *models.Tournament) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[t.ID]; ok {
		return false
	}
	r.entries[t.ID] = &entry{tournament: t.Clone()}
	return true
}

// Remove evicts a tournament. In-flight operations holding the entry mutex
// finish against the detached entry; new lookups miss.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// IDs returns the ids of all live tournaments.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) lookup(id string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[id]
}

// withTournament runs fn with the per-tournament serialization held. fn sees
// the live record and may mutate it; everything handed outside must be a
// clone taken inside fn.
func (r *Registry) withTournament(id string, fn func(t *models.Tournament) error) error {
	e := r.lookup(id)
	if e == nil {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.tournament)
}
