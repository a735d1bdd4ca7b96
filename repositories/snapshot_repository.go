package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/playloop/arena/models"
)

var ErrSnapshotNotFound = errors.New("tournament snapshot not found")

// SnapshotRepository is the narrow interface to the durable store. The
// in-memory registry is authoritative; Persist is fire-and-forget from the
// caller's point of view and LoadOnStartup backs reconnects after a process
// restart. The core must behave identically whichever implementation backs
// it, including a no-op one.
type SnapshotRepository interface {
	Persist(ctx context.Context, snapshot *models.TournamentSnapshot) error
	LoadOnStartup(ctx context.Context, tournamentID string) (*models.TournamentSnapshot, error)
	Delete(ctx context.Context, tournamentID string) error
}

// snapshotPayload is the durable wire shape of a tournament. The API model
// strips PasscodeHash from JSON so it never leaks into responses, but a
// restored tournament must keep enforcing its passcode, so the payload carries
// the hash explicitly.
type snapshotPayload struct {
	*models.Tournament
	PasscodeHash string `json:"passcode_hash,omitempty"`
}

// EncodeSnapshotPayload serializes a tournament for a durable store.
func EncodeSnapshotPayload(t *models.Tournament) ([]byte, error) {
	raw, err := json.Marshal(snapshotPayload{Tournament: t, PasscodeHash: t.PasscodeHash})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot payload: %w", err)
	}
	return raw, nil
}

// DecodeSnapshotPayload is the inverse of EncodeSnapshotPayload.
func DecodeSnapshotPayload(raw []byte) (*models.Tournament, error) {
	p := snapshotPayload{Tournament: &models.Tournament{}}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode snapshot payload: %w", err)
	}
	p.Tournament.PasscodeHash = p.PasscodeHash
	return p.Tournament, nil
}
