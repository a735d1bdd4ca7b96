package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/playloop/arena/models"
)

type postgresSnapshotRepository struct {
	db *sql.DB
}

func NewPostgresSnapshotRepository(db *sql.DB) SnapshotRepository {
	return &postgresSnapshotRepository{db: db}
}

func (r *postgresSnapshotRepository) Persist(ctx context.Context, snapshot *models.TournamentSnapshot) error {
	payload, err := EncodeSnapshotPayload(snapshot.Tournament)
	if err != nil {
		return fmt.Errorf("marshal tournament snapshot: %w", err)
	}

	query := `
		INSERT INTO tournament_snapshots (tournament_id, status, payload, taken_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tournament_id) DO UPDATE
		SET status = EXCLUDED.status,
		    payload = EXCLUDED.payload,
		    taken_at = EXCLUDED.taken_at
		WHERE tournament_snapshots.taken_at <= EXCLUDED.taken_at`

	if _, err := r.db.ExecContext(ctx, query,
		snapshot.TournamentID, snapshot.Status, payload, snapshot.TakenAt,
	); err != nil {
		return fmt.Errorf("persist tournament snapshot %s: %w", snapshot.TournamentID, err)
	}
	return nil
}

func (r *postgresSnapshotRepository) LoadOnStartup(ctx context.Context, tournamentID string) (*models.TournamentSnapshot, error) {
	query := `
		SELECT tournament_id, status, payload, taken_at
		FROM tournament_snapshots
		WHERE tournament_id = $1`

	snap := &models.TournamentSnapshot{}
	var payload []byte
	err := r.db.QueryRowContext(ctx, query, tournamentID).Scan(
		&snap.TournamentID, &snap.Status, &payload, &snap.TakenAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("load tournament snapshot %s: %w", tournamentID, err)
	}

	t, err := DecodeSnapshotPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("decode tournament snapshot %s: %w", tournamentID, err)
	}
	snap.Tournament = t
	return snap, nil
}

func (r *postgresSnapshotRepository) Delete(ctx context.Context, tournamentID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM tournament_snapshots WHERE tournament_id = $1`, tournamentID,
	); err != nil {
		return fmt.Errorf("delete tournament snapshot %s: %w", tournamentID, err)
	}
	return nil
}
