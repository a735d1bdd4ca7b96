package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/playloop/arena/models"
)

// ReconnectPayload is everything a rejoining client needs to resume without
// replaying history: the tournament summary, current standings, and the ghost
// trace of the last scored round.
type ReconnectPayload struct {
	Tournament  *TournamentSummary        `json:"tournament"`
	Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
	GhostData   *models.GhostData         `json:"ghost_data"`
}

// TournamentSummary is the reconnect-sized view of a tournament, without the
// full per-round score history.
type TournamentSummary struct {
	ID                string                  `json:"id"`
	Status            models.TournamentStatus `json:"status"`
	GameSequence      []string                `json:"game_sequence"`
	MaxRounds         int                     `json:"max_rounds"`
	CurrentRoundIndex int                     `json:"current_round_index"`
	CurrentGameID     string                  `json:"current_game_id,omitempty"`
	Players           []*models.Player        `json:"players"`
}

// ReconnectAssembler composes reconnect payloads from consistent service
// reads. It holds no state of its own.
type ReconnectAssembler struct {
	service *TournamentService
}

func NewReconnectAssembler(service *TournamentService) *ReconnectAssembler {
	return &ReconnectAssembler{service: service}
}

// BuildReconnectPayload assembles the resume payload for a member. Unknown
// tournaments yield (nil, ErrNotFound) so the gateway can distinguish a gone
// tournament from a transient empty state; a user who never joined gets
// ErrForbidden, never a valid payload.
func (a *ReconnectAssembler) BuildReconnectPayload(ctx context.Context, tournamentID, userID string) (*ReconnectPayload, error) {
	t, err := a.service.GetTournament(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load tournament for reconnect: %w", err)
	}
	if t.Player(userID) == nil {
		return nil, fmt.Errorf("%w: user %q", ErrForbidden, userID)
	}

	ghost, err := a.service.GetGhostData(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("load ghost data for reconnect: %w", err)
	}

	summary := &TournamentSummary{
		ID:                t.ID,
		Status:            t.Status,
		GameSequence:      t.GameSequence,
		MaxRounds:         t.MaxRounds,
		CurrentRoundIndex: t.CurrentRoundIndex,
		Players:           t.Players,
	}
	if r := t.CurrentRound(); r != nil {
		summary.CurrentGameID = r.GameID
	}

	return &ReconnectPayload{
		Tournament:  summary,
		Leaderboard: t.Leaderboard,
		GhostData:   ghost,
	}, nil
}
