package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/playloop/arena/models"
	"github.com/playloop/arena/repositories"
	"github.com/playloop/arena/storage"
	"golang.org/x/crypto/bcrypt"
)

// LeaderboardSnapshot is the observable side effect of a successful score
// submission, handed to the gateway for broadcast. AllSubmitted tells the
// gateway every current member has a score for the round, which is one of the
// two round-advance triggers.
type LeaderboardSnapshot struct {
	TournamentID string                    `json:"tournament_id"`
	RoundIndex   int                       `json:"round_index"`
	Leaderboard  []models.LeaderboardEntry `json:"leaderboard"`
	AllSubmitted bool                      `json:"all_submitted"`
}

// TournamentService is the tournament state machine. Every mutation of a
// given tournament runs under that tournament's serialization in the
// registry; the service itself holds no timers, so round timeouts stay the
// gateway's concern and the service stays directly testable.
type TournamentService struct {
	registry  *Registry
	snapshots repositories.SnapshotRepository
	archiver  storage.ResultsArchiver
	logger    *slog.Logger
	now       func() time.Time

	inflight sync.WaitGroup
}

func NewTournamentService(
	registry *Registry,
	snapshots repositories.SnapshotRepository,
	archiver storage.ResultsArchiver,
	logger *slog.Logger,
) *TournamentService {
	return &TournamentService{
		registry:  registry,
		snapshots: snapshots,
		archiver:  archiver,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateTournament allocates a tournament in the waiting state. maxRounds
// must match the game sequence length exactly; an optional passcode gates
// joins and is stored only as a bcrypt hash.
func (s *TournamentService) CreateTournament(ctx context.Context, gameSequence []string, maxRounds int, passcode string) (*models.Tournament, error) {
	if len(gameSequence) == 0 {
		return nil, ErrEmptyGameSequence
	}
	for _, gameID := range gameSequence {
		if gameID == "" {
			return nil, fmt.Errorf("%w: game id must not be empty", ErrValidation)
		}
	}
	if maxRounds <= 0 || maxRounds != len(gameSequence) {
		return nil, ErrRoundCountMismatch
	}

	var passcodeHash string
	if passcode != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash passcode: %w", err)
		}
		passcodeHash = string(hash)
	}

	t := s.registry.Create(gameSequence, maxRounds, passcodeHash)
	s.logger.Info("tournament created",
		slog.String("tournament_id", t.ID),
		slog.Int("max_rounds", t.MaxRounds))
	s.persistAsync(t)
	return t, nil
}

// JoinTournament admits a player while the tournament is still waiting.
// Re-joining with a known user id before start is idempotent and returns the
// existing membership, since reconnecting clients reuse join.
func (s *TournamentService) JoinTournament(ctx context.Context, tournamentID, userID, displayName, passcode string) (*models.Player, error) {
	if userID == "" || displayName == "" {
		return nil, fmt.Errorf("%w: user id and display name are required", ErrValidation)
	}

	var joined *models.Player
	err := s.with(ctx, tournamentID, func(t *models.Tournament) error {
		if t.Status != models.StatusWaiting {
			return fmt.Errorf("%w: cannot join a tournament in status %q", ErrInvalidState, t.Status)
		}
		if t.PasscodeHash != "" {
			if bcrypt.CompareHashAndPassword([]byte(t.PasscodeHash), []byte(passcode)) != nil {
				return ErrPasscodeMismatch
			}
		}
		if existing := t.Player(userID); existing != nil {
			p := *existing
			joined = &p
			return nil
		}
		p := &models.Player{
			UserID:      userID,
			DisplayName: displayName,
			JoinedAt:    s.now().UTC(),
		}
		t.Players = append(t.Players, p)
		t.Leaderboard = ComputeLeaderboard(t.Players, t.Rounds)
		t.UpdatedAt = s.now().UTC()
		clone := *p
		joined = &clone
		s.persistAsync(t.Clone())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return joined, nil
}

// StartTournament moves a waiting tournament with at least one player into
// round 0.
func (s *TournamentService) StartTournament(ctx context.Context, tournamentID string) (*models.Tournament, error) {
	var started *models.Tournament
	err := s.with(ctx, tournamentID, func(t *models.Tournament) error {
		if t.Status != models.StatusWaiting {
			return fmt.Errorf("%w: cannot start a tournament in status %q", ErrInvalidState, t.Status)
		}
		if len(t.Players) == 0 {
			return ErrNoPlayers
		}
		s.openRound(t, 0)
		t.Status = models.StatusRoundActive
		t.UpdatedAt = s.now().UTC()
		started = t.Clone()
		s.persistAsync(started)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("tournament started",
		slog.String("tournament_id", started.ID),
		slog.String("game_id", started.Rounds[0].GameID))
	return started, nil
}

// SubmitScore records one score for the active round. Validation order:
// tournament exists, round is the active one, submitter is a member, score is
// a non-negative finite value, and no prior entry exists for the pair.
// Resubmission is rejected rather than overwritten to keep results
// tamper-resistant.
func (s *TournamentService) SubmitScore(ctx context.Context, tournamentID string, roundIndex int, userID string, score float64) (*LeaderboardSnapshot, error) {
	var snapshot *LeaderboardSnapshot
	err := s.with(ctx, tournamentID, func(t *models.Tournament) error {
		if t.Status != models.StatusRoundActive {
			return fmt.Errorf("%w: no active round in status %q", ErrInvalidState, t.Status)
		}
		if roundIndex != t.CurrentRoundIndex {
			return fmt.Errorf("%w: round %d is not the active round %d", ErrInvalidState, roundIndex, t.CurrentRoundIndex)
		}
		player := t.Player(userID)
		if player == nil {
			return fmt.Errorf("%w: user %q", ErrForbidden, userID)
		}
		if score < 0 || math.IsNaN(score) || math.IsInf(score, 0) {
			return ErrScoreOutOfRange
		}
		round := t.CurrentRound()
		if _, exists := round.Scores[userID]; exists {
			return fmt.Errorf("%w: user %q, round %d", ErrDuplicateSubmission, userID, roundIndex)
		}

		round.Scores[userID] = models.ScoreEntry{Score: score, RecordedAt: s.now().UTC()}
		player.TotalScore = TotalScore(userID, t.Rounds)
		t.Leaderboard = ComputeLeaderboard(t.Players, t.Rounds)
		t.UpdatedAt = s.now().UTC()

		snapshot = &LeaderboardSnapshot{
			TournamentID: t.ID,
			RoundIndex:   roundIndex,
			Leaderboard:  append([]models.LeaderboardEntry(nil), t.Leaderboard...),
			AllSubmitted: len(round.Scores) == len(t.Players),
		}
		s.persistAsync(t.Clone())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// AdvanceRound closes the round at roundIndex and either opens the next one
// or completes the tournament. All-submitted triggers and round timers race
// by nature, so a call for a round that is no longer current, or already
// ended, is a no-op rather than an error; advanced reports whether state
// actually changed.
func (s *TournamentService) AdvanceRound(ctx context.Context, tournamentID string, roundIndex int) (result *models.Tournament, advanced bool, err error) {
	err = s.with(ctx, tournamentID, func(t *models.Tournament) error {
		if t.Status == models.StatusWaiting {
			return fmt.Errorf("%w: tournament has not started", ErrInvalidState)
		}
		if t.Status == models.StatusCompleted || roundIndex != t.CurrentRoundIndex {
			result = t.Clone()
			return nil
		}
		round := t.Rounds[roundIndex]
		if round.EndedAt != nil {
			result = t.Clone()
			return nil
		}

		now := s.now().UTC()
		ended := now
		round.EndedAt = &ended
		t.Status = models.StatusRoundEnded

		if roundIndex+1 < t.MaxRounds {
			s.openRound(t, roundIndex+1)
			t.CurrentRoundIndex = roundIndex + 1
			t.Status = models.StatusRoundActive
		} else {
			// Invariant: currentRoundIndex equals len(rounds) once completed,
			// so stale triggers can never match the index check above.
			t.CurrentRoundIndex = len(t.Rounds)
			t.Status = models.StatusCompleted
		}
		t.UpdatedAt = now
		advanced = true
		result = t.Clone()
		s.persistAsync(result)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if advanced {
		s.logger.Info("round advanced",
			slog.String("tournament_id", result.ID),
			slog.Int("closed_round", roundIndex),
			slog.String("status", string(result.Status)))
		if result.Status == models.StatusCompleted {
			s.archiveAsync(result)
		}
	}
	return result, advanced, nil
}

// GetTournament returns a consistent snapshot of the tournament.
func (s *TournamentService) GetTournament(ctx context.Context, tournamentID string) (*models.Tournament, error) {
	var clone *models.Tournament
	err := s.with(ctx, tournamentID, func(t *models.Tournament) error {
		clone = t.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return clone, nil
}

// GetGhostData builds the score trace of the last round that has any
// submissions, for reconnecting clients. It is derived data, never
// authoritative.
func (s *TournamentService) GetGhostData(ctx context.Context, tournamentID string) (*models.GhostData, error) {
	var ghost *models.GhostData
	err := s.with(ctx, tournamentID, func(t *models.Tournament) error {
		ghost = buildGhostData(t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ghost, nil
}

// ListTournaments returns snapshots of every live tournament.
func (s *TournamentService) ListTournaments(ctx context.Context) []*models.Tournament {
	ids := s.registry.IDs()
	out := make([]*models.Tournament, 0, len(ids))
	for _, id := range ids {
		t, err := s.GetTournament(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out
}

// BindConnection records the transport handle a member is currently reachable
// on. Connection ids are transient and never part of identity.
func (s *TournamentService) BindConnection(ctx context.Context, tournamentID, userID, connectionID string) error {
	return s.with(ctx, tournamentID, func(t *models.Tournament) error {
		player := t.Player(userID)
		if player == nil {
			return fmt.Errorf("%w: user %q", ErrForbidden, userID)
		}
		player.ConnectionID = connectionID
		return nil
	})
}

// EvictCompletedBefore removes completed tournaments whose last update is
// older than the cutoff. Returns the evicted ids.
func (s *TournamentService) EvictCompletedBefore(ctx context.Context, cutoff time.Time) []string {
	var evicted []string
	for _, id := range s.registry.IDs() {
		stale := false
		err := s.registry.withTournament(id, func(t *models.Tournament) error {
			stale = t.Status == models.StatusCompleted && t.UpdatedAt.Before(cutoff)
			return nil
		})
		if err == nil && stale {
			s.registry.Remove(id)
			// Drop the durable snapshot too, otherwise the restore-on-miss
			// path would resurrect the tournament on the next lookup.
			if delErr := s.snapshots.Delete(ctx, id); delErr != nil {
				s.logger.Warn("snapshot delete failed",
					slog.String("tournament_id", id),
					slog.Any("error", delErr))
			}
			evicted = append(evicted, id)
			s.logger.Info("tournament evicted", slog.String("tournament_id", id))
		}
	}
	return evicted
}

// with wraps the registry serialization and, on a cold miss, tries to restore
// the tournament from the durable store so a restarted process can serve
// reconnects for persisted tournaments.
func (s *TournamentService) with(ctx context.Context, id string, fn func(t *models.Tournament) error) error {
	err := s.registry.withTournament(id, fn)
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	snap, loadErr := s.snapshots.LoadOnStartup(ctx, id)
	if loadErr != nil {
		if !errors.Is(loadErr, repositories.ErrSnapshotNotFound) {
			s.logger.Warn("snapshot load failed",
				slog.String("tournament_id", id),
				slog.Any("error", loadErr))
		}
		return err
	}
	s.registry.Restore(snap.Tournament)
	s.logger.Info("tournament restored from snapshot", slog.String("tournament_id", id))
	return s.registry.withTournament(id, fn)
}

func (s *TournamentService) openRound(t *models.Tournament, index int) {
	t.Rounds = append(t.Rounds, &models.Round{
		ID:        fmt.Sprintf("%s-r%d", t.ID, index),
		GameID:    t.GameSequence[index],
		Index:     index,
		StartedAt: s.now().UTC(),
		Scores:    make(map[string]models.ScoreEntry),
	})
}

func buildGhostData(t *models.Tournament) *models.GhostData {
	var round *models.Round
	for i := len(t.Rounds) - 1; i >= 0; i-- {
		if len(t.Rounds[i].Scores) > 0 {
			round = t.Rounds[i]
			break
		}
	}
	if round == nil && len(t.Rounds) > 0 {
		round = t.Rounds[len(t.Rounds)-1]
	}
	ghost := &models.GhostData{TournamentID: t.ID, RoundIndex: -1}
	if round == nil {
		return ghost
	}
	ghost.RoundIndex = round.Index
	ghost.GameID = round.GameID
	for _, p := range t.Players {
		e, ok := round.Scores[p.UserID]
		if !ok {
			continue
		}
		ghost.Traces = append(ghost.Traces, models.GhostTrace{
			UserID:       p.UserID,
			DisplayName:  p.DisplayName,
			Score:        e.Score,
			OffsetMillis: e.RecordedAt.Sub(round.StartedAt).Milliseconds(),
		})
	}
	return ghost
}

// persistAsync hands a snapshot to the durable store without blocking the
// per-tournament serialization. A dropped write is logged by the store and
// never corrupts the in-memory state machine.
func (s *TournamentService) persistAsync(t *models.Tournament) {
	snap := &models.TournamentSnapshot{
		TournamentID: t.ID,
		Status:       t.Status,
		TakenAt:      s.now().UTC(),
		Tournament:   t,
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.snapshots.Persist(ctx, snap); err != nil {
			s.logger.Warn("snapshot persist failed",
				slog.String("tournament_id", snap.TournamentID),
				slog.Any("error", err))
		}
	}()
}

// Flush waits for in-flight persistence and archive work, for graceful
// shutdown and deterministic tests.
func (s *TournamentService) Flush() {
	s.inflight.Wait()
}

// archiveAsync exports the final standings to the results archive.
func (s *TournamentService) archiveAsync(t *models.Tournament) {
	payload, err := json.Marshal(map[string]any{
		"tournament_id":     t.ID,
		"final_leaderboard": t.Leaderboard,
		"completed_at":      t.UpdatedAt,
	})
	if err != nil {
		s.logger.Error("marshal final standings", slog.Any("error", err))
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		key := fmt.Sprintf("results/%s.json", t.ID)
		res, err := s.archiver.Archive(ctx, key, "application/json", bytes.NewReader(payload))
		if err != nil {
			s.logger.Warn("final standings archive failed",
				slog.String("tournament_id", t.ID),
				slog.Any("error", err))
			return
		}
		s.logger.Info("final standings archived",
			slog.String("tournament_id", t.ID),
			slog.String("location", res.Location))
	}()
}
