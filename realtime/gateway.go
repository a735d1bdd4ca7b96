package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playloop/arena/middleware"
	"github.com/playloop/arena/models"
	"github.com/playloop/arena/services"
)

// Gateway adapts inbound realtime events into TournamentService calls and
// fans the resulting state changes out to the tournament's room. It owns the
// round-timeout timers; the service stays timer-free and resolves the
// timer/submission race through idempotent AdvanceRound.
type Gateway struct {
	service   *services.TournamentService
	assembler *services.ReconnectAssembler
	hub       *Hub
	tokens    *middleware.TokenManager
	logger    *slog.Logger

	roundDuration time.Duration

	timersMu sync.Mutex
	timers   map[string]*time.Timer
}

func NewGateway(
	service *services.TournamentService,
	assembler *services.ReconnectAssembler,
	hub *Hub,
	tokens *middleware.TokenManager,
	logger *slog.Logger,
	roundDuration time.Duration,
) *Gateway {
	return &Gateway{
		service:       service,
		assembler:     assembler,
		hub:           hub,
		tokens:        tokens,
		logger:        logger,
		roundDuration: roundDuration,
		timers:        make(map[string]*time.Timer),
	}
}

func roomID(tournamentID string) string {
	return "tournament_" + tournamentID
}

// HandleMessage dispatches one inbound frame. Failures are replied to the
// originating connection only and never affect other tournaments.
func (g *Gateway) HandleMessage(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		g.replyError(c, fmt.Errorf("%w: malformed event frame", services.ErrValidation))
		return
	}

	ctx := context.Background()
	switch env.Type {
	case EventCreateTournament:
		g.handleCreate(ctx, c, env.Payload)
	case EventJoinTournament:
		g.handleJoin(ctx, c, env.Payload)
	case EventStartTournament:
		g.handleStart(ctx, c, env.Payload)
	case EventSubmitScore:
		g.handleSubmit(ctx, c, env.Payload)
	case EventRequestReconnect:
		g.handleReconnect(ctx, c, env.Payload)
	default:
		g.replyError(c, fmt.Errorf("%w: unknown event type %q", services.ErrValidation, env.Type))
	}
}

func (g *Gateway) handleCreate(ctx context.Context, c *Client, raw json.RawMessage) {
	var p CreateTournamentPayload
	if err := decodePayload(raw, &p); err != nil {
		g.replyError(c, err)
		return
	}
	t, err := g.service.CreateTournament(ctx, p.GameSequence, p.MaxRounds, p.Passcode)
	if err != nil {
		g.replyError(c, err)
		return
	}
	g.hub.Join(c, roomID(t.ID))
	g.hub.BroadcastToRoom(roomID(t.ID), newEvent(EventTournamentCreated, TournamentCreatedPayload{Tournament: t}))
}

func (g *Gateway) handleJoin(ctx context.Context, c *Client, raw json.RawMessage) {
	var p JoinTournamentPayload
	if err := decodePayload(raw, &p); err != nil {
		g.replyError(c, err)
		return
	}
	player, err := g.service.JoinTournament(ctx, p.TournamentID, p.UserID, p.DisplayName, p.Passcode)
	if err != nil {
		g.replyError(c, err)
		return
	}
	g.hub.Join(c, roomID(p.TournamentID))
	if err := g.service.BindConnection(ctx, p.TournamentID, p.UserID, c.ID); err != nil {
		g.logger.Warn("bind connection failed", slog.Any("error", err))
	}

	g.hub.BroadcastToRoom(roomID(p.TournamentID), newEvent(EventPlayerJoined, PlayerJoinedPayload{
		TournamentID: p.TournamentID,
		Player:       player,
	}))

	// The resume token is for this player only, so it rides a unicast event
	// rather than the join broadcast.
	token, err := g.tokens.IssueResumeToken(p.TournamentID, p.UserID)
	if err != nil {
		g.logger.Error("issue resume token", slog.Any("error", err))
		return
	}
	c.Enqueue(newEvent(EventSessionToken, SessionTokenPayload{
		TournamentID: p.TournamentID,
		UserID:       p.UserID,
		ResumeToken:  token,
	}))
}

func (g *Gateway) handleStart(ctx context.Context, c *Client, raw json.RawMessage) {
	var p StartTournamentPayload
	if err := decodePayload(raw, &p); err != nil {
		g.replyError(c, err)
		return
	}
	if _, err := g.StartTournament(ctx, p.TournamentID); err != nil {
		g.replyError(c, err)
	}
}

// StartTournament starts the tournament, announces round 0 to the room, and
// arms its timeout timer. Both the websocket and HTTP start paths go through
// here so the timer and broadcasts never depend on which surface triggered the
// transition.
func (g *Gateway) StartTournament(ctx context.Context, tournamentID string) (*models.Tournament, error) {
	t, err := g.service.StartTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	room := roomID(t.ID)
	g.hub.BroadcastToRoom(room, newEvent(EventRoundStarted, RoundStartedPayload{
		TournamentID: t.ID,
		Round:        t.Rounds[0],
	}))
	g.hub.BroadcastToRoom(room, newEvent(EventTournamentUpdated, TournamentUpdatedPayload{
		Tournament:  t,
		Leaderboard: t.Leaderboard,
	}))
	g.scheduleRoundTimeout(t.ID, 0)
	return t, nil
}

func (g *Gateway) handleSubmit(ctx context.Context, c *Client, raw json.RawMessage) {
	var p SubmitScorePayload
	if err := decodePayload(raw, &p); err != nil {
		g.replyError(c, err)
		return
	}
	if _, err := g.SubmitScore(ctx, p.TournamentID, p.RoundIndex, p.UserID, p.Score); err != nil {
		g.replyError(c, err)
	}
}

// SubmitScore records a score, fans the updated standings out to the room, and
// advances the round once every member has submitted. Shared by the websocket
// and HTTP submission paths.
func (g *Gateway) SubmitScore(ctx context.Context, tournamentID string, roundIndex int, userID string, score float64) (*services.LeaderboardSnapshot, error) {
	snapshot, err := g.service.SubmitScore(ctx, tournamentID, roundIndex, userID, score)
	if err != nil {
		return nil, err
	}

	if t, getErr := g.service.GetTournament(ctx, tournamentID); getErr == nil {
		g.hub.BroadcastToRoom(roomID(tournamentID), newEvent(EventTournamentUpdated, TournamentUpdatedPayload{
			Tournament:  t,
			Leaderboard: snapshot.Leaderboard,
		}))
	}

	if snapshot.AllSubmitted {
		if advErr := g.AdvanceRound(ctx, tournamentID, roundIndex); advErr != nil {
			g.logger.Warn("round advance failed",
				slog.String("tournament_id", tournamentID),
				slog.Int("round_index", roundIndex),
				slog.Any("error", advErr))
		}
	}
	return snapshot, nil
}

func (g *Gateway) handleReconnect(ctx context.Context, c *Client, raw json.RawMessage) {
	var p RequestReconnectPayload
	if err := decodePayload(raw, &p); err != nil {
		g.replyError(c, err)
		return
	}
	state, err := g.assembler.BuildReconnectPayload(ctx, p.TournamentID, p.UserID)
	if err != nil {
		g.replyError(c, err)
		return
	}
	g.hub.Join(c, roomID(p.TournamentID))
	if err := g.service.BindConnection(ctx, p.TournamentID, p.UserID, c.ID); err != nil {
		g.logger.Warn("bind connection failed", slog.Any("error", err))
	}
	c.Enqueue(newEvent(EventReconnectState, ReconnectStatePayload{
		TournamentID: p.TournamentID,
		State:        state,
	}))
}

// AdvanceRound drives a round transition and broadcasts the outcome. It is
// shared by the all-submitted trigger, the round timer, and the HTTP advance
// endpoint; a stale trigger is a no-op inside the service, so duplicates
// produce no duplicate broadcasts. Service errors are returned so callers can
// surface them.
func (g *Gateway) AdvanceRound(ctx context.Context, tournamentID string, roundIndex int) error {
	t, advanced, err := g.service.AdvanceRound(ctx, tournamentID, roundIndex)
	if err != nil {
		return err
	}
	if !advanced {
		return nil
	}

	room := roomID(tournamentID)
	g.hub.BroadcastToRoom(room, newEvent(EventRoundEnded, RoundEndedPayload{
		TournamentID: tournamentID,
		Round:        t.Rounds[roundIndex],
		Leaderboard:  t.Leaderboard,
	}))

	switch t.Status {
	case models.StatusRoundActive:
		g.hub.BroadcastToRoom(room, newEvent(EventRoundStarted, RoundStartedPayload{
			TournamentID: tournamentID,
			Round:        t.Rounds[t.CurrentRoundIndex],
		}))
		g.scheduleRoundTimeout(tournamentID, t.CurrentRoundIndex)
	case models.StatusCompleted:
		g.hub.BroadcastToRoom(room, newEvent(EventTournamentCompleted, TournamentCompletedPayload{
			TournamentID:     tournamentID,
			FinalLeaderboard: t.Leaderboard,
		}))
		g.cancelRoundTimeout(tournamentID)
	}

	g.hub.BroadcastToRoom(room, newEvent(EventTournamentUpdated, TournamentUpdatedPayload{
		Tournament:  t,
		Leaderboard: t.Leaderboard,
	}))
	return nil
}

// scheduleRoundTimeout arms the external round-timeout trigger. The duration
// is configuration, not a core invariant; zero disables timeouts entirely.
func (g *Gateway) scheduleRoundTimeout(tournamentID string, roundIndex int) {
	if g.roundDuration <= 0 {
		return
	}
	g.timersMu.Lock()
	defer g.timersMu.Unlock()
	if prev, ok := g.timers[tournamentID]; ok {
		prev.Stop()
	}
	g.timers[tournamentID] = time.AfterFunc(g.roundDuration, func() {
		g.logger.Info("round timeout fired",
			slog.String("tournament_id", tournamentID),
			slog.Int("round_index", roundIndex))
		if err := g.AdvanceRound(context.Background(), tournamentID, roundIndex); err != nil {
			g.logger.Warn("round timeout advance failed",
				slog.String("tournament_id", tournamentID),
				slog.Int("round_index", roundIndex),
				slog.Any("error", err))
		}
	})
}

func (g *Gateway) cancelRoundTimeout(tournamentID string) {
	g.timersMu.Lock()
	defer g.timersMu.Unlock()
	if t, ok := g.timers[tournamentID]; ok {
		t.Stop()
		delete(g.timers, tournamentID)
	}
}

// Shutdown stops all outstanding round timers.
func (g *Gateway) Shutdown() {
	g.timersMu.Lock()
	defer g.timersMu.Unlock()
	for id, t := range g.timers {
		t.Stop()
		delete(g.timers, id)
	}
}

func (g *Gateway) replyError(c *Client, err error) {
	c.Enqueue(newEvent(EventError, ErrorPayload{
		Code:    services.ErrorCode(err),
		Message: err.Error(),
	}))
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: event payload is required", services.ErrValidation)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", services.ErrValidation, err)
	}
	return nil
}
