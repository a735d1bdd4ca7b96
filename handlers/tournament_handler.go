package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/playloop/arena/middleware"
	"github.com/playloop/arena/realtime"
	"github.com/playloop/arena/services"
)

// TournamentHandler is the HTTP face of the coordinator. Everything here is
// plumbing around TournamentService; state transitions go through the gateway
// so broadcasts and round timers reach the room regardless of which surface
// triggered them.
type TournamentHandler struct {
	service   *services.TournamentService
	assembler *services.ReconnectAssembler
	gateway   *realtime.Gateway
	tokens    *middleware.TokenManager
}

func NewTournamentHandler(
	service *services.TournamentService,
	assembler *services.ReconnectAssembler,
	gateway *realtime.Gateway,
	tokens *middleware.TokenManager,
) *TournamentHandler {
	return &TournamentHandler{
		service:   service,
		assembler: assembler,
		gateway:   gateway,
		tokens:    tokens,
	}
}

type createTournamentRequest struct {
	GameSequence []string `json:"game_sequence"`
	MaxRounds    int      `json:"max_rounds"`
	Passcode     string   `json:"passcode,omitempty"`
}

func (h *TournamentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTournamentRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err)
		return
	}
	t, err := h.service.CreateTournament(r.Context(), req.GameSequence, req.MaxRounds, req.Passcode)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, jsonResponse{"tournament": t})
}

func (h *TournamentHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, jsonResponse{"tournaments": h.service.ListTournaments(r.Context())})
}

func (h *TournamentHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.GetTournament(r.Context(), chi.URLParam(r, "tournamentID"))
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"tournament": t})
}

type joinTournamentRequest struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Passcode    string `json:"passcode,omitempty"`
}

func (h *TournamentHandler) Join(w http.ResponseWriter, r *http.Request) {
	tournamentID := chi.URLParam(r, "tournamentID")
	var req joinTournamentRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err)
		return
	}
	player, err := h.service.JoinTournament(r.Context(), tournamentID, req.UserID, req.DisplayName, req.Passcode)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	token, err := h.tokens.IssueResumeToken(tournamentID, player.UserID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, jsonResponse{"player": player, "resume_token": token})
}

// Start goes through the gateway so the room hears round:started and the
// round 0 timer is armed even when the start came over HTTP.
func (h *TournamentHandler) Start(w http.ResponseWriter, r *http.Request) {
	t, err := h.gateway.StartTournament(r.Context(), chi.URLParam(r, "tournamentID"))
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"tournament": t})
}

type submitScoreRequest struct {
	RoundIndex int     `json:"round_index"`
	Score      float64 `json:"score"`
}

// SubmitScore records a score for the authenticated player. The resume token
// binds the request to a tournament and user, so neither appears in the body.
func (h *TournamentHandler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.PlayerFromContext(r.Context())
	if !ok {
		errorResponse(w, http.StatusUnauthorized, "FORBIDDEN", "missing player identity")
		return
	}
	tournamentID := chi.URLParam(r, "tournamentID")
	if claims.TournamentID != tournamentID {
		errorResponse(w, http.StatusForbidden, "FORBIDDEN", "token is scoped to a different tournament")
		return
	}

	var req submitScoreRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err)
		return
	}
	snapshot, err := h.gateway.SubmitScore(r.Context(), tournamentID, req.RoundIndex, claims.UserID, req.Score)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, jsonResponse{"leaderboard_snapshot": snapshot})
}

type advanceRoundRequest struct {
	RoundIndex int `json:"round_index"`
}

func (h *TournamentHandler) AdvanceRound(w http.ResponseWriter, r *http.Request) {
	tournamentID := chi.URLParam(r, "tournamentID")
	var req advanceRoundRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err)
		return
	}
	if err := h.gateway.AdvanceRound(r.Context(), tournamentID, req.RoundIndex); err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	t, err := h.service.GetTournament(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"tournament": t})
}

func (h *TournamentHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.GetTournament(r.Context(), chi.URLParam(r, "tournamentID"))
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"leaderboard": t.Leaderboard})
}

func (h *TournamentHandler) GhostData(w http.ResponseWriter, r *http.Request) {
	ghost, err := h.service.GetGhostData(r.Context(), chi.URLParam(r, "tournamentID"))
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"ghost_data": ghost})
}
