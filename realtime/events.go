package realtime

import (
	"encoding/json"

	"github.com/playloop/arena/models"
	"github.com/playloop/arena/services"
)

// Client-to-server event types. Every inbound frame is an Envelope whose
// payload schema is fixed by its type tag; dispatch in the gateway is an
// exhaustive switch so a new event type is a compile-visible addition.
const (
	EventCreateTournament = "create_tournament"
	EventJoinTournament   = "join_tournament"
	EventStartTournament  = "start_tournament"
	EventSubmitScore      = "submit_score"
	EventRequestReconnect = "request_reconnect"
)

// Server-to-client event types. Room broadcast unless noted.
const (
	EventTournamentCreated   = "tournament:created"
	EventPlayerJoined        = "player:joined"
	EventTournamentUpdated   = "tournament:updated"
	EventRoundStarted        = "round:started"
	EventRoundEnded          = "round:ended"
	EventTournamentCompleted = "tournament:completed"
	EventSessionToken        = "session:token"    // unicast to the joiner
	EventReconnectState      = "reconnect:state"  // unicast to the requester
	EventError               = "error"            // unicast to the originator
)

// Envelope is the wire frame in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type CreateTournamentPayload struct {
	GameSequence []string `json:"game_sequence"`
	MaxRounds    int      `json:"max_rounds"`
	Passcode     string   `json:"passcode,omitempty"`
}

type JoinTournamentPayload struct {
	TournamentID string `json:"tournament_id"`
	UserID       string `json:"user_id"`
	DisplayName  string `json:"display_name"`
	Passcode     string `json:"passcode,omitempty"`
}

type StartTournamentPayload struct {
	TournamentID string `json:"tournament_id"`
}

type SubmitScorePayload struct {
	TournamentID string  `json:"tournament_id"`
	RoundIndex   int     `json:"round_index"`
	UserID       string  `json:"user_id"`
	Score        float64 `json:"score"`
}

type RequestReconnectPayload struct {
	TournamentID string `json:"tournament_id"`
	UserID       string `json:"user_id"`
}

type TournamentCreatedPayload struct {
	Tournament *models.Tournament `json:"tournament"`
}

type PlayerJoinedPayload struct {
	TournamentID string         `json:"tournament_id"`
	Player       *models.Player `json:"player"`
}

type SessionTokenPayload struct {
	TournamentID string `json:"tournament_id"`
	UserID       string `json:"user_id"`
	ResumeToken  string `json:"resume_token"`
}

type TournamentUpdatedPayload struct {
	Tournament  *models.Tournament        `json:"tournament"`
	Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
}

type RoundStartedPayload struct {
	TournamentID string        `json:"tournament_id"`
	Round        *models.Round `json:"round"`
}

type RoundEndedPayload struct {
	TournamentID string                    `json:"tournament_id"`
	Round        *models.Round             `json:"round"`
	Leaderboard  []models.LeaderboardEntry `json:"leaderboard"`
}

type TournamentCompletedPayload struct {
	TournamentID     string                    `json:"tournament_id"`
	FinalLeaderboard []models.LeaderboardEntry `json:"final_leaderboard"`
}

type ReconnectStatePayload struct {
	TournamentID string                     `json:"tournament_id"`
	State        *services.ReconnectPayload `json:"state"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newEvent(eventType string, payload any) Envelope {
	raw, err := json.Marshal(payload)
	if err != nil {
		// Payload types are our own structs; a marshal failure is a
		// programming error.
		panic(err)
	}
	return Envelope{Type: eventType, Payload: raw}
}
