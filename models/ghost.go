package models

// GhostData is a derived, non-authoritative snapshot of the last completed or
// in-progress round, handed to reconnecting clients for visual continuity.
type GhostData struct {
	TournamentID string       `json:"tournament_id"`
	RoundIndex   int          `json:"round_index"`
	GameID       string       `json:"game_id"`
	Traces       []GhostTrace `json:"traces"`
}

// GhostTrace is one player's position in the ghost round. OffsetMillis is the
// submission time relative to the round start.
type GhostTrace struct {
	UserID       string  `json:"user_id"`
	DisplayName  string  `json:"display_name"`
	Score        float64 `json:"score"`
	OffsetMillis int64   `json:"offset_millis"`
}
