package models

import "time"

// Player is a tournament member. ConnectionID is transient transport state:
// it changes across reconnects and is not part of the player's identity.
type Player struct {
	UserID       string    `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	ConnectionID string    `json:"-"`
	JoinedAt     time.Time `json:"joined_at"`
	TotalScore   float64   `json:"total_score"`
}
