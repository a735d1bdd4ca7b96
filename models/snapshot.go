package models

import "time"

// TournamentSnapshot is the unit handed to the durable store collaborator.
// The in-memory registry stays authoritative; snapshots exist so a restarted
// process can serve reconnects.
type TournamentSnapshot struct {
	TournamentID string           `json:"tournament_id"`
	Status       TournamentStatus `json:"status"`
	TakenAt      time.Time        `json:"taken_at"`
	Tournament   *Tournament      `json:"tournament"`
}
