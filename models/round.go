package models

import "time"

// Round is one timed mini-game instance within a tournament. Scores holds at
// most one entry per member; EndedAt stays nil while the round is active.
type Round struct {
	ID        string                `json:"id"`
	GameID    string                `json:"game_id"`
	Index     int                   `json:"index"`
	StartedAt time.Time             `json:"started_at"`
	EndedAt   *time.Time            `json:"ended_at,omitempty"`
	Scores    map[string]ScoreEntry `json:"scores"`
}

// ScoreEntry records a single submission. RecordedAt is the tie-break input
// for the leaderboard.
type ScoreEntry struct {
	Score      float64   `json:"score"`
	RecordedAt time.Time `json:"recorded_at"`
}

func (r *Round) Clone() *Round {
	c := *r
	if r.EndedAt != nil {
		ended := *r.EndedAt
		c.EndedAt = &ended
	}
	c.Scores = make(map[string]ScoreEntry, len(r.Scores))
	for k, v := range r.Scores {
		c.Scores[k] = v
	}
	return &c
}
