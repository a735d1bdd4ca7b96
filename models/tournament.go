package models

import "time"

// TournamentStatus enumerates the lifecycle states of a tournament.
type TournamentStatus string

const (
	StatusWaiting     TournamentStatus = "waiting"
	StatusRoundActive TournamentStatus = "round_active"
	StatusRoundEnded  TournamentStatus = "round_ended"
	StatusCompleted   TournamentStatus = "completed"
)

// Tournament is the in-memory record of one running tournament. Players keeps
// join order; Leaderboard is a cache recomputed from round scores, never
// mutated directly.
type Tournament struct {
	ID                string             `json:"id"`
	Status            TournamentStatus   `json:"status"`
	GameSequence      []string           `json:"game_sequence"`
	MaxRounds         int                `json:"max_rounds"`
	Players           []*Player          `json:"players"`
	Rounds            []*Round           `json:"rounds"`
	CurrentRoundIndex int                `json:"current_round_index"`
	Leaderboard       []LeaderboardEntry `json:"leaderboard"`
	PasscodeHash      string             `json:"-"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// Player returns the member with the given user id, or nil.
func (t *Tournament) Player(userID string) *Player {
	for _, p := range t.Players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// CurrentRound returns the round at CurrentRoundIndex, or nil once the
// tournament has completed.
func (t *Tournament) CurrentRound() *Round {
	if t.CurrentRoundIndex < 0 || t.CurrentRoundIndex >= len(t.Rounds) {
		return nil
	}
	return t.Rounds[t.CurrentRoundIndex]
}

// Clone returns a deep copy safe to hand out across the serialization
// boundary.
func (t *Tournament) Clone() *Tournament {
	c := *t
	c.GameSequence = append([]string(nil), t.GameSequence...)
	c.Players = make([]*Player, len(t.Players))
	for i, p := range t.Players {
		pc := *p
		c.Players[i] = &pc
	}
	c.Rounds = make([]*Round, len(t.Rounds))
	for i, r := range t.Rounds {
		c.Rounds[i] = r.Clone()
	}
	c.Leaderboard = append([]LeaderboardEntry(nil), t.Leaderboard...)
	return &c
}
