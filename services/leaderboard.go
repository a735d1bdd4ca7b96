package services

import (
	"sort"
	"time"

	"github.com/playloop/arena/models"
)

// ComputeLeaderboard derives ranked standings from the round-score history.
// It is a pure function of its inputs: callers replace the tournament's
// cached leaderboard wholesale with the result.
//
// Ordering: total score descending; ties broken by who reached their final
// total first (the timestamp of the player's last recorded score), then by
// join order. Ranks are sequential 1..N with no gaps even when totals tie,
// which keeps client rendering trivial.
func ComputeLeaderboard(players []*models.Player, rounds []*models.Round) []models.LeaderboardEntry {
	type standing struct {
		joinIndex int
		userID    string
		display   string
		total     float64
		finalAt   time.Time
	}

	standings := make([]standing, 0, len(players))
	for i, p := range players {
		s := standing{joinIndex: i, userID: p.UserID, display: p.DisplayName}
		for _, r := range rounds {
			if e, ok := r.Scores[p.UserID]; ok {
				s.total += e.Score
				if e.RecordedAt.After(s.finalAt) {
					s.finalAt = e.RecordedAt
				}
			}
		}
		standings = append(standings, s)
	}

	sort.SliceStable(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.total != b.total {
			return a.total > b.total
		}
		if !a.finalAt.Equal(b.finalAt) {
			// A zero finalAt means the player never scored: their total stood
			// at its final value from the moment they joined, so they sort
			// ahead of anyone who reached the same total later.
			return a.finalAt.Before(b.finalAt)
		}
		return a.joinIndex < b.joinIndex
	})

	entries := make([]models.LeaderboardEntry, len(standings))
	for i, s := range standings {
		entries[i] = models.LeaderboardEntry{
			Rank:        i + 1,
			UserID:      s.userID,
			DisplayName: s.display,
			TotalScore:  s.total,
		}
	}
	return entries
}

// TotalScore sums a single player's recorded scores across all rounds.
func TotalScore(userID string, rounds []*models.Round) float64 {
	var total float64
	for _, r := range rounds {
		if e, ok := r.Scores[userID]; ok {
			total += e.Score
		}
	}
	return total
}
