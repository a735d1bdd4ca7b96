package models

// LeaderboardEntry is one ranked row of the standings. Ranks are sequential
// 1..N with no gaps, including on score ties.
type LeaderboardEntry struct {
	Rank        int     `json:"rank"`
	UserID      string  `json:"user_id"`
	DisplayName string  `json:"display_name"`
	TotalScore  float64 `json:"total_score"`
}
