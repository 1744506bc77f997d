package domain

// LeaderboardEntry is a ranked snapshot of one player.
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"playerId"`
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
	IsHost   bool   `json:"isHost"`
}

// RoundAnswer is the per-player outcome of one closed round.
type RoundAnswer struct {
	PlayerID     string `json:"playerId"`
	Answer       int    `json:"answer"`
	IsCorrect    bool   `json:"isCorrect"`
	PointsEarned int    `json:"pointsEarned"`
}

// GameStats aggregates every answer of a finished game.
type GameStats struct {
	TotalQuestions  int     `json:"totalQuestions"`
	AverageAccuracy float64 `json:"averageAccuracy"`
	// Latencies are in seconds: time limit minus time remaining.
	FastestAnswer float64 `json:"fastestAnswer"`
	SlowestAnswer float64 `json:"slowestAnswer"`
	// TotalPlayTime is in milliseconds.
	TotalPlayTime int64 `json:"totalPlayTime"`
}

// PlayerResult summarizes one player's game.
type PlayerResult struct {
	PlayerID       string  `json:"playerId"`
	Nickname       string  `json:"nickname"`
	FinalScore     int     `json:"finalScore"`
	Rank           int     `json:"rank"`
	CorrectAnswers int     `json:"correctAnswers"`
	AverageTime    float64 `json:"averageTime"`
	Accuracy       float64 `json:"accuracy"`
}

// GameResults is broadcast once when a game finishes.
type GameResults struct {
	GameID           string             `json:"gameId"`
	FinalLeaderboard []LeaderboardEntry `json:"finalLeaderboard"`
	GameStats        GameStats          `json:"gameStats"`
	PlayerResults    []PlayerResult     `json:"playerResults"`
}
