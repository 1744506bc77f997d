// Package scoring holds the pure point and ranking rules of a game.
// Nothing here reads clocks or mutates its inputs.
package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/samber/lo"

	"trivia-room-service/internal/domain"
)

// SpeedBonusMultiplier is the share of base points paid for answering instantly.
const SpeedBonusMultiplier = 0.5

var basePoints = map[domain.Difficulty]int{
	domain.DifficultyEasy:   500,
	domain.DifficultyMedium: 750,
	domain.DifficultyHard:   1000,
}

// BasePoints returns the points of a correct answer before bonuses.
// Unknown difficulties score as medium.
func BasePoints(d domain.Difficulty) int {
	if p, ok := basePoints[d]; ok {
		return p
	}
	return basePoints[domain.DifficultyMedium]
}

// StreakBonus is a step function over the count of preceding correct answers.
func StreakBonus(streak int) int {
	switch {
	case streak >= 10:
		return 500
	case streak >= 5:
		return 250
	case streak >= 3:
		return 100
	default:
		return 0
	}
}

// Score computes the points of a single answer.
func Score(isCorrect bool, difficulty domain.Difficulty, timeRemaining, timeLimit time.Duration, currentStreak int) int {
	if !isCorrect {
		return 0
	}
	base := BasePoints(difficulty)
	speed := 0
	if timeLimit > 0 {
		remaining := min(max(timeRemaining, 0), timeLimit)
		ratio := float64(remaining) / float64(timeLimit)
		speed = int(math.Floor(ratio * float64(base) * SpeedBonusMultiplier))
	}
	return base + speed + StreakBonus(currentStreak)
}

// CurrentStreak counts correct answers backward from the most recent until a miss.
func CurrentStreak(answers []domain.Answer) int {
	streak := 0
	for i := len(answers) - 1; i >= 0; i-- {
		if !answers[i].IsCorrect {
			break
		}
		streak++
	}
	return streak
}

// ScoreRound applies the buffered submissions of one question to the roster.
// Players without a submission are returned unchanged and get no Answer record.
// A player that already holds an answer for the question is never scored twice.
func ScoreRound(players []domain.Player, q domain.Question, subs map[string]domain.Submission, now time.Time) ([]domain.Player, []domain.RoundAnswer) {
	updated := make([]domain.Player, len(players))
	results := make([]domain.RoundAnswer, 0, len(subs))
	for i, p := range players {
		sub, ok := subs[p.ID]
		if !ok || p.HasAnswered(q.ID) {
			updated[i] = p
			continue
		}
		correct := sub.Option == q.CorrectAnswer
		points := Score(correct, q.Difficulty, sub.TimeRemaining, q.TimeLimit, CurrentStreak(p.Answers))
		submittedAt := sub.ReceivedAt
		if submittedAt.IsZero() {
			submittedAt = now
		}

		p.Answers = append(append([]domain.Answer(nil), p.Answers...), domain.Answer{
			QuestionID:     q.ID,
			SelectedOption: sub.Option,
			TimeRemaining:  sub.TimeRemaining,
			IsCorrect:      correct,
			PointsEarned:   points,
			SubmittedAt:    submittedAt,
		})
		p.Score += points
		updated[i] = p
		results = append(results, domain.RoundAnswer{
			PlayerID:     p.ID,
			Answer:       sub.Option,
			IsCorrect:    correct,
			PointsEarned: points,
		})
	}
	return updated, results
}

// Rank orders players by score descending; ties keep join order.
func Rank(players []domain.Player) []domain.Player {
	ranked := append([]domain.Player(nil), players...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// Leaderboard renders the ranked roster.
func Leaderboard(players []domain.Player) []domain.LeaderboardEntry {
	return lo.Map(Rank(players), func(p domain.Player, i int) domain.LeaderboardEntry {
		return domain.LeaderboardEntry{
			Rank:     i + 1,
			PlayerID: p.ID,
			Nickname: p.Nickname,
			Score:    p.Score,
			IsHost:   p.IsHost,
		}
	})
}

// FinalizeResults computes rankings and aggregate statistics of a game.
func FinalizeResults(s domain.Session) domain.GameResults {
	limits := make(map[string]time.Duration, len(s.Questions))
	for _, q := range s.Questions {
		limits[q.ID] = q.TimeLimit
		if limits[q.ID] <= 0 {
			limits[q.ID] = s.Settings.TimePerQuestion
		}
	}
	latency := func(a domain.Answer) float64 {
		limit, ok := limits[a.QuestionID]
		if !ok {
			limit = s.Settings.TimePerQuestion
		}
		return (limit - a.TimeRemaining).Seconds()
	}

	ranked := Rank(s.Players)
	all := lo.FlatMap(s.Players, func(p domain.Player, _ int) []domain.Answer { return p.Answers })

	stats := domain.GameStats{TotalQuestions: len(s.Questions)}
	if len(all) > 0 {
		correct := lo.CountBy(all, func(a domain.Answer) bool { return a.IsCorrect })
		times := lo.Map(all, func(a domain.Answer, _ int) float64 { return latency(a) })
		stats.AverageAccuracy = percent(correct, len(all))
		stats.FastestAnswer = lo.Min(times)
		stats.SlowestAnswer = lo.Max(times)
	}
	if s.StartedAt != nil && s.FinishedAt != nil {
		stats.TotalPlayTime = s.FinishedAt.Sub(*s.StartedAt).Milliseconds()
	}

	results := make([]domain.PlayerResult, len(ranked))
	for i, p := range ranked {
		correct := lo.CountBy(p.Answers, func(a domain.Answer) bool { return a.IsCorrect })
		r := domain.PlayerResult{
			PlayerID:       p.ID,
			Nickname:       p.Nickname,
			FinalScore:     p.Score,
			Rank:           i + 1,
			CorrectAnswers: correct,
		}
		if n := len(p.Answers); n > 0 {
			r.AverageTime = lo.SumBy(p.Answers, latency) / float64(n)
			r.Accuracy = percent(correct, n)
		}
		results[i] = r
	}

	return domain.GameResults{
		GameID:           s.ID,
		FinalLeaderboard: Leaderboard(s.Players),
		GameStats:        stats,
		PlayerResults:    results,
	}
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
