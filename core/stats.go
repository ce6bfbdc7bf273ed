package core

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DifficultyStats summarizes the searches run at one difficulty.
type DifficultyStats struct {
	Difficulty       int     `json:"difficulty"`
	Count            int     `json:"count"`
	MeanAttempts     float64 `json:"meanAttempts"`
	StdDevAttempts   float64 `json:"stdDevAttempts"`
	ExpectedAttempts float64 `json:"expectedAttempts"` // 16^difficulty
	MeanMillis       float64 `json:"meanMillis"`
	MedianMillis     float64 `json:"medianMillis"`
	MaxMillis        float64 `json:"maxMillis"`
}

// Summarize groups records by difficulty, in ascending difficulty order.
func Summarize(records []MiningRecord) []DifficultyStats {
	byDifficulty := make(map[int][]MiningRecord)
	for _, rec := range records {
		byDifficulty[rec.Difficulty] = append(byDifficulty[rec.Difficulty], rec)
	}

	difficulties := make([]int, 0, len(byDifficulty))
	for d := range byDifficulty {
		difficulties = append(difficulties, d)
	}
	sort.Ints(difficulties)

	out := make([]DifficultyStats, 0, len(difficulties))
	for _, d := range difficulties {
		recs := byDifficulty[d]
		attempts := make([]float64, len(recs))
		millis := make([]float64, len(recs))
		for i, rec := range recs {
			attempts[i] = float64(rec.Attempts)
			millis[i] = float64(rec.Elapsed) / float64(time.Millisecond)
		}

		s := DifficultyStats{
			Difficulty:       d,
			Count:            len(recs),
			MeanAttempts:     stat.Mean(attempts, nil),
			ExpectedAttempts: math.Pow(16, float64(d)),
			MeanMillis:       stat.Mean(millis, nil),
			MaxMillis:        floats.Max(millis),
		}
		if len(attempts) > 1 {
			s.StdDevAttempts = stat.StdDev(attempts, nil)
		}
		sort.Float64s(millis)
		s.MedianMillis = stat.Quantile(0.5, stat.Empirical, millis, nil)
		out = append(out, s)
	}
	return out
}
