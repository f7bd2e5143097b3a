package models

import (
	"math"
	"time"
)

// DeckStats summarizes review progress for a deck.
type DeckStats struct {
	TotalCards      int     `json:"totalCards"`
	ReviewedCards   int     `json:"reviewedCards"`
	UnReviewedCards int     `json:"unReviewedCards"`
	AvgDifficulty   float64 `json:"avgDifficulty"`
	TotalReviews    int     `json:"totalReviews"`
	Accuracy        float64 `json:"accuracy"`
}

// ComputeDeckStats aggregates cards into DeckStats. Averages are rounded to
// one decimal and are zero when there is nothing to divide by.
func ComputeDeckStats(cards []Card) DeckStats {
	stats := DeckStats{TotalCards: len(cards)}

	var difficultySum float64
	var correct int
	for _, c := range cards {
		if c.LastReviewed != nil {
			stats.ReviewedCards++
		}
		difficultySum += c.Difficulty
		stats.TotalReviews += c.ReviewCount
		correct += c.CorrectCount
	}
	stats.UnReviewedCards = stats.TotalCards - stats.ReviewedCards

	if stats.TotalCards > 0 {
		stats.AvgDifficulty = round1(difficultySum / float64(stats.TotalCards))
	}
	if stats.TotalReviews > 0 {
		stats.Accuracy = round1(float64(correct) / float64(stats.TotalReviews) * 100)
	}
	return stats
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

const (
	MaxDifficulty   = 5.0
	missInterval    = 10 * time.Minute
	maxHitInterval  = 60 * 24 * time.Hour
	baseHitInterval = 24 * time.Hour
)

// RecordReview applies one review outcome to the card at now.
//
// Difficulty is the miss ratio scaled to 0..MaxDifficulty. A miss brings the
// card back after ten minutes; the n-th correct answer pushes it out by
// 2^(n-1) days, capped at sixty.
func (c *Card) RecordReview(correct bool, now time.Time) {
	c.ReviewCount++
	if correct {
		c.CorrectCount++
	}
	reviewed := now
	c.LastReviewed = &reviewed

	misses := c.ReviewCount - c.CorrectCount
	c.Difficulty = round1(float64(misses) / float64(c.ReviewCount) * MaxDifficulty)

	interval := missInterval
	if correct {
		interval = baseHitInterval
		for i := 1; i < c.CorrectCount && interval < maxHitInterval; i++ {
			interval *= 2
		}
		if interval > maxHitInterval {
			interval = maxHitInterval
		}
	}
	next := now.Add(interval)
	c.NextReview = &next
}
