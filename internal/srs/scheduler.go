package srs

import (
	"math"
	"time"
)

const (
	// MinEaseFactor is the SM-2 floor below which ease never drops.
	MinEaseFactor = 1.3
	// InitialEaseFactor is assigned to cards that have never been reviewed.
	InitialEaseFactor = 2.5

	lapsePenalty        = 0.2
	firstSuccessDays    = 1
	secondSuccessDays   = 6
	lapseRetryDays      = 1
	successRatingCutoff = 3
)

// ScheduleState carries the scheduling fields the algorithm reads.
type ScheduleState struct {
	EaseFactor  float64
	Interval    int
	Repetitions int
}

// ScheduleResult is the deterministic outcome of applying one review.
type ScheduleResult struct {
	EaseFactor  float64
	Interval    int
	Repetitions int
	DueAt       time.Time
	IsLapse     bool
}

// NextState applies the SM-2 family update for a single review. It is a pure
// function: no clock reads beyond the supplied now, identical inputs yield
// identical outputs.
//
// A rating below 3 is a lapse: repetitions reset, the card comes back
// tomorrow, and the ease factor takes a fixed penalty clamped to the floor.
// A rating of 3 or 4 is a success: the interval ladder runs 1 day, 6 days,
// then round(interval * ease), and the ease factor moves by the SM-2
// quality delta with the four-point rating mapped onto the 0-5 quality
// scale as q = rating + 1.
func NextState(current ScheduleState, rating Rating, now time.Time) ScheduleResult {
	if rating.Int() < successRatingCutoff {
		ease := clampEase(current.EaseFactor - lapsePenalty)
		return ScheduleResult{
			EaseFactor:  ease,
			Interval:    lapseRetryDays,
			Repetitions: 0,
			DueAt:       now.AddDate(0, 0, lapseRetryDays),
			IsLapse:     true,
		}
	}

	ease := clampEase(current.EaseFactor + easeDelta(rating))
	repetitions := current.Repetitions + 1

	var interval int
	switch repetitions {
	case 1:
		interval = firstSuccessDays
	case 2:
		interval = secondSuccessDays
	default:
		interval = int(math.Round(float64(current.Interval) * ease))
		if interval < 1 {
			interval = 1
		}
	}

	return ScheduleResult{
		EaseFactor:  ease,
		Interval:    interval,
		Repetitions: repetitions,
		DueAt:       now.AddDate(0, 0, interval),
		IsLapse:     false,
	}
}

// easeDelta evaluates the canonical SM-2 adjustment
// EF' = EF + (0.1 - (5-q)*(0.08 + (5-q)*0.02)) with q = rating + 1.
func easeDelta(rating Rating) float64 {
	q := float64(rating.Int() + 1)
	return 0.1 - (5-q)*(0.08+(5-q)*0.02)
}

func clampEase(ease float64) float64 {
	if ease < MinEaseFactor {
		return MinEaseFactor
	}
	return ease
}
