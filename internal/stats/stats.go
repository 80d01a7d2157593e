package stats

import (
	"math"
	"sort"
	"time"
)

const (
	successRatingCutoff = 3
	dayFormat           = "2006-01-02"
)

// ReviewPoint is the slice of a review record the aggregations need.
type ReviewPoint struct {
	At     time.Time
	Rating int
}

// DayBucket is one calendar day of review history.
type DayBucket struct {
	Date      string `json:"date"`
	Reviewed  int    `json:"reviewed"`
	Correct   int    `json:"correct"`
	Incorrect int    `json:"incorrect"`
}

// Streak summarizes consecutive review days.
type Streak struct {
	Current       int     `json:"current"`
	Longest       int     `json:"longest"`
	LastReviewDay *string `json:"last_review_day"`
}

// RetentionRate returns the share of correct reviews as a percentage rounded
// to two decimals. An empty history yields 0, never NaN.
func RetentionRate(correct, total int64) float64 {
	if total == 0 {
		return 0
	}
	rate := float64(correct) / float64(total) * 100
	return math.Round(rate*100) / 100
}

// BuildHistory buckets reviews by UTC calendar day over a window of
// windowDays days ending at ref. Every day in the window appears exactly
// once, zero-filled when nothing was reviewed.
func BuildHistory(points []ReviewPoint, windowDays int, ref time.Time) []DayBucket {
	if windowDays <= 0 {
		return []DayBucket{}
	}

	start := utcDay(ref).AddDate(0, 0, -(windowDays - 1))
	buckets := make([]DayBucket, windowDays)
	index := make(map[string]int, windowDays)
	for i := 0; i < windowDays; i++ {
		date := start.AddDate(0, 0, i).Format(dayFormat)
		buckets[i] = DayBucket{Date: date}
		index[date] = i
	}

	for _, point := range points {
		date := utcDay(point.At).Format(dayFormat)
		i, ok := index[date]
		if !ok {
			continue
		}
		buckets[i].Reviewed++
		if point.Rating >= successRatingCutoff {
			buckets[i].Correct++
		} else {
			buckets[i].Incorrect++
		}
	}

	return buckets
}

// ComputeStreak derives the current and longest runs of consecutive UTC
// review days. Multiple reviews on one day count once. The current streak is
// anchored at ref's day or the day before; anything older means it is broken.
func ComputeStreak(times []time.Time, ref time.Time) Streak {
	days := distinctDays(times)
	if len(days) == 0 {
		return Streak{}
	}

	lastDay := days[len(days)-1]
	lastFormatted := lastDay.Format(dayFormat)

	longest := 1
	run := 1
	for i := 1; i < len(days); i++ {
		if days[i].Sub(days[i-1]) == 24*time.Hour {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}

	today := utcDay(ref)
	yesterday := today.AddDate(0, 0, -1)

	current := 0
	if lastDay.Equal(today) || lastDay.Equal(yesterday) {
		current = 1
		for i := len(days) - 2; i >= 0; i-- {
			if days[i+1].Sub(days[i]) != 24*time.Hour {
				break
			}
			current++
		}
	}

	return Streak{
		Current:       current,
		Longest:       longest,
		LastReviewDay: &lastFormatted,
	}
}

// distinctDays collapses timestamps to sorted distinct UTC midnights.
func distinctDays(times []time.Time) []time.Time {
	seen := make(map[time.Time]struct{}, len(times))
	for _, t := range times {
		seen[utcDay(t)] = struct{}{}
	}
	days := make([]time.Time, 0, len(seen))
	for day := range seen {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

func utcDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
