package srs

const (
	baseExperience = 10

	masteryRepetitions = 5
	masteryInterval    = 21
)

// ExperienceForRating maps a review outcome to the experience points it
// earns: nothing for a blackout, half the base for a hard recall, the base
// for a good one, and one and a half times the base (floored) for easy.
func ExperienceForRating(rating Rating) int {
	switch rating {
	case RatingAgain:
		return 0
	case RatingHard:
		return baseExperience / 2
	case RatingEasy:
		return baseExperience * 3 / 2
	default:
		return baseExperience
	}
}

// IsMastered reports whether a card's schedule has crossed the mastery
// threshold. Evaluated before and after an update to detect the crossing;
// the flag is informational and never stored.
func IsMastered(repetitions, interval int) bool {
	return repetitions >= masteryRepetitions && interval >= masteryInterval
}
