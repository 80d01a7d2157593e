package progress

import "math"

const levelStepExperience = 100

// LevelFromExperience derives the learner level from lifetime experience.
// Level n is reached at 100*(n-1)^2 points, so the curve starts at level 1
// for zero experience and each level costs progressively more.
func LevelFromExperience(totalExperience int64) int {
	if totalExperience <= 0 {
		return 1
	}
	return int(math.Sqrt(float64(totalExperience)/levelStepExperience)) + 1
}

// ExperienceForLevel returns the experience threshold at which the given
// level begins. Levels at or below 1 cost nothing.
func ExperienceForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	n := int64(level - 1)
	return levelStepExperience * n * n
}
