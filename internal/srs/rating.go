package srs

import (
	"errors"
	"fmt"
)

// ErrInvalidRating indicates a review rating outside the accepted 1-4 range.
var ErrInvalidRating = errors.New("srs: invalid rating")

// Rating is a validated review outcome on the four-point scale:
// 1 = again, 2 = hard, 3 = good, 4 = easy. Ratings below 3 are lapses.
type Rating int

const (
	RatingAgain Rating = 1
	RatingHard  Rating = 2
	RatingGood  Rating = 3
	RatingEasy  Rating = 4
)

// NewRating validates a raw rating value.
func NewRating(value int) (Rating, error) {
	if value < int(RatingAgain) || value > int(RatingEasy) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidRating, value)
	}
	return Rating(value), nil
}

// Int exposes the raw rating value.
func (r Rating) Int() int {
	return int(r)
}

// IsSuccess reports whether the rating counts as a correct recall.
func (r Rating) IsSuccess() bool {
	return r >= RatingGood
}
