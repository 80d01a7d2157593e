package review

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ReadLoopLab/readloop/backend/internal/srs"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidCardID indicates that a card identifier is empty or exceeds storage bounds.
	ErrInvalidCardID = errors.New("review: invalid card id")
	// ErrInvalidOwnerID indicates that an owner identifier is empty or exceeds storage bounds.
	ErrInvalidOwnerID = errors.New("review: invalid owner id")
	// ErrInvalidResponseTime indicates a non-positive response time.
	ErrInvalidResponseTime = errors.New("review: invalid response time")
)

// CardID represents a validated card identifier.
type CardID string

// NewCardID validates raw input and returns a CardID.
func NewCardID(rawInput string) (CardID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidCardID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidCardID, maxIdentifierLength)
	}
	return CardID(trimmed), nil
}

// String returns the underlying string identifier.
func (id CardID) String() string {
	return string(id)
}

// OwnerID represents a validated learner identifier.
type OwnerID string

// NewOwnerID validates raw input and returns an OwnerID.
func NewOwnerID(rawInput string) (OwnerID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidOwnerID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidOwnerID, maxIdentifierLength)
	}
	return OwnerID(trimmed), nil
}

// String returns the underlying string identifier.
func (id OwnerID) String() string {
	return string(id)
}

// ResponseTime represents a validated review response time in milliseconds.
type ResponseTime int

// NewResponseTime validates the value and returns a ResponseTime.
func NewResponseTime(value int) (ResponseTime, error) {
	if value <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidResponseTime, value)
	}
	return ResponseTime(value), nil
}

// Int exposes the raw millisecond value.
func (rt ResponseTime) Int() int {
	return int(rt)
}

// Card models the persisted scheduling state for one learning item. It is a
// denormalized projection of the review record stream, kept alongside the
// records so due-set queries stay cheap; both are written in the same
// transaction.
type Card struct {
	CardID         string     `gorm:"column:card_id;primaryKey;size:190;not null"`
	OwnerID        string     `gorm:"column:owner_id;size:190;not null;index:idx_cards_owner_due,priority:1"`
	BookID         string     `gorm:"column:book_id;size:190;not null;default:'';index"`
	EaseFactor     float64    `gorm:"column:ease_factor;not null;default:2.5"`
	IntervalDays   int        `gorm:"column:interval_days;not null;default:0"`
	Repetitions    int        `gorm:"column:repetitions;not null;default:0"`
	DueAt          time.Time  `gorm:"column:due_at;not null;index:idx_cards_owner_due,priority:3"`
	Status         srs.Status `gorm:"column:status;size:16;not null;default:'NEW';index:idx_cards_owner_due,priority:2"`
	TotalReviews   int64      `gorm:"column:total_reviews;not null;default:0"`
	CorrectReviews int64      `gorm:"column:correct_reviews;not null;default:0"`
	Version        int64      `gorm:"column:version;not null;default:1"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Card) TableName() string {
	return "cards"
}

// NewCard returns the scheduling state of a freshly authored card: never
// reviewed, due immediately.
func NewCard(cardID CardID, ownerID OwnerID, bookID string, now time.Time) Card {
	return Card{
		CardID:     cardID.String(),
		OwnerID:    ownerID.String(),
		BookID:     strings.TrimSpace(bookID),
		EaseFactor: srs.InitialEaseFactor,
		DueAt:      now,
		Status:     srs.StatusNew,
		Version:    1,
	}
}

// ReviewRecord captures one submitted review as an immutable, append-only
// fact, including before and after snapshots of the scheduling fields. It is
// the system of record for all statistics.
type ReviewRecord struct {
	RecordID          string    `gorm:"column:record_id;primaryKey;size:190;not null"`
	CardID            string    `gorm:"column:card_id;size:190;not null;index"`
	OwnerID           string    `gorm:"column:owner_id;size:190;not null;index:idx_reviews_owner_time,priority:1"`
	Rating            int       `gorm:"column:rating;not null"`
	ResponseTimeMs    *int      `gorm:"column:response_time_ms"`
	ReviewedAt        time.Time `gorm:"column:reviewed_at;not null;index:idx_reviews_owner_time,priority:2"`
	EaseBefore        float64   `gorm:"column:ease_before;not null"`
	IntervalBefore    int       `gorm:"column:interval_before;not null"`
	RepetitionsBefore int       `gorm:"column:repetitions_before;not null"`
	EaseAfter         float64   `gorm:"column:ease_after;not null"`
	IntervalAfter     int       `gorm:"column:interval_after;not null"`
	RepetitionsAfter  int       `gorm:"column:repetitions_after;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ReviewRecord) TableName() string {
	return "review_records"
}
