package review

import (
	"context"
	"strings"
	"time"

	"github.com/ReadLoopLab/readloop/backend/internal/progress"
	"github.com/ReadLoopLab/readloop/backend/internal/srs"
	"go.uber.org/zap"
)

const (
	// DefaultDailyCap applies when neither the owner nor the deployment
	// configures one.
	DefaultDailyCap = 20
	minDailyCap     = 5
	maxDailyCap     = 500
	// maxDueBatch bounds a single due-set response regardless of caps.
	maxDueBatch = 100

	hoursPerDay = 24
)

// DueQuery selects the cards eligible for review now.
type DueQuery struct {
	OwnerID OwnerID
	// BookID restricts the due set to one book when non-empty.
	BookID string
	// Limit overrides the owner's daily cap for this call when positive.
	Limit int
}

// DueCard pairs a card with its read-time overdue projection. The projection
// is presentation only and never written back.
type DueCard struct {
	Card        Card
	IsOverdue   bool
	OverdueDays int
}

// DueSet is the ordered due selection plus the owner's daily budget.
type DueSet struct {
	Cards          []DueCard
	DailyCap       int
	ReviewedToday  int
	RemainingToday int
}

// DueCards returns the cards due for the owner, most overdue first. Ties on
// the due date order by card id so pagination stays stable.
func (s *Service) DueCards(ctx context.Context, query DueQuery) (DueSet, error) {
	if query.OwnerID.String() == "" {
		s.logError(opDueCards, "missing_owner_id", ErrInvalidOwnerID)
		return DueSet{}, newServiceError(opDueCards, "missing_owner_id", ErrInvalidOwnerID)
	}

	now := s.clock().UTC()
	dailyCap := s.ownerDailyCap(ctx, query.OwnerID.String())

	limit := query.Limit
	if limit <= 0 {
		limit = dailyCap
	}
	if limit > maxDueBatch {
		limit = maxDueBatch
	}

	selection := s.db.WithContext(ctx).
		Where("owner_id = ? AND status <> ? AND due_at <= ?",
			query.OwnerID.String(), srs.StatusSuspended, now)
	if book := strings.TrimSpace(query.BookID); book != "" {
		selection = selection.Where("book_id = ?", book)
	}

	var cards []Card
	if err := selection.
		Order("due_at ASC, card_id ASC").
		Limit(limit).
		Find(&cards).Error; err != nil {
		s.logError(opDueCards, "query_failed", err, zap.String("owner_id", query.OwnerID.String()))
		return DueSet{}, newServiceError(opDueCards, "query_failed", err)
	}

	due := make([]DueCard, 0, len(cards))
	for _, card := range cards {
		due = append(due, DueCard{
			Card:        card,
			IsOverdue:   card.DueAt.Before(now),
			OverdueDays: overdueDays(card.DueAt, now),
		})
	}

	reviewedToday, err := s.reviewedToday(ctx, query.OwnerID.String(), now)
	if err != nil {
		return DueSet{}, err
	}

	remaining := dailyCap - reviewedToday
	if remaining < 0 {
		remaining = 0
	}

	return DueSet{
		Cards:          due,
		DailyCap:       dailyCap,
		ReviewedToday:  reviewedToday,
		RemainingToday: remaining,
	}, nil
}

// ownerDailyCap reads the owner's configured cap from their progress row,
// falling back to the service default when absent or unset.
func (s *Service) ownerDailyCap(ctx context.Context, ownerID string) int {
	var row progress.Progress
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Take(&row).Error
	if err != nil || row.DailyCap <= 0 {
		return s.dailyCap
	}
	return clampDailyCap(row.DailyCap)
}

// reviewedToday counts reviews recorded during the current UTC calendar day.
func (s *Service) reviewedToday(ctx context.Context, ownerID string, now time.Time) (int, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var count int64
	err := s.db.WithContext(ctx).Model(&ReviewRecord{}).
		Where("owner_id = ? AND reviewed_at >= ? AND reviewed_at < ?",
			ownerID, dayStart, dayStart.AddDate(0, 0, 1)).
		Count(&count).Error
	if err != nil {
		s.logError(opDueCards, "count_failed", err, zap.String("owner_id", ownerID))
		return 0, newServiceError(opDueCards, "count_failed", err)
	}
	return int(count), nil
}

// overdueDays projects how many whole days a card has been waiting; zero for
// cards that are due but not yet overdue.
func overdueDays(dueAt, now time.Time) int {
	if !dueAt.Before(now) {
		return 0
	}
	return int(now.Sub(dueAt).Hours() / hoursPerDay)
}

// clampDailyCap silently bounds a configured cap to the accepted range.
func clampDailyCap(value int) int {
	if value <= 0 {
		return DefaultDailyCap
	}
	if value < minDailyCap {
		return minDailyCap
	}
	if value > maxDailyCap {
		return maxDailyCap
	}
	return value
}
