package stats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ReadLoopLab/readloop/backend/internal/review"
	"github.com/ReadLoopLab/readloop/backend/internal/srs"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultWindowDays = 30
	maxWindowDays     = 365

	masteryRepetitions = 5
	masteryIntervalMin = 21
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError carries a stable dotted error code alongside its cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "stats.service.new"
	opCompute    = "stats.compute"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ErrorCode extracts the stable code from a service error, empty otherwise.
func ErrorCode(err error) string {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code()
	}
	return ""
}

// ServiceConfig describes the dependencies of the statistics service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service derives learner statistics from persisted cards and the
// append-only review record stream. Read-only: it never mutates state and
// all its queries are safe to retry.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the statistics service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Query selects whose statistics to compute and over which history window.
type Query struct {
	OwnerID    review.OwnerID
	WindowDays int
	// BookID restricts cards and reviews to one book when non-empty.
	BookID string
}

// Summary is the derived statistics snapshot for one learner.
type Summary struct {
	RetentionRate  float64     `json:"retention_rate"`
	TotalReviews   int64       `json:"total_reviews"`
	CorrectReviews int64       `json:"correct_reviews"`
	TotalCards     int64       `json:"total_cards"`
	DueCards       int64       `json:"due_cards"`
	MasteredCards  int64       `json:"mastered_cards"`
	History        []DayBucket `json:"history"`
	Streak         Streak      `json:"streak"`
}

// Compute derives the full statistics summary for an owner.
func (s *Service) Compute(ctx context.Context, query Query) (Summary, error) {
	if query.OwnerID.String() == "" {
		s.logError(opCompute, "missing_owner_id", review.ErrInvalidOwnerID)
		return Summary{}, newServiceError(opCompute, "missing_owner_id", review.ErrInvalidOwnerID)
	}

	windowDays := query.WindowDays
	if windowDays <= 0 {
		windowDays = defaultWindowDays
	}
	if windowDays > maxWindowDays {
		windowDays = maxWindowDays
	}

	now := s.clock().UTC()
	book := strings.TrimSpace(query.BookID)

	cards := s.db.WithContext(ctx).Model(&review.Card{}).
		Where("owner_id = ?", query.OwnerID.String())
	if book != "" {
		cards = cards.Where("book_id = ?", book)
	}

	var totals struct {
		TotalReviews   int64
		CorrectReviews int64
	}
	if err := cards.Session(&gorm.Session{}).
		Select("COALESCE(SUM(total_reviews), 0) AS total_reviews, COALESCE(SUM(correct_reviews), 0) AS correct_reviews").
		Scan(&totals).Error; err != nil {
		s.logError(opCompute, "totals_query_failed", err, zap.String("owner_id", query.OwnerID.String()))
		return Summary{}, newServiceError(opCompute, "totals_query_failed", err)
	}

	var totalCards int64
	if err := cards.Session(&gorm.Session{}).Count(&totalCards).Error; err != nil {
		s.logError(opCompute, "card_count_failed", err, zap.String("owner_id", query.OwnerID.String()))
		return Summary{}, newServiceError(opCompute, "card_count_failed", err)
	}

	var dueCards int64
	if err := cards.Session(&gorm.Session{}).
		Where("status <> ? AND due_at <= ?", srs.StatusSuspended, now).
		Count(&dueCards).Error; err != nil {
		s.logError(opCompute, "due_count_failed", err, zap.String("owner_id", query.OwnerID.String()))
		return Summary{}, newServiceError(opCompute, "due_count_failed", err)
	}

	var masteredCards int64
	if err := cards.Session(&gorm.Session{}).
		Where("repetitions >= ? AND interval_days >= ?", masteryRepetitions, masteryIntervalMin).
		Count(&masteredCards).Error; err != nil {
		s.logError(opCompute, "mastered_count_failed", err, zap.String("owner_id", query.OwnerID.String()))
		return Summary{}, newServiceError(opCompute, "mastered_count_failed", err)
	}

	records := s.db.WithContext(ctx).Model(&review.ReviewRecord{}).
		Where("owner_id = ?", query.OwnerID.String())
	if book != "" {
		records = records.Where("card_id IN (?)",
			s.db.Model(&review.Card{}).Select("card_id").Where("book_id = ?", book))
	}

	var rows []review.ReviewRecord
	if err := records.
		Order("reviewed_at ASC").
		Find(&rows).Error; err != nil {
		s.logError(opCompute, "records_query_failed", err, zap.String("owner_id", query.OwnerID.String()))
		return Summary{}, newServiceError(opCompute, "records_query_failed", err)
	}

	points := make([]ReviewPoint, 0, len(rows))
	times := make([]time.Time, 0, len(rows))
	for _, row := range rows {
		points = append(points, ReviewPoint{At: row.ReviewedAt, Rating: row.Rating})
		times = append(times, row.ReviewedAt)
	}

	return Summary{
		RetentionRate:  RetentionRate(totals.CorrectReviews, totals.TotalReviews),
		TotalReviews:   totals.TotalReviews,
		CorrectReviews: totals.CorrectReviews,
		TotalCards:     totalCards,
		DueCards:       dueCards,
		MasteredCards:  masteredCards,
		History:        BuildHistory(points, windowDays, now),
		Streak:         ComputeStreak(times, now),
	}, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("stats service error", attrs...)
}
