package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ReadLoopLab/readloop/backend/internal/progress"
	"github.com/ReadLoopLab/readloop/backend/internal/srs"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()

	// ErrCardNotFound indicates the requested card does not exist.
	ErrCardNotFound = errors.New("review: card not found")
	// ErrForbidden indicates the card belongs to a different owner.
	ErrForbidden = errors.New("review: card owned by another learner")
	// ErrCardSuspended indicates a review was attempted on a suspended card.
	ErrCardSuspended = errors.New("review: card is suspended")
	// ErrConflict indicates a concurrent writer advanced the card first.
	ErrConflict = errors.New("review: concurrent card update")
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
	opServiceNew = "review.service.new"
	opSubmit     = "review.submit"
	opDueCards   = "review.due_cards"
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

// ServiceConfig describes the dependencies of the review service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	// IDProvider issues identifiers for appended review records.
	IDProvider IDProvider
	Logger     *zap.Logger
	// DefaultDailyCap applies to owners without a configured cap. Values
	// outside the accepted range are clamped, not rejected.
	DefaultDailyCap int
}

// IDProvider issues unique identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// Service applies reviews transactionally and selects due cards. The
// scheduling math itself lives in the srs package as pure functions; this
// service owns the single read-modify-write against storage.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
	dailyCap   int
}

// NewService constructs the review service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
		dailyCap:   clampDailyCap(cfg.DefaultDailyCap),
	}, nil
}

// SubmitRequest is one review submission.
type SubmitRequest struct {
	CardID         CardID
	OwnerID        OwnerID
	Rating         srs.Rating
	ResponseTimeMs *ResponseTime
}

// ReviewResult is the snapshot returned after a committed review.
type ReviewResult struct {
	Card            Card
	Record          ReviewRecord
	IsLapse         bool
	ExperienceGain  int
	TotalExperience int64
	Level           int
	LeveledUp       bool
	NewlyMastered   bool
}

// SubmitReview atomically applies one review: the card's scheduling state,
// the appended review record, and the learner progress row all commit
// together or not at all. Concurrent reviews of the same card serialize on
// the row lock, and the version check rejects any writer that lost the race
// anyway.
func (s *Service) SubmitReview(ctx context.Context, req SubmitRequest) (ReviewResult, error) {
	if _, err := srs.NewRating(req.Rating.Int()); err != nil {
		s.logError(opSubmit, "invalid_rating", err, zap.String("card_id", req.CardID.String()))
		return ReviewResult{}, newServiceError(opSubmit, "invalid_rating", err)
	}
	if req.ResponseTimeMs != nil && req.ResponseTimeMs.Int() <= 0 {
		s.logError(opSubmit, "invalid_response_time", ErrInvalidResponseTime,
			zap.String("card_id", req.CardID.String()))
		return ReviewResult{}, newServiceError(opSubmit, "invalid_response_time", ErrInvalidResponseTime)
	}

	var result ReviewResult
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var card Card
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("card_id = ?", req.CardID.String()).
			Take(&card).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opSubmit, "card_not_found", ErrCardNotFound)
		}
		if err != nil {
			s.logError(opSubmit, "card_select_failed", err, zap.String("card_id", req.CardID.String()))
			return newServiceError(opSubmit, "card_select_failed", err)
		}
		if card.OwnerID != req.OwnerID.String() {
			return newServiceError(opSubmit, "forbidden", ErrForbidden)
		}
		if card.Status == srs.StatusSuspended {
			return newServiceError(opSubmit, "card_suspended", ErrCardSuspended)
		}

		now := s.clock().UTC()
		masteredBefore := srs.IsMastered(card.Repetitions, card.IntervalDays)

		scheduled := srs.NextState(srs.ScheduleState{
			EaseFactor:  card.EaseFactor,
			Interval:    card.IntervalDays,
			Repetitions: card.Repetitions,
		}, req.Rating, now)
		nextStatus := srs.NextStatus(card.Status, scheduled.Repetitions, scheduled.Interval, scheduled.IsLapse)
		experienceGain := srs.ExperienceForRating(req.Rating)

		updated := card
		updated.EaseFactor = scheduled.EaseFactor
		updated.IntervalDays = scheduled.Interval
		updated.Repetitions = scheduled.Repetitions
		updated.DueAt = scheduled.DueAt
		updated.Status = nextStatus
		updated.TotalReviews = card.TotalReviews + 1
		if req.Rating.IsSuccess() {
			updated.CorrectReviews = card.CorrectReviews + 1
		}
		updated.Version = card.Version + 1
		updated.UpdatedAt = now

		applied := tx.Model(&Card{}).
			Where("card_id = ? AND version = ?", card.CardID, card.Version).
			Updates(map[string]interface{}{
				"ease_factor":     updated.EaseFactor,
				"interval_days":   updated.IntervalDays,
				"repetitions":     updated.Repetitions,
				"due_at":          updated.DueAt,
				"status":          updated.Status,
				"total_reviews":   updated.TotalReviews,
				"correct_reviews": updated.CorrectReviews,
				"version":         updated.Version,
				"updated_at":      updated.UpdatedAt,
			})
		if applied.Error != nil {
			s.logError(opSubmit, "card_update_failed", applied.Error, zap.String("card_id", card.CardID))
			return newServiceError(opSubmit, "card_update_failed", applied.Error)
		}
		if applied.RowsAffected == 0 {
			return newServiceError(opSubmit, "conflict", ErrConflict)
		}

		recordID, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opSubmit, "id_generation_failed", err, zap.String("card_id", card.CardID))
			return newServiceError(opSubmit, "id_generation_failed", err)
		}
		record := ReviewRecord{
			RecordID:          recordID,
			CardID:            card.CardID,
			OwnerID:           card.OwnerID,
			Rating:            req.Rating.Int(),
			ReviewedAt:        now,
			EaseBefore:        card.EaseFactor,
			IntervalBefore:    card.IntervalDays,
			RepetitionsBefore: card.Repetitions,
			EaseAfter:         updated.EaseFactor,
			IntervalAfter:     updated.IntervalDays,
			RepetitionsAfter:  updated.Repetitions,
		}
		if req.ResponseTimeMs != nil {
			ms := req.ResponseTimeMs.Int()
			record.ResponseTimeMs = &ms
		}
		if err := tx.Create(&record).Error; err != nil {
			s.logError(opSubmit, "record_insert_failed", err, zap.String("card_id", card.CardID))
			return newServiceError(opSubmit, "record_insert_failed", err)
		}

		learner, err := s.upsertProgress(tx, card.OwnerID, experienceGain, now)
		if err != nil {
			return err
		}

		result = ReviewResult{
			Card:            updated,
			Record:          record,
			IsLapse:         scheduled.IsLapse,
			ExperienceGain:  experienceGain,
			TotalExperience: learner.TotalExperience,
			Level:           learner.Level,
			LeveledUp:       learner.leveledUp,
			NewlyMastered:   !masteredBefore && srs.IsMastered(updated.Repetitions, updated.IntervalDays),
		}
		return nil
	})

	if txErr != nil {
		return ReviewResult{}, txErr
	}
	return result, nil
}

type progressOutcome struct {
	TotalExperience int64
	Level           int
	leveledUp       bool
}

// upsertProgress increments lifetime experience and recomputes the level
// inside the caller's transaction, creating the row on first review.
func (s *Service) upsertProgress(tx *gorm.DB, ownerID string, experienceGain int, now time.Time) (progressOutcome, error) {
	var row progress.Progress
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_id = ?", ownerID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		total := int64(experienceGain)
		level := progress.LevelFromExperience(total)
		row = progress.Progress{
			OwnerID:         ownerID,
			TotalExperience: total,
			Level:           level,
			LastActivityAt:  now,
		}
		if err := tx.Create(&row).Error; err != nil {
			s.logError(opSubmit, "progress_insert_failed", err, zap.String("owner_id", ownerID))
			return progressOutcome{}, newServiceError(opSubmit, "progress_insert_failed", err)
		}
		return progressOutcome{TotalExperience: total, Level: level, leveledUp: level > 1}, nil
	}
	if err != nil {
		s.logError(opSubmit, "progress_select_failed", err, zap.String("owner_id", ownerID))
		return progressOutcome{}, newServiceError(opSubmit, "progress_select_failed", err)
	}

	previousLevel := row.Level
	row.TotalExperience += int64(experienceGain)
	row.Level = progress.LevelFromExperience(row.TotalExperience)
	row.LastActivityAt = now
	if err := tx.Save(&row).Error; err != nil {
		s.logError(opSubmit, "progress_update_failed", err, zap.String("owner_id", ownerID))
		return progressOutcome{}, newServiceError(opSubmit, "progress_update_failed", err)
	}

	return progressOutcome{
		TotalExperience: row.TotalExperience,
		Level:           row.Level,
		leveledUp:       row.Level > previousLevel,
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
	s.loggerOrDefault().Error("review service error", attrs...)
}
