package stats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ReadLoopLab/readloop/backend/internal/review"
	"github.com/ReadLoopLab/readloop/backend/internal/srs"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var statsClockAnchor = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:readloop_stats_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&review.Card{}, &review.ReviewRecord{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	service, err := NewService(ServiceConfig{
		Database: db,
		Clock:    func() time.Time { return statsClockAnchor },
	})
	if err != nil {
		t.Fatalf("failed to construct stats service: %v", err)
	}
	return service, db
}

func mustCreate(t *testing.T, db *gorm.DB, value interface{}) {
	t.Helper()
	if err := db.Create(value).Error; err != nil {
		t.Fatalf("failed to seed row: %v", err)
	}
}

func TestComputeAggregatesOwnerHistory(t *testing.T) {
	service, db := newTestService(t)
	mustCreate(t, db, &review.Card{
		CardID: "card-1", OwnerID: "learner-1", BookID: "book-1",
		EaseFactor: 2.5, IntervalDays: 25, Repetitions: 6,
		DueAt: statsClockAnchor.AddDate(0, 0, 10), Status: srs.StatusReview,
		TotalReviews: 6, CorrectReviews: 5, Version: 7,
	})
	mustCreate(t, db, &review.Card{
		CardID: "card-2", OwnerID: "learner-1", BookID: "book-1",
		EaseFactor: 2.3, IntervalDays: 1, Repetitions: 0,
		DueAt: statsClockAnchor.AddDate(0, 0, -1), Status: srs.StatusLearning,
		TotalReviews: 2, CorrectReviews: 1, Version: 3,
	})
	mustCreate(t, db, &review.Card{
		CardID: "card-suspended", OwnerID: "learner-1", BookID: "book-1",
		EaseFactor: 2.5, IntervalDays: 3, Repetitions: 2,
		DueAt: statsClockAnchor.AddDate(0, 0, -5), Status: srs.StatusSuspended,
		TotalReviews: 2, CorrectReviews: 2, Version: 3,
	})
	mustCreate(t, db, &review.Card{
		CardID: "card-foreign", OwnerID: "learner-2", BookID: "book-1",
		EaseFactor: 2.5, IntervalDays: 30, Repetitions: 9,
		DueAt: statsClockAnchor, Status: srs.StatusReview,
		TotalReviews: 9, CorrectReviews: 9, Version: 10,
	})

	mustCreate(t, db, &review.ReviewRecord{
		RecordID: "r-1", CardID: "card-1", OwnerID: "learner-1",
		Rating: 4, ReviewedAt: statsClockAnchor.Add(-2 * time.Hour),
	})
	mustCreate(t, db, &review.ReviewRecord{
		RecordID: "r-2", CardID: "card-2", OwnerID: "learner-1",
		Rating: 1, ReviewedAt: statsClockAnchor.AddDate(0, 0, -1),
	})
	mustCreate(t, db, &review.ReviewRecord{
		RecordID: "r-3", CardID: "card-foreign", OwnerID: "learner-2",
		Rating: 4, ReviewedAt: statsClockAnchor,
	})

	summary, err := service.Compute(context.Background(), Query{
		OwnerID:    "learner-1",
		WindowDays: 7,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.TotalReviews != 10 || summary.CorrectReviews != 8 {
		t.Fatalf("expected totals 10/8, got %d/%d", summary.TotalReviews, summary.CorrectReviews)
	}
	if summary.RetentionRate != 80 {
		t.Fatalf("expected retention 80, got %v", summary.RetentionRate)
	}
	if summary.TotalCards != 3 {
		t.Fatalf("expected 3 cards, got %d", summary.TotalCards)
	}
	if summary.DueCards != 1 {
		t.Fatalf("expected 1 due card, got %d", summary.DueCards)
	}
	if summary.MasteredCards != 1 {
		t.Fatalf("expected 1 mastered card, got %d", summary.MasteredCards)
	}

	if len(summary.History) != 7 {
		t.Fatalf("expected 7 history buckets, got %d", len(summary.History))
	}
	today := summary.History[6]
	if today.Date != "2024-03-15" || today.Reviewed != 1 || today.Correct != 1 {
		t.Fatalf("unexpected today bucket %+v", today)
	}
	yesterday := summary.History[5]
	if yesterday.Reviewed != 1 || yesterday.Incorrect != 1 {
		t.Fatalf("unexpected yesterday bucket %+v", yesterday)
	}

	if summary.Streak.Current != 2 || summary.Streak.Longest != 2 {
		t.Fatalf("unexpected streak %+v", summary.Streak)
	}
	if summary.Streak.LastReviewDay == nil || *summary.Streak.LastReviewDay != "2024-03-15" {
		t.Fatalf("unexpected last review day %v", summary.Streak.LastReviewDay)
	}
}

func TestComputeFiltersByBook(t *testing.T) {
	service, db := newTestService(t)
	mustCreate(t, db, &review.Card{
		CardID: "card-history", OwnerID: "learner-1", BookID: "book-history",
		EaseFactor: 2.5, IntervalDays: 6, Repetitions: 2,
		DueAt: statsClockAnchor.AddDate(0, 0, 3), Status: srs.StatusReview,
		TotalReviews: 2, CorrectReviews: 2, Version: 3,
	})
	mustCreate(t, db, &review.Card{
		CardID: "card-poetry", OwnerID: "learner-1", BookID: "book-poetry",
		EaseFactor: 2.5, IntervalDays: 1, Repetitions: 1,
		DueAt: statsClockAnchor.AddDate(0, 0, -1), Status: srs.StatusLearning,
		TotalReviews: 4, CorrectReviews: 2, Version: 5,
	})
	mustCreate(t, db, &review.ReviewRecord{
		RecordID: "r-1", CardID: "card-history", OwnerID: "learner-1",
		Rating: 3, ReviewedAt: statsClockAnchor.Add(-time.Hour),
	})
	mustCreate(t, db, &review.ReviewRecord{
		RecordID: "r-2", CardID: "card-poetry", OwnerID: "learner-1",
		Rating: 2, ReviewedAt: statsClockAnchor.Add(-time.Hour),
	})

	summary, err := service.Compute(context.Background(), Query{
		OwnerID: "learner-1",
		BookID:  "book-history",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.TotalCards != 1 {
		t.Fatalf("expected 1 card in the book, got %d", summary.TotalCards)
	}
	if summary.TotalReviews != 2 || summary.CorrectReviews != 2 {
		t.Fatalf("expected totals 2/2, got %d/%d", summary.TotalReviews, summary.CorrectReviews)
	}
	if summary.RetentionRate != 100 {
		t.Fatalf("expected retention 100, got %v", summary.RetentionRate)
	}
	today := summary.History[len(summary.History)-1]
	if today.Reviewed != 1 || today.Correct != 1 || today.Incorrect != 0 {
		t.Fatalf("expected only the book's review in history, got %+v", today)
	}
}

func TestComputeEmptyOwner(t *testing.T) {
	service, _ := newTestService(t)

	summary, err := service.Compute(context.Background(), Query{OwnerID: "learner-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.RetentionRate != 0 || summary.TotalReviews != 0 || summary.TotalCards != 0 {
		t.Fatalf("expected zeroed summary, got %+v", summary)
	}
	if len(summary.History) != defaultWindowDays {
		t.Fatalf("expected %d zero-filled buckets, got %d", defaultWindowDays, len(summary.History))
	}
	if summary.Streak.Current != 0 || summary.Streak.Longest != 0 {
		t.Fatalf("expected empty streak, got %+v", summary.Streak)
	}
}

func TestComputeClampsWindow(t *testing.T) {
	service, _ := newTestService(t)

	summary, err := service.Compute(context.Background(), Query{
		OwnerID:    "learner-1",
		WindowDays: 10000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summary.History) != maxWindowDays {
		t.Fatalf("expected window clamped to %d, got %d", maxWindowDays, len(summary.History))
	}
}

func TestComputeRequiresOwner(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.Compute(context.Background(), Query{})
	if !errors.Is(err, review.ErrInvalidOwnerID) {
		t.Fatalf("expected ErrInvalidOwnerID, got %v", err)
	}
	if got := ErrorCode(err); got != "stats.compute.missing_owner_id" {
		t.Fatalf("unexpected code %s", got)
	}
}
