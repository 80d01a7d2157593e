package review

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ReadLoopLab/readloop/backend/internal/progress"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var testClockAnchor = time.Unix(1700000600, 0).UTC()

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

func mustCardID(t *testing.T, value string) CardID {
	t.Helper()
	id, err := NewCardID(value)
	if err != nil {
		t.Fatalf("unexpected card id error: %v", err)
	}
	return id
}

func mustOwnerID(t *testing.T, value string) OwnerID {
	t.Helper()
	id, err := NewOwnerID(value)
	if err != nil {
		t.Fatalf("unexpected owner id error: %v", err)
	}
	return id
}

func mustResponseTime(t *testing.T, value int) *ResponseTime {
	t.Helper()
	rt, err := NewResponseTime(value)
	if err != nil {
		t.Fatalf("unexpected response time error: %v", err)
	}
	return &rt
}

func newTestService(t *testing.T, ids []string) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:readloop_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Card{}, &ReviewRecord{}, &progress.Progress{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	generator := &staticIDGenerator{ids: ids}
	clock := func() time.Time { return testClockAnchor }

	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      clock,
		IDProvider: generator,
	})
	if err != nil {
		t.Fatalf("failed to construct review service: %v", err)
	}

	return service, db
}

func seedCard(t *testing.T, db *gorm.DB, card Card) Card {
	t.Helper()
	if err := db.Create(&card).Error; err != nil {
		t.Fatalf("failed to seed card: %v", err)
	}
	return card
}
