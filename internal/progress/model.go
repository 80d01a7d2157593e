package progress

import "time"

// Progress accumulates a learner's lifetime experience and derived level.
// Rows are created lazily on the first review and only ever written inside
// the review transaction.
type Progress struct {
	OwnerID         string    `gorm:"column:owner_id;primaryKey;size:190;not null"`
	TotalExperience int64     `gorm:"column:total_experience;not null;default:0"`
	Level           int       `gorm:"column:level;not null;default:1"`
	// DailyCap is the owner's configured review budget per UTC day.
	// Zero means "use the deployment default".
	DailyCap       int       `gorm:"column:daily_cap;not null;default:0"`
	LastActivityAt time.Time `gorm:"column:last_activity_at;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Progress) TableName() string {
	return "learner_progress"
}
