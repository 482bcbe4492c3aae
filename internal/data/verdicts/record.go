package verdicts

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Kind string

const (
	KindTriage     Kind = "triage"
	KindGNN        Kind = "gnn"
	KindSupervisor Kind = "supervisor"
)

// Record is one append-only verdict audit entry.
type Record struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Kind      Kind           `gorm:"column:kind;not null;index" json:"kind"`
	AlertID   string         `gorm:"column:alert_id;index" json:"alert_id,omitempty"`
	Verdict   string         `gorm:"column:verdict;not null;index" json:"verdict"`
	Score     float64        `gorm:"column:score;not null" json:"score"`
	RequestID string         `gorm:"column:request_id;index" json:"request_id,omitempty"`
	Source    string         `gorm:"column:source" json:"source,omitempty"`
	Details   datatypes.JSON `gorm:"column:details" json:"details,omitempty"`
	CreatedAt time.Time      `gorm:"not null;autoCreateTime;index" json:"created_at"`
}

func (Record) TableName() string { return "verdict_records" }

func (r *Record) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
