package models

import (
	"time"

	"github.com/UnFik/api-saku-tagihan/internal/domain/bulk"
)

// QueueTrackerModel is the persistence model for the QueueTracker aggregate.
type QueueTrackerModel struct {
	BaseModel
	CreatedBy    string           `gorm:"type:varchar(255);not null;index"`
	TotalData    int              `gorm:"not null"`
	SuccessCount int              `gorm:"not null;default:0"`
	FailedCount  int              `gorm:"not null;default:0"`
	Status       bulk.QueueStatus `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	Description  string           `gorm:"type:text;not null;default:''"`
	Semester     *string          `gorm:"type:varchar(16)"`
	BillIssue    *string          `gorm:"type:varchar(64)"`
	Major        *string          `gorm:"type:varchar(255)"`
	StartDate    time.Time        `gorm:"not null"`
	EndDate      *time.Time
}

// TableName returns the table name for GORM
func (QueueTrackerModel) TableName() string {
	return "queue_trackers"
}

// ToDomain converts the persistence model to a domain QueueTracker.
func (m *QueueTrackerModel) ToDomain() *bulk.QueueTracker {
	return &bulk.QueueTracker{
		BaseEntity:   m.BaseModel.ToDomain(),
		CreatedBy:    m.CreatedBy,
		TotalData:    m.TotalData,
		SuccessCount: m.SuccessCount,
		FailedCount:  m.FailedCount,
		Status:       m.Status,
		Description:  m.Description,
		Semester:     m.Semester,
		BillIssue:    m.BillIssue,
		Major:        m.Major,
		StartDate:    m.StartDate,
		EndDate:      m.EndDate,
	}
}

// QueueTrackerModelFromDomain creates a persistence model from a domain QueueTracker.
func QueueTrackerModelFromDomain(t *bulk.QueueTracker) *QueueTrackerModel {
	m := &QueueTrackerModel{
		CreatedBy:    t.CreatedBy,
		TotalData:    t.TotalData,
		SuccessCount: t.SuccessCount,
		FailedCount:  t.FailedCount,
		Status:       t.Status,
		Description:  t.Description,
		Semester:     t.Semester,
		BillIssue:    t.BillIssue,
		Major:        t.Major,
		StartDate:    t.StartDate,
		EndDate:      t.EndDate,
	}
	m.FromDomainBaseEntity(t.BaseEntity)
	return m
}
