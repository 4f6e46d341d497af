package models

import (
	"time"

	"github.com/UnFik/api-saku-tagihan/internal/domain/billing"
)

// BillModel is the persistence model for the Bill domain entity.
type BillModel struct {
	BaseModel
	BillNumber     string             `gorm:"type:varchar(64);not null;uniqueIndex:idx_bills_bill_number"`
	BillIssueID    int64              `gorm:"not null;default:0;index"`
	BillIssue      string             `gorm:"type:varchar(255);not null;default:''"`
	BillGroupID    int64              `gorm:"not null;default:0"`
	Name           string             `gorm:"type:varchar(255);not null;default:''"`
	IdentityNumber string             `gorm:"type:varchar(64);not null"`
	Semester       int                `gorm:"not null"`
	Major          string             `gorm:"type:varchar(255);not null;default:''"`
	UnitCode       string             `gorm:"type:varchar(32);not null;default:''"`
	ServiceTypeID  int64              `gorm:"not null;default:1"`
	Amount         int64              `gorm:"not null;default:0"`
	DueDate        *time.Time         `gorm:"type:date"`
	FlagStatus     billing.FlagStatus `gorm:"type:varchar(2);not null;default:'88'"`
	IsConfirmed    bool               `gorm:"not null;default:false"`
	// PendingBaseline is set while a confirmation owes Jurnal a booking
	PendingBaseline *int64 `gorm:"column:pending_baseline"`
	PendingInitial  bool   `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (BillModel) TableName() string {
	return "bills"
}

// ToDomain converts the persistence model to a domain Bill entity.
func (m *BillModel) ToDomain() *billing.Bill {
	return &billing.Bill{
		BaseEntity:     m.BaseModel.ToDomain(),
		BillNumber:     m.BillNumber,
		BillIssueID:    m.BillIssueID,
		BillIssue:      m.BillIssue,
		BillGroupID:    m.BillGroupID,
		Name:           m.Name,
		IdentityNumber: m.IdentityNumber,
		Semester:       m.Semester,
		Major:          m.Major,
		UnitCode:       m.UnitCode,
		ServiceTypeID:  m.ServiceTypeID,
		Amount:         m.Amount,
		DueDate:        utcDate(m.DueDate),
		FlagStatus:     m.FlagStatus,
		IsConfirmed:    m.IsConfirmed,
		PendingJournal: m.pendingJournal(),
	}
}

func (m *BillModel) pendingJournal() *billing.PendingJournal {
	if m.PendingBaseline == nil {
		return nil
	}
	return &billing.PendingJournal{Baseline: *m.PendingBaseline, Initial: m.PendingInitial}
}

// BillModelFromDomain creates a new persistence model from a domain Bill entity.
func BillModelFromDomain(b *billing.Bill) *BillModel {
	m := &BillModel{
		BillNumber:     b.BillNumber,
		BillIssueID:    b.BillIssueID,
		BillIssue:      b.BillIssue,
		BillGroupID:    b.BillGroupID,
		Name:           b.Name,
		IdentityNumber: b.IdentityNumber,
		Semester:       b.Semester,
		Major:          b.Major,
		UnitCode:       b.UnitCode,
		ServiceTypeID:  b.ServiceTypeID,
		Amount:         b.Amount,
		DueDate:        b.DueDate,
		FlagStatus:     b.FlagStatus,
		IsConfirmed:    b.IsConfirmed,
	}
	if p := b.PendingJournal; p != nil {
		baseline := p.Baseline
		m.PendingBaseline = &baseline
		m.PendingInitial = p.Initial
	}
	m.FromDomainBaseEntity(b.BaseEntity)
	return m
}

// utcDate normalizes a DATE column read back by the driver. Drivers return
// midnight in either UTC or the session zone; the domain works in UTC dates.
func utcDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}
