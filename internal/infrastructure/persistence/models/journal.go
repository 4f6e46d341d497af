package models

import (
	"github.com/UnFik/api-saku-tagihan/internal/domain/billing"
)

// JournalReferenceModel is the persistence model for a posted journal id.
type JournalReferenceModel struct {
	BaseModel
	JournalID       int64  `gorm:"not null"`
	Description     string `gorm:"type:text;not null;default:''"`
	Amount          int64  `gorm:"not null"`
	TransactionCode int    `gorm:"not null"`
	BillNumber      string `gorm:"type:varchar(64);not null;index"`
}

// TableName returns the table name for GORM
func (JournalReferenceModel) TableName() string {
	return "ref_journals"
}

// ToDomain converts the persistence model to a domain JournalReference.
func (m *JournalReferenceModel) ToDomain() *billing.JournalReference {
	return &billing.JournalReference{
		BaseEntity:      m.BaseModel.ToDomain(),
		JournalID:       m.JournalID,
		Description:     m.Description,
		Amount:          m.Amount,
		TransactionCode: m.TransactionCode,
		BillNumber:      m.BillNumber,
	}
}

// JournalReferenceModelFromDomain creates a persistence model from a JournalReference.
func JournalReferenceModelFromDomain(r *billing.JournalReference) *JournalReferenceModel {
	m := &JournalReferenceModel{
		JournalID:       r.JournalID,
		Description:     r.Description,
		Amount:          r.Amount,
		TransactionCode: r.TransactionCode,
		BillNumber:      r.BillNumber,
	}
	m.FromDomainBaseEntity(r.BaseEntity)
	return m
}
