package persistence

import (
	"context"

	"github.com/UnFik/api-saku-tagihan/internal/domain/billing"
	"github.com/UnFik/api-saku-tagihan/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormJournalReferenceRepository implements billing.JournalReferenceRepository using GORM
type GormJournalReferenceRepository struct {
	db *gorm.DB
}

// NewGormJournalReferenceRepository creates a new GormJournalReferenceRepository
func NewGormJournalReferenceRepository(db *gorm.DB) *GormJournalReferenceRepository {
	return &GormJournalReferenceRepository{db: db}
}

// FindByBillNumber lists the references of a bill, oldest first
func (r *GormJournalReferenceRepository) FindByBillNumber(ctx context.Context, billNumber string) ([]*billing.JournalReference, error) {
	var rows []models.JournalReferenceModel
	if err := r.db.WithContext(ctx).
		Where("bill_number = ?", billNumber).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	refs := make([]*billing.JournalReference, len(rows))
	for i := range rows {
		refs[i] = rows[i].ToDomain()
	}
	return refs, nil
}

var _ billing.JournalReferenceRepository = (*GormJournalReferenceRepository)(nil)
