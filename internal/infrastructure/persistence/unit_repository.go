package persistence

import (
	"context"
	"errors"

	"github.com/UnFik/api-saku-tagihan/internal/domain/billing"
	"github.com/UnFik/api-saku-tagihan/internal/domain/shared"
	"github.com/UnFik/api-saku-tagihan/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormUnitRepository implements billing.UnitRepository using GORM
type GormUnitRepository struct {
	db *gorm.DB
}

// NewGormUnitRepository creates a new GormUnitRepository
func NewGormUnitRepository(db *gorm.DB) *GormUnitRepository {
	return &GormUnitRepository{db: db}
}

// FindByCode finds a unit by code
func (r *GormUnitRepository) FindByCode(ctx context.Context, code string) (*billing.Unit, error) {
	return r.findOne(ctx, "code = ?", code)
}

// FindByName finds a unit by exact name
func (r *GormUnitRepository) FindByName(ctx context.Context, name string) (*billing.Unit, error) {
	return r.findOne(ctx, "name = ?", name)
}

func (r *GormUnitRepository) findOne(ctx context.Context, cond string, arg string) (*billing.Unit, error) {
	var model models.UnitModel
	if err := r.db.WithContext(ctx).Where(cond, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NotFound("Unit %s not found", arg)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

var _ billing.UnitRepository = (*GormUnitRepository)(nil)
