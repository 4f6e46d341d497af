package models

import (
	"time"

	"github.com/UnFik/api-saku-tagihan/internal/domain/billing"
)

// UnitModel maps the units table. Units are keyed by their code, not a uuid.
type UnitModel struct {
	Code      string    `gorm:"type:varchar(32);primaryKey"`
	Name      string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_units_name"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (UnitModel) TableName() string {
	return "units"
}

// ToDomain converts the persistence model to a domain Unit.
func (m *UnitModel) ToDomain() *billing.Unit {
	return &billing.Unit{Code: m.Code, Name: m.Name}
}
