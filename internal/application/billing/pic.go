package billing

import (
	"context"

	"github.com/UnFik/api-saku-tagihan/internal/domain/billing"
	"github.com/UnFik/api-saku-tagihan/internal/domain/shared"
	"github.com/UnFik/api-saku-tagihan/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// picResolver finds the unit a journal entry is booked under
type picResolver struct {
	units     billing.UnitRepository
	directory billing.FacultyDirectory // optional
}

// resolve returns the faculty SIAKAD reports for the bill's study program,
// else the local unit with the bill's code
func (r picResolver) resolve(ctx context.Context, bill *billing.Bill) (billing.Unit, error) {
	if r.directory != nil {
		faculty, err := r.directory.FacultyOf(ctx, bill.UnitCode)
		if err != nil {
			logger.L(ctx).Warn("SIAKAD lookup failed, using local unit table",
				zap.String("unit_code", bill.UnitCode), zap.Error(err))
		}
		if faculty != "" {
			unit, err := r.units.FindByName(ctx, faculty)
			if err == nil {
				return billing.Unit{Code: unit.Code, Name: faculty}, nil
			}
			if !shared.IsNotFound(err) {
				return billing.Unit{}, err
			}
			logger.L(ctx).Warn("Faculty from SIAKAD is not in the unit table", zap.String("faculty", faculty))
		}
	}

	unit, err := r.units.FindByCode(ctx, bill.UnitCode)
	if err != nil {
		if shared.IsNotFound(err) {
			return billing.Unit{}, shared.NotFound("Unit %s tidak ditemukan, jurnal tidak dapat dibuat", bill.UnitCode)
		}
		return billing.Unit{}, err
	}
	return *unit, nil
}
