package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/UnFik/api-saku-tagihan/internal/domain/billing"
	"github.com/UnFik/api-saku-tagihan/internal/domain/shared"
	"github.com/UnFik/api-saku-tagihan/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormBillRepository implements billing.BillRepository using GORM
type GormBillRepository struct {
	db *gorm.DB
}

// NewGormBillRepository creates a new GormBillRepository
func NewGormBillRepository(db *gorm.DB) *GormBillRepository {
	return &GormBillRepository{db: db}
}

// FindByNumber finds a bill by its bill number
func (r *GormBillRepository) FindByNumber(ctx context.Context, billNumber string) (*billing.Bill, error) {
	var model models.BillModel
	if err := r.db.WithContext(ctx).
		Where("bill_number = ?", billNumber).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NotFound("Bill %s not found", billNumber)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByNumbers returns the bills that exist among billNumbers, ordered by bill number
func (r *GormBillRepository) FindByNumbers(ctx context.Context, billNumbers []string) ([]*billing.Bill, error) {
	if len(billNumbers) == 0 {
		return []*billing.Bill{}, nil
	}

	var rows []models.BillModel
	if err := r.db.WithContext(ctx).
		Where("bill_number IN ?", billNumbers).
		Order("bill_number ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainBills(rows), nil
}

// FindUnconfirmed returns unconfirmed bills of the primary service type.
// User filters are joined with the criteria operator and always ANDed with
// the service type and confirmation restrictions.
func (r *GormBillRepository) FindUnconfirmed(ctx context.Context, criteria billing.BillCriteria) ([]*billing.Bill, error) {
	query := r.db.WithContext(ctx).Model(&models.BillModel{}).
		Where("service_type_id = ? AND is_confirmed = ?", billing.PrimaryServiceTypeID, false)

	var conds conditions
	if criteria.Semester != nil {
		conds.add("semester = ?", *criteria.Semester)
	}
	if criteria.BillIssueID != nil {
		conds.add("bill_issue_id = ?", *criteria.BillIssueID)
	}
	conds.addContains("major", criteria.Major)
	query = conds.apply(query, criteria.Operator)

	var rows []models.BillModel
	if err := query.Order("bill_number ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainBills(rows), nil
}

// List returns one page of bills matching filter, newest first
func (r *GormBillRepository) List(
	ctx context.Context,
	filter billing.BillListFilter,
	page, pageSize int,
) (*billing.BillListResult, error) {
	var conds conditions
	if filter.Semester != nil {
		conds.add("semester = ?", *filter.Semester)
	}
	if filter.UnitCode != "" {
		conds.add("unit_code = ?", filter.UnitCode)
	}
	if filter.BillIssueID != nil {
		conds.add("bill_issue_id = ?", *filter.BillIssueID)
	}
	if filter.ServiceTypeID != nil {
		conds.add("service_type_id = ?", *filter.ServiceTypeID)
	}
	conds.addContains("major", filter.Major)

	query := conds.apply(r.db.WithContext(ctx).Model(&models.BillModel{}), filter.Operator)

	var totalCount int64
	if err := query.Count(&totalCount).Error; err != nil {
		return nil, err
	}

	if page > 0 && pageSize > 0 {
		query = query.Offset((page - 1) * pageSize).Limit(pageSize)
	}

	var rows []models.BillModel
	if err := query.Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return &billing.BillListResult{
		Items:      toDomainBills(rows),
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// Create inserts a bill
func (r *GormBillRepository) Create(ctx context.Context, bill *billing.Bill) error {
	err := r.db.WithContext(ctx).Create(models.BillModelFromDomain(bill)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return shared.Conflict("Bill %s already exists", bill.BillNumber)
	}
	return err
}

// Save updates the mutable fields of a bill
func (r *GormBillRepository) Save(ctx context.Context, bill *billing.Bill) error {
	result := r.db.WithContext(ctx).Model(&models.BillModel{}).
		Where("bill_number = ?", bill.BillNumber).
		Updates(map[string]any{
			"amount":       bill.Amount,
			"due_date":     bill.DueDate,
			"flag_status":  bill.FlagStatus,
			"is_confirmed": bill.IsConfirmed,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NotFound("Bill %s not found", bill.BillNumber)
	}
	return nil
}

// SavePendingJournal stores the pending journal of an unconfirmed bill
func (r *GormBillRepository) SavePendingJournal(ctx context.Context, bill *billing.Bill) error {
	var baseline *int64
	initial := false
	if p := bill.PendingJournal; p != nil {
		baseline = &p.Baseline
		initial = p.Initial
	}

	db := r.db.WithContext(ctx)
	result := db.Model(&models.BillModel{}).
		Where("bill_number = ? AND is_confirmed = ?", bill.BillNumber, false).
		Updates(map[string]any{
			"pending_baseline": baseline,
			"pending_initial":  initial,
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return missingOrConfirmed(db, bill.BillNumber)
	}
	return nil
}

// SaveConfirmation flips the confirmed flag and stores the journal reference
// in one transaction, guarded by is_confirmed = false.
func (r *GormBillRepository) SaveConfirmation(ctx context.Context, bill *billing.Bill, ref *billing.JournalReference) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.BillModel{}).
			Where("bill_number = ? AND is_confirmed = ?", bill.BillNumber, false).
			Updates(map[string]any{
				"amount":       bill.Amount,
				"due_date":     bill.DueDate,
				"flag_status":  bill.FlagStatus,
				"is_confirmed":     true,
				"pending_baseline": nil,
				"pending_initial":  false,
				"updated_at":       time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return missingOrConfirmed(tx, bill.BillNumber)
		}

		if ref == nil {
			return nil
		}
		return tx.Create(models.JournalReferenceModelFromDomain(ref)).Error
	})
}

// Delete removes a bill and its journal references
func (r *GormBillRepository) Delete(ctx context.Context, billNumber string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("bill_number = ?", billNumber).Delete(&models.JournalReferenceModel{}).Error; err != nil {
			return err
		}
		result := tx.Where("bill_number = ?", billNumber).Delete(&models.BillModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.NotFound("Bill %s not found", billNumber)
		}
		return nil
	})
}

// missingOrConfirmed explains a guarded update that matched no row
func missingOrConfirmed(db *gorm.DB, billNumber string) error {
	var count int64
	if err := db.Model(&models.BillModel{}).Where("bill_number = ?", billNumber).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return shared.NotFound("Bill %s not found", billNumber)
	}
	return shared.Conflict("Bill %s is already confirmed", billNumber)
}

func toDomainBills(rows []models.BillModel) []*billing.Bill {
	bills := make([]*billing.Bill, len(rows))
	for i := range rows {
		bills[i] = rows[i].ToDomain()
	}
	return bills
}

// conditions collects user filters that are joined with one operator
type conditions struct {
	clauses []string
	args    []any
}

func (c *conditions) add(clause string, arg any) {
	c.clauses = append(c.clauses, clause)
	c.args = append(c.args, arg)
}

func (c *conditions) addContains(column, value string) {
	if value == "" {
		return
	}
	c.add("LOWER("+column+`) LIKE ? ESCAPE '\'`, "%"+escapeLike(strings.ToLower(value))+"%")
}

// apply ANDs the joined conditions onto query. OR is used only when asked for.
func (c conditions) apply(query *gorm.DB, op billing.Operator) *gorm.DB {
	if len(c.clauses) == 0 {
		return query
	}
	join := " AND "
	if op == billing.OperatorOr {
		join = " OR "
	}
	return query.Where("("+strings.Join(c.clauses, join)+")", c.args...)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Compile-time interface compliance check
var _ billing.BillRepository = (*GormBillRepository)(nil)
