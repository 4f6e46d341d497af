package billing

import (
	"strconv"
	"strings"

	"github.com/UnFik/api-saku-tagihan/internal/domain/shared"
)

// Operator combines user supplied filters
type Operator string

const (
	OperatorAnd Operator = "and"
	OperatorOr  Operator = "or"
)

// ConfirmAllFilter selects the bills of a bulk confirmation
type ConfirmAllFilter struct {
	Semester    string   `json:"semester,omitempty" validate:"omitempty,numeric"`
	BillIssueID string   `json:"bill_issue_id,omitempty" validate:"omitempty,numeric"`
	Major       string   `json:"major,omitempty" validate:"omitempty,max=255"`
	Operator    Operator `json:"operator,omitempty" validate:"omitempty,oneof=and or"`
}

// Normalize trims input and fills the default operator
func (f ConfirmAllFilter) Normalize() ConfirmAllFilter {
	f.Semester = strings.TrimSpace(f.Semester)
	f.BillIssueID = strings.TrimSpace(f.BillIssueID)
	f.Major = strings.TrimSpace(f.Major)
	if f.Operator == "" {
		f.Operator = OperatorAnd
	}
	return f
}

// Criteria converts the filter into a storage query.
// Empty fields contribute nothing; the primary-service and unconfirmed
// restrictions are always applied on top by the repository.
func (f ConfirmAllFilter) Criteria() (BillCriteria, error) {
	f = f.Normalize()
	c := BillCriteria{Operator: f.Operator, Major: f.Major}
	if f.Operator != OperatorAnd && f.Operator != OperatorOr {
		return c, shared.Validation("Invalid operator: %q", f.Operator)
	}
	if f.Semester != "" {
		sem, err := strconv.Atoi(f.Semester)
		if err != nil {
			return c, shared.Validation("Semester must be numeric: %q", f.Semester)
		}
		c.Semester = &sem
	}
	if f.BillIssueID != "" {
		id, err := strconv.ParseInt(f.BillIssueID, 10, 64)
		if err != nil {
			return c, shared.Validation("Bill issue must be numeric: %q", f.BillIssueID)
		}
		c.BillIssueID = &id
	}
	return c, nil
}

// BillCriteria is the storage-level query for unconfirmed bills
type BillCriteria struct {
	Semester    *int
	BillIssueID *int64
	Major       string // case-insensitive substring
	Operator    Operator
}

// HasUserFilters reports whether any user filter is set
func (c BillCriteria) HasUserFilters() bool {
	return c.Semester != nil || c.BillIssueID != nil || c.Major != ""
}

// BillListFilter selects bills for the listing. The set fields are joined with
// Operator; an empty filter lists every bill.
type BillListFilter struct {
	Semester      *int
	UnitCode      string
	BillIssueID   *int64
	ServiceTypeID *int64
	Major         string // case-insensitive substring
	Operator      Operator
}

// BillListResult is one page of bills
type BillListResult struct {
	Items      []*Bill
	TotalCount int64
	Page       int
	PageSize   int
}
