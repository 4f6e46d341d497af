package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/UnFik/api-saku-tagihan/internal/domain/shared"
)

// PrimaryServiceTypeID identifies the primary educational service (UKT).
// Bulk confirmation only ever touches bills of this type.
const PrimaryServiceTypeID int64 = 1

// FlagStatus is the publication status shared with Multibank
type FlagStatus string

const (
	FlagOnHold FlagStatus = "88"
	FlagActive FlagStatus = "01"
	FlagPaid   FlagStatus = "02"
)

// ParseFlagStatus converts a wire code into a FlagStatus
func ParseFlagStatus(code string) (FlagStatus, error) {
	f := FlagStatus(strings.TrimSpace(code))
	if !f.IsValid() {
		return "", shared.Validation("Invalid flag status: %q", code)
	}
	return f, nil
}

// IsValid checks if the flag status is valid
func (f FlagStatus) IsValid() bool {
	switch f {
	case FlagOnHold, FlagActive, FlagPaid:
		return true
	}
	return false
}

// String returns a readable name for the flag
func (f FlagStatus) String() string {
	switch f {
	case FlagOnHold:
		return "ON_HOLD"
	case FlagActive:
		return "ACTIVE"
	case FlagPaid:
		return "PAID"
	}
	return "UNKNOWN(" + string(f) + ")"
}

// BuildBillNumber derives the bill number from identity number, semester and bill group.
// The group id is zero padded to three digits.
func BuildBillNumber(identityNumber string, semester int, billGroupID int64) string {
	return fmt.Sprintf("%s%d%03d", identityNumber, semester, billGroupID)
}

// Bill represents one billable obligation
type Bill struct {
	shared.BaseEntity
	BillNumber     string     `json:"bill_number"`
	BillIssueID    int64      `json:"bill_issue_id"`
	BillIssue      string     `json:"bill_issue"`
	BillGroupID    int64      `json:"bill_group_id"`
	Name           string     `json:"name"`
	IdentityNumber string     `json:"identity_number"`
	Semester       int        `json:"semester"`
	Major          string     `json:"major"`
	UnitCode       string     `json:"unit_code"`
	ServiceTypeID  int64      `json:"service_type_id"`
	Amount         int64      `json:"amount"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	FlagStatus     FlagStatus `json:"flag_status"`
	IsConfirmed    bool       `json:"is_confirmed"`

	PendingJournal *PendingJournal `json:"pending_journal,omitempty"`
}

// PendingJournal is the ledger booking a started confirmation still owes.
// It is stored before Multibank is written, so a retry books against the
// amount Multibank held before the first attempt.
type PendingJournal struct {
	Baseline int64 `json:"baseline"`
	Initial  bool  `json:"initial"`
}

// Delta returns the signed amount to book when Multibank ends at amount
func (p PendingJournal) Delta(amount int64) int64 {
	if p.Initial {
		return amount
	}
	return amount - p.Baseline
}

// NewBillInput holds the fields needed to create a bill
type NewBillInput struct {
	BillIssueID    int64
	BillIssue      string
	BillGroupID    int64
	Name           string
	IdentityNumber string
	Semester       int
	Major          string
	UnitCode       string
	ServiceTypeID  int64
	Amount         int64
	DueDate        *time.Time
	FlagStatus     FlagStatus
}

// NewBill creates an unconfirmed bill with a derived bill number
func NewBill(in NewBillInput) (*Bill, error) {
	if strings.TrimSpace(in.IdentityNumber) == "" {
		return nil, shared.Validation("Identity number cannot be empty")
	}
	if in.Semester <= 0 {
		return nil, shared.Validation("Semester must be positive")
	}
	if in.BillGroupID < 0 || in.BillGroupID > 999 {
		return nil, shared.Validation("Bill group must be between 0 and 999")
	}
	if in.Amount < 0 {
		return nil, shared.Validation("Amount cannot be negative")
	}
	flag := in.FlagStatus
	if flag == "" {
		flag = FlagOnHold
	}
	if !flag.IsValid() {
		return nil, shared.Validation("Invalid flag status: %q", in.FlagStatus)
	}

	return &Bill{
		BaseEntity:     shared.NewBaseEntity(),
		BillNumber:     BuildBillNumber(in.IdentityNumber, in.Semester, in.BillGroupID),
		BillIssueID:    in.BillIssueID,
		BillIssue:      in.BillIssue,
		BillGroupID:    in.BillGroupID,
		Name:           in.Name,
		IdentityNumber: in.IdentityNumber,
		Semester:       in.Semester,
		Major:          in.Major,
		UnitCode:       in.UnitCode,
		ServiceTypeID:  in.ServiceTypeID,
		Amount:         in.Amount,
		DueDate:        truncateDate(in.DueDate),
		FlagStatus:     flag,
	}, nil
}

// Edit applies a manual change. Any actual change invalidates a prior reconciliation.
// Returns false when nothing differs.
func (b *Bill) Edit(amount int64, dueDate *time.Time, flag FlagStatus) (bool, error) {
	if amount < 0 {
		return false, shared.Validation("Amount cannot be negative")
	}
	if flag == "" {
		flag = b.FlagStatus
	}
	if !flag.IsValid() {
		return false, shared.Validation("Invalid flag status: %q", flag)
	}
	dueDate = truncateDate(dueDate)
	if b.Amount == amount && sameDate(b.DueDate, dueDate) && b.FlagStatus == flag {
		return false, nil
	}

	b.Amount = amount
	b.DueDate = dueDate
	b.FlagStatus = flag
	b.IsConfirmed = false
	b.Touch()
	return true, nil
}

// Publish moves an on-hold bill to active and drops its confirmation.
// Returns false when the bill was already active.
func (b *Bill) Publish() (bool, error) {
	switch b.FlagStatus {
	case FlagOnHold:
		b.FlagStatus = FlagActive
		b.IsConfirmed = false
		b.Touch()
		return true, nil
	case FlagActive:
		return false, nil
	}
	return false, shared.InvalidState("Bill %s cannot be published from %s", b.BillNumber, b.FlagStatus)
}

// MarkPaid moves a confirmed active bill to paid
func (b *Bill) MarkPaid() error {
	if b.FlagStatus != FlagActive || !b.IsConfirmed {
		return shared.InvalidState("Bill %s must be active and confirmed to be paid (flag %s, confirmed %t)",
			b.BillNumber, b.FlagStatus, b.IsConfirmed)
	}
	b.FlagStatus = FlagPaid
	b.Touch()
	return nil
}

// EnsureConfirmable rejects bills that were already reconciled
func (b *Bill) EnsureConfirmable() error {
	if b.IsConfirmed {
		return shared.Conflict("Bill %s is already confirmed", b.BillNumber)
	}
	return nil
}

// BeginReconciliation records the Multibank baseline before a remote write.
// An earlier pending baseline is kept. Returns false when nothing changed.
func (b *Bill) BeginReconciliation(baseline int64, initial bool) bool {
	if b.PendingJournal != nil {
		return false
	}
	b.PendingJournal = &PendingJournal{Baseline: baseline, Initial: initial}
	b.Touch()
	return true
}

// ConfirmReconciled marks the bill confirmed after Multibank and Jurnal accepted it
func (b *Bill) ConfirmReconciled() {
	b.IsConfirmed = true
	b.PendingJournal = nil
	b.Touch()
}

// ReverseConfirmation drops the confirmation once its ledger booking was reversed
func (b *Bill) ReverseConfirmation() {
	b.IsConfirmed = false
	b.Touch()
}

// Reconcile records the amount and due date that were pushed to Multibank.
// The bill stays unconfirmed until ConfirmReconciled.
func (b *Bill) Reconcile(amount int64, dueDate *time.Time) {
	b.Amount = amount
	b.DueDate = truncateDate(dueDate)
	b.Touch()
}

// ConfirmPaidUpstream records that Multibank already settled the bill
func (b *Bill) ConfirmPaidUpstream() {
	b.FlagStatus = FlagPaid
	b.IsConfirmed = true
	b.PendingJournal = nil
	b.Touch()
}

// VoucherNumber returns the ledger voucher number (no bukti) for the bill
func (b *Bill) VoucherNumber() string {
	return fmt.Sprintf("%s/%d/%s", b.UnitCode, b.Semester, b.IdentityNumber)
}

// TargetAmount picks the amount to reconcile with: the override when given, else the stored amount
func (b *Bill) TargetAmount(override *int64) int64 {
	if override != nil {
		return *override
	}
	return b.Amount
}

// TargetDueDate picks the due date to reconcile with
func (b *Bill) TargetDueDate(override *time.Time) *time.Time {
	if override != nil {
		return truncateDate(override)
	}
	return b.DueDate
}

func truncateDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
