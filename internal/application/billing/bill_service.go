package billing

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/UnFik/api-saku-tagihan/internal/domain/billing"
	"github.com/UnFik/api-saku-tagihan/internal/domain/shared"
	"github.com/UnFik/api-saku-tagihan/internal/infrastructure/logger"
	"github.com/UnFik/api-saku-tagihan/internal/infrastructure/telemetry"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// CreateBillCommand holds the fields of a new bill
type CreateBillCommand struct {
	BillIssueID    int64      `json:"bill_issue_id" validate:"required,gt=0"`
	BillIssue      string     `json:"bill_issue" validate:"max=255"`
	BillGroupID    int64      `json:"bill_group_id" validate:"gte=0,lte=999"`
	Name           string     `json:"name" validate:"required,max=255"`
	IdentityNumber string     `json:"identity_number" validate:"required,max=32"`
	Semester       int        `json:"semester" validate:"required,gt=0"`
	Major          string     `json:"major" validate:"max=255"`
	UnitCode       string     `json:"unit_code" validate:"required,max=32"`
	ServiceTypeID  int64      `json:"service_type_id" validate:"required,gt=0"`
	Amount         int64      `json:"amount" validate:"gte=0"`
	DueDate        *time.Time `json:"due_date"`
	FlagStatus     string     `json:"flag_status" validate:"omitempty,oneof=88 01 02"`
}

// EditBillCommand holds a manual change to a bill
type EditBillCommand struct {
	Amount     int64      `json:"amount" validate:"gte=0"`
	DueDate    *time.Time `json:"due_date"`
	FlagStatus string     `json:"flag_status" validate:"omitempty,oneof=88 01 02"`
}

const (
	defaultBillPageSize = 15
	maxBillPageSize     = 100
)

// ListBillsQuery filters and pages the bill listing
type ListBillsQuery struct {
	Semester      string `form:"semester" binding:"omitempty,numeric"`
	UnitCode      string `form:"unit_code" binding:"omitempty,max=32"`
	BillIssueID   string `form:"bill_issue_id" binding:"omitempty,numeric"`
	ServiceTypeID string `form:"service_type_id" binding:"omitempty,numeric"`
	Major         string `form:"major" binding:"omitempty,max=255"`
	Operator      string `form:"operator" binding:"omitempty,oneof=and or"`
	Page          int    `form:"page" binding:"omitempty,min=1"`
	PageSize      int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// BillList is one page of bills
type BillList struct {
	Items      []*billing.Bill `json:"items"`
	TotalCount int64           `json:"total_count"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int             `json:"total_pages"`
}

// BillDetail is a bill together with its posted journal references
type BillDetail struct {
	Bill     *billing.Bill               `json:"bill"`
	Journals []*billing.JournalReference `json:"journals"`
}

// PublishResult is the outcome of PublishMany
type PublishResult struct {
	Updated []string `json:"updated"`
	Skipped struct {
		AlreadyPublished []string `json:"already_published"`
		Paid             []string `json:"paid"`
	} `json:"skipped"`
}

// PaymentResult is the outcome of PaymentMany. A bill may be listed under
// more than one skip reason.
type PaymentResult struct {
	Updated []string `json:"updated"`
	Skipped struct {
		AlreadyPaid  []string `json:"already_paid"`
		OnHold       []string `json:"on_hold"`
		NotConfirmed []string `json:"not_confirmed"`
	} `json:"skipped"`
}

// BillServiceConfig holds the dependencies of BillService
type BillServiceConfig struct {
	Bills     billing.BillRepository
	Journals  billing.JournalReferenceRepository
	Units     billing.UnitRepository
	Bank      billing.BankGateway
	Ledger    billing.LedgerGateway
	Directory billing.FacultyDirectory // optional
	Tokens    TokenSources
	Metrics   *telemetry.PipelineMetrics // optional
	Logger    *zap.Logger
}

// BillService manages the local bill records and their Multibank counterpart
type BillService struct {
	bills    billing.BillRepository
	journals billing.JournalReferenceRepository
	pics     picResolver
	bank     billing.BankGateway
	ledger   billing.LedgerGateway
	tokens   TokenSources
	metrics  *telemetry.PipelineMetrics
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// NewBillService creates a new BillService
func NewBillService(config BillServiceConfig) *BillService {
	log := config.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &BillService{
		bills:    config.Bills,
		journals: config.Journals,
		pics:     picResolver{units: config.Units, directory: config.Directory},
		bank:     config.Bank,
		ledger:   config.Ledger,
		tokens:   config.Tokens,
		metrics:  config.Metrics,
		validate: validator.New(),
		logger:   log,
		now:      time.Now,
	}
}

// Get returns a bill with its journal references
func (s *BillService) Get(ctx context.Context, billNumber string) (*BillDetail, error) {
	bill, err := s.bills.FindByNumber(ctx, strings.TrimSpace(billNumber))
	if err != nil {
		return nil, err
	}
	refs, err := s.journals.FindByBillNumber(ctx, bill.BillNumber)
	if err != nil {
		return nil, err
	}
	if refs == nil {
		refs = []*billing.JournalReference{}
	}
	return &BillDetail{Bill: bill, Journals: refs}, nil
}

// List returns bills newest first. Set filters are joined with the query operator.
func (s *BillService) List(ctx context.Context, q ListBillsQuery) (*BillList, error) {
	filter, err := q.filter()
	if err != nil {
		return nil, err
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = defaultBillPageSize
	}
	if q.PageSize > maxBillPageSize {
		q.PageSize = maxBillPageSize
	}

	result, err := s.bills.List(ctx, filter, q.Page, q.PageSize)
	if err != nil {
		return nil, err
	}
	items := result.Items
	if items == nil {
		items = []*billing.Bill{}
	}
	return &BillList{
		Items:      items,
		TotalCount: result.TotalCount,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: int((result.TotalCount + int64(q.PageSize) - 1) / int64(q.PageSize)),
	}, nil
}

func (q ListBillsQuery) filter() (billing.BillListFilter, error) {
	f := billing.BillListFilter{
		UnitCode: strings.TrimSpace(q.UnitCode),
		Major:    strings.TrimSpace(q.Major),
		Operator: billing.Operator(strings.TrimSpace(q.Operator)),
	}
	if f.Operator == "" {
		f.Operator = billing.OperatorAnd
	}
	if f.Operator != billing.OperatorAnd && f.Operator != billing.OperatorOr {
		return f, shared.Validation("Invalid operator: %q", q.Operator)
	}
	if v := strings.TrimSpace(q.Semester); v != "" {
		sem, err := strconv.Atoi(v)
		if err != nil {
			return f, shared.Validation("Semester must be numeric: %q", q.Semester)
		}
		f.Semester = &sem
	}
	var err error
	if f.BillIssueID, err = optionalID("Bill issue", q.BillIssueID); err != nil {
		return f, err
	}
	if f.ServiceTypeID, err = optionalID("Service type", q.ServiceTypeID); err != nil {
		return f, err
	}
	return f, nil
}

func optionalID(name, raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, shared.Validation("%s must be numeric: %q", name, raw)
	}
	return &id, nil
}

// Create stores a new unconfirmed bill. The bill number is derived, and a taken number is a conflict.
func (s *BillService) Create(ctx context.Context, cmd CreateBillCommand) (*billing.Bill, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, shared.WrapDomainError(shared.CodeValidation, "Invalid bill", err)
	}

	bill, err := billing.NewBill(billing.NewBillInput{
		BillIssueID:    cmd.BillIssueID,
		BillIssue:      cmd.BillIssue,
		BillGroupID:    cmd.BillGroupID,
		Name:           cmd.Name,
		IdentityNumber: strings.TrimSpace(cmd.IdentityNumber),
		Semester:       cmd.Semester,
		Major:          cmd.Major,
		UnitCode:       cmd.UnitCode,
		ServiceTypeID:  cmd.ServiceTypeID,
		Amount:         cmd.Amount,
		DueDate:        cmd.DueDate,
		FlagStatus:     billing.FlagStatus(cmd.FlagStatus),
	})
	if err != nil {
		return nil, err
	}

	if err := s.bills.Create(ctx, bill); err != nil {
		if shared.IsConflict(err) {
			return nil, shared.Conflict("Nomor tagihan %s sudah digunakan", bill.BillNumber)
		}
		return nil, err
	}

	logger.WithLogger(ctx, s.logger).Info("Bill created", zap.String("bill_number", bill.BillNumber))
	return bill, nil
}

// Edit applies a manual change. An unchanged bill is returned as is;
// any change drops the confirmation.
func (s *BillService) Edit(ctx context.Context, billNumber string, cmd EditBillCommand) (*billing.Bill, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, shared.WrapDomainError(shared.CodeValidation, "Invalid bill change", err)
	}

	bill, err := s.bills.FindByNumber(ctx, strings.TrimSpace(billNumber))
	if err != nil {
		return nil, err
	}

	changed, err := bill.Edit(cmd.Amount, cmd.DueDate, billing.FlagStatus(cmd.FlagStatus))
	if err != nil {
		return nil, err
	}
	if !changed {
		return bill, nil
	}

	if err := s.bills.Save(ctx, bill); err != nil {
		return nil, err
	}
	logger.WithLogger(ctx, s.logger).Info("Bill edited",
		zap.String("bill_number", bill.BillNumber),
		zap.Int64("amount", bill.Amount),
		zap.String("flag", string(bill.FlagStatus)))
	return bill, nil
}

// Delete removes a bill from Multibank and then locally. A bill Multibank no
// longer knows is only deleted locally; a paid bill cannot be deleted. A
// confirmed bill has its ledger booking reversed before the local delete.
func (s *BillService) Delete(ctx context.Context, billNumber string, creds Credentials) error {
	ctx = logger.WithBillNumber(logger.EnsureContext(ctx, s.logger), billNumber)

	bill, err := s.bills.FindByNumber(ctx, strings.TrimSpace(billNumber))
	if err != nil {
		return err
	}

	platforms := []billing.Platform{billing.PlatformMultibank}
	if bill.IsConfirmed {
		platforms = append(platforms, billing.PlatformJurnal)
	}
	creds, err = s.tokens.Resolve(ctx, creds, platforms...)
	if err != nil {
		return err
	}

	_, err = WithCredentialRefresh(ctx, s.tokens, creds, func(ctx context.Context, c Credentials) (struct{}, error) {
		return struct{}{}, s.deleteRemote(ctx, c, bill.BillNumber)
	})
	if err != nil {
		return err
	}

	if bill.IsConfirmed {
		if err := s.reverseJournal(ctx, bill, creds); err != nil {
			return err
		}
	}

	if err := s.bills.Delete(ctx, bill.BillNumber); err != nil {
		return err
	}
	logger.L(ctx).Info("Bill deleted")
	return nil
}

// reverseJournal books the full amount of a confirmed bill back out of the
// ledger, then drops the confirmation so a repeated delete does not reverse twice
func (s *BillService) reverseJournal(ctx context.Context, bill *billing.Bill, creds Credentials) error {
	if bill.Amount == 0 {
		bill.ReverseConfirmation()
		return s.bills.Save(ctx, bill)
	}

	pic, err := s.pics.resolve(ctx, bill)
	if err != nil {
		return err
	}
	entry, err := billing.NewJournalEntry(bill, billing.JournalDecrease, bill.Amount, pic, s.now())
	if err != nil {
		return err
	}

	journalID, err := WithCredentialRefresh(ctx, s.tokens, creds, func(ctx context.Context, c Credentials) (int64, error) {
		return s.ledger.PostJournal(ctx, c.LedgerToken, entry)
	})
	if err != nil {
		logger.L(ctx).Error("Bill removed from Multibank but reversal journal failed", zap.Error(err))
		return err
	}
	s.metrics.RecordJournalPost(ctx, entry.TransactionCode)
	logger.L(ctx).Info("Reversal journal posted",
		zap.Int64("journal_id", journalID),
		zap.Int("transaction_code", entry.TransactionCode),
		zap.Int64("amount", entry.Amount))

	bill.ReverseConfirmation()
	if err := s.bills.Save(ctx, bill); err != nil {
		logger.L(ctx).Error("Reversal journal posted but bill could not be updated",
			zap.Int64("journal_id", journalID), zap.Error(err))
		return err
	}
	return nil
}

func (s *BillService) deleteRemote(ctx context.Context, creds Credentials, billNumber string) error {
	state, err := s.bank.FetchBill(ctx, creds.BankToken, billNumber)
	if err != nil {
		return err
	}

	switch remote := state.(type) {
	case billing.RemoteMissing:
		logger.L(ctx).Info("Bill not on Multibank, deleting locally")
		return nil
	case billing.RemoteFound:
		if remote.IsPaid() {
			return shared.Conflict("Tagihan %s sudah lunas dan tidak dapat dihapus", billNumber)
		}
	}

	err = s.bank.DeleteBill(ctx, creds.BankToken, billNumber)
	switch {
	case err == nil:
		return nil
	case shared.IsNotFound(err):
		logger.L(ctx).Warn("Bill vanished from Multibank before delete", zap.Error(err))
		return nil
	case shared.IsConflict(err):
		return shared.Conflict("Tagihan %s sudah lunas dan tidak dapat dihapus", billNumber)
	}
	return err
}

// PublishMany moves on-hold bills to active. Every number must exist.
func (s *BillService) PublishMany(ctx context.Context, billNumbers []string) (*PublishResult, error) {
	bills, err := loadAll(ctx, s.bills, billNumbers)
	if err != nil {
		return nil, err
	}

	result := &PublishResult{Updated: []string{}}
	result.Skipped.AlreadyPublished = []string{}
	result.Skipped.Paid = []string{}

	for _, bill := range bills {
		changed, err := bill.Publish()
		if err != nil {
			result.Skipped.Paid = append(result.Skipped.Paid, bill.BillNumber)
			continue
		}
		if !changed {
			result.Skipped.AlreadyPublished = append(result.Skipped.AlreadyPublished, bill.BillNumber)
			continue
		}
		if err := s.bills.Save(ctx, bill); err != nil {
			return nil, err
		}
		result.Updated = append(result.Updated, bill.BillNumber)
	}

	logger.WithLogger(ctx, s.logger).Info("Bills published", zap.Int("updated", len(result.Updated)))
	return result, nil
}

// PaymentMany marks active confirmed bills as paid. Every number must exist.
func (s *BillService) PaymentMany(ctx context.Context, billNumbers []string) (*PaymentResult, error) {
	bills, err := loadAll(ctx, s.bills, billNumbers)
	if err != nil {
		return nil, err
	}

	result := &PaymentResult{Updated: []string{}}
	result.Skipped.AlreadyPaid = []string{}
	result.Skipped.OnHold = []string{}
	result.Skipped.NotConfirmed = []string{}

	for _, bill := range bills {
		if bill.FlagStatus == billing.FlagPaid {
			result.Skipped.AlreadyPaid = append(result.Skipped.AlreadyPaid, bill.BillNumber)
		}
		if bill.FlagStatus == billing.FlagOnHold {
			result.Skipped.OnHold = append(result.Skipped.OnHold, bill.BillNumber)
		}
		if !bill.IsConfirmed {
			result.Skipped.NotConfirmed = append(result.Skipped.NotConfirmed, bill.BillNumber)
		}
		if err := bill.MarkPaid(); err != nil {
			continue
		}
		if err := s.bills.Save(ctx, bill); err != nil {
			return nil, err
		}
		result.Updated = append(result.Updated, bill.BillNumber)
	}

	logger.WithLogger(ctx, s.logger).Info("Bills marked paid", zap.Int("updated", len(result.Updated)))
	return result, nil
}
