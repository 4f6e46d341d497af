package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/UnFik/api-saku-tagihan/internal/domain/billing"
	"github.com/UnFik/api-saku-tagihan/internal/domain/shared"
	"github.com/UnFik/api-saku-tagihan/internal/infrastructure/logger"
	"github.com/UnFik/api-saku-tagihan/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ConfirmStatus tells which path a successful confirmation took
type ConfirmStatus string

const (
	// ConfirmStatusConfirmed means Multibank was updated and the delta was journaled
	ConfirmStatusConfirmed ConfirmStatus = "CONFIRMED"
	// ConfirmStatusNoDelta means Multibank was updated and amounts already matched
	ConfirmStatusNoDelta ConfirmStatus = "CONFIRMED_NO_DELTA"
	// ConfirmStatusAlreadyPaid means Multibank had already settled the bill
	ConfirmStatusAlreadyPaid ConfirmStatus = "ALREADY_PAID"
	// ConfirmStatusCreated means the bill was created on Multibank and fully journaled
	ConfirmStatusCreated ConfirmStatus = "CREATED"
)

// ConfirmCommand asks to reconcile one bill. Amount and DueDate override
// the stored values when set.
type ConfirmCommand struct {
	BillNumber string     `json:"bill_number" validate:"required,max=64"`
	Amount     *int64     `json:"amount,omitempty" validate:"omitempty,gte=0"`
	DueDate    *time.Time `json:"due_date,omitempty"`
}

// ConfirmResult describes a successful confirmation
type ConfirmResult struct {
	BillNumber     string        `json:"bill_number"`
	Status         ConfirmStatus `json:"status"`
	Message        string        `json:"message"`
	JournalID      *int64        `json:"journal_id,omitempty"`
	IdentityNumber string        `json:"nim"`
	Name           string        `json:"name"`
}

// ConfirmationServiceConfig holds the dependencies of ConfirmationService
type ConfirmationServiceConfig struct {
	Bills     billing.BillRepository
	Units     billing.UnitRepository
	Bank      billing.BankGateway
	Ledger    billing.LedgerGateway
	Directory billing.FacultyDirectory // optional
	Tokens    TokenSources
	Lock      shared.ConfirmationLock // optional
	LockTTL   time.Duration
	Metrics   *telemetry.PipelineMetrics // optional
	Logger    *zap.Logger
}

// ConfirmationService reconciles single bills with Multibank and Jurnal
type ConfirmationService struct {
	bills     billing.BillRepository
	pics      picResolver
	bank      billing.BankGateway
	ledger    billing.LedgerGateway
	tokens    TokenSources
	lock      shared.ConfirmationLock
	lockTTL   time.Duration
	metrics   *telemetry.PipelineMetrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewConfirmationService creates a new ConfirmationService
func NewConfirmationService(config ConfirmationServiceConfig) *ConfirmationService {
	log := config.Logger
	if log == nil {
		log = zap.NewNop()
	}
	ttl := config.LockTTL
	if ttl <= 0 {
		ttl = shared.DefaultLockConfig().TTL
	}
	return &ConfirmationService{
		bills:     config.Bills,
		pics:      picResolver{units: config.Units, directory: config.Directory},
		bank:      config.Bank,
		ledger:    config.Ledger,
		tokens:    config.Tokens,
		lock:      config.Lock,
		lockTTL:   ttl,
		metrics:   config.Metrics,
		logger:    log,
		now:       time.Now,
	}
}

// Confirm reconciles one bill. Only one confirmation of a bill runs at a time;
// a concurrent attempt gets a CONFLICT error. An expired token is refreshed once.
func (s *ConfirmationService) Confirm(ctx context.Context, cmd ConfirmCommand, creds Credentials) (result *ConfirmResult, err error) {
	cmd.BillNumber = strings.TrimSpace(cmd.BillNumber)
	if cmd.BillNumber == "" {
		return nil, shared.Validation("Bill number is required")
	}
	if cmd.Amount != nil && *cmd.Amount < 0 {
		return nil, shared.Validation("Amount cannot be negative")
	}

	started := time.Now()
	ctx = logger.WithBillNumber(logger.EnsureContext(ctx, s.logger), cmd.BillNumber)
	ctx, span := telemetry.StartSpan(ctx, "billing.confirm",
		telemetry.WithAttribute(telemetry.SpanAttrBillNumber, cmd.BillNumber))
	defer func() {
		if err != nil {
			telemetry.RecordError(span, err)
			s.metrics.RecordConfirmation(ctx, "FAILED", shared.ErrorCode(err), time.Since(started))
		} else {
			telemetry.SetAttributes(span, telemetry.SpanAttrConfirmStatus, string(result.Status))
			s.metrics.RecordConfirmation(ctx, string(result.Status), "", time.Since(started))
		}
		span.End()
	}()

	release, err := s.acquire(ctx, cmd.BillNumber)
	if err != nil {
		return nil, err
	}
	defer release()

	creds, err = s.tokens.Resolve(ctx, creds, billing.PlatformMultibank, billing.PlatformJurnal)
	if err != nil {
		return nil, err
	}

	return WithCredentialRefresh(ctx, s.tokens, creds, func(ctx context.Context, creds Credentials) (*ConfirmResult, error) {
		return s.confirmOnce(ctx, cmd, creds)
	})
}

func (s *ConfirmationService) acquire(ctx context.Context, billNumber string) (func(), error) {
	if s.lock == nil {
		return func() {}, nil
	}
	ok, err := s.lock.Acquire(ctx, billNumber, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire confirmation lock: %w", err)
	}
	if !ok {
		return nil, shared.Conflict("Bill %s is being confirmed by another request", billNumber)
	}
	return func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), billNumber); err != nil {
			logger.L(ctx).Warn("Failed to release confirmation lock", zap.Error(err))
		}
	}, nil
}

// confirmOnce is one pass of the state machine. The confirmed flag is only
// written after every remote step succeeded.
func (s *ConfirmationService) confirmOnce(ctx context.Context, cmd ConfirmCommand, creds Credentials) (*ConfirmResult, error) {
	bill, err := s.bills.FindByNumber(ctx, cmd.BillNumber)
	if err != nil {
		return nil, err
	}
	if err := bill.EnsureConfirmable(); err != nil {
		return nil, err
	}

	remote, err := s.bank.FetchBill(ctx, creds.BankToken, bill.BillNumber)
	if err != nil {
		return nil, err
	}

	switch r := remote.(type) {
	case billing.RemoteFound:
		if r.IsPaid() {
			return s.confirmPaid(ctx, bill)
		}
		return s.confirmExisting(ctx, bill, r, cmd, creds)
	case billing.RemoteMissing:
		return s.confirmMissing(ctx, bill, cmd, creds)
	default:
		return nil, fmt.Errorf("unexpected remote bill state %T", remote)
	}
}

func (s *ConfirmationService) confirmPaid(ctx context.Context, bill *billing.Bill) (*ConfirmResult, error) {
	bill.ConfirmPaidUpstream()
	if err := s.bills.SaveConfirmation(ctx, bill, nil); err != nil {
		return nil, err
	}
	logger.L(ctx).Info("Bill already paid on Multibank, confirmed locally")
	return s.result(bill, ConfirmStatusAlreadyPaid, "Tagihan sudah lunas", nil), nil
}

func (s *ConfirmationService) confirmExisting(
	ctx context.Context,
	bill *billing.Bill,
	remote billing.RemoteFound,
	cmd ConfirmCommand,
	creds Credentials,
) (*ConfirmResult, error) {
	amount := bill.TargetAmount(cmd.Amount)
	dueDate := bill.TargetDueDate(cmd.DueDate)

	// A pending journal means an earlier attempt already wrote to Multibank,
	// so remote.Amount is no longer the baseline to book against.
	if err := s.beginReconciliation(ctx, bill, remote.Amount, false); err != nil {
		return nil, err
	}
	pending := *bill.PendingJournal

	update := billing.RemoteUpdate{Amount: amount, DueDate: dueDate, Flag: bill.FlagStatus}
	if err := s.bank.UpdateBill(ctx, creds.BankToken, bill.BillNumber, update); err != nil {
		return nil, err
	}
	bill.Reconcile(amount, dueDate)

	if pending.Initial {
		journalID, err := s.journal(ctx, bill, billing.JournalInitial, amount, creds)
		if err != nil {
			return nil, err
		}
		return s.result(bill, ConfirmStatusCreated, "Tagihan berhasil dibuat di Multibank dan dijurnal", &journalID), nil
	}

	delta := pending.Delta(amount)
	if delta == 0 {
		bill.ConfirmReconciled()
		if err := s.bills.SaveConfirmation(ctx, bill, nil); err != nil {
			return nil, err
		}
		logger.L(ctx).Info("Bill confirmed, amounts already match", zap.Int64("amount", amount))
		return s.result(bill, ConfirmStatusNoDelta, "Data Tenggat Tagihan berhasil dikonfirmasi", nil), nil
	}

	journalID, err := s.journal(ctx, bill, billing.KindForDelta(delta), delta, creds)
	if err != nil {
		return nil, err
	}
	return s.result(bill, ConfirmStatusConfirmed, "Tagihan berhasil dikonfirmasi dan dijurnal", &journalID), nil
}

func (s *ConfirmationService) confirmMissing(ctx context.Context, bill *billing.Bill, cmd ConfirmCommand, creds Credentials) (*ConfirmResult, error) {
	// Nothing reached Multibank, so whatever an earlier attempt recorded is void.
	bill.PendingJournal = nil
	if err := s.beginReconciliation(ctx, bill, 0, true); err != nil {
		return nil, err
	}

	bill.Reconcile(bill.TargetAmount(cmd.Amount), bill.TargetDueDate(cmd.DueDate))
	if err := s.bank.CreateBill(ctx, creds.BankToken, bill.BillNumber, billing.RemoteBillFrom(bill)); err != nil {
		return nil, err
	}

	journalID, err := s.journal(ctx, bill, billing.JournalInitial, bill.Amount, creds)
	if err != nil {
		return nil, err
	}
	return s.result(bill, ConfirmStatusCreated, "Tagihan berhasil dibuat di Multibank dan dijurnal", &journalID), nil
}

// beginReconciliation stores the Multibank baseline before the first remote
// write of a confirmation. A baseline left by an earlier attempt is kept.
func (s *ConfirmationService) beginReconciliation(ctx context.Context, bill *billing.Bill, baseline int64, initial bool) error {
	if !bill.BeginReconciliation(baseline, initial) {
		logger.L(ctx).Info("Resuming confirmation with pending journal",
			zap.Int64("baseline", bill.PendingJournal.Baseline),
			zap.Bool("initial", bill.PendingJournal.Initial))
		return nil
	}
	return s.bills.SavePendingJournal(ctx, bill)
}

// journal posts the entry for amount, then stores the reference and the
// confirmed flag together
func (s *ConfirmationService) journal(
	ctx context.Context,
	bill *billing.Bill,
	kind billing.JournalKind,
	amount int64,
	creds Credentials,
) (int64, error) {
	pic, err := s.pics.resolve(ctx, bill)
	if err != nil {
		return 0, err
	}
	entry, err := billing.NewJournalEntry(bill, kind, amount, pic, s.now())
	if err != nil {
		return 0, err
	}

	// Multibank already holds the new amount at this point, so a Jurnal token
	// expiry is retried here rather than by rerunning the whole confirmation.
	journalID, err := WithCredentialRefresh(ctx, s.tokens, creds, func(ctx context.Context, creds Credentials) (int64, error) {
		return s.ledger.PostJournal(ctx, creds.LedgerToken, entry)
	})
	if err != nil {
		return 0, err
	}
	s.metrics.RecordJournalPost(ctx, entry.TransactionCode)
	logger.L(ctx).Info("Journal posted",
		zap.Int64("journal_id", journalID),
		zap.Int("transaction_code", entry.TransactionCode),
		zap.Int64("amount", entry.Amount))

	bill.ConfirmReconciled()
	ref := billing.NewJournalReference(bill.BillNumber, journalID, entry)
	if err := s.bills.SaveConfirmation(ctx, bill, ref); err != nil {
		logger.L(ctx).Error("Journal posted but confirmation could not be stored",
			zap.Int64("journal_id", journalID), zap.Error(err))
		return 0, err
	}
	return journalID, nil
}

func (s *ConfirmationService) result(bill *billing.Bill, status ConfirmStatus, message string, journalID *int64) *ConfirmResult {
	return &ConfirmResult{
		BillNumber:     bill.BillNumber,
		Status:         status,
		Message:        message,
		JournalID:      journalID,
		IdentityNumber: bill.IdentityNumber,
		Name:           bill.Name,
	}
}
