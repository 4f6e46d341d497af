package billing

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/UnFik/api-saku-tagihan/internal/domain/billing"
	"github.com/UnFik/api-saku-tagihan/internal/domain/bulk"
	"github.com/UnFik/api-saku-tagihan/internal/domain/shared"
	"github.com/UnFik/api-saku-tagihan/internal/infrastructure/logger"
	"github.com/UnFik/api-saku-tagihan/internal/infrastructure/taskqueue"
	"github.com/UnFik/api-saku-tagihan/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Confirmer confirms one bill
type Confirmer interface {
	Confirm(ctx context.Context, cmd ConfirmCommand, creds Credentials) (*ConfirmResult, error)
}

// UnitQueue accepts units of background work
type UnitQueue interface {
	Submit(ctx context.Context, unit taskqueue.Unit) error
}

// BulkResult is the answer to a bulk confirmation request.
// When Queued is false nothing matched and no tracker was created.
type BulkResult struct {
	Queued    bool
	QueueID   uuid.UUID
	TotalData int
	Filters   billing.ConfirmAllFilter
}

// BulkFailure names a bill that could not be processed and why
type BulkFailure struct {
	BillNumber string `json:"bill_number"`
	Message    string `json:"message"`
}

// ConfirmManyResult is the outcome of a synchronous multi-bill confirmation
type ConfirmManyResult struct {
	Confirmed []*ConfirmResult `json:"confirmed"`
	Failed    []BulkFailure    `json:"failed"`
	Skipped   struct {
		AlreadyConfirmed []string `json:"already_confirmed"`
	} `json:"skipped"`
}

// CreateManyResult is the answer to a bulk creation request
type CreateManyResult struct {
	QueueID   uuid.UUID `json:"queue_id"`
	TotalData int       `json:"total_data"`
}

// MaxCreateMany caps the rows of one bulk creation request
const MaxCreateMany = 10000

// BillCreator stores one new bill
type BillCreator interface {
	Create(ctx context.Context, cmd CreateBillCommand) (*billing.Bill, error)
}

// BulkConfirmationServiceConfig holds the dependencies of BulkConfirmationService
type BulkConfirmationServiceConfig struct {
	Bills      billing.BillRepository
	Trackers   bulk.QueueTrackerRepository
	Confirmer  Confirmer
	Creator    BillCreator
	Queue      UnitQueue
	FlushEvery int
	Logger     *zap.Logger
}

// BulkConfirmationService turns a filter into a tracked batch of confirmations
type BulkConfirmationService struct {
	bills      billing.BillRepository
	trackers   bulk.QueueTrackerRepository
	confirmer  Confirmer
	creator    BillCreator
	queue      UnitQueue
	flushEvery int
	logger     *zap.Logger

	live sync.Map // tracker id -> struct{}, batches still running in this process
	wg   sync.WaitGroup
}

// NewBulkConfirmationService creates a new BulkConfirmationService
func NewBulkConfirmationService(config BulkConfirmationServiceConfig) *BulkConfirmationService {
	log := config.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &BulkConfirmationService{
		bills:      config.Bills,
		trackers:   config.Trackers,
		confirmer:  config.Confirmer,
		creator:    config.Creator,
		queue:      config.Queue,
		flushEvery: config.FlushEvery,
		logger:     log,
	}
}

// ConfirmAll confirms every unconfirmed primary-service bill matching filter in
// the background. It returns as soon as the tracker exists.
func (s *BulkConfirmationService) ConfirmAll(
	ctx context.Context,
	createdBy string,
	filter billing.ConfirmAllFilter,
	creds Credentials,
) (*BulkResult, error) {
	filter = filter.Normalize()
	criteria, err := filter.Criteria()
	if err != nil {
		return nil, err
	}

	bills, err := s.bills.FindUnconfirmed(ctx, criteria)
	if err != nil {
		return nil, err
	}
	if len(bills) == 0 {
		logger.WithLogger(ctx, s.logger).Info("No bills to confirm", zap.Any("filters", filter))
		return &BulkResult{Filters: filter}, nil
	}

	tracker, err := bulk.NewQueueTracker(createdBy, len(bills), trackerScope(filter))
	if err != nil {
		return nil, err
	}
	if err := tracker.StartProcessing(); err != nil {
		return nil, err
	}
	if err := s.trackers.Create(ctx, tracker); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "billing.confirm_all",
		telemetry.WithAttribute(telemetry.SpanAttrQueueID, tracker.ID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrTotalData, len(bills)))
	defer span.End()

	units := make([]taskqueue.Unit, len(bills))
	for i, bill := range bills {
		units[i] = s.confirmUnit(tracker.ID, bill, creds)
	}
	s.startBatch(ctx, tracker, "confirmation", units)

	return &BulkResult{
		Queued:    true,
		QueueID:   tracker.ID,
		TotalData: tracker.TotalData,
		Filters:   filter,
	}, nil
}

// startBatch submits units and finalizes the tracker once every unit has an
// outcome. Both run detached from the request.
func (s *BulkConfirmationService) startBatch(ctx context.Context, tracker *bulk.QueueTracker, kind string, units []taskqueue.Unit) {
	bg := logger.WithQueueID(logger.EnsureContext(context.WithoutCancel(ctx), s.logger), tracker.ID.String())
	recorder := taskqueue.NewTrackerRecorder(s.trackers, tracker, s.flushEvery, s.logger)
	s.live.Store(tracker.ID, struct{}{})

	log := logger.L(bg).With(zap.String("kind", kind))
	log.Info("Bulk batch queued", zap.Int("total", len(units)))

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		for _, unit := range units {
			unit.OnResult = func(o taskqueue.Outcome) {
				recorder.Record(bg, o)
			}
			if err := s.queue.Submit(bg, unit); err != nil {
				log.Error("Failed to submit unit", zap.String("key", unit.Key), zap.Error(err))
				recorder.Record(bg, taskqueue.Outcome{Key: unit.Key, Err: err})
			}
		}
	}()

	go func() {
		defer s.wg.Done()
		defer s.live.Delete(tracker.ID)
		if err := recorder.Wait(bg); err != nil {
			log.Error("Bulk batch could not be finalized", zap.Error(err))
			return
		}
		succeeded, failed := recorder.Counts()
		log.Info("Bulk batch finished", zap.Int("success", succeeded), zap.Int("failed", failed))
	}()
}

func (s *BulkConfirmationService) confirmUnit(queueID uuid.UUID, bill *billing.Bill, creds Credentials) taskqueue.Unit {
	amount := bill.Amount
	cmd := ConfirmCommand{BillNumber: bill.BillNumber, Amount: &amount, DueDate: bill.DueDate}
	return taskqueue.Unit{
		Key: bill.BillNumber,
		Run: func(ctx context.Context) error {
			ctx = logger.WithQueueID(logger.EnsureContext(ctx, s.logger), queueID.String())
			_, err := s.confirmer.Confirm(ctx, cmd, creds)
			if err != nil && !isRetryable(err) {
				return taskqueue.Permanent(err)
			}
			return err
		},
	}
}

func (s *BulkConfirmationService) createUnit(queueID uuid.UUID, index int, cmd CreateBillCommand) taskqueue.Unit {
	key := "row-" + strconv.Itoa(index+1)
	if id := strings.TrimSpace(cmd.IdentityNumber); id != "" {
		key = billing.BuildBillNumber(id, cmd.Semester, cmd.BillGroupID)
	}
	return taskqueue.Unit{
		Key: key,
		Run: func(ctx context.Context) error {
			ctx = logger.WithQueueID(logger.EnsureContext(ctx, s.logger), queueID.String())
			_, err := s.creator.Create(ctx, cmd)
			if err != nil && !isRetryable(err) {
				return taskqueue.Permanent(err)
			}
			return err
		},
	}
}

// isRetryable reports whether a failed confirmation may succeed on a later attempt.
// Domain refusals and auth failures that survived a refresh are final.
func isRetryable(err error) bool {
	switch shared.ErrorCode(err) {
	case shared.CodeNotFound, shared.CodeConflict, shared.CodeValidation,
		shared.CodeInvalidState, shared.CodeUpstreamAuthExpired:
		return false
	}
	return true
}

// CreateMany stores bills in the background, one queued unit per row.
// A row that fails validation or hits a taken bill number counts as failed
// without retries. It returns as soon as the tracker exists.
func (s *BulkConfirmationService) CreateMany(ctx context.Context, createdBy string, cmds []CreateBillCommand) (*CreateManyResult, error) {
	if len(cmds) == 0 {
		return nil, shared.Validation("At least one bill is required")
	}
	if len(cmds) > MaxCreateMany {
		return nil, shared.Validation("At most %d bills can be created at once, got %d", MaxCreateMany, len(cmds))
	}

	tracker, err := bulk.NewCreationTracker(createdBy, len(cmds))
	if err != nil {
		return nil, err
	}
	if err := tracker.StartProcessing(); err != nil {
		return nil, err
	}
	if err := s.trackers.Create(ctx, tracker); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "billing.create_many",
		telemetry.WithAttribute(telemetry.SpanAttrQueueID, tracker.ID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrTotalData, len(cmds)))
	defer span.End()

	units := make([]taskqueue.Unit, len(cmds))
	for i, cmd := range cmds {
		units[i] = s.createUnit(tracker.ID, i, cmd)
	}
	s.startBatch(ctx, tracker, "creation", units)

	return &CreateManyResult{QueueID: tracker.ID, TotalData: tracker.TotalData}, nil
}

// IsLive reports whether the batch of tracker id is still running in this process
func (s *BulkConfirmationService) IsLive(id uuid.UUID) bool {
	_, ok := s.live.Load(id)
	return ok
}

// Wait blocks until every batch started by this service was finalized or ctx is done
func (s *BulkConfirmationService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConfirmMany confirms the given bills one after another. Every number must exist.
// Per-bill failures are collected, not returned.
func (s *BulkConfirmationService) ConfirmMany(ctx context.Context, billNumbers []string, creds Credentials) (*ConfirmManyResult, error) {
	bills, err := loadAll(ctx, s.bills, billNumbers)
	if err != nil {
		return nil, err
	}

	result := &ConfirmManyResult{Confirmed: []*ConfirmResult{}, Failed: []BulkFailure{}}
	result.Skipped.AlreadyConfirmed = []string{}

	for _, bill := range bills {
		if bill.IsConfirmed {
			result.Skipped.AlreadyConfirmed = append(result.Skipped.AlreadyConfirmed, bill.BillNumber)
			continue
		}
		res, err := s.confirmer.Confirm(ctx, ConfirmCommand{BillNumber: bill.BillNumber}, creds)
		if err != nil {
			result.Failed = append(result.Failed, BulkFailure{BillNumber: bill.BillNumber, Message: err.Error()})
			continue
		}
		result.Confirmed = append(result.Confirmed, res)
	}

	logger.WithLogger(ctx, s.logger).Info("Confirm many finished",
		zap.Int("confirmed", len(result.Confirmed)),
		zap.Int("failed", len(result.Failed)),
		zap.Int("skipped", len(result.Skipped.AlreadyConfirmed)))
	return result, nil
}

func trackerScope(f billing.ConfirmAllFilter) bulk.TrackerScope {
	return bulk.TrackerScope{
		Semester:  f.Semester,
		BillIssue: f.BillIssueID,
		Major:     f.Major,
	}
}

// loadAll fetches bills in request order and fails with NOT_FOUND listing every missing number
func loadAll(ctx context.Context, repo billing.BillRepository, billNumbers []string) ([]*billing.Bill, error) {
	numbers := dedupe(billNumbers)
	if len(numbers) == 0 {
		return nil, shared.Validation("At least one bill number is required")
	}

	found, err := repo.FindByNumbers(ctx, numbers)
	if err != nil {
		return nil, err
	}
	byNumber := make(map[string]*billing.Bill, len(found))
	for _, b := range found {
		byNumber[b.BillNumber] = b
	}

	bills := make([]*billing.Bill, 0, len(numbers))
	var missing []string
	for _, n := range numbers {
		b, ok := byNumber[n]
		if !ok {
			missing = append(missing, n)
			continue
		}
		bills = append(bills, b)
	}
	if len(missing) > 0 {
		return nil, shared.NotFound("Bill Number Tagihan tidak ditemukan: %s", joinQuoted(missing))
	}
	return bills, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func joinQuoted(values []string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += ", "
		}
		out += strconv.Quote(v)
	}
	return out
}
