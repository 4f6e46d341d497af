package billing

import (
	"context"
	"time"

	"github.com/UnFik/api-saku-tagihan/internal/domain/billing"
	"github.com/UnFik/api-saku-tagihan/internal/domain/bulk"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// =============================================================================
// Repositories
// =============================================================================

type MockBillRepository struct {
	mock.Mock
}

func (m *MockBillRepository) FindByNumber(ctx context.Context, billNumber string) (*billing.Bill, error) {
	args := m.Called(ctx, billNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Bill), args.Error(1)
}

func (m *MockBillRepository) FindByNumbers(ctx context.Context, billNumbers []string) ([]*billing.Bill, error) {
	args := m.Called(ctx, billNumbers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*billing.Bill), args.Error(1)
}

func (m *MockBillRepository) FindUnconfirmed(ctx context.Context, criteria billing.BillCriteria) ([]*billing.Bill, error) {
	args := m.Called(ctx, criteria)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*billing.Bill), args.Error(1)
}

func (m *MockBillRepository) List(ctx context.Context, filter billing.BillListFilter, page, pageSize int) (*billing.BillListResult, error) {
	args := m.Called(ctx, filter, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.BillListResult), args.Error(1)
}

func (m *MockBillRepository) Create(ctx context.Context, bill *billing.Bill) error {
	args := m.Called(ctx, bill)
	return args.Error(0)
}

func (m *MockBillRepository) Save(ctx context.Context, bill *billing.Bill) error {
	args := m.Called(ctx, bill)
	return args.Error(0)
}

func (m *MockBillRepository) SavePendingJournal(ctx context.Context, bill *billing.Bill) error {
	args := m.Called(ctx, bill)
	return args.Error(0)
}

func (m *MockBillRepository) SaveConfirmation(ctx context.Context, bill *billing.Bill, ref *billing.JournalReference) error {
	args := m.Called(ctx, bill, ref)
	return args.Error(0)
}

func (m *MockBillRepository) Delete(ctx context.Context, billNumber string) error {
	args := m.Called(ctx, billNumber)
	return args.Error(0)
}

type MockJournalReferenceRepository struct {
	mock.Mock
}

func (m *MockJournalReferenceRepository) FindByBillNumber(ctx context.Context, billNumber string) ([]*billing.JournalReference, error) {
	args := m.Called(ctx, billNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*billing.JournalReference), args.Error(1)
}

type MockUnitRepository struct {
	mock.Mock
}

func (m *MockUnitRepository) FindByCode(ctx context.Context, code string) (*billing.Unit, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Unit), args.Error(1)
}

func (m *MockUnitRepository) FindByName(ctx context.Context, name string) (*billing.Unit, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Unit), args.Error(1)
}

type MockQueueTrackerRepository struct {
	mock.Mock
}

func (m *MockQueueTrackerRepository) Create(ctx context.Context, tracker *bulk.QueueTracker) error {
	args := m.Called(ctx, tracker)
	return args.Error(0)
}

func (m *MockQueueTrackerRepository) FindByID(ctx context.Context, id uuid.UUID) (*bulk.QueueTracker, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bulk.QueueTracker), args.Error(1)
}

func (m *MockQueueTrackerRepository) FindAll(ctx context.Context, filter bulk.QueueTrackerFilter, page, pageSize int) (*bulk.QueueTrackerListResult, error) {
	args := m.Called(ctx, filter, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bulk.QueueTrackerListResult), args.Error(1)
}

func (m *MockQueueTrackerRepository) Increment(ctx context.Context, id uuid.UUID, success, failed int) error {
	args := m.Called(ctx, id, success, failed)
	return args.Error(0)
}

func (m *MockQueueTrackerRepository) Finalize(ctx context.Context, id uuid.UUID, status bulk.QueueStatus, description *string, endDate time.Time) error {
	args := m.Called(ctx, id, status, description, endDate)
	return args.Error(0)
}

func (m *MockQueueTrackerRepository) FindStale(ctx context.Context, before time.Time) ([]*bulk.QueueTracker, error) {
	args := m.Called(ctx, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*bulk.QueueTracker), args.Error(1)
}

// =============================================================================
// Gateways
// =============================================================================

type MockBankGateway struct {
	mock.Mock
}

func (m *MockBankGateway) FetchBill(ctx context.Context, token, billNumber string) (billing.RemoteBillState, error) {
	args := m.Called(ctx, token, billNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(billing.RemoteBillState), args.Error(1)
}

func (m *MockBankGateway) CreateBill(ctx context.Context, token, billNumber string, bill billing.RemoteBill) error {
	args := m.Called(ctx, token, billNumber, bill)
	return args.Error(0)
}

func (m *MockBankGateway) UpdateBill(ctx context.Context, token, billNumber string, update billing.RemoteUpdate) error {
	args := m.Called(ctx, token, billNumber, update)
	return args.Error(0)
}

func (m *MockBankGateway) DeleteBill(ctx context.Context, token, billNumber string) error {
	args := m.Called(ctx, token, billNumber)
	return args.Error(0)
}

type MockLedgerGateway struct {
	mock.Mock
}

func (m *MockLedgerGateway) PostJournal(ctx context.Context, token string, entry billing.JournalEntry) (int64, error) {
	args := m.Called(ctx, token, entry)
	return args.Get(0).(int64), args.Error(1)
}

type MockFacultyDirectory struct {
	mock.Mock
}

func (m *MockFacultyDirectory) FacultyOf(ctx context.Context, unitCode string) (string, error) {
	args := m.Called(ctx, unitCode)
	return args.String(0), args.Error(1)
}

type MockTokenSource struct {
	mock.Mock
}

func (m *MockTokenSource) Token(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockTokenSource) Refresh(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

type MockConfirmationLock struct {
	mock.Mock
}

func (m *MockConfirmationLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockConfirmationLock) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockConfirmationLock) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockConfirmer struct {
	mock.Mock
}

func (m *MockConfirmer) Confirm(ctx context.Context, cmd ConfirmCommand, creds Credentials) (*ConfirmResult, error) {
	args := m.Called(ctx, cmd, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ConfirmResult), args.Error(1)
}

type MockBillCreator struct {
	mock.Mock
}

func (m *MockBillCreator) Create(ctx context.Context, cmd CreateBillCommand) (*billing.Bill, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Bill), args.Error(1)
}
