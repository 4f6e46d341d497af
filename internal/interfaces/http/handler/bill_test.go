package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	appbilling "github.com/UnFik/api-saku-tagihan/internal/application/billing"
	"github.com/UnFik/api-saku-tagihan/internal/domain/billing"
	"github.com/UnFik/api-saku-tagihan/internal/domain/shared"
	"github.com/UnFik/api-saku-tagihan/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBillManager struct {
	mock.Mock
}

func (m *MockBillManager) List(ctx context.Context, q appbilling.ListBillsQuery) (*appbilling.BillList, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appbilling.BillList), args.Error(1)
}

func (m *MockBillManager) Get(ctx context.Context, billNumber string) (*appbilling.BillDetail, error) {
	args := m.Called(ctx, billNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appbilling.BillDetail), args.Error(1)
}

func (m *MockBillManager) Create(ctx context.Context, cmd appbilling.CreateBillCommand) (*billing.Bill, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Bill), args.Error(1)
}

func (m *MockBillManager) Edit(ctx context.Context, billNumber string, cmd appbilling.EditBillCommand) (*billing.Bill, error) {
	args := m.Called(ctx, billNumber, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Bill), args.Error(1)
}

func (m *MockBillManager) Delete(ctx context.Context, billNumber string, creds appbilling.Credentials) error {
	return m.Called(ctx, billNumber, creds).Error(0)
}

func (m *MockBillManager) PublishMany(ctx context.Context, billNumbers []string) (*appbilling.PublishResult, error) {
	args := m.Called(ctx, billNumbers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appbilling.PublishResult), args.Error(1)
}

func (m *MockBillManager) PaymentMany(ctx context.Context, billNumbers []string) (*appbilling.PaymentResult, error) {
	args := m.Called(ctx, billNumbers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appbilling.PaymentResult), args.Error(1)
}

type MockConfirmer struct {
	mock.Mock
}

func (m *MockConfirmer) Confirm(ctx context.Context, cmd appbilling.ConfirmCommand, creds appbilling.Credentials) (*appbilling.ConfirmResult, error) {
	args := m.Called(ctx, cmd, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appbilling.ConfirmResult), args.Error(1)
}

type MockBulkConfirmer struct {
	mock.Mock
}

func (m *MockBulkConfirmer) CreateMany(ctx context.Context, createdBy string, cmds []appbilling.CreateBillCommand) (*appbilling.CreateManyResult, error) {
	args := m.Called(ctx, createdBy, cmds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appbilling.CreateManyResult), args.Error(1)
}

func (m *MockBulkConfirmer) ConfirmMany(ctx context.Context, billNumbers []string, creds appbilling.Credentials) (*appbilling.ConfirmManyResult, error) {
	args := m.Called(ctx, billNumbers, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appbilling.ConfirmManyResult), args.Error(1)
}

func (m *MockBulkConfirmer) ConfirmAll(ctx context.Context, createdBy string, filter billing.ConfirmAllFilter, creds appbilling.Credentials) (*appbilling.BulkResult, error) {
	args := m.Called(ctx, createdBy, filter, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appbilling.BulkResult), args.Error(1)
}

type billFixture struct {
	bills     *MockBillManager
	confirmer *MockConfirmer
	bulk      *MockBulkConfirmer
	router    *gin.Engine
}

func newBillFixture() *billFixture {
	f := &billFixture{
		bills:     new(MockBillManager),
		confirmer: new(MockConfirmer),
		bulk:      new(MockBulkConfirmer),
	}
	f.router = gin.New()
	NewBillHandler(f.bills, f.confirmer, f.bulk).RegisterRoutes(f.router.Group("/api/v1"))
	return f
}

func (f *billFixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func dataOf(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Data
}

func TestBillHandler_Get(t *testing.T) {
	f := newBillFixture()
	bill := &billing.Bill{BillNumber: "13012240013007", Amount: 500000}
	f.bills.On("Get", mock.Anything, "13012240013007").
		Return(&appbilling.BillDetail{Bill: bill, Journals: []*billing.JournalReference{}}, nil)
	f.bills.On("Get", mock.Anything, "missing").
		Return(nil, shared.NotFound("Tagihan tidak ditemukan"))

	w := f.do(http.MethodGet, "/api/v1/bills/13012240013007", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	data := dataOf(t, w)
	assert.Equal(t, "13012240013007", data["bill"].(map[string]any)["bill_number"])

	w = f.do(http.MethodGet, "/api/v1/bills/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), dto.ErrCodeNotFound)
}

func TestBillHandler_Create(t *testing.T) {
	f := newBillFixture()
	f.bills.On("Create", mock.Anything, mock.MatchedBy(func(cmd appbilling.CreateBillCommand) bool {
		return cmd.IdentityNumber == "2024" && cmd.Amount == 500000 && cmd.FlagStatus == "88"
	})).Return(&billing.Bill{BillNumber: "13012240013007"}, nil)

	w := f.do(http.MethodPost, "/api/v1/bills",
		`{"bill_issue_id":1,"name":"Budi","identity_number":"2024","semester":3,"unit_code":"FT01","service_type_id":1,"amount":500000,"flag_status":"88"}`, nil)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "13012240013007", dataOf(t, w)["bill_number"])

	w = f.do(http.MethodPost, "/api/v1/bills", `{"amount":`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), dto.ErrCodeInvalidJSON)
}

func TestBillHandler_List(t *testing.T) {
	f := newBillFixture()
	f.bills.On("List", mock.Anything, appbilling.ListBillsQuery{Semester: "3", Operator: "or", Page: 2, PageSize: 10}).
		Return(&appbilling.BillList{
			Items:      []*billing.Bill{{BillNumber: "13012240013007"}},
			TotalCount: 11,
			Page:       2,
			PageSize:   10,
			TotalPages: 2,
		}, nil)

	w := f.do(http.MethodGet, "/api/v1/bills?semester=3&operator=or&page=2&page_size=10", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []map[string]any `json:"data"`
		Meta dto.Meta         `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "13012240013007", body.Data[0]["bill_number"])
	assert.Equal(t, int64(11), body.Meta.Total)
	assert.Equal(t, 2, body.Meta.TotalPages)

	w = f.do(http.MethodGet, "/api/v1/bills?operator=xor", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.bills.AssertNumberOfCalls(t, "List", 1)
}

func TestBillHandler_CreateMany(t *testing.T) {
	f := newBillFixture()
	queueID := uuid.New()
	f.bulk.On("CreateMany", mock.Anything, "uploader", mock.MatchedBy(func(cmds []appbilling.CreateBillCommand) bool {
		return len(cmds) == 2 && cmds[0].IdentityNumber == "2024" && cmds[1].IdentityNumber == "2025"
	})).Return(&appbilling.CreateManyResult{QueueID: queueID, TotalData: 2}, nil)

	w := f.do(http.MethodPost, "/api/v1/bills/bulk",
		`{"bills":[{"identity_number":"2024","semester":3},{"identity_number":"2025","semester":3}]}`,
		map[string]string{"X-User-Name": "uploader"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	data := dataOf(t, w)
	assert.Equal(t, queueID.String(), data["queue_id"])
	assert.Equal(t, float64(2), data["total_data"])
	assert.Equal(t, "Memulai proses pembuatan 2 tagihan di background", data["message"])

	w = f.do(http.MethodPost, "/api/v1/bills/bulk", `{"bills":[]}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.bulk.AssertNumberOfCalls(t, "CreateMany", 1)
}

func TestBillHandler_Edit(t *testing.T) {
	f := newBillFixture()
	f.bills.On("Edit", mock.Anything, "13012240013007", appbilling.EditBillCommand{Amount: 600000, FlagStatus: "01"}).
		Return(&billing.Bill{BillNumber: "13012240013007", Amount: 600000}, nil)

	w := f.do(http.MethodPut, "/api/v1/bills/13012240013007", `{"amount":600000,"flag_status":"01"}`, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(600000), dataOf(t, w)["amount"])
}

func TestBillHandler_Delete(t *testing.T) {
	f := newBillFixture()
	creds := appbilling.Credentials{BankToken: "bank-1"}
	f.bills.On("Delete", mock.Anything, "13012240013007", creds).Return(nil)
	f.bills.On("Delete", mock.Anything, "13012240013008", appbilling.Credentials{}).
		Return(shared.Conflict("Tagihan sudah dibayar dan tidak dapat dihapus"))

	w := f.do(http.MethodDelete, "/api/v1/bills/13012240013007", "", map[string]string{"X-Multibank-Token": "bank-1"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, dataOf(t, w)["deleted"])

	w = f.do(http.MethodDelete, "/api/v1/bills/13012240013008", "", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestBillHandler_Confirm(t *testing.T) {
	f := newBillFixture()
	amount := int64(550000)
	creds := appbilling.Credentials{BankToken: "bank-1", LedgerToken: "ledger-1"}
	journalID := int64(77)
	f.confirmer.On("Confirm", mock.Anything, appbilling.ConfirmCommand{BillNumber: "2024002", Amount: &amount}, creds).
		Return(&appbilling.ConfirmResult{BillNumber: "2024002", Status: appbilling.ConfirmStatusConfirmed, JournalID: &journalID}, nil)

	w := f.do(http.MethodPost, "/api/v1/bills/confirm", `{"bill_number":"2024002","amount":550000}`, map[string]string{
		"X-Multibank-Token": "bank-1",
		"X-Jurnal-Token":    "ledger-1",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	data := dataOf(t, w)
	assert.Equal(t, "CONFIRMED", data["status"])
	assert.Equal(t, float64(77), data["journal_id"])

	t.Run("missing bill number", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/v1/bills/confirm", `{}`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), dto.ErrCodeValidation)
	})

	t.Run("already confirmed", func(t *testing.T) {
		f.confirmer.On("Confirm", mock.Anything, appbilling.ConfirmCommand{BillNumber: "2024003"}, appbilling.Credentials{}).
			Return(nil, shared.Conflict("Tagihan 2024003 sudah dikonfirmasi"))
		w := f.do(http.MethodPost, "/api/v1/bills/confirm", `{"bill_number":"2024003"}`, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("expired upstream token", func(t *testing.T) {
		f.confirmer.On("Confirm", mock.Anything, appbilling.ConfirmCommand{BillNumber: "2024004"}, appbilling.Credentials{}).
			Return(nil, billing.AuthExpired(billing.PlatformMultibank))
		w := f.do(http.MethodPost, "/api/v1/bills/confirm", `{"bill_number":"2024004"}`, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), dto.ErrCodeUpstreamAuthExpired)
	})
}

func TestBillHandler_ConfirmMany(t *testing.T) {
	f := newBillFixture()
	result := &appbilling.ConfirmManyResult{
		Confirmed: []*appbilling.ConfirmResult{{BillNumber: "2024001", Status: appbilling.ConfirmStatusCreated}},
		Failed:    []appbilling.BulkFailure{{BillNumber: "2024002", Message: "jurnal request failed"}},
	}
	f.bulk.On("ConfirmMany", mock.Anything, []string{"2024001", "2024002"}, appbilling.Credentials{}).Return(result, nil)

	w := f.do(http.MethodPost, "/api/v1/bills/confirm-many", `{"bill_numbers":["2024001","2024002"]}`, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	data := dataOf(t, w)
	assert.Len(t, data["confirmed"], 1)
	assert.Len(t, data["failed"], 1)

	w = f.do(http.MethodPost, "/api/v1/bills/confirm-many", `{"bill_numbers":[]}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.bulk.AssertNumberOfCalls(t, "ConfirmMany", 1)
}

func TestBillHandler_ConfirmAll(t *testing.T) {
	t.Run("queued", func(t *testing.T) {
		f := newBillFixture()
		queueID := uuid.New()
		filter := billing.ConfirmAllFilter{Semester: "3", Major: "Teknik", Operator: billing.OperatorOr}
		f.bulk.On("ConfirmAll", mock.Anything, "operator", filter, appbilling.Credentials{}).
			Return(&appbilling.BulkResult{Queued: true, QueueID: queueID, TotalData: 120, Filters: filter}, nil)

		w := f.do(http.MethodPost, "/api/v1/bills/confirm-all", `{"semester":"3","major":"Teknik","operator":"or"}`,
			map[string]string{"X-User-Name": "operator"})

		assert.Equal(t, http.StatusAccepted, w.Code)
		data := dataOf(t, w)
		assert.Equal(t, queueID.String(), data["queue_id"])
		assert.Equal(t, float64(120), data["total_data"])
	})

	t.Run("empty body selects everything", func(t *testing.T) {
		f := newBillFixture()
		f.bulk.On("ConfirmAll", mock.Anything, SystemUser, billing.ConfirmAllFilter{}, appbilling.Credentials{}).
			Return(&appbilling.BulkResult{Filters: billing.ConfirmAllFilter{Operator: billing.OperatorAnd}}, nil)

		w := f.do(http.MethodPost, "/api/v1/bills/confirm-all", "", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		data := dataOf(t, w)
		assert.Equal(t, []any{}, data["confirmed"])
		assert.Equal(t, []any{}, data["failed"])
	})

	t.Run("invalid operator", func(t *testing.T) {
		f := newBillFixture()
		w := f.do(http.MethodPost, "/api/v1/bills/confirm-all", `{"operator":"xor"}`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		f.bulk.AssertNotCalled(t, "ConfirmAll", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestBillHandler_PublishAndPayment(t *testing.T) {
	f := newBillFixture()
	published := &appbilling.PublishResult{Updated: []string{"2024001"}}
	published.Skipped.AlreadyPublished = []string{"2024002"}
	f.bills.On("PublishMany", mock.Anything, []string{"2024001", "2024002"}).Return(published, nil)
	f.bills.On("PaymentMany", mock.Anything, []string{"2024009"}).
		Return(nil, shared.NotFound(`Bill Number Tagihan tidak ditemukan: "2024009"`))

	w := f.do(http.MethodPost, "/api/v1/bills/publish", `{"bill_numbers":["2024001","2024002"]}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	data := dataOf(t, w)
	assert.Equal(t, []any{"2024001"}, data["updated"])
	assert.Equal(t, []any{"2024002"}, data["skipped"].(map[string]any)["already_published"])

	w = f.do(http.MethodPost, "/api/v1/bills/payment", `{"bill_numbers":["2024009"]}`, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "2024009")
}
