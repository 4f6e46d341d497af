package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/UnFik/api-saku-tagihan/internal/domain/billing"
	"github.com/UnFik/api-saku-tagihan/internal/domain/shared"
	"github.com/shopspring/decimal"
)

const (
	multibankLoginPath = "/login"
	multibankBillsPath = "/tagihan"
	multibankDateFmt   = "2006-01-02"
)

// MultibankClient implements billing.BankGateway over the Multibank REST API
type MultibankClient struct {
	config Config
	client *httpClient
}

var _ billing.BankGateway = (*MultibankClient)(nil)

// NewMultibankClient creates a Multibank client
func NewMultibankClient(cfg Config) (*MultibankClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("multibank: %w", err)
	}
	return &MultibankClient{
		config: cfg,
		client: newHTTPClient(billing.PlatformMultibank, cfg),
	}, nil
}

type multibankLoginResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    struct {
		RememberToken string `json:"remember_token"`
	} `json:"data"`
}

// Login exchanges the configured credentials for a remember token
func (m *MultibankClient) Login(ctx context.Context) (string, error) {
	if err := m.config.validateCredentials(); err != nil {
		return "", fmt.Errorf("multibank: %w", err)
	}
	resp, err := m.client.do(ctx, http.MethodPost, multibankLoginPath, "", map[string]string{
		"user":     m.config.Username,
		"password": m.config.Password,
	})
	if err != nil {
		return "", err
	}

	var body multibankLoginResponse
	if !resp.ok() {
		return "", billing.Unavailable(billing.PlatformMultibank,
			fmt.Errorf("login rejected (HTTP %d): %s", resp.status, upstreamMessage(resp.body)))
	}
	if err := resp.decode(billing.PlatformMultibank, &body); err != nil {
		return "", err
	}
	if body.Status != http.StatusOK || body.Data.RememberToken == "" {
		return "", billing.Unavailable(billing.PlatformMultibank, fmt.Errorf("login rejected: %s", body.Message))
	}
	return body.Data.RememberToken, nil
}

// flagCode accepts the flag either as a string ("02") or a number (2)
type flagCode string

func (f *flagCode) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "null" {
		s = ""
	}
	if len(s) == 1 {
		s = "0" + s
	}
	*f = flagCode(s)
	return nil
}

type multibankBill struct {
	Amount     decimal.Decimal `json:"amount"`
	FlagStatus flagCode        `json:"flag_status"`
	DueDate    *string         `json:"due_date"`
}

type multibankBillResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Data    multibankBill `json:"data"`
}

// FetchBill reads a bill. 404 and success=false both mean Multibank has no such bill.
func (m *MultibankClient) FetchBill(ctx context.Context, token, billNumber string) (billing.RemoteBillState, error) {
	resp, err := m.client.do(ctx, http.MethodGet, billPath(billNumber), token, nil)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.status == http.StatusNotFound:
		return billing.RemoteMissing{}, nil
	case !resp.ok():
		return nil, m.client.failure(resp)
	}

	var body multibankBillResponse
	if err := resp.decode(billing.PlatformMultibank, &body); err != nil {
		return nil, err
	}
	if !body.Success {
		return billing.RemoteMissing{}, nil
	}

	flag, err := billing.ParseFlagStatus(string(body.Data.FlagStatus))
	if err != nil {
		return nil, billing.Unavailable(billing.PlatformMultibank,
			fmt.Errorf("bill %s has unknown flag %q", billNumber, body.Data.FlagStatus))
	}
	return billing.RemoteFound{
		Amount:  body.Data.Amount.Round(0).IntPart(),
		Flag:    flag,
		DueDate: parseDueDate(body.Data.DueDate),
	}, nil
}

type multibankCreateRequest struct {
	BillIssueID string `json:"bill_issue_id"`
	BillGroupID string `json:"bill_group_id"`
	Amount      string `json:"amount"`
	NIM         string `json:"nim"`
	Semester    string `json:"semester"`
	Name        string `json:"name"`
	FlagStatus  string `json:"flag_status"`
	DueDate     string `json:"due_date"`
}

type multibankWriteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CreateBill registers a new bill on Multibank
func (m *MultibankClient) CreateBill(ctx context.Context, token, billNumber string, bill billing.RemoteBill) error {
	resp, err := m.client.do(ctx, http.MethodPost, multibankBillsPath, token, multibankCreateRequest{
		BillIssueID: strconv.FormatInt(bill.BillIssueID, 10),
		BillGroupID: strconv.FormatInt(bill.BillGroupID, 10),
		Amount:      strconv.FormatInt(bill.Amount, 10),
		NIM:         bill.IdentityNumber,
		Semester:    strconv.Itoa(bill.Semester),
		Name:        bill.Name,
		FlagStatus:  string(bill.Flag),
		DueDate:     formatDueDate(bill.DueDate),
	})
	if err != nil {
		return err
	}
	if !resp.ok() {
		return m.client.failure(resp)
	}
	return decodeWrite(resp, "create", billNumber)
}

type multibankUpdateRequest struct {
	Amount     string `json:"amount"`
	DueDate    string `json:"due_date"`
	FlagStatus string `json:"flag_status"`
}

// UpdateBill edits amount, due date and flag of an existing bill
func (m *MultibankClient) UpdateBill(ctx context.Context, token, billNumber string, update billing.RemoteUpdate) error {
	resp, err := m.client.do(ctx, http.MethodPut, billPath(billNumber), token, multibankUpdateRequest{
		Amount:     strconv.FormatInt(update.Amount, 10),
		DueDate:    formatDueDate(update.DueDate),
		FlagStatus: string(update.Flag),
	})
	if err != nil {
		return err
	}
	switch {
	case resp.status == http.StatusNotFound:
		return billing.Rejected(billing.PlatformMultibank, shared.CodeNotFound,
			fmt.Sprintf("Tagihan %s tidak ditemukan di Multibank", billNumber))
	case !resp.ok():
		return m.client.failure(resp)
	}
	return decodeWrite(resp, "update", billNumber)
}

// decodeWrite checks the success flag Multibank puts on a write response
func decodeWrite(resp *response, op, billNumber string) error {
	var body multibankWriteResponse
	if err := resp.decode(billing.PlatformMultibank, &body); err != nil {
		return err
	}
	if !body.Success {
		return billing.Unavailable(billing.PlatformMultibank,
			fmt.Errorf("%s bill %s rejected: %s", op, billNumber, body.Message))
	}
	return nil
}

// DeleteBill removes a bill. 405 means Multibank refuses because the bill is paid.
func (m *MultibankClient) DeleteBill(ctx context.Context, token, billNumber string) error {
	resp, err := m.client.do(ctx, http.MethodDelete, billPath(billNumber), token, nil)
	if err != nil {
		return err
	}
	switch {
	case resp.status == http.StatusNotFound:
		return billing.Rejected(billing.PlatformMultibank, shared.CodeNotFound,
			fmt.Sprintf("Tagihan %s tidak ditemukan di Multibank", billNumber))
	case resp.status == http.StatusMethodNotAllowed:
		return billing.Rejected(billing.PlatformMultibank, shared.CodeConflict,
			fmt.Sprintf("Tagihan %s sudah dibayar dan tidak dapat dihapus", billNumber))
	case !resp.ok():
		return m.client.failure(resp)
	}
	return nil
}

func billPath(billNumber string) string {
	return multibankBillsPath + "/" + url.PathEscape(billNumber)
}

func formatDueDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(multibankDateFmt)
}

// parseDueDate accepts "2006-01-02" with an optional time suffix; anything else is dropped
func parseDueDate(s *string) *time.Time {
	if s == nil || len(*s) < len(multibankDateFmt) {
		return nil
	}
	t, err := time.Parse(multibankDateFmt, (*s)[:len(multibankDateFmt)])
	if err != nil {
		return nil
	}
	return &t
}
