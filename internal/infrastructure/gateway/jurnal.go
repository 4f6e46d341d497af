package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/UnFik/api-saku-tagihan/internal/domain/billing"
	"github.com/shopspring/decimal"
)

const (
	jurnalLoginPath  = "/login"
	jurnalCreatePath = "/create-jurnal"
	jurnalSuccessMsg = "success"
)

// JurnalClient implements billing.LedgerGateway over the Jurnal REST API
type JurnalClient struct {
	config Config
	client *httpClient
}

var _ billing.LedgerGateway = (*JurnalClient)(nil)

// NewJurnalClient creates a Jurnal client
func NewJurnalClient(cfg Config) (*JurnalClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("jurnal: %w", err)
	}
	return &JurnalClient{
		config: cfg,
		client: newHTTPClient(billing.PlatformJurnal, cfg),
	}, nil
}

// Login exchanges the configured credentials for a bearer token
func (j *JurnalClient) Login(ctx context.Context) (string, error) {
	if err := j.config.validateCredentials(); err != nil {
		return "", fmt.Errorf("jurnal: %w", err)
	}
	resp, err := j.client.do(ctx, http.MethodPost, jurnalLoginPath, "", map[string]string{
		"username": j.config.Username,
		"password": j.config.Password,
	})
	if err != nil {
		return "", err
	}
	if !resp.ok() {
		return "", billing.Unavailable(billing.PlatformJurnal,
			fmt.Errorf("login rejected (HTTP %d): %s", resp.status, upstreamMessage(resp.body)))
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := resp.decode(billing.PlatformJurnal, &body); err != nil {
		return "", err
	}
	if body.Token == "" {
		return "", billing.Unavailable(billing.PlatformJurnal, errors.New("login returned no token"))
	}
	return body.Token, nil
}

type jurnalCreateRequest struct {
	Tanggal     string `json:"tanggal"`
	IDTransaksi int    `json:"idTransaksi"`
	NoBukti     string `json:"noBukti"`
	Jumlah      int64  `json:"jumlah"`
	Keterangan  string `json:"keterangan"`
	PIC         string `json:"pic"`
	KodeUnit    string `json:"kodeUnit"`
}

type jurnalCreateResponse struct {
	IDJurnal decimal.Decimal `json:"id_jurnal"`
	Message  string          `json:"message"`
}

// PostJournal creates a journal entry and returns the id Jurnal assigned
func (j *JurnalClient) PostJournal(ctx context.Context, token string, entry billing.JournalEntry) (int64, error) {
	resp, err := j.client.do(ctx, http.MethodPost, jurnalCreatePath, token, jurnalCreateRequest{
		Tanggal:     entry.Date.UTC().Format(time.RFC3339),
		IDTransaksi: entry.TransactionCode,
		NoBukti:     entry.VoucherNumber,
		Jumlah:      entry.Amount,
		Keterangan:  entry.Description,
		PIC:         entry.PIC,
		KodeUnit:    entry.UnitCode,
	})
	if err != nil {
		return 0, err
	}
	if !resp.ok() {
		return 0, j.client.failure(resp)
	}

	var body jurnalCreateResponse
	if err := resp.decode(billing.PlatformJurnal, &body); err != nil {
		return 0, err
	}
	if body.Message != jurnalSuccessMsg {
		return 0, billing.Unavailable(billing.PlatformJurnal, fmt.Errorf("journal rejected: %s", body.Message))
	}
	if !body.IDJurnal.IsPositive() {
		return 0, billing.Unavailable(billing.PlatformJurnal, errors.New("journal accepted without an id"))
	}
	return body.IDJurnal.IntPart(), nil
}
