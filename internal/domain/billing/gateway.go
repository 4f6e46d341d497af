package billing

import (
	"context"
	"fmt"

	"github.com/UnFik/api-saku-tagihan/internal/domain/shared"
)

// Platform names an external partner platform
type Platform string

const (
	PlatformMultibank Platform = "multibank"
	PlatformJurnal    Platform = "jurnal"
	PlatformSiakad    Platform = "siakad"
)

// UpstreamError is a DomainError raised by a partner platform.
// It keeps the platform so credential refresh can target the right one.
type UpstreamError struct {
	Platform Platform
	Err      *shared.DomainError
}

// Error implements the error interface
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Platform, e.Err.Error())
}

// Unwrap exposes the DomainError
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// AuthExpired reports an expired credential on platform
func AuthExpired(p Platform) *UpstreamError {
	return &UpstreamError{
		Platform: p,
		Err:      shared.NewDomainError(shared.CodeUpstreamAuthExpired, fmt.Sprintf("Token %s telah kadaluarsa", p)),
	}
}

// Unavailable reports a non-auth failure on platform
func Unavailable(p Platform, cause error) *UpstreamError {
	return &UpstreamError{
		Platform: p,
		Err:      shared.WrapDomainError(shared.CodeUpstreamUnavailable, fmt.Sprintf("%s request failed", p), cause),
	}
}

// Rejected reports a platform answering with a domain-level refusal (not found, not allowed)
func Rejected(p Platform, code, message string) *UpstreamError {
	return &UpstreamError{
		Platform: p,
		Err:      shared.NewDomainError(code, message),
	}
}

// BankGateway is the Multibank payment platform
type BankGateway interface {
	// FetchBill reads a bill. A missing bill is RemoteMissing, not an error.
	FetchBill(ctx context.Context, token, billNumber string) (RemoteBillState, error)

	// CreateBill registers a new bill
	CreateBill(ctx context.Context, token, billNumber string, bill RemoteBill) error

	// UpdateBill edits amount, due date and flag of an existing bill
	UpdateBill(ctx context.Context, token, billNumber string, update RemoteUpdate) error

	// DeleteBill removes a bill. 404 surfaces as NOT_FOUND, 405 (already paid) as CONFLICT.
	DeleteBill(ctx context.Context, token, billNumber string) error
}

// LedgerGateway is the Jurnal accounting platform
type LedgerGateway interface {
	// PostJournal creates a journal entry and returns its id
	PostJournal(ctx context.Context, token string, entry JournalEntry) (int64, error)
}

// FacultyDirectory resolves the faculty (PIC) responsible for a study program
type FacultyDirectory interface {
	// FacultyOf returns the faculty name for a unit code, or "" when unknown
	FacultyOf(ctx context.Context, unitCode string) (string, error)
}

// TokenSource hands out bearer tokens for one platform
type TokenSource interface {
	// Token returns the current token, logging in when none is cached
	Token(ctx context.Context) (string, error)

	// Refresh discards the cached token and logs in again
	Refresh(ctx context.Context) (string, error)
}
