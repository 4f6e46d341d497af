package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/UnFik/api-saku-tagihan/internal/domain/billing"
	"github.com/UnFik/api-saku-tagihan/internal/domain/shared"
	"github.com/UnFik/api-saku-tagihan/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Credentials are the bearer tokens one operation uses against the partner platforms.
// Tokens supplied by the caller take precedence over the cached ones.
type Credentials struct {
	BankToken   string
	LedgerToken string
}

func (c Credentials) token(p billing.Platform) string {
	switch p {
	case billing.PlatformMultibank:
		return c.BankToken
	case billing.PlatformJurnal:
		return c.LedgerToken
	}
	return ""
}

func (c Credentials) with(p billing.Platform, token string) Credentials {
	switch p {
	case billing.PlatformMultibank:
		c.BankToken = token
	case billing.PlatformJurnal:
		c.LedgerToken = token
	}
	return c
}

// TokenSources holds one token source per platform that needs a login
type TokenSources struct {
	Bank   billing.TokenSource
	Ledger billing.TokenSource
}

func (t TokenSources) source(p billing.Platform) billing.TokenSource {
	switch p {
	case billing.PlatformMultibank:
		return t.Bank
	case billing.PlatformJurnal:
		return t.Ledger
	}
	return nil
}

// Resolve fills the missing tokens for platforms from their token sources
func (t TokenSources) Resolve(ctx context.Context, creds Credentials, platforms ...billing.Platform) (Credentials, error) {
	for _, p := range platforms {
		if creds.token(p) != "" {
			continue
		}
		src := t.source(p)
		if src == nil {
			continue
		}
		token, err := src.Token(ctx)
		if err != nil {
			return creds, loginFailure(p, err)
		}
		creds = creds.with(p, token)
	}
	return creds, nil
}

// refresh swaps in a fresh token for the platform that rejected err
func (t TokenSources) refresh(ctx context.Context, creds Credentials, err error) (Credentials, billing.Platform, error) {
	var ue *billing.UpstreamError
	if !errors.As(err, &ue) {
		return creds, "", fmt.Errorf("cannot tell which platform rejected the token: %w", err)
	}
	src := t.source(ue.Platform)
	if src == nil {
		return creds, ue.Platform, fmt.Errorf("no token source for %s", ue.Platform)
	}
	token, rerr := src.Refresh(ctx)
	if rerr != nil {
		return creds, ue.Platform, loginFailure(ue.Platform, rerr)
	}
	return creds.with(ue.Platform, token), ue.Platform, nil
}

func loginFailure(p billing.Platform, err error) error {
	if shared.ErrorCode(err) != "" {
		return err
	}
	return billing.Unavailable(p, fmt.Errorf("login failed: %w", err))
}

// refreshedError marks an auth failure that already went through one refresh,
// so an enclosing WithCredentialRefresh does not refresh again
type refreshedError struct {
	err error
}

func (e *refreshedError) Error() string { return e.err.Error() }
func (e *refreshedError) Unwrap() error { return e.err }

// WithCredentialRefresh runs body, and when a platform reports an expired token,
// refreshes that platform's token once and runs body a second time. The second
// outcome is returned as is, so a persistent auth failure surfaces to the caller.
// Nested calls never refresh the same failure twice.
func WithCredentialRefresh[T any](
	ctx context.Context,
	tokens TokenSources,
	creds Credentials,
	body func(context.Context, Credentials) (T, error),
) (T, error) {
	result, err := body(ctx, creds)
	var done *refreshedError
	if err == nil || !shared.IsAuthExpired(err) || errors.As(err, &done) {
		return result, err
	}

	refreshed, platform, rerr := tokens.refresh(ctx, creds, err)
	if rerr != nil {
		logger.L(ctx).Warn("Token refresh failed", zap.String("platform", string(platform)), zap.Error(rerr))
		return result, err
	}

	logger.L(ctx).Info("Retrying with refreshed token", zap.String("platform", string(platform)))
	result, err = body(ctx, refreshed)
	if err != nil && shared.IsAuthExpired(err) && !errors.As(err, &done) {
		err = &refreshedError{err: err}
	}
	return result, err
}
