package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/UnFik/api-saku-tagihan/internal/domain/billing"
	"github.com/UnFik/api-saku-tagihan/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// LoginFunc obtains a fresh token from a platform
type LoginFunc func(ctx context.Context) (string, error)

// refreshDebounce is how long a freshly obtained token satisfies further
// Refresh calls. Workers that hit the same expiry together share one login.
const refreshDebounce = 2 * time.Second

// CachedTokenSource keeps one token in memory and logs in on demand
type CachedTokenSource struct {
	platform billing.Platform
	login    LoginFunc
	now      func() time.Time

	mu        sync.Mutex
	token     string
	fetchedAt time.Time
}

var _ billing.TokenSource = (*CachedTokenSource)(nil)

// NewCachedTokenSource creates a token source for platform backed by login
func NewCachedTokenSource(platform billing.Platform, login LoginFunc) *CachedTokenSource {
	return &CachedTokenSource{
		platform: platform,
		login:    login,
		now:      time.Now,
	}
}

// Token returns the cached token, logging in when none is cached
func (s *CachedTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" {
		return s.token, nil
	}
	return s.fetchLocked(ctx)
}

// Refresh discards the cached token and logs in again, unless a login
// finished within the debounce window
func (s *CachedTokenSource) Refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Sub(s.fetchedAt) < refreshDebounce {
		return s.token, nil
	}
	s.token = ""
	return s.fetchLocked(ctx)
}

func (s *CachedTokenSource) fetchLocked(ctx context.Context) (string, error) {
	token, err := s.login(ctx)
	if err != nil {
		logger.L(ctx).Error("Token login failed", zap.String("platform", string(s.platform)), zap.Error(err))
		return "", err
	}
	s.token = token
	s.fetchedAt = s.now()
	logger.L(ctx).Info("Token refreshed", zap.String("platform", string(s.platform)))
	return token, nil
}
