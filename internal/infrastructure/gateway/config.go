// Package gateway implements the HTTP clients for the partner platforms:
// Multibank (bills), Jurnal (ledger) and SIAKAD (study program directory).
package gateway

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds a single partner request when Config.Timeout is zero
const DefaultTimeout = 15 * time.Second

// Config holds the connection settings for one partner platform
type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// Errors for configuration validation
var (
	ErrMissingBaseURL     = errors.New("gateway: missing base URL")
	ErrInvalidBaseURL     = errors.New("gateway: base URL must be an absolute http(s) URL")
	ErrMissingCredentials = errors.New("gateway: missing username or password")
)

// Validate checks the base URL. Credentials are checked by the clients that log in.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return ErrMissingBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidBaseURL
	}
	return nil
}

func (c Config) validateCredentials() error {
	if c.Username == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}
