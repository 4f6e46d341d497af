package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/UnFik/api-saku-tagihan/internal/domain/billing"
)

const siakadProgramPath = "/as400/programstudi/"

// SiakadDirectory implements billing.FacultyDirectory over the SIAKAD API
type SiakadDirectory struct {
	client *httpClient
}

var _ billing.FacultyDirectory = (*SiakadDirectory)(nil)

// NewSiakadDirectory creates a SIAKAD client. SIAKAD needs no credentials.
func NewSiakadDirectory(cfg Config) (*SiakadDirectory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("siakad: %w", err)
	}
	return &SiakadDirectory{client: newHTTPClient(billing.PlatformSiakad, cfg)}, nil
}

type siakadProgramResponse struct {
	Isi []struct {
		NamaFakultas string `json:"namaFakultas"`
	} `json:"isi"`
}

// FacultyOf returns the faculty of a study program. An unknown program or a
// non-2xx answer yields "" so callers can fall back to the local unit table.
func (s *SiakadDirectory) FacultyOf(ctx context.Context, unitCode string) (string, error) {
	if strings.TrimSpace(unitCode) == "" {
		return "", nil
	}
	resp, err := s.client.do(ctx, http.MethodGet, siakadProgramPath+url.PathEscape(unitCode), "", nil)
	if err != nil {
		return "", err
	}
	if !resp.ok() {
		return "", nil
	}

	var body siakadProgramResponse
	if err := resp.decode(billing.PlatformSiakad, &body); err != nil {
		return "", err
	}
	if len(body.Isi) == 0 {
		return "", nil
	}
	return strings.TrimSpace(body.Isi[0].NamaFakultas), nil
}
