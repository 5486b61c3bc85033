package prober

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// StaticQuotaProvider returns fixed quota values, e.g. allocations declared
// in configuration or updated by an external job.
type StaticQuotaProvider struct {
	service string
	quotas  []models.QuotaStatus
}

// NewStaticQuotaProvider creates a static provider. The service field of
// every quota is set to service.
func NewStaticQuotaProvider(service string, quotas ...models.QuotaStatus) *StaticQuotaProvider {
	qs := make([]models.QuotaStatus, len(quotas))
	for i, q := range quotas {
		q.Service = service
		qs[i] = q
	}
	return &StaticQuotaProvider{service: service, quotas: qs}
}

// Service returns the service name.
func (p *StaticQuotaProvider) Service() string { return p.service }

// Quotas returns a copy of the configured quotas.
func (p *StaticQuotaProvider) Quotas(ctx context.Context) ([]models.QuotaStatus, error) {
	return append([]models.QuotaStatus(nil), p.quotas...), nil
}

// HTTPQuotaProvider fetches quota usage as JSON:
//
//	[{"quota_type": "requests", "used": 950, "limit": 1000}]
type HTTPQuotaProvider struct {
	service string
	url     string
	headers map[string]string
	client  *http.Client
}

// NewHTTPQuotaProvider creates an HTTP quota provider. A nil client gets a
// 30 second timeout client.
func NewHTTPQuotaProvider(service, url string, headers map[string]string, client *http.Client) *HTTPQuotaProvider {
	if client == nil {
		client = &http.Client{Timeout: DefaultProbeTimeout}
	}
	return &HTTPQuotaProvider{service: service, url: url, headers: headers, client: client}
}

// Service returns the service name.
func (p *HTTPQuotaProvider) Service() string { return p.service }

// Quotas fetches and decodes the quota document.
func (p *HTTPQuotaProvider) Quotas(ctx context.Context) ([]models.QuotaStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quotas: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("quota API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var quotas []models.QuotaStatus
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&quotas); err != nil {
		return nil, fmt.Errorf("decode quotas: %w", err)
	}
	for i := range quotas {
		quotas[i].Service = p.service
	}
	return quotas, nil
}
