package prober

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// HTTPProbe issues a GET request and expects a 2xx (or ExpectedStatus) reply.
type HTTPProbe struct {
	name           string
	url            string
	client         *http.Client
	headers        map[string]string
	expectedStatus int
	threshold      time.Duration
}

// HTTPProbeOptions configures an HTTPProbe.
type HTTPProbeOptions struct {
	// Headers are sent with every request (API keys etc).
	Headers map[string]string
	// ExpectedStatus requires an exact status code. Zero accepts any 2xx.
	ExpectedStatus int
	// Threshold overrides the prober's performance threshold.
	Threshold time.Duration
	// Client is the HTTP client. Nil gets a 30 second timeout client.
	Client *http.Client
}

// NewHTTPProbe creates an HTTP probe.
func NewHTTPProbe(name, url string, opts HTTPProbeOptions) *HTTPProbe {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultProbeTimeout}
	}
	return &HTTPProbe{
		name:           name,
		url:            url,
		client:         client,
		headers:        opts.Headers,
		expectedStatus: opts.ExpectedStatus,
		threshold:      opts.Threshold,
	}
}

// Name returns the service name.
func (p *HTTPProbe) Name() string { return p.name }

// PerformanceThreshold returns the per-probe threshold override.
func (p *HTTPProbe) PerformanceThreshold() time.Duration { return p.threshold }

// Check performs the request.
func (p *HTTPProbe) Check(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return 0, err
	}
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return time.Since(start), err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	elapsed := time.Since(start)
	if p.expectedStatus != 0 {
		if resp.StatusCode != p.expectedStatus {
			return elapsed, fmt.Errorf("unexpected status code: %d (want %d)", resp.StatusCode, p.expectedStatus)
		}
		return elapsed, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return elapsed, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return elapsed, nil
}

// TCPProbe dials a TCP address.
type TCPProbe struct {
	name string
	addr string
}

// NewTCPProbe creates a TCP probe.
func NewTCPProbe(name, addr string) *TCPProbe {
	return &TCPProbe{name: name, addr: addr}
}

// Name returns the service name.
func (p *TCPProbe) Name() string { return p.name }

// Check dials the address.
func (p *TCPProbe) Check(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return time.Since(start), err
	}
	defer conn.Close()
	return time.Since(start), nil
}
