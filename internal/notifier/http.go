package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// jsonRequest describes one JSON POST/PUT to a webhook style endpoint.
type jsonRequest struct {
	method  string
	url     string
	payload any
	headers map[string]string
	// service names the remote side in error messages.
	service string
}

// doJSON sends the request and treats any 2xx status as success.
func doJSON(ctx context.Context, client *http.Client, r jsonRequest) error {
	jsonData, err := json.Marshal(r.payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	method := r.method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, r.url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s API error: status %d, body: %s", r.service, resp.StatusCode, string(body))
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return nil
}
