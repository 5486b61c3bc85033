package notifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// DefaultSMSBaseURL is the Twilio REST API root.
const DefaultSMSBaseURL = "https://api.twilio.com"

// SMSSender sends alerts as text messages through a Twilio compatible API.
type SMSSender struct {
	httpClient *http.Client
}

// NewSMSSender creates an SMS sender. A nil client gets the default.
func NewSMSSender(client *http.Client) *SMSSender {
	return &SMSSender{httpClient: httpClientOrDefault(client)}
}

// Type returns "sms".
func (s *SMSSender) Type() models.ChannelType {
	return models.ChannelSMS
}

// Send texts every configured recipient. Failures for individual numbers
// are joined; the send fails if any recipient failed.
func (s *SMSSender) Send(ctx context.Context, ch models.AlertChannel, alert *models.HealthAlert) error {
	cfg := ch.SMS
	if cfg == nil {
		return errorf(ErrInvalidChannel, "channel %q has no sms config", ch.Name)
	}
	if err := cfg.Validate(); err != nil {
		return errorf(ErrInvalidChannel, "invalid sms config: %v", err)
	}

	base := cfg.APIBaseURL
	if base == "" {
		base = DefaultSMSBaseURL
	}
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(base, "/"), url.PathEscape(cfg.AccountSID))
	body := smsText(alert)

	var errs []error
	for _, to := range cfg.To {
		if err := s.sendOne(ctx, endpoint, cfg, to, body); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", to, err))
		}
	}
	return errors.Join(errs...)
}

func (s *SMSSender) sendOne(ctx context.Context, endpoint string, cfg *models.SMSConfig, to, body string) error {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", cfg.From)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(cfg.AccountSID, cfg.AuthToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("sms API error: status %d, body: %s", resp.StatusCode, string(msg))
	}
	return nil
}

// Close is a no-op for SMS sender.
func (s *SMSSender) Close() error {
	return nil
}
