// Package notifier delivers health alerts through notification channels
// and tracks every delivery through its retry state machine.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

var (
	// ErrRateLimited is returned when a send is refused by the channel rate limiter.
	ErrRateLimited = errors.New("notification rate limited")
	// ErrUnsupportedChannel is returned when no sender handles a channel type.
	ErrUnsupportedChannel = errors.New("unsupported channel type")
	// ErrInvalidChannel is returned when a channel's configuration is unusable.
	ErrInvalidChannel = errors.New("invalid channel configuration")
)

// Sender delivers an alert through one channel type. The destination comes
// from the channel's typed config on every call.
type Sender interface {
	// Type returns the channel type handled by the sender.
	Type() models.ChannelType
	// Send delivers the alert.
	Send(ctx context.Context, ch models.AlertChannel, alert *models.HealthAlert) error
	// Close releases any resources.
	Close() error
}

// Registry maps channel types to senders.
type Registry struct {
	mu      sync.RWMutex
	senders map[models.ChannelType]Sender
}

// NewRegistry creates a registry holding the given senders.
func NewRegistry(senders ...Sender) *Registry {
	r := &Registry{senders: make(map[models.ChannelType]Sender)}
	for _, s := range senders {
		r.Register(s)
	}
	return r
}

// DefaultRegistry returns a registry with a sender for every channel type.
// A nil client gets a 30 second timeout client.
func DefaultRegistry(client *http.Client) (*Registry, error) {
	if client == nil {
		client = newHTTPClient()
	}
	email, err := NewEmailSender()
	if err != nil {
		return nil, err
	}
	return NewRegistry(
		email,
		NewSlackSender(client),
		NewTeamsSender(client),
		NewDiscordSender(client),
		NewWebhookSender(client),
		NewSMSSender(client),
	), nil
}

// Register adds or replaces the sender for its channel type.
func (r *Registry) Register(s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[s.Type()] = s
}

// Get returns the sender for a channel type.
func (r *Registry) Get(t models.ChannelType) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.senders[t]
	return s, ok
}

// Close closes all registered senders.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for t, s := range r.senders {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t, err))
		}
	}
	r.senders = make(map[models.ChannelType]Sender)
	return errors.Join(errs...)
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: models.DefaultChannelTimeout,
	}
}

// httpClientOrDefault returns c, or a default client when c is nil.
func httpClientOrDefault(c *http.Client) *http.Client {
	if c == nil {
		return newHTTPClient()
	}
	return c
}

// errorf builds an error that keeps its cause for errors.Is.
func errorf(cause error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", cause, fmt.Sprintf(format, args...))
}
