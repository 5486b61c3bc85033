package alerting

import (
	"context"

	"github.com/good-yellow-bee/blazewatch/internal/clock"
)

// EscalationScheduler escalates alerts that stay unresolved past an
// escalation rule's delay.
type EscalationScheduler struct {
	store  *Store
	router *Router
	clock  clock.Clock
}

// NewEscalationScheduler creates a scheduler.
func NewEscalationScheduler(store *Store, router *Router, clk clock.Clock) *EscalationScheduler {
	return &EscalationScheduler{
		store:  store,
		router: router,
		clock:  clock.OrReal(clk),
	}
}

// Scan escalates every due (alert, rule) pair once and returns the number of
// escalations performed. Only configs that matched the alert when it was
// triggered are considered.
func (s *EscalationScheduler) Scan(ctx context.Context) int {
	now := s.clock.Now()
	count := 0

	for _, active := range s.store.UnresolvedAlerts() {
		age := now.Sub(active.Alert.Timestamp)
		for _, cfgID := range active.ConfigIDs {
			cfg, ok := s.store.Config(cfgID)
			if !ok || !cfg.Enabled {
				continue
			}
			for _, rule := range cfg.EscalationRules {
				if active.Escalated[escalationKey(cfg.ID, rule.ID)] {
					continue
				}
				if age < rule.After() {
					continue
				}
				if ctx.Err() != nil {
					return count
				}
				if !s.store.MarkEscalated(active.Alert.ID, cfg.ID, rule.ID) {
					continue
				}
				s.router.Escalate(ctx, active.Alert, cfg, rule)
				count++
			}
		}
	}
	return count
}
