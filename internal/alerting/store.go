package alerting

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/clock"
	"github.com/good-yellow-bee/blazewatch/internal/metrics"
	"github.com/good-yellow-bee/blazewatch/internal/models"
)

var (
	// ErrConfigNotFound is returned when an alert config id is unknown.
	ErrConfigNotFound = errors.New("alert config not found")
	// ErrAlertNotFound is returned when an alert id is unknown.
	ErrAlertNotFound = errors.New("alert not found")
)

// ActiveAlert is a snapshot of a tracked alert together with the configs
// that matched it at trigger time.
type ActiveAlert struct {
	Alert     *models.HealthAlert
	ConfigIDs []string
	// Escalated holds "configID/ruleID" keys already escalated.
	Escalated map[string]bool
}

type activeEntry struct {
	alert     *models.HealthAlert
	configIDs []string
	escalated map[string]bool
}

// Store holds alert configs, cooldowns and active alerts.
type Store struct {
	clock clock.Clock

	cfgMu   sync.RWMutex
	configs map[string]*AlertConfig

	activeMu sync.RWMutex
	active   map[string]*activeEntry

	cooldown *CooldownManager
}

// NewStore creates an empty store.
func NewStore(clk clock.Clock) *Store {
	return &Store{
		clock:    clock.OrReal(clk),
		configs:  make(map[string]*AlertConfig),
		active:   make(map[string]*activeEntry),
		cooldown: NewCooldownManager(),
	}
}

// Cooldowns returns the cooldown manager.
func (s *Store) Cooldowns() *CooldownManager {
	return s.cooldown
}

// AddConfig validates cfg and stores a copy, overwriting any config with the
// same id.
func (s *Store) AddConfig(cfg *AlertConfig) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	cp := cfg.Clone()
	if err := cp.Validate(); err != nil {
		return err
	}

	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	s.configs[cp.ID] = cp
	return nil
}

// RemoveConfig deletes a config.
func (s *Store) RemoveConfig(id string) error {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()

	if _, ok := s.configs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrConfigNotFound, id)
	}
	delete(s.configs, id)
	return nil
}

// ReplaceConfigs swaps the whole registry. Every config is validated before
// anything changes.
func (s *Store) ReplaceConfigs(cfgs []*AlertConfig) error {
	next := make(map[string]*AlertConfig, len(cfgs))
	for i, cfg := range cfgs {
		if cfg == nil {
			return fmt.Errorf("config at index %d is nil", i)
		}
		cp := cfg.Clone()
		if err := cp.Validate(); err != nil {
			return fmt.Errorf("invalid config at index %d: %w", i, err)
		}
		if _, dup := next[cp.ID]; dup {
			return fmt.Errorf("duplicate config id %q", cp.ID)
		}
		next[cp.ID] = cp
	}

	s.cfgMu.Lock()
	s.configs = next
	s.cfgMu.Unlock()
	return nil
}

// Config returns a copy of the config with the given id.
func (s *Store) Config(id string) (*AlertConfig, bool) {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()

	cfg, ok := s.configs[id]
	if !ok {
		return nil, false
	}
	return cfg.Clone(), true
}

// Configs returns copies of all configs ordered by id.
func (s *Store) Configs() []*AlertConfig {
	s.cfgMu.RLock()
	out := make([]*AlertConfig, 0, len(s.configs))
	for _, cfg := range s.configs {
		out = append(out, cfg.Clone())
	}
	s.cfgMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EnabledConfigs returns copies of the enabled configs ordered by id.
func (s *Store) EnabledConfigs() []*AlertConfig {
	all := s.Configs()
	out := all[:0]
	for _, cfg := range all {
		if cfg.Enabled {
			out = append(out, cfg)
		}
	}
	return out
}

// TrackAlert records a dispatched alert as active.
func (s *Store) TrackAlert(alert *models.HealthAlert, configIDs []string) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()

	s.active[alert.ID] = &activeEntry{
		alert:     alert.Clone(),
		configIDs: append([]string(nil), configIDs...),
		escalated: make(map[string]bool),
	}
	s.updateActiveGaugeLocked()
}

// Alert returns a copy of a tracked alert.
func (s *Store) Alert(id string) (*models.HealthAlert, bool) {
	s.activeMu.RLock()
	defer s.activeMu.RUnlock()

	e, ok := s.active[id]
	if !ok {
		return nil, false
	}
	return e.alert.Clone(), true
}

// ActiveAlerts returns copies of unresolved alerts, oldest first.
func (s *Store) ActiveAlerts() []*models.HealthAlert {
	s.activeMu.RLock()
	out := make([]*models.HealthAlert, 0, len(s.active))
	for _, e := range s.active {
		if !e.alert.Resolved {
			out = append(out, e.alert.Clone())
		}
	}
	s.activeMu.RUnlock()

	sortAlerts(out)
	return out
}

// ResolveAlert marks an alert resolved. It reports whether the state changed;
// resolving an already resolved alert is a no-op.
func (s *Store) ResolveAlert(id string) (bool, error) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()

	e, ok := s.active[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
	}
	changed := e.alert.Resolve(s.clock.Now())
	s.updateActiveGaugeLocked()
	return changed, nil
}

// ResolveMatching resolves every unresolved alert of the given type and
// service and returns their ids.
func (s *Store) ResolveMatching(t models.AlertType, service string) []string {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()

	now := s.clock.Now()
	var ids []string
	for id, e := range s.active {
		if e.alert.Type == t && e.alert.Service == service && e.alert.Resolve(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	s.updateActiveGaugeLocked()
	return ids
}

// UnresolvedAlerts returns snapshots of unresolved alerts with their
// matched configs and escalation state.
func (s *Store) UnresolvedAlerts() []ActiveAlert {
	s.activeMu.RLock()
	defer s.activeMu.RUnlock()

	out := make([]ActiveAlert, 0, len(s.active))
	for _, e := range s.active {
		if e.alert.Resolved {
			continue
		}
		esc := make(map[string]bool, len(e.escalated))
		for k := range e.escalated {
			esc[k] = true
		}
		out = append(out, ActiveAlert{
			Alert:     e.alert.Clone(),
			ConfigIDs: append([]string(nil), e.configIDs...),
			Escalated: esc,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Alert.Timestamp.Before(out[j].Alert.Timestamp)
	})
	return out
}

// MarkEscalated records that alertID escalated through configID/ruleID.
// It returns false if that escalation was already recorded or the alert is
// gone or resolved, so concurrent scanners escalate at most once.
func (s *Store) MarkEscalated(alertID, configID, ruleID string) bool {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()

	e, ok := s.active[alertID]
	if !ok || e.alert.Resolved {
		return false
	}
	key := escalationKey(configID, ruleID)
	if e.escalated[key] {
		return false
	}
	e.escalated[key] = true
	return true
}

// PruneResolved drops resolved alerts resolved before cutoff.
func (s *Store) PruneResolved(cutoff time.Time) int {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()

	n := 0
	for id, e := range s.active {
		if !e.alert.Resolved {
			continue
		}
		at, ok := e.alert.ResolvedAt()
		if !ok {
			at = e.alert.Timestamp
		}
		if at.Before(cutoff) {
			delete(s.active, id)
			n++
		}
	}
	return n
}

func (s *Store) updateActiveGaugeLocked() {
	n := 0
	for _, e := range s.active {
		if !e.alert.Resolved {
			n++
		}
	}
	metrics.AlertsActive.Set(float64(n))
}

func escalationKey(configID, ruleID string) string {
	return configID + "/" + ruleID
}

func sortAlerts(alerts []*models.HealthAlert) {
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].Timestamp.Equal(alerts[j].Timestamp) {
			return alerts[i].ID < alerts[j].ID
		}
		return alerts[i].Timestamp.Before(alerts[j].Timestamp)
	})
}
