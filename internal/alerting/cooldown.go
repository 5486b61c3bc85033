package alerting

import (
	"sort"
	"sync"
	"time"
)

// CooldownManager tracks per (type, service) suppression windows.
type CooldownManager struct {
	mu        sync.RWMutex
	cooldowns map[string]time.Time
}

// NewCooldownManager creates a new cooldown manager.
func NewCooldownManager() *CooldownManager {
	return &CooldownManager{
		cooldowns: make(map[string]time.Time),
	}
}

// IsOnCooldown reports whether key is suppressed at now.
func (cm *CooldownManager) IsOnCooldown(key string, now time.Time) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	expiresAt, ok := cm.cooldowns[key]
	if !ok {
		return false
	}
	return now.Before(expiresAt)
}

// SetCooldown suppresses key until now+duration, replacing any earlier expiry.
func (cm *CooldownManager) SetCooldown(key string, duration time.Duration, now time.Time) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.cooldowns[key] = now.Add(duration)
}

// ExpiresAt returns the expiry of key.
func (cm *CooldownManager) ExpiresAt(key string) (time.Time, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	t, ok := cm.cooldowns[key]
	return t, ok
}

// Remaining returns the remaining cooldown for key.
func (cm *CooldownManager) Remaining(key string, now time.Time) time.Duration {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	expiresAt, ok := cm.cooldowns[key]
	if !ok {
		return 0
	}
	remaining := expiresAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Entry is one running cooldown.
type Entry struct {
	Key       string        `json:"key"`
	Until     time.Time     `json:"until"`
	Remaining time.Duration `json:"remaining"`
}

// Active returns the cooldowns still running at now, sorted by key.
func (cm *CooldownManager) Active(now time.Time) []Entry {
	cm.mu.RLock()
	keys := make([]string, 0, len(cm.cooldowns))
	for k := range cm.cooldowns {
		keys = append(keys, k)
	}
	cm.mu.RUnlock()
	sort.Strings(keys)

	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		remaining := cm.Remaining(k, now)
		if remaining <= 0 {
			continue
		}
		out = append(out, Entry{Key: k, Until: now.Add(remaining), Remaining: remaining})
	}
	return out
}

// PruneExpired drops cooldowns that expired before now and returns how many.
func (cm *CooldownManager) PruneExpired(now time.Time) int {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	n := 0
	for k, exp := range cm.cooldowns {
		if !now.Before(exp) {
			delete(cm.cooldowns, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (cm *CooldownManager) Len() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.cooldowns)
}
