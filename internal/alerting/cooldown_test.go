package alerting

import (
	"testing"
	"time"
)

func TestCooldownManager(t *testing.T) {
	cm := NewCooldownManager()
	cm.SetCooldown("service_down|ocr", 5*time.Minute, testEpoch)
	cm.SetCooldown("quota_exceeded|llm", time.Minute, testEpoch)

	now := testEpoch.Add(2 * time.Minute)
	if !cm.IsOnCooldown("service_down|ocr", now) || cm.IsOnCooldown("quota_exceeded|llm", now) {
		t.Fatal("only the 5 minute cooldown should still be running")
	}
	if got := cm.Remaining("service_down|ocr", now); got != 3*time.Minute {
		t.Errorf("Remaining() = %s, want 3m", got)
	}
	if got := cm.Remaining("missing", now); got != 0 {
		t.Errorf("Remaining(missing) = %s, want 0", got)
	}

	active := cm.Active(now)
	if len(active) != 1 {
		t.Fatalf("Active() = %+v, want 1 entry", active)
	}
	want := Entry{Key: "service_down|ocr", Until: testEpoch.Add(5 * time.Minute), Remaining: 3 * time.Minute}
	if active[0].Key != want.Key || !active[0].Until.Equal(want.Until) || active[0].Remaining != want.Remaining {
		t.Errorf("Active()[0] = %+v, want %+v", active[0], want)
	}

	if n := cm.PruneExpired(now); n != 1 || cm.Len() != 1 {
		t.Errorf("PruneExpired() = %d, Len() = %d; want 1, 1", n, cm.Len())
	}
}
