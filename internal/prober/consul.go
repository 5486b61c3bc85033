package prober

import (
	"context"
	"fmt"
	"time"

	consulapi "github.com/hashicorp/consul/api"
)

// ConsulProbe reports the worst check status across all instances of a
// service registered in Consul.
type ConsulProbe struct {
	name    string
	service string
	health  *consulapi.Health
}

// NewConsulProbe creates a Consul probe. An empty addr uses the Consul
// client defaults (CONSUL_HTTP_ADDR or 127.0.0.1:8500).
func NewConsulProbe(name, addr, service string) (*ConsulProbe, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	if service == "" {
		service = name
	}
	return &ConsulProbe{name: name, service: service, health: client.Health()}, nil
}

// Name returns the service name.
func (p *ConsulProbe) Name() string { return p.name }

// Check queries the service health entries.
func (p *ConsulProbe) Check(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	opts := (&consulapi.QueryOptions{}).WithContext(ctx)
	entries, _, err := p.health.Service(p.service, "", false, opts)
	elapsed := time.Since(start)
	if err != nil {
		return elapsed, fmt.Errorf("consul health query: %w", err)
	}
	if len(entries) == 0 {
		return elapsed, fmt.Errorf("no instances of %q registered", p.service)
	}

	checks := make(consulapi.HealthChecks, 0, len(entries))
	for _, e := range entries {
		checks = append(checks, e.Checks...)
	}
	switch aggregateChecks(checks) {
	case consulapi.HealthCritical:
		return elapsed, fmt.Errorf("consul checks critical for %q", p.service)
	case consulapi.HealthWarning:
		return elapsed, fmt.Errorf("%w: consul checks warning for %q", ErrDegraded, p.service)
	}
	return elapsed, nil
}

func aggregateChecks(checks consulapi.HealthChecks) string {
	worst := consulapi.HealthPassing
	for _, check := range checks {
		switch check.Status {
		case consulapi.HealthCritical:
			return consulapi.HealthCritical
		case consulapi.HealthWarning:
			worst = consulapi.HealthWarning
		}
	}
	return worst
}
