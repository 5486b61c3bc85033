package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/good-yellow-bee/blazewatch/internal/prober"
)

// buildProbes creates the health probes named in the configuration. Probes
// holding connections are closed if a later one fails to build.
func buildProbes(ctx context.Context, cfgs []ProbeConfig) ([]prober.HealthProbe, error) {
	probes := make([]prober.HealthProbe, 0, len(cfgs))
	for _, pc := range cfgs {
		p, err := buildProbe(ctx, pc)
		if err != nil {
			if cerr := closeProbes(probes); cerr != nil {
				log.Printf("close probes: %v", cerr)
			}
			return nil, fmt.Errorf("probe %q: %w", pc.Name, err)
		}
		probes = append(probes, p)
	}
	return probes, nil
}

func buildProbe(ctx context.Context, pc ProbeConfig) (prober.HealthProbe, error) {
	switch pc.Type {
	case ProbeHTTP:
		return prober.NewHTTPProbe(pc.Name, pc.URL, prober.HTTPProbeOptions{
			Headers:        pc.Headers,
			ExpectedStatus: pc.ExpectedStatus,
			Threshold:      pc.Threshold,
		}), nil
	case ProbeTCP:
		return prober.NewTCPProbe(pc.Name, pc.Address), nil
	case ProbeConsul:
		return prober.NewConsulProbe(pc.Name, pc.ConsulAddress, pc.ConsulService)
	case ProbePostgres:
		return prober.NewPostgresProbe(ctx, pc.Name, pc.DSN)
	case ProbeBlob:
		return prober.NewBlobStorageProbe(pc.Name, prober.BlobStorageConfig{
			Endpoint:  pc.Blob.Endpoint,
			AccessKey: pc.Blob.AccessKey,
			SecretKey: pc.Blob.SecretKey,
			Region:    pc.Blob.Region,
			UseSSL:    pc.Blob.UseSSL,
			Bucket:    pc.Blob.Bucket,
		})
	}
	return nil, fmt.Errorf("unknown probe type %q", pc.Type)
}

func closeProbes(probes []prober.HealthProbe) error {
	var errs []error
	for _, p := range probes {
		if c, ok := p.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// buildQuotaProviders creates the configured quota providers.
func buildQuotaProviders(cfgs []QuotaConfig) []prober.QuotaProvider {
	providers := make([]prober.QuotaProvider, 0, len(cfgs))
	for _, qc := range cfgs {
		switch qc.Type {
		case QuotaHTTP:
			providers = append(providers, prober.NewHTTPQuotaProvider(qc.Service, qc.URL, qc.Headers, nil))
		default:
			providers = append(providers, prober.NewStaticQuotaProvider(qc.Service, qc.Quotas...))
		}
	}
	return providers
}
