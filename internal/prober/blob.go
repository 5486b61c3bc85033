package prober

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BlobStorageConfig describes an S3 compatible endpoint.
type BlobStorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	// Bucket is checked for existence. Empty lists buckets instead.
	Bucket string
}

// BlobStorageProbe checks an S3 compatible object store.
type BlobStorageProbe struct {
	name   string
	bucket string
	mc     *minio.Client
}

// NewBlobStorageProbe creates a blob storage probe.
func NewBlobStorageProbe(name string, cfg BlobStorageConfig) (*BlobStorageProbe, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return &BlobStorageProbe{name: name, bucket: cfg.Bucket, mc: mc}, nil
}

// Name returns the service name.
func (p *BlobStorageProbe) Name() string { return p.name }

// Check verifies the bucket exists, or that buckets can be listed.
func (p *BlobStorageProbe) Check(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if p.bucket == "" {
		_, err := p.mc.ListBuckets(ctx)
		return time.Since(start), err
	}
	exists, err := p.mc.BucketExists(ctx, p.bucket)
	elapsed := time.Since(start)
	if err != nil {
		return elapsed, fmt.Errorf("check bucket %s: %w", p.bucket, err)
	}
	if !exists {
		return elapsed, fmt.Errorf("bucket %s does not exist", p.bucket)
	}
	return elapsed, nil
}
