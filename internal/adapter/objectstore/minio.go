// Package objectstore serves staged archive payloads from an S3-compatible
// mirror. Object keys are the staging-relative paths, so the mirror bucket
// is laid out exactly like the local staging area and can be seeded from
// it with any S3 sync tool.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/wxarchive/station-etl/internal/domain"
	"github.com/wxarchive/station-etl/internal/registry"
)

// Config describes the mirror connection.
type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Validate checks the fields a client cannot be built without.
func (cfg Config) Validate() error {
	if cfg.Endpoint == "" {
		return errors.New("objectstore: endpoint is required")
	}
	if cfg.Bucket == "" {
		return errors.New("objectstore: bucket is required")
	}
	return nil
}

// NewMinIOClient builds the S3 client for the mirror.
func NewMinIOClient(cfg Config) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Transport: newTransport(),
	}
	return minio.New(cfg.Endpoint, opts)
}

// CheckBucket verifies the mirror bucket exists, so a misconfigured mirror
// fails at startup instead of once per work unit.
func CheckBucket(ctx context.Context, client *minio.Client, cfg Config) error {
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return fmt.Errorf("mirror bucket exists: %w", err)
	}
	if !exists {
		return fmt.Errorf("mirror bucket missing: %s", cfg.Bucket)
	}
	return nil
}

// Mirror fetches work-unit payloads from the mirror bucket. Keys the
// bucket does not hold come back as domain.NotAvailableError, which lets a
// fallback chain continue to the public archive.
type Mirror struct {
	client *minio.Client
	bucket string
	reg    *registry.Registry
	logger *slog.Logger
}

// NewMirror creates a mirror fetcher on an existing client.
func NewMirror(client *minio.Client, bucket string, reg *registry.Registry, logger *slog.Logger) *Mirror {
	return &Mirror{client: client, bucket: bucket, reg: reg, logger: logger}
}

func (m *Mirror) Fetch(ctx context.Context, unit domain.WorkUnit) ([]byte, error) {
	spec, err := m.reg.Dataset(unit.Dataset)
	if err != nil {
		return nil, err
	}
	key := spec.StagingPathFor(unit)

	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("mirror get %s: %w", key, err)
	}
	defer obj.Close()

	// GetObject defers errors until the first read; Stat surfaces a
	// missing key before any payload handling.
	if _, err := obj.Stat(); err != nil {
		if isMissingKey(err) {
			return nil, &domain.NotAvailableError{Source: "mirror:" + key}
		}
		return nil, fmt.Errorf("mirror stat %s: %w", key, err)
	}

	payload, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("mirror read %s: %w", key, err)
	}
	if len(payload) == 0 {
		return nil, &domain.NotAvailableError{Source: "mirror:" + key}
	}

	m.logger.Debug("payload served from mirror", "key", key, "bytes", len(payload))
	return payload, nil
}

func isMissingKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
