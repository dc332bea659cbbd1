// SPDX-License-Identifier: MPL-2.0

// Package archive uploads finished run logs to S3-compatible object
// storage.
package archive

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ContentType is the media type run logs are stored with.
const ContentType = "application/x-ndjson"

type (
	// Config locates the object store. Archiving is enabled when Endpoint
	// is set.
	Config struct {
		Endpoint  string
		Bucket    string
		Prefix    string
		AccessKey string
		SecretKey string
		Region    string
		UseSSL    bool
	}

	// Uploader puts run logs into a bucket.
	Uploader struct {
		client *minio.Client
		cfg    Config
	}
)

// Enabled reports whether an endpoint is configured.
func (c Config) Enabled() bool { return strings.TrimSpace(c.Endpoint) != "" }

// Validate checks the configuration of an enabled archive.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" || strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("access key and secret key are required")
	}
	return nil
}

// New creates an Uploader.
func New(cfg Config) (*Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("archive config: %w", err)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("archive client: %w", err)
	}
	return &Uploader{client: client, cfg: cfg}, nil
}

// ObjectKey returns the key a log file is stored under.
func ObjectKey(prefix, file string) string {
	return path.Join(strings.Trim(prefix, "/"), filepath.Base(file))
}

// Upload stores the log file at file, creating the bucket if needed, and
// returns the object key.
func (u *Uploader) Upload(ctx context.Context, file string) (string, error) {
	if err := u.ensureBucket(ctx); err != nil {
		return "", err
	}
	key := ObjectKey(u.cfg.Prefix, file)
	_, err := u.client.FPutObject(ctx, u.cfg.Bucket, key, file, minio.PutObjectOptions{ContentType: ContentType})
	if err != nil {
		return "", fmt.Errorf("upload %s to %s/%s: %w", filepath.Base(file), u.cfg.Bucket, key, err)
	}
	return key, nil
}

func (u *Uploader) ensureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("bucket %s: %w", u.cfg.Bucket, err)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.cfg.Bucket, minio.MakeBucketOptions{Region: u.cfg.Region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", u.cfg.Bucket, err)
	}
	return nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}
