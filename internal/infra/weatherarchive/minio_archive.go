package weatherarchive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/yanqian/weather-insight/internal/domain/insight"
)

// MinioArchive writes raw provider payloads to an S3-compatible bucket.
type MinioArchive struct {
	client *minio.Client
	bucket string
	logger *slog.Logger

	mu          sync.Mutex
	bucketReady bool
}

// NewMinioArchive constructs the archive adapter.
func NewMinioArchive(endpoint, accessKey, secretKey, bucket, region string, logger *slog.Logger) (*MinioArchive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	useSSL := !strings.HasPrefix(strings.ToLower(strings.TrimSpace(endpoint)), "http://")
	client, err := minio.New(sanitizeEndpoint(endpoint), &minio.Options{
		Creds:        credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure:       useSSL,
		Region:       region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init archive client: %w", err)
	}
	return &MinioArchive{client: client, bucket: bucket, logger: logger.With("component", "weatherarchive.minio")}, nil
}

// Archive stores reading.RawJSON under a key derived from location and observation time.
func (a *MinioArchive) Archive(ctx context.Context, loc insight.Location, reading insight.WeatherReading) error {
	if len(reading.RawJSON) == 0 {
		return nil
	}
	if err := a.ensureBucket(ctx); err != nil {
		return err
	}
	key := objectKey(loc, reading.Snapshot)
	info, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(reading.RawJSON), int64(len(reading.RawJSON)), minio.PutObjectOptions{
		ContentType:      "application/json",
		DisableMultipart: true,
		UserMetadata:     map[string]string{"source": reading.Source},
	})
	if err != nil {
		return fmt.Errorf("archive weather payload: %w", err)
	}
	a.logger.Debug("weather payload archived", "key", key, "size", info.Size)
	return nil
}

func (a *MinioArchive) ensureBucket(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bucketReady {
		return nil
	}
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil || !exists {
		err = a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{})
		if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
			return fmt.Errorf("ensure archive bucket: %w", err)
		}
	}
	a.bucketReady = true
	return nil
}

func objectKey(loc insight.Location, snap insight.WeatherSnapshot) string {
	ts := snap.Timestamp.UTC()
	return fmt.Sprintf("weather/%s/%s/%d.json", strings.ReplaceAll(loc.Key(), ",", "_"), ts.Format("2006/01/02"), ts.Unix())
}

// sanitizeEndpoint removes schemes and paths to satisfy minio.New expectations.
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if idx := strings.Index(raw, "/"); idx >= 0 {
		raw = raw[:idx]
	}
	return raw
}

var _ insight.WeatherArchive = (*MinioArchive)(nil)
