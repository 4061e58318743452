package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jonathan/ideaforge/internal/types"
)

// S3Store implements Store using MinIO/S3-compatible storage.
type S3Store struct {
	client *minio.Client
	bucket string
	region string
}

// S3Config holds configuration for S3-compatible storage.
type S3Config struct {
	Endpoint  string // host:port (e.g., "localhost:9000")
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// NewS3Store creates a new S3Store with the given configuration.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
	}, nil
}

// EnsureBucket ensures the bucket exists, creating it if necessary.
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Put uploads data under the run's key for kind. The size is known up front
// so the upload is a single PUT, which replaces any previous object atomically.
func (s *S3Store) Put(ctx context.Context, projectID string, runID uuid.UUID, kind types.ArtifactKind, data []byte, contentType string) (types.Artifact, error) {
	if err := validatePut(projectID, runID, kind); err != nil {
		return types.Artifact{}, err
	}

	key := Key(projectID, runID, kind)
	checksum := types.Checksum(data)
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"project-id": projectID,
			"checksum":   checksum,
		},
	})
	if err != nil {
		return types.Artifact{}, &types.FatalError{Op: "artifact_put", Err: fmt.Errorf("failed to upload %s: %w", key, err)}
	}

	return types.Artifact{
		Kind:        kind,
		Locator:     Locator{Scheme: "s3", Bucket: s.bucket, Key: info.Key}.String(),
		Size:        info.Size,
		ContentType: contentType,
		Checksum:    checksum,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Get downloads the artifact at locator.
func (s *S3Store) Get(ctx context.Context, locator string) ([]byte, error) {
	loc, err := ParseLocator(locator)
	if err != nil {
		return nil, err
	}
	if loc.Scheme != "s3" || loc.Bucket != s.bucket {
		return nil, fmt.Errorf("%w: %s is not in bucket %s", ErrInvalidLocator, locator, s.bucket)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, loc.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", loc.Key, err)
	}
	defer obj.Close() //nolint:errcheck

	// Check if object exists by getting stat
	if _, err := obj.Stat(); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to stat %s: %w", loc.Key, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", loc.Key, err)
	}
	return data, nil
}
