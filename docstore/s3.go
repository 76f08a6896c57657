// Package docstore fetches document bodies from S3-compatible object storage.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/driftwoodlabs/raggate/config"
	"github.com/driftwoodlabs/raggate/retrieval"
)

// S3Store reads document text out of a single bucket. Keys come straight
// from the vector index metadata.
type S3Store struct {
	client *s3.Client
	bucket string
}

var _ retrieval.DocumentStore = (*S3Store)(nil)

// NewS3Store builds a client from the ambient AWS credential chain. A
// non-empty endpoint (MinIO, localstack) switches the client to path-style
// addressing.
func NewS3Store(ctx context.Context, cfg config.S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	slog.Info("document store ready", "bucket", cfg.Bucket, "region", cfg.Region)
	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

// Get downloads the object at key and returns its body as text. A missing
// object is reported as retrieval.ErrNotFound so the pipeline can skip it.
func (s *S3Store) Get(ctx context.Context, key string) (string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		var notFound *types.NotFound
		if errors.As(err, &noKey) || errors.As(err, &notFound) {
			return "", fmt.Errorf("%w: %s", retrieval.ErrNotFound, key)
		}
		return "", fmt.Errorf("failed to fetch object %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return string(body), nil
}
