package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/snapmatch-ai/snapmatch/internal/domain"
	"github.com/snapmatch-ai/snapmatch/internal/metrics"
)

// Client is the consumer interface over the AWS S3 SDK (ISP, mockable).
type Client interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *awss3.HeadBucketInput, optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error)
}

// Config holds connection parameters for an S3-compatible blob store
// (MinIO in local setups, AWS S3 in production).
type Config struct {
	Endpoint      string
	Region        string
	Bucket        string
	KeyPrefix     string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
	Logger        *zap.Logger
}

// Store implements domain.BlobStore on top of S3-compatible object storage.
type Store struct {
	client        Client
	bucket        string
	keyPrefix     string
	publicBaseURL string
	logger        *zap.Logger
}

// Connect builds an S3 client for the given endpoint.
func Connect(cfg Config) *awss3.Client {
	return awss3.NewFromConfig(aws.Config{Region: cfg.Region}, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // MinIO and most S3-compatible endpoints
		}
		o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	})
}

// NewStore creates a blob store over the given client.
func NewStore(client Client, cfg Config) *Store {
	return &Store{
		client:        client,
		bucket:        cfg.Bucket,
		keyPrefix:     cfg.KeyPrefix,
		publicBaseURL: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
		logger:        cfg.Logger,
	}
}

// Write implements domain.BlobStore. The object key embeds a fresh UUID so
// repeated uploads of the same filename never collide.
func (s *Store) Write(ctx context.Context, name string, data []byte) (string, error) {
	key := s.objectKey(name)
	contentType := http.DetectContentType(data)

	start := time.Now()

	_, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})

	metrics.BlobWriteDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			s.logger.Error("Blob write failed",
				zap.String("key", key),
				zap.String("code", apiErr.ErrorCode()),
				zap.Error(err),
			)
			return "", fmt.Errorf("put object %s: %s: %w", key, apiErr.ErrorCode(), domain.ErrBlobWriteFailed)
		}
		s.logger.Error("Blob write failed", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("put object %s: %w", key, domain.ErrBlobWriteFailed)
	}

	url := s.objectURL(key)
	s.logger.Debug("Blob written",
		zap.String("key", key),
		zap.String("url", url),
		zap.Int("size", len(data)),
		zap.String("content_type", contentType),
	)
	return url, nil
}

// HealthCheck verifies the bucket is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *Store) objectKey(name string) string {
	return s.keyPrefix + uuid.NewString() + "-" + sanitizeName(name)
}

func (s *Store) objectURL(key string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}

// sanitizeName keeps object keys URL-safe: path separators and whitespace
// are replaced, everything else passes through.
func sanitizeName(name string) string {
	if name == "" {
		return "blob"
	}
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == ' ':
			b.WriteByte('-')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
