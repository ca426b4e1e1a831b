// Package s3 implements objectstore.Store over any S3-compatible service via
// aws-sdk-go-v2.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/nyxstorage/spare/pkg/objectstore"
)

// Default client timeouts and retry budget, pinned from the values the
// original implementation's s3_client helper used.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadTimeout    = 10 * time.Second
	DefaultMaxAttempts    = 2
)

// Config configures the S3-backed object store.
type Config struct {
	Bucket         string
	Region         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxAttempts    int
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// Store is an S3-backed implementation of objectstore.Store.
type Store struct {
	client *s3.Client
	bucket string
	closed bool
	mu     sync.RWMutex
}

// New wraps an existing S3 client.
func New(client *s3.Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// NewFromConfig builds an S3 client from Config (region, static credentials,
// custom endpoint, path-style addressing, and the connect/read-timeout +
// bounded-retry policy described in spec §5) and wraps it.
func NewFromConfig(ctx context.Context, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	opts = append(opts, awsconfig.WithRetryer(func() aws.Retryer {
		return retry.AddWithMaxAttempts(retry.NewStandard(), cfg.MaxAttempts)
	}))
	opts = append(opts, awsconfig.WithHTTPClient(&http.Client{
		Timeout: cfg.ConnectTimeout + cfg.ReadTimeout,
	}))

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("objectstore/s3: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return New(client, cfg.Bucket), nil
}

func (s *Store) BucketExists(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, objectstore.ErrStoreClosed
	}

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("objectstore/s3: head bucket: %w", err)
	}
	return true, nil
}

func (s *Store) CreateBucket(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return objectstore.ErrStoreClosed
	}

	_, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("objectstore/s3: create bucket: %w", err)
	}
	return nil
}

func (s *Store) PutObject(ctx context.Context, key string, body []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return objectstore.ErrStoreClosed
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("objectstore/s3: put object %s: %w", key, err)
	}
	return nil
}

func (s *Store) GetObject(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, objectstore.ErrStoreClosed
	}

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, objectstore.ErrObjectNotFound
		}
		return nil, fmt.Errorf("objectstore/s3: get object %s: %w", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("objectstore/s3: read object body %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) ListObjects(ctx context.Context, prefix string, max int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, objectstore.ErrStoreClosed
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("objectstore/s3: list objects %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, *obj.Key)
			if max > 0 && len(keys) >= max {
				return keys, nil
			}
		}
	}
	return keys, nil
}

func (s *Store) DeleteObjects(ctx context.Context, prefix string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return objectstore.ErrStoreClosed
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("objectstore/s3: list objects for delete %s: %w", prefix, err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		objs := make([]types.ObjectIdentifier, len(page.Contents))
		for i, obj := range page.Contents {
			objs[i] = types.ObjectIdentifier{Key: obj.Key}
		}

		_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objs},
		})
		if err != nil {
			return fmt.Errorf("objectstore/s3: delete objects %s: %w", prefix, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "NoSuchKey") ||
		strings.Contains(errStr, "NoSuchBucket") ||
		strings.Contains(errStr, "NotFound") ||
		strings.Contains(errStr, "404")
}

var _ objectstore.Store = (*Store)(nil)
