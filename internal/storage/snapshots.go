// Package storage keeps canvas snapshot images in an S3-compatible bucket.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	defaultRegion       = "us-east-1"
	snapshotContentType = "image/png"
)

var ErrBucketRequired = errors.New("s3 bucket is required")

type Config struct {
	Bucket   string
	Region   string
	Endpoint string
	// PublicBaseURL, when set, prefixes object keys in returned URLs,
	// e.g. a CDN in front of the bucket.
	PublicBaseURL   string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type SnapshotStore struct {
	client putObjectAPI
	bucket string
	urlFor func(key string) string
}

func NewSnapshotStore(ctx context.Context, cfg Config) (*SnapshotStore, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, ErrBucketRequired
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultRegion
	}

	loadOptions := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOptions = append(loadOptions, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	cfg.Bucket, cfg.Region, cfg.Endpoint = bucket, region, endpoint
	return newSnapshotStore(client, cfg), nil
}

func newSnapshotStore(client putObjectAPI, cfg Config) *SnapshotStore {
	return &SnapshotStore{
		client: client,
		bucket: cfg.Bucket,
		urlFor: publicURL(cfg),
	}
}

// SnapshotKey is the object key of a canvas's snapshot. Uploading again
// overwrites it.
func SnapshotKey(canvasId string) string {
	return canvasId + ".png"
}

// Upload stores a PNG snapshot for the canvas and returns its public URL.
// The body is buffered so the request carries a length and a seekable
// payload, which plain-http endpoints need for signing.
func (s *SnapshotStore) Upload(ctx context.Context, canvasId string, body io.Reader) (string, error) {
	if canvasId == "" {
		return "", errors.New("canvas id is required")
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read snapshot: %w", err)
	}

	key := SnapshotKey(canvasId)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(snapshotContentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}

	return s.urlFor(key), nil
}

func publicURL(cfg Config) func(string) string {
	switch {
	case cfg.PublicBaseURL != "":
		base := strings.TrimRight(cfg.PublicBaseURL, "/")
		return func(key string) string {
			return base + "/" + url.PathEscape(key)
		}
	case cfg.Endpoint != "" && cfg.UsePathStyle:
		return func(key string) string {
			return cfg.Endpoint + "/" + cfg.Bucket + "/" + url.PathEscape(key)
		}
	case cfg.Endpoint != "":
		u, err := url.Parse(cfg.Endpoint)
		if err != nil || u.Host == "" {
			return func(key string) string {
				return cfg.Endpoint + "/" + cfg.Bucket + "/" + url.PathEscape(key)
			}
		}
		return func(key string) string {
			return u.Scheme + "://" + cfg.Bucket + "." + u.Host + "/" + url.PathEscape(key)
		}
	default:
		return func(key string) string {
			return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", cfg.Bucket, cfg.Region, url.PathEscape(key))
		}
	}
}
