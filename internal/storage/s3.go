package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"billboard/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the part of *s3.Client the store needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes public objects to one bucket.
type S3Store struct {
	client     ObjectPutter
	bucket     string
	publicBase string
}

// NewS3Store builds an S3 client from cfg. A custom endpoint switches to
// path-style addressing for S3-compatible servers.
func NewS3Store(ctx context.Context, cfg *config.Config) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is not configured")
	}

	opts := []func(*aws_config.LoadOptions) error{aws_config.WithRegion(cfg.AWSRegion)}
	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AWSAccessKeyID,
			cfg.AWSSecretAccessKey,
			"",
		)))
	}
	awsCfg, err := aws_config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	publicBase := cfg.S3PublicBaseURL
	if publicBase == "" {
		if cfg.S3Endpoint != "" {
			publicBase = strings.TrimRight(cfg.S3Endpoint, "/") + "/" + cfg.S3Bucket
		} else {
			publicBase = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.S3Bucket, cfg.AWSRegion)
		}
	}
	return NewS3StoreWithClient(client, cfg.S3Bucket, publicBase), nil
}

func NewS3StoreWithClient(client ObjectPutter, bucket, publicBase string) *S3Store {
	return &S3Store{client: client, bucket: bucket, publicBase: strings.TrimRight(publicBase, "/")}
}

// Put uploads body under key and returns its public URL.
func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(body),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return s.publicBase + "/" + key, nil
}
