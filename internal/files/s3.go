package files

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/matheus3301/rentchat/internal/config"
)

// S3 presigns GET requests against a bucket. Works with MinIO and other
// S3-compatible endpoints.
type S3 struct {
	presign *s3.PresignClient
	bucket  string
}

// NewS3 builds a presigner from the storage config. Static credentials are
// used when set, otherwise the default AWS credential chain.
func NewS3(ctx context.Context, cfg config.Storage) (*S3, error) {
	opts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3{presign: s3.NewPresignClient(client), bucket: cfg.Bucket}, nil
}

// SignURL presigns a GET for key.
func (s *S3) SignURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// NewSigner picks the signer configured by cfg.Backend.
func NewSigner(ctx context.Context, cfg config.Storage, defaultDir string) (Signer, error) {
	if cfg.Backend == "s3" {
		return NewS3(ctx, cfg)
	}
	dir := cfg.LocalDir
	if dir == "" {
		dir = defaultDir
	}
	return NewLocal(dir), nil
}
