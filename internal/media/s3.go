package media

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // optional, for MinIO-style deployments
	AccessKey string
	SecretKey string
	Prefix    string
	BaseURL   string // optional public URL override
}

// S3Store uploads blobs to an S3-compatible bucket, matching the storage the
// ML worker reads from.
type S3Store struct {
	uploader *s3manager.Uploader
	cfg      S3Config
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("create s3 session: %w", err)
	}

	return &S3Store{
		uploader: s3manager.NewUploader(sess),
		cfg:      cfg,
	}, nil
}

func (s *S3Store) Save(ctx context.Context, uploadID string, content []byte) (string, error) {
	ext, ok := DetectImageType(content)
	if !ok {
		return "", fmt.Errorf("unsupported image format")
	}

	key := uploadID + "." + ext
	if s.cfg.Prefix != "" {
		key = strings.TrimRight(s.cfg.Prefix, "/") + "/" + key
	}

	output, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String("image/" + extContentType(ext)),
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}

	if s.cfg.BaseURL != "" {
		return strings.TrimRight(s.cfg.BaseURL, "/") + "/" + key, nil
	}
	return output.Location, nil
}

func extContentType(ext string) string {
	if ext == "jpg" {
		return "jpeg"
	}
	return ext
}
