package storage

import (
	"context"
	"fmt"
	"strings"
)

const (
	TypeMinio = "minio"
	TypeS3    = "s3"

	ContentTypeJPEG = "image/jpeg"
)

// Store is the object capability the pipeline needs.
type Store interface {
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
	Store(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

type Config struct {
	Type       string      `mapstructure:"type"`
	PublicRead bool        `mapstructure:"public_read"`
	Minio      MinioConfig `mapstructure:"minio"`
	S3         S3Config    `mapstructure:"s3"`
}

func New(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case TypeMinio:
		return NewMinioStore(cfg.Minio, cfg.PublicRead)
	case TypeS3, "":
		return NewS3Store(ctx, cfg.S3, cfg.PublicRead)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
