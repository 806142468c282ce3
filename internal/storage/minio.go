package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type MinioStore struct {
	minio      *minio.Client
	publicRead bool
}

func NewMinioStore(cfg MinioConfig, publicRead bool) (*MinioStore, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("minio endpoint is required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinioStore{minio: mc, publicRead: publicRead}, nil
}

func (s *MinioStore) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.minio.BucketExists(ctx, bucket)
	if err != nil {
		return transient("bucket_exists", bucket, "", err)
	}
	if exists {
		return nil
	}

	if err := s.minio.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		exists, checkErr := s.minio.BucketExists(ctx, bucket)
		if checkErr == nil && exists {
			return nil
		}
		return transient("make_bucket", bucket, "", err)
	}
	return nil
}

func (s *MinioStore) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.minio.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyMinio("get_object", bucket, key, err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key only shows up on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classifyMinio("read_object", bucket, key, err)
	}
	return data, nil
}

func (s *MinioStore) Store(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	_, err := s.minio.PutObject(
		ctx,
		bucket,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minioPutOptions(contentType, s.publicRead),
	)
	if err != nil {
		return transient("put_object", bucket, key, err)
	}
	return nil
}

func minioPutOptions(contentType string, publicRead bool) minio.PutObjectOptions {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if publicRead {
		// x-amz-* keys are sent as plain headers rather than x-amz-meta-*.
		opts.UserMetadata = map[string]string{"x-amz-acl": "public-read"}
	}
	return opts
}

func classifyMinio(op, bucket, key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchObject", "NoSuchBucket":
		return notFound(op, bucket, key, err)
	default:
		return transient(op, bucket, key, err)
	}
}
