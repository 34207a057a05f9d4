package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"smileslot/config"
	"smileslot/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore reads audio objects from one bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

func maskKey(s string) string {
	if len(s) > 4 {
		return s[:4] + "..."
	}
	return "***"
}

// NewMinioStore 初始化 MinIO 客户端并检查 bucket 是否存在
func NewMinioStore(ctx context.Context, cfg *config.Config) (*MinioStore, error) {
	logger.Info("connecting to MinIO",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket),
		logger.String("accessKey", maskKey(cfg.MinioAccessKey)))

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(checkCtx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", cfg.MinioBucket)
	}

	return &MinioStore{client: client, bucket: cfg.MinioBucket}, nil
}

// Fetch implements Fetcher.
func (m *MinioStore) Fetch(ctx context.Context, path string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, m.mapError(ctx, path, err)
	}
	defer obj.Close()

	if _, err := obj.Stat(); err != nil {
		return nil, m.mapError(ctx, path, err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, m.mapError(ctx, path, err)
	}
	logger.Debug("fetched audio object", logger.String("path", path), logger.Int("size", len(data)))
	return data, nil
}

// List implements Lister.
func (m *MinioStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	// 提前返回时 cancel 让 ListObjects 的 goroutine 退出
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var objects []ObjectInfo
	for object := range m.client.ListObjects(listCtx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if object.Err != nil {
			return nil, m.mapError(ctx, prefix, object.Err)
		}
		objects = append(objects, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
		})
	}
	return objects, nil
}

func (m *MinioStore) mapError(ctx context.Context, path string, err error) error {
	if isTimeout(ctx, err) {
		return fmt.Errorf("%w: %s", ErrTimeout, path)
	}
	return mapMinioCode(path, minio.ToErrorResponse(err).Code, err)
}

func mapMinioCode(path, code string, err error) error {
	switch code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return fmt.Errorf("%w: %s", ErrAccessDenied, path)
	case "RequestTimeout":
		return fmt.Errorf("%w: %s", ErrTimeout, path)
	}
	return fmt.Errorf("failed to read %s from MinIO: %w", path, err)
}
