package objectstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"clinical-annotation-eval/harness/internal/config"
)

// MinioClient holds the MinIO client and bucket name.
type MinioClient struct {
	Client     *minio.Client
	BucketName string
}

// NewMinioClient builds a client from the object store configuration.
// No network call is made; use EnsureBucket to verify connectivity.
func NewMinioClient(cfg config.ObjectStoreConfig) (*MinioClient, error) {
	if cfg.Endpoint == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.BucketName == "" {
		return nil, errors.New("MINIO_ENDPOINT, MINIO_ACCESS_KEY_ID, MINIO_SECRET_ACCESS_KEY, and MINIO_BUCKET_NAME must be set")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	return &MinioClient{
		Client:     client,
		BucketName: cfg.BucketName,
	}, nil
}

// EnsureBucket checks that the bucket exists and creates it if not.
func (mc *MinioClient) EnsureBucket(ctx context.Context) error {
	exists, err := mc.Client.BucketExists(ctx, mc.BucketName)
	if err != nil {
		return fmt.Errorf("failed to check if MinIO bucket '%s' exists: %w", mc.BucketName, err)
	}
	if exists {
		slog.Debug("MinIO bucket already exists", "bucket", mc.BucketName)
		return nil
	}

	slog.Info("MinIO bucket does not exist, creating it", "bucket", mc.BucketName)
	if err := mc.Client.MakeBucket(ctx, mc.BucketName, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create MinIO bucket '%s': %w", mc.BucketName, err)
	}
	return nil
}

// ArtifactObjectName returns a unique object name that keeps the file's base name.
func ArtifactObjectName(localPath string) string {
	return fmt.Sprintf("%s-%s", uuid.New().String(), filepath.Base(localPath))
}

// UploadArtifact uploads a local file under a unique object name and returns that name.
func (mc *MinioClient) UploadArtifact(ctx context.Context, localPath, contentType string) (string, error) {
	objectName := ArtifactObjectName(localPath)

	info, err := mc.Client.FPutObject(ctx, mc.BucketName, objectName, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file to MinIO (bucket: %s, object: %s): %w", mc.BucketName, objectName, err)
	}

	slog.Info("artifact uploaded", "object", objectName, "size", info.Size, "etag", info.ETag)
	return objectName, nil
}

// DownloadFile fetches objectName into destPath, creating parent directories.
func (mc *MinioClient) DownloadFile(ctx context.Context, objectName, destPath string) error {
	if err := mc.Client.FGetObject(ctx, mc.BucketName, objectName, destPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("failed to get object '%s' from bucket '%s': %w", objectName, mc.BucketName, err)
	}
	slog.Info("object downloaded", "object", objectName, "path", destPath)
	return nil
}
