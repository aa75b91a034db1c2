package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appConfig "github.com/ragcore/ingestion-core/internal/config"
	"github.com/ragcore/ingestion-core/internal/logger"
)

// ObjectStoreClient is the C1 object-store client: it downloads input
// blobs to a scoped temporary location and guarantees their cleanup. It
// is read-mostly by design — the spec's processing core only ever reads
// objects the external upload path already wrote.
type ObjectStoreClient struct {
	client *s3.Client
	bucket string
	logger *logger.Logger
}

// NewObjectStoreClient creates a new S3/MinIO-backed object store client.
func NewObjectStoreClient(cfg appConfig.StorageConfig, log *logger.Logger) (*ObjectStoreClient, error) {
	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsConfig.Credentials = aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     cfg.AccessKeyID,
				SecretAccessKey: cfg.SecretAccessKey,
			}, nil
		})
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
			log.Info("object store client configured with custom endpoint",
				zap.String("endpoint", cfg.Endpoint),
				zap.Bool("use_path_style", cfg.UsePathStyle),
			)
		}
	})

	return &ObjectStoreClient{
		client: s3Client,
		bucket: cfg.Bucket,
		logger: log.WithService("object_store"),
	}, nil
}

// HeadObject probes an object's size and content type without downloading it.
func (s *ObjectStoreClient) HeadObject(ctx context.Context, key string) (size int64, contentType string, err error) {
	start := time.Now()
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	duration := time.Since(start)
	if err != nil {
		s.logger.LogServiceCall("s3", "head_object", duration.Seconds()*1000, err)
		return 0, "", fmt.Errorf("head object %s: %w", key, err)
	}
	s.logger.LogServiceCall("s3", "head_object", duration.Seconds()*1000, nil)

	size = 0
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	ct := ""
	if out.ContentType != nil {
		ct = *out.ContentType
	}
	return size, ct, nil
}

// DownloadToTempFile downloads the object at key into a scoped temporary
// file and returns its path. The caller owns cleanup; CleanupTempFile (or
// os.Remove) must be called on every exit path, success or failure.
func (s *ObjectStoreClient) DownloadToTempFile(ctx context.Context, key string) (path string, err error) {
	start := time.Now()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		s.logger.LogServiceCall("s3", "get_object", time.Since(start).Seconds()*1000, err)
		return "", fmt.Errorf("download object %s: %w", key, err)
	}
	defer out.Body.Close()

	tmpDir, err := os.MkdirTemp("", "ragcore-job-*")
	if err != nil {
		return "", fmt.Errorf("create scoped temp dir: %w", err)
	}

	tmpPath := filepath.Join(tmpDir, filepath.Base(key)+"-"+uuid.New().String())
	f, err := os.Create(tmpPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, out.Body); err != nil {
		os.RemoveAll(tmpDir)
		return "", fmt.Errorf("write temp file: %w", err)
	}

	s.logger.LogServiceCall("s3", "get_object", time.Since(start).Seconds()*1000, nil)
	return tmpPath, nil
}

// CleanupTempFile removes a downloaded temp file and its scoped parent
// directory. It is safe to call multiple times and on nonexistent paths.
func (s *ObjectStoreClient) CleanupTempFile(path string) {
	if path == "" {
		return
	}
	if err := os.RemoveAll(filepath.Dir(path)); err != nil {
		s.logger.Warn("failed to clean up temp file", zap.String("path", path), zap.Error(err))
	}
}

// UploadFile uploads a file to the configured bucket. Retained from the
// upload-completion path so integration tests can seed objects without a
// separate upload service.
func (s *ObjectStoreClient) UploadFile(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	start := time.Now()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	s.logger.LogServiceCall("s3", "put_object", time.Since(start).Seconds()*1000, err)
	if err != nil {
		return "", fmt.Errorf("upload object %s: %w", key, err)
	}
	return key, nil
}
