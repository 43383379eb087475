package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"crmbot/platform/config"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	// MaxImportSize caps an archived import file.
	MaxImportSize  = 10 << 20
	csvContentType = "text/csv"
)

// MinIOArchive implements Archive using MinIO.
type MinIOArchive struct {
	client *minio.Client
	bucket string
	now    func() time.Time
}

// NewMinIOArchive creates a MinIO-backed import archive.
func NewMinIOArchive(cfg config.StorageConfig) (*MinIOArchive, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, fmt.Errorf("MinIO is not configured")
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinIOArchive{
		client: client,
		bucket: cfg.GetMinioBucketImports(),
		now:    time.Now,
	}, nil
}

// EnsureBucketExists creates the bucket if it doesn't exist.
func (s *MinIOArchive) EnsureBucketExists(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
		}
	}

	return nil
}

// Put uploads an import file.
func (s *MinIOArchive) Put(ctx context.Context, telegramID int64, fileName string, data []byte) (string, error) {
	if err := ValidateImportFile(fileName, int64(len(data))); err != nil {
		return "", err
	}
	key := ObjectKey(telegramID, fileName, s.now())

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: csvContentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file %s: %w", key, err)
	}
	return key, nil
}

// Get downloads an archived file.
func (s *MinIOArchive) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	return obj, nil
}

// ObjectKey lays archived files out as imports/{telegramID}/{YYYY-MM-DD}/{base}_{rand}.csv.
func ObjectKey(telegramID int64, fileName string, at time.Time) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" || stem == "." || stem == "/" {
		stem = "import"
	}
	unique := fmt.Sprintf("%s_%s%s", stem, uuid.New().String()[:8], strings.ToLower(ext))
	return path.Join("imports", strconv.FormatInt(telegramID, 10), at.UTC().Format("2006-01-02"), unique)
}

// ValidateImportFile accepts .csv files up to MaxImportSize.
func ValidateImportFile(fileName string, size int64) error {
	if !strings.EqualFold(path.Ext(fileName), ".csv") {
		return fmt.Errorf("file %q is not a .csv file", fileName)
	}
	if size <= 0 {
		return fmt.Errorf("file %q is empty", fileName)
	}
	if size > MaxImportSize {
		return fmt.Errorf("file %q exceeds maximum size of %d bytes", fileName, MaxImportSize)
	}
	return nil
}
