package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sdko-org/edge-proxy/internal/config"
	"github.com/sdko-org/edge-proxy/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type S3Storage struct {
	client   *s3.S3
	uploader *s3manager.Uploader
	cfg      *config.Config
	db       *gorm.DB
	log      *logrus.Entry
}

func NewS3Storage(logger *logrus.Logger, cfg *config.Config, db *gorm.DB) *S3Storage {
	awsConfig := &aws.Config{
		Region:           aws.String(cfg.S3Region),
		Credentials:      credentials.NewStaticCredentials(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	}

	if cfg.S3Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.S3Endpoint)
	}

	sess := session.Must(session.NewSession(awsConfig))

	return &S3Storage{
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		cfg:      cfg,
		db:       db,
		log:      logger.WithField("component", "edge_storage"),
	}
}

func (s *S3Storage) Get(ctx context.Context, key string) ([]byte, string, error) {
	var entry models.EdgeCacheEntry
	if err := s.db.WithContext(ctx).Where("key = ?", key).First(&entry).Error; err != nil {
		return nil, "", err
	}

	if time.Now().After(entry.ExpiresAt) {
		if err := s.Delete(ctx, key); err != nil {
			s.log.WithError(err).Warn("Failed to delete expired cache entry")
		}
		return nil, "", fmt.Errorf("cache expired")
	}

	resp, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}

	if err := s.UpdateLastAccess(ctx, key); err != nil {
		s.log.WithError(err).Warn("Failed to update last access")
	}

	return content, entry.ContentType, nil
}

func (s *S3Storage) Put(ctx context.Context, key string, content []byte, contentType string, ttl time.Duration) error {
	return s.put(ctx, key, bytes.NewReader(content), contentType, ttl, int64(len(content)))
}

// PutStream records a size of -1 because the body length is unknown until
// the upload completes.
func (s *S3Storage) PutStream(ctx context.Context, key string, content io.Reader, contentType string, ttl time.Duration) error {
	return s.put(ctx, key, content, contentType, ttl, -1)
}

func (s *S3Storage) put(ctx context.Context, key string, content io.Reader, contentType string, ttl time.Duration, sizeBytes int64) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.cfg.S3Bucket),
		Key:         aws.String(key),
		Body:        content,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}

	if err := s.db.WithContext(ctx).Save(newCacheEntry(key, contentType, ttl, sizeBytes)).Error; err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}

	return nil
}

func newCacheEntry(key, contentType string, ttl time.Duration, sizeBytes int64) *models.EdgeCacheEntry {
	now := time.Now()
	return &models.EdgeCacheEntry{
		Key:         key,
		ContentType: contentType,
		StoredAt:    now,
		ExpiresAt:   now.Add(ttl),
		LastAccess:  now,
		SizeBytes:   sizeBytes,
	}
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.S3Bucket),
		Key:    aws.String(key),
	})

	if dbErr := s.db.Where("key = ?", key).Delete(&models.EdgeCacheEntry{}).Error; dbErr != nil {
		s.log.WithError(dbErr).Warn("Failed to delete cache entry row")
	}

	return err
}

func (s *S3Storage) UpdateLastAccess(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Model(&models.EdgeCacheEntry{}).
		Where("key = ?", key).
		Update("last_access", time.Now()).Error
}
