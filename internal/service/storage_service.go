package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"vstep_exam_backend/internal/config"
	"vstep_exam_backend/internal/model"
	"vstep_exam_backend/internal/util"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// StorageService 口语录音与写作附件的 MinIO 存储。
type StorageService struct {
	Cfg    *config.StorageConfig
	Client *minio.Client
}

func NewStorageService(cfg *config.Config) (*StorageService, error) {
	client, err := minio.New(cfg.Storage.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Storage.MinioAccessID, cfg.Storage.MinioSecret, ""),
		Secure: cfg.Storage.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &StorageService{Cfg: &cfg.Storage, Client: client}, nil
}

// EnsureBucket creates the bucket on first boot.
func (s *StorageService) EnsureBucket(ctx context.Context) error {
	exists, err := s.Client.BucketExists(ctx, s.Cfg.MinioBucket)
	if err != nil {
		return err
	}
	if !exists {
		return s.Client.MakeBucket(ctx, s.Cfg.MinioBucket, minio.MakeBucketOptions{})
	}
	return nil
}

// UploadRecording stores a speaking recording and returns its object name
// along with the probed duration in seconds.
func (s *StorageService) UploadRecording(ctx context.Context, userID string, reader io.Reader, size int64, contentType string) (string, float64, error) {
	objectName := fmt.Sprintf("recordings/%s/%s%s", userID, model.GenerateUUID(), extensionFor(contentType))

	// 先落临时文件，探测时长后再上传
	tmp, err := os.CreateTemp("", "vstep-audio-*")
	if err != nil {
		return "", 0, err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, reader); err != nil {
		return "", 0, err
	}

	info, err := util.GetAudioInfo(tmp.Name())
	if err != nil {
		return "", 0, util.NewBadRequest("unreadable audio file")
	}

	if _, err := s.Client.FPutObject(ctx, s.Cfg.MinioBucket, objectName, tmp.Name(), minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", 0, err
	}

	return objectName, info.Duration, nil
}

// UploadAttachment stores a writing attachment (image or document).
func (s *StorageService) UploadAttachment(ctx context.Context, userID string, reader io.Reader, size int64, contentType string) (string, error) {
	objectName := fmt.Sprintf("attachments/%s/%s%s", userID, model.GenerateUUID(), extensionFor(contentType))

	if _, err := s.Client.PutObject(ctx, s.Cfg.MinioBucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", err
	}
	return objectName, nil
}

// PresignedURL grants temporary read access to a stored object. Reviewers
// fetch recordings through this.
func (s *StorageService) PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	u, err := s.Client.PresignedGetObject(ctx, s.Cfg.MinioBucket, objectName, expiry, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (s *StorageService) Delete(ctx context.Context, objectName string) error {
	return s.Client.RemoveObject(ctx, s.Cfg.MinioBucket, objectName, minio.RemoveObjectOptions{})
}

func extensionFor(contentType string) string {
	switch contentType {
	case "audio/webm":
		return ".webm"
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "application/pdf":
		return ".pdf"
	default:
		return filepath.Ext(contentType)
	}
}
