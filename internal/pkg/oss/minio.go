package oss

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sober-studio/asset-vault-go-kratos/internal/conf"
)

type minioStorage struct {
	client *minio.Client
	conf   *conf.Oss
	log    *log.Helper
}

func NewMinioStorage(c *conf.Oss, logger log.Logger) Storage {
	// Endpoint 不包含 http/https 前缀
	client, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.AccessKeyId, c.AccessKeySecret, ""),
		Secure: c.UseHttps,
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize MinIO client: %v", err))
	}

	return &minioStorage{
		client: client,
		conf:   c,
		log:    log.NewHelper(logger),
	}
}

func (s *minioStorage) Upload(ctx context.Context, name string, reader io.Reader, size int64, contentType string, isPrivate bool) (*Object, error) {
	key := s.ObjectKey(ctx, name)
	_, err := s.client.PutObject(ctx, s.conf.Bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		s.log.Errorf("minio put %s failed: %v", key, err)
		return nil, ErrUploadFailed
	}
	return &Object{Key: key, URL: s.ObjectURL(ctx, key, false)}, nil
}

func (s *minioStorage) OpenUpload(ctx context.Context, name string, contentType string, isPrivate bool) (*UploadStream, error) {
	return pipeUpload(ctx, s, name, contentType, isPrivate)
}

func (s *minioStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.conf.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject 是惰性的，Stat 触发一次请求以便把 404 提前暴露出来
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return obj, nil
}

func (s *minioStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.conf.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		s.log.Errorf("minio remove %s failed: %v", key, err)
		return ErrDeletionFailed
	}
	return nil
}

func (s *minioStorage) PresignURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	signed, err := s.client.PresignedGetObject(ctx, s.conf.Bucket, key, expires, make(url.Values))
	if err != nil {
		s.log.Errorf("minio presign %s failed: %v", key, err)
		return "", ErrSigningFailed
	}
	return signed.String(), nil
}

func (s *minioStorage) ObjectURL(ctx context.Context, key string, relative bool) string {
	// 公开访问需要 Bucket Policy 为 public
	p := fmt.Sprintf("/%s/%s", s.conf.Bucket, key)
	if relative {
		return p
	}
	schema := "http"
	if s.conf.UseHttps {
		schema = "https"
	}
	host := s.conf.Domain
	if host == "" {
		host = s.conf.Endpoint
	}
	return fmt.Sprintf("%s://%s%s", schema, host, p)
}

func (s *minioStorage) ObjectKey(ctx context.Context, name string) string {
	return strings.TrimPrefix(name, "/")
}
