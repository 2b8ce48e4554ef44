package oss

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/go-kratos/kratos/v2/log"

	"github.com/sober-studio/asset-vault-go-kratos/internal/conf"
)

type aliyunStorage struct {
	client *oss.Client
	bucket *oss.Bucket
	conf   *conf.Oss
	log    *log.Helper
}

func NewAliyunStorage(c *conf.Oss, logger log.Logger) Storage {
	client, err := oss.New(c.Endpoint, c.AccessKeyId, c.AccessKeySecret)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize Aliyun OSS client: %v", err))
	}

	bucket, err := client.Bucket(c.Bucket)
	if err != nil {
		panic(fmt.Sprintf("Failed to get Aliyun OSS bucket: %v", err))
	}

	return &aliyunStorage{
		client: client,
		bucket: bucket,
		conf:   c,
		log:    log.NewHelper(logger),
	}
}

func (s *aliyunStorage) Upload(ctx context.Context, name string, reader io.Reader, size int64, contentType string, isPrivate bool) (*Object, error) {
	key := s.ObjectKey(ctx, name)

	options := []oss.Option{oss.ObjectACL(oss.ACLPublicRead)}
	if isPrivate {
		options[0] = oss.ObjectACL(oss.ACLPrivate)
	}
	if contentType != "" {
		options = append(options, oss.ContentType(contentType))
	}

	if err := s.bucket.PutObject(key, reader, options...); err != nil {
		s.log.Errorf("aliyun put %s failed: %v", key, err)
		return nil, ErrUploadFailed
	}
	return &Object{Key: key, URL: s.ObjectURL(ctx, key, false)}, nil
}

func (s *aliyunStorage) OpenUpload(ctx context.Context, name string, contentType string, isPrivate bool) (*UploadStream, error) {
	return pipeUpload(ctx, s, name, contentType, isPrivate)
}

func (s *aliyunStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	body, err := s.bucket.GetObject(key)
	if err != nil {
		var se oss.ServiceError
		if errors.As(err, &se) && se.StatusCode == 404 {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return body, nil
}

func (s *aliyunStorage) Delete(ctx context.Context, key string) error {
	if err := s.bucket.DeleteObject(key); err != nil {
		s.log.Errorf("aliyun delete %s failed: %v", key, err)
		return ErrDeletionFailed
	}
	return nil
}

func (s *aliyunStorage) PresignURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	signed, err := s.bucket.SignURL(key, oss.HTTPGet, int64(expires.Seconds()))
	if err != nil {
		s.log.Errorf("aliyun sign %s failed: %v", key, err)
		return "", ErrSigningFailed
	}
	return signed, nil
}

func (s *aliyunStorage) ObjectURL(ctx context.Context, key string, relative bool) string {
	p := "/" + key
	if relative {
		return p
	}
	schema := "http"
	if s.conf.UseHttps {
		schema = "https"
	}
	// 优先使用自定义域名（CDN），否则回落到 bucket.endpoint 形式
	host := s.conf.Domain
	if host == "" {
		host = s.conf.Bucket + "." + s.conf.Endpoint
	}
	return fmt.Sprintf("%s://%s%s", schema, host, p)
}

func (s *aliyunStorage) ObjectKey(ctx context.Context, name string) string {
	return strings.TrimPrefix(name, "/")
}
