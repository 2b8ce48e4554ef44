package oss

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/sober-studio/asset-vault-go-kratos/internal/conf"
)

type localStorage struct {
	baseDir string
	conf    *conf.Oss
	log     *log.Helper
}

func NewLocalStorage(c *conf.Oss, logger log.Logger) Storage {
	// 默认存储在当前运行目录的 uploads 下
	baseDir := "uploads"
	if c.Bucket != "" {
		baseDir = c.Bucket
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		panic(fmt.Sprintf("Failed to create local storage directory: %v", err))
	}

	return &localStorage{
		baseDir: baseDir,
		conf:    c,
		log:     log.NewHelper(logger),
	}
}

func (s *localStorage) Upload(ctx context.Context, name string, reader io.Reader, size int64, contentType string, isPrivate bool) (*Object, error) {
	key := s.ObjectKey(ctx, name)

	filePath, err := s.safePath(key)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, err
	}

	out, err := os.Create(filePath)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	if _, err := io.Copy(out, reader); err != nil {
		return nil, ErrUploadFailed
	}

	return &Object{Key: key, URL: s.ObjectURL(ctx, key, false)}, nil
}

func (s *localStorage) OpenUpload(ctx context.Context, name string, contentType string, isPrivate bool) (*UploadStream, error) {
	return pipeUpload(ctx, s, name, contentType, isPrivate)
}

func (s *localStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	filePath, err := s.safePath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return f, err
}

func (s *localStorage) Delete(ctx context.Context, key string) error {
	filePath, err := s.safePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil {
		s.log.Errorf("local delete %s failed: %v", key, err)
		return ErrDeletionFailed
	}
	return nil
}

// PresignURL 本地存储没有签名能力，直接返回公开 URL
func (s *localStorage) PresignURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	return s.ObjectURL(ctx, key, false), nil
}

func (s *localStorage) ObjectURL(ctx context.Context, key string, relative bool) string {
	p := "/" + key
	if relative {
		return p
	}
	if s.conf.Domain == "" {
		// 没有配置域名时只能返回相对路径，由前端自己拼接
		return p
	}
	schema := "http"
	if s.conf.UseHttps {
		schema = "https"
	}
	return fmt.Sprintf("%s://%s%s", schema, s.conf.Domain, p)
}

func (s *localStorage) ObjectKey(ctx context.Context, name string) string {
	return strings.TrimPrefix(name, "/")
}

// safePath 拼接并校验路径，防止路径遍历
func (s *localStorage) safePath(key string) (string, error) {
	filePath := filepath.Join(s.baseDir, key)

	cleanBase, err := filepath.Abs(filepath.Clean(s.baseDir))
	if err != nil {
		return "", err
	}
	cleanPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(cleanBase, cleanPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid file path: %s", key)
	}
	return filePath, nil
}
