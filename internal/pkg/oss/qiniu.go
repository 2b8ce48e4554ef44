package oss

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/qiniu/go-sdk/v7/auth/qbox"
	"github.com/qiniu/go-sdk/v7/storage"

	"github.com/sober-studio/asset-vault-go-kratos/internal/conf"
)

type qiniuStorage struct {
	mac  *qbox.Mac
	cfg  *storage.Config
	conf *conf.Oss
	log  *log.Helper
}

func NewQiniuStorage(c *conf.Oss, logger log.Logger) Storage {
	mac := qbox.NewMac(c.AccessKeyId, c.AccessKeySecret)

	cfg := storage.Config{}
	cfg.UseHTTPS = c.UseHttps
	cfg.UseCdnDomains = false

	s := &qiniuStorage{
		mac:  mac,
		cfg:  &cfg,
		conf: c,
		log:  log.NewHelper(logger),
	}
	s.fillZone(&cfg)
	return s
}

func (s *qiniuStorage) Upload(ctx context.Context, name string, reader io.Reader, size int64, contentType string, isPrivate bool) (*Object, error) {
	key := s.ObjectKey(ctx, name)

	putPolicy := storage.PutPolicy{
		Scope: s.conf.Bucket,
	}
	upToken := putPolicy.UploadToken(s.mac)

	formUploader := storage.NewFormUploader(s.cfg)
	ret := storage.PutRet{}
	putExtra := storage.PutExtra{
		MimeType: contentType,
	}

	var err error
	if size < 0 {
		resumeUploader := storage.NewResumeUploader(s.cfg)
		err = resumeUploader.PutWithoutSize(ctx, &ret, upToken, key, reader, &storage.RputExtra{
			MimeType: contentType,
		})
	} else {
		err = formUploader.Put(ctx, &ret, upToken, key, reader, size, &putExtra)
	}
	if err != nil {
		s.log.Errorf("qiniu put %s failed: %v", key, err)
		return nil, ErrUploadFailed
	}

	return &Object{Key: key, URL: s.ObjectURL(ctx, key, false)}, nil
}

func (s *qiniuStorage) OpenUpload(ctx context.Context, name string, contentType string, isPrivate bool) (*UploadStream, error) {
	return pipeUpload(ctx, s, name, contentType, isPrivate)
}

// Download 七牛没有直接的读对象接口，经签名 URL 回源拉取
func (s *qiniuStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	deadline := time.Now().Add(5 * time.Minute).Unix()
	signed := storage.MakePrivateURL(s.mac, s.conf.Domain, key, deadline)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signed, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		_ = resp.Body.Close()
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("qiniu download %s: unexpected status %d", key, resp.StatusCode)
	}
	return resp.Body, nil
}

func (s *qiniuStorage) Delete(ctx context.Context, key string) error {
	bucketManager := storage.NewBucketManager(s.mac, s.cfg)
	if err := bucketManager.Delete(s.conf.Bucket, key); err != nil {
		s.log.Errorf("qiniu delete %s failed: %v", key, err)
		return ErrDeletionFailed
	}
	return nil
}

func (s *qiniuStorage) PresignURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	deadline := time.Now().Add(expires).Unix()
	return storage.MakePrivateURL(s.mac, s.conf.Domain, key, deadline), nil
}

func (s *qiniuStorage) ObjectURL(ctx context.Context, key string, relative bool) string {
	p := "/" + key
	if relative {
		return p
	}
	schema := "http"
	if s.conf.UseHttps {
		schema = "https"
	}
	// 七牛通常绑定自定义域名
	return fmt.Sprintf("%s://%s%s", schema, s.conf.Domain, p)
}

func (s *qiniuStorage) ObjectKey(ctx context.Context, name string) string {
	return strings.TrimPrefix(name, "/")
}

// fillZone 区域映射逻辑
func (s *qiniuStorage) fillZone(cfg *storage.Config) {
	switch s.conf.Region {
	case "z0":
		cfg.Zone = &storage.ZoneHuadong
	case "z1":
		cfg.Zone = &storage.ZoneHuabei
	case "z2":
		cfg.Zone = &storage.ZoneHuanan
	case "na0":
		cfg.Zone = &storage.ZoneBeimei
	case "as0":
		cfg.Zone = &storage.ZoneXinjiapo
	default:
		cfg.Zone = &storage.ZoneHuadong
	}
}
