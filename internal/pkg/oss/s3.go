package oss

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"

	"github.com/sober-studio/asset-vault-go-kratos/internal/conf"
)

// defaultPresignExpiry 未配置 download_url_duration 时的签名有效期
const defaultPresignExpiry = 15 * time.Minute

// objectAPI S3 数据面最小接口
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// objectPresigner S3 原生预签名
type objectPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*signedRequest, error)
}

// invalidationAPI CloudFront 控制面中发起缓存失效所需的最小接口
type invalidationAPI interface {
	CreateInvalidation(ctx context.Context, params *cloudfront.CreateInvalidationInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateInvalidationOutput, error)
}

// streamUploader 不定长流式上传（manager.Uploader 自动分片）
type streamUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type s3Storage struct {
	api      objectAPI
	uploader streamUploader
	presign  objectPresigner
	cdn      invalidationAPI
	signer   *urlSigner

	conf   *conf.Oss
	s3conf *conf.OssS3
	cache  *configCache
	log    *log.Helper
}

var _ Storage = (*s3Storage)(nil)
var _ ConfigRefresher = (*s3Storage)(nil)

// NewS3Storage S3 供应商，可选 CloudFront 分发前置
func NewS3Storage(c *conf.Oss, logger log.Logger) Storage {
	s3c := c.S3
	if s3c == nil {
		s3c = &conf.OssS3{}
	}

	awsCfg, err := loadAWSConfig(context.Background(), c)
	if err != nil {
		panic(fmt.Sprintf("Failed to load AWS config: %v", err))
	}

	client := s3.NewFromConfig(awsCfg)
	cfClient := cloudfront.NewFromConfig(awsCfg)

	signer, err := newURLSigner(s3c)
	if err != nil {
		panic(fmt.Sprintf("Failed to load CloudFront signing key: %v", err))
	}

	prefs := ResolvePrefs{
		Bucket:               c.Bucket,
		DomainName:           c.Domain,
		OriginPath:           s3c.OriginPath,
		CacheBehaviorPattern: s3c.CloudFrontCacheBehaviorPathPattern,
		UseHTTPS:             c.UseHttps,
	}

	return &s3Storage{
		api:      client,
		uploader: manager.NewUploader(client),
		presign:  presignAdapter{s3.NewPresignClient(client)},
		cdn:      cfClient,
		signer:   signer,
		conf:     c,
		s3conf:   s3c,
		cache:    newConfigCache(cfClient, s3c.CloudFrontDistributionId, prefs, logger),
		log:      log.NewHelper(logger),
	}
}

func loadAWSConfig(ctx context.Context, c *conf.Oss) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(c.Region),
	}
	if c.AccessKeyId != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyId, c.AccessKeySecret, ""),
		))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

func (s *s3Storage) Upload(ctx context.Context, name string, reader io.Reader, size int64, contentType string, isPrivate bool) (*Object, error) {
	rc := s.cache.Get(ctx)
	key := keyFromName(rc, name)

	input := s.putInput(rc, key, contentType, isPrivate)
	input.Body = reader
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}

	out, err := s.api.PutObject(ctx, input)
	if err != nil || out == nil {
		s.log.Errorf("put object %s failed: %v", key, err)
		return nil, ErrUploadFailed
	}

	s.invalidate(ctx, rc, key)

	return &Object{Key: key, URL: keyToURL(rc, key, false)}, nil
}

func (s *s3Storage) OpenUpload(ctx context.Context, name string, contentType string, isPrivate bool) (*UploadStream, error) {
	rc := s.cache.Get(ctx)
	key := keyFromName(rc, name)

	input := s.putInput(rc, key, contentType, isPrivate)
	pr, pw := io.Pipe()
	input.Body = pr

	done := make(chan error, 1)
	go func() {
		_, err := s.uploader.Upload(ctx, input)
		if err != nil {
			pr.CloseWithError(err)
			s.log.Errorf("stream upload %s failed: %v", key, err)
			done <- ErrUploadFailed
			return
		}
		s.invalidate(ctx, rc, key)
		done <- nil
	}()

	return &UploadStream{
		Key:  key,
		URL:  keyToURL(rc, key, false),
		Body: pw,
		Done: done,
	}, nil
}

func (s *s3Storage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	rc := s.cache.Get(ctx)

	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(rc.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if out == nil || out.Body == nil {
		return nil, ErrNotFound
	}
	defer out.Body.Close()

	// 整体缓冲后返回一次性读取流
	buf, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(buf)), nil
}

func (s *s3Storage) Delete(ctx context.Context, key string) error {
	rc := s.cache.Get(ctx)

	out, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(rc.Bucket),
		Key:    aws.String(key),
	})
	if err != nil || out == nil {
		s.log.Errorf("delete object %s failed: %v", key, err)
		return ErrDeletionFailed
	}
	// 删除不触发缓存失效：源站此后返回 404，由边缘缓存自然过期
	return nil
}

func (s *s3Storage) PresignURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	rc := s.cache.Get(ctx)
	if expires <= 0 {
		expires = defaultPresignExpiry
		if s.s3conf.DownloadUrlDuration > 0 {
			expires = time.Duration(s.s3conf.DownloadUrlDuration) * time.Second
		}
	}

	if s.s3conf.CloudFrontDistributionId != "" {
		if s.signer == nil {
			return "", ErrSigningFailed
		}
		signed, err := s.signer.Sign(keyToURL(rc, key, false), time.Now().Add(expires))
		if err != nil {
			s.log.Errorf("cloudfront sign for %s failed: %v", key, err)
			return "", ErrSigningFailed
		}
		return signed, nil
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(rc.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		s.log.Errorf("s3 presign for %s failed: %v", key, err)
		return "", ErrSigningFailed
	}
	return req.URL, nil
}

func (s *s3Storage) ObjectURL(ctx context.Context, key string, relative bool) string {
	return keyToURL(s.cache.Get(ctx), key, relative)
}

func (s *s3Storage) ObjectKey(ctx context.Context, name string) string {
	return keyFromName(s.cache.Get(ctx), name)
}

// RefreshConfig 重新解析分发配置（定时任务调用）
func (s *s3Storage) RefreshConfig(ctx context.Context) {
	s.cache.Refresh(ctx)
}

func (s *s3Storage) putInput(rc *ResolvedConfig, key, contentType string, isPrivate bool) *s3.PutObjectInput {
	input := &s3.PutObjectInput{
		Bucket: aws.String(rc.Bucket),
		Key:    aws.String(key),
		ACL:    s.effectiveACL(isPrivate),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if s.s3conf.CacheControl != "" {
		input.CacheControl = aws.String(s.s3conf.CacheControl)
	}
	if s.s3conf.ServerSideEncryption != "" {
		input.ServerSideEncryption = s3types.ServerSideEncryption(s.s3conf.ServerSideEncryption)
	}
	if s.s3conf.StorageClass != "" {
		input.StorageClass = s3types.StorageClass(s.s3conf.StorageClass)
	}
	return input
}

// effectiveACL 私有上传强制 private，否则用配置的 ACL，默认 public-read
func (s *s3Storage) effectiveACL(isPrivate bool) s3types.ObjectCannedACL {
	if isPrivate {
		return s3types.ObjectCannedACLPrivate
	}
	if s.s3conf.Acl != "" {
		return s3types.ObjectCannedACL(s.s3conf.Acl)
	}
	return s3types.ObjectCannedACLPublicRead
}

// invalidate 写入成功后的尽力而为失效：失败只记日志，绝不影响已成功的写入
func (s *s3Storage) invalidate(ctx context.Context, rc *ResolvedConfig, key string) {
	if s.cdn == nil || s.s3conf.CloudFrontDistributionId == "" {
		return
	}

	path := keyToURL(rc, key, true)
	_, err := s.cdn.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(s.s3conf.CloudFrontDistributionId),
		InvalidationBatch: &cftypes.InvalidationBatch{
			CallerReference: aws.String(uuid.NewString()),
			Paths: &cftypes.Paths{
				Quantity: aws.Int32(1),
				Items:    []string{path},
			},
		},
	})
	if err != nil {
		s.log.Warnf("invalidate %s failed: %v", path, err)
	}
}

// signedRequest 预签名结果中本包关心的部分
type signedRequest struct {
	URL string
}

// presignAdapter 把 SDK 的 PresignClient 适配到窄接口上
type presignAdapter struct {
	client *s3.PresignClient
}

func (p presignAdapter) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*signedRequest, error) {
	req, err := p.client.PresignGetObject(ctx, params, optFns...)
	if err != nil {
		return nil, err
	}
	return &signedRequest{URL: req.URL}, nil
}
