package oss

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/cloudfront/sign"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sober-studio/asset-vault-go-kratos/internal/conf"
)

type fakeObjectAPI struct {
	putErr error
	getErr error
	delErr error

	putInput *s3.PutObjectInput
	getBody  []byte
	delCalls int
}

func (f *fakeObjectAPI) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.putInput = params
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjectAPI) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.getBody))}, nil
}

func (f *fakeObjectAPI) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.delCalls++
	if f.delErr != nil {
		return nil, f.delErr
	}
	return &s3.DeleteObjectOutput{}, nil
}

type fakeInvalidationAPI struct {
	err   error
	calls int
	paths []string
}

func (f *fakeInvalidationAPI) CreateInvalidation(ctx context.Context, params *cloudfront.CreateInvalidationInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateInvalidationOutput, error) {
	f.calls++
	if params.InvalidationBatch != nil && params.InvalidationBatch.Paths != nil {
		f.paths = append(f.paths, params.InvalidationBatch.Paths.Items...)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &cloudfront.CreateInvalidationOutput{}, nil
}

type fakePresigner struct {
	url string
	err error
}

func (f *fakePresigner) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*signedRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &signedRequest{URL: f.url}, nil
}

type fakeUploader struct {
	content []byte
	acl     s3types.ObjectCannedACL
	err     error
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	f.acl = input.ACL
	b, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.content = b
	if f.err != nil {
		return nil, f.err
	}
	return &manager.UploadOutput{}, nil
}

// newTestS3 直接注入已解析好的配置快照，绕过描述符拉取
func newTestS3(rc *ResolvedConfig, distributionID string) (*s3Storage, *fakeObjectAPI, *fakeInvalidationAPI) {
	api := &fakeObjectAPI{}
	cdn := &fakeInvalidationAPI{}
	cache := newConfigCache(nil, "", ResolvePrefs{}, log.DefaultLogger)
	cache.current.Store(rc)

	s := &s3Storage{
		api:      api,
		uploader: &fakeUploader{},
		presign:  &fakePresigner{url: "https://b.s3.amazonaws.com/signed"},
		cdn:      cdn,
		conf:     &conf.Oss{Bucket: rc.Bucket, UseHttps: true},
		s3conf:   &conf.OssS3{CloudFrontDistributionId: distributionID},
		cache:    cache,
		log:      log.NewHelper(log.DefaultLogger),
	}
	return s, api, cdn
}

func noCDNConfig() *ResolvedConfig {
	return ResolveDistribution(nil, ResolvePrefs{Bucket: "b", UseHTTPS: true})
}

func cdnConfig() *ResolvedConfig {
	return &ResolvedConfig{
		BaseURL:  "https://cdn.example.com",
		Bucket:   "b",
		Origin:   &OriginRef{ID: "assets", DomainName: "b.s3.amazonaws.com", OriginPath: "/assets"},
		Behavior: &CacheBehaviorRef{PathPattern: "*", TargetOriginID: "assets"},
	}
}

func TestS3UploadWithoutCDN(t *testing.T) {
	s, api, cdn := newTestS3(noCDNConfig(), "")

	obj, err := s.Upload(context.Background(), "photo.png", strings.NewReader("png"), 3, "image/png", false)
	require.NoError(t, err)
	assert.Equal(t, "photo.png", obj.Key)
	assert.Equal(t, "https://b.s3.amazonaws.com/photo.png", obj.URL)

	require.NotNil(t, api.putInput)
	assert.Equal(t, "b", aws.ToString(api.putInput.Bucket))
	assert.Equal(t, s3types.ObjectCannedACLPublicRead, api.putInput.ACL)
	assert.Equal(t, 0, cdn.calls)
}

func TestS3UploadProtected(t *testing.T) {
	s, api, _ := newTestS3(noCDNConfig(), "")

	_, err := s.Upload(context.Background(), "secret.bin", strings.NewReader("x"), 1, "", true)
	require.NoError(t, err)
	assert.Equal(t, s3types.ObjectCannedACLPrivate, api.putInput.ACL)
}

func TestS3UploadFailed(t *testing.T) {
	s, api, cdn := newTestS3(noCDNConfig(), "")
	api.putErr = errors.New("boom")

	_, err := s.Upload(context.Background(), "a.png", strings.NewReader("x"), 1, "", false)
	assert.ErrorIs(t, err, ErrUploadFailed)
	assert.Equal(t, 0, cdn.calls)
}

func TestS3UploadInvalidates(t *testing.T) {
	s, _, cdn := newTestS3(cdnConfig(), "DIST1")

	obj, err := s.Upload(context.Background(), "a.png", strings.NewReader("x"), 1, "", false)
	require.NoError(t, err)
	assert.Equal(t, "assets/a.png", obj.Key)
	assert.Equal(t, "https://cdn.example.com/a.png", obj.URL)
	require.Equal(t, 1, cdn.calls)
	assert.Equal(t, []string{"/a.png"}, cdn.paths)
}

// 失效请求失败不影响已成功的写入
func TestS3UploadSurvivesInvalidationFailure(t *testing.T) {
	s, _, cdn := newTestS3(cdnConfig(), "DIST1")
	cdn.err = errors.New("cloudfront down")

	obj, err := s.Upload(context.Background(), "a.png", strings.NewReader("x"), 1, "", false)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.png", obj.URL)
	assert.Equal(t, 1, cdn.calls)
}

func TestS3DeleteFailedNoInvalidation(t *testing.T) {
	s, api, cdn := newTestS3(cdnConfig(), "DIST1")
	api.delErr = errors.New("denied")

	err := s.Delete(context.Background(), "assets/a.png")
	assert.ErrorIs(t, err, ErrDeletionFailed)
	assert.Equal(t, 0, cdn.calls)
}

// 删除成功也不触发失效（源站此后 404）
func TestS3DeleteDoesNotInvalidate(t *testing.T) {
	s, api, cdn := newTestS3(cdnConfig(), "DIST1")

	require.NoError(t, s.Delete(context.Background(), "assets/a.png"))
	assert.Equal(t, 1, api.delCalls)
	assert.Equal(t, 0, cdn.calls)
}

func TestS3Download(t *testing.T) {
	s, api, _ := newTestS3(noCDNConfig(), "")
	api.getBody = []byte("content")

	body, err := s.Download(context.Background(), "a.png")
	require.NoError(t, err)
	defer body.Close()
	b, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "content", string(b))
}

func TestS3DownloadNotFound(t *testing.T) {
	s, api, _ := newTestS3(noCDNConfig(), "")
	api.getErr = &s3types.NoSuchKey{}

	_, err := s.Download(context.Background(), "missing.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3PresignWithoutCDN(t *testing.T) {
	s, _, _ := newTestS3(noCDNConfig(), "")

	u, err := s.PresignURL(context.Background(), "a.png", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://b.s3.amazonaws.com/signed", u)
}

// CDN 已配置但密钥对缺失：明确报错而不是让签名器在内部崩掉
func TestS3PresignMissingKeyPair(t *testing.T) {
	s, _, _ := newTestS3(cdnConfig(), "DIST1")
	s.signer = nil

	_, err := s.PresignURL(context.Background(), "assets/a.png", time.Minute)
	assert.ErrorIs(t, err, ErrSigningFailed)
}

func TestS3PresignWithCDN(t *testing.T) {
	s, _, _ := newTestS3(cdnConfig(), "DIST1")

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	s.signer = &urlSigner{inner: sign.NewURLSigner("KEYPAIR1", key)}

	u, err := s.PresignURL(context.Background(), "assets/a.png", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "https://cdn.example.com/a.png"))
	assert.Contains(t, u, "Signature=")
	assert.Contains(t, u, "Key-Pair-Id=KEYPAIR1")
}

func TestS3OpenUpload(t *testing.T) {
	s, _, cdn := newTestS3(cdnConfig(), "DIST1")
	up := &fakeUploader{}
	s.uploader = up

	stream, err := s.OpenUpload(context.Background(), "big.bin", "application/octet-stream", false)
	require.NoError(t, err)
	// key 与 URL 在打开时即可用
	assert.Equal(t, "assets/big.bin", stream.Key)
	assert.Equal(t, "https://cdn.example.com/big.bin", stream.URL)

	_, err = stream.Body.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, stream.Body.Close())

	require.NoError(t, <-stream.Done)
	assert.Equal(t, "payload", string(up.content))
	assert.Equal(t, s3types.ObjectCannedACLPublicRead, up.acl)
	assert.Equal(t, []string{"/big.bin"}, cdn.paths)
}

func TestS3OpenUploadPrivateACL(t *testing.T) {
	s, _, _ := newTestS3(noCDNConfig(), "")
	up := &fakeUploader{}
	s.uploader = up

	stream, err := s.OpenUpload(context.Background(), "secret.pdf", "application/pdf", true)
	require.NoError(t, err)

	_, err = stream.Body.Write([]byte("classified"))
	require.NoError(t, err)
	require.NoError(t, stream.Body.Close())
	require.NoError(t, <-stream.Done)

	// 私有流式上传不能落成 public-read 对象
	assert.Equal(t, s3types.ObjectCannedACLPrivate, up.acl)
}

func TestFromGetDistributionOutput(t *testing.T) {
	out := &cloudfront.GetDistributionOutput{
		Distribution: &cftypes.Distribution{
			DomainName: aws.String("d111.cloudfront.net"),
			DistributionConfig: &cftypes.DistributionConfig{
				Aliases: &cftypes.Aliases{Items: []string{"cdn.example.com"}},
				Origins: &cftypes.Origins{Items: []cftypes.Origin{{
					Id:         aws.String("assets"),
					DomainName: aws.String("b.s3.amazonaws.com"),
					OriginPath: aws.String("/assets"),
				}}},
				DefaultCacheBehavior: &cftypes.DefaultCacheBehavior{
					TargetOriginId: aws.String("assets"),
				},
				CacheBehaviors: &cftypes.CacheBehaviors{Items: []cftypes.CacheBehavior{{
					PathPattern:    aws.String("/media/*"),
					TargetOriginId: aws.String("media"),
				}}},
			},
		},
	}

	dist := fromGetDistributionOutput(out)
	require.NotNil(t, dist)
	assert.Equal(t, "d111.cloudfront.net", dist.DomainName)
	assert.Equal(t, []string{"cdn.example.com"}, dist.Aliases)
	require.Len(t, dist.Origins, 1)
	assert.Equal(t, "/assets", dist.Origins[0].OriginPath)
	require.NotNil(t, dist.DefaultBehavior)
	assert.Equal(t, "*", dist.DefaultBehavior.PathPattern)
	require.Len(t, dist.CacheBehaviors, 1)
	assert.Equal(t, "/media/*", dist.CacheBehaviors[0].PathPattern)
}
