package biz

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sober-studio/asset-vault-go-kratos/internal/conf"
	"github.com/sober-studio/asset-vault-go-kratos/internal/pkg/oss"
)

// PNG 文件头，让类型嗅探得到 image/png
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

type fakeStorage struct {
	uploaded    map[string][]byte
	openPrivate bool
	deleted     []string
	deleteErr   error
	presigned   int
	presignResp string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{uploaded: map[string][]byte{}, presignResp: "https://cdn.example.com/signed"}
}

func (f *fakeStorage) Upload(ctx context.Context, name string, reader io.Reader, size int64, contentType string, isPrivate bool) (*oss.Object, error) {
	b, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	f.uploaded[name] = b
	return &oss.Object{Key: name, URL: "https://cdn.example.com/" + name}, nil
}

func (f *fakeStorage) OpenUpload(ctx context.Context, name string, contentType string, isPrivate bool) (*oss.UploadStream, error) {
	f.openPrivate = isPrivate
	done := make(chan error, 1)
	sink := &fakeUploadSink{onDone: func(b []byte, err error) {
		if err == nil {
			f.uploaded[name] = b
		}
		done <- err
	}}
	return &oss.UploadStream{Key: name, URL: "https://cdn.example.com/" + name, Body: sink, Done: done}, nil
}

func (f *fakeStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	b, ok := f.uploaded[key]
	if !ok {
		return nil, oss.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(string(b))), nil
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeStorage) PresignURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	f.presigned++
	return f.presignResp, nil
}

func (f *fakeStorage) ObjectURL(ctx context.Context, key string, relative bool) string { return key }
func (f *fakeStorage) ObjectKey(ctx context.Context, name string) string              { return name }

// fakeUploadSink 行为对齐 io.Pipe 写端：正常 Close 收尾成功，
// CloseWithError 对应管道中断、上传失败
type fakeUploadSink struct {
	buf    bytes.Buffer
	closed bool
	onDone func(b []byte, err error)
}

func (s *fakeUploadSink) Write(p []byte) (int, error) { return s.buf.Write(p) }

func (s *fakeUploadSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.onDone(s.buf.Bytes(), nil)
	return nil
}

func (s *fakeUploadSink) CloseWithError(error) error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.onDone(nil, oss.ErrUploadFailed)
	return nil
}

type fakeAssetRepo struct {
	created []*Asset
	deleted []string
}

func (f *fakeAssetRepo) CreateAsset(ctx context.Context, a *Asset) (*Asset, error) {
	f.created = append(f.created, a)
	return a, nil
}

func (f *fakeAssetRepo) GetAssetByKey(ctx context.Context, key string) (*Asset, error) {
	for _, a := range f.created {
		if a.Key == key {
			return a, nil
		}
	}
	return nil, ErrAssetNotFound
}

func (f *fakeAssetRepo) DeleteAssetByKey(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeAssetRepo) ListAssets(ctx context.Context, scene string, limit, offset int) ([]*Asset, error) {
	return f.created, nil
}

type fakeURLCache struct {
	entries map[string]string
}

func newFakeURLCache() *fakeURLCache { return &fakeURLCache{entries: map[string]string{}} }

func (f *fakeURLCache) Get(ctx context.Context, key string) (string, error) {
	if v, ok := f.entries[key]; ok {
		return v, nil
	}
	return "", ErrURLCacheMiss
}

func (f *fakeURLCache) Set(ctx context.Context, key, url string, exp time.Duration) error {
	f.entries[key] = url
	return nil
}

func (f *fakeURLCache) Del(ctx context.Context, key string) error {
	delete(f.entries, key)
	return nil
}

type fakeTx struct{}

func (fakeTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

func newTestUseCase(storage *fakeStorage, repo *fakeAssetRepo, cache *fakeURLCache) *AssetUseCase {
	c := &conf.App{Upload: &conf.AppUpload{
		PrivateUrlExpires: 600,
		Scenes: map[string]*conf.UploadScene{
			"avatar": {PathPrefix: "avatar", MaxSize: 1 << 20, AllowedTypes: []string{"image/*"}},
			"doc":    {PathPrefix: "doc", IsPrivate: true},
		},
	}}
	return NewAssetUseCase(storage, repo, cache, fakeTx{}, c, log.DefaultLogger)
}

func TestUploadFile(t *testing.T) {
	storage := newFakeStorage()
	repo := &fakeAssetRepo{}
	uc := newTestUseCase(storage, repo, newFakeURLCache())

	asset, err := uc.UploadFile(context.Background(), &UploadFileInput{
		Name:    "me.png",
		Size:    int64(len(pngHeader)),
		Content: strings.NewReader(string(pngHeader)),
		Scene:   "avatar",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(asset.Key, "avatar/"))
	assert.True(t, strings.HasSuffix(asset.Key, ".png"))
	assert.Equal(t, "image/png", asset.ContentType)
	assert.False(t, asset.IsPrivate)
	require.Len(t, repo.created, 1)

	// 嗅探消耗的前 512 字节必须被拼回，写入的内容完整
	assert.Equal(t, pngHeader, storage.uploaded[asset.Key])
}

func TestUploadFileSceneNotFound(t *testing.T) {
	uc := newTestUseCase(newFakeStorage(), &fakeAssetRepo{}, newFakeURLCache())

	_, err := uc.UploadFile(context.Background(), &UploadFileInput{
		Name: "a.png", Scene: "nope", Content: strings.NewReader("x"),
	})
	assert.ErrorIs(t, err, ErrUploadSceneNotFound)
}

func TestUploadFileSizeExceeded(t *testing.T) {
	uc := newTestUseCase(newFakeStorage(), &fakeAssetRepo{}, newFakeURLCache())

	_, err := uc.UploadFile(context.Background(), &UploadFileInput{
		Name: "a.png", Scene: "avatar", Size: 2 << 20, Content: strings.NewReader("x"),
	})
	assert.ErrorIs(t, err, ErrUploadFileSizeExceeded)
}

func TestUploadFileTypeNotAllowed(t *testing.T) {
	uc := newTestUseCase(newFakeStorage(), &fakeAssetRepo{}, newFakeURLCache())

	_, err := uc.UploadFile(context.Background(), &UploadFileInput{
		Name: "a.png", Scene: "avatar", Size: 9, Content: strings.NewReader("plain txt"),
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUploadSceneNotFound)
}

func TestUploadProtectedForcesPrivate(t *testing.T) {
	repo := &fakeAssetRepo{}
	uc := newTestUseCase(newFakeStorage(), repo, newFakeURLCache())

	asset, err := uc.UploadFile(context.Background(), &UploadFileInput{
		Name: "me.png", Scene: "avatar", Size: int64(len(pngHeader)),
		Content: strings.NewReader(string(pngHeader)), Protected: true,
	})
	require.NoError(t, err)
	assert.True(t, asset.IsPrivate)
}

func TestPresignedDownloadURLCached(t *testing.T) {
	storage := newFakeStorage()
	uc := newTestUseCase(storage, &fakeAssetRepo{}, newFakeURLCache())

	u1, err := uc.PresignedDownloadURL(context.Background(), "avatar/a.png")
	require.NoError(t, err)
	u2, err := uc.PresignedDownloadURL(context.Background(), "avatar/a.png")
	require.NoError(t, err)

	assert.Equal(t, u1, u2)
	assert.Equal(t, 1, storage.presigned)
}

func TestDeleteFile(t *testing.T) {
	storage := newFakeStorage()
	repo := &fakeAssetRepo{}
	uc := newTestUseCase(storage, repo, newFakeURLCache())

	require.NoError(t, uc.DeleteFile(context.Background(), "avatar/a.png"))
	assert.Equal(t, []string{"avatar/a.png"}, repo.deleted)
	assert.Equal(t, []string{"avatar/a.png"}, storage.deleted)
}

func TestDeleteFilePropagatesStorageError(t *testing.T) {
	storage := newFakeStorage()
	storage.deleteErr = oss.ErrDeletionFailed
	uc := newTestUseCase(storage, &fakeAssetRepo{}, newFakeURLCache())

	err := uc.DeleteFile(context.Background(), "avatar/a.png")
	assert.ErrorIs(t, err, oss.ErrDeletionFailed)
}

func TestOpenUploadStream(t *testing.T) {
	storage := newFakeStorage()
	repo := &fakeAssetRepo{}
	uc := newTestUseCase(storage, repo, newFakeURLCache())

	stream, err := uc.OpenUploadStream(context.Background(), "doc", "report.pdf", "application/pdf")
	require.NoError(t, err)
	assert.NotEmpty(t, stream.Key)
	assert.NotEmpty(t, stream.URL)

	_, err = stream.Body.Write([]byte("%PDF-1.7"))
	require.NoError(t, err)
	require.NoError(t, stream.Body.Close())
	require.NoError(t, <-stream.Done)
	require.Len(t, repo.created, 1)
}

func TestOpenUploadStreamPrivateScene(t *testing.T) {
	storage := newFakeStorage()
	repo := &fakeAssetRepo{}
	uc := newTestUseCase(storage, repo, newFakeURLCache())

	stream, err := uc.OpenUploadStream(context.Background(), "doc", "report.pdf", "application/pdf")
	require.NoError(t, err)
	_, err = stream.Body.Write([]byte("%PDF-1.7"))
	require.NoError(t, err)
	require.NoError(t, stream.Body.Close())
	require.NoError(t, <-stream.Done)

	// 对象写入方式必须与元数据一致：私有场景不能落成公开对象
	assert.True(t, storage.openPrivate)
	require.Len(t, repo.created, 1)
	assert.True(t, repo.created[0].IsPrivate)
}

func TestOpenUploadStreamSniffForwards(t *testing.T) {
	storage := newFakeStorage()
	repo := &fakeAssetRepo{}
	uc := newTestUseCase(storage, repo, newFakeURLCache())

	stream, err := uc.OpenUploadStream(context.Background(), "avatar", "a.png", "image/png")
	require.NoError(t, err)

	// 不足 512 字节，Close 时兜底嗅探，缓冲的头部字节要完整转发
	_, err = stream.Body.Write(pngHeader)
	require.NoError(t, err)
	require.NoError(t, stream.Body.Close())
	require.NoError(t, <-stream.Done)
	assert.Equal(t, pngHeader, storage.uploaded[stream.Key])
}

func TestOpenUploadStreamTypeNotAllowed(t *testing.T) {
	storage := newFakeStorage()
	repo := &fakeAssetRepo{}
	uc := newTestUseCase(storage, repo, newFakeURLCache())

	stream, err := uc.OpenUploadStream(context.Background(), "avatar", "a.png", "image/png")
	require.NoError(t, err)

	_, err = stream.Body.Write(bytes.Repeat([]byte("t"), sniffLen))
	require.Error(t, err)
	assert.ErrorIs(t, <-stream.Done, oss.ErrUploadFailed)
	assert.Empty(t, repo.created)
	assert.Empty(t, storage.uploaded)
}

func TestOpenUploadStreamSizeExceeded(t *testing.T) {
	storage := newFakeStorage()
	repo := &fakeAssetRepo{}
	uc := newTestUseCase(storage, repo, newFakeURLCache())

	stream, err := uc.OpenUploadStream(context.Background(), "avatar", "big.png", "image/png")
	require.NoError(t, err)

	_, err = stream.Body.Write(pngHeader)
	require.NoError(t, err)
	_, err = stream.Body.Write(bytes.Repeat([]byte{0}, 1<<20))
	assert.ErrorIs(t, err, ErrUploadFileSizeExceeded)
	assert.ErrorIs(t, <-stream.Done, oss.ErrUploadFailed)
	assert.Empty(t, repo.created)
}
