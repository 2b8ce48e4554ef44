package biz

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"

	"github.com/sober-studio/asset-vault-go-kratos/internal/conf"
	"github.com/sober-studio/asset-vault-go-kratos/internal/pkg/oss"
)

var (
	// ErrUploadSceneNotFound 上传场景错误
	ErrUploadSceneNotFound = kerrors.BadRequest("UPLOAD_SCENE_NOT_FOUND", "上传场景错误")
	// ErrUploadFileSizeExceeded 文件大小超出限制
	ErrUploadFileSizeExceeded = kerrors.BadRequest("UPLOAD_FILE_SIZE_EXCEEDED", "文件大小超出限制")
	// ErrUploadFileFailed 文件上传失败
	ErrUploadFileFailed = kerrors.InternalServer("UPLOAD_FILE_FAILED", "文件上传失败")
	// ErrAssetNotFound 文件记录不存在
	ErrAssetNotFound = kerrors.NotFound("ASSET_NOT_FOUND", "文件不存在")
	// ErrURLCacheMiss 签名 URL 缓存未命中
	ErrURLCacheMiss = kerrors.NotFound("URL_CACHE_MISS", "url cache miss")
)

// Asset 文件元数据
type Asset struct {
	ID          int64
	Key         string
	URL         string
	Name        string
	ContentType string
	Scene       string
	Size        int64
	IsPrivate   bool
	CreatedAt   time.Time
}

// AssetRepo 文件元数据仓储
type AssetRepo interface {
	CreateAsset(ctx context.Context, a *Asset) (*Asset, error)
	GetAssetByKey(ctx context.Context, key string) (*Asset, error)
	DeleteAssetByKey(ctx context.Context, key string) error
	ListAssets(ctx context.Context, scene string, limit, offset int) ([]*Asset, error)
}

// URLCache 签名 URL 的短时缓存
type URLCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, url string, exp time.Duration) error
	Del(ctx context.Context, key string) error
}

// AssetUseCase 文件用例
type AssetUseCase struct {
	storage oss.Storage
	repo    AssetRepo
	cache   URLCache
	tx      Transaction
	config  *conf.AppUpload
	log     *log.Helper
}

// NewAssetUseCase 创建文件用例
func NewAssetUseCase(storage oss.Storage, repo AssetRepo, cache URLCache, tx Transaction, c *conf.App, logger log.Logger) *AssetUseCase {
	upload := c.Upload
	if upload == nil {
		upload = &conf.AppUpload{}
	}
	return &AssetUseCase{
		storage: storage,
		repo:    repo,
		cache:   cache,
		tx:      tx,
		config:  upload,
		log:     log.NewHelper(logger),
	}
}

// UploadFileInput 文件上传输入
type UploadFileInput struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
	Scene       string
	// Protected 为 true 时强制私有，不受场景配置影响
	Protected bool
}

// UploadFile 上传文件并写入元数据记录
func (uc *AssetUseCase) UploadFile(ctx context.Context, input *UploadFileInput) (*Asset, error) {
	scene, ok := uc.config.Scenes[input.Scene]
	if !ok {
		uc.log.Errorf("Upload scene not configured: %s", input.Scene)
		return nil, ErrUploadSceneNotFound
	}

	if scene.MaxSize > 0 && input.Size > scene.MaxSize {
		return nil, ErrUploadFileSizeExceeded
	}

	// verifyFileType 会把 input.ContentType 更新为嗅探出的真实类型
	if err := uc.verifyFileType(input, scene.AllowedTypes); err != nil {
		return nil, err
	}

	isPrivate := scene.IsPrivate || input.Protected
	name := uc.generateFileName(scene.PathPrefix, input.Name)

	obj, err := uc.storage.Upload(ctx, name, input.Content, input.Size, input.ContentType, isPrivate)
	if err != nil {
		uc.log.Errorf("Failed to upload file to storage: %v", err)
		return nil, err
	}

	asset := &Asset{
		Key:         obj.Key,
		URL:         obj.URL,
		Name:        input.Name,
		ContentType: input.ContentType,
		Scene:       input.Scene,
		Size:        input.Size,
		IsPrivate:   isPrivate,
	}
	created, err := uc.repo.CreateAsset(ctx, asset)
	if err != nil {
		// 对象已写入，元数据落库失败只记日志不回滚存储
		uc.log.Errorf("Failed to persist asset record for %s: %v", obj.Key, err)
		return asset, nil
	}
	return created, nil
}

// UploadStreamResult 流式上传描述符
type UploadStreamResult struct {
	Key  string
	URL  string
	Body io.WriteCloser
	Done <-chan error
}

// OpenUploadStream 打开流式上传：调用方写 Body，完成后从 Done 取结果。
// 场景的类型与大小限制在写入过程中边流边校验，元数据记录在传输完成后异步补写。
func (uc *AssetUseCase) OpenUploadStream(ctx context.Context, sceneName, fileName, contentType string) (*UploadStreamResult, error) {
	scene, ok := uc.config.Scenes[sceneName]
	if !ok {
		return nil, ErrUploadSceneNotFound
	}

	name := uc.generateFileName(scene.PathPrefix, fileName)
	stream, err := uc.storage.OpenUpload(ctx, name, contentType, scene.IsPrivate)
	if err != nil {
		return nil, err
	}

	body := stream.Body
	if len(scene.AllowedTypes) > 0 || scene.MaxSize > 0 {
		body = newStreamGuard(stream.Body, scene.AllowedTypes, scene.MaxSize)
	}

	done := make(chan error, 1)
	go func() {
		err := <-stream.Done
		if err == nil {
			if _, rerr := uc.repo.CreateAsset(context.WithoutCancel(ctx), &Asset{
				Key:         stream.Key,
				URL:         stream.URL,
				Name:        fileName,
				ContentType: contentType,
				Scene:       sceneName,
				IsPrivate:   scene.IsPrivate,
			}); rerr != nil {
				uc.log.Errorf("Failed to persist asset record for %s: %v", stream.Key, rerr)
			}
		}
		done <- err
	}()

	return &UploadStreamResult{
		Key:  stream.Key,
		URL:  stream.URL,
		Body: body,
		Done: done,
	}, nil
}

// DownloadStream 读取文件内容
func (uc *AssetUseCase) DownloadStream(ctx context.Context, key string) (io.ReadCloser, error) {
	return uc.storage.Download(ctx, key)
}

// GetAsset 查询文件记录
func (uc *AssetUseCase) GetAsset(ctx context.Context, key string) (*Asset, error) {
	return uc.repo.GetAssetByKey(ctx, key)
}

// ListAssets 按场景分页查询
func (uc *AssetUseCase) ListAssets(ctx context.Context, scene string, limit, offset int) ([]*Asset, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return uc.repo.ListAssets(ctx, scene, limit, offset)
}

// PresignedDownloadURL 生成限时下载 URL，命中缓存时不重复签名
func (uc *AssetUseCase) PresignedDownloadURL(ctx context.Context, key string) (string, error) {
	if cached, err := uc.cache.Get(ctx, key); err == nil && cached != "" {
		return cached, nil
	}

	expires := time.Hour
	if uc.config.PrivateUrlExpires > 0 {
		expires = time.Duration(uc.config.PrivateUrlExpires) * time.Second
	}

	u, err := uc.storage.PresignURL(ctx, key, expires)
	if err != nil {
		return "", err
	}

	// 缓存有效期略短于签名有效期，避免下发即将过期的 URL
	ttl := expires - 30*time.Second
	if ttl > 0 {
		if err := uc.cache.Set(ctx, key, u, ttl); err != nil {
			uc.log.Warnf("Failed to cache presigned url for %s: %v", key, err)
		}
	}
	return u, nil
}

// DeleteFile 删除对象及其元数据。记录删除与对象删除同一事务：
// 对象删除失败时回滚记录删除。
func (uc *AssetUseCase) DeleteFile(ctx context.Context, key string) error {
	err := uc.tx.InTx(ctx, func(ctx context.Context) error {
		if err := uc.repo.DeleteAssetByKey(ctx, key); err != nil {
			return err
		}
		return uc.storage.Delete(ctx, key)
	})
	if err != nil {
		return err
	}
	if cerr := uc.cache.Del(ctx, key); cerr != nil {
		uc.log.Warnf("Failed to drop cached url for %s: %v", key, cerr)
	}
	return nil
}

// verifyFileType 嗅探并校验文件类型
func (uc *AssetUseCase) verifyFileType(input *UploadFileInput, allowedTypes []string) error {
	if len(allowedTypes) == 0 {
		return nil
	}

	// 读取前 512 字节用于检测类型
	head := make([]byte, sniffLen)
	n, err := input.Content.Read(head)
	if err != nil && err != io.EOF {
		return ErrUploadFileFailed
	}
	head = head[:n]
	fileType := http.DetectContentType(head)
	input.ContentType = fileType

	if !typeAllowed(fileType, allowedTypes) {
		return errTypeNotAllowed(fileType)
	}

	// 恢复 Reader
	if seeker, ok := input.Content.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			input.Content = io.MultiReader(bytes.NewReader(head), input.Content)
		}
	} else {
		input.Content = io.MultiReader(bytes.NewReader(head), input.Content)
	}

	return nil
}

// typeAllowed 校验嗅探出的类型是否在白名单内，支持通配符 (如 image/*)
func typeAllowed(fileType string, allowedTypes []string) bool {
	for _, t := range allowedTypes {
		if strings.EqualFold(t, fileType) {
			return true
		}
		if strings.HasSuffix(t, "/*") && strings.HasPrefix(fileType, strings.TrimSuffix(t, "/*")) {
			return true
		}
	}
	return false
}

func errTypeNotAllowed(fileType string) error {
	return kerrors.BadRequest("UPLOAD_FILE_TYPE_NOT_ALLOWED", fmt.Sprintf("文件类型不允许: %s", fileType))
}

// generateFileName 生成唯一逻辑文件名：prefix + 日期目录 + 时间戳_uuid + 扩展名
func (uc *AssetUseCase) generateFileName(pathPrefix, filename string) string {
	ext := filepath.Ext(filename)
	uniqueName := fmt.Sprintf("%s_%s%s",
		time.Now().Format("20060102150405"),
		uuid.New().String()[:8],
		ext,
	)
	dateDir := time.Now().Format("2006/01/02")
	prefix := strings.TrimSuffix(pathPrefix, "/")
	if prefix == "" {
		return dateDir + "/" + uniqueName
	}
	return prefix + "/" + dateDir + "/" + uniqueName
}
