package oss

import (
	"context"
	"io"
	"time"

	kerrors "github.com/go-kratos/kratos/v2/errors"
)

var (
	// ErrUploadFailed 对象写入失败
	ErrUploadFailed = kerrors.InternalServer("STORAGE_UPLOAD_FAILED", "对象写入失败")
	// ErrDeletionFailed 对象删除失败
	ErrDeletionFailed = kerrors.InternalServer("STORAGE_DELETE_FAILED", "对象删除失败")
	// ErrNotFound 对象不存在
	ErrNotFound = kerrors.NotFound("STORAGE_OBJECT_NOT_FOUND", "对象不存在")
	// ErrSigningFailed 签名凭证缺失或签名失败
	ErrSigningFailed = kerrors.InternalServer("STORAGE_SIGNING_FAILED", "签名 URL 生成失败")
)

// Object 已写入对象的定位信息
type Object struct {
	// Key 存储桶内相对路径，不以 / 开头
	Key string
	// URL 对外可访问的绝对 URL
	URL string
}

// UploadStream 流式上传描述符：调用方向 Body 写入，关闭后从 Done 读取结果。
// Key 与 URL 在打开时即按当前配置计算完成，不等待传输结束。
type UploadStream struct {
	Key  string
	URL  string
	Body io.WriteCloser
	Done <-chan error
}

// Storage 对象存储统一接口
type Storage interface {
	// Upload 上传文件流，name 为调用方声明的逻辑文件名（可含路径）
	Upload(ctx context.Context, name string, reader io.Reader, size int64, contentType string, isPrivate bool) (*Object, error)
	// OpenUpload 打开流式上传，不阻塞在完整传输上
	OpenUpload(ctx context.Context, name string, contentType string, isPrivate bool) (*UploadStream, error)
	// Download 按 key 读取对象内容
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete 按 key 删除对象
	Delete(ctx context.Context, key string) error
	// PresignURL 生成限时下载 URL
	PresignURL(ctx context.Context, key string, expires time.Duration) (string, error)
	// ObjectURL 计算 key 对应的访问 URL，relative 为 true 时只返回路径部分
	ObjectURL(ctx context.Context, key string, relative bool) string
	// ObjectKey 计算逻辑文件名对应的存储 key
	ObjectKey(ctx context.Context, name string) string
}

// ConfigRefresher 可选能力：运行期重新解析外部分发配置
type ConfigRefresher interface {
	RefreshConfig(ctx context.Context)
}
