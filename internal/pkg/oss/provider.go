package oss

import (
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"

	"github.com/sober-studio/asset-vault-go-kratos/internal/conf"
)

var ProviderSet = wire.NewSet(NewOSS)

// NewOSS 根据配置选择对象存储供应商
func NewOSS(c *conf.Data, logger log.Logger) Storage {
	if c.Oss == nil {
		// 没有配置 OSS 时构造一个默认的本地存储，保证开发环境可用
		c.Oss = &conf.Oss{
			Bucket: "uploads",
		}
		return NewLocalStorage(c.Oss, logger)
	}

	switch c.Oss.Provider {
	case "s3":
		return NewS3Storage(c.Oss, logger)
	case "aliyun":
		return NewAliyunStorage(c.Oss, logger)
	case "qiniu":
		return NewQiniuStorage(c.Oss, logger)
	case "minio":
		return NewMinioStorage(c.Oss, logger)
	case "local":
		return NewLocalStorage(c.Oss, logger)
	}

	// 默认 fallback
	return NewLocalStorage(c.Oss, logger)
}
