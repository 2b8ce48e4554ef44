package oss

import (
	"crypto/rsa"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/cloudfront/sign"

	"github.com/sober-studio/asset-vault-go-kratos/internal/conf"
)

// urlSigner CloudFront canned-policy 签名器。密钥对不完整时为 nil，
// 由调用方在签名前显式校验，而不是让 SDK 在签名内部报一个难懂的错。
type urlSigner struct {
	inner *sign.URLSigner
}

// newURLSigner 从配置加载密钥对，缺失时返回 nil（不报错，签名是可选能力）
func newURLSigner(c *conf.OssS3) (*urlSigner, error) {
	if c == nil || c.CloudFrontKeyPairId == "" {
		return nil, nil
	}

	var (
		key *rsa.PrivateKey
		err error
	)
	switch {
	case c.CloudFrontPrivateKey != "":
		key, err = sign.LoadPEMPrivKey(strings.NewReader(c.CloudFrontPrivateKey))
	case c.CloudFrontPrivateKeyFile != "":
		key, err = sign.LoadPEMPrivKeyFile(c.CloudFrontPrivateKeyFile)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &urlSigner{inner: sign.NewURLSigner(c.CloudFrontKeyPairId, key)}, nil
}

func (s *urlSigner) Sign(url string, expires time.Time) (string, error) {
	return s.inner.Sign(url, expires)
}
