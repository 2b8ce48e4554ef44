package oss

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodecWithoutCDN(t *testing.T) {
	rc := ResolveDistribution(nil, ResolvePrefs{Bucket: "b", OriginPath: "/assets", UseHTTPS: true})

	key := keyFromName(rc, "a.png")
	assert.Equal(t, "assets/a.png", key)
	// 没有缓存行为时 key/URL 退化为简单拼接
	assert.Equal(t, "https://b.s3.amazonaws.com/assets/a.png", keyToURL(rc, key, false))
	assert.Equal(t, "/assets/a.png", keyToURL(rc, key, true))
}

func TestCodecWildcardStripsOriginPath(t *testing.T) {
	rc := &ResolvedConfig{
		BaseURL:  "https://cdn.example.com",
		Bucket:   "b",
		Origin:   &OriginRef{ID: "assets", DomainName: "b.s3.amazonaws.com", OriginPath: "/assets"},
		Behavior: &CacheBehaviorRef{PathPattern: "*", TargetOriginID: "assets"},
	}

	key := keyFromName(rc, "img/a.png")
	assert.Equal(t, "assets/img/a.png", key)
	assert.Equal(t, "/img/a.png", keyToURL(rc, key, true))
	assert.Equal(t, "https://cdn.example.com/img/a.png", keyToURL(rc, key, false))
}

// 通配模式下的往返律：urlToKey ∘ keyToURL ∘ keyFromName 恒等
func TestCodecRoundTrip(t *testing.T) {
	rc := &ResolvedConfig{
		BaseURL:  "https://cdn.example.com",
		Bucket:   "b",
		Origin:   &OriginRef{ID: "assets", DomainName: "b.s3.amazonaws.com", OriginPath: "/assets"},
		Behavior: &CacheBehaviorRef{PathPattern: "*", TargetOriginID: "assets"},
	}

	for _, name := range []string{"a.png", "img/a.png", "深/路径/文件.bin", "x"} {
		key := keyFromName(rc, name)
		assert.Equal(t, key, urlToKey(rc, keyToURL(rc, key, false)), "name=%s", name)
	}
}

// 非通配模式不做源站路径改写（保留的已知缺口）
func TestCodecNonWildcardKeepsPath(t *testing.T) {
	rc := &ResolvedConfig{
		BaseURL:  "https://cdn.example.com",
		Bucket:   "b",
		Origin:   &OriginRef{ID: "assets", DomainName: "b.s3.amazonaws.com", OriginPath: "/assets"},
		Behavior: &CacheBehaviorRef{PathPattern: "/assets/*", TargetOriginID: "assets"},
	}

	key := keyFromName(rc, "a.png")
	assert.Equal(t, "assets/a.png", key)
	assert.Equal(t, "/assets/a.png", keyToURL(rc, key, true))
	assert.Equal(t, "https://cdn.example.com/assets/a.png", keyToURL(rc, key, false))
}

func TestCodecWithoutOriginPath(t *testing.T) {
	rc := ResolveDistribution(nil, ResolvePrefs{Bucket: "b", UseHTTPS: true})

	key := keyFromName(rc, "photo.png")
	assert.Equal(t, "photo.png", key)
	assert.Equal(t, "https://b.s3.amazonaws.com/photo.png", keyToURL(rc, key, false))
}
