package oss

import "strings"

// key/URL 编解码。全部是解析快照的纯函数：上传、失效路径计算、签名
// 共用同一组规则，任何不一致都会导致失效错误的 CDN 路径或给错误的
// 对象签名。

// originPrefix 源站路径转 key 前缀：去掉开头的 /，保证以 / 结尾
func originPrefix(rc *ResolvedConfig) string {
	if rc.Origin == nil || rc.Origin.OriginPath == "" {
		return ""
	}
	p := strings.TrimPrefix(rc.Origin.OriginPath, "/")
	if p == "" {
		return ""
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// keyFromName 由逻辑文件名生成存储 key
func keyFromName(rc *ResolvedConfig, name string) string {
	return originPrefix(rc) + strings.TrimPrefix(name, "/")
}

// keyToURL 由存储 key 生成访问 URL。
// 仅当缓存行为是通配模式 * 时剥掉源站路径前缀；其他模式不做改写，
// 路径原样保留（见 DegradeNonWildcardPattern）。
func keyToURL(rc *ResolvedConfig, key string, relative bool) string {
	p := "/" + strings.TrimPrefix(key, "/")
	if rc.Wildcard() {
		if prefix := originPrefix(rc); prefix != "" {
			p = "/" + strings.TrimPrefix(strings.TrimPrefix(p, "/"), prefix)
		}
	}
	if relative {
		return p
	}
	return rc.BaseURL + p
}

// urlToKey keyToURL 的逆变换（absolute + 通配模式）。
// 非通配模式下仅剥掉 BaseURL，路径原样作为 key 返回。
func urlToKey(rc *ResolvedConfig, url string) string {
	p := strings.TrimPrefix(url, rc.BaseURL)
	p = strings.TrimPrefix(p, "/")
	if rc.Wildcard() {
		p = originPrefix(rc) + p
	}
	return p
}
