package oss

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/go-kratos/kratos/v2/log"
)

// s3DomainSuffix 存储后端的规范域名后缀，用于从分发的源站列表中
// 识别存储源站（storage-eligible origin）
const s3DomainSuffix = ".s3.amazonaws.com"

// DegradeReason 配置降级原因码
type DegradeReason string

const (
	// DegradeDescriptorUnavailable 分发描述符拉取失败，按无 CDN 处理
	DegradeDescriptorUnavailable DegradeReason = "DESCRIPTOR_UNAVAILABLE"
	// DegradeDomainNotAlias 指定的域名不在分发的别名列表中
	DegradeDomainNotAlias DegradeReason = "DOMAIN_NOT_ALIAS"
	// DegradeNoAliases 分发未配置任何别名但指定了域名
	DegradeNoAliases DegradeReason = "NO_ALIASES"
	// DegradeOriginPathUnmatched 指定的源站路径没有匹配的存储源站
	DegradeOriginPathUnmatched DegradeReason = "ORIGIN_PATH_UNMATCHED"
	// DegradeBucketMismatch 配置的 bucket 与源站域名推导出的不一致
	DegradeBucketMismatch DegradeReason = "BUCKET_MISMATCH"
	// DegradeBehaviorUnmatched 指定的缓存行为模式没有精确匹配
	DegradeBehaviorUnmatched DegradeReason = "BEHAVIOR_UNMATCHED"
	// DegradeBehaviorOriginMismatch 选中的缓存行为指向了别的源站
	DegradeBehaviorOriginMismatch DegradeReason = "BEHAVIOR_ORIGIN_MISMATCH"
	// DegradeNonWildcardPattern 非 * 的路径模式不参与 key/URL 改写
	DegradeNonWildcardPattern DegradeReason = "NON_WILDCARD_PATTERN"
)

// ConfigWarning 一次解析中产生的降级事件，替代日志字符串便于断言
type ConfigWarning struct {
	Reason DegradeReason
	Detail string
}

// OriginRef 分发上注册的一个源站
type OriginRef struct {
	ID         string
	DomainName string
	OriginPath string
}

// CacheBehaviorRef 分发上的一条缓存行为规则
type CacheBehaviorRef struct {
	PathPattern    string
	TargetOriginID string
}

// Distribution 分发描述符，只读输入
type Distribution struct {
	DomainName      string
	Aliases         []string
	Origins         []OriginRef
	DefaultBehavior *CacheBehaviorRef
	CacheBehaviors  []CacheBehaviorRef
}

// ResolvedConfig 一次解析得到的不可变快照。
// 不变量：Behavior 非空时其 TargetOriginID 必等于 Origin.ID。
type ResolvedConfig struct {
	BaseURL  string
	Bucket   string
	Origin   *OriginRef
	Behavior *CacheBehaviorRef
	Warnings []ConfigWarning
}

// Wildcard 判断解析出的缓存行为是否为通配模式
func (rc *ResolvedConfig) Wildcard() bool {
	return rc.Behavior != nil && rc.Behavior.PathPattern == "*"
}

func (rc *ResolvedConfig) warn(reason DegradeReason, format string, args ...interface{}) {
	rc.Warnings = append(rc.Warnings, ConfigWarning{
		Reason: reason,
		Detail: fmt.Sprintf(format, args...),
	})
}

// ResolvePrefs 调用方声明的偏好，全部可选
type ResolvePrefs struct {
	Bucket              string
	DomainName          string
	OriginPath          string
	CacheBehaviorPattern string
	UseHTTPS            bool
}

func (p ResolvePrefs) scheme() string {
	if p.UseHTTPS {
		return "https"
	}
	return "http"
}

// ResolveDistribution 由分发描述符与偏好计算生效配置。
// dist 为 nil 表示未配置 CDN。任何未命中的偏好都降级到默认候选并记录
// 告警，本函数不返回错误。
func ResolveDistribution(dist *Distribution, prefs ResolvePrefs) *ResolvedConfig {
	rc := &ResolvedConfig{Bucket: prefs.Bucket}

	if dist == nil {
		host := prefs.Bucket + s3DomainSuffix
		if prefs.DomainName != "" {
			host = prefs.DomainName
		}
		rc.BaseURL = prefs.scheme() + "://" + host
		if prefs.OriginPath != "" {
			rc.Origin = &OriginRef{
				DomainName: prefs.Bucket + s3DomainSuffix,
				OriginPath: ensureLeadingSlash(prefs.OriginPath),
			}
		}
		return rc
	}

	rc.BaseURL = prefs.scheme() + "://" + resolveHost(dist, prefs, rc)
	rc.Origin = resolveOrigin(dist, prefs, rc)
	rc.Behavior = resolveBehavior(dist, prefs, rc)
	return rc
}

// resolveHost 选择对外域名：偏好域名必须出现在别名列表中才生效
func resolveHost(dist *Distribution, prefs ResolvePrefs, rc *ResolvedConfig) string {
	if prefs.DomainName == "" {
		return dist.DomainName
	}
	if len(dist.Aliases) == 0 {
		rc.warn(DegradeNoAliases,
			"domain %q requested but distribution has no aliases, using %s",
			prefs.DomainName, dist.DomainName)
		return dist.DomainName
	}
	for _, alias := range dist.Aliases {
		if alias == prefs.DomainName {
			return alias
		}
	}
	rc.warn(DegradeDomainNotAlias,
		"domain %q is not an alias of the distribution, using %s",
		prefs.DomainName, dist.DomainName)
	return dist.DomainName
}

// resolveOrigin 选择存储源站。
// 默认候选：默认缓存行为指向的存储源站，否则第一个存储源站。
// prefs.OriginPath 精确匹配时覆盖默认候选。
func resolveOrigin(dist *Distribution, prefs ResolvePrefs, rc *ResolvedConfig) *OriginRef {
	var eligible []OriginRef
	for _, o := range dist.Origins {
		if isStorageOrigin(o.DomainName) {
			eligible = append(eligible, o)
		}
	}
	if len(eligible) == 0 {
		if prefs.OriginPath != "" {
			rc.warn(DegradeOriginPathUnmatched,
				"origin path %q requested but distribution has no storage origin", prefs.OriginPath)
		}
		return nil
	}

	chosen := eligible[0]
	if dist.DefaultBehavior != nil {
		for _, o := range eligible {
			if o.ID == dist.DefaultBehavior.TargetOriginID {
				chosen = o
				break
			}
		}
	}

	if prefs.OriginPath != "" {
		want := ensureLeadingSlash(prefs.OriginPath)
		found := false
		for _, o := range eligible {
			if o.OriginPath == want {
				chosen = o
				found = true
				break
			}
		}
		if !found {
			rc.warn(DegradeOriginPathUnmatched,
				"no storage origin with path %q, keeping origin %s", want, chosen.ID)
		}
	}

	// bucket 未显式固定时由源站域名推导；冲突时以 CDN 源站为准
	derived := bucketFromDomain(chosen.DomainName)
	if derived != "" {
		if rc.Bucket == "" {
			rc.Bucket = derived
		} else if rc.Bucket != derived {
			rc.warn(DegradeBucketMismatch,
				"configured bucket %q differs from origin bucket %q, origin wins", rc.Bucket, derived)
			rc.Bucket = derived
		}
	}

	return &chosen
}

// resolveBehavior 选择缓存行为并保证其指向已解析的存储源站
func resolveBehavior(dist *Distribution, prefs ResolvePrefs, rc *ResolvedConfig) *CacheBehaviorRef {
	if rc.Origin == nil {
		return nil
	}

	synthesized := CacheBehaviorRef{PathPattern: "*", TargetOriginID: rc.Origin.ID}
	chosen := synthesized
	if dist.DefaultBehavior != nil {
		chosen = *dist.DefaultBehavior
	}

	if prefs.CacheBehaviorPattern != "" {
		found := false
		for _, b := range dist.CacheBehaviors {
			if b.PathPattern == prefs.CacheBehaviorPattern {
				chosen = b
				found = true
				break
			}
		}
		if !found {
			rc.warn(DegradeBehaviorUnmatched,
				"no cache behavior with pattern %q, keeping %q", prefs.CacheBehaviorPattern, chosen.PathPattern)
		}
	}

	if chosen.TargetOriginID != rc.Origin.ID {
		rc.warn(DegradeBehaviorOriginMismatch,
			"cache behavior %q targets origin %q instead of %q, falling back to wildcard",
			chosen.PathPattern, chosen.TargetOriginID, rc.Origin.ID)
		chosen = synthesized
	}

	if chosen.PathPattern != "*" {
		// 非通配模式下 key/URL 不做源站路径改写，见 keyToURL
		rc.warn(DegradeNonWildcardPattern,
			"cache behavior pattern %q is not '*', public paths keep the origin path prefix", chosen.PathPattern)
	}

	return &chosen
}

func isStorageOrigin(domain string) bool {
	return strings.HasSuffix(domain, s3DomainSuffix)
}

// bucketFromDomain 从 <bucket>.s3.amazonaws.com 提取 bucket 名
func bucketFromDomain(domain string) string {
	if !isStorageOrigin(domain) {
		return ""
	}
	return strings.TrimSuffix(domain, s3DomainSuffix)
}

func ensureLeadingSlash(p string) string {
	if p == "" || strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}

// distributionAPI CloudFront 控制面中获取分发所需的最小接口，便于测试替换
type distributionAPI interface {
	GetDistribution(ctx context.Context, params *cloudfront.GetDistributionInput, optFns ...func(*cloudfront.Options)) (*cloudfront.GetDistributionOutput, error)
}

// configCache 进程内配置缓存：首次使用时惰性解析，之后整体替换快照。
// 两个并发的首次调用可能各自拉取一次描述符，结果等价，后写覆盖即可。
type configCache struct {
	api            distributionAPI
	distributionID string
	prefs          ResolvePrefs
	log            *log.Helper

	current atomic.Pointer[ResolvedConfig]
}

func newConfigCache(api distributionAPI, distributionID string, prefs ResolvePrefs, logger log.Logger) *configCache {
	return &configCache{
		api:            api,
		distributionID: distributionID,
		prefs:          prefs,
		log:            log.NewHelper(logger),
	}
}

// Get 返回当前快照，未解析时触发一次解析
func (c *configCache) Get(ctx context.Context) *ResolvedConfig {
	if rc := c.current.Load(); rc != nil {
		return rc
	}
	return c.Refresh(ctx)
}

// Refresh 重新拉取描述符并发布新快照。
// 描述符拉取失败时按无 CDN 解析，存储操作不能被 CDN 故障长期阻塞。
func (c *configCache) Refresh(ctx context.Context) *ResolvedConfig {
	var dist *Distribution
	if c.distributionID != "" && c.api != nil {
		out, err := c.api.GetDistribution(ctx, &cloudfront.GetDistributionInput{
			Id: &c.distributionID,
		})
		if err != nil {
			c.log.Warnf("get distribution %s failed, degrading to no-CDN config: %v", c.distributionID, err)
		} else {
			dist = fromGetDistributionOutput(out)
		}
	}

	rc := ResolveDistribution(dist, c.prefs)
	if dist == nil && c.distributionID != "" {
		rc.Warnings = append([]ConfigWarning{{
			Reason: DegradeDescriptorUnavailable,
			Detail: "distribution " + c.distributionID + " unavailable",
		}}, rc.Warnings...)
	}
	for _, w := range rc.Warnings {
		c.log.Warnf("storage config degraded [%s]: %s", w.Reason, w.Detail)
	}

	c.current.Store(rc)
	return rc
}

// fromGetDistributionOutput 把 SDK 返回值压成内部描述符
func fromGetDistributionOutput(out *cloudfront.GetDistributionOutput) *Distribution {
	if out == nil || out.Distribution == nil {
		return nil
	}
	d := out.Distribution
	dist := &Distribution{}
	if d.DomainName != nil {
		dist.DomainName = *d.DomainName
	}

	cfg := d.DistributionConfig
	if cfg == nil {
		return dist
	}
	if cfg.Aliases != nil {
		dist.Aliases = cfg.Aliases.Items
	}
	if cfg.Origins != nil {
		for _, o := range cfg.Origins.Items {
			ref := OriginRef{}
			if o.Id != nil {
				ref.ID = *o.Id
			}
			if o.DomainName != nil {
				ref.DomainName = *o.DomainName
			}
			if o.OriginPath != nil {
				ref.OriginPath = *o.OriginPath
			}
			dist.Origins = append(dist.Origins, ref)
		}
	}
	if cfg.DefaultCacheBehavior != nil && cfg.DefaultCacheBehavior.TargetOriginId != nil {
		dist.DefaultBehavior = &CacheBehaviorRef{
			PathPattern:    "*",
			TargetOriginID: *cfg.DefaultCacheBehavior.TargetOriginId,
		}
	}
	if cfg.CacheBehaviors != nil {
		for _, b := range cfg.CacheBehaviors.Items {
			ref := CacheBehaviorRef{}
			if b.PathPattern != nil {
				ref.PathPattern = *b.PathPattern
			}
			if b.TargetOriginId != nil {
				ref.TargetOriginID = *b.TargetOriginId
			}
			dist.CacheBehaviors = append(dist.CacheBehaviors, ref)
		}
	}
	return dist
}
