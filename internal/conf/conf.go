package conf

// Bootstrap 启动配置根节点，由 kratos config 从 configs/ 扫描填充
type Bootstrap struct {
	Server      *Server      `json:"server"`
	Data        *Data        `json:"data"`
	App         *App         `json:"app"`
	Application *Application `json:"application"`
}

type Server struct {
	Http *HTTP `json:"http"`
}

type HTTP struct {
	Network string `json:"network"`
	Addr    string `json:"addr"`
	// Timeout 单位秒
	Timeout int64 `json:"timeout"`
}

// Application 实例级配置
type Application struct {
	// Env 运行环境: dev / test / prod
	Env string `json:"env"`
	// WorkerId 雪花算法节点 ID (0-1023)
	WorkerId int64 `json:"worker_id"`
}

type Data struct {
	Database *Database `json:"database"`
	Redis    *Redis    `json:"redis"`
	Oss      *Oss      `json:"oss"`
}

type Database struct {
	Driver string `json:"driver"`
	Source string `json:"source"`
	// 连接池参数，0 表示使用默认值
	MaxIdleConns int32 `json:"max_idle_conns"`
	MaxOpenConns int32 `json:"max_open_conns"`
	// ConnMaxLifetime 单位秒
	ConnMaxLifetime int64 `json:"conn_max_lifetime"`
}

type Redis struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	Database int32  `json:"database"`
	// ReadTimeout / WriteTimeout 单位秒
	ReadTimeout  int64 `json:"read_timeout"`
	WriteTimeout int64 `json:"write_timeout"`
	PoolSize     int32 `json:"pool_size"`
}

// Oss 对象存储配置
type Oss struct {
	// Provider 供应商: local / minio / aliyun / qiniu / s3
	Provider        string `json:"provider"`
	Endpoint        string `json:"endpoint"`
	Region          string `json:"region"`
	AccessKeyId     string `json:"access_key_id"`
	AccessKeySecret string `json:"access_key_secret"`
	Bucket          string `json:"bucket"`
	// Domain 自定义访问域名（CDN 或直连）
	Domain   string `json:"domain"`
	UseHttps bool   `json:"use_https"`
	// S3 仅在 provider = s3 时生效
	S3 *OssS3 `json:"s3"`
}

// OssS3 S3 / CloudFront 专属配置
type OssS3 struct {
	// OriginPath 存储源站路径前缀，例如 /assets
	OriginPath string `json:"origin_path"`
	// 对象写入选项
	Acl                  string `json:"acl"`
	CacheControl         string `json:"cache_control"`
	ServerSideEncryption string `json:"server_side_encryption"`
	StorageClass         string `json:"storage_class"`
	// CloudFront 分发，为空表示不走 CDN
	CloudFrontDistributionId           string `json:"cloud_front_distribution_id"`
	CloudFrontCacheBehaviorPathPattern string `json:"cloud_front_cache_behavior_path_pattern"`
	// 签名 URL 所需的密钥对
	CloudFrontKeyPairId      string `json:"cloud_front_key_pair_id"`
	CloudFrontPrivateKey     string `json:"cloud_front_private_key"`
	CloudFrontPrivateKeyFile string `json:"cloud_front_private_key_file"`
	// DownloadUrlDuration 签名 URL 有效期，单位秒，默认 900
	DownloadUrlDuration int64 `json:"download_url_duration"`
}

type App struct {
	Upload *AppUpload `json:"upload"`
}

type AppUpload struct {
	// PrivateUrlExpires 私有文件签名 URL 有效期，单位秒
	PrivateUrlExpires int64 `json:"private_url_expires"`
	// Scenes 上传场景，key 为场景名
	Scenes map[string]*UploadScene `json:"scenes"`
}

type UploadScene struct {
	PathPrefix string `json:"path_prefix"`
	// MaxSize 单位字节，0 表示不限制
	MaxSize      int64    `json:"max_size"`
	AllowedTypes []string `json:"allowed_types"`
	IsPrivate    bool     `json:"is_private"`
}
