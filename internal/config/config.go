package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"familyvault/internal/domain"
)

// Config 聚合服务启动需要的关键配置。
type Config struct {
	HTTPPort           string
	CORSAllowedOrigins []string
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	DBHost             string
	DBPort             int
	DBUser             string
	DBPassword         string
	DBName             string
	DBSSLMode          string
	// 鉴权配置
	AuthEnabled bool   // 是否启用 JWT 鉴权（关闭时走请求头，仅限开发）
	JWTSecret   string // HMAC 密钥
	JWKSURL     string // 远程公钥端点，可选
	// 存储配置
	DefaultBackend domain.StorageType // 上传未指定后端时的默认值
	LocalDir       string
	LocalBaseURL   string
	MinIOEndpoint  string // 不含协议，如 "localhost:9000"
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string // 租户桶名前缀
	MinIORegion    string
	MinIOUseSSL    bool
	OSSEndpoint    string // 云 OSS 的 S3 兼容端点，留空则不启用
	OSSAccessKey   string
	OSSSecretKey   string
	OSSBucket      string
	OSSRegion      string
	S3Region       string // 云 S3 区域，留空则不启用
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	// 业务限制
	MaxUploadBytes   int64
	TenantQuotaBytes int64 // 0 表示不限额
	AccessURLTTL     time.Duration
	// 审计配置
	AuditQueueSize     int
	AuditRetention     time.Duration
	AuditSweepInterval time.Duration
	// 后置任务配置
	PostprocessWorkers   int
	PostprocessQueueSize int
}

// Load 从环境变量加载配置，并提供默认值。
func Load() (*Config, error) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	localDir := envOrDefault("LOCAL_STORAGE_DIR", "./data")
	if err := ensureDir(localDir); err != nil {
		return nil, fmt.Errorf("确保本地存储目录失败: %w", err)
	}

	corsOrigins := parseList(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"http://localhost:5173"}
	}

	rateLimitRequests, err := parseIntEnv("RATE_LIMIT_REQUESTS", 60)
	if err != nil {
		return nil, err
	}

	rateLimitWindow, err := parseDurationEnv("RATE_LIMIT_WINDOW", time.Minute)
	if err != nil {
		return nil, err
	}

	dbPort, err := parseIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}

	maxUpload, err := parseInt64Env("MAX_UPLOAD_BYTES", 100*1024*1024)
	if err != nil {
		return nil, err
	}

	quota, err := parseInt64Env("TENANT_QUOTA_BYTES", 10*1024*1024*1024)
	if err != nil {
		return nil, err
	}

	urlTTL, err := parseDurationEnv("ACCESS_URL_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}

	auditQueue, err := parseIntEnv("AUDIT_QUEUE_SIZE", 1024)
	if err != nil {
		return nil, err
	}

	auditRetention, err := parseDurationEnv("AUDIT_RETENTION", 90*24*time.Hour)
	if err != nil {
		return nil, err
	}

	auditSweep, err := parseDurationEnv("AUDIT_SWEEP_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}

	ppWorkers, err := parseIntEnv("POSTPROCESS_WORKERS", 2)
	if err != nil {
		return nil, err
	}

	ppQueue, err := parseIntEnv("POSTPROCESS_QUEUE_SIZE", 256)
	if err != nil {
		return nil, err
	}

	backend := domain.StorageType(envOrDefault("STORAGE_BACKEND", string(domain.StorageLocal)))
	if !backend.Valid() {
		return nil, fmt.Errorf("未知的默认存储后端: %s", backend)
	}

	return &Config{
		HTTPPort:           port,
		CORSAllowedOrigins: corsOrigins,
		RateLimitRequests:  rateLimitRequests,
		RateLimitWindow:    rateLimitWindow,
		DBHost:             envOrDefault("DB_HOST", "127.0.0.1"),
		DBPort:             dbPort,
		DBUser:             envOrDefault("DB_USER", "familyvault"),
		DBPassword:         envOrDefault("DB_PASSWORD", "familyvault"),
		DBName:             envOrDefault("DB_NAME", "familyvault"),
		DBSSLMode:          envOrDefault("DB_SSL_MODE", "disable"),
		AuthEnabled:        parseBoolEnv("AUTH_ENABLED", true),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWKSURL:            os.Getenv("JWKS_URL"),
		DefaultBackend:     backend,
		LocalDir:           localDir,
		LocalBaseURL:       os.Getenv("LOCAL_BASE_URL"),
		MinIOEndpoint:      envOrDefault("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey:     envOrDefault("MINIO_ACCESS_KEY", "minioadmin"),
		MinIOSecretKey:     envOrDefault("MINIO_SECRET_KEY", "minioadmin"),
		MinIOBucket:        envOrDefault("MINIO_BUCKET_PREFIX", "familyvault"),
		MinIORegion:        envOrDefault("MINIO_REGION", "us-east-1"),
		MinIOUseSSL:        parseBoolEnv("MINIO_USE_SSL", false),
		OSSEndpoint:        os.Getenv("OSS_ENDPOINT"),
		OSSAccessKey:       os.Getenv("OSS_ACCESS_KEY"),
		OSSSecretKey:       os.Getenv("OSS_SECRET_KEY"),
		OSSBucket:          envOrDefault("OSS_BUCKET", "familyvault"),
		OSSRegion:          os.Getenv("OSS_REGION"),
		S3Region:           os.Getenv("S3_REGION"),
		S3AccessKey:        os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:        os.Getenv("S3_SECRET_KEY"),
		S3Bucket:           envOrDefault("S3_BUCKET", "familyvault"),
		MaxUploadBytes:     maxUpload,
		TenantQuotaBytes:   quota,
		AccessURLTTL:       urlTTL,
		AuditQueueSize:     auditQueue,
		AuditRetention:     auditRetention,
		AuditSweepInterval: auditSweep,

		PostprocessWorkers:   ppWorkers,
		PostprocessQueueSize: ppQueue,
	}, nil
}

func ensureDir(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("路径 %s 已存在但不是目录", path)
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(path, 0o755)
	}

	return err
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}

	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	if value <= 0 {
		return defaultValue, nil
	}
	return value, nil
}

func parseInt64Env(key string, defaultValue int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	if value < 0 {
		return defaultValue, nil
	}
	return value, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	if value <= 0 {
		return defaultValue, nil
	}
	return value, nil
}

func parseBoolEnv(key string, defaultValue bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	lower := strings.ToLower(raw)
	return lower == "true" || lower == "1" || lower == "yes"
}

// PostgresDSN 生成标准 postgres:// 连接串，供数据访问层直接使用。
func (c *Config) PostgresDSN() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   c.DBName,
	}

	q := url.Values{}
	if c.DBSSLMode != "" {
		q.Set("sslmode", c.DBSSLMode)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
