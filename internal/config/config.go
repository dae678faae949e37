package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrMissingRequired 表示缺少启动所必需的环境变量。
var ErrMissingRequired = errors.New("missing required configuration")

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Realtime RealtimeConfig
	Storage  StorageConfig
	Auth     AuthConfig
	Presence PresenceConfig
	Log      LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	realtime, err := loadRealtimeConfig()
	if err != nil {
		return nil, err
	}

	storage, err := loadStorageConfig(server.PublicURL)
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	presence, err := loadPresenceConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Database: loadDatabaseConfig(),
		Realtime: realtime,
		Storage:  storage,
		Auth:     auth,
		Presence: presence,
		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr      string
	PublicURL string
	// AnonKey 是访客端（widget）访问公开接口时携带的匿名密钥。
	AnonKey string
}

// loadServerConfig 解析服务器监听地址与匿名密钥。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	var addr string
	switch {
	case strings.Contains(port, " "):
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	case strings.Contains(port, ":"):
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		addr = port
	default:
		addr = ":" + port
	}

	anonKey, err := requireEnv("ANON_KEY")
	if err != nil {
		return ServerConfig{}, err
	}

	publicURL := getEnvOrDefault("PUBLIC_URL", "http://localhost"+addr)
	return ServerConfig{
		Addr:      addr,
		PublicURL: strings.TrimRight(publicURL, "/"),
		AnonKey:   anonKey,
	}, nil
}

// DatabaseConfig 描述存储驱动配置。
type DatabaseConfig struct {
	Driver string
	DSN    string
}

func loadDatabaseConfig() DatabaseConfig {
	driver := strings.ToLower(getEnvOrDefault("DB_DRIVER", "sqlite"))
	dsn := getEnvOrDefault("DB_DSN", "")
	if dsn == "" && driver == "sqlite" {
		dsn = "z-support.db"
	}
	return DatabaseConfig{Driver: driver, DSN: dsn}
}

// RealtimeConfig 描述变更事件推送配置。
type RealtimeConfig struct {
	// Source 为 "local"（进程内广播）或 "postgres"（LISTEN/NOTIFY）。
	Source          string
	EventsPerSecond float64
	Buffer          int
}

func loadRealtimeConfig() (RealtimeConfig, error) {
	source := strings.ToLower(getEnvOrDefault("REALTIME_SOURCE", "local"))
	if source != "local" && source != "postgres" {
		return RealtimeConfig{}, fmt.Errorf("invalid REALTIME_SOURCE value %q", source)
	}

	rate := 10.0
	if override, err := parseOptionalFloatEnv("REALTIME_EVENTS_PER_SECOND"); err != nil {
		return RealtimeConfig{}, err
	} else if override != nil && *override > 0 {
		rate = *override
	}

	buffer := 64
	if override, err := parseOptionalIntEnv("REALTIME_BUFFER"); err != nil {
		return RealtimeConfig{}, err
	} else if override != nil && *override > 0 {
		buffer = *override
	}

	return RealtimeConfig{Source: source, EventsPerSecond: rate, Buffer: buffer}, nil
}

// StorageConfig 描述图片对象存储配置。
type StorageConfig struct {
	Backend  string
	LocalDir string
	// LocalBaseURL 为本地存储对外暴露的访问前缀。
	LocalBaseURL string
	S3           S3Config
}

// S3Config 描述 S3 兼容存储。
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
	UsePathStyle    bool
}

func loadStorageConfig(publicURL string) (StorageConfig, error) {
	backend := strings.ToLower(getEnvOrDefault("STORAGE_BACKEND", "local"))

	pathStyle, err := parseBoolEnv("S3_USE_PATH_STYLE", false)
	if err != nil {
		return StorageConfig{}, err
	}

	cfg := StorageConfig{
		Backend:      backend,
		LocalDir:     getEnvOrDefault("STORAGE_LOCAL_DIR", "uploads"),
		LocalBaseURL: publicURL + "/storage",
		S3: S3Config{
			Bucket:          strings.TrimSpace(os.Getenv("S3_BUCKET")),
			Region:          getEnvOrDefault("S3_REGION", "us-east-1"),
			Endpoint:        strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
			AccessKeyID:     strings.TrimSpace(os.Getenv("S3_ACCESS_KEY_ID")),
			SecretAccessKey: strings.TrimSpace(os.Getenv("S3_SECRET_ACCESS_KEY")),
			PublicBaseURL:   strings.TrimRight(strings.TrimSpace(os.Getenv("S3_PUBLIC_BASE_URL")), "/"),
			UsePathStyle:    pathStyle,
		},
	}

	switch backend {
	case "local":
	case "s3":
		if cfg.S3.Bucket == "" {
			return StorageConfig{}, fmt.Errorf("%w: S3_BUCKET", ErrMissingRequired)
		}
	default:
		return StorageConfig{}, fmt.Errorf("invalid STORAGE_BACKEND value %q", backend)
	}
	return cfg, nil
}

// AuthConfig 描述管理员认证配置。
type AuthConfig struct {
	JWTSecret     string
	TokenTTL      time.Duration
	RecoveryTTL   time.Duration
	AdminEmail    string
	AdminPassword string
	AdminName     string
}

func loadAuthConfig() (AuthConfig, error) {
	secret, err := requireEnv("JWT_SECRET")
	if err != nil {
		return AuthConfig{}, err
	}

	tokenTTL, err := parseDurationEnv("TOKEN_TTL", time.Hour)
	if err != nil {
		return AuthConfig{}, err
	}
	recoveryTTL, err := parseDurationEnv("RECOVERY_TTL", time.Hour)
	if err != nil {
		return AuthConfig{}, err
	}

	return AuthConfig{
		JWTSecret:     secret,
		TokenTTL:      tokenTTL,
		RecoveryTTL:   recoveryTTL,
		AdminEmail:    strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
		AdminPassword: strings.TrimSpace(os.Getenv("ADMIN_PASSWORD")),
		AdminName:     getEnvOrDefault("ADMIN_NAME", "Support"),
	}, nil
}

// PresenceConfig 描述管理员在线状态的过期策略。
type PresenceConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

func loadPresenceConfig() (PresenceConfig, error) {
	ttl, err := parseDurationEnv("PRESENCE_TTL", 2*time.Minute)
	if err != nil {
		return PresenceConfig{}, err
	}
	interval, err := parseDurationEnv("PRESENCE_SWEEP_INTERVAL", 30*time.Second)
	if err != nil {
		return PresenceConfig{}, err
	}
	return PresenceConfig{TTL: ttl, SweepInterval: interval}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

func requireEnv(key string) (string, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingRequired, key)
	}
	return value, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
