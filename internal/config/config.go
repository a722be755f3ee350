package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// APIServerConfig 保存 API 服务器特有的配置。
type APIServerConfig struct {
	Host         string          `mapstructure:"HOST"`
	Port         string          `mapstructure:"PORT"`
	ReadTimeout  time.Duration   `mapstructure:"READ_TIMEOUT"`
	WriteTimeout time.Duration   `mapstructure:"WRITE_TIMEOUT"`
	CORS         CORSConfig      `mapstructure:"CORS"`
	RateLimit    RateLimitConfig `mapstructure:"RATE_LIMIT"`
}

// NotifyServerConfig 保存通知服务器 (WebSocket 推送 + Kafka 消费者) 的配置。
type NotifyServerConfig struct {
	Host          string `mapstructure:"HOST"`
	Port          string `mapstructure:"PORT"`
	WebSocketPath string `mapstructure:"WEBSOCKET_PATH"`
}

// CORSConfig holds configuration for CORS.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"ALLOWED_ORIGINS"`
	AllowedMethods   []string `mapstructure:"ALLOWED_METHODS"`
	AllowedHeaders   []string `mapstructure:"ALLOWED_HEADERS"`
	ExposedHeaders   []string `mapstructure:"EXPOSED_HEADERS"`
	AllowCredentials bool     `mapstructure:"ALLOW_CREDENTIALS"`
	MaxAge           int      `mapstructure:"MAX_AGE"`
}

// RateLimitConfig 限制每个客户端 IP 对 TMDB 代理的请求速率。
type RateLimitConfig struct {
	Requests int           `mapstructure:"REQUESTS"`
	Window   time.Duration `mapstructure:"WINDOW"`
}

// RedisConfig holds configuration for Redis.
type RedisConfig struct {
	Addr     string `mapstructure:"ADDR"`
	Password string `mapstructure:"PASSWORD"`
	DB       int    `mapstructure:"DB"`
}

// Config holds all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	AppName      string             `mapstructure:"APP_NAME"`
	AppVersion   string             `mapstructure:"APP_VERSION"`
	LogLevel     string             `mapstructure:"LOG_LEVEL"`
	LogFormat    string             `mapstructure:"LOG_FORMAT"`
	APIServer    APIServerConfig    `mapstructure:"API_SERVER"`
	NotifyServer NotifyServerConfig `mapstructure:"NOTIFY_SERVER"`
	Kafka        KafkaConfig        `mapstructure:"KAFKA"`
	Database     DatabaseConfig     `mapstructure:"DATABASE"`
	Auth         AuthConfig         `mapstructure:"AUTH"`
	WebSocket    WebSocketConfig    `mapstructure:"WEBSOCKET"`
	Redis        RedisConfig        `mapstructure:"REDIS"`
	TMDB         TMDBConfig         `mapstructure:"TMDB"`
	Mail         MailConfig         `mapstructure:"MAIL"`
	Notify       NotifyConfig       `mapstructure:"NOTIFY"`
}

// KafkaConfig holds configuration for Kafka.
type KafkaConfig struct {
	Enabled           bool     `mapstructure:"ENABLED"`
	Brokers           []string `mapstructure:"BROKERS"`
	ClientID          string   `mapstructure:"CLIENT_ID"`
	NotificationTopic string   `mapstructure:"NOTIFICATION_TOPIC"` // 好友请求 / 邀请 / 推荐 通知事件
	ConsumerGroup     string   `mapstructure:"CONSUMER_GROUP"`
	Protocol          string   `mapstructure:"PROTOCOL"`
}

// DatabaseConfig holds configuration for the database.
// URL 不为空时优先于分项配置 (例如 DATABASE_URL=postgres://...)。
type DatabaseConfig struct {
	Type     string `mapstructure:"TYPE"`
	URL      string `mapstructure:"URL"`
	Host     string `mapstructure:"HOST"`
	Port     int    `mapstructure:"PORT"`
	User     string `mapstructure:"USER"`
	Password string `mapstructure:"PASSWORD"`
	DBName   string `mapstructure:"DB_NAME"`
	SSLMode  string `mapstructure:"SSL_MODE"`
	LogSQL   bool   `mapstructure:"LOG_SQL"`
}

// AuthConfig holds configuration for session tokens and OIDC sign-in.
type AuthConfig struct {
	JWTSecretKey      string        `mapstructure:"JWT_SECRET_KEY"`
	JWTExpiry         time.Duration `mapstructure:"JWT_EXPIRY"`
	CookieName        string        `mapstructure:"COOKIE_NAME"`
	CookieSecure      bool          `mapstructure:"COOKIE_SECURE"`
	OIDCIssuer        string        `mapstructure:"OIDC_ISSUER"`
	OIDCClientID      string        `mapstructure:"OIDC_CLIENT_ID"`
	OIDCClientSecret  string        `mapstructure:"OIDC_CLIENT_SECRET"`
	OIDCRedirectURL   string        `mapstructure:"OIDC_REDIRECT_URL"`
	PostLoginRedirect string        `mapstructure:"POST_LOGIN_REDIRECT"`
}

// WebSocketConfig holds configuration for WebSocket connections.
type WebSocketConfig struct {
	WriteWaitSeconds    int `mapstructure:"WRITE_WAIT_SECONDS"`
	PongWaitSeconds     int `mapstructure:"PONG_WAIT_SECONDS"`
	PingPeriodSeconds   int `mapstructure:"PING_PERIOD_SECONDS"`
	MaxMessageSizeBytes int `mapstructure:"MAX_MESSAGE_SIZE_BYTES"`
}

// TMDBConfig holds configuration for The Movie Database API.
type TMDBConfig struct {
	APIKey  string        `mapstructure:"API_KEY"` // v4 read access token, sent as Bearer
	BaseURL string        `mapstructure:"BASE_URL"`
	Timeout time.Duration `mapstructure:"TIMEOUT"`
}

// MailConfig holds configuration for the transactional email provider.
type MailConfig struct {
	APIKey  string        `mapstructure:"API_KEY"`
	BaseURL string        `mapstructure:"BASE_URL"`
	From    string        `mapstructure:"FROM"`
	AppURL  string        `mapstructure:"APP_URL"` // 邮件中链接指向的前端地址
	Timeout time.Duration `mapstructure:"TIMEOUT"`
}

// NotifyConfig 决定通知的投递方式: "direct" 在 API 进程内发送, "kafka" 通过通知 topic 交给 notifyserver。
type NotifyConfig struct {
	Mode string `mapstructure:"MODE"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()

	v.SetDefault("APP_NAME", "Trackd")
	v.SetDefault("APP_VERSION", "0.1.0")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	// APIServer Defaults
	v.SetDefault("API_SERVER.HOST", "0.0.0.0")
	v.SetDefault("API_SERVER.PORT", "8081")
	v.SetDefault("API_SERVER.READ_TIMEOUT", 30*time.Second)
	v.SetDefault("API_SERVER.WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("API_SERVER.CORS.ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	v.SetDefault("API_SERVER.CORS.ALLOWED_METHODS", []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("API_SERVER.CORS.ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"})
	v.SetDefault("API_SERVER.CORS.EXPOSED_HEADERS", []string{"Content-Length"})
	v.SetDefault("API_SERVER.CORS.ALLOW_CREDENTIALS", true)
	v.SetDefault("API_SERVER.CORS.MAX_AGE", 300) // 5 minutes
	v.SetDefault("API_SERVER.RATE_LIMIT.REQUESTS", 60)
	v.SetDefault("API_SERVER.RATE_LIMIT.WINDOW", time.Minute)

	// NotifyServer Defaults
	v.SetDefault("NOTIFY_SERVER.HOST", "0.0.0.0")
	v.SetDefault("NOTIFY_SERVER.PORT", "8082")
	v.SetDefault("NOTIFY_SERVER.WEBSOCKET_PATH", "/ws/notifications")

	// Kafka Defaults
	v.SetDefault("KAFKA.ENABLED", false)
	v.SetDefault("KAFKA.BROKERS", []string{"localhost:9092"})
	v.SetDefault("KAFKA.CLIENT_ID", "trackd")
	v.SetDefault("KAFKA.NOTIFICATION_TOPIC", "trackd-notifications")
	v.SetDefault("KAFKA.CONSUMER_GROUP", "trackd-notify-group")
	v.SetDefault("KAFKA.PROTOCOL", "plaintext")

	// Database Defaults (PostgreSQL)
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.URL", "")
	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", 5432)
	v.SetDefault("DATABASE.USER", "postgres")
	v.SetDefault("DATABASE.PASSWORD", "password")
	v.SetDefault("DATABASE.DB_NAME", "trackd")
	v.SetDefault("DATABASE.SSL_MODE", "disable")
	v.SetDefault("DATABASE.LOG_SQL", false)

	// Auth Defaults
	v.SetDefault("AUTH.JWT_SECRET_KEY", "a_very_secret_key_that_should_be_changed")
	v.SetDefault("AUTH.JWT_EXPIRY", 7*24*time.Hour)
	v.SetDefault("AUTH.COOKIE_NAME", "trackd_session")
	v.SetDefault("AUTH.COOKIE_SECURE", false)
	v.SetDefault("AUTH.OIDC_ISSUER", "")
	v.SetDefault("AUTH.OIDC_CLIENT_ID", "")
	v.SetDefault("AUTH.OIDC_CLIENT_SECRET", "")
	v.SetDefault("AUTH.OIDC_REDIRECT_URL", "http://localhost:8081/auth/callback")
	v.SetDefault("AUTH.POST_LOGIN_REDIRECT", "http://localhost:3000/")

	// Redis Defaults
	v.SetDefault("REDIS.ADDR", "localhost:6379")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)

	// WebSocket Defaults
	v.SetDefault("WEBSOCKET.WRITE_WAIT_SECONDS", 10)
	v.SetDefault("WEBSOCKET.PONG_WAIT_SECONDS", 60)
	v.SetDefault("WEBSOCKET.PING_PERIOD_SECONDS", 54) // (60 * 9) / 10
	v.SetDefault("WEBSOCKET.MAX_MESSAGE_SIZE_BYTES", 512)

	// TMDB Defaults
	v.SetDefault("TMDB.API_KEY", "")
	v.SetDefault("TMDB.BASE_URL", "https://api.themoviedb.org/3")
	v.SetDefault("TMDB.TIMEOUT", 10*time.Second)

	// Mail Defaults
	v.SetDefault("MAIL.API_KEY", "")
	v.SetDefault("MAIL.BASE_URL", "https://api.resend.com")
	v.SetDefault("MAIL.FROM", "Trackd <noreply@trackd.app>")
	v.SetDefault("MAIL.APP_URL", "http://localhost:3000")
	v.SetDefault("MAIL.TIMEOUT", 10*time.Second)

	v.SetDefault("NOTIFY.MODE", "direct")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.AutomaticEnv()
	// 嵌套键使用下划线: API_SERVER_PORT 覆盖 API_SERVER.PORT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 兼容常见的扁平环境变量名
	_ = v.BindEnv("TMDB.API_KEY", "TMDB_API_KEY")
	_ = v.BindEnv("MAIL.API_KEY", "MAIL_API_KEY", "RESEND_API_KEY")
	_ = v.BindEnv("DATABASE.URL", "DATABASE_URL")

	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return
		}
		// 没有配置文件时使用默认值
		err = nil
	}

	err = v.Unmarshal(&config)
	return
}

// OIDCEnabled reports whether enough OIDC settings are present to offer sign-in.
func (a AuthConfig) OIDCEnabled() bool {
	return a.OIDCIssuer != "" && a.OIDCClientID != ""
}
