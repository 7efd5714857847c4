package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 应用程序配置
type Config struct {
	APIPort  int
	LogLevel string
	LogFile  LogFileConfig
	Storage  string // mysql 或 memory
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Payment  PaymentConfig
	Order    OrderConfig
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Enabled    bool
	Path       string
	MaxSize    int // 单位MB
	MaxBackups int
	MaxAge     int // 单位天
	Compress   bool
}

// DatabaseConfig MySQL数据库配置
type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	DBName         string
	MigrationsPath string
	MigrateOnStart bool
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// KafkaConfig 订单事件投递配置，Brokers为空时不投递
type KafkaConfig struct {
	Brokers    []string
	OrderTopic string
}

// PaymentConfig 支付网关调用配置
type PaymentConfig struct {
	Timeout       time.Duration
	NotifyBaseURL string // 回调地址前缀，如 https://admin.example.com/api/v1/payments/callback
}

// OrderConfig 订单配置
type OrderConfig struct {
	ExpireAfter time.Duration // 待支付订单超时自动取消，0表示关闭
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// 加载.env文件，文件不存在时直接使用环境变量
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := &Config{
		APIPort:  intEnv("API_PORT", 8080),
		LogLevel: os.Getenv("LOG_LEVEL"),
		LogFile: LogFileConfig{
			Enabled:    boolEnv("LOG_FILE_ENABLED", false),
			Path:       stringEnv("LOG_FILE_PATH", "logs/app.log"),
			MaxSize:    intEnv("LOG_FILE_MAX_SIZE", 100),
			MaxBackups: intEnv("LOG_FILE_MAX_BACKUPS", 30),
			MaxAge:     intEnv("LOG_FILE_MAX_AGE", 30),
			Compress:   boolEnv("LOG_FILE_COMPRESS", true),
		},
		Storage: stringEnv("STORAGE", "mysql"),
		Database: DatabaseConfig{
			Host:           os.Getenv("DB_HOST"),
			Port:           intEnv("DB_PORT", 3306),
			User:           os.Getenv("DB_USER"),
			Password:       os.Getenv("DB_PASSWORD"),
			DBName:         os.Getenv("DB_NAME"),
			MigrationsPath: stringEnv("MIGRATIONS_PATH", "migrations"),
			MigrateOnStart: boolEnv("MIGRATE_ON_START", true),
		},
		Redis: RedisConfig{
			Host:     stringEnv("REDIS_HOST", "127.0.0.1"),
			Port:     intEnv("REDIS_PORT", 6379),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       intEnv("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:    splitList(os.Getenv("KAFKA_BROKERS")),
			OrderTopic: stringEnv("KAFKA_ORDER_TOPIC", "shop.order.events"),
		},
		Payment: PaymentConfig{
			Timeout:       durationEnv("PAYMENT_TIMEOUT", 10*time.Second),
			NotifyBaseURL: os.Getenv("PAYMENT_NOTIFY_BASE_URL"),
		},
		Order: OrderConfig{
			ExpireAfter: time.Duration(intEnv("ORDER_EXPIRE_MINUTES", 0)) * time.Minute,
		},
	}

	if cfg.Storage != "mysql" && cfg.Storage != "memory" {
		return nil, fmt.Errorf("unsupported STORAGE %q", cfg.Storage)
	}

	return cfg, nil
}

// MigrationDSN golang-migrate使用的连接串
func (c DatabaseConfig) MigrationDSN() string {
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%d)/%s?multiStatements=true",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func boolEnv(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func durationEnv(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
