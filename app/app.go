package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"device_inventory_tool/config"
	"device_inventory_tool/db"
	"device_inventory_tool/session"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
)

// 简化别名，便于 handlers 调用
type Ctx = gin.Context
type H = gin.H

// App 聚合各依赖
type App struct {
	Router *gin.Engine
	DB     *gorm.DB
	RDB    *redis.Client
	Log    *zap.Logger
	Config Config

	appSess *session.AppSessionStore
}

// Config 从环境变量读取
type Config struct {
	DB          db.Options
	RedisAddr   string `validate:"required"`
	RedisPwd    string
	WebOrigin   string        `validate:"omitempty,url"`
	Port        string        `validate:"required,numeric"`
	SessionTTL  time.Duration `validate:"gt=0"`
	ConfirmTTL  time.Duration `validate:"gt=0"`
	AdminEmails []string

	MaxContractUploads int    `validate:"min=1"`
	MaxUploadBytes     int64  `validate:"min=1"`
	PDFExtractorURL    string `validate:"omitempty,url"`
	PDFExtractTimeout  time.Duration

	RetentionDays int `validate:"min=0"`
	RetentionCron string

	LogLevel string `validate:"oneof=debug info warn error"`
	GinMode  string
}

var validate = validator.New()

// Validate 启动时检查配置，避免运行中才发现
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.RetentionCron != "" && c.RetentionDays < 1 {
		return fmt.Errorf("config: RETENTION_CRON requires RETENTION_DAYS >= 1")
	}
	return nil
}

func (a *App) AppSessions() *session.AppSessionStore { return a.appSess }

// IsAdminUsername 配置里的管理员名单（不区分大小写）
func (c Config) IsAdminUsername(username string) bool {
	name := strings.ToLower(strings.TrimSpace(username))
	for _, admin := range c.AdminEmails {
		if name == admin {
			return true
		}
	}
	return false
}

func LoadConfig() Config {
	var admins []string
	for _, s := range config.GetList("ADMIN_EMAILS") { // 例如: "admin@ex.com,ops@ex.com"
		admins = append(admins, strings.ToLower(s))
	}
	return Config{
		DB: db.Options{
			Host:     config.Get("DB_HOST", "127.0.0.1"),
			Port:     config.Get("DB_PORT", "5432"),
			User:     config.Get("DB_USER", "postgres"),
			Password: config.Get("DB_PASSWORD", "postgres"),
			Name:     config.Get("DB_NAME", "device_inventory"),
			SSLMode:  config.Get("DB_SSLMODE", "disable"),
			Debug:    config.GetBool("DB_DEBUG", false),
		},
		RedisAddr:   config.Get("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPwd:    config.Get("REDIS_PASSWORD", ""),
		WebOrigin:   config.Get("WEB_ORIGIN", "http://localhost:5173"),
		Port:        config.Get("PORT", "3001"),
		SessionTTL:  config.GetDuration("SESSION_TTL_SECONDS", 24*time.Hour),
		ConfirmTTL:  config.GetDuration("CONFIRM_TTL_SECONDS", 2*time.Minute),
		AdminEmails: admins,

		MaxContractUploads: config.GetInt("MAX_CONTRACT_UPLOADS", 50),
		MaxUploadBytes:     int64(config.GetInt("MAX_UPLOAD_MB", 20)) << 20,
		PDFExtractorURL:    config.Get("PDF_EXTRACTOR_URL", ""),
		PDFExtractTimeout:  config.GetDuration("PDF_EXTRACT_TIMEOUT_SECONDS", 15*time.Second),

		RetentionDays: config.GetInt("RETENTION_DAYS", 0),
		RetentionCron: config.Get("RETENTION_CRON", ""),

		LogLevel: config.Get("LOG_LEVEL", "info"),
		GinMode:  config.Get("GIN_MODE", gin.ReleaseMode),
	}
}

// NewLogger 生产配置；LOG_LEVEL=debug 时输出调试日志
func NewLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// New 连接 Postgres 与 Redis 并构建 gin 引擎
func New(cfg Config, log *zap.Logger) (*App, error) {
	// --- DB: Postgres ---
	dbConn, err := db.ConnectDB(cfg.DB)
	if err != nil {
		return nil, err
	}

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd, DB: 0})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return NewWithDeps(cfg, log, dbConn, rdb), nil
}

// NewWithDeps 测试里注入 sqlite / miniredis
func NewWithDeps(cfg Config, log *zap.Logger, dbConn *gorm.DB, rdb *redis.Client) *App {
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}

	// --- Gin ---
	r := gin.New()
	r.Use(RequestLogger(log), Recovery(log))
	useCORS(r, cfg.WebOrigin)
	return &App{
		Router: r, DB: dbConn, RDB: rdb, Log: log, Config: cfg,
		appSess: session.NewAppSessionStore(rdb, cfg.SessionTTL),
	}
}

func (a *App) Close() {
	_ = a.RDB.Close()
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.Log.Sync()
}
