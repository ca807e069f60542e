package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ServerAddr       string
	DBDriver         string
	DatabaseDSN      string
	JWTSecret        string
	TokenTTL         time.Duration
	UploadDir        string
	UploadMaxBytes   int64
	SecureCookies    bool
	CORSOrigins      string
	LogLevel         string
	LogFormat        string
	StoreMaxAttempts int
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file found, using process environment")
	}

	return &Config{
		ServerAddr:       ":" + getEnv("PORT", "8080"),
		DBDriver:         getEnv("DB_DRIVER", "mysql"),
		DatabaseDSN:      getEnv("DATABASE_DSN", "root:root@tcp(localhost:3306)/friendline?charset=utf8mb4&parseTime=True&loc=UTC"),
		JWTSecret:        getEnv("JWT_SECRET", "friendline-secret-key-change-in-production"),
		TokenTTL:         getDuration("TOKEN_TTL", 7*24*time.Hour),
		UploadDir:        getEnv("UPLOAD_DIR", "./uploads"),
		UploadMaxBytes:   int64(getInt("UPLOAD_MAX_MB", 10)) << 20,
		SecureCookies:    getEnv("COOKIE_SECURE", "false") == "true",
		CORSOrigins:      getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
		StoreMaxAttempts: getInt("STORE_MAX_ATTEMPTS", 5),
	}
}

// ConfigureLogging applies the level and format to the standard logrus logger.
func (c *Config) ConfigureLogging() {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		logrus.WithField("level", c.LogLevel).Warn("unknown log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if c.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		logrus.WithFields(logrus.Fields{"key": key, "value": value}).Warn("invalid integer setting, using default")
		return defaultValue
	}
	return n
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		logrus.WithFields(logrus.Fields{"key": key, "value": value}).Warn("invalid duration setting, using default")
		return defaultValue
	}
	return d
}
