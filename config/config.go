package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	GinMode string

	// StoreBackend memory | redis | postgres | sqlite
	StoreBackend string
	DatabaseURL  string
	SQLitePath   string

	RedisURL       string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	// 逗号分隔，浏览器扩展的 chrome-extension:// 来源也可以写在这里
	CORSAllowOrigins []string

	SeedFile  string
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	return &Config{
		Port:             getEnv("PORT", "8080"),
		GinMode:          getEnv("GIN_MODE", "release"),
		StoreBackend:     getEnv("STORE_BACKEND", "sqlite"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SQLitePath:       getEnv("SQLITE_PATH", "./data/templates.db"),
		RedisURL:         getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          redisDB,
		RedisKeyPrefix:   getEnv("REDIS_KEY_PREFIX", "reply_templates:"),
		CORSAllowOrigins: splitList(getEnv("CORS_ALLOW_ORIGINS", "*")),
		SeedFile:         os.Getenv("SEED_FILE"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "json"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
