package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

type Config struct {
	Port           string
	Env            string
	Version        string
	AppURL         string
	StoreDriver    string
	MySQLHost      string
	MySQLPort      string
	MySQLUser      string
	MySQLPassword  string
	MySQLDatabase  string
	RedisHost      string
	RedisPort      string
	RedisPassword  string
	KafkaBrokers   []string
	KafkaTopic     string
	KafkaGroupID   string
	YouTubeAPIKey  string
	JWTSecret      string
	JWTExpiry      time.Duration
	CORSOrigins    []string
	RequestTimeout time.Duration
	MigrationsDir  string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		Version:        getEnv("VERSION", "0.1.0"),
		AppURL:         getEnv("APP_URL", "http://localhost:3000"),
		StoreDriver:    getEnv("STORE_DRIVER", StoreMySQL),
		MySQLHost:      getEnv("MYSQL_HOST", "localhost"),
		MySQLPort:      getEnv("MYSQL_PORT", "3306"),
		MySQLUser:      getEnv("MYSQL_USER", "root"),
		MySQLPassword:  getEnv("MYSQL_PASSWORD", ""),
		MySQLDatabase:  getEnv("MYSQL_DATABASE", "karaoke"),
		RedisHost:      getEnv("REDIS_HOST", ""),
		RedisPort:      getEnv("REDIS_PORT", "6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:   getEnvAsList("KAFKA_BROKERS"),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "karaoke-changes"),
		KafkaGroupID:   getEnv("KAFKA_GROUP_ID", ""),
		YouTubeAPIKey:  getEnv("YOUTUBE_API_KEY", ""),
		JWTSecret:      getEnv("JWT_SECRET", "change-me"),
		JWTExpiry:      time.Duration(getEnvAsInt("JWT_EXPIRY_HOURS", 24*30)) * time.Hour,
		CORSOrigins:    getEnvAsListDefault("CORS_ORIGINS", []string{"http://localhost:3000"}),
		RequestTimeout: time.Duration(getEnvAsInt("REQUEST_TIMEOUT_SECONDS", 10)) * time.Second,
		MigrationsDir:  getEnv("MIGRATIONS_DIR", "migrations"),
	}
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// RequiredEnvPresent reports which of the settings needed for a fully working
// deployment are set. Used by the health check.
func (c *Config) RequiredEnvPresent() map[string]bool {
	return map[string]bool{
		"database":      c.StoreDriver == StoreMemory || c.MySQLHost != "",
		"youtubeApiKey": c.YouTubeAPIKey != "",
		"appUrl":        c.AppURL != "",
		"jwtSecret":     c.JWTSecret != "" && c.JWTSecret != "change-me",
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsList(key string) []string {
	return getEnvAsListDefault(key, nil)
}

func getEnvAsListDefault(key string, fallback []string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
