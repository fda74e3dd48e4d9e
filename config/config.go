package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	BrokerNone  = "none"
	BrokerRedis = "redis"
	BrokerNATS  = "nats"
)

type Config struct {
	AppPort            string
	AppMode            string
	StoreDriver        string
	DBURL              string
	DBHost             string
	DBUser             string
	DBPassword         string
	DBName             string
	DBPort             string
	DBMaxConns         int
	JWTSecret          string
	RedisEnabled       bool
	RedisHost          string
	RedisPort          string
	RedisPassword      string
	RedisDB            int
	Broker             string
	NATSURL            string
	MessageRateLimit   int
	PresenceTTLSeconds int
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort:            getEnv("APP_PORT", "8080"),
		AppMode:            getEnv("APP_MODE", "debug"),
		StoreDriver:        strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DBURL:              getEnv("DB_URL", ""),
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBUser:             getEnv("DB_USER", "postgres"),
		DBPassword:         getEnv("DB_PASSWORD", "postgres"),
		DBName:             getEnv("DB_NAME", "agora_chat"),
		DBPort:             getEnv("DB_PORT", "5432"),
		DBMaxConns:         getEnvAsInt("DB_MAX_CONNS", 10),
		JWTSecret:          getEnv("JWT_SECRET", "change-me"),
		RedisEnabled:       getEnvAsBool("REDIS_ENABLED", false),
		RedisHost:          getEnv("REDIS_HOST", "localhost"),
		RedisPort:          getEnv("REDIS_PORT", "6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getEnvAsInt("REDIS_DB", 0),
		Broker:             strings.ToLower(getEnv("BROKER", BrokerNone)),
		NATSURL:            getEnv("NATS_URL", "nats://127.0.0.1:4222"),
		MessageRateLimit:   getEnvAsInt("MESSAGE_RATE_LIMIT", 60),
		PresenceTTLSeconds: getEnvAsInt("PRESENCE_TTL_SECONDS", 300),
	}
}

// DatabaseURL prefers DB_URL and otherwise assembles a DSN from the parts.
func (c *Config) DatabaseURL() string {
	if c.DBURL != "" {
		return c.DBURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
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

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}
