package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr         string
	DatabaseURL  string
	RedisURL     string
	JWTSecret    string
	RoomTokenTTL time.Duration
	CORSOrigin   string
	// Meilisearch - empty URL disables the search index
	MeiliURL       string
	MeiliMasterKey string
	// SMTP - empty by default, grant emails disabled if not configured
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
}

func Load() Config {
	return Config{
		Addr:           getenv("API_ADDR", ":8686"),
		DatabaseURL:    getenv("DATABASE_URL", ""),
		RedisURL:       getenv("REDIS_URL", ""),
		JWTSecret:      getenv("ROOMSYNC_JWT_SECRET", "roomsync-dev-secret"),
		RoomTokenTTL:   time.Duration(getenvInt("ROOMSYNC_ROOM_TOKEN_TTL_SECONDS", 900)) * time.Second,
		CORSOrigin:     getenv("ROOMSYNC_CORS_ORIGIN", "*"),
		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),
		SMTPHost:       getenv("SMTP_HOST", ""),
		SMTPPort:       getenv("SMTP_PORT", "587"),
		SMTPUsername:   getenv("SMTP_USERNAME", ""),
		SMTPPassword:   getenv("SMTP_PASSWORD", ""),
		SMTPFrom:       getenv("SMTP_FROM", ""),
		SMTPFromName:   getenv("SMTP_FROM_NAME", "RoomSync"),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
