// Package config resolves server configuration from the environment,
// the way gosom's redis/config package does: getEnvOrDefault plus
// typed, validated parsing, no third-party config library.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds everything cmd/server needs to wire the service together.
type Config struct {
	Port             int
	UploadDir        string
	ScratchDir       string
	MetadataStoreURL string
	SessionRetention time.Duration
	ScratchRetention time.Duration
	JanitorInterval  time.Duration
	LogLevel         string
	ServerID         string
}

const (
	defaultPort             = 3001
	defaultUploadDir        = "./upload"
	defaultScratchDir       = "./temp"
	defaultSessionRetention = 24 * time.Hour
	defaultScratchRetention = 1 * time.Hour
	defaultJanitorInterval  = 1 * time.Hour
	defaultLogLevel         = "info"

	minPort = 1
	maxPort = 65535
)

// Load resolves a Config from the process environment. METADATA_STORE_URL
// takes precedence over the legacy MONGO_URI alias; neither set means the
// in-process memstore backend.
func Load() (Config, error) {
	port, err := validatePort(getEnvOrDefault("PORT", strconv.Itoa(defaultPort)))
	if err != nil {
		return Config{}, fmt.Errorf("invalid PORT: %w", err)
	}

	sessionRetention, err := validateDuration("SESSION_RETENTION_HOURS", defaultSessionRetention, hoursToDuration)
	if err != nil {
		return Config{}, err
	}

	scratchRetention, err := validateDuration("SCRATCH_RETENTION_HOURS", defaultScratchRetention, hoursToDuration)
	if err != nil {
		return Config{}, err
	}

	janitorInterval := defaultJanitorInterval
	if raw := os.Getenv("JANITOR_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid JANITOR_INTERVAL: %w", err)
		}
		janitorInterval = d
	}

	metadataURL := os.Getenv("METADATA_STORE_URL")
	if metadataURL == "" {
		metadataURL = os.Getenv("MONGO_URI")
	}

	return Config{
		Port:             port,
		UploadDir:        getEnvOrDefault("UPLOAD_DIR", defaultUploadDir),
		ScratchDir:       getEnvOrDefault("TEMP_DIR", defaultScratchDir),
		MetadataStoreURL: metadataURL,
		SessionRetention: sessionRetention,
		ScratchRetention: scratchRetention,
		JanitorInterval:  janitorInterval,
		LogLevel:         getEnvOrDefault("LOG_LEVEL", defaultLogLevel),
		ServerID:         getEnvOrDefault("SERVER_ID", "upload-coordinator"),
	}, nil
}

func hoursToDuration(hours int) time.Duration {
	return time.Duration(hours) * time.Hour
}

func validateDuration(envVar string, fallback time.Duration, toDuration func(int) time.Duration) (time.Duration, error) {
	raw := os.Getenv(envVar)
	if raw == "" {
		return fallback, nil
	}
	hours, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", envVar, err)
	}
	if hours <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", envVar, hours)
	}
	return toDuration(hours), nil
}

func validatePort(raw string) (int, error) {
	p, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("port must be a number: %w", err)
	}
	if p < minPort || p > maxPort {
		return 0, fmt.Errorf("port must be between %d and %d", minPort, maxPort)
	}
	return p, nil
}

func getEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
