package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultAPIURL = "https://backend-museum-fqe0fsgtcddrfeff.canadacentral-01.azurewebsites.net/api"

// Config holds application configuration
type Config struct {
	Env      string
	LogLevel string

	// Museum booking API
	APIBaseURL string
	APITimeout time.Duration
	TokenFile  string

	// Booking console
	ConsolePort        string
	CORSAllowedOrigins []string

	// Appointment listing cache
	RedisAddr       string
	RedisPassword   string
	RedisTLS        bool
	ListingCacheTTL time.Duration

	// Bulk submission
	BulkConcurrency    int
	BulkStagger        time.Duration
	BulkMaxAttempts    int
	BulkRetryBaseDelay time.Duration

	// Ingest defaults
	BookingLeadDays int
	DefaultTimeSlot string

	// Ticket release window
	ReleaseTime     string
	ReleaseWindow   time.Duration
	ReleaseTimezone string

	// S3 ingest sources
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present; real environment variables
// win over it.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		APIBaseURL: NormalizeBaseURL(getEnv("MUSEUM_API_URL", defaultAPIURL)),
		APITimeout: getEnvAsDuration("MUSEUM_API_TIMEOUT", 30*time.Second),
		TokenFile:  getEnv("MUSEUMBOOK_TOKEN_FILE", defaultTokenFile()),

		ConsolePort:        getEnv("CONSOLE_PORT", "8080"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisTLS:        getEnvAsBool("REDIS_TLS", false),
		ListingCacheTTL: getEnvAsDuration("LISTING_CACHE_TTL", 2*time.Minute),

		BulkConcurrency:    getEnvAsInt("BULK_CONCURRENCY", 8),
		BulkStagger:        getEnvAsDuration("BULK_STAGGER", 25*time.Millisecond),
		BulkMaxAttempts:    getEnvAsInt("BULK_MAX_ATTEMPTS", 1),
		BulkRetryBaseDelay: getEnvAsDuration("BULK_RETRY_BASE_DELAY", 200*time.Millisecond),

		BookingLeadDays: getEnvAsInt("BOOKING_LEAD_DAYS", 5),
		DefaultTimeSlot: getEnv("DEFAULT_TIME_SLOT", "16:30-18:00"),

		ReleaseTime:     getEnv("RELEASE_TIME", "17:00"),
		ReleaseWindow:   getEnvAsDuration("RELEASE_WINDOW", 5*time.Minute),
		ReleaseTimezone: getEnv("RELEASE_TIMEZONE", "Asia/Shanghai"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// NormalizeBaseURL prepends https:// to scheme-less URLs and trims trailing slashes.
func NormalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	return strings.TrimRight(raw, "/")
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ".museumbook-token"
	}
	return dir + string(os.PathSeparator) + "museumbook" + string(os.PathSeparator) + "token"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping empty entries.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
