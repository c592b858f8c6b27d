package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"worktracker/internal/googleauth"
)

// Backends accepted by DATA_BACKEND.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendSheets = "sheets"
)

// Identity providers accepted by IDENTITY_PROVIDER.
const (
	IdentityLocal  = "local"
	IdentityGoogle = "google"
	IdentityToken  = "token"
)

var (
	validBackends   = []string{BackendMemory, BackendSQLite, BackendRedis, BackendSheets}
	validIdentities = []string{IdentityLocal, IdentityGoogle, IdentityToken}
	validLogFormats = []string{"text", "json", "pretty"}
	validLogLevels  = []string{"debug", "info", "warn", "error"}
)

const minSessionSecretLen = 32

type Config struct {
	// Backend selection
	DataBackend string

	// Database
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	GoogleOAuthClientFile    string
	GoogleOAuthTokenFile     string
	GoogleOAuthClientJSON    string
	GoogleOAuthTokenJSON     string

	// Identity
	IdentityProvider   string
	LocalUserID        string
	LocalUserName      string
	SessionTokenSecret string
	SessionTokenFile   string
	SessionTokenTTL    time.Duration

	// Write queue
	SyncDebounce time.Duration
	SyncMaxDelay time.Duration

	// Worker
	SyncBatchSize int
	SyncInterval  time.Duration
	MetricsAddr   string

	// Logging
	LogFormat string
	LogLevel  string
}

func Load() *Config {
	cfg := &Config{
		DataBackend:  getEnv("DATA_BACKEND", BackendMemory),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/worktracker.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "worktracker"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "sync_documents"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Documents"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleOAuthClientFile:    getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthTokenFile:     getEnv("GOOGLE_OAUTH_TOKEN_FILE", ""),
		GoogleOAuthClientJSON:    getEnv("GOOGLE_OAUTH_CLIENT_JSON", ""),
		GoogleOAuthTokenJSON:     getEnv("GOOGLE_OAUTH_TOKEN_JSON", ""),

		IdentityProvider:   getEnv("IDENTITY_PROVIDER", IdentityLocal),
		LocalUserID:        getEnv("LOCAL_USER_ID", "local"),
		LocalUserName:      getEnv("LOCAL_USER_NAME", "User"),
		SessionTokenSecret: getEnv("SESSION_TOKEN_SECRET", ""),
		SessionTokenFile:   getEnv("SESSION_TOKEN_FILE", ""),
		SessionTokenTTL:    getEnvDuration("SESSION_TOKEN_TTL", 30*24*time.Hour),

		SyncDebounce: getEnvDuration("SYNC_DEBOUNCE", 500*time.Millisecond),
		SyncMaxDelay: getEnvDuration("SYNC_MAX_DELAY", 5*time.Second),

		SyncBatchSize: getEnvInt("SYNC_BATCH_SIZE", 10),
		SyncInterval:  getEnvDuration("SYNC_INTERVAL", 30*time.Second),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	return cfg
}

// GoogleCredentials collects the Google credential settings.
func (c *Config) GoogleCredentials() googleauth.Credentials {
	return googleauth.Credentials{
		ServiceAccountJSON: c.GoogleServiceAccountJSON,
		ServiceAccountFile: c.GoogleServiceAccountFile,
		OAuthClientJSON:    c.GoogleOAuthClientJSON,
		OAuthClientFile:    c.GoogleOAuthClientFile,
		OAuthTokenJSON:     c.GoogleOAuthTokenJSON,
		OAuthTokenFile:     c.GoogleOAuthTokenFile,
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate data backend
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == BackendSQLite {
		errors = c.validateSQLite(errors)
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate Redis configuration if backend is redis
	if c.DataBackend == BackendRedis {
		if c.RedisAddr == "" {
			errors = append(errors, "REDIS_ADDR is required when using redis backend")
		}
		if c.RedisDB < 0 {
			errors = append(errors, fmt.Sprintf("invalid redis db %d: must not be negative", c.RedisDB))
		}
	}

	// Validate Google Sheets configuration if backend is sheets
	if c.DataBackend == BackendSheets {
		errors = c.validateSheets(errors)
	}

	// Validate identity provider
	switch c.IdentityProvider {
	case IdentityLocal:
		if strings.TrimSpace(c.LocalUserID) == "" {
			errors = append(errors, "LOCAL_USER_ID cannot be empty when using local identity")
		}
	case IdentityGoogle:
		errors = c.validateOAuth(errors, "google identity")
	case IdentityToken:
		if len(c.SessionTokenSecret) < minSessionSecretLen {
			errors = append(errors, fmt.Sprintf("SESSION_TOKEN_SECRET must be at least %d bytes when using token identity", minSessionSecretLen))
		}
		if c.SessionTokenTTL <= 0 {
			errors = append(errors, fmt.Sprintf("invalid session token ttl %v: must be positive", c.SessionTokenTTL))
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid identity provider '%s': must be one of %v", c.IdentityProvider, validIdentities))
	}

	// Validate write queue
	if c.SyncDebounce <= 0 {
		errors = append(errors, fmt.Sprintf("invalid sync debounce %v: must be positive", c.SyncDebounce))
	}
	if c.SyncMaxDelay < c.SyncDebounce {
		errors = append(errors, fmt.Sprintf("invalid sync max delay %v: must be at least the debounce %v", c.SyncMaxDelay, c.SyncDebounce))
	}

	errors = c.validateWorker(errors)
	errors = c.validateLogging(errors)

	return joinErrors(errors)
}

// ValidateWorker checks what the mirror worker needs: the SQLite source, the
// Sheets destination and the broker.
func (c *Config) ValidateWorker() error {
	var errors []string
	errors = c.validateSQLite(errors)
	errors = c.validateSheets(errors)
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the worker")
	}
	errors = c.validateWorker(errors)
	errors = c.validateLogging(errors)
	return joinErrors(errors)
}

func (c *Config) validateSQLite(errors []string) []string {
	if c.SQLiteDBPath == "" {
		return append(errors, "SQLite database path cannot be empty when using sqlite backend")
	}
	// Check if directory exists or can be created
	dir := filepath.Dir(c.SQLiteDBPath)
	if dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	}
	return errors
}

func (c *Config) validateSheets(errors []string) []string {
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
	}
	if c.GoogleSheetName == "" {
		errors = append(errors, "Google Sheet name is required when using sheets backend")
	}
	if c.GoogleCredentials().HasServiceAccount() {
		if c.GoogleServiceAccountJSON == "" {
			errors = checkFile(errors, "Google service account file", c.GoogleServiceAccountFile)
		}
		return errors
	}
	return c.validateOAuth(errors, "sheets backend")
}

func (c *Config) validateOAuth(errors []string, what string) []string {
	// Must have either client file or JSON
	hasClientFile := c.GoogleOAuthClientFile != ""
	hasClientJSON := c.GoogleOAuthClientJSON != ""
	if !hasClientFile && !hasClientJSON {
		errors = append(errors, fmt.Sprintf("either GOOGLE_OAUTH_CLIENT_FILE or GOOGLE_OAUTH_CLIENT_JSON must be provided for %s", what))
	}

	// Must have either token file or JSON
	hasTokenFile := c.GoogleOAuthTokenFile != ""
	hasTokenJSON := c.GoogleOAuthTokenJSON != ""
	if !hasTokenFile && !hasTokenJSON {
		errors = append(errors, fmt.Sprintf("either GOOGLE_OAUTH_TOKEN_FILE or GOOGLE_OAUTH_TOKEN_JSON must be provided for %s", what))
	}

	if hasClientFile && !hasClientJSON {
		errors = checkFile(errors, "Google OAuth client file", c.GoogleOAuthClientFile)
	}
	if hasTokenFile && !hasTokenJSON {
		errors = checkFile(errors, "Google OAuth token file", c.GoogleOAuthTokenFile)
	}
	return errors
}

func (c *Config) validateWorker(errors []string) []string {
	if c.SyncBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}
	return errors
}

func (c *Config) validateLogging(errors []string) []string {
	if !slices.Contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validLogFormats))
	}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLogLevels))
	}
	return errors
}

func checkFile(errors []string, what, path string) []string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		errors = append(errors, fmt.Sprintf("%s does not exist: %s", what, path))
	}
	return errors
}

func joinErrors(errors []string) error {
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
