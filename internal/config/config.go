package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the full application configuration surface shared by the
// server and the farmctl client.
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Sheets    SheetsConfig
	Reporting ReportingConfig
	Auth      AuthConfig
	Client    ClientConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// MongoDBConfig holds settings for the remote document store. An empty URI
// selects the in-memory store.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// SheetsConfig contains configuration required to export finance summaries
// to Google Sheets. Export is disabled when either field is empty.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
}

// Enabled reports whether the sheets export is configured.
func (s SheetsConfig) Enabled() bool {
	return s.CredentialsPath != "" && s.SpreadsheetID != ""
}

// ReportingConfig holds scheduler-related settings.
type ReportingConfig struct {
	CronSchedule string
	Timezone     string
}

// AuthConfig holds server side account settings.
type AuthConfig struct {
	AdminUsername string
	AdminPassword string
	TokenTTL      time.Duration
}

// ClientConfig holds the offline-first client settings.
type ClientConfig struct {
	RemoteURL           string
	DataDir             string
	GatewayTimeout      time.Duration
	SyncLiveInterval    time.Duration
	SyncPendingInterval time.Duration
	SyncRetryMin        time.Duration
	SyncRetryMax        time.Duration
	SyncBatchSize       int
	ProbeInterval       time.Duration
	OfflineGrace        bool
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Ignore the returned error here; missing .env files are acceptable when
		// configuration comes from the environment directly.
		_ = godotenv.Load()
	}

	var errs []error
	duration := func(key string, fallback time.Duration) time.Duration {
		d, err := getDuration(key, fallback)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	batch, err := getInt("SYNC_BATCH_SIZE", 100)
	if err != nil {
		errs = append(errs, err)
	}

	grace, err := getBool("AUTH_OFFLINE_GRACE", true)
	if err != nil {
		errs = append(errs, err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		MongoDB: MongoDBConfig{
			URI:    os.Getenv("MONGODB_URI"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "farmsync"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_DATABASE_ID"),
		},
		Reporting: ReportingConfig{
			CronSchedule: getenvWithDefault("REPORT_CRON_SCHEDULE", "0 20 * * *"),
			Timezone:     getenvWithDefault("TIMEZONE", "UTC"),
		},
		Auth: AuthConfig{
			AdminUsername: os.Getenv("FARM_ADMIN_USERNAME"),
			AdminPassword: os.Getenv("FARM_ADMIN_PASSWORD"),
			TokenTTL:      duration("AUTH_TOKEN_TTL", 30*24*time.Hour),
		},
		Client: ClientConfig{
			RemoteURL:           strings.TrimSuffix(getenvWithDefault("FARM_REMOTE_URL", "http://localhost:8080"), "/"),
			DataDir:             getenvWithDefault("FARM_DATA_DIR", defaultDataDir()),
			GatewayTimeout:      duration("GATEWAY_TIMEOUT", 15*time.Second),
			SyncLiveInterval:    duration("SYNC_LIVE_INTERVAL", 2*time.Second),
			SyncPendingInterval: duration("SYNC_PENDING_INTERVAL", 5*time.Second),
			SyncRetryMin:        duration("SYNC_RETRY_MIN", time.Second),
			SyncRetryMax:        duration("SYNC_RETRY_MAX", 10*time.Minute),
			SyncBatchSize:       batch,
			ProbeInterval:       duration("CONNECTIVITY_PROBE_INTERVAL", 10*time.Second),
			OfflineGrace:        grace,
		},
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	if c.MongoDB.URI != "" && c.MongoDB.DBName == "" {
		return errors.New("MONGODB_DB_NAME must be provided with MONGODB_URI")
	}

	if (c.Sheets.CredentialsPath == "") != (c.Sheets.SpreadsheetID == "") {
		return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH and GOOGLE_SHEET_DATABASE_ID must be set together")
	}

	if c.Reporting.CronSchedule == "" {
		return errors.New("REPORT_CRON_SCHEDULE must be provided")
	}

	if _, err := time.LoadLocation(c.Reporting.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE is invalid: %w", err)
	}

	if (c.Auth.AdminUsername == "") != (c.Auth.AdminPassword == "") {
		return errors.New("FARM_ADMIN_USERNAME and FARM_ADMIN_PASSWORD must be set together")
	}

	if c.Auth.TokenTTL <= 0 {
		return errors.New("AUTH_TOKEN_TTL must be positive")
	}

	switch {
	case c.Client.RemoteURL == "":
		return errors.New("FARM_REMOTE_URL must not be empty")
	case c.Client.DataDir == "":
		return errors.New("FARM_DATA_DIR must not be empty")
	case c.Client.GatewayTimeout <= 0:
		return errors.New("GATEWAY_TIMEOUT must be positive")
	case c.Client.SyncPendingInterval <= 0:
		return errors.New("SYNC_PENDING_INTERVAL must be positive")
	case c.Client.SyncRetryMin <= 0 || c.Client.SyncRetryMax < c.Client.SyncRetryMin:
		return errors.New("SYNC_RETRY_MIN must be positive and not exceed SYNC_RETRY_MAX")
	case c.Client.SyncBatchSize <= 0:
		return errors.New("SYNC_BATCH_SIZE must be positive")
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s is not a duration: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s is not an integer: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s is not a boolean: %w", key, err)
	}
	return b, nil
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + string(os.PathSeparator) + "farmsync"
	}
	return ".farmsync"
}
