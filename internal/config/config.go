package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// Config holds the application configuration
type Config struct {
	DataDir      string
	StoreBackend string
	SQLitePath   string
	StoreFile    string

	HTTPAddr       string
	JWTSecret      string
	TokenTTL       time.Duration
	CORSOrigins    []string
	RSVPRatePerMin int
	RSVPRateBurst  int

	ResyncInterval time.Duration

	WhatsAppEnabled    bool
	WhatsAppDataDir    string
	DefaultCountryCode string

	WeddingDate     string
	WeddingLocation string
	BrideName       string
	GroomName       string

	LogLevel  string
	LogPretty bool
}

// LoadConfig loads configuration from environment variables or defaults.
// A .env file in the working directory is read first when present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()
	return loadFromEnv()
}

func loadFromEnv() (*Config, error) {
	dataDir := getEnv("DATA_DIR", "data")
	cfg := &Config{
		DataDir:            dataDir,
		StoreBackend:       strings.ToLower(getEnv("STORE_BACKEND", BackendSQLite)),
		SQLitePath:         getEnv("SQLITE_PATH", filepath.Join(dataDir, "wedding.db")),
		StoreFile:          getEnv("STORE_FILE", filepath.Join(dataDir, "records.json")),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		CORSOrigins:        splitList(getEnv("CORS_ORIGINS", "")),
		WhatsAppDataDir:    getEnv("WHATSAPP_DATA_DIR", dataDir),
		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "972"),
		WeddingDate:        getEnv("WEDDING_DATE", "Saturday, January 1, 2025"),
		WeddingLocation:    getEnv("WEDDING_LOCATION", "Venue TBD"),
		BrideName:          getEnv("BRIDE_NAME", "Bride"),
		GroomName:          getEnv("GROOM_NAME", "Groom"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}

	invalid := make([]string, 0, 4)

	var err error
	if cfg.TokenTTL, err = parseDuration("TOKEN_TTL", 72*time.Hour); err != nil {
		invalid = append(invalid, "TOKEN_TTL")
	}
	if cfg.ResyncInterval, err = parseDuration("RESYNC_INTERVAL", time.Minute); err != nil {
		invalid = append(invalid, "RESYNC_INTERVAL")
	}
	if cfg.RSVPRatePerMin, err = parsePositiveInt("RSVP_RATE_PER_MIN", 10); err != nil {
		invalid = append(invalid, "RSVP_RATE_PER_MIN")
	}
	if cfg.RSVPRateBurst, err = parsePositiveInt("RSVP_RATE_BURST", 5); err != nil {
		invalid = append(invalid, "RSVP_RATE_BURST")
	}
	if cfg.WhatsAppEnabled, err = parseBool("WHATSAPP_ENABLED", false); err != nil {
		invalid = append(invalid, "WHATSAPP_ENABLED")
	}
	if cfg.LogPretty, err = parseBool("LOG_PRETTY", false); err != nil {
		invalid = append(invalid, "LOG_PRETTY")
	}
	if cfg.StoreBackend != BackendSQLite && cfg.StoreBackend != BackendFile {
		invalid = append(invalid, "STORE_BACKEND")
	}

	if len(invalid) > 0 {
		return nil, fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	value := getEnv(key, "")
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def, err
	}
	if d <= 0 {
		return def, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	value := getEnv(key, "")
	if value == "" {
		return def, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return def, err
	}
	if n <= 0 {
		return def, fmt.Errorf("%s must be positive", key)
	}
	return n, nil
}

func parseBool(key string, def bool) (bool, error) {
	value := getEnv(key, "")
	if value == "" {
		return def, nil
	}
	return strconv.ParseBool(value)
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
