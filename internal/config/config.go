package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"partsmatch/internal/matcher"
)

type Config struct {
	DBPath     string
	RawMailDir string
	OutputDir  string

	PartsAPIBaseURL    string
	PartsAPIKey        string
	PartsRateLimitRPS  int
	PartsTimeoutMs     int
	PartsMaxRetries    int
	PartsSearchLimit   int
	CacheExpiry        time.Duration
	PartsSearchDepth   string
	MatchUseAPI        bool
	MatchValueTolPct   float64
	MatchWeightMPN     float64
	MatchWeightValue   float64
	MatchWeightFP      float64
	MatchWeightMfr     float64
	MatchWeightDesc    float64
	DetectBOMThreshold float64

	LogLevel  string
	LogFormat string
	HTTPAddr  string

	// HTTPAPIKey guards /api/v1 when non-empty.
	HTTPAPIKey string

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	MailListenerProvider     string
	MailListenerLabel        string
	MailListenerIntervalSec  int
	MailListenerFetchMax     int
	MailListenerProcessBatch int
	MailListenerAutoExport   bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:     getEnv("DB_PATH", filepath.Join(cwd, "data", "partsmatch.db")),
		RawMailDir: getEnv("MAIL_RAW_DIR", filepath.Join(cwd, "data", "raw")),
		OutputDir:  getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		PartsAPIBaseURL:    getEnv("PARTS_API_URL", "https://api.sourceparts.com/v1"),
		PartsAPIKey:        getEnv("PARTS_API_KEY", ""),
		PartsRateLimitRPS:  getEnvInt("PARTS_API_RATE_LIMIT_RPS", 10),
		PartsTimeoutMs:     getEnvInt("PARTS_API_TIMEOUT_MS", 30000),
		PartsMaxRetries:    getEnvInt("PARTS_API_MAX_RETRIES", 3),
		PartsSearchLimit:   getEnvInt("PARTS_SEARCH_LIMIT", 20),
		CacheExpiry:        getEnvDuration("CACHE_EXPIRY_HOURS", 24*time.Hour, time.Hour),
		PartsSearchDepth:   getEnv("PARTS_SEARCH_DEPTH", "standard"),
		MatchUseAPI:        getEnvBool("MATCH_USE_API", false),
		MatchValueTolPct:   getEnvFloat("MATCH_VALUE_TOLERANCE_PCT", matcher.DefaultValueTolerancePct),
		MatchWeightMPN:     getEnvFloat("MATCH_WEIGHT_MPN", 0.40),
		MatchWeightValue:   getEnvFloat("MATCH_WEIGHT_VALUE", 0.25),
		MatchWeightFP:      getEnvFloat("MATCH_WEIGHT_FOOTPRINT", 0.20),
		MatchWeightMfr:     getEnvFloat("MATCH_WEIGHT_MANUFACTURER", 0.10),
		MatchWeightDesc:    getEnvFloat("MATCH_WEIGHT_DESCRIPTION", 0.05),
		DetectBOMThreshold: getEnvFloat("DETECT_BOM_THRESHOLD", 0.45),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),

		HTTPAPIKey: getEnv("HTTP_API_KEY", ""),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		MailListenerProvider:     getEnv("MAIL_LISTENER_PROVIDER", "imap"),
		MailListenerLabel:        getEnv("MAIL_LISTENER_LABEL", "INBOX"),
		MailListenerIntervalSec:  getEnvInt("MAIL_LISTENER_INTERVAL_SEC", 60),
		MailListenerFetchMax:     getEnvInt("MAIL_LISTENER_FETCH_MAX", 20),
		MailListenerProcessBatch: getEnvInt("MAIL_LISTENER_PROCESS_BATCH", 10),
		MailListenerAutoExport:   getEnvBool("MAIL_LISTENER_AUTO_EXPORT", true),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func (c Config) MatchWeights() matcher.Weights {
	return matcher.Weights{
		matcher.FactorMPN:          c.MatchWeightMPN,
		matcher.FactorValue:        c.MatchWeightValue,
		matcher.FactorFootprint:    c.MatchWeightFP,
		matcher.FactorManufacturer: c.MatchWeightMfr,
		matcher.FactorDescription:  c.MatchWeightDesc,
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvDuration reads a plain number of units, or a Go duration string.
func getEnvDuration(key string, fallback, unit time.Duration) time.Duration {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return fallback
	}
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(n * float64(unit))
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
