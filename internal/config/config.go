package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration sourced from environment variables.
type Config struct {
	Environment  string
	HTTPPort     string
	DatabasePath string
	LogDir       string
	Debug        bool

	JWTSecret  string
	SessionTTL time.Duration

	// AdminAllowList is a list of IPs or CIDRs allowed to reach the console.
	// Empty means everyone.
	AdminAllowList []string

	// Login and MFA verification throttling, per client IP.
	LoginRatePerMinute int
	LoginRateBurst     int

	MFA       MFAConfig
	Security  SecurityConfig
	Alerts    AlertConfig
	Bootstrap BootstrapConfig
}

// MFAConfig controls TOTP enrollment.
type MFAConfig struct {
	Issuer string
}

// SecurityConfig holds the suspicious-login detector defaults.
type SecurityConfig struct {
	SuspiciousWindow    time.Duration
	SuspiciousThreshold int
}

// AlertConfig drives the license-expiry scan and outbound alert delivery.
type AlertConfig struct {
	Store             string // "gorm" or "memory"
	ScanInterval      time.Duration
	ScanTimeout       time.Duration
	ExpiryHorizon     time.Duration
	NotifyURLs        []string
	NotifyMinSeverity string
	ScanOnStartup     bool
}

// BootstrapConfig describes the first super admin created by the seed command.
type BootstrapConfig struct {
	Email    string
	Password string
	Name     string
}

// Load reads env vars and falls back to defaults so the server can boot with zero configuration.
func Load() (Config, error) {
	cfg := Config{
		Environment:  getEnv("CP_ENV", "development"),
		HTTPPort:     getEnv("CP_HTTP_PORT", "8080"),
		DatabasePath: getEnv("CP_DB_PATH", filepath.Join("data", "controlplane.db")),
		LogDir:       getEnv("CP_LOG_DIR", filepath.Join("data", "logs")),
		Debug:        getEnvBool("CP_DEBUG", false),

		JWTSecret:  getEnv("CP_JWT_SECRET", ""),
		SessionTTL: getEnvDuration("CP_SESSION_TTL", 12*time.Hour),

		AdminAllowList: getEnvList("CP_ADMIN_ALLOWLIST"),

		LoginRatePerMinute: getEnvInt("CP_LOGIN_RATE_PER_MINUTE", 10),
		LoginRateBurst:     getEnvInt("CP_LOGIN_RATE_BURST", 5),

		MFA: MFAConfig{
			Issuer: getEnv("CP_MFA_ISSUER", "Tillpoint Control Plane"),
		},
		Security: SecurityConfig{
			SuspiciousWindow:    getEnvDuration("CP_SUSPICIOUS_WINDOW", 24*time.Hour),
			SuspiciousThreshold: getEnvInt("CP_SUSPICIOUS_THRESHOLD", 5),
		},
		Alerts: AlertConfig{
			Store:             getEnv("CP_ALERT_STORE", "gorm"),
			ScanInterval:      getEnvDuration("CP_LICENSE_SCAN_INTERVAL", time.Hour),
			ScanTimeout:       getEnvDuration("CP_LICENSE_SCAN_TIMEOUT", 30*time.Second),
			ExpiryHorizon:     getEnvDuration("CP_LICENSE_EXPIRY_HORIZON", 7*24*time.Hour),
			NotifyURLs:        getEnvList("CP_ALERT_NOTIFY_URLS"),
			NotifyMinSeverity: getEnv("CP_ALERT_NOTIFY_MIN_SEVERITY", "error"),
			ScanOnStartup:     getEnvBool("CP_LICENSE_SCAN_ON_STARTUP", true),
		},
		Bootstrap: BootstrapConfig{
			Email:    getEnv("CP_BOOTSTRAP_EMAIL", ""),
			Password: getEnv("CP_BOOTSTRAP_PASSWORD", ""),
			Name:     getEnv("CP_BOOTSTRAP_NAME", "Administrator"),
		},
	}

	if cfg.JWTSecret == "" {
		if cfg.IsProduction() {
			return Config{}, fmt.Errorf("CP_JWT_SECRET is required in production")
		}
		cfg.JWTSecret = "development-only-secret"
	}
	if cfg.Alerts.Store != "gorm" && cfg.Alerts.Store != "memory" {
		return Config{}, fmt.Errorf("CP_ALERT_STORE must be gorm or memory, got %q", cfg.Alerts.Store)
	}
	if cfg.Alerts.ScanInterval <= 0 || cfg.Alerts.ScanTimeout <= 0 {
		return Config{}, fmt.Errorf("license scan interval and timeout must be positive")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

// IsProduction reports whether the service runs with production defaults.
func (c Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(val, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
