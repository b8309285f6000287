package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultAccessSecret  = "defaultSecret"
	DefaultRefreshSecret = "refresh_secret"
	DefaultAccessTTL     = 15 * time.Minute
	DefaultRefreshTTL    = 7 * 24 * time.Hour
)

type Config struct {
	ServiceName string
	Environment string

	ServerPort int
	LogLevel   string

	DatabaseURL string

	JWTAccessSecret  []byte
	JWTRefreshSecret []byte
	AccessTTL        time.Duration
	RefreshTTL       time.Duration

	KafkaBrokers []string

	ESURL      string
	ESUser     string
	ESPassword string
	ESIndex    string

	SentryDSN string

	AdminUsername string
	AdminPassword string
}

// Load reads the process environment once. Insecure secret defaults keep local
// development working; Validate refuses them in production.
func Load() Config {
	return Config{
		ServiceName: EnvDefault("SERVICE_NAME", "staff_api"),
		Environment: EnvDefault("APP_ENV", "development"),

		ServerPort: EnvIntDefault("SERVER_PORT", 8080),
		LogLevel:   EnvDefault("LOG_LEVEL", "info"),

		DatabaseURL: EnvDefault("DATABASE_URL", "sqlite://staff.db"),

		JWTAccessSecret:  []byte(EnvDefault("JWT_SECRET", DefaultAccessSecret)),
		JWTRefreshSecret: []byte(EnvDefault("JWT_REFRESH_TOKEN_SECRET", DefaultRefreshSecret)),
		AccessTTL:        EnvDurationDefault("JWT_ACCESS_TOKEN_EXPIRES_IN", DefaultAccessTTL),
		RefreshTTL:       EnvDurationDefault("JWT_REFRESH_TOKEN_EXPIRES_IN", DefaultRefreshTTL),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),

		ESURL:      os.Getenv("ES_URL"),
		ESUser:     os.Getenv("ES_USER"),
		ESPassword: os.Getenv("ES_PASSWORD"),
		ESIndex:    EnvDefault("ES_INDEX", "positions"),

		SentryDSN: os.Getenv("SENTRY_DSN"),

		AdminUsername: strings.TrimSpace(os.Getenv("ADMIN_USERNAME")),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func (c Config) Validate() error {
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.AccessTTL >= c.RefreshTTL {
		return errors.New("access token TTL must be shorter than refresh token TTL")
	}
	if (c.AdminUsername == "") != (c.AdminPassword == "") {
		return errors.New("ADMIN_USERNAME and ADMIN_PASSWORD are required together")
	}
	if !c.IsProduction() {
		return nil
	}

	if err := mustNonEmptyBytes(c.JWTAccessSecret, "JWT_SECRET"); err != nil {
		return err
	}
	if err := mustNonEmptyBytes(c.JWTRefreshSecret, "JWT_REFRESH_TOKEN_SECRET"); err != nil {
		return err
	}
	if string(c.JWTAccessSecret) == DefaultAccessSecret {
		return errors.New("JWT_SECRET uses the insecure default")
	}
	if string(c.JWTRefreshSecret) == DefaultRefreshSecret {
		return errors.New("JWT_REFRESH_TOKEN_SECRET uses the insecure default")
	}
	if string(c.JWTAccessSecret) == string(c.JWTRefreshSecret) {
		return errors.New("access and refresh secrets must differ")
	}
	return nil
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvDurationDefault(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// ParseDuration accepts time.ParseDuration syntax plus whole days ("7d") and
// bare seconds ("3600").
func ParseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	if days, ok := strings.CutSuffix(v, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", v)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(v)
}
