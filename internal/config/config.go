package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	DatabaseDriver string `mapstructure:"DATABASE_DRIVER"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	MeiliURL       string `mapstructure:"MEILI_URL"`
	MeiliMasterKey string `mapstructure:"MEILI_MASTER_KEY"`

	// Attachment blobs stay in memory unless S3Endpoint is set.
	S3Endpoint  string `mapstructure:"S3_ENDPOINT"`
	S3Region    string `mapstructure:"S3_REGION"`
	S3Bucket    string `mapstructure:"S3_BUCKET"`
	S3AccessKey string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey string `mapstructure:"S3_SECRET_KEY"`
	S3UseSSL    bool   `mapstructure:"S3_USE_SSL"`
	S3PathStyle bool   `mapstructure:"S3_PATH_STYLE"`

	HistoryDir            string `mapstructure:"PUBLICATION_HISTORY_DIR"`
	WorkflowsFile         string `mapstructure:"PUBLICATION_WORKFLOWS_FILE"`
	Language              string `mapstructure:"PUBLICATION_LANGUAGE"`
	ConfigCacheTTLSeconds int    `mapstructure:"PUBLICATION_CONFIG_CACHE_TTL_SECONDS"`
	LockTTLSeconds        int    `mapstructure:"PUBLICATION_LOCK_TTL_SECONDS"`
	Wiki                  string `mapstructure:"PUBLICATION_WIKI"`
	Actor                 string `mapstructure:"PUBLICATION_ACTOR"`
	LogLevel              string `mapstructure:"LOG_LEVEL"`
}

var defaults = map[string]any{
	"DATABASE_DRIVER":                      "sqlite3",
	"DATABASE_URL":                         "./data/publication.db",
	"REDIS_URL":                            "",
	"MEILI_URL":                            "",
	"MEILI_MASTER_KEY":                     "",
	"S3_ENDPOINT":                          "",
	"S3_REGION":                            "us-east-1",
	"S3_BUCKET":                            "publication-attachments",
	"S3_ACCESS_KEY":                        "",
	"S3_SECRET_KEY":                        "",
	"S3_USE_SSL":                           false,
	"S3_PATH_STYLE":                        true,
	"PUBLICATION_HISTORY_DIR":              "./data/history",
	"PUBLICATION_WORKFLOWS_FILE":           "",
	"PUBLICATION_LANGUAGE":                 "en",
	"PUBLICATION_CONFIG_CACHE_TTL_SECONDS": 600,
	"PUBLICATION_LOCK_TTL_SECONDS":         30,
	"PUBLICATION_WIKI":                     "xwiki",
	"PUBLICATION_ACTOR":                    "XWiki.superadmin",
	"LOG_LEVEL":                            "info",
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first; variables already set win over it.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.DatabaseDriver {
	case "pgx", "sqlite3":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be pgx or sqlite3, got %q", c.DatabaseDriver)
	}
	if strings.TrimSpace(c.Wiki) == "" {
		return fmt.Errorf("PUBLICATION_WIKI must not be empty")
	}
	return nil
}

func (c *Config) ConfigCacheTTL() time.Duration {
	return time.Duration(c.ConfigCacheTTLSeconds) * time.Second
}

func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// String lists the configuration with secrets masked.
func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "  DatabaseDriver: %s\n", c.DatabaseDriver)
	fmt.Fprintf(&sb, "  DatabaseURL: %s\n", masked(strings.Contains(c.DatabaseURL, "@"), c.DatabaseURL))
	fmt.Fprintf(&sb, "  RedisURL: %s\n", masked(strings.Contains(c.RedisURL, "@"), c.RedisURL))
	fmt.Fprintf(&sb, "  MeiliURL: %s\n", c.MeiliURL)
	fmt.Fprintf(&sb, "  MeiliMasterKey: %s\n", masked(c.MeiliMasterKey != "", ""))
	fmt.Fprintf(&sb, "  S3Endpoint: %s\n", c.S3Endpoint)
	fmt.Fprintf(&sb, "  S3Bucket: %s\n", c.S3Bucket)
	fmt.Fprintf(&sb, "  S3SecretKey: %s\n", masked(c.S3SecretKey != "", ""))
	fmt.Fprintf(&sb, "  HistoryDir: %s\n", c.HistoryDir)
	fmt.Fprintf(&sb, "  WorkflowsFile: %s\n", c.WorkflowsFile)
	fmt.Fprintf(&sb, "  Language: %s\n", c.Language)
	fmt.Fprintf(&sb, "  Wiki: %s\n", c.Wiki)
	fmt.Fprintf(&sb, "  LogLevel: %s\n", c.LogLevel)
	return sb.String()
}

func masked(secret bool, value string) string {
	if secret {
		return "********"
	}
	if value == "" {
		return "(empty)"
	}
	return value
}
