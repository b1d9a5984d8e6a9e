package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds process-level configuration for the webhook server,
// merged from an optional codexlens.yaml file and CODEXLENS_* environment
// variables.
type ServerConfig struct {
	// Port is the HTTP listen port.
	Port string `mapstructure:"port"`

	// AppID is the GitHub App identifier used as the JWT issuer.
	AppID int64 `mapstructure:"app_id"`
	// PrivateKeyPath points at the GitHub App's PEM-encoded RSA private key.
	PrivateKeyPath string `mapstructure:"private_key_path"`
	// WebhookSecret verifies webhook delivery signatures.
	WebhookSecret string `mapstructure:"webhook_secret"`

	// StorageDriver selects the persistence backend: "postgres" or "sqlite".
	StorageDriver string `mapstructure:"storage_driver"`
	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string `mapstructure:"database_url"`
	// SQLitePath is the database file for the sqlite driver.
	SQLitePath string `mapstructure:"sqlite_path"`

	// Concurrency bounds how many analyzer invocations run at once.
	Concurrency int64 `mapstructure:"concurrency"`
	// ToolTimeout bounds each analyzer invocation.
	ToolTimeout time.Duration `mapstructure:"tool_timeout"`
	// TaskTimeout bounds one full review pipeline run, retries included.
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
}

// LoadServerConfig reads configuration from codexlens.yaml (searched in the
// given paths, then the working directory) and the environment.
func LoadServerConfig(paths ...string) (*ServerConfig, error) {
	v := viper.New()

	configFile := locateConfigFile("codexlens", paths)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("codexlens")
	}

	v.SetEnvPrefix("CODEXLENS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AllowEmptyEnv(true)

	setServerDefaults(v)

	if configFile != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *ServerConfig) validate() error {
	if c.AppID == 0 {
		return fmt.Errorf("app_id is required (set CODEXLENS_APP_ID)")
	}
	if c.PrivateKeyPath == "" {
		return fmt.Errorf("private_key_path is required (set CODEXLENS_PRIVATE_KEY_PATH)")
	}
	if c.WebhookSecret == "" {
		return fmt.Errorf("webhook_secret is required (set CODEXLENS_WEBHOOK_SECRET)")
	}

	switch c.StorageDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url is required for the postgres driver")
		}
	case "sqlite":
	default:
		return fmt.Errorf("unknown storage_driver: %s (must be 'postgres' or 'sqlite')", c.StorageDriver)
	}

	return nil
}

// PrivateKey reads the App's private key from PrivateKeyPath.
func (c *ServerConfig) PrivateKey() ([]byte, error) {
	key, err := os.ReadFile(c.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	return key, nil
}

func setServerDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("storage_driver", "postgres")
	v.SetDefault("sqlite_path", "codexlens.db")
	v.SetDefault("concurrency", 4)
	v.SetDefault("tool_timeout", "30s")
	v.SetDefault("task_timeout", "10m")
}

func locateConfigFile(name string, paths []string) string {
	searchPaths := append([]string{}, paths...)
	searchPaths = append(searchPaths, ".")
	for _, dir := range searchPaths {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name+".yaml")
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}
