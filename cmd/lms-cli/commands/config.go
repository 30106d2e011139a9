package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"snulms/lib/configutil"
	"snulms/lib/telemetry"
)

type SessionConfig struct {
	// Driver is one of "file", "sqlite" or "libsql", defaults to "file".
	Driver string `json:"driver"`
	// Path is a directory for the file driver and a dsn for the others.
	Path       string `json:"path"`
	Name       string `json:"name"`
	Passphrase string `json:"passphrase"`
}

type Config struct {
	BaseUrl          string           `json:"base_url"`
	Username         string           `json:"username"`
	Password         string           `json:"password"`
	Timezone         string           `json:"timezone"`
	RateLimit        float64          `json:"rate_limit"`
	CloudflareBypass bool             `json:"cloudflare_bypass"`
	Session          SessionConfig    `json:"session"`
	Telemetry        telemetry.Config `json:"telemetry"`
	Verbose          bool             `json:"verbose"`
}

const (
	defaultConfigName = "lms.json5"
	defaultBaseUrl    = "https://myetl.snu.ac.kr"
)

// loadConfig reads the config at `path`. The default name is also searched
// for in parent directories, a missing default config is not an error.
func loadConfig(path string) (Config, error) {
	var cfg Config
	var err error
	if path == defaultConfigName {
		cfg, err = configutil.ReadRecursively[Config](path)
		if errors.Is(err, os.ErrNotExist) {
			err = nil
		}
	} else {
		cfg, err = configutil.ReadConfig[Config](path)
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config '%s': %w", path, err)
	}

	if value := os.Getenv("LMS_BASE_URL"); value != "" {
		cfg.BaseUrl = value
	}
	if value := os.Getenv("LMS_USERNAME"); value != "" {
		cfg.Username = value
	}
	if value := os.Getenv("LMS_PASSWORD"); value != "" {
		cfg.Password = value
	}
	if value := os.Getenv("LMS_SESSION_PASSPHRASE"); value != "" {
		cfg.Session.Passphrase = value
	}

	return withDefaults(cfg)
}

func withDefaults(cfg Config) (Config, error) {
	if cfg.BaseUrl == "" {
		cfg.BaseUrl = defaultBaseUrl
	}
	if cfg.Session.Driver == "" {
		cfg.Session.Driver = "file"
	}
	if cfg.Session.Name == "" {
		cfg.Session.Name = cfg.Username
	}
	if cfg.Session.Name == "" {
		cfg.Session.Name = "default"
	}
	if cfg.Session.Path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return Config{}, err
		}
		switch cfg.Session.Driver {
		case "file":
			cfg.Session.Path = filepath.Join(dir, "snulms", "sessions")
		case "sqlite":
			cfg.Session.Path = filepath.Join(dir, "snulms", "sessions.db")
		default:
			return Config{}, fmt.Errorf("session driver '%s' needs a path", cfg.Session.Driver)
		}
	}
	return cfg, nil
}
