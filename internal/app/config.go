package app

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/uttal/internal/scoring"
)

type Config struct {
	Server struct {
		Port       string `toml:"port"`
		EnableAuth bool   `toml:"enable_auth"`
	} `toml:"server"`

	Auth struct {
		JWTSecret      string `toml:"jwt_secret"`
		TokenTTLHours  int    `toml:"token_ttl_hours"`
		TokenHeader    string `toml:"token_header"`
		EnableRegistry bool   `toml:"enable_registry"`
		RedisURL       string `toml:"redis_url"`
	} `toml:"auth"`

	Database struct {
		DSN           string `toml:"dsn"`
		MigrationsDir string `toml:"migrations_dir"`
	} `toml:"database"`

	Uploads struct {
		Dir       string `toml:"dir"`
		MaxSizeMB int64  `toml:"max_size_mb"`
	} `toml:"uploads"`

	Scoring struct {
		Provider string            `toml:"provider"` // "tencent" or "mock"
		Tencent  scoring.SOEConfig `toml:"tencent"`
	} `toml:"scoring"`

	Stats struct {
		DefaultRangeDays int `toml:"default_range_days"`
	} `toml:"stats"`

	Export struct {
		Schedule        string `toml:"schedule"`
		RebuildSchedule string `toml:"rebuild_schedule"`
		CredentialsPath string `toml:"credentials_path"`
		SheetID         string `toml:"sheet_id"`
		SheetName       string `toml:"sheet_name"`
		TeacherUsername string `toml:"teacher_username"`
		RangeDays       int    `toml:"range_days"`
	} `toml:"export"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf(
			"error reading config file %s\n> Error: %w\n> Content:\n%s",
			path,
			err,
			string(data),
		)
	}

	config.applyEnvOverrides()

	if config.Server.Port == "" {
		return nil, fmt.Errorf("Server port is not specified in config, use a value like :9999")
	}
	if config.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT secret is not configured, set auth.jwt_secret or JWT_SECRET")
	}
	if config.Auth.TokenTTLHours <= 0 {
		config.Auth.TokenTTLHours = 24
	}
	if config.Auth.TokenHeader == "" {
		config.Auth.TokenHeader = "Authorization"
	}
	if config.Uploads.Dir == "" {
		config.Uploads.Dir = "./uploads"
	}
	if config.Uploads.MaxSizeMB <= 0 {
		config.Uploads.MaxSizeMB = 10
	}
	if config.Stats.DefaultRangeDays <= 0 {
		config.Stats.DefaultRangeDays = 30
	}

	logger.Debug.Printf("Loaded scoring config: provider=%s region=%s", config.Scoring.Provider, config.Scoring.Tencent.Region)

	return &config, nil
}

// applyEnvOverrides lets secrets come from the environment so the toml
// file can be committed without them.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Auth.RedisURL = v
	}
	if v := os.Getenv("TENCENT_APP_ID"); v != "" {
		c.Scoring.Tencent.AppID = v
	}
	if v := os.Getenv("TENCENT_SECRET_ID"); v != "" {
		c.Scoring.Tencent.SecretID = v
	}
	if v := os.Getenv("TENCENT_SECRET_KEY"); v != "" {
		c.Scoring.Tencent.SecretKey = v
	}
}
