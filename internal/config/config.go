// Package config loads and validates the qdata YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/qdata-project/qdata/internal/logger"
)

// Qdata is the top-level configuration.
type Qdata struct {
	Server   Server        `yaml:"server"`
	Data     Data          `yaml:"data"`
	Auth     Auth          `yaml:"auth"`
	Log      logger.Config `yaml:"log"`
	Audit    Audit         `yaml:"audit"`
	Alerting Alerting      `yaml:"alerting"`
}

type Server struct {
	Host      string    `yaml:"host"`
	Port      int       `yaml:"port"`
	RateLimit RateLimit `yaml:"rate_limit"`
}

// RateLimit configures the request-level token bucket in front of the API.
// This is distinct from the login lockout limiter configured under Auth.
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type Data struct {
	DatabaseFile string `yaml:"database_file"`
}

// Auth holds the login and session policy knobs.
type Auth struct {
	MaxLoginAttempts  int           `yaml:"max_login_attempts"`
	AttemptWindow     time.Duration `yaml:"attempt_window"`
	LockoutDuration   time.Duration `yaml:"lockout_duration"`
	SessionTTL        time.Duration `yaml:"session_ttl"`
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
}

type Audit struct {
	Path     string             `yaml:"path"`
	Rotation logger.LogRotation `yaml:"rotation"`
}

// Alerting holds SMTP settings for security alert emails.
type Alerting struct {
	Enabled   bool     `yaml:"enabled"`
	SMTPHost  string   `yaml:"smtp_host"`
	SMTPPort  int      `yaml:"smtp_port"`
	FromEmail string   `yaml:"from_email"`
	FromPass  string   `yaml:"from_password"`
	ToEmails  []string `yaml:"to_emails"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Qdata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Qdata
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config in %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Qdata) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimit.RequestsPerSecond == 0 {
		c.Server.RateLimit.RequestsPerSecond = 20
	}
	if c.Server.RateLimit.Burst == 0 {
		c.Server.RateLimit.Burst = 50
	}
	if c.Data.DatabaseFile == "" {
		c.Data.DatabaseFile = "data/qdata.db"
	}
	if c.Auth.MaxLoginAttempts == 0 {
		c.Auth.MaxLoginAttempts = 5
	}
	if c.Auth.AttemptWindow == 0 {
		c.Auth.AttemptWindow = 15 * time.Minute
	}
	if c.Auth.LockoutDuration == 0 {
		c.Auth.LockoutDuration = 15 * time.Minute
	}
	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = 24 * time.Hour
	}
	if c.Auth.InactivityTimeout == 0 {
		c.Auth.InactivityTimeout = 15 * time.Minute
	}
	if c.Auth.SweepInterval == 0 {
		c.Auth.SweepInterval = time.Hour
	}
	if c.Audit.Path == "" {
		c.Audit.Path = "data/security-events.log"
	}
}

func (c *Qdata) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	if c.Auth.MaxLoginAttempts < 1 {
		return fmt.Errorf("max_login_attempts must be positive")
	}
	if c.Auth.SessionTTL <= c.Auth.InactivityTimeout {
		return fmt.Errorf("session_ttl must exceed inactivity_timeout")
	}
	if c.Alerting.Enabled {
		if c.Alerting.SMTPHost == "" || c.Alerting.FromEmail == "" || len(c.Alerting.ToEmails) == 0 {
			return fmt.Errorf("alerting enabled but smtp_host, from_email, or to_emails missing")
		}
	}
	return nil
}
