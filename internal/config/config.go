// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable of the capture service.
type Config struct {
	ListenAddr      string        `env:"LISTEN_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`

	VerifyBaseURL     string        `env:"VERIFY_BASE_URL" envDefault:"http://localhost:3000"`
	VerifySubjectName string        `env:"VERIFY_SUBJECT_NAME" envDefault:"string"`
	VerifyTimeout     time.Duration `env:"VERIFY_TIMEOUT" envDefault:"0s"`

	CameraDeviceID int  `env:"CAMERA_DEVICE_ID" envDefault:"0"`
	CameraWidth    int  `env:"CAMERA_WIDTH" envDefault:"1280"`
	CameraHeight   int  `env:"CAMERA_HEIGHT" envDefault:"720"`
	CameraMock     bool `env:"CAMERA_MOCK" envDefault:"false"`

	RedisAddr  string        `env:"REDIS_ADDR"`
	HandoffTTL time.Duration `env:"HANDOFF_TTL" envDefault:"15m"`

	JWTSecret   string `env:"JWT_SECRET"`
	JWTAudience string `env:"JWT_AUDIENCE"`
}

// Load parses the environment into a validated Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	u, err := url.Parse(c.VerifyBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("VERIFY_BASE_URL must be an absolute URL, got %q", c.VerifyBaseURL)
	}
	if c.VerifySubjectName == "" {
		return fmt.Errorf("VERIFY_SUBJECT_NAME must not be empty")
	}
	if c.VerifyTimeout < 0 {
		return fmt.Errorf("VERIFY_TIMEOUT must not be negative")
	}
	if c.HandoffTTL <= 0 {
		return fmt.Errorf("HANDOFF_TTL must be positive")
	}
	return nil
}
