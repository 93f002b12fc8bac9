package config

import (
	"encoding/base64"
	"fmt"
)

type Config struct {
	DatabaseDSN    string
	ServerAddr     string
	SigningKey     []byte
	AllowedOrigins []string
	MigrationsDir  string
	Scheduler      SchedulerConfig
	Snapshots      SnapshotConfig
}

// SchedulerConfig controls the in-process daily rollover.
type SchedulerConfig struct {
	Enabled bool
	Spec    string
}

// SnapshotConfig points at the bucket canvas snapshots are uploaded to.
// Snapshot uploads are disabled when Bucket is empty.
type SnapshotConfig struct {
	Bucket        string
	Region        string
	Endpoint      string
	PublicBaseURL string
	UsePathStyle  bool
}

func (s SnapshotConfig) Enabled() bool {
	return s.Bucket != ""
}

type Option func(*Config)

func WithMigrationsDir(dir string) Option {
	return func(c *Config) {
		c.MigrationsDir = dir
	}
}

func WithScheduler(enabled bool, spec string) Option {
	return func(c *Config) {
		c.Scheduler = SchedulerConfig{Enabled: enabled, Spec: spec}
	}
}

func WithSnapshots(s SnapshotConfig) Option {
	return func(c *Config) {
		c.Snapshots = s
	}
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("signing secret is empty")
	}
	return key, nil
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string, opts ...Option) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	cfg := &Config{
		DatabaseDSN:    databaseDSN,
		ServerAddr:     serverAddr,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Snapshots.PublicBaseURL != "" && !cfg.Snapshots.Enabled() {
		return nil, fmt.Errorf("snapshot base URL set without a bucket")
	}

	return cfg, nil
}

// DecodeSigningKey decodes a base64 signing key as NewConfig does.
func DecodeSigningKey(base64Secret string) ([]byte, error) {
	return decodeSigningSecret(base64Secret)
}
