package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Local slot backends.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendBadger = "badger"
	BackendS3     = "s3"
)

// DefaultSlotKey is the key the local list is stored under.
const DefaultSlotKey = "finishedList"

// Client is the configuration of the command line client.
type Client struct {
	// ServerURL of the remote items API. Empty keeps the client in local
	// mode even when a session file exists.
	ServerURL   string      `yaml:"server_url"`
	SessionPath string      `yaml:"session_path"`
	Local       LocalConfig `yaml:"local"`
	Logging     LogConfig   `yaml:"logging"`
}

type LocalConfig struct {
	Backend   string       `yaml:"backend"` // file, redis, badger, s3
	Key       string       `yaml:"key"`
	Path      string       `yaml:"path"`
	RedisURL  string       `yaml:"redis_url"`
	BadgerDir string       `yaml:"badger_dir"`
	S3        ObjectConfig `yaml:"s3"`
}

type ObjectConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func DefaultClient() *Client {
	data := dataDir()
	return &Client{
		ServerURL:   "",
		SessionPath: filepath.Join(configDir(), "session.yaml"),
		Local: LocalConfig{
			Backend:   BackendFile,
			Key:       DefaultSlotKey,
			Path:      filepath.Join(data, DefaultSlotKey+".json"),
			BadgerDir: filepath.Join(data, "badger"),
			S3:        ObjectConfig{Bucket: "finished"},
		},
		Logging: LogConfig{Level: "warn", Format: "console"},
	}
}

// ClientPath returns $FINISHED_CONFIG or ~/.config/finished/config.yaml.
func ClientPath() string {
	if path := os.Getenv("FINISHED_CONFIG"); path != "" {
		return path
	}
	return filepath.Join(configDir(), "config.yaml")
}

// LoadClient reads the client configuration from path. A missing file yields
// the defaults. Environment overrides are applied either way.
func LoadClient(path string) (*Client, error) {
	cfg := DefaultClient()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Client) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Client) Validate() error {
	switch c.Local.Backend {
	case BackendFile, BackendRedis, BackendBadger, BackendS3:
	default:
		return fmt.Errorf("unknown local backend %q", c.Local.Backend)
	}
	if c.Local.Key == "" {
		c.Local.Key = DefaultSlotKey
	}
	return nil
}

func (c *Client) applyEnvOverrides() {
	if url := os.Getenv("FINISHED_SERVER_URL"); url != "" {
		c.ServerURL = url
	}
	if path := os.Getenv("FINISHED_SESSION_FILE"); path != "" {
		c.SessionPath = path
	}
	if backend := os.Getenv("FINISHED_LOCAL_BACKEND"); backend != "" {
		c.Local.Backend = backend
	}
	if path := os.Getenv("FINISHED_LOCAL_PATH"); path != "" {
		c.Local.Path = path
	}
	if url := os.Getenv("FINISHED_LOCAL_REDIS_URL"); url != "" {
		c.Local.RedisURL = url
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

func configDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "finished")
	}
	return ".finished"
}

func dataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "finished")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "finished")
	}
	return ".finished"
}
