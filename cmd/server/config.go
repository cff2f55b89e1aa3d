package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type config struct {
	Port           string        `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
	API            apiConfig     `yaml:"api"`
	Chat           chatConfig    `yaml:"chat"`
	Image          imageConfig   `yaml:"image"`
	Session        sessionConfig `yaml:"session"`
	Log            logConfig     `yaml:"log"`
	UI             uiConfig      `yaml:"ui"`
}

type apiConfig struct {
	BaseURL string            `yaml:"baseURL"`
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout"`

	// RateLimit is the number of backend requests per second each client may send. Zero disables it.
	RateLimit float64 `yaml:"rateLimit"`
	Burst     int     `yaml:"burst"`
}

type chatConfig struct {
	TopK int `yaml:"topK"`
}

type imageConfig struct {
	TopK      int   `yaml:"topK"`
	MaxSizeMB int64 `yaml:"maxSizeMB"`
}

type sessionConfig struct {
	TTL time.Duration `yaml:"ttl"`
	Max int           `yaml:"max"`
}

type logConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type uiConfig struct {
	Title    string `yaml:"title"`
	Subtitle string `yaml:"subtitle"`
}

const (
	configDirName  = "tarimweb"
	configFileName = "config.yaml"

	envBaseURL  = "TARIM_API_BASE_URL"
	envPort     = "TARIM_PORT"
	envLogLevel = "TARIM_LOG_LEVEL"
)

func defaultConfig() config {
	return config{
		Port: "8080",
		API: apiConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 60 * time.Second,
		},
		Chat: chatConfig{
			TopK: 20,
		},
		Image: imageConfig{
			TopK:      5,
			MaxSizeMB: 10,
		},
		Session: sessionConfig{
			TTL: 2 * time.Hour,
			Max: 10000,
		},
		Log: logConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// UnmarshalYAML decodes the config on top of the defaults, so a config file only needs the keys it changes.
func (c *config) UnmarshalYAML(value *yaml.Node) error {
	type rawConfig config
	raw := rawConfig(defaultConfig())
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*c = config(raw)
	return nil
}

// loadConfig reads the config file at path. An empty path selects config.yaml in the user config directory,
// which may be absent, in which case the defaults are used. Values from the environment (and from a .env file
// in the working directory) override the file.
func loadConfig(path string) (config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()

	explicit := path != ""
	if !explicit {
		cfgDir, err := os.UserConfigDir()
		if err != nil {
			return config{}, fmt.Errorf("error getting user config dir: %w", err)
		}
		path = filepath.Join(cfgDir, configDirName, configFileName)
	}

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return config{}, fmt.Errorf("error decoding config file %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return config{}, fmt.Errorf("error opening config file: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c *config) applyEnv() {
	if v := os.Getenv(envBaseURL); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv(envPort); v != "" {
		c.Port = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		c.Log.Level = v
	}
}

func (c config) validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid api base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("api base URL must be an absolute http(s) URL, got %q", c.API.BaseURL)
	}

	if c.API.RateLimit < 0 || c.API.Burst < 0 {
		return errors.New("api rateLimit and burst must not be negative")
	}

	if c.Image.MaxSizeMB <= 0 {
		return fmt.Errorf("image maxSizeMB must be positive, got %d", c.Image.MaxSizeMB)
	}
	if c.Session.Max < 0 {
		return fmt.Errorf("session max must not be negative, got %d", c.Session.Max)
	}

	if _, err := c.Log.level(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format: %s", c.Log.Format)
	}
	return nil
}

func (l logConfig) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(l.Level))); err != nil {
		return 0, fmt.Errorf("unknown log level: %s", l.Level)
	}
	return lvl, nil
}

func (l logConfig) logger(w io.Writer) *slog.Logger {
	lvl, _ := l.level()
	opts := &slog.HandlerOptions{Level: lvl}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
