package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"
)

const (
	defaultAPIBaseURL     = "https://api.mangadex.org"
	defaultUploadsBaseURL = "https://uploads.mangadex.org"
	defaultLanguage       = "en"
	defaultProfile        = "medium"
	defaultTimeout        = 10
	defaultBackoffMS      = 500
)

// Config holds runtime settings for the CLI.
//
// Environment Variables:
//   - MTCLI_HOME: data directory (default: ~/.mtcli)
//   - MTCLI_API_URL: catalog API base URL (default: https://api.mangadex.org)
//   - MTCLI_UPLOADS_URL: cover art base URL (default: https://uploads.mangadex.org)
//   - MTCLI_LANGUAGE: translated language of chapters (default: en)
//   - MTCLI_PROFILE: render detail profile, low|medium|high (default: medium)
//   - MTCLI_TIMEOUT: timeout of every remote call in seconds (default: 10)
//   - MTCLI_RETRY_BACKOFF_MS: wait before retrying a transient fetch failure (default: 500)
//   - MTCLI_PREFETCH: fetch the next page while the current one is shown (default: true)
//   - MTCLI_TOKEN: catalog session token, enables remote read marking (optional)
//   - MTCLI_LOG_LEVEL: debug|info|warn|error (default: info)
type Config struct {
	Home         string
	APIBaseURL   string
	UploadsURL   string
	Language     language.Tag
	Profile      string
	Timeout      time.Duration
	RetryBackoff time.Duration
	Prefetch     bool
	Token        string
	LogLevel     string
	Width        int // 0 means use the terminal width
}

// Option is a function type for configuring Config
type Option func(*Config)

func WithHome(home string) Option {
	return func(c *Config) {
		if strings.TrimSpace(home) != "" {
			c.Home = home
		}
	}
}

func WithProfile(profile string) Option {
	return func(c *Config) {
		if strings.TrimSpace(profile) != "" {
			c.Profile = strings.ToLower(strings.TrimSpace(profile))
		}
	}
}

func WithWidth(width int) Option {
	return func(c *Config) {
		if width > 0 {
			c.Width = width
		}
	}
}

// LoadFromEnv reads an optional .env file from the working directory and
// then builds the configuration from the environment.
func LoadFromEnv(opts ...Option) (Config, error) {
	_ = godotenv.Load()

	home := os.Getenv("MTCLI_HOME")
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve home directory: %w", err)
		}
		home = filepath.Join(userHome, ".mtcli")
	}

	lang, err := language.Parse(getEnvString("MTCLI_LANGUAGE", defaultLanguage))
	if err != nil {
		return Config{}, fmt.Errorf("MTCLI_LANGUAGE is invalid: %w", err)
	}

	cfg := Config{
		Home:         home,
		APIBaseURL:   getEnvString("MTCLI_API_URL", defaultAPIBaseURL),
		UploadsURL:   getEnvString("MTCLI_UPLOADS_URL", defaultUploadsBaseURL),
		Language:     lang,
		Profile:      strings.ToLower(getEnvString("MTCLI_PROFILE", defaultProfile)),
		Timeout:      time.Duration(getEnvInt("MTCLI_TIMEOUT", defaultTimeout)) * time.Second,
		RetryBackoff: time.Duration(getEnvInt("MTCLI_RETRY_BACKOFF_MS", defaultBackoffMS)) * time.Millisecond,
		Prefetch:     getEnvBool("MTCLI_PREFETCH", true),
		Token:        os.Getenv("MTCLI_TOKEN"),
		LogLevel:     getEnvString("MTCLI_LOG_LEVEL", "info"),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Home == "" {
		return errors.New("MTCLI_HOME is required")
	}
	if c.APIBaseURL == "" {
		return errors.New("APIBaseURL is required")
	}
	if strings.HasSuffix(c.APIBaseURL, "/") {
		return fmt.Errorf("APIBaseURL must not end with '/': %s", c.APIBaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("MTCLI_TIMEOUT must be positive: %s", c.Timeout)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("MTCLI_RETRY_BACKOFF_MS must not be negative: %s", c.RetryBackoff)
	}
	switch c.Profile {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("profile must be low, medium or high: %s", c.Profile)
	}
	return nil
}

// LanguageCode is the tag in the form the catalog expects, e.g. "en" or "pt-br".
func (c Config) LanguageCode() string {
	return strings.ToLower(c.Language.String())
}

func (c Config) ProgressPath() string { return filepath.Join(c.Home, "progress.json") }
func (c Config) CacheDir() string     { return filepath.Join(c.Home, "cache") }
func (c Config) LibraryPath() string  { return filepath.Join(c.Home, "library.db") }
func (c Config) LogPath() string      { return filepath.Join(c.Home, "mtcli.log") }
func (c Config) ExportDir() string    { return filepath.Join(c.Home, "exports") }

func getEnvString(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
