package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/kkyr/fig"
)

const (
	// EnvPrefix prefixes environment overrides of file settings, e.g. GUMROAD_DOWNLOADER_THREADS.
	EnvPrefix = "GUMROAD_DOWNLOADER"

	// BaseURL prefixes the relative download paths of content items.
	BaseURL    = "https://app.gumroad.com"
	LibraryURL = BaseURL + "/library"

	DefaultFile      = "config.json"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36 OPR/107.0.0.0"
)

// Creator selects a creator to process and names its folder.
type Creator struct {
	ID   string `fig:"id"`
	Name string `fig:"name"`
}

// Config is built once at startup and handed to every component that needs it.
type Config struct {
	// Session cookies of a logged-in storefront account.
	// GUMROAD_APP_SESSION and GUMROAD_GUID override the file values.
	AppSession string `fig:"_gumroad_app_session"`
	GUID       string `fig:"_gumroad_guid"`

	Threads   int       `fig:"threads" default:"1"`
	Folder    string    `fig:"folder"`
	DBPath    string    `fig:"db_path" default:"downloader.db"`
	UserAgent string    `fig:"user_agent"`
	Creators  []Creator `fig:"creators"`

	// Refresh and OnlySpecifiedCreators default to true, which fig cannot express for a plain bool.
	Refresh               *bool `fig:"refresh"`
	OnlySpecifiedCreators *bool `fig:"only_specified_creators"`

	CloudflareBypass bool `fig:"cloudflare_bypass"`

	ConnectTimeout time.Duration `fig:"connect_timeout" default:"30s"`
	RequestTimeout time.Duration `fig:"request_timeout" default:"60s"`
	IdleTimeout    time.Duration `fig:"idle_timeout" default:"2m"`

	LogLevel          string `fig:"log_level" default:"INFO"`
	DiscordWebhookURL string `fig:"discord_webhook_url"`
	MetricsAddress    string `fig:"metrics_address"`

	Telemetry struct {
		Enabled      bool   `fig:"enabled"`
		OTLPEndpoint string `fig:"otlp_endpoint"`
	} `fig:"telemetry"`
}

type secrets struct {
	AppSession string `envconfig:"GUMROAD_APP_SESSION"`
	GUID       string `envconfig:"GUMROAD_GUID"`
}

// LoadConfig reads the config file at path (DefaultFile in the working directory when empty),
// applies GUMROAD_DOWNLOADER_* overrides, then the session secrets from the environment or a .env file.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultFile
	}

	// A missing .env is fine; the secrets may come from the file or the real environment.
	_ = godotenv.Load()

	var cfg Config

	opts := []fig.Option{
		fig.File(filepath.Base(path)),
		fig.Dirs(filepath.Dir(path)),
		fig.UseEnv(EnvPrefix),
	}

	err := fig.Load(&cfg, opts...)
	if errors.Is(err, fig.ErrFileNotFound) {
		err = fig.Load(&cfg, fig.IgnoreFile(), fig.UseEnv(EnvPrefix))
	}

	if err != nil {
		return nil, fmt.Errorf("error loading config file %s: %w", path, err)
	}

	var env secrets
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if env.AppSession != "" {
		cfg.AppSession = env.AppSession
	}

	if env.GUID != "" {
		cfg.GUID = env.GUID
	}

	if cfg.Folder == "" {
		if cfg.Folder, err = os.Getwd(); err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports every problem that would make a run pointless.
func (c *Config) Validate() error {
	var errs []error

	if c.AppSession == "" {
		errs = append(errs, errors.New("_gumroad_app_session is required"))
	}

	if c.GUID == "" {
		errs = append(errs, errors.New("_gumroad_guid is required"))
	}

	if c.Threads < 1 {
		errs = append(errs, fmt.Errorf("threads must be at least 1, got %d", c.Threads))
	}

	if c.Folder == "" {
		errs = append(errs, errors.New("folder is required"))
	}

	for i, cr := range c.Creators {
		if cr.ID == "" {
			errs = append(errs, fmt.Errorf("creators[%d]: id is required", i))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	return nil
}

// ShouldRefresh reports whether the catalog is synchronized before downloading.
func (c *Config) ShouldRefresh() bool {
	return c.Refresh == nil || *c.Refresh
}

// OnlyConfiguredCreators reports whether downloads are limited to the creators list.
// Otherwise every creator in the catalog is processed.
func (c *Config) OnlyConfiguredCreators() bool {
	return c.OnlySpecifiedCreators == nil || *c.OnlySpecifiedCreators
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
