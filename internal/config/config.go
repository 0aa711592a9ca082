package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile    = "config.yaml"
	DefaultEnvFile       = ".env"
	DefaultStorageDriver = "sqlite"
	DefaultStoragePath   = ".flaircheck/flaircheck.db"
	DefaultRedisKey      = "flaircheck:title_checks"
	DefaultFetchLimit    = 100
	DefaultConcurrency   = 8
	DefaultCron          = "@every 5m"
	DefaultUserAgent     = "flaircheck/1.0"
	DefaultBaseURL       = "https://oauth.reddit.com"
	DefaultTokenURL      = "https://www.reddit.com/api/v1/access_token"
	DefaultThrottle      = 1 * time.Second
	DefaultTimeout       = 30 * time.Second
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "console"
	DefaultTitleRegex    = `^([a-z]{3}\s+\d{1,2}\s+\d{1,2}:\d{2})`
	DefaultFormatMessage = "Your post has been removed because the title does not follow the required format: `MMM DD HH:mm UTC [Region] - Title`."
	DefaultTimeMessage   = "Your post has been removed because the scheduled time in the title is in the past."
)

var (
	DefaultGrace     = Span{Value: 2, Unit: UnitMinutes}
	DefaultRetention = Span{Value: 6, Unit: UnitMonths}
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "1s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Subreddit string         `yaml:"subreddit" validate:"required"`
	Reddit    RedditConfig   `yaml:"reddit"`
	Fetch     FetchConfig    `yaml:"fetch"`
	Flairs    FlairsConfig   `yaml:"flairs"`
	Title     TitleConfig    `yaml:"title"`
	Retention Span           `yaml:"retention"`
	Storage   StorageConfig  `yaml:"storage"`
	Schedule  ScheduleConfig `yaml:"schedule"`
	Pipeline  PipelineConfig `yaml:"pipeline"`
	Log       LogConfig      `yaml:"log"`
}

type RedditConfig struct {
	ClientIDEnv     string   `yaml:"client_id_env"`
	ClientSecretEnv string   `yaml:"client_secret_env"`
	UsernameEnv     string   `yaml:"username_env"`
	PasswordEnv     string   `yaml:"password_env"`
	UserAgent       string   `yaml:"user_agent" validate:"required"`
	BaseURL         string   `yaml:"base_url" validate:"required,url"`
	TokenURL        string   `yaml:"token_url" validate:"required,url"`
	Throttle        Duration `yaml:"throttle"`
	Timeout         Duration `yaml:"timeout"`

	// Resolved from env vars at load time.
	ClientID     string `yaml:"-"`
	ClientSecret string `yaml:"-"`
	Username     string `yaml:"-"`
	Password     string `yaml:"-"`
}

// CheckCredentials reports which OAuth credentials are missing after env resolution.
func (rc RedditConfig) CheckCredentials() error {
	var missing []string
	if rc.ClientID == "" {
		missing = append(missing, "client id ("+envName(rc.ClientIDEnv)+")")
	}
	if rc.ClientSecret == "" {
		missing = append(missing, "client secret ("+envName(rc.ClientSecretEnv)+")")
	}
	if rc.Username == "" {
		missing = append(missing, "username ("+envName(rc.UsernameEnv)+")")
	}
	if rc.Password == "" {
		missing = append(missing, "password ("+envName(rc.PasswordEnv)+")")
	}
	if len(missing) > 0 {
		return fmt.Errorf("reddit credentials missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

func envName(name string) string {
	if name == "" {
		return "env not configured"
	}
	return "$" + name
}

type FetchConfig struct {
	Limit int `yaml:"limit" validate:"min=1,max=1000"`
}

// Flair is a link flair: CSS class, display text, and the term used to search for it.
type Flair struct {
	Class  string `yaml:"class" validate:"required"`
	Text   string `yaml:"text" validate:"required"`
	Search string `yaml:"search"`
}

type FlairsConfig struct {
	Upcoming  Flair    `yaml:"upcoming"`
	Completed Flair    `yaml:"completed"`
	Invalid   string   `yaml:"invalid"`
	Ignore    []string `yaml:"ignore"`
}

// Excluded returns every flair search term an unflaired-post query must exclude,
// configured ignores first.
func (fc FlairsConfig) Excluded() []string {
	terms := make([]string, 0, len(fc.Ignore)+3)
	for _, term := range append(append([]string{}, fc.Ignore...), fc.Upcoming.Search, fc.Invalid, fc.Completed.Search) {
		if strings.TrimSpace(term) != "" {
			terms = append(terms, term)
		}
	}
	return terms
}

type TitleConfig struct {
	Regex         string `yaml:"regex" validate:"required"`
	FormatMessage string `yaml:"format_message" validate:"required"`
	TimeMessage   string `yaml:"time_message" validate:"required"`
	Grace         Span   `yaml:"grace"`
}

type StorageConfig struct {
	Driver string      `yaml:"driver" validate:"oneof=sqlite postgres redis"`
	Path   string      `yaml:"path"`
	DSNEnv string      `yaml:"dsn_env"`
	Redis  RedisConfig `yaml:"redis"`

	// Resolved from env var at load time.
	DSN string `yaml:"-"`
}

type RedisConfig struct {
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db" validate:"min=0"`
	Key         string `yaml:"key"`

	// Resolved from env var at load time.
	Password string `yaml:"-"`
}

type ScheduleConfig struct {
	Cron         string `yaml:"cron"`
	RunAtStartup bool   `yaml:"run_at_startup"`
}

type PipelineConfig struct {
	Concurrency int `yaml:"concurrency" validate:"min=1"`
}

type LogConfig struct {
	Level      string `yaml:"level" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" validate:"oneof=console json"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"min=0"`
	MaxBackups int    `yaml:"max_backups" validate:"min=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"min=0"`
}

// Load reads config.yaml from dir, loads .env files, applies defaults, resolves env vars, and validates.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := loadEnvFiles(dir); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	resolveEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// loadEnvFiles loads .env from the config dir and the working directory.
// Variables already present in the environment are never overwritten.
func loadEnvFiles(dir string) error {
	for _, path := range []string{filepath.Join(dir, DefaultEnvFile), DefaultEnvFile} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Reddit.UserAgent == "" {
		cfg.Reddit.UserAgent = DefaultUserAgent
	}
	if cfg.Reddit.BaseURL == "" {
		cfg.Reddit.BaseURL = DefaultBaseURL
	}
	if cfg.Reddit.TokenURL == "" {
		cfg.Reddit.TokenURL = DefaultTokenURL
	}
	if cfg.Reddit.Throttle.Duration == 0 {
		cfg.Reddit.Throttle.Duration = DefaultThrottle
	}
	if cfg.Reddit.Timeout.Duration == 0 {
		cfg.Reddit.Timeout.Duration = DefaultTimeout
	}
	if cfg.Fetch.Limit == 0 {
		cfg.Fetch.Limit = DefaultFetchLimit
	}
	if cfg.Flairs.Upcoming.Search == "" {
		cfg.Flairs.Upcoming.Search = cfg.Flairs.Upcoming.Class
	}
	if cfg.Flairs.Completed.Search == "" {
		cfg.Flairs.Completed.Search = cfg.Flairs.Completed.Class
	}
	if cfg.Title.Regex == "" {
		cfg.Title.Regex = DefaultTitleRegex
	}
	if cfg.Title.FormatMessage == "" {
		cfg.Title.FormatMessage = DefaultFormatMessage
	}
	if cfg.Title.TimeMessage == "" {
		cfg.Title.TimeMessage = DefaultTimeMessage
	}
	if cfg.Title.Grace.IsZero() {
		cfg.Title.Grace = DefaultGrace
	}
	cfg.Title.Grace.Unit = normalizeUnit(cfg.Title.Grace.Unit)
	if cfg.Retention.IsZero() {
		cfg.Retention = DefaultRetention
	}
	cfg.Retention.Unit = normalizeUnit(cfg.Retention.Unit)
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DefaultStorageDriver
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Storage.Redis.Key == "" {
		cfg.Storage.Redis.Key = DefaultRedisKey
	}
	if cfg.Schedule.Cron == "" {
		cfg.Schedule.Cron = DefaultCron
	}
	if cfg.Pipeline.Concurrency == 0 {
		cfg.Pipeline.Concurrency = DefaultConcurrency
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

func resolveEnv(cfg *Config) {
	if cfg.Reddit.ClientIDEnv != "" {
		cfg.Reddit.ClientID = os.Getenv(cfg.Reddit.ClientIDEnv)
	}
	if cfg.Reddit.ClientSecretEnv != "" {
		cfg.Reddit.ClientSecret = os.Getenv(cfg.Reddit.ClientSecretEnv)
	}
	if cfg.Reddit.UsernameEnv != "" {
		cfg.Reddit.Username = os.Getenv(cfg.Reddit.UsernameEnv)
	}
	if cfg.Reddit.PasswordEnv != "" {
		cfg.Reddit.Password = os.Getenv(cfg.Reddit.PasswordEnv)
	}
	if cfg.Storage.DSNEnv != "" {
		cfg.Storage.DSN = os.Getenv(cfg.Storage.DSNEnv)
	}
	if cfg.Storage.Redis.PasswordEnv != "" {
		cfg.Storage.Redis.Password = os.Getenv(cfg.Storage.Redis.PasswordEnv)
	}
}

var structValidator = validator.New()

func validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		return err
	}

	re, err := regexp.Compile("(?i)" + cfg.Title.Regex)
	if err != nil {
		return fmt.Errorf("title.regex: %w", err)
	}
	if n := re.NumSubexp(); n != 1 {
		return fmt.Errorf("title.regex: want exactly one capture group, got %d", n)
	}

	if cfg.Title.Grace.Value <= 0 {
		return errors.New("title.grace: value must be positive")
	}
	if cfg.Retention.Value <= 0 {
		return errors.New("retention: value must be positive")
	}

	switch cfg.Storage.Driver {
	case "postgres":
		if cfg.Storage.DSN == "" {
			return fmt.Errorf("storage: postgres driver needs a DSN (%s)", envName(cfg.Storage.DSNEnv))
		}
	case "redis":
		if cfg.Storage.Redis.Addr == "" {
			return errors.New("storage.redis.addr: required for redis driver")
		}
	}

	if _, err := cron.ParseStandard(cfg.Schedule.Cron); err != nil {
		return fmt.Errorf("schedule.cron: %w", err)
	}

	return nil
}
