package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// LMS_PORTAL_PASSWORD overrides portal.password.
const EnvPrefix = "LMS"

// PortalConfig describes how to reach and authenticate with the portal.
type PortalConfig struct {
	BaseURL  string `mapstructure:"base_url" yaml:"base_url" validate:"required,url"`
	Username string `mapstructure:"username" yaml:"username" validate:"required"`

	// Password may be left empty in the file; it is then read from the
	// environment or the system keyring.
	Password string `mapstructure:"password" yaml:"password,omitempty" validate:"required"`

	LoginPath  string `mapstructure:"login_path" yaml:"login_path" validate:"required,startswith=/"`
	LogoutPath string `mapstructure:"logout_path" yaml:"logout_path"`

	// SessionPath is the session introspection endpoint. Empty disables
	// introspection and verification relies on page text only.
	SessionPath string `mapstructure:"session_path" yaml:"session_path"`

	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout" validate:"min=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second" validate:"min=0"`
	LoginAttempts     int           `mapstructure:"login_attempts" yaml:"login_attempts" validate:"min=1"`
	LoginBackoff      time.Duration `mapstructure:"login_backoff" yaml:"login_backoff"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	Timezone          string        `mapstructure:"timezone" yaml:"timezone"`
}

// Location resolves Timezone, falling back to UTC when it is unset or unknown.
func (p PortalConfig) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CourseFilterConfig narrows the discovered course list.
type CourseFilterConfig struct {
	// Semester keeps only courses whose title or site id contains it.
	Semester string `mapstructure:"semester" yaml:"semester"`

	// MinLevel keeps only courses at or above this level (100, 200, ...).
	MinLevel int `mapstructure:"min_level" yaml:"min_level" validate:"min=0"`
}

// DynamoDBConfig configures the DynamoDB-backed dedup store.
type DynamoDBConfig struct {
	Table    string `mapstructure:"table" yaml:"table"`
	Region   string `mapstructure:"region" yaml:"region"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// Static keys, mostly for DynamoDB Local. Empty uses the default
	// AWS credential chain.
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
}

// StoreConfig selects and configures the dedup store backend.
type StoreConfig struct {
	Driver   string         `mapstructure:"driver" yaml:"driver" validate:"oneof=sqlite postgres dynamodb"`
	Path     string         `mapstructure:"path" yaml:"path" validate:"required_if=Driver sqlite"`
	DSN      string         `mapstructure:"dsn" yaml:"dsn,omitempty" validate:"required_if=Driver postgres"`
	DynamoDB DynamoDBConfig `mapstructure:"dynamodb" yaml:"dynamodb"`

	// CacheTTL enables an in-process lookup cache when positive.
	CacheTTL time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`

	// Retention prunes records older than this after each watch run.
	// Zero disables pruning.
	Retention time.Duration `mapstructure:"retention" yaml:"retention"`
}

// TelegramConfig is a shortcut for the most common chat channel.
type TelegramConfig struct {
	Token  string `mapstructure:"token" yaml:"token,omitempty"`
	ChatID string `mapstructure:"chat_id" yaml:"chat_id"`
}

// ResendConfig configures email delivery through Resend.
type ResendConfig struct {
	APIKey string   `mapstructure:"api_key" yaml:"api_key,omitempty"`
	From   string   `mapstructure:"from" yaml:"from"`
	To     []string `mapstructure:"to" yaml:"to"`
}

// SNSConfig configures SMS delivery through AWS SNS.
type SNSConfig struct {
	Region      string `mapstructure:"region" yaml:"region"`
	PhoneNumber string `mapstructure:"phone_number" yaml:"phone_number"`
	Endpoint    string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
}

// MailboxConfig configures delivery by appending messages to an IMAP folder.
type MailboxConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	Folder   string `mapstructure:"folder" yaml:"folder"`
	StartTLS bool   `mapstructure:"starttls" yaml:"starttls"`
	From     string `mapstructure:"from" yaml:"from"`
	To       string `mapstructure:"to" yaml:"to"`
}

// WhatsAppConfig configures delivery through the WhatsApp Cloud API.
type WhatsAppConfig struct {
	Token         string `mapstructure:"token" yaml:"token,omitempty"`
	PhoneNumberID string `mapstructure:"phone_number_id" yaml:"phone_number_id"`
	To            string `mapstructure:"to" yaml:"to"`
	APIURL        string `mapstructure:"api_url" yaml:"api_url,omitempty"`
}

// NotifyConfig selects and configures the delivery channel.
type NotifyConfig struct {
	Channel string `mapstructure:"channel" yaml:"channel" validate:"oneof=shoutrrr resend sns mailbox whatsapp"`

	// URLs are shoutrrr service URLs. A configured Telegram token adds a
	// telegram:// URL automatically.
	URLs     []string       `mapstructure:"urls" yaml:"urls"`
	Telegram TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
	Resend   ResendConfig   `mapstructure:"resend" yaml:"resend"`
	SNS      SNSConfig      `mapstructure:"sns" yaml:"sns"`
	Mailbox  MailboxConfig  `mapstructure:"mailbox" yaml:"mailbox"`
	WhatsApp WhatsAppConfig `mapstructure:"whatsapp" yaml:"whatsapp"`

	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MessagesPerSecond float64       `mapstructure:"messages_per_second" yaml:"messages_per_second" validate:"min=0"`

	// Summary sends a recap after a run that delivered more than one item.
	Summary bool `mapstructure:"summary" yaml:"summary"`
}

// LockConfig configures the cross-process run lock. An empty RedisURL
// disables locking.
type LockConfig struct {
	RedisURL string        `mapstructure:"redis_url" yaml:"redis_url,omitempty"`
	Key      string        `mapstructure:"key" yaml:"key"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// WatchConfig configures repeated runs.
type WatchConfig struct {
	Interval    time.Duration `mapstructure:"interval" yaml:"interval" validate:"min=0"`
	MetricsAddr string        `mapstructure:"metrics_addr" yaml:"metrics_addr,omitempty"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN         string  `mapstructure:"dsn" yaml:"dsn,omitempty"`
	Environment string  `mapstructure:"environment" yaml:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate" validate:"min=0,max=1"`
}

// Config is the top-level application configuration.
type Config struct {
	Portal  PortalConfig       `mapstructure:"portal" yaml:"portal"`
	Courses CourseFilterConfig `mapstructure:"courses" yaml:"courses"`
	Store   StoreConfig        `mapstructure:"store" yaml:"store"`
	Notify  NotifyConfig       `mapstructure:"notify" yaml:"notify"`
	Lock    LockConfig         `mapstructure:"lock" yaml:"lock"`
	Watch   WatchConfig        `mapstructure:"watch" yaml:"watch"`
	Log     LogConfig          `mapstructure:"log" yaml:"log"`
	Sentry  SentryConfig       `mapstructure:"sentry" yaml:"sentry"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/lms-monitor/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "lms-monitor", "config.yaml")
}

// DefaultDataPath returns the default SQLite database location.
func DefaultDataPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "lms-monitor.db")
	}
	return filepath.Join(home, ".local", "share", "lms-monitor", "sent.db")
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func setDefaults(v *viper.Viper) {
	v.SetDefault("portal.base_url", "https://sakai.ug.edu.gh")
	v.SetDefault("portal.username", "")
	v.SetDefault("portal.password", "")
	v.SetDefault("portal.login_path", "/portal/xlogin")
	v.SetDefault("portal.logout_path", "/portal/logout")
	v.SetDefault("portal.session_path", "/direct/session/current.json")
	v.SetDefault("portal.request_timeout", 30*time.Second)
	v.SetDefault("portal.requests_per_second", 5.0)
	v.SetDefault("portal.login_attempts", 3)
	v.SetDefault("portal.login_backoff", 30*time.Second)
	v.SetDefault("portal.user_agent", defaultUserAgent)
	v.SetDefault("portal.timezone", "Africa/Accra")

	v.SetDefault("courses.semester", "")
	v.SetDefault("courses.min_level", 0)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", DefaultDataPath())
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.dynamodb.table", "sent_notifications")
	v.SetDefault("store.dynamodb.region", "")
	v.SetDefault("store.dynamodb.endpoint", "")
	v.SetDefault("store.dynamodb.access_key_id", "")
	v.SetDefault("store.dynamodb.secret_access_key", "")
	v.SetDefault("store.cache_ttl", 10*time.Minute)
	v.SetDefault("store.retention", time.Duration(0))

	v.SetDefault("notify.channel", "shoutrrr")
	v.SetDefault("notify.urls", []string{})
	v.SetDefault("notify.telegram.token", "")
	v.SetDefault("notify.telegram.chat_id", "")
	v.SetDefault("notify.resend.api_key", "")
	v.SetDefault("notify.resend.from", "")
	v.SetDefault("notify.resend.to", []string{})
	v.SetDefault("notify.sns.region", "")
	v.SetDefault("notify.sns.phone_number", "")
	v.SetDefault("notify.sns.endpoint", "")
	v.SetDefault("notify.mailbox.host", "")
	v.SetDefault("notify.mailbox.port", 993)
	v.SetDefault("notify.mailbox.username", "")
	v.SetDefault("notify.mailbox.password", "")
	v.SetDefault("notify.mailbox.folder", "INBOX")
	v.SetDefault("notify.mailbox.starttls", false)
	v.SetDefault("notify.mailbox.from", "")
	v.SetDefault("notify.mailbox.to", "")
	v.SetDefault("notify.whatsapp.token", "")
	v.SetDefault("notify.whatsapp.phone_number_id", "")
	v.SetDefault("notify.whatsapp.to", "")
	v.SetDefault("notify.whatsapp.api_url", "")
	v.SetDefault("notify.timeout", 30*time.Second)
	v.SetDefault("notify.messages_per_second", 1.0)
	v.SetDefault("notify.summary", true)

	v.SetDefault("lock.redis_url", "")
	v.SetDefault("lock.key", "lms-monitor:run")
	v.SetDefault("lock.ttl", 15*time.Minute)

	v.SetDefault("watch.interval", 30*time.Minute)
	v.SetDefault("watch.metrics_addr", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")
	v.SetDefault("sentry.sample_rate", 1.0)
}

// LoadConfig reads configuration from the given YAML file path using Viper,
// applying LMS_* environment overrides (including those from a .env file
// in the working directory). A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.Portal.BaseURL = strings.TrimRight(cfg.Portal.BaseURL, "/")

	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration once secrets have been resolved.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed. Secrets are never written.
func SaveConfig(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	out := *cfg
	out.Portal.Password = ""
	out.Notify.Telegram.Token = ""
	out.Notify.Resend.APIKey = ""
	out.Notify.Mailbox.Password = ""
	out.Notify.WhatsApp.Token = ""
	out.Store.DynamoDB.SecretAccessKey = ""

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("portal", out.Portal)
	v.Set("courses", out.Courses)
	v.Set("store", out.Store)
	v.Set("notify", out.Notify)
	v.Set("lock", out.Lock)
	v.Set("watch", out.Watch)
	v.Set("log", out.Log)
	v.Set("sentry", out.Sentry)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
