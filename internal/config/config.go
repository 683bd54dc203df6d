package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Conf holds the application configuration, making it accessible globally.
var Conf *Config

// Config struct is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Survey    SurveyConfig    `mapstructure:"survey"`
	Backup    BackupConfig    `mapstructure:"backup"`
	Admin     AdminConfig     `mapstructure:"admin"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Port          string `mapstructure:"port"`
	SessionSecret string `mapstructure:"session_secret"`
	SecureCookies bool   `mapstructure:"secure_cookies"`
}

// DatabaseConfig holds database connection settings. Driver is "postgres" or "sqlite";
// for sqlite only Path is used.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"`
}

// LoggingConfig holds settings for the logger.
type LoggingConfig struct {
	Directory  string `mapstructure:"directory"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	Console    bool   `mapstructure:"console"`
}

type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// SurveyConfig holds the rating loop settings. A zero TimeLimit disables the timer.
type SurveyConfig struct {
	ContentPath     string        `mapstructure:"content_path"`
	TimeLimit       time.Duration `mapstructure:"time_limit"`
	ExpiryPolicy    string        `mapstructure:"expiry_policy"`
	Shuffle         bool          `mapstructure:"shuffle"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`
}

type BackupConfig struct {
	LocalPath string       `mapstructure:"local_path"`
	Remote    RemoteConfig `mapstructure:"remote"`
}

// RemoteConfig points at the file in a GitHub repository that mirrors the local backup.
type RemoteConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Owner         string        `mapstructure:"owner"`
	Repo          string        `mapstructure:"repo"`
	Path          string        `mapstructure:"path"`
	Branch        string        `mapstructure:"branch"`
	Token         string        `mapstructure:"token"`
	APIURL        string        `mapstructure:"api_url"`
	RawURL        string        `mapstructure:"raw_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	CommitMessage string        `mapstructure:"commit_message"`
}

// AdminConfig holds the credentials for the results pages. An empty PasswordHash
// disables admin login.
type AdminConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

// RateLimitConfig limits resume and login attempts per client IP: Limit requests per Rate.
type RateLimitConfig struct {
	Rate      time.Duration `mapstructure:"rate"`
	Limit     uint          `mapstructure:"limit"`
	RedisAddr string        `mapstructure:"redis_addr"`
}

// setDefaults sets the default values for the configuration.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "5050")
	v.SetDefault("server.session_secret", "change-me-session-secret")
	v.SetDefault("server.secure_cookies", false)

	// Database defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "db")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "user")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "pairsurvey")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "data/sessions.db")

	// Logging defaults
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.max_size", 10)   // 10 MB
	v.SetDefault("logging.max_backups", 3) // Keep 3 backups
	v.SetDefault("logging.max_age", 7)     // 7 days
	v.SetDefault("logging.compress", true) // Compress old logs
	v.SetDefault("logging.console", true)

	v.SetDefault("catalog.path", "data/sentence_pairs.csv")

	// Survey defaults
	v.SetDefault("survey.content_path", "config/survey.yaml")
	v.SetDefault("survey.time_limit", 3*time.Hour)
	v.SetDefault("survey.expiry_policy", "advisory")
	v.SetDefault("survey.shuffle", true)
	v.SetDefault("survey.session_ttl", 7*24*time.Hour)
	v.SetDefault("survey.janitor_interval", time.Hour)

	// Backup defaults
	v.SetDefault("backup.local_path", "data/responses.csv")
	v.SetDefault("backup.remote.enabled", false)
	v.SetDefault("backup.remote.owner", "")
	v.SetDefault("backup.remote.repo", "")
	v.SetDefault("backup.remote.token", "") // prefer PAIRSURVEY_BACKUP_REMOTE_TOKEN
	v.SetDefault("backup.remote.path", "responses.csv")
	v.SetDefault("backup.remote.branch", "main")
	v.SetDefault("backup.remote.api_url", "https://api.github.com")
	v.SetDefault("backup.remote.raw_url", "https://raw.githubusercontent.com")
	v.SetDefault("backup.remote.timeout", 15*time.Second)
	v.SetDefault("backup.remote.commit_message", "Update survey responses")

	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password_hash", "")

	v.SetDefault("ratelimit.rate", time.Minute)
	v.SetDefault("ratelimit.limit", 10)
	v.SetDefault("ratelimit.redis_addr", "")
}

// Load reads config/config.yaml under projectRoot, applies defaults and PAIRSURVEY_*
// environment overrides, and stores the result in Conf. The returned viper
// instance can be passed to Watch.
func Load(projectRoot string) (*viper.Viper, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// --- File Configuration ---
	v.AddConfigPath(filepath.Join(projectRoot, "config"))
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// --- Environment Variable Binding ---
	v.SetEnvPrefix("PAIRSURVEY") // e.g., PAIRSURVEY_SERVER_PORT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// It's okay if the file doesn't exist; defaults and env vars will be used.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	c.resolve(projectRoot)
	Conf = &c
	return v, nil
}

// Watch reloads Conf when the config file changes. Settings read once at startup
// (port, database, catalog) keep their original values until restart.
func Watch(v *viper.Viper, projectRoot string, log *zap.Logger) {
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info("Configuration file changed, reloading.", zap.String("file", e.Name))
		var c Config
		if err := v.Unmarshal(&c); err != nil {
			log.Error("Error reloading configuration", zap.Error(err))
			return
		}
		if err := c.validate(); err != nil {
			log.Error("Reloaded configuration is invalid, keeping the previous one", zap.Error(err))
			return
		}
		c.resolve(projectRoot)
		Conf = &c
	})
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Survey.ExpiryPolicy {
	case "advisory", "blocking":
	default:
		return fmt.Errorf("unsupported survey.expiry_policy %q", c.Survey.ExpiryPolicy)
	}
	if c.Survey.TimeLimit < 0 {
		return fmt.Errorf("survey.time_limit must not be negative")
	}
	if r := c.Backup.Remote; r.Enabled && (r.Owner == "" || r.Repo == "" || r.Path == "") {
		return fmt.Errorf("backup.remote requires owner, repo and path when enabled")
	}
	return nil
}

// resolve makes relative file paths relative to the project root.
func (c *Config) resolve(projectRoot string) {
	for _, p := range []*string{
		&c.Logging.Directory,
		&c.Catalog.Path,
		&c.Survey.ContentPath,
		&c.Backup.LocalPath,
		&c.Database.Path,
	} {
		if *p != "" && !filepath.IsAbs(*p) && *p != ":memory:" {
			*p = filepath.Join(projectRoot, *p)
		}
	}
}
