package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Paths holds on-disk locations used across a cycle.
type Paths struct {
	DownloadDir string `mapstructure:"download_dir"`
	HistoryFile string `mapstructure:"history_file"` // defaults to <download_dir>/downloaded_files.json
	DbPath      string `mapstructure:"db_path"`      // DuckDB delivery ledger, ":memory:" allowed
	LockFile    string `mapstructure:"lock_file"`
	MetricsFile string `mapstructure:"metrics_file"` // optional node-exporter textfile
}

// Portal holds the report portal session settings.
type Portal struct {
	Enabled       bool          `mapstructure:"enabled"`
	LoginURL      string        `mapstructure:"login_url"`
	ReportsURL    string        `mapstructure:"reports_url"`
	Login         string        `mapstructure:"login"`
	Password      string        `mapstructure:"password"`
	LoginField    string        `mapstructure:"login_field"`
	PasswordField string        `mapstructure:"password_field"`
	LinkMarker    string        `mapstructure:"link_marker"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// Bundle holds the naming convention of downloaded bundles and the reports inside them.
type Bundle struct {
	Prefix       string `mapstructure:"prefix"`
	ReportSuffix string `mapstructure:"report_suffix"`
}

// SMTP holds the mail transport endpoint and credentials.
type SMTP struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	Auth     string        `mapstructure:"auth"` // login | plain
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Delivery holds batching and message settings.
type Delivery struct {
	Recipients    []string      `mapstructure:"recipients"`
	BatchSize     int           `mapstructure:"batch_size"`
	BatchDelay    time.Duration `mapstructure:"batch_delay"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	Greeting      string        `mapstructure:"greeting"`
	Signature     string        `mapstructure:"signature"`
	SkipDelivered bool          `mapstructure:"skip_delivered"`
}

// Enrichment holds toggles and limits of the HTML summary.
type Enrichment struct {
	Enabled        bool          `mapstructure:"enabled"`
	Charts         bool          `mapstructure:"charts"`
	Animated       bool          `mapstructure:"animated"`
	MaxSheets      int           `mapstructure:"max_sheets"`
	MaxTailRows    int           `mapstructure:"max_tail_rows"`
	MaxTrendPoints int           `mapstructure:"max_trend_points"`
	FrameDuration  time.Duration `mapstructure:"frame_duration"`
}

// Config holds application settings. It is built once by Load and passed by
// pointer to every component.
type Config struct {
	Paths      Paths      `mapstructure:"paths"`
	Portal     Portal     `mapstructure:"portal"`
	Bundle     Bundle     `mapstructure:"bundle"`
	SMTP       SMTP       `mapstructure:"smtp"`
	Delivery   Delivery   `mapstructure:"delivery"`
	Enrichment Enrichment `mapstructure:"enrichment"`
}

// envPrefix namespaces environment overrides, e.g. SITEREPORTS_DELIVERY_BATCH_SIZE.
const envPrefix = "SITEREPORTS"

// legacyEnv maps the variable names used by the original scripts onto config keys.
var legacyEnv = map[string]string{
	"portal.login":        "CRM_LOGIN",
	"portal.password":     "CRM_PASSWORD",
	"smtp.username":       "SMTP_EMAIL",
	"smtp.from":           "SMTP_EMAIL",
	"smtp.password":       "SMTP_PASSWORD",
	"delivery.recipients": "EMAIL_TO",
}

// Load reads defaults, the optional config file and the environment into a
// Config with valid local settings. Portal and SMTP settings are checked by
// ValidateDelivery, only where a command needs them. An explicit path must exist; without one, ./sitereports.toml
// is used when present.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		primary := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, primary, legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("sitereports")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize()

	if err := cfg.ValidateLocal(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	if abs, err := filepath.Abs(c.Paths.DownloadDir); err == nil {
		c.Paths.DownloadDir = abs
	}
	if strings.TrimSpace(c.Paths.HistoryFile) == "" {
		c.Paths.HistoryFile = filepath.Join(c.Paths.DownloadDir, DefaultHistoryFileName)
	}
	if strings.TrimSpace(c.Paths.LockFile) == "" {
		c.Paths.LockFile = filepath.Join(c.Paths.DownloadDir, DefaultLockFileName)
	}

	recipients := make([]string, 0, len(c.Delivery.Recipients))
	for _, r := range c.Delivery.Recipients {
		for _, part := range strings.Split(r, ",") {
			if part = strings.TrimSpace(part); part != "" {
				recipients = append(recipients, part)
			}
		}
	}
	c.Delivery.Recipients = recipients

	c.SMTP.Auth = strings.ToLower(strings.TrimSpace(c.SMTP.Auth))
	c.SMTP.From = strings.TrimSpace(c.SMTP.From)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	return errors.Join(c.ValidateLocal(), c.ValidateDelivery(true))
}

// ValidateLocal checks the settings every command relies on: paths, bundle
// naming, batching and enrichment limits.
func (c *Config) ValidateLocal() error {
	var errs []error
	if c.Paths.DownloadDir == "" {
		errs = append(errs, errors.New("paths.download_dir is required"))
	}
	if c.Paths.DbPath == "" {
		errs = append(errs, errors.New("paths.db_path is required"))
	}
	if c.Bundle.Prefix == "" {
		errs = append(errs, errors.New("bundle.prefix is required"))
	}
	if c.Bundle.ReportSuffix == "" {
		errs = append(errs, errors.New("bundle.report_suffix is required"))
	}
	if c.Delivery.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("delivery.batch_size must be at least 1, got %d", c.Delivery.BatchSize))
	}
	if c.Delivery.BatchDelay < 0 {
		errs = append(errs, errors.New("delivery.batch_delay must not be negative"))
	}
	if c.Enrichment.MaxSheets < 0 || c.Enrichment.MaxTailRows < 0 {
		errs = append(errs, errors.New("enrichment limits must not be negative"))
	}
	if c.Enrichment.Charts && c.Enrichment.MaxTrendPoints < 3 {
		errs = append(errs, fmt.Errorf("enrichment.max_trend_points must be at least 3 when charts are enabled, got %d", c.Enrichment.MaxTrendPoints))
	}
	if c.Enrichment.Animated && c.Enrichment.FrameDuration <= 0 {
		errs = append(errs, errors.New("enrichment.frame_duration must be positive when animation is enabled"))
	}
	return errors.Join(errs...)
}

// ValidateDelivery checks what a delivery cycle needs: SMTP, recipients and,
// when portal is true and retrieval is enabled, the portal credentials.
func (c *Config) ValidateDelivery(portal bool) error {
	var errs []error
	if portal && c.Portal.Enabled {
		if c.Portal.ReportsURL == "" {
			errs = append(errs, errors.New("portal.reports_url is required when the portal is enabled"))
		}
		if c.Portal.Login == "" || c.Portal.Password == "" {
			errs = append(errs, errors.New("portal.login and portal.password are required when the portal is enabled"))
		}
	}
	if c.SMTP.Host == "" {
		errs = append(errs, errors.New("smtp.host is required"))
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("smtp.port %d is out of range", c.SMTP.Port))
	}
	if c.SMTP.From == "" {
		errs = append(errs, errors.New("smtp.from is required"))
	}
	if c.SMTP.Auth != "login" && c.SMTP.Auth != "plain" {
		errs = append(errs, fmt.Errorf("smtp.auth %q must be login or plain", c.SMTP.Auth))
	}
	if len(c.Delivery.Recipients) == 0 {
		errs = append(errs, errors.New("delivery.recipients needs at least one address"))
	}
	return errors.Join(errs...)
}

// EnsureDirectories creates the directories a cycle writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DownloadDir, filepath.Dir(c.Paths.HistoryFile), filepath.Dir(c.Paths.LockFile)}
	if c.Paths.DbPath != ":memory:" {
		dirs = append(dirs, filepath.Dir(c.Paths.DbPath))
	}
	if c.Paths.MetricsFile != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.MetricsFile))
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}
	return nil
}
