package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/shotscan/internal/common"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config is the resolved application configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Sheets  SheetsConfig  `mapstructure:"sheets"`
	Source  SourceConfig  `mapstructure:"source"`
	Store   StoreConfig   `mapstructure:"store"`
	Scan    ScanConfig    `mapstructure:"scan"`
	DataDir string        `mapstructure:"data_dir" validate:"required"`
	OCR     OCRConfig     `mapstructure:"ocr"`
	Watch   WatchConfig   `mapstructure:"watch"`
	Detect  DetectConfig  `mapstructure:"detect"`
	TUI     TUIConfig     `mapstructure:"tui"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=file sqlite"`
	// Path overrides the default location under DataDir.
	Path string `mapstructure:"path"`
}

// SourceConfig describes the image library.
type SourceConfig struct {
	Root       string   `mapstructure:"root"`
	Extensions []string `mapstructure:"extensions" validate:"dive,startswith=."`
}

// OCRConfig configures tesseract.
type OCRConfig struct {
	Variables map[string]string `mapstructure:"variables"`
	Languages []string          `mapstructure:"languages" validate:"min=1,dive,required"`
	PSM       int               `mapstructure:"psm" validate:"gte=0,lte=13"`
}

// DetectConfig configures identifier matching.
type DetectConfig struct {
	MatchTimeout time.Duration `mapstructure:"match_timeout" validate:"gt=0"`
}

// ScanConfig configures batch processing.
type ScanConfig struct {
	DefaultCategory string `mapstructure:"default_category" validate:"required"`
}

// WatchConfig configures the watch command.
type WatchConfig struct {
	// Rescan is a cron spec for periodic full rescans. Empty disables them.
	Rescan   string        `mapstructure:"rescan"`
	Debounce time.Duration `mapstructure:"debounce" validate:"gte=0"`
}

// TUIConfig configures the interactive scan monitor.
type TUIConfig struct {
	Theme string `mapstructure:"theme" validate:"oneof=default catppuccin-mocha"`
}

// SheetsConfig holds Google Sheets credentials and target.
type SheetsConfig struct {
	ClientID           string `mapstructure:"client_id"`
	ClientSecret       string `mapstructure:"client_secret"`
	RefreshToken       string `mapstructure:"refresh_token"`
	TokenFile          string `mapstructure:"token_file"`
	ServiceAccountPath string `mapstructure:"service_account_path"`
	SpreadsheetID      string `mapstructure:"spreadsheet_id"`
	SpreadsheetName    string `mapstructure:"spreadsheet_name"`
	BatchSize          int    `mapstructure:"batch_size" validate:"gte=0"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "~/.local/share/shotscan")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("source.root", ".")
	v.SetDefault("source.extensions", []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"})
	v.SetDefault("ocr.languages", []string{"eng", "jpn"})
	v.SetDefault("ocr.psm", 3)
	v.SetDefault("detect.match_timeout", 2*time.Second)
	v.SetDefault("scan.default_category", "Unknown")
	v.SetDefault("watch.debounce", 2*time.Second)
	v.SetDefault("tui.theme", "default")
	v.SetDefault("sheets.spreadsheet_name", "Shotscan Identifiers")
}

// Load resolves the configuration held by v, expands paths and validates it.
// Validation failures wrap common.ErrInvalidConfig.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
	}

	cfg.DataDir = ExpandPath(cfg.DataDir)
	cfg.Store.Path = ExpandPath(cfg.Store.Path)
	cfg.Source.Root = ExpandPath(cfg.Source.Root)
	cfg.Sheets.TokenFile = ExpandPath(cfg.Sheets.TokenFile)
	cfg.Sheets.ServiceAccountPath = ExpandPath(cfg.Sheets.ServiceAccountPath)
	for i, ext := range cfg.Source.Extensions {
		cfg.Source.Extensions[i] = strings.ToLower(ext)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints and the rescan schedule.
func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		return formatValidationError(err)
	}
	if c.Watch.Rescan != "" {
		if _, err := cron.ParseStandard(c.Watch.Rescan); err != nil {
			return fmt.Errorf("%w: watch.rescan: %v", common.ErrInvalidConfig, err)
		}
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("mapstructure")
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
	}

	messages := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		// Namespace is "Config.ocr.languages[0]"; drop the root type.
		field := e.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		messages = append(messages, field+" "+friendlyMessage(e))
	}
	sort.Strings(messages)
	return fmt.Errorf("%w: %s", common.ErrInvalidConfig, strings.Join(messages, "; "))
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + e.Param()
	case "min":
		return "must have at least " + e.Param() + " entries"
	case "startswith":
		return "must start with " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	default:
		return "is invalid"
	}
}

// RecordsPath is where processed items are stored for the configured backend.
func (c *Config) RecordsPath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	if c.Store.Backend == BackendSQLite {
		return filepath.Join(c.DataDir, "processed.db")
	}
	return filepath.Join(c.DataDir, "processed.json")
}

// PatternsPath is the pattern catalog document.
func (c *Config) PatternsPath() string {
	return filepath.Join(c.DataDir, "patterns.json")
}

// SearchDomainsPath is the search domain document.
func (c *Config) SearchDomainsPath() string {
	return filepath.Join(c.DataDir, "search_domains.json")
}

// CheckpointsDir holds named snapshots of the data files.
func (c *Config) CheckpointsDir() string {
	return filepath.Join(c.DataDir, "checkpoints")
}

// TokenFile is where the Google OAuth2 token is kept.
func (c *Config) TokenFile() string {
	if c.Sheets.TokenFile != "" {
		return c.Sheets.TokenFile
	}
	return filepath.Join(c.DataDir, "sheets_token.json")
}
