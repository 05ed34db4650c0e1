package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"stickershelf/internal/domain"
)

// Config holds all configuration for the application.
// Values are read by viper from a config file or environment variables.
type Config struct {
	TelegramBotToken string        `mapstructure:"TELEGRAM_BOT_TOKEN"`
	OperatorIDs      []int64       `mapstructure:"OPERATOR_IDS"`
	BadgerDBPath     string        `mapstructure:"BADGERDB_PATH"`
	GCInterval       time.Duration `mapstructure:"GC_INTERVAL"`

	// DeploymentID scopes the public collection path.
	DeploymentID string `mapstructure:"DEPLOYMENT_ID"`
	Collection   string `mapstructure:"COLLECTION"`

	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	MaxUploadBytes  int64 `mapstructure:"MAX_UPLOAD_BYTES"`
	MaxImageWidth   int   `mapstructure:"MAX_IMAGE_WIDTH"`
	JPEGQuality     int   `mapstructure:"JPEG_QUALITY"`
	MaxEncodedBytes int64 `mapstructure:"MAX_ENCODED_BYTES"`

	// CategoryLabels maps category values to display labels.
	CategoryLabels map[string]string `mapstructure:"CATEGORY_LABELS"`
}

var defaults = map[string]any{
	"TELEGRAM_BOT_TOKEN": "",
	"OPERATOR_IDS":       []int64{},
	"BADGERDB_PATH":      "./badger_data",
	"GC_INTERVAL":        5 * time.Minute,
	"DEPLOYMENT_ID":      "default-app-id",
	"COLLECTION":         "allStickers",
	"HTTP_ADDR":          ":8080",
	"LOG_LEVEL":          "info",
	"MAX_UPLOAD_BYTES":   2 * 1024 * 1024,
	"MAX_IMAGE_WIDTH":    500,
	"JPEG_QUALITY":       70,
	"MAX_ENCODED_BYTES":  900 * 1024,
	"CATEGORY_LABELS": map[string]string{
		string(domain.CategorySticker): "貼圖",
		string(domain.CategoryTheme):   "主題",
		string(domain.CategoryEmoji):   "表情貼",
	},
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.Reset()
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// AutomaticEnv only resolves keys viper already knows about, so every key
	// gets a default first.
	for key, value := range defaults {
		viper.SetDefault(key, value)
	}
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	err = viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return decode()
}

// WatchConfig re-decodes the configuration whenever the config file changes.
// Only settings that are safe to swap at runtime should be read from the
// callback; the store and the bot keep what they were started with.
func WatchConfig(onChange func(Config, error)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		onChange(decode())
	})
	viper.WatchConfig()
}

func decode() (Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) validate() error {
	if c.DeploymentID == "" || strings.Contains(c.DeploymentID, "/") {
		return fmt.Errorf("DEPLOYMENT_ID %q is not a valid path segment", c.DeploymentID)
	}
	if c.Collection == "" || strings.Contains(c.Collection, "/") {
		return fmt.Errorf("COLLECTION %q is not a valid path segment", c.Collection)
	}
	if c.GCInterval <= 0 {
		return fmt.Errorf("GC_INTERVAL must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.MaxImageWidth <= 0 {
		return fmt.Errorf("MAX_IMAGE_WIDTH must be positive")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("JPEG_QUALITY must be between 1 and 100")
	}
	for key := range c.CategoryLabels {
		if !domain.Category(key).Valid() {
			return fmt.Errorf("CATEGORY_LABELS: unknown category %q", key)
		}
	}
	return nil
}

// IsOperator reports whether a Telegram user may edit the gallery.
func (c Config) IsOperator(userID int64) bool {
	for _, id := range c.OperatorIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Label returns the display label of a category, falling back to its value.
func (c Config) Label(category domain.Category) string {
	if label, ok := c.CategoryLabels[string(category)]; ok && label != "" {
		return label
	}
	return string(category)
}
