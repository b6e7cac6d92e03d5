package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppName names the config directory and the environment prefix
const AppName = "lazydb"

// Config holds all application configuration
type Config struct {
	General     GeneralConfig     `mapstructure:"general"`
	Data        DataConfig        `mapstructure:"data"`
	Performance PerformanceConfig `mapstructure:"performance"`
	History     HistoryConfig     `mapstructure:"history"`
	UI          UIConfig          `mapstructure:"ui"`
	Log         LogConfig         `mapstructure:"log"`
	Security    SecurityConfig    `mapstructure:"security"`
}

type GeneralConfig struct {
	ProfilesPath  string `mapstructure:"profiles_path"`
	FavoritesPath string `mapstructure:"favorites_path"`
}

type DataConfig struct {
	PageSize             int `mapstructure:"page_size"`
	FetchAllThreshold    int `mapstructure:"fetch_all_threshold"`
	MaxCellDisplayLength int `mapstructure:"max_cell_display_length"`
}

type PerformanceConfig struct {
	ConnectTimeout     int `mapstructure:"connect_timeout"`
	QueryTimeout       int `mapstructure:"query_timeout"`
	ConnectionPoolSize int `mapstructure:"connection_pool_size"`
}

// ConnectTimeoutDuration converts the millisecond setting
func (p PerformanceConfig) ConnectTimeoutDuration() time.Duration {
	return time.Duration(p.ConnectTimeout) * time.Millisecond
}

// QueryTimeoutDuration converts the millisecond setting
func (p PerformanceConfig) QueryTimeoutDuration() time.Duration {
	return time.Duration(p.QueryTimeout) * time.Millisecond
}

type HistoryConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxEntries int    `mapstructure:"max_entries"`
}

type UIConfig struct {
	Theme string `mapstructure:"theme"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SecurityConfig struct {
	// Keyring enables reading server passwords from the OS keyring
	Keyring bool `mapstructure:"keyring"`
	// KeyringBackend is "auto" for the native keyring or "file"
	KeyringBackend string `mapstructure:"keyring_backend"`
	KeyringDir     string `mapstructure:"keyring_dir"`
}

// GetDefaults returns a Config with all default values
func GetDefaults() *Config {
	dir := defaultDir()
	return &Config{
		General: GeneralConfig{
			ProfilesPath:  filepath.Join(dir, "connections.json"),
			FavoritesPath: filepath.Join(dir, "favorites.yaml"),
		},
		Data: DataConfig{
			PageSize:             1000,
			FetchAllThreshold:    5000,
			MaxCellDisplayLength: 80,
		},
		Performance: PerformanceConfig{
			ConnectTimeout:     10000,
			QueryTimeout:       30000,
			ConnectionPoolSize: 5,
		},
		History: HistoryConfig{
			Enabled:    true,
			Path:       filepath.Join(dir, "history.db"),
			MaxEntries: 1000,
		},
		UI: UIConfig{
			Theme: "default",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Security: SecurityConfig{
			Keyring:        true,
			KeyringBackend: "auto",
			KeyringDir:     filepath.Join(dir, "keyring"),
		},
	}
}

// Load loads configuration. An explicit path must exist; otherwise
// config.yaml is searched for and may be absent.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		// 1. User config directory
		if configDir, err := GetConfigPath(); err == nil {
			v.AddConfigPath(configDir)
		}
		// 2. Current directory
		v.AddConfigPath(".")
		// 3. Default config directory
		v.AddConfigPath("./config")
	}

	// LAZYDB_DATA_PAGE_SIZE overrides data.page_size
	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := GetDefaults()
	v.SetDefault("general.profiles_path", d.General.ProfilesPath)
	v.SetDefault("general.favorites_path", d.General.FavoritesPath)
	v.SetDefault("data.page_size", d.Data.PageSize)
	v.SetDefault("data.fetch_all_threshold", d.Data.FetchAllThreshold)
	v.SetDefault("data.max_cell_display_length", d.Data.MaxCellDisplayLength)
	v.SetDefault("performance.connect_timeout", d.Performance.ConnectTimeout)
	v.SetDefault("performance.query_timeout", d.Performance.QueryTimeout)
	v.SetDefault("performance.connection_pool_size", d.Performance.ConnectionPoolSize)
	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.path", d.History.Path)
	v.SetDefault("history.max_entries", d.History.MaxEntries)
	v.SetDefault("ui.theme", d.UI.Theme)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("security.keyring", d.Security.Keyring)
	v.SetDefault("security.keyring_backend", d.Security.KeyringBackend)
	v.SetDefault("security.keyring_dir", d.Security.KeyringDir)

	// Read config (it's okay if file doesn't exist, we have defaults)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// GetConfigPath returns the user config directory path
func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, AppName), nil
}

func defaultDir() string {
	dir, err := GetConfigPath()
	if err != nil {
		return "."
	}
	return dir
}
