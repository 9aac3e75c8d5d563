package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// RuntimeConfig is the process-level configuration for crawlcore: storage
// locations and server/runtime knobs that sit outside a single crawl's
// CrawlConfig.
type RuntimeConfig struct {
	Storage StorageConfig `mapstructure:"storage"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// StorageConfig controls where badgerhold metadata and checkpoint blobs
// live on disk.
type StorageConfig struct {
	BadgerPath      string `mapstructure:"badger_path"`
	CheckpointDir   string `mapstructure:"checkpoint_dir"`
	ResetOnStartup  bool   `mapstructure:"reset_on_startup"`
	CheckpointKeepN int    `mapstructure:"checkpoint_keep_n"`
}

// ServerConfig controls the control-plane HTTP/WebSocket boundary.
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig is the logging section of RuntimeConfig.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	FilePath   string `mapstructure:"file_path"`
	MemorySize int    `mapstructure:"memory_size"`
}

// DefaultRuntimeConfig returns the baseline RuntimeConfig before file/env
// overrides are layered in.
func DefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		Storage: StorageConfig{
			BadgerPath:      "./data/crawlcore.db",
			CheckpointDir:   "./data/checkpoints",
			ResetOnStartup:  false,
			CheckpointKeepN: 10,
		},
		Server: ServerConfig{
			ListenAddr: ":8088",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Console:    true,
			FilePath:   "./logs/crawlcore.log",
			MemorySize: 1000,
		},
	}
}

// LoadRuntimeConfig reads configuration from file, environment, and
// defaults. Priority (highest to lowest): env vars > config file >
// defaults, using viper's standard layering convention.
func LoadRuntimeConfig(configPath string) (*RuntimeConfig, error) {
	cfg := DefaultRuntimeConfig()

	v := viper.New()
	v.SetConfigType("toml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("CRAWLCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("crawlcore")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".crawlcore"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal runtime config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *RuntimeConfig) {
	v.SetDefault("storage.badger_path", cfg.Storage.BadgerPath)
	v.SetDefault("storage.checkpoint_dir", cfg.Storage.CheckpointDir)
	v.SetDefault("storage.reset_on_startup", cfg.Storage.ResetOnStartup)
	v.SetDefault("storage.checkpoint_keep_n", cfg.Storage.CheckpointKeepN)
	v.SetDefault("server.listen_addr", cfg.Server.ListenAddr)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.console", cfg.Logging.Console)
	v.SetDefault("logging.file_path", cfg.Logging.FilePath)
	v.SetDefault("logging.memory_size", cfg.Logging.MemorySize)
}
