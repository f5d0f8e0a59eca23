package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// DatabaseConfig locates the on-disk store.
type DatabaseConfig struct {
	Dir     string `mapstructure:"dir"`
	File    string `mapstructure:"file"`
	LogMode bool   `mapstructure:"log_mode"`
}

// Path returns the full path of the database file.
func (c DatabaseConfig) Path() string {
	return filepath.Join(c.Dir, c.File)
}

type BackupConfig struct {
	AutoDir string `mapstructure:"auto_dir"`
	Retain  int    `mapstructure:"retain"`
}

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Backup   BackupConfig   `mapstructure:"backup"`
}

// Default returns the built-in configuration rooted at ~/.finledger.
func Default() *Config {
	dir := dataDir()
	return &Config{
		Database: DatabaseConfig{
			Dir:  dir,
			File: "finledger.db",
		},
		Backup: BackupConfig{
			AutoDir: filepath.Join(dir, "auto_backups"),
			Retain:  5,
		},
	}
}

// Load loads configuration from the given file path (e.g. "config.yaml").
// If path is empty, it looks for "config.yaml" in the working directory.
// A missing config file is not an error: defaults apply, with environment
// overrides (prefix FINLEDGER, e.g. FINLEDGER_DATABASE_DIR).
func Load(path string) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("database.dir", def.Database.Dir)
	v.SetDefault("database.file", def.Database.File)
	v.SetDefault("database.log_mode", false)
	v.SetDefault("backup.auto_dir", def.Backup.AutoDir)
	v.SetDefault("backup.retain", def.Backup.Retain)

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("FINLEDGER")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// last resort, relative to the working directory
		return ".finledger"
	}
	return filepath.Join(home, ".finledger")
}
