// Package config loads runtime configuration for the objidx CLI.
//
// Sources, later ones winning:
//
//  1. Built-in defaults.
//  2. An optional config file (--config), any format viper understands.
//  3. OBJIDX_* environment variables, e.g. OBJIDX_SERVER, OBJIDX_S3_ACCESS_KEY.
//  4. Command-line flags bound by the CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "OBJIDX"

// Config holds client settings. Keys use snake_case in files and env vars.
type Config struct {
	Server   string `mapstructure:"server"`
	Token    string `mapstructure:"token"`
	Bucket   string `mapstructure:"bucket"`
	User     string `mapstructure:"user"`
	Software string `mapstructure:"software"`
	Host     string `mapstructure:"host"`
	Algo     string `mapstructure:"algo"`
	Output   string `mapstructure:"output"`
	Journal  string `mapstructure:"journal"`

	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key"`
	S3Region    string `mapstructure:"s3_region"`
	S3Endpoint  string `mapstructure:"s3_endpoint"`
}

func defaults() map[string]any {
	host, _ := os.Hostname()
	user := os.Getenv("USER")
	journal := ""
	if dir, err := os.UserCacheDir(); err == nil {
		journal = filepath.Join(dir, "objidx", "journal.db")
	}
	return map[string]any{
		"server":        "http://127.0.0.1:8080",
		"token":         "",
		"bucket":        "objidx",
		"user":          user,
		"software":      "objidx-cli",
		"host":          host,
		"algo":          "sha256",
		"output":        "auto",
		"journal":       journal,
		"s3_access_key": "",
		"s3_secret_key": "",
		"s3_region":     "us-east-1",
		"s3_endpoint":   "",
	}
}

// Load resolves the configuration. flags may be nil; when given, flag names
// are matched to keys with dashes turned into underscores. configFile may
// be empty.
func Load(flags *pflag.FlagSet, configFile string) (*Config, error) {
	v := viper.NewWithOptions(
		viper.KeyDelimiter("."),
		viper.EnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_")),
	)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	for k, d := range defaults() {
		_ = v.BindEnv(k)
		v.SetDefault(k, d)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if _, known := defaults()[key]; !known {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.Server = strings.TrimRight(cfg.Server, "/")

	return cfg, nil
}
