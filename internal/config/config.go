package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Registry RegistryConfig `mapstructure:"registry"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type StorageConfig struct {
	Driver string       `mapstructure:"driver"`
	File   FileConfig   `mapstructure:"file"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

type FileConfig struct {
	Path string `mapstructure:"path"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RegistryConfig controls first-run seeding of the server registry.
type RegistryConfig struct {
	BootstrapURL  string `mapstructure:"bootstrap_url"`
	BootstrapName string `mapstructure:"bootstrap_name"`
}

type RemoteConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	StatusTimeout time.Duration `mapstructure:"status_timeout"`
}

type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Headers []string `mapstructure:"headers"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("vpnboard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/vpnboard")
	}

	setDefaults(v)

	v.SetEnvPrefix("VPNBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Variables used by single-server deployments.
	_ = v.BindEnv("registry.bootstrap_url", "VPNBOARD_REGISTRY_BOOTSTRAP_URL", "OUTLINE_API_URL")
	_ = v.BindEnv("auth.enabled", "VPNBOARD_AUTH_ENABLED", "AUTH_ENABLED")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.file.path", "./data/servers.json")
	v.SetDefault("storage.sqlite.path", "./data/vpnboard.db")

	v.SetDefault("registry.bootstrap_url", "")
	v.SetDefault("registry.bootstrap_name", "My Outline Server")

	v.SetDefault("remote.timeout", 30*time.Second)
	v.SetDefault("remote.status_timeout", 6*time.Second)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.headers", []string{"Remote-User", "X-Forwarded-User"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
