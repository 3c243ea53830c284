package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Loader reads configuration from defaults, an optional sayit.yaml, SAYIT_*
// environment variables and bound flags, in increasing precedence.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

func NewLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

// NewLoaderWithViper creates a loader using an existing viper instance so
// that cobra flags bound to it take part.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v, envPrefix: "SAYIT"}
}

func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

func (l *Loader) Viper() *viper.Viper {
	return l.v
}

func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName("sayit")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
	}
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Loader) setDefaults() {
	l.v.SetDefault("addr", ":8787")
	l.v.SetDefault("database.url", "sqlite://./data/sayit.db")
	l.v.SetDefault("database.migrations_dir", "./db/migrations")
	l.v.SetDefault("cors.origin", "*")
	l.v.SetDefault("redis.url", "")
	l.v.SetDefault("cache.ttl", "1h")
	l.v.SetDefault("minio.endpoint", "")
	l.v.SetDefault("minio.access_key", "")
	l.v.SetDefault("minio.secret_key", "")
	l.v.SetDefault("minio.bucket", "sayit-speeches")
	l.v.SetDefault("minio.use_ssl", false)
	l.v.SetDefault("meili.url", "")
	l.v.SetDefault("meili.master_key", "")
	l.v.SetDefault("repos.dir", "./data/repos")
	l.v.SetDefault("auth.token_hashes", []string{})
	l.v.SetDefault("speakers.aliases", []string{"唐鳳=唐鳳-3"})
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "json")
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return errors.New("config: database.url is required")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("config: cache.ttl must not be negative, got %s", c.Cache.TTL)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format must be json or console, got %q", c.Log.Format)
	}
	if c.MinIO.Endpoint != "" && c.MinIO.Bucket == "" {
		return errors.New("config: minio.bucket is required when minio.endpoint is set")
	}
	return nil
}
