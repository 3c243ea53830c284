package config

import (
	"strings"
	"time"
)

type Config struct {
	Addr     string         `mapstructure:"addr"`
	Database DatabaseConfig `mapstructure:"database"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Cache    CacheConfig    `mapstructure:"cache"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Meili    MeiliConfig    `mapstructure:"meili"`
	Repos    ReposConfig    `mapstructure:"repos"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Speakers SpeakersConfig `mapstructure:"speakers"`
	Log      LogConfig      `mapstructure:"log"`
}

type DatabaseConfig struct {
	URL           string `mapstructure:"url"`
	MigrationsDir string `mapstructure:"migrations_dir"`
}

type CORSConfig struct {
	Origin string `mapstructure:"origin"`
}

// RedisConfig configures the edge cache. An empty URL disables it.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// MinIOConfig configures the document cache. An empty endpoint disables it.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// MeiliConfig configures the search index. Without a URL search runs on SQL.
type MeiliConfig struct {
	URL       string `mapstructure:"url"`
	MasterKey string `mapstructure:"master_key"`
}

// ReposConfig locates the transcript archives. An empty dir disables them.
type ReposConfig struct {
	Dir string `mapstructure:"dir"`
}

type AuthConfig struct {
	TokenHashes []string `mapstructure:"token_hashes"`
}

// SpeakersConfig holds "name=slug" alias pairs.
type SpeakersConfig struct {
	Aliases []string `mapstructure:"aliases"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AliasMap parses the alias pairs. Entries without "=" are ignored.
func (c SpeakersConfig) AliasMap() map[string]string {
	out := make(map[string]string, len(c.Aliases))
	for _, entry := range c.Aliases {
		name, slug, ok := strings.Cut(entry, "=")
		name, slug = strings.TrimSpace(name), strings.TrimSpace(slug)
		if !ok || name == "" || slug == "" {
			continue
		}
		out[name] = slug
	}
	return out
}
