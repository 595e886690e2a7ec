// Package config fills a cache.Config from the environment or from a YAML
// file.
//
// Environment variables are named after the env tags of cache.Config,
// optionally behind a prefix:
//
//	HEAPCACHE_MAX_SIZE=10000
//	HEAPCACHE_EXPIRY_SECONDS=60
//	HEAPCACHE_IMPLEMENTATION=twoq
//
//	cfg, err := config.Load("HEAPCACHE_")
//	c, err := cache.New(config.Options[string, []byte](cfg))
package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/IvanBrykalov/heapcache/cache"
)

// Load reads the configuration from the environment. Variables from the
// given .env files (default ".env") are loaded first; variables already set
// in the process win. Missing .env files are ignored.
func Load(prefix string, envFiles ...string) (cache.Config, error) {
	var cfg cache.Config
	if err := loadDotEnv(envFiles); err != nil {
		return cfg, errors.Join(ErrParsingConfig, err)
	}
	if err := parseEnv(&cfg, prefix); err != nil {
		return cfg, err
	}
	return cfg, validate(cfg)
}

// LoadFile reads the configuration from a YAML file, then applies
// environment overrides under prefix. An empty prefix disables overrides.
func LoadFile(path, prefix string) (cache.Config, error) {
	var cfg cache.Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Join(ErrReadingFile, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Join(ErrReadingFile, err)
	}
	if prefix != "" {
		if err := parseEnv(&cfg, prefix); err != nil {
			return cfg, err
		}
	}
	return cfg, validate(cfg)
}

// MustLoad works like Load but panics on error.
func MustLoad(prefix string, envFiles ...string) cache.Config {
	cfg, err := Load(prefix, envFiles...)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Options wraps cfg into cache options with no collaborators set.
func Options[K comparable, V any](cfg cache.Config) cache.Options[K, V] {
	return cache.Options[K, V]{Config: cfg}
}

func loadDotEnv(files []string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// parseEnv overlays variables onto cfg; unset variables keep the current
// field value.
func parseEnv(cfg *cache.Config, prefix string) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: prefix}); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

func validate(cfg cache.Config) error {
	if err := cfg.Validate(); err != nil {
		return errors.Join(ErrInvalidConfig, err)
	}
	return nil
}
