package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/conduit-lang/ormeta/internal/factory"
	"github.com/conduit-lang/ormeta/internal/meta"
	"github.com/conduit-lang/ormeta/internal/schema"
)

// FileName is the base name of the configuration file, without extension.
const FileName = "ormeta"

// Config represents the configuration of one persistence unit
type Config struct {
	Unit     string         `mapstructure:"unit"`
	Metadata MetadataConfig `mapstructure:"metadata"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// MetadataConfig controls where metadata comes from and how it is resolved
type MetadataConfig struct {
	// Classes is the class manifest describing the unit's types.
	Classes   string   `mapstructure:"classes"`
	Resources []string `mapstructure:"resources"`
	Types     []string `mapstructure:"types"`
	Preload   bool     `mapstructure:"preload"`
	Resolve   []string `mapstructure:"resolve"`
	Source    []string `mapstructure:"source"`
	Validate  []string `mapstructure:"validate"`
	// Access is the default access type of mapped classes.
	Access                 string `mapstructure:"access"`
	InterfacePersistent    bool   `mapstructure:"interface_persistent"`
	ReorderFKInPK          bool   `mapstructure:"reorder_fk_in_pk"`
	RetryClassRegistration bool   `mapstructure:"retry_class_registration"`
}

// DatabaseConfig represents the datastore mappings are verified against
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

// RedisConfig represents the eviction broadcast connection
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// ServerConfig represents the introspection server configuration
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig represents logger configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load loads the configuration from path, or from ormeta.yml in the current
// directory when path is empty. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("unit", "default")
	v.SetDefault("metadata.classes", "classes.yaml")
	v.SetDefault("metadata.resources", []string{"mappings"})
	v.SetDefault("metadata.types", []string{})
	v.SetDefault("metadata.preload", false)
	v.SetDefault("metadata.resolve", []string{"meta", "mapping"})
	v.SetDefault("metadata.source", []string{"meta", "mapping", "query"})
	v.SetDefault("metadata.validate", []string{"meta", "unenhanced"})
	v.SetDefault("metadata.access", "field")
	v.SetDefault("metadata.interface_persistent", false)
	v.SetDefault("metadata.reorder_fk_in_pk", false)
	v.SetDefault("metadata.retry_class_registration", false)
	v.SetDefault("database.driver", "")
	v.SetDefault("database.url", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "ormeta:evictions")
	v.SetDefault("server.addr", ":8089")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// ORMETA_DATABASE_URL overrides database.url
	v.SetEnvPrefix("ormeta")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// RepositoryConfig converts the metadata section into repository settings.
// Registry and Verifier are left for the caller to wire.
func (c *Config) RepositoryConfig() (meta.Config, error) {
	resolve, err := meta.ParseModes(c.Metadata.Resolve)
	if err != nil {
		return meta.Config{}, fmt.Errorf("metadata.resolve: %w", err)
	}
	source, err := meta.ParseModes(c.Metadata.Source)
	if err != nil {
		return meta.Config{}, fmt.Errorf("metadata.source: %w", err)
	}
	validate, err := meta.ParseValidation(c.Metadata.Validate)
	if err != nil {
		return meta.Config{}, fmt.Errorf("metadata.validate: %w", err)
	}
	return meta.Config{
		ResolveMode:            resolve,
		SourceMode:             source,
		Validate:               validate,
		Preload:                c.Metadata.Preload,
		ReorderFKInPK:          c.Metadata.ReorderFKInPK,
		RetryClassRegistration: c.Metadata.RetryClassRegistration,
	}, nil
}

// FactoryOptions converts the metadata section into mapping factory options.
func (c *Config) FactoryOptions() (factory.Options, error) {
	access, err := meta.ParseAccessType(c.Metadata.Access)
	if err != nil {
		return factory.Options{}, fmt.Errorf("metadata.access: %w", err)
	}
	return factory.Options{
		Resources: c.Metadata.Resources,
		Types:     c.Metadata.Types,
		Defaults: factory.Defaults{
			Access:              access,
			InterfacePersistent: c.Metadata.InterfacePersistent,
		},
	}, nil
}

// Logger builds the zap logger described by the log section.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// ProjectRoot finds the nearest directory at or above the working directory
// that holds an ormeta.yml or ormeta.yaml.
func ProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		for _, ext := range []string{".yml", ".yaml"} {
			if _, err := os.Stat(filepath.Join(dir, FileName+ext)); err == nil {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s.yml found in this directory or any parent", FileName)
		}
		dir = parent
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if strings.TrimSpace(cfg.Unit) == "" {
		return fmt.Errorf("unit must not be empty")
	}
	if _, err := cfg.RepositoryConfig(); err != nil {
		return err
	}
	if _, err := cfg.FactoryOptions(); err != nil {
		return err
	}
	if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if cfg.Database.URL != "" {
		if _, err := schema.DialectFor(cfg.Database.Driver); err != nil {
			return fmt.Errorf("database.driver: %w", err)
		}
	}
	return nil
}
