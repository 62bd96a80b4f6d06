package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"mediastore/pkg/logger"
)

const envPrefix = "MEDIASTORE"

var validate = validator.New()

type Config struct {
	Port             int           `mapstructure:"port" validate:"min=1,max=65535"`
	StorageRoot      string        `mapstructure:"storage_root" validate:"required"`
	PublicDir        string        `mapstructure:"public_dir" validate:"required,nefield=PrivateDir"`
	PrivateDir       string        `mapstructure:"private_dir" validate:"required"`
	MediaPath        string        `mapstructure:"media_path" validate:"required,startswith=/"`
	JWTSecret        string        `mapstructure:"jwt_secret" validate:"required,min=16"`
	TokenTTL         time.Duration `mapstructure:"token_ttl" validate:"gt=0"`
	DatabaseURL      string        `mapstructure:"database_url" validate:"omitempty,url"`
	AdminUsername    string        `mapstructure:"admin_username"`
	AdminPassword    string        `mapstructure:"admin_password" validate:"required_with=AdminUsername"`
	LogLevel         string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	MaxBodyBytes     int64         `mapstructure:"max_body_bytes" validate:"gt=0"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	DirectoryListing bool          `mapstructure:"directory_listing"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// LoginEnabled reports whether a user database is configured.
func (c *Config) LoginEnabled() bool {
	return c.DatabaseURL != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("storage_root", ".")
	v.SetDefault("public_dir", "public")
	v.SetDefault("private_dir", "private")
	v.SetDefault("media_path", "/media")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("token_ttl", "24h")
	v.SetDefault("database_url", "")
	v.SetDefault("admin_username", "")
	v.SetDefault("admin_password", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("max_body_bytes", 10<<20)
	v.SetDefault("shutdown_timeout", "30s")
	v.SetDefault("directory_listing", true)
}

// Load reads .env (if any), MEDIASTORE_* environment variables and the
// optional YAML file at path, in increasing priority of env over file.
// args are the positional command line arguments: [port [root]].
func Load(path string, args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Sugar.Debug("No .env file found, using environment variables from OS")
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("mediastore")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.ApplyArgs(args); err != nil {
		return nil, err
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// ApplyArgs overrides the port and storage root from positional arguments.
func (c *Config) ApplyArgs(args []string) error {
	if len(args) > 2 {
		return fmt.Errorf("usage: mediastore [port [root]], got %d arguments", len(args))
	}
	if len(args) > 0 {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", args[0], err)
		}
		c.Port = port
	}
	if len(args) > 1 {
		c.StorageRoot = args[1]
	}
	return nil
}

func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag", e.Namespace(), e.Tag())
		}
		return err
	}

	// Visibility directories become single path segments under the root.
	for name, dir := range map[string]string{"public_dir": cfg.PublicDir, "private_dir": cfg.PrivateDir} {
		if dir == "." || dir == ".." || strings.ContainsAny(dir, `/\`) {
			return fmt.Errorf("%s: %q must be a single directory name", name, dir)
		}
	}
	return nil
}
