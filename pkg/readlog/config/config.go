// Package config loads server settings from defaults, an optional config
// file and READLOG_* environment variables.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// SoleAdminLeave decides what happens when the only admin of a group leaves it.
type SoleAdminLeave string

const (
	// SoleAdminForbid rejects the leave; the admin must promote someone or delete the group.
	SoleAdminForbid SoleAdminLeave = "forbid"
	// SoleAdminPromote hands the admin role to the longest-standing remaining member.
	SoleAdminPromote SoleAdminLeave = "promote"
	// SoleAdminAllow lets the group continue without an admin.
	SoleAdminAllow SoleAdminLeave = "allow"
)

// Policy holds the authorization variants that are configurable per deployment.
type Policy struct {
	AdminCanDeleteBooks    bool           `mapstructure:"admin_can_delete_books"`
	AdminCanDeleteComments bool           `mapstructure:"admin_can_delete_comments"`
	SoleAdminLeave         SoleAdminLeave `mapstructure:"sole_admin_leave"`
}

type DB struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type JWT struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type Invite struct {
	Length int `mapstructure:"length"`
}

type RateLimit struct {
	JoinPerMinute int `mapstructure:"join_per_minute"`
}

// Config is the full server configuration.
type Config struct {
	Port      string    `mapstructure:"port"`
	DB        DB        `mapstructure:"db"`
	JWT       JWT       `mapstructure:"jwt"`
	Log       Log       `mapstructure:"log"`
	Policy    Policy    `mapstructure:"policy"`
	Invite    Invite    `mapstructure:"invite"`
	RateLimit RateLimit `mapstructure:"ratelimit"`
}

// DevJWTSecret is used when no secret is configured. Development only.
const DevJWTSecret = "readlog-dev-secret-change-in-production"

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "readlog.db")
	v.SetDefault("jwt.secret", DevJWTSecret)
	v.SetDefault("jwt.ttl", 24*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("policy.admin_can_delete_books", false)
	v.SetDefault("policy.admin_can_delete_comments", false)
	v.SetDefault("policy.sole_admin_leave", string(SoleAdminForbid))
	v.SetDefault("invite.length", 8)
	v.SetDefault("ratelimit.join_per_minute", 10)
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("READLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file (if not empty) into v and decodes the result.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "unable to read config file %s", file)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unable to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerations and ranges.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		return errors.Errorf("unsupported db.driver %q (want sqlite or postgres)", c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return errors.New("db.dsn must not be empty")
	}
	switch c.Policy.SoleAdminLeave {
	case SoleAdminForbid, SoleAdminPromote, SoleAdminAllow:
	default:
		return errors.Errorf("unsupported policy.sole_admin_leave %q (want forbid, promote or allow)", c.Policy.SoleAdminLeave)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return errors.Errorf("unsupported log.format %q (want console or json)", c.Log.Format)
	}
	if c.Invite.Length < 6 || c.Invite.Length > 32 {
		return errors.Errorf("invite.length must be between 6 and 32, got %d", c.Invite.Length)
	}
	if c.JWT.TTL <= 0 {
		return errors.New("jwt.ttl must be positive")
	}
	if c.RateLimit.JoinPerMinute < 0 {
		return errors.New("ratelimit.join_per_minute must not be negative")
	}
	return nil
}
