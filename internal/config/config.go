// Package config loads server and tool settings from defaults, an optional
// config file and RTABLE_* environment variables, in that order.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tobsdb/rtable/internal/store"
	"github.com/tobsdb/rtable/internal/store/bolt"
	"github.com/tobsdb/rtable/internal/store/memory"
	"github.com/tobsdb/rtable/internal/store/redis"
	"github.com/tobsdb/rtable/internal/table"
)

const EnvPrefix = "RTABLE"

type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
	BackendBolt   Backend = "bolt"
)

var (
	ErrUnknownBackend = errors.New("unknown backend")
	ErrBoltPath       = errors.New("bolt backend needs a db path")
	ErrBadTables      = errors.New("invalid table list")
)

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type BoltConfig struct {
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type TableConfig struct {
	Name    string   `mapstructure:"name" json:"name"`
	OrderBy []string `mapstructure:"order_by" json:"orderBy"`
	// row codec, "json" or "msgpack"; empty uses Config.Codec
	Codec string `mapstructure:"codec" json:"codec,omitempty"`
}

type Config struct {
	Addr     string      `mapstructure:"addr"`
	Backend  Backend     `mapstructure:"backend"`
	Redis    RedisConfig `mapstructure:"redis"`
	Bolt     BoltConfig  `mapstructure:"bolt"`
	Username string      `mapstructure:"username"`
	Password string      `mapstructure:"password"`
	LogLevel string      `mapstructure:"log_level"`
	// default row codec of every table
	Codec string `mapstructure:"codec"`
	// size of the Reindex worker pool
	Workers int `mapstructure:"workers"`
	// "users=age,score;posts=created", added to Tables
	TableList string        `mapstructure:"table_list"`
	Tables    []TableConfig `mapstructure:"tables"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":7085")
	v.SetDefault("backend", string(BackendMemory))
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("bolt.path", "")
	v.SetDefault("bolt.timeout", time.Second)
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("log_level", "error")
	v.SetDefault("codec", "json")
	v.SetDefault("workers", 4)
	v.SetDefault("table_list", "")
}

// Load reads the config file at path (skipped when empty) over the defaults,
// then applies RTABLE_* environment variables, e.g. RTABLE_REDIS_ADDR.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.TableList != "" {
		tables, err := ParseTables(cfg.TableList)
		if err != nil {
			return nil, err
		}
		cfg.Tables = append(cfg.Tables, tables...)
	}
	return cfg, nil
}

// ParseTables reads "name=field,field;name2=field" into table configs. A
// table with no index fields is written as just its name.
func ParseTables(list string) ([]TableConfig, error) {
	tables := []TableConfig{}
	for _, part := range strings.Split(list, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, fields, _ := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w: %q", ErrBadTables, part)
		}
		t := TableConfig{Name: name, OrderBy: []string{}}
		for _, f := range strings.Split(fields, ",") {
			if f = strings.TrimSpace(f); f != "" {
				t.OrderBy = append(t.OrderBy, f)
			}
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendRedis:
	case BackendBolt:
		if c.Bolt.Path == "" {
			return ErrBoltPath
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownBackend, c.Backend)
	}
	if _, err := table.CodecByName(c.Codec); err != nil {
		return err
	}
	for _, t := range c.Tables {
		if t.Name == "" {
			return fmt.Errorf("%w: table without a name", ErrBadTables)
		}
		if _, err := table.CodecByName(t.Codec); err != nil {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}
	}
	return nil
}

// CodecFor returns the codec name used by the given table.
func (c *Config) CodecFor(t TableConfig) string {
	if t.Codec != "" {
		return t.Codec
	}
	return c.Codec
}

// OpenStore connects to the configured backend. Redis is pinged so a bad
// address fails here rather than on the first request.
func (c *Config) OpenStore(ctx context.Context) (store.Store, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Backend {
	case BackendRedis:
		opts := redis.DefaultOptions(c.Redis.Addr)
		opts.Password = c.Redis.Password
		opts.DB = c.Redis.DB
		s := redis.New(opts)
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", c.Redis.Addr, err)
		}
		return s, nil
	case BackendBolt:
		s, err := bolt.Open(c.Bolt.Path, c.Bolt.Timeout)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return memory.New(), nil
}

// Table returns the configured table with the given name.
func (c *Config) Table(name string) (TableConfig, bool) {
	for _, t := range c.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableConfig{}, false
}
