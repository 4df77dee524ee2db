package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/basekit/internal/database"
)

// EnvPrefix prefixes environment variables that override configuration,
// e.g. BASEKIT_STORE or BASEKIT_REDIS_ADDR.
const EnvPrefix = "BASEKIT"

// DefaultConfigFile is read from the working directory when --config is
// not given and the file exists.
const DefaultConfigFile = "basekit.yaml"

// Store kinds.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreBolt   = "bolt"
	StoreRedis  = "redis"
	StoreHTTP   = "http"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// ValidStores lists the backends a command can open.
var ValidStores = []string{StoreMemory, StoreSQLite, StoreBolt, StoreRedis, StoreHTTP}

// Config is the resolved configuration: flags over environment over
// config file over defaults.
type Config struct {
	Store string
	Path  string
	Base  string
	Redis RedisConfig
	HTTP  HTTPConfig
}

// RedisConfig holds the redis backend settings.
type RedisConfig struct {
	Addr string
	DB   int
}

// HTTPConfig holds the hosted API settings.
type HTTPConfig struct {
	URL     string
	Project string
	APIKey  string
	Timeout time.Duration
	Retries int
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
	Config     Config

	// Keys overrides key generation for put and insert (for testing).
	// If nil, defaults to UUIDv7Generator.
	Keys database.KeyGenerator

	// ServeReady, when set, receives the address serve listens on once it
	// accepts connections (for testing).
	ServeReady chan<- string

	v *viper.Viper
}

// NewRootCommand creates the root command for the basekit CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	opts.v = newViper()

	cmd := &cobra.Command{
		Use:   "basekit",
		Short: "basekit - records over a hosted key-value base",
		Long: `Read, write and query records in a base, seed bases from fixtures and
serve any configured backend over the hosted HTTP API.

Settings come from flags, BASEKIT_* environment variables and an optional
config file (basekit.yaml in the working directory, or --config).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.load(); err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			// Validate format flag
			if !contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if !contains(ValidStores, opts.Config.Store) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid store %q: must be one of %v", opts.Config.Store, ValidStores))
			}
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigFile, "config", "", "config file (default ./"+DefaultConfigFile+" if present)")
	flags.BoolP("verbose", "v", false, "verbose output")
	flags.String("format", "text", "output format (json|text)")
	flags.String("store", StoreMemory, "backend (memory|sqlite|bolt|redis|http)")
	flags.String("path", "", "database file for the sqlite and bolt backends")
	flags.String("base", "default", "base to operate on")
	flags.String("redis-addr", "", "redis address for the redis backend")
	flags.String("http-url", "", "API endpoint for the http backend")

	for key, flag := range map[string]string{
		"verbose":    "verbose",
		"format":     "format",
		"store":      "store",
		"path":       "path",
		"base":       "base",
		"redis.addr": "redis-addr",
		"http.url":   "http-url",
	} {
		_ = opts.v.BindPFlag(key, flags.Lookup(flag))
	}

	// Add subcommands
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewInsertCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewFetchCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("store", StoreMemory)
	v.SetDefault("base", "default")
	v.SetDefault("format", "text")
	v.SetDefault("verbose", false)
	v.SetDefault("path", "")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("http.url", "")
	v.SetDefault("http.project", "")
	v.SetDefault("http.api_key", "")
	v.SetDefault("http.timeout", 10*time.Second)
	v.SetDefault("http.retries", 0)
	return v
}

// load reads the config file, if any, and resolves every setting.
func (o *RootOptions) load() error {
	v := o.v
	if v == nil {
		v = newViper()
		o.v = v
	}

	switch {
	case o.ConfigFile != "":
		v.SetConfigFile(o.ConfigFile)
	default:
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			v.SetConfigFile(DefaultConfigFile)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	o.Verbose = v.GetBool("verbose")
	o.Format = v.GetString("format")
	o.Config = Config{
		Store: v.GetString("store"),
		Path:  v.GetString("path"),
		Base:  v.GetString("base"),
		Redis: RedisConfig{
			Addr: v.GetString("redis.addr"),
			DB:   v.GetInt("redis.db"),
		},
		HTTP: HTTPConfig{
			URL:     v.GetString("http.url"),
			Project: v.GetString("http.project"),
			APIKey:  v.GetString("http.api_key"),
			Timeout: v.GetDuration("http.timeout"),
			Retries: v.GetInt("http.retries"),
		},
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
