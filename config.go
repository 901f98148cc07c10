package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind        string
	dsn         string
	metrics     bool
	port        int
	prefix      string
	profile     bool
	roomTimeout time.Duration
	store       string
	tlsCert     string
	tlsKey      string
	verbose     bool
	version     bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.roomTimeout < 0 || (c.roomTimeout > 0 && c.roomTimeout < time.Second) {
		return fmt.Errorf("invalid room timeout (must be 0 or at least 1s): %s", c.roomTimeout)
	}

	switch c.store {
	case "memory":
	case "sqlite", "postgres":
		if c.dsn == "" {
			return fmt.Errorf("--dsn is required for the %s store", c.store)
		}
	default:
		return fmt.Errorf("invalid store (must be one of sqlite, postgres, memory): %q", c.store)
	}

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// bindEnv fills every unset flag in fs from PANGRUM_<FLAG>.
func bindEnv(v *viper.Viper, fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("PANGRUM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v
}

func newCmd(cfg *Config) *cobra.Command {
	v := newViper()

	cmd := &cobra.Command{
		Use:           "pangrum",
		Short:         "Cross-device progress sync for the daily word puzzle.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: PANGRUM_BIND)")
	fs.StringVar(&cfg.dsn, "dsn", "pangrum.db", "sqlite file or postgres connection string (env: PANGRUM_DSN)")
	fs.BoolVar(&cfg.metrics, "metrics", false, "expose prometheus metrics on /metrics (env: PANGRUM_METRICS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: PANGRUM_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: PANGRUM_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: PANGRUM_PROFILE)")
	fs.DurationVar(&cfg.roomTimeout, "room-timeout", 30*time.Minute, "time before idle rooms are unloaded, 0 to keep them (env: PANGRUM_ROOM_TIMEOUT)")
	fs.StringVar(&cfg.store, "store", "sqlite", "room storage backend: sqlite, postgres or memory (env: PANGRUM_STORE)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: PANGRUM_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: PANGRUM_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: PANGRUM_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: PANGRUM_VERSION)")

	bindEnv(v, fs)

	cmd.AddCommand(newCodeCmd(), newJoinCmd())

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("pangrum v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
