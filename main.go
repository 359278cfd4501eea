// Command poolserver is a minimal static-page HTTP server that hands every
// accepted connection to a fixed-size worker pool.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Sets GOMEMLIMIT from the cgroup memory limit.
	_ "github.com/KimMachineGun/automemlimit"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/towerops-app/poolserver/pool"
)

var version = "dev"

// adminShutdownTimeout bounds how long the admin listener may take to close.
const adminShutdownTimeout = 5 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := newServeCmd()
	root := &cobra.Command{
		Use:           "poolserver",
		Short:         "Static-page HTTP server backed by a fixed worker pool",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          serve.RunE,
	}
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(serve, newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept connections and serve pages until interrupted",
		Args:  cobra.NoArgs,
	}
	f := cmd.Flags()
	f.String("config", "", "Path to a YAML config file (overrides defaults; POOLSERVER_* env vars and flags override it)")
	f.String("listen", "", "Listen address (default 127.0.0.1:6969)")
	f.Int("workers", 0, "Number of pool workers (default 4)")
	f.String("pages-dir", "", "Directory holding hello.html and 404.html")
	f.Duration("sleep-delay", 0, "Delay before answering GET /sleep")
	f.Duration("read-timeout", 0, "Deadline for reading the request line")
	f.Int("max-conns", 0, "Cap on open connections (0 = unlimited)")
	f.Float64("accept-rate", 0, "Max accepted connections per second (0 = unlimited)")
	f.Bool("reuse-port", false, "Set SO_REUSEPORT on the listening socket")
	f.String("admin-addr", "", "Address for /healthz, /metrics and /stats (empty = disabled)")
	f.String("log-level", "", "Log level (debug, info, warn, error)")
	f.String("log-format", "", "Log format (text, json)")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := loadConfig(path)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if err := applyFlags(cfg, cmd.Flags()); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if err := cfg.validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}

		logger := newLogger(os.Stderr, cfg, isTerminal(os.Stderr))
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		slog.Info("poolserver starting", "version", version)
		if err := run(ctx, cfg, logger); err != nil {
			return err
		}
		slog.Info("poolserver stopped")
		return nil
	}
	return cmd
}

// applyFlags copies every explicitly set flag over the loaded config, so the
// command line wins over the file and the environment.
func applyFlags(cfg *Config, fs *pflag.FlagSet) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "listen":
			cfg.ListenAddr, err = fs.GetString(f.Name)
		case "workers":
			cfg.Workers, err = fs.GetInt(f.Name)
		case "pages-dir":
			cfg.PagesDir, err = fs.GetString(f.Name)
		case "sleep-delay":
			cfg.SleepDelay, err = fs.GetDuration(f.Name)
		case "read-timeout":
			cfg.ReadTimeout, err = fs.GetDuration(f.Name)
		case "max-conns":
			cfg.MaxConns, err = fs.GetInt(f.Name)
		case "accept-rate":
			cfg.AcceptRate, err = fs.GetFloat64(f.Name)
		case "reuse-port":
			cfg.ReusePort, err = fs.GetBool(f.Name)
		case "admin-addr":
			cfg.AdminAddr, err = fs.GetString(f.Name)
		case "log-level":
			cfg.LogLevel, err = fs.GetString(f.Name)
		case "log-format":
			cfg.LogFormat, err = fs.GetString(f.Name)
		}
	})
	return err
}

// run owns the pool for the lifetime of the server: it is created before the
// first accept and shut down, draining every accepted connection, after the
// listener closes.
func run(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	p, err := pool.New(cfg.Workers, pool.WithLogger(logger.With("component", "pool")))
	if err != nil {
		return fmt.Errorf("pool: %w", err)
	}
	defer p.Shutdown()

	ln, err := listen(ctx, cfg)
	if err != nil {
		return err
	}

	if cfg.AdminAddr != "" {
		shutdownAdmin := startAdmin(cfg.AdminAddr, p, logger.With("component", "admin"))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), adminShutdownTimeout)
			defer cancel()
			if err := shutdownAdmin(shutdownCtx); err != nil {
				logger.Warn("admin shutdown", "error", err)
			}
		}()
	}

	srv := newServer(cfg, p, logger)
	if err := srv.serve(ctx, ln); err != nil {
		return err
	}

	logger.Info("draining workers", "queued", p.Stats().Queued, "busy", p.Stats().Busy)
	p.Shutdown()
	return nil
}

// isTerminal reports whether w is a character device, used to decide on color.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
