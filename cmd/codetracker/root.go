package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/flozender/code-tracker-sub024/internal/config"
	"github.com/flozender/code-tracker-sub024/internal/metrics"
	"github.com/flozender/code-tracker-sub024/internal/slogutil"
	"github.com/flozender/code-tracker-sub024/internal/version"
)

var (
	repoFlag        string
	configFlag      string
	metricsAddrFlag string
	verboseFlag     int
	quietFlag       bool
)

// Populated by PersistentPreRunE.
var (
	appConfig    *config.Config
	appLogger    = slogutil.NewDiscardLogger()
	logCloser    io.Closer
	metricsServe *http.Server
)

var rootCmd = &cobra.Command{
	Use:   "codetracker",
	Short: "Track the history of a code element through git",
	Long: `codetracker follows a method, class, field, variable or block backwards
through the commits of a git repository and reports every version of it,
together with the change that produced each version (rename, move, extract,
signature or body change) and why the history ends where it does.

Elements are addressed by location-independent keys such as
  class:Account::method:deposit(int,String)
  class:Greeter::method:greet(str,times)::block:if[1]`,
	Version:           version.Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.SetVersionTemplate("codetracker version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&repoFlag, "repo", ".", "Path to the git repository")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default: <repo>/.codetracker/config.*)")
	rootCmd.PersistentFlags().StringVar(&metricsAddrFlag, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	rootCmd.PersistentFlags().CountVarP(&verboseFlag, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress all logging")
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	if configFlag != "" {
		appConfig, err = config.LoadConfigFromPath(configFlag)
	} else {
		appConfig, err = config.LoadConfig(repoFlag)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var override *slog.Level
	flags := cmd.Flags()
	if flags.Changed("verbose") || flags.Changed("quiet") {
		lvl := slogutil.LevelFromVerbosity(verboseFlag, quietFlag)
		override = &lvl
	}
	appLogger, logCloser, err = slogutil.FromConfig(appConfig.Logging, os.Stderr, override)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}

	addr := metricsAddrFlag
	if addr == "" {
		addr = appConfig.Metrics.Addr
	}
	if addr != "" {
		if err := serveMetrics(addr); err != nil {
			return err
		}
	}
	return nil
}

func serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	metricsServe = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServe.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			appLogger.Warn("Metrics server stopped", "error", err.Error())
		}
	}()
	appLogger.Info("Serving metrics", "addr", ln.Addr().String())
	return nil
}

// shutdown runs after every command, including failed ones.
func shutdown() {
	if metricsServe != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = metricsServe.Shutdown(ctx)
		cancel()
	}
	if logCloser != nil {
		_ = logCloser.Close()
	}
}
