// Package cli implements the agent-context CLI commands.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/agent-context/internal/config"
	"github.com/rcliao/agent-context/internal/logging"
	"github.com/rcliao/agent-context/internal/memory"
	"github.com/rcliao/agent-context/internal/metrics"
	"github.com/rcliao/agent-context/internal/store"
)

var (
	configPath  string
	dbPath      string
	backendFlag string
	formatFlag  string
	logLevel    string
	logJSON     bool
	metricsAddr string

	cfg      config.Config
	logger   = zap.NewNop()
	mtx      *metrics.Metrics
	metSrv   *http.Server
	registry = prometheus.NewRegistry()
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "agent-context",
	Short: "Assemble budgeted, phase-aware context for LLM calls",
	Long: "Build model context from typed sections, phase templates and a memory store, " +
		"trim it to a token budget, and render it for text, OpenAI, Anthropic or Gemini.",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: teardown,
}

func init() {
	pf := RootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Config file (default: ./"+config.DefaultFile+" if present)")
	pf.StringVarP(&dbPath, "db", "d", "", "Memory database path (default: $AGENT_CONTEXT_DB or ~/.agent-context/memory.db)")
	pf.StringVar(&backendFlag, "backend", "", "Memory backend: sqlite, file, redis or memory")
	pf.StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.BoolVar(&logJSON, "log-json", false, "Emit JSON logs")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.Memory.Path = dbPath
	}
	if backendFlag != "" {
		cfg.Memory.Backend = backendFlag
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logJSON {
		cfg.Logging.JSON = true
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}

	logger, err = logging.New(cfg.Logging.Level, cfg.Logging.JSON)
	if err != nil {
		return err
	}
	mtx = metrics.New(registry)
	if cfg.Metrics.Addr != "" {
		metSrv = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		logger.Info("serving metrics", zap.String("addr", cfg.Metrics.Addr))
	}
	return nil
}

func teardown(cmd *cobra.Command, args []string) {
	if metSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = metSrv.Shutdown(ctx)
	}
	_ = logger.Sync()
}

// openMemory builds the configured memory store. Callers close the
// returned backend.
func openMemory(ctx context.Context) (*memory.Memory, store.Backend) {
	mem, backend, err := cfg.NewMemory(ctx, logger, mtx)
	if err != nil {
		exitErr("open store", err)
	}
	return mem, backend
}

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}

func textOutput() bool {
	return strings.EqualFold(formatFlag, "text")
}

// readInput returns the joined args, or stdin when it is piped.
func readInput(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	stat, err := os.Stdin.Stat()
	if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
		return "", nil
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
