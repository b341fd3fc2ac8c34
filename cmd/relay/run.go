package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/dispatch"
	"mercator-hq/relay/pkg/profile"
	"mercator-hq/relay/pkg/proxy/handlers"
	"mercator-hq/relay/pkg/retry"
	"mercator-hq/relay/pkg/server"
	"mercator-hq/relay/pkg/telemetry/health"
	"mercator-hq/relay/pkg/telemetry/logging"
	"mercator-hq/relay/pkg/telemetry/metrics"
	"mercator-hq/relay/pkg/telemetry/tracing"
	"mercator-hq/relay/pkg/upstream"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const tracerShutdownTimeout = 5 * time.Second

var runFlags struct {
	listenAddress     string
	httpListenAddress string
	logLevel          string
	dryRun            bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the relay",
	Long: `Start the relay with the specified configuration.

The socket server listens on server.listen_address and, unless disabled, the
HTTP surface on http.listen_address serves POST /v1/chat, /health, /ready,
/version, /metrics and (when enabled) /admin/profile.

Examples:
  # Start with relay.yaml or defaults
  relay run

  # Start with custom config
  relay run --config /etc/relay/relay.yaml

  # Override listen addresses
  relay run --listen 0.0.0.0:8080 --http-listen 0.0.0.0:8081

  # Validate config without starting
  relay run --dry-run`,
	RunE: runRelay,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override socket server listen address")
	runCmd.Flags().StringVar(&runFlags.httpListenAddress, "http-listen", "", "override HTTP listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config and profile without starting")
}

func runRelay(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.httpListenAddress != "" {
		cfg.HTTP.ListenAddress = runFlags.httpListenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	} else if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if err := config.Validate(cfg); err != nil {
		return cli.WrapConfigError("", err)
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
		Redact:    cfg.Telemetry.Logging.RedactEnabled(),
		Secrets:   []string{cfg.Upstream.APIKey},
		Writer:    out,
	})
	if err != nil {
		return cli.WrapConfigError("telemetry.logging", err)
	}
	slog.SetDefault(logger)

	r, err := newRelay(cfg, logger)
	if err != nil {
		return err
	}
	defer r.close()

	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	socketLn, httpLn, err := r.listen()
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	printBanner(out, r, socketLn, httpLn)

	ctx, stop := cli.SetupSignalHandler(commandContext(cmd))
	defer stop()

	if err := r.serve(ctx, socketLn, httpLn); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Fprintln(out, "✓ Relay stopped")
	return nil
}

// relay wires every component of a running relay.
type relay struct {
	cfg    *config.Config
	logger *slog.Logger

	collector  *metrics.Collector
	tracer     *tracing.Tracer
	loader     *profile.Loader
	watcher    *profile.Watcher
	client     *upstream.Client
	dispatcher *dispatch.Dispatcher
	checker    *health.Checker

	socket *server.ConnectionServer
	http   *server.HTTPServer

	reloadMu  sync.Mutex
	reloadErr error
}

func newRelay(cfg *config.Config, logger *slog.Logger) (*relay, error) {
	r := &relay{
		cfg:       cfg,
		logger:    logger,
		collector: metrics.NewCollector(cfg.Telemetry.Metrics, nil),
	}

	tracer, err := tracing.New(cfg.Telemetry.Tracing, Version)
	if err != nil {
		return nil, cli.WrapConfigError("telemetry.tracing", err)
	}
	r.tracer = tracer

	loader, err := profile.NewLoader(profile.SourceFromConfig(cfg.Profile), logger,
		profile.WithReloadObserver(r.observeReload),
	)
	if err != nil {
		r.close()
		return nil, cli.WrapConfigError("profile", err)
	}
	r.loader = loader
	r.collector.SetProfileVersion(loader.Store().Load().Version)

	client, err := upstream.NewClient(cfg.Upstream, logger)
	if err != nil {
		r.close()
		return nil, cli.WrapConfigError("upstream", err)
	}
	r.client = client

	r.dispatcher = dispatch.New(client, dispatch.Options{
		Policy:  retry.NewPolicy(cfg.Retry),
		Profile: loader.Store(),
		Limits:  cfg.Limits,
		Metrics: r.collector,
		Tracer:  tracer,
		Logger:  logger,
	})

	r.checker = health.New(0)
	r.checker.RegisterCheck("upstream", r.checkUpstream)
	r.checker.RegisterCheck("profile", r.checkProfile)

	r.socket = server.NewConnectionServer(cfg.Server, cfg.Limits, r.dispatcher, r.collector, logger)

	if cfg.HTTP.IsEnabled() {
		routes := server.Routes{
			Chat:        handlers.NewChatHandler(r.dispatcher, cfg.Limits.MaxRequestBytes, r.collector, logger),
			Health:      r.checker,
			Version:     buildInfo().VersionInfo,
			MetricsPath: cfg.Telemetry.Metrics.Path,
		}
		if r.collector != nil {
			routes.Metrics = r.collector.Handler()
		}
		if cfg.HTTP.AdminEnabled {
			routes.Profile = handlers.NewProfileHandler(loader.Store(), r.profileUpdated, logger)
		}
		handler := server.NewHTTPHandler(routes, cfg.HTTP.CORS, logger)
		r.http = server.NewHTTPServer(cfg.HTTP, cfg.Server.ShutdownTimeout, handler, logger)
	}

	if cfg.Profile.Watch {
		files := loader.Source().Files()
		if len(files) == 0 {
			logger.Warn("profile watching enabled but no profile files configured")
		} else {
			w, err := profile.NewWatcher(files, cfg.Profile.DebounceInterval, loader.Reload, logger)
			if err != nil {
				r.close()
				return nil, cli.WrapConfigError("profile.watch", err)
			}
			r.watcher = w
		}
	}

	return r, nil
}

// listen binds the configured addresses. The HTTP listener is nil when the
// HTTP surface is disabled.
func (r *relay) listen() (socketLn, httpLn net.Listener, err error) {
	socketLn, err = net.Listen("tcp", r.cfg.Server.ListenAddress)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to listen on %s: %w", r.cfg.Server.ListenAddress, err)
	}
	if r.http == nil {
		return socketLn, nil, nil
	}

	httpLn, err = net.Listen("tcp", r.cfg.HTTP.ListenAddress)
	if err != nil {
		_ = socketLn.Close()
		return nil, nil, fmt.Errorf("failed to listen on %s: %w", r.cfg.HTTP.ListenAddress, err)
	}
	return socketLn, httpLn, nil
}

// serve runs the servers and the profile watcher until ctx is cancelled or
// one of them fails, then shuts the rest down.
func (r *relay) serve(ctx context.Context, socketLn, httpLn net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := r.socket.Serve(gctx, socketLn)
		if errors.Is(err, server.ErrServerClosed) {
			return nil
		}
		return err
	})

	if httpLn != nil {
		if r.http == nil {
			_ = httpLn.Close()
		} else {
			g.Go(func() error {
				return r.http.Serve(gctx, httpLn)
			})
		}
	}

	if r.watcher != nil {
		g.Go(func() error {
			return r.watcher.Run(gctx)
		})
	}

	return g.Wait()
}

func (r *relay) close() {
	if r.client != nil {
		_ = r.client.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), tracerShutdownTimeout)
	defer cancel()
	if err := r.tracer.Shutdown(ctx); err != nil {
		r.logger.Warn("failed to flush traces", "error", err)
	}
}

func (r *relay) checkUpstream(ctx context.Context) error {
	err := r.client.HealthCheck(ctx)
	r.collector.UpdateUpstreamHealth(err == nil)
	return err
}

// checkProfile fails while the profile files cannot be reloaded. The
// previous snapshot keeps serving in the meantime.
func (r *relay) checkProfile(context.Context) error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()
	if r.reloadErr != nil {
		return fmt.Errorf("last profile reload failed: %w", r.reloadErr)
	}
	return nil
}

func (r *relay) observeReload(err error) {
	r.collector.RecordProfileReload(err)

	r.reloadMu.Lock()
	r.reloadErr = err
	r.reloadMu.Unlock()

	if err == nil {
		r.collector.SetProfileVersion(r.loader.Store().Load().Version)
	}
}

func (r *relay) profileUpdated(snap profile.Snapshot) {
	r.collector.SetProfileVersion(snap.Version)
}

func printBanner(w io.Writer, r *relay, socketLn, httpLn net.Listener) {
	fmt.Fprintf(w, "Relay v%s\n", Version)
	if _, err := os.Stat(cfgFile); err == nil {
		fmt.Fprintf(w, "✓ Configuration loaded from %s\n", cfgFile)
	} else {
		fmt.Fprintln(w, "✓ Configuration loaded from defaults and environment")
	}

	snap := r.loader.Store().Load()
	fmt.Fprintf(w, "✓ Profile loaded (version %d, %d knowledge chars)\n", snap.Version, len([]rune(snap.Knowledge)))
	fmt.Fprintf(w, "✓ Upstream: %s\n", r.client.RedactedEndpoint())
	if r.watcher != nil {
		fmt.Fprintln(w, "✓ Watching profile files for changes")
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "✓ Socket server listening on %s\n", socketLn.Addr())
	if httpLn != nil {
		fmt.Fprintf(w, "✓ Chat endpoint: http://%s/v1/chat\n", httpLn.Addr())
		fmt.Fprintf(w, "✓ Health endpoint: http://%s/health\n", httpLn.Addr())
		if r.collector != nil {
			fmt.Fprintf(w, "✓ Metrics endpoint: http://%s%s\n", httpLn.Addr(), r.cfg.Telemetry.Metrics.Path)
		}
		if r.cfg.HTTP.AdminEnabled {
			fmt.Fprintf(w, "✓ Admin endpoint: http://%s/admin/profile\n", httpLn.Addr())
		}
	}
	fmt.Fprintln(w, "\nPress Ctrl+C to stop")
}
