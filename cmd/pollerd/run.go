package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ahmed-com/poller"
	"github.com/ahmed-com/poller/clock"
	"github.com/ahmed-com/poller/config"
	"github.com/ahmed-com/poller/history"
	"github.com/ahmed-com/poller/history/badger"
	"github.com/ahmed-com/poller/internal/api"
	"github.com/ahmed-com/poller/logging"
	"github.com/ahmed-com/poller/manager"
	"github.com/ahmed-com/poller/metrics"
)

// apiShutdownTimeout bounds how long open control API requests may take on exit
const apiShutdownTimeout = 5 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start polling",
	Long: `Start every poller listed in the config file.

The daemon will:
  - Load and validate the configuration
  - Start each poller, honouring its window and restart schedule
  - Record lifecycle events to the history store
  - Serve the control API when http.addr is set

It runs until interrupted (Ctrl+C) or it receives SIGTERM.

Example:
  pollerd run -c pollerd.yaml`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = runCmd.MarkFlagRequired("config")
}

// daemon wires the configured pollers to the shared infrastructure
type daemon struct {
	cfg    *config.Config
	log    *zap.Logger
	stats  *metrics.InMemoryMetrics
	mgr    *manager.Manager
	store  history.Store // nil when history is disabled
	reaper *history.Reaper
	api    *api.Server

	reaping bool
}

func openStore(cfg config.HistoryConfig) (history.Store, error) {
	switch {
	case cfg.Disabled:
		return nil, nil
	case cfg.Path == "":
		return history.NewMemoryStore(), nil
	}
	store, err := badger.Open(cfg.Path)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// newDaemon builds every poller without starting anything. clk drives the
// pollers and is shifted into the configured timezone.
func newDaemon(cfg *config.Config, log *zap.Logger, client *http.Client, clk clock.Clock) (*daemon, error) {
	store, err := openStore(cfg.History)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}

	d := &daemon{
		cfg:   cfg,
		log:   log,
		stats: metrics.NewInMemoryMetrics(),
		store: store,
	}
	d.mgr = manager.New(manager.Config{
		MaxConcurrentTicks: cfg.MaxConcurrentTicks,
		Location:           cfg.Location(),
		Metrics:            d.stats,
		Logger:             log,
	})
	if store != nil {
		d.reaper = history.NewReaper(store, cfg.History.Retention.Duration(), cfg.History.ReapInterval.Duration(), log)
	}

	clk = clock.InLocation(clk, cfg.Location())
	for _, pc := range cfg.Pollers {
		if err := d.addPoller(pc, client, clk); err != nil {
			_ = d.close()
			return nil, fmt.Errorf("poller %q: %w", pc.Name, err)
		}
	}
	if cfg.HTTP.Addr != "" {
		d.api = api.New(d.mgr, store, d.stats, log)
	}
	return d, nil
}

func (d *daemon) addPoller(pc config.PollerConfig, client *http.Client, clk clock.Clock) error {
	opts, err := config.BuildOptions[Response](d.cfg, pc)
	if err != nil {
		return err
	}
	plog := d.log.Named("poller").With(zap.String("poller", pc.Name), zap.String("url", pc.URL))

	opts.Clock = clk
	opts.Dispatch = d.mgr.Dispatch
	opts.Logger = d.log
	opts.Metrics = d.stats
	opts.OnSuccess = func(r Response) {
		plog.Debug("Poll succeeded",
			zap.Int("status", r.StatusCode),
			zap.Int("bytes", r.Bytes),
			zap.Duration("latency", r.Latency),
		)
	}
	opts.OnError = errorDecision(pc.StopOnStatus)
	if d.store != nil {
		opts = history.Instrument(opts, d.store, d.log)
	}

	p, err := poller.New(httpTask(client, pc), opts)
	if err != nil {
		return err
	}
	return manager.Add(d.mgr, p, pc.Restart)
}

// start runs the reaper, the pollers and the control API. Pollers that fail to
// start are logged; the rest keep running. The returned channel carries
// control API listen errors.
func (d *daemon) start(ctx context.Context) <-chan error {
	if d.reaper != nil {
		d.reaper.Start(ctx)
		d.reaping = true
	}
	if err := d.mgr.Start(); err != nil {
		d.log.Warn("Some pollers did not start", zap.Error(err))
	}
	if d.api == nil {
		return nil
	}
	return d.api.Start(d.cfg.HTTP.Addr)
}

// shutdown stops the API first so no control request races the manager
func (d *daemon) shutdown() error {
	var errs []error
	if d.api != nil {
		ctx, cancel := context.WithTimeout(context.Background(), apiShutdownTimeout)
		errs = append(errs, d.api.Shutdown(ctx))
		cancel()
	}
	errs = append(errs, d.mgr.Shutdown(d.cfg.ShutdownTimeout.Duration()))
	errs = append(errs, d.close())
	return errors.Join(errs...)
}

func (d *daemon) close() error {
	if d.reaping {
		d.reaper.Stop()
	}
	if d.store == nil {
		return nil
	}
	return d.store.Close()
}

func runRun(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, sync, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer func() { _ = sync() }()

	d, err := newDaemon(cfg, log, newHTTPClient(), clock.Real())
	if err != nil {
		return err
	}

	log.Info("Starting pollerd",
		zap.String("version", version),
		zap.Int("pollers", len(cfg.Pollers)),
		zap.String("timezone", cfg.Location().String()),
	)

	// cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiErr := d.start(ctx)
	select {
	case err, ok := <-apiErr:
		if ok && err != nil {
			log.Error("Control API failed", zap.Error(err))
			_ = d.shutdown()
			return fmt.Errorf("control API: %w", err)
		}
		<-ctx.Done()
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	if err := d.shutdown(); err != nil {
		log.Warn("Shutdown incomplete", zap.Error(err))
		return err
	}
	log.Info("Shutdown complete")
	return nil
}
