package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pharmacy-forecast/internal/cache"
	"pharmacy-forecast/internal/config"
	"pharmacy-forecast/internal/engine"
	"pharmacy-forecast/internal/forecastapi"
	"pharmacy-forecast/internal/notify"
	"pharmacy-forecast/internal/scheduler"
	"pharmacy-forecast/internal/server"
	"pharmacy-forecast/internal/storage"
	"pharmacy-forecast/internal/synth"
	"pharmacy-forecast/internal/tracing"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives tables and listings; defaults to stdout.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newService() *forecastapi.Client {
	cfg := a.Config.ForecastAPI
	return forecastapi.NewClient(forecastapi.Options{
		BaseURL:      cfg.BaseURL,
		APIKey:       cfg.APIKey,
		Timeout:      cfg.RequestTimeout,
		UserAgent:    cfg.UserAgent,
		RetryMax:     cfg.RetryMax,
		RetryWaitMin: cfg.RetryWaitMin,
		RetryWaitMax: cfg.RetryWaitMax,
	}, a.Logger)
}

func (a *App) newNotifier() notify.Notifier {
	if a.Config.Notices.Telegram.Enabled {
		cfg := a.Config.Notices.Telegram
		return notify.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

// newCache builds the series cache. A configured but unreachable Redis
// leaves the cache process-local.
func (a *App) newCache(ctx context.Context, reg prometheus.Registerer) (*cache.Cache, func()) {
	var opts []cache.Option
	if reg != nil {
		opts = append(opts, cache.WithMetrics(cache.NewMetrics(reg)))
	}

	closer := func() {}
	rc := a.Config.Cache.Redis
	if rc.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			a.Logger.Warn().Err(err).Str("addr", rc.Addr).Msg("redis unreachable; series cache stays in-process")
			_ = rdb.Close()
		} else {
			opts = append(opts, cache.WithTier(cache.NewRedisTier(rdb, rc.Prefix, a.Logger)))
			closer = func() { _ = rdb.Close() }
		}
	}
	return cache.New(a.Logger, opts...), closer
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if a.Config.Database.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
	}
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// newController wires the engine. The returned func releases the store and
// the Redis client.
func (a *App) newController(ctx context.Context, reg prometheus.Registerer) (*engine.Controller, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	seriesCache, closeCache := a.newCache(ctx, reg)

	deps := engine.Deps{
		Service: a.newService(),
		Cache:   seriesCache,
		Synth:   synth.New(synth.Options{}, a.Logger),
		Notices: notify.NewBoard(notify.BoardOptions{Capacity: a.Config.Notices.Capacity}, a.newNotifier(), a.Logger),
	}
	if store != nil {
		deps.Snapshots = store
		deps.Runs = store
		deps.Locker = store
	} else {
		a.Logger.Debug().Msg("database.dsn not configured; snapshots disabled")
	}

	ctl := engine.New(a.engineOptions(), deps, a.Logger)

	cleanup := func() {
		closeCache()
		if closeStore != nil {
			closeStore()
		}
	}
	return ctl, cleanup, nil
}

func (a *App) engineOptions() engine.Options {
	return engine.Options{
		DefaultTimeframe:      a.Config.DefaultTimeframe(),
		HorizonDays:           a.Config.Refresh.HorizonDays,
		Models:                a.Config.Retrain.Models,
		ManualMinInterval:     a.Config.Refresh.ManualMinInterval,
		BackgroundMinInterval: a.Config.Refresh.BackgroundMinInterval,
		RecentDays:            a.Config.Synth.RecentDays,
		BandRatio:             a.Config.Synth.BandRatio,
		AdvisoryLockKey:       a.Config.Retrain.AdvisoryLockKey,
	}
}

// Run serves the HTTP API and, when enabled, refreshes the active
// target's forecast in the background.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, a.Config.Tracing, a.Config.App.Name)
	if err != nil {
		return err
	}
	defer shutdownTracing()

	ctl, cleanup, err := a.newController(ctx, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := ctl.LoadCatalog(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("catalog load failed; retry via /api/targets?reload=true")
	}

	srv := server.New(server.Options{
		Addr:         a.Config.Server.Addr,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}, ctl, a.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })

	if a.Config.Refresh.Enabled {
		sched := scheduler.New(scheduler.Options{
			Interval:     a.Config.Refresh.Interval,
			AlignToStart: a.Config.Refresh.AlignToStart,
			StartupDelay: a.Config.Refresh.StartupDelay,
		}, a.Logger)
		g.Go(func() error { return sched.Run(gctx, ctl.BackgroundTick) })
	}

	a.Logger.Info().Str("addr", a.Config.Server.Addr).Bool("background_refresh", a.Config.Refresh.Enabled).Msg("starting forecast service")
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("forecast service stopped")
	return nil
}

// selectTarget loads the catalog and makes key the active target.
func (a *App) selectTarget(ctx context.Context, ctl *engine.Controller, key, timeframe string) (engine.View, error) {
	if _, err := ctl.LoadCatalog(ctx); err != nil {
		return engine.View{}, err
	}
	if timeframe != "" {
		if _, err := ctl.ChangeTimeframe(ctx, timeframe); err != nil {
			return engine.View{}, err
		}
	}
	return ctl.SelectTarget(ctx, key)
}

// ForecastOptions configure the forecast command.
type ForecastOptions struct {
	Key       string
	Timeframe string
	Limit     int
}

// ExportOptions hold parameters for exporting a target's chart.
type ExportOptions struct {
	Key       string
	Timeframe string
	PNGPath   string
	CSVPath   string
	MaxPoints int
	Theme     string
}

// SynthOptions describe an offline synthesized series.
type SynthOptions struct {
	Name          string
	Category      string
	AvgDailySales float64
	UnitPrice     float64
	CostPrice     float64
	Timeframe     string
}

// RetrainOptions configure the retrain command.
type RetrainOptions struct {
	Keys []string
}

// RunsOptions configure the runs command.
type RunsOptions struct {
	Limit       int
	PruneBefore *time.Time
}
