// Package engine is the controller that drives the forecast pipeline.
//
// Each trigger runs exactly one stage: SelectTarget and ChangeTimeframe load
// the demand series, ApplyForecast reconciles a received forecast, and
// RetrainCompleted purges the target's cached series before reconciling the
// new forecast. Results of asynchronous calls carry a Ticket and are dropped
// when the ticket no longer matches the active target.
package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"pharmacy-forecast/internal/cache"
	"pharmacy-forecast/internal/chartdata"
	"pharmacy-forecast/internal/forecastapi"
	"pharmacy-forecast/internal/model"
	"pharmacy-forecast/internal/notify"
	"pharmacy-forecast/internal/storage"
	"pharmacy-forecast/internal/synth"
	"pharmacy-forecast/internal/tracing"
)

var (
	ErrNoTarget         = errors.New("no target selected")
	ErrUnknownTarget    = errors.New("unknown target")
	ErrInvalidTimeframe = errors.New("invalid timeframe")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrStale            = errors.New("stale response")
	ErrInFlight         = errors.New("refresh already in flight")
	ErrThrottled        = errors.New("refresh requested too soon")
	ErrTraining         = errors.New("training failed")
	ErrLocked           = errors.New("bulk retrain already running elsewhere")
)

// Ticket identifies the request context an async result belongs to.
type Ticket struct {
	TargetKey  string
	Generation uint64
}

// Options tune the controller.
type Options struct {
	DefaultTimeframe      synth.Timeframe
	HorizonDays           int
	Models                []string
	ManualMinInterval     time.Duration
	BackgroundMinInterval time.Duration
	RecentDays            int
	BandRatio             float64
	AdvisoryLockKey       int64
	Now                   func() time.Time
}

// Deps are the collaborators. Service, Notices, Snapshots, Runs and Locker may be nil.
type Deps struct {
	Service   forecastapi.Service
	Cache     *cache.Cache
	Synth     *synth.Synthesizer
	Notices   *notify.Board
	Snapshots storage.PerformanceStore
	Runs      storage.TrainingRunStore
	Locker    storage.AdvisoryLocker
}

// View is a consistent snapshot of the controller state.
type View struct {
	Target    *model.Target            `json:"target"`
	Timeframe synth.Timeframe          `json:"timeframe"`
	Series    []model.DemandPoint      `json:"series"`
	Forecast  *model.ForecastResult    `json:"forecast,omitempty"`
	Record    *model.PerformanceRecord `json:"record,omitempty"`
	Bundle    model.MetricsBundle      `json:"metrics"`
}

// Controller owns the session state. Safe for concurrent use; external
// calls run outside the lock and re-validate their ticket on completion.
type Controller struct {
	mu sync.Mutex

	deps   Deps
	opts   Options
	now    func() time.Time
	logger zerolog.Logger
	tracer trace.Tracer

	catalog    map[string]model.Target
	active     *model.Target
	timeframe  synth.Timeframe
	generation uint64
	series     []model.DemandPoint
	forecasts  map[string]model.ForecastResult
	records    map[string]model.PerformanceRecord
	bundle     model.MetricsBundle

	guards map[string]*refreshGuard
}

// New constructs a Controller.
func New(opts Options, deps Deps, logger zerolog.Logger) *Controller {
	if !opts.DefaultTimeframe.Valid() {
		opts.DefaultTimeframe = synth.Day1
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = 30
	}
	if opts.ManualMinInterval <= 0 {
		opts.ManualMinInterval = 1500 * time.Millisecond
	}
	if opts.BackgroundMinInterval <= 0 {
		opts.BackgroundMinInterval = time.Minute
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if deps.Cache == nil {
		deps.Cache = cache.New(logger)
	}
	if deps.Synth == nil {
		deps.Synth = synth.New(synth.Options{Now: now}, logger)
	}

	return &Controller{
		deps:      deps,
		opts:      opts,
		now:       now,
		logger:    logger.With().Str("component", "engine").Logger(),
		tracer:    tracing.Tracer(),
		catalog:   make(map[string]model.Target),
		timeframe: opts.DefaultTimeframe,
		forecasts: make(map[string]model.ForecastResult),
		records:   make(map[string]model.PerformanceRecord),
		guards:    make(map[string]*refreshGuard),
	}
}

// SetCatalog replaces the known targets.
func (c *Controller) SetCatalog(targets []model.Target) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.catalog = make(map[string]model.Target, len(targets))
	for _, t := range targets {
		c.catalog[t.Key()] = t
	}
}

// LoadCatalog fetches the targets from the forecasting service.
func (c *Controller) LoadCatalog(ctx context.Context) ([]model.Target, error) {
	if c.deps.Service == nil {
		return c.Targets(), nil
	}
	targets, err := c.deps.Service.ListTargets(ctx)
	if err != nil {
		c.postNotice(ctx, notify.KindNetwork, "", "catalog unavailable: "+err.Error())
		return nil, err
	}
	c.SetCatalog(targets)
	c.logger.Info().Int("targets", len(targets)).Msg("catalog loaded")
	return targets, nil
}

// Targets lists the catalog sorted by key.
func (c *Controller) Targets() []model.Target {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Target, 0, len(c.catalog))
	for _, t := range c.catalog {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Target resolves a catalog key.
func (c *Controller) Target(key string) (model.Target, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupLocked(key)
}

func (c *Controller) lookupLocked(key string) (model.Target, error) {
	if key == "" {
		return model.Target{}, ErrNoTarget
	}
	t, ok := c.catalog[key]
	if !ok {
		return model.Target{}, ErrUnknownTarget
	}
	return t, nil
}

// View returns the current state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() View {
	v := View{
		Timeframe: c.timeframe,
		Series:    c.series,
		Bundle:    c.bundle,
	}
	if c.active == nil {
		return v
	}
	target := *c.active
	v.Target = &target
	if fc, ok := c.forecasts[target.Key()]; ok {
		v.Forecast = &fc
	}
	if rec, ok := c.records[target.Key()]; ok {
		v.Record = &rec
	}
	return v
}

// Dataset assembles the chart for the active target.
func (c *Controller) Dataset() (chartdata.Dataset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return chartdata.Dataset{}, ErrNoTarget
	}
	in := chartdata.Input{
		Actual:     c.series,
		UnitPrice:  c.active.UnitPrice,
		CostPrice:  c.active.CostPrice,
		RecentDays: c.opts.RecentDays,
		BandRatio:  c.opts.BandRatio,
	}
	if rec, ok := c.records[c.active.Key()]; ok {
		in.Record = &rec
	}
	return chartdata.Assemble(in), nil
}

// Bundle returns the metrics shown next to the chart.
func (c *Controller) Bundle() (model.MetricsBundle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return model.MetricsBundle{}, ErrNoTarget
	}
	return c.bundle, nil
}

// Notices exposes the notice board, which may be nil.
func (c *Controller) Notices() *notify.Board {
	return c.deps.Notices
}

func (c *Controller) ticketLocked() Ticket {
	if c.active == nil {
		return Ticket{Generation: c.generation}
	}
	return Ticket{TargetKey: c.active.Key(), Generation: c.generation}
}

func (c *Controller) currentLocked(t Ticket) bool {
	return c.active != nil && t.TargetKey == c.active.Key() && t.Generation == c.generation
}

// checkTicket rejects results from a superseded or cancelled request.
func (c *Controller) checkTicketLocked(ctx context.Context, t Ticket) error {
	if ctx.Err() != nil || !c.currentLocked(t) {
		c.logger.Debug().Str("target", t.TargetKey).Uint64("generation", t.Generation).Msg("dropping stale result")
		return ErrStale
	}
	return nil
}

func (c *Controller) postNotice(ctx context.Context, kind notify.Kind, targetKey, msg string) {
	if c.deps.Notices == nil {
		c.logger.Warn().Str("kind", string(kind)).Str("target", targetKey).Msg(msg)
		return
	}
	c.deps.Notices.Post(context.WithoutCancel(ctx), kind, targetKey, msg)
}
