package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"pharmacy-forecast/internal/evaluate"
	"pharmacy-forecast/internal/model"
	"pharmacy-forecast/internal/notify"
	"pharmacy-forecast/internal/reconcile"
	"pharmacy-forecast/internal/storage"
	"pharmacy-forecast/internal/synth"
	"pharmacy-forecast/internal/tracing"
)

// RefreshMode selects the minimum re-issue interval.
type RefreshMode int

const (
	Manual RefreshMode = iota
	Background
)

func (m RefreshMode) String() string {
	if m == Background {
		return "background"
	}
	return "manual"
}

type refreshGuard struct {
	inFlight   bool
	manual     *rate.Limiter
	background *rate.Limiter
}

// RefreshForecast requests a new forecast for the active target.
func (c *Controller) RefreshForecast(ctx context.Context, mode RefreshMode) (View, error) {
	c.mu.Lock()
	if c.active == nil {
		c.mu.Unlock()
		return View{}, ErrNoTarget
	}
	target := *c.active
	ticket := c.ticketLocked()
	c.mu.Unlock()

	err := c.refresh(ctx, ticket, target, mode)
	return c.View(), settle(err)
}

// BackgroundTick is the scheduler hook; it refreshes the active target, if any.
func (c *Controller) BackgroundTick(ctx context.Context, _ time.Time) error {
	c.mu.Lock()
	if c.active == nil {
		c.mu.Unlock()
		return nil
	}
	target := *c.active
	ticket := c.ticketLocked()
	c.mu.Unlock()

	if err := c.refresh(ctx, ticket, target, Background); err != nil && !isQuiet(err) {
		return err
	}
	return nil
}

func (c *Controller) refresh(ctx context.Context, ticket Ticket, target model.Target, mode RefreshMode) error {
	if c.deps.Service == nil {
		return nil
	}
	release, err := c.acquireRefresh(target.Key(), mode)
	if err != nil {
		c.logger.Debug().Err(err).Str("target", target.Key()).Str("mode", mode.String()).Msg("refresh skipped")
		return err
	}
	defer release()

	ctx, span := c.tracer.Start(ctx, "engine.RefreshForecast", trace.WithAttributes(
		attribute.String("target", target.Key()),
		attribute.String("mode", mode.String()),
	))
	defer span.End()

	fc, err := c.deps.Service.GetForecast(ctx, target, c.opts.HorizonDays)
	if err != nil {
		if ctx.Err() != nil {
			return ErrStale
		}
		tracing.RecordError(ctx, err)
		c.postNotice(ctx, notify.KindNetwork, target.Key(), fmt.Sprintf("forecast for %s unavailable: %v", target.Name, err))
		return fmt.Errorf("fetch forecast %s: %w", target.Key(), err)
	}
	return c.ApplyForecast(ctx, ticket, fc)
}

func (c *Controller) acquireRefresh(key string, mode RefreshMode) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.guards[key]
	if !ok {
		g = &refreshGuard{
			manual:     rate.NewLimiter(rate.Every(c.opts.ManualMinInterval), 1),
			background: rate.NewLimiter(rate.Every(c.opts.BackgroundMinInterval), 1),
		}
		c.guards[key] = g
	}
	if g.inFlight {
		return nil, ErrInFlight
	}
	limiter := g.manual
	if mode == Background {
		limiter = g.background
	}
	if !limiter.AllowN(c.now(), 1) {
		return nil, ErrThrottled
	}
	g.inFlight = true

	return func() {
		c.mu.Lock()
		g.inFlight = false
		c.mu.Unlock()
	}, nil
}

// ApplyForecast is the "forecast received" trigger: it stores fc for the
// ticket's target and reconciles it against the current series. Results for
// a superseded ticket return ErrStale and change nothing.
func (c *Controller) ApplyForecast(ctx context.Context, ticket Ticket, fc model.ForecastResult) error {
	ctx, span := c.tracer.Start(ctx, "engine.ApplyForecast")
	defer span.End()

	c.mu.Lock()
	if err := c.checkTicketLocked(ctx, ticket); err != nil {
		c.mu.Unlock()
		return err
	}
	target := *c.active
	c.forecasts[target.Key()] = fc
	tf := c.timeframe
	record, bundle, changed := c.reconcileLocked(target)
	c.mu.Unlock()

	c.logger.Info().
		Str("target", target.Key()).
		Str("model", bundle.Model).
		Int("values", len(fc.Values)).
		Msg("forecast applied")

	if changed {
		c.persist(ctx, record, tf, bundle)
	}
	return nil
}

// reconcileLocked recomputes the active target's record from the stored
// forecast. When nothing aligns the previous record is kept.
func (c *Controller) reconcileLocked(target model.Target) (model.PerformanceRecord, model.MetricsBundle, bool) {
	key := target.Key()
	fc, ok := c.forecasts[key]
	if !ok {
		return model.PerformanceRecord{}, c.bundle, false
	}

	record, ok := reconcile.Reconcile(key, c.series, fc, c.timeframe.Interval(), c.now().UTC())
	if !ok {
		prev, had := c.records[key]
		if had {
			c.bundle = evaluate.BuildBundle(fc, &prev)
		} else {
			c.bundle = evaluate.BuildBundle(fc, nil)
		}
		return model.PerformanceRecord{}, c.bundle, false
	}
	c.records[key] = record
	c.bundle = evaluate.BuildBundle(fc, &record)
	return record, c.bundle, true
}

func (c *Controller) persist(ctx context.Context, record model.PerformanceRecord, tf synth.Timeframe, bundle model.MetricsBundle) {
	if c.deps.Snapshots == nil {
		return
	}
	snap, err := storage.NewSnapshot(record, string(tf), bundle)
	if err != nil {
		c.logger.Error().Err(err).Str("target", record.TargetKey).Msg("encode snapshot failed")
		return
	}
	if err := c.deps.Snapshots.UpsertPerformance(context.WithoutCancel(ctx), snap); err != nil {
		c.logger.Error().Err(err).Str("target", record.TargetKey).Msg("persist snapshot failed")
	}
}
