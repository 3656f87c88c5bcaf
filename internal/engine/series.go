package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pharmacy-forecast/internal/cache"
	"pharmacy-forecast/internal/evaluate"
	"pharmacy-forecast/internal/model"
	"pharmacy-forecast/internal/notify"
	"pharmacy-forecast/internal/synth"
	"pharmacy-forecast/internal/tracing"
)

// SelectTarget makes key the active target, loads its series and requests a
// fresh forecast. A failed forecast request leaves a notice, not an error.
func (c *Controller) SelectTarget(ctx context.Context, key string) (View, error) {
	ctx, span := c.tracer.Start(ctx, "engine.SelectTarget", trace.WithAttributes(attribute.String("target", key)))
	defer span.End()

	c.mu.Lock()
	target, err := c.lookupLocked(key)
	if err != nil {
		c.mu.Unlock()
		return View{}, err
	}
	c.active = &target
	c.generation++
	c.series = nil
	c.bundle = model.MetricsBundle{}
	tf := c.timeframe
	ticket := c.ticketLocked()
	c.mu.Unlock()

	c.logger.Info().Str("target", key).Str("timeframe", string(tf)).Msg("target selected")

	if err := c.reloadSeries(ctx, ticket, target, tf); err != nil {
		return c.View(), settle(err)
	}
	c.restoreSnapshot(ctx, ticket, target, tf)

	if err := c.refresh(ctx, ticket, target, Manual); err != nil && !isQuiet(err) {
		c.logger.Warn().Err(err).Str("target", key).Msg("forecast refresh after select failed")
	}
	return c.View(), nil
}

// ChangeTimeframe switches the aggregation granularity. The active target's
// cache entry for the new timeframe is invalidated and the series reloaded;
// the stored forecast is reconciled against it without a new fetch.
func (c *Controller) ChangeTimeframe(ctx context.Context, raw string) (View, error) {
	tf, err := synth.ParseTimeframe(raw)
	if err != nil {
		return View{}, fmt.Errorf("%w: %q", ErrInvalidTimeframe, raw)
	}

	ctx, span := c.tracer.Start(ctx, "engine.ChangeTimeframe", trace.WithAttributes(attribute.String("timeframe", string(tf))))
	defer span.End()

	c.mu.Lock()
	if tf == c.timeframe && c.series != nil {
		v := c.viewLocked()
		c.mu.Unlock()
		return v, nil
	}
	c.timeframe = tf
	if c.active == nil {
		v := c.viewLocked()
		c.mu.Unlock()
		return v, nil
	}
	c.generation++
	target := *c.active
	ticket := c.ticketLocked()
	c.mu.Unlock()

	if err := c.deps.Cache.Invalidate(ctx, cache.KeyFor(target, tf)); err != nil {
		c.logger.Warn().Err(err).Str("target", target.Key()).Msg("cache tier invalidate failed")
	}
	if err := c.reloadSeries(ctx, ticket, target, tf); err != nil {
		return c.View(), settle(err)
	}
	return c.View(), nil
}

// reloadSeries loads the series and reconciles the stored forecast, if any.
func (c *Controller) reloadSeries(ctx context.Context, ticket Ticket, target model.Target, tf synth.Timeframe) error {
	series, err := c.loadSeries(ctx, target, tf)
	if err != nil {
		if ctx.Err() != nil {
			return ErrStale
		}
		return err
	}

	c.mu.Lock()
	if err := c.checkTicketLocked(ctx, ticket); err != nil || c.timeframe != tf {
		c.mu.Unlock()
		return ErrStale
	}
	c.series = series
	record, bundle, changed := c.reconcileLocked(target)
	c.mu.Unlock()

	if changed {
		c.persist(ctx, record, tf, bundle)
	}
	return nil
}

// loadSeries reads through the cache. On a miss it fetches real history and
// falls back to synthesis when the history is empty or the call fails.
func (c *Controller) loadSeries(ctx context.Context, target model.Target, tf synth.Timeframe) ([]model.DemandPoint, error) {
	ctx, span := c.tracer.Start(ctx, "engine.loadSeries")
	defer span.End()

	return c.deps.Cache.GetOrCompute(ctx, cache.KeyFor(target, tf), func(ctx context.Context) ([]model.DemandPoint, error) {
		if c.deps.Service == nil {
			return c.deps.Synth.Generate(target, tf), nil
		}

		rows, err := c.deps.Service.GetHistoricalSeries(ctx, target, tf)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			tracing.RecordError(ctx, err)
			c.postNotice(ctx, notify.KindNetwork, target.Key(), fmt.Sprintf("history for %s unavailable, showing synthesized demand", target.Name))
			return c.deps.Synth.Generate(target, tf), nil
		}

		series := synth.FromHistory(target, rows)
		if len(series) == 0 {
			c.logger.Debug().Str("target", target.Key()).Str("timeframe", string(tf)).Msg("no history, synthesizing")
			return c.deps.Synth.Generate(target, tf), nil
		}
		return series, nil
	})
}

// restoreSnapshot seeds the record from storage when nothing is in memory yet.
func (c *Controller) restoreSnapshot(ctx context.Context, ticket Ticket, target model.Target, tf synth.Timeframe) {
	if c.deps.Snapshots == nil {
		return
	}
	c.mu.Lock()
	_, haveForecast := c.forecasts[target.Key()]
	_, haveRecord := c.records[target.Key()]
	c.mu.Unlock()
	if haveForecast || haveRecord {
		return
	}

	snap, err := c.deps.Snapshots.GetPerformance(ctx, target.Key(), string(tf))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			c.logger.Warn().Err(err).Str("target", target.Key()).Msg("load snapshot failed")
		}
		return
	}
	record, err := snap.Record()
	if err != nil {
		c.logger.Warn().Err(err).Str("target", target.Key()).Msg("decode snapshot failed")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.checkTicketLocked(ctx, ticket) != nil {
		return
	}
	if _, ok := c.records[target.Key()]; ok {
		return
	}
	mape := snap.MAPE
	if mape == nil {
		if m, ok := evaluate.RecordMAPE(record); ok {
			mape = model.Float(m)
		}
	}
	record.MAPE = mape
	c.records[target.Key()] = record
	c.bundle = model.MetricsBundle{Model: snap.ModelType, Accuracy: snap.Accuracy, MAPE: mape}
}

func settle(err error) error {
	if errors.Is(err, ErrStale) {
		return nil
	}
	return err
}

func isQuiet(err error) bool {
	return errors.Is(err, ErrStale) || errors.Is(err, ErrThrottled) || errors.Is(err, ErrInFlight)
}
