package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"pharmacy-forecast/internal/model"
	"pharmacy-forecast/internal/notify"
	"pharmacy-forecast/internal/storage"
	"pharmacy-forecast/internal/tracing"
)

// Progress is reported after each target of a bulk retrain.
type Progress struct {
	Index     int    `json:"index"`
	Total     int    `json:"total"`
	TargetKey string `json:"target_key"`
	Error     string `json:"error,omitempty"`
	Err       error  `json:"-"`
}

// RetrainSummary is the outcome of RetrainAll.
type RetrainSummary struct {
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Failures  map[string]string `json:"failures,omitempty"`
}

// Retrain trains a single target. On failure the previous forecast and
// metrics are kept and a notice is posted.
func (c *Controller) Retrain(ctx context.Context, key string) (model.ForecastResult, error) {
	target, err := c.Target(key)
	if err != nil {
		return model.ForecastResult{}, err
	}
	return c.retrainOne(ctx, target)
}

// RetrainAll retrains keys one at a time, or the whole catalog when keys is
// empty. A failure on one target does not stop the run. When an advisory
// locker is configured only one process may run a bulk retrain at a time.
func (c *Controller) RetrainAll(ctx context.Context, keys []string, progress func(Progress)) (RetrainSummary, error) {
	if len(keys) == 0 {
		for _, t := range c.Targets() {
			keys = append(keys, t.Key())
		}
	}
	summary := RetrainSummary{Total: len(keys), Failures: make(map[string]string)}
	if len(keys) == 0 {
		return summary, nil
	}

	if c.deps.Locker != nil {
		unlock, acquired, err := c.deps.Locker.TryAdvisoryLock(ctx, c.opts.AdvisoryLockKey)
		if err != nil {
			return summary, fmt.Errorf("acquire retrain lock: %w", err)
		}
		if !acquired {
			return summary, ErrLocked
		}
		defer unlock()
	}

	ctx, span := c.tracer.Start(ctx, "engine.RetrainAll", trace.WithAttributes(attribute.Int("targets", len(keys))))
	defer span.End()

	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		var err error
		target, lookupErr := c.Target(key)
		if lookupErr != nil {
			err = fmt.Errorf("%w: %s", lookupErr, key)
		} else {
			_, err = c.retrainOne(ctx, target)
		}

		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.Failed++
			summary.Failures[key] = err.Error()
		} else {
			summary.Succeeded++
		}

		c.logger.Info().Int("done", i+1).Int("total", len(keys)).Str("target", key).Err(err).Msg("bulk retrain progress")
		if progress != nil {
			p := Progress{Index: i + 1, Total: len(keys), TargetKey: key, Err: err}
			if err != nil {
				p.Error = err.Error()
			}
			progress(p)
		}
	}
	return summary, nil
}

func (c *Controller) retrainOne(ctx context.Context, target model.Target) (model.ForecastResult, error) {
	if c.deps.Service == nil {
		return model.ForecastResult{}, fmt.Errorf("%w: forecast service not configured", ErrTraining)
	}

	ctx, span := c.tracer.Start(ctx, "engine.Retrain", trace.WithAttributes(attribute.String("target", target.Key())))
	defer span.End()

	started := c.now()
	fc, err := c.deps.Service.TrainModel(ctx, target, c.opts.Models)
	c.audit(ctx, target, fc, err, started)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.ForecastResult{}, ctxErr
		}
		tracing.RecordError(ctx, err)
		c.postNotice(ctx, notify.KindTraining, target.Key(), fmt.Sprintf("training %s failed: %v", target.Name, err))
		return model.ForecastResult{}, fmt.Errorf("%w: %s: %v", ErrTraining, target.Key(), err)
	}

	if err := c.RetrainCompleted(ctx, target, fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// RetrainCompleted purges every cached timeframe of target and stores fc as
// its forecast. When target is active its series is reloaded and reconciled;
// otherwise its stale record is dropped until it is next selected.
func (c *Controller) RetrainCompleted(ctx context.Context, target model.Target, fc model.ForecastResult) error {
	purged, err := c.deps.Cache.InvalidateTarget(ctx, target.Type, target.ID)
	if err != nil {
		c.logger.Warn().Err(err).Str("target", target.Key()).Msg("cache tier purge failed")
	}
	c.logger.Info().Str("target", target.Key()).Int("purged", purged).Str("model", fc.ModelType).Msg("retrain completed")

	key := target.Key()
	c.dropSnapshots(ctx, key)

	c.mu.Lock()
	c.forecasts[key] = fc
	if c.active == nil || c.active.Key() != key {
		delete(c.records, key)
		c.mu.Unlock()
		return nil
	}
	c.generation++
	c.series = nil
	active := *c.active
	tf := c.timeframe
	ticket := c.ticketLocked()
	c.mu.Unlock()

	return settle(c.reloadSeries(ctx, ticket, active, tf))
}

// dropSnapshots removes every stored record of a retrained target; they
// describe the previous model.
func (c *Controller) dropSnapshots(ctx context.Context, key string) {
	if c.deps.Snapshots == nil {
		return
	}
	if err := c.deps.Snapshots.DeletePerformance(context.WithoutCancel(ctx), key); err != nil {
		c.logger.Warn().Err(err).Str("target", key).Msg("drop stale snapshots failed")
	}
}

func (c *Controller) audit(ctx context.Context, target model.Target, fc model.ForecastResult, trainErr error, started time.Time) {
	if c.deps.Runs == nil {
		return
	}
	run := storage.TrainingRun{
		TargetKey:  target.Key(),
		Models:     c.opts.Models,
		ModelType:  fc.ModelType,
		Status:     storage.RunSucceeded,
		StartedAt:  started.UTC(),
		FinishedAt: c.now().UTC(),
	}
	if trainErr != nil {
		msg := trainErr.Error()
		run.Status = storage.RunFailed
		run.Error = &msg
	}
	if _, err := c.deps.Runs.InsertTrainingRun(context.WithoutCancel(ctx), run); err != nil {
		c.logger.Error().Err(err).Str("target", target.Key()).Msg("record training run failed")
	}
}
