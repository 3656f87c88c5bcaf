package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"pharmacy-forecast/internal/engine"
)

// Retrain asks the service to retrain the given targets one at a time, or
// the whole catalog when none are given.
func (a *App) Retrain(ctx context.Context, opts RetrainOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ctl, cleanup, err := a.newController(ctx, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := ctl.LoadCatalog(ctx); err != nil {
		return err
	}

	summary, err := ctl.RetrainAll(ctx, opts.Keys, func(p engine.Progress) {
		status := "ok"
		if p.Err != nil {
			status = "failed: " + sanitizeInline(p.Error)
		}
		fmt.Fprintf(a.Out, "[%d/%d] %s %s\n", p.Index, p.Total, p.TargetKey, status)
	})
	if err != nil {
		if errors.Is(err, engine.ErrLocked) {
			a.Logger.Warn().Msg("another process holds the retrain lock")
		}
		return err
	}

	a.Logger.Info().Int("total", summary.Total).Int("succeeded", summary.Succeeded).Int("failed", summary.Failed).Msg("retrain finished")
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d targets failed to retrain", summary.Failed, summary.Total)
	}
	return nil
}
