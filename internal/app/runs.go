package app

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"
)

// Runs prints recent training runs and optionally prunes old ones.
func (a *App) Runs(ctx context.Context, opts RunsOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; no training runs recorded")
	}
	defer closeStore()

	if opts.PruneBefore != nil {
		if err := store.DeleteRunsBefore(ctx, *opts.PruneBefore); err != nil {
			return err
		}
		a.Logger.Info().Time("before", *opts.PruneBefore).Msg("pruned training runs")
	}

	runs, err := store.ListRecentRuns(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(a.Out, "no training runs found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Started (UTC)\tTarget\tStatus\tModel\tDuration\tError")
	for _, run := range runs {
		errMsg := ""
		if run.Error != nil {
			errMsg = sanitizeInline(*run.Error)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
			run.StartedAt.UTC().Format(time.RFC3339),
			run.TargetKey,
			run.Status,
			orDash(run.ModelType),
			run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond),
			errMsg,
		)
	}
	return writer.Flush()
}
