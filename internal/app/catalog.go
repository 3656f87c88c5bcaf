package app

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"
)

// Catalog prints the forecastable targets and the service's training state.
func (a *App) Catalog(ctx context.Context) error {
	svc := a.newService()

	targets, err := svc.ListTargets(ctx)
	if err != nil {
		return err
	}
	categories, err := svc.ListCategories(ctx)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Key\tName\tCategory\tUnit price\tCost price\tAvg daily")
	for _, t := range targets {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%.1f\n",
			t.Key(), t.Name, orDash(t.Category), t.UnitPrice.StringFixed(2), t.CostPrice.StringFixed(2), t.AvgDailySales)
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "\n%d targets, %d categories\n", len(targets), len(categories))

	models, err := svc.ListTrainedModels(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("trained models unavailable")
		return nil
	}
	summary, err := svc.GetAccuracySummary(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("accuracy summary unavailable")
		return nil
	}

	fmt.Fprintf(a.Out, "\ntrained targets %d  average accuracy %s\n", summary.TrainedTargets, formatPct(summary.AverageAccuracy))
	if len(models) == 0 {
		return nil
	}
	sort.Slice(models, func(i, j int) bool {
		if models[i].TargetType != models[j].TargetType {
			return models[i].TargetType < models[j].TargetType
		}
		return models[i].TargetID < models[j].TargetID
	})

	writer = tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Target\tModel\tAccuracy\tTrained (UTC)")
	for _, m := range models {
		trained := "-"
		if m.TrainedAt != nil {
			trained = m.TrainedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(writer, "%s:%d\t%s\t%s\t%s\n", m.TargetType, m.TargetID, m.ModelType, formatPct(m.Accuracy), trained)
	}
	return writer.Flush()
}
