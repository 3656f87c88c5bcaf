package evaluate

import (
	"pharmacy-forecast/internal/model"
)

// BuildBundle assembles the metrics shown for a target. Accuracy, MAE and
// RMSE come from the forecasting service untouched; when the forecast lacks
// a top-level value the selected model's comparison entry fills it. MAPE is
// the locally computed cross-check and stays nil when it cannot be computed.
func BuildBundle(fc model.ForecastResult, record *model.PerformanceRecord) model.MetricsBundle {
	selected := SelectBestModel(fc.Comparison, fc.ModelType)

	bundle := model.MetricsBundle{
		Model:     selected,
		Accuracy:  fc.Accuracy,
		MAE:       fc.MAE,
		RMSE:      fc.RMSE,
		TrainedAt: fc.TrainedAt,
	}

	if m, ok := fc.Comparison[selected]; ok {
		if selected != fc.ModelType {
			// top-level scores describe a different model
			bundle.Accuracy, bundle.MAE, bundle.RMSE = m.Accuracy, m.MAE, m.RMSE
		} else {
			bundle.Accuracy = coalesce(bundle.Accuracy, m.Accuracy)
			bundle.MAE = coalesce(bundle.MAE, m.MAE)
			bundle.RMSE = coalesce(bundle.RMSE, m.RMSE)
		}
	}

	if record != nil {
		bundle.MAPE = record.MAPE
	}
	return bundle
}

func coalesce(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
