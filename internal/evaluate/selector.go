package evaluate

import (
	"math"
	"sort"

	"pharmacy-forecast/internal/model"
)

type candidate struct {
	name     string
	accuracy float64
	mae      float64
}

// SelectBestModel picks the model with the highest accuracy, breaking ties
// by the lowest MAE. Missing accuracy sorts last, missing MAE counts as +Inf,
// and remaining ties resolve by name so the answer never depends on map
// iteration order. An empty map yields fallback.
func SelectBestModel(metrics map[string]model.ModelMetrics, fallback string) string {
	if len(metrics) == 0 {
		return fallback
	}

	candidates := make([]candidate, 0, len(metrics))
	for name, m := range metrics {
		c := candidate{name: name, accuracy: math.Inf(-1), mae: math.Inf(1)}
		if m.Accuracy != nil && finite(*m.Accuracy) {
			c.accuracy = *m.Accuracy
		}
		if m.MAE != nil && finite(*m.MAE) {
			c.mae = *m.MAE
		}
		candidates = append(candidates, c)
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.accuracy != b.accuracy {
			return a.accuracy > b.accuracy
		}
		if a.mae != b.mae {
			return a.mae < b.mae
		}
		return a.name < b.name
	})
	return candidates[0].name
}
