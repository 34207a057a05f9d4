package timeline

import (
	"gonum.org/v1/gonum/stat"

	"smileslot/model"
)

// Summarize returns the mean and sample standard deviation of every descriptor
// over the timeline. An empty timeline yields nil. A single point has zero spread.
func Summarize(tl model.Timeline) map[string]model.FeatureSummary {
	if len(tl) == 0 {
		return nil
	}
	columns := make([][]float64, len(model.FeatureNames))
	for i := range columns {
		columns[i] = make([]float64, len(tl))
	}
	for row, p := range tl {
		for col, v := range p.Features.Values() {
			columns[col][row] = v
		}
	}

	out := make(map[string]model.FeatureSummary, len(model.FeatureNames))
	for col, name := range model.FeatureNames {
		if len(tl) == 1 {
			out[name] = model.FeatureSummary{Mean: columns[col][0]}
			continue
		}
		mean, std := stat.MeanStdDev(columns[col], nil)
		out[name] = model.FeatureSummary{Mean: mean, StdDev: std}
	}
	return out
}
