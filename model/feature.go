package model

import (
	"fmt"
	"math"
	"strings"
)

// FeatureSetEGeMAPSv02 is the only feature set the pipeline accepts.
const FeatureSetEGeMAPSv02 = "eGeMAPSv02"

// FeatureVector holds the 25 eGeMAPSv02 low-level descriptors of one frame.
// JSON names are the extractor's column names.
type FeatureVector struct {
	Loudness            float64 `json:"Loudness_sma3"`
	AlphaRatio          float64 `json:"alphaRatio_sma3"`
	HammarbergIndex     float64 `json:"hammarbergIndex_sma3"`
	Slope0To500         float64 `json:"slope0-500_sma3"`
	Slope500To1500      float64 `json:"slope500-1500_sma3"`
	SpectralFlux        float64 `json:"spectralFlux_sma3"`
	MFCC1               float64 `json:"mfcc1_sma3"`
	MFCC2               float64 `json:"mfcc2_sma3"`
	MFCC3               float64 `json:"mfcc3_sma3"`
	MFCC4               float64 `json:"mfcc4_sma3"`
	F0Semitone          float64 `json:"F0semitoneFrom27.5Hz_sma3nz"`
	JitterLocal         float64 `json:"jitterLocal_sma3nz"`
	ShimmerLocalDB      float64 `json:"shimmerLocaldB_sma3nz"`
	HNRdBACF            float64 `json:"HNRdBACF_sma3nz"`
	LogRelF0H1H2        float64 `json:"logRelF0-H1-H2_sma3nz"`
	LogRelF0H1A3        float64 `json:"logRelF0-H1-A3_sma3nz"`
	F1Frequency         float64 `json:"F1frequency_sma3nz"`
	F1Bandwidth         float64 `json:"F1bandwidth_sma3nz"`
	F1AmplitudeLogRelF0 float64 `json:"F1amplitudeLogRelF0_sma3nz"`
	F2Frequency         float64 `json:"F2frequency_sma3nz"`
	F2Bandwidth         float64 `json:"F2bandwidth_sma3nz"`
	F2AmplitudeLogRelF0 float64 `json:"F2amplitudeLogRelF0_sma3nz"`
	F3Frequency         float64 `json:"F3frequency_sma3nz"`
	F3Bandwidth         float64 `json:"F3bandwidth_sma3nz"`
	F3AmplitudeLogRelF0 float64 `json:"F3amplitudeLogRelF0_sma3nz"`
}

// FeatureNames lists the descriptor names in extractor column order.
var FeatureNames = []string{
	"Loudness_sma3",
	"alphaRatio_sma3",
	"hammarbergIndex_sma3",
	"slope0-500_sma3",
	"slope500-1500_sma3",
	"spectralFlux_sma3",
	"mfcc1_sma3",
	"mfcc2_sma3",
	"mfcc3_sma3",
	"mfcc4_sma3",
	"F0semitoneFrom27.5Hz_sma3nz",
	"jitterLocal_sma3nz",
	"shimmerLocaldB_sma3nz",
	"HNRdBACF_sma3nz",
	"logRelF0-H1-H2_sma3nz",
	"logRelF0-H1-A3_sma3nz",
	"F1frequency_sma3nz",
	"F1bandwidth_sma3nz",
	"F1amplitudeLogRelF0_sma3nz",
	"F2frequency_sma3nz",
	"F2bandwidth_sma3nz",
	"F2amplitudeLogRelF0_sma3nz",
	"F3frequency_sma3nz",
	"F3bandwidth_sma3nz",
	"F3amplitudeLogRelF0_sma3nz",
}

// slots returns pointers to the fields in FeatureNames order.
func (v *FeatureVector) slots() []*float64 {
	return []*float64{
		&v.Loudness, &v.AlphaRatio, &v.HammarbergIndex, &v.Slope0To500, &v.Slope500To1500,
		&v.SpectralFlux, &v.MFCC1, &v.MFCC2, &v.MFCC3, &v.MFCC4,
		&v.F0Semitone, &v.JitterLocal, &v.ShimmerLocalDB, &v.HNRdBACF,
		&v.LogRelF0H1H2, &v.LogRelF0H1A3,
		&v.F1Frequency, &v.F1Bandwidth, &v.F1AmplitudeLogRelF0,
		&v.F2Frequency, &v.F2Bandwidth, &v.F2AmplitudeLogRelF0,
		&v.F3Frequency, &v.F3Bandwidth, &v.F3AmplitudeLogRelF0,
	}
}

// Values returns the descriptor values in FeatureNames order.
func (v FeatureVector) Values() []float64 {
	ptrs := v.slots()
	out := make([]float64, len(ptrs))
	for i, p := range ptrs {
		out[i] = *p
	}
	return out
}

// Map returns the vector keyed by descriptor name.
func (v FeatureVector) Map() map[string]float64 {
	vals := v.Values()
	out := make(map[string]float64, len(vals))
	for i, name := range FeatureNames {
		out[name] = vals[i]
	}
	return out
}

// MissingFeaturesError reports descriptors absent from an extractor row.
type MissingFeaturesError struct {
	Missing []string
}

func (e *MissingFeaturesError) Error() string {
	return fmt.Sprintf("missing %d features: %s", len(e.Missing), strings.Join(e.Missing, ", "))
}

// NonFiniteFeatureError reports a NaN or infinite descriptor value.
// Such values cannot be stored in the JSON timeline column.
type NonFiniteFeatureError struct {
	Name  string
	Value float64
}

func (e *NonFiniteFeatureError) Error() string {
	return fmt.Sprintf("feature %s is not finite: %v", e.Name, e.Value)
}

func checkFinite(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return &NonFiniteFeatureError{Name: name, Value: val}
	}
	return nil
}

// FeatureVectorFromMap builds a vector from a name → value row.
// Every descriptor must be present; unknown extra columns are ignored.
func FeatureVectorFromMap(row map[string]float64) (FeatureVector, error) {
	var v FeatureVector
	var missing []string
	for i, p := range v.slots() {
		val, ok := row[FeatureNames[i]]
		if !ok {
			missing = append(missing, FeatureNames[i])
			continue
		}
		if err := checkFinite(FeatureNames[i], val); err != nil {
			return FeatureVector{}, err
		}
		*p = val
	}
	if len(missing) > 0 {
		return FeatureVector{}, &MissingFeaturesError{Missing: missing}
	}
	return v, nil
}

// FeatureVectorFromValues builds a vector from values in FeatureNames order.
func FeatureVectorFromValues(vals []float64) (FeatureVector, error) {
	var v FeatureVector
	ptrs := v.slots()
	if len(vals) != len(ptrs) {
		return FeatureVector{}, fmt.Errorf("expected %d feature values, got %d", len(ptrs), len(vals))
	}
	for i, p := range ptrs {
		if err := checkFinite(FeatureNames[i], vals[i]); err != nil {
			return FeatureVector{}, err
		}
		*p = vals[i]
	}
	return v, nil
}
