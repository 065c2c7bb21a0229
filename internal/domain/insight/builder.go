package insight

import (
	"sort"
	"strings"
)

// Build assembles an InsightRequest. ok is false when there is nothing to correlate.
// Inputs are copied and stably sorted ascending by timestamp.
func Build(symptoms []SymptomObservation, weather []WeatherSnapshot, uc UserContext) (InsightRequest, bool) {
	if len(symptoms) == 0 && len(weather) == 0 {
		return InsightRequest{}, false
	}

	req := InsightRequest{
		Symptoms:  sortedSymptoms(symptoms),
		Weather:   sortedWeather(weather),
		Diagnosis: strings.TrimSpace(uc.Diagnosis),
	}
	return req, true
}

func sortedSymptoms(in []SymptomObservation) []SymptomObservation {
	out := make([]SymptomObservation, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func sortedWeather(in []WeatherSnapshot) []WeatherSnapshot {
	out := make([]WeatherSnapshot, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
