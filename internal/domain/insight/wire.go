package insight

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// AnalyzeRequest is the JSON body of POST /analyze.
type AnalyzeRequest struct {
	Symptoms  []WireSymptom `json:"symptoms"`
	Weather   []WireWeather `json:"weather"`
	Diagnosis string        `json:"diagnosis,omitempty"`
}

// WireSymptom is the serialized form of a SymptomObservation.
type WireSymptom struct {
	Timestamp   string `json:"timestamp"`
	SymptomType string `json:"symptom_type"`
	Severity    int    `json:"severity"`
}

// WireWeather is the serialized form of a WeatherSnapshot.
type WireWeather struct {
	Timestamp   string  `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Humidity    int     `json:"humidity"`
	Pressure    float64 `json:"pressure"`
	Wind        float64 `json:"wind"`
}

// AnalyzeResponse is the JSON body returned by the analysis endpoint.
type AnalyzeResponse struct {
	Message   string   `json:"message"`
	Citations []string `json:"citations"`
}

// Wire converts the request into its wire payload.
func (r InsightRequest) Wire() AnalyzeRequest {
	out := AnalyzeRequest{
		Symptoms:  make([]WireSymptom, 0, len(r.Symptoms)),
		Weather:   make([]WireWeather, 0, len(r.Weather)),
		Diagnosis: r.Diagnosis,
	}
	for _, s := range r.Symptoms {
		out.Symptoms = append(out.Symptoms, WireSymptom{
			Timestamp:   formatTimestamp(s.Timestamp),
			SymptomType: s.SymptomType,
			Severity:    s.Severity,
		})
	}
	for _, w := range r.Weather {
		out.Weather = append(out.Weather, WireWeather{
			Timestamp:   formatTimestamp(w.Timestamp),
			Temperature: w.TemperatureC,
			Humidity:    w.HumidityPct,
			Pressure:    w.PressureHPa,
			Wind:        w.WindSpeedKmh,
		})
	}
	return out
}

// Key is the content hash of the wire payload, used to memoize identical requests.
func (r InsightRequest) Key() string {
	payload, err := json.Marshal(r.Wire())
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// ParseTimestamp accepts the ISO-8601 forms produced by Wire.
func ParseTimestamp(value string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
