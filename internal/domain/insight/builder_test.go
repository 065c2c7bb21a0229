package insight

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildReturnsFalseWhenBothEmpty(t *testing.T) {
	age := 40
	contexts := []UserContext{
		{},
		{Diagnosis: "Fibromyalgia"},
		{Diagnosis: "Arthritis", AgeRange: &age, Sensitivities: []string{"pressure"}},
	}
	for _, uc := range contexts {
		_, ok := Build(nil, []WeatherSnapshot{}, uc)
		require.False(t, ok)
	}
}

func TestBuildSortsAndKeepsEveryEntry(t *testing.T) {
	symptoms := []SymptomObservation{
		{ID: "b", Timestamp: mustParse("2025-10-19T10:00:00Z"), SymptomType: "Pain", Severity: 6},
		{ID: "a", Timestamp: mustParse("2025-10-19T08:00:00Z"), SymptomType: "Fatigue", Severity: 3},
		{ID: "c", Timestamp: mustParse("2025-10-19T10:00:00Z"), SymptomType: "Stiffness", Severity: 4},
	}
	weather := []WeatherSnapshot{
		{Timestamp: mustParse("2025-10-19T09:00:00Z"), PressureHPa: 1005},
		{Timestamp: mustParse("2025-10-19T07:00:00Z"), PressureHPa: 1012},
	}

	req, ok := Build(symptoms, weather, UserContext{})
	require.True(t, ok)
	require.Len(t, req.Symptoms, 3)
	require.Len(t, req.Weather, 2)
	require.Equal(t, []string{"a", "b", "c"}, []string{req.Symptoms[0].ID, req.Symptoms[1].ID, req.Symptoms[2].ID})
	require.Equal(t, 1012.0, req.Weather[0].PressureHPa)
	require.Equal(t, 1005.0, req.Weather[1].PressureHPa)
	require.ElementsMatch(t, symptoms, req.Symptoms)

	// inputs are not reordered in place
	require.Equal(t, "b", symptoms[0].ID)
}

func TestBuildWithOnlyWeather(t *testing.T) {
	req, ok := Build(nil, []WeatherSnapshot{{Timestamp: mustParse("2025-10-19T08:00:00Z")}}, UserContext{})
	require.True(t, ok)
	require.Empty(t, req.Symptoms)
	require.Len(t, req.Weather, 1)
}

func TestBuildAttachesDiagnosisOnlyWhenPresent(t *testing.T) {
	symptoms := []SymptomObservation{{Timestamp: mustParse("2025-10-19T08:00:00Z"), SymptomType: "Pain", Severity: 8}}

	req, ok := Build(symptoms, nil, UserContext{Diagnosis: "  Migraine "})
	require.True(t, ok)
	require.Equal(t, "Migraine", req.Diagnosis)

	req, ok = Build(symptoms, nil, UserContext{Diagnosis: "   "})
	require.True(t, ok)
	require.Empty(t, req.Diagnosis)

	payload, err := json.Marshal(req.Wire())
	require.NoError(t, err)
	require.NotContains(t, string(payload), "diagnosis")
}

func TestWirePayloadShape(t *testing.T) {
	req := InsightRequest{
		Symptoms: []SymptomObservation{{Timestamp: mustParse("2025-10-19T08:00:00Z"), SymptomType: "Pain", Severity: 8, Notes: "left knee"}},
		Weather: []WeatherSnapshot{{
			Timestamp:            mustParse("2025-10-19T08:00:00Z"),
			TemperatureC:         18.5,
			ApparentTemperatureC: 17.9,
			HumidityPct:          80,
			PressureHPa:          1007,
			WindSpeedKmh:         15,
		}},
		Diagnosis: "Arthritis",
	}

	payload, err := json.Marshal(req.Wire())
	require.NoError(t, err)
	require.JSONEq(t, `{
		"symptoms":[{"timestamp":"2025-10-19T08:00:00Z","symptom_type":"Pain","severity":8}],
		"weather":[{"timestamp":"2025-10-19T08:00:00Z","temperature":18.5,"humidity":80,"pressure":1007,"wind":15}],
		"diagnosis":"Arthritis"
	}`, string(payload))
}

func TestKeyIsContentHash(t *testing.T) {
	a := InsightRequest{Symptoms: []SymptomObservation{{ID: "1", Timestamp: mustParse("2025-10-19T08:00:00Z"), SymptomType: "Pain", Severity: 8}}}
	b := InsightRequest{Symptoms: []SymptomObservation{{ID: "2", Timestamp: mustParse("2025-10-19T08:00:00Z"), SymptomType: "Pain", Severity: 8}}}
	c := InsightRequest{Symptoms: []SymptomObservation{{ID: "1", Timestamp: mustParse("2025-10-19T08:00:00Z"), SymptomType: "Pain", Severity: 7}}}

	require.NotEmpty(t, a.Key())
	require.Equal(t, a.Key(), b.Key())
	require.NotEqual(t, a.Key(), c.Key())
}

func mustParse(value string) time.Time {
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return ts
}
