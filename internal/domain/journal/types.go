package journal

import (
	"context"
	"time"

	"github.com/yanqian/weather-insight/internal/domain/insight"
)

const (
	MinSeverity = 1
	MaxSeverity = 10
)

// LogRequest captures a new symptom observation.
type LogRequest struct {
	SubjectID   string     `json:"subjectId"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	SymptomType string     `json:"symptomType"`
	Severity    int        `json:"severity"`
	Notes       string     `json:"notes,omitempty"`
}

// ProfileRequest replaces a subject's profile.
type ProfileRequest struct {
	Diagnosis     string            `json:"diagnosis"`
	AgeRange      *int              `json:"ageRange,omitempty"`
	Sensitivities []string          `json:"sensitivities"`
	Location      *insight.Location `json:"location,omitempty"`
}

// Profile is the stored view of a subject's context.
type Profile struct {
	SubjectID string              `json:"subjectId"`
	Context   insight.UserContext `json:"context"`
}

// SymptomRepository persists observations.
type SymptomRepository interface {
	Insert(ctx context.Context, obs insight.SymptomObservation) error
	ListSince(ctx context.Context, subjectID string, since time.Time) ([]insight.SymptomObservation, error)
	SoftDelete(ctx context.Context, subjectID, id string, at time.Time) (bool, error)
}

// ProfileRepository persists subject profiles.
type ProfileRepository interface {
	Get(ctx context.Context, subjectID string) (insight.UserContext, bool, error)
	Upsert(ctx context.Context, subjectID string, uc insight.UserContext) error
}
