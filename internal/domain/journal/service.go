package journal

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yanqian/weather-insight/internal/domain/insight"
	apperrors "github.com/yanqian/weather-insight/pkg/errors"
	"github.com/yanqian/weather-insight/pkg/util"
)

// Service records symptoms and edits the context attached to insight requests.
type Service interface {
	Log(ctx context.Context, req LogRequest) (insight.SymptomObservation, error)
	List(ctx context.Context, subjectID string, since time.Time) ([]insight.SymptomObservation, error)
	Delete(ctx context.Context, subjectID, id string) error
	Profile(ctx context.Context, subjectID string) (Profile, error)
	UpdateProfile(ctx context.Context, subjectID string, req ProfileRequest) (Profile, error)
}

type service struct {
	symptoms SymptomRepository
	profiles ProfileRepository
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// NewService constructs a journal Service.
func NewService(symptoms SymptomRepository, profiles ProfileRepository, logger *slog.Logger) Service {
	return &service{
		symptoms: symptoms,
		profiles: profiles,
		logger:   logger.With("component", "journal.service"),
		now:      util.NowUTC,
		newID:    uuid.NewString,
	}
}

func (s *service) Log(ctx context.Context, req LogRequest) (insight.SymptomObservation, error) {
	subjectID, err := requireSubject(req.SubjectID)
	if err != nil {
		return insight.SymptomObservation{}, err
	}
	symptomType := strings.TrimSpace(req.SymptomType)
	if symptomType == "" {
		return insight.SymptomObservation{}, apperrors.Wrap(apperrors.CodeInvalidInput, "symptomType cannot be empty", nil)
	}
	if req.Severity < MinSeverity || req.Severity > MaxSeverity {
		return insight.SymptomObservation{}, apperrors.Wrap(apperrors.CodeInvalidInput, "severity must be between 1 and 10", nil)
	}
	ts := s.now()
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		ts = *req.Timestamp
	}
	ts = util.TruncateUTC(ts)
	obs := insight.SymptomObservation{
		ID:          s.newID(),
		SubjectID:   subjectID,
		Timestamp:   ts,
		SymptomType: symptomType,
		Severity:    req.Severity,
		Notes:       strings.TrimSpace(req.Notes),
	}
	if err := s.symptoms.Insert(ctx, obs); err != nil {
		return insight.SymptomObservation{}, apperrors.Wrap(apperrors.CodeStorage, "failed to store symptom", err)
	}
	s.logger.Info("symptom logged", "subject", subjectID, "symptom_type", symptomType, "severity", req.Severity)
	return obs, nil
}

func (s *service) List(ctx context.Context, subjectID string, since time.Time) ([]insight.SymptomObservation, error) {
	subjectID, err := requireSubject(subjectID)
	if err != nil {
		return nil, err
	}
	rows, err := s.symptoms.ListSince(ctx, subjectID, since.UTC())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorage, "failed to list symptoms", err)
	}
	out := make([]insight.SymptomObservation, 0, len(rows))
	for _, obs := range rows {
		if obs.Deleted() {
			continue
		}
		out = append(out, obs)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (s *service) Delete(ctx context.Context, subjectID, id string) error {
	subjectID, err := requireSubject(subjectID)
	if err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return apperrors.Wrap(apperrors.CodeInvalidInput, "id cannot be empty", nil)
	}
	found, err := s.symptoms.SoftDelete(ctx, subjectID, id, s.now())
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorage, "failed to delete symptom", err)
	}
	if !found {
		return apperrors.Wrap(apperrors.CodeNotFound, "symptom not found", nil)
	}
	s.logger.Info("symptom deleted", "subject", subjectID, "id", id)
	return nil
}

func (s *service) Profile(ctx context.Context, subjectID string) (Profile, error) {
	subjectID, err := requireSubject(subjectID)
	if err != nil {
		return Profile{}, err
	}
	uc, _, err := s.profiles.Get(ctx, subjectID)
	if err != nil {
		return Profile{}, apperrors.Wrap(apperrors.CodeStorage, "failed to load profile", err)
	}
	if uc.Sensitivities == nil {
		uc.Sensitivities = []string{}
	}
	return Profile{SubjectID: subjectID, Context: uc}, nil
}

func (s *service) UpdateProfile(ctx context.Context, subjectID string, req ProfileRequest) (Profile, error) {
	subjectID, err := requireSubject(subjectID)
	if err != nil {
		return Profile{}, err
	}
	if req.AgeRange != nil && *req.AgeRange <= 0 {
		return Profile{}, apperrors.Wrap(apperrors.CodeInvalidInput, "ageRange must be positive", nil)
	}
	if loc := req.Location; loc != nil {
		if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
			return Profile{}, apperrors.Wrap(apperrors.CodeInvalidInput, "location is out of range", nil)
		}
	}
	uc := insight.UserContext{
		Diagnosis:     strings.TrimSpace(req.Diagnosis),
		AgeRange:      req.AgeRange,
		Sensitivities: normalizeSensitivities(req.Sensitivities),
		Location:      req.Location,
	}
	if err := s.profiles.Upsert(ctx, subjectID, uc); err != nil {
		return Profile{}, apperrors.Wrap(apperrors.CodeStorage, "failed to store profile", err)
	}
	s.logger.Info("profile updated", "subject", subjectID, "diagnosis", uc.Diagnosis != "", "sensitivities", len(uc.Sensitivities))
	return Profile{SubjectID: subjectID, Context: uc}, nil
}

func normalizeSensitivities(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func requireSubject(subjectID string) (string, error) {
	trimmed := strings.TrimSpace(subjectID)
	if trimmed == "" {
		return "", apperrors.Wrap(apperrors.CodeInvalidInput, "subject cannot be empty", nil)
	}
	return trimmed, nil
}
