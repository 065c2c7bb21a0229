package journal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/weather-insight/internal/domain/insight"
	apperrors "github.com/yanqian/weather-insight/pkg/errors"
)

func TestService_LogValidatesAndStores(t *testing.T) {
	svc, symptoms, _ := newTestService()
	now := time.Date(2025, 10, 19, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	obs, err := svc.Log(context.Background(), LogRequest{SubjectID: " user-1 ", SymptomType: " Joint pain ", Severity: 7, Notes: " left knee "})
	require.NoError(t, err)
	require.Equal(t, "id-1", obs.ID)
	require.Equal(t, "user-1", obs.SubjectID)
	require.Equal(t, "Joint pain", obs.SymptomType)
	require.Equal(t, "left knee", obs.Notes)
	require.Equal(t, now, obs.Timestamp)
	require.Len(t, symptoms.rows, 1)

	at := time.Date(2025, 10, 19, 16, 0, 0, 0, time.FixedZone("SGT", 8*3600))
	obs, err = svc.Log(context.Background(), LogRequest{SubjectID: "user-1", SymptomType: "Fatigue", Severity: 1, Timestamp: &at})
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 10, 19, 8, 0, 0, 0, time.UTC), obs.Timestamp)

	cases := []LogRequest{
		{SubjectID: "", SymptomType: "Pain", Severity: 5},
		{SubjectID: "user-1", SymptomType: "   ", Severity: 5},
		{SubjectID: "user-1", SymptomType: "Pain", Severity: 0},
		{SubjectID: "user-1", SymptomType: "Pain", Severity: 11},
	}
	for _, req := range cases {
		_, err := svc.Log(context.Background(), req)
		require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput), "request %+v", req)
	}
	require.Len(t, symptoms.rows, 2)
}

func TestService_ListAndDelete(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	base := time.Date(2025, 10, 19, 8, 0, 0, 0, time.UTC)

	later := base.Add(2 * time.Hour)
	earlier := base
	_, err := svc.Log(ctx, LogRequest{SubjectID: "user-1", SymptomType: "Pain", Severity: 6, Timestamp: &later})
	require.NoError(t, err)
	first, err := svc.Log(ctx, LogRequest{SubjectID: "user-1", SymptomType: "Fatigue", Severity: 3, Timestamp: &earlier})
	require.NoError(t, err)
	_, err = svc.Log(ctx, LogRequest{SubjectID: "user-2", SymptomType: "Pain", Severity: 9, Timestamp: &later})
	require.NoError(t, err)

	rows, err := svc.List(ctx, "user-1", base.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "Fatigue", rows[0].SymptomType)

	require.NoError(t, svc.Delete(ctx, "user-1", first.ID))
	rows, err = svc.List(ctx, "user-1", base.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Pain", rows[0].SymptomType)

	err = svc.Delete(ctx, "user-1", first.ID)
	require.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
	err = svc.Delete(ctx, "user-2", "missing")
	require.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestService_StorageFailuresAreWrapped(t *testing.T) {
	svc, symptoms, profiles := newTestService()
	symptoms.err = errors.New("db down")
	profiles.err = errors.New("db down")

	_, err := svc.Log(context.Background(), LogRequest{SubjectID: "user-1", SymptomType: "Pain", Severity: 5})
	require.True(t, apperrors.IsCode(err, apperrors.CodeStorage))
	_, err = svc.List(context.Background(), "user-1", time.Time{})
	require.True(t, apperrors.IsCode(err, apperrors.CodeStorage))
	_, err = svc.Profile(context.Background(), "user-1")
	require.True(t, apperrors.IsCode(err, apperrors.CodeStorage))
}

func TestService_UpdateProfileNormalizes(t *testing.T) {
	svc, _, profiles := newTestService()
	ctx := context.Background()

	empty, err := svc.Profile(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "", empty.Context.Diagnosis)
	require.NotNil(t, empty.Context.Sensitivities)

	age := 40
	profile, err := svc.UpdateProfile(ctx, "user-1", ProfileRequest{
		Diagnosis:     "  Rheumatoid arthritis ",
		AgeRange:      &age,
		Sensitivities: []string{" Pressure", "humidity", "pressure", ""},
		Location:      &insight.Location{Latitude: 1.35, Longitude: 103.8},
	})
	require.NoError(t, err)
	require.Equal(t, "Rheumatoid arthritis", profile.Context.Diagnosis)
	require.Equal(t, []string{"pressure", "humidity"}, profile.Context.Sensitivities)
	require.Equal(t, profile.Context, profiles.rows["user-1"])

	loaded, err := svc.Profile(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, profile, loaded)

	zero := 0
	_, err = svc.UpdateProfile(ctx, "user-1", ProfileRequest{AgeRange: &zero})
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
	_, err = svc.UpdateProfile(ctx, "user-1", ProfileRequest{Location: &insight.Location{Latitude: 91}})
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
}

func newTestService() (*service, *memorySymptoms, *memoryProfiles) {
	symptoms := &memorySymptoms{}
	profiles := &memoryProfiles{rows: make(map[string]insight.UserContext)}
	svc := NewService(symptoms, profiles, slog.New(slog.NewTextHandler(io.Discard, nil))).(*service)
	var next int
	svc.newID = func() string {
		next++
		return "id-" + strconv.Itoa(next)
	}
	return svc, symptoms, profiles
}

type memorySymptoms struct {
	mu   sync.Mutex
	rows []insight.SymptomObservation
	err  error
}

func (m *memorySymptoms) Insert(_ context.Context, obs insight.SymptomObservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, obs)
	return nil
}

func (m *memorySymptoms) ListSince(_ context.Context, subjectID string, since time.Time) ([]insight.SymptomObservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []insight.SymptomObservation
	for _, obs := range m.rows {
		if obs.SubjectID == subjectID && !obs.Timestamp.Before(since) {
			out = append(out, obs)
		}
	}
	return out, nil
}

func (m *memorySymptoms) SoftDelete(_ context.Context, subjectID, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].SubjectID == subjectID && m.rows[i].ID == id && !m.rows[i].Deleted() {
			m.rows[i].DeletedAt = &at
			return true, nil
		}
	}
	return false, nil
}

type memoryProfiles struct {
	rows map[string]insight.UserContext
	err  error
}

func (m *memoryProfiles) Get(_ context.Context, subjectID string) (insight.UserContext, bool, error) {
	if m.err != nil {
		return insight.UserContext{}, false, m.err
	}
	uc, ok := m.rows[subjectID]
	return uc, ok, nil
}

func (m *memoryProfiles) Upsert(_ context.Context, subjectID string, uc insight.UserContext) error {
	if m.err != nil {
		return m.err
	}
	m.rows[subjectID] = uc
	return nil
}
