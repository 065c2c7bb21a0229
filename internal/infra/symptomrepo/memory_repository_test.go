package symptomrepo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/weather-insight/internal/domain/insight"
)

func TestMemoryRepository_ListSinceSkipsDeletedAndOlder(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	base := time.Date(2025, 10, 19, 8, 0, 0, 0, time.UTC)

	for _, obs := range []insight.SymptomObservation{
		{ID: "c", SubjectID: "user-1", Timestamp: base.Add(2 * time.Hour), SymptomType: "Pain", Severity: 6},
		{ID: "a", SubjectID: "user-1", Timestamp: base.Add(-48 * time.Hour), SymptomType: "Pain", Severity: 2},
		{ID: "b", SubjectID: "user-1", Timestamp: base, SymptomType: "Fatigue", Severity: 4},
		{ID: "x", SubjectID: "user-2", Timestamp: base, SymptomType: "Pain", Severity: 9},
	} {
		require.NoError(t, repo.Insert(ctx, obs))
	}

	rows, err := repo.ListSince(ctx, "user-1", base.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "b", rows[0].ID)
	require.Equal(t, "c", rows[1].ID)

	ok, err := repo.SoftDelete(ctx, "user-1", "b", base)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.SoftDelete(ctx, "user-1", "b", base)
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = repo.SoftDelete(ctx, "user-2", "c", base)
	require.NoError(t, err)
	require.False(t, ok)

	rows, err = repo.ListSince(ctx, "user-1", time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "a", rows[0].ID)
	require.Equal(t, "c", rows[1].ID)
}
