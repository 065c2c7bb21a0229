package symptomrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yanqian/weather-insight/internal/domain/insight"
	"github.com/yanqian/weather-insight/internal/domain/journal"
)

// MemoryRepository keeps symptom observations in process memory.
type MemoryRepository struct {
	mu        sync.RWMutex
	bySubject map[string][]insight.SymptomObservation
}

// NewMemoryRepository constructs an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{bySubject: make(map[string][]insight.SymptomObservation)}
}

// Insert stores a new observation.
func (r *MemoryRepository) Insert(_ context.Context, obs insight.SymptomObservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySubject[obs.SubjectID] = append(r.bySubject[obs.SubjectID], obs)
	return nil
}

// ListSince returns live observations at or after since, ascending.
func (r *MemoryRepository) ListSince(_ context.Context, subjectID string, since time.Time) ([]insight.SymptomObservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []insight.SymptomObservation
	for _, obs := range r.bySubject[subjectID] {
		if obs.Deleted() || obs.Timestamp.Before(since) {
			continue
		}
		out = append(out, obs)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// SoftDelete marks an observation deleted. It reports false for unknown or already deleted ids.
func (r *MemoryRepository) SoftDelete(_ context.Context, subjectID, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := r.bySubject[subjectID]
	for i := range rows {
		if rows[i].ID != id || rows[i].Deleted() {
			continue
		}
		deletedAt := at.UTC()
		rows[i].DeletedAt = &deletedAt
		return true, nil
	}
	return false, nil
}

var (
	_ journal.SymptomRepository = (*MemoryRepository)(nil)
	_ insight.SymptomStore      = (*MemoryRepository)(nil)
)
