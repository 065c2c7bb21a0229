package profilerepo

import (
	"context"
	"sync"

	"github.com/yanqian/weather-insight/internal/domain/insight"
	"github.com/yanqian/weather-insight/internal/domain/journal"
)

// MemoryRepository keeps profiles in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	profiles map[string]insight.UserContext
}

// NewMemoryRepository constructs an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{profiles: make(map[string]insight.UserContext)}
}

// Get returns a copy of the stored profile.
func (r *MemoryRepository) Get(_ context.Context, subjectID string) (insight.UserContext, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uc, ok := r.profiles[subjectID]
	if !ok {
		return insight.UserContext{}, false, nil
	}
	return clone(uc), true, nil
}

// Upsert replaces the stored profile.
func (r *MemoryRepository) Upsert(_ context.Context, subjectID string, uc insight.UserContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[subjectID] = clone(uc)
	return nil
}

func clone(uc insight.UserContext) insight.UserContext {
	out := insight.UserContext{Diagnosis: uc.Diagnosis}
	if uc.AgeRange != nil {
		age := *uc.AgeRange
		out.AgeRange = &age
	}
	if uc.Location != nil {
		loc := *uc.Location
		out.Location = &loc
	}
	out.Sensitivities = append([]string{}, uc.Sensitivities...)
	return out
}

var (
	_ journal.ProfileRepository = (*MemoryRepository)(nil)
	_ insight.ProfileStore      = (*MemoryRepository)(nil)
)
