package profilerepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/weather-insight/internal/domain/insight"
	"github.com/yanqian/weather-insight/internal/domain/journal"
)

// PostgresRepository persists profiles in the profiles table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get fetches a profile by subject.
func (r *PostgresRepository) Get(ctx context.Context, subjectID string) (insight.UserContext, bool, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT diagnosis, age_range, sensitivities, latitude, longitude
		FROM profiles
		WHERE subject_id = $1
	`, subjectID)
	var (
		uc        insight.UserContext
		diagnosis sql.NullString
		age       *int32
		lat, lon  *float64
	)
	if err := row.Scan(&diagnosis, &age, &uc.Sensitivities, &lat, &lon); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return insight.UserContext{}, false, nil
		}
		return insight.UserContext{}, false, err
	}
	uc.Diagnosis = diagnosis.String
	if age != nil {
		v := int(*age)
		uc.AgeRange = &v
	}
	if lat != nil && lon != nil {
		uc.Location = &insight.Location{Latitude: *lat, Longitude: *lon}
	}
	return uc, true, nil
}

// Upsert inserts or replaces a profile.
func (r *PostgresRepository) Upsert(ctx context.Context, subjectID string, uc insight.UserContext) error {
	var (
		age      any
		lat, lon any
	)
	if uc.AgeRange != nil {
		age = int32(*uc.AgeRange)
	}
	if uc.Location != nil {
		lat, lon = uc.Location.Latitude, uc.Location.Longitude
	}
	sensitivities := uc.Sensitivities
	if sensitivities == nil {
		sensitivities = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO profiles (subject_id, diagnosis, age_range, sensitivities, latitude, longitude, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (subject_id) DO UPDATE SET
			diagnosis = EXCLUDED.diagnosis,
			age_range = EXCLUDED.age_range,
			sensitivities = EXCLUDED.sensitivities,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			updated_at = NOW()
	`, subjectID, uc.Diagnosis, age, sensitivities, lat, lon)
	return err
}

var (
	_ journal.ProfileRepository = (*PostgresRepository)(nil)
	_ insight.ProfileStore      = (*PostgresRepository)(nil)
)
