package symptomrepo

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/weather-insight/internal/domain/insight"
	"github.com/yanqian/weather-insight/internal/domain/journal"
)

// PostgresRepository persists observations in the symptoms table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Insert stores a new observation.
func (r *PostgresRepository) Insert(ctx context.Context, obs insight.SymptomObservation) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO symptoms (id, subject_id, observed_at, symptom_type, severity, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, obs.ID, obs.SubjectID, obs.Timestamp.UTC(), obs.SymptomType, obs.Severity, obs.Notes)
	return err
}

// ListSince returns live observations at or after since, ascending.
func (r *PostgresRepository) ListSince(ctx context.Context, subjectID string, since time.Time) ([]insight.SymptomObservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, subject_id, observed_at, symptom_type, severity, notes, deleted_at
		FROM symptoms
		WHERE subject_id = $1 AND observed_at >= $2 AND deleted_at IS NULL
		ORDER BY observed_at ASC, id ASC
	`, subjectID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []insight.SymptomObservation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}

// SoftDelete marks an observation deleted. It reports false for unknown or already deleted ids.
func (r *PostgresRepository) SoftDelete(ctx context.Context, subjectID, id string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE symptoms
		SET deleted_at = $3
		WHERE subject_id = $1 AND id = $2 AND deleted_at IS NULL
	`, subjectID, id, at.UTC())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObservation(row rowScanner) (insight.SymptomObservation, error) {
	var (
		obs       insight.SymptomObservation
		notes     sql.NullString
		deletedAt *time.Time
	)
	if err := row.Scan(&obs.ID, &obs.SubjectID, &obs.Timestamp, &obs.SymptomType, &obs.Severity, &notes, &deletedAt); err != nil {
		return insight.SymptomObservation{}, err
	}
	obs.Timestamp = obs.Timestamp.UTC()
	obs.Notes = notes.String
	if deletedAt != nil {
		utc := deletedAt.UTC()
		obs.DeletedAt = &utc
	}
	return obs, nil
}

var (
	_ journal.SymptomRepository = (*PostgresRepository)(nil)
	_ insight.SymptomStore      = (*PostgresRepository)(nil)
)
