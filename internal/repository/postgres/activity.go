package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pickup-backend/internal/domain"
	"pickup-backend/internal/repository"
)

const activityColumns = `id, creator_id, sport, title, start_time, duration_minutes, capacity_min, capacity_max, status, allow_late_join,
	venue_name, latitude, longitude, confirmed_count, waitlist_count, version, created_at, updated_at, deleted_at, archived_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row rowScanner) (*domain.Activity, error) {
	a := &domain.Activity{}
	err := row.Scan(&a.ID, &a.CreatorID, &a.Sport, &a.Title, &a.StartTime, &a.DurationMinutes, &a.CapacityMin, &a.CapacityMax,
		&a.Status, &a.AllowLateJoin, &a.Venue.Name, &a.Venue.Latitude, &a.Venue.Longitude, &a.ConfirmedCount, &a.WaitlistCount,
		&a.Version, &a.CreatedAt, &a.UpdatedAt, &a.DeletedAt, &a.ArchivedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

type activityRepository struct {
	db *sql.DB
}

func NewActivityRepository(db *sql.DB) repository.ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Create(ctx context.Context, a *domain.Activity) error {
	now := time.Now().UTC()
	query := `INSERT INTO activities (creator_id, sport, title, start_time, duration_minutes, capacity_min, capacity_max, status, allow_late_join,
	          venue_name, latitude, longitude, confirmed_count, waitlist_count, version, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 0, 0, 1, $13, $14) RETURNING id`
	err := r.db.QueryRowContext(ctx, query, a.CreatorID, a.Sport, a.Title, a.StartTime, a.DurationMinutes, a.CapacityMin, a.CapacityMax,
		a.Status, a.AllowLateJoin, a.Venue.Name, a.Venue.Latitude, a.Venue.Longitude, now, now).Scan(&a.ID)
	if err != nil {
		return classify("create activity", err)
	}
	a.Version = 1
	a.ConfirmedCount = 0
	a.WaitlistCount = 0
	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

func (r *activityRepository) GetByID(ctx context.Context, id int32) (*domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE id = $1`
	a, err := scanActivity(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrActivityNotFound
	}
	if err != nil {
		return nil, classify("get activity", err)
	}
	return a, nil
}

func (r *activityRepository) Update(ctx context.Context, a *domain.Activity, expectedVersion int64) error {
	now := time.Now().UTC()
	query := `UPDATE activities SET title=$1, start_time=$2, duration_minutes=$3, status=$4, allow_late_join=$5, venue_name=$6,
	          latitude=$7, longitude=$8, deleted_at=$9, archived_at=$10, version=version+1, updated_at=$11
	          WHERE id=$12 AND version=$13`
	res, err := r.db.ExecContext(ctx, query, a.Title, a.StartTime, a.DurationMinutes, a.Status, a.AllowLateJoin, a.Venue.Name,
		a.Venue.Latitude, a.Venue.Longitude, a.DeletedAt, a.ArchivedAt, now, a.ID, expectedVersion)
	if err != nil {
		return classify("update activity", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return classify("update activity", err)
	}
	if rows == 0 {
		return r.missingOrStale(ctx, a.ID)
	}
	a.Version = expectedVersion + 1
	a.UpdatedAt = now
	return nil
}

// missingOrStale tells a lost optimistic write apart from a missing row.
func (r *activityRepository) missingOrStale(ctx context.Context, id int32) error {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM activities WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return classify("check activity", err)
	}
	if !exists {
		return domain.ErrActivityNotFound
	}
	return domain.ErrVersionConflict
}

func (r *activityRepository) ListDiscoverable(ctx context.Context, q repository.DiscoveryQuery) ([]domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities
	          WHERE deleted_at IS NULL AND archived_at IS NULL
	            AND status IN ('scheduled', 'locked', 'in_progress')
	            AND (start_time > $1 OR allow_late_join)
	            AND latitude BETWEEN $2 AND $3 AND longitude BETWEEN $4 AND $5`
	args := []any{q.Now, q.Bounds.MinLat, q.Bounds.MaxLat, q.Bounds.MinLng, q.Bounds.MaxLng}
	if q.Sport != "" {
		args = append(args, q.Sport)
		query += fmt.Sprintf(" AND sport = $%d", len(args))
	}
	query += " ORDER BY start_time, id"
	return r.list(ctx, "list discoverable", query, args...)
}

func (r *activityRepository) ListDueForTransition(ctx context.Context, horizon time.Time) ([]domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities
	          WHERE deleted_at IS NULL AND status IN ('scheduled', 'locked', 'in_progress') AND start_time <= $1
	          ORDER BY start_time, id`
	return r.list(ctx, "list due for transition", query, horizon)
}

func (r *activityRepository) ListArchivable(ctx context.Context, cutoff time.Time) ([]domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities
	          WHERE archived_at IS NULL AND start_time + duration_minutes * INTERVAL '1 minute' <= $1
	          ORDER BY start_time, id`
	return r.list(ctx, "list archivable", query, cutoff)
}

func (r *activityRepository) list(ctx context.Context, op, query string, args ...any) ([]domain.Activity, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}
