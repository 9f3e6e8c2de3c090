package postgres

import (
	"context"
	"database/sql"
	"errors"

	"pickup-backend/internal/domain"
	"pickup-backend/internal/logger"
	"pickup-backend/internal/repository"
)

const membershipColumns = `id, activity_id, participant_id, state, joined_at, left_at, position, removed_by, updated_at`

func scanMembership(row rowScanner) (domain.MembershipEntry, error) {
	var e domain.MembershipEntry
	err := row.Scan(&e.ID, &e.ActivityID, &e.ParticipantID, &e.State, &e.JoinedAt, &e.LeftAt, &e.Position, &e.RemovedBy, &e.UpdatedAt)
	return e, err
}

type rosterRepository struct {
	db *sql.DB
}

func NewRosterRepository(db *sql.DB) repository.RosterRepository {
	return &rosterRepository{db: db}
}

func (r *rosterRepository) LoadRoster(ctx context.Context, activityID int32) (*domain.Roster, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE id = $1 AND deleted_at IS NULL`
	a, err := scanActivity(r.db.QueryRowContext(ctx, query, activityID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrActivityNotFound
	}
	if err != nil {
		return nil, classify("load roster", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+membershipColumns+` FROM activity_memberships
	        WHERE activity_id = $1 AND state IN ('confirmed', 'waitlisted') ORDER BY id`, activityID)
	if err != nil {
		return nil, classify("load roster", err)
	}
	defer rows.Close()

	roster := &domain.Roster{Activity: *a}
	for rows.Next() {
		e, err := scanMembership(rows)
		if err != nil {
			return nil, classify("load roster", err)
		}
		roster.Entries = append(roster.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("load roster", err)
	}
	return roster, nil
}

// CommitRoster writes the counters and ledger rows in one transaction bound to
// ctx. The activity row is updated first; its version predicate detects lost
// writes and the row lock is held until commit.
func (r *rosterRepository) CommitRoster(ctx context.Context, ch *domain.RosterChange) error {
	logger.DatabaseCall("CommitRoster", "UPDATE activities / activity_memberships",
		"activity_id", ch.ActivityID, "expected_version", ch.ExpectedVersion,
		"inserted", len(ch.Inserted), "updated", len(ch.Updated))

	err := r.commit(ctx, ch)
	logger.DatabaseResult("CommitRoster", int64(1+len(ch.Inserted)+len(ch.Updated)), err, "activity_id", ch.ActivityID)
	return err
}

func (r *rosterRepository) commit(ctx context.Context, ch *domain.RosterChange) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin roster commit", err)
	}
	defer tx.Rollback()

	a := ch.Activity
	res, err := tx.ExecContext(ctx, `UPDATE activities SET capacity_min=$1, capacity_max=$2, status=$3, confirmed_count=$4,
	        waitlist_count=$5, version=$6, updated_at=$7 WHERE id=$8 AND version=$9 AND deleted_at IS NULL`,
		a.CapacityMin, a.CapacityMax, a.Status, a.ConfirmedCount, a.WaitlistCount, a.Version, a.UpdatedAt, ch.ActivityID, ch.ExpectedVersion)
	if err != nil {
		return classify("update activity counters", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return classify("update activity counters", err)
	}
	if rows == 0 {
		return domain.ErrVersionConflict
	}

	// Entries leaving the active set go first so a re-join never trips the
	// active-entry unique index.
	for _, e := range ordered(ch.Updated) {
		_, err := tx.ExecContext(ctx, `UPDATE activity_memberships SET state=$1, left_at=$2, position=$3, removed_by=$4, updated_at=$5
		        WHERE id=$6 AND activity_id=$7`,
			e.State, e.LeftAt, e.Position, e.RemovedBy, e.UpdatedAt, e.ID, ch.ActivityID)
		if err != nil {
			return classify("update membership", err)
		}
	}

	ids := make([]int64, len(ch.Inserted))
	for i, e := range ch.Inserted {
		err := tx.QueryRowContext(ctx, `INSERT INTO activity_memberships (activity_id, participant_id, state, joined_at, position, updated_at)
		        VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			ch.ActivityID, e.ParticipantID, e.State, e.JoinedAt, e.Position, e.UpdatedAt).Scan(&ids[i])
		if err != nil {
			return classify("insert membership", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classify("commit roster", err)
	}
	for i := range ch.Inserted {
		ch.Inserted[i].ID = ids[i]
	}
	return nil
}

func ordered(entries []domain.MembershipEntry) []domain.MembershipEntry {
	out := make([]domain.MembershipEntry, 0, len(entries))
	for _, e := range entries {
		if !e.IsActive() {
			out = append(out, e)
		}
	}
	for _, e := range entries {
		if e.IsActive() {
			out = append(out, e)
		}
	}
	return out
}

type membershipRepository struct {
	db *sql.DB
}

func NewMembershipRepository(db *sql.DB) repository.MembershipRepository {
	return &membershipRepository{db: db}
}

func (r *membershipRepository) ListByActivity(ctx context.Context, activityID int32) ([]domain.MembershipEntry, error) {
	return r.list(ctx, `SELECT `+membershipColumns+` FROM activity_memberships WHERE activity_id = $1 ORDER BY id`, activityID)
}

func (r *membershipRepository) ListByParticipant(ctx context.Context, participantID int32) ([]domain.MembershipEntry, error) {
	return r.list(ctx, `SELECT `+membershipColumns+` FROM activity_memberships WHERE participant_id = $1 ORDER BY id`, participantID)
}

func (r *membershipRepository) list(ctx context.Context, query string, arg any) ([]domain.MembershipEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, classify("list memberships", err)
	}
	defer rows.Close()

	var out []domain.MembershipEntry
	for rows.Next() {
		e, err := scanMembership(rows)
		if err != nil {
			return nil, classify("list memberships", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list memberships", err)
	}
	return out, nil
}
