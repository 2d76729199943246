package competition

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// ErrNotFound is returned by the repository when no row matches.
var ErrNotFound = errors.New("competition not found")

// Columns is the select list matching the Competition struct tags.
const Columns = `id, title, description, category, banner_url, status, registration_deadline,
	max_participants, current_participants, created_by, created_at, updated_at`

// Repository persists competitions.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a repo.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a new competition.
func (r *Repository) Insert(ctx context.Context, c Competition) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO competitions (id, title, description, category, banner_url, status, registration_deadline,
			max_participants, current_participants, created_by, created_at, updated_at)
		VALUES (:id, :title, :description, :category, :banner_url, :status, :registration_deadline,
			:max_participants, :current_participants, :created_by, :created_at, :updated_at)
	`, c)
	return errors.Wrap(err, "insert competition")
}

// Get returns a single competition by id.
func (r *Repository) Get(ctx context.Context, id string) (Competition, error) {
	var c Competition
	err := r.db.GetContext(ctx, &c, r.db.Rebind(`SELECT `+Columns+` FROM competitions WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Competition{}, ErrNotFound
	}
	return c, errors.Wrap(err, "get competition")
}

// List returns competitions matching filter, newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]Competition, error) {
	clauses := []string{}
	args := []any{}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	} else if !f.IncludeDraft {
		clauses = append(clauses, "status <> ?")
		args = append(args, StatusDraft)
	}
	if f.CreatedBy != "" {
		clauses = append(clauses, "created_by = ?")
		args = append(args, f.CreatedBy)
	}
	query := `SELECT ` + Columns + ` FROM competitions`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC"

	res := []Competition{}
	if err := r.db.SelectContext(ctx, &res, r.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "list competitions")
	}
	return res, nil
}

// UpdateStatus changes the status column.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status Status, now time.Time) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE competitions SET status = ?, updated_at = ? WHERE id = ?
	`), status, now, id)
	if err != nil {
		return errors.Wrap(err, "update competition status")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReconcileParticipants recomputes every cached participant counter from the
// pending and approved registrations. It returns the number of rows whose
// counter changed.
func (r *Repository) ReconcileParticipants(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE competitions SET current_participants = (
			SELECT COUNT(*) FROM registrations reg
			WHERE reg.competition_id = competitions.id AND reg.status IN ('pending', 'approved')
		)
		WHERE current_participants <> (
			SELECT COUNT(*) FROM registrations reg
			WHERE reg.competition_id = competitions.id AND reg.status IN ('pending', 'approved')
		)
	`)
	if err != nil {
		return 0, errors.Wrap(err, "reconcile participants")
	}
	return res.RowsAffected()
}
