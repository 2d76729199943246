package registration

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"kompetisi/internal/competition"
	"kompetisi/internal/store"
)

const columns = `id, competition_id, student_name, nim, email, phone, university, ktm_url, status,
	registered_at, approved_at, approved_by, rejected_at, rejected_by, rejection_reason`

// Repository is the SQL-backed Store.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a repo.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// InTx implements Store.
func (r *Repository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(&sqlTx{tx: tx, lock: store.IsPostgres(tx)}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}

// Get implements Store.
func (r *Repository) Get(ctx context.Context, id string) (Registration, error) {
	var reg Registration
	err := r.db.GetContext(ctx, &reg, r.db.Rebind(`SELECT `+columns+` FROM registrations WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Registration{}, ErrNotFound
	}
	return reg, errors.Wrap(err, "get registration")
}

// List implements Store. Results are newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]Registration, error) {
	f = f.normalized()
	clauses := []string{}
	args := []any{}
	if f.CompetitionID != "" {
		clauses = append(clauses, "competition_id = ?")
		args = append(args, f.CompetitionID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.OwnerID != "" {
		clauses = append(clauses, "competition_id IN (SELECT id FROM competitions WHERE created_by = ?)")
		args = append(args, f.OwnerID)
	}
	query := `SELECT ` + columns + ` FROM registrations`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY registered_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	res := []Registration{}
	if err := r.db.SelectContext(ctx, &res, r.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "list registrations")
	}
	return res, nil
}

// CompetitionOwner implements Store.
func (r *Repository) CompetitionOwner(ctx context.Context, competitionID string) (string, error) {
	var owner string
	err := r.db.GetContext(ctx, &owner, r.db.Rebind(`SELECT created_by FROM competitions WHERE id = ?`), competitionID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", competition.ErrNotFound
	}
	return owner, errors.Wrap(err, "get competition owner")
}

type sqlTx struct {
	tx   *sqlx.Tx
	lock bool
}

func (t *sqlTx) forUpdate(q string) string {
	if t.lock {
		q += " FOR UPDATE"
	}
	return t.tx.Rebind(q)
}

func (t *sqlTx) CompetitionForUpdate(ctx context.Context, id string) (competition.Competition, error) {
	var c competition.Competition
	err := t.tx.GetContext(ctx, &c, t.forUpdate(`SELECT `+competition.Columns+` FROM competitions WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return competition.Competition{}, competition.ErrNotFound
	}
	return c, errors.Wrap(err, "lock competition")
}

func (t *sqlTx) RegistrationForUpdate(ctx context.Context, id string) (Registration, error) {
	var reg Registration
	err := t.tx.GetContext(ctx, &reg, t.forUpdate(`SELECT `+columns+` FROM registrations WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Registration{}, ErrNotFound
	}
	return reg, errors.Wrap(err, "lock registration")
}

func (t *sqlTx) NIMRegistered(ctx context.Context, competitionID, nim string) (bool, error) {
	var n int
	err := t.tx.GetContext(ctx, &n, t.tx.Rebind(`
		SELECT COUNT(*) FROM registrations WHERE competition_id = ? AND nim = ?
	`), competitionID, nim)
	if err != nil {
		return false, errors.Wrap(err, "check nim")
	}
	return n > 0, nil
}

func (t *sqlTx) Insert(ctx context.Context, reg Registration) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO registrations (id, competition_id, student_name, nim, email, phone, university, ktm_url,
			status, registered_at)
		VALUES (:id, :competition_id, :student_name, :nim, :email, :phone, :university, :ktm_url,
			:status, :registered_at)
	`, reg)
	if store.IsUniqueViolation(err) {
		return ErrDuplicateNIM
	}
	return errors.Wrap(err, "insert registration")
}

func (t *sqlTx) ActiveCount(ctx context.Context, competitionID string) (int, error) {
	var n int
	err := t.tx.GetContext(ctx, &n, t.tx.Rebind(`
		SELECT COUNT(*) FROM registrations WHERE competition_id = ? AND status IN ('pending', 'approved')
	`), competitionID)
	return n, errors.Wrap(err, "count registrations")
}

func (t *sqlTx) SyncParticipants(ctx context.Context, competitionID string, now time.Time) error {
	_, err := t.tx.ExecContext(ctx, t.tx.Rebind(`
		UPDATE competitions SET current_participants = (
			SELECT COUNT(*) FROM registrations reg
			WHERE reg.competition_id = competitions.id AND reg.status IN ('pending', 'approved')
		), updated_at = ?
		WHERE id = ?
	`), now, competitionID)
	return errors.Wrap(err, "sync participants")
}

func (t *sqlTx) MarkApproved(ctx context.Context, id, reviewerID string, at time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(`
		UPDATE registrations SET status = ?, approved_at = ?, approved_by = ?
		WHERE id = ? AND status = ?
	`), StatusApproved, at, reviewerID, id, StatusPending)
	return affected(res, err, "approve registration")
}

func (t *sqlTx) MarkRejected(ctx context.Context, id, reviewerID string, reason *string, at time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(`
		UPDATE registrations SET status = ?, rejected_at = ?, rejected_by = ?, rejection_reason = ?
		WHERE id = ? AND status = ?
	`), StatusRejected, at, reviewerID, reason, id, StatusPending)
	return affected(res, err, "reject registration")
}

func affected(res sql.Result, err error, op string) (bool, error) {
	if err != nil {
		return false, errors.Wrap(err, op)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, op)
	}
	return n > 0, nil
}
