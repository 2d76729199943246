package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

// Open connects to Postgres (pgx) or SQLite with sane pool defaults.
// SQLite is limited to one connection that is never recycled: transactions
// serialize, and a :memory: database lives as long as that connection does.
func Open(driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// sqliteDSN turns on foreign keys for every connection the driver opens.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys=") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on"
}

// IsPostgres reports whether db talks to Postgres.
func IsPostgres(db interface{ DriverName() string }) bool {
	return db.DriverName() == DriverPostgres
}

// IsUniqueViolation reports whether err is a unique-constraint violation
// from either supported driver.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

const schema = `
CREATE TABLE IF NOT EXISTS competitions (
	id                    TEXT PRIMARY KEY,
	title                 TEXT NOT NULL,
	description           TEXT NOT NULL DEFAULT '',
	category              TEXT NOT NULL DEFAULT '',
	banner_url            TEXT NOT NULL DEFAULT '',
	status                TEXT NOT NULL DEFAULT 'draft',
	registration_deadline {{ts}},
	max_participants      INTEGER,
	current_participants  INTEGER NOT NULL DEFAULT 0,
	created_by            TEXT NOT NULL,
	created_at            {{ts}} NOT NULL,
	updated_at            {{ts}} NOT NULL,
	CHECK (status IN ('draft','open','ongoing','closed','finished')),
	CHECK (max_participants IS NULL OR current_participants <= max_participants)
);

CREATE TABLE IF NOT EXISTS registrations (
	id               TEXT PRIMARY KEY,
	competition_id   TEXT NOT NULL REFERENCES competitions(id),
	student_name     TEXT NOT NULL,
	nim              TEXT NOT NULL,
	email            TEXT NOT NULL DEFAULT '',
	phone            TEXT NOT NULL DEFAULT '',
	university       TEXT NOT NULL,
	ktm_url          TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'pending',
	registered_at    {{ts}} NOT NULL,
	approved_at      {{ts}},
	approved_by      TEXT,
	rejected_at      {{ts}},
	rejected_by      TEXT,
	rejection_reason TEXT,
	CHECK (status IN ('pending','approved','rejected'))
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_registrations_competition_nim ON registrations(competition_id, nim);
CREATE INDEX IF NOT EXISTS idx_registrations_registered_at ON registrations(registered_at);
CREATE INDEX IF NOT EXISTS idx_competitions_created_by ON competitions(created_by);
`

// Migrate creates the tables and indexes if they do not exist.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	ts := "TIMESTAMP"
	if IsPostgres(db) {
		ts = "TIMESTAMPTZ"
	}
	ddl := strings.ReplaceAll(schema, "{{ts}}", ts)
	for _, stmt := range strings.Split(ddl, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
