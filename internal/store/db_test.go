package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateSQLite(t *testing.T) {
	db, err := Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db))
	// idempotent
	require.NoError(t, Migrate(ctx, db))

	now := time.Now().UTC()
	_, err = db.Exec(`INSERT INTO competitions (id, title, status, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"c1", "Lomba Web", "open", "i1", now, now)
	require.NoError(t, err)

	insert := `INSERT INTO registrations (id, competition_id, student_name, nim, university, registered_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err = db.Exec(insert, "r1", "c1", "Budi", "A001", "POLITEKNIK KAMPAR", now)
	require.NoError(t, err)

	_, err = db.Exec(insert, "r2", "c1", "Budi Lagi", "A001", "POLITEKNIK KAMPAR", now)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}

func TestOpenSQLiteConnection(t *testing.T) {
	db, err := Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, Migrate(context.Background(), db))

	assert.Equal(t, 1, db.Stats().MaxOpenConnections)

	var fk int
	require.NoError(t, db.Get(&fk, `PRAGMA foreign_keys`))
	assert.Equal(t, 1, fk)

	_, err = db.Exec(`INSERT INTO registrations (id, competition_id, student_name, nim, university, registered_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"r1", "no-such-competition", "Budi", "A001", "POLITEKNIK KAMPAR", time.Now().UTC())
	assert.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{":memory:", ":memory:?_foreign_keys=on"},
		{"file:dev.db?cache=shared", "file:dev.db?cache=shared&_foreign_keys=on"},
		{"dev.db?_fk=1", "dev.db?_fk=1"},
		{"dev.db?_foreign_keys=off", "dev.db?_foreign_keys=off"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, sqliteDSN(tc.in))
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "")
	assert.Error(t, err)
}

func TestIsUniqueViolationPlainError(t *testing.T) {
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestNewRedisAddr(t *testing.T) {
	r, err := NewRedis("localhost:6379")
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, "localhost:6379", r.Client.Options().Addr)

	r, err = NewRedis("redis://:secret@cache:6380/2")
	require.NoError(t, err)
	defer r.Close()
	opts := r.Client.Options()
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, time.Second, opts.ReadTimeout)

	_, err = NewRedis("redis://cache:6380/notanumber")
	assert.Error(t, err)

	var nilRedis *Redis
	assert.False(t, nilRedis.Healthy(context.Background()))
}
