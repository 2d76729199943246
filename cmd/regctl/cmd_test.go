package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kompetisi/internal/access"
	"kompetisi/internal/auth"
	"kompetisi/internal/competition"
	"kompetisi/internal/config"
	"kompetisi/internal/store"
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	t.Helper()
	db, err := store.Open(store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var out bytes.Buffer
	return &commandLine{
		db:    db,
		comps: competition.NewService(competition.NewRepository(db)),
		cfg: config.App{
			JWTIssuer:     "kompetisi",
			JWTSigningKey: "cli-test-key",
			AccessTTL:     time.Hour,
		},
		out: &out,
	}, &out
}

type cliTest struct {
	name    string
	args    []string // without program name
	wantErr error
	wantOut string
}

func Test_commandLine_run(t *testing.T) {
	cli, out := setup(t)
	ctx := context.Background()

	tests := []cliTest{
		{name: "no command", args: nil, wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "migrate", args: []string{"migrate"}, wantOut: "migrations applied"},
		{name: "migrate twice", args: []string{"migrate"}, wantOut: "migrations applied"},
		{name: "reconcile", args: []string{"reconcile"}, wantOut: "0 competition(s) corrected"},
		{name: "token: no args", args: []string{"token"}, wantErr: errHelp},
		{name: "token: bad role", args: []string{"token", "-sub", "u1", "-role", "root"}, wantErr: errHelp},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out.Reset()
			err := cli.run(ctx, append([]string{"regctl"}, tc.args...))
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out.String(), tc.wantOut)
		})
	}
}

func Test_commandLine_token(t *testing.T) {
	cli, out := setup(t)

	require.NoError(t, cli.run(context.Background(), []string{"regctl", "token", "-sub", "instr-9", "-role", "instructor", "-ttl", "5m"}))

	claims, err := auth.Parse(strings.TrimSpace(out.String()), "cli-test-key", "kompetisi")
	require.NoError(t, err)
	p, ok := claims.Principal()
	require.True(t, ok)
	assert.Equal(t, "instr-9", p.ID)
	assert.Equal(t, access.RoleInstructor, p.Role)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), claims.ExpiresAt.Time, 10*time.Second)
}
