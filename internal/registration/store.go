package registration

import (
	"context"
	"errors"
	"time"

	"kompetisi/internal/competition"
)

var (
	// ErrNotFound is returned by a Store when no registration matches.
	ErrNotFound = errors.New("registration not found")
	// ErrDuplicateNIM is returned by Tx.Insert when the storage-level
	// uniqueness guard on (competition_id, nim) fires.
	ErrDuplicateNIM = errors.New("nim already registered for competition")
)

// Store is the persistence the workflow runs on.
type Store interface {
	// InTx runs fn in a single transaction; any error from fn rolls it back.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Get(ctx context.Context, id string) (Registration, error)
	List(ctx context.Context, f Filter) ([]Registration, error)
	// CompetitionOwner returns the creator of a competition, or
	// competition.ErrNotFound.
	CompetitionOwner(ctx context.Context, competitionID string) (string, error)
}

// Tx is the set of reads and writes available inside a transaction. Reads
// ending in ForUpdate lock the row until the transaction ends where the
// database supports it.
type Tx interface {
	CompetitionForUpdate(ctx context.Context, id string) (competition.Competition, error)
	RegistrationForUpdate(ctx context.Context, id string) (Registration, error)
	NIMRegistered(ctx context.Context, competitionID, nim string) (bool, error)
	Insert(ctx context.Context, r Registration) error
	// ActiveCount counts the pending and approved registrations of a
	// competition. It is the authoritative capacity figure.
	ActiveCount(ctx context.Context, competitionID string) (int, error)
	// SyncParticipants rewrites the cached current_participants counter from
	// ActiveCount.
	SyncParticipants(ctx context.Context, competitionID string, now time.Time) error
	// MarkApproved and MarkRejected only touch pending rows; ok is false
	// when the row was no longer pending.
	MarkApproved(ctx context.Context, id, reviewerID string, at time.Time) (ok bool, err error)
	MarkRejected(ctx context.Context, id, reviewerID string, reason *string, at time.Time) (ok bool, err error)
}
