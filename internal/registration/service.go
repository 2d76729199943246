package registration

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"kompetisi/internal/access"
	"kompetisi/internal/apperr"
	"kompetisi/internal/competition"
)

// DefaultUniversity is used when a submission leaves university empty.
const DefaultUniversity = "POLITEKNIK KAMPAR"

var (
	errRegistrationNotFound = apperr.New(apperr.KindNotFound, "pendaftaran tidak ditemukan")
	errCompetitionNotFound  = apperr.New(apperr.KindNotFound, "lomba tidak ditemukan")
	errNotOpen              = apperr.New(apperr.KindState, "lomba tidak sedang membuka pendaftaran")
	errDeadline             = apperr.New(apperr.KindDeadlineExpired, "batas waktu pendaftaran sudah lewat")
	errFull                 = apperr.New(apperr.KindCapacityExceeded, "kuota peserta sudah penuh")
	errDuplicate            = apperr.New(apperr.KindDuplicate, "NIM sudah terdaftar pada lomba ini")
	errNotPending           = apperr.New(apperr.KindState, "pendaftaran sudah diproses")
	errNotReviewer          = apperr.New(apperr.KindAuthorization, "anda tidak berhak memproses pendaftaran ini")
	errListForbidden        = apperr.New(apperr.KindAuthorization, "competition_id wajib diisi untuk akses publik")
	errViewForbidden        = apperr.New(apperr.KindAuthorization, "anda tidak berhak melihat pendaftaran ini")
)

// Service runs the registration workflow: submission with deadline, capacity
// and duplicate guards, and a single pending -> approved|rejected transition.
type Service struct {
	store      Store
	validate   *validator.Validate
	now        func() time.Time
	university string
}

// Option customizes a Service.
type Option func(*Service)

// WithDefaultUniversity overrides DefaultUniversity.
func WithDefaultUniversity(name string) Option {
	return func(s *Service) {
		if name = strings.TrimSpace(name); name != "" {
			s.university = name
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the workflow engine.
func NewService(st Store, opts ...Option) *Service {
	s := &Service{
		store:      st,
		validate:   apperr.NewValidator(),
		now:        func() time.Time { return time.Now().UTC() },
		university: DefaultUniversity,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func normalize(in SubmitInput) SubmitInput {
	in.CompetitionID = strings.TrimSpace(in.CompetitionID)
	in.StudentName = strings.TrimSpace(in.StudentName)
	in.NIM = strings.TrimSpace(in.NIM)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.University = strings.TrimSpace(in.University)
	in.KTMURL = strings.TrimSpace(in.KTMURL)
	return in
}

// Submit records a pending registration. Checks run in a fixed order and the
// first failure wins: input, competition existence, competition status,
// deadline, capacity, duplicate nim. Everything after input validation runs in
// one transaction with the competition row locked, so concurrent submissions
// cannot overbook or double-register.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (Registration, error) {
	in = normalize(in)
	if err := s.validate.Struct(in); err != nil {
		return Registration{}, apperr.FromValidation(err)
	}
	if in.University == "" {
		in.University = s.university
	}

	var out Registration
	err := s.store.InTx(ctx, func(tx Tx) error {
		now := s.now()
		comp, err := s.admit(ctx, tx, in, now)
		if err != nil {
			return err
		}

		reg := Registration{
			ID:            uuid.NewString(),
			CompetitionID: comp.ID,
			StudentName:   in.StudentName,
			NIM:           in.NIM,
			Email:         in.Email,
			Phone:         in.Phone,
			University:    in.University,
			KTMURL:        in.KTMURL,
			Status:        StatusPending,
			RegisteredAt:  now,
		}
		if err := tx.Insert(ctx, reg); err != nil {
			if errors.Is(err, ErrDuplicateNIM) {
				return errDuplicate
			}
			return err
		}
		if err := tx.SyncParticipants(ctx, comp.ID, now); err != nil {
			return err
		}
		out = reg
		return nil
	})
	if err != nil {
		return Registration{}, apperr.Persistence(err)
	}
	return out, nil
}

// admit runs the competition, status, deadline, capacity and duplicate checks
// in that order.
func (s *Service) admit(ctx context.Context, tx Tx, in SubmitInput, now time.Time) (competition.Competition, error) {
	comp, err := tx.CompetitionForUpdate(ctx, in.CompetitionID)
	if errors.Is(err, competition.ErrNotFound) {
		return comp, errCompetitionNotFound
	}
	if err != nil {
		return comp, err
	}
	if !comp.Status.AcceptsRegistrations() {
		return comp, errNotOpen
	}
	if comp.DeadlinePassed(now) {
		return comp, errDeadline
	}
	active, err := tx.ActiveCount(ctx, comp.ID)
	if err != nil {
		return comp, err
	}
	if comp.MaxParticipants != nil && active >= *comp.MaxParticipants {
		return comp, errFull
	}
	dup, err := tx.NIMRegistered(ctx, comp.ID, in.NIM)
	if err != nil {
		return comp, err
	}
	if dup {
		return comp, errDuplicate
	}
	return comp, nil
}

// Precheck runs every Submit check except ktm_url without writing anything.
// Callers that still have to store the KTM scan use it so a submission that
// is bound to fail never uploads a file. Submit repeats the checks under lock.
func (s *Service) Precheck(ctx context.Context, in SubmitInput) error {
	in = normalize(in)
	if err := s.validate.StructExcept(in, "KTMURL"); err != nil {
		return apperr.FromValidation(err)
	}
	err := s.store.InTx(ctx, func(tx Tx) error {
		_, err := s.admit(ctx, tx, in, s.now())
		return err
	})
	return apperr.Persistence(err)
}

// Approve moves a pending registration to approved.
func (s *Service) Approve(ctx context.Context, reviewer *access.Principal, id string) (Registration, error) {
	return s.review(ctx, reviewer, id, func(tx Tx, reg *Registration, now time.Time) (bool, error) {
		ok, err := tx.MarkApproved(ctx, reg.ID, reviewer.ID, now)
		if ok {
			by := reviewer.ID
			reg.Status = StatusApproved
			reg.ApprovedAt = &now
			reg.ApprovedBy = &by
		}
		return ok, err
	})
}

// Reject moves a pending registration to rejected and frees its slot. A
// blank reason is stored as NULL.
func (s *Service) Reject(ctx context.Context, reviewer *access.Principal, id string, reason *string) (Registration, error) {
	if reason != nil {
		if r := strings.TrimSpace(*reason); r == "" {
			reason = nil
		} else {
			reason = &r
		}
	}
	return s.review(ctx, reviewer, id, func(tx Tx, reg *Registration, now time.Time) (bool, error) {
		ok, err := tx.MarkRejected(ctx, reg.ID, reviewer.ID, reason, now)
		if !ok || err != nil {
			return ok, err
		}
		if err := tx.SyncParticipants(ctx, reg.CompetitionID, now); err != nil {
			return false, err
		}
		reg.Status = StatusRejected
		reg.RejectedAt = &now
		by := reviewer.ID
		reg.RejectedBy = &by
		reg.RejectionReason = reason
		return true, nil
	})
}

type transition func(tx Tx, reg *Registration, now time.Time) (bool, error)

// review applies a decision. Order of checks: reviewer capability,
// registration exists, reviewer owns the competition, registration is still
// pending.
func (s *Service) review(ctx context.Context, reviewer *access.Principal, id string, apply transition) (Registration, error) {
	if !reviewer.Can(access.CapReview) {
		return Registration{}, errNotReviewer
	}
	var out Registration
	err := s.store.InTx(ctx, func(tx Tx) error {
		reg, err := tx.RegistrationForUpdate(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return errRegistrationNotFound
		}
		if err != nil {
			return err
		}
		comp, err := tx.CompetitionForUpdate(ctx, reg.CompetitionID)
		if errors.Is(err, competition.ErrNotFound) {
			return errCompetitionNotFound
		}
		if err != nil {
			return err
		}
		if !reviewer.Owns(comp.CreatedBy) {
			return errNotReviewer
		}
		if reg.Status != StatusPending {
			return errNotPending
		}
		ok, err := apply(tx, &reg, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return errNotPending
		}
		out = reg
		return nil
	})
	if err != nil {
		return Registration{}, apperr.Persistence(err)
	}
	return out, nil
}

// List returns registrations newest first. Admins see everything; instructors
// see full records for competitions they own; anyone else, including
// anonymous callers, must name a competition and gets the public projection.
func (s *Service) List(ctx context.Context, viewer *access.Principal, f Filter) ([]Registration, error) {
	f.CompetitionID = strings.TrimSpace(f.CompetitionID)
	f.OwnerID = ""
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("status pendaftaran tidak dikenal",
			apperr.FieldError{Field: "status", Error: "must be one of pending, approved, rejected"})
	}

	full := false
	switch {
	case viewer.Can(access.CapListAll) && viewer.Role == access.RoleAdmin:
		full = true
	case viewer.Can(access.CapListAll) && f.CompetitionID == "":
		f.OwnerID = viewer.ID
		full = true
	case f.CompetitionID == "":
		return nil, errListForbidden
	case viewer.Can(access.CapListAll):
		owner, err := s.store.CompetitionOwner(ctx, f.CompetitionID)
		switch {
		case errors.Is(err, competition.ErrNotFound):
			return []Registration{}, nil
		case err != nil:
			return nil, apperr.Persistence(err)
		}
		full = viewer.Owns(owner)
	}

	res, err := s.store.List(ctx, f)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	if !full {
		for i := range res {
			res[i] = res[i].Public()
		}
	}
	return res, nil
}

// Get returns one full registration to a reviewer of its competition.
func (s *Service) Get(ctx context.Context, viewer *access.Principal, id string) (Registration, error) {
	if !viewer.Can(access.CapReview) {
		return Registration{}, errViewForbidden
	}
	reg, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Registration{}, errRegistrationNotFound
	}
	if err != nil {
		return Registration{}, apperr.Persistence(err)
	}
	owner, err := s.store.CompetitionOwner(ctx, reg.CompetitionID)
	if err != nil && !errors.Is(err, competition.ErrNotFound) {
		return Registration{}, apperr.Persistence(err)
	}
	if !viewer.Owns(owner) {
		return Registration{}, errViewForbidden
	}
	return reg, nil
}
