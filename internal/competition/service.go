package competition

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"kompetisi/internal/access"
	"kompetisi/internal/apperr"
)

var errNotFound = apperr.New(apperr.KindNotFound, "lomba tidak ditemukan")

// Service manages the competition catalog.
type Service struct {
	repo     *Repository
	validate *validator.Validate
	now      func() time.Time
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository) *Service {
	return &Service{
		repo:     repo,
		validate: apperr.NewValidator(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create validates and stores a competition owned by actor.
func (s *Service) Create(ctx context.Context, actor *access.Principal, in CreateInput) (Competition, error) {
	if !actor.Can(access.CapManageCompetition) {
		return Competition{}, apperr.New(apperr.KindAuthorization, "anda tidak berhak membuat lomba")
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := s.validate.Struct(in); err != nil {
		return Competition{}, apperr.FromValidation(err)
	}
	status := StatusDraft
	if in.Status != "" {
		st, ok := ParseStatus(in.Status)
		if !ok {
			return Competition{}, apperr.Validation("status lomba tidak dikenal",
				apperr.FieldError{Field: "status", Error: "unknown status " + in.Status})
		}
		status = st
	}

	now := s.now()
	c := Competition{
		ID:                   uuid.NewString(),
		Title:                in.Title,
		Description:          strings.TrimSpace(in.Description),
		Category:             strings.TrimSpace(in.Category),
		BannerURL:            in.BannerURL,
		Status:               status,
		RegistrationDeadline: in.RegistrationDeadline,
		MaxParticipants:      in.MaxParticipants,
		CreatedBy:            actor.ID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if c.RegistrationDeadline != nil {
		d := c.RegistrationDeadline.UTC()
		c.RegistrationDeadline = &d
	}
	if err := s.repo.Insert(ctx, c); err != nil {
		return Competition{}, apperr.Persistence(err)
	}
	return c, nil
}

// Get returns one competition.
func (s *Service) Get(ctx context.Context, id string) (Competition, error) {
	c, err := s.repo.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Competition{}, errNotFound
	}
	if err != nil {
		return Competition{}, apperr.Persistence(err)
	}
	return c, nil
}

// View returns a competition the viewer may see. Drafts are hidden from
// everyone except their owner and admins.
func (s *Service) View(ctx context.Context, viewer *access.Principal, id string) (Competition, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return Competition{}, err
	}
	if c.Status == StatusDraft && !(viewer.Can(access.CapManageCompetition) && viewer.Owns(c.CreatedBy)) {
		return Competition{}, errNotFound
	}
	return c, nil
}

// List returns competitions. Drafts are only visible to callers who manage
// competitions, and instructors only see their own drafts.
func (s *Service) List(ctx context.Context, viewer *access.Principal, f Filter) ([]Competition, error) {
	f.IncludeDraft = false
	if viewer.Can(access.CapManageCompetition) {
		if viewer.Role == access.RoleAdmin {
			f.IncludeDraft = true
		} else if f.CreatedBy == viewer.ID {
			f.IncludeDraft = true
		}
	}
	if f.Status == StatusDraft && !f.IncludeDraft {
		return []Competition{}, nil
	}
	res, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return res, nil
}

// UpdateStatus changes a competition's status. Only the owner or an admin may
// do so.
func (s *Service) UpdateStatus(ctx context.Context, actor *access.Principal, id, status string) (Competition, error) {
	st, ok := ParseStatus(status)
	if !ok {
		return Competition{}, apperr.Validation("status lomba tidak dikenal",
			apperr.FieldError{Field: "status", Error: "unknown status " + status})
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return Competition{}, err
	}
	if !actor.Can(access.CapManageCompetition) || !actor.Owns(c.CreatedBy) {
		return Competition{}, apperr.New(apperr.KindAuthorization, "anda tidak berhak mengubah lomba ini")
	}
	now := s.now()
	if err := s.repo.UpdateStatus(ctx, id, st, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Competition{}, errNotFound
		}
		return Competition{}, apperr.Persistence(err)
	}
	c.Status = st
	c.UpdatedAt = now
	return c, nil
}

// ReconcileParticipants rebuilds the cached participant counters.
func (s *Service) ReconcileParticipants(ctx context.Context) (int64, error) {
	n, err := s.repo.ReconcileParticipants(ctx)
	if err != nil {
		return 0, apperr.Persistence(err)
	}
	return n, nil
}
