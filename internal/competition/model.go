package competition

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a competition.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusOpen     Status = "open"
	StatusOngoing  Status = "ongoing"
	StatusClosed   Status = "closed"
	StatusFinished Status = "finished"
)

// legacy vocabulary from the older schema
var legacyStatus = map[string]Status{
	"active":    StatusOpen,
	"completed": StatusFinished,
}

// ParseStatus maps a status string from either vocabulary to the canonical
// one. ok is false for unknown values.
func ParseStatus(s string) (Status, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch st := Status(s); st {
	case StatusDraft, StatusOpen, StatusOngoing, StatusClosed, StatusFinished:
		return st, true
	}
	st, ok := legacyStatus[s]
	return st, ok
}

// AcceptsRegistrations reports whether the status itself allows new
// registrations. The deadline is checked separately.
func (s Status) AcceptsRegistrations() bool {
	return s == StatusOpen
}

// Competition is a time-bounded contest students can register for.
type Competition struct {
	ID                   string     `db:"id" json:"id"`
	Title                string     `db:"title" json:"title"`
	Description          string     `db:"description" json:"description"`
	Category             string     `db:"category" json:"category"`
	BannerURL            string     `db:"banner_url" json:"banner_url,omitempty"`
	Status               Status     `db:"status" json:"status"`
	RegistrationDeadline *time.Time `db:"registration_deadline" json:"registration_deadline,omitempty"`
	MaxParticipants      *int       `db:"max_participants" json:"max_participants,omitempty"`
	CurrentParticipants  int        `db:"current_participants" json:"current_participants"`
	CreatedBy            string     `db:"created_by" json:"created_by"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// DeadlinePassed reports whether now is at or after the registration deadline.
func (c Competition) DeadlinePassed(now time.Time) bool {
	return c.RegistrationDeadline != nil && !now.Before(*c.RegistrationDeadline)
}

// IsFull reports whether the participant cap has been reached.
func (c Competition) IsFull() bool {
	return c.MaxParticipants != nil && c.CurrentParticipants >= *c.MaxParticipants
}

// Remaining returns the number of free slots, or -1 when unlimited.
func (c Competition) Remaining() int {
	if c.MaxParticipants == nil {
		return -1
	}
	if r := *c.MaxParticipants - c.CurrentParticipants; r > 0 {
		return r
	}
	return 0
}

// OpenForRegistration is the derived "accepting registrations" state.
func (c Competition) OpenForRegistration(now time.Time) bool {
	return c.Status.AcceptsRegistrations() && !c.DeadlinePassed(now)
}

// CreateInput is the payload for a new competition.
type CreateInput struct {
	Title                string     `json:"title" validate:"required,max=200"`
	Description          string     `json:"description"`
	Category             string     `json:"category" validate:"max=100"`
	BannerURL            string     `json:"banner_url" validate:"omitempty,url"`
	Status               string     `json:"status"`
	RegistrationDeadline *time.Time `json:"registration_deadline"`
	MaxParticipants      *int       `json:"max_participants" validate:"omitempty,min=1"`
}

// Filter narrows a competition listing.
type Filter struct {
	Status       Status
	CreatedBy    string
	IncludeDraft bool
}
