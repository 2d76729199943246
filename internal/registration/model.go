package registration

import (
	"time"
)

// Status is the review state of a registration.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Registration is a student's application to a competition.
type Registration struct {
	ID              string     `db:"id" json:"id"`
	CompetitionID   string     `db:"competition_id" json:"competition_id"`
	StudentName     string     `db:"student_name" json:"student_name"`
	NIM             string     `db:"nim" json:"nim"`
	Email           string     `db:"email" json:"email,omitempty"`
	Phone           string     `db:"phone" json:"phone,omitempty"`
	University      string     `db:"university" json:"university"`
	KTMURL          string     `db:"ktm_url" json:"ktm_url,omitempty"`
	Status          Status     `db:"status" json:"status"`
	RegisteredAt    time.Time  `db:"registered_at" json:"registered_at"`
	ApprovedAt      *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	ApprovedBy      *string    `db:"approved_by" json:"approved_by,omitempty"`
	RejectedAt      *time.Time `db:"rejected_at" json:"rejected_at,omitempty"`
	RejectedBy      *string    `db:"rejected_by" json:"rejected_by,omitempty"`
	RejectionReason *string    `db:"rejection_reason" json:"rejection_reason,omitempty"`
}

// Public returns the projection served to unauthenticated callers: contact
// details, the enrollment document and reviewer data are stripped.
func (r Registration) Public() Registration {
	return Registration{
		ID:            r.ID,
		CompetitionID: r.CompetitionID,
		StudentName:   r.StudentName,
		NIM:           r.NIM,
		University:    r.University,
		Status:        r.Status,
		RegisteredAt:  r.RegisteredAt,
	}
}

// SubmitInput is the validated payload of a registration submission.
type SubmitInput struct {
	CompetitionID string `json:"competition_id" form:"competition_id" validate:"required"`
	StudentName   string `json:"student_name" form:"student_name" validate:"required,max=150"`
	NIM           string `json:"nim" form:"nim" validate:"required,max=30"`
	Email         string `json:"email" form:"email" validate:"omitempty,email"`
	Phone         string `json:"phone" form:"phone" validate:"max=30"`
	University    string `json:"university" form:"university" validate:"max=150"`
	KTMURL        string `json:"ktm_url" form:"ktm_url" validate:"required,url"`
}

// Filter narrows a registration listing.
type Filter struct {
	CompetitionID string
	Status        Status
	// OwnerID restricts results to competitions created by this user.
	OwnerID string
	Limit   int
	Offset  int
}

const (
	defaultLimit = 50
	maxLimit     = 200
)

func (f Filter) normalized() Filter {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
