package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Registration lifecycle event types.
const (
	TypeRegistrationSubmitted = "registration.submitted"
	TypeRegistrationApproved  = "registration.approved"
	TypeRegistrationRejected  = "registration.rejected"
)

// RegistrationEvent is published after a registration changes state. The
// worker uses it to notify the student.
type RegistrationEvent struct {
	RegistrationID   string    `json:"registration_id"`
	CompetitionID    string    `json:"competition_id"`
	CompetitionTitle string    `json:"competition_title,omitempty"`
	StudentName      string    `json:"student_name"`
	NIM              string    `json:"nim"`
	Email            string    `json:"email,omitempty"`
	Status           string    `json:"status"`
	Reason           string    `json:"reason,omitempty"`
	At               time.Time `json:"at"`
}

// PublishEvent encodes ev as JSON and publishes it under typ.
func PublishEvent(ctx context.Context, q Queue, typ string, ev RegistrationEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", typ, err)
	}
	return q.Publish(ctx, Message{Type: typ, Body: body})
}

// DecodeEvent parses a registration event message.
func DecodeEvent(msg Message) (RegistrationEvent, error) {
	switch msg.Type {
	case TypeRegistrationSubmitted, TypeRegistrationApproved, TypeRegistrationRejected:
	default:
		return RegistrationEvent{}, fmt.Errorf("unknown message type %q", msg.Type)
	}
	var ev RegistrationEvent
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		return RegistrationEvent{}, fmt.Errorf("decode %s: %w", msg.Type, err)
	}
	return ev, nil
}
