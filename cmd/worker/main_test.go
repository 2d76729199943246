package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kompetisi/internal/notify"
	"kompetisi/internal/queue"
)

type flakyMailer struct {
	failures int
	calls    int
}

func (m *flakyMailer) Send(context.Context, notify.Message) error {
	m.calls++
	if m.calls <= m.failures {
		return errors.New("sendgrid: 503")
	}
	return nil
}

func approvedMessage(t *testing.T) queue.Message {
	t.Helper()
	q := queue.NewInMemory(1)
	require.NoError(t, queue.PublishEvent(context.Background(), q, queue.TypeRegistrationApproved, queue.RegistrationEvent{
		RegistrationID: "r1",
		StudentName:    "Siti",
		Email:          "siti@example.com",
		Status:         "approved",
		At:             time.Now().UTC(),
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	return <-ch
}

func TestDeliverMalformedNotRetried(t *testing.T) {
	m := &flakyMailer{}
	err := deliver(context.Background(), notify.NewNotifier(m), queue.Message{Type: "bogus"}, 3)
	assert.ErrorIs(t, err, notify.ErrMalformed)
	assert.Zero(t, m.calls)
}

func TestDeliverSingleAttempt(t *testing.T) {
	m := &flakyMailer{failures: 5}
	err := deliver(context.Background(), notify.NewNotifier(m), approvedMessage(t), 1)
	assert.Error(t, err)
	assert.Equal(t, 1, m.calls)
}

func TestDeliverStopsOnCancel(t *testing.T) {
	m := &flakyMailer{failures: 5}
	ctx, cancel := context.WithCancel(context.Background())
	msg := approvedMessage(t)
	cancel()
	err := deliver(ctx, notify.NewNotifier(m), msg, 3)
	assert.ErrorIs(t, err, context.Canceled)
}
