// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"kompetisi/internal/apperr"
)

var (
	// Submissions counts registration submissions by outcome: "ok" or the
	// error kind.
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registration_submissions_total",
		Help: "Registration submissions by outcome.",
	}, []string{"outcome"})

	// Reviews counts approve/reject decisions by outcome.
	Reviews = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registration_reviews_total",
		Help: "Registration review decisions by decision and outcome.",
	}, []string{"decision", "outcome"})

	// Notifications counts emails handled by the worker.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registration_notifications_total",
		Help: "Registration notification emails by event type and result.",
	}, []string{"type", "result"})

	// Reconciled counts competitions whose cached participant counter was
	// corrected.
	Reconciled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "competition_participants_reconciled_total",
		Help: "Competitions whose participant counter was corrected.",
	})
)

// Outcome labels err by kind, or "ok" when nil.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperr.KindOf(err))
}
