package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"kompetisi/internal/apperr"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "duplicate", Outcome(apperr.New(apperr.KindDuplicate, "x")))
	assert.Equal(t, "persistence", Outcome(errors.New("boom")))
}

func TestCountersRegistered(t *testing.T) {
	before := testutil.ToFloat64(Submissions.WithLabelValues("ok"))
	Submissions.WithLabelValues("ok").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(Submissions.WithLabelValues("ok")))
}
