package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHelpersAreSafeBeforeAndAfterInit(t *testing.T) {
	assert.NotPanics(t, func() {
		IncSessionEvent("open", ResultSuccess)
	})

	Init()
	Init()

	before := testutil.ToFloat64(sessionEvents.WithLabelValues("open", ResultSuccess))
	IncSessionEvent("open", ResultSuccess)
	assert.Equal(t, before+1, testutil.ToFloat64(sessionEvents.WithLabelValues("open", ResultSuccess)))

	ObserveMovement("IN", ResultSuccess, 12.5)
	assert.InDelta(t, 12.5, testutil.ToFloat64(movementAmount.WithLabelValues("IN")), 0.0001)

	ObserveMovement("OUT", ResultError, 99)
	assert.Zero(t, testutil.ToFloat64(movementAmount.WithLabelValues("OUT")))

	ObserveReportBuild(ResultSuccess, 5*time.Millisecond)
}

func TestResult(t *testing.T) {
	assert.Equal(t, ResultSuccess, Result(nil))
	assert.Equal(t, ResultError, Result(errors.New("boom")))
}
