package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.SessionLaunched(time.Second)
		r.SessionLaunchFailed()
		r.SessionReleased()
		r.Request("GET", 200, time.Millisecond)
	})
}

func TestRecorder_Sessions(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.SessionLaunched(100 * time.Millisecond)
	r.SessionLaunched(200 * time.Millisecond)
	r.SessionReleased()
	r.SessionLaunchFailed()

	assert.Equal(t, 1.0, testutil.ToFloat64(r.sessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.launchFailures))
}

func TestRecorder_Requests(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.Request("GET", 200, time.Millisecond)
	r.Request("GET", 200, time.Millisecond)
	r.Request("POST", 0, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.requestsTotal.WithLabelValues("GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.requestsTotal.WithLabelValues("POST", "error")))
}
