package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/srediag/namedipc/pkg/ipcerr"
)

// recordingTracer remembers span names.
type recordingTracer struct {
	tracenoop.Tracer
	names []string
}

func (r *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	r.names = append(r.names, name)
	return r.Tracer.Start(ctx, name, opts...)
}

func counterValue(t *testing.T, facility, op, result string) float64 {
	m := &dto.Metric{}
	require.NoError(t, operations.WithLabelValues(facility, op, result).Write(m))
	return m.GetCounter().GetValue()
}

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, "timed_out", Result(ipcerr.New("event.wait", "x", ipcerr.KindTimedOut, nil)))
	assert.Equal(t, "invalid_argument", Result(ipcerr.ErrInvalidArgument))
	assert.Equal(t, "error", Result(errors.New("foreign")))
}

func TestOpEndCountsAndTraces(t *testing.T) {
	rt := &recordingTracer{}
	SetTracer(rt)
	defer SetTracer(nil)

	before := counterValue(t, FacilityEvent, "signal", "ok")
	require.NoError(t, Start(FacilityEvent, "signal", "ready").End(nil))
	assert.Equal(t, before+1, counterValue(t, FacilityEvent, "signal", "ok"))

	failed := ipcerr.New("shm.map", "seg", ipcerr.KindMappingFailed, nil)
	before = counterValue(t, FacilityShm, "map", "mapping_failed")
	err := Start(FacilityShm, "map", "seg").End(failed)
	assert.Same(t, failed, err)
	assert.Equal(t, before+1, counterValue(t, FacilityShm, "map", "mapping_failed"))

	assert.Equal(t, []string{"event.signal", "shm.map"}, rt.names)
}

func TestLiveHandles(t *testing.T) {
	Opened(FacilityShm, "live-seg")
	Opened(FacilityShm, "live-seg")
	Opened(FacilityEvent, "live-ev")

	items := Live()
	assert.Equal(t, 2, items["shm/live-seg"])
	assert.Equal(t, 1, items["event/live-ev"])

	Closed(FacilityShm, "live-seg")
	assert.Equal(t, 1, Live()["shm/live-seg"])
	Closed(FacilityShm, "live-seg")
	Closed(FacilityEvent, "live-ev")

	_, ok := Live()["shm/live-seg"]
	assert.False(t, ok)
	_, ok = Live()["event/live-ev"]
	assert.False(t, ok)
}

func TestObserveWait(t *testing.T) {
	ObserveWait(3*time.Millisecond, nil)
	ObserveWait(time.Second, ipcerr.ErrTimedOut)

	families, err := Registry().Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "namedipc_event_wait_seconds" {
			found = true
			var samples uint64
			for _, m := range f.GetMetric() {
				samples += m.GetHistogram().GetSampleCount()
			}
			assert.GreaterOrEqual(t, samples, uint64(2))
		}
	}
	assert.True(t, found)
}

func TestSetMeter(t *testing.T) {
	require.NoError(t, SetMeter(metricnoop.NewMeterProvider().Meter("test")))
}
