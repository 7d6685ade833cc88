// Package telemetry instruments the event and shm facilities.
//
// Every operation is counted in a dedicated Prometheus registry and reported as
// an OpenTelemetry span and counter. The tracer and meter are no-ops until an
// application installs real ones:
//
//	telemetry.SetTracer(otel.Tracer("my-app"))
//	if err := telemetry.SetMeter(otel.Meter("my-app")); err != nil {
//		// ...
//	}
//	http.Handle("/metrics", promhttp.HandlerFor(telemetry.Registry(), promhttp.HandlerOpts{}))
package telemetry

import (
	"context"
	"strings"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/srediag/namedipc/pkg/ipcerr"
)

const (
	namespace = "namedipc"
	scope     = "github.com/srediag/namedipc"
)

// Facility labels.
const (
	FacilityEvent = "event"
	FacilityShm   = "shm"
)

var (
	registry = prometheus.NewRegistry()

	operations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Facility operations by result.",
	}, []string{"facility", "op", "result"})

	openHandles = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "open_handles",
		Help:      "Handles currently open in this process.",
	}, []string{"facility"})

	waitSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "event_wait_seconds",
		Help:      "Time spent in event waits.",
		Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 14),
	}, []string{"result"})

	live = cmap.New[int]()

	mu        sync.RWMutex
	tracer    trace.Tracer = tracenoop.NewTracerProvider().Tracer(scope)
	opCounter metric.Int64Counter
)

func init() {
	registry.MustRegister(operations, openHandles, waitSeconds)
	if err := SetMeter(metricnoop.NewMeterProvider().Meter(scope)); err != nil {
		panic(err)
	}
}

// Registry returns the registry holding the namedipc collectors.
func Registry() *prometheus.Registry {
	return registry
}

// SetTracer installs the tracer used for operation spans.
func SetTracer(t trace.Tracer) {
	if t == nil {
		t = tracenoop.NewTracerProvider().Tracer(scope)
	}
	mu.Lock()
	tracer = t
	mu.Unlock()
}

// SetMeter installs the meter used for the namedipc.operations counter.
func SetMeter(m metric.Meter) error {
	c, err := m.Int64Counter(namespace+".operations",
		metric.WithDescription("Facility operations by result."))
	if err != nil {
		return err
	}
	mu.Lock()
	opCounter = c
	mu.Unlock()
	return nil
}

// Op is one instrumented operation.
type Op struct {
	facility string
	op       string
	span     trace.Span
	counter  metric.Int64Counter
}

// Start begins an operation on the named object.
func Start(facility, op, name string) *Op {
	mu.RLock()
	t, c := tracer, opCounter
	mu.RUnlock()
	_, span := t.Start(context.Background(), facility+"."+op,
		trace.WithAttributes(attribute.String("namedipc.name", name)))
	return &Op{facility: facility, op: op, span: span, counter: c}
}

// End records the outcome and returns err unchanged.
func (o *Op) End(err error) error {
	result := Result(err)
	operations.WithLabelValues(o.facility, o.op, result).Inc()
	o.counter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("facility", o.facility),
		attribute.String("op", o.op),
		attribute.String("result", result),
	))
	if err != nil && !ipcerr.IsTimeout(err) {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, err.Error())
	}
	o.span.End()
	return err
}

// ObserveWait records how long an event wait took.
func ObserveWait(d time.Duration, err error) {
	waitSeconds.WithLabelValues(Result(err)).Observe(d.Seconds())
}

// Result turns an error into a label value: "ok", a kind such as "timed_out",
// or "error" for foreign errors.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	k := ipcerr.KindOf(err)
	if k == ipcerr.KindUnknown {
		return "error"
	}
	return strings.ReplaceAll(k.String(), " ", "_")
}

func liveKey(facility, name string) string {
	return facility + "/" + name
}

// Opened records a new handle on the named object.
func Opened(facility, name string) {
	openHandles.WithLabelValues(facility).Inc()
	live.Upsert(liveKey(facility, name), 1, func(exist bool, inMap, n int) int {
		if exist {
			return inMap + n
		}
		return n
	})
}

// Closed records the release of a handle on the named object.
func Closed(facility, name string) {
	openHandles.WithLabelValues(facility).Dec()
	key := liveKey(facility, name)
	live.Upsert(key, -1, func(exist bool, inMap, n int) int {
		if exist {
			return inMap + n
		}
		return 0
	})
	live.RemoveCb(key, func(_ string, v int, exists bool) bool {
		return exists && v <= 0
	})
}

// Live returns the handles this process holds, keyed "facility/name".
func Live() map[string]int {
	return live.Items()
}
