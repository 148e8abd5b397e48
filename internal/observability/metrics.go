// Package observability exposes the kernel's Prometheus metrics.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Cycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usv_control_cycles_total",
		Help: "Control cycles executed by the driver loop",
	})
	CycleOverruns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usv_control_cycle_overruns_total",
		Help: "Control cycles that took longer than the period",
	})
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "usv_control_cycle_seconds",
		Help:    "Duration of one control cycle",
		Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5},
	})
	FramesDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usv_frames_decoded_total",
		Help: "Sensor frames accepted by the decoder",
	})
	FrameErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usv_frame_errors_total",
		Help: "Frames rejected by the decoder",
	})
	Readings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "usv_sensor_readings_total",
		Help: "Sensor readings by sensor tag",
	}, []string{"sensor"})
	LinkReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usv_link_reconnects_total",
		Help: "Successful serial link (re)opens",
	})
	LinkFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usv_link_failures_total",
		Help: "Serial link open, read or write failures",
	})
	StaleSensors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "usv_stale_sensor_total",
		Help: "Times a safety sensor went stale",
	}, []string{"sensor"})
	InvalidTransitions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usv_invalid_transitions_total",
		Help: "Commands rejected by the state machine",
	})
	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "usv_state_transitions_total",
		Help: "Mode transitions by target state",
	}, []string{"to"})
	VehicleState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "usv_vehicle_state",
		Help: "Current vehicle state as its enum value",
	})
	RudderAngle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "usv_rudder_angle_degrees",
		Help: "Last rudder command",
	})
	MotorPower = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "usv_motor_power_percent",
		Help: "Last motor command",
	})
	SinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "usv_sink_errors_total",
		Help: "Failed writes to a storage or monitoring sink",
	}, []string{"sink"})
)

// QueueStats is implemented by the event bus.
type QueueStats interface {
	Len() int
	Failures() uint64
	Dispatched() uint64
}

// RegisterBus exports queue depth and subscriber failures of b. Call once.
func RegisterBus(reg prometheus.Registerer, b QueueStats) {
	f := promauto.With(reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "usv_bus_queue_depth",
		Help: "Events waiting for dispatch",
	}, func() float64 { return float64(b.Len()) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "usv_bus_subscriber_failures_total",
		Help: "Subscriber invocations that failed or panicked",
	}, func() float64 { return float64(b.Failures()) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "usv_bus_events_dispatched_total",
		Help: "Events delivered to subscribers",
	}, func() float64 { return float64(b.Dispatched()) })
}

// Handler serves /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Healthz answers liveness probes.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
