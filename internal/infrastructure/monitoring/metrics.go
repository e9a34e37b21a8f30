package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for one kernel instance. Each
// instance registers into its own registry so independent kernels (tests,
// embedders) never collide.
type Metrics struct {
	registry *prometheus.Registry

	// Handle metrics
	HandlesLive        prometheus.Gauge
	HandlesCreated     *prometheus.CounterVec
	HandleAllocsFailed prometheus.Counter

	// Dispatcher metrics
	DispatchersCreated   *prometheus.CounterVec
	DispatchersDestroyed *prometheus.CounterVec

	// Syscall metrics
	SyscallsTotal   *prometheus.CounterVec
	SyscallDuration *prometheus.HistogramVec

	// Policy metrics
	PolicyViolations *prometheus.CounterVec

	// IPC metrics
	ChannelMessages prometheus.Counter
	PortPackets     *prometheus.CounterVec

	// HTTP metrics (diagnostics server)
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	HandlesLive    int64   `json:"handles_live"`
	HandlesCreated int64   `json:"handles_created"`
	AllocsFailed   int64   `json:"allocs_failed"`
	Syscalls       int64   `json:"syscalls"`
	SyscallErrors  int64   `json:"syscall_errors"`
	Violations     int64   `json:"policy_violations"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

// NewMetrics creates a new metrics collector on a fresh registry
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.NewRegistry())
}

// NewMetricsWithRegistry creates a metrics collector registered into reg
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// Handle metrics
		HandlesLive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fiber_handles_live",
				Help: "Number of handles currently allocated in the arena",
			},
		),
		HandlesCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fiber_handles_created_total",
				Help: "Total number of handles created",
			},
			[]string{"op"},
		),
		HandleAllocsFailed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fiber_handle_allocs_failed_total",
				Help: "Total number of handle allocations that hit arena capacity",
			},
		),

		// Dispatcher metrics
		DispatchersCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fiber_dispatchers_created_total",
				Help: "Total number of kernel objects created",
			},
			[]string{"type"},
		),
		DispatchersDestroyed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fiber_dispatchers_destroyed_total",
				Help: "Total number of kernel objects whose last handle was closed",
			},
			[]string{"type"},
		),

		// Syscall metrics
		SyscallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fiber_syscalls_total",
				Help: "Total number of syscalls",
			},
			[]string{"syscall", "status"},
		),
		SyscallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fiber_syscall_duration_seconds",
				Help:    "Syscall duration in seconds",
				Buckets: []float64{.000001, .00001, .0001, .001, .01, .1, 1, 10},
			},
			[]string{"syscall"},
		),

		// Policy metrics
		PolicyViolations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fiber_policy_violations_total",
				Help: "Total number of job policy conditions that triggered",
			},
			[]string{"condition", "action"},
		),

		// IPC metrics
		ChannelMessages: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fiber_channel_messages_total",
				Help: "Total number of messages written to channels",
			},
		),
		PortPackets: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fiber_port_packets_total",
				Help: "Total number of packets queued on ports",
			},
			[]string{"type"},
		),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fiber_http_requests_total",
				Help: "Total number of diagnostics HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fiber_http_request_duration_seconds",
				Help:    "Diagnostics HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "fiber_uptime_seconds",
			Help: "Kernel uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry the metrics live in, for exposition
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Record methods are no-ops on a nil *Metrics, so kernel components can run
// without a collector.

// RecordHandleCreated records a handle made or duplicated
func (m *Metrics) RecordHandleCreated(op string) {
	if m == nil {
		return
	}
	m.HandlesCreated.WithLabelValues(op).Inc()
	m.HandlesLive.Inc()

	m.mu.Lock()
	m.snapshot.HandlesCreated++
	m.snapshot.HandlesLive++
	m.mu.Unlock()
}

// RecordHandleDeleted records a handle returned to the arena
func (m *Metrics) RecordHandleDeleted() {
	if m == nil {
		return
	}
	m.HandlesLive.Dec()

	m.mu.Lock()
	m.snapshot.HandlesLive--
	m.mu.Unlock()
}

// RecordAllocFailed records an arena exhaustion
func (m *Metrics) RecordAllocFailed() {
	if m == nil {
		return
	}
	m.HandleAllocsFailed.Inc()

	m.mu.Lock()
	m.snapshot.AllocsFailed++
	m.mu.Unlock()
}

// RecordDispatcherCreated records a kernel object creation
func (m *Metrics) RecordDispatcherCreated(objType string) {
	if m == nil {
		return
	}
	m.DispatchersCreated.WithLabelValues(objType).Inc()
}

// RecordDispatcherDestroyed records a kernel object reaching zero handles
func (m *Metrics) RecordDispatcherDestroyed(objType string) {
	if m == nil {
		return
	}
	m.DispatchersDestroyed.WithLabelValues(objType).Inc()
}

// RecordSyscall records one syscall and its outcome
func (m *Metrics) RecordSyscall(name, status string, ok bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.SyscallsTotal.WithLabelValues(name, status).Inc()
	m.SyscallDuration.WithLabelValues(name).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.Syscalls++
	if !ok {
		m.snapshot.SyscallErrors++
	}
	m.mu.Unlock()
}

// RecordPolicyViolation records a job policy condition that triggered
func (m *Metrics) RecordPolicyViolation(condition, action string) {
	if m == nil {
		return
	}
	m.PolicyViolations.WithLabelValues(condition, action).Inc()

	m.mu.Lock()
	m.snapshot.Violations++
	m.mu.Unlock()
}

// RecordChannelMessage records a message written to a channel
func (m *Metrics) RecordChannelMessage() {
	if m == nil {
		return
	}
	m.ChannelMessages.Inc()
}

// RecordPortPacket records a packet queued on a port
func (m *Metrics) RecordPortPacket(packetType string) {
	if m == nil {
		return
	}
	m.PortPackets.WithLabelValues(packetType).Inc()
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// GetSnapshot returns current metric values
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := m.snapshot
	snap.UptimeSeconds = time.Since(m.startTime).Seconds()
	return snap
}
