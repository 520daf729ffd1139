// Package metrics provides Prometheus metrics for iotrelay.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "iotrelay"

// OverflowService is used as the service label when the number of unique
// routing destinations exceeds MaxServices.
const OverflowService = "__other__"

// Reasons for failed outbound sends.
const (
	ReasonNoSession       = "no_session"
	ReasonBadFrame        = "bad_frame"
	ReasonBodyUnavailable = "body_unavailable"
	ReasonBadBody         = "bad_body"
	ReasonProperties      = "properties"
	ReasonSubmit          = "submit_rejected"
	ReasonInflightFull    = "inflight_full"
	ReasonDelivery        = "delivery_failed"
)

// Reasons for rejected inbound messages.
const (
	ReasonNoService     = "no_service"
	ReasonNoDestination = "no_destination"
	ReasonTooLarge      = "too_large"
	ReasonSendFailed    = "send_failed"
)

// Metrics holds all Prometheus metrics for iotrelay. All methods are safe
// to call on a nil receiver, which disables recording.
type Metrics struct {
	Registry *prometheus.Registry

	// MaxServices is the maximum number of unique service label values.
	// Once exceeded, new services are recorded as OverflowService.
	// Zero means unlimited.
	MaxServices int

	sendsTotal     *prometheus.CounterVec
	sendErrors     *prometheus.CounterVec
	inboundTotal   *prometheus.CounterVec
	inboundRejects *prometheus.CounterVec
	inflightSends  prometheus.Gauge
	cloudConnected prometheus.Gauge
	bodyBytes      prometheus.Histogram

	serviceCount atomic.Int64
	services     sync.Map // map[string]struct{}
}

// New creates a new Metrics instance with a custom Prometheus registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		sendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_total",
			Help:      "Total outbound messages submitted to the cloud session, by completion status.",
		}, []string{"status"}),

		sendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Total outbound messages dropped before or at submission, by reason.",
		}, []string{"reason"}),

		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_routed_total",
			Help:      "Total inbound cloud messages handled by the router, by destination service and disposition.",
		}, []string{"service", "status"}),

		inboundRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_rejects_total",
			Help:      "Total inbound cloud messages rejected, by reason.",
		}, []string{"reason"}),

		inflightSends: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_sends",
			Help:      "Number of outbound submissions awaiting completion.",
		}),

		cloudConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cloud_session_connected",
			Help:      "Whether the cloud session is connected (1) or not (0).",
		}),

		bodyBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "body_bytes",
			Help:      "Size of outbound message bodies in bytes.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8), // 64B .. 1MiB
		}),
	}

	reg.MustRegister(
		m.sendsTotal,
		m.sendErrors,
		m.inboundTotal,
		m.inboundRejects,
		m.inflightSends,
		m.cloudConnected,
		m.bodyBytes,
	)

	return m
}

// SanitizeService returns service if it is within the cardinality budget,
// or OverflowService if the cap has been reached. Services that have been
// seen before are always returned as-is.
func (m *Metrics) SanitizeService(service string) string {
	if m == nil || m.MaxServices <= 0 {
		return service
	}

	for {
		// Fast path: already-known service.
		if _, ok := m.services.Load(service); ok {
			return service
		}

		cur := m.serviceCount.Load()
		if cur >= int64(m.MaxServices) {
			// Re-check: another goroutine may have stored this service
			// between our Load and this cap check.
			if _, ok := m.services.Load(service); ok {
				return service
			}
			return OverflowService
		}

		// Try to reserve a slot atomically.
		if !m.serviceCount.CompareAndSwap(cur, cur+1) {
			continue
		}

		// Slot reserved. Store the service, undoing the increment if
		// another goroutine stored it first.
		if _, loaded := m.services.LoadOrStore(service, struct{}{}); loaded {
			m.serviceCount.Add(-1)
		}

		return service
	}
}

// SendStarted records an outbound submission entering flight and observes
// the body size.
func (m *Metrics) SendStarted(bodyLen int) {
	if m == nil {
		return
	}
	m.inflightSends.Inc()
	m.bodyBytes.Observe(float64(bodyLen))
}

// SendCompleted records the settled outcome of a submission and takes it
// out of flight.
func (m *Metrics) SendCompleted(err error) {
	if m == nil {
		return
	}
	m.inflightSends.Dec()
	if err != nil {
		m.sendsTotal.WithLabelValues("error").Inc()
		m.sendErrors.WithLabelValues(ReasonDelivery).Inc()
		return
	}
	m.sendsTotal.WithLabelValues("success").Inc()
}

// SendDropped records an outbound message dropped before completion could
// be awaited (including submissions the transport refused). When inflight
// is true the in-flight gauge is decremented as well.
func (m *Metrics) SendDropped(reason string, inflight bool) {
	if m == nil {
		return
	}
	if inflight {
		m.inflightSends.Dec()
	}
	m.sendsTotal.WithLabelValues("error").Inc()
	m.sendErrors.WithLabelValues(reason).Inc()
}

// InboundAccepted records a successfully routed inbound message.
func (m *Metrics) InboundAccepted(service string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(m.SanitizeService(service), "accepted").Inc()
}

// InboundRejected records a rejected inbound message. service may be empty
// when the message carried no routing property.
func (m *Metrics) InboundRejected(service, reason string) {
	if m == nil {
		return
	}
	if service == "" {
		service = "unknown"
	}
	m.inboundTotal.WithLabelValues(m.SanitizeService(service), "rejected").Inc()
	m.inboundRejects.WithLabelValues(reason).Inc()
}

// SetCloudConnected sets the cloud session gauge.
func (m *Metrics) SetCloudConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.cloudConnected.Set(1)
	} else {
		m.cloudConnected.Set(0)
	}
}
