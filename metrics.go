package linkz

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts tracer activity. A nil *Metrics records nothing.
type Metrics struct {
	SpansStarted    *prometheus.CounterVec
	SpansReported   prometheus.Counter
	SpansDropped    prometheus.Counter
	DoubleFinishes  prometheus.Counter
	DecodeErrors    prometheus.Counter
	SamplingMisuses prometheus.Counter
}

// NewMetrics creates the tracer counters and registers them with reg.
// A nil reg skips registration.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		SpansStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linkz",
			Name:      "spans_started_total",
			Help:      "Spans started, by kind.",
		}, []string{"kind"}),
		SpansReported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "linkz",
			Name:      "spans_reported_total",
			Help:      "Sampled spans handed to reporters.",
		}),
		SpansDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "linkz",
			Name:      "spans_dropped_total",
			Help:      "Spans dropped because the report queue was full.",
		}),
		DoubleFinishes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "linkz",
			Name:      "double_finish_total",
			Help:      "Spans finished more than once.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "linkz",
			Name:      "propagation_decode_errors_total",
			Help:      "Inbound propagation headers that could not be decoded.",
		}),
		SamplingMisuses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "linkz",
			Name:      "sampling_misuse_total",
			Help:      "Traces for which the sampler was consulted more than once.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.SpansStarted, m.SpansReported, m.SpansDropped,
		m.DoubleFinishes, m.DecodeErrors, m.SamplingMisuses,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) started(k Kind) {
	if m != nil {
		m.SpansStarted.WithLabelValues(k.String()).Inc()
	}
}

func (m *Metrics) reported() {
	if m != nil {
		m.SpansReported.Inc()
	}
}

func (m *Metrics) dropped() {
	if m != nil {
		m.SpansDropped.Inc()
	}
}

func (m *Metrics) doubleFinish() {
	if m != nil {
		m.DoubleFinishes.Inc()
	}
}

func (m *Metrics) decodeError() {
	if m != nil {
		m.DecodeErrors.Inc()
	}
}

func (m *Metrics) samplingMisuse() {
	if m != nil {
		m.SamplingMisuses.Inc()
	}
}
