package simconnect

import (
	goerrs "errors"

	"github.com/prometheus/client_golang/prometheus"
)

// dispatchMetrics is nil when no registerer was configured; every method is
// safe to call on a nil receiver.
type dispatchMetrics struct {
	records       *prometheus.CounterVec
	decodeErrors  prometheus.Counter
	dropped       prometheus.Counter
	emptyPolls    prometheus.Counter
	handlerCalls  *prometheus.CounterVec
	stateReplies  prometheus.Counter
	deliveryDepth *prometheus.GaugeVec
}

func newDispatchMetrics(reg prometheus.Registerer, programName string) *dispatchMetrics {
	if reg == nil {
		return nil
	}

	labels := prometheus.Labels{"program": programName}
	return &dispatchMetrics{
		records: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "simconnect",
			Subsystem:   "dispatch",
			Name:        "records_total",
			ConstLabels: labels,
			Help:        "Host records received, by record kind",
		}, []string{"kind"})),
		decodeErrors: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "simconnect",
			Subsystem:   "dispatch",
			Name:        "decode_errors_total",
			ConstLabels: labels,
			Help:        "Host records that failed to decode and were skipped",
		})),
		dropped: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "simconnect",
			Subsystem:   "dispatch",
			Name:        "dropped_object_data_total",
			ConstLabels: labels,
			Help:        "Object data records with no delivery queue for their define id",
		})),
		emptyPolls: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "simconnect",
			Subsystem:   "dispatch",
			Name:        "empty_polls_total",
			ConstLabels: labels,
			Help:        "Polls that found the host queue empty",
		})),
		handlerCalls: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "simconnect",
			Subsystem:   "dispatch",
			Name:        "event_handler_calls_total",
			ConstLabels: labels,
			Help:        "System event handler invocations, by event",
		}, []string{"event"})),
		stateReplies: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "simconnect",
			Subsystem:   "dispatch",
			Name:        "system_state_replies_total",
			ConstLabels: labels,
			Help:        "System state replies handed to a waiting caller",
		})),
		deliveryDepth: register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "simconnect",
			Subsystem:   "delivery",
			Name:        "queue_depth",
			ConstLabels: labels,
			Help:        "Undrained values per delivery queue",
		}, []string{"define_id"})),
	}
}

// register reuses an already registered collector so that reopening a
// connection for the same program does not panic.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if goerrs.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *dispatchMetrics) recordReceived(kind string) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(kind).Inc()
}

func (m *dispatchMetrics) decodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

func (m *dispatchMetrics) droppedObjectData() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *dispatchMetrics) emptyPoll() {
	if m == nil {
		return
	}
	m.emptyPolls.Inc()
}

func (m *dispatchMetrics) handlerCalled(event string) {
	if m == nil {
		return
	}
	m.handlerCalls.WithLabelValues(event).Inc()
}

func (m *dispatchMetrics) stateReplied() {
	if m == nil {
		return
	}
	m.stateReplies.Inc()
}

func (m *dispatchMetrics) setDepth(defineId string, depth int) {
	if m == nil {
		return
	}
	m.deliveryDepth.WithLabelValues(defineId).Set(float64(depth))
}
