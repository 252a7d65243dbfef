package facade

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts facade operations and broker failures.
type Metrics struct {
	inputsEnqueued  prometheus.Counter
	epochsFinished  prometheus.Counter
	claimsConsumed  prometheus.Counter
	brokerErrors    *prometheus.CounterVec
	sequencingFails *prometheus.CounterVec
	inputsSent      prometheus.Gauge
}

// NewMetrics creates the facade metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	inputsEnqueued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rollups_broker_inputs_enqueued_total",
		Help: "Number of input events produced to the inputs stream.",
	})
	if err := reg.Register(inputsEnqueued); err != nil {
		return nil, fmt.Errorf("register inputs enqueued metric: %w", err)
	}

	epochsFinished := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rollups_broker_epochs_finished_total",
		Help: "Number of finish-epoch events produced to the inputs stream.",
	})
	if err := reg.Register(epochsFinished); err != nil {
		return nil, fmt.Errorf("register epochs finished metric: %w", err)
	}

	claimsConsumed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rollups_broker_claims_consumed_total",
		Help: "Number of claims read from the claims stream.",
	})
	if err := reg.Register(claimsConsumed); err != nil {
		return nil, fmt.Errorf("register claims consumed metric: %w", err)
	}

	brokerErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollups_broker_errors_total",
			Help: "Broker failures by operation.",
		},
		[]string{"op"},
	)
	if err := reg.Register(brokerErrors); err != nil {
		return nil, fmt.Errorf("register broker errors metric: %w", err)
	}

	sequencingFails := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollups_broker_sequencing_violations_total",
			Help: "Events rejected because the caller and the stream disagree on position.",
		},
		[]string{"check"},
	)
	if err := reg.Register(sequencingFails); err != nil {
		return nil, fmt.Errorf("register sequencing violations metric: %w", err)
	}

	inputsSent := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rollups_broker_inputs_sent",
		Help: "Inputs sent count of the last event seen at the tail of the inputs stream.",
	})
	if err := reg.Register(inputsSent); err != nil {
		return nil, fmt.Errorf("register inputs sent metric: %w", err)
	}

	return &Metrics{
		inputsEnqueued:  inputsEnqueued,
		epochsFinished:  epochsFinished,
		claimsConsumed:  claimsConsumed,
		brokerErrors:    brokerErrors,
		sequencingFails: sequencingFails,
		inputsSent:      inputsSent,
	}, nil
}

func (m *Metrics) brokerError(op string) {
	if m == nil {
		return
	}
	m.brokerErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) sequencingViolation(err error) {
	if m == nil {
		return
	}
	var seqErr *SequencingError
	if errors.As(err, &seqErr) {
		m.sequencingFails.WithLabelValues(seqErr.Check).Inc()
	}
}

func (m *Metrics) observeStatus(status RollupStatus) {
	if m == nil {
		return
	}
	m.inputsSent.Set(float64(status.InputsSentCount))
}

func (m *Metrics) inputEnqueued() {
	if m == nil {
		return
	}
	m.inputsEnqueued.Inc()
}

func (m *Metrics) epochFinished() {
	if m == nil {
		return
	}
	m.epochsFinished.Inc()
}

func (m *Metrics) claimConsumed() {
	if m == nil {
		return
	}
	m.claimsConsumed.Inc()
}
