package services

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 为 nil 时所有方法都是空操作
type Metrics struct {
	submissions   *prometheus.CounterVec
	confirmRetry  prometheus.Counter
	transitions   *prometheus.CounterVec
	priceFailures prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "launchpad_submissions_total",
			Help: "transactions submitted by purpose and result",
		}, []string{"purpose", "result"}),
		confirmRetry: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "launchpad_confirmation_retries_total",
			Help: "confirmations retried with a fresh checkpoint",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "launchpad_transitions_total",
			Help: "launch session transitions by target state and result",
		}, []string{"state", "result"}),
		priceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "launchpad_price_poll_failures_total",
			Help: "failed price polls",
		}),
	}
	err := errors.Join(
		reg.Register(m.submissions),
		reg.Register(m.confirmRetry),
		reg.Register(m.transitions),
		reg.Register(m.priceFailures),
	)
	return m, err
}

func (m *Metrics) submission(purpose string, err error) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(purpose, result(err)).Inc()
}

func (m *Metrics) retry() {
	if m == nil {
		return
	}
	m.confirmRetry.Inc()
}

func (m *Metrics) transition(state string, err error) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state, result(err)).Inc()
}

func (m *Metrics) priceFailure() {
	if m == nil {
		return
	}
	m.priceFailures.Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
