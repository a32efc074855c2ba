package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus counters for the terminal. The terminal has
// no scrape endpoint; counters register on a private registry and the
// technician diagnostics screen renders them via Gather.
type Metrics struct {
	registry *prometheus.Registry

	OperationsCommitted  *prometheus.CounterVec
	OperationsRejected   *prometheus.CounterVec
	OperationsRolledBack prometheus.Counter
	ReceiptsPrinted      prometheus.Counter
	ReceiptsSkipped      prometheus.Counter
	Logins               *prometheus.CounterVec
}

// New creates and registers all terminal metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		OperationsCommitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cashpoint_operations_committed_total",
			Help: "Cash operations committed, by operation kind.",
		}, []string{"kind"}),
		OperationsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cashpoint_operations_rejected_total",
			Help: "Cash operations rejected during validation, by reason.",
		}, []string{"reason"}),
		OperationsRolledBack: factory.NewCounter(prometheus.CounterOpts{
			Name: "cashpoint_operations_rolled_back_total",
			Help: "Cash operations rolled back after a persistence failure.",
		}),
		ReceiptsPrinted: factory.NewCounter(prometheus.CounterOpts{
			Name: "cashpoint_receipts_printed_total",
			Help: "Receipts successfully printed.",
		}),
		ReceiptsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "cashpoint_receipts_skipped_total",
			Help: "Receipts skipped because paper or ink ran out.",
		}),
		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cashpoint_logins_total",
			Help: "Login attempts, by role and outcome.",
		}, []string{"role", "outcome"}),
	}
}

// Registry exposes the private registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) IncOperationCommitted(kind string) {
	m.OperationsCommitted.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncOperationRejected(reason string) {
	m.OperationsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncOperationRolledBack() {
	m.OperationsRolledBack.Inc()
}

func (m *Metrics) IncReceiptPrinted() {
	m.ReceiptsPrinted.Inc()
}

func (m *Metrics) IncReceiptSkipped() {
	m.ReceiptsSkipped.Inc()
}

func (m *Metrics) IncLogin(role string, succeeded bool) {
	outcome := "success"
	if !succeeded {
		outcome = "failure"
	}
	m.Logins.WithLabelValues(role, outcome).Inc()
}

// Snapshot renders every counter as "name{labels} value" lines, sorted, for
// the diagnostics screen.
func (m *Metrics) Snapshot() ([]string, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	var lines []string
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			lines = append(lines, renderMetric(family.GetName(), metric))
		}
	}
	sort.Strings(lines)
	return lines, nil
}

func renderMetric(name string, metric *dto.Metric) string {
	var labels []string
	for _, pair := range metric.GetLabel() {
		labels = append(labels, fmt.Sprintf("%s=%q", pair.GetName(), pair.GetValue()))
	}
	value := metric.GetCounter().GetValue()
	if len(labels) == 0 {
		return fmt.Sprintf("%s %g", name, value)
	}
	return fmt.Sprintf("%s{%s} %g", name, strings.Join(labels, ","), value)
}
