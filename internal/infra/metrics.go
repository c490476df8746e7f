package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Workflow: переходы state machine по действию и исходу
	WorkflowTransitions *prometheus.CounterVec

	// Batch: исход каждого элемента пакетного согласования
	BatchItems *prometheus.CounterVec

	// Uploads: строки массовой загрузки (succeeded/failed/invalid)
	UploadRows *prometheus.CounterVec

	// Providers: латентность и ошибки внешних вызовов
	ProviderDuration *prometheus.HistogramVec
	ProviderErrors   *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker (0 - closed, 1 - half-open, 2 - open)
	CircuitBreakerState *prometheus.GaugeVec

	// Audit: заполненность буфера (backpressure)
	AuditBufferFill prometheus.Gauge
	AuditDropped    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		WorkflowTransitions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_workflow_transitions_total",
			Help: "Workflow state transitions by action and result.",
		}, []string{"action", "result"}),

		BatchItems: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_batch_items_total",
			Help: "Batch approval items by action and outcome.",
		}, []string{"action", "outcome"}),

		UploadRows: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_upload_rows_total",
			Help: "Bulk upload rows by entity kind and outcome.",
		}, []string{"kind", "outcome"}),

		ProviderDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "compliance_provider_request_duration_seconds",
			Help:    "Histogram of outbound provider call latencies.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"provider", "operation"}),

		ProviderErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_provider_errors_total",
			Help: "Outbound provider errors by kind.",
		}, []string{"provider", "kind"}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "compliance_circuit_breaker_state",
			Help: "Current state of the provider circuit breaker (0=closed, 1=half-open, 2=open).",
		}, []string{"provider"}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "compliance_audit_buffer_utilization",
			Help: "Current number of events in audit buffer.",
		}),

		AuditDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "compliance_audit_dropped_total",
			Help: "Audit events dropped because the buffer was full or closed.",
		}),
	}
}
