package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics 定义业务监控指标
type BusinessMetrics struct {
	SendSuccessTotal       *prometheus.CounterVec
	SendFailureTotal       *prometheus.CounterVec
	SignDuration           *prometheus.HistogramVec
	MerchantAckTotal       *prometheus.CounterVec
	InboxEntriesTotal      *prometheus.CounterVec // result: processed / skipped / unresolvable
	PairingTotal           *prometheus.CounterVec // result: success / rejected / timeout / error
	GasEstimateTotal       *prometheus.CounterVec
	EnvelopesSentTotal     *prometheus.CounterVec
}

// Global Metrics Instance
var Business *BusinessMetrics

// InitBusinessMetrics 初始化业务指标
func InitBusinessMetrics() {
	Business = &BusinessMetrics{
		SendSuccessTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_send_success_total",
			Help: "Total number of successfully broadcast transactions",
		}, []string{"currency"}),
		SendFailureTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_send_failure_total",
			Help: "Total number of failed sends",
		}, []string{"currency", "reason"}),
		SignDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payments_sign_duration_seconds",
			Help:    "Duration of transaction signing",
			Buckets: prometheus.DefBuckets,
		}, []string{"currency"}),
		MerchantAckTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_merchant_ack_total",
			Help: "Merchant payment-protocol ACK results",
		}, []string{"status"}),
		InboxEntriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_inbox_entries_total",
			Help: "Inbox entries by processing result",
		}, []string{"result"}),
		PairingTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_pairing_total",
			Help: "Pairing attempts by result",
		}, []string{"result"}),
		GasEstimateTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_gas_estimate_total",
			Help: "Gas estimate requests by result",
		}, []string{"result"}),
		EnvelopesSentTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_envelopes_sent_total",
			Help: "Outbound pigeon envelopes by message type",
		}, []string{"type"}),
	}
}
