package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	StorageFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_fallback_total",
			Help: "Queries served by the in-memory fallback instead of the durable store",
		},
		[]string{"collection", "reason"},
	)
	QuotaRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_requests_total",
			Help: "Actions admitted by the quota guard",
		},
		[]string{"class"},
	)
	QuotaBlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_blocked_total",
			Help: "Actions rejected by the quota guard",
		},
		[]string{"class"},
	)
	QuotaStoreFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quota_store_fallback_total",
			Help: "Quota counter increments served by the local store because Redis failed",
		},
	)
	LedgerAdjustments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_adjustments_total",
			Help: "Ledger mutations by balance kind",
		},
		[]string{"kind"},
	)
	AuditWriteFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_audit_write_failures_total",
			Help: "Audit records that could not be written",
		},
		[]string{"kind"},
	)
	MissionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mission_transitions_total",
			Help: "Mission lifecycle transitions",
		},
		[]string{"transition"},
	)
	Settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mission_settlements_total",
			Help: "Mission reward settlements by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(StorageFallbacks)
	prometheus.MustRegister(QuotaRequests)
	prometheus.MustRegister(QuotaBlocked)
	prometheus.MustRegister(QuotaStoreFallbacks)
	prometheus.MustRegister(LedgerAdjustments)
	prometheus.MustRegister(AuditWriteFailures)
	prometheus.MustRegister(MissionTransitions)
	prometheus.MustRegister(Settlements)
}
