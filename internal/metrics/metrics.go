// Package metrics defines the prometheus counters exported by the data
// layer. The daemon registers them and serves /metrics; library consumers
// can register them on their own registry or ignore them entirely.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "casevault_cache_hits_total",
		Help: "Decryption cache hits",
	})
	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "casevault_cache_misses_total",
		Help: "Decryption cache misses",
	})
	CacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "casevault_cache_evictions_total",
		Help: "Entries evicted to stay within the cache byte budget",
	})
	PagesServed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "casevault_pages_served_total",
		Help: "Record pages served",
	})
	DecryptFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "casevault_decrypt_failures_total",
		Help: "Per-field decryption failures surfaced to callers",
	})
	AuditAppendFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "casevault_audit_append_failures_total",
		Help: "Failed audit log appends",
	})
	BackupsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "casevault_backups_completed_total",
		Help: "Backup runs that produced an artifact",
	})
	BackupsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "casevault_backups_failed_total",
		Help: "Backup runs that failed",
	})
)

// MustRegister registers every collector on the given registerer.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		CacheHits, CacheMisses, CacheEvictions, PagesServed, DecryptFailures,
		AuditAppendFailures, BackupsCompleted, BackupsFailed,
	)
}
