package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookupsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "policache_lookups_total",
		Help: "The total number of cache lookups",
	}, []string{
		"policy", // Eviction policy of the cache, e.g. lru.
		"status", // One of hit or miss.
	})
	evictionsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "policache_evictions_total",
		Help: "The total number of keys evicted to stay within capacity",
	}, []string{"policy"})
	storeOpsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "policache_store_ops_total",
		Help: "The total number of operations executed against the backing store",
	}, []string{
		"policy",
		"op",     // One of get, set, remove or remove_all.
		"status", // One of ok, not_found or error.
	})
)

func recordLookup(policy Policy, hit bool) {
	status := "miss"
	if hit {
		status = "hit"
	}
	lookupsMetric.WithLabelValues(string(policy), status).Inc()
}

func recordEviction(policy Policy) {
	evictionsMetric.WithLabelValues(string(policy)).Inc()
}
