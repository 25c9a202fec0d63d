package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics tracks the shared view cache, labelled by cache name.
type CacheMetrics struct {
	hits          *prometheus.CounterVec
	misses        *prometheus.CounterVec
	invalidations *prometheus.CounterVec
	staleLoads    *prometheus.CounterVec
}

func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	if reg == nil {
		return &CacheMetrics{}
	}
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: namespace, Subsystem: "cache", Name: name, Help: help}
	}
	hits := prometheus.NewCounterVec(opts("hits_total", "Cache reads served from memory."), []string{"cache"})
	misses := prometheus.NewCounterVec(opts("misses_total", "Cache reads that went to the loader."), []string{"cache"})
	invalidations := prometheus.NewCounterVec(opts("invalidations_total", "Entries invalidated by change notifications."), []string{"cache"})
	staleLoads := prometheus.NewCounterVec(opts("stale_loads_total", "Loads discarded because the entry was invalidated while loading."), []string{"cache"})
	reg.MustRegister(hits, misses, invalidations, staleLoads)
	return &CacheMetrics{hits: hits, misses: misses, invalidations: invalidations, staleLoads: staleLoads}
}

func (m *CacheMetrics) Hit(cache string) {
	if m == nil || m.hits == nil {
		return
	}
	m.hits.WithLabelValues(normalizeLabel(cache)).Inc()
}

func (m *CacheMetrics) Miss(cache string) {
	if m == nil || m.misses == nil {
		return
	}
	m.misses.WithLabelValues(normalizeLabel(cache)).Inc()
}

func (m *CacheMetrics) Invalidated(cache string, n int) {
	if m == nil || m.invalidations == nil || n <= 0 {
		return
	}
	m.invalidations.WithLabelValues(normalizeLabel(cache)).Add(float64(n))
}

func (m *CacheMetrics) StaleLoad(cache string) {
	if m == nil || m.staleLoads == nil {
		return
	}
	m.staleLoads.WithLabelValues(normalizeLabel(cache)).Inc()
}
