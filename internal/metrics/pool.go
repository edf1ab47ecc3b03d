package metrics

import "github.com/prometheus/client_golang/prometheus"

// PoolStats is a point-in-time view of a store's connection pool.
type PoolStats struct {
	Max      int32
	Idle     int32
	Acquired int32
}

// poolCollector reads pool statistics on every scrape.
type poolCollector struct {
	driver string
	stats  func() PoolStats
	conns  *prometheus.Desc
	max    *prometheus.Desc
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.conns
	ch <- c.max
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.stats()
	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(st.Idle), c.driver, "idle")
	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(st.Acquired), c.driver, "acquired")
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(st.Max), c.driver)
}

// RegisterPool exposes the connection pool of the named store driver. stats
// is called on every scrape and must be safe for concurrent use.
func (m *Metrics) RegisterPool(driver string, stats func() PoolStats) {
	m.registry.MustRegister(&poolCollector{
		driver: driver,
		stats:  stats,
		conns: prometheus.NewDesc(
			"taskara_db_pool_conns",
			"Open store connections by state.",
			[]string{"driver", "state"}, nil,
		),
		max: prometheus.NewDesc(
			"taskara_db_pool_max_conns",
			"Configured upper bound of the store connection pool.",
			[]string{"driver"}, nil,
		),
	})
}
