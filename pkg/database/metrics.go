package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

type poolMetric struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func() float64
}

// statsCollector exports a fixed set of pool readings under a service label.
type statsCollector struct {
	service string
	metrics []poolMetric
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, m.value(), c.service)
	}
}

func gauge(name, help string, fn func() float64) poolMetric {
	return poolMetric{desc: prometheus.NewDesc(name, help, []string{"service"}, nil), kind: prometheus.GaugeValue, value: fn}
}

func counter(name, help string, fn func() float64) poolMetric {
	return poolMetric{desc: prometheus.NewDesc(name, help, []string{"service"}, nil), kind: prometheus.CounterValue, value: fn}
}

// NewPoolStatsCollector exports pgxpool statistics.
func NewPoolStatsCollector(pool *pgxpool.Pool, service string) prometheus.Collector {
	stat := func() *pgxpool.Stat { return pool.Stat() }
	return &statsCollector{service: service, metrics: []poolMetric{
		gauge("db_pool_acquired_connections", "Currently acquired connections",
			func() float64 { return float64(stat().AcquiredConns()) }),
		gauge("db_pool_idle_connections", "Currently idle connections",
			func() float64 { return float64(stat().IdleConns()) }),
		gauge("db_pool_total_connections", "Connections in the pool",
			func() float64 { return float64(stat().TotalConns()) }),
		gauge("db_pool_max_connections", "Maximum connections allowed",
			func() float64 { return float64(stat().MaxConns()) }),
		counter("db_pool_acquire_count_total", "Connection acquires",
			func() float64 { return float64(stat().AcquireCount()) }),
		counter("db_pool_empty_acquire_count_total", "Acquires that waited for a connection",
			func() float64 { return float64(stat().EmptyAcquireCount()) }),
		counter("db_pool_acquire_duration_seconds_total", "Time spent acquiring connections",
			func() float64 { return stat().AcquireDuration().Seconds() }),
	}}
}

// NewRedisStatsCollector exports go-redis pool statistics.
func NewRedisStatsCollector(client *redis.Client, service string) prometheus.Collector {
	stat := func() *redis.PoolStats { return client.PoolStats() }
	return &statsCollector{service: service, metrics: []poolMetric{
		gauge("redis_pool_total_connections", "Connections in the redis pool",
			func() float64 { return float64(stat().TotalConns) }),
		gauge("redis_pool_idle_connections", "Idle redis connections",
			func() float64 { return float64(stat().IdleConns) }),
		counter("redis_pool_hits_total", "Free connections found in the pool",
			func() float64 { return float64(stat().Hits) }),
		counter("redis_pool_misses_total", "Pool lookups that found no free connection",
			func() float64 { return float64(stat().Misses) }),
		counter("redis_pool_timeouts_total", "Pool wait timeouts",
			func() float64 { return float64(stat().Timeouts) }),
	}}
}

// RegisterPoolMetrics registers c with the default registry, ignoring
// duplicate registration.
func RegisterPoolMetrics(c prometheus.Collector) error {
	if err := prometheus.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}
