package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// poolGauge is one exported pool statistic.
type poolGauge struct {
	desc      *prometheus.Desc
	valueType prometheus.ValueType
	value     func() float64
}

func newPoolDesc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc(name, help, []string{"service"}, nil)
}

// PoolStatsCollector exports pgxpool statistics for the catalog database.
type PoolStatsCollector struct {
	service string
	stats   func() *pgxpool.Stat
	descs   []*prometheus.Desc
}

var pgxPoolDescs = struct {
	acquired, idle, total, max, acquireCount, acquireSeconds, emptyAcquires, canceledAcquires *prometheus.Desc
}{
	acquired:         newPoolDesc("db_pool_acquired_connections", "Number of currently acquired connections"),
	idle:             newPoolDesc("db_pool_idle_connections", "Number of currently idle connections"),
	total:            newPoolDesc("db_pool_total_connections", "Total number of connections in the pool"),
	max:              newPoolDesc("db_pool_max_connections", "Maximum number of connections allowed"),
	acquireCount:     newPoolDesc("db_pool_acquire_count_total", "Total number of connection acquires"),
	acquireSeconds:   newPoolDesc("db_pool_acquire_duration_seconds_total", "Total time spent acquiring connections in seconds"),
	emptyAcquires:    newPoolDesc("db_pool_empty_acquire_count_total", "Total number of acquires that had to wait for a connection"),
	canceledAcquires: newPoolDesc("db_pool_canceled_acquire_count_total", "Total number of canceled connection acquires"),
}

// NewPoolStatsCollector creates a collector over a pgx pool.
func NewPoolStatsCollector(pool *pgxpool.Pool, service string) *PoolStatsCollector {
	return newPoolStatsCollector(pool.Stat, service)
}

func newPoolStatsCollector(stats func() *pgxpool.Stat, service string) *PoolStatsCollector {
	d := pgxPoolDescs
	return &PoolStatsCollector{
		service: service,
		stats:   stats,
		descs: []*prometheus.Desc{
			d.acquired, d.idle, d.total, d.max,
			d.acquireCount, d.acquireSeconds, d.emptyAcquires, d.canceledAcquires,
		},
	}
}

// Describe implements prometheus.Collector.
func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stat := c.stats()
	d := pgxPoolDescs
	emit(ch, c.service, []poolGauge{
		{d.acquired, prometheus.GaugeValue, func() float64 { return float64(stat.AcquiredConns()) }},
		{d.idle, prometheus.GaugeValue, func() float64 { return float64(stat.IdleConns()) }},
		{d.total, prometheus.GaugeValue, func() float64 { return float64(stat.TotalConns()) }},
		{d.max, prometheus.GaugeValue, func() float64 { return float64(stat.MaxConns()) }},
		{d.acquireCount, prometheus.CounterValue, func() float64 { return float64(stat.AcquireCount()) }},
		{d.acquireSeconds, prometheus.CounterValue, func() float64 { return stat.AcquireDuration().Seconds() }},
		{d.emptyAcquires, prometheus.CounterValue, func() float64 { return float64(stat.EmptyAcquireCount()) }},
		{d.canceledAcquires, prometheus.CounterValue, func() float64 { return float64(stat.CanceledAcquireCount()) }},
	})
}

// RedisPoolCollector exports go-redis connection pool statistics for the
// cart store.
type RedisPoolCollector struct {
	service string
	stats   func() *redis.PoolStats
}

var redisPoolDescs = struct {
	hits, misses, timeouts, total, idle, stale *prometheus.Desc
}{
	hits:     newPoolDesc("redis_pool_hits_total", "Times a free connection was found in the pool"),
	misses:   newPoolDesc("redis_pool_misses_total", "Times a free connection was not found in the pool"),
	timeouts: newPoolDesc("redis_pool_timeouts_total", "Times a wait for a connection timed out"),
	total:    newPoolDesc("redis_pool_total_connections", "Total number of connections in the pool"),
	idle:     newPoolDesc("redis_pool_idle_connections", "Number of idle connections in the pool"),
	stale:    newPoolDesc("redis_pool_stale_connections_total", "Stale connections removed from the pool"),
}

// NewRedisPoolCollector creates a collector over a go-redis client.
func NewRedisPoolCollector(client *redis.Client, service string) *RedisPoolCollector {
	return &RedisPoolCollector{service: service, stats: client.PoolStats}
}

// Describe implements prometheus.Collector.
func (c *RedisPoolCollector) Describe(ch chan<- *prometheus.Desc) {
	d := redisPoolDescs
	for _, desc := range []*prometheus.Desc{d.hits, d.misses, d.timeouts, d.total, d.idle, d.stale} {
		ch <- desc
	}
}

// Collect implements prometheus.Collector.
func (c *RedisPoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	d := redisPoolDescs
	emit(ch, c.service, []poolGauge{
		{d.hits, prometheus.CounterValue, func() float64 { return float64(s.Hits) }},
		{d.misses, prometheus.CounterValue, func() float64 { return float64(s.Misses) }},
		{d.timeouts, prometheus.CounterValue, func() float64 { return float64(s.Timeouts) }},
		{d.total, prometheus.GaugeValue, func() float64 { return float64(s.TotalConns) }},
		{d.idle, prometheus.GaugeValue, func() float64 { return float64(s.IdleConns) }},
		{d.stale, prometheus.CounterValue, func() float64 { return float64(s.StaleConns) }},
	})
}

func emit(ch chan<- prometheus.Metric, service string, gauges []poolGauge) {
	for _, g := range gauges {
		ch <- prometheus.MustNewConstMetric(g.desc, g.valueType, g.value(), service)
	}
}

// RegisterPoolMetrics registers a pgx pool collector with reg.
func RegisterPoolMetrics(reg prometheus.Registerer, pool *pgxpool.Pool, service string) error {
	return reg.Register(NewPoolStatsCollector(pool, service))
}

// RegisterRedisPoolMetrics registers a go-redis pool collector with reg.
func RegisterRedisPoolMetrics(reg prometheus.Registerer, client *redis.Client, service string) error {
	return reg.Register(NewRedisPoolCollector(client, service))
}
