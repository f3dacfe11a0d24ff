// Package metrics exposes prometheus counters for store calls and server
// requests.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tobsdb/rtable/internal/store"
)

var (
	// StoreOps counts backing store calls by operation and outcome.
	StoreOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtable_store_operations_total",
			Help: "Total number of backing store operations",
		},
		[]string{"op", "status"},
	)
	// StoreDuration is the latency of backing store calls.
	StoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rtable_store_operation_duration_seconds",
			Help:    "Backing store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	// Requests counts server requests by action and response status.
	Requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rtable_requests_total",
			Help: "Total number of table requests",
		},
		[]string{"action", "status"},
	)
	// Connections is the number of open client connections.
	Connections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rtable_connections",
			Help: "Number of open client connections",
		},
	)
)

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

func observe(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	StoreOps.WithLabelValues(op, status).Inc()
	StoreDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Instrument wraps s so every call made through it, and through the handles
// it returns, is counted and timed.
func Instrument(s store.Store) store.Store {
	return &instrumented{s}
}

type instrumented struct{ s store.Store }

func (i *instrumented) Kind(ctx context.Context, key string) (store.Kind, error) {
	start := time.Now()
	k, err := i.s.Kind(ctx, key)
	observe("kind", start, err)
	return k, err
}

func (i *instrumented) Counter(ctx context.Context, key string) (store.Counter, error) {
	start := time.Now()
	c, err := i.s.Counter(ctx, key)
	observe("counter", start, err)
	if err != nil {
		return nil, err
	}
	return counter{c}, nil
}

func (i *instrumented) FieldMap(ctx context.Context, key string) (store.FieldMap, error) {
	start := time.Now()
	m, err := i.s.FieldMap(ctx, key)
	observe("fieldmap", start, err)
	if err != nil {
		return nil, err
	}
	return fieldMap{m}, nil
}

func (i *instrumented) OrderedSet(ctx context.Context, key string) (store.OrderedSet, error) {
	start := time.Now()
	z, err := i.s.OrderedSet(ctx, key)
	observe("orderedset", start, err)
	if err != nil {
		return nil, err
	}
	return orderedSet{z}, nil
}

func (i *instrumented) Close() error { return i.s.Close() }

type counter struct{ c store.Counter }

func (c counter) Incr(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := c.c.Incr(ctx)
	observe("incr", start, err)
	return n, err
}

type fieldMap struct{ m store.FieldMap }

func (m fieldMap) Get(ctx context.Context, field string) ([]byte, error) {
	start := time.Now()
	v, err := m.m.Get(ctx, field)
	observe("hget", start, err)
	return v, err
}

func (m fieldMap) MultiGet(ctx context.Context, fields []string) ([][]byte, error) {
	start := time.Now()
	v, err := m.m.MultiGet(ctx, fields)
	observe("hmget", start, err)
	return v, err
}

func (m fieldMap) Set(ctx context.Context, field string, value []byte) error {
	start := time.Now()
	err := m.m.Set(ctx, field, value)
	observe("hset", start, err)
	return err
}

func (m fieldMap) Delete(ctx context.Context, field string) error {
	start := time.Now()
	err := m.m.Delete(ctx, field)
	observe("hdel", start, err)
	return err
}

func (m fieldMap) All(ctx context.Context) (map[string][]byte, error) {
	start := time.Now()
	v, err := m.m.All(ctx)
	observe("hgetall", start, err)
	return v, err
}

type orderedSet struct{ z store.OrderedSet }

func (z orderedSet) Add(ctx context.Context, score float64, member string) error {
	start := time.Now()
	err := z.z.Add(ctx, score, member)
	observe("zadd", start, err)
	return err
}

func (z orderedSet) Remove(ctx context.Context, member string) error {
	start := time.Now()
	err := z.z.Remove(ctx, member)
	observe("zrem", start, err)
	return err
}

func (z orderedSet) RangeByScore(ctx context.Context, r store.ScoreRange) ([]store.ScoredMember, error) {
	start := time.Now()
	v, err := z.z.RangeByScore(ctx, r)
	observe("zrange", start, err)
	return v, err
}

func (z orderedSet) Count(ctx context.Context, min, max float64) (int64, error) {
	start := time.Now()
	n, err := z.z.Count(ctx, min, max)
	observe("zcount", start, err)
	return n, err
}
