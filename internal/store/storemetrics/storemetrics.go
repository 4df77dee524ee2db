// Package storemetrics wraps a store.Store with Prometheus metrics.
package storemetrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/basekit/internal/query"
	"github.com/roach88/basekit/internal/store"
	"github.com/roach88/basekit/internal/value"
)

// Metric names.
const (
	OpsTotalName     = "basekit_store_operations_total"
	OpDurationName   = "basekit_store_operation_duration_seconds"
	ItemsFetchedName = "basekit_store_items_fetched_total"
	ItemsWrittenName = "basekit_store_items_written_total"
)

// Outcome label values.
const (
	StatusOK       = "ok"
	StatusNotFound = "not_found"
	StatusError    = "error"
)

// Metrics holds the collectors. One Metrics serves every base wrapped on
// the same registerer.
type Metrics struct {
	opsTotal     *prometheus.CounterVec
	opDuration   *prometheus.HistogramVec
	itemsFetched *prometheus.CounterVec
	itemsWritten *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. When
// reg already holds them (another base was wrapped first) the existing
// collectors are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		opsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: OpsTotalName,
				Help: "Total number of store operations",
			},
			[]string{"base", "op", "status"},
		),
		opDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    OpDurationName,
				Help:    "Duration of store operations",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"base", "op"},
		),
		itemsFetched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: ItemsFetchedName,
				Help: "Total number of items returned by fetch",
			},
			[]string{"base"},
		),
		itemsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: ItemsWrittenName,
				Help: "Total number of items written by insert, put and put-many",
			},
			[]string{"base"},
		),
	}

	var err error
	if m.opsTotal, err = register(reg, m.opsTotal); err != nil {
		return nil, err
	}
	if m.opDuration, err = register(reg, m.opDuration); err != nil {
		return nil, err
	}
	if m.itemsFetched, err = register(reg, m.itemsFetched); err != nil {
		return nil, err
	}
	if m.itemsWritten, err = register(reg, m.itemsWritten); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Store is an instrumented store.Store.
type Store struct {
	next    store.Store
	base    string
	metrics *Metrics
}

var _ store.Store = (*Store)(nil)

// Wrap instruments st, labelling its metrics with base.
func Wrap(st store.Store, reg prometheus.Registerer, base string) (*Store, error) {
	m, err := NewMetrics(reg)
	if err != nil {
		return nil, err
	}
	return &Store{next: st, base: base, metrics: m}, nil
}

// Unwrap returns the instrumented store.
func (s *Store) Unwrap() store.Store {
	return s.next
}

func (s *Store) observe(op string, start time.Time, err error) {
	s.metrics.opDuration.WithLabelValues(s.base, op).Observe(time.Since(start).Seconds())
	s.metrics.opsTotal.WithLabelValues(s.base, op, statusOf(err)).Inc()
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrKeyNotFound):
		return StatusNotFound
	default:
		return StatusError
	}
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, key string) (value.Object, error) {
	start := time.Now()
	item, err := s.next.Get(ctx, key)
	s.observe("get", start, err)
	return item, err
}

// Insert implements store.Store.
func (s *Store) Insert(ctx context.Context, key string, data value.Object) (value.Object, error) {
	start := time.Now()
	item, err := s.next.Insert(ctx, key, data)
	s.observe("insert", start, err)
	if err == nil {
		s.metrics.itemsWritten.WithLabelValues(s.base).Inc()
	}
	return item, err
}

// Put implements store.Store.
func (s *Store) Put(ctx context.Context, key string, data value.Object) (value.Object, error) {
	start := time.Now()
	item, err := s.next.Put(ctx, key, data)
	s.observe("put", start, err)
	if err == nil {
		s.metrics.itemsWritten.WithLabelValues(s.base).Inc()
	}
	return item, err
}

// PutMany implements store.Store.
func (s *Store) PutMany(ctx context.Context, items []value.Object) ([]value.Object, error) {
	start := time.Now()
	out, err := s.next.PutMany(ctx, items)
	s.observe("put_many", start, err)
	if err == nil {
		s.metrics.itemsWritten.WithLabelValues(s.base).Add(float64(len(out)))
	}
	return out, err
}

// Fetch implements store.Store.
func (s *Store) Fetch(ctx context.Context, filter query.Wire, opts store.FetchOptions) (store.Page, error) {
	start := time.Now()
	page, err := s.next.Fetch(ctx, filter, opts)
	s.observe("fetch", start, err)
	if err == nil {
		s.metrics.itemsFetched.WithLabelValues(s.base).Add(float64(len(page.Items)))
	}
	return page, err
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, key string, upd store.Update) error {
	start := time.Now()
	err := s.next.Update(ctx, key, upd)
	s.observe("update", start, err)
	return err
}

// Totals sums the operation counters in g by op and status, for logging.
func Totals(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}
	totals := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != OpsTotalName {
			continue
		}
		for _, m := range mf.GetMetric() {
			var op, status string
			for _, lp := range m.GetLabel() {
				switch lp.GetName() {
				case "op":
					op = lp.GetValue()
				case "status":
					status = lp.GetValue()
				}
			}
			totals[op+"."+status] += m.GetCounter().GetValue()
		}
	}
	return totals, nil
}
