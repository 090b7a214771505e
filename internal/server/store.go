package server

import (
	"context"
	"errors"
	"time"

	"github.com/nainya/outlinestore/internal/logger"
	"github.com/nainya/outlinestore/internal/metrics"
	"github.com/nainya/outlinestore/pkg/node"
	"github.com/nainya/outlinestore/pkg/store"
)

// InstrumentedStore records metrics and debug logs for every call on the
// wrapped store. It always implements store.Committer: batches go to the
// wrapped Committer when there is one and are applied in order otherwise.
type InstrumentedStore struct {
	inner   store.Store
	metrics *metrics.Metrics
	log     *logger.Logger
}

// NewInstrumentedStore wraps s. Either m or log may be nil.
func NewInstrumentedStore(s store.Store, m *metrics.Metrics, log *logger.Logger) *InstrumentedStore {
	if log == nil {
		log = logger.Nop()
	}
	return &InstrumentedStore{inner: s, metrics: m, log: log.Component("store")}
}

// Unwrap returns the wrapped store.
func (s *InstrumentedStore) Unwrap() store.Store {
	return s.inner
}

func (s *InstrumentedStore) Save(ctx context.Context, n *node.ContentNode) error {
	start := time.Now()
	err := s.inner.Save(ctx, n)
	s.observe("save", n.ID(), 1, start, err)
	return err
}

func (s *InstrumentedStore) Read(ctx context.Context, id string) (*node.ContentNode, error) {
	start := time.Now()
	n, err := s.inner.Read(ctx, id)
	s.observe("read", id, 1, start, err)
	return n, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := s.inner.Delete(ctx, id)
	s.observe("delete", id, 1, start, err)
	return err
}

func (s *InstrumentedStore) Commit(ctx context.Context, b *store.Batch) error {
	start := time.Now()
	var err error
	if c, ok := s.inner.(store.Committer); ok {
		err = c.Commit(ctx, b)
	} else {
		err = store.Apply(ctx, s.inner, b)
	}
	s.observe("commit", "", b.Len(), start, err)
	return err
}

// RefreshRecordCount updates the record gauge for backends that can count.
func (s *InstrumentedStore) RefreshRecordCount(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	var n int
	switch c := s.inner.(type) {
	case interface{ Count() int }:
		n = c.Count()
	case interface{ Len() int }:
		n = c.Len()
	case interface {
		Count(context.Context) (int, error)
	}:
		var err error
		if n, err = c.Count(ctx); err != nil {
			s.log.Warn("record count failed").Err(err).Send()
			return
		}
	default:
		return
	}
	s.metrics.StoreRecordsTotal.Set(float64(n))
}

func (s *InstrumentedStore) observe(op, id string, records int, start time.Time, err error) {
	d := time.Since(start)
	// A missing record is an expected outcome, not a store failure.
	logErr := err
	result := "success"
	switch {
	case errors.Is(err, store.ErrNotFound):
		result = "not_found"
		logErr = nil
	case err != nil:
		result = "error"
	}
	if s.metrics != nil {
		s.metrics.RecordStoreOperation(op, result, d)
	}
	s.log.LogStoreOperation(op, id, records, d, logErr)
}
