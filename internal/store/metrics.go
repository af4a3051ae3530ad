package store

import (
	"sync/atomic"
	"time"
)

type Metrics struct {
	Loads          int64 `json:"loads"`
	Saves          int64 `json:"saves"`
	Misses         int64 `json:"misses"`
	DecodeFailures int64 `json:"decode_failures"`
	Errors         int64 `json:"errors"`
	StartTime      int64 `json:"start_time"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		StartTime: time.Now().Unix(),
	}
}

func (m *Metrics) RecordLoad() {
	atomic.AddInt64(&m.Loads, 1)
}

func (m *Metrics) RecordSave() {
	atomic.AddInt64(&m.Saves, 1)
}

func (m *Metrics) RecordMiss() {
	atomic.AddInt64(&m.Misses, 1)
}

func (m *Metrics) RecordDecodeFailure() {
	atomic.AddInt64(&m.DecodeFailures, 1)
}

func (m *Metrics) RecordError() {
	atomic.AddInt64(&m.Errors, 1)
}

func (m *Metrics) GetStats() Metrics {
	return Metrics{
		Loads:          atomic.LoadInt64(&m.Loads),
		Saves:          atomic.LoadInt64(&m.Saves),
		Misses:         atomic.LoadInt64(&m.Misses),
		DecodeFailures: atomic.LoadInt64(&m.DecodeFailures),
		Errors:         atomic.LoadInt64(&m.Errors),
		StartTime:      atomic.LoadInt64(&m.StartTime),
	}
}

func (m *Metrics) Reset() {
	atomic.StoreInt64(&m.Loads, 0)
	atomic.StoreInt64(&m.Saves, 0)
	atomic.StoreInt64(&m.Misses, 0)
	atomic.StoreInt64(&m.DecodeFailures, 0)
	atomic.StoreInt64(&m.Errors, 0)
	atomic.StoreInt64(&m.StartTime, time.Now().Unix())
}
