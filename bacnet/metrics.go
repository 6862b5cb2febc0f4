package bacnet

import (
	"sync/atomic"
	"time"
)

// Counter is a monotonically increasing atomic counter.
type Counter struct {
	value atomic.Uint64
}

func (c *Counter) Inc()          { c.value.Add(1) }
func (c *Counter) Add(n uint64)  { c.value.Add(n) }
func (c *Counter) Value() uint64 { return c.value.Load() }
func (c *Counter) Reset()        { c.value.Store(0) }

// Gauge is an atomic instantaneous value.
type Gauge struct {
	value atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// LatencyHistogram tracks request latencies in fixed buckets.
type LatencyHistogram struct {
	buckets [10]atomic.Uint64
	sum     atomic.Uint64
	count   atomic.Uint64
}

// latencyBounds are the bucket upper bounds in milliseconds.
var latencyBounds = [10]uint64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000}

// Observe records one latency sample.
func (h *LatencyHistogram) Observe(d time.Duration) {
	ms := uint64(d.Milliseconds())
	h.sum.Add(ms)
	h.count.Add(1)
	for i, bound := range latencyBounds {
		if ms <= bound {
			h.buckets[i].Add(1)
			return
		}
	}
	h.buckets[len(h.buckets)-1].Add(1)
}

// Mean returns the mean observed latency in milliseconds.
func (h *LatencyHistogram) Mean() float64 {
	count := h.count.Load()
	if count == 0 {
		return 0
	}
	return float64(h.sum.Load()) / float64(count)
}

// Count returns the number of samples observed.
func (h *LatencyHistogram) Count() uint64 { return h.count.Load() }

// Metrics holds the client's in-process instrumentation.
type Metrics struct {
	RequestsSent       Counter
	ResponsesReceived  Counter
	Retransmissions    Counter
	Timeouts           Counter
	InvokeIDsExhausted Counter

	ErrorsReceived  Counter
	RejectsReceived Counter
	AbortsReceived  Counter
	DecodeErrors    Counter

	SegmentsReassembled Counter
	SegmentAcksSent     Counter

	DevicesDiscovered Counter
	IAmsReceived      Counter

	COVNotifications Counter
	COVDropped       Counter

	PendingRequests     Gauge
	ActiveSubscriptions Gauge

	RequestLatency LatencyHistogram
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	RequestsSent        uint64
	ResponsesReceived   uint64
	Retransmissions     uint64
	Timeouts            uint64
	InvokeIDsExhausted  uint64
	ErrorsReceived      uint64
	RejectsReceived     uint64
	AbortsReceived      uint64
	DecodeErrors        uint64
	SegmentsReassembled uint64
	SegmentAcksSent     uint64
	DevicesDiscovered   uint64
	IAmsReceived        uint64
	COVNotifications    uint64
	COVDropped          uint64
	PendingRequests     int64
	ActiveSubscriptions int64
	MeanLatencyMs       float64
}

// Snapshot returns a copy of the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		RequestsSent:        m.RequestsSent.Value(),
		ResponsesReceived:   m.ResponsesReceived.Value(),
		Retransmissions:     m.Retransmissions.Value(),
		Timeouts:            m.Timeouts.Value(),
		InvokeIDsExhausted:  m.InvokeIDsExhausted.Value(),
		ErrorsReceived:      m.ErrorsReceived.Value(),
		RejectsReceived:     m.RejectsReceived.Value(),
		AbortsReceived:      m.AbortsReceived.Value(),
		DecodeErrors:        m.DecodeErrors.Value(),
		SegmentsReassembled: m.SegmentsReassembled.Value(),
		SegmentAcksSent:     m.SegmentAcksSent.Value(),
		DevicesDiscovered:   m.DevicesDiscovered.Value(),
		IAmsReceived:        m.IAmsReceived.Value(),
		COVNotifications:    m.COVNotifications.Value(),
		COVDropped:          m.COVDropped.Value(),
		PendingRequests:     m.PendingRequests.Value(),
		ActiveSubscriptions: m.ActiveSubscriptions.Value(),
		MeanLatencyMs:       m.RequestLatency.Mean(),
	}
}
