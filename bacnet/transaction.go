// Copyright 2025 Gridpoint SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bacnet

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// invokePool manages the 256 confirmed-request invoke ids. An id is held
// from allocation until its transaction reaches a terminal state.
type invokePool struct {
	mu    sync.Mutex
	inUse [256]bool
	next  uint8
	free  int
}

func newInvokePool() *invokePool {
	return &invokePool{free: 256}
}

// Acquire returns a free invoke id, scanning forward from the last
// allocation point. Returns ErrNoFreeInvokeID when all 256 are in flight.
func (p *invokePool) Acquire() (uint8, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.free == 0 {
		return 0, ErrNoFreeInvokeID
	}
	for i := 0; i < 256; i++ {
		id := p.next + uint8(i)
		if !p.inUse[id] {
			p.inUse[id] = true
			p.free--
			p.next = id + 1
			return id, nil
		}
	}
	return 0, ErrNoFreeInvokeID
}

// Release returns an invoke id to the pool.
func (p *invokePool) Release(id uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inUse[id] {
		p.inUse[id] = false
		p.free++
	}
}

// InFlight returns the number of ids currently held.
func (p *invokePool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return 256 - p.free
}

// txKey identifies a live transaction: one per (invoke id, destination).
type txKey struct {
	invokeID uint8
	addr     string
}

// transaction receives every APDU matched to its key, segments included.
type transaction struct {
	respCh chan *APDU
}

// txManager owns invoke-id allocation, the pending-transaction table, the
// retry loop, and segmented response reassembly.
type txManager struct {
	pool    *invokePool
	timeout time.Duration
	retries int
	metrics *Metrics
	logger  *slog.Logger

	// send transmits a ready frame to a destination.
	send func(ctx context.Context, frame []byte, dest *net.UDPAddr) error

	mu      sync.Mutex
	pending map[txKey]*transaction
}

func newTxManager(timeout time.Duration, retries int, metrics *Metrics, logger *slog.Logger,
	send func(ctx context.Context, frame []byte, dest *net.UDPAddr) error) *txManager {
	return &txManager{
		pool:    newInvokePool(),
		timeout: timeout,
		retries: retries,
		metrics: metrics,
		logger:  logger,
		send:    send,
		pending: make(map[txKey]*transaction),
	}
}

func (m *txManager) register(key txKey) *transaction {
	tx := &transaction{respCh: make(chan *APDU, 8)}
	m.mu.Lock()
	m.pending[key] = tx
	m.mu.Unlock()
	m.metrics.PendingRequests.Inc()
	return tx
}

func (m *txManager) unregister(key txKey) {
	m.mu.Lock()
	delete(m.pending, key)
	m.mu.Unlock()
	m.metrics.PendingRequests.Dec()
	m.pool.Release(key.invokeID)
}

// deliver routes a response APDU to its transaction. Returns false when no
// transaction matches the (invoke id, source) pair.
func (m *txManager) deliver(apdu *APDU, from *net.UDPAddr) bool {
	key := txKey{invokeID: apdu.InvokeID, addr: from.String()}
	m.mu.Lock()
	tx, ok := m.pending[key]
	m.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case tx.respCh <- apdu:
	default:
		m.logger.Debug("transaction channel full, dropping APDU",
			"invoke_id", apdu.InvokeID, "from", from.String())
	}
	return true
}

// Request performs one confirmed service request with retries and segmented
// response reassembly. The returned bytes are the service ack payload (nil
// for a Simple-Ack).
func (m *txManager) Request(ctx context.Context, dest *net.UDPAddr, service ConfirmedServiceChoice, payload []byte) ([]byte, error) {
	invokeID, err := m.pool.Acquire()
	if err != nil {
		m.metrics.InvokeIDsExhausted.Inc()
		return nil, err
	}

	key := txKey{invokeID: invokeID, addr: dest.String()}
	tx := m.register(key)

	apdu := EncodeConfirmedRequest(invokeID, service, payload)
	frame := packFrame(apdu, true)

	start := time.Now()
	result, attempts, err := m.runAttempts(ctx, key, tx, frame, dest)
	if err == nil {
		m.metrics.RequestLatency.Observe(time.Since(start))
	}

	// On abandonment the invoke id stays reserved until the transaction
	// drains in the background; every other outcome releases it here.
	if ctx.Err() != nil && err == ctx.Err() {
		go m.drain(key, tx, frame, dest, m.retries+1-attempts)
		return nil, err
	}
	m.unregister(key)
	return result, err
}

// runAttempts sends the frame up to retries+1 times, waiting one timeout per
// attempt, and resolves the transaction's terminal state. The second return
// value is the number of attempts started.
func (m *txManager) runAttempts(ctx context.Context, key txKey, tx *transaction, frame []byte, dest *net.UDPAddr) ([]byte, int, error) {
	var seg segmentAssembly

	attempts := m.retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			m.metrics.Retransmissions.Inc()
			m.logger.Debug("retransmitting request",
				"invoke_id", key.invokeID, "attempt", attempt+1, "dest", key.addr)
		}
		if err := m.send(ctx, frame, dest); err != nil {
			return nil, attempt + 1, fmt.Errorf("send request: %w", err)
		}
		m.metrics.RequestsSent.Inc()

		result, done, err := m.waitAttempt(ctx, key, tx, dest, &seg)
		if done {
			return result, attempt + 1, err
		}

		// A partially received segmented response suppresses further
		// retransmission: keep granting timeouts while segments progress.
		if seg.started {
			for {
				before := seg.expected
				result, done, err = m.waitAttempt(ctx, key, tx, dest, &seg)
				if done {
					return result, attempt + 1, err
				}
				if seg.expected == before {
					m.metrics.Timeouts.Inc()
					return nil, attempt + 1, ErrTimeout
				}
			}
		}
	}

	m.metrics.Timeouts.Inc()
	return nil, attempts, ErrTimeout
}

// waitAttempt waits one timeout for a terminal APDU. done=false means the
// attempt timed out and the caller may retransmit.
func (m *txManager) waitAttempt(ctx context.Context, key txKey, tx *transaction, dest *net.UDPAddr, seg *segmentAssembly) ([]byte, bool, error) {
	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, true, ctx.Err()

		case <-timer.C:
			return nil, false, nil

		case apdu := <-tx.respCh:
			result, terminal, err := m.resolve(key, apdu, dest, seg)
			if terminal {
				return result, true, err
			}
		}
	}
}

// resolve maps one received APDU to a terminal result or, for segments, an
// intermediate state.
func (m *txManager) resolve(key txKey, apdu *APDU, dest *net.UDPAddr, seg *segmentAssembly) ([]byte, bool, error) {
	switch apdu.Type {
	case PDUTypeSimpleAck:
		m.metrics.ResponsesReceived.Inc()
		return nil, true, nil

	case PDUTypeComplexAck:
		if !apdu.Segmented {
			m.metrics.ResponsesReceived.Inc()
			return apdu.Payload, true, nil
		}
		return m.resolveSegment(key, apdu, dest, seg)

	case PDUTypeError:
		m.metrics.ErrorsReceived.Inc()
		class, code, err := decodeErrorPayload(apdu.Payload)
		if err != nil {
			return nil, true, fmt.Errorf("decode error PDU: %w", err)
		}
		return nil, true, &BACnetError{Class: class, Code: code}

	case PDUTypeReject:
		m.metrics.RejectsReceived.Inc()
		return nil, true, &RejectError{Reason: apdu.Reason}

	case PDUTypeAbort:
		m.metrics.AbortsReceived.Inc()
		return nil, true, &AbortError{Reason: apdu.Reason}

	default:
		m.logger.Debug("unexpected PDU type for transaction",
			"invoke_id", key.invokeID, "type", fmt.Sprintf("0x%02x", uint8(apdu.Type)))
		return nil, false, nil
	}
}

// segmentAssembly accumulates a segmented Complex-Ack.
type segmentAssembly struct {
	started  bool
	expected uint8
	service  uint8
	data     []byte
}

// resolveSegment handles one segment: in-order segments are appended and
// acknowledged, the final one completes the transaction, and out-of-order
// segments trigger a negative Segment-Ack naming the expected sequence.
func (m *txManager) resolveSegment(key txKey, apdu *APDU, dest *net.UDPAddr, seg *segmentAssembly) ([]byte, bool, error) {
	if apdu.SequenceNumber != seg.expected {
		m.logger.Debug("out-of-order segment",
			"invoke_id", key.invokeID, "seq", apdu.SequenceNumber, "expected", seg.expected)
		m.sendSegmentAck(key, dest, seg.expected, apdu.WindowSize, true)
		return nil, false, nil
	}

	if !seg.started {
		seg.started = true
		seg.service = apdu.Service
	}
	seg.data = append(seg.data, apdu.Payload...)
	seg.expected++
	m.metrics.SegmentsReassembled.Inc()

	m.sendSegmentAck(key, dest, apdu.SequenceNumber, apdu.WindowSize, false)

	if apdu.MoreFollows {
		return nil, false, nil
	}

	m.metrics.ResponsesReceived.Inc()
	return seg.data, true, nil
}

func (m *txManager) sendSegmentAck(key txKey, dest *net.UDPAddr, seq, window uint8, negative bool) {
	ack := EncodeSegmentAck(key.invokeID, seq, window, negative)
	frame := packFrame(ack, false)
	if err := m.send(context.Background(), frame, dest); err != nil {
		m.logger.Debug("send segment ack failed", "invoke_id", key.invokeID, "err", err)
		return
	}
	m.metrics.SegmentAcksSent.Inc()
}

// drain runs an abandoned transaction to its timeout state in the
// background, resending while retries remain, so a late response cannot
// collide with a reused invoke id.
func (m *txManager) drain(key txKey, tx *transaction, frame []byte, dest *net.UDPAddr, remaining int) {
	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	for {
		select {
		case apdu := <-tx.respCh:
			switch apdu.Type {
			case PDUTypeSimpleAck, PDUTypeComplexAck, PDUTypeError, PDUTypeReject, PDUTypeAbort:
				if apdu.Type == PDUTypeComplexAck && apdu.Segmented && apdu.MoreFollows {
					continue
				}
				m.unregister(key)
				return
			}

		case <-timer.C:
			if remaining <= 0 {
				m.unregister(key)
				return
			}
			remaining--
			m.metrics.Retransmissions.Inc()
			if err := m.send(context.Background(), frame, dest); err != nil {
				m.logger.Debug("drain retransmit failed",
					"invoke_id", key.invokeID, "dest", key.addr, "err", err)
				m.unregister(key)
				return
			}
			m.metrics.RequestsSent.Inc()
			timer.Reset(m.timeout)
		}
	}
}
