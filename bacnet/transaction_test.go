package bacnet

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInvokePoolExhaustion(t *testing.T) {
	pool := newInvokePool()

	seen := make(map[uint8]bool)
	for i := 0; i < 256; i++ {
		id, err := pool.Acquire()
		require.NoError(t, err)
		require.False(t, seen[id], "id %d handed out twice", id)
		seen[id] = true
	}
	require.Equal(t, 256, pool.InFlight())

	_, err := pool.Acquire()
	assert.ErrorIs(t, err, ErrNoFreeInvokeID)

	pool.Release(17)
	require.Equal(t, 255, pool.InFlight())

	id, err := pool.Acquire()
	require.NoError(t, err)
	assert.Equal(t, uint8(17), id)
}

func TestInvokePoolReleaseIsIdempotent(t *testing.T) {
	pool := newInvokePool()
	id, err := pool.Acquire()
	require.NoError(t, err)

	pool.Release(id)
	pool.Release(id)
	assert.Equal(t, 0, pool.InFlight())
}

// frameRecorder is a txManager send hook that captures outgoing frames and
// optionally answers them.
type frameRecorder struct {
	mu     sync.Mutex
	frames [][]byte
	reply  func(frame []byte, dest *net.UDPAddr)
}

func (r *frameRecorder) send(ctx context.Context, frame []byte, dest *net.UDPAddr) error {
	r.mu.Lock()
	r.frames = append(r.frames, append([]byte(nil), frame...))
	reply := r.reply
	r.mu.Unlock()
	if reply != nil {
		go reply(frame, dest)
	}
	return nil
}

func (r *frameRecorder) sent() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.frames))
	copy(out, r.frames)
	return out
}

var testDest = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 47808}

// invokeIDOf extracts the invoke id from a confirmed-request frame.
func invokeIDOf(t *testing.T, frame []byte) uint8 {
	t.Helper()
	_, npduOffset, err := DecodeBVLC(frame)
	require.NoError(t, err)
	_, apduOffset, err := DecodeNPDU(frame[npduOffset:])
	require.NoError(t, err)
	apdu, err := DecodeAPDU(frame[npduOffset+apduOffset:])
	require.NoError(t, err)
	return apdu.InvokeID
}

func TestRequestTimeoutRetransmits(t *testing.T) {
	rec := &frameRecorder{}
	timeout := 40 * time.Millisecond
	m := newTxManager(timeout, 2, &Metrics{}, testLogger(), rec.send)

	start := time.Now()
	_, err := m.Request(context.Background(), testDest, ServiceReadProperty, []byte{0x01})
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, 3*timeout)

	frames := rec.sent()
	require.Len(t, frames, 3)
	assert.True(t, bytes.Equal(frames[0], frames[1]), "retransmission must be byte-identical")
	assert.True(t, bytes.Equal(frames[1], frames[2]), "retransmission must be byte-identical")

	snap := m.metrics.Snapshot()
	assert.Equal(t, uint64(3), snap.RequestsSent)
	assert.Equal(t, uint64(2), snap.Retransmissions)
	assert.Equal(t, uint64(1), snap.Timeouts)
	assert.Equal(t, int64(0), snap.PendingRequests)
	assert.Equal(t, 0, m.pool.InFlight())
}

func TestRequestSimpleAck(t *testing.T) {
	rec := &frameRecorder{}
	var m *txManager
	rec.reply = func(frame []byte, dest *net.UDPAddr) {
		m.deliver(&APDU{
			Type:     PDUTypeSimpleAck,
			InvokeID: invokeIDOf(t, frame),
			Service:  uint8(ServiceWriteProperty),
		}, dest)
	}
	m = newTxManager(time.Second, 2, &Metrics{}, testLogger(), rec.send)

	result, err := m.Request(context.Background(), testDest, ServiceWriteProperty, nil)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, uint64(1), m.metrics.ResponsesReceived.Value())
	assert.Equal(t, 0, m.pool.InFlight())
}

func TestRequestComplexAck(t *testing.T) {
	payload := []byte{0x44, 0x42, 0x91, 0x00, 0x00}
	rec := &frameRecorder{}
	var m *txManager
	rec.reply = func(frame []byte, dest *net.UDPAddr) {
		m.deliver(&APDU{
			Type:     PDUTypeComplexAck,
			InvokeID: invokeIDOf(t, frame),
			Service:  uint8(ServiceReadProperty),
			Payload:  payload,
		}, dest)
	}
	m = newTxManager(time.Second, 2, &Metrics{}, testLogger(), rec.send)

	result, err := m.Request(context.Background(), testDest, ServiceReadProperty, []byte{0x01})
	require.NoError(t, err)
	assert.Equal(t, payload, result)
}

func TestRequestErrorResponse(t *testing.T) {
	errPayload := append(EncodeApplicationEnumerated(uint32(ErrorClassProperty)),
		EncodeApplicationEnumerated(uint32(ErrorCodeUnknownProperty))...)

	rec := &frameRecorder{}
	var m *txManager
	rec.reply = func(frame []byte, dest *net.UDPAddr) {
		m.deliver(&APDU{
			Type:     PDUTypeError,
			InvokeID: invokeIDOf(t, frame),
			Service:  uint8(ServiceReadProperty),
			Payload:  errPayload,
		}, dest)
	}
	m = newTxManager(time.Second, 2, &Metrics{}, testLogger(), rec.send)

	_, err := m.Request(context.Background(), testDest, ServiceReadProperty, nil)
	var bacErr *BACnetError
	require.ErrorAs(t, err, &bacErr)
	assert.Equal(t, ErrorClassProperty, bacErr.Class)
	assert.Equal(t, ErrorCodeUnknownProperty, bacErr.Code)
	assert.Equal(t, uint64(1), m.metrics.ErrorsReceived.Value())
}

func TestRequestRejectAndAbort(t *testing.T) {
	rec := &frameRecorder{}
	var m *txManager
	respType := PDUTypeReject
	rec.reply = func(frame []byte, dest *net.UDPAddr) {
		m.deliver(&APDU{Type: respType, InvokeID: invokeIDOf(t, frame), Reason: 9}, dest)
	}
	m = newTxManager(time.Second, 2, &Metrics{}, testLogger(), rec.send)

	_, err := m.Request(context.Background(), testDest, ServiceReadProperty, nil)
	var rejErr *RejectError
	require.ErrorAs(t, err, &rejErr)
	assert.Equal(t, uint8(9), rejErr.Reason)

	respType = PDUTypeAbort
	_, err = m.Request(context.Background(), testDest, ServiceReadProperty, nil)
	var abortErr *AbortError
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, uint8(9), abortErr.Reason)
}

func TestRequestExhaustedPool(t *testing.T) {
	rec := &frameRecorder{}
	m := newTxManager(time.Second, 0, &Metrics{}, testLogger(), rec.send)

	for i := 0; i < 256; i++ {
		_, err := m.pool.Acquire()
		require.NoError(t, err)
	}

	_, err := m.Request(context.Background(), testDest, ServiceReadProperty, nil)
	assert.ErrorIs(t, err, ErrNoFreeInvokeID)
	assert.Equal(t, uint64(1), m.metrics.InvokeIDsExhausted.Value())
	assert.Empty(t, rec.sent())
}

func TestRequestSegmentedReassembly(t *testing.T) {
	segments := [][]byte{{0xAA, 0xBB}, {0xCC}, {0xDD, 0xEE}}

	rec := &frameRecorder{}
	var m *txManager
	var once sync.Once
	rec.reply = func(frame []byte, dest *net.UDPAddr) {
		// Only the initial request triggers the response; the segment acks
		// that come back through send must not.
		once.Do(func() {
			id := invokeIDOf(t, frame)
			for i, seg := range segments {
				m.deliver(&APDU{
					Type:           PDUTypeComplexAck,
					InvokeID:       id,
					Service:        uint8(ServiceReadProperty),
					Payload:        seg,
					Segmented:      true,
					MoreFollows:    i < len(segments)-1,
					SequenceNumber: uint8(i),
					WindowSize:     4,
				}, dest)
			}
		})
	}
	m = newTxManager(time.Second, 2, &Metrics{}, testLogger(), rec.send)

	result, err := m.Request(context.Background(), testDest, ServiceReadProperty, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE}, result)

	snap := m.metrics.Snapshot()
	assert.Equal(t, uint64(3), snap.SegmentsReassembled)
	assert.Equal(t, uint64(3), snap.SegmentAcksSent)

	// One request plus one positive segment ack per segment.
	frames := rec.sent()
	require.Len(t, frames, 4)
	for i, seg := 1, 0; i < 4; i, seg = i+1, seg+1 {
		_, npduOffset, err := DecodeBVLC(frames[i])
		require.NoError(t, err)
		_, apduOffset, err := DecodeNPDU(frames[i][npduOffset:])
		require.NoError(t, err)
		ack, err := DecodeAPDU(frames[i][npduOffset+apduOffset:])
		require.NoError(t, err)
		assert.Equal(t, PDUTypeSegmentAck, ack.Type)
		assert.False(t, ack.NegativeAck)
		assert.Equal(t, uint8(seg), ack.SequenceNumber)
	}
}

func TestRequestOutOfOrderSegmentNak(t *testing.T) {
	rec := &frameRecorder{}
	var m *txManager
	var once sync.Once
	rec.reply = func(frame []byte, dest *net.UDPAddr) {
		once.Do(func() {
			id := invokeIDOf(t, frame)
			seg := func(n uint8, more bool, body ...byte) *APDU {
				return &APDU{
					Type: PDUTypeComplexAck, InvokeID: id,
					Service: uint8(ServiceReadProperty), Payload: body,
					Segmented: true, MoreFollows: more, SequenceNumber: n, WindowSize: 4,
				}
			}
			m.deliver(seg(0, true, 0x01), dest)
			m.deliver(seg(2, true, 0x03), dest) // skipped ahead, must be NAKed
			m.deliver(seg(1, false, 0x02), dest)
		})
	}
	m = newTxManager(time.Second, 2, &Metrics{}, testLogger(), rec.send)

	result, err := m.Request(context.Background(), testDest, ServiceReadProperty, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, result)

	// Frames: request, ack(0), nak(expected=1), ack(1).
	frames := rec.sent()
	require.Len(t, frames, 4)

	decodeAck := func(frame []byte) *APDU {
		_, npduOffset, err := DecodeBVLC(frame)
		require.NoError(t, err)
		_, apduOffset, err := DecodeNPDU(frame[npduOffset:])
		require.NoError(t, err)
		ack, err := DecodeAPDU(frame[npduOffset+apduOffset:])
		require.NoError(t, err)
		return ack
	}

	nak := decodeAck(frames[2])
	assert.True(t, nak.NegativeAck)
	assert.Equal(t, uint8(1), nak.SequenceNumber)

	final := decodeAck(frames[3])
	assert.False(t, final.NegativeAck)
	assert.Equal(t, uint8(1), final.SequenceNumber)
}

func TestRequestContextCancelHoldsInvokeID(t *testing.T) {
	rec := &frameRecorder{}
	m := newTxManager(50*time.Millisecond, 1, &Metrics{}, testLogger(), rec.send)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := m.Request(ctx, testDest, ServiceReadProperty, nil)
	assert.ErrorIs(t, err, context.Canceled)

	// The id stays reserved while the abandoned transaction drains, so a
	// late response cannot be matched to a reused id.
	assert.Equal(t, 1, m.pool.InFlight())

	assert.Eventually(t, func() bool {
		return m.pool.InFlight() == 0
	}, time.Second, 10*time.Millisecond, "drain must release the invoke id")
}

func TestRequestAbandonedDrainResends(t *testing.T) {
	rec := &frameRecorder{}
	m := newTxManager(40*time.Millisecond, 1, &Metrics{}, testLogger(), rec.send)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := m.Request(ctx, testDest, ServiceReadProperty, []byte{0x0C})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, m.pool.InFlight())

	// The abandoned transaction spends its remaining retry in the
	// background before the id is released.
	assert.Eventually(t, func() bool {
		return m.pool.InFlight() == 0
	}, time.Second, 10*time.Millisecond)

	frames := rec.sent()
	require.Len(t, frames, 2)
	assert.True(t, bytes.Equal(frames[0], frames[1]), "drain retransmission must be byte-identical")
}

func TestDeliverRequiresMatchingSource(t *testing.T) {
	rec := &frameRecorder{}
	m := newTxManager(time.Second, 0, &Metrics{}, testLogger(), rec.send)

	key := txKey{invokeID: 5, addr: testDest.String()}
	tx := m.register(key)
	defer m.unregister(key)

	other := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 99), Port: 47808}
	assert.False(t, m.deliver(&APDU{Type: PDUTypeSimpleAck, InvokeID: 5}, other))
	assert.True(t, m.deliver(&APDU{Type: PDUTypeSimpleAck, InvokeID: 5}, testDest))

	apdu := <-tx.respCh
	assert.Equal(t, PDUTypeSimpleAck, apdu.Type)
}
