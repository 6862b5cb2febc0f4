package bacnet

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBACnetErrorString(t *testing.T) {
	err := &BACnetError{Class: ErrorClassProperty, Code: ErrorCodeUnknownProperty}
	assert.Equal(t, "bacnet: service error class=property code=unknown-property", err.Error())

	unknown := &BACnetError{Class: ErrorClass(99), Code: ErrorCode(999)}
	assert.Contains(t, unknown.Error(), "class(99)")
	assert.Contains(t, unknown.Error(), "code(999)")
}

func TestRejectErrorString(t *testing.T) {
	assert.Contains(t, (&RejectError{Reason: 9}).Error(), "unrecognized-service")
	assert.Contains(t, (&RejectError{Reason: 200}).Error(), "reason(200)")
}

func TestAbortErrorString(t *testing.T) {
	assert.Contains(t, (&AbortError{Reason: 4}).Error(), "segmentation-not-supported")
	assert.Contains(t, (&AbortError{Reason: 200}).Error(), "reason(200)")
}

func TestErrorPredicates(t *testing.T) {
	wrapped := fmt.Errorf("read property: %w", ErrTimeout)
	assert.True(t, IsTimeout(wrapped))
	assert.False(t, IsTimeout(ErrDeviceNotFound))

	assert.True(t, IsDeviceNotFound(fmt.Errorf("x: %w", ErrDeviceNotFound)))

	unknownProp := fmt.Errorf("read: %w",
		&BACnetError{Class: ErrorClassProperty, Code: ErrorCodeUnknownProperty})
	assert.True(t, IsUnknownProperty(unknownProp))
	assert.False(t, IsWriteAccessDenied(unknownProp))

	denied := fmt.Errorf("write: %w",
		&BACnetError{Class: ErrorClassProperty, Code: ErrorCodeWriteAccessDenied})
	assert.True(t, IsWriteAccessDenied(denied))
	assert.False(t, IsUnknownProperty(denied))
}

func TestMetricsSnapshot(t *testing.T) {
	m := &Metrics{}
	m.RequestsSent.Inc()
	m.RequestsSent.Inc()
	m.PendingRequests.Inc()
	m.RequestLatency.Observe(20 * time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.RequestsSent)
	assert.Equal(t, int64(1), snap.PendingRequests)
	assert.Equal(t, float64(20), snap.MeanLatencyMs)
	assert.Equal(t, uint64(1), m.RequestLatency.Count())
}
