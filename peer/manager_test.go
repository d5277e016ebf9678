package peer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/libcoin/libcoin-sub003/wire"
)

func TestManagerPrioritizeIdempotence(t *testing.T) {
	m := NewManager(50*time.Millisecond, zaptest.NewLogger(t))
	inv := wire.InvVect{Type: wire.InvTypeTx, Hash: wire.Hash{0x01}}

	first := m.Prioritize(inv)
	second := m.Prioritize(inv)

	assert.True(t, !second.Before(first.Add(50*time.Millisecond)),
		"second schedule %v should be >= first+retryDelay %v", second, first.Add(50*time.Millisecond))
}

func TestManagerQueuedAndDequeue(t *testing.T) {
	m := NewManager(time.Minute, zaptest.NewLogger(t))
	inv := wire.InvVect{Type: wire.InvTypeBlock, Hash: wire.Hash{0x02}}

	require.False(t, m.Queued(inv))
	m.Prioritize(inv)
	require.True(t, m.Queued(inv))
	m.Dequeue(inv)
	require.False(t, m.Queued(inv))
}

func TestManagerDueRetriesReschedulesAndReturnsOverdueItems(t *testing.T) {
	retryDelay := 10 * time.Millisecond
	m := NewManager(retryDelay, zaptest.NewLogger(t))
	inv := wire.InvVect{Type: wire.InvTypeBlock, Hash: wire.Hash{0x03}}

	m.Prioritize(inv)
	assert.Empty(t, m.DueRetries(time.Now()), "freshly scheduled item is not yet overdue")

	time.Sleep(2 * retryDelay)
	due := m.DueRetries(time.Now())
	require.Len(t, due, 1)
	assert.Equal(t, inv, due[0])

	// immediately re-checking should not return the same item again:
	// DueRetries must have rescheduled it forward.
	assert.Empty(t, m.DueRetries(time.Now()))
	assert.True(t, m.Queued(inv))
}

func TestManagerBestHeightWindow(t *testing.T) {
	m := NewManager(time.Minute, zaptest.NewLogger(t))
	m.RecordHeight(10)
	m.RecordHeight(42)
	m.RecordHeight(7)

	assert.Equal(t, int32(42), m.GetBestHeight())
}
