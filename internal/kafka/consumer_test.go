package kafka

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerForPinsKey(t *testing.T) {
	for _, key := range []string{"res-1", "res-2", "room-7", ""} {
		first := workerFor([]byte(key), 4)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, workerFor([]byte(key), 4))
		}
		assert.GreaterOrEqual(t, first, 0)
		assert.Less(t, first, 4)
	}
}

func msgAt(partition int, offset int64) kafka.Message {
	return kafka.Message{Partition: partition, Offset: offset}
}

func TestOffsetTrackerCommitsOnlyContiguous(t *testing.T) {
	tr := newOffsetTracker()
	tr.track(msgAt(0, 10))
	tr.track(msgAt(0, 11))
	tr.track(msgAt(0, 12))

	// finishing a later message first must not release anything
	_, ok := tr.complete(msgAt(0, 11))
	assert.False(t, ok)

	last, ok := tr.complete(msgAt(0, 10))
	require.True(t, ok)
	assert.Equal(t, int64(11), last.Offset)

	last, ok = tr.complete(msgAt(0, 12))
	require.True(t, ok)
	assert.Equal(t, int64(12), last.Offset)
}

func TestOffsetTrackerHoldsBehindUnfinished(t *testing.T) {
	tr := newOffsetTracker()
	tr.track(msgAt(0, 5))
	tr.track(msgAt(0, 6))
	tr.track(msgAt(0, 7))

	// offset 5 never finishes; 6 and 7 must stay uncommitted
	_, ok := tr.complete(msgAt(0, 6))
	assert.False(t, ok)
	_, ok = tr.complete(msgAt(0, 7))
	assert.False(t, ok)
}

func TestOffsetTrackerPartitionsIndependent(t *testing.T) {
	tr := newOffsetTracker()
	tr.track(msgAt(0, 1))
	tr.track(msgAt(1, 9))

	last, ok := tr.complete(msgAt(1, 9))
	require.True(t, ok)
	assert.Equal(t, 1, last.Partition)
	assert.Equal(t, int64(9), last.Offset)

	last, ok = tr.complete(msgAt(0, 1))
	require.True(t, ok)
	assert.Equal(t, 0, last.Partition)
}
