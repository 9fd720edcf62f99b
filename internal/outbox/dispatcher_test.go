package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePublisher records publish order and fails the ids it is told to.
type fakePublisher struct {
	failIDs   map[string]bool // keyed by event type for the test's convenience
	published []string
}

func (f *fakePublisher) Publish(_ context.Context, key, _ []byte, eventType string) error {
	if f.failIDs[eventType] {
		return errors.New("broker unavailable")
	}
	f.published = append(f.published, string(key)+"/"+eventType)
	return nil
}

type markLog struct {
	published []int64
	failed    []int64
}

func (m *markLog) onPublished(p pendingEvent) error {
	m.published = append(m.published, p.ID)
	return nil
}

func (m *markLog) onFailed(p pendingEvent, _ error) error {
	m.failed = append(m.failed, p.ID)
	return nil
}

func TestDeliverHoldsAggregateAfterFailure(t *testing.T) {
	pub := &fakePublisher{failIDs: map[string]bool{"ReservationCreated": true}}
	marks := &markLog{}
	batch := []pendingEvent{
		{ID: 1, Aggregate: "res-1", EventType: "ReservationCreated"},
		{ID: 2, Aggregate: "res-1", EventType: "ReservationCancelled"},
		{ID: 3, Aggregate: "res-2", EventType: "ReservationCheckedIn"},
	}

	n, err := deliver(context.Background(), pub, batch, nil, marks.onPublished, marks.onFailed)
	require.NoError(t, err)

	// res-1's Cancelled must not go out ahead of its failed Created
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"res-2/ReservationCheckedIn"}, pub.published)
	assert.Equal(t, []int64{3}, marks.published)
	// only the attempted row counts an attempt; the held-back row is untouched
	assert.Equal(t, []int64{1}, marks.failed)
}

func TestDeliverKeepsIDOrderPerAggregate(t *testing.T) {
	pub := &fakePublisher{}
	marks := &markLog{}
	batch := []pendingEvent{
		{ID: 1, Aggregate: "res-1", EventType: "ReservationCreated"},
		{ID: 2, Aggregate: "res-2", EventType: "ReservationCreated"},
		{ID: 3, Aggregate: "res-1", EventType: "ReservationCheckedIn"},
	}

	n, err := deliver(context.Background(), pub, batch, nil, marks.onPublished, marks.onFailed)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{
		"res-1/ReservationCreated",
		"res-2/ReservationCreated",
		"res-1/ReservationCheckedIn",
	}, pub.published)
	assert.Empty(t, marks.failed)
}

func TestDeliverSkipsHeldAggregates(t *testing.T) {
	pub := &fakePublisher{}
	marks := &markLog{}
	batch := []pendingEvent{
		{ID: 5, Aggregate: "res-1", EventType: "ReservationCheckedIn"},
		{ID: 6, Aggregate: "res-2", EventType: "ReservationCreated"},
	}

	// res-1 has an earlier pending row claimed elsewhere
	n, err := deliver(context.Background(), pub, batch, map[string]bool{"res-1": true},
		marks.onPublished, marks.onFailed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"res-2/ReservationCreated"}, pub.published)
	// held rows are neither published nor counted as attempts
	assert.Empty(t, marks.failed)
}

func TestDeliverStopsOnMarkError(t *testing.T) {
	pub := &fakePublisher{}
	batch := []pendingEvent{
		{ID: 1, Aggregate: "res-1", EventType: "ReservationCreated"},
		{ID: 2, Aggregate: "res-2", EventType: "ReservationCreated"},
	}

	boom := errors.New("tx closed")
	n, err := deliver(context.Background(), pub, batch, nil,
		func(pendingEvent) error { return boom },
		func(pendingEvent, error) error { return nil })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, n)
}
