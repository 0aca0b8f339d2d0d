package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishSubscribe(t *testing.T) {
	h := NewHub(4)
	ch, cancel := h.Subscribe()
	defer cancel()

	ev := h.Publish("dispatch.finished", map[string]string{"state": "completed"})
	assert.Equal(t, int64(1), ev.ID)

	select {
	case got := <-ch:
		assert.Equal(t, "dispatch.finished", got.Type)
		assert.JSONEq(t, `{"state":"completed"}`, string(got.Data))
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestHub_NilPayload(t *testing.T) {
	h := NewHub(1)
	ev := h.Publish("ping", nil)
	assert.Equal(t, "{}", string(ev.Data))
}

func TestHub_RingOverwritesOldest(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Publish("n", i)
	}

	snap := h.SnapshotSince(0)
	require.Len(t, snap, 3)
	assert.Equal(t, []int64{3, 4, 5}, ids(snap))
	assert.Equal(t, []int64{5}, ids(h.SnapshotSince(4)))
	assert.Empty(t, h.SnapshotSince(5))
}

func TestHub_DefaultCapacity(t *testing.T) {
	h := NewHub(0)
	for i := 0; i < DefaultHistory+10; i++ {
		h.Publish("n", i)
	}
	assert.Len(t, h.SnapshotSince(0), DefaultHistory)
}

func TestHub_CancelClosesSubscription(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe()
	assert.Equal(t, 1, h.Subscribers())

	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, h.Subscribers())
}

func TestHub_FollowReplaysThenStreams(t *testing.T) {
	h := NewHub(10)
	h.Publish("a", 1)
	h.Publish("b", 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Event, 10)
	done := make(chan error, 1)
	go func() {
		done <- h.Follow(ctx, 1, func(ev Event) error {
			got <- ev
			return nil
		})
	}()

	first := <-got
	assert.Equal(t, "b", first.Type, "replay starts after lastID")

	require.Eventually(t, func() bool { return h.Subscribers() == 1 }, time.Second, time.Millisecond)
	h.Publish("c", 3)
	assert.Equal(t, "c", (<-got).Type)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Zero(t, h.Subscribers())
}

func TestHub_FollowSkipsReplay(t *testing.T) {
	h := NewHub(10)
	h.Publish("old", nil)

	stop := errors.New("stop")
	done := make(chan error, 1)
	go func() {
		done <- h.Follow(context.Background(), -1, func(ev Event) error {
			if ev.Type == "old" {
				t.Error("replayed event with negative lastID")
			}
			return stop
		})
	}()

	require.Eventually(t, func() bool { return h.Subscribers() == 1 }, time.Second, time.Millisecond)
	h.Publish("new", nil)
	assert.ErrorIs(t, <-done, stop)
}

func ids(evs []Event) []int64 {
	out := make([]int64, len(evs))
	for i, ev := range evs {
		out[i] = ev.ID
	}
	return out
}
