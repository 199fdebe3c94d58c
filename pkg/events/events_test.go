package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub1 := broker.Subscribe()
	sub2 := broker.Subscribe()
	defer broker.Unsubscribe(sub1)
	defer broker.Unsubscribe(sub2)

	broker.Publish(&Event{
		Type:     EventPodScheduled,
		Message:  "pod scheduled",
		Metadata: map[string]string{"pod_id": "p1"},
	})

	for _, sub := range []Subscriber{sub1, sub2} {
		select {
		case event := <-sub:
			assert.Equal(t, EventPodScheduled, event.Type)
			assert.False(t, event.Timestamp.IsZero(), "timestamp is stamped on publish")
			assert.Equal(t, "p1", event.Metadata["pod_id"])
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	broker.Unsubscribe(sub)

	_, open := <-sub
	assert.False(t, open)

	// Unsubscribing twice must not panic.
	broker.Unsubscribe(sub)
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	// Never read from this subscription.
	slow := broker.Subscribe()
	defer broker.Unsubscribe(slow)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			broker.Publish(&Event{Type: EventPodCreated, Message: "tick"})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publishing blocked on a slow subscriber")
	}
}

func TestPublishAfterStopDoesNotPanic(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	broker.Stop()

	require.NotPanics(t, func() {
		broker.Publish(&Event{Type: EventNodeRegistered})
	})
}
