package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayforge/taskmesh/internal/engine"
)

func TestChannelBus_PublishDeliversToSubscriber(t *testing.T) {
	b := NewChannelBus()
	received := make(chan engine.Event, 1)

	_, err := b.Subscribe("topic-a", func(e engine.Event) { received <- e })
	require.NoError(t, err)

	require.NoError(t, b.Publish("topic-a", engine.Event{Kind: engine.EventJobChanged, JobID: "j-1"}))

	select {
	case e := <-received:
		assert.Equal(t, "j-1", e.JobID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestChannelBus_PublishIgnoresOtherTopics(t *testing.T) {
	b := NewChannelBus()
	received := make(chan engine.Event, 1)

	_, err := b.Subscribe("topic-a", func(e engine.Event) { received <- e })
	require.NoError(t, err)

	require.NoError(t, b.Publish("topic-b", engine.Event{JobID: "j-1"}))

	select {
	case <-received:
		t.Fatal("subscriber to topic-a must not receive a topic-b event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChannelBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewChannelBus()
	var mu sync.Mutex
	count := 0

	sub, err := b.Subscribe("topic-a", func(e engine.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish("topic-a", engine.Event{}))
	time.Sleep(50 * time.Millisecond)

	sub.Unsubscribe()
	require.NoError(t, b.Publish("topic-a", engine.Event{}))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestNamespaceTopic(t *testing.T) {
	assert.Equal(t, "namespace:ns-1", NamespaceTopic("ns-1"))
}
