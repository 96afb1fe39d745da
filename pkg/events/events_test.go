package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := NewBus()
	ch1, cancel1 := b.Subscribe()
	defer cancel1()
	ch2, cancel2 := b.Subscribe()
	defer cancel2()

	b.Publish(Event{Type: TypeRunStarted})

	assert.Equal(t, TypeRunStarted, (<-ch1).Type)
	assert.Equal(t, TypeRunStarted, (<-ch2).Type)
}

func TestPublishDropsOnFullSubscriberChannel(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(Event{Type: TypeBatchFlushed})
	}
	assert.LessOrEqual(t, len(ch), subscriberBuffer)
}

func TestCancelStopsDelivery(t *testing.T) {
	b := NewBus()
	_, cancel := b.Subscribe()
	cancel()
	b.Publish(Event{Type: TypeRunFinished}) // must not panic or block
}
