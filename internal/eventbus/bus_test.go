package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublish_DeliversToSubscribers(t *testing.T) {
	b := NewWithConfig(2, 10)
	defer b.Close(context.Background())

	var wg sync.WaitGroup
	wg.Add(2)
	got := make(chan Event, 2)
	for i := 0; i < 2; i++ {
		b.Subscribe(EventTypeWebhook, func(e Event) {
			defer wg.Done()
			got <- e
		})
	}

	ev := NewEvent(EventTypeWebhook, map[string]any{"action": "toggle"})
	require.True(t, b.Publish(ev))
	wg.Wait()

	for i := 0; i < 2; i++ {
		e := <-got
		require.Equal(t, ev.ID, e.ID)
		require.Equal(t, "toggle", e.String("action"))
	}
}

func TestPublish_NoSubscribersIsNoop(t *testing.T) {
	b := New()
	defer b.Close(context.Background())

	require.True(t, b.Publish(NewEvent(EventTypeSchedule, nil)))
	require.Zero(t, b.Dropped())
}

func TestPublish_DropsWhenQueueFull(t *testing.T) {
	b := NewWithConfig(1, 1)

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	b.Subscribe(EventTypeSchedule, func(Event) {
		once.Do(func() { close(started) })
		<-release
	})

	require.True(t, b.Publish(NewEvent(EventTypeSchedule, nil)))
	<-started // worker is now busy
	require.True(t, b.Publish(NewEvent(EventTypeSchedule, nil)))  // fills the queue
	require.False(t, b.Publish(NewEvent(EventTypeSchedule, nil))) // dropped
	require.Equal(t, int64(1), b.Dropped())

	close(release)
	b.Close(context.Background())
}

func TestWorker_RecoversFromPanic(t *testing.T) {
	b := NewWithConfig(1, 10)
	defer b.Close(context.Background())

	done := make(chan struct{})
	calls := 0
	b.Subscribe(EventTypeWebhook, func(Event) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		close(done)
	})

	b.Publish(NewEvent(EventTypeWebhook, nil))
	b.Publish(NewEvent(EventTypeWebhook, nil))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive the panic")
	}
}

func TestClose_RejectsLatePublishes(t *testing.T) {
	b := New()
	b.Subscribe(EventTypeWebhook, func(Event) {})

	b.Close(context.Background())
	b.Close(context.Background()) // idempotent

	require.False(t, b.Publish(NewEvent(EventTypeWebhook, nil)))
}

func TestClose_TimesOut(t *testing.T) {
	b := NewWithConfig(1, 1)
	block := make(chan struct{})
	defer close(block)
	b.Subscribe(EventTypeSchedule, func(Event) { <-block })
	b.Publish(NewEvent(EventTypeSchedule, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	b.Close(ctx)
	require.Less(t, time.Since(start), time.Second)
}
