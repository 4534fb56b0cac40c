package event_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"cyberquiz/internal/event"
)

type testEvent struct {
	name string
	id   int
}

func (e testEvent) Name() string { return e.name }

func TestBus_PublishReachesAllSubscribers(t *testing.T) {
	b := event.NewBus()

	var (
		mu   sync.Mutex
		seen []string
	)
	record := func(tag string) event.Handler {
		return func(_ context.Context, e event.Event) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, tag)
			return nil
		}
	}

	b.Subscribe("quiz.started", record("first"))
	b.Subscribe("quiz.started", record("second"))
	b.Subscribe("quiz.finished", record("other"))

	b.Publish(context.Background(), testEvent{name: "quiz.started"})
	b.Stop()

	assert.ElementsMatch(t, []string{"first", "second"}, seen)
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	b := event.NewBus()

	b.Publish(context.Background(), testEvent{name: "quiz.started"})
	b.Stop()
}

func TestBus_StopWaitsForHandlers(t *testing.T) {
	b := event.NewBus()

	const n = 50
	var handled sync.Map
	b.Subscribe("quiz.started", func(_ context.Context, e event.Event) error {
		handled.Store(e.(testEvent).id, true)
		return nil
	})

	for i := 0; i < n; i++ {
		b.Publish(context.Background(), testEvent{name: "quiz.started", id: i})
	}
	b.Stop()

	count := 0
	handled.Range(func(_, _ any) bool {
		count++
		return true
	})
	assert.Equal(t, n, count)
}

func TestBus_PanicDoesNotStopOtherHandlers(t *testing.T) {
	b := event.NewBus()

	var (
		mu   sync.Mutex
		seen int
	)
	b.Subscribe("quiz.started", func(context.Context, event.Event) error {
		panic("boom")
	})
	b.Subscribe("quiz.started", func(context.Context, event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen++
		return nil
	})

	b.Publish(context.Background(), testEvent{name: "quiz.started"})
	b.Stop()

	assert.Equal(t, 1, seen)
}
