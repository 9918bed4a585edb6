package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type testEvent struct{ name string }

func (e testEvent) Name() string { return e.name }

func TestPublishCallsAllSubscribers(t *testing.T) {
	bus := New(zap.NewNop())

	var mu sync.Mutex
	var got []string
	done := make(chan struct{}, 2)

	for _, label := range []string{"first", "second"} {
		label := label
		bus.Subscribe("order.created", func(_ context.Context, event Event) error {
			mu.Lock()
			got = append(got, label)
			mu.Unlock()
			done <- struct{}{}
			return nil
		})
	}

	bus.Publish(context.Background(), testEvent{name: "order.created"})

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("слушатель не был вызван")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"first", "second"}, got)
}

func TestPublishIgnoresUnsubscribedEvents(t *testing.T) {
	bus := New(zap.NewNop())

	called := make(chan struct{}, 1)
	bus.Subscribe("order.created", func(_ context.Context, _ Event) error {
		called <- struct{}{}
		return nil
	})

	bus.Publish(context.Background(), testEvent{name: "order.cancelled"})

	select {
	case <-called:
		t.Fatal("слушатель вызван для чужого события")
	case <-time.After(100 * time.Millisecond):
	}
}

// Ошибка одного слушателя не мешает остальным.
func TestListenerErrorDoesNotBlockOthers(t *testing.T) {
	bus := New(zap.NewNop())

	bus.Subscribe("order.created", func(_ context.Context, _ Event) error {
		return errors.New("boom")
	})

	ok := make(chan struct{}, 1)
	bus.Subscribe("order.created", func(_ context.Context, _ Event) error {
		ok <- struct{}{}
		return nil
	})

	bus.Publish(context.Background(), testEvent{name: "order.created"})

	select {
	case <-ok:
	case <-time.After(2 * time.Second):
		t.Fatal("второй слушатель не был вызван")
	}
}
