package bus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBus_PublishOrderPreserved(t *testing.T) {
	b := New(zap.NewNop())
	topic := Topic("openai")

	var mu sync.Mutex
	var got []int

	done := make(chan struct{})
	const n = 200
	b.Subscribe(topic, func(e Event) {
		mu.Lock()
		got = append(got, e.(int))
		if len(got) == n {
			close(done)
		}
		mu.Unlock()
	})

	for i := 0; i < n; i++ {
		b.Publish(topic, i)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, n)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestBus_SlowSubscriberDoesNotStallOthers(t *testing.T) {
	b := New(zap.NewNop())
	topic := Topic("anthropic")

	var fastCount int64
	b.Subscribe(topic, func(e Event) {
		time.Sleep(50 * time.Millisecond)
	})
	b.Subscribe(topic, func(e Event) {
		atomic.AddInt64(&fastCount, 1)
	})

	for i := 0; i < 10; i++ {
		b.Publish(topic, i)
	}

	// The fast subscriber should finish well before the slow one would
	// (10 * 50ms = 500ms) if delivery were serialized across subscribers.
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if atomic.LoadInt64(&fastCount) == 10 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	assert.EqualValues(t, 10, atomic.LoadInt64(&fastCount))
}

func TestBus_ConcurrentSubscribeUnsubscribePublish(t *testing.T) {
	b := New(zap.NewNop())
	topic := Topic("deepseek")

	const goroutines = 20
	const ops = 20

	var wg sync.WaitGroup
	wg.Add(goroutines * 2)

	ids := make(chan string, goroutines*ops)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < ops; i++ {
				ids <- b.Subscribe(topic, func(Event) {})
			}
		}()
	}
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < ops; i++ {
				select {
				case id := <-ids:
					b.Unsubscribe(topic, id)
				default:
				}
			}
		}()
	}

	wg.Wait()
	b.Publish(topic, "tail")
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := New(zap.NewNop())
	topic := Topic("local")

	var count int64
	id := b.Subscribe(topic, func(Event) {
		atomic.AddInt64(&count, 1)
	})
	b.Publish(topic, 1)
	time.Sleep(20 * time.Millisecond)
	b.Unsubscribe(topic, id)
	b.Publish(topic, 2)
	time.Sleep(20 * time.Millisecond)

	assert.EqualValues(t, 1, atomic.LoadInt64(&count))
}
