package eventbus

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/autopeca/marketplace/pkg/logging"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type claimedEvent struct {
	solicitationID string
}

type reopenedEvent struct{}

func TestPublisher_PublishNoSubscribersLogs(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetLevel(logrus.WarnLevel)

	publisher := NewEventPublisher(log)
	publisher.Subscribe(func(e *claimedEvent) {
		t.Error("should not be called")
	})
	publisher.Publish(&reopenedEvent{})

	require.Contains(t, buf.String(), "eventbus.Publish: no matching subscribers")
}

func TestPublisher_Subscribe(t *testing.T) {
	publisher := NewEventPublisher(logging.ConsoleLogger(logrus.WarnLevel))
	var got string
	publisher.Subscribe(func(e *claimedEvent) {
		got = e.solicitationID
	})
	publisher.Publish(&claimedEvent{solicitationID: "s-1"})
	require.Equal(t, "s-1", got)
}

func TestPublisher_PanicIsRecovered(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)

	publisher := NewEventPublisher(log)
	called := false
	publisher.Subscribe(func(*claimedEvent) { panic("boom") })
	publisher.Subscribe(func(*claimedEvent) { called = true })

	require.NotPanics(t, func() { publisher.Publish(&claimedEvent{}) })
	require.True(t, called)
	require.Contains(t, buf.String(), "panicked")
}

func TestMatchSignature(t *testing.T) {
	require.True(t, MatchSignature(func(e *claimedEvent) {}, []interface{}{&claimedEvent{}}))
	require.False(t, MatchSignature(func(e *claimedEvent) {}, []interface{}{&reopenedEvent{}}))
	require.False(t, MatchSignature(func(e *claimedEvent) {}, []interface{}{}))
	require.False(t, MatchSignature(func(e *claimedEvent) {}, []interface{}{&claimedEvent{}, &claimedEvent{}}))
	require.True(t, MatchSignature(func(ctx context.Context) {}, []interface{}{context.Background()}))
	require.True(t, MatchSignature(func(e *claimedEvent) {}, []interface{}{nil}))
	require.False(t, MatchSignature(func(n int) {}, []interface{}{nil}))
	require.False(t, MatchSignature("not a func", []interface{}{}))
}

func TestPublishE(t *testing.T) {
	publisher := NewEventPublisher(logging.ConsoleLogger(logrus.ErrorLevel))

	require.ErrorIs(t, publisher.PublishE(&claimedEvent{}), ErrNoSubscribers)

	sentinel := errors.New("handler failed")
	publisher.Subscribe(func(*claimedEvent) error { return sentinel })
	publisher.Subscribe(func(*claimedEvent) error { return nil })
	publisher.Subscribe(func(*claimedEvent) {})

	err := publisher.PublishE(&claimedEvent{})
	require.ErrorIs(t, err, sentinel)

	publisher.Clear()
	publisher.Subscribe(func(*claimedEvent) (int, error) { return 0, nil })
	require.ErrorIs(t, publisher.PublishE(&claimedEvent{}), ErrInvalidHandlerReturn)

	publisher.Clear()
	publisher.Subscribe(func(*claimedEvent) int { return 1 })
	require.ErrorIs(t, publisher.PublishE(&claimedEvent{}), ErrInvalidHandlerReturn)

	publisher.Clear()
	publisher.Subscribe(func(*claimedEvent) error { panic("kaboom") })
	require.ErrorContains(t, publisher.PublishE(&claimedEvent{}), "kaboom")
}

func TestUnsubscribe(t *testing.T) {
	publisher := NewEventPublisher(logging.ConsoleLogger(logrus.ErrorLevel))
	handlerA := func(*claimedEvent) {}
	handlerB := func(*reopenedEvent) {}
	publisher.Subscribe(handlerA)
	publisher.Subscribe(handlerB)
	require.Equal(t, 2, publisher.SubscribersCount())

	publisher.Unsubscribe(handlerA)
	require.Equal(t, 1, publisher.SubscribersCount())

	publisher.Unsubscribe("not a func")
	require.Equal(t, 1, publisher.SubscribersCount())

	publisher.Clear()
	require.Zero(t, publisher.SubscribersCount())
}

func TestSubscribe_RejectsNonFunc(t *testing.T) {
	publisher := NewEventPublisher(nil)
	require.Panics(t, func() { publisher.Subscribe(42) })
}

func TestPublisher_ConcurrentPublishAndSubscribe(t *testing.T) {
	publisher := NewEventPublisher(nil)
	var calls atomic.Int64
	publisher.Subscribe(func(*claimedEvent) { calls.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			publisher.Publish(&claimedEvent{})
		}()
		go func() {
			defer wg.Done()
			publisher.Subscribe(func(*reopenedEvent) {})
		}()
	}
	wg.Wait()

	require.Equal(t, int64(16), calls.Load())
	require.Equal(t, 17, publisher.SubscribersCount())
}
