package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/redis/go-redis/v9/internal/pool.(*ConnPool).reaper"),
	)
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestNotifier_NilClientIsNoop(t *testing.T) {
	n := NewNotifier(nil)
	assert.NoError(t, n.Publish(context.Background(), Event{Type: EventCreated, Code: "ABCD"}))
	assert.NoError(t, n.StartEventSubscriber(context.Background(), func(Event) {}))

	var nilNotifier *Notifier
	assert.NoError(t, nilNotifier.Publish(context.Background(), Event{}))
}

func TestNotifier_PublishAndSubscribe(t *testing.T) {
	rdb := newTestRedis(t)
	n := NewNotifier(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 4)
	require.NoError(t, n.StartEventSubscriber(ctx, func(ev Event) { events <- ev }))

	at := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, n.Publish(ctx, Event{Type: EventCreated, Code: "ABCD", Kind: "single", ExpiresAt: at.Add(24 * time.Hour), At: at}))
	require.NoError(t, n.Publish(ctx, Event{Type: EventDeactivated, Code: "ABCD", At: at}))

	for _, want := range []EventType{EventCreated, EventDeactivated} {
		select {
		case ev := <-events:
			assert.Equal(t, want, ev.Type)
			assert.Equal(t, "ABCD", ev.Code)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s event", want)
		}
	}
}

func TestNotifier_SubscriberSkipsMalformedAndSurvivesPanics(t *testing.T) {
	rdb := newTestRedis(t)
	n := NewNotifier(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 4)
	require.NoError(t, n.StartEventSubscriber(ctx, func(ev Event) {
		if ev.Code == "BOOM" {
			panic("handler failure")
		}
		events <- ev
	}))

	require.NoError(t, rdb.Publish(ctx, EventsChannel, "{not json").Err())
	require.NoError(t, n.Publish(ctx, Event{Type: EventCreated, Code: "BOOM"}))
	require.NoError(t, n.Publish(ctx, Event{Type: EventCreated, Code: "OK01"}))

	select {
	case ev := <-events:
		assert.Equal(t, "OK01", ev.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber stopped after a malformed payload or panic")
	}
}

func TestNotifier_SubscriberStopsOnCancel(t *testing.T) {
	rdb := newTestRedis(t)
	n := NewNotifier(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan struct{}, 1)
	require.NoError(t, n.StartEventSubscriber(ctx, func(Event) { received <- struct{}{} }))
	cancel()

	// Give the goroutine a moment to observe cancellation; goleak checks it exited.
	time.Sleep(50 * time.Millisecond)
	_ = n.Publish(context.Background(), Event{Type: EventCreated, Code: "LATE"})

	select {
	case <-received:
		t.Fatal("received event after cancel")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEvent_JSONShape(t *testing.T) {
	b, err := json.Marshal(Event{Type: EventReused, Code: "WXYZ", At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"type":"reused"`)
	assert.Contains(t, string(b), `"code":"WXYZ"`)
}
