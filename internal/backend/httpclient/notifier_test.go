package httpclient

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/tasklist/internal/model"
)

func TestNotifier_DeliversInEmissionOrder(t *testing.T) {
	want := []model.AuthEvent{model.EventSignedIn, model.EventTokenRefreshed, model.EventSignedOut}
	for i := 0; i < 500; i++ {
		var n notifier
		var mu sync.Mutex
		var got []model.AuthEvent
		sub := n.subscribe(func(ev model.AuthEvent, _ *model.Session) {
			mu.Lock()
			got = append(got, ev)
			mu.Unlock()
		})
		for _, ev := range want {
			n.emit(ev, nil)
		}
		sub.Unsubscribe()

		mu.Lock()
		require.Equal(t, want, got, "iteration %d", i)
		mu.Unlock()
	}
}

func TestNotifier_UnsubscribeDrainsQueue(t *testing.T) {
	var n notifier
	gate := make(chan struct{})
	var mu sync.Mutex
	var got []model.AuthEvent
	sub := n.subscribe(func(ev model.AuthEvent, _ *model.Session) {
		<-gate
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	n.emit(model.EventSignedIn, &model.Session{AccessToken: "at"})
	n.emit(model.EventSignedOut, nil)

	done := make(chan struct{})
	go func() {
		sub.Unsubscribe()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("Unsubscribe returned with deliveries pending")
	case <-time.After(20 * time.Millisecond):
	}

	close(gate)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Unsubscribe did not return")
	}

	// nothing reaches a detached subscription
	n.emit(model.EventSignedIn, nil)
	sub.Unsubscribe()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []model.AuthEvent{model.EventSignedIn, model.EventSignedOut}, got)
}

func TestNotifier_HandlersGetOwnSessionCopy(t *testing.T) {
	var n notifier
	got := make(chan *model.Session, 2)
	h := func(_ model.AuthEvent, s *model.Session) { got <- s }
	a, b := n.subscribe(h), n.subscribe(h)

	orig := &model.Session{AccessToken: "at"}
	n.emit(model.EventSignedIn, orig)
	a.Unsubscribe()
	b.Unsubscribe()

	s1, s2 := <-got, <-got
	assert.NotSame(t, orig, s1)
	assert.NotSame(t, s1, s2)
	assert.Equal(t, "at", s1.AccessToken)
}
