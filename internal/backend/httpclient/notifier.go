package httpclient

import (
	"sync"

	"github.com/and161185/tasklist/internal/backend"
	"github.com/and161185/tasklist/internal/model"
)

// notifier fans auth events out to subscribers. Each subscription receives
// events in emission order from its own dispatch goroutine.
type notifier struct {
	mu   sync.Mutex
	next int
	subs map[int]*subscription
}

type delivery struct {
	ev   model.AuthEvent
	sess *model.Session
}

type subscription struct {
	once sync.Once
	n    *notifier
	id   int
	h    backend.AuthStateHandler

	mu       sync.Mutex
	idle     *sync.Cond
	queue    []delivery
	running  bool
	detached bool
}

// Unsubscribe stops new deliveries and waits until the queued ones have been
// handled. It must not be called from inside the handler.
func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.n.mu.Lock()
		delete(s.n.subs, s.id)
		s.n.mu.Unlock()

		s.mu.Lock()
		s.detached = true
		for s.running || len(s.queue) > 0 {
			s.idle.Wait()
		}
		s.mu.Unlock()
	})
}

// enqueue appends d and starts the dispatch goroutine when none is running.
func (s *subscription) enqueue(d delivery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached {
		return
	}
	s.queue = append(s.queue, d)
	if !s.running {
		s.running = true
		go s.dispatch()
	}
}

func (s *subscription) dispatch() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.idle.Broadcast()
			s.mu.Unlock()
			return
		}
		d := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.h(d.ev, d.sess)
	}
}

func (n *notifier) subscribe(h backend.AuthStateHandler) backend.Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = map[int]*subscription{}
	}
	n.next++
	s := &subscription{n: n, id: n.next, h: h}
	s.idle = sync.NewCond(&s.mu)
	n.subs[n.next] = s
	return s
}

// emit queues ev for every current subscriber before returning. Holding n.mu
// while queueing keeps concurrent emits in the same order for all subscribers.
func (n *notifier) emit(ev model.AuthEvent, s *model.Session) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, sub := range n.subs {
		var cp *model.Session
		if s != nil {
			c := *s
			cp = &c
		}
		sub.enqueue(delivery{ev: ev, sess: cp})
	}
}
