package feed

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

const defaultLoadTimeout = 10 * time.Second

// Hub owns the live subscriptions of one process. Each subscription runs a single
// goroutine that loads and delivers snapshots, so its handler is never called concurrently.
type Hub struct {
	Source      Source
	LoadTimeout time.Duration

	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	closed  bool
	closing chan struct{}
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

func NewHub(source Source, loadTimeout time.Duration) *Hub {
	if loadTimeout <= 0 {
		loadTimeout = defaultLoadTimeout
	}
	return &Hub{
		Source:      source,
		LoadTimeout: loadTimeout,
		subs:        map[*Subscription]struct{}{},
		closing:     make(chan struct{}),
		entropy:     ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		now:         time.Now,
	}
}

// Run consumes change notifications until ctx is done, waking every affected subscription.
func (h *Hub) Run(ctx context.Context, notifier Notifier) error {
	changes, err := notifier.Listen(ctx)
	if err != nil {
		return err
	}
	go func() {
		for c := range changes {
			h.Notify(c)
		}
	}()
	return nil
}

// Notify marks every subscription whose view the change touches as stale.
func (h *Hub) Notify(c Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if s.topic.Affected(c) {
			s.wake()
		}
	}
}

// Subscribe starts a subscription; the handler first receives the current snapshot and then a
// new one after each relevant change. Cancelling ctx has the same effect as Unsubscribe.
func (h *Hub) Subscribe(ctx context.Context, topic Topic, handler Handler) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		hub:     h,
		topic:   topic,
		handler: handler,
		stale:   make(chan struct{}, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	h.mu.Lock()
	if h.closed {
		cancel()
	} else {
		h.subs[s] = struct{}{}
	}
	h.mu.Unlock()

	s.wake()
	go s.loop(ctx)
	return s
}

// Close ends every live subscription and makes later ones end immediately.
// Closing() fires before the subscriptions are torn down.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.closing)
	subs := make([]*Subscription, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
}

// Closing is closed once Close has been called.
func (h *Hub) Closing() <-chan struct{} {
	return h.closing
}

// Len reports the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

func (h *Hub) nextVersion() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(h.now()), h.entropy).String()
}

func (h *Hub) load(ctx context.Context, topic Topic) Snapshot {
	ctx, cancel := context.WithTimeout(ctx, h.LoadTimeout)
	defer cancel()

	snap := Snapshot{Topic: topic}
	switch topic.Kind {
	case TopicAvailableListings:
		listings, err := h.Source.ListAvailable(ctx)
		snap.Listings, snap.Err = listings, err
	case TopicSellerListings:
		listings, err := h.Source.ListBySeller(ctx, topic.Owner)
		snap.Listings, snap.Err = listings, err
	case TopicBuyerPurchases:
		purchases, err := h.Source.ListPurchases(ctx, topic.Owner)
		snap.Purchases, snap.Err = purchases, err
	}
	snap.TakenAt = h.now().UTC()
	snap.Version = h.nextVersion()
	return snap
}

// Subscription is one live view. Unsubscribe is safe to call more than once.
type Subscription struct {
	hub     *Hub
	topic   Topic
	handler Handler
	stale   chan struct{}
	cancel  context.CancelFunc
	once    sync.Once
	done    chan struct{}
}

func (s *Subscription) Topic() Topic {
	return s.topic
}

// Unsubscribe stops delivery. A handler already running finishes; no later one starts.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		s.hub.remove(s)
	})
}

// Done is closed once the delivery goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// wake coalesces pending refreshes: a burst of changes produces at most one extra load.
func (s *Subscription) wake() {
	select {
	case s.stale <- struct{}{}:
	default:
	}
}

func (s *Subscription) loop(ctx context.Context) {
	defer close(s.done)
	defer s.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stale:
		}
		snap := s.hub.load(ctx, s.topic)
		if ctx.Err() != nil {
			return
		}
		if snap.Err != nil {
			log.Warn().Err(snap.Err).Str("topic", string(s.topic.Kind)).Msg("feed snapshot load failed")
		}
		s.handler(snap)
	}
}
