package changefeed

import (
	"log/slog"
	"sync"

	"github.com/mcoot/pingpong/internal/model"
)

// DefaultBufferSize is the per-subscriber channel capacity
const DefaultBufferSize = 256

// Feed fans change events out to subscribers of each collection.
// Every subscriber gets a bounded channel. A subscriber that falls behind is
// closed with ErrSubscriptionOverflow instead of having events dropped, so
// the consumer knows it must resync.
type Feed struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
	logger *slog.Logger
}

// New creates a Feed with the given per-subscriber buffer size
func New(buffer int, logger *slog.Logger) *Feed {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	return &Feed{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger.With(slog.String("component", "changefeed")),
	}
}

// Subscribe registers interest in a single collection
func (f *Feed) Subscribe(collection model.Collection) *Subscription {
	sub := &Subscription{
		feed:       f,
		collection: collection,
		ch:         make(chan model.ChangeEvent, f.buffer),
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		sub.closeWith(model.ErrSubscriptionClosed)
		return sub
	}
	f.subs[sub] = struct{}{}
	f.logger.Debug("subscription added",
		slog.String("collection", string(collection)),
		slog.Int("total_subscriptions", len(f.subs)))
	return sub
}

// Publish delivers the event to every subscriber of its collection
func (f *Feed) Publish(ev model.ChangeEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for sub := range f.subs {
		if sub.collection != ev.Collection {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			delete(f.subs, sub)
			sub.closeWith(model.ErrSubscriptionOverflow)
			f.logger.Warn("subscription overflowed, closing",
				slog.String("collection", string(ev.Collection)),
				slog.Int64("seq", ev.Seq))
		}
	}
}

// SubscriberCount returns the number of live subscriptions
func (f *Feed) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Close ends every subscription; later Subscribe calls return closed subscriptions
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for sub := range f.subs {
		sub.closeWith(model.ErrSubscriptionClosed)
		delete(f.subs, sub)
	}
}

// Interrupt closes every live subscription with err while leaving the feed
// open, telling consumers that events may have been lost and they must resync
func (f *Feed) Interrupt(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs {
		sub.closeWith(err)
		delete(f.subs, sub)
	}
	f.logger.Warn("feed interrupted", slog.String("error", err.Error()))
}

func (f *Feed) remove(sub *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[sub]; ok {
		delete(f.subs, sub)
		sub.closeWith(nil)
	}
}

// Subscription is a stream of change events for one collection
type Subscription struct {
	feed       *Feed
	collection model.Collection
	ch         chan model.ChangeEvent

	once sync.Once
	mu   sync.Mutex
	err  error
}

// Collection returns the collection this subscription follows
func (s *Subscription) Collection() model.Collection {
	return s.collection
}

// C returns the event channel. It is closed when the subscription ends;
// Err then reports why.
func (s *Subscription) C() <-chan model.ChangeEvent {
	return s.ch
}

// Err returns nil while the subscription is live or after Unsubscribe,
// ErrSubscriptionOverflow if the consumer fell behind and
// ErrSubscriptionClosed if the feed shut down.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Unsubscribe stops delivery and closes the channel. Safe to call repeatedly.
func (s *Subscription) Unsubscribe() {
	s.feed.remove(s)
	s.closeWith(nil)
}

func (s *Subscription) closeWith(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.ch)
	})
}
