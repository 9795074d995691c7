// Package notifier fans out data-change events from the transaction store
// to every open grid view.
package notifier

import (
	"sync"
	"time"
)

// Change describes new data in the store. Listeners do not get the new
// rows; they reload their current page.
type Change struct {
	// Source names what changed, e.g. the database file that was written.
	Source string
	At     time.Time
}

// Notifier broadcasts changes to subscribers. A slow subscriber only ever
// holds the most recent change: older undelivered changes are replaced.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[chan Change]struct{}
	published uint64
}

// New creates a Notifier.
func New() *Notifier {
	return &Notifier{
		listeners: make(map[chan Change]struct{}),
	}
}

// Subscribe returns a channel of changes and a function that removes the
// subscription and closes the channel. The caller must call it.
func (n *Notifier) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 1)
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.listeners, ch)
			n.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers c to every subscriber without blocking.
func (n *Notifier) Publish(c Change) {
	if c.At.IsZero() {
		c.At = time.Now()
	}

	n.mu.Lock()
	n.published++
	n.mu.Unlock()

	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.listeners {
		select {
		case ch <- c:
			continue
		default:
		}
		// Full: drop the stale change and retry once.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- c:
		default:
		}
	}
}

// Listeners returns the number of active subscriptions.
func (n *Notifier) Listeners() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}

// Published returns the number of changes published so far.
func (n *Notifier) Published() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.published
}
