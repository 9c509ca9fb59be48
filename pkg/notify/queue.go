// Package notify implements the hierarchical change-notification hub shared
// by meshes, views and controllers.
//
// A Queue relays sets of change kinds to registered listeners. While a Queue
// is held open with Enqueue, notifications accumulate and are delivered when
// the matching FlushQueue brings the depth back to zero. Opening a Queue also
// opens its parent, one level at a time.
//
// Delivery runs off the caller's goroutine. Each Queue drains its deliveries
// in order, so a listener sees one source's notifications in the order they
// became deliverable.
package notify

import (
	"sync"

	"github.com/charmbracelet/log"
)

// Listener receives change notifications from a Queue.
type Listener interface {
	// Subscriptions returns the kinds the listener wants from source. It is
	// consulted when a notification becomes deliverable, not at registration.
	Subscriptions(source *Queue) Kind

	// Update is called with the non-empty subset of kinds the listener wants.
	Update(source *Queue, kinds Kind)
}

// Option configures a Queue.
type Option func(*Queue)

// WithOwner records the object that owns the queue. Listeners shared between
// several queues use it to tell sources apart.
func WithOwner(owner any) Option {
	return func(q *Queue) { q.owner = owner }
}

// Synchronous makes deliveries run on the goroutine that made them
// deliverable. Ordering guarantees are unchanged.
func Synchronous() Option {
	return func(q *Queue) { q.spawn = func(f func()) { f() } }
}

// WithLogger sets the logger used for delivery tracing.
func WithLogger(l *log.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.log = l
		}
	}
}

// delivery is one notification bound to the listeners present when it
// became deliverable.
type delivery struct {
	listeners []Listener
	kinds     []Kind
}

// Queue is the per-entity subscription manager.
type Queue struct {
	owner any
	log   *log.Logger
	spawn func(func())

	mu        sync.Mutex
	listeners []Listener
	pending   []Kind
	depth     int
	parent    *Queue

	dmu         sync.Mutex
	idle        *sync.Cond
	backlog     []delivery
	draining    bool
	outstanding int
}

// New creates an empty, unqueued Queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		log:   log.Default(),
		spawn: func(f func()) { go f() },
	}
	q.idle = sync.NewCond(&q.dmu)
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Owner returns the value passed to WithOwner, or nil.
func (q *Queue) Owner() any {
	return q.owner
}

// Register adds l. Registering a listener twice is a no-op.
func (q *Queue) Register(l Listener) {
	if l == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, existing := range q.listeners {
		if existing == l {
			return
		}
	}
	q.listeners = append(q.listeners, l)
}

// Unregister removes l. Unknown listeners are ignored.
func (q *Queue) Unregister(l Listener) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, existing := range q.listeners {
		if existing == l {
			q.listeners = append(q.listeners[:i:i], q.listeners[i+1:]...)
			return
		}
	}
}

// IsRegistered reports whether l is currently registered.
func (q *Queue) IsRegistered(l Listener) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, existing := range q.listeners {
		if existing == l {
			return true
		}
	}
	return false
}

// Notify sends kinds to the current listeners, or holds them until the
// queue is flushed if it is open. An empty set is ignored.
func (q *Queue) Notify(kinds Kind) {
	if kinds == None {
		return
	}
	q.mu.Lock()
	if q.depth > 0 {
		q.pending = appendCoalesced(q.pending, kinds)
		q.mu.Unlock()
		return
	}
	d := delivery{listeners: q.snapshot(), kinds: []Kind{kinds}}
	q.mu.Unlock()
	q.dispatch(d)
}

// Enqueue opens the queue one level and opens the parent the same way.
func (q *Queue) Enqueue() {
	q.mu.Lock()
	q.depth++
	parent := q.parent
	q.mu.Unlock()
	if parent != nil {
		parent.Enqueue()
	}
}

// FlushQueue closes one level. When the depth reaches zero every held
// notification is delivered in arrival order to the listeners registered
// now. The parent is flushed once regardless.
func (q *Queue) FlushQueue() {
	q.mu.Lock()
	if q.depth > 0 {
		q.depth--
	}
	var d delivery
	if q.depth == 0 && len(q.pending) > 0 {
		d = delivery{listeners: q.snapshot(), kinds: q.pending}
		q.pending = nil
	}
	parent := q.parent
	q.mu.Unlock()

	if len(d.kinds) > 0 {
		q.dispatch(d)
	}
	if parent != nil {
		parent.FlushQueue()
	}
}

// SetParent replaces the parent queue. Held notifications are not flushed.
// A parent whose own chain leads back to q is refused.
func (q *Queue) SetParent(p *Queue) {
	if p.reaches(q) {
		q.log.Debug("parent queue would form a cycle, ignored", "owner", q.owner)
		return
	}
	q.mu.Lock()
	q.parent = p
	q.mu.Unlock()
}

// reaches reports whether target is q or one of q's ancestors.
func (q *Queue) reaches(target *Queue) bool {
	seen := make(map[*Queue]bool)
	for a := q; a != nil && !seen[a]; a = a.Parent() {
		if a == target {
			return true
		}
		seen[a] = true
	}
	return false
}

// Parent returns the parent queue, or nil.
func (q *Queue) Parent() *Queue {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.parent
}

// Depth returns how many Enqueue calls are still unmatched.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depth
}

// Pending returns a copy of the held notifications.
func (q *Queue) Pending() []Kind {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Kind(nil), q.pending...)
}

// Wait blocks until every delivery scheduled on q so far has run. It does
// not wait for deliveries on other queues that those listeners trigger.
func (q *Queue) Wait() {
	q.dmu.Lock()
	for q.outstanding > 0 {
		q.idle.Wait()
	}
	q.dmu.Unlock()
}

// Idle reports whether no delivery is scheduled or running on q.
func (q *Queue) Idle() bool {
	q.dmu.Lock()
	defer q.dmu.Unlock()
	return q.outstanding == 0
}

// snapshot copies the listener list. Caller holds q.mu.
func (q *Queue) snapshot() []Listener {
	return append([]Listener(nil), q.listeners...)
}

func (q *Queue) dispatch(d delivery) {
	if len(d.listeners) == 0 {
		return
	}
	q.dmu.Lock()
	q.backlog = append(q.backlog, d)
	q.outstanding++
	if q.draining {
		q.dmu.Unlock()
		return
	}
	q.draining = true
	q.dmu.Unlock()
	q.spawn(q.drain)
}

// drain runs queued deliveries until the backlog is empty.
func (q *Queue) drain() {
	for {
		q.dmu.Lock()
		if len(q.backlog) == 0 {
			q.draining = false
			q.dmu.Unlock()
			return
		}
		d := q.backlog[0]
		q.backlog = q.backlog[1:]
		q.dmu.Unlock()

		q.run(d)

		q.dmu.Lock()
		q.outstanding--
		if q.outstanding == 0 {
			q.idle.Broadcast()
		}
		q.dmu.Unlock()
	}
}

func (q *Queue) run(d delivery) {
	for _, kinds := range d.kinds {
		for _, l := range d.listeners {
			got := l.Subscriptions(q).Match(kinds)
			if got == None {
				continue
			}
			q.log.Debug("notify", "kinds", got, "owner", q.owner)
			l.Update(q, got)
		}
	}
}

// appendCoalesced appends k unless it repeats the last held set.
func appendCoalesced(pending []Kind, k Kind) []Kind {
	if n := len(pending); n > 0 && pending[n-1] == k {
		return pending
	}
	return append(pending, k)
}
