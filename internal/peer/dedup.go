package peer

import (
	"container/heap"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// DedupWindow is how long a gossip messageId is remembered (§4.7:
// "Entries age out after 30 s").
const DedupWindow = 30 * time.Second

type expiryEntry struct {
	expiresAt time.Time
	id        string
}

// expiryHeap is a min-heap of expiryEntry ordered by expiresAt, draining
// the dedup set in O(log n) per §9's redesign note (replacing ad-hoc
// per-entry timers with a time-indexed structure).
type expiryHeap []expiryEntry

func (h expiryHeap) Len() int            { return len(h) }
func (h expiryHeap) Less(i, j int) bool  { return h[i].expiresAt.Before(h[j].expiresAt) }
func (h expiryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x any)         { *h = append(*h, x.(expiryEntry)) }
func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Dedup is the gossip-dedup window of §4.7: a sliding-window set keyed by
// messageId, backed by a golang-set/v2 membership set and a min-heap for
// bounded-memory expiry.
type Dedup struct {
	mu    sync.Mutex
	live  mapset.Set[string]
	order expiryHeap
	ttl   time.Duration
	now   func() time.Time
}

// NewDedup constructs a Dedup with the default §4.7 window.
func NewDedup() *Dedup {
	return &Dedup{live: mapset.NewThreadUnsafeSet[string](), ttl: DedupWindow, now: time.Now}
}

// SeenOrRecord reports whether id was already recorded within the window;
// if not, it records id and returns false. Call once per inbound
// non-handshake message before acting on it (§4.7, §7 "duplicate gossip
// message: silently dropped").
func (d *Dedup) SeenOrRecord(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.evict()

	if d.live.Contains(id) {
		return true
	}
	d.live.Add(id)
	heap.Push(&d.order, expiryEntry{expiresAt: d.now().Add(d.ttl), id: id})
	return false
}

// evict drops every entry whose window has elapsed. Caller must hold mu.
func (d *Dedup) evict() {
	now := d.now()
	for d.order.Len() > 0 && !d.order[0].expiresAt.After(now) {
		e := heap.Pop(&d.order).(expiryEntry)
		d.live.Remove(e.id)
	}
}
