package segment

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/mmcdole/tagflow/internal/domain"
	"github.com/mmcdole/tagflow/internal/event"
)

// DefaultMaxSegments bounds the cache when no size is configured
const DefaultMaxSegments = 16

// ChangeKind describes what happened to cached data
type ChangeKind int

const (
	ChangePatched ChangeKind = iota // An item was updated in place
	ChangeRemoved                   // An item was removed
	ChangeRolledBack                // A pending local change was reverted
	ChangeEvicted                   // Segments were dropped or reset
)

func (k ChangeKind) String() string {
	switch k {
	case ChangePatched:
		return "patched"
	case ChangeRemoved:
		return "removed"
	case ChangeRolledBack:
		return "rolled_back"
	case ChangeEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// Change is emitted after the cache mutates one or more segments
type Change struct {
	Kind    ChangeKind
	VideoID domain.VideoID // Empty for evictions
	Keys    []domain.SegmentKey
}

// Options configures a Cache
type Options struct {
	MaxSegments    int
	Snapshots      domain.SnapshotStore // Optional
	SnapshotMaxAge time.Duration        // Zero accepts any age
	Logger         *slog.Logger
}

// Cache is the multi-segment client cache. Segments are kept in LRU order by
// count; pinned segments outlive LRU pressure until released.
type Cache struct {
	mu      sync.Mutex
	lru     *simplelru.LRU[domain.SegmentKey, *Segment]
	pinned  map[domain.SegmentKey]*Segment // Pushed out of the LRU while in use
	dropped []*Segment                     // Evicted under lock, snapshotted after unlock
	quiet   bool                           // Suppresses snapshotting for explicit evictions

	snapshots domain.SnapshotStore
	maxAge    time.Duration
	logger    *slog.Logger
	now       func() time.Time

	changes event.Emitter[Change]
}

// NewCache creates a segment cache
func NewCache(opts Options) *Cache {
	if opts.MaxSegments <= 0 {
		opts.MaxSegments = DefaultMaxSegments
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	c := &Cache{
		pinned:    make(map[domain.SegmentKey]*Segment),
		snapshots: opts.Snapshots,
		maxAge:    opts.SnapshotMaxAge,
		logger:    opts.Logger,
		now:       time.Now,
	}
	// NewLRU only fails for a non-positive size
	c.lru, _ = simplelru.NewLRU[domain.SegmentKey, *Segment](opts.MaxSegments, c.onEvict)
	return c
}

// onEvict runs under c.mu from inside the LRU
func (c *Cache) onEvict(key domain.SegmentKey, seg *Segment) {
	if c.quiet {
		return
	}
	if seg.refs > 0 {
		c.pinned[key] = seg
		return
	}
	seg.Abandon()
	c.dropped = append(c.dropped, seg)
}

// Changes returns the emitter fired after cached data changes
func (c *Cache) Changes() *event.Emitter[Change] { return &c.changes }

// GetOrCreate returns the segment for key, creating it on first use.
// Repeated calls return the same segment while it stays cached.
func (c *Cache) GetOrCreate(key domain.SegmentKey) *Segment {
	c.mu.Lock()
	seg, created := c.getOrCreateLocked(key)
	dropped := c.takeDroppedLocked()
	c.mu.Unlock()

	c.persist(dropped)
	if created {
		c.hydrate(seg)
	}
	return seg
}

// Acquire returns the segment for key pinned against LRU eviction.
// The release func drops the pin and may be called more than once.
func (c *Cache) Acquire(key domain.SegmentKey) (*Segment, func()) {
	c.mu.Lock()
	seg, created := c.getOrCreateLocked(key)
	seg.refs++
	dropped := c.takeDroppedLocked()
	c.mu.Unlock()

	c.persist(dropped)
	if created {
		c.hydrate(seg)
	}

	var once sync.Once
	return seg, func() { once.Do(func() { c.release(seg) }) }
}

func (c *Cache) release(seg *Segment) {
	c.mu.Lock()
	seg.refs--
	var dropped []*Segment
	if seg.refs == 0 {
		if held, ok := c.pinned[seg.key]; ok && held == seg {
			// LRU already let it go; finish the eviction now
			delete(c.pinned, seg.key)
			seg.Abandon()
			dropped = append(dropped, seg)
		}
	}
	c.mu.Unlock()

	c.persist(dropped)
}

func (c *Cache) getOrCreateLocked(key domain.SegmentKey) (*Segment, bool) {
	if seg, ok := c.lru.Get(key); ok {
		return seg, false
	}
	if seg, ok := c.pinned[key]; ok {
		delete(c.pinned, key)
		c.lru.Add(key, seg)
		return seg, false
	}
	seg := newSegment(key)
	c.lru.Add(key, seg)
	return seg, true
}

func (c *Cache) takeDroppedLocked() []*Segment {
	d := c.dropped
	c.dropped = nil
	return d
}

// Peek returns the cached segment for key without creating it or touching LRU order
func (c *Cache) Peek(key domain.SegmentKey) (*Segment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seg, ok := c.lru.Peek(key); ok {
		return seg, true
	}
	seg, ok := c.pinned[key]
	return seg, ok
}

// Len returns the number of live segments
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len() + len(c.pinned)
}

// Keys returns the live segment keys, LRU entries oldest first
func (c *Cache) Keys() []domain.SegmentKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := c.lru.Keys()
	for k := range c.pinned {
		keys = append(keys, k)
	}
	return keys
}

func (c *Cache) live() []*Segment {
	c.mu.Lock()
	defer c.mu.Unlock()
	segs := c.lru.Values()
	for _, s := range c.pinned {
		segs = append(segs, s)
	}
	return segs
}

// Evict invalidates key. Unpinned segments are removed along with their
// snapshot; pinned segments are reset in place so their owner reloads.
func (c *Cache) Evict(key domain.SegmentKey) {
	c.EvictWhere(func(k domain.SegmentKey) bool { return k == key })
}

// EvictWhere evicts every live segment, and every snapshot, whose key matches pred.
// It returns the keys of the live segments affected.
func (c *Cache) EvictWhere(pred func(domain.SegmentKey) bool) []domain.SegmentKey {
	var reset []*Segment
	var keys []domain.SegmentKey

	c.mu.Lock()
	for _, k := range c.lru.Keys() {
		if !pred(k) {
			continue
		}
		seg, _ := c.lru.Peek(k)
		keys = append(keys, k)
		if seg.refs > 0 {
			reset = append(reset, seg)
			continue
		}
		c.quiet = true
		c.lru.Remove(k)
		c.quiet = false
		seg.Abandon()
	}
	for k, seg := range c.pinned {
		if pred(k) {
			keys = append(keys, k)
			reset = append(reset, seg)
		}
	}
	c.mu.Unlock()

	for _, seg := range reset {
		seg.Reset()
	}
	if c.snapshots != nil {
		c.snapshots.DeleteWhere(func(raw string) bool {
			k, ok := domain.ParseSegmentKey(raw)
			return ok && pred(k)
		})
	}
	if len(keys) > 0 {
		c.logger.Debug("evicted segments", "count", len(keys))
		c.changes.Emit(Change{Kind: ChangeEvicted, Keys: keys})
	}
	return keys
}

// EvictScope evicts every segment of the given scope kind
func (c *Cache) EvictScope(kind domain.ScopeKind) []domain.SegmentKey {
	return c.EvictWhere(func(k domain.SegmentKey) bool { return k.Scope.Kind == kind })
}

// PatchItem applies m to id in every live segment that contains it and
// returns the number of segments changed.
func (c *Cache) PatchItem(id domain.VideoID, m domain.Mutation) int {
	var keys []domain.SegmentKey
	for _, seg := range c.live() {
		if seg.patch(id, m) {
			keys = append(keys, seg.key)
		}
	}
	if len(keys) > 0 {
		c.changes.Emit(Change{Kind: ChangePatched, VideoID: id, Keys: keys})
	}
	return len(keys)
}

// ReplaceItem swaps in the server copy of v wherever it is cached, unless the
// cached copy is newer. It returns the number of segments changed.
func (c *Cache) ReplaceItem(v domain.Video) int {
	var keys []domain.SegmentKey
	for _, seg := range c.live() {
		if seg.replace(v) {
			keys = append(keys, seg.key)
		}
	}
	if len(keys) > 0 {
		c.changes.Emit(Change{Kind: ChangePatched, VideoID: v.ID, Keys: keys})
	}
	return len(keys)
}

// Rollback restores original wherever the item still has a pending local change
func (c *Cache) Rollback(original domain.Video) int {
	var keys []domain.SegmentKey
	for _, seg := range c.live() {
		if seg.rollback(original) {
			keys = append(keys, seg.key)
		}
	}
	if len(keys) > 0 {
		c.changes.Emit(Change{Kind: ChangeRolledBack, VideoID: original.ID, Keys: keys})
	}
	return len(keys)
}

// RemoveItem removes id from every live segment and returns the keys touched
func (c *Cache) RemoveItem(id domain.VideoID) []domain.SegmentKey {
	return c.RemoveItemWhere(id, func(domain.SegmentKey) bool { return true })
}

// RemoveItemWhere removes id from the live segments whose key matches pred
func (c *Cache) RemoveItemWhere(id domain.VideoID, pred func(domain.SegmentKey) bool) []domain.SegmentKey {
	var keys []domain.SegmentKey
	for _, seg := range c.live() {
		if pred(seg.key) && seg.remove(id) {
			keys = append(keys, seg.key)
		}
	}
	if len(keys) > 0 {
		c.changes.Emit(Change{Kind: ChangeRemoved, VideoID: id, Keys: keys})
	}
	return keys
}

// KeysWith returns the keys of live segments containing id
func (c *Cache) KeysWith(id domain.VideoID) []domain.SegmentKey {
	var keys []domain.SegmentKey
	for _, seg := range c.live() {
		if _, ok := seg.lookup(id); ok {
			keys = append(keys, seg.key)
		}
	}
	return keys
}

// Lookup returns a copy of the first cached instance of id
func (c *Cache) Lookup(id domain.VideoID) (domain.Video, bool) {
	for _, seg := range c.live() {
		if v, ok := seg.lookup(id); ok {
			return v, true
		}
	}
	return domain.Video{}, false
}

// Clear drops every segment without snapshotting and wipes stored snapshots
func (c *Cache) Clear() {
	c.mu.Lock()
	segs := c.lru.Values()
	c.quiet = true
	c.lru.Purge()
	c.quiet = false
	for k, s := range c.pinned {
		segs = append(segs, s)
		delete(c.pinned, k)
	}
	c.mu.Unlock()

	for _, s := range segs {
		s.Reset()
	}
	if c.snapshots != nil {
		c.snapshots.InvalidateAll()
	}
}

// Flush writes every live segment to the snapshot store
func (c *Cache) Flush() {
	c.persist(c.live())
}

// Close flushes live segments and closes the snapshot store
func (c *Cache) Close() error {
	c.Flush()
	if c.snapshots != nil {
		return c.snapshots.Close()
	}
	return nil
}

func (c *Cache) persist(segs []*Segment) {
	if c.snapshots == nil || len(segs) == 0 {
		return
	}
	now := c.now()
	for _, seg := range segs {
		snap := seg.snapshot(now)
		if snap == nil {
			continue
		}
		if err := c.snapshots.SaveSegment(snap); err != nil {
			c.logger.Warn("failed to save segment snapshot", "key", snap.Key, "error", err)
		}
	}
}

func (c *Cache) hydrate(seg *Segment) {
	if c.snapshots == nil {
		return
	}
	snap, ok := c.snapshots.LoadSegment(seg.key.String())
	if !ok {
		return
	}
	if c.maxAge > 0 && c.now().Sub(snap.SavedAt) > c.maxAge {
		c.snapshots.DeleteSegment(snap.Key)
		return
	}
	seg.hydrate(snap)
	c.logger.Debug("hydrated segment from snapshot", "key", snap.Key, "posts", len(snap.Posts))
}
