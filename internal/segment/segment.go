// Package segment holds the client-side cache of scroll segments: one
// ordered, de-duplicated list of videos per (scope, filters) key.
package segment

import (
	"context"
	"sync"
	"time"

	"github.com/mmcdole/tagflow/internal/domain"
)

// State is a point-in-time copy of a segment
type State struct {
	Key           domain.SegmentKey
	Posts         []domain.Video
	Cursor        string
	HasMore       bool
	Loading       bool
	LoadingMore   bool
	InitialLoaded bool
	Hydrated      bool // Posts came from a snapshot and await the first live page
	Err           error
}

// Busy reports whether a page request is in flight
func (s State) Busy() bool { return s.Loading || s.LoadingMore }

// Segment is one cached, cursor-paginated result list.
// Posts keep server order; ids are unique within a segment.
type Segment struct {
	key domain.SegmentKey

	mu            sync.Mutex
	posts         []domain.Video
	ids           map[domain.VideoID]struct{}
	cursor        string
	hasMore       bool
	loading       bool
	loadingMore   bool
	initialLoaded bool
	hydrated      bool
	err           error

	token  uint64 // Bumped whenever in-flight work is abandoned
	cancel context.CancelFunc

	refs int // Pins; guarded by the owning Cache's lock
}

func newSegment(key domain.SegmentKey) *Segment {
	return &Segment{key: key, ids: make(map[domain.VideoID]struct{})}
}

// Key returns the segment's cache key
func (s *Segment) Key() domain.SegmentKey { return s.key }

// State returns a copy of the segment's current state
func (s *Segment) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	posts := make([]domain.Video, len(s.posts))
	for i, p := range s.posts {
		posts[i] = p.Clone()
	}
	return State{
		Key:           s.key,
		Posts:         posts,
		Cursor:        s.cursor,
		HasMore:       s.hasMore,
		Loading:       s.loading,
		LoadingMore:   s.loadingMore,
		InitialLoaded: s.initialLoaded,
		Hydrated:      s.hydrated,
		Err:           s.err,
	}
}

// Len returns the number of loaded posts
func (s *Segment) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.posts)
}

// Fetch is a page request started on a segment. It must be passed back to
// Finish exactly once; Finish discards it if the segment moved on meanwhile.
type Fetch struct {
	Ctx    context.Context
	Cursor string
	More   bool

	token  uint64
	cancel context.CancelFunc
}

// BeginFirstPage abandons any in-flight request and starts a first-page load
func (s *Segment) BeginFirstPage(parent context.Context, timeout time.Duration) *Fetch {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.abandonLocked()
	s.loading = true
	s.err = nil
	return s.startLocked(parent, timeout, "", false)
}

// BeginNextPage starts a next-page load. It returns nil when a request is
// already in flight, the first page has not loaded, or there is nothing more.
func (s *Segment) BeginNextPage(parent context.Context, timeout time.Duration) *Fetch {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loading || s.loadingMore || !s.initialLoaded || !s.hasMore {
		return nil
	}
	s.loadingMore = true
	s.err = nil
	return s.startLocked(parent, timeout, s.cursor, true)
}

func (s *Segment) startLocked(parent context.Context, timeout time.Duration, cursor string, more bool) *Fetch {
	ctx, cancel := context.WithTimeout(parent, timeout)
	s.cancel = cancel
	return &Fetch{Ctx: ctx, Cursor: cursor, More: more, token: s.token, cancel: cancel}
}

// Finish applies the outcome of f. It reports false, leaving the segment
// untouched, when f was superseded by a newer request or a reset.
func (s *Segment) Finish(f *Fetch, page *domain.Page, err error) bool {
	f.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if f.token != s.token {
		return false
	}
	s.cancel = nil
	if f.More {
		s.loadingMore = false
	} else {
		s.loading = false
	}

	if err != nil {
		s.err = err
		return true
	}

	if !f.More {
		s.posts = s.posts[:0]
		s.ids = make(map[domain.VideoID]struct{}, len(page.Items))
		s.initialLoaded = true
		s.hydrated = false
	}
	s.appendLocked(page.Items)
	s.cursor = page.NextCursor
	s.hasMore = page.HasMore
	s.err = nil
	return true
}

// appendLocked adds items in order, skipping ids already present
func (s *Segment) appendLocked(items []domain.Video) {
	for _, item := range items {
		if _, dup := s.ids[item.ID]; dup {
			continue
		}
		s.ids[item.ID] = struct{}{}
		s.posts = append(s.posts, item.Clone())
	}
}

// Abandon cancels any in-flight request so its result is discarded
func (s *Segment) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandonLocked()
}

func (s *Segment) abandonLocked() {
	s.token++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.loading = false
	s.loadingMore = false
}

// Reset drops all data and in-flight work, leaving the segment as if new
func (s *Segment) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.abandonLocked()
	s.posts = nil
	s.ids = make(map[domain.VideoID]struct{})
	s.cursor = ""
	s.hasMore = false
	s.initialLoaded = false
	s.hydrated = false
	s.err = nil
}

// hydrate fills an empty segment from a snapshot for immediate display
func (s *Segment) hydrate(snap *domain.SegmentSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialLoaded || len(s.posts) > 0 {
		return
	}
	s.appendLocked(snap.Posts)
	s.cursor = snap.Cursor
	s.hasMore = snap.HasMore
	s.hydrated = true
}

// snapshot returns the persisted form, or nil when there is nothing worth saving
func (s *Segment) snapshot(now time.Time) *domain.SegmentSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialLoaded || len(s.posts) == 0 {
		return nil
	}
	posts := make([]domain.Video, len(s.posts))
	for i, p := range s.posts {
		posts[i] = p.Clone()
		posts[i].Pending = false
	}
	return &domain.SegmentSnapshot{
		Key:     s.key.String(),
		Posts:   posts,
		Cursor:  s.cursor,
		HasMore: s.hasMore,
		SavedAt: now,
	}
}

// patch applies m to the item with id. It reports whether the segment changed.
func (s *Segment) patch(id domain.VideoID, m domain.Mutation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; !ok {
		return false
	}
	for i := range s.posts {
		p := &s.posts[i]
		if p.ID != id {
			continue
		}
		switch m.Source {
		case domain.SourceServer:
			// Last write wins on the server timestamp
			if !m.Timestamp.IsZero() && m.Timestamp.Before(p.UpdatedAt) {
				return false
			}
			m.Changes.Apply(p)
			if m.Timestamp.After(p.UpdatedAt) {
				p.UpdatedAt = m.Timestamp
			}
			p.Pending = false
		default:
			m.Changes.Apply(p)
			p.Pending = true
		}
		return true
	}
	return false
}

// rollback restores original if the item still carries an unconfirmed local change
func (s *Segment) rollback(original domain.Video) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[original.ID]; !ok {
		return false
	}
	for i := range s.posts {
		if s.posts[i].ID == original.ID {
			if !s.posts[i].Pending {
				return false
			}
			s.posts[i] = original.Clone()
			s.posts[i].Pending = false
			return true
		}
	}
	return false
}

// replace swaps in the server copy of an item when it is not older than the cached one
func (s *Segment) replace(v domain.Video) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[v.ID]; !ok {
		return false
	}
	for i := range s.posts {
		if s.posts[i].ID == v.ID {
			if !v.UpdatedAt.IsZero() && v.UpdatedAt.Before(s.posts[i].UpdatedAt) {
				return false
			}
			s.posts[i] = v.Clone()
			s.posts[i].Pending = false
			return true
		}
	}
	return false
}

// remove deletes the item with id, preserving the order of the rest
func (s *Segment) remove(id domain.VideoID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; !ok {
		return false
	}
	delete(s.ids, id)
	for i := range s.posts {
		if s.posts[i].ID == id {
			s.posts = append(s.posts[:i], s.posts[i+1:]...)
			break
		}
	}
	return true
}

func (s *Segment) lookup(id domain.VideoID) (domain.Video, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; !ok {
		return domain.Video{}, false
	}
	for _, p := range s.posts {
		if p.ID == id {
			return p.Clone(), true
		}
	}
	return domain.Video{}, false
}
