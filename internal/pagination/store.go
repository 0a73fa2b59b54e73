// Package pagination drives cursor-paginated loading of one scope's
// segments: first page, load-more, filter switches and refresh.
package pagination

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/mmcdole/tagflow/internal/domain"
	"github.com/mmcdole/tagflow/internal/event"
	"github.com/mmcdole/tagflow/internal/segment"
)

const (
	DefaultPageSize     = 50
	DefaultFetchTimeout = 15 * time.Second
)

// State is what a view renders for the current segment
type State struct {
	segment.State
	Scope   domain.Scope
	Filters domain.Filters
	Total   int64 // Caller-maintained count, see SetTotal
}

// Options configures a Store
type Options struct {
	Scope        domain.Scope
	Filters      domain.Filters
	Lister       domain.VideoLister
	Cache        *segment.Cache
	PageSize     int
	FetchTimeout time.Duration
	Logger       *slog.Logger

	// Context bounds background reloads after the current segment is evicted.
	// Nil disables them.
	Context context.Context
}

// Store owns the fetch lifecycle of the segment selected by (scope, filters)
type Store struct {
	scope    domain.Scope
	lister   domain.VideoLister
	cache    *segment.Cache
	pageSize int
	timeout  time.Duration
	logger   *slog.Logger
	bgCtx    context.Context

	mu      sync.Mutex
	filters domain.Filters
	key     domain.SegmentKey
	seg     *segment.Segment
	release func()
	total   int64
	closed  bool

	changes event.Emitter[State]
	subs    event.Group
}

// NewStore creates a store for one scope. No request is made until
// LoadFirstPage or SetFilters is called.
func NewStore(opts Options) *Store {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Cache == nil {
		opts.Cache = segment.NewCache(segment.Options{Logger: opts.Logger})
	}

	s := &Store{
		scope:    opts.Scope,
		lister:   opts.Lister,
		cache:    opts.Cache,
		pageSize: opts.PageSize,
		timeout:  opts.FetchTimeout,
		logger:   opts.Logger.With("scope", opts.Scope.String()),
		bgCtx:    opts.Context,
		filters:  opts.Filters.Normalized(),
	}
	s.key = domain.NewSegmentKey(s.scope, s.filters)
	s.subs.Add(s.cache.Changes().On(s.onCacheChange))
	return s
}

// Changes returns the emitter fired after every state transition
func (s *Store) Changes() *event.Emitter[State] { return &s.changes }

// Scope returns the store's scope
func (s *Store) Scope() domain.Scope { return s.scope }

// Filters returns the active filter set
func (s *Store) Filters() domain.Filters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters
}

// State returns the current state, read at call time
func (s *Store) State() State {
	s.mu.Lock()
	seg, key, filters, total := s.seg, s.key, s.filters, s.total
	s.mu.Unlock()

	st := State{Scope: s.scope, Filters: filters, Total: total}
	if seg != nil {
		st.State = seg.State()
	} else {
		st.Key = key
	}
	return st
}

// current returns the current segment, acquiring it on first use
func (s *Store) current() (*segment.Segment, domain.Filters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seg == nil && !s.closed {
		s.seg, s.release = s.cache.Acquire(s.key)
	}
	return s.seg, s.filters
}

// LoadFirstPage (re)loads the first page of the current segment.
// On failure the error is recorded in state and previous data is kept.
func (s *Store) LoadFirstPage(ctx context.Context) error {
	seg, filters := s.current()
	if seg == nil {
		return domain.StaleError()
	}
	f := seg.BeginFirstPage(ctx, s.timeout)
	s.emit()
	return s.run(seg, filters, f)
}

// LoadMore appends the next page. It is a no-op while any request for the
// segment is in flight, before the first page, or when there is nothing more.
func (s *Store) LoadMore(ctx context.Context) error {
	seg, filters := s.current()
	if seg == nil {
		return nil
	}
	f := seg.BeginNextPage(ctx, s.timeout)
	if f == nil {
		return nil
	}
	s.emit()
	return s.run(seg, filters, f)
}

func (s *Store) run(seg *segment.Segment, filters domain.Filters, f *segment.Fetch) error {
	page, err := s.lister.ListVideos(f.Ctx, domain.PageRequest{
		Scope:   s.scope,
		Filters: filters,
		Cursor:  f.Cursor,
		Limit:   s.pageSize,
	})
	if err == nil && page == nil {
		err = domain.ParseError(errors.New("empty page"))
	}
	err = classify(f.Ctx, err)

	if !seg.Finish(f, page, err) {
		s.logger.Debug("discarded stale page", "cursor", f.Cursor, "more", f.More)
		return domain.StaleError()
	}
	if err != nil {
		s.logger.Warn("page request failed", "cursor", f.Cursor, "more", f.More, "error", err)
	} else {
		s.logger.Debug("page loaded", "cursor", f.Cursor, "items", len(page.Items), "has_more", page.HasMore)
	}
	s.emit()
	return err
}

// classify maps err onto a FetchError; a fetch timeout is a network error
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NetworkError(context.DeadlineExceeded)
	}
	return domain.AsFetchError(err)
}

// SetFilters switches to the segment for filters. Equivalent filter sets are
// a no-op once loaded; otherwise the previous request is abandoned and the
// first page is loaded unless the target segment is already cached.
func (s *Store) SetFilters(ctx context.Context, filters domain.Filters) error {
	filters = filters.Normalized()
	key := domain.NewSegmentKey(s.scope, filters)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if key == s.key && s.seg != nil {
		st := s.seg.State()
		if st.InitialLoaded || st.Loading {
			s.mu.Unlock()
			return nil
		}
	}

	var oldRelease func()
	if key != s.key || s.seg == nil {
		if s.seg != nil {
			s.seg.Abandon()
		}
		oldRelease = s.release
		s.seg, s.release = s.cache.Acquire(key)
	}
	s.key = key
	s.filters = filters
	seg := s.seg
	s.mu.Unlock()

	if oldRelease != nil {
		oldRelease()
	}
	s.emit()

	st := seg.State()
	if st.InitialLoaded || st.Loading {
		return nil
	}
	return s.LoadFirstPage(ctx)
}

// Refresh reloads the first page for the current filters
func (s *Store) Refresh(ctx context.Context) error {
	return s.LoadFirstPage(ctx)
}

// Clear drops the current segment's data and releases it
func (s *Store) Clear() {
	s.mu.Lock()
	seg, release := s.seg, s.release
	s.seg, s.release = nil, nil
	s.mu.Unlock()

	if seg != nil {
		seg.Reset()
		release()
	}
	s.emit()
}

// Close releases the current segment, leaving its data cached, and stops
// listening to the cache
func (s *Store) Close() {
	s.mu.Lock()
	release := s.release
	s.seg, s.release = nil, nil
	s.closed = true
	s.mu.Unlock()

	s.subs.Unsubscribe()
	if release != nil {
		release()
	}
}

// SetTotal records the server-reported item count for the scope
func (s *Store) SetTotal(n int64) {
	s.mu.Lock()
	s.total = n
	s.mu.Unlock()
	s.emit()
}

// AdjustTotal shifts the tracked count after local removals or restores
func (s *Store) AdjustTotal(delta int64) {
	s.mu.Lock()
	s.total = max(0, s.total+delta)
	s.mu.Unlock()
	s.emit()
}

func (s *Store) onCacheChange(ch segment.Change) {
	s.mu.Lock()
	key, seg := s.key, s.seg
	s.mu.Unlock()

	if seg == nil || !slices.Contains(ch.Keys, key) {
		return
	}
	s.emit()

	// An eviction reset our pinned segment in place
	if ch.Kind == segment.ChangeEvicted && s.bgCtx != nil {
		go func() {
			if err := s.LoadFirstPage(s.bgCtx); err != nil && !domain.IsStale(err) {
				s.logger.Warn("reload after eviction failed", "error", err)
			}
		}()
	}
}

func (s *Store) emit() {
	s.changes.Emit(s.State())
}
