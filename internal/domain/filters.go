package domain

import (
	"net/url"
	"slices"
	"strings"
)

// Sort defaults applied when a filter set leaves them empty
const (
	DefaultSortField = "created_at"
	DefaultSortOrder = "desc"
)

// ScopeKind is the logical view a segment belongs to
type ScopeKind string

const (
	ScopeGallery      ScopeKind = "gallery"
	ScopeCreator      ScopeKind = "creator"
	ScopeSubscription ScopeKind = "subscription"
	ScopeTrash        ScopeKind = "trash"
)

// Scope is a view context. Creator and subscription scopes carry an ID.
type Scope struct {
	Kind ScopeKind
	ID   string
}

// GalleryScope is the main catalog view
var GalleryScope = Scope{Kind: ScopeGallery}

// TrashScope lists soft-deleted videos
var TrashScope = Scope{Kind: ScopeTrash}

// CreatorScope returns the scope for one creator's videos
func CreatorScope(creatorID string) Scope { return Scope{Kind: ScopeCreator, ID: creatorID} }

// SubscriptionScope returns the scope for one subscription's videos
func SubscriptionScope(subID string) Scope { return Scope{Kind: ScopeSubscription, ID: subID} }

func (s Scope) String() string {
	if s.ID == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + "/" + s.ID
}

// IsTrash reports whether the scope lists soft-deleted videos
func (s Scope) IsTrash() bool { return s.Kind == ScopeTrash }

// Query returns the request parameters selecting this scope
func (s Scope) Query() url.Values {
	q := url.Values{}
	switch s.Kind {
	case ScopeCreator:
		q.Set("creator_id", s.ID)
	case ScopeSubscription:
		q.Set("subscription_id", s.ID)
	case ScopeTrash:
		q.Set("trash", "true")
	}
	return q
}

// Filters is the active filter and sort set for a view
type Filters struct {
	Search           string
	Creators         []string
	Platform         Platform
	EditStatus       string
	ProcessingStatus string
	Difficulty       string
	SortField        string
	SortOrder        string
}

// Normalized returns a copy with defaults applied and creators de-duplicated and sorted
func (f Filters) Normalized() Filters {
	out := f
	out.Search = strings.TrimSpace(f.Search)
	out.Creators = nil
	for _, c := range f.Creators {
		c = strings.TrimSpace(c)
		if c != "" && !slices.Contains(out.Creators, c) {
			out.Creators = append(out.Creators, c)
		}
	}
	slices.Sort(out.Creators)
	if out.SortField == "" {
		out.SortField = DefaultSortField
	}
	out.SortOrder = strings.ToLower(out.SortOrder)
	if out.SortOrder != "asc" {
		out.SortOrder = DefaultSortOrder
	}
	return out
}

// Query returns the request parameters for the filter set
func (f Filters) Query() url.Values {
	n := f.Normalized()
	q := url.Values{}
	if n.Search != "" {
		q.Set("search", n.Search)
	}
	if len(n.Creators) > 0 {
		// Repeated params; names may themselves contain commas
		q["creators"] = n.Creators
	}
	if n.Platform != "" {
		q.Set("platform", string(n.Platform))
	}
	if n.EditStatus != "" {
		q.Set("edit_status", n.EditStatus)
	}
	if n.ProcessingStatus != "" {
		q.Set("processing_status", n.ProcessingStatus)
	}
	if n.Difficulty != "" {
		q.Set("difficulty", n.Difficulty)
	}
	q.Set("sort", n.SortField)
	q.Set("order", n.SortOrder)
	return q
}

// Signature is the canonical serialization of the filter set.
// Two filter sets select the same cache segment iff their signatures match.
func (f Filters) Signature() string {
	// url.Values.Encode sorts by key
	return f.Query().Encode()
}

// SegmentKey identifies one cached segment
type SegmentKey struct {
	Scope     Scope
	Signature string
}

// NewSegmentKey builds the key for a scope and filter set
func NewSegmentKey(scope Scope, filters Filters) SegmentKey {
	return SegmentKey{Scope: scope, Signature: filters.Signature()}
}

// String returns a stable storage key
func (k SegmentKey) String() string {
	return "scope/" + k.Scope.String() + "?" + k.Signature
}

// ParseSegmentKey reverses SegmentKey.String
func ParseSegmentKey(raw string) (SegmentKey, bool) {
	rest, ok := strings.CutPrefix(raw, "scope/")
	if !ok {
		return SegmentKey{}, false
	}
	scope, sig, ok := strings.Cut(rest, "?")
	if !ok {
		return SegmentKey{}, false
	}
	kind, id, _ := strings.Cut(scope, "/")
	if kind == "" {
		return SegmentKey{}, false
	}
	return SegmentKey{Scope: Scope{Kind: ScopeKind(kind), ID: id}, Signature: sig}, true
}
