package tui

import (
	"github.com/mmcdole/tagflow/internal/domain"
	"github.com/mmcdole/tagflow/internal/pagination"
	"github.com/mmcdole/tagflow/internal/realtime"
)

// StoreChangedMsg carries a pagination state transition
type StoreChangedMsg struct {
	State pagination.State
}

// ConnStateMsg reports a realtime connection state change
type ConnStateMsg struct {
	State realtime.ConnState
}

// MaxReconnectsMsg reports that the realtime client gave up
type MaxReconnectsMsg struct {
	Event realtime.MaxReconnectsEvent
}

// InvalidatedMsg reports a server push applied to the cache
type InvalidatedMsg struct {
	Invalidation realtime.Invalidation
}

// LoadDoneMsg is the result of a page request
type LoadDoneMsg struct {
	Scope domain.Scope
	More  bool
	Err   error
}

// MutationDoneMsg is the result of an edit, delete or restore
type MutationDoneMsg struct {
	Action  string
	VideoID domain.VideoID
	Err     error
}

// PlaybackStartedMsg signals that the player launched
type PlaybackStartedMsg struct {
	Video domain.Video
}

// TotalsLoadedMsg signals the stats endpoints answered
type TotalsLoadedMsg struct {
	Err error
}

// StatusMsg sets a temporary status message
type StatusMsg struct {
	Message string
	IsError bool
}

// ClearStatusMsg clears the status bar message
type ClearStatusMsg struct {
	Seq int
}
