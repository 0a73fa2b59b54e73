package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// VideoID is the backend's stable identifier for a video.
// The backend emits integer row ids; the client treats them as opaque strings.
type VideoID string

// UnmarshalJSON accepts both JSON strings and JSON numbers
func (id *VideoID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = VideoID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid video id %s: %w", string(data), err)
	}
	*id = VideoID(n.String())
	return nil
}

func (id VideoID) String() string { return string(id) }

// Platform identifies where a video was downloaded from
type Platform string

const (
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformYouTube   Platform = "youtube"
	PlatformTwitter   Platform = "twitter"
)

// Platforms is the order the gallery cycles through when filtering by platform
var Platforms = []Platform{PlatformTikTok, PlatformInstagram, PlatformYouTube, PlatformTwitter}

// Video is one catalog entry. Owned by the backend; the client only replaces
// it from a page response or patches it from a mutation.
type Video struct {
	ID               VideoID       `json:"id"`
	Title            string        `json:"title"`
	Description      string        `json:"description,omitempty"`
	Creator          string        `json:"creator"`
	CreatorID        string        `json:"creator_id,omitempty"`
	SubscriptionID   string        `json:"subscription_id,omitempty"`
	Platform         Platform      `json:"platform"`
	FilePath         string        `json:"file_path,omitempty"`
	ThumbnailPath    string        `json:"thumbnail_path,omitempty"`
	Duration         time.Duration `json:"-"` // Wire form is seconds, see MarshalJSON
	EditStatus       string        `json:"edit_status,omitempty"`
	ProcessingStatus string        `json:"processing_status,omitempty"`
	Difficulty       string        `json:"difficulty,omitempty"`
	Tags             []string      `json:"tags,omitempty"`
	Notes            string        `json:"notes,omitempty"`
	Deleted          bool          `json:"deleted,omitempty"`
	CreatedAt        time.Time     `json:"-"`
	UpdatedAt        time.Time     `json:"-"` // Server timestamp, drives last-write-wins

	// Pending is set while an optimistic local change awaits confirmation
	Pending bool `json:"-"`
}

// FormattedDuration returns the duration in a compact human-readable format
func (v Video) FormattedDuration() string {
	if v.Duration <= 0 {
		return ""
	}
	m := int(v.Duration.Minutes())
	s := int(v.Duration.Seconds()) % 60
	if m >= 60 {
		return fmt.Sprintf("%dh %dm", m/60, m%60)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// DisplayTitle falls back to the id for untitled downloads
func (v Video) DisplayTitle() string {
	if v.Title != "" {
		return v.Title
	}
	return "video #" + string(v.ID)
}

// Clone returns a deep copy safe to hand across goroutines
func (v Video) Clone() Video {
	if v.Tags != nil {
		v.Tags = append([]string(nil), v.Tags...)
	}
	return v
}

// VideoChanges is a shallow field update. Nil fields are left untouched.
type VideoChanges struct {
	Title            *string   `json:"title,omitempty"`
	Description      *string   `json:"description,omitempty"`
	Creator          *string   `json:"creator,omitempty"`
	EditStatus       *string   `json:"edit_status,omitempty"`
	ProcessingStatus *string   `json:"processing_status,omitempty"`
	Difficulty       *string   `json:"difficulty,omitempty"`
	Notes            *string   `json:"notes,omitempty"`
	Tags             *[]string `json:"tags,omitempty"`
	Deleted          *bool     `json:"deleted,omitempty"`
}

// IsEmpty reports whether no field is set
func (c VideoChanges) IsEmpty() bool {
	return c.Title == nil && c.Description == nil && c.Creator == nil &&
		c.EditStatus == nil && c.ProcessingStatus == nil && c.Difficulty == nil &&
		c.Notes == nil && c.Tags == nil && c.Deleted == nil
}

// Apply writes the set fields onto v
func (c VideoChanges) Apply(v *Video) {
	if c.Title != nil {
		v.Title = *c.Title
	}
	if c.Description != nil {
		v.Description = *c.Description
	}
	if c.Creator != nil {
		v.Creator = *c.Creator
	}
	if c.EditStatus != nil {
		v.EditStatus = *c.EditStatus
	}
	if c.ProcessingStatus != nil {
		v.ProcessingStatus = *c.ProcessingStatus
	}
	if c.Difficulty != nil {
		v.Difficulty = *c.Difficulty
	}
	if c.Notes != nil {
		v.Notes = *c.Notes
	}
	if c.Tags != nil {
		v.Tags = append([]string(nil), (*c.Tags)...)
	}
	if c.Deleted != nil {
		v.Deleted = *c.Deleted
	}
}

// MutationSource distinguishes optimistic local edits from server-confirmed ones
type MutationSource int

const (
	SourceLocal MutationSource = iota
	SourceServer
)

// Mutation is a change to one video, applied across every cached segment
type Mutation struct {
	VideoID   VideoID
	Changes   VideoChanges
	Timestamp time.Time // Server timestamp; zero for local mutations
	Source    MutationSource
}

// Page is one cursor page returned by the backend
type Page struct {
	Items      []Video
	NextCursor string // Opaque; empty when there is no next page
	HasMore    bool
}

// BulkResult reports the outcome of a bulk mutation.
// PerItem is false when the backend only acknowledged the batch as a whole.
type BulkResult struct {
	Succeeded []VideoID
	Failed    map[VideoID]string
	PerItem   bool
}

// Stats holds aggregate counters from /api/stats or /api/trash/stats
type Stats map[string]any

// Int returns a counter as an int64, or 0 when missing or non-numeric
func (s Stats) Int(key string) int64 {
	switch v := s[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}
