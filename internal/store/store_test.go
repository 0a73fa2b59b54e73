package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/tagflow/internal/domain"
	tflog "github.com/mmcdole/tagflow/internal/log"
)

func snapshot(key string, ids ...domain.VideoID) *domain.SegmentSnapshot {
	snap := &domain.SegmentSnapshot{Key: key, Cursor: "c", HasMore: true, SavedAt: time.Now()}
	for _, id := range ids {
		snap.Posts = append(snap.Posts, domain.Video{ID: id, Title: "t" + string(id)})
	}
	return snap
}

func TestSnapshotStorePersists(t *testing.T) {
	dir := t.TempDir()

	s, err := NewSnapshotStore(dir, "http://localhost:5000/", tflog.NullLogger())
	require.NoError(t, err)
	require.NoError(t, s.SaveSegment(snapshot("scope/gallery?order=desc", "1", "2")))
	require.NoError(t, s.Close())

	// Same server with different casing maps to the same database
	s, err = NewSnapshotStore(dir, "HTTP://LOCALHOST:5000", tflog.NullLogger())
	require.NoError(t, err)
	defer s.Close()

	snap, ok := s.LoadSegment("scope/gallery?order=desc")
	require.True(t, ok)
	assert.Equal(t, "c", snap.Cursor)
	require.Len(t, snap.Posts, 2)
	assert.Equal(t, domain.VideoID("2"), snap.Posts[1].ID)
}

func TestSnapshotStoreDelete(t *testing.T) {
	for _, dir := range []string{"", t.TempDir()} {
		s, err := NewSnapshotStore(dir, "http://x", tflog.NullLogger())
		require.NoError(t, err)

		require.NoError(t, s.SaveSegment(snapshot("scope/gallery?a")))
		require.NoError(t, s.SaveSegment(snapshot("scope/trash?a")))
		require.NoError(t, s.SaveSegment(snapshot("scope/trash?b")))
		require.NoError(t, s.SaveSegment(snapshot("scope/creator/1?a")))

		s.DeleteSegment("scope/gallery?a")
		_, ok := s.LoadSegment("scope/gallery?a")
		assert.False(t, ok)

		s.DeletePrefix("scope/trash")
		_, ok = s.LoadSegment("scope/trash?a")
		assert.False(t, ok)
		_, ok = s.LoadSegment("scope/trash?b")
		assert.False(t, ok)

		_, ok = s.LoadSegment("scope/creator/1?a")
		assert.True(t, ok)

		s.InvalidateAll()
		_, ok = s.LoadSegment("scope/creator/1?a")
		assert.False(t, ok)

		require.NoError(t, s.Close())
	}
}
