package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/tagflow/internal/domain"
	tflog "github.com/mmcdole/tagflow/internal/log"
	"github.com/mmcdole/tagflow/internal/realtime"
	"github.com/mmcdole/tagflow/internal/segment"
)

type mockRepo struct {
	mock.Mock
	pages map[domain.Scope][]domain.Video
}

func (m *mockRepo) ListVideos(ctx context.Context, req domain.PageRequest) (*domain.Page, error) {
	return &domain.Page{Items: m.pages[req.Scope]}, nil
}

func (m *mockRepo) UpdateVideo(ctx context.Context, id domain.VideoID, changes domain.VideoChanges) (*domain.Video, error) {
	args := m.Called(ctx, id, changes)
	v, _ := args.Get(0).(*domain.Video)
	return v, args.Error(1)
}

func (m *mockRepo) BulkUpdate(ctx context.Context, ids []domain.VideoID, changes domain.VideoChanges) (domain.BulkResult, error) {
	args := m.Called(ctx, ids, changes)
	return args.Get(0).(domain.BulkResult), args.Error(1)
}

func (m *mockRepo) DeleteVideo(ctx context.Context, id domain.VideoID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockRepo) BulkDelete(ctx context.Context, ids []domain.VideoID) (domain.BulkResult, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(domain.BulkResult), args.Error(1)
}

func (m *mockRepo) RestoreVideo(ctx context.Context, id domain.VideoID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockRepo) Stats(ctx context.Context) (domain.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.Stats), args.Error(1)
}

func (m *mockRepo) TrashStats(ctx context.Context) (domain.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.Stats), args.Error(1)
}

func vids(ids ...domain.VideoID) []domain.Video {
	out := make([]domain.Video, len(ids))
	for i, id := range ids {
		out[i] = domain.Video{ID: id, Title: "title " + string(id), Creator: "creator " + string(id), UpdatedAt: time.Unix(100, 0)}
	}
	return out
}

func postIDs(posts []domain.Video) []domain.VideoID {
	var out []domain.VideoID
	for _, p := range posts {
		out = append(out, p.ID)
	}
	return out
}

// newTestGallery loads the gallery, creator and trash scopes from repo.pages
func newTestGallery(t *testing.T, repo *mockRepo) *Gallery {
	t.Helper()
	cache := segment.NewCache(segment.Options{Logger: tflog.NullLogger()})
	g := NewGallery(repo, cache, GalleryOptions{Logger: tflog.NullLogger()})
	t.Cleanup(g.Close)
	for scope := range repo.pages {
		require.NoError(t, g.Store(scope).LoadFirstPage(context.Background()))
	}
	return g
}

func strPtr(s string) *string { return &s }

func TestUpdateVideoOptimistic(t *testing.T) {
	repo := &mockRepo{pages: map[domain.Scope][]domain.Video{
		domain.GalleryScope:       vids("1", "2"),
		domain.CreatorScope("c1"): vids("1"),
	}}
	g := newTestGallery(t, repo)
	changes := domain.VideoChanges{Title: strPtr("renamed")}

	repo.On("UpdateVideo", mock.Anything, domain.VideoID("1"), changes).
		Run(func(mock.Arguments) {
			v, ok := g.Cache().Lookup("1")
			require.True(t, ok)
			assert.True(t, v.Pending, "visible before the server answers")
			assert.Equal(t, "renamed", v.Title)
		}).
		Return(&domain.Video{ID: "1", Title: "renamed", UpdatedAt: time.Unix(200, 0)}, nil).Once()

	v, err := g.UpdateVideo(context.Background(), "1", changes)
	require.NoError(t, err)
	assert.Equal(t, "renamed", v.Title)

	for _, scope := range []domain.Scope{domain.GalleryScope, domain.CreatorScope("c1")} {
		post := g.Store(scope).State().Posts[0]
		assert.Equal(t, "renamed", post.Title)
		assert.False(t, post.Pending)
		assert.Equal(t, time.Unix(200, 0), post.UpdatedAt)
	}
	repo.AssertExpectations(t)
}

func TestUpdateVideoRollsBack(t *testing.T) {
	repo := &mockRepo{pages: map[domain.Scope][]domain.Video{domain.GalleryScope: vids("1")}}
	g := newTestGallery(t, repo)

	repo.On("UpdateVideo", mock.Anything, domain.VideoID("1"), mock.Anything).
		Return(nil, domain.ServerError(500, "db locked")).Once()

	_, err := g.UpdateVideo(context.Background(), "1", domain.VideoChanges{Title: strPtr("nope")})
	assert.Equal(t, domain.KindServer, domain.KindOf(err))

	post := g.Store(domain.GalleryScope).State().Posts[0]
	assert.Equal(t, "title 1", post.Title)
	assert.False(t, post.Pending)
}

func TestBulkUpdatePartial(t *testing.T) {
	repo := &mockRepo{pages: map[domain.Scope][]domain.Video{
		domain.GalleryScope:       vids("1", "2"),
		domain.CreatorScope("c3"): vids("3"),
	}}
	g := newTestGallery(t, repo)
	changes := domain.VideoChanges{EditStatus: strPtr("done")}
	ids := []domain.VideoID{"1", "2", "3"}

	repo.On("BulkUpdate", mock.Anything, ids, changes).Return(domain.BulkResult{
		Succeeded: []domain.VideoID{"1"},
		Failed:    map[domain.VideoID]string{"2": "locked"},
		PerItem:   true,
	}, nil).Once()

	res, err := g.BulkUpdate(context.Background(), ids, changes)
	assert.ErrorIs(t, err, domain.ErrBulkPartial)
	assert.Equal(t, []domain.VideoID{"1"}, res.Succeeded)

	v1, _ := g.Cache().Lookup("1")
	assert.Equal(t, "done", v1.EditStatus)
	assert.False(t, v1.Pending)

	v2, _ := g.Cache().Lookup("2")
	assert.Empty(t, v2.EditStatus, "rejected item rolled back")

	// "3" was not reported: the segment holding it was reset, the rest kept
	_, ok := g.Cache().Lookup("3")
	assert.False(t, ok)
	assert.False(t, g.Store(domain.CreatorScope("c3")).State().InitialLoaded)
	assert.True(t, g.Store(domain.GalleryScope).State().InitialLoaded)
}

func TestBulkUpdateAllOrNothing(t *testing.T) {
	repo := &mockRepo{pages: map[domain.Scope][]domain.Video{domain.GalleryScope: vids("1", "2")}}
	g := newTestGallery(t, repo)
	ids := []domain.VideoID{"1", "2"}

	repo.On("BulkUpdate", mock.Anything, ids, mock.Anything).Return(domain.BulkResult{
		Failed: map[domain.VideoID]string{"1": "read only", "2": "read only"},
	}, nil).Once()

	_, err := g.BulkUpdate(context.Background(), ids, domain.VideoChanges{Difficulty: strPtr("hard")})
	assert.ErrorIs(t, err, domain.ErrBulkPartial)
	for _, p := range g.Store(domain.GalleryScope).State().Posts {
		assert.Empty(t, p.Difficulty)
		assert.False(t, p.Pending)
	}
}

func TestDeleteVideo(t *testing.T) {
	repo := &mockRepo{pages: map[domain.Scope][]domain.Video{
		domain.GalleryScope:       vids("1", "2", "3"),
		domain.CreatorScope("c2"): vids("2"),
		domain.TrashScope:         vids("9"),
	}}
	g := newTestGallery(t, repo)
	g.Store(domain.GalleryScope).SetTotal(3)
	g.Store(domain.TrashScope).SetTotal(1)

	repo.On("DeleteVideo", mock.Anything, domain.VideoID("2")).Return(nil).Once()
	require.NoError(t, g.DeleteVideo(context.Background(), "2"))

	gallery := g.Store(domain.GalleryScope).State()
	assert.Equal(t, []domain.VideoID{"1", "3"}, postIDs(gallery.Posts))
	assert.Equal(t, int64(2), gallery.Total)
	assert.Empty(t, g.Store(domain.CreatorScope("c2")).State().Posts)

	trash := g.Store(domain.TrashScope).State()
	assert.False(t, trash.InitialLoaded, "trash reloads to show the new item")
	assert.Equal(t, int64(2), trash.Total)
}

func TestDeleteVideoFailureLeavesCache(t *testing.T) {
	repo := &mockRepo{pages: map[domain.Scope][]domain.Video{domain.GalleryScope: vids("1")}}
	g := newTestGallery(t, repo)

	repo.On("DeleteVideo", mock.Anything, domain.VideoID("1")).Return(domain.NetworkError(errors.New("offline"))).Once()
	assert.Error(t, g.DeleteVideo(context.Background(), "1"))
	assert.Len(t, g.Store(domain.GalleryScope).State().Posts, 1)
}

func TestBulkDelete(t *testing.T) {
	repo := &mockRepo{pages: map[domain.Scope][]domain.Video{domain.GalleryScope: vids("1", "2", "3")}}
	g := newTestGallery(t, repo)
	ids := []domain.VideoID{"1", "3"}

	repo.On("BulkDelete", mock.Anything, ids).Return(domain.BulkResult{Succeeded: ids}, nil).Once()
	res, err := g.BulkDelete(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, res.Succeeded, 2)
	assert.Equal(t, []domain.VideoID{"2"}, postIDs(g.Store(domain.GalleryScope).State().Posts))
}

func TestRestoreVideo(t *testing.T) {
	repo := &mockRepo{pages: map[domain.Scope][]domain.Video{
		domain.GalleryScope: vids("1"),
		domain.TrashScope:   vids("8", "9"),
	}}
	g := newTestGallery(t, repo)
	g.Store(domain.TrashScope).SetTotal(2)

	repo.On("RestoreVideo", mock.Anything, domain.VideoID("9")).Return(nil).Once()
	require.NoError(t, g.RestoreVideo(context.Background(), "9"))

	trash := g.Store(domain.TrashScope).State()
	assert.Equal(t, []domain.VideoID{"8"}, postIDs(trash.Posts))
	assert.Equal(t, int64(1), trash.Total)
	assert.False(t, g.Store(domain.GalleryScope).State().InitialLoaded)
}

func TestLoadTotals(t *testing.T) {
	repo := &mockRepo{}
	g := newTestGallery(t, repo)
	repo.On("Stats", mock.Anything).Return(domain.Stats{"total_videos": float64(120)}, nil).Once()
	repo.On("TrashStats", mock.Anything).Return(domain.Stats{"total_deleted": float64(4)}, nil).Once()

	require.NoError(t, g.LoadTotals(context.Background()))
	assert.Equal(t, int64(120), g.Store(domain.GalleryScope).State().Total)
	assert.Equal(t, int64(4), g.Store(domain.TrashScope).State().Total)
}

func TestMatchCreators(t *testing.T) {
	repo := &mockRepo{pages: map[domain.Scope][]domain.Video{domain.GalleryScope: vids("1", "2")}}
	g := newTestGallery(t, repo)
	assert.Equal(t, []string{"creator 2"}, g.MatchCreators("tor 2"))
}

func TestWatchInvalidations(t *testing.T) {
	repo := &mockRepo{pages: map[domain.Scope][]domain.Video{domain.GalleryScope: vids("1", "2")}}
	g := newTestGallery(t, repo)
	g.Store(domain.GalleryScope).SetTotal(2)

	inv := realtime.NewInvalidator(g.Cache(), tflog.NullLogger())
	g.WatchInvalidations(inv)
	inv.Apply(realtime.Notification{VideoID: "1", Action: realtime.ActionDelete})

	st := g.Store(domain.GalleryScope).State()
	assert.Equal(t, []domain.VideoID{"2"}, postIDs(st.Posts))
	assert.Equal(t, int64(1), st.Total)
}
