package tui

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/tagflow/internal/domain"
	tflog "github.com/mmcdole/tagflow/internal/log"
	"github.com/mmcdole/tagflow/internal/realtime"
	"github.com/mmcdole/tagflow/internal/segment"
	"github.com/mmcdole/tagflow/internal/service"
)

type fakeRepo struct {
	mu      sync.Mutex
	videos  map[domain.Scope][]domain.Video
	deleted []domain.VideoID
}

func (f *fakeRepo) ListVideos(ctx context.Context, req domain.PageRequest) (*domain.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []domain.Video
	for _, v := range f.videos[req.Scope] {
		if req.Filters.Platform != "" && v.Platform != req.Filters.Platform {
			continue
		}
		if len(req.Filters.Creators) > 0 && !slices.Contains(req.Filters.Creators, v.Creator) {
			continue
		}
		items = append(items, v)
	}
	return &domain.Page{Items: items}, nil
}

func (f *fakeRepo) UpdateVideo(ctx context.Context, id domain.VideoID, c domain.VideoChanges) (*domain.Video, error) {
	return nil, nil
}

func (f *fakeRepo) BulkUpdate(ctx context.Context, ids []domain.VideoID, c domain.VideoChanges) (domain.BulkResult, error) {
	return domain.BulkResult{Succeeded: ids}, nil
}

func (f *fakeRepo) DeleteVideo(ctx context.Context, id domain.VideoID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeRepo) BulkDelete(ctx context.Context, ids []domain.VideoID) (domain.BulkResult, error) {
	return domain.BulkResult{Succeeded: ids}, nil
}

func (f *fakeRepo) RestoreVideo(ctx context.Context, id domain.VideoID) error { return nil }

func (f *fakeRepo) Stats(ctx context.Context) (domain.Stats, error) {
	return domain.Stats{"total_videos": float64(2)}, nil
}

func (f *fakeRepo) TrashStats(ctx context.Context) (domain.Stats, error) {
	return domain.Stats{"total_deleted": float64(1)}, nil
}

type fakePlayer struct{ played []domain.Video }

func (p *fakePlayer) Play(v domain.Video) error {
	p.played = append(p.played, v)
	return nil
}

type refusingDialer struct{}

func (refusingDialer) Dial(ctx context.Context, url string) (realtime.Conn, error) {
	return nil, errors.New("refused")
}

func newTestModel(t *testing.T) (Model, *fakeRepo, *fakePlayer) {
	t.Helper()
	return newTestModelWith(t, nil)
}

func newTestModelWith(t *testing.T, rt *realtime.Client) (Model, *fakeRepo, *fakePlayer) {
	t.Helper()
	repo := &fakeRepo{videos: map[domain.Scope][]domain.Video{
		domain.GalleryScope: {
			{ID: "1", Title: "cat video", Platform: domain.PlatformTikTok, Creator: "Alice Cats", CreatorID: "c1", FilePath: "/m/1.mp4"},
			{ID: "2", Title: "dog video", Platform: domain.PlatformYouTube, Creator: "Bob Dogs", CreatorID: "c2", FilePath: "/m/2.mp4"},
		},
		domain.TrashScope:         {{ID: "9", Title: "old clip", Deleted: true}},
		domain.CreatorScope("c2"): {{ID: "2", Title: "dog video", CreatorID: "c2"}},
	}}
	cache := segment.NewCache(segment.Options{Logger: tflog.NullLogger()})
	g := service.NewGallery(repo, cache, service.GalleryOptions{Logger: tflog.NullLogger()})
	t.Cleanup(g.Close)

	player := &fakePlayer{}
	m := NewModel(Options{Gallery: g, Player: player, Realtime: rt, Logger: tflog.NullLogger()})
	t.Cleanup(m.Shutdown)

	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model), repo, player
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends a key and runs the resulting command, feeding its message back
func press(t *testing.T, m Model, s string) Model {
	t.Helper()
	next, cmd := m.Update(keyMsg(s))
	m = next.(Model)
	return run(t, m, cmd)
}

func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		return m
	}
	msg := cmd()
	if msg == nil {
		return m
	}
	next, _ := m.Update(msg)
	m = next.(Model)
	// Store transitions normally arrive through the bridge
	next, _ = m.Update(StoreChangedMsg{State: m.Store().State()})
	return next.(Model)
}

// typeKeys feeds keys without running the resulting commands
func typeKeys(m Model, keys ...tea.KeyMsg) Model {
	for _, k := range keys {
		next, _ := m.Update(k)
		m = next.(Model)
	}
	return m
}

func loadFirst(t *testing.T, m Model) Model {
	t.Helper()
	return run(t, m, m.loadIfNeeded())
}

func TestModelLoadsGallery(t *testing.T) {
	m, _, _ := newTestModel(t)
	m = loadFirst(t, m)

	require.Len(t, m.List.Videos(), 2)
	assert.Equal(t, domain.VideoID("1"), m.List.Selected().ID)
	assert.Contains(t, m.View(), "cat video")
}

func TestModelNavigateAndPlay(t *testing.T) {
	m, _, player := newTestModel(t)
	m = loadFirst(t, m)

	m = press(t, m, "j")
	assert.Equal(t, domain.VideoID("2"), m.List.Selected().ID)

	m = press(t, m, "enter")
	require.Len(t, player.played, 1)
	assert.Equal(t, domain.VideoID("2"), player.played[0].ID)
	assert.Contains(t, m.StatusMsg, "dog video")
}

func TestModelScopeSwitch(t *testing.T) {
	m, _, _ := newTestModel(t)
	m = loadFirst(t, m)

	m = press(t, m, "2")
	assert.True(t, m.Scope().IsTrash())
	require.Len(t, m.List.Videos(), 1)
	assert.Equal(t, domain.VideoID("9"), m.List.Selected().ID)

	m = press(t, m, "1")
	assert.Equal(t, domain.GalleryScope, m.Scope())
	assert.Len(t, m.List.Videos(), 2, "gallery segment served from cache")

	m = press(t, m, "j")
	m = press(t, m, "c")
	assert.Equal(t, domain.CreatorScope("c2"), m.Scope())
	assert.Len(t, m.List.Videos(), 1)
}

func TestModelPlatformCycle(t *testing.T) {
	m, _, _ := newTestModel(t)
	m = loadFirst(t, m)

	m = press(t, m, "p")
	assert.Equal(t, domain.PlatformTikTok, m.Store().Filters().Platform)
	require.Len(t, m.List.Videos(), 1)
	assert.Equal(t, domain.VideoID("1"), m.List.Selected().ID)

	m = press(t, m, "esc")
	assert.Empty(t, m.Store().Filters().Platform)
	assert.Len(t, m.List.Videos(), 2)
}

func TestModelCreatorFilter(t *testing.T) {
	m, _, _ := newTestModel(t)
	m = loadFirst(t, m)

	m = press(t, m, "C")
	require.True(t, m.Prompt.IsVisible())
	assert.Equal(t, []string{"Alice Cats", "Bob Dogs"}, m.Prompt.Suggestions())

	m = typeKeys(m, keyMsg("b"), keyMsg("o"))
	assert.Equal(t, []string{"Bob Dogs"}, m.Prompt.Suggestions())

	m = typeKeys(m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, "Bob Dogs; ", m.Prompt.Value())
	assert.Equal(t, []string{"Alice Cats"}, m.Prompt.Suggestions(), "chosen names are not suggested again")

	next, cmd := m.Update(keyMsg("enter"))
	m = run(t, next.(Model), cmd)
	assert.False(t, m.Prompt.IsVisible())
	assert.Equal(t, []string{"Bob Dogs"}, m.Store().Filters().Creators)
	require.Len(t, m.List.Videos(), 1)
	assert.Equal(t, domain.VideoID("2"), m.List.Selected().ID)
	assert.Contains(t, m.View(), "by Bob Dogs")

	m = press(t, m, "esc")
	assert.Empty(t, m.Store().Filters().Creators)
	assert.Len(t, m.List.Videos(), 2)
}

func TestSplitCreators(t *testing.T) {
	assert.Equal(t, []string{"a, b", "c"}, splitCreators(" a, b ;; c; "))
	assert.Nil(t, splitCreators("  "))
	assert.Equal(t, "c", currentCreator("a; c"))
}

func TestModelDeleteConfirm(t *testing.T) {
	m, repo, _ := newTestModel(t)
	m = loadFirst(t, m)

	m = press(t, m, "d")
	assert.Equal(t, StateConfirmDelete, m.State)
	m = press(t, m, "n")
	assert.Equal(t, StateBrowsing, m.State)
	assert.Empty(t, repo.deleted)

	m = press(t, m, "d")
	m = press(t, m, "y")
	assert.Equal(t, []domain.VideoID{"1"}, repo.deleted)
	assert.Equal(t, "Moved to trash", m.StatusMsg)
	require.Len(t, m.List.Videos(), 1)
	assert.Equal(t, domain.VideoID("2"), m.List.Selected().ID)
}

func TestModelRealtimeStatus(t *testing.T) {
	m, _, _ := newTestModel(t)

	next, _ := m.Update(MaxReconnectsMsg{Event: realtime.MaxReconnectsEvent{Attempts: 11}})
	m = next.(Model)
	assert.True(t, m.ConnGaveUp)
	assert.True(t, m.StatusIsErr)

	next, _ = m.Update(ClearStatusMsg{Seq: m.statusSeq - 1})
	m = next.(Model)
	assert.NotEmpty(t, m.StatusMsg, "stale clear ignored")

	next, _ = m.Update(ClearStatusMsg{Seq: m.statusSeq})
	assert.Empty(t, next.(Model).StatusMsg)
}

func TestModelPicksUpLatchedGiveUp(t *testing.T) {
	rt := realtime.NewClient(realtime.Options{
		URL:            "ws://test",
		Dialer:         refusingDialer{},
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		MaxAttempts:    1,
		Logger:         tflog.NullLogger(),
	})
	m, _, _ := newTestModelWith(t, rt)

	rt.Connect(context.Background())
	rt.Wait()
	require.True(t, rt.GaveUp())

	// The one-shot give-up message never arrives; the next bridged message still shows it
	next, _ := m.Update(bridgeMsg{msg: StatusMsg{Message: "busy"}})
	m = next.(Model)
	assert.True(t, m.ConnGaveUp)
	assert.Equal(t, realtime.Disconnected, m.ConnState)
	assert.Contains(t, m.View(), "offline (R)")
}

func TestModelHelp(t *testing.T) {
	m, _, _ := newTestModel(t)
	m = press(t, m, "?")
	assert.Equal(t, StateHelp, m.State)
	assert.Contains(t, m.View(), "jump to title")
	m = press(t, m, "x")
	assert.Equal(t, StateBrowsing, m.State)
}

func TestNextPlatform(t *testing.T) {
	assert.Equal(t, domain.PlatformTikTok, nextPlatform(""))
	assert.Equal(t, domain.PlatformInstagram, nextPlatform(domain.PlatformTikTok))
	assert.Equal(t, domain.Platform(""), nextPlatform(domain.PlatformTwitter))
}

func TestBridge(t *testing.T) {
	b := NewBridge(1)
	b.Send(StatusMsg{Message: "a"})
	b.Send(StatusMsg{Message: "dropped"})

	msg := b.Next()()
	require.IsType(t, bridgeMsg{}, msg)
	assert.Equal(t, StatusMsg{Message: "a"}, msg.(bridgeMsg).msg)
}
