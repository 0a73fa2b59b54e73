package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/tagflow/internal/domain"
	"github.com/mmcdole/tagflow/internal/pagination"
	"github.com/mmcdole/tagflow/internal/service"
)

// Command factories for async operations

// Mutation actions reported in MutationDoneMsg
const (
	ActionEdit    = "edit"
	ActionDelete  = "delete"
	ActionRestore = "restore"
)

const mutationTimeout = 15 * time.Second

// LoadFirstPageCmd loads the first page of the store's current segment
func LoadFirstPageCmd(ctx context.Context, store *pagination.Store) tea.Cmd {
	return func() tea.Msg {
		err := store.LoadFirstPage(ctx)
		return LoadDoneMsg{Scope: store.Scope(), Err: err}
	}
}

// SetFiltersCmd switches the store to a new filter set
func SetFiltersCmd(ctx context.Context, store *pagination.Store, filters domain.Filters) tea.Cmd {
	return func() tea.Msg {
		err := store.SetFilters(ctx, filters)
		return LoadDoneMsg{Scope: store.Scope(), Err: err}
	}
}

// RefreshCmd reloads the current segment from the first page
func RefreshCmd(ctx context.Context, store *pagination.Store) tea.Cmd {
	return func() tea.Msg {
		err := store.Refresh(ctx)
		return LoadDoneMsg{Scope: store.Scope(), Err: err}
	}
}

// UpdateVideoCmd applies an optimistic metadata edit
func UpdateVideoCmd(ctx context.Context, g *service.Gallery, id domain.VideoID, changes domain.VideoChanges) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, mutationTimeout)
		defer cancel()

		_, err := g.UpdateVideo(ctx, id, changes)
		return MutationDoneMsg{Action: ActionEdit, VideoID: id, Err: err}
	}
}

// DeleteVideoCmd moves a video to the trash
func DeleteVideoCmd(ctx context.Context, g *service.Gallery, id domain.VideoID) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, mutationTimeout)
		defer cancel()

		err := g.DeleteVideo(ctx, id)
		return MutationDoneMsg{Action: ActionDelete, VideoID: id, Err: err}
	}
}

// RestoreVideoCmd restores a video from the trash
func RestoreVideoCmd(ctx context.Context, g *service.Gallery, id domain.VideoID) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, mutationTimeout)
		defer cancel()

		err := g.RestoreVideo(ctx, id)
		return MutationDoneMsg{Action: ActionRestore, VideoID: id, Err: err}
	}
}

// LoadTotalsCmd seeds the gallery and trash counters
func LoadTotalsCmd(ctx context.Context, g *service.Gallery) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, mutationTimeout)
		defer cancel()
		return TotalsLoadedMsg{Err: g.LoadTotals(ctx)}
	}
}

// PlayCmd launches the external player
func PlayCmd(p Player, v domain.Video) tea.Cmd {
	return func() tea.Msg {
		if err := p.Play(v); err != nil {
			return StatusMsg{Message: "Play failed: " + err.Error(), IsError: true}
		}
		return PlaybackStartedMsg{Video: v}
	}
}

// ClearStatusCmd clears the status message after a delay unless a newer one replaced it
func ClearStatusCmd(seq int, delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(time.Time) tea.Msg {
		return ClearStatusMsg{Seq: seq}
	})
}
