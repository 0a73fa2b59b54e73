package components

import (
	"fmt"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/tagflow/internal/domain"
)

func videos(n int) []domain.Video {
	out := make([]domain.Video, n)
	for i := range out {
		out[i] = domain.Video{ID: domain.VideoID(fmt.Sprint(i)), Title: fmt.Sprintf("video %d", i)}
	}
	return out
}

func down() tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")} }

func TestVideoListScrollContainer(t *testing.T) {
	l := NewVideoList("Gallery")
	l.SetSize(80, 15) // 10 visible rows
	l.SetItems(videos(30))

	assert.Equal(t, 10, l.ViewportHeight())
	assert.Equal(t, 30, l.ContentHeight())
	assert.Equal(t, 0, l.ScrollOffset())

	for i := 0; i < 12; i++ {
		_, moved := l.Update(down())
		assert.True(t, moved)
	}
	assert.Equal(t, 12, l.SelectedIndex())
	assert.Equal(t, 3, l.ScrollOffset())

	_, moved := l.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("G")})
	assert.True(t, moved)
	assert.Equal(t, 20, l.ScrollOffset())

	_, moved = l.Update(down())
	assert.False(t, moved, "already at the end")
}

func TestVideoListKeepsSelectionAcrossUpdates(t *testing.T) {
	l := NewVideoList("Gallery")
	l.SetSize(80, 15)
	l.SetItems(videos(5))
	l.Select(3)

	// A page merge shifts nothing; a removal above the cursor moves it
	items := videos(5)
	l.SetItems(append(items[:1], items[2:]...))
	require.NotNil(t, l.Selected())
	assert.Equal(t, domain.VideoID("3"), l.Selected().ID)

	// The selected row disappears: cursor clamps
	l.SetItems(videos(2))
	assert.Equal(t, 1, l.SelectedIndex())

	l.SetItems(nil)
	assert.Nil(t, l.Selected())
}

func TestVideoListView(t *testing.T) {
	l := NewVideoList("Gallery")
	l.SetSize(60, 12)

	l.SetLoadState(true, false, false, nil)
	assert.Contains(t, l.View(), "Loading")

	l.SetLoadState(false, false, false, assert.AnError)
	assert.Contains(t, l.View(), assert.AnError.Error())

	l.SetItems([]domain.Video{{ID: "1", Title: "hello", Pending: true}})
	l.SetLoadState(false, true, true, nil)
	view := l.View()
	assert.Contains(t, view, "hello")
	assert.Contains(t, view, "Loading more")
}

func TestFuzzyJump(t *testing.T) {
	j := NewFuzzyJump()
	j.SetSize(100, 30)
	j.Show([]domain.Video{{ID: "1", Title: "Sunset timelapse"}, {ID: "2", Title: "Cat compilation"}})

	var chosen bool
	for _, r := range "cat" {
		j, _, chosen = j.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		assert.False(t, chosen)
	}
	j, _, chosen = j.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.True(t, chosen)
	require.NotNil(t, j.Selected())
	assert.Equal(t, 1, j.Selected().Index)

	j, _, _ = j.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, j.IsVisible())
}
