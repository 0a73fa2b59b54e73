package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mmcdole/tagflow/internal/domain"
	"github.com/mmcdole/tagflow/internal/search"
	"github.com/mmcdole/tagflow/internal/tui/styles"
)

const maxJumpResults = 10

// FuzzyJump is a modal that fuzzy-matches titles of the loaded videos
// and jumps the list to the chosen one
type FuzzyJump struct {
	input   textinput.Model
	index   *search.VideoIndex
	results []search.Match
	cursor  int
	visible bool
	width   int
	height  int
}

// NewFuzzyJump creates a hidden jump modal
func NewFuzzyJump() FuzzyJump {
	ti := textinput.New()
	ti.Placeholder = "Jump to title..."
	ti.CharLimit = 100
	ti.Width = 40
	ti.Prompt = "› "
	ti.PromptStyle = styles.AccentStyle
	ti.TextStyle = lipgloss.NewStyle().Foreground(styles.White)
	ti.PlaceholderStyle = styles.DimStyle
	return FuzzyJump{input: ti}
}

// Show indexes videos and focuses the input
func (f *FuzzyJump) Show(videos []domain.Video) {
	f.visible = true
	f.index = search.NewVideoIndex(videos)
	f.results = nil
	f.cursor = 0
	f.input.SetValue("")
	f.input.Focus()
}

// Hide hides the modal
func (f *FuzzyJump) Hide() {
	f.visible = false
	f.input.Blur()
}

// IsVisible returns true if the modal is shown
func (f FuzzyJump) IsVisible() bool { return f.visible }

// SetSize updates the area the modal is centered in
func (f *FuzzyJump) SetSize(width, height int) {
	f.width = width
	f.height = height
	f.input.Width = max(10, min(width*2/3, 80)-10)
}

// Selected returns the highlighted match
func (f FuzzyJump) Selected() *search.Match {
	if f.cursor < 0 || f.cursor >= len(f.results) {
		return nil
	}
	return &f.results[f.cursor]
}

// Update handles input; the bool reports that a result was chosen
func (f FuzzyJump) Update(msg tea.Msg) (FuzzyJump, tea.Cmd, bool) {
	if !f.visible {
		return f, nil, false
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(keyMsg, FuzzyJumpKeys.Escape):
			f.Hide()
			return f, nil, false
		case key.Matches(keyMsg, FuzzyJumpKeys.Enter):
			return f, nil, len(f.results) > 0
		case key.Matches(keyMsg, FuzzyJumpKeys.Down):
			if f.cursor < min(len(f.results), maxJumpResults)-1 {
				f.cursor++
			}
			return f, nil, false
		case key.Matches(keyMsg, FuzzyJumpKeys.Up):
			if f.cursor > 0 {
				f.cursor--
			}
			return f, nil, false
		}
	}

	prev := f.input.Value()
	var cmd tea.Cmd
	f.input, cmd = f.input.Update(msg)
	if f.input.Value() != prev && f.index != nil {
		f.results = f.index.Find(f.input.Value())
		f.cursor = 0
	}
	return f, cmd, false
}

// View renders the modal centered in its area
func (f FuzzyJump) View() string {
	if !f.visible {
		return ""
	}
	modalWidth := max(40, min(f.width*2/3, 80))

	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render("Jump to video"))
	b.WriteString("\n\n")
	b.WriteString(f.input.View())
	b.WriteString("\n\n")
	f.renderResults(&b, modalWidth-8)

	content := lipgloss.NewStyle().Width(modalWidth - 4).Render(b.String())
	return lipgloss.Place(f.width, f.height, lipgloss.Center, lipgloss.Center,
		styles.ModalStyle.Width(modalWidth).Render(content))
}

func (f FuzzyJump) renderResults(b *strings.Builder, width int) {
	if len(f.results) == 0 {
		if f.input.Value() != "" {
			b.WriteString(styles.DimStyle.Render("No matches among loaded videos"))
		}
		return
	}

	shown := min(len(f.results), maxJumpResults)
	for i := 0; i < shown; i++ {
		m := f.results[i]
		tag := lipgloss.NewStyle().Foreground(styles.PlatformColor(m.Video.Platform)).Render(styles.PlatformTag(m.Video.Platform))
		b.WriteString(tag + " ")
		b.WriteString(highlightMatches(styles.Truncate(m.Video.DisplayTitle(), width-3), m.MatchedIndexes, i == f.cursor))
		b.WriteString("\n")
	}
	if len(f.results) > shown {
		b.WriteString(styles.DimStyle.Render(fmt.Sprintf("... and %d more", len(f.results)-shown)))
	}
}

// highlightMatches renders text with the matched runes emphasized
func highlightMatches(text string, matched []int, selected bool) string {
	base := lipgloss.NewStyle().Foreground(styles.LightGray)
	hit := lipgloss.NewStyle().Foreground(styles.FlowTeal).Bold(true)
	if selected {
		base = base.Foreground(styles.White).Background(styles.SlateLight)
		hit = hit.Background(styles.SlateLight)
	}
	if len(matched) == 0 {
		return base.Render(text)
	}

	set := make(map[int]bool, len(matched))
	for _, i := range matched {
		set[i] = true
	}

	// Batch consecutive runes with the same style
	var out strings.Builder
	runes := []rune(text)
	for i := 0; i < len(runes); {
		isHit := set[i]
		j := i
		for j < len(runes) && set[j] == isHit {
			j++
		}
		if isHit {
			out.WriteString(hit.Render(string(runes[i:j])))
		} else {
			out.WriteString(base.Render(string(runes[i:j])))
		}
		i = j
	}
	return out.String()
}
