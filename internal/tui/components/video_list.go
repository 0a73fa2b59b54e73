package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mmcdole/tagflow/internal/domain"
	"github.com/mmcdole/tagflow/internal/tui/styles"
)

const (
	// Border adds 1 char on each side
	BorderWidth  = 2
	BorderHeight = 2

	// Title line plus the "↑ more" and footer lines
	ChromeLines = 3
)

// VideoList is the scrollable gallery list. It satisfies scroll.Container
// with rows as the unit.
type VideoList struct {
	videos []domain.Video

	// Selection
	cursor     int
	offset     int
	maxVisible int

	// Dimensions
	width  int
	height int

	title string

	loading      bool // First page in flight
	loadingMore  bool
	hasMore      bool
	spinner      string // Rendered spinner frame
	errText      string
}

// NewVideoList creates an empty list
func NewVideoList(title string) *VideoList {
	return &VideoList{title: title}
}

// ScrollOffset is the index of the first visible row
func (l *VideoList) ScrollOffset() int { return l.offset }

// ViewportHeight is the number of rows that fit
func (l *VideoList) ViewportHeight() int { return l.maxVisible }

// ContentHeight is the number of loaded rows
func (l *VideoList) ContentHeight() int { return len(l.videos) }

// Update handles navigation keys and reports whether the viewport moved
func (l *VideoList) Update(msg tea.Msg) (tea.Cmd, bool) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok || len(l.videos) == 0 {
		return nil, false
	}

	prevCursor, prevOffset := l.cursor, l.offset
	count := len(l.videos)
	page := max(1, l.maxVisible)

	switch {
	case key.Matches(keyMsg, VideoListKeys.Down):
		l.cursor++
	case key.Matches(keyMsg, VideoListKeys.Up):
		l.cursor--
	case key.Matches(keyMsg, VideoListKeys.Home):
		l.cursor = 0
	case key.Matches(keyMsg, VideoListKeys.End):
		l.cursor = count - 1
	case key.Matches(keyMsg, VideoListKeys.HalfDown):
		l.cursor += page / 2
	case key.Matches(keyMsg, VideoListKeys.HalfUp):
		l.cursor -= page / 2
	case key.Matches(keyMsg, VideoListKeys.PageDown):
		l.cursor += page
	case key.Matches(keyMsg, VideoListKeys.PageUp):
		l.cursor -= page
	default:
		return nil, false
	}
	l.cursor = max(0, min(l.cursor, count-1))
	l.ensureVisible()
	return nil, l.cursor != prevCursor || l.offset != prevOffset
}

// SetSize updates the list dimensions
func (l *VideoList) SetSize(width, height int) {
	l.width = width
	l.height = height
	l.maxVisible = max(1, height-BorderHeight-ChromeLines)
	l.ensureVisible()
}

// SetTitle sets the header line
func (l *VideoList) SetTitle(title string) { l.title = title }

// SetItems replaces the rows, keeping the selection on the same video when it survives
func (l *VideoList) SetItems(videos []domain.Video) {
	var selectedID domain.VideoID
	if v := l.Selected(); v != nil {
		selectedID = v.ID
	}
	l.videos = videos

	if selectedID != "" {
		for i, v := range videos {
			if v.ID == selectedID {
				l.cursor = i
				l.ensureVisible()
				return
			}
		}
	}
	l.cursor = max(0, min(l.cursor, len(videos)-1))
	l.ensureVisible()
}

// SetLoadState mirrors the store's loading flags and error
func (l *VideoList) SetLoadState(loading, loadingMore, hasMore bool, err error) {
	l.loading = loading
	l.loadingMore = loadingMore
	l.hasMore = hasMore
	l.errText = ""
	if err != nil {
		l.errText = err.Error()
	}
}

// SetSpinner sets the rendered loading indicator
func (l *VideoList) SetSpinner(view string) { l.spinner = view }

// Reset moves the selection to the top
func (l *VideoList) Reset() {
	l.cursor = 0
	l.offset = 0
}

// Selected returns the highlighted video
func (l *VideoList) Selected() *domain.Video {
	if l.cursor < 0 || l.cursor >= len(l.videos) {
		return nil
	}
	return &l.videos[l.cursor]
}

// SelectedIndex returns the cursor position
func (l *VideoList) SelectedIndex() int { return l.cursor }

// Select moves the cursor to idx
func (l *VideoList) Select(idx int) {
	if idx < 0 || idx >= len(l.videos) {
		return
	}
	l.cursor = idx
	l.ensureVisible()
}

// Videos returns the loaded rows
func (l *VideoList) Videos() []domain.Video { return l.videos }

func (l *VideoList) ensureVisible() {
	if l.maxVisible <= 0 {
		return
	}
	if l.cursor < l.offset {
		l.offset = l.cursor
	}
	if l.cursor >= l.offset+l.maxVisible {
		l.offset = l.cursor - l.maxVisible + 1
	}
	l.offset = max(0, min(l.offset, len(l.videos)-1))
}

// View renders the list inside a border
func (l *VideoList) View() string {
	style := styles.ActiveBorder
	frameW, frameH := style.GetFrameSize()
	return style.
		Width(max(0, l.width-frameW)).
		Height(max(0, l.height-frameH)).
		Render(l.renderContent())
}

func (l *VideoList) renderContent() string {
	itemWidth := max(10, l.width-BorderWidth)
	titleLine := styles.AccentStyle.Render(styles.Truncate(l.title, itemWidth))

	if len(l.videos) == 0 {
		msg := styles.DimStyle.Render("No videos")
		switch {
		case l.loading:
			msg = styles.DimStyle.Render(l.spinner + " Loading...")
		case l.errText != "":
			msg = styles.ErrorStyle.Render(styles.Truncate(l.errText, itemWidth))
		}
		return titleLine + "\n \n" + msg + "\n "
	}

	end := min(l.offset+l.maxVisible, len(l.videos))
	lines := make([]string, 0, end-l.offset)
	for i := l.offset; i < end; i++ {
		lines = append(lines, renderVideoRow(l.videos[i], i == l.cursor, itemWidth))
	}

	// Always reserve the header and footer lines to prevent layout shifts
	header := " "
	if l.offset > 0 {
		header = styles.DimStyle.Render("↑ more")
	}
	footer := " "
	switch {
	case l.loadingMore:
		footer = styles.DimStyle.Render(l.spinner + " Loading more...")
	case l.errText != "":
		footer = styles.ErrorStyle.Render(styles.Truncate("⚠ "+l.errText+" (r to retry)", itemWidth))
	case end < len(l.videos) || l.hasMore:
		footer = styles.DimStyle.Render("↓ more")
	}

	return titleLine + "\n" + header + "\n" + strings.Join(lines, "\n") + "\n" + footer
}

func renderVideoRow(v domain.Video, selected bool, width int) string {
	tagFg := styles.PlatformColor(v.Platform)
	meta := v.Creator
	if d := v.FormattedDuration(); d != "" {
		meta = fmt.Sprintf("%s · %s", meta, d)
	}
	if v.EditStatus != "" {
		meta += " · " + v.EditStatus
	}

	marker := " "
	markerFg := styles.Yellow
	if v.Pending {
		marker = styles.PendingChar
	}

	// tag(2) + spaces(2) + marker(1) + margins(2)
	avail := max(5, width-7)
	metaWidth := min(lipgloss.Width(meta), avail/3)
	title := styles.Truncate(v.DisplayTitle(), avail-metaWidth-1)
	metaFg := styles.DimGray

	return styles.RenderListRow([]styles.RowPart{
		{Text: styles.PlatformTag(v.Platform), Foreground: &tagFg},
		{Text: " " + title + " "},
		{Text: styles.Truncate(meta, metaWidth), Foreground: &metaFg},
		{Text: " " + marker, Foreground: &markerFg},
	}, selected, width)
}
