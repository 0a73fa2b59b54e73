package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mmcdole/tagflow/internal/domain"
)

// Color palette
var (
	FlowTeal   = lipgloss.Color("#14B8A6")
	SlateDark  = lipgloss.Color("#1F2937")
	SlateLight = lipgloss.Color("#374151")
	DimGray    = lipgloss.Color("#6B7280")
	LightGray  = lipgloss.Color("#9CA3AF")
	White      = lipgloss.Color("#F9FAFB")
	Green      = lipgloss.Color("#10B981")
	Yellow     = lipgloss.Color("#F59E0B")
	Red        = lipgloss.Color("#EF4444")
	Blue       = lipgloss.Color("#3B82F6")
	Pink       = lipgloss.Color("#EC4899")
)

// Borders
var (
	ActiveBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(FlowTeal)
)

// Text styles
var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(White).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(DimGray)

	AccentStyle = lipgloss.NewStyle().
			Foreground(FlowTeal)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Red)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Green)

	WarnStyle = lipgloss.NewStyle().
			Foreground(Yellow)
)

// Modal styles
var (
	ModalStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(FlowTeal).
		Padding(1, 2).
		Background(SlateDark)
)

// Help styles
var (
	HelpKeyStyle = lipgloss.NewStyle().
			Foreground(FlowTeal)

	HelpDescStyle = lipgloss.NewStyle().
			Foreground(DimGray)
)

// Badge styles
var (
	BadgeStyle = lipgloss.NewStyle().
			Foreground(White).
			Background(FlowTeal).
			Padding(0, 1)

	DimBadgeStyle = lipgloss.NewStyle().
			Foreground(LightGray).
			Background(SlateLight).
			Padding(0, 1)
)

// Raw pending marker (unstyled)
const PendingChar = "…"

// PlatformColor returns the badge color for a platform
func PlatformColor(p domain.Platform) lipgloss.Color {
	switch p {
	case domain.PlatformTikTok:
		return Pink
	case domain.PlatformInstagram:
		return Yellow
	case domain.PlatformYouTube:
		return Red
	case domain.PlatformTwitter:
		return Blue
	default:
		return DimGray
	}
}

// PlatformTag returns a fixed-width short platform label
func PlatformTag(p domain.Platform) string {
	switch p {
	case domain.PlatformTikTok:
		return "TT"
	case domain.PlatformInstagram:
		return "IG"
	case domain.PlatformYouTube:
		return "YT"
	case domain.PlatformTwitter:
		return "TW"
	default:
		return "--"
	}
}

// Truncate truncates a string to the given display width with ellipsis
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}

// RenderListRow renders a complete list row with uniform background when selected.
// Each part is styled separately so ANSI resets do not clear the row background.
func RenderListRow(parts []RowPart, selected bool, width int) string {
	var b strings.Builder
	visibleLen := 0

	for _, part := range parts {
		style := lipgloss.NewStyle()
		switch {
		case part.Foreground != nil:
			style = style.Foreground(*part.Foreground)
		case selected:
			style = style.Foreground(White)
		default:
			style = style.Foreground(LightGray)
		}
		if selected {
			style = style.Background(SlateLight)
		}
		b.WriteString(style.Render(part.Text))
		visibleLen += lipgloss.Width(part.Text)
	}

	fill := lipgloss.NewStyle()
	if selected {
		fill = fill.Background(SlateLight)
	}

	// Subtract 2 for left/right margin
	if pad := width - visibleLen - 2; pad > 0 {
		b.WriteString(fill.Render(strings.Repeat(" ", pad)))
	}
	margin := fill.Render(" ")
	return margin + b.String() + margin
}

// RowPart represents a part of a row with optional foreground color
type RowPart struct {
	Text       string
	Foreground *lipgloss.Color
}
