package components

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mmcdole/tagflow/internal/tui/styles"
)

// InputModal is a single-line prompt used for the search and creator filters
type InputModal struct {
	visible     bool
	title       string
	hint        string
	input       textinput.Model
	suggestions []string
}

// NewInputModal creates a hidden prompt
func NewInputModal() InputModal {
	ti := textinput.New()
	ti.CharLimit = 100
	ti.Width = 40
	ti.Prompt = "/ "
	ti.PromptStyle = styles.AccentStyle
	ti.TextStyle = lipgloss.NewStyle().Foreground(styles.White)
	ti.PlaceholderStyle = styles.DimStyle
	return InputModal{input: ti}
}

// Show displays the prompt prefilled with value
func (m *InputModal) Show(title, value, hint string) {
	m.visible = true
	m.title = title
	m.hint = hint
	m.suggestions = nil
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.input.Focus()
}

// SetValue replaces the input text and moves the cursor to the end
func (m *InputModal) SetValue(value string) {
	m.input.SetValue(value)
	m.input.CursorEnd()
}

// SetSuggestions sets the candidates listed under the input; the first is highlighted
func (m *InputModal) SetSuggestions(s []string) { m.suggestions = s }

// Suggestions returns the listed candidates
func (m InputModal) Suggestions() []string { return m.suggestions }

// Hide dismisses the prompt
func (m *InputModal) Hide() {
	m.visible = false
	m.input.Blur()
}

// IsVisible returns whether the prompt is shown
func (m InputModal) IsVisible() bool { return m.visible }

// Value returns the current input
func (m InputModal) Value() string { return m.input.Value() }

// Update handles input events, returns (modal, cmd, submitted)
func (m InputModal) Update(msg tea.Msg) (InputModal, tea.Cmd, bool) {
	if !m.visible {
		return m, nil, false
	}
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "enter":
			m.Hide()
			return m, nil, true
		case "esc":
			m.Hide()
			return m, nil, false
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd, false
}

// View renders the prompt
func (m InputModal) View() string {
	if !m.visible {
		return ""
	}
	const modalWidth = 48

	rows := []string{
		lipgloss.NewStyle().Foreground(styles.White).Bold(true).Width(modalWidth).Render(m.title),
		"",
		lipgloss.NewStyle().Width(modalWidth).Render(m.input.View()),
	}
	for i, sug := range m.suggestions {
		style := styles.DimStyle
		if i == 0 {
			style = styles.AccentStyle
		}
		rows = append(rows, style.Width(modalWidth).Render("  "+sug))
	}
	if m.hint != "" {
		rows = append(rows, "", styles.DimStyle.Width(modalWidth).Render(m.hint))
	}
	return styles.ModalStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
