package tui

import tea "github.com/charmbracelet/bubbletea"

// Bridge forwards events raised on background goroutines into the Bubble Tea loop.
type Bridge struct {
	ch chan tea.Msg
}

// NewBridge creates a bridge with a buffer of size messages
func NewBridge(size int) *Bridge {
	return &Bridge{ch: make(chan tea.Msg, size)}
}

// Send queues msg (non-blocking if full)
func (b *Bridge) Send(msg tea.Msg) {
	select {
	case b.ch <- msg:
	default: // Drop rather than stall the emitter
	}
}

// Next waits for the next queued message. Re-issue it after every delivery.
func (b *Bridge) Next() tea.Cmd {
	return func() tea.Msg {
		return bridgeMsg{msg: <-b.ch}
	}
}

// bridgeMsg marks a message that came through the bridge so Update can re-arm Next
type bridgeMsg struct {
	msg tea.Msg
}
