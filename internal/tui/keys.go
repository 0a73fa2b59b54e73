package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the gallery-level key bindings
type KeyMap struct {
	// Scopes
	Gallery      key.Binding
	Trash        key.Binding
	Creator      key.Binding
	Subscription key.Binding

	// Filters
	Search        key.Binding
	CreatorFilter key.Binding
	Sort          key.Binding
	Platform      key.Binding
	ClearFilters  key.Binding
	Jump          key.Binding

	// Actions
	Refresh   key.Binding
	Play      key.Binding
	Edit      key.Binding
	Delete    key.Binding
	Restore   key.Binding
	Reconnect key.Binding
	Help      key.Binding
	Quit      key.Binding

	// Confirmations
	Confirm key.Binding
	Deny    key.Binding
}

// DefaultKeyMap returns the default key bindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Gallery: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "gallery"),
		),
		Trash: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "trash"),
		),
		Creator: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "creator of selection"),
		),
		Subscription: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "subscription of selection"),
		),

		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "search"),
		),
		CreatorFilter: key.NewBinding(
			key.WithKeys("C"),
			key.WithHelp("C", "filter by creators"),
		),
		Sort: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "toggle sort order"),
		),
		Platform: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "cycle platform"),
		),
		ClearFilters: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "clear filters"),
		),
		Jump: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "jump to title"),
		),

		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Play: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "play"),
		),
		Edit: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "cycle edit status"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "move to trash"),
		),
		Restore: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "restore"),
		),
		Reconnect: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "reconnect live updates"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),

		Confirm: key.NewBinding(
			key.WithKeys("y", "Y"),
			key.WithHelp("y", "confirm"),
		),
		Deny: key.NewBinding(
			key.WithKeys("n", "N", "esc"),
			key.WithHelp("n/esc", "cancel"),
		),
	}
}

// Keys is the global key bindings instance
var Keys = DefaultKeyMap()

// helpBindings is the order keys appear on the help screen
func helpBindings() []key.Binding {
	k := Keys
	return []key.Binding{
		k.Gallery, k.Trash, k.Creator, k.Subscription,
		k.Search, k.CreatorFilter, k.Sort, k.Platform, k.ClearFilters, k.Jump,
		k.Refresh, k.Play, k.Edit, k.Delete, k.Restore, k.Reconnect,
		k.Help, k.Quit,
	}
}
