package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mmcdole/tagflow/internal/domain"
	"github.com/mmcdole/tagflow/internal/event"
	"github.com/mmcdole/tagflow/internal/pagination"
	"github.com/mmcdole/tagflow/internal/realtime"
	"github.com/mmcdole/tagflow/internal/scroll"
	"github.com/mmcdole/tagflow/internal/service"
	"github.com/mmcdole/tagflow/internal/tui/components"
	"github.com/mmcdole/tagflow/internal/tui/styles"
)

// ApplicationState represents the current state of the application
type ApplicationState int

const (
	StateBrowsing ApplicationState = iota
	StateHelp
	StateConfirmDelete
)

// Vertical layout: single footer line
const ChromeHeight = 1

const statusDuration = 4 * time.Second

// editStatuses is the cycle the edit key walks through
var editStatuses = []string{"pending", "in_progress", "done"}

// Player launches a video externally
type Player interface {
	Play(v domain.Video) error
}

// Options wires the model to the rest of the client
type Options struct {
	Gallery     *service.Gallery
	Player      Player
	Realtime    *realtime.Client      // Nil when live updates are disabled
	Invalidator *realtime.Invalidator // Nil when live updates are disabled

	ScrollThreshold int
	Debounce        time.Duration
	Logger          *slog.Logger
	Context         context.Context
}

// Model is the main Bubble Tea model for the application
type Model struct {
	State ApplicationState
	Ready bool

	// Services
	gallery *service.Gallery
	player  Player
	rt      *realtime.Client
	logger  *slog.Logger
	ctx     context.Context
	opts    Options

	bridge *Bridge
	subs   *event.Group

	// Current scope
	scope    domain.Scope
	store    *pagination.Store
	storeSub event.Subscription
	trigger  *scroll.Trigger
	listKey  domain.SegmentKey

	// UI components
	List    *components.VideoList
	Jump    components.FuzzyJump
	Prompt  components.InputModal
	Spinner spinner.Model

	promptFor promptKind

	// Dimensions
	Width  int
	Height int

	// UI state
	StatusMsg   string
	StatusIsErr bool
	statusSeq   int
	pendingID   domain.VideoID // Awaiting delete confirmation

	// Realtime
	ConnState  realtime.ConnState
	ConnGaveUp bool
}

// promptKind selects which filter the input prompt edits
type promptKind int

const (
	promptSearch promptKind = iota
	promptCreators
)

// creatorSep separates names in the creator prompt
const creatorSep = ";"

// maxCreatorSuggestions caps the list under the creator prompt
const maxCreatorSuggestions = 5

// NewModel creates the gallery model showing the main scope
func NewModel(opts Options) Model {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.AccentStyle

	m := Model{
		State:   StateBrowsing,
		gallery: opts.Gallery,
		player:  opts.Player,
		rt:      opts.Realtime,
		logger:  opts.Logger,
		ctx:     opts.Context,
		opts:    opts,
		bridge:  NewBridge(256),
		subs:    &event.Group{},
		List:    components.NewVideoList(""),
		Jump:    components.NewFuzzyJump(),
		Prompt:  components.NewInputModal(),
		Spinner: sp,
	}

	bridge := m.bridge
	if m.rt != nil {
		m.ConnState = m.rt.State()
		m.subs.Add(m.rt.States().On(func(s realtime.ConnState) {
			bridge.Send(ConnStateMsg{State: s})
		}))
		m.subs.Add(m.rt.MaxReconnects().On(func(ev realtime.MaxReconnectsEvent) {
			bridge.Send(MaxReconnectsMsg{Event: ev})
		}))
	}
	if opts.Invalidator != nil {
		m.subs.Add(opts.Invalidator.Applied().On(func(inv realtime.Invalidation) {
			bridge.Send(InvalidatedMsg{Invalidation: inv})
		}))
	}

	m.attachScope(domain.GalleryScope)
	return m
}

// Shutdown detaches every listener. Call after the program exits.
func (m Model) Shutdown() {
	m.subs.Unsubscribe()
	m.detachScope()
}

// Init starts the first load, the totals and the event bridge
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.bridge.Next(),
		m.Spinner.Tick,
		m.loadIfNeeded(),
		LoadTotalsCmd(m.ctx, m.gallery),
	)
}

// Store returns the pagination store of the current scope
func (m Model) Store() *pagination.Store { return m.store }

// Scope returns the current scope
func (m Model) Scope() domain.Scope { return m.scope }

// attachScope makes scope current and wires its store to the list
func (m *Model) attachScope(scope domain.Scope) {
	m.scope = scope
	m.store = m.gallery.Store(scope)
	bridge := m.bridge
	m.storeSub = m.store.Changes().On(func(st pagination.State) {
		bridge.Send(StoreChangedMsg{State: st})
	})

	store, ctx, logger := m.store, m.ctx, m.logger
	m.trigger = scroll.NewTrigger(scroll.Options{
		Container: m.List,
		State: func() scroll.LoadState {
			st := store.State()
			return scroll.LoadState{Loading: st.Loading, LoadingMore: st.LoadingMore, HasMore: st.HasMore}
		},
		OnLoad: func() {
			go func() {
				err := store.LoadMore(ctx)
				if err != nil && !domain.IsStale(err) {
					logger.Warn("load more failed", "scope", store.Scope().String(), "error", err)
				}
				bridge.Send(LoadDoneMsg{Scope: store.Scope(), More: true, Err: err})
			}()
		},
		Threshold: m.opts.ScrollThreshold,
		Debounce:  m.opts.Debounce,
		Logger:    m.logger,
	})

	m.List.Reset()
	m.syncList()
}

// detachScope stops listening to the current store. Creator and subscription
// stores are closed; their segments stay cached for a quick return.
func (m *Model) detachScope() {
	if m.storeSub != nil {
		m.storeSub.Unsubscribe()
		m.storeSub = nil
	}
	if m.trigger != nil {
		m.trigger.Stop()
	}
	switch m.scope.Kind {
	case domain.ScopeCreator, domain.ScopeSubscription:
		m.gallery.CloseScope(m.scope)
	}
}

func (m *Model) switchScope(scope domain.Scope) tea.Cmd {
	if scope == m.scope {
		return nil
	}
	m.detachScope()
	m.attachScope(scope)
	return m.loadIfNeeded()
}

// loadIfNeeded fetches the first page unless the segment is live already
func (m Model) loadIfNeeded() tea.Cmd {
	st := m.store.State()
	if st.InitialLoaded || st.Loading {
		return nil
	}
	return LoadFirstPageCmd(m.ctx, m.store)
}

// syncList copies the store state into the list
func (m *Model) syncList() {
	st := m.store.State()
	if st.Key != m.listKey {
		m.listKey = st.Key
		m.List.Reset()
	}
	m.List.SetItems(st.Posts)
	m.List.SetLoadState(st.Loading, st.LoadingMore, st.HasMore, st.Err)
	m.List.SetTitle(m.title(st))
}

func (m Model) title(st pagination.State) string {
	parts := []string{scopeLabel(st.Scope)}
	if st.Filters.Search != "" {
		parts = append(parts, fmt.Sprintf("%q", st.Filters.Search))
	}
	if len(st.Filters.Creators) > 0 {
		parts = append(parts, "by "+strings.Join(st.Filters.Creators, ", "))
	}
	if st.Filters.Platform != "" {
		parts = append(parts, string(st.Filters.Platform))
	}
	if st.Filters.SortOrder == "asc" {
		parts = append(parts, "oldest first")
	} else {
		parts = append(parts, "newest first")
	}
	title := strings.Join(parts, " · ")
	if st.Total > 0 {
		title += fmt.Sprintf(" (%d/%d)", len(st.Posts), st.Total)
	} else if len(st.Posts) > 0 {
		title += fmt.Sprintf(" (%d)", len(st.Posts))
	}
	return title
}

func scopeLabel(s domain.Scope) string {
	switch s.Kind {
	case domain.ScopeTrash:
		return "Trash"
	case domain.ScopeCreator:
		return "Creator " + s.ID
	case domain.ScopeSubscription:
		return "Subscription " + s.ID
	default:
		return "Gallery"
	}
}

// suggestCreators ranks loaded creators against the name being typed
func (m *Model) suggestCreators() {
	names := splitCreators(m.Prompt.Value())
	typing := currentCreator(m.Prompt.Value())

	var out []string
	for _, c := range m.gallery.MatchCreators(typing) {
		if slices.Contains(names, c) && c != typing {
			continue
		}
		out = append(out, c)
		if len(out) == maxCreatorSuggestions {
			break
		}
	}
	m.Prompt.SetSuggestions(out)
}

// completeCreator replaces the name being typed with the top suggestion
func (m *Model) completeCreator() {
	sugg := m.Prompt.Suggestions()
	if len(sugg) == 0 {
		return
	}
	value := m.Prompt.Value()
	head := ""
	if i := strings.LastIndex(value, creatorSep); i >= 0 {
		head = value[:i+1] + " "
	}
	m.Prompt.SetValue(head + sugg[0] + creatorSep + " ")
	m.suggestCreators()
}

// splitCreators parses the creator prompt
func splitCreators(value string) []string {
	var out []string
	for _, c := range strings.Split(value, creatorSep) {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// currentCreator is the partial name after the last separator
func currentCreator(value string) string {
	if i := strings.LastIndex(value, creatorSep); i >= 0 {
		value = value[i+1:]
	}
	return strings.TrimSpace(value)
}

// syncConn copies the realtime client's current state, including the
// latched give-up flag
func (m *Model) syncConn() {
	if m.rt == nil {
		return
	}
	m.ConnState = m.rt.State()
	m.ConnGaveUp = m.rt.GaveUp()
}

func (m *Model) setStatus(msg string, isErr bool) tea.Cmd {
	m.statusSeq++
	m.StatusMsg = msg
	m.StatusIsErr = isErr
	return ClearStatusCmd(m.statusSeq, statusDuration)
}

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if bm, ok := msg.(bridgeMsg); ok {
		// Bridge messages can be dropped under load; connection state is re-read each time
		m.syncConn()
		next, cmd := m.handle(bm.msg)
		return next, tea.Batch(cmd, m.bridge.Next())
	}
	return m.handle(msg)
}

func (m Model) handle(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Ready = true
		m.List.SetSize(m.Width, m.Height-ChromeHeight)
		m.Jump.SetSize(m.Width, m.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		m.List.SetSpinner(m.Spinner.View())
		return m, cmd

	case StoreChangedMsg:
		if msg.State.Scope != m.scope {
			return m, nil
		}
		m.syncList()
		// Keep filling while the loaded rows do not reach the threshold
		if st := m.store.State(); st.Err == nil {
			m.trigger.OnScroll()
		}
		return m, nil

	case LoadDoneMsg:
		if msg.Err == nil || domain.IsStale(msg.Err) || msg.Scope != m.scope {
			return m, nil
		}
		return m, m.setStatus(loadErrorText(msg.Err), true)

	case MutationDoneMsg:
		return m, m.setStatus(mutationText(msg), msg.Err != nil)

	case PlaybackStartedMsg:
		return m, m.setStatus("Playing "+msg.Video.DisplayTitle(), false)

	case TotalsLoadedMsg:
		if msg.Err != nil {
			m.logger.Warn("loading totals failed", "error", msg.Err)
		}
		m.syncList()
		return m, nil

	case ConnStateMsg:
		m.ConnState = msg.State
		m.syncConn()
		return m, nil

	case MaxReconnectsMsg:
		m.ConnGaveUp = true
		return m, m.setStatus(fmt.Sprintf("Live updates stopped after %d attempts (R to retry)", msg.Event.Attempts), true)

	case InvalidatedMsg:
		inv := msg.Invalidation
		if inv.Patched+len(inv.Removed)+len(inv.Evicted) == 0 {
			return m, nil
		}
		return m, m.setStatus(fmt.Sprintf("Server %s · video #%s", strings.ReplaceAll(inv.Notification.Action, "_", " "), inv.Notification.VideoID), false)

	case StatusMsg:
		return m, m.setStatus(msg.Message, msg.IsError)

	case ClearStatusMsg:
		if msg.Seq == m.statusSeq {
			m.StatusMsg = ""
			m.StatusIsErr = false
		}
		return m, nil
	}

	// Cursor blink and friends for whichever input is focused
	var cmd tea.Cmd
	switch {
	case m.Prompt.IsVisible():
		m.Prompt, cmd, _ = m.Prompt.Update(msg)
	case m.Jump.IsVisible():
		m.Jump, cmd, _ = m.Jump.Update(msg)
	}
	return m, cmd
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.State {
	case StateHelp:
		m.State = StateBrowsing
		return m, nil
	case StateConfirmDelete:
		return m.handleConfirmDelete(msg)
	}

	if m.Prompt.IsVisible() {
		if m.promptFor == promptCreators && msg.Type == tea.KeyTab {
			m.completeCreator()
			return m, nil
		}
		var cmd tea.Cmd
		var submitted bool
		m.Prompt, cmd, submitted = m.Prompt.Update(msg)
		if submitted {
			f := m.store.Filters()
			switch m.promptFor {
			case promptCreators:
				f.Creators = splitCreators(m.Prompt.Value())
			default:
				f.Search = m.Prompt.Value()
			}
			return m, SetFiltersCmd(m.ctx, m.store, f)
		}
		if m.promptFor == promptCreators {
			m.suggestCreators()
		}
		return m, cmd
	}

	if m.Jump.IsVisible() {
		var cmd tea.Cmd
		var chosen bool
		m.Jump, cmd, chosen = m.Jump.Update(msg)
		if chosen {
			if sel := m.Jump.Selected(); sel != nil {
				m.List.Select(sel.Index)
			}
			m.Jump.Hide()
		}
		return m, cmd
	}

	switch {
	case key.Matches(msg, Keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, Keys.Help):
		m.State = StateHelp
		return m, nil

	case key.Matches(msg, Keys.Gallery):
		return m, m.switchScope(domain.GalleryScope)

	case key.Matches(msg, Keys.Trash):
		return m, m.switchScope(domain.TrashScope)

	case key.Matches(msg, Keys.Creator):
		v := m.List.Selected()
		if v == nil || v.CreatorID == "" {
			return m, m.setStatus("Selection has no creator", true)
		}
		return m, m.switchScope(domain.CreatorScope(v.CreatorID))

	case key.Matches(msg, Keys.Subscription):
		v := m.List.Selected()
		if v == nil || v.SubscriptionID == "" {
			return m, m.setStatus("Selection has no subscription", true)
		}
		return m, m.switchScope(domain.SubscriptionScope(v.SubscriptionID))

	case key.Matches(msg, Keys.Search):
		m.promptFor = promptSearch
		m.Prompt.Show("Search "+scopeLabel(m.scope), m.store.Filters().Search, "enter to apply · empty clears")
		return m, nil

	case key.Matches(msg, Keys.CreatorFilter):
		m.promptFor = promptCreators
		value := strings.Join(m.store.Filters().Creators, creatorSep+" ")
		if value != "" {
			value += creatorSep + " "
		}
		m.Prompt.Show("Creators in "+scopeLabel(m.scope), value, "tab completes · ; separates · empty clears")
		m.suggestCreators()
		return m, nil

	case key.Matches(msg, Keys.Sort):
		f := m.store.Filters()
		if f.SortOrder == "asc" {
			f.SortOrder = "desc"
		} else {
			f.SortOrder = "asc"
		}
		return m, SetFiltersCmd(m.ctx, m.store, f)

	case key.Matches(msg, Keys.Platform):
		f := m.store.Filters()
		f.Platform = nextPlatform(f.Platform)
		return m, SetFiltersCmd(m.ctx, m.store, f)

	case key.Matches(msg, Keys.ClearFilters):
		f := m.store.Filters()
		cleared := domain.Filters{SortField: f.SortField, SortOrder: f.SortOrder}
		if cleared.Signature() == f.Signature() {
			return m, nil
		}
		return m, SetFiltersCmd(m.ctx, m.store, cleared)

	case key.Matches(msg, Keys.Jump):
		m.Jump.Show(m.List.Videos())
		return m, nil

	case key.Matches(msg, Keys.Refresh):
		return m, RefreshCmd(m.ctx, m.store)

	case key.Matches(msg, Keys.Play):
		if v := m.List.Selected(); v != nil && m.player != nil {
			return m, PlayCmd(m.player, *v)
		}
		return m, nil

	case key.Matches(msg, Keys.Edit):
		v := m.List.Selected()
		if v == nil || m.scope.IsTrash() {
			return m, nil
		}
		next := nextEditStatus(v.EditStatus)
		return m, UpdateVideoCmd(m.ctx, m.gallery, v.ID, domain.VideoChanges{EditStatus: &next})

	case key.Matches(msg, Keys.Delete):
		v := m.List.Selected()
		if v == nil || m.scope.IsTrash() {
			return m, nil
		}
		m.pendingID = v.ID
		m.State = StateConfirmDelete
		return m, nil

	case key.Matches(msg, Keys.Restore):
		v := m.List.Selected()
		if v == nil || !m.scope.IsTrash() {
			return m, nil
		}
		return m, RestoreVideoCmd(m.ctx, m.gallery, v.ID)

	case key.Matches(msg, Keys.Reconnect):
		if m.rt == nil || m.rt.State() != realtime.Disconnected {
			return m, nil
		}
		m.ConnGaveUp = false
		m.rt.Connect(m.ctx)
		return m, m.setStatus("Reconnecting live updates...", false)
	}

	cmd, moved := m.List.Update(msg)
	if moved {
		m.trigger.OnScroll()
	}
	return m, cmd
}

func (m Model) handleConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, Keys.Confirm):
		id := m.pendingID
		m.pendingID = ""
		m.State = StateBrowsing
		return m, DeleteVideoCmd(m.ctx, m.gallery, id)
	case key.Matches(msg, Keys.Deny):
		m.pendingID = ""
		m.State = StateBrowsing
	}
	return m, nil
}

func nextPlatform(p domain.Platform) domain.Platform {
	for i, candidate := range domain.Platforms {
		if candidate == p {
			if i+1 < len(domain.Platforms) {
				return domain.Platforms[i+1]
			}
			return ""
		}
	}
	return domain.Platforms[0]
}

func nextEditStatus(s string) string {
	for i, candidate := range editStatuses {
		if candidate == s {
			return editStatuses[(i+1)%len(editStatuses)]
		}
	}
	return editStatuses[0]
}

func loadErrorText(err error) string {
	var fe *domain.FetchError
	if errors.As(err, &fe) {
		switch fe.Kind {
		case domain.KindNetwork:
			return "Server unreachable (r to retry)"
		case domain.KindParse:
			return "Unexpected response from server"
		}
	}
	return "Load failed: " + err.Error()
}

func mutationText(msg MutationDoneMsg) string {
	if msg.Err != nil {
		return fmt.Sprintf("Could not %s video #%s: %v", msg.Action, msg.VideoID, msg.Err)
	}
	switch msg.Action {
	case ActionDelete:
		return "Moved to trash"
	case ActionRestore:
		return "Restored"
	default:
		return "Saved"
	}
}

// View renders the application
func (m Model) View() string {
	if !m.Ready {
		return "Loading..."
	}

	switch m.State {
	case StateHelp:
		return m.renderHelp()
	case StateConfirmDelete:
		return m.renderConfirmDelete()
	}

	if m.Jump.IsVisible() {
		return m.Jump.View()
	}

	body := m.List.View()
	if m.Prompt.IsVisible() {
		body = lipgloss.Place(m.Width, m.Height-ChromeHeight, lipgloss.Center, lipgloss.Center, m.Prompt.View())
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, m.renderFooter())
}

func (m Model) renderFooter() string {
	var left string
	switch {
	case m.StatusMsg != "" && m.StatusIsErr:
		left = styles.ErrorStyle.Render(m.StatusMsg)
	case m.StatusMsg != "":
		left = styles.DimStyle.Render(m.StatusMsg)
	}

	right := m.renderConnState() + "  " + styles.HelpKeyStyle.Render("?") + styles.HelpDescStyle.Render(" help")

	gap := max(0, m.Width-lipgloss.Width(left)-lipgloss.Width(right))
	return left + strings.Repeat(" ", gap) + right
}

// renderConnState is the live-update indicator
func (m Model) renderConnState() string {
	if m.rt == nil {
		return styles.DimStyle.Render("○ live off")
	}
	switch {
	case m.ConnState == realtime.Connected:
		return styles.SuccessStyle.Render("● live")
	case m.ConnState == realtime.Connecting:
		return styles.WarnStyle.Render("◌ connecting")
	case m.ConnGaveUp:
		return styles.ErrorStyle.Render("○ offline (R)")
	default:
		return styles.DimStyle.Render("○ offline")
	}
}

func (m Model) renderHelp() string {
	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render("Keys"))
	b.WriteString("\n\n")
	for _, kb := range helpBindings() {
		h := kb.Help()
		b.WriteString(styles.HelpKeyStyle.Render(fmt.Sprintf("%-8s", h.Key)))
		b.WriteString(styles.HelpDescStyle.Render(h.Desc))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(styles.DimStyle.Render("j/k g/G C-u/C-d move · press any key to return"))

	return lipgloss.Place(m.Width, m.Height, lipgloss.Center, lipgloss.Center,
		styles.ModalStyle.Render(b.String()))
}

func (m Model) renderConfirmDelete() string {
	title := "video #" + string(m.pendingID)
	if v, ok := m.gallery.Cache().Lookup(m.pendingID); ok {
		title = v.DisplayTitle()
	}
	modal := fmt.Sprintf("Move to trash?\n\n  %s\n\n[Y] Yes      [N] No", styles.Truncate(title, 40))
	return lipgloss.Place(m.Width, m.Height, lipgloss.Center, lipgloss.Center,
		styles.ModalStyle.Render(modal))
}
