// Package ui is a minimal terminal dashboard over the engine read-model.
//
// The model re-reads the engine on its own render tick and submits user
// intent through the engine actions. Nothing in this package waits on the
// network.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/renato0307/kscope/internal/engine"
	"github.com/renato0307/kscope/internal/k8s"
	"github.com/renato0307/kscope/internal/store"
	"github.com/renato0307/kscope/internal/stream"
)

const appName = "kscope"

// ReadModel is the non-blocking view of the engine
type ReadModel interface {
	ReadAll() []store.KindView
	ReadMetricsRollup(scope store.RollupScope) store.Rollup
	ReadStreamState() stream.State
	ReadConnection() engine.Connection
	ReadContexts() ([]engine.ContextView, error)
	ReadFilter() (string, error)
	Document(id string) (engine.DocumentRequest, bool)
}

// Actions submits user intent; every method returns immediately
type Actions interface {
	SwitchContext(id string)
	Retry()
	SetNamespace(namespace string)
	SetGlobFilter(pattern string)
	FetchDocument(kind k8s.ResourceKind, namespace, name string, format k8s.DocumentFormat) string
	StartStream(kind k8s.ResourceKind, namespace, name, container string, previous bool)
	StopStream()
}

// Engine is what the dashboard needs from *engine.Engine
type Engine interface {
	ReadModel
	Actions
}

// tickMsg triggers a re-read of the engine
type tickMsg time.Time

type mode int

const (
	modeList mode = iota
	modeDocument
	modeLogs
	modeRollup
)

type prompt int

const (
	promptNone prompt = iota
	promptFilter
	promptNamespace
	promptContext
)

// Model is the bubbletea dashboard
type Model struct {
	engine   Engine
	theme    *Theme
	keys     *Keys
	interval time.Duration
	now      func() time.Time

	header *Header
	table  table.Model
	view   viewport.Model
	input  textinput.Model

	mode   mode
	prompt prompt
	width  int
	height int

	conn    engine.Connection
	kinds   []store.KindView
	kindIdx int
	items   []k8s.Item
	// kind and generation whose columns the table holds
	shownKind k8s.ResourceKind
	shownGen  uint64

	docID     string
	docTitle  string
	docStatus engine.DocumentStatus

	logTarget  k8s.LogTarget
	follow     bool
	shownLines int

	scope store.RollupScope
}

// NewModel creates the dashboard. tickInterval is the render clock and is
// independent of the poll interval.
func NewModel(e Engine, theme *Theme, tickInterval time.Duration) *Model {
	if theme == nil {
		theme = ThemeCharm()
	}
	if tickInterval <= 0 {
		tickInterval = 250 * time.Millisecond
	}

	t := table.New(
		table.WithFocused(true),
		table.WithHeight(10),
	)
	t.SetStyles(theme.ToTableStyles())

	input := textinput.New()
	input.Prompt = "> "

	return &Model{
		engine:   e,
		theme:    theme,
		keys:     DefaultKeys(),
		interval: tickInterval,
		now:      time.Now,
		header:   NewHeader(appName, theme),
		table:    t,
		view:     viewport.New(80, 20),
		input:    input,
	}
}

func (m *Model) Init() tea.Cmd {
	return m.tick()
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.refresh()
		return m, m.tick()

	case tea.WindowSizeMsg:
		m.setSize(msg.Width, msg.Height)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if m.prompt != promptNone {
			return m.updatePrompt(msg)
		}
		return m.updateKey(msg)
	}
	return m, nil
}

func (m *Model) setSize(width, height int) {
	m.width = width
	m.height = height
	m.header.SetWidth(width)

	// header, title line and status line
	body := height - 3
	if body < 3 {
		body = 3
	}
	m.table.SetWidth(width)
	m.table.SetHeight(body)
	m.view.Width = width
	m.view.Height = body
	m.input.Width = width - 4
}

func (m *Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", m.keys.Quit:
		if m.mode == modeLogs {
			m.engine.StopStream()
		}
		return m, tea.Quit
	case m.keys.Retry:
		m.engine.Retry()
		return m, nil
	case m.keys.Context:
		return m, m.openPrompt(promptContext, "")
	case m.keys.Namespace:
		return m, m.openPrompt(promptNamespace, m.conn.Namespace)
	}

	switch m.mode {
	case modeList:
		return m.updateList(msg)
	case modeRollup:
		return m.updateRollup(msg)
	default:
		return m.updatePager(msg)
	}
}

func (m *Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case m.keys.NextKind, "right":
		m.selectKind(m.kindIdx + 1)
	case m.keys.PrevKind, "left":
		m.selectKind(m.kindIdx - 1)
	case m.keys.Filter:
		pattern, _ := m.engine.ReadFilter()
		return m, m.openPrompt(promptFilter, pattern)
	case m.keys.Describe:
		m.openDocument(k8s.FormatDescribe)
	case m.keys.YAML:
		m.openDocument(k8s.FormatYAML)
	case m.keys.Logs:
		m.openLogs(false)
	case m.keys.Previous:
		m.openLogs(true)
	case m.keys.Rollup:
		m.mode = modeRollup
	case m.keys.Back:
		if pattern, _ := m.engine.ReadFilter(); pattern != "" {
			m.engine.SetGlobFilter("")
		}
	default:
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	}
	m.refresh()
	return m, nil
}

func (m *Model) updateRollup(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case m.keys.ToggleScope:
		if m.scope == store.ByNode {
			m.scope = store.ByNamespace
		} else {
			m.scope = store.ByNode
		}
	case m.keys.Rollup, m.keys.Back:
		m.mode = modeList
		m.refresh()
	}
	return m, nil
}

// updatePager handles the document and log views
func (m *Model) updatePager(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case m.keys.Back:
		if m.mode == modeLogs {
			m.engine.StopStream()
		}
		m.mode = modeList
		m.refresh()
		return m, nil
	case m.keys.Follow:
		if m.mode == modeLogs {
			m.follow = !m.follow
			if m.follow {
				m.view.GotoBottom()
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.view, cmd = m.view.Update(msg)
	return m, cmd
}

func (m *Model) openPrompt(p prompt, value string) tea.Cmd {
	m.prompt = p
	switch p {
	case promptFilter:
		m.input.Placeholder = "glob on names, e.g. web-*"
	case promptNamespace:
		m.input.Placeholder = "namespace, empty for all"
	case promptContext:
		m.input.Placeholder = "context name, empty for the kubeconfig default"
	}
	m.input.SetValue(value)
	m.input.CursorEnd()
	return m.input.Focus()
}

func (m *Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		value := strings.TrimSpace(m.input.Value())
		switch m.prompt {
		case promptFilter:
			m.engine.SetGlobFilter(value)
		case promptNamespace:
			if value == "all" {
				value = ""
			}
			m.engine.SetNamespace(value)
		case promptContext:
			m.engine.SwitchContext(value)
		}
		m.closePrompt()
		return m, nil
	case "esc", "ctrl+c":
		m.closePrompt()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) closePrompt() {
	m.prompt = promptNone
	m.input.Blur()
	m.input.SetValue("")
}

func (m *Model) selectKind(i int) {
	if len(m.kinds) == 0 {
		return
	}
	n := len(m.kinds)
	m.kindIdx = ((i % n) + n) % n
}

func (m *Model) currentKind() (store.KindView, bool) {
	if m.kindIdx < 0 || m.kindIdx >= len(m.kinds) {
		return store.KindView{}, false
	}
	return m.kinds[m.kindIdx], true
}

func (m *Model) selected() (k8s.KindInfo, k8s.Item, bool) {
	kind, ok := m.currentKind()
	if !ok {
		return k8s.KindInfo{}, k8s.Item{}, false
	}
	i := m.table.Cursor()
	if i < 0 || i >= len(m.items) {
		return k8s.KindInfo{}, k8s.Item{}, false
	}
	return kind.Info, m.items[i], true
}

func (m *Model) openDocument(format k8s.DocumentFormat) {
	info, item, ok := m.selected()
	if !ok {
		return
	}
	m.docID = m.engine.FetchDocument(info.Kind, item.Namespace, item.Name, format)
	m.docTitle = fmt.Sprintf("%s %s %s", format, info.Kind, item.Key())
	m.docStatus = ""
	m.view.SetContent("")
	m.view.GotoTop()
	m.mode = modeDocument
}

func (m *Model) openLogs(previous bool) {
	info, item, ok := m.selected()
	if !ok {
		return
	}
	m.engine.StartStream(info.Kind, item.Namespace, item.Name, "", previous)
	m.logTarget = k8s.LogTarget{Namespace: item.Namespace, Pod: item.Name, Previous: previous}
	m.follow = true
	m.shownLines = -1
	m.view.SetContent("")
	m.mode = modeLogs
}

// refresh re-reads the engine for the current view
func (m *Model) refresh() {
	m.conn = m.engine.ReadConnection()
	m.kinds = m.engine.ReadAll()
	if m.kindIdx >= len(m.kinds) {
		m.kindIdx = 0
	}

	kind, ok := m.currentKind()
	m.header.SetConnection(m.conn)
	m.header.SetKind(kind, ok)

	switch m.mode {
	case modeList:
		m.refreshTable(kind, ok)
	case modeDocument:
		m.refreshDocument()
	case modeLogs:
		m.refreshLogs()
	}
}

func (m *Model) refreshTable(kind store.KindView, ok bool) {
	if !ok {
		m.items = nil
		m.table.SetRows(nil)
		return
	}

	reset := kind.Info.Kind != m.shownKind || m.conn.Generation != m.shownGen
	if reset {
		// rows must never be wider than the columns
		m.table.SetRows(nil)
		m.table.SetColumns(columnsFor(kind.Info))
		m.shownKind = kind.Info.Kind
		m.shownGen = m.conn.Generation
	}

	now := m.now()
	rows := make([]table.Row, 0, len(kind.Items))
	for _, item := range kind.Items {
		rows = append(rows, rowFor(kind.Info, item, now))
	}
	m.items = kind.Items
	m.table.SetRows(rows)
	if reset {
		m.table.SetCursor(0)
	}
}

func columnsFor(info k8s.KindInfo) []table.Column {
	var cols []table.Column
	if info.Namespaced {
		cols = append(cols, table.Column{Title: "Namespace", Width: 18})
	}
	cols = append(cols, table.Column{Title: "Name", Width: 40})
	for _, c := range info.Columns {
		cols = append(cols, table.Column{Title: c, Width: max(len(c), 12)})
	}
	return append(cols, table.Column{Title: "Age", Width: 6})
}

func rowFor(info k8s.KindInfo, item k8s.Item, now time.Time) table.Row {
	row := make(table.Row, 0, len(info.Columns)+3)
	if info.Namespaced {
		row = append(row, item.Namespace)
	}
	row = append(row, item.Name)
	for _, c := range info.Columns {
		row = append(row, item.Fields[c])
	}
	age := ""
	if !item.CreatedAt.IsZero() {
		age = k8s.FormatAge(item.Age(now))
	}
	return append(row, age)
}

func (m *Model) refreshDocument() {
	req, ok := m.engine.Document(m.docID)
	if !ok {
		m.view.SetContent(m.theme.WarningText("request no longer in history"))
		return
	}
	if req.Status == m.docStatus {
		return
	}
	m.docStatus = req.Status

	switch req.Status {
	case engine.DocumentPending:
		m.view.SetContent("Loading…")
	case engine.DocumentFailed:
		m.view.SetContent(m.theme.ErrorText(describeError(req.Err)))
	default:
		m.view.SetContent(req.Body)
		m.view.GotoTop()
	}
}

func (m *Model) refreshLogs() {
	st := m.engine.ReadStreamState()
	if st.Target.Namespace != m.logTarget.Namespace || st.Target.Pod != m.logTarget.Pod ||
		st.Target.Previous != m.logTarget.Previous {
		// the start action has not been applied yet
		return
	}
	if len(st.Lines) == m.shownLines {
		return
	}
	m.shownLines = len(st.Lines)

	var b strings.Builder
	for _, line := range st.Lines {
		b.WriteString(line.Text)
		b.WriteByte('\n')
	}
	m.view.SetContent(b.String())
	if m.follow {
		m.view.GotoBottom()
	}
}

func (m *Model) View() string {
	sections := []string{m.header.View(m.now())}

	switch {
	case m.prompt == promptContext:
		sections = append(sections, m.contextsView())
	case m.mode == modeList:
		sections = append(sections, m.tabsView(), m.listBody())
	case m.mode == modeDocument:
		sections = append(sections, m.theme.Header.Render(m.docTitle), m.view.View())
	case m.mode == modeLogs:
		sections = append(sections, m.logsTitle(), m.view.View())
	case m.mode == modeRollup:
		sections = append(sections, m.rollupView())
	}

	if m.prompt != promptNone {
		sections = append(sections, m.input.View())
	} else {
		sections = append(sections, m.statusLine())
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// tabsView shows the neighbours of the current kind and its state
func (m *Model) tabsView() string {
	kind, ok := m.currentKind()
	if !ok {
		return m.theme.Tab.Render("no kinds subscribed")
	}

	n := len(m.kinds)
	prev := m.kinds[(m.kindIdx+n-1)%n]
	next := m.kinds[(m.kindIdx+1)%n]

	parts := []string{
		m.theme.Tab.Render("◀ " + prev.Info.Title),
		m.theme.ActiveTab.Render(fmt.Sprintf("%s (%d/%d)", kind.Info.Title, m.kindIdx+1, n)),
		m.theme.Tab.Render(next.Info.Title + " ▶"),
		m.theme.StateStyle(kind.State).Render(kind.State.String()),
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) listBody() string {
	kind, ok := m.currentKind()
	if !ok {
		return ""
	}
	switch {
	case kind.State == store.Unavailable:
		return m.theme.StateStyle(kind.State).Render("not served by this cluster")
	case kind.State == store.Pending && len(kind.Items) == 0:
		return m.theme.StateStyle(kind.State).Render("Loading…")
	case kind.State == store.Failed:
		note := m.theme.ErrorText("refresh failed, showing last data: " + describeError(kind.LastError))
		return lipgloss.JoinVertical(lipgloss.Left, m.table.View(), note)
	}
	return m.table.View()
}

func (m *Model) logsTitle() string {
	st := m.engine.ReadStreamState()
	title := "logs " + m.logTarget.String()
	if st.Target.Pod != m.logTarget.Pod || st.Target.Namespace != m.logTarget.Namespace {
		return m.theme.Header.Render(title + " • opening")
	}

	parts := []string{title, st.Status.String(), fmt.Sprintf("%d lines", len(st.Lines))}
	if st.Evicted > 0 {
		parts = append(parts, fmt.Sprintf("%d dropped", st.Evicted))
	}
	if m.follow {
		parts = append(parts, "following")
	}
	line := m.theme.Header.Render(strings.Join(parts, " • "))
	if st.Status == stream.Failed && st.Err != nil {
		line = lipgloss.JoinVertical(lipgloss.Left, line, m.theme.ErrorText(describeError(st.Err)))
	}
	return line
}

func (m *Model) contextsView() string {
	contexts, err := m.engine.ReadContexts()
	var b strings.Builder
	b.WriteString(m.theme.Header.Render("Contexts"))
	b.WriteByte('\n')
	for _, c := range contexts {
		marker := " "
		if c.Active {
			marker = "*"
		}
		ns := c.Namespace
		if ns == "" {
			ns = "-"
		}
		fmt.Fprintf(&b, "%s %-30s %-30s %s\n", marker, c.Name, c.Cluster, ns)
	}
	if err != nil {
		b.WriteString(m.theme.ErrorText("kubeconfig: " + err.Error()))
	}
	return b.String()
}

func (m *Model) statusLine() string {
	switch {
	case m.conn.SwitchErr != nil:
		return m.theme.ErrorText(describeError(m.conn.SwitchErr))
	case m.conn.Err != nil:
		return m.theme.ErrorText(describeError(m.conn.Err) + " (r to retry)")
	}

	pattern, err := m.engine.ReadFilter()
	if err != nil {
		return m.theme.ErrorText(err.Error())
	}

	help := "tab: kind • /: filter • n: namespace • c: context • d/y: describe/yaml • l: logs • u: usage • q: quit"
	switch m.mode {
	case modeDocument:
		help = "↑/↓: scroll • esc: back • q: quit"
	case modeLogs:
		help = "↑/↓: scroll • f: follow • esc: stop • q: quit"
	case modeRollup:
		help = "tab: node/namespace • esc: back • q: quit"
	}
	if pattern != "" && m.mode == modeList {
		help = "filter: " + pattern + " • esc: clear • " + help
	}
	return m.theme.StatusBar.Render(help)
}

func describeError(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
