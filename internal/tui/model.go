package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"JarvisChat/internal/backend"
	"JarvisChat/internal/chatbot"
	"JarvisChat/internal/conversation"
	"JarvisChat/internal/session"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

const (
	glamourStyle        = "dark"
	defaultPollInterval = 30 * time.Second
	offlineNotice       = "System Offline: chat is disabled until the backend is reachable."
)

type tab int

const (
	tabChat tab = iota
	tabSearch
)

type Model struct {
	cb *chatbot.ChatBot

	viewport    viewport.Model
	help        help.Model
	spinner     spinner.Model
	chatInput   textinput.Model
	searchInput textinput.Model
	keys        keyMap
	renderer    *glamour.TermRenderer

	width  int
	height int

	tab          tab
	chatBusy     bool
	searchBusy   bool
	pending      string
	pollInterval time.Duration

	connected bool
	polled    bool
	health    *backend.HealthStatus
	checkedAt time.Time
	turns     []session.Turn
	search    *backend.SearchResponse
	searchErr error
	notice    string

	status string
	err    error
}

// dispatchMsg carries the result of a user-initiated intent
type dispatchMsg struct{ res chatbot.Result }

// healthMsg carries the result of a background health poll
type healthMsg struct{ res chatbot.Result }

type healthTickMsg time.Time

func NewModel(cb *chatbot.ChatBot) Model {
	vp := viewport.New(80, 20)
	vp.SetContent(welcome)

	h := help.New()
	h.ShowAll = false

	sp := spinner.New()
	sp.Spinner = spinner.Points

	chat := textinput.New()
	chat.Placeholder = "Ask JARVIS anything, or /help for commands..."
	chat.Prompt = "> "
	chat.CharLimit = 4096
	chat.Focus()

	search := textinput.New()
	search.Placeholder = "Search the knowledge base..."
	search.Prompt = "/ "
	search.CharLimit = 512

	interval := cb.Config().Connectivity.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	return Model{
		cb:           cb,
		viewport:     vp,
		help:         h,
		spinner:      sp,
		chatInput:    chat,
		searchInput:  search,
		keys:         defaultKeys(),
		pollInterval: interval,
		turns:        cb.Session().Turns(),
	}
}

// Run starts the full-screen UI and blocks until the user quits or ctx ends
func Run(ctx context.Context, cb *chatbot.ChatBot) error {
	p := tea.NewProgram(NewModel(cb), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("running terminal UI: %w", err)
	}
	return nil
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.pollCmd())
}

func (m Model) dispatchCmd(in chatbot.Intent) tea.Cmd {
	return func() tea.Msg {
		return dispatchMsg{res: m.cb.Dispatch(context.Background(), in)}
	}
}

func (m Model) pollCmd() tea.Cmd {
	return func() tea.Msg {
		res := m.cb.Dispatch(context.Background(), chatbot.Intent{Kind: chatbot.IntentRefreshHealth})
		return healthMsg{res: res}
	}
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.pollInterval, func(t time.Time) tea.Msg {
		return healthTickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.refresh(false)

	case healthTickMsg:
		return m, m.pollCmd()

	case healthMsg:
		m.applyHealth(msg.res)
		m.refresh(false)
		return m, m.tickCmd()

	case dispatchMsg:
		if cmd := m.applyResult(msg.res); cmd != nil {
			return m, cmd
		}
		m.refresh(true)
		return m, m.focusActive()

	case spinner.TickMsg:
		if m.busy() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Tab):
			m.switchTab()
			m.refresh(true)
			return m, m.focusActive()
		case key.Matches(msg, m.keys.PageUp):
			m.viewport.HalfViewUp()
			return m, nil
		case key.Matches(msg, m.keys.PageDown):
			m.viewport.HalfViewDown()
			return m, nil
		case key.Matches(msg, m.keys.ToggleKB):
			if m.chatBusy {
				return m, nil
			}
			return m, m.dispatchCmd(chatbot.Intent{
				Kind:    chatbot.IntentToggleKB,
				Enabled: !m.cb.Session().UseKnowledgeBase(),
			})
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			m.resize()
			return m, nil
		case key.Matches(msg, m.keys.Submit):
			return m.submit()
		}

		if m.activeBusy() {
			return m, nil
		}
		var cmd tea.Cmd
		if m.tab == tabChat {
			m.chatInput, cmd = m.chatInput.Update(msg)
		} else {
			m.searchInput, cmd = m.searchInput.Update(msg)
		}
		cmds = append(cmds, cmd)

	default:
		var cmd tea.Cmd
		if m.tab == tabChat {
			m.chatInput, cmd = m.chatInput.Update(msg)
		} else {
			m.searchInput, cmd = m.searchInput.Update(msg)
		}
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// submit sends the active input. Nothing happens while that tab already
// has a call in flight.
func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.activeBusy() {
		return m, nil
	}

	if m.tab == tabSearch {
		query := strings.TrimSpace(m.searchInput.Value())
		if query == "" {
			return m, nil
		}
		return m.startSearch(chatbot.Intent{Kind: chatbot.IntentSearch, Text: query})
	}

	line := strings.TrimSpace(m.chatInput.Value())
	if line == "" {
		return m, nil
	}
	in, err := chatbot.ParseInput(line)
	if err != nil {
		m.status = "Error: " + err.Error()
		return m, nil
	}

	switch in.Kind {
	case chatbot.IntentQuit:
		return m, tea.Quit
	case chatbot.IntentSearch:
		if m.searchBusy {
			m.status = "A search is already running."
			return m, nil
		}
		m.chatInput.Reset()
		m.tab = tabSearch
		m.chatInput.Blur()
		m.searchInput.SetValue(in.Text)
		return m.startSearch(in)
	case chatbot.IntentSubmit:
		if !m.connected {
			m.status = offlineNotice
			return m, nil
		}
		m.pending = in.Text
	}

	m.chatBusy = true
	m.status = ""
	m.chatInput.Reset()
	m.chatInput.Blur()
	m.refresh(true)
	return m, tea.Batch(m.dispatchCmd(in), m.spinner.Tick)
}

func (m Model) startSearch(in chatbot.Intent) (tea.Model, tea.Cmd) {
	m.searchBusy = true
	m.status = ""
	m.searchInput.Blur()
	m.refresh(true)
	return m, tea.Batch(m.dispatchCmd(in), m.spinner.Tick)
}

func (m *Model) applyHealth(res chatbot.Result) {
	m.polled = true
	m.connected = res.Connected
	m.health = res.Health
	m.checkedAt = res.CheckedAt
}

// applyResult folds a dispatch result into the model. Only chat and clear
// results replace the transcript snapshot.
func (m *Model) applyResult(res chatbot.Result) tea.Cmd {
	m.connected = res.Connected
	m.err = res.Err

	switch res.Intent.Kind {
	case chatbot.IntentQuit:
		return tea.Quit

	case chatbot.IntentSearch:
		m.searchBusy = false
		m.search = res.Search
		m.searchErr = res.Err
		m.err = nil
		return nil

	case chatbot.IntentSubmit:
		m.chatBusy = false
		m.pending = ""
		m.turns = res.Transcript
		switch {
		case errors.Is(res.Err, conversation.ErrDisconnected):
			m.status = offlineNotice
		case res.Err != nil:
			m.status = "Error: " + conversation.ErrorMessage(res.Err)
		}
		return nil

	case chatbot.IntentClearHistory:
		m.turns = res.Transcript

	case chatbot.IntentRefreshHealth:
		m.applyHealth(res)
	}

	m.chatBusy = false
	if res.Err != nil {
		m.status = "Error: " + conversation.ErrorMessage(res.Err)
		return nil
	}
	switch res.Intent.Kind {
	case chatbot.IntentStats:
		m.notice = chatbot.FormatStats(res.Stats)
	case chatbot.IntentListIngested:
		m.notice = chatbot.FormatRecords(res.Records, res.RecordTotal)
	case chatbot.IntentHelp:
		m.notice = res.Notice
	case chatbot.IntentRefreshHealth:
		m.status = statusLabel(res.Connected)
	default:
		m.status = res.Notice
	}
	return nil
}

func (m *Model) switchTab() {
	if m.tab == tabChat {
		m.tab = tabSearch
		m.chatInput.Blur()
		return
	}
	m.tab = tabChat
	m.searchInput.Blur()
}

func (m *Model) focusActive() tea.Cmd {
	if m.activeBusy() {
		return nil
	}
	if m.tab == tabChat {
		return m.chatInput.Focus()
	}
	return m.searchInput.Focus()
}

func (m Model) busy() bool {
	return m.chatBusy || m.searchBusy
}

func (m Model) activeBusy() bool {
	if m.tab == tabChat {
		return m.chatBusy
	}
	return m.searchBusy
}

func (m *Model) resize() {
	if m.width <= 0 || m.height <= 0 {
		return
	}

	// tabs, input, help, status and the panel border
	chrome := 7
	if m.help.ShowAll {
		chrome += 3
	}
	bodyHeight := m.height - chrome
	if bodyHeight < 5 {
		bodyHeight = 5
	}
	m.viewport.Width = m.width - 4
	m.viewport.Height = bodyHeight
	m.chatInput.Width = m.width - 6
	m.searchInput.Width = m.width - 6
	m.help.Width = m.width

	wrap := m.viewport.Width - 2
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(glamourStyle),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		m.renderer = nil
		m.err = err
		return
	}
	m.renderer = r
}

// refresh re-renders the active tab into the viewport
func (m *Model) refresh(gotoBottom bool) {
	var md string
	if m.tab == tabChat {
		md = transcriptMarkdown(m.turns, m.pending)
		if m.notice != "" {
			md += "\n```\n" + m.notice + "\n```\n"
		}
		if md == "" {
			md = welcome
		}
	} else {
		md = searchMarkdown(m.search, m.searchErr)
	}

	m.viewport.SetContent(m.render(md))
	if gotoBottom && m.tab == tabChat {
		m.viewport.GotoBottom()
	} else if gotoBottom {
		m.viewport.GotoTop()
	}
}

func (m Model) render(md string) string {
	if m.renderer == nil {
		return md
	}
	out, err := m.renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Starting..."
	}

	tabs := lipgloss.JoinHorizontal(lipgloss.Top,
		tabStyle(m.tab == tabChat).Render("Chat"),
		tabStyle(m.tab == tabSearch).Render("Search"),
	)
	body := panelStyle(true).Width(m.width - 2).Render(m.viewport.View())

	input := m.chatInput.View()
	if m.tab == tabSearch {
		input = m.searchInput.View()
	}
	if m.activeBusy() {
		label := " thinking..."
		if m.tab == tabSearch {
			label = " searching..."
		}
		input = m.spinner.View() + label
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		tabs,
		body,
		input,
		m.help.View(m.keys),
		m.statusLine(),
	)
}

func (m Model) statusLine() string {
	var status string
	switch {
	case !m.polled:
		status = pendingStyle.Render("● Connecting")
	case m.connected:
		status = onlineStyle.Render("● System Online")
		if m.health != nil {
			status += fmt.Sprintf("  AI Brain: %s  Memory: %s",
				activeLabel(m.health.LLMLoaded, "Active", "Inactive"),
				activeLabel(m.health.VectorDBConnected, "Connected", "Offline"))
		}
	default:
		status = offlineStyle.Render("● System Offline")
	}
	if !m.checkedAt.IsZero() {
		status += "  (checked " + m.checkedAt.Local().Format("15:04:05") + ")"
	}

	sess := m.cb.Session()
	status += "  [kb " + activeLabel(sess.UseKnowledgeBase(), "on", "off") + "]"
	if c, ok := sess.CategoryFilter(); ok {
		status += "  [filter " + c + "]"
	}
	status += fmt.Sprintf("  [turns %d]", len(m.turns))
	if strings.TrimSpace(m.status) != "" {
		status += "  " + shorten(strings.TrimSpace(m.status), 100)
	}
	return statusStyle.Render(status)
}

// transcriptMarkdown renders turns, plus a prompt still waiting for a reply
func transcriptMarkdown(turns []session.Turn, pending string) string {
	var b strings.Builder
	for _, t := range turns {
		writeTurn(&b, t.Role, t.Content, t.Sources)
	}
	if pending != "" {
		writeTurn(&b, session.RoleUser, pending, nil)
	}
	return b.String()
}

func writeTurn(b *strings.Builder, role session.Role, content string, sources []session.SourceRef) {
	if role == session.RoleUser {
		b.WriteString("**You:** ")
	} else {
		b.WriteString("**Jarvis:** ")
	}
	b.WriteString(content)
	b.WriteString("\n\n")

	if len(sources) == 0 {
		return
	}
	b.WriteString("> Knowledge Sources:\n")
	for _, s := range sources {
		fmt.Fprintf(b, "> - %s (score %.2f)\n", s.SourceID, s.Relevance)
	}
	b.WriteString("\n")
}

func searchMarkdown(resp *backend.SearchResponse, err error) string {
	if err != nil {
		return "**Search failed:** " + conversation.ErrorMessage(err) + "\n"
	}
	if resp == nil {
		return "_Type a query below and press enter to search the knowledge base._\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### Found %d results\n\n", resp.TotalResults)
	for i, r := range resp.Results {
		source := r.Source
		if source == "" {
			source = "Unknown"
		}
		fmt.Fprintf(&b, "**#%d** Relevance: %.3f · Source: `%s` · ID: `%s`\n\n", i+1, r.Score, source, r.ID)
		for _, line := range strings.Split(strings.TrimSpace(r.Text), "\n") {
			b.WriteString("> " + line + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func statusLabel(connected bool) string {
	if connected {
		return "System Online"
	}
	return "System Offline"
}

func activeLabel(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

func shorten(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

const welcome = `# Welcome to JARVIS AI Assistant!

Ask anything, or switch to the **Search** tab to query the knowledge base directly.
Type ` + "`/help`" + ` for commands.
`
