package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"calvoice/activity"
	"calvoice/backend"
	"calvoice/capture"
	"calvoice/clipboard"
	"calvoice/controller"
	"calvoice/visualizer"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUI message types
type captureMsg struct {
	Status capture.Status
	Req    controller.RequestStatus
}
type promptMsg struct{ Req controller.RequestStatus }
type inputMsg struct{ Text string }
type responseMsg struct{ Response controller.Response }
type activityMsg struct{ Entry activity.Entry }
type frameMsg visualizer.Frame
type calendarsMsg struct {
	Calendars []backend.Calendar
	Err       error
}
type noticeMsg string
type DeviceLineMsg struct{ Text string }
type tickMsg time.Time

const (
	feedSize      = 8
	sidePanel     = 30
	noticeTimeout = 4 * time.Second
)

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	keyStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	recStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	procStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	replyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	actionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	barStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	panelStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")).Padding(0, 1)
	feedKindStyle = map[activity.Kind]lipgloss.Style{
		activity.Voice:  lipgloss.NewStyle().Foreground(lipgloss.Color("141")),
		activity.Prompt: lipgloss.NewStyle().Foreground(lipgloss.Color("111")),
		activity.Agent:  lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
	}
)

var barGlyphs = []rune("▁▂▃▄▅▆▇█")

type tuiModel struct {
	ctx     context.Context
	ctl     *controller.Controller
	api     *backend.Client
	elapsed func() time.Duration
	hotkey  string

	width, height int

	capture    capture.Status
	captureReq controller.RequestStatus
	promptReq  controller.RequestStatus
	recorded   time.Duration
	frame      visualizer.Frame

	input    textinput.Model
	spinner  spinner.Model
	response controller.Response
	feed     []activity.Entry

	calendars  []backend.Calendar
	calErr     error
	calLoading bool

	deviceLine string
	notice     string
	noticeAt   time.Time
}

func newTUIModel(ctx context.Context, ctl *controller.Controller, api *backend.Client, elapsed func() time.Duration, hotkey string) tuiModel {
	ti := textinput.New()
	ti.Placeholder = "Ask about your calendar…"
	ti.Prompt = "› "
	ti.CharLimit = 1000
	ti.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(procStyle))

	return tuiModel{
		ctx:     ctx,
		ctl:     ctl,
		api:     api,
		elapsed: elapsed,
		hotkey:  hotkey,
		input:   ti,
		spinner: sp,
	}
}

func NewTUIProgram(m tuiModel) *tea.Program {
	return tea.NewProgram(m, tea.WithAltScreen())
}

// tuiSend delivers msg to the running program, if any.
func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// tuiView forwards controller notifications into the bubbletea loop.
type tuiView struct{}

func (tuiView) CaptureChanged(s capture.Status, req controller.RequestStatus) {
	tuiSend(captureMsg{Status: s, Req: req})
}
func (tuiView) PromptChanged(req controller.RequestStatus) { tuiSend(promptMsg{Req: req}) }
func (tuiView) InputChanged(text string)                    { tuiSend(inputMsg{Text: text}) }
func (tuiView) ResponseChanged(r controller.Response)       { tuiSend(responseMsg{Response: r}) }
func (tuiView) ActivityAdded(e activity.Entry)              { tuiSend(activityMsg{Entry: e}) }

func tuiTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) loadCalendars() tea.Cmd {
	if m.api == nil {
		return nil
	}
	return func() tea.Msg {
		cals, err := m.api.Calendars(m.ctx)
		return calendarsMsg{Calendars: cals, Err: err}
	}
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(tuiTick(), m.spinner.Tick, textinput.Blink, m.loadCalendars())
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(m.mainWidth()-4, 10)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		if m.capture == capture.Recording && m.elapsed != nil {
			m.recorded = m.elapsed()
		}
		if m.notice != "" && time.Since(m.noticeAt) > noticeTimeout {
			m.notice = ""
		}
		return m, tuiTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case captureMsg:
		if msg.Status == capture.Recording && m.capture != capture.Recording {
			m.recorded = 0
		}
		m.capture = msg.Status
		m.captureReq = msg.Req
		if msg.Status != capture.Recording {
			m.frame = visualizer.Frame{}
		}

	case promptMsg:
		m.promptReq = msg.Req

	case inputMsg:
		m.input.SetValue(msg.Text)
		m.input.CursorEnd()

	case responseMsg:
		m.response = msg.Response

	case activityMsg:
		m.feed = append(m.feed, msg.Entry)
		if len(m.feed) > feedSize {
			m.feed = m.feed[len(m.feed)-feedSize:]
		}

	case frameMsg:
		if m.capture == capture.Recording {
			m.frame = visualizer.Frame(msg)
		}

	case calendarsMsg:
		m.calLoading = false
		m.calendars = msg.Calendars
		m.calErr = msg.Err

	case noticeMsg:
		m.notice = string(msg)
		m.noticeAt = time.Now()

	case DeviceLineMsg:
		m.deviceLine = msg.Text
	}
	return m, nil
}

type keyMap struct {
	Record    key.Binding
	Send      key.Binding
	Copy      key.Binding
	Calendars key.Binding
	Quit      key.Binding
}

var keys = keyMap{
	Record: key.NewBinding(
		key.WithKeys("ctrl+r"),
		key.WithHelp("ctrl+r", "record"),
	),
	Send: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "send"),
	),
	Copy: key.NewBinding(
		key.WithKeys("ctrl+y"),
		key.WithHelp("ctrl+y", "copy reply"),
	),
	Calendars: key.NewBinding(
		key.WithKeys("ctrl+l"),
		key.WithHelp("ctrl+l", "reload calendars"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
}

func (k keyMap) help() []key.Binding {
	return []key.Binding{k.Record, k.Send, k.Copy, k.Calendars, k.Quit}
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Record):
		ctl, ctx := m.ctl, m.ctx
		return m, func() tea.Msg {
			if err := ctl.ToggleCapture(ctx); errors.Is(err, capture.ErrBusy) {
				return noticeMsg("Still processing the last recording")
			}
			return nil
		}

	case key.Matches(msg, keys.Send):
		ctl, ctx := m.ctl, m.ctx
		ctl.SetInput(m.input.Value())
		return m, func() tea.Msg {
			switch err := ctl.SubmitPrompt(ctx); {
			case errors.Is(err, backend.ErrEmptyPrompt):
				return noticeMsg("Type a request first")
			case errors.Is(err, controller.ErrPromptBusy):
				return noticeMsg("Waiting for the previous reply")
			}
			return nil
		}

	case key.Matches(msg, keys.Copy):
		text, ok := m.ctl.LastReply()
		if !ok {
			return m, notice("No reply to copy yet")
		}
		if err := clipboard.Copy(text); err != nil {
			return m, notice(err.Error())
		}
		return m, notice("Copied last reply")

	case key.Matches(msg, keys.Calendars):
		m.calLoading = true
		return m, m.loadCalendars()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.ctl.SetInput(m.input.Value())
	return m, cmd
}

func notice(text string) tea.Cmd {
	return func() tea.Msg { return noticeMsg(text) }
}

func (m tuiModel) mainWidth() int {
	if m.width < 60 {
		return m.width
	}
	return m.width - sidePanel
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	w := m.mainWidth()
	var b strings.Builder

	b.WriteString(titleStyle.Render("calvoice") + dimStyle.Render("  calendar assistant") + "\n\n")
	b.WriteString(m.statusLine() + "\n")
	if m.deviceLine != "" {
		b.WriteString(dimStyle.Render(m.deviceLine) + "\n")
	}
	b.WriteString(barStyle.Render(renderBars(m.frame.Bars, m.frame.Level)) + "\n\n")

	b.WriteString(m.input.View() + "\n")
	if m.promptReq == controller.Loading {
		b.WriteString(m.spinner.View() + procStyle.Render(" waiting for the assistant") + "\n")
	}
	if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice) + "\n")
	}
	b.WriteString("\n")

	b.WriteString(m.responseView(w) + "\n")
	b.WriteString(m.feedView(w))
	b.WriteString("\n" + m.helpLine())

	body := lipgloss.NewStyle().Width(w).Render(b.String())
	if w == m.width {
		return body
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, body, m.calendarView())
}

func (m tuiModel) statusLine() string {
	switch m.capture {
	case capture.Recording:
		return recStyle.Render(fmt.Sprintf("● REC %.1fs", m.recorded.Seconds()))
	case capture.Processing:
		return m.spinner.View() + procStyle.Render(" transcribing…")
	}
	if m.captureReq == controller.Error {
		return errStyle.Render("○ STANDBY (last recording failed)")
	}
	return dimStyle.Render("○ STANDBY")
}

func (m tuiModel) responseView(width int) string {
	r := m.response
	if r.Text == "" {
		return dimStyle.Render("No replies yet")
	}
	wrap := lipgloss.NewStyle().Width(max(width-2, 10))
	if r.IsError() {
		return wrap.Inherit(errStyle).Render(r.Text)
	}
	var b strings.Builder
	b.WriteString(wrap.Inherit(replyStyle).Render(r.Text))
	for _, a := range r.Actions {
		b.WriteString("\n" + actionStyle.Render("  • "+describeAction(a)))
	}
	return b.String()
}

func describeAction(a backend.Action) string {
	var parts []string
	parts = append(parts, strings.ReplaceAll(a.Type, "_", " "))
	if title, ok := a.Event["summary"].(string); ok && title != "" {
		parts = append(parts, fmt.Sprintf("%q", title))
	}
	if a.CalendarID != "" {
		parts = append(parts, "on "+a.CalendarID)
	}
	return strings.Join(parts, " ")
}

func (m tuiModel) feedView(width int) string {
	if len(m.feed) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n" + dimStyle.Render("Activity") + "\n")
	for _, e := range m.feed {
		style := feedKindStyle[e.Kind]
		line := fmt.Sprintf("%s %-6s %s", e.Time.Format("15:04"), e.Kind, e.Text)
		b.WriteString(style.Render(truncate(line, max(width-2, 10))) + "\n")
	}
	return b.String()
}

func (m tuiModel) calendarView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Calendars") + "\n")
	switch {
	case m.calLoading:
		b.WriteString(m.spinner.View() + dimStyle.Render(" loading"))
	case m.calErr != nil:
		b.WriteString(errStyle.Render(truncate(m.calErr.Error(), sidePanel*3)))
	case len(m.calendars) == 0:
		b.WriteString(dimStyle.Render("none connected"))
	default:
		for _, c := range m.calendars {
			name := c.Name
			if name == "" {
				name = c.ID
			}
			b.WriteString(truncate(name, sidePanel-6) + "\n")
			if c.Provider != "" {
				b.WriteString(dimStyle.Render("  "+c.Provider) + "\n")
			}
		}
	}
	return panelStyle.Width(sidePanel - 4).Render(strings.TrimRight(b.String(), "\n"))
}

func (m tuiModel) helpLine() string {
	var parts []string
	if m.hotkey != "" {
		parts = append(parts, keyStyle.Render(m.hotkey)+helpStyle.Render(" record"))
	}
	for _, b := range keys.help() {
		h := b.Help()
		parts = append(parts, keyStyle.Render(h.Key)+helpStyle.Render(" "+h.Desc))
	}
	return strings.Join(parts, helpStyle.Render(" · ")) + "\n" + helpStyle.Render("calvoice "+version)
}

// renderBars draws one glyph per band, with the RMS level appended.
func renderBars(bars []float64, level float64) string {
	if len(bars) == 0 {
		return strings.Repeat(string(barGlyphs[0]), visualizer.DefaultBars)
	}
	var b strings.Builder
	for _, v := range bars {
		b.WriteRune(barGlyphs[glyphIndex(v)])
	}
	if level > 0 {
		b.WriteString(fmt.Sprintf(" %3.0f%%", min(level*100, 100)))
	}
	return b.String()
}

func glyphIndex(v float64) int {
	i := int(v * float64(len(barGlyphs)))
	return min(max(i, 0), len(barGlyphs)-1)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
