package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/teammate/pkg/conversation"
)

// Sender delivers a user message to the session.
type Sender interface {
	SendText(ctx context.Context, id, text string) error
}

type State string

const (
	StateUserInput State = "user_input"
	StateScrolling State = "scrolling"
	StateError     State = "error"
)

// HistoryMsg carries the full history after every change.
type HistoryMsg struct {
	Entries conversation.History
	Version int64
}

type PhaseMsg struct {
	Phase       string
	Connected   bool
	Initialized bool
}

// OutboundMsg reports what happened to an outgoing message.
type OutboundMsg struct {
	Kind      string
	Outcome   string
	MessageID string
}

type ErrorMsg struct {
	Err error
}

type sendResultMsg struct {
	id  string
	err error
}

type Model struct {
	sender Sender
	newID  func() string

	viewport viewport.Model
	input    textinput.Model
	help     help.Model
	keyMap   KeyMap
	style    *Style

	markdown bool
	renderer *glamour.TermRenderer
	// rendered caches glamour output of complete remote entries by id.
	rendered map[string]string

	entries     conversation.History
	version     int64
	phase       string
	initialized bool
	status      string
	err         error

	state  State
	width  int
	height int
}

type Option func(*Model)

// WithMarkdown renders complete remote replies as markdown.
func WithMarkdown(enabled bool) Option {
	return func(m *Model) {
		m.markdown = enabled
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(m *Model) {
		m.newID = newID
	}
}

func WithStyle(style *Style) Option {
	return func(m *Model) {
		m.style = style
	}
}

func NewModel(sender Sender, options ...Option) Model {
	ret := Model{
		sender:   sender,
		newID:    uuid.NewString,
		viewport: viewport.New(0, 0),
		help:     help.New(),
		keyMap:   DefaultKeyMap,
		style:    DefaultStyles(),
		markdown: true,
		rendered: map[string]string{},
		phase:    "disconnected",
	}
	for _, option := range options {
		option(&ret)
	}

	ret.input = textinput.New()
	ret.input.Placeholder = "Say something..."
	ret.input.Prompt = "> "
	ret.input.Focus()
	ret.state = StateUserInput
	ret.updateKeyBindings()

	return ret
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keyMap.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keyMap.DismissError):
			m.err = nil
			m.setState(StateUserInput)
			return m, m.input.Focus()

		case key.Matches(msg, m.keyMap.Help):
			m.help.ShowAll = !m.help.ShowAll
			m.recomputeSize()
			return m, nil

		case key.Matches(msg, m.keyMap.SubmitMessage):
			return m, m.submit()

		case key.Matches(msg, m.keyMap.UnfocusMessage):
			m.input.Blur()
			m.setState(StateScrolling)
			return m, nil

		case key.Matches(msg, m.keyMap.FocusMessage):
			m.setState(StateUserInput)
			return m, m.input.Focus()

		case key.Matches(msg, m.keyMap.ScrollUp):
			m.viewport.HalfViewUp()
			return m, nil

		case key.Matches(msg, m.keyMap.ScrollDown):
			m.viewport.HalfViewDown()
			return m, nil
		}

		switch m.state {
		case StateUserInput:
			m.input, cmd = m.input.Update(msg)
		case StateScrolling, StateError:
			m.viewport, cmd = m.viewport.Update(msg)
		}
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.renderer = nil
		m.rendered = map[string]string{}
		m.recomputeSize()
		return m, nil

	case HistoryMsg:
		if msg.Version < m.version {
			return m, nil
		}
		atBottom := m.viewport.AtBottom()
		m.entries = msg.Entries
		m.version = msg.Version
		m.viewport.SetContent(m.messageView())
		if atBottom || m.state == StateUserInput {
			m.viewport.GotoBottom()
		}
		return m, nil

	case PhaseMsg:
		m.phase = msg.Phase
		m.initialized = msg.Initialized
		if !msg.Connected {
			m.status = "offline, messages are queued"
		} else if !msg.Initialized {
			m.status = "resuming session..."
		} else {
			m.status = ""
		}
		return m, nil

	case OutboundMsg:
		if msg.Outcome == "queued" && msg.MessageID != "" {
			m.status = "message queued until the session is ready"
		}
		return m, nil

	case sendResultMsg:
		if msg.err != nil {
			return m, m.setError(msg.err)
		}
		return m, nil

	case ErrorMsg:
		return m, m.setError(msg.Err)
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit hands the input to the sender from a command, outside the update
// loop: the sender blocks until the session processed the message, and that
// in turn publishes events back into this program.
func (m *Model) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}
	m.input.SetValue("")

	id := m.newID()
	sender := m.sender
	return func() tea.Msg {
		err := sender.SendText(context.Background(), id, text)
		return sendResultMsg{id: id, err: err}
	}
}

func (m *Model) setError(err error) tea.Cmd {
	log.Debug().Err(err).Msg("showing error")
	m.err = err
	m.input.Blur()
	m.setState(StateError)
	return nil
}

func (m *Model) setState(s State) {
	m.state = s
	m.updateKeyBindings()
	m.recomputeSize()
}

func (m *Model) updateKeyBindings() {
	m.keyMap.SubmitMessage.SetEnabled(m.state == StateUserInput)
	m.keyMap.UnfocusMessage.SetEnabled(m.state == StateUserInput)
	m.keyMap.FocusMessage.SetEnabled(m.state == StateScrolling)
	m.keyMap.DismissError.SetEnabled(m.state == StateError)
}

func (m *Model) recomputeSize() {
	if m.width == 0 {
		return
	}
	headerHeight := lipgloss.Height(m.headerView())
	inputHeight := lipgloss.Height(m.inputView())
	helpHeight := lipgloss.Height(m.help.View(m.keyMap))

	newHeight := m.height - headerHeight - inputHeight - helpHeight - 1
	if newHeight < 0 {
		newHeight = 0
	}
	m.viewport.Width = m.width
	m.viewport.Height = newHeight
	m.viewport.YPosition = headerHeight + 1

	h, _ := m.style.FocusedInput.GetFrameSize()
	m.input.Width = m.width - h - lipgloss.Width(m.input.Prompt) - 1
	m.help.Width = m.width

	m.viewport.SetContent(m.messageView())
	m.viewport.GotoBottom()
}

func (m Model) headerView() string {
	var phase string
	switch {
	case m.initialized:
		phase = m.style.PhaseReady.Render(m.phase)
	case m.phase == "disconnected" || m.phase == "closed":
		phase = m.style.PhaseDown.Render(m.phase)
	default:
		phase = m.style.PhasePending.Render(m.phase)
	}
	ret := m.style.Header.Render("teammate") + " " + phase
	if m.status != "" {
		ret += " " + m.style.Status.Render(m.status)
	}
	return ret
}

func (m *Model) messageView() string {
	var sb strings.Builder
	width := m.width - m.style.Message.GetHorizontalFrameSize()

	for _, entry := range m.entries {
		if entry.IsUser() {
			sb.WriteString(m.style.UserLabel.Render("you"))
		} else {
			sb.WriteString(m.style.RemoteLabel.Render("remote"))
		}
		sb.WriteString("\n")

		switch {
		case entry.IsUser():
			sb.WriteString(m.style.Message.Render(wrapWords(entry.Text, width)))
		case !entry.Complete:
			sb.WriteString(m.style.Streaming.Render(wrapWords(entry.Text+" …", width)))
		default:
			sb.WriteString(m.renderRemote(entry, width))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func (m *Model) renderRemote(entry conversation.Entry, width int) string {
	plain := m.style.Message.Render(wrapWords(entry.Text, width))
	if !m.markdown {
		return plain
	}
	if v, ok := m.rendered[entry.ID]; ok {
		return v
	}

	if m.renderer == nil {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			log.Warn().Err(err).Msg("could not create markdown renderer")
			m.markdown = false
			return plain
		}
		m.renderer = r
	}

	out, err := m.renderer.Render(entry.Text)
	if err != nil {
		log.Debug().Err(err).Str("id", entry.ID).Msg("could not render markdown")
		return plain
	}
	out = strings.Trim(out, "\n")
	m.rendered[entry.ID] = out
	return out
}

func (m Model) inputView() string {
	if m.err != nil {
		w, _ := m.style.Error.GetFrameSize()
		return m.style.Error.Render(wrapWords(fmt.Sprintf("error: %s", m.err), m.width-w))
	}
	if m.state == StateUserInput {
		return m.style.FocusedInput.Render(m.input.View())
	}
	return m.style.BlurredInput.Render(m.input.View())
}

func (m Model) View() string {
	return m.headerView() + "\n" +
		m.viewport.View() + "\n" +
		m.inputView() + "\n" +
		m.help.View(m.keyMap)
}
