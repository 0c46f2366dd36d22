package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/germanamz/granitechat/pkg/config"
	"github.com/germanamz/granitechat/pkg/modeladapter/usage"
	"github.com/germanamz/granitechat/pkg/qa"
	"github.com/germanamz/granitechat/pkg/retriever"
	"github.com/germanamz/granitechat/pkg/transcript"
)

// appState represents the application state machine.
type appState int

const (
	stateIdle appState = iota
	stateAwaiting
)

type appKeyMap struct {
	Quit   key.Binding
	Cancel key.Binding
}

var appKeys = appKeyMap{
	Quit:   key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	Cancel: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel request")),
}

// appModel is the root bubbletea model.
type appModel struct {
	ctx        context.Context
	answerer   qa.Answerer
	transcript *transcript.Transcript
	title      string
	chatView   chatViewModel
	inputBox   inputModel
	statusBar  statusBarModel
	state      appState
	ready      bool // set once the startup drain has elapsed
	gen        int  // incremented per request; stale answers are dropped
	cancelSend context.CancelFunc
	sources    []retriever.Document
	width      int
	height     int
}

// newAppModel builds the chat window. tracker may be nil when the completer
// does not report usage.
func newAppModel(ctx context.Context, answerer qa.Answerer, ui config.UIConfig, tracker *usage.Tracker, maxTokens int) appModel {
	t := &transcript.Transcript{}
	if ui.Greeting != "" {
		t.AppendBot(ui.Greeting)
	}

	userLabel, botLabel := ui.UserLabel, ui.BotLabel
	if userLabel == "" {
		userLabel = "You"
	}
	if botLabel == "" {
		botLabel = "Bot"
	}

	m := appModel{
		ctx:        ctx,
		answerer:   answerer,
		transcript: t,
		title:      ui.Title,
		chatView:   newChatView(t, userLabel, botLabel),
		inputBox:   newInput(),
		statusBar:  newStatusBar(tracker, maxTokens),
		state:      stateIdle,
	}
	m.chatView.refresh()

	return m
}

func (m appModel) Init() tea.Cmd {
	// Delay focusing the input so that stale terminal escape-sequence
	// responses (e.g. OSC 11 background-color) are drained first.
	return tea.Tick(200*time.Millisecond, func(time.Time) tea.Msg {
		return initDrainMsg{}
	})
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.chatView, cmd = m.chatView.Update(msg)
		return m, cmd

	case initDrainMsg:
		m.ready = true
		cmd := m.inputBox.enable()
		return m, cmd

	case inputSubmitMsg:
		return m.handleSubmit(msg)

	case answerMsg:
		return m.handleAnswer(msg)

	case tickMsg:
		if m.state == stateAwaiting && msg.gen == m.gen {
			m.chatView.advanceSpinner()
			return m, tickCmd(msg.gen)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.inputBox, cmd = m.inputBox.Update(msg)
	return m, cmd
}

func (m appModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	parts := make([]string, 0, 4)
	if m.title != "" {
		parts = append(parts, titleStyle.Render(m.title))
	}
	parts = append(parts, m.chatView.View(), m.inputBox.View(), m.statusBar.View())

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m appModel) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	initMarkdownRenderer(m.width - 4)
	m.inputBox.setWidth(m.width)

	reserved := m.inputBox.viewHeight() + 1 // input row + status line
	if m.title != "" {
		reserved++
	}
	m.chatView.setSize(m.width, max(m.height-reserved, 4))

	return m, nil
}

func (m appModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Ctrl+C always quits.
	if key.Matches(msg, appKeys.Quit) {
		return m.quit()
	}

	if key.Matches(msg, appKeys.Cancel) {
		if m.state == stateAwaiting {
			return m.cancelRequest()
		}
		return m, nil
	}

	switch msg.Type {
	case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
		var cmd tea.Cmd
		m.chatView, cmd = m.chatView.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.inputBox, cmd = m.inputBox.Update(msg)
	return m, cmd
}

func (m appModel) handleSubmit(msg inputSubmitMsg) (tea.Model, tea.Cmd) {
	if m.state != stateIdle {
		return m, nil
	}

	switch msg.text {
	case "/quit", "/exit":
		return m.quit()
	case "/help":
		m.chatView.addNotice(helpText(), false)
		return m, nil
	case "/sources":
		m.chatView.addNotice(sourcesText(m.sources), false)
		return m, nil
	}

	m.transcript.AppendUser(msg.text)

	m.state = stateAwaiting
	m.inputBox.disable()
	m.chatView.setProcessing(true)
	m.statusBar.awaiting = true

	m.gen++
	gen := m.gen
	sendCtx, cancel := context.WithCancel(m.ctx)
	m.cancelSend = cancel

	answerer := m.answerer
	question := msg.text
	start := time.Now()
	askCmd := func() tea.Msg {
		ans, err := answerer.Answer(sendCtx, question)
		return answerMsg{gen: gen, answer: ans, err: err, duration: time.Since(start)}
	}

	return m, tea.Batch(askCmd, tickCmd(gen))
}

func (m appModel) handleAnswer(msg answerMsg) (tea.Model, tea.Cmd) {
	if msg.gen != m.gen || m.state != stateAwaiting {
		return m, nil
	}

	if m.cancelSend != nil {
		m.cancelSend()
		m.cancelSend = nil
	}

	m.state = stateIdle
	m.chatView.setProcessing(false)
	m.statusBar.awaiting = false
	m.statusBar.duration = msg.duration

	switch {
	case isCancelled(msg.err):
		m.chatView.addNotice("request cancelled", false)
	case msg.err != nil:
		m.chatView.addNotice("error: "+msg.err.Error(), true)
	default:
		m.transcript.AppendBot(msg.answer.Text)
		m.sources = msg.answer.Sources
		m.statusBar.sources = len(msg.answer.Sources)
		m.statusBar.dropped = msg.answer.Dropped
		m.chatView.refresh()
	}

	cmd := m.inputBox.enable()
	return m, cmd
}

// cancelRequest abandons the in-flight request. Its answer, if it still
// arrives, carries an old generation and is ignored.
func (m appModel) cancelRequest() (tea.Model, tea.Cmd) {
	if m.cancelSend != nil {
		m.cancelSend()
		m.cancelSend = nil
	}
	m.gen++
	m.state = stateIdle
	m.chatView.setProcessing(false)
	m.statusBar.awaiting = false
	m.chatView.addNotice("request cancelled", false)

	cmd := m.inputBox.enable()
	return m, cmd
}

func (m appModel) quit() (tea.Model, tea.Cmd) {
	if m.cancelSend != nil {
		m.cancelSend()
		m.cancelSend = nil
	}
	return m, tea.Quit
}

func tickCmd(gen int) tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{gen: gen}
	})
}

// filterStaleEscapes is a tea.WithFilter callback that drops key input until
// the startup drain has elapsed, so late terminal escape-sequence fragments
// never reach the text field. Ctrl+C always passes so the user can exit.
func filterStaleEscapes(model tea.Model, msg tea.Msg) tea.Msg {
	app, ok := model.(appModel)
	if !ok || app.ready {
		return msg
	}

	if k, isKey := msg.(tea.KeyMsg); isKey && k.Type != tea.KeyCtrlC {
		return nil
	}

	return msg
}

func helpText() string {
	return "Commands:\n" +
		"  /help       Show this help message\n" +
		"  /sources    List the sources used for the last answer\n" +
		"  /quit       Exit the chat\n\n" +
		"Shortcuts:\n" +
		"  Enter       Send (from the field or the Send button)\n" +
		"  Tab         Switch focus between the field and Send\n" +
		"  Esc         Cancel the pending request\n" +
		"  PgUp/PgDn   Scroll the conversation\n" +
		"  Ctrl+C      Exit"
}

func sourcesText(docs []retriever.Document) string {
	if len(docs) == 0 {
		return "No sources for the last answer."
	}

	var sb strings.Builder
	sb.WriteString("Sources:")
	for i, d := range docs {
		fmt.Fprintf(&sb, "\n  %d. %s", i+1, truncate(d.Label(), 70))
		if d.Label() == "" {
			sb.WriteString(truncate(d.Content, 70))
		}
	}

	return sb.String()
}

// isCancelled reports whether err comes from a cancelled request.
func isCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
