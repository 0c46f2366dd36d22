package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/germanamz/granitechat/pkg/transcript"
)

// notice is a line shown in the chat area that is not part of the
// transcript (errors, help, command output). after is the number of
// transcript entries that precede it.
type notice struct {
	after int
	text  string
	err   bool
}

// chatViewModel renders the transcript into a scrollable viewport.
type chatViewModel struct {
	viewport   viewport.Model
	transcript *transcript.Transcript
	userLabel  string
	botLabel   string
	notices    []notice
	processing bool
	spinnerIdx int
	waitingMsg string
	width      int
}

func newChatView(t *transcript.Transcript, userLabel, botLabel string) chatViewModel {
	vp := viewport.New(80, 10)
	vp.MouseWheelEnabled = true

	return chatViewModel{
		viewport:   vp,
		transcript: t,
		userLabel:  userLabel,
		botLabel:   botLabel,
		width:      80,
	}
}

func (m chatViewModel) Update(msg tea.Msg) (chatViewModel, tea.Cmd) {
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m chatViewModel) View() string {
	return m.viewport.View()
}

func (m *chatViewModel) setSize(width, height int) {
	m.width = width
	m.viewport.Width = width
	m.viewport.Height = max(height, 1)
	m.refresh()
}

// addNotice appends a non-transcript line after the current last entry.
func (m *chatViewModel) addNotice(text string, isErr bool) {
	m.notices = append(m.notices, notice{after: m.transcript.Len(), text: text, err: isErr})
	m.refresh()
}

func (m *chatViewModel) setProcessing(on bool) {
	m.processing = on
	if on {
		m.waitingMsg = randomWaitingMessage()
	}
	m.refresh()
}

func (m *chatViewModel) advanceSpinner() {
	m.spinnerIdx++
	m.refresh()
}

// refresh re-renders the content and scrolls to the newest entry.
func (m *chatViewModel) refresh() {
	m.viewport.SetContent(m.render())
	m.viewport.GotoBottom()
}

func (m chatViewModel) render() string {
	var sb strings.Builder

	next := 0
	writeNotices := func(upTo int) {
		for next < len(m.notices) && m.notices[next].after <= upTo {
			n := m.notices[next]
			style := noticeStyle
			if n.err {
				style = errorBlockStyle
			}
			sb.WriteString(style.Width(max(m.width-2, 10)).Render(n.text))
			sb.WriteString("\n\n")
			next++
		}
	}

	writeNotices(0)
	m.transcript.Each(func(i int, e transcript.Entry) bool {
		sb.WriteString(m.renderEntry(e))
		sb.WriteString("\n\n")
		writeNotices(i + 1)
		return true
	})
	writeNotices(m.transcript.Len())

	if m.processing {
		frame := spinnerFrames[m.spinnerIdx%len(spinnerFrames)]
		fmt.Fprintf(&sb, " %s %s", spinnerStyle.Render(frame), spinnerStyle.Render(m.waitingMsg))
	}

	return strings.TrimRight(sb.String(), "\n")
}

// renderEntry formats one transcript entry as "<Label>: <text>", indenting
// continuation lines so they align under the text.
func (m chatViewModel) renderEntry(e transcript.Entry) string {
	label, style, text := m.userLabel, userLabelStyle, e.Text
	if e.Speaker == transcript.Bot {
		label, style = m.botLabel, botLabelStyle
		text = renderMarkdown(text)
	}

	prefix := style.Render(label + ":")
	lines := strings.Split(text, "\n")

	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteString(" ")
	sb.WriteString(lines[0])
	for _, line := range lines[1:] {
		sb.WriteString("\n  ")
		sb.WriteString(line)
	}

	return entryStyle.Render(sb.String())
}
