package main

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

const sendLabel = "Send"

// focusTarget is the control that receives key input.
type focusTarget int

const (
	focusField focusTarget = iota
	focusSend
)

type inputKeyMap struct {
	Submit      key.Binding
	ToggleFocus key.Binding
}

var inputKeys = inputKeyMap{
	Submit:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
	ToggleFocus: key.NewBinding(key.WithKeys("tab", "shift+tab"), key.WithHelp("tab", "switch focus")),
}

// inputModel is a single-line text field next to a Send control.
type inputModel struct {
	field   textinput.Model
	focus   focusTarget
	enabled bool
	width   int
}

func newInput() inputModel {
	ti := textinput.New()
	ti.Placeholder = "Ask a question..."
	ti.PlaceholderStyle = dimStyle
	ti.Prompt = "> "
	ti.CharLimit = 0
	// Don't focus yet: the terminal may still be sending OSC responses that
	// bubbletea misinterprets as key events. appModel focuses after a drain.

	return inputModel{field: ti}
}

func (m inputModel) Update(msg tea.Msg) (inputModel, tea.Cmd) {
	if !m.enabled {
		return m, nil
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(keyMsg, inputKeys.ToggleFocus):
			return m, m.toggleFocus()

		case key.Matches(keyMsg, inputKeys.Submit):
			return m.submit()
		}

		if m.focus == focusSend {
			// The Send control only reacts to Enter and focus changes.
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.field, cmd = m.field.Update(msg)
	return m, cmd
}

// submit emits inputSubmitMsg with the trimmed text and clears the field.
// Whitespace-only input is ignored and left in place.
func (m inputModel) submit() (inputModel, tea.Cmd) {
	text := strings.TrimSpace(m.field.Value())
	if text == "" {
		return m, nil
	}

	m.field.Reset()

	return m, func() tea.Msg { return inputSubmitMsg{text: text} }
}

func (m *inputModel) toggleFocus() tea.Cmd {
	if m.focus == focusField {
		m.focus = focusSend
		m.field.Blur()
		return nil
	}

	m.focus = focusField
	return m.field.Focus()
}

func (m inputModel) View() string {
	fieldBorder, buttonBorder := blurredBorder, blurredBorder
	switch {
	case !m.enabled:
		fieldBorder, buttonBorder = disabledBorder, disabledBorder
	case m.focus == focusField:
		fieldBorder = focusedBorder
	default:
		buttonBorder = focusedBorder
	}

	button := buttonBorder.Padding(0, 1).Render(sendLabel)
	field := fieldBorder.Width(m.fieldWidth()).Render(m.field.View())

	return lipgloss.JoinHorizontal(lipgloss.Top, field, button)
}

func (m *inputModel) setWidth(w int) {
	m.width = w
	m.field.Width = max(m.fieldWidth()-runewidth.StringWidth(m.field.Prompt)-1, 1)
}

// fieldWidth is the inner width of the text field box: the row minus the
// Send control (label, padding, border) and the field's own border.
func (m inputModel) fieldWidth() int {
	button := runewidth.StringWidth(sendLabel) + 2 + 2
	return max(m.width-button-2, 10)
}

// viewHeight returns the rendered height of the input row.
func (m inputModel) viewHeight() int {
	return lipgloss.Height(m.View())
}

func (m *inputModel) enable() tea.Cmd {
	m.enabled = true
	if m.focus == focusField {
		return m.field.Focus()
	}
	return nil
}

func (m *inputModel) disable() {
	m.enabled = false
	m.field.Blur()
}

// value returns the current, untrimmed field contents.
func (m inputModel) value() string {
	return m.field.Value()
}
