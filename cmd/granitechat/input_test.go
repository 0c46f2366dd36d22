package main

import (
	"testing"

	"github.com/charmbracelet/bubbles/cursor"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInput() inputModel {
	m := newInput()
	m.field.Cursor.SetMode(cursor.CursorStatic)
	m.setWidth(80)
	m.enable()
	return m
}

func typeInto(m inputModel, s string) inputModel {
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return m
}

func TestInput_SubmitTrimsAndClears(t *testing.T) {
	m := typeInto(newTestInput(), "  Hello  ")

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, inputSubmitMsg{text: "Hello"}, cmd())
	assert.Empty(t, m.value())
}

func TestInput_WhitespaceNotSubmitted(t *testing.T) {
	m := typeInto(newTestInput(), "   ")

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Equal(t, "   ", m.value())
}

func TestInput_DisabledIgnoresKeys(t *testing.T) {
	m := newTestInput()
	m.disable()

	m = typeInto(m, "abc")
	assert.Empty(t, m.value())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
}

func TestInput_ToggleFocus(t *testing.T) {
	m := newTestInput()
	require.Equal(t, focusField, m.focus)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, focusSend, m.focus)
	assert.False(t, m.field.Focused())

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, focusField, m.focus)
	assert.True(t, m.field.Focused())
}

func TestInput_EnableKeepsSendFocus(t *testing.T) {
	m := newTestInput()
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})

	m.disable()
	m.enable()

	assert.Equal(t, focusSend, m.focus)
	assert.False(t, m.field.Focused())
}

func TestInput_ViewShowsSendControl(t *testing.T) {
	m := newTestInput()

	assert.Contains(t, m.View(), sendLabel)
	assert.Equal(t, 3, m.viewHeight())
}

func TestInput_FieldWidth(t *testing.T) {
	m := newTestInput()
	assert.Equal(t, 80-8-2, m.fieldWidth())

	m.setWidth(5)
	assert.Equal(t, 10, m.fieldWidth())
}
