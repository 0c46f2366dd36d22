package main

import (
	"time"

	"github.com/germanamz/granitechat/pkg/qa"
)

// inputSubmitMsg carries the trimmed text the user sent.
type inputSubmitMsg struct {
	text string
}

// answerMsg is returned by the tea.Cmd that calls the façade. gen identifies
// the request so results of cancelled requests can be dropped.
type answerMsg struct {
	gen      int
	answer   qa.Answer
	err      error
	duration time.Duration
}

// initDrainMsg fires after a short delay so that stale terminal responses
// (e.g. OSC 11 background-color replies) are discarded before focusing input.
type initDrainMsg struct{}

// tickMsg drives the spinner while request gen is in flight. Ticks from
// earlier requests are dropped so each request runs a single tick loop.
type tickMsg struct {
	gen int
}
