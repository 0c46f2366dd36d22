package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/germanamz/granitechat/pkg/modeladapter/usage"
)

// statusBarModel shows the request state, timing, and token usage.
type statusBarModel struct {
	usage    *usage.Tracker
	maxTok   int
	duration time.Duration
	sources  int
	dropped  int
	awaiting bool
}

func newStatusBar(tracker *usage.Tracker, maxTokens int) statusBarModel {
	return statusBarModel{usage: tracker, maxTok: maxTokens}
}

func (m statusBarModel) View() string {
	var parts []string

	if m.awaiting {
		parts = append(parts, "esc to cancel")
	}

	if m.duration > 0 {
		parts = append(parts, fmtDuration(m.duration))
	}

	if m.sources > 0 || m.dropped > 0 {
		s := fmt.Sprintf("sources: %d", m.sources)
		if m.dropped > 0 {
			s += fmt.Sprintf(" (+%d dropped)", m.dropped)
		}
		parts = append(parts, s)
	}

	if m.usage != nil {
		if last, ok := m.usage.Last(); ok {
			total := m.usage.Total()
			parts = append(parts, fmt.Sprintf("last: ↑%s ↓%s · total: ↑%s ↓%s",
				fmtTokens(last.InputTokens),
				fmtTokens(last.OutputTokens),
				fmtTokens(total.InputTokens),
				fmtTokens(total.OutputTokens),
			))
			if m.maxTok > 0 {
				parts = append(parts, "max new: "+fmtTokens(m.maxTok))
			}
		}
	}

	parts = append(parts, "/help")

	return statusStyle.Render(" " + strings.Join(parts, " · "))
}
