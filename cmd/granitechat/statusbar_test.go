package main

import (
	"testing"
	"time"

	"github.com/germanamz/granitechat/pkg/modeladapter/usage"
	"github.com/stretchr/testify/assert"
)

func TestStatusBar_Idle(t *testing.T) {
	sb := newStatusBar(nil, 0)

	view := sb.View()
	assert.Contains(t, view, "/help")
	assert.NotContains(t, view, "esc to cancel")
}

func TestStatusBar_Awaiting(t *testing.T) {
	sb := newStatusBar(nil, 0)
	sb.awaiting = true

	assert.Contains(t, sb.View(), "esc to cancel")
}

func TestStatusBar_UsageAndSources(t *testing.T) {
	tracker := &usage.Tracker{}
	tracker.Add(usage.TokenCount{InputTokens: 1200, OutputTokens: 40})
	tracker.Add(usage.TokenCount{InputTokens: 800, OutputTokens: 60})

	sb := newStatusBar(tracker, 100)
	sb.duration = 2 * time.Second
	sb.sources = 3
	sb.dropped = 1

	view := sb.View()
	assert.Contains(t, view, "2.0s")
	assert.Contains(t, view, "sources: 3 (+1 dropped)")
	assert.Contains(t, view, "last: ↑800 ↓60")
	assert.Contains(t, view, "total: ↑2.0k ↓100")
	assert.Contains(t, view, "max new: 100")
}

func TestStatusBar_NoUsageYet(t *testing.T) {
	sb := newStatusBar(&usage.Tracker{}, 100)
	assert.NotContains(t, sb.View(), "last:")
}
