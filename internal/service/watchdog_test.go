package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticStatus struct{ st Status }

func (s *staticStatus) Status() Status { return s.st }

func TestWatchdogCheck(t *testing.T) {
	src := &staticStatus{}
	alerts := &recordingAlerter{}
	w := NewWatchdog(src, alerts, 2*time.Minute, 30*time.Second)
	ctx := context.Background()
	beat := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)

	steps := []struct {
		name   string
		status Status
		alerts int
	}{
		{"stopped loop is ignored", Status{Running: false, LastHeartbeat: beat, HeartbeatAge: time.Hour}, 0},
		{"fresh heartbeat", Status{Running: true, LastHeartbeat: beat, HeartbeatAge: 40 * time.Second}, 0},
		{"stale heartbeat alerts", Status{Running: true, LastHeartbeat: beat, HeartbeatAge: 3 * time.Minute}, 1},
		{"still stale alerts once", Status{Running: true, LastHeartbeat: beat, HeartbeatAge: 5 * time.Minute}, 1},
		{"recovered", Status{Running: true, LastHeartbeat: beat, HeartbeatAge: 10 * time.Second}, 2},
		{"paused loop is ignored", Status{Running: true, Paused: true, LastHeartbeat: beat, HeartbeatAge: time.Hour}, 2},
	}
	for _, step := range steps {
		src.st = step.status
		w.Check(ctx)
		assert.Len(t, alerts.Messages(), step.alerts, step.name)
	}
	assert.Equal(t, 1, alerts.Count("unresponsive"))
	assert.Equal(t, 1, alerts.Count("recovered"))
}

func TestWatchdogStartStop(t *testing.T) {
	w := NewWatchdog(&staticStatus{}, &recordingAlerter{}, time.Minute, time.Second)
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
}
