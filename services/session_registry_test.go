package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRegistryRejectsSecondSession(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	r := NewSessionRegistry(time.Minute, time.Hour, metrics)
	t.Cleanup(r.Shutdown)

	first := newControllerFixture(t, 15)
	second := newControllerFixture(t, 15)

	require.NoError(t, r.Register(first.ctrl))
	assert.ErrorIs(t, r.Register(second.ctrl), ErrSessionActive)
	assert.Same(t, first.ctrl, r.Get(first.ctrl.InterviewID()))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ActiveSessions))
}

func TestSessionRegistryForgetsFinishedSessions(t *testing.T) {
	r := NewSessionRegistry(time.Minute, time.Hour, nil)
	t.Cleanup(r.Shutdown)

	f := newControllerFixture(t, 15)
	require.NoError(t, r.Register(f.ctrl))
	require.NoError(t, f.ctrl.Start(context.Background()))
	require.NoError(t, f.ctrl.End(EndUser))

	assert.Eventually(t, func() bool { return r.Count() == 0 }, time.Second, 5*time.Millisecond)

	next := newControllerFixture(t, 15)
	assert.NoError(t, r.Register(next.ctrl))
}

func TestSessionRegistrySweepsIdleSessions(t *testing.T) {
	r := NewSessionRegistry(time.Minute, time.Hour, nil)
	t.Cleanup(r.Shutdown)

	started := newControllerFixture(t, 15)
	require.NoError(t, started.ctrl.Start(context.Background()))
	require.NoError(t, r.Register(started.ctrl))

	r.sweep(time.Now().Add(2 * time.Minute))

	<-started.ctrl.Done()
	assert.Equal(t, EndTimeout, started.ctrl.Snapshot().EndReason)
	assert.Equal(t, 1, started.completer.calls)
	assert.Eventually(t, func() bool { return r.Count() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSessionRegistryClosesIdleUnstartedSessions(t *testing.T) {
	r := NewSessionRegistry(time.Minute, time.Hour, nil)
	t.Cleanup(r.Shutdown)

	f := newControllerFixture(t, 15)
	require.NoError(t, r.Register(f.ctrl))

	r.sweep(time.Now().Add(30 * time.Second))
	assert.Equal(t, 1, r.Count(), "not idle yet")

	r.sweep(time.Now().Add(2 * time.Minute))
	assert.Equal(t, 0, r.Count())
	assert.Equal(t, 0, f.completer.calls)
	assert.ErrorIs(t, f.ctrl.Start(context.Background()), ErrSessionClosed)
}
