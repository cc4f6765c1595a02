package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	ws "github.com/intervue/backend/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu     sync.Mutex
	frames []map[string]interface{}
	err    error
}

func (s *recordingSender) SendJSON(v interface{}) error {
	if s.err != nil {
		return s.err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var frame map[string]interface{}
	if err := json.Unmarshal(raw, &frame); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return nil
}

func (s *recordingSender) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, f := range s.frames {
		out = append(out, f["type"].(string))
	}
	return out
}

func TestRemoteVoiceCommands(t *testing.T) {
	sender := &recordingSender{}
	voice := NewRemoteVoice(sender)

	require.NoError(t, voice.Start(context.Background(), AssistantConfig{Name: "Alex", VoiceID: "v1"}))
	require.NoError(t, voice.SetMuted(true))
	assert.True(t, voice.IsMuted())
	require.NoError(t, voice.SetMuted(false))
	require.NoError(t, voice.Stop())

	require.Len(t, sender.frames, 4)
	assert.Equal(t, "start", sender.frames[0]["command"])
	assistant := sender.frames[0]["assistant"].(map[string]interface{})
	assert.Equal(t, "Alex", assistant["name"])
	assert.Equal(t, "mute", sender.frames[1]["command"])
	assert.Equal(t, "unmute", sender.frames[2]["command"])
	assert.Equal(t, "stop", sender.frames[3]["command"])
	assert.NotContains(t, sender.frames[3], "assistant")
}

func TestRemoteVoiceStopOnClosedClient(t *testing.T) {
	voice := NewRemoteVoice(&recordingSender{err: ws.ErrClientClosed})
	assert.NoError(t, voice.Stop())
	assert.Error(t, voice.SetMuted(true))
	assert.False(t, voice.IsMuted())
}

func TestHandleSessionMessage(t *testing.T) {
	f := newControllerFixture(t, 15)
	ctrl := f.ctrl

	require.NoError(t, handleSessionMessage(ctrl, []byte(`{"type":"command","command":"start"}`)))
	assert.Equal(t, StateActive, ctrl.Snapshot().State)

	require.NoError(t, handleSessionMessage(ctrl, []byte(`{"type":"speech-start"}`)))
	require.NoError(t, handleSessionMessage(ctrl, []byte(`{"type":"message","role":"assistant","transcriptType":"partial","transcript":"What is"}`)))
	require.NoError(t, handleSessionMessage(ctrl, []byte(`{"type":"command","command":"mute"}`)))
	snap := ctrl.Snapshot()
	assert.True(t, snap.Muted)
	assert.True(t, snap.AssistantSpeaking)
	assert.Equal(t, "What is", snap.CurrentAssistantText)

	require.NoError(t, handleSessionMessage(ctrl, []byte(`{"type":"message","role":"assistant","transcriptType":"final","transcript":"What is a goroutine?"}`)))
	require.NoError(t, handleSessionMessage(ctrl, []byte(`{"type":"message","role":"user","transcriptType":"final","transcript":"A lightweight thread managed by the runtime"}`)))
	require.NoError(t, handleSessionMessage(ctrl, []byte(`{"type":"command","command":"pause"}`)))
	assert.Empty(t, ctrl.Snapshot().CurrentAssistantText)

	require.NoError(t, handleSessionMessage(ctrl, []byte(`{"type":"command","command":"end"}`)))
	assert.Equal(t, StateCompleted, ctrl.Snapshot().State)
	assert.Equal(t, []string{"A lightweight thread managed by the runtime"}, f.analytics.req.Answers)
}

func TestHandleSessionMessageRejectsBadInput(t *testing.T) {
	f := newControllerFixture(t, 15)

	for _, raw := range []string{
		`not json`,
		`{"type":"command","command":"rewind"}`,
		`{"type":"message","role":"narrator","transcriptType":"final","transcript":"x"}`,
		`{"type":"message","role":"user","transcriptType":"draft","transcript":"x"}`,
		`{"type":"telemetry"}`,
		`{"type":"command","command":"pause"}`,
	} {
		assert.Error(t, handleSessionMessage(f.ctrl, []byte(raw)), raw)
	}
	assert.Equal(t, StateReady, f.ctrl.Snapshot().State)
}

func TestSessionListenerAnnouncesCompletion(t *testing.T) {
	sender := &recordingSender{}
	listener := sessionListener(sender)

	listener(SessionUpdate{InterviewID: "iv-1", State: StateActive})
	listener(SessionUpdate{InterviewID: "iv-1", State: StateCompleted})

	assert.Equal(t, []string{"state", "state", "completed"}, sender.types())
	assert.Equal(t, "iv-1", sender.frames[2]["interviewId"])
	assert.Equal(t, "completed", sender.frames[1]["state"])
}

func TestEndOnDisconnectEndsStartedSession(t *testing.T) {
	f := newControllerFixture(t, 15)
	require.NoError(t, f.ctrl.Start(context.Background()))

	assert.True(t, endOnDisconnect(f.ctrl, "iv-1"))
	assert.Equal(t, StateCompleted, f.ctrl.Snapshot().State)
	assert.Equal(t, EndRemote, f.ctrl.Snapshot().EndReason)
	assert.Equal(t, 1, f.completer.calls)
}

func TestEndOnDisconnectSkipsClosedSession(t *testing.T) {
	f := newControllerFixture(t, 15)
	require.NoError(t, f.ctrl.Start(context.Background()))
	f.ctrl.Close()

	assert.Equal(t, StateActive, f.ctrl.Snapshot().State)
	assert.False(t, endOnDisconnect(f.ctrl, "iv-1"))
	assert.Zero(t, f.completer.calls)
	assert.Zero(t, f.analytics.calls)
}

func TestEndOnDisconnectSkipsUnstartedSession(t *testing.T) {
	f := newControllerFixture(t, 15)

	assert.False(t, endOnDisconnect(f.ctrl, "iv-1"))
	assert.Equal(t, StateReady, f.ctrl.Snapshot().State)
}
