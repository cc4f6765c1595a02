package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/intervue/backend/models"
	"github.com/intervue/backend/repository"
	ws "github.com/intervue/backend/websocket"
)

type messageSender interface {
	SendJSON(v interface{}) error
}

// Outbound frames.
type stateMessage struct {
	Type string `json:"type"`
	SessionUpdate
}

type voiceMessage struct {
	Type      string           `json:"type"`
	Command   string           `json:"command"`
	Assistant *AssistantConfig `json:"assistant,omitempty"`
}

type completedMessage struct {
	Type        string `json:"type"`
	InterviewID string `json:"interviewId"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// RemoteVoice drives the voice assistant running in the candidate's browser by
// sending it commands over the session socket.
type RemoteVoice struct {
	client messageSender
	mu     sync.Mutex
	muted  bool
}

func NewRemoteVoice(client messageSender) *RemoteVoice {
	return &RemoteVoice{client: client}
}

func (v *RemoteVoice) Start(ctx context.Context, cfg AssistantConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return v.client.SendJSON(voiceMessage{Type: "voice", Command: "start", Assistant: &cfg})
}

func (v *RemoteVoice) Stop() error {
	err := v.client.SendJSON(voiceMessage{Type: "voice", Command: "stop"})
	if errors.Is(err, ws.ErrClientClosed) {
		return nil
	}
	return err
}

func (v *RemoteVoice) SetMuted(muted bool) error {
	command := "unmute"
	if muted {
		command = "mute"
	}
	if err := v.client.SendJSON(voiceMessage{Type: "voice", Command: command}); err != nil {
		return err
	}
	v.mu.Lock()
	v.muted = muted
	v.mu.Unlock()
	return nil
}

func (v *RemoteVoice) IsMuted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.muted
}

// handleSessionMessage routes one inbound frame to the controller.
func handleSessionMessage(ctrl *SessionController, raw []byte) error {
	var msg ws.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}

	switch msg.Type {
	case "command":
		return runSessionCommand(ctrl, msg.Command)
	case string(VoiceCallStart), string(VoiceCallEnd), string(VoiceSpeechStart), string(VoiceSpeechEnd):
		ctrl.HandleVoiceEvent(VoiceEvent{Type: VoiceEventType(msg.Type)})
		return nil
	case string(VoiceMessage):
		role := Role(msg.Role)
		if !role.Valid() {
			return fmt.Errorf("unknown role %q", msg.Role)
		}
		if msg.TranscriptType != "partial" && msg.TranscriptType != "final" {
			return fmt.Errorf("unknown transcript type %q", msg.TranscriptType)
		}
		ctrl.HandleVoiceEvent(VoiceEvent{
			Type: VoiceMessage,
			Transcript: TranscriptEvent{
				Role:      role,
				Text:      msg.Transcript,
				IsFinal:   msg.TranscriptType == "final",
				Timestamp: time.Now(),
			},
		})
		return nil
	case string(VoiceError):
		ctrl.HandleVoiceEvent(VoiceEvent{Type: VoiceError, Error: msg.Error})
		return nil
	}
	return fmt.Errorf("unknown message type %q", msg.Type)
}

func runSessionCommand(ctrl *SessionController, command string) error {
	switch command {
	case "start":
		return ctrl.Start(context.Background())
	case "pause":
		return ctrl.Pause()
	case "resume":
		return ctrl.Resume()
	case "end":
		return ctrl.End(EndUser)
	case "mute":
		return ctrl.SetMuted(true)
	case "unmute":
		return ctrl.SetMuted(false)
	}
	return fmt.Errorf("unknown command %q", command)
}

// SessionSocket upgrades GET /interviews/{id}/session and runs one
// SessionController per connection.
type SessionSocket struct {
	repo            *repository.GORMRepository
	registry        *SessionRegistry
	hub             *ws.Hub
	upgrader        websocket.Upgrader
	analytics       AnalyticsGenerator
	gateway         AnalyticsSaver
	events          EventPublisher
	metrics         *Metrics
	interviewerName string
}

type SessionSocketOptions struct {
	Repo            *repository.GORMRepository
	Registry        *SessionRegistry
	Hub             *ws.Hub
	Upgrader        websocket.Upgrader
	Analytics       AnalyticsGenerator
	Gateway         AnalyticsSaver
	Events          EventPublisher
	Metrics         *Metrics
	InterviewerName string
}

func NewSessionSocket(opts SessionSocketOptions) *SessionSocket {
	return &SessionSocket{
		repo:            opts.Repo,
		registry:        opts.Registry,
		hub:             opts.Hub,
		upgrader:        opts.Upgrader,
		analytics:       opts.Analytics,
		gateway:         opts.Gateway,
		events:          opts.Events,
		metrics:         opts.Metrics,
		interviewerName: opts.InterviewerName,
	}
}

func (s *SessionSocket) Handler(w http.ResponseWriter, r *http.Request) {
	user, err := UserFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	interview, err := s.repo.GetInterviewForUser(r.Context(), id, user.ID)
	if err != nil {
		slog.Error("Failed to get interview", "error", err, "interview_id", id)
		writeError(w, http.StatusInternalServerError, "Failed to get interview")
		return
	}
	if interview == nil {
		writeError(w, http.StatusNotFound, "Interview not found")
		return
	}
	if interview.Status == models.StatusCompleted || interview.Status == models.StatusCancelled {
		writeError(w, http.StatusConflict, fmt.Sprintf("Interview is %s", interview.Status))
		return
	}
	if existing := s.registry.Get(interview.ID); existing != nil && !isDone(existing) {
		writeError(w, http.StatusConflict, ErrSessionActive.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}
	slog.Info("WebSocket connection established", "user_id", user.ID, "interview_id", interview.ID)

	client := s.hub.RegisterClient(conn, user.ID, interview.ID)
	ctrl := NewSessionController(interview, SessionDeps{
		Voice:      NewRemoteVoice(client),
		Analytics:  s.analytics,
		Gateway:    s.gateway,
		Interviews: s.repo,
		Events:     s.events,
		Metrics:    s.metrics,
		Listener:   sessionListener(client),
		Assistant:  BuildAssistantConfig(interview, s.interviewerName),
	})

	if err := s.registry.Register(ctrl); err != nil {
		client.SendJSON(errorMessage{Type: "error", Content: err.Error()})
		ctrl.Close()
		go client.WritePump()
		client.Release()
		return
	}

	client.MessageHandler = func(c *ws.Client, raw []byte) {
		if err := handleSessionMessage(ctrl, raw); err != nil {
			slog.Warn("Session message rejected", "error", err, "interview_id", c.InterviewID)
			c.SendJSON(errorMessage{Type: "error", Content: err.Error()})
		}
	}
	client.OnClose = func(c *ws.Client) {
		endOnDisconnect(ctrl, c.InterviewID)
		s.registry.Remove(c.InterviewID)
	}

	client.SendJSON(stateMessage{Type: "state", SessionUpdate: ctrl.Snapshot()})
	go client.WritePump()
	client.ReadPump()
}

// endOnDisconnect ends a started session whose socket went away. Sessions
// already closed elsewhere (cancel, delete, shutdown) are left alone.
func endOnDisconnect(ctrl *SessionController, interviewID string) bool {
	if isDone(ctrl) {
		return false
	}
	switch ctrl.Snapshot().State {
	case StateActive, StatePaused:
		slog.Info("Socket closed mid-interview, ending session", "interview_id", interviewID)
		if err := ctrl.End(EndRemote); err != nil && !errors.Is(err, ErrSessionClosed) {
			slog.Error("Failed to end session", "error", err, "interview_id", interviewID)
		}
		return true
	}
	return false
}

func sessionListener(client messageSender) SessionListener {
	return func(u SessionUpdate) {
		if err := client.SendJSON(stateMessage{Type: "state", SessionUpdate: u}); err != nil {
			slog.Debug("Dropped session update", "error", err, "interview_id", u.InterviewID)
		}
		if u.State == StateCompleted {
			client.SendJSON(completedMessage{Type: "completed", InterviewID: u.InterviewID})
		}
	}
}
