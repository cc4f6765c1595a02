package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/intervue/backend/models"
)

type SessionState string

const (
	StateReady     SessionState = "ready"
	StateActive    SessionState = "active"
	StatePaused    SessionState = "paused"
	StateCompleted SessionState = "completed"
)

type EndReason string

const (
	EndUser    EndReason = "user_ended"
	EndRemote  EndReason = "remote_ended"
	EndTimeout EndReason = "timed_out"
)

var (
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrSessionClosed     = errors.New("session closed")
)

const defaultPipelineTimeout = 2 * time.Minute

// AssistantConfig is handed to the voice session when the call starts.
type AssistantConfig struct {
	Name         string   `json:"name"`
	VoiceID      string   `json:"voiceId"`
	FirstMessage string   `json:"firstMessage"`
	SystemPrompt string   `json:"systemPrompt"`
	Questions    []string `json:"questions"`
}

// VoiceSession is the external real-time voice assistant.
type VoiceSession interface {
	Start(ctx context.Context, cfg AssistantConfig) error
	Stop() error
	SetMuted(muted bool) error
	IsMuted() bool
}

// Ticker is the periodic timer source of a session.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFactory func(d time.Duration) Ticker

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

type VoiceEventType string

const (
	VoiceCallStart   VoiceEventType = "call-start"
	VoiceCallEnd     VoiceEventType = "call-end"
	VoiceSpeechStart VoiceEventType = "speech-start"
	VoiceSpeechEnd   VoiceEventType = "speech-end"
	VoiceMessage     VoiceEventType = "message"
	VoiceError       VoiceEventType = "error"
)

// VoiceEvent is one event delivered by the voice session.
type VoiceEvent struct {
	Type       VoiceEventType
	Transcript TranscriptEvent
	Error      string
}

// SessionUpdate is the observable state of a session after each handled input.
type SessionUpdate struct {
	InterviewID          string       `json:"interviewId"`
	State                SessionState `json:"state"`
	ElapsedSeconds       int          `json:"elapsedSeconds"`
	Elapsed              string       `json:"elapsed"`
	Muted                bool         `json:"muted"`
	AssistantSpeaking    bool         `json:"assistantSpeaking"`
	CurrentQuestionIndex int          `json:"currentQuestionIndex"`
	CurrentAssistantText string       `json:"currentAssistantText,omitempty"`
	CurrentUserText      string       `json:"currentUserText,omitempty"`
	EndReason            EndReason    `json:"endReason,omitempty"`
	LastError            string       `json:"lastError,omitempty"`
}

// SessionListener receives updates on the controller goroutine. It must not
// block and must not call back into the controller.
type SessionListener func(SessionUpdate)

type AnalyticsGenerator interface {
	Build(ctx context.Context, req AnalyticsRequest) (*models.AnalyticsResult, error)
}

type AnalyticsSaver interface {
	Save(ctx context.Context, interview *models.Interview, result *models.AnalyticsResult, stats SessionStats) error
}

type InterviewCompleter interface {
	CompleteInterview(ctx context.Context, id string, timeTakenSeconds int) error
}

// SessionDeps are the collaborators of a SessionController. Events, Metrics
// and Listener are optional.
type SessionDeps struct {
	Voice           VoiceSession
	Analytics       AnalyticsGenerator
	Gateway         AnalyticsSaver
	Interviews      InterviewCompleter
	Events          EventPublisher
	Metrics         *Metrics
	NewTicker       TickerFactory
	Listener        SessionListener
	Assistant       AssistantConfig
	PipelineTimeout time.Duration
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdPause
	cmdResume
	cmdEnd
	cmdMute
)

type sessionInput struct {
	cmd    commandKind
	ctx    context.Context
	reason EndReason
	muted  bool
	voice  *VoiceEvent
	reply  chan error
}

// SessionController drives one interview attempt. Every input is handled on a
// single goroutine, which is the only place state transitions are decided.
type SessionController struct {
	interview *models.Interview
	deps      SessionDeps

	inbox     chan sessionInput
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu           sync.RWMutex
	snapshot     SessionUpdate
	lastActivity atomic.Int64

	// owned by the run goroutine
	state      SessionState
	elapsed    int
	ticker     Ticker
	voiceOpen  bool
	muted      bool
	speaking   bool
	reason     EndReason
	lastError  string
	transcript *TranscriptAggregator
}

func NewSessionController(interview *models.Interview, deps SessionDeps) *SessionController {
	if deps.NewTicker == nil {
		deps.NewTicker = NewTimeTicker
	}
	if deps.PipelineTimeout <= 0 {
		deps.PipelineTimeout = defaultPipelineTimeout
	}
	if deps.Events == nil {
		deps.Events = NoopPublisher{}
	}

	c := &SessionController{
		interview:  interview,
		deps:       deps,
		inbox:      make(chan sessionInput, 64),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		state:      StateReady,
		transcript: NewTranscriptAggregator(),
	}
	c.touch()
	c.snapshot = c.buildUpdate()
	go c.run()
	return c
}

func (c *SessionController) InterviewID() string { return c.interview.ID }

// Done is closed once the controller has completed or been closed.
func (c *SessionController) Done() <-chan struct{} { return c.done }

func (c *SessionController) Snapshot() SessionUpdate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

func (c *SessionController) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

func (c *SessionController) Start(ctx context.Context) error {
	return c.command(sessionInput{cmd: cmdStart, ctx: ctx})
}

func (c *SessionController) Pause() error {
	return c.command(sessionInput{cmd: cmdPause})
}

func (c *SessionController) Resume() error {
	return c.command(sessionInput{cmd: cmdResume})
}

// End stops the session and returns once analytics and the status update have
// been attempted. Ending a completed session is a no-op.
func (c *SessionController) End(reason EndReason) error {
	return c.command(sessionInput{cmd: cmdEnd, reason: reason})
}

func (c *SessionController) SetMuted(muted bool) error {
	return c.command(sessionInput{cmd: cmdMute, muted: muted})
}

func (c *SessionController) ToggleMute() error {
	return c.SetMuted(!c.Snapshot().Muted)
}

// HandleVoiceEvent queues an event from the voice session. Events arriving
// after the session finished are dropped.
func (c *SessionController) HandleVoiceEvent(ev VoiceEvent) {
	select {
	case c.inbox <- sessionInput{voice: &ev}:
	case <-c.done:
	}
}

// Close releases the timer and voice session without running the completion
// steps. It is safe to call more than once and after End.
func (c *SessionController) Close() {
	c.closeOnce.Do(func() { close(c.quit) })
	<-c.done
}

func (c *SessionController) command(in sessionInput) error {
	in.reply = make(chan error, 1)
	select {
	case c.inbox <- in:
	case <-c.done:
		return c.afterDone(in.cmd)
	}
	select {
	case err := <-in.reply:
		return err
	case <-c.done:
		select {
		case err := <-in.reply:
			return err
		default:
			return c.afterDone(in.cmd)
		}
	}
}

func (c *SessionController) afterDone(cmd commandKind) error {
	if c.Snapshot().State == StateCompleted {
		if cmd == cmdEnd {
			return nil
		}
		return ErrInvalidTransition
	}
	return ErrSessionClosed
}

func (c *SessionController) run() {
	defer close(c.done)
	defer c.release()

	for {
		var tick <-chan time.Time
		if c.ticker != nil {
			tick = c.ticker.C()
		}

		select {
		case <-c.quit:
			slog.Info("Session closed", "interview_id", c.interview.ID, "state", c.state)
			return
		case <-tick:
			c.onTick()
		case in := <-c.inbox:
			if in.voice != nil {
				c.onVoiceEvent(*in.voice)
			} else {
				err := c.onCommand(in)
				c.publish()
				in.reply <- err
				c.touch()
				if c.state == StateCompleted {
					return
				}
				continue
			}
		}
		c.touch()
		c.publish()
		if c.state == StateCompleted {
			return
		}
	}
}

func (c *SessionController) onCommand(in sessionInput) error {
	switch in.cmd {
	case cmdStart:
		if c.state != StateReady {
			return fmt.Errorf("%w: start from %s", ErrInvalidTransition, c.state)
		}
		ctx := in.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		if err := c.deps.Voice.Start(ctx, c.deps.Assistant); err != nil {
			slog.Error("Failed to start voice session", "error", err, "interview_id", c.interview.ID)
			return fmt.Errorf("failed to start voice session: %w", err)
		}
		c.voiceOpen = true
		c.muted = c.deps.Voice.IsMuted()
		c.startTimer()
		c.transition(StateActive)
		return nil

	case cmdPause:
		if c.state != StateActive {
			return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, c.state)
		}
		c.stopTimer()
		c.transition(StatePaused)
		return nil

	case cmdResume:
		if c.state != StatePaused {
			return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, c.state)
		}
		c.startTimer()
		c.transition(StateActive)
		return nil

	case cmdEnd:
		if c.state == StateCompleted {
			return nil
		}
		if c.state != StateActive && c.state != StatePaused {
			return fmt.Errorf("%w: end from %s", ErrInvalidTransition, c.state)
		}
		c.end(in.reason)
		return nil

	case cmdMute:
		if c.state != StateActive && c.state != StatePaused {
			return fmt.Errorf("%w: mute from %s", ErrInvalidTransition, c.state)
		}
		if err := c.deps.Voice.SetMuted(in.muted); err != nil {
			return fmt.Errorf("failed to set mute: %w", err)
		}
		c.muted = c.deps.Voice.IsMuted()
		return nil
	}
	return fmt.Errorf("unknown session command %d", in.cmd)
}

func (c *SessionController) onVoiceEvent(ev VoiceEvent) {
	switch ev.Type {
	case VoiceCallStart:
		slog.Info("Voice call started", "interview_id", c.interview.ID)
	case VoiceSpeechStart:
		c.speaking = true
	case VoiceSpeechEnd:
		c.speaking = false
	case VoiceMessage:
		if c.state != StateActive && c.state != StatePaused {
			slog.Debug("Dropping transcript outside an active session", "interview_id", c.interview.ID, "state", c.state)
			return
		}
		if err := c.transcript.Apply(ev.Transcript); err != nil {
			slog.Warn("Rejected transcript event", "error", err, "interview_id", c.interview.ID)
		}
	case VoiceCallEnd:
		if c.state == StateActive || c.state == StatePaused {
			c.end(EndRemote)
		}
	case VoiceError:
		c.lastError = ev.Error
		slog.Error("Voice session error", "error", ev.Error, "interview_id", c.interview.ID)
	default:
		slog.Warn("Unknown voice event", "type", ev.Type, "interview_id", c.interview.ID)
	}
}

func (c *SessionController) onTick() {
	if c.state != StateActive {
		return
	}
	c.elapsed++
	limit := c.interview.Config.DurationMinutes * 60
	if limit > 0 && c.elapsed >= limit {
		slog.Info("Interview time limit reached", "interview_id", c.interview.ID, "elapsed_seconds", c.elapsed)
		c.end(EndTimeout)
	}
}

// end releases the timer and voice session, enters completed and runs the
// completion steps once.
func (c *SessionController) end(reason EndReason) {
	c.stopTimer()
	c.closeVoice()
	c.reason = reason
	c.speaking = false
	c.transition(StateCompleted)
	c.deps.Metrics.recordSessionEnded(reason)
	slog.Info("Interview session ended", "interview_id", c.interview.ID, "reason", reason, "elapsed", FormatElapsed(c.elapsed))

	c.complete()
}

func (c *SessionController) complete() {
	ctx, cancel := context.WithTimeout(context.Background(), c.deps.PipelineTimeout)
	defer cancel()

	questions := c.transcript.Questions()
	answers := c.transcript.Answers()
	req := AnalyticsRequest{
		Interview:      c.interview,
		Questions:      questions,
		Answers:        answers,
		ElapsedSeconds: c.elapsed,
		Attempted:      true,
	}

	result, err := c.deps.Analytics.Build(ctx, req)
	if err != nil {
		slog.Error("Failed to build analytics", "error", err, "interview_id", c.interview.ID)
		c.deps.Metrics.recordPipelineError("analytics")
	}

	if result != nil {
		stats := SessionStats{
			TotalQuestions:      len(questionsFor(req)),
			QuestionsAnswered:   countAnswered(answers),
			AverageResponseTime: averageResponseTime(c.transcript.Turns()),
		}
		if err := c.deps.Gateway.Save(ctx, c.interview, result, stats); err != nil {
			slog.Error("Failed to persist analytics", "error", err, "interview_id", c.interview.ID)
			c.deps.Metrics.recordPipelineError("persist")
		}
	}

	if err := c.deps.Interviews.CompleteInterview(ctx, c.interview.ID, c.elapsed); err != nil {
		slog.Error("Failed to mark interview completed", "error", err, "interview_id", c.interview.ID)
		c.deps.Metrics.recordPipelineError("status")
	}

	event := CompletionEvent{
		InterviewID:      c.interview.ID,
		UserID:           c.interview.UserID,
		Reason:           string(c.reason),
		TimeTakenSeconds: c.elapsed,
		CompletedAt:      time.Now().UTC(),
	}
	if result != nil {
		event.OverallScore = result.OverallScore
		event.Source = result.Source
	}
	if err := c.deps.Events.PublishInterviewCompleted(ctx, event); err != nil {
		slog.Error("Failed to publish completion event", "error", err, "interview_id", c.interview.ID)
		c.deps.Metrics.recordPipelineError("publish")
	}
}

func (c *SessionController) transition(to SessionState) {
	from := c.state
	c.state = to
	c.deps.Metrics.recordTransition(from, to)
	slog.Debug("Session state changed", "interview_id", c.interview.ID, "from", from, "to", to)
}

func (c *SessionController) startTimer() {
	if c.ticker == nil {
		c.ticker = c.deps.NewTicker(time.Second)
	}
}

func (c *SessionController) stopTimer() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
}

func (c *SessionController) closeVoice() {
	if !c.voiceOpen {
		return
	}
	c.voiceOpen = false
	if err := c.deps.Voice.Stop(); err != nil {
		slog.Warn("Failed to stop voice session", "error", err, "interview_id", c.interview.ID)
	}
}

func (c *SessionController) release() {
	c.stopTimer()
	c.closeVoice()
	c.publish()
}

func (c *SessionController) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *SessionController) buildUpdate() SessionUpdate {
	return SessionUpdate{
		InterviewID:          c.interview.ID,
		State:                c.state,
		ElapsedSeconds:       c.elapsed,
		Elapsed:              FormatElapsed(c.elapsed),
		Muted:                c.muted,
		AssistantSpeaking:    c.speaking,
		CurrentQuestionIndex: c.transcript.CurrentQuestionIndex(),
		CurrentAssistantText: c.transcript.CurrentUtterance(RoleAssistant),
		CurrentUserText:      c.transcript.CurrentUtterance(RoleUser),
		EndReason:            c.reason,
		LastError:            c.lastError,
	}
}

func (c *SessionController) publish() {
	update := c.buildUpdate()
	c.mu.Lock()
	changed := update != c.snapshot
	c.snapshot = update
	c.mu.Unlock()

	if changed && c.deps.Listener != nil {
		c.deps.Listener(update)
	}
}

// FormatElapsed renders seconds as m:ss.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func countAnswered(answers []string) int {
	n := 0
	for _, a := range answers {
		if strings.TrimSpace(a) != "" {
			n++
		}
	}
	return n
}

// averageResponseTime is the mean gap in seconds between an assistant turn and
// the user turn that follows it.
func averageResponseTime(turns []ConversationTurn) float64 {
	var total time.Duration
	var n int
	for i := 1; i < len(turns); i++ {
		if turns[i].Role == RoleUser && turns[i-1].Role == RoleAssistant {
			if gap := turns[i].Timestamp.Sub(turns[i-1].Timestamp); gap > 0 {
				total += gap
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return (total / time.Duration(n)).Seconds()
}
