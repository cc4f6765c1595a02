package services

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

func (r Role) Valid() bool {
	return r == RoleAssistant || r == RoleUser
}

// TranscriptEvent is one transcript update delivered by the voice session.
type TranscriptEvent struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	IsFinal   bool      `json:"isFinal"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationTurn is a finalized utterance.
type ConversationTurn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// TranscriptSnapshot is a copy of the aggregator state at one point in time.
type TranscriptSnapshot struct {
	Turns                []ConversationTurn `json:"turns"`
	Questions            []string           `json:"questions"`
	Answers              []string           `json:"answers"`
	CurrentQuestionIndex int                `json:"currentQuestionIndex"`
	CurrentAssistantText string             `json:"currentAssistantText"`
	CurrentUserText      string             `json:"currentUserText"`
}

// TranscriptAggregator folds transcript events into a structured conversation.
// Events must be applied in arrival order from a single goroutine.
type TranscriptAggregator struct {
	turns         []ConversationTurn
	questions     []string
	answers       []string
	current       map[Role]string
	questionIndex int
	now           func() time.Time
}

func NewTranscriptAggregator() *TranscriptAggregator {
	return &TranscriptAggregator{
		turns:     []ConversationTurn{},
		questions: []string{},
		answers:   []string{},
		current:   make(map[Role]string, 2),
		now:       time.Now,
	}
}

// Apply records one event. Partial events only replace the in-progress
// utterance of their role; final events are appended and never merged with
// the previous turn.
func (a *TranscriptAggregator) Apply(ev TranscriptEvent) error {
	if !ev.Role.Valid() {
		return fmt.Errorf("unknown transcript role %q", ev.Role)
	}

	if !ev.IsFinal {
		a.current[ev.Role] = ev.Text
		return nil
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = a.now()
	}
	a.turns = append(a.turns, ConversationTurn{Role: ev.Role, Text: ev.Text, Timestamp: ts})
	delete(a.current, ev.Role)

	switch ev.Role {
	case RoleAssistant:
		a.questions = append(a.questions, ev.Text)
	case RoleUser:
		a.answers = append(a.answers, ev.Text)
		a.advanceQuestion()
	}
	return nil
}

func (a *TranscriptAggregator) advanceQuestion() {
	limit := len(a.questions) - 1
	if limit < 0 {
		limit = 0
	}
	a.questionIndex++
	if a.questionIndex > limit {
		a.questionIndex = limit
	}
}

func (a *TranscriptAggregator) Turns() []ConversationTurn {
	out := make([]ConversationTurn, len(a.turns))
	copy(out, a.turns)
	return out
}

func (a *TranscriptAggregator) Questions() []string {
	return copyStrings(a.questions)
}

func (a *TranscriptAggregator) Answers() []string {
	return copyStrings(a.answers)
}

func (a *TranscriptAggregator) CurrentQuestionIndex() int {
	return a.questionIndex
}

// CurrentUtterance returns the in-progress text for role, if any.
func (a *TranscriptAggregator) CurrentUtterance(role Role) string {
	return a.current[role]
}

func (a *TranscriptAggregator) Snapshot() TranscriptSnapshot {
	return TranscriptSnapshot{
		Turns:                a.Turns(),
		Questions:            a.Questions(),
		Answers:              a.Answers(),
		CurrentQuestionIndex: a.questionIndex,
		CurrentAssistantText: a.current[RoleAssistant],
		CurrentUserText:      a.current[RoleUser],
	}
}

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
