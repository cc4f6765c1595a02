package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptAggregatorEmpty(t *testing.T) {
	a := NewTranscriptAggregator()

	assert.NotNil(t, a.Questions())
	assert.NotNil(t, a.Answers())
	assert.NotNil(t, a.Turns())
	assert.Empty(t, a.Questions())
	assert.Equal(t, 0, a.CurrentQuestionIndex())

	snap := a.Snapshot()
	assert.NotNil(t, snap.Questions)
	assert.NotNil(t, snap.Answers)
}

func TestTranscriptAggregatorPartialsAreNotRecorded(t *testing.T) {
	a := NewTranscriptAggregator()

	require.NoError(t, a.Apply(TranscriptEvent{Role: RoleAssistant, Text: "Tell me", IsFinal: false}))
	require.NoError(t, a.Apply(TranscriptEvent{Role: RoleUser, Text: "I", IsFinal: false}))

	assert.Equal(t, "Tell me", a.CurrentUtterance(RoleAssistant))
	assert.Equal(t, "I", a.CurrentUtterance(RoleUser))
	assert.Empty(t, a.Turns())

	require.NoError(t, a.Apply(TranscriptEvent{Role: RoleAssistant, Text: "Tell me about yourself", IsFinal: true}))
	assert.Empty(t, a.CurrentUtterance(RoleAssistant))
	assert.Equal(t, "I", a.CurrentUtterance(RoleUser), "final for one role leaves the other role untouched")
	assert.Equal(t, []string{"Tell me about yourself"}, a.Questions())
}

func TestTranscriptAggregatorBackToBackFinalsAreNotMerged(t *testing.T) {
	a := NewTranscriptAggregator()
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	events := []TranscriptEvent{
		{Role: RoleAssistant, Text: "Q1", IsFinal: true, Timestamp: ts},
		{Role: RoleAssistant, Text: "Q2", IsFinal: true, Timestamp: ts},
		{Role: RoleUser, Text: "A1", IsFinal: true, Timestamp: ts},
		{Role: RoleUser, Text: "A2", IsFinal: true, Timestamp: ts},
	}
	for _, ev := range events {
		require.NoError(t, a.Apply(ev))
	}

	assert.Equal(t, []string{"Q1", "Q2"}, a.Questions())
	assert.Equal(t, []string{"A1", "A2"}, a.Answers())

	turns := a.Turns()
	require.Len(t, turns, 4)
	assert.Equal(t, ConversationTurn{Role: RoleUser, Text: "A2", Timestamp: ts}, turns[3])
}

func TestTranscriptAggregatorQuestionIndexIsCapped(t *testing.T) {
	a := NewTranscriptAggregator()

	require.NoError(t, a.Apply(TranscriptEvent{Role: RoleUser, Text: "hello", IsFinal: true}))
	assert.Equal(t, 0, a.CurrentQuestionIndex(), "no questions yet")

	require.NoError(t, a.Apply(TranscriptEvent{Role: RoleAssistant, Text: "Q1", IsFinal: true}))
	require.NoError(t, a.Apply(TranscriptEvent{Role: RoleAssistant, Text: "Q2", IsFinal: true}))
	require.NoError(t, a.Apply(TranscriptEvent{Role: RoleUser, Text: "A1", IsFinal: true}))
	assert.Equal(t, 1, a.CurrentQuestionIndex())

	require.NoError(t, a.Apply(TranscriptEvent{Role: RoleUser, Text: "A2", IsFinal: true}))
	require.NoError(t, a.Apply(TranscriptEvent{Role: RoleUser, Text: "A3", IsFinal: true}))
	assert.Equal(t, 1, a.CurrentQuestionIndex())
}

func TestTranscriptAggregatorRejectsUnknownRole(t *testing.T) {
	a := NewTranscriptAggregator()
	err := a.Apply(TranscriptEvent{Role: "system", Text: "x", IsFinal: true})
	assert.Error(t, err)
	assert.Empty(t, a.Turns())
}

func TestTranscriptAggregatorReturnsCopies(t *testing.T) {
	a := NewTranscriptAggregator()
	require.NoError(t, a.Apply(TranscriptEvent{Role: RoleAssistant, Text: "Q1", IsFinal: true}))

	qs := a.Questions()
	qs[0] = "mutated"
	assert.Equal(t, []string{"Q1"}, a.Questions())
}
