package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

type InterviewStatus string

const (
	StatusPending   InterviewStatus = "pending"
	StatusScheduled InterviewStatus = "scheduled"
	StatusCompleted InterviewStatus = "completed"
	StatusCancelled InterviewStatus = "cancelled"
)

var statusRank = map[InterviewStatus]int{
	StatusPending:   0,
	StatusScheduled: 1,
	StatusCompleted: 2,
}

// CanTransition reports whether an interview may move from s to next.
// Status only moves forward; any state other than cancelled may be cancelled.
func (s InterviewStatus) CanTransition(next InterviewStatus) bool {
	if s == StatusCancelled {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// QuestionTypes is the question mix selected for an interview.
type QuestionTypes struct {
	Technical      bool `json:"technical"`
	Behavioral     bool `json:"behavioral"`
	Situational    bool `json:"situational"`
	ProblemSolving bool `json:"problem_solving"`
}

func (q QuestionTypes) Any() bool {
	return q.Technical || q.Behavioral || q.Situational || q.ProblemSolving
}

// Names returns the selected types in a fixed order.
func (q QuestionTypes) Names() []string {
	names := make([]string, 0, 4)
	if q.Technical {
		names = append(names, "technical")
	}
	if q.Behavioral {
		names = append(names, "behavioral")
	}
	if q.Situational {
		names = append(names, "situational")
	}
	if q.ProblemSolving {
		names = append(names, "problem_solving")
	}
	return names
}

const MaxDurationMinutes = 180

// InterviewConfig is captured when the interview is created and never edited afterwards.
type InterviewConfig struct {
	JobPosition     string                            `gorm:"size:255;not null" json:"job_position"`
	JobDescription  string                            `gorm:"type:text" json:"job_description"`
	DurationMinutes int                               `gorm:"not null" json:"duration_minutes"`
	Difficulty      Difficulty                        `gorm:"size:20;not null" json:"difficulty"`
	QuestionTypes   datatypes.JSONType[QuestionTypes] `json:"question_types"`
	CustomQuestions datatypes.JSONSlice[string]       `json:"custom_questions"`
}

// ValidationError carries one message per violated constraint.
type ValidationError struct {
	Messages []string `json:"errors"`
}

func (e *ValidationError) Error() string {
	return "invalid interview configuration: " + strings.Join(e.Messages, "; ")
}

func (c InterviewConfig) Validate() error {
	var msgs []string
	if strings.TrimSpace(c.JobPosition) == "" {
		msgs = append(msgs, "job position is required")
	}
	if c.DurationMinutes <= 0 {
		msgs = append(msgs, "duration must be greater than zero minutes")
	} else if c.DurationMinutes > MaxDurationMinutes {
		msgs = append(msgs, fmt.Sprintf("duration must not exceed %d minutes", MaxDurationMinutes))
	}
	if !c.Difficulty.Valid() {
		msgs = append(msgs, "difficulty must be one of beginner, intermediate, advanced")
	}
	if !c.QuestionTypes.Data().Any() {
		msgs = append(msgs, "select at least one question type")
	}
	for i, q := range c.CustomQuestions {
		if strings.TrimSpace(q) == "" {
			msgs = append(msgs, fmt.Sprintf("custom question %d is empty", i+1))
		}
	}
	if len(msgs) > 0 {
		return &ValidationError{Messages: msgs}
	}
	return nil
}

// Interview is one configured mock interview and its lifecycle.
type Interview struct {
	ID               string                      `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID           string                      `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Config           InterviewConfig             `gorm:"embedded" json:"config"`
	Questions        datatypes.JSONSlice[string] `json:"questions"`
	Status           InterviewStatus             `gorm:"size:20;not null;default:'pending';index" json:"status"`
	TimeTakenSeconds int                         `json:"time_taken_seconds"`
	ScheduledFor     *time.Time                  `json:"scheduled_for,omitempty"`
	CompletedAt      *time.Time                  `json:"completed_at,omitempty"`
	CreatedAt        time.Time                   `json:"created_at"`
	UpdatedAt        time.Time                   `json:"updated_at"`
}

func (i *Interview) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	if i.Status == "" {
		i.Status = StatusPending
	}
	return nil
}

func (i *Interview) IsCompleted() bool {
	return i.Status == StatusCompleted
}
