package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	SourceAI       = "ai"
	SourceFallback = "fallback"
	SourcePreview  = "preview"
)

// AnalyticsResult is the scored outcome of one interview attempt, in API vocabulary.
type AnalyticsResult struct {
	OverallScore        int                `json:"overallScore"`
	TechnicalScore      int                `json:"technicalScore"`
	CommunicationScore  int                `json:"communicationScore"`
	ProblemSolvingScore int                `json:"problemSolvingScore"`
	ConfidenceScore     int                `json:"confidenceScore"`
	FeedbackSummary     string             `json:"feedbackSummary"`
	Strengths           []string           `json:"strengths"`
	Improvements        []string           `json:"improvements"`
	AIRecommendation    string             `json:"aiRecommendation"`
	QuestionScores      map[string]float64 `json:"questionScores"`
	ResponseQuality     map[string]string  `json:"responseQuality"`
	TimeTaken           map[string]float64 `json:"timeTaken"`
	Source              string             `json:"source"`
	IsPreview           bool               `json:"isPreview"`
}

// AnalyticsReport is the joined read view of the summary and performance records.
type AnalyticsReport struct {
	AnalyticsResult
	InterviewID         string    `json:"interviewId"`
	UserID              string    `json:"userId"`
	JobPosition         string    `json:"jobPosition"`
	Status              string    `json:"status"`
	TotalQuestions      int       `json:"totalQuestions"`
	QuestionsAnswered   int       `json:"questionsAnswered"`
	AverageResponseTime float64   `json:"averageResponseTime"`
	CreatedAt           time.Time `json:"createdAt"`
}

// InterviewAnalytics is the summary record kept per completed interview.
type InterviewAnalytics struct {
	ID              string                      `gorm:"type:varchar(36);primaryKey" json:"id" mapstructure:"-"`
	InterviewID     string                      `gorm:"type:varchar(36);not null;uniqueIndex" json:"interview_id" mapstructure:"interview_id"`
	UserID          string                      `gorm:"type:varchar(64);not null;index" json:"user_id" mapstructure:"user_id"`
	JobPosition     string                      `gorm:"size:255" json:"job_position" mapstructure:"job_position"`
	OverallScore    int                         `gorm:"not null" json:"overall_score" mapstructure:"overall_score"`
	FeedbackSummary string                      `gorm:"type:text" json:"feedback_summary" mapstructure:"feedback_summary"`
	Strengths       datatypes.JSONSlice[string] `json:"strengths" mapstructure:"strengths"`
	Improvements    datatypes.JSONSlice[string] `json:"improvements" mapstructure:"improvements"`
	Status          string                      `gorm:"size:20;not null" json:"status" mapstructure:"status"`
	Source          string                      `gorm:"size:20" json:"source" mapstructure:"source"`
	CreatedAt       time.Time                   `json:"created_at" mapstructure:"-"`
	UpdatedAt       time.Time                   `json:"updated_at" mapstructure:"-"`
}

func (InterviewAnalytics) TableName() string {
	return "interview_analytics"
}

func (a *InterviewAnalytics) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// InterviewPerformance is the detailed per-skill and per-question record.
type InterviewPerformance struct {
	ID                  string                      `gorm:"type:varchar(36);primaryKey" json:"id" mapstructure:"-"`
	InterviewID         string                      `gorm:"type:varchar(36);not null;uniqueIndex" json:"interview_id" mapstructure:"interview_id"`
	UserID              string                      `gorm:"type:varchar(64);not null;index" json:"user_id" mapstructure:"user_id"`
	TechnicalScore      int                         `json:"technical_score" mapstructure:"technical_score"`
	CommunicationScore  int                         `json:"communication_score" mapstructure:"communication_score"`
	ProblemSolvingScore int                         `json:"problem_solving_score" mapstructure:"problem_solving_score"`
	ConfidenceScore     int                         `json:"confidence_score" mapstructure:"confidence_score"`
	Strengths           datatypes.JSONSlice[string] `json:"strengths" mapstructure:"strengths"`
	Improvements        datatypes.JSONSlice[string] `json:"improvements" mapstructure:"improvements"`
	AIRecommendation    string                      `gorm:"type:text" json:"ai_recommendation" mapstructure:"ai_recommendation"`
	QuestionScores      datatypes.JSONMap           `json:"question_scores" mapstructure:"question_scores"`
	ResponseQuality     datatypes.JSONMap           `json:"response_quality" mapstructure:"response_quality"`
	TimeTaken           datatypes.JSONMap           `json:"time_taken" mapstructure:"time_taken"`
	TotalQuestions      int                         `json:"total_questions" mapstructure:"total_questions"`
	QuestionsAnswered   int                         `json:"questions_answered" mapstructure:"questions_answered"`
	AverageResponseTime float64                     `json:"average_response_time" mapstructure:"average_response_time"`
	CreatedAt           time.Time                   `json:"created_at" mapstructure:"-"`
	UpdatedAt           time.Time                   `json:"updated_at" mapstructure:"-"`
}

func (InterviewPerformance) TableName() string {
	return "interview_performance"
}

func (p *InterviewPerformance) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
