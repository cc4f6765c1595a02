package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-viper/mapstructure/v2"
	"github.com/intervue/backend/models"
)

var ErrNoAnalytics = errors.New("no analytics stored for interview")

// AnalyticsStore is the storage contract the gateway depends on.
type AnalyticsStore interface {
	UpsertAnalytics(ctx context.Context, summary *models.InterviewAnalytics, performance *models.InterviewPerformance) error
	GetAnalytics(ctx context.Context, interviewID string) (*models.InterviewAnalytics, *models.InterviewPerformance, error)
}

// SessionStats are the counts recorded alongside a result.
type SessionStats struct {
	TotalQuestions      int
	QuestionsAnswered   int
	AverageResponseTime float64
}

// AnalyticsGateway maps AnalyticsResult values onto the summary and performance
// records and back, translating field names through one table.
type AnalyticsGateway struct {
	store  AnalyticsStore
	fields *FieldMap
}

func NewAnalyticsGateway(store AnalyticsStore, fields *FieldMap) *AnalyticsGateway {
	if fields == nil {
		fields = MustFieldMap(AnalyticsFields)
	}
	return &AnalyticsGateway{store: store, fields: fields}
}

// Save writes result as the summary and performance records of interview.
// Preview results are never stored.
func (g *AnalyticsGateway) Save(ctx context.Context, interview *models.Interview, result *models.AnalyticsResult, stats SessionStats) error {
	if interview == nil {
		return ErrMissingInterview
	}
	if result == nil {
		return fmt.Errorf("analytics result is required")
	}
	if result.IsPreview {
		return fmt.Errorf("preview analytics are not persisted")
	}

	external, err := toMap(result, "json")
	if err != nil {
		return fmt.Errorf("failed to flatten analytics result: %w", err)
	}

	answered := stats.QuestionsAnswered
	if answered > stats.TotalQuestions {
		answered = stats.TotalQuestions
	}
	if answered < 0 {
		answered = 0
	}
	external["interviewId"] = interview.ID
	external["userId"] = interview.UserID
	external["jobPosition"] = interview.Config.JobPosition
	external["totalQuestions"] = stats.TotalQuestions
	external["questionsAnswered"] = answered
	external["averageResponseTime"] = stats.AverageResponseTime
	external["status"] = string(models.StatusCompleted)

	internal := g.fields.ToInternal(external)

	var summary models.InterviewAnalytics
	if err := decodeInto(internal, &summary, "mapstructure"); err != nil {
		return fmt.Errorf("failed to build analytics summary: %w", err)
	}
	var performance models.InterviewPerformance
	if err := decodeInto(internal, &performance, "mapstructure"); err != nil {
		return fmt.Errorf("failed to build performance record: %w", err)
	}

	if err := g.store.UpsertAnalytics(ctx, &summary, &performance); err != nil {
		return fmt.Errorf("failed to save analytics: %w", err)
	}
	return nil
}

// Load returns the joined view of both records, or ErrNoAnalytics when neither exists.
func (g *AnalyticsGateway) Load(ctx context.Context, interviewID string) (*models.AnalyticsReport, error) {
	summary, performance, err := g.store.GetAnalytics(ctx, interviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to load analytics: %w", err)
	}
	if summary == nil && performance == nil {
		return nil, ErrNoAnalytics
	}

	internal := make(map[string]interface{})
	if performance != nil {
		m, err := toMap(performance, "mapstructure")
		if err != nil {
			return nil, fmt.Errorf("failed to flatten performance record: %w", err)
		}
		for k, v := range m {
			internal[k] = v
		}
	}
	if summary != nil {
		m, err := toMap(summary, "mapstructure")
		if err != nil {
			return nil, fmt.Errorf("failed to flatten analytics summary: %w", err)
		}
		for k, v := range m {
			internal[k] = v
		}
	}

	var report models.AnalyticsReport
	if err := decodeInto(g.fields.ToExternal(internal), &report, "json"); err != nil {
		return nil, fmt.Errorf("failed to build analytics report: %w", err)
	}
	if summary != nil {
		report.CreatedAt = summary.CreatedAt
	} else {
		slog.Warn("Analytics summary missing, serving performance record only", "interview_id", interviewID)
		report.CreatedAt = performance.CreatedAt
	}
	normalizeReport(&report)
	return &report, nil
}

func normalizeReport(r *models.AnalyticsReport) {
	if r.Strengths == nil {
		r.Strengths = []string{}
	}
	if r.Improvements == nil {
		r.Improvements = []string{}
	}
	if r.QuestionScores == nil {
		r.QuestionScores = map[string]float64{}
	}
	if r.ResponseQuality == nil {
		r.ResponseQuality = map[string]string{}
	}
	if r.TimeTaken == nil {
		r.TimeTaken = map[string]float64{}
	}
}

func toMap(v interface{}, tag string) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	if err := decodeInto(v, &out, tag); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeInto(input, output interface{}, tag string) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          tag,
		Squash:           true,
		WeaklyTypedInput: true,
		Result:           output,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}
