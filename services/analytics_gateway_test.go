package services

import (
	"context"
	"testing"

	"github.com/intervue/backend/models"
	"github.com/intervue/backend/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) *repository.GORMRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	repo := repository.NewGORMRepository(db)
	require.NoError(t, repo.AutoMigrate())
	return repo
}

func seedInterview(t *testing.T, repo *repository.GORMRepository, userID string) *models.Interview {
	t.Helper()
	interview := &models.Interview{
		UserID: userID,
		Config: models.InterviewConfig{
			JobPosition:     "Data Engineer",
			DurationMinutes: 15,
			Difficulty:      models.DifficultyIntermediate,
			QuestionTypes:   datatypes.NewJSONType(models.QuestionTypes{Technical: true, Behavioral: true}),
		},
		Questions: datatypes.JSONSlice[string]{"Q1", "Q2", "Q3"},
	}
	require.NoError(t, repo.CreateInterview(context.Background(), interview))
	return interview
}

func sampleResult() *models.AnalyticsResult {
	return &models.AnalyticsResult{
		OverallScore:        72,
		TechnicalScore:      70,
		CommunicationScore:  80,
		ProblemSolvingScore: 65,
		ConfidenceScore:     75,
		FeedbackSummary:     "Good structure, needs more depth.",
		Strengths:           []string{"clear communication", "structured answers"},
		Improvements:        []string{"more detail on trade-offs"},
		AIRecommendation:    "Practice system design questions.",
		QuestionScores:      map[string]float64{"0": 80, "1": 65.5},
		ResponseQuality:     map[string]string{"0": "good", "1": "fair"},
		TimeTaken:           map[string]float64{"0": 41.5, "1": 60},
		Source:              models.SourceAI,
	}
}

func TestAnalyticsGatewayRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	gateway := NewAnalyticsGateway(repo, nil)
	ctx := context.Background()
	interview := seedInterview(t, repo, "user-1")
	in := sampleResult()

	require.NoError(t, gateway.Save(ctx, interview, in, SessionStats{
		TotalQuestions:      3,
		QuestionsAnswered:   2,
		AverageResponseTime: 50.75,
	}))

	report, err := gateway.Load(ctx, interview.ID)
	require.NoError(t, err)

	assert.Equal(t, *in, report.AnalyticsResult)
	assert.Equal(t, interview.ID, report.InterviewID)
	assert.Equal(t, "user-1", report.UserID)
	assert.Equal(t, "Data Engineer", report.JobPosition)
	assert.Equal(t, 3, report.TotalQuestions)
	assert.Equal(t, 2, report.QuestionsAnswered)
	assert.Equal(t, 50.75, report.AverageResponseTime)
	assert.Equal(t, "completed", report.Status)
	assert.False(t, report.CreatedAt.IsZero())
}

func TestAnalyticsGatewayClampsAnsweredCount(t *testing.T) {
	repo := newTestRepo(t)
	gateway := NewAnalyticsGateway(repo, nil)
	ctx := context.Background()
	interview := seedInterview(t, repo, "user-1")

	require.NoError(t, gateway.Save(ctx, interview, sampleResult(), SessionStats{
		TotalQuestions:    2,
		QuestionsAnswered: 5,
	}))

	report, err := gateway.Load(ctx, interview.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.QuestionsAnswered)
	assert.LessOrEqual(t, report.QuestionsAnswered, report.TotalQuestions)
}

func TestAnalyticsGatewayOverwritesOnResave(t *testing.T) {
	repo := newTestRepo(t)
	gateway := NewAnalyticsGateway(repo, nil)
	ctx := context.Background()
	interview := seedInterview(t, repo, "user-1")

	first := sampleResult()
	require.NoError(t, gateway.Save(ctx, interview, first, SessionStats{TotalQuestions: 3}))

	second := sampleResult()
	second.OverallScore = 40
	second.Source = models.SourceFallback
	require.NoError(t, gateway.Save(ctx, interview, second, SessionStats{TotalQuestions: 3}))

	report, err := gateway.Load(ctx, interview.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, report.OverallScore)
	assert.Equal(t, models.SourceFallback, report.Source)
}

func TestAnalyticsGatewayNoData(t *testing.T) {
	gateway := NewAnalyticsGateway(newTestRepo(t), nil)
	_, err := gateway.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNoAnalytics)
}

func TestAnalyticsGatewayRejectsPreview(t *testing.T) {
	repo := newTestRepo(t)
	gateway := NewAnalyticsGateway(repo, nil)
	interview := seedInterview(t, repo, "user-1")
	preview := PreviewAnalytics(interview)

	assert.Error(t, gateway.Save(context.Background(), interview, &preview, SessionStats{}))
	_, err := gateway.Load(context.Background(), interview.ID)
	assert.ErrorIs(t, err, ErrNoAnalytics)
}

func TestFieldMapIsInvertible(t *testing.T) {
	fields := MustFieldMap(AnalyticsFields)
	external := map[string]interface{}{
		"jobPosition":  "SRE",
		"overallScore": 55,
		"strengths":    []string{"calm"},
		"customField":  true,
	}

	internal := fields.ToInternal(external)
	assert.Equal(t, "SRE", internal["job_position"])
	assert.Equal(t, 55, internal["overall_score"])
	assert.Equal(t, true, internal["customField"], "unmapped keys pass through")
	assert.NotContains(t, internal, "jobPosition")

	assert.Equal(t, external, fields.ToExternal(internal))
}

func TestFieldMapRejectsDuplicates(t *testing.T) {
	_, err := NewFieldMap([]FieldPair{{"a", "x"}, {"b", "x"}})
	assert.Error(t, err)
	_, err = NewFieldMap([]FieldPair{{"a", "x"}, {"a", "y"}})
	assert.Error(t, err)
}

func TestFieldMapCollisionPrefersTranslatedName(t *testing.T) {
	fields := MustFieldMap(AnalyticsFields)

	for i := 0; i < 50; i++ {
		internal := fields.ToInternal(map[string]interface{}{
			"overallScore":  80,
			"overall_score": 10,
		})
		require.Len(t, internal, 1)
		assert.Equal(t, 80, internal["overall_score"])

		external := fields.ToExternal(map[string]interface{}{
			"overall_score": 80,
			"overallScore":  10,
		})
		require.Len(t, external, 1)
		assert.Equal(t, 80, external["overallScore"])
	}
}
