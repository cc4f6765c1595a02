package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/intervue/backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInvalidStatusTransition = errors.New("invalid interview status transition")

type GORMRepository struct {
	db *gorm.DB
}

func NewGORMRepository(db *gorm.DB) *GORMRepository {
	return &GORMRepository{db: db}
}

// AutoMigrate runs database migrations
func (r *GORMRepository) AutoMigrate() error {
	return r.db.AutoMigrate(models.All()...)
}

// Interview operations
func (r *GORMRepository) CreateInterview(ctx context.Context, interview *models.Interview) error {
	if err := r.db.WithContext(ctx).Create(interview).Error; err != nil {
		slog.Error("Failed to create interview", "error", err, "user_id", interview.UserID)
		return fmt.Errorf("failed to create interview: %w", err)
	}
	slog.Info("Interview created", "interview_id", interview.ID, "user_id", interview.UserID)
	return nil
}

// GetInterview gets an interview by ID without user check
func (r *GORMRepository) GetInterview(ctx context.Context, id string) (*models.Interview, error) {
	var interview models.Interview
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&interview).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get interview", "error", err, "interview_id", id)
		return nil, err
	}
	return &interview, nil
}

func (r *GORMRepository) GetInterviewForUser(ctx context.Context, id, userID string) (*models.Interview, error) {
	var interview models.Interview
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&interview).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get interview for user", "error", err, "interview_id", id, "user_id", userID)
		return nil, err
	}
	return &interview, nil
}

func (r *GORMRepository) ListInterviews(ctx context.Context, userID string) ([]models.Interview, error) {
	var interviews []models.Interview
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&interviews).Error
	if err != nil {
		slog.Error("Failed to list interviews", "error", err, "user_id", userID)
		return nil, err
	}
	return interviews, nil
}

// UpdateInterviewStatus moves an interview to status and applies the extra column
// updates in the same statement. The update only matches rows whose current status
// may legally advance to status, so concurrent writers can never regress it.
// Re-applying the current status is a no-op.
func (r *GORMRepository) UpdateInterviewStatus(ctx context.Context, id string, status models.InterviewStatus, extra map[string]interface{}) error {
	var from []models.InterviewStatus
	for _, s := range []models.InterviewStatus{models.StatusPending, models.StatusScheduled, models.StatusCompleted, models.StatusCancelled} {
		if s.CanTransition(status) {
			from = append(from, s)
		}
	}

	updates := map[string]interface{}{"status": status}
	for k, v := range extra {
		updates[k] = v
	}

	if len(from) > 0 {
		result := r.db.WithContext(ctx).
			Model(&models.Interview{}).
			Where("id = ? AND status IN ?", id, from).
			Updates(updates)
		if result.Error != nil {
			slog.Error("Failed to update interview status", "error", result.Error, "interview_id", id, "status", status)
			return fmt.Errorf("failed to update interview status: %w", result.Error)
		}
		if result.RowsAffected > 0 {
			slog.Info("Interview status updated", "interview_id", id, "status", status)
			return nil
		}
	}

	current, err := r.GetInterview(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load interview: %w", err)
	}
	if current == nil {
		return gorm.ErrRecordNotFound
	}
	if current.Status == status {
		return nil
	}
	slog.Warn("Rejected interview status regression", "interview_id", id, "from", current.Status, "to", status)
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, current.Status, status)
}

// CompleteInterview marks the interview completed and records how long the attempt took.
func (r *GORMRepository) CompleteInterview(ctx context.Context, id string, timeTakenSeconds int) error {
	now := time.Now()
	return r.UpdateInterviewStatus(ctx, id, models.StatusCompleted, map[string]interface{}{
		"time_taken_seconds": timeTakenSeconds,
		"completed_at":       now,
	})
}

func (r *GORMRepository) ScheduleInterview(ctx context.Context, id string, at time.Time) error {
	return r.UpdateInterviewStatus(ctx, id, models.StatusScheduled, map[string]interface{}{
		"scheduled_for": at,
	})
}

func (r *GORMRepository) CancelInterview(ctx context.Context, id string) error {
	return r.UpdateInterviewStatus(ctx, id, models.StatusCancelled, nil)
}

// DeleteInterview removes the interview together with its analytics records.
func (r *GORMRepository) DeleteInterview(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("interview_id = ?", id).Delete(&models.InterviewPerformance{}).Error; err != nil {
			return fmt.Errorf("failed to delete performance record: %w", err)
		}
		if err := tx.Where("interview_id = ?", id).Delete(&models.InterviewAnalytics{}).Error; err != nil {
			return fmt.Errorf("failed to delete analytics record: %w", err)
		}
		result := tx.Where("id = ?", id).Delete(&models.Interview{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete interview: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Error("Failed to delete interview", "error", err, "interview_id", id)
		}
		return err
	}
	slog.Info("Interview deleted", "interview_id", id)
	return nil
}

// Analytics operations

// UpsertAnalytics writes both analytics records for one interview in a single
// transaction, replacing any earlier records for the same interview.
func (r *GORMRepository) UpsertAnalytics(ctx context.Context, summary *models.InterviewAnalytics, performance *models.InterviewPerformance) error {
	if summary.InterviewID == "" || summary.InterviewID != performance.InterviewID {
		return fmt.Errorf("analytics records must share one interview id")
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "interview_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"user_id", "job_position", "overall_score", "feedback_summary",
				"strengths", "improvements", "status", "source", "updated_at",
			}),
		}).Create(summary).Error
		if err != nil {
			return fmt.Errorf("failed to upsert analytics summary: %w", err)
		}

		err = tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "interview_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"user_id", "technical_score", "communication_score", "problem_solving_score",
				"confidence_score", "strengths", "improvements", "ai_recommendation",
				"question_scores", "response_quality", "time_taken", "total_questions",
				"questions_answered", "average_response_time", "updated_at",
			}),
		}).Create(performance).Error
		if err != nil {
			return fmt.Errorf("failed to upsert performance record: %w", err)
		}
		return nil
	})
	if err != nil {
		slog.Error("Failed to save analytics", "error", err, "interview_id", summary.InterviewID)
		return err
	}
	slog.Info("Analytics saved", "interview_id", summary.InterviewID, "overall_score", summary.OverallScore)
	return nil
}

// GetAnalytics returns the summary and performance records for an interview.
// Either may be nil when it has not been written yet.
func (r *GORMRepository) GetAnalytics(ctx context.Context, interviewID string) (*models.InterviewAnalytics, *models.InterviewPerformance, error) {
	var summary models.InterviewAnalytics
	var performance models.InterviewPerformance
	var summaryPtr *models.InterviewAnalytics
	var performancePtr *models.InterviewPerformance

	err := r.db.WithContext(ctx).Where("interview_id = ?", interviewID).First(&summary).Error
	switch {
	case err == nil:
		summaryPtr = &summary
	case !errors.Is(err, gorm.ErrRecordNotFound):
		slog.Error("Failed to get analytics summary", "error", err, "interview_id", interviewID)
		return nil, nil, err
	}

	err = r.db.WithContext(ctx).Where("interview_id = ?", interviewID).First(&performance).Error
	switch {
	case err == nil:
		performancePtr = &performance
	case !errors.Is(err, gorm.ErrRecordNotFound):
		slog.Error("Failed to get performance record", "error", err, "interview_id", interviewID)
		return nil, nil, err
	}

	return summaryPtr, performancePtr, nil
}

// Ping checks the underlying connection.
func (r *GORMRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
