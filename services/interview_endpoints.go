package services

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/intervue/backend/models"
	"github.com/intervue/backend/repository"
	"gorm.io/gorm"
)

type InterviewEndpoints struct {
	repo      *repository.GORMRepository
	questions *QuestionGenerator
	gateway   *AnalyticsGateway
	registry  *SessionRegistry
	session   *SessionSocket
}

func NewInterviewEndpoints(repo *repository.GORMRepository, questions *QuestionGenerator, gateway *AnalyticsGateway, registry *SessionRegistry, session *SessionSocket) *InterviewEndpoints {
	return &InterviewEndpoints{
		repo:      repo,
		questions: questions,
		gateway:   gateway,
		registry:  registry,
		session:   session,
	}
}

type CreateInterviewRequest = models.InterviewConfig

type GetInterviewsResponse struct {
	Interviews []models.Interview `json:"interviews"`
	Count      int                `json:"count"`
}

type ScheduleInterviewRequest struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

type AnalyticsStatus string

const (
	AnalyticsPreview    AnalyticsStatus = "preview"
	AnalyticsProcessing AnalyticsStatus = "processing"
	AnalyticsReady      AnalyticsStatus = "ready"
)

type AnalyticsResponse struct {
	Status    AnalyticsStatus `json:"status"`
	Analytics interface{}     `json:"analytics,omitempty"`
}

func (e *InterviewEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/interviews", func(r chi.Router) {
		r.Post("/", e.CreateInterviewHandler)
		r.Get("/", e.GetInterviewsHandler)
		r.Get("/{id}", e.GetInterviewHandler)
		r.Delete("/{id}", e.DeleteInterviewHandler)
		r.Post("/{id}/schedule", e.ScheduleInterviewHandler)
		r.Post("/{id}/cancel", e.CancelInterviewHandler)
		r.Get("/{id}/analytics", e.GetAnalyticsHandler)
		if e.session != nil {
			r.Get("/{id}/session", e.session.Handler)
		}
	})
}

func (e *InterviewEndpoints) CreateInterviewHandler(w http.ResponseWriter, r *http.Request) {
	user, err := UserFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req CreateInterviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := req.Validate(); err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, verr)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	interview := &models.Interview{
		UserID:    user.ID,
		Config:    req,
		Questions: e.questions.Generate(r.Context(), req),
	}
	if err := e.repo.CreateInterview(r.Context(), interview); err != nil {
		slog.Error("Failed to create interview", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "Failed to create interview")
		return
	}

	writeJSON(w, http.StatusCreated, interview)
	slog.Info("Interview created", "interview_id", interview.ID, "user_id", user.ID, "questions", len(interview.Questions))
}

func (e *InterviewEndpoints) GetInterviewsHandler(w http.ResponseWriter, r *http.Request) {
	user, err := UserFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	interviews, err := e.repo.ListInterviews(r.Context(), user.ID)
	if err != nil {
		slog.Error("Failed to list interviews", "error", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "Failed to get interviews")
		return
	}

	writeJSON(w, http.StatusOK, GetInterviewsResponse{Interviews: interviews, Count: len(interviews)})
}

func (e *InterviewEndpoints) GetInterviewHandler(w http.ResponseWriter, r *http.Request) {
	interview, ok := e.loadOwned(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, interview)
}

func (e *InterviewEndpoints) DeleteInterviewHandler(w http.ResponseWriter, r *http.Request) {
	interview, ok := e.loadOwned(w, r)
	if !ok {
		return
	}

	if e.registry != nil {
		e.registry.Remove(interview.ID)
	}
	if err := e.repo.DeleteInterview(r.Context(), interview.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "Interview not found")
			return
		}
		slog.Error("Failed to delete interview", "error", err, "interview_id", interview.ID)
		writeError(w, http.StatusInternalServerError, "Failed to delete interview")
		return
	}

	w.WriteHeader(http.StatusNoContent)
	slog.Info("Interview deleted", "interview_id", interview.ID, "user_id", interview.UserID)
}

func (e *InterviewEndpoints) ScheduleInterviewHandler(w http.ResponseWriter, r *http.Request) {
	interview, ok := e.loadOwned(w, r)
	if !ok {
		return
	}

	var req ScheduleInterviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ScheduledFor.IsZero() {
		writeError(w, http.StatusBadRequest, "scheduled_for is required")
		return
	}

	err := e.repo.ScheduleInterview(r.Context(), interview.ID, req.ScheduledFor)
	e.respondStatusChange(w, r, interview.ID, err)
}

func (e *InterviewEndpoints) CancelInterviewHandler(w http.ResponseWriter, r *http.Request) {
	interview, ok := e.loadOwned(w, r)
	if !ok {
		return
	}

	if e.registry != nil {
		e.registry.Remove(interview.ID)
	}
	err := e.repo.CancelInterview(r.Context(), interview.ID)
	e.respondStatusChange(w, r, interview.ID, err)
}

// GetAnalyticsHandler serves a preview until the interview is completed, then
// 202 until the records have been written.
func (e *InterviewEndpoints) GetAnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	interview, ok := e.loadOwned(w, r)
	if !ok {
		return
	}

	if !interview.IsCompleted() {
		writeJSON(w, http.StatusOK, AnalyticsResponse{Status: AnalyticsPreview, Analytics: PreviewAnalytics(interview)})
		return
	}

	report, err := e.gateway.Load(r.Context(), interview.ID)
	if errors.Is(err, ErrNoAnalytics) {
		writeJSON(w, http.StatusAccepted, AnalyticsResponse{Status: AnalyticsProcessing})
		return
	}
	if err != nil {
		slog.Error("Failed to load analytics", "error", err, "interview_id", interview.ID)
		writeError(w, http.StatusInternalServerError, "Failed to load analytics")
		return
	}

	writeJSON(w, http.StatusOK, AnalyticsResponse{Status: AnalyticsReady, Analytics: report})
}

func (e *InterviewEndpoints) respondStatusChange(w http.ResponseWriter, r *http.Request, id string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, gorm.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "Interview not found")
		return
	default:
		slog.Error("Failed to update interview status", "error", err, "interview_id", id)
		writeError(w, http.StatusInternalServerError, "Failed to update interview")
		return
	}

	interview, err := e.repo.GetInterview(r.Context(), id)
	if err != nil || interview == nil {
		slog.Error("Failed to reload interview", "error", err, "interview_id", id)
		writeError(w, http.StatusInternalServerError, "Failed to load interview")
		return
	}
	writeJSON(w, http.StatusOK, interview)
}

// loadOwned writes the error response itself and reports false when the
// interview does not exist or belongs to someone else.
func (e *InterviewEndpoints) loadOwned(w http.ResponseWriter, r *http.Request) (*models.Interview, bool) {
	user, err := UserFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}

	id := chi.URLParam(r, "id")
	interview, err := e.repo.GetInterviewForUser(r.Context(), id, user.ID)
	if err != nil {
		slog.Error("Failed to get interview", "error", err, "interview_id", id)
		writeError(w, http.StatusInternalServerError, "Failed to get interview")
		return nil, false
	}
	if interview == nil {
		writeError(w, http.StatusNotFound, "Interview not found")
		return nil, false
	}
	return interview, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
