package services

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/intervue/backend/models"
	"github.com/intervue/backend/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "test-secret"
	testOrigin = "http://app.test"
)

type testAPI struct {
	server *Server
	http   *httptest.Server
	repo   *repository.GORMRepository
	auth   *AuthService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	repo := newTestRepo(t)
	cfg := &Config{
		Auth:      AuthConfig{JWTSecret: testSecret},
		WebSocket: WebSocketConfig{AllowedOrigins: testOrigin},
		AI:        AIConfig{Model: DefaultModelName, Timeout: time.Second, Temperature: 0.3},
		Session:   SessionConfig{IdleTimeout: time.Minute, SweepInterval: time.Minute, InterviewerName: "Alex"},
		AMQP:      AMQPConfig{Exchange: "interviews"},
		Metrics:   MetricsConfig{Enabled: true},
	}

	s := NewServer(cfg)
	s.SetDatabase(nil, repo)
	require.NoError(t, s.InitializeServices(context.Background()))

	ts := httptest.NewServer(s.SetupRoutes())
	t.Cleanup(func() {
		s.Shutdown()
		ts.Close()
	})
	return &testAPI{server: s, http: ts, repo: repo, auth: NewAuthService(testSecret)}
}

func (a *testAPI) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := a.auth.IssueAccessToken(userID, userID+"@example.com", time.Hour)
	require.NoError(t, err)
	return token
}

func (a *testAPI) do(t *testing.T, method, path, token string, body interface{}) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.http.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func validInterviewBody() map[string]interface{} {
	return map[string]interface{}{
		"job_position":     "Backend Engineer",
		"job_description":  "Go services and Postgres",
		"duration_minutes": 15,
		"difficulty":       "intermediate",
		"question_types":   map[string]bool{"technical": true, "behavioral": true},
		"custom_questions": []string{"Why this company?"},
	}
}

func (a *testAPI) createInterview(t *testing.T, token string) models.Interview {
	t.Helper()
	status, body := a.do(t, http.MethodPost, "/api/v1/interviews", token, validInterviewBody())
	require.Equal(t, http.StatusCreated, status, string(body))
	var interview models.Interview
	require.NoError(t, json.Unmarshal(body, &interview))
	return interview
}

func TestAPIRequiresAuthentication(t *testing.T) {
	api := newTestAPI(t)

	status, _ := api.do(t, http.MethodGet, "/api/v1/interviews", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = api.do(t, http.MethodGet, "/api/v1/interviews", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	other := NewAuthService("another-secret")
	forged, err := other.IssueAccessToken("user-1", "", time.Hour)
	require.NoError(t, err)
	status, _ = api.do(t, http.MethodGet, "/api/v1/interviews", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestCreateInterviewValidation(t *testing.T) {
	api := newTestAPI(t)
	token := api.token(t, "user-1")

	status, body := api.do(t, http.MethodPost, "/api/v1/interviews", token, map[string]interface{}{
		"job_position":     "  ",
		"duration_minutes": 0,
		"difficulty":       "expert",
		"question_types":   map[string]bool{},
	})
	require.Equal(t, http.StatusBadRequest, status)

	var verr models.ValidationError
	require.NoError(t, json.Unmarshal(body, &verr))
	assert.Equal(t, []string{
		"job position is required",
		"duration must be greater than zero minutes",
		"difficulty must be one of beginner, intermediate, advanced",
		"select at least one question type",
	}, verr.Messages)

	status, _ = api.do(t, http.MethodGet, "/api/v1/interviews", token, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestInterviewLifecycle(t *testing.T) {
	api := newTestAPI(t)
	token := api.token(t, "user-1")

	interview := api.createInterview(t, token)
	assert.Equal(t, models.StatusPending, interview.Status)
	assert.Equal(t, "user-1", interview.UserID)
	require.Len(t, interview.Questions, 3)
	assert.Equal(t, "Why this company?", interview.Questions[0])

	status, body := api.do(t, http.MethodGet, "/api/v1/interviews", token, nil)
	require.Equal(t, http.StatusOK, status)
	var list GetInterviewsResponse
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, 1, list.Count)

	status, _ = api.do(t, http.MethodGet, "/api/v1/interviews/"+interview.ID, api.token(t, "user-2"), nil)
	assert.Equal(t, http.StatusNotFound, status, "other users cannot see the interview")

	status, body = api.do(t, http.MethodGet, "/api/v1/interviews/"+interview.ID+"/analytics", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"preview"`)
	assert.Contains(t, string(body), `"isPreview":true`)

	status, body = api.do(t, http.MethodPost, "/api/v1/interviews/"+interview.ID+"/schedule", token,
		map[string]interface{}{"scheduled_for": time.Now().Add(24 * time.Hour)})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Contains(t, string(body), `"status":"scheduled"`)

	status, _ = api.do(t, http.MethodPost, "/api/v1/interviews/"+interview.ID+"/schedule", token, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = api.do(t, http.MethodPost, "/api/v1/interviews/"+interview.ID+"/cancel", token, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Contains(t, string(body), `"status":"cancelled"`)

	status, _ = api.do(t, http.MethodPost, "/api/v1/interviews/"+interview.ID+"/schedule", token,
		map[string]interface{}{"scheduled_for": time.Now().Add(time.Hour)})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = api.do(t, http.MethodDelete, "/api/v1/interviews/"+interview.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = api.do(t, http.MethodGet, "/api/v1/interviews/"+interview.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAnalyticsProcessingUntilRecordsExist(t *testing.T) {
	api := newTestAPI(t)
	token := api.token(t, "user-1")
	interview := api.createInterview(t, token)

	require.NoError(t, api.repo.CompleteInterview(context.Background(), interview.ID, 300))

	status, body := api.do(t, http.MethodGet, "/api/v1/interviews/"+interview.ID+"/analytics", token, nil)
	assert.Equal(t, http.StatusAccepted, status)
	assert.Contains(t, string(body), `"status":"processing"`)
}

func dialSession(t *testing.T, api *testAPI, interviewID, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(api.http.URL, "http") + "/api/v1/interviews/" + interviewID + "/session?access_token=" + token
	header := http.Header{}
	header.Set("Origin", testOrigin)
	return websocket.DefaultDialer.Dial(url, header)
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(map[string]interface{}) bool) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var frame map[string]interface{}
		require.NoError(t, conn.ReadJSON(&frame))
		if match(frame) {
			return frame
		}
	}
}

func isState(state SessionState) func(map[string]interface{}) bool {
	return func(f map[string]interface{}) bool {
		return f["type"] == "state" && f["state"] == string(state)
	}
}

func TestSessionOverWebSocket(t *testing.T) {
	api := newTestAPI(t)
	token := api.token(t, "user-1")
	interview := api.createInterview(t, token)

	conn, _, err := dialSession(t, api, interview.ID, token)
	require.NoError(t, err)
	defer conn.Close()

	readUntil(t, conn, isState(StateReady))

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "command", "command": "start"}))
	voice := readUntil(t, conn, func(f map[string]interface{}) bool { return f["type"] == "voice" })
	assert.Equal(t, "start", voice["command"])
	assistant := voice["assistant"].(map[string]interface{})
	assert.Equal(t, "Alex", assistant["name"])
	readUntil(t, conn, isState(StateActive))

	for _, msg := range []map[string]string{
		{"type": "call-start"},
		{"type": "message", "role": "assistant", "transcriptType": "final", "transcript": "Why this company?"},
		{"type": "message", "role": "user", "transcriptType": "final", "transcript": "I like the engineering culture and the product."},
		{"type": "command", "command": "end"},
	} {
		require.NoError(t, conn.WriteJSON(msg))
	}

	stop := readUntil(t, conn, func(f map[string]interface{}) bool { return f["type"] == "voice" })
	assert.Equal(t, "stop", stop["command"])
	completed := readUntil(t, conn, func(f map[string]interface{}) bool { return f["type"] == "completed" })
	assert.Equal(t, interview.ID, completed["interviewId"])

	status, body := api.do(t, http.MethodGet, "/api/v1/interviews/"+interview.ID+"/analytics", token, nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var resp struct {
		Status    AnalyticsStatus        `json:"status"`
		Analytics models.AnalyticsReport `json:"analytics"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, AnalyticsReady, resp.Status)
	assert.Equal(t, models.SourceFallback, resp.Analytics.Source)
	assert.Equal(t, 100, resp.Analytics.OverallScore)
	assert.Equal(t, 1, resp.Analytics.TotalQuestions)
	assert.Equal(t, 1, resp.Analytics.QuestionsAnswered)

	stored, err := api.repo.GetInterview(context.Background(), interview.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)

	_, resp2, err := dialSession(t, api, interview.ID, token)
	require.Error(t, err)
	require.NotNil(t, resp2)
	assert.Equal(t, http.StatusConflict, resp2.StatusCode)
}

func TestSessionSocketRejectsForeignOrigin(t *testing.T) {
	api := newTestAPI(t)
	token := api.token(t, "user-1")
	interview := api.createInterview(t, token)

	url := "ws" + strings.TrimPrefix(api.http.URL, "http") + "/api/v1/interviews/" + interview.ID + "/session?access_token=" + token
	header := http.Header{}
	header.Set("Origin", "http://evil.test")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t)

	status, body := api.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"database":"up"`)

	status, body = api.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "intervue_sessions_active")
}
