package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/intervue/backend/models"
)

var ErrMissingInterview = errors.New("interview record is required to build analytics")

const (
	// answers at or below this many characters after trimming count as trivial
	trivialAnswerLength = 10
	defaultAITimeout    = 30 * time.Second
)

var difficultyMultipliers = map[models.Difficulty]float64{
	models.DifficultyBeginner:     1.1,
	models.DifficultyIntermediate: 1.0,
	models.DifficultyAdvanced:     0.9,
}

// sub-score adjustments relative to the overall score
const (
	technicalAdjustment      = -0.05
	communicationAdjustment  = 0.1
	problemSolvingAdjustment = 0.0
	confidenceAdjustment     = 0.05
)

const scoringInstruction = `You are an expert interview coach scoring a mock interview transcript.
Respond with ONLY a JSON object, no prose and no markdown, with exactly these fields:
{
  "overall_score": number 0-100,
  "technical_score": number 0-100,
  "communication_score": number 0-100,
  "problem_solving_score": number 0-100,
  "confidence_score": number 0-100,
  "feedback_summary": string,
  "strengths": [string],
  "improvements": [string],
  "ai_recommendation": string,
  "question_scores": {"<question index>": number 0-100},
  "response_quality": {"<question index>": "excellent" | "good" | "fair" | "poor"},
  "time_taken": {"<question index>": seconds}
}
Question indexes start at 0. Score strictly on what the candidate actually said.`

// AnalyticsRequest is everything needed to score one interview attempt.
type AnalyticsRequest struct {
	Interview      *models.Interview
	Questions      []string
	Answers        []string
	ElapsedSeconds int
	// Attempted marks a request issued at the end of a live session, before the
	// interview record itself has been marked completed.
	Attempted bool
}

// AnalyticsBuilder produces an AnalyticsResult for an interview, using the
// hosted model when it is available and a deterministic formula otherwise.
type AnalyticsBuilder struct {
	ai          TextGenerator
	timeout     time.Duration
	temperature float32
	metrics     *Metrics
}

func NewAnalyticsBuilder(ai TextGenerator, timeout time.Duration, temperature float32, metrics *Metrics) *AnalyticsBuilder {
	if timeout <= 0 {
		timeout = defaultAITimeout
	}
	return &AnalyticsBuilder{
		ai:          ai,
		timeout:     timeout,
		temperature: temperature,
		metrics:     metrics,
	}
}

// Build always returns a fully populated result unless the interview is missing.
// Remote failures and unusable responses are routed to the fallback.
func (b *AnalyticsBuilder) Build(ctx context.Context, req AnalyticsRequest) (*models.AnalyticsResult, error) {
	if req.Interview == nil {
		return nil, ErrMissingInterview
	}

	if !req.Interview.IsCompleted() && !req.Attempted {
		result := PreviewAnalytics(req.Interview)
		b.metrics.recordAnalytics(result.Source)
		return &result, nil
	}

	if b.ai != nil {
		result, err := b.scoreWithAI(ctx, req)
		if err == nil {
			b.metrics.recordAnalytics(result.Source)
			return result, nil
		}
		slog.Warn("AI scoring unavailable, using fallback scoring", "error", err, "interview_id", req.Interview.ID)
	}

	result := FallbackAnalytics(req)
	b.metrics.recordAnalytics(result.Source)
	return &result, nil
}

func (b *AnalyticsBuilder) scoreWithAI(ctx context.Context, req AnalyticsRequest) (*models.AnalyticsResult, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	temperature := b.temperature
	start := time.Now()
	text, err := b.ai.GenerateText(ctx, buildScoringPrompt(req), GenerateOptions{
		SystemInstruction: scoringInstruction,
		Temperature:       &temperature,
		JSONResponse:      true,
	})
	if err != nil {
		b.metrics.recordAICall("scoring", time.Since(start).Seconds(), true)
		return nil, fmt.Errorf("failed to generate analytics: %w", err)
	}

	result, err := parseScoringResponse(text)
	b.metrics.recordAICall("scoring", time.Since(start).Seconds(), err != nil)
	if err != nil {
		return nil, err
	}

	fillPlaceholders(result, countNonTrivial(req.Answers), len(questionsFor(req)))
	slog.Info("AI analytics generated", "interview_id", req.Interview.ID, "overall_score", result.OverallScore)
	return result, nil
}

func buildScoringPrompt(req AnalyticsRequest) string {
	cfg := req.Interview.Config
	questions := questionsFor(req)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Job position: %s\n", cfg.JobPosition)
	if cfg.JobDescription != "" {
		fmt.Fprintf(&sb, "Job description: %s\n", cfg.JobDescription)
	}
	fmt.Fprintf(&sb, "Difficulty: %s\n", cfg.Difficulty)
	fmt.Fprintf(&sb, "Total elapsed time: %s (%d seconds)\n\n", FormatElapsed(req.ElapsedSeconds), req.ElapsedSeconds)
	sb.WriteString("Transcript:\n")
	for i, q := range questions {
		fmt.Fprintf(&sb, "Q%d [index %d]: %s\n", i+1, i, q)
		if i < len(req.Answers) {
			fmt.Fprintf(&sb, "A%d: %s\n", i+1, req.Answers[i])
		} else {
			fmt.Fprintf(&sb, "A%d: (no answer)\n", i+1)
		}
	}
	for i := len(questions); i < len(req.Answers); i++ {
		fmt.Fprintf(&sb, "Additional answer: %s\n", req.Answers[i])
	}
	return sb.String()
}

type scoringResponse struct {
	OverallScore        *float64               `json:"overall_score"`
	TechnicalScore      *float64               `json:"technical_score"`
	CommunicationScore  *float64               `json:"communication_score"`
	ProblemSolvingScore *float64               `json:"problem_solving_score"`
	ConfidenceScore     *float64               `json:"confidence_score"`
	FeedbackSummary     string                 `json:"feedback_summary"`
	Strengths           []interface{}          `json:"strengths"`
	Improvements        []interface{}          `json:"improvements"`
	AIRecommendation    string                 `json:"ai_recommendation"`
	QuestionScores      map[string]interface{} `json:"question_scores"`
	ResponseQuality     map[string]interface{} `json:"response_quality"`
	TimeTaken           map[string]interface{} `json:"time_taken"`
}

// parseScoringResponse reads the first JSON object embedded in text.
func parseScoringResponse(text string) (*models.AnalyticsResult, error) {
	raw, ok := extractBalanced(text, '{', '}')
	if !ok {
		return nil, fmt.Errorf("no JSON object in model response")
	}

	var resp scoringResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}

	required := map[string]*float64{
		"overall_score":         resp.OverallScore,
		"technical_score":       resp.TechnicalScore,
		"communication_score":   resp.CommunicationScore,
		"problem_solving_score": resp.ProblemSolvingScore,
		"confidence_score":      resp.ConfidenceScore,
	}
	for name, v := range required {
		if v == nil {
			return nil, fmt.Errorf("model response is missing %s", name)
		}
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			return nil, fmt.Errorf("model response has invalid %s", name)
		}
	}

	result := &models.AnalyticsResult{
		OverallScore:        clampScore(*resp.OverallScore),
		TechnicalScore:      clampScore(*resp.TechnicalScore),
		CommunicationScore:  clampScore(*resp.CommunicationScore),
		ProblemSolvingScore: clampScore(*resp.ProblemSolvingScore),
		ConfidenceScore:     clampScore(*resp.ConfidenceScore),
		FeedbackSummary:     strings.TrimSpace(resp.FeedbackSummary),
		Strengths:           stringList(resp.Strengths),
		Improvements:        stringList(resp.Improvements),
		AIRecommendation:    strings.TrimSpace(resp.AIRecommendation),
		QuestionScores:      make(map[string]float64, len(resp.QuestionScores)),
		ResponseQuality:     make(map[string]string, len(resp.ResponseQuality)),
		TimeTaken:           make(map[string]float64, len(resp.TimeTaken)),
		Source:              models.SourceAI,
	}
	for k, v := range resp.QuestionScores {
		if f, ok := toFloat(v); ok {
			result.QuestionScores[k] = clampFloat(f, 0, 100)
		}
	}
	for k, v := range resp.ResponseQuality {
		if s := strings.TrimSpace(fmt.Sprint(v)); v != nil && s != "" {
			result.ResponseQuality[k] = s
		}
	}
	for k, v := range resp.TimeTaken {
		if f, ok := toFloat(v); ok {
			result.TimeTaken[k] = math.Max(f, 0)
		}
	}
	return result, nil
}

// extractBalanced returns the earliest-starting span that opens with opening
// and ends at its matching closing byte, skipping delimiters inside JSON
// strings. Unmatched openings outside strings are resolved in the same pass,
// so stray delimiters cost one scan. A new pass only starts from an opening
// that the previous pass saw inside a string.
func extractBalanced(text string, opening, closing byte) (string, bool) {
	bestStart, bestEnd := -1, -1
	from := 0
	for {
		idx := strings.IndexByte(text[from:], opening)
		if idx < 0 {
			break
		}
		start := from + idx

		var open []int
		inString, escaped := false, false
		quoted := -1
		for i := start; i < len(text); i++ {
			c := text[i]
			if inString {
				if c == opening && quoted < 0 {
					quoted = i
				}
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case opening:
				open = append(open, i)
			case closing:
				if len(open) == 0 {
					continue
				}
				p := open[len(open)-1]
				open = open[:len(open)-1]
				if p == start {
					return text[start : i+1], true
				}
				if bestStart < 0 || p < bestStart {
					bestStart, bestEnd = p, i
				}
			}
		}

		if quoted < 0 || (bestStart >= 0 && bestStart < quoted) {
			break
		}
		from = quoted
	}

	if bestStart < 0 {
		return "", false
	}
	return text[bestStart : bestEnd+1], true
}

// PreviewAnalytics is the all-zero result shown for an interview that has not been taken.
func PreviewAnalytics(interview *models.Interview) models.AnalyticsResult {
	return models.AnalyticsResult{
		FeedbackSummary:  fmt.Sprintf("This %s interview has not been taken yet, so there is no score to show.", interview.Config.JobPosition),
		Strengths:        []string{"Complete the interview to see your strengths."},
		Improvements:     []string{"Complete the interview to receive improvement suggestions."},
		AIRecommendation: "Start the interview when you are ready. Analytics appear here once it is completed.",
		QuestionScores:   map[string]float64{},
		ResponseQuality:  map[string]string{},
		TimeTaken:        map[string]float64{},
		Source:           models.SourcePreview,
		IsPreview:        true,
	}
}

// FallbackAnalytics scores an attempt from answer completeness alone. The
// result depends only on the questions, answers, difficulty and elapsed time.
func FallbackAnalytics(req AnalyticsRequest) models.AnalyticsResult {
	questions := questionsFor(req)
	nonTrivial := countNonTrivial(req.Answers)

	multiplier, ok := difficultyMultipliers[req.Interview.Config.Difficulty]
	if !ok {
		multiplier = 1.0
	}

	var ratio float64
	if len(questions) > 0 {
		ratio = float64(nonTrivial) / float64(len(questions))
	}
	overall := clampScore(ratio * 100 * multiplier)
	base := float64(overall)

	result := models.AnalyticsResult{
		OverallScore:        overall,
		TechnicalScore:      clampScore(calculateMetricScore(base, technicalAdjustment)),
		CommunicationScore:  clampScore(calculateMetricScore(base, communicationAdjustment)),
		ProblemSolvingScore: clampScore(calculateMetricScore(base, problemSolvingAdjustment)),
		ConfidenceScore:     clampScore(calculateMetricScore(base, confidenceAdjustment)),
		FeedbackSummary: fmt.Sprintf(
			"You gave substantive answers to %d of %d questions for the %s position. This score reflects how completely you answered, because detailed AI scoring was not available.",
			nonTrivial, len(questions), req.Interview.Config.JobPosition),
		QuestionScores:  make(map[string]float64, len(questions)),
		ResponseQuality: make(map[string]string, len(questions)),
		TimeTaken:       make(map[string]float64, len(questions)),
		Source:          models.SourceFallback,
	}

	perQuestion := 0.0
	if len(questions) > 0 {
		perQuestion = math.Round(float64(req.ElapsedSeconds)/float64(len(questions))*10) / 10
	}
	for i := range questions {
		key := strconv.Itoa(i)
		switch {
		case i >= len(req.Answers):
			result.QuestionScores[key] = 0
			result.ResponseQuality[key] = "unanswered"
			result.TimeTaken[key] = 0
		case isNonTrivial(req.Answers[i]):
			result.QuestionScores[key] = clampFloat(math.Round(70*multiplier), 0, 100)
			result.ResponseQuality[key] = "good"
			result.TimeTaken[key] = perQuestion
		default:
			result.QuestionScores[key] = clampFloat(math.Round(20*multiplier), 0, 100)
			result.ResponseQuality[key] = "brief"
			result.TimeTaken[key] = perQuestion
		}
	}

	fillPlaceholders(&result, nonTrivial, len(questions))
	return result
}

// fillPlaceholders guarantees every text and list field is populated.
func fillPlaceholders(result *models.AnalyticsResult, nonTrivial, total int) {
	if len(result.Strengths) == 0 {
		if nonTrivial > 0 {
			result.Strengths = []string{
				fmt.Sprintf("Gave substantive answers to %d question(s).", nonTrivial),
				"Stayed engaged through the interview session.",
			}
		} else {
			result.Strengths = []string{"Took the initiative to practice with a mock interview."}
		}
	}
	if len(result.Improvements) == 0 {
		result.Improvements = []string{"Expand your answers with concrete examples from your experience."}
		if total > nonTrivial {
			result.Improvements = append(result.Improvements, "Make sure every question gets a complete answer.")
		}
	}
	if result.FeedbackSummary == "" {
		result.FeedbackSummary = fmt.Sprintf("Overall score: %d/100.", result.OverallScore)
	}
	if result.AIRecommendation == "" {
		result.AIRecommendation = recommendationFor(result.OverallScore)
	}
	if result.QuestionScores == nil {
		result.QuestionScores = map[string]float64{}
	}
	if result.ResponseQuality == nil {
		result.ResponseQuality = map[string]string{}
	}
	if result.TimeTaken == nil {
		result.TimeTaken = map[string]float64{}
	}
}

func recommendationFor(score int) string {
	switch {
	case score >= 80:
		return "Strong performance. You are ready to take on real interviews for this role."
	case score >= 60:
		return "Solid foundation. Practice a few more sessions focusing on depth and structure."
	case score >= 40:
		return "Keep practicing. Work on answering every question fully with specific examples."
	default:
		return "Review the fundamentals for this role and retake the interview to track your progress."
	}
}

// questionsFor prefers the questions actually asked during the session and falls
// back to the planned questions when none were captured.
func questionsFor(req AnalyticsRequest) []string {
	if len(req.Questions) > 0 {
		return req.Questions
	}
	if req.Interview != nil {
		return req.Interview.Questions
	}
	return nil
}

func isNonTrivial(answer string) bool {
	return len(strings.TrimSpace(answer)) > trivialAnswerLength
}

func countNonTrivial(answers []string) int {
	n := 0
	for _, a := range answers {
		if isNonTrivial(a) {
			n++
		}
	}
	return n
}

func calculateMetricScore(baseScore float64, adjustment float64) float64 {
	// Calculate a metric score based on the base score with an adjustment
	return clampFloat(baseScore+(baseScore*adjustment), 0, 100)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampScore(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Round(clampFloat(v, 0, 100)))
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func stringList(in []interface{}) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
