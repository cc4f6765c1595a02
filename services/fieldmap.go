package services

import "fmt"

// FieldPair links an API field name to its storage column.
type FieldPair struct {
	External string
	Internal string
}

// AnalyticsFields is the translation table between the analytics API vocabulary
// and the storage columns of the summary and performance records.
var AnalyticsFields = []FieldPair{
	{"interviewId", "interview_id"},
	{"userId", "user_id"},
	{"jobPosition", "job_position"},
	{"overallScore", "overall_score"},
	{"technicalScore", "technical_score"},
	{"communicationScore", "communication_score"},
	{"problemSolvingScore", "problem_solving_score"},
	{"confidenceScore", "confidence_score"},
	{"feedbackSummary", "feedback_summary"},
	{"aiRecommendation", "ai_recommendation"},
	{"questionScores", "question_scores"},
	{"responseQuality", "response_quality"},
	{"timeTaken", "time_taken"},
	{"totalQuestions", "total_questions"},
	{"questionsAnswered", "questions_answered"},
	{"averageResponseTime", "average_response_time"},
	{"createdAt", "created_at"},
}

// FieldMap translates map keys in both directions. Keys missing from the
// table pass through unchanged.
type FieldMap struct {
	toInternal map[string]string
	toExternal map[string]string
}

// NewFieldMap builds a map from pairs. Every name may appear once on each side,
// which keeps the translation invertible.
func NewFieldMap(pairs []FieldPair) (*FieldMap, error) {
	m := &FieldMap{
		toInternal: make(map[string]string, len(pairs)),
		toExternal: make(map[string]string, len(pairs)),
	}
	for _, p := range pairs {
		if p.External == "" || p.Internal == "" {
			return nil, fmt.Errorf("empty field name in pair %q/%q", p.External, p.Internal)
		}
		if _, dup := m.toInternal[p.External]; dup {
			return nil, fmt.Errorf("duplicate external field %q", p.External)
		}
		if _, dup := m.toExternal[p.Internal]; dup {
			return nil, fmt.Errorf("duplicate internal field %q", p.Internal)
		}
		m.toInternal[p.External] = p.Internal
		m.toExternal[p.Internal] = p.External
	}
	return m, nil
}

func MustFieldMap(pairs []FieldPair) *FieldMap {
	m, err := NewFieldMap(pairs)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *FieldMap) ToInternal(in map[string]interface{}) map[string]interface{} {
	return translate(in, m.toInternal)
}

func (m *FieldMap) ToExternal(in map[string]interface{}) map[string]interface{} {
	return translate(in, m.toExternal)
}

// translate renames the keys found in names. When the input holds a name and
// its translation at once, the translated value wins whatever the map order.
func translate(in map[string]interface{}, names map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		if _, ok := names[k]; !ok {
			out[k] = v
		}
	}
	for k, v := range in {
		if renamed, ok := names[k]; ok {
			out[renamed] = v
		}
	}
	return out
}
