package models

// Database schema overview:
// 1. interviews - one row per configured interview, config columns embedded
// 2. interview_analytics - summary record, one per completed interview
// 3. interview_performance - detailed per-skill and per-question record, one per completed interview
//
// Both analytics tables are keyed by interview_id and removed with their interview.

// All returns every persisted model in migration order.
func All() []interface{} {
	return []interface{}{
		&Interview{},
		&InterviewAnalytics{},
		&InterviewPerformance{},
	}
}
