package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/intervue/backend/models"
)

const (
	minQuestions        = 3
	maxQuestions        = 10
	minutesPerQuestion  = 5
	questionTemperature = float32(0.7)
)

var questionBank = map[string][]string{
	"technical": {
		"Walk me through the architecture of a recent system you built as a %s.",
		"Which tools and technologies do you rely on most as a %s, and why?",
		"How do you make sure the code you ship is reliable and maintainable?",
		"Describe a technical trade-off you made recently and how you evaluated it.",
	},
	"behavioral": {
		"Tell me about a time you disagreed with a teammate and how you resolved it.",
		"Describe a project that did not go as planned. What did you learn?",
		"How do you prioritise when several deadlines compete for your attention?",
		"Tell me about feedback you received that changed how you work.",
	},
	"situational": {
		"A critical issue appears in production an hour before a release. What do you do?",
		"Your manager asks for a feature you think is a bad idea. How do you respond?",
		"You join a %s team mid-project with little documentation. How do you get up to speed?",
		"A stakeholder keeps changing requirements late in the cycle. How do you handle it?",
	},
	"problem_solving": {
		"How would you approach diagnosing a process that has suddenly become slow?",
		"Describe how you would break down an ambiguous problem you have never seen before.",
		"Tell me about the hardest bug you have tracked down. How did you find it?",
		"How would you design a solution when you have incomplete information?",
	},
}

// PlannedQuestionCount is the size of the question plan for an interview.
func PlannedQuestionCount(cfg models.InterviewConfig) int {
	n := cfg.DurationMinutes / minutesPerQuestion
	if n < minQuestions {
		n = minQuestions
	}
	if n > maxQuestions {
		n = maxQuestions
	}
	if len(cfg.CustomQuestions) > n {
		n = len(cfg.CustomQuestions)
	}
	return n
}

// QuestionGenerator builds the question plan for a new interview.
type QuestionGenerator struct {
	ai      TextGenerator
	timeout time.Duration
	metrics *Metrics
}

func NewQuestionGenerator(ai TextGenerator, timeout time.Duration, metrics *Metrics) *QuestionGenerator {
	if timeout <= 0 {
		timeout = defaultAITimeout
	}
	return &QuestionGenerator{ai: ai, timeout: timeout, metrics: metrics}
}

// Generate returns the custom questions followed by generated ones. It never
// fails: the per-type bank fills whatever the model could not.
func (g *QuestionGenerator) Generate(ctx context.Context, cfg models.InterviewConfig) []string {
	total := PlannedQuestionCount(cfg)
	questions := make([]string, 0, total)
	for _, q := range cfg.CustomQuestions {
		questions = append(questions, strings.TrimSpace(q))
	}
	needed := total - len(questions)
	if needed <= 0 {
		return questions
	}

	if g.ai != nil {
		generated, err := g.generateWithAI(ctx, cfg, needed)
		if err != nil {
			slog.Warn("Question generation failed, using question bank", "error", err, "job_position", cfg.JobPosition)
		}
		questions = appendUnique(questions, generated, total)
	}

	if len(questions) < total {
		questions = appendUnique(questions, bankQuestions(cfg), total)
	}
	return questions
}

func (g *QuestionGenerator) generateWithAI(ctx context.Context, cfg models.InterviewConfig, count int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	temperature := questionTemperature
	start := time.Now()
	text, err := g.ai.GenerateText(ctx, buildQuestionPrompt(cfg, count), GenerateOptions{
		Temperature:  &temperature,
		JSONResponse: true,
	})
	if err != nil {
		g.metrics.recordAICall("questions", time.Since(start).Seconds(), true)
		return nil, fmt.Errorf("failed to generate questions: %w", err)
	}

	questions, err := parseQuestionList(text)
	g.metrics.recordAICall("questions", time.Since(start).Seconds(), err != nil)
	return questions, err
}

func buildQuestionPrompt(cfg models.InterviewConfig, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d interview questions for a %s position.\n", count, cfg.JobPosition)
	fmt.Fprintf(&b, "Difficulty: %s\n", cfg.Difficulty)
	fmt.Fprintf(&b, "Question types: %s\n", strings.Join(cfg.QuestionTypes.Data().Names(), ", "))
	if desc := strings.TrimSpace(cfg.JobDescription); desc != "" {
		fmt.Fprintf(&b, "Job description:\n%s\n", desc)
	}
	if len(cfg.CustomQuestions) > 0 {
		b.WriteString("Do not repeat these questions:\n")
		for _, q := range cfg.CustomQuestions {
			fmt.Fprintf(&b, "- %s\n", q)
		}
	}
	b.WriteString("Each question must be answerable out loud in a few minutes.\n")
	b.WriteString("Respond with a JSON array of strings only.")
	return b.String()
}

func parseQuestionList(text string) ([]string, error) {
	raw, ok := extractBalanced(text, '[', ']')
	if !ok {
		return nil, fmt.Errorf("no JSON array in model response")
	}
	var items []interface{}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("failed to parse question list: %w", err)
	}
	questions := stringList(items)
	if len(questions) == 0 {
		return nil, fmt.Errorf("model returned no questions")
	}
	return questions, nil
}

var bankOrder = []string{"technical", "behavioral", "situational", "problem_solving"}

// bankQuestions interleaves the bank entries of the selected types so every
// type is represented before any repeats, then continues with the remaining
// types so a single selected type still fills a long plan.
func bankQuestions(cfg models.InterviewConfig) []string {
	types := cfg.QuestionTypes.Data().Names()
	if len(types) == 0 {
		types = []string{"technical", "behavioral"}
	}

	selected := make(map[string]bool, len(types))
	for _, t := range types {
		selected[t] = true
	}
	var rest []string
	for _, t := range bankOrder {
		if !selected[t] {
			rest = append(rest, t)
		}
	}

	out := interleaveBank(types, cfg.JobPosition)
	return append(out, interleaveBank(rest, cfg.JobPosition)...)
}

func interleaveBank(types []string, position string) []string {
	var out []string
	for i := 0; ; i++ {
		added := false
		for _, t := range types {
			bank := questionBank[t]
			if i < len(bank) {
				q := bank[i]
				if strings.Contains(q, "%s") {
					q = fmt.Sprintf(q, position)
				}
				out = append(out, q)
				added = true
			}
		}
		if !added {
			return out
		}
	}
}

func appendUnique(dst, src []string, limit int) []string {
	seen := make(map[string]bool, len(dst))
	for _, q := range dst {
		seen[strings.ToLower(q)] = true
	}
	for _, q := range src {
		if len(dst) >= limit {
			break
		}
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		dst = append(dst, q)
	}
	return dst
}
