package services

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/intervue/backend/models"
)

// Stock ElevenLabs voice IDs
var interviewerVoices = []string{
	"EXAVITQu4vr4xnSDxMaL", // Rachel
	"21m00Tcm4TlvDq8ikWAM", // Domi
	"AZnzlk1XvdvUeBnXmlld", // Bella
	"ErXwobaYiN019PkySvjV", // Elli
	"MF3mGyEYCl7XYWbV9V6O", // Dorothy
	"pNInz6obpgDQGcFmaJgB", // Adam
	"TxGEqnHWrfWFTfGW9XjX", // Antoni
	"VR6AewLTigWG4xSOukaG", // Josh
	"yoZ06aMxZJJ28mfd3POQ", // Arnold
	"bVMeCyTHy58xNoL34h3p", // Clyde
}

const defaultInterviewerName = "Alex"

// PickDeterministicVoice returns the same stock voice for the same interviewer name.
func PickDeterministicVoice(name string) string {
	h := sha1.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(name))))
	sum := h.Sum(nil)
	idx := binary.BigEndian.Uint16(sum) % uint16(len(interviewerVoices))
	return interviewerVoices[idx]
}

var difficultyTone = map[models.Difficulty]string{
	models.DifficultyBeginner:     "Be encouraging and patient. Offer a gentle hint if the candidate is stuck.",
	models.DifficultyIntermediate: "Be professional and balanced. Ask one follow-up when an answer is vague.",
	models.DifficultyAdvanced:     "Be rigorous. Probe for depth, trade-offs and edge cases before moving on.",
}

// BuildAssistantConfig prepares the voice assistant for one interview.
func BuildAssistantConfig(interview *models.Interview, interviewerName string) AssistantConfig {
	if strings.TrimSpace(interviewerName) == "" {
		interviewerName = defaultInterviewerName
	}
	cfg := interview.Config

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, an interviewer conducting a %d minute mock interview for a %s position.\n",
		interviewerName, cfg.DurationMinutes, cfg.JobPosition)
	if tone, ok := difficultyTone[cfg.Difficulty]; ok {
		b.WriteString(tone)
		b.WriteString("\n")
	}
	if desc := strings.TrimSpace(cfg.JobDescription); desc != "" {
		fmt.Fprintf(&b, "Job description:\n%s\n", desc)
	}
	b.WriteString("Ask the following questions in order, one at a time, and wait for the candidate to finish answering:\n")
	for i, q := range interview.Questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	b.WriteString("Do not give feedback or scores during the interview. After the last question, thank the candidate and end the call.")

	return AssistantConfig{
		Name:    interviewerName,
		VoiceID: PickDeterministicVoice(interviewerName),
		FirstMessage: fmt.Sprintf("Hi, I'm %s. Thanks for joining this %s interview. Are you ready to begin?",
			interviewerName, cfg.JobPosition),
		SystemPrompt: b.String(),
		Questions:    append([]string(nil), interview.Questions...),
	}
}
