package prompt

import (
	"time"
)

type PromptType string

const (
	TypeYesNo          PromptType = "yes_no"
	TypeConfirmEnter   PromptType = "confirm_enter"
	TypeMultipleChoice PromptType = "multiple_choice"
	TypeFreeText       PromptType = "free_text"
)

type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// confidenceRank orders confidence levels for threshold comparison.
var confidenceRank = map[Confidence]int{
	ConfidenceLow:    0,
	ConfidenceMedium: 1,
	ConfidenceHigh:   2,
}

// AtLeast reports whether c meets the given minimum confidence.
func (c Confidence) AtLeast(min Confidence) bool {
	return confidenceRank[c] >= confidenceRank[min]
}

// Valid reports whether c is one of the known confidence levels.
func (c Confidence) Valid() bool {
	_, ok := confidenceRank[c]
	return ok
}

// PromptEvent is an immutable record of a detected prompt. Choices is only
// populated for multiple_choice prompts.
type PromptEvent struct {
	PromptID   string     `json:"prompt_id"`
	SessionID  string     `json:"session_id"`
	PromptType PromptType `json:"prompt_type"`
	Confidence Confidence `json:"confidence"`
	Excerpt    string     `json:"excerpt"`
	Choices    []string   `json:"choices,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type PromptStatus string

const (
	StatusCreated       PromptStatus = "created"
	StatusRouted        PromptStatus = "routed"
	StatusAwaitingReply PromptStatus = "awaiting_reply"
	StatusReplyReceived PromptStatus = "reply_received"
	StatusInjected      PromptStatus = "injected"
	StatusResolved      PromptStatus = "resolved"
	StatusExpired       PromptStatus = "expired"
	StatusCanceled      PromptStatus = "canceled"
	StatusFailed        PromptStatus = "failed"
)

// AllStatuses lists every prompt status. The transition table must be total
// over this set.
var AllStatuses = []PromptStatus{
	StatusCreated,
	StatusRouted,
	StatusAwaitingReply,
	StatusReplyReceived,
	StatusInjected,
	StatusResolved,
	StatusExpired,
	StatusCanceled,
	StatusFailed,
}

// maxExcerptLen bounds the sanitized excerpt carried on a PromptEvent.
const maxExcerptLen = 500

// NewEvent builds a PromptEvent with a bounded excerpt.
func NewEvent(promptID, sessionID string, pt PromptType, conf Confidence, excerpt string, choices []string) PromptEvent {
	if len(excerpt) > maxExcerptLen {
		excerpt = excerpt[:maxExcerptLen]
	}
	return PromptEvent{
		PromptID:   promptID,
		SessionID:  sessionID,
		PromptType: pt,
		Confidence: conf,
		Excerpt:    excerpt,
		Choices:    choices,
		CreatedAt:  time.Now().UTC(),
	}
}
