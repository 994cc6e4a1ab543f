package prompt

import (
	"fmt"
	"time"
)

// ValidTransitions is the total transition table for prompt lifecycle
// states. Terminal states map to an empty set.
var ValidTransitions = map[PromptStatus][]PromptStatus{
	StatusCreated:       {StatusRouted, StatusFailed},
	StatusRouted:        {StatusAwaitingReply, StatusFailed},
	StatusAwaitingReply: {StatusReplyReceived, StatusExpired, StatusCanceled, StatusFailed},
	StatusReplyReceived: {StatusInjected, StatusFailed},
	StatusInjected:      {StatusResolved, StatusFailed},
	StatusResolved:      {},
	StatusExpired:       {},
	StatusCanceled:      {},
	StatusFailed:        {},
}

// TerminalStates are statuses with no outgoing transitions.
var TerminalStates = map[PromptStatus]bool{
	StatusResolved: true,
	StatusExpired:  true,
	StatusCanceled: true,
	StatusFailed:   true,
}

// InvalidTransitionError identifies a rejected state machine edge.
type InvalidTransitionError struct {
	From PromptStatus
	To   PromptStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

// HistoryEntry records one applied transition.
type HistoryEntry struct {
	Status PromptStatus
	Note   string
	At     time.Time
}

// StateMachine tracks a single prompt event through its lifecycle. History
// is append-only; no method removes or rewrites entries.
type StateMachine struct {
	Event   PromptEvent
	Status  PromptStatus
	History []HistoryEntry
}

func NewStateMachine(event PromptEvent) *StateMachine {
	return &StateMachine{Event: event, Status: StatusCreated}
}

// Transition moves the machine to next, appending a history entry. It
// returns an *InvalidTransitionError when the edge is not in the table or
// the current status is terminal.
func (m *StateMachine) Transition(next PromptStatus, note string) error {
	allowed := false
	for _, s := range ValidTransitions[m.Status] {
		if s == next {
			allowed = true
			break
		}
	}
	if !allowed {
		return &InvalidTransitionError{From: m.Status, To: next}
	}
	m.Status = next
	m.History = append(m.History, HistoryEntry{Status: next, Note: note, At: time.Now().UTC()})
	return nil
}

// IsTerminal reports whether the machine has reached a terminal status.
func (m *StateMachine) IsTerminal() bool {
	return TerminalStates[m.Status]
}
