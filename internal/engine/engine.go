// Package engine runs the prompt pipeline: sanitize terminal output,
// classify prompts, evaluate policy, and act on the decision under the
// effective autonomy mode.
//
// The policy evaluator is mode-agnostic; this package is the single place
// where autonomy is enforced. In OFF mode an auto_reply decision is still
// recorded to the trace but never injected.
package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atlasbridge/atlasbridge/internal/approval"
	"github.com/atlasbridge/atlasbridge/internal/audit"
	"github.com/atlasbridge/atlasbridge/internal/policy"
	"github.com/atlasbridge/atlasbridge/internal/prompt"
	"github.com/atlasbridge/atlasbridge/internal/store"
	"github.com/atlasbridge/atlasbridge/internal/trace"
	"github.com/atlasbridge/atlasbridge/internal/unicode"
)

// Injector delivers a reply to the supervised CLI session.
type Injector interface {
	Inject(ctx context.Context, sessionID, reply string) error
}

// InjectorFunc adapts a function to the Injector interface.
type InjectorFunc func(ctx context.Context, sessionID, reply string) error

func (f InjectorFunc) Inject(ctx context.Context, sessionID, reply string) error {
	return f(ctx, sessionID, reply)
}

// Engine coordinates the prompt lifecycle for one process.
type Engine struct {
	store    *store.Store
	trace    *trace.DecisionTrace
	audit    *audit.Writer
	policy   *policy.Policy
	injector Injector
	timeout  time.Duration
	escalate func(approval.Prompt) approval.Result
}

func New(s *store.Store, tr *trace.DecisionTrace, aw *audit.Writer, p *policy.Policy, inj Injector, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Engine{store: s, trace: tr, audit: aw, policy: p, injector: inj, timeout: timeout}
}

// SetEscalator routes require_human decisions to a local operator, normally
// approval.Ask. When unset, escalated prompts stay awaiting_reply for
// delivery over a channel.
func (e *Engine) SetEscalator(fn func(approval.Prompt) approval.Result) {
	e.escalate = fn
}

// Outcome reports what the pipeline did with one chunk of terminal output.
type Outcome struct {
	Prompt      prompt.PromptEvent
	Machine     *prompt.StateMachine
	Decision    policy.Decision
	AutoReplied bool
	Reply       string
}

func newNonce() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing is unrecoverable for nonce generation.
		panic(fmt.Sprintf("nonce generation: %v", err))
	}
	return hex.EncodeToString(b[:])
}

// effectiveMode folds the workspace posture default over the policy mode.
// The posture binding wins when set; it is the operator's explicit choice
// for that workspace.
func effectiveMode(p *policy.Policy, wc store.WorkspaceContext) policy.AutonomyMode {
	if wc.AutonomyDefault != "" {
		switch strings.ToUpper(wc.AutonomyDefault) {
		case "OFF":
			return policy.ModeOff
		case "ASSIST":
			return policy.ModeAssist
		case "FULL":
			return policy.ModeFull
		}
	}
	return p.AutonomyMode
}

// HandleOutput runs one chunk of raw terminal output through the pipeline.
// Returns nil when the output does not contain an actionable prompt.
func (e *Engine) HandleOutput(ctx context.Context, sessionID, workspacePath, raw string) (*Outcome, error) {
	clean := prompt.SanitizeTerminalOutput(raw)
	if !prompt.IsMeaningful(clean) {
		return nil, nil
	}

	promptType, confidence, choices := prompt.Classify(clean)
	event := prompt.NewEvent(uuid.NewString(), sessionID, promptType, confidence, clean, choices)
	machine := prompt.NewStateMachine(event)

	wc, err := e.store.GetWorkspaceContext(ctx, workspacePath)
	if err != nil {
		return nil, err
	}

	if err := machine.Transition(prompt.StatusRouted, "classified"); err != nil {
		return nil, err
	}
	if err := machine.Transition(prompt.StatusAwaitingReply, "stored"); err != nil {
		return nil, err
	}

	nonce := newNonce()
	expiresAt := time.Now().UTC().Add(e.timeout).Format(time.RFC3339Nano)
	if err := e.store.SavePrompt(ctx, event.PromptID, sessionID,
		string(promptType), string(confidence), event.Excerpt, nonce, expiresAt); err != nil {
		return nil, err
	}
	e.audit.PromptDetected(ctx, sessionID, event.PromptID, string(promptType), string(confidence))

	trusted := wc.Trusted
	decision := policy.Evaluate(e.policy, policy.EvalInput{
		PromptText:       clean,
		PromptType:       promptType,
		Confidence:       confidence,
		PromptID:         event.PromptID,
		SessionID:        sessionID,
		WorkspaceTrusted: &trusted,
		WorkspaceProfile: wc.ProfileName,
	})

	mode := effectiveMode(e.policy, wc)
	decision.AutonomyMode = mode

	e.trace.Record(decision)
	e.audit.AutopilotDecision(ctx, sessionID, event.PromptID,
		string(decision.ActionType), decision.MatchedRuleID, decision.PolicyHash)

	outcome := &Outcome{Prompt: event, Machine: machine, Decision: decision}

	if decision.ActionType == policy.ActionAutoReply && mode != policy.ModeOff {
		won, err := e.store.DecidePrompt(ctx, event.PromptID, "reply_received",
			"autopilot", decision.ActionValue, nonce)
		if err != nil {
			return nil, err
		}
		if won == 1 {
			if err := e.deliverReply(ctx, machine, sessionID, event.PromptID, decision.ActionValue); err != nil {
				return outcome, err
			}
			outcome.AutoReplied = true
			outcome.Reply = decision.ActionValue
		}
	}

	if decision.ActionType == policy.ActionRequireHuman && e.escalate != nil {
		res := e.escalate(approval.Prompt{
			PromptText:  event.Excerpt,
			PromptType:  string(promptType),
			Choices:     choices,
			Explanation: decision.Explanation,
		})
		if res.Answered {
			won, err := e.SubmitReply(ctx, event.PromptID, "local_operator", res.Reply, nonce)
			if err != nil {
				return outcome, err
			}
			outcome.AutoReplied = false
			if won {
				outcome.Reply = res.Reply
			}
		}
	}
	return outcome, nil
}

// deliverReply injects a won reply and walks the state machine through to
// resolution. Injection failure moves the prompt to failed, never retries.
func (e *Engine) deliverReply(ctx context.Context, machine *prompt.StateMachine, sessionID, promptID, reply string) error {
	if err := machine.Transition(prompt.StatusReplyReceived, "decide won"); err != nil {
		return err
	}
	if err := e.injector.Inject(ctx, sessionID, reply); err != nil {
		machine.Transition(prompt.StatusFailed, "injection failed")
		e.store.UpdatePromptStatus(ctx, promptID, string(prompt.StatusFailed))
		return fmt.Errorf("inject reply: %w", err)
	}
	if err := machine.Transition(prompt.StatusInjected, "delivered"); err != nil {
		return err
	}
	e.store.UpdatePromptStatus(ctx, promptID, string(prompt.StatusInjected))
	e.audit.ReplyInjected(ctx, sessionID, promptID)

	if err := machine.Transition(prompt.StatusResolved, "session continued"); err != nil {
		return err
	}
	e.store.UpdatePromptStatus(ctx, promptID, string(prompt.StatusResolved))
	return nil
}

// SubmitReply handles a human reply from a channel. The injection guard
// decides atomically; a rejected reply is audited and reported false.
// Replies carrying hidden Unicode (zero-width, bidi controls, tag
// characters) are rejected before the guard runs: what the operator saw
// must be exactly what reaches the terminal.
func (e *Engine) SubmitReply(ctx context.Context, promptID, channelIdentity, reply, nonce string) (bool, error) {
	p, err := e.store.GetPrompt(ctx, promptID)
	if err != nil {
		return false, err
	}
	if p == nil {
		return false, nil
	}

	if scan := unicode.Scan(reply); !scan.Clean {
		slog.Warn("reply_rejected_hidden_unicode",
			"prompt_id", promptID,
			"channel_identity", channelIdentity,
			"findings", len(scan.Findings))
		e.audit.ChannelMessageRejected(ctx, p.SessionID, promptID, "channel", channelIdentity,
			reply, p.Status, "hidden_characters", audit.MessageOptions{})
		return false, nil
	}

	won, err := e.store.DecidePrompt(ctx, promptID, "reply_received", channelIdentity, reply, nonce)
	if err != nil {
		return false, err
	}
	if won != 1 {
		slog.Info("reply_rejected", "prompt_id", promptID, "channel_identity", channelIdentity)
		return false, nil
	}
	e.audit.ReplyReceived(ctx, p.SessionID, promptID, channelIdentity, reply, nonce)

	machine := prompt.NewStateMachine(prompt.NewEvent(promptID, p.SessionID,
		prompt.PromptType(p.PromptType), prompt.Confidence(p.Confidence), p.Excerpt, nil))
	machine.Transition(prompt.StatusRouted, "")
	machine.Transition(prompt.StatusAwaitingReply, "")
	if err := e.deliverReply(ctx, machine, p.SessionID, promptID, reply); err != nil {
		return true, err
	}
	return true, nil
}

// ExpireOverdue transitions every overdue prompt to expired and audits each.
func (e *Engine) ExpireOverdue(ctx context.Context) (int, error) {
	ids, err := e.store.ExpirePrompts(ctx)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		p, err := e.store.GetPrompt(ctx, id)
		if err != nil {
			continue
		}
		e.audit.PromptExpired(ctx, p.SessionID, id)
	}
	return len(ids), nil
}
