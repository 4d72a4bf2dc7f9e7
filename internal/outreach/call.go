package outreach

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/outreach-console/internal/apperrors"
	"github.com/wolfman30/outreach-console/internal/calls"
	"github.com/wolfman30/outreach-console/internal/generation"
)

// GenerateScript drafts a call script for the current target. A failed
// generation falls back to the template script. The result replaces the
// generated and draft variants; the saved script is left alone.
func (o *Orchestrator) GenerateScript(ctx context.Context) (ScriptState, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ScriptState{}, ErrClosed
	}
	if o.target == nil {
		o.mu.Unlock()
		return ScriptState{}, ErrNoTarget
	}
	if o.script.Generating {
		o.mu.Unlock()
		return ScriptState{}, ErrScriptInFlight
	}
	o.script.Generating = true
	epoch := o.targetEpoch
	name := o.target.Name
	plan := summarizeCampaigns(o.campaigns)
	o.mu.Unlock()

	answer, err := o.generate(ctx, "script", generation.Request{Instruction: scriptInstruction(name, plan)})
	var text string
	if err != nil {
		text = o.deps.Sanitizer.Fallback(name)
	} else {
		text = o.deps.Sanitizer.Sanitize(answer, name)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if epoch != o.targetEpoch {
		return ScriptState{}, apperrors.Precondition("generate script", "call target changed while the script was generated")
	}
	o.script.Generating = false
	o.script.Generated = text
	o.script.Draft = text
	if err != nil {
		o.notifyLocked(LevelWarn, "Script generation failed; using the standard script")
	}
	return o.script, nil
}

func scriptInstruction(name, plan string) string {
	if strings.TrimSpace(name) == "" {
		name = "the customer"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Write a short, friendly outbound phone call script for a call to %s.\n", name)
	b.WriteString("Write only what the calling agent says, one line per turn, each line starting with \"Agent:\". ")
	b.WriteString("Do not write the customer's replies. Introduce the call, mention our current offers, ask for quick feedback and close politely.")
	if plan != "" {
		b.WriteString("\n\nCurrent campaign plan:\n")
		b.WriteString(plan)
	}
	return b.String()
}

// EditScript replaces the operator draft.
func (o *Orchestrator) EditScript(text string) (ScriptState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ScriptState{}, ErrClosed
	}
	if o.target == nil {
		return ScriptState{}, ErrNoTarget
	}
	o.script.Draft = text
	return o.script, nil
}

// SaveScript promotes the draft to the script used by the next call.
func (o *Orchestrator) SaveScript() (ScriptState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ScriptState{}, ErrClosed
	}
	if o.target == nil {
		return ScriptState{}, ErrNoTarget
	}
	draft := strings.TrimSpace(o.script.Draft)
	if draft == "" {
		return ScriptState{}, apperrors.Precondition("save script", "script is empty")
	}
	o.script.Saved = draft
	return o.script, nil
}

// InitiateCall calls the target with the saved script, or with the template
// script when nothing has been saved. Only one call runs at a time.
func (o *Orchestrator) InitiateCall(ctx context.Context) (calls.Session, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return calls.Session{}, ErrClosed
	}
	if o.target == nil {
		o.mu.Unlock()
		return calls.Session{}, ErrNoTarget
	}
	if o.activeSID != "" || o.placing {
		o.mu.Unlock()
		return calls.Session{}, ErrCallActive
	}
	target := *o.target
	script := o.deps.Sanitizer.Speakable(o.script.Saved)
	if isBlank(script) {
		script = o.deps.Sanitizer.Speakable(o.deps.Sanitizer.Fallback(target.Name))
	}
	o.placing = true
	o.mu.Unlock()

	sess, err := o.deps.Calls.Initiate(ctx, calls.InitiateRequest{
		Phone:        target.Phone,
		CustomerName: target.Name,
		CustomerID:   target.CustomerID,
		Script:       script,
	}, o.onCallUpdate)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.placing = false
	if err != nil {
		o.notifyLocked(LevelError, "Call could not be placed: "+err.Error())
		return calls.Session{}, err
	}

	// The poller may already have reported on this call.
	if seen, ok := o.sessions[sess.SID]; ok {
		if !seen.Status.Terminal() {
			o.activeSID = sess.SID
		}
		return seen.Clone(), nil
	}
	o.sessions[sess.SID] = sess.Clone()
	o.activeSID = sess.SID
	o.notifyLocked(LevelInfo, fmt.Sprintf("Calling %s", labelFor(target)))
	return sess, nil
}

// onCallUpdate receives status changes from the call poller.
func (o *Orchestrator) onCallUpdate(sess calls.Session) {
	o.mu.Lock()
	o.sessions[sess.SID] = sess.Clone()
	if !sess.Status.Terminal() {
		o.mu.Unlock()
		return
	}
	if o.activeSID == sess.SID {
		o.activeSID = ""
	}
	o.lastSID = sess.SID
	switch sess.Status {
	case calls.StatusCompleted:
		if len(sess.Transcript) == 0 {
			o.notifyLocked(LevelWarn, "Call completed; the transcript is not available")
		} else {
			o.notifyLocked(LevelInfo, "Call completed")
		}
	default:
		o.notifyLocked(LevelWarn, fmt.Sprintf("Call ended: %s", sess.Status))
	}
	o.mu.Unlock()

	o.record(o.baseCtx, callRecord(sess), sess.CustomerID)
}

func callRecord(sess calls.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Phone call %s to %s", sess.SID, sessionLabel(sess))
	fmt.Fprintf(&b, " ended with status %s", sess.Status)
	if sess.DurationSeconds > 0 {
		fmt.Fprintf(&b, " after %ds", sess.DurationSeconds)
	}
	b.WriteString(".\n")
	if len(sess.Transcript) > 0 {
		b.WriteString("Transcript:\n")
		b.WriteString(calls.FormatTranscript(sess.Transcript))
	} else {
		b.WriteString("Script:\n")
		b.WriteString(sess.Script)
	}
	return b.String()
}

// RecordFeedback stores the operator's verdict on the last completed call.
// Each call takes feedback once.
func (o *Orchestrator) RecordFeedback(ctx context.Context, positive bool, note string) (Feedback, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return Feedback{}, ErrClosed
	}
	sess, ok := o.sessions[o.lastSID]
	if o.lastSID == "" || !ok {
		o.mu.Unlock()
		return Feedback{}, apperrors.Precondition("record feedback", "no finished call to rate")
	}
	if sess.Status != calls.StatusCompleted {
		o.mu.Unlock()
		return Feedback{}, apperrors.Precondition("record feedback", "feedback requires a completed call")
	}
	if _, done := o.feedback[sess.SID]; done {
		o.mu.Unlock()
		return Feedback{}, ErrFeedbackClosed
	}
	fb := Feedback{
		CallSID:    sess.SID,
		Positive:   positive,
		Note:       strings.TrimSpace(note),
		RecordedAt: o.cfg.Now().UTC(),
	}
	o.feedback[sess.SID] = fb
	o.mu.Unlock()

	verdict := "negative"
	if positive {
		verdict = "positive"
	}
	text := fmt.Sprintf("Operator feedback on call %s to %s: %s", sess.SID, sessionLabel(sess), verdict)
	if fb.Note != "" {
		text += "\nNote: " + fb.Note
	}
	o.record(ctx, text, sess.CustomerID)
	return fb, nil
}

func labelFor(t Target) string {
	if t.Name != "" {
		return t.Name
	}
	return t.Phone
}

func sessionLabel(sess calls.Session) string {
	if sess.CustomerName != "" {
		return fmt.Sprintf("%s (%s)", sess.CustomerName, sess.Phone)
	}
	return sess.Phone
}

