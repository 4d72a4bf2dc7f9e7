package outreach

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/outreach-console/internal/apperrors"
	"github.com/wolfman30/outreach-console/internal/calls"
	"github.com/wolfman30/outreach-console/internal/generation"
)

func withTarget(t *testing.T, h *harness, name, phone string) {
	t.Helper()
	_, err := h.orch.SetManualTarget(name, phone)
	require.NoError(t, err)
}

func TestGenerateScriptSanitizesAnswer(t *testing.T) {
	h := newHarness(t)
	answer := "Agent: Hi Maria, this is Sam from the spa calling about our spring offers.\n" +
		"Maria Lopez: sure\n" +
		"Agent: thanks, we would love your feedback on your last visit."
	h.gen.fn = func(context.Context, generation.Request) (generation.Result, error) {
		return generation.Result{Answer: answer}, nil
	}
	withTarget(t, h, "Maria Lopez", "5551112222")

	state, err := h.orch.GenerateScript(context.Background())
	require.NoError(t, err)
	want := h.sanitizer.Sanitize(answer, "Maria Lopez")
	assert.Equal(t, want, state.Generated)
	assert.Equal(t, want, state.Draft)
	assert.Empty(t, state.Saved)
	assert.NotContains(t, state.Generated, "Maria Lopez:")
	assert.False(t, state.Generating)

	h.gen.mu.Lock()
	instruction := h.gen.requests[0].Instruction
	h.gen.mu.Unlock()
	assert.Contains(t, instruction, "Maria Lopez")
}

func TestGenerateScriptFallsBackOnFailure(t *testing.T) {
	h := newHarness(t)
	h.gen.fn = func(context.Context, generation.Request) (generation.Result, error) {
		return generation.Result{}, apperrors.External("generation", "generate", context.DeadlineExceeded)
	}
	withTarget(t, h, "Maria Lopez", "5551112222")

	state, err := h.orch.GenerateScript(context.Background())
	require.NoError(t, err)
	assert.Equal(t, h.sanitizer.Fallback("Maria Lopez"), state.Draft)

	snap := h.orch.Snapshot()
	assert.Equal(t, LevelWarn, snap.Notifications[len(snap.Notifications)-1].Level)
}

func TestGenerateScriptRequiresTarget(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.GenerateScript(context.Background())
	assert.ErrorIs(t, err, ErrNoTarget)
	_, err = h.orch.EditScript("x")
	assert.ErrorIs(t, err, ErrNoTarget)
	_, err = h.orch.SaveScript()
	assert.ErrorIs(t, err, ErrNoTarget)
	assert.Zero(t, h.gen.count())
}

func TestGenerateScriptDiscardedWhenTargetChanges(t *testing.T) {
	h := newHarness(t)
	withTarget(t, h, "Maria Lopez", "5551112222")
	h.gen.fn = func(context.Context, generation.Request) (generation.Result, error) {
		_, err := h.orch.SetManualTarget("Other", "5553334444")
		require.NoError(t, err)
		return generation.Result{Answer: "Agent: hello there, this is a long enough script line for the call."}, nil
	}

	_, err := h.orch.GenerateScript(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsPrecondition(err))

	snap := h.orch.Snapshot()
	assert.Equal(t, "Other", snap.Target.Name)
	assert.Empty(t, snap.Script.Generated)
	assert.False(t, snap.Script.Generating)
}

func TestSaveScriptRejectsEmptyDraft(t *testing.T) {
	h := newHarness(t)
	withTarget(t, h, "Maria", "5551112222")
	_, err := h.orch.SaveScript()
	assert.True(t, apperrors.IsPrecondition(err))
}

func TestInitiateCallUsesOnlySavedScript(t *testing.T) {
	h := newHarness(t)
	withTarget(t, h, "Maria Lopez", "5551112222")
	ctx := context.Background()

	_, err := h.orch.EditScript("Agent: an unsaved draft the operator is still editing")
	require.NoError(t, err)

	sess, err := h.orch.InitiateCall(ctx)
	require.NoError(t, err)
	assert.Equal(t, "CA1", sess.SID)
	req := h.placer.lastRequest()
	assert.Equal(t, h.sanitizer.Speakable(h.sanitizer.Fallback("Maria Lopez")), req.Script)
	assert.Equal(t, "+15551112222", req.Phone)
	assert.Equal(t, "Maria Lopez", req.CustomerName)

	h.placer.publish(0, calls.StatusCompleted)

	_, err = h.orch.SaveScript()
	require.NoError(t, err)
	_, err = h.orch.EditScript("Agent: another draft after saving")
	require.NoError(t, err)

	_, err = h.orch.InitiateCall(ctx)
	require.NoError(t, err)
	assert.Equal(t, "an unsaved draft the operator is still editing", h.placer.lastRequest().Script)
}

func TestInitiateCallSpeaksScriptWithoutLabels(t *testing.T) {
	h := newHarness(t)
	withTarget(t, h, "Maria Lopez", "5551112222")

	_, err := h.orch.EditScript("Agent: Hi Maria, thanks for picking up.\nAgent: Did our spring email reach you?")
	require.NoError(t, err)
	saved, err := h.orch.SaveScript()
	require.NoError(t, err)
	assert.Contains(t, saved.Saved, "Agent:")

	_, err = h.orch.InitiateCall(context.Background())
	require.NoError(t, err)

	spoken := h.placer.lastRequest().Script
	assert.Equal(t, "Hi Maria, thanks for picking up.\nDid our spring email reach you?", spoken)
	twiml := calls.GatherTwiML(spoken, "https://hooks.example.com")
	assert.NotContains(t, twiml, "Agent:")
	assert.Contains(t, twiml, "Did our spring email reach you?")
	assert.Contains(t, h.orch.Snapshot().Script.Saved, "Agent: Hi Maria")
}

func TestCallRecordIncludesDuration(t *testing.T) {
	rec := callRecord(calls.Session{
		SID:             "CA7",
		CustomerName:    "Ana",
		Script:          "Hi Ana",
		Status:          calls.StatusCompleted,
		DurationSeconds: 45,
	})
	assert.Contains(t, rec, "ended with status completed after 45s.")

	rec = callRecord(calls.Session{SID: "CA8", CustomerName: "Ben", Status: calls.StatusFailed})
	assert.NotContains(t, rec, " after ")
}

func TestInitiateCallRejectedWhileActive(t *testing.T) {
	h := newHarness(t)
	withTarget(t, h, "Maria", "5551112222")
	ctx := context.Background()

	_, err := h.orch.InitiateCall(ctx)
	require.NoError(t, err)
	h.placer.publish(0, calls.StatusRinging)

	_, err = h.orch.InitiateCall(ctx)
	assert.ErrorIs(t, err, ErrCallActive)

	snap := h.orch.Snapshot()
	require.NotNil(t, snap.ActiveCall)
	assert.Equal(t, calls.StatusRinging, snap.ActiveCall.Status)

	h.placer.publish(0, calls.StatusNoAnswer)
	snap = h.orch.Snapshot()
	assert.Nil(t, snap.ActiveCall)
	require.NotNil(t, snap.LastCall)
	assert.Equal(t, calls.StatusNoAnswer, snap.LastCall.Status)

	_, err = h.orch.InitiateCall(ctx)
	assert.NoError(t, err)
}

func TestInitiateCallRequiresTarget(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.InitiateCall(context.Background())
	assert.ErrorIs(t, err, ErrNoTarget)
	assert.Empty(t, h.placer.requests)
}

func TestInitiateCallGatewayFailureLeavesNoActiveCall(t *testing.T) {
	h := newHarness(t)
	withTarget(t, h, "Maria", "5551112222")
	h.placer.err = apperrors.External("twilio", "create call", errors.New("bad credentials"))

	_, err := h.orch.InitiateCall(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsExternal(err))

	snap := h.orch.Snapshot()
	assert.Nil(t, snap.ActiveCall)
	assert.Equal(t, LevelError, snap.Notifications[len(snap.Notifications)-1].Level)

	h.placer.err = nil
	_, err = h.orch.InitiateCall(context.Background())
	assert.NoError(t, err)
}

func TestTerminalUpdateBeforeInitiateReturns(t *testing.T) {
	h := newHarness(t)
	withTarget(t, h, "Maria", "5551112222")
	h.placer.immediate = calls.StatusFailed

	sess, err := h.orch.InitiateCall(context.Background())
	require.NoError(t, err)
	assert.Equal(t, calls.StatusFailed, sess.Status)
	assert.Nil(t, h.orch.Snapshot().ActiveCall)

	h.placer.immediate = ""
	_, err = h.orch.InitiateCall(context.Background())
	assert.NoError(t, err)
}

func TestCompletedCallRecordsTranscript(t *testing.T) {
	h := newHarness(t)
	h.customers.set(ben)
	_, err := h.orch.RefreshCustomers(context.Background(), false)
	require.NoError(t, err)

	_, err = h.orch.InitiateCall(context.Background())
	require.NoError(t, err)
	h.placer.publish(0, calls.StatusCompleted,
		calls.Turn{Role: calls.RoleAgent, Text: "Hi Ben"},
		calls.Turn{Role: calls.RoleCustomer, Text: "Hello"},
	)

	entry, ok := h.memory.find("Transcript:")
	require.True(t, ok)
	assert.Equal(t, "c2", entry.owner)
	assert.Contains(t, entry.text, "Customer: Hello")
	assert.Contains(t, entry.text, "completed")
}

func TestFailedCallRecordsOutcomeWithoutTranscript(t *testing.T) {
	h := newHarness(t)
	withTarget(t, h, "Maria", "5551112222")
	_, err := h.orch.InitiateCall(context.Background())
	require.NoError(t, err)
	h.placer.publish(0, calls.StatusFailed)

	entry, ok := h.memory.find("ended with status failed")
	require.True(t, ok)
	assert.Equal(t, "default-user", entry.owner)
	assert.NotContains(t, entry.text, "Transcript:")
}

func TestRecordFeedbackOncePerCompletedCall(t *testing.T) {
	h := newHarness(t)
	withTarget(t, h, "Maria", "5551112222")
	ctx := context.Background()

	_, err := h.orch.RecordFeedback(ctx, true, "")
	assert.True(t, apperrors.IsPrecondition(err), "no call yet")

	_, err = h.orch.InitiateCall(ctx)
	require.NoError(t, err)
	h.placer.publish(0, calls.StatusFailed)
	_, err = h.orch.RecordFeedback(ctx, true, "")
	assert.True(t, apperrors.IsPrecondition(err), "failed call")

	_, err = h.orch.InitiateCall(ctx)
	require.NoError(t, err)
	h.placer.publish(1, calls.StatusCompleted)

	fb, err := h.orch.RecordFeedback(ctx, false, "  too pushy ")
	require.NoError(t, err)
	assert.Equal(t, "CA2", fb.CallSID)
	assert.Equal(t, "too pushy", fb.Note)

	_, err = h.orch.RecordFeedback(ctx, true, "")
	assert.ErrorIs(t, err, ErrFeedbackClosed)

	snap := h.orch.Snapshot()
	require.NotNil(t, snap.Feedback)
	assert.False(t, snap.Feedback.Positive)
	_, ok := h.memory.find("Operator feedback on call CA2")
	assert.True(t, ok)

	_, err = h.orch.InitiateCall(ctx)
	require.NoError(t, err)
	h.placer.publish(2, calls.StatusCompleted)
	_, err = h.orch.RecordFeedback(ctx, true, "")
	assert.NoError(t, err)
}
