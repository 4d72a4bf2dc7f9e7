package outreach

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/outreach-console/internal/apperrors"
	"github.com/wolfman30/outreach-console/internal/customers"
	"github.com/wolfman30/outreach-console/internal/email"
)

// minAutoEmailHistory is the conversation length needed before an email is
// derived from it.
const minAutoEmailHistory = 2

// scheduleAutoEmailLocked (re)starts the debounce timer when the guard is
// open. Both chat growth and campaign generation land here, so they share
// one guard. Callers hold mu.
func (o *Orchestrator) scheduleAutoEmailLocked() {
	if o.closed || !o.guard.open() || len(o.chat) < minAutoEmailHistory {
		return
	}
	if o.debounce != nil {
		o.debounce.Stop()
	}
	epoch := o.guard.epoch
	o.debounce = time.AfterFunc(o.cfg.EmailDebounce, func() { o.fireAutoEmail(epoch) })
}

// fireAutoEmail runs when the debounce timer expires. The guard is checked
// again because a reset, an edit or another generation may have happened
// while the timer was pending.
func (o *Orchestrator) fireAutoEmail(epoch uint64) {
	o.mu.Lock()
	if o.closed || epoch != o.guard.epoch || !o.guard.open() || len(o.chat) < minAutoEmailHistory {
		o.mu.Unlock()
		return
	}
	o.debounce = nil
	input := o.composeInputLocked()
	o.guard.inFlight = true
	o.wg.Add(1)
	o.mu.Unlock()
	defer o.wg.Done()

	o.applyComposition(o.baseCtx, epoch, o.deps.Composer.Compose(o.baseCtx, input))
}

// applyComposition stores a finished composition unless its epoch has been
// superseded, and closes the guard.
func (o *Orchestrator) applyComposition(ctx context.Context, epoch uint64, comp email.Composition) bool {
	o.mu.Lock()
	if epoch != o.guard.epoch {
		o.mu.Unlock()
		o.logger.Info("discarding superseded email generation", "epoch", epoch)
		return false
	}
	o.guard.inFlight = false
	o.guard.done = true
	o.draft = EmailDraft{Subject: comp.Subject, Body: comp.Body, Source: comp.Source}
	if comp.Source == email.SourceFallback {
		o.notifyLocked(LevelWarn, "Email drafted from the template; the generation service was unavailable")
	} else {
		o.notifyLocked(LevelInfo, "Email drafted from the conversation")
	}
	o.mu.Unlock()

	o.record(ctx, fmt.Sprintf("Email draft (%s)\nSubject: %s\n\n%s", comp.Source, comp.Subject, comp.Body), "")
	return true
}

// ResetEmailGuard reopens the auto-email guard. A generation still in flight
// keeps running but its result is dropped.
func (o *Orchestrator) ResetEmailGuard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.guard = emailGuard{epoch: o.guard.epoch + 1}
	if o.debounce != nil {
		o.debounce.Stop()
		o.debounce = nil
	}
}

// RegenerateEmail resets the guard and composes a new email immediately.
func (o *Orchestrator) RegenerateEmail(ctx context.Context) (EmailDraft, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return EmailDraft{}, ErrClosed
	}
	if o.guard.inFlight {
		o.mu.Unlock()
		return EmailDraft{}, ErrEmailInFlight
	}
	if o.debounce != nil {
		o.debounce.Stop()
		o.debounce = nil
	}
	o.guard = emailGuard{inFlight: true, epoch: o.guard.epoch + 1}
	epoch := o.guard.epoch
	input := o.composeInputLocked()
	o.wg.Add(1)
	o.mu.Unlock()
	defer o.wg.Done()

	comp := o.deps.Composer.Compose(ctx, input)
	if !o.applyComposition(ctx, epoch, comp) {
		return EmailDraft{}, ErrEmailSuperseded
	}
	return EmailDraft{Subject: comp.Subject, Body: comp.Body, Source: comp.Source, Locked: true}, nil
}

// EditEmail replaces the draft with operator text. The guard closes so no
// generation overwrites the edit.
func (o *Orchestrator) EditEmail(subject, body string) (EmailDraft, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return EmailDraft{}, apperrors.Precondition("edit email", "subject is required")
	}
	if strings.TrimSpace(body) == "" {
		return EmailDraft{}, apperrors.Precondition("edit email", "body is required")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.debounce != nil {
		o.debounce.Stop()
		o.debounce = nil
	}
	o.guard = emailGuard{done: true, epoch: o.guard.epoch + 1}
	o.draft = EmailDraft{Subject: subject, Body: body, Source: email.SourceOperator, Locked: true}
	return o.draft, nil
}

func (o *Orchestrator) composeInputLocked() email.ComposeInput {
	in := email.ComposeInput{
		History:   make([]email.Turn, 0, len(o.chat)),
		Campaigns: make([]email.CampaignSummary, 0, len(o.campaigns)),
	}
	for _, m := range o.chat {
		in.History = append(in.History, email.Turn{Role: string(m.Role), Text: m.Text})
	}
	for _, c := range o.campaigns {
		in.Campaigns = append(in.Campaigns, email.CampaignSummary{
			Day:     c.Day,
			Date:    c.Date,
			Caption: c.Caption,
			Channel: c.Channel,
		})
	}
	return in
}

// BulkEmailInput overrides the defaults of a bulk send. Blank fields fall
// back to the current draft and to the ranked customers with an email.
type BulkEmailInput struct {
	Recipients   []email.Recipient `json:"recipients"`
	Subject      string            `json:"subject"`
	Body         string            `json:"body"`
	CampaignName string            `json:"campaign_name"`
	// Limit caps the number of ranked recipients used by default.
	Limit int `json:"limit"`
}

// SendBulkEmail dispatches the email. Per-recipient failures are part of
// the result, not an error.
func (o *Orchestrator) SendBulkEmail(ctx context.Context, in BulkEmailInput) (email.BulkResult, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return email.BulkResult{}, ErrClosed
	}
	if isBlank(in.Subject) {
		in.Subject = o.draft.Subject
	}
	if isBlank(in.Body) {
		in.Body = o.draft.Body
	}
	o.mu.Unlock()

	if len(in.Recipients) == 0 && o.deps.Customers != nil {
		if ranked, err := o.RefreshCustomers(ctx, false); err == nil {
			in.Recipients = recipientsFrom(customers.WithEmail(ranked), in.Limit)
		}
	}

	req := email.BulkRequest{
		Recipients:   in.Recipients,
		Subject:      in.Subject,
		Body:         in.Body,
		CampaignName: in.CampaignName,
	}
	if err := email.Validate(req); err != nil {
		return email.BulkResult{}, err
	}

	o.mu.Lock()
	if o.sending {
		o.mu.Unlock()
		return email.BulkResult{}, ErrSendInFlight
	}
	o.sending = true
	o.mu.Unlock()

	res, err := o.deps.Email.Send(ctx, req)

	o.mu.Lock()
	o.sending = false
	if err != nil {
		o.notifyLocked(LevelError, "Bulk email failed: "+err.Error())
		o.mu.Unlock()
		return email.BulkResult{}, err
	}
	stored := res
	o.lastResult = &stored
	level := LevelInfo
	if res.FailedCount > 0 {
		level = LevelWarn
	}
	o.notifyLocked(level, fmt.Sprintf("Email sent to %d recipients, %d failed", res.SentCount, res.FailedCount))
	o.mu.Unlock()

	o.deps.Metrics.ObserveEmails(res.SentCount, res.FailedCount)
	o.record(ctx, fmt.Sprintf("Bulk email %q sent: %d delivered, %d failed", req.Subject, res.SentCount, res.FailedCount), "")
	return res, nil
}

func recipientsFrom(ranked []customers.RankedCustomer, limit int) []email.Recipient {
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]email.Recipient, 0, len(ranked))
	for _, rc := range ranked {
		out = append(out, email.Recipient{
			Email:      rc.Email,
			CustomerID: rc.ID,
			Name:       rc.Name,
			Personalization: map[string]any{
				"segment": rc.Segment,
				"score":   rc.Score,
			},
		})
	}
	return out
}
