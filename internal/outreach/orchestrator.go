// Package outreach runs the outreach workflow: operator chat, campaign plans,
// the guarded auto email, customer targeting and feedback calls.
package outreach

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/wolfman30/outreach-console/internal/calls"
	"github.com/wolfman30/outreach-console/internal/customers"
	"github.com/wolfman30/outreach-console/internal/email"
	"github.com/wolfman30/outreach-console/internal/generation"
	"github.com/wolfman30/outreach-console/internal/observability/metrics"
	"github.com/wolfman30/outreach-console/pkg/logging"
)

var (
	ErrClosed          = errors.New("outreach: workflow closed")
	ErrNoTarget        = errors.New("outreach: no call target selected")
	ErrCallActive      = errors.New("outreach: a call is already active")
	ErrFeedbackClosed  = errors.New("outreach: feedback already recorded for this call")
	ErrEmailInFlight   = errors.New("outreach: email generation already running")
	ErrEmailSuperseded = errors.New("outreach: email generation superseded by a newer draft")
	ErrSendInFlight    = errors.New("outreach: bulk email already sending")
	ErrScriptInFlight  = errors.New("outreach: script generation already running")
)

// CustomerSource lists customers for ranking.
type CustomerSource interface {
	List(ctx context.Context, filter customers.ListFilter) ([]customers.Customer, error)
}

// Composer turns the conversation into an email. It never returns an empty
// subject or body.
type Composer interface {
	Compose(ctx context.Context, in email.ComposeInput) email.Composition
}

// BulkSender dispatches one email to many recipients.
type BulkSender interface {
	Send(ctx context.Context, req email.BulkRequest) (email.BulkResult, error)
}

// CallPlacer places calls and reports their progress.
type CallPlacer interface {
	Initiate(ctx context.Context, req calls.InitiateRequest, onUpdate calls.UpdateFunc) (calls.Session, error)
	Close()
}

// MemoryRecorder stores workflow artifacts. It never fails the caller.
type MemoryRecorder interface {
	Record(ctx context.Context, text, ownerKey string)
}

// ScriptSanitizer reduces a generated script to agent turns and strips the
// agent labels before the script is spoken.
type ScriptSanitizer interface {
	Sanitize(raw, customerName string) string
	Fallback(customerName string) string
	Speakable(text string) string
}

// Deps are the collaborators of the orchestrator.
type Deps struct {
	Generator generation.Generator
	Composer  Composer
	Email     BulkSender
	Calls     CallPlacer
	Memory    MemoryRecorder
	Customers CustomerSource
	Sanitizer ScriptSanitizer
	Metrics   *metrics.OutreachMetrics
}

// Config tunes the orchestrator.
type Config struct {
	ContextSize      int
	OwnerKey         string
	Timeout          time.Duration
	EmailDebounce    time.Duration
	RankingFreshness time.Duration
	RankedSurface    int
	NotificationCap  int
	Now              func() time.Time
}

func (c Config) withDefaults() Config {
	if c.OwnerKey == "" {
		c.OwnerKey = "default-user"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.EmailDebounce <= 0 {
		c.EmailDebounce = 1500 * time.Millisecond
	}
	if c.RankingFreshness <= 0 {
		c.RankingFreshness = 5 * time.Minute
	}
	if c.RankedSurface <= 0 {
		c.RankedSurface = 25
	}
	if c.NotificationCap <= 0 {
		c.NotificationCap = 50
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Orchestrator owns all workflow state. Every field below mu is guarded by
// it, and mu is never held across a call to a collaborator.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *logging.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	refresh singleflight.Group

	mu            sync.Mutex
	closed        bool
	chat          []ChatMessage
	campaigns     []DayCampaign
	draft         EmailDraft
	guard         emailGuard
	debounce      *time.Timer
	ranked        []customers.RankedCustomer
	rankedAt      time.Time
	target        *Target
	targetEpoch   uint64
	script        ScriptState
	placing       bool
	activeSID     string
	lastSID       string
	sessions      map[string]calls.Session
	feedback      map[string]Feedback
	sending       bool
	lastResult    *email.BulkResult
	notifications []Notification
}

// New wires an orchestrator. Generator, Composer, Email, Calls and Sanitizer
// are required; Memory and Customers may be nil.
func New(deps Deps, cfg Config, logger *logging.Logger) (*Orchestrator, error) {
	switch {
	case deps.Generator == nil:
		return nil, errors.New("outreach: generator required")
	case deps.Composer == nil:
		return nil, errors.New("outreach: composer required")
	case deps.Email == nil:
		return nil, errors.New("outreach: email sender required")
	case deps.Calls == nil:
		return nil, errors.New("outreach: call placer required")
	case deps.Sanitizer == nil:
		return nil, errors.New("outreach: script sanitizer required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		deps:     deps,
		cfg:      cfg.withDefaults(),
		logger:   logger.Component("outreach"),
		baseCtx:  ctx,
		cancel:   cancel,
		sessions: make(map[string]calls.Session),
		feedback: make(map[string]Feedback),
	}, nil
}

// Close stops the debounce timer, waits for background generations and
// stops every call poller. It is safe to call more than once.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	if o.debounce != nil {
		o.debounce.Stop()
		o.debounce = nil
	}
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
	o.deps.Calls.Close()
}

// Snapshot returns a deep copy of the observable state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := Snapshot{
		Chat:          append([]ChatMessage{}, o.chat...),
		Campaigns:     append([]DayCampaign{}, o.campaigns...),
		Email:         o.draft,
		RankedTotal:   len(o.ranked),
		Script:        o.script,
		SendingEmail:  o.sending,
		Notifications: append([]Notification{}, o.notifications...),
	}
	snap.Email.Generating = o.guard.inFlight
	snap.Email.Locked = o.guard.done

	surface := o.ranked
	if len(surface) > o.cfg.RankedSurface {
		surface = surface[:o.cfg.RankedSurface]
	}
	snap.Ranked = append([]customers.RankedCustomer{}, surface...)
	if !o.rankedAt.IsZero() {
		at := o.rankedAt
		snap.RankedAt = &at
	}
	if o.target != nil {
		t := *o.target
		snap.Target = &t
	}
	if sess, ok := o.sessions[o.activeSID]; ok && o.activeSID != "" {
		c := sess.Clone()
		snap.ActiveCall = &c
	}
	if sess, ok := o.sessions[o.lastSID]; ok && o.lastSID != "" {
		c := sess.Clone()
		snap.LastCall = &c
		if fb, ok := o.feedback[o.lastSID]; ok {
			snap.Feedback = &fb
		}
	}
	if o.lastResult != nil {
		res := *o.lastResult
		res.FailedRecipients = append([]email.FailedRecipient{}, o.lastResult.FailedRecipients...)
		res.MessageIDs = append([]string{}, o.lastResult.MessageIDs...)
		snap.LastBulkResult = &res
	}
	return snap
}

// notifyLocked appends an operator notification. Callers hold mu.
func (o *Orchestrator) notifyLocked(level Level, message string) {
	o.notifications = append(o.notifications, Notification{
		ID:      uuid.NewString(),
		Level:   level,
		Message: message,
		At:      o.cfg.Now().UTC(),
	})
	if over := len(o.notifications) - o.cfg.NotificationCap; over > 0 {
		o.notifications = append([]Notification(nil), o.notifications[over:]...)
	}
}

func (o *Orchestrator) notify(level Level, message string) {
	o.mu.Lock()
	o.notifyLocked(level, message)
	o.mu.Unlock()
}

// record stores text in memory without ever failing the caller.
func (o *Orchestrator) record(ctx context.Context, text, ownerKey string) {
	if o.deps.Memory == nil {
		return
	}
	if ownerKey == "" {
		ownerKey = o.cfg.OwnerKey
	}
	o.deps.Memory.Record(context.WithoutCancel(ctx), text, ownerKey)
}

// generate calls the generation service with the configured timeout and
// treats an empty answer as a failure.
func (o *Orchestrator) generate(ctx context.Context, purpose string, req generation.Request) (string, error) {
	if req.ContextSize == 0 {
		req.ContextSize = o.cfg.ContextSize
	}
	req.IncludeMemories = true
	if req.UserID == "" {
		req.UserID = o.cfg.OwnerKey
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()
	start := time.Now()
	res, err := o.deps.Generator.Generate(callCtx, req)
	if err == nil && isBlank(res.Answer) {
		err = errEmptyAnswer
	}
	o.deps.Metrics.ObserveGeneration(purpose, err, time.Since(start).Seconds())
	if err != nil {
		o.logger.Warn("generation failed", "purpose", purpose, "error", err)
		return "", err
	}
	return res.Answer, nil
}
