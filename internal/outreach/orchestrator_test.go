package outreach

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wolfman30/outreach-console/internal/calls"
	"github.com/wolfman30/outreach-console/internal/customers"
	"github.com/wolfman30/outreach-console/internal/email"
	"github.com/wolfman30/outreach-console/internal/generation"
	"github.com/wolfman30/outreach-console/internal/script"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

type fakeGenerator struct {
	mu       sync.Mutex
	requests []generation.Request
	fn       func(ctx context.Context, req generation.Request) (generation.Result, error)
}

func (g *fakeGenerator) Generate(ctx context.Context, req generation.Request) (generation.Result, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	fn := g.fn
	g.mu.Unlock()
	if fn == nil {
		return generation.Result{Answer: "Sounds good."}, nil
	}
	return fn(ctx, req)
}

func (g *fakeGenerator) set(fn func(ctx context.Context, req generation.Request) (generation.Result, error)) {
	g.mu.Lock()
	g.fn = fn
	g.mu.Unlock()
}

func (g *fakeGenerator) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

type fakeComposer struct {
	mu      sync.Mutex
	calls   int
	inputs  []email.ComposeInput
	entered chan struct{}
	release chan struct{}
	result  email.Composition
}

func (c *fakeComposer) Compose(ctx context.Context, in email.ComposeInput) email.Composition {
	c.mu.Lock()
	c.calls++
	c.inputs = append(c.inputs, in)
	n := c.calls
	c.mu.Unlock()
	if c.entered != nil {
		c.entered <- struct{}{}
	}
	if c.release != nil {
		<-c.release
	}
	if c.result.Subject != "" {
		return c.result
	}
	return email.Composition{
		Subject: "Spring offers",
		Body:    "Hi {{ name }}, draft " + string(rune('0'+n)),
		Source:  email.SourceParsed,
	}
}

func (c *fakeComposer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeSender struct {
	mu       sync.Mutex
	requests []email.BulkRequest
	err      error
}

func (s *fakeSender) Send(_ context.Context, req email.BulkRequest) (email.BulkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return email.BulkResult{}, s.err
	}
	return email.BulkResult{SentCount: len(req.Recipients), Message: "Successfully sent all emails"}, nil
}

type fakePlacer struct {
	mu       sync.Mutex
	requests []calls.InitiateRequest
	updates  []calls.UpdateFunc
	err      error
	// immediate is published from inside Initiate, before it returns.
	immediate calls.Status
	closed    int
}

func (p *fakePlacer) Initiate(_ context.Context, req calls.InitiateRequest, onUpdate calls.UpdateFunc) (calls.Session, error) {
	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return calls.Session{}, p.err
	}
	p.requests = append(p.requests, req)
	p.updates = append(p.updates, onUpdate)
	sess := calls.Session{
		SID:          "CA" + string(rune('0'+len(p.requests))),
		Phone:        calls.FormatPhone(req.Phone),
		CustomerName: req.CustomerName,
		CustomerID:   req.CustomerID,
		Script:       req.Script,
		Status:       calls.StatusQueued,
	}
	immediate := p.immediate
	p.mu.Unlock()

	if immediate != "" {
		done := sess.Clone()
		done.Status = immediate
		onUpdate(done)
	}
	return sess, nil
}

func (p *fakePlacer) Close() {
	p.mu.Lock()
	p.closed++
	p.mu.Unlock()
}

// publish reports a status for the n-th placed call.
func (p *fakePlacer) publish(n int, status calls.Status, transcript ...calls.Turn) {
	p.mu.Lock()
	req := p.requests[n]
	fn := p.updates[n]
	p.mu.Unlock()
	fn(calls.Session{
		SID:          "CA" + string(rune('0'+n+1)),
		Phone:        calls.FormatPhone(req.Phone),
		CustomerName: req.CustomerName,
		CustomerID:   req.CustomerID,
		Script:       req.Script,
		Status:       status,
		Transcript:   transcript,
	})
}

func (p *fakePlacer) lastRequest() calls.InitiateRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[len(p.requests)-1]
}

type memoryEntry struct {
	text  string
	owner string
}

type fakeMemory struct {
	mu      sync.Mutex
	entries []memoryEntry
}

func (m *fakeMemory) Record(_ context.Context, text, ownerKey string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, memoryEntry{text: text, owner: ownerKey})
}

func (m *fakeMemory) find(substr string) (memoryEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if strings.Contains(e.text, substr) {
			return e, true
		}
	}
	return memoryEntry{}, false
}

type fakeCustomers struct {
	mu      sync.Mutex
	list    []customers.Customer
	err     error
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (c *fakeCustomers) List(_ context.Context, _ customers.ListFilter) ([]customers.Customer, error) {
	c.mu.Lock()
	c.calls++
	list := append([]customers.Customer(nil), c.list...)
	err := c.err
	c.mu.Unlock()
	if c.entered != nil {
		c.entered <- struct{}{}
	}
	if c.release != nil {
		<-c.release
	}
	return list, err
}

func (c *fakeCustomers) set(list ...customers.Customer) {
	c.mu.Lock()
	c.list = list
	c.mu.Unlock()
}

func (c *fakeCustomers) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	orch      *Orchestrator
	gen       *fakeGenerator
	composer  *fakeComposer
	sender    *fakeSender
	placer    *fakePlacer
	memory    *fakeMemory
	customers *fakeCustomers
	clock     *clock
	sanitizer *script.Sanitizer
}

func newHarness(t *testing.T, mutate ...func(*Deps, *Config)) *harness {
	t.Helper()
	h := &harness{
		gen:       &fakeGenerator{},
		composer:  &fakeComposer{},
		sender:    &fakeSender{},
		placer:    &fakePlacer{},
		memory:    &fakeMemory{},
		customers: &fakeCustomers{},
		clock:     &clock{now: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)},
		sanitizer: script.MustDefault(),
	}
	deps := Deps{
		Generator: h.gen,
		Composer:  h.composer,
		Email:     h.sender,
		Calls:     h.placer,
		Memory:    h.memory,
		Customers: h.customers,
		Sanitizer: h.sanitizer,
	}
	cfg := Config{
		EmailDebounce: 20 * time.Millisecond,
		Timeout:       time.Second,
		Now:           h.clock.Now,
	}
	for _, fn := range mutate {
		fn(&deps, &cfg)
	}
	orch, err := New(deps, cfg, nil)
	require.NoError(t, err)
	h.orch = orch
	t.Cleanup(orch.Close)
	return h
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Deps{}, Config{}, nil)
	require.Error(t, err)

	_, err = New(Deps{
		Generator: &fakeGenerator{},
		Composer:  &fakeComposer{},
		Email:     &fakeSender{},
		Calls:     &fakePlacer{},
	}, Config{}, nil)
	require.Error(t, err)
}

func TestCloseStopsCallsOnceAndRejectsWork(t *testing.T) {
	h := newHarness(t)

	h.orch.Close()
	h.orch.Close()

	assert.Equal(t, 1, h.placer.closed)
	_, err := h.orch.SendChatMessage(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = h.orch.InitiateCall(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = h.orch.RegenerateEmail(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.SendChatMessage(context.Background(), "hello")
	require.NoError(t, err)

	snap := h.orch.Snapshot()
	require.Len(t, snap.Chat, 2)
	snap.Chat[0].Text = "mutated"

	again := h.orch.Snapshot()
	assert.Equal(t, "hello", again.Chat[0].Text)
}

func TestNotificationsAreCapped(t *testing.T) {
	h := newHarness(t, func(_ *Deps, cfg *Config) {
		cfg.NotificationCap = 3
	})
	for i := 0; i < 5; i++ {
		h.orch.notify(LevelInfo, string(rune('a'+i)))
	}
	snap := h.orch.Snapshot()
	require.Len(t, snap.Notifications, 3)
	assert.Equal(t, "c", snap.Notifications[0].Message)
	assert.Equal(t, "e", snap.Notifications[2].Message)
}

func TestGenerateMarksEmptyAnswerAsFailure(t *testing.T) {
	h := newHarness(t)
	h.gen.fn = func(context.Context, generation.Request) (generation.Result, error) {
		return generation.Result{Answer: "   "}, nil
	}
	_, err := h.orch.generate(context.Background(), "chat", generation.Request{Instruction: "hi"})
	assert.True(t, errors.Is(err, errEmptyAnswer))

	h.gen.mu.Lock()
	req := h.gen.requests[0]
	h.gen.mu.Unlock()
	assert.True(t, req.IncludeMemories)
	assert.Equal(t, "default-user", req.UserID)
}
