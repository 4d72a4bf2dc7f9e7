package calls

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/outreach-console/internal/apperrors"
	"github.com/wolfman30/outreach-console/internal/observability/metrics"
	"github.com/wolfman30/outreach-console/pkg/logging"
)

// ErrManagerClosed is returned by Initiate after Close.
var ErrManagerClosed = errors.New("calls: manager closed")

const (
	defaultPollInterval = 2 * time.Second
	defaultCallTimeout  = 30 * time.Second
)

// InitiateRequest describes a call to place.
type InitiateRequest struct {
	Phone        string
	CustomerName string
	CustomerID   string
	Script       string
}

// UpdateFunc receives a copy of the session after each status change.
type UpdateFunc func(Session)

// ManagerConfig tunes polling.
type ManagerConfig struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// Manager places calls and runs one status poller per call.
type Manager struct {
	gateway Gateway
	store   *SessionStore
	metrics *metrics.OutreachMetrics
	cfg     ManagerConfig
	logger  *logging.Logger

	mu      sync.Mutex
	pollers map[string]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithSessionStore persists sessions so webhooks can serve the script.
func WithSessionStore(store *SessionStore) ManagerOption {
	return func(m *Manager) { m.store = store }
}

func WithMetrics(mt *metrics.OutreachMetrics) ManagerOption {
	return func(m *Manager) { m.metrics = mt }
}

// NewManager builds a manager around gateway.
func NewManager(gateway Gateway, cfg ManagerConfig, logger *logging.Logger, opts ...ManagerOption) *Manager {
	if gateway == nil {
		panic("calls: gateway cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCallTimeout
	}
	m := &Manager{
		gateway: gateway,
		cfg:     cfg,
		logger:  logger,
		pollers: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initiate places the call and starts its poller. onUpdate may be nil. A
// gateway rejection returns an external error and starts nothing.
func (m *Manager) Initiate(ctx context.Context, req InitiateRequest, onUpdate UpdateFunc) (Session, error) {
	if strings.TrimSpace(req.Phone) == "" {
		return Session{}, apperrors.Precondition("initiate call", "phone number is required")
	}
	script := strings.TrimSpace(req.Script)
	if script == "" {
		return Session{}, apperrors.Precondition("initiate call", "call script is required")
	}
	phone := FormatPhone(req.Phone)
	if phone == "" {
		return Session{}, apperrors.Precondition("initiate call", "phone number must contain digits")
	}

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return Session{}, ErrManagerClosed
	}

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	sid, status, err := m.gateway.Initiate(callCtx, Placement{To: phone, Script: script, CustomerName: req.CustomerName})
	cancel()
	if err != nil {
		m.metrics.ObserveCallStatus("rejected")
		return Session{}, apperrors.External(serviceName, "create call", err)
	}
	if status.Terminal() {
		// terminal states are reported only by the poller
		status = StatusQueued
	}

	now := time.Now().UTC()
	sess := Session{
		SID:               sid,
		Phone:             phone,
		CustomerName:      req.CustomerName,
		CustomerID:        req.CustomerID,
		Script:            script,
		Status:            status,
		Transcript:        []Turn{},
		CustomerResponses: []string{},
		StartedAt:         now,
		UpdatedAt:         now,
	}
	m.metrics.ObserveCallStatus(string(status))
	m.persist(ctx, &sess)

	pollCtx, stop := context.WithCancel(context.Background())
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		stop()
		return sess.Clone(), nil
	}
	m.pollers[sid] = stop
	m.wg.Add(1)
	m.mu.Unlock()

	go m.poll(pollCtx, sess.Clone(), onUpdate)

	m.logger.Info("call initiated", "sid", sid, "to", logging.MaskPhone(phone), "customer_id", req.CustomerID)
	return sess, nil
}

// Cancel stops polling sid. The call itself is not hung up.
func (m *Manager) Cancel(sid string) {
	m.mu.Lock()
	stop, ok := m.pollers[sid]
	delete(m.pollers, sid)
	m.mu.Unlock()
	if ok {
		stop()
	}
}

// Active reports how many pollers are running.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pollers)
}

// Close stops every poller and waits for them to exit. It is safe to call
// more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.wg.Wait()
		return
	}
	m.closed = true
	stops := make([]context.CancelFunc, 0, len(m.pollers))
	for sid, stop := range m.pollers {
		stops = append(stops, stop)
		delete(m.pollers, sid)
	}
	m.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	m.wg.Wait()
}

func (m *Manager) poll(ctx context.Context, sess Session, onUpdate UpdateFunc) {
	defer m.wg.Done()
	defer m.Cancel(sess.SID)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		callCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
		st, err := m.gateway.Status(callCtx, sess.SID)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Warn("call status poll failed", "sid", sess.SID, "error", err)
			continue
		}
		status := st.Status
		if st.DurationSeconds > 0 {
			sess.DurationSeconds = st.DurationSeconds
		}
		if status == sess.Status {
			continue
		}

		sess.Status = status
		sess.UpdatedAt = time.Now().UTC()
		m.metrics.ObserveCallStatus(string(status))
		if status == StatusCompleted {
			m.attachTranscript(ctx, &sess)
		}
		m.persist(ctx, &sess)
		m.logger.Info("call status changed", "sid", sess.SID, "status", status, "duration_seconds", sess.DurationSeconds)

		if onUpdate != nil {
			onUpdate(sess.Clone())
		}
		if status.Terminal() {
			return
		}
	}
}

// attachTranscript fetches the transcript once. Failures leave it empty.
func (m *Manager) attachTranscript(ctx context.Context, sess *Session) {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	turns, err := m.gateway.Transcript(callCtx, sess.SID)
	if err != nil {
		m.logger.Warn("call transcript unavailable", "sid", sess.SID, "error", err)
		return
	}
	sess.Transcript = append([]Turn(nil), turns...)
	sess.CustomerResponses = CustomerLines(turns)
}

func (m *Manager) persist(ctx context.Context, sess *Session) {
	if m.store == nil {
		return
	}
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := m.store.Merge(storeCtx, sess); err != nil {
		m.logger.Warn("failed to persist call session", "sid", sess.SID, "error", err)
	}
}
