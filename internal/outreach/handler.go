package outreach

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/outreach-console/internal/apperrors"
	"github.com/wolfman30/outreach-console/internal/customers"
	"github.com/wolfman30/outreach-console/pkg/logging"
)

// Handler exposes the orchestrator over HTTP.
type Handler struct {
	orch   *Orchestrator
	logger *logging.Logger
}

// NewHandler creates a new outreach handler
func NewHandler(orch *Orchestrator, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{orch: orch, logger: logger}
}

// Routes mounts the workflow endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/state", h.State)
	r.Post("/chat", h.Chat)
	r.Post("/campaigns", h.Campaigns)
	r.Put("/email", h.EditEmail)
	r.Post("/email/regenerate", h.RegenerateEmail)
	r.Post("/email/reset", h.ResetEmail)
	r.Post("/email/send", h.SendEmail)
	r.Post("/customers/refresh", h.RefreshCustomers)
	r.Post("/target", h.Target)
	r.Post("/script", h.GenerateScript)
	r.Put("/script", h.EditScript)
	r.Post("/script/save", h.SaveScript)
	r.Post("/call", h.Call)
	r.Post("/feedback", h.Feedback)
}

type textRequest struct {
	Text string `json:"text"`
}

type emailRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type refreshRequest struct {
	Force bool `json:"force"`
}

// TargetRequest selects a ranked customer by id, or a manual number.
type TargetRequest struct {
	CustomerID string `json:"customer_id"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
}

type feedbackRequest struct {
	Positive bool   `json:"positive"`
	Note     string `json:"note"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// State handles GET /api/outreach/state
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orch.Snapshot())
}

// Chat handles POST /api/outreach/chat
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.orch.SendChatMessage(r.Context(), req.Text)
	if err != nil {
		h.writeError(w, "chat", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Campaigns handles POST /api/outreach/campaigns
func (h *Handler) Campaigns(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !h.decode(w, r, &req) {
		return
	}
	campaigns, err := h.orch.GenerateCampaigns(r.Context(), req.Text)
	if err != nil {
		h.writeError(w, "campaigns", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"campaigns": campaigns})
}

// EditEmail handles PUT /api/outreach/email
func (h *Handler) EditEmail(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}
	draft, err := h.orch.EditEmail(req.Subject, req.Body)
	if err != nil {
		h.writeError(w, "edit email", err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// RegenerateEmail handles POST /api/outreach/email/regenerate
func (h *Handler) RegenerateEmail(w http.ResponseWriter, r *http.Request) {
	draft, err := h.orch.RegenerateEmail(r.Context())
	if err != nil {
		h.writeError(w, "regenerate email", err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// ResetEmail handles POST /api/outreach/email/reset
func (h *Handler) ResetEmail(w http.ResponseWriter, r *http.Request) {
	h.orch.ResetEmailGuard()
	w.WriteHeader(http.StatusNoContent)
}

// SendEmail handles POST /api/outreach/email/send. An empty body sends the
// current draft to the ranked customers.
func (h *Handler) SendEmail(w http.ResponseWriter, r *http.Request) {
	var req BulkEmailInput
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	res, err := h.orch.SendBulkEmail(r.Context(), req)
	if err != nil {
		h.writeError(w, "send email", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RefreshCustomers handles POST /api/outreach/customers/refresh
func (h *Handler) RefreshCustomers(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	ranked, err := h.orch.RefreshCustomers(r.Context(), req.Force)
	if err != nil {
		h.writeError(w, "refresh customers", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ranked": ranked, "count": len(ranked)})
}

// Target handles POST /api/outreach/target
func (h *Handler) Target(w http.ResponseWriter, r *http.Request) {
	var req TargetRequest
	if !h.decode(w, r, &req) {
		return
	}
	var (
		target Target
		err    error
	)
	if req.CustomerID != "" {
		target, err = h.orch.SelectCustomer(r.Context(), req.CustomerID)
	} else {
		target, err = h.orch.SetManualTarget(req.Name, req.Phone)
	}
	if err != nil {
		h.writeError(w, "set target", err)
		return
	}
	writeJSON(w, http.StatusOK, target)
}

// GenerateScript handles POST /api/outreach/script
func (h *Handler) GenerateScript(w http.ResponseWriter, r *http.Request) {
	state, err := h.orch.GenerateScript(r.Context())
	if err != nil {
		h.writeError(w, "generate script", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// EditScript handles PUT /api/outreach/script
func (h *Handler) EditScript(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !h.decode(w, r, &req) {
		return
	}
	state, err := h.orch.EditScript(req.Text)
	if err != nil {
		h.writeError(w, "edit script", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// SaveScript handles POST /api/outreach/script/save
func (h *Handler) SaveScript(w http.ResponseWriter, r *http.Request) {
	state, err := h.orch.SaveScript()
	if err != nil {
		h.writeError(w, "save script", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Call handles POST /api/outreach/call
func (h *Handler) Call(w http.ResponseWriter, r *http.Request) {
	sess, err := h.orch.InitiateCall(r.Context())
	if err != nil {
		h.writeError(w, "call", err)
		return
	}
	writeJSON(w, http.StatusAccepted, sess)
}

// Feedback handles POST /api/outreach/feedback
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !h.decode(w, r, &req) {
		return
	}
	fb, err := h.orch.RecordFeedback(r.Context(), req.Positive, req.Note)
	if err != nil {
		h.writeError(w, "feedback", err)
		return
	}
	writeJSON(w, http.StatusCreated, fb)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.Warn("failed to decode request", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("outreach request failed", "op", op, "error", err)
	} else {
		h.logger.Info("outreach request rejected", "op", op, "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case apperrors.IsPrecondition(err), errors.Is(err, ErrNoTarget):
		return http.StatusBadRequest
	case errors.Is(err, customers.ErrCustomerNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrCallActive),
		errors.Is(err, ErrFeedbackClosed),
		errors.Is(err, ErrEmailInFlight),
		errors.Is(err, ErrEmailSuperseded),
		errors.Is(err, ErrSendInFlight),
		errors.Is(err, ErrScriptInFlight):
		return http.StatusConflict
	case errors.Is(err, ErrClosed):
		return http.StatusServiceUnavailable
	case apperrors.IsTimeout(err):
		return http.StatusGatewayTimeout
	case apperrors.IsExternal(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
