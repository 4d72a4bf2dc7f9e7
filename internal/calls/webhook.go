package calls

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/outreach-console/pkg/logging"
)

// WebhookHandler serves the TwiML and status callbacks Twilio makes during a call.
type WebhookHandler struct {
	store       *SessionStore
	gateway     Gateway
	webhookBase string
	authToken   string
	logger      *logging.Logger
}

// WebhookConfig configures the webhook handler. When AuthToken is set every
// request must carry a valid X-Twilio-Signature.
type WebhookConfig struct {
	WebhookBase string
	AuthToken   string
}

// NewWebhookHandler builds the handler. store may be nil, in which case the
// default greeting is served and input is not recorded.
func NewWebhookHandler(store *SessionStore, gateway Gateway, cfg WebhookConfig, logger *logging.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		store:       store,
		gateway:     gateway,
		webhookBase: strings.TrimRight(cfg.WebhookBase, "/"),
		authToken:   cfg.AuthToken,
		logger:      logger,
	}
}

// Routes mounts the webhook endpoints under /phone-call.
func (h *WebhookHandler) Routes(r chi.Router) {
	r.Route("/phone-call", func(r chi.Router) {
		r.Get("/twiml", h.TwiML)
		r.Get("/status/{sid}", h.CallStatus)
		r.Group(func(r chi.Router) {
			r.Use(h.verifySignature)
			r.Post("/twiml", h.TwiML)
			r.Post("/handle-input", h.HandleInput)
			r.Post("/webhook", h.StatusCallback)
		})
	})
}

// TwiML returns the call's script inside a gather.
func (h *WebhookHandler) TwiML(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	sid := r.FormValue("CallSid")
	script := DefaultGreeting
	if h.store != nil && sid != "" {
		sess, err := h.store.Get(r.Context(), sid)
		if err != nil {
			h.logger.Warn("twiml session lookup failed", "sid", sid, "error", err)
		} else if sess != nil && sess.Script != "" {
			script = sess.Script
		}
	}
	writeTwiML(w, GatherTwiML(script, h.webhookBase))
}

// HandleInput records the customer's answer and closes the call.
func (h *WebhookHandler) HandleInput(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	sid := r.FormValue("CallSid")
	answer := strings.TrimSpace(r.FormValue("SpeechResult"))
	if answer == "" {
		answer = strings.TrimSpace(r.FormValue("Digits"))
	}

	if h.store != nil && sid != "" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if answer != "" {
			h.appendTurn(ctx, sid, Turn{Role: RoleCustomer, Text: answer})
		}
		h.appendTurn(ctx, sid, Turn{Role: RoleAgent, Text: FollowUpLine})
	}
	h.logger.Info("call input received", "sid", sid, "has_answer", answer != "")
	writeTwiML(w, ClosingTwiML(FollowUpLine))
}

// StatusCallback records Twilio's status callbacks.
func (h *WebhookHandler) StatusCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	sid := r.FormValue("CallSid")
	raw := r.FormValue("CallStatus")
	duration, _ := strconv.Atoi(r.FormValue("CallDuration"))
	status := ParseStatus(raw)

	if h.store != nil && sid != "" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := h.store.UpdateStatus(ctx, sid, status, duration); err != nil {
			h.logger.Warn("failed to record call status", "sid", sid, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"call_sid": sid,
		"status":   status,
		"duration": duration,
	})
}

// CallStatus fetches the live status of a call from the provider.
func (h *WebhookHandler) CallStatus(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	if h.gateway == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "error": "telephony not configured"})
		return
	}
	st, err := h.gateway.Status(r.Context(), sid)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"call_sid": sid,
		"status":   st.Status,
		"duration": st.DurationSeconds,
	})
}

func (h *WebhookHandler) appendTurn(ctx context.Context, sid string, turn Turn) {
	if err := h.store.AppendTurn(ctx, sid, turn); err != nil {
		h.logger.Warn("failed to record call turn", "sid", sid, "role", turn.Role, "error", err)
	}
}

func (h *WebhookHandler) verifySignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.authToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !ValidateTwilioSignature(r, h.authToken, h.webhookBase+r.URL.Path) {
			h.logger.Warn("rejected twilio webhook with bad signature", "path", r.URL.Path)
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ValidateTwilioSignature checks X-Twilio-Signature against the request's
// form parameters and the public webhook URL.
func ValidateTwilioSignature(r *http.Request, authToken, webhookURL string) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}
	if err := r.ParseForm(); err != nil {
		return false
	}
	expected := computeSignature(signaturePayload(webhookURL, r.PostForm), authToken)
	return hmac.Equal([]byte(signature), []byte(expected))
}

func signaturePayload(webhookURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var payload strings.Builder
	payload.WriteString(webhookURL)
	for _, key := range keys {
		for _, value := range params[key] {
			payload.WriteString(key)
			payload.WriteString(value)
		}
	}
	return payload.String()
}

func computeSignature(data, key string) string {
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func writeTwiML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
