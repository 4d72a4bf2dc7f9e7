package customers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/outreach-console/pkg/logging"
)

// Handler serves customer listings.
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a new customers handler
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

// ListResponse is the response for listing customers.
type ListResponse struct {
	Success   bool             `json:"success"`
	Customers []Customer       `json:"customers,omitempty"`
	Ranked    []RankedCustomer `json:"ranked,omitempty"`
	Count     int              `json:"count"`
	Limit     int              `json:"limit"`
	Skip      int              `json:"skip"`
}

// List handles GET /api/customers?limit=&skip=&segment=&ranked=true
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Limit: defaultListLimit}
	q := r.URL.Query()
	if limitStr := q.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= maxListLimit {
			filter.Limit = limit
		}
	}
	if skipStr := q.Get("skip"); skipStr != "" {
		if skip, err := strconv.Atoi(skipStr); err == nil && skip >= 0 {
			filter.Offset = skip
		}
	}
	filter.Segment = q.Get("segment")

	list, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list customers", "error", err)
		http.Error(w, "failed to list customers", http.StatusInternalServerError)
		return
	}

	resp := ListResponse{
		Success: true,
		Limit:   filter.Limit,
		Skip:    filter.Offset,
	}
	if ranked, _ := strconv.ParseBool(q.Get("ranked")); ranked {
		resp.Ranked = Rank(list)
		resp.Count = len(resp.Ranked)
	} else {
		resp.Customers = list
		resp.Count = len(list)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetResponse is the response for a single customer.
type GetResponse struct {
	Success  bool      `json:"success"`
	Customer *Customer `json:"customer,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Get handles GET /api/customers/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, GetResponse{Error: "customer id is required"})
		return
	}

	customer, err := h.repo.Get(r.Context(), id)
	switch {
	case errors.Is(err, ErrCustomerNotFound):
		writeJSON(w, http.StatusNotFound, GetResponse{Error: err.Error()})
	case err != nil:
		h.logger.Error("failed to get customer", "customer_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, GetResponse{Error: "failed to get customer"})
	default:
		writeJSON(w, http.StatusOK, GetResponse{Success: true, Customer: customer})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
