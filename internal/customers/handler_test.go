package customers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/outreach-console/pkg/logging"
)

func withCustomerID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestHandlerList(t *testing.T) {
	repo := NewInMemoryRepository(
		Customer{ID: "a", Email: "a@example.com", ResponseCount: 1, TotalSpent: 5},
		Customer{ID: "b", Email: "b@example.com", TotalSpent: 500},
	)
	handler := NewHandler(repo, logging.Default())

	req := httptest.NewRequest(http.MethodGet, "/api/customers?limit=10", nil)
	w := httptest.NewRecorder()
	handler.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp ListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 || resp.Limit != 10 || resp.Customers[0].ID != "b" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestHandlerListRanked(t *testing.T) {
	repo := NewInMemoryRepository(
		Customer{ID: "a", Email: "a@example.com", ResponseCount: 1},
		Customer{ID: "b", Email: "b@example.com", TotalSpent: 500},
	)
	handler := NewHandler(repo, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/customers?ranked=true", nil)
	w := httptest.NewRecorder()
	handler.List(w, req)

	var resp ListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 || resp.Ranked[0].ID != "a" || resp.Ranked[0].Score != 3 {
		t.Fatalf("unexpected ranked response %+v", resp)
	}
}

func TestHandlerGet(t *testing.T) {
	repo := NewInMemoryRepository(Customer{ID: "a", Name: "Ana", Email: "a@example.com", TotalSpent: 5})
	handler := NewHandler(repo, nil)

	w := httptest.NewRecorder()
	handler.Get(w, withCustomerID(httptest.NewRequest(http.MethodGet, "/api/customers/a", nil), "a"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp GetResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Customer == nil || resp.Customer.Name != "Ana" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestHandlerGetUnknownCustomer(t *testing.T) {
	handler := NewHandler(NewInMemoryRepository(), nil)

	w := httptest.NewRecorder()
	handler.Get(w, withCustomerID(httptest.NewRequest(http.MethodGet, "/api/customers/missing", nil), "missing"))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler.Get(w, withCustomerID(httptest.NewRequest(http.MethodGet, "/api/customers/", nil), " "))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
