package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/replybot/internal/dispatch"
	"github.com/kalambet/replybot/internal/storage"
)

// DispatchRequest is the body of POST /dispatch.
type DispatchRequest struct {
	Recipient string `json:"recipient,omitempty"`
	Text      string `json:"text"`
}

// DispatchResponse reports the outcome of a manual dispatch.
type DispatchResponse struct {
	OK        bool   `json:"ok"`
	ID        string `json:"id,omitempty"`
	Recipient string `json:"recipient"`
	Error     string `json:"error,omitempty"`
}

func handleDispatch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Sender == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "no outbound transport configured")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req DispatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}
		if req.Recipient == "" {
			req.Recipient = deps.Recipient
		}
		if req.Recipient == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "recipient is required (no default configured)")
			return
		}

		res := deps.Sender.Send(dispatch.WithOrigin(r.Context(), "manual"), req.Recipient, req.Text)
		resp := DispatchResponse{OK: res.OK, ID: res.ID, Recipient: req.Recipient}
		w.Header().Set("Content-Type", "application/json")
		if !res.OK {
			if res.Err != nil {
				resp.Error = res.Err.Error()
			}
			w.WriteHeader(http.StatusBadGateway)
		}
		json.NewEncoder(w).Encode(resp)
	}
}

func handleListInteractions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		interactions, err := deps.Store.GetRecentInteractions(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list interactions: %v", err)
			return
		}

		if interactions == nil {
			interactions = []storage.Interaction{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(interactions)
	}
}

func handleGetInteraction(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		interaction, err := deps.Store.GetInteraction(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "interaction not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get interaction: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(interaction)
	}
}

func handleListDispatches(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		status := r.URL.Query().Get("status")
		switch status {
		case "", "sent", "failed":
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "status must be sent or failed")
			return
		}

		dispatches, err := deps.Store.GetRecentDispatches(limit, status)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list dispatches: %v", err)
			return
		}

		if dispatches == nil {
			dispatches = []storage.Dispatch{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(dispatches)
	}
}

func handleGetDispatch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		d, err := deps.Store.GetDispatch(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "dispatch not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get dispatch: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(d)
	}
}

// CountsResponse is the body of GET /interactions/counts (keyed by reply
// path) and GET /dispatches/counts (keyed by status).
type CountsResponse struct {
	Total  int            `json:"total"`
	Counts map[string]int `json:"counts"`
}

func newCountsResponse(counts map[string]int) CountsResponse {
	if counts == nil {
		counts = map[string]int{}
	}
	resp := CountsResponse{Counts: counts}
	for _, n := range counts {
		resp.Total += n
	}
	return resp
}

func handleCounts(count func() (map[string]int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := count()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count records: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(newCountsResponse(counts))
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
