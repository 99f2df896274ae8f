package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/replybot/internal/corpus"
	"github.com/kalambet/replybot/internal/dispatch"
	"github.com/kalambet/replybot/internal/reply"
	"github.com/kalambet/replybot/internal/retrieval"
	"github.com/kalambet/replybot/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Replier answers inbound messages. *reply.Service implements it.
type Replier interface {
	Answer(ctx context.Context, msg reply.Message) retrieval.Result
	Stats() retrieval.Stats
}

// AuditStore reads the interaction and dispatch audit log.
type AuditStore interface {
	GetRecentInteractions(limit int) ([]storage.Interaction, error)
	GetInteraction(id string) (storage.Interaction, error)
	CountInteractionsByPath() (map[string]int, error)
	GetRecentDispatches(limit int, status string) ([]storage.Dispatch, error)
	GetDispatch(id string) (storage.Dispatch, error)
	CountDispatchesByStatus() (map[string]int, error)
}

// Deps holds everything the HTTP API serves from.
type Deps struct {
	Replier Replier
	Corpus  corpus.Stats
	Store   AuditStore
	// Sender delivers manual dispatches. It should record what it sends.
	Sender dispatch.Sender
	// Recipient is used when a dispatch request names none.
	Recipient string
	// Token guards the management routes. Empty leaves them open.
	Token string
}

// NewHandler returns the replybot HTTP API: public reply and health routes
// plus bearer-protected management routes.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Post("/v1/reply", handleReply(deps))
	r.Get("/corpus/stats", handleCorpusStats(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/interactions", handleListInteractions(deps))
		r.Get("/interactions/counts", handleCounts(func() (map[string]int, error) { return deps.Store.CountInteractionsByPath() }))
		r.Get("/interactions/{id}", handleGetInteraction(deps))
		r.Get("/dispatches", handleListDispatches(deps))
		r.Get("/dispatches/counts", handleCounts(func() (map[string]int, error) { return deps.Store.CountDispatchesByStatus() }))
		r.Get("/dispatches/{id}", handleGetDispatch(deps))
		r.Post("/dispatch", handleDispatch(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// ReplyRequest is the body of POST /v1/reply.
type ReplyRequest struct {
	Text   string `json:"text"`
	Sender string `json:"sender,omitempty"`
	// Explain includes the candidate list in the response.
	Explain bool `json:"explain,omitempty"`
}

func handleReply(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ReplyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required and must not be empty")
			return
		}

		res := deps.Replier.Answer(r.Context(), reply.Message{Channel: "http", Sender: req.Sender, Text: req.Text})
		if !req.Explain {
			res.Candidates = nil
			res.Emoji = nil
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(res)
	}
}

// CorpusStatsResponse is the body of GET /corpus/stats.
type CorpusStatsResponse struct {
	Corpus corpus.Stats    `json:"corpus"`
	Index  retrieval.Stats `json:"index"`
}

func handleCorpusStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(CorpusStatsResponse{
			Corpus: deps.Corpus,
			Index:  deps.Replier.Stats(),
		})
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
