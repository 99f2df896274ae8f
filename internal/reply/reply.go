// Package reply answers inbound messages from the fitted index and keeps an
// audit trail of what was answered.
package reply

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/replybot/internal/retrieval"
	"github.com/kalambet/replybot/internal/storage"
)

// Responder turns an inbound message into reply text. It always returns a
// reply, falling back to a fixed text when nothing matches.
type Responder interface {
	Reply(ctx context.Context, text string) string
}

// Message is an inbound message with its transport metadata.
type Message struct {
	Channel string
	Sender  string
	Text    string
}

// InteractionStore persists answered messages.
type InteractionStore interface {
	SaveInteraction(i storage.Interaction) error
}

// Service implements Responder over a retrieval.Index.
type Service struct {
	index  *retrieval.Index
	store  InteractionStore
	now    func() time.Time
	logger *slog.Logger
}

// NewService returns a Service. store may be nil, in which case nothing is
// recorded.
func NewService(index *retrieval.Index, store InteractionStore) *Service {
	return &Service{
		index:  index,
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
}

// Reply implements Responder.
func (s *Service) Reply(ctx context.Context, text string) string {
	return s.Answer(ctx, Message{Text: text}).Reply
}

// Answer picks a reply for msg and records the decision. A recording
// failure is logged; the reply is returned regardless.
func (s *Service) Answer(ctx context.Context, msg Message) retrieval.Result {
	res := s.index.Explain(msg.Text)
	s.logger.Debug("reply chosen", "channel", msg.Channel, "path", res.Path, "score", res.BestScore, "candidates", len(res.Candidates))

	if s.store == nil {
		return res
	}
	rec := storage.Interaction{
		ID:        uuid.New().String(),
		CreatedAt: s.now(),
		Channel:   msg.Channel,
		Sender:    msg.Sender,
		Query:     msg.Text,
		Reply:     res.Reply,
		Path:      string(res.Path),
		Score:     res.BestScore,
	}
	if err := s.store.SaveInteraction(rec); err != nil {
		s.logger.Warn("failed to record interaction", "channel", msg.Channel, "error", err)
	}
	return res
}

// Stats returns the index dimensions.
func (s *Service) Stats() retrieval.Stats {
	return s.index.Stats()
}
