// Package matrix connects the bot to a Matrix homeserver: inbound text
// messages are answered through a Responder and scheduled or manual
// dispatches go out as room messages.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/kalambet/replybot/internal/dispatch"
	"github.com/kalambet/replybot/internal/reply"
	"github.com/kalambet/replybot/internal/retrieval"
)

const greeting = "Hello %s! I'm your chatbot. Type a message to chat with me."

const (
	backoffMin = 2 * time.Second
	backoffMax = 5 * time.Minute

	sendBurst = 3
)

// Config holds the Matrix connection parameters.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// Rooms are joined before syncing starts.
	Rooms []string
	// SendRate caps outbound messages per second. Zero means unlimited.
	SendRate float64
}

// Responder answers an inbound message. *reply.Service implements it.
type Responder interface {
	Answer(ctx context.Context, msg reply.Message) retrieval.Result
}

// api is the part of *mautrix.Client the bot uses.
type api interface {
	SendText(ctx context.Context, roomID id.RoomID, text string) (*mautrix.RespSendEvent, error)
	GetProfile(ctx context.Context, mxid id.UserID) (*mautrix.RespUserProfile, error)
}

// Bot is a Matrix chat transport.
type Bot struct {
	mxc     *mautrix.Client
	api     api
	userID  id.UserID
	rooms   []string
	replies Responder
	limiter *rate.Limiter
	started time.Time
	logger  *slog.Logger
}

// New creates a Bot but does not start syncing. replies may be nil for a
// send-only bot.
func New(cfg Config, replies Responder) (*Bot, error) {
	mxc, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	return &Bot{
		mxc:     mxc,
		api:     mxc,
		userID:  id.UserID(cfg.UserID),
		rooms:   cfg.Rooms,
		replies: replies,
		limiter: newLimiter(cfg.SendRate),
		logger:  slog.Default(),
	}, nil
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(perSecond), sendBurst)
}

// Send implements dispatch.Sender. recipient is a room ID; the result
// carries the event ID of the sent message.
func (b *Bot) Send(ctx context.Context, recipient, text string) dispatch.Result {
	if recipient == "" {
		return dispatch.Failed(dispatch.ErrNoRecipient)
	}
	resp, err := b.sendText(ctx, id.RoomID(recipient), text)
	if err != nil {
		return dispatch.Failed(fmt.Errorf("sending to %s: %w", recipient, err))
	}
	return dispatch.Delivered(resp.EventID.String())
}

// sendText waits for the send limiter, then posts text to room.
func (b *Bot) sendText(ctx context.Context, room id.RoomID, text string) (*mautrix.RespSendEvent, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for send slot: %w", err)
		}
	}
	return b.api.SendText(ctx, room, text)
}

// Run joins the configured rooms and syncs until ctx is cancelled,
// reconnecting with exponential back-off when the sync loop fails.
func (b *Bot) Run(ctx context.Context) error {
	b.started = time.Now()
	b.logger.Warn("matrix E2EE is not enabled; messages are in plaintext")

	syncer, ok := b.mxc.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return errors.New("matrix client has no default syncer")
	}
	if b.replies != nil {
		syncer.OnEventType(event.EventMessage, b.handleMessage)
	}

	for _, room := range b.rooms {
		if _, err := b.mxc.JoinRoomByID(ctx, id.RoomID(room)); err != nil {
			if !errors.Is(err, mautrix.MForbidden) {
				return fmt.Errorf("joining room %s: %w", room, err)
			}
			b.logger.Warn("join room: already a member or access denied, continuing", "room", room)
		}
	}

	b.logger.Info("matrix sync started", "user", b.userID, "rooms", len(b.rooms))
	backoff := backoffMin
	for {
		err := b.mxc.SyncWithContext(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = backoffMin
			continue
		}
		b.logger.Error("matrix sync stopped; reconnecting", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, backoffMax)
	}
}

// handleMessage answers one inbound text message in the room it came from.
func (b *Bot) handleMessage(ctx context.Context, evt *event.Event) {
	if evt.Sender == b.userID {
		return
	}
	// The initial sync replays history; only answer what arrived after start.
	if !b.started.IsZero() && time.UnixMilli(evt.Timestamp).Before(b.started) {
		return
	}
	msg := evt.Content.AsMessage()
	if msg == nil || msg.MsgType != event.MsgText {
		return
	}

	text := strings.TrimSpace(msg.Body)
	if text == "" {
		return
	}

	var out string
	if isStart(text) {
		out = fmt.Sprintf(greeting, b.displayName(ctx, evt.Sender))
	} else {
		res := b.replies.Answer(ctx, reply.Message{Channel: "matrix", Sender: evt.Sender.String(), Text: text})
		out = res.Reply
	}

	if _, err := b.sendText(ctx, evt.RoomID, out); err != nil {
		b.logger.Warn("failed to send reply", "room", evt.RoomID, "error", err)
	}
}

func isStart(text string) bool {
	cmd, _, _ := strings.Cut(text, " ")
	return cmd == "/start" || cmd == "!start"
}

// displayName returns the sender's display name, or the localpart of the
// user ID when the profile is unavailable.
func (b *Bot) displayName(ctx context.Context, user id.UserID) string {
	if p, err := b.api.GetProfile(ctx, user); err == nil && p.DisplayName != "" {
		return p.DisplayName
	}
	return user.Localpart()
}
