package matrix

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/kalambet/replybot/internal/dispatch"
	"github.com/kalambet/replybot/internal/reply"
	"github.com/kalambet/replybot/internal/retrieval"
)

const botID = id.UserID("@replybot:example.org")

type sentText struct {
	room id.RoomID
	text string
}

type fakeAPI struct {
	mu      sync.Mutex
	sent    []sentText
	sendErr error
	names   map[id.UserID]string
}

func (f *fakeAPI) SendText(_ context.Context, roomID id.RoomID, text string) (*mautrix.RespSendEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, sentText{room: roomID, text: text})
	return &mautrix.RespSendEvent{EventID: id.EventID("$evt" + text)}, nil
}

func (f *fakeAPI) GetProfile(_ context.Context, user id.UserID) (*mautrix.RespUserProfile, error) {
	name, ok := f.names[user]
	if !ok {
		return nil, errors.New("profile not found")
	}
	return &mautrix.RespUserProfile{DisplayName: name}, nil
}

type fakeResponder struct {
	mu   sync.Mutex
	msgs []reply.Message
}

func (r *fakeResponder) Answer(_ context.Context, msg reply.Message) retrieval.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return retrieval.Result{Reply: "echo: " + msg.Text, Path: retrieval.PathSimilarity}
}

func newTestBot(api *fakeAPI, replies Responder) *Bot {
	return &Bot{api: api, userID: botID, replies: replies, logger: slog.Default()}
}

func textEvent(sender id.UserID, body string) *event.Event {
	return &event.Event{
		Sender:    sender,
		RoomID:    "!room:example.org",
		Type:      event.EventMessage,
		Timestamp: time.Now().UnixMilli(),
		Content: event.Content{Parsed: &event.MessageEventContent{
			MsgType: event.MsgText,
			Body:    body,
		}},
	}
}

func TestHandleMessage_Replies(t *testing.T) {
	api := &fakeAPI{}
	replies := &fakeResponder{}
	b := newTestBot(api, replies)

	b.handleMessage(context.Background(), textEvent("@alice:example.org", "  are you there?  "))

	if len(replies.msgs) != 1 {
		t.Fatalf("responder calls = %d, want 1", len(replies.msgs))
	}
	got := replies.msgs[0]
	if got.Channel != "matrix" || got.Sender != "@alice:example.org" || got.Text != "are you there?" {
		t.Errorf("message = %+v", got)
	}
	if len(api.sent) != 1 || api.sent[0].room != "!room:example.org" || api.sent[0].text != "echo: are you there?" {
		t.Errorf("sent = %+v", api.sent)
	}
}

func TestHandleMessage_Ignores(t *testing.T) {
	api := &fakeAPI{}
	replies := &fakeResponder{}
	b := newTestBot(api, replies)
	b.started = time.Now()

	own := textEvent(botID, "hello")

	notice := textEvent("@alice:example.org", "hello")
	notice.Content.Parsed.(*event.MessageEventContent).MsgType = event.MsgNotice

	empty := textEvent("@alice:example.org", "   ")

	old := textEvent("@alice:example.org", "hello")
	old.Timestamp = b.started.Add(-time.Hour).UnixMilli()

	for name, evt := range map[string]*event.Event{"own": own, "notice": notice, "empty": empty, "history": old} {
		b.handleMessage(context.Background(), evt)
		if len(replies.msgs) != 0 || len(api.sent) != 0 {
			t.Fatalf("%s: message was answered", name)
		}
	}
}

func TestHandleMessage_StartGreeting(t *testing.T) {
	api := &fakeAPI{names: map[id.UserID]string{"@alice:example.org": "Alice"}}
	replies := &fakeResponder{}
	b := newTestBot(api, replies)

	tests := []struct {
		sender id.UserID
		body   string
		want   string
	}{
		{"@alice:example.org", "/start", "Hello Alice! I'm your chatbot. Type a message to chat with me."},
		{"@bob:example.org", "!start now", "Hello bob! I'm your chatbot. Type a message to chat with me."},
	}
	for _, tt := range tests {
		api.sent = nil
		b.handleMessage(context.Background(), textEvent(tt.sender, tt.body))
		if len(api.sent) != 1 || api.sent[0].text != tt.want {
			t.Errorf("%s: sent = %+v, want %q", tt.body, api.sent, tt.want)
		}
	}
	if len(replies.msgs) != 0 {
		t.Errorf("start command reached the responder: %+v", replies.msgs)
	}
}

func TestHandleMessage_SendFailureIsLogged(t *testing.T) {
	api := &fakeAPI{sendErr: errors.New("rate limited")}
	replies := &fakeResponder{}
	b := newTestBot(api, replies)

	b.handleMessage(context.Background(), textEvent("@alice:example.org", "hi"))
	if len(replies.msgs) != 1 {
		t.Errorf("responder calls = %d, want 1", len(replies.msgs))
	}
}

func TestSend(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(api, nil)

	res := b.Send(context.Background(), "!room:example.org", "good morning")
	if !res.OK || res.ID != "$evtgood morning" {
		t.Errorf("result = %+v", res)
	}

	if res := b.Send(context.Background(), "", "x"); res.OK || !errors.Is(res.Err, dispatch.ErrNoRecipient) {
		t.Errorf("empty recipient result = %+v", res)
	}

	api.sendErr = errors.New("forbidden")
	if res := b.Send(context.Background(), "!room:example.org", "x"); res.OK || res.Err == nil {
		t.Errorf("failed send result = %+v", res)
	}
}

func TestSend_RateLimited(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(api, nil)
	b.limiter = rate.NewLimiter(rate.Every(time.Hour), 1)

	if res := b.Send(context.Background(), "!room:example.org", "first"); !res.OK {
		t.Fatalf("first send = %+v", res)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if res := b.Send(ctx, "!room:example.org", "second"); res.OK {
		t.Errorf("second send within the limit window = %+v, want failure", res)
	}
	if len(api.sent) != 1 {
		t.Errorf("sent = %+v, want only the first message", api.sent)
	}
}

func TestNewLimiter(t *testing.T) {
	if l := newLimiter(0); l.Limit() != rate.Inf {
		t.Errorf("limit = %v, want Inf for zero rate", l.Limit())
	}
	if l := newLimiter(2); l.Limit() != 2 || l.Burst() != sendBurst {
		t.Errorf("limiter = %v/%d", l.Limit(), l.Burst())
	}
}

func TestBot_ImplementsSender(t *testing.T) {
	var _ dispatch.Sender = (*Bot)(nil)
}

func TestNew(t *testing.T) {
	b, err := New(Config{Homeserver: "https://matrix.example.org", UserID: string(botID), AccessToken: "tok"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if b.userID != botID || b.api == nil {
		t.Errorf("bot = %+v", b)
	}
}
