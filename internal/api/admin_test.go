package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/replybot/internal/dispatch"
	"github.com/kalambet/replybot/internal/storage"
)

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestDispatch_DefaultRecipient(t *testing.T) {
	sender := &mockSender{result: dispatch.Delivered("$evt1")}
	h, _ := setupHandler(t, testToken, sender)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/dispatch", `{"text":"hello there"}`, testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp DispatchResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if !resp.OK || resp.ID != "$evt1" || resp.Recipient != "!default:example.org" {
		t.Errorf("response = %+v", resp)
	}
	if len(sender.calls) != 1 || sender.calls[0] != "!default:example.org|hello there" {
		t.Errorf("calls = %v", sender.calls)
	}
	if sender.origin != "manual" {
		t.Errorf("origin = %q, want manual", sender.origin)
	}
}

func TestDispatch_Failure(t *testing.T) {
	sender := &mockSender{result: dispatch.Failed(errTransport)}
	h, _ := setupHandler(t, testToken, sender)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/dispatch", `{"recipient":"!r:x","text":"hi"}`, testToken))

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
	var resp DispatchResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.OK || resp.Error != errTransport.Error() || resp.Recipient != "!r:x" {
		t.Errorf("response = %+v", resp)
	}
}

func TestDispatch_Validation(t *testing.T) {
	h, _ := setupHandler(t, testToken, &mockSender{result: dispatch.Delivered("")})

	for _, body := range []string{`{"text":""}`, `garbage`} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, authReq(http.MethodPost, "/dispatch", body, testToken))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rr.Code)
		}
	}
}

func TestDispatch_NoSender(t *testing.T) {
	h, _ := setupHandler(t, testToken, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/dispatch", `{"text":"hi"}`, testToken))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestDispatch_RecordedThroughRecorder(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	sender := dispatch.NewRecorder(&mockSender{result: dispatch.Delivered("$e")}, store, nil)
	h := NewHandler(Deps{Store: store, Sender: sender, Recipient: "!room", Token: testToken})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/dispatch", `{"text":"recorded"}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/dispatches", "", testToken))
	var list []storage.Dispatch
	json.NewDecoder(rr.Body).Decode(&list)
	if len(list) != 1 || list[0].Text != "recorded" || list[0].Origin != "manual" || list[0].Status != "sent" {
		t.Fatalf("dispatches = %+v", list)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/dispatches/"+list[0].ID, "", testToken))
	if rr.Code != http.StatusOK {
		t.Errorf("get dispatch status = %d", rr.Code)
	}
}

func TestListDispatches_StatusFilter(t *testing.T) {
	h, store := setupHandler(t, testToken, nil)
	for i, st := range []string{"sent", "failed", "sent"} {
		store.SaveDispatch(storage.Dispatch{ID: fmt.Sprintf("d%d", i), Origin: "trigger:x", Text: "t", Status: st})
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/dispatches?status=failed", "", testToken))
	var list []storage.Dispatch
	json.NewDecoder(rr.Body).Decode(&list)
	if len(list) != 1 || list[0].ID != "d1" {
		t.Errorf("failed dispatches = %+v", list)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/dispatches?status=bogus", "", testToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bogus status filter: status = %d, want 400", rr.Code)
	}
}

func TestListInteractions_Empty(t *testing.T) {
	h, _ := setupHandler(t, testToken, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/interactions", "", testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "[]" {
		t.Errorf("body = %s, want []", got)
	}
}

func TestGetInteraction(t *testing.T) {
	h, store := setupHandler(t, testToken, nil)
	store.SaveInteraction(storage.Interaction{
		ID: "int-1", CreatedAt: time.Now(), Channel: "matrix", Query: "q", Reply: "r", Path: "similarity", Score: 0.7,
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/interactions/int-1", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var got storage.Interaction
	json.NewDecoder(rr.Body).Decode(&got)
	if got.ID != "int-1" || got.Channel != "matrix" || got.Score != 0.7 {
		t.Errorf("interaction = %+v", got)
	}
}

func TestGetInteraction_NotFound(t *testing.T) {
	h, _ := setupHandler(t, testToken, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/interactions/missing", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/dispatches/missing", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Errorf("dispatch status = %d, want 404", rr.Code)
	}
}

func TestCounts(t *testing.T) {
	h, store := setupHandler(t, testToken, nil)
	for i, st := range []string{"sent", "failed", "sent"} {
		store.SaveDispatch(storage.Dispatch{ID: fmt.Sprintf("d%d", i), Origin: "manual", Text: "t", Status: st})
	}
	for i, p := range []string{"emoji", "fallback"} {
		store.SaveInteraction(storage.Interaction{ID: fmt.Sprintf("i%d", i), Channel: "http", Query: "q", Reply: "r", Path: p})
	}

	tests := []struct {
		path  string
		total int
		want  map[string]int
	}{
		{"/dispatches/counts", 3, map[string]int{"sent": 2, "failed": 1}},
		{"/interactions/counts", 2, map[string]int{"emoji": 1, "fallback": 1}},
	}
	for _, tt := range tests {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, authReq(http.MethodGet, tt.path, "", testToken))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", tt.path, rr.Code)
		}
		var got CountsResponse
		if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
			t.Fatalf("%s: decode: %v", tt.path, err)
		}
		if got.Total != tt.total || !reflect.DeepEqual(got.Counts, tt.want) {
			t.Errorf("%s = %+v, want total %d %v", tt.path, got, tt.total, tt.want)
		}
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dispatches/counts", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated counts status = %d, want 401", rr.Code)
	}
}

func TestCounts_Empty(t *testing.T) {
	h, _ := setupHandler(t, testToken, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/interactions/counts", "", testToken))
	if got := strings.TrimSpace(rr.Body.String()); got != `{"total":0,"counts":{}}` {
		t.Errorf("body = %s", got)
	}
}
