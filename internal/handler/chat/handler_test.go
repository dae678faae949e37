package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-support/backend/internal/model/chat"
	"github.com/zhouzirui/z-support/backend/internal/realtime"
	authService "github.com/zhouzirui/z-support/backend/internal/service/auth"
	chatService "github.com/zhouzirui/z-support/backend/internal/service/chat"
	"github.com/zhouzirui/z-support/backend/internal/store/storetest"
)

type staticVerifier string

func (v staticVerifier) Verify(token string) (*authService.Claims, error) {
	if token != string(v) {
		return nil, errors.New("bad token")
	}
	return &authService.Claims{}, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	svc := chatService.NewService(storetest.New(t), realtime.NewBroker())
	r := chi.NewRouter()
	New(svc, staticVerifier("admin-token")).RegisterRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestSessionLifecycle(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/sessions", `{"visitor_id":"visitor_1"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session status = %d, body %s", rec.Code, rec.Body)
	}
	created := decode[chat.Session](t, rec)
	if created.Status != chat.SessionActive {
		t.Fatalf("expected active session, got %q", created.Status)
	}

	rec = do(t, h, http.MethodGet, "/sessions?visitor_id=visitor_1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("find sessions status = %d", rec.Code)
	}
	if list := decode[[]chat.Session](t, rec); len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("unexpected sessions: %+v", list)
	}

	rec = do(t, h, http.MethodGet, "/sessions?visitor_id=nobody", "", nil)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty array, got %s", rec.Body)
	}

	if rec := do(t, h, http.MethodGet, "/sessions", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing visitor_id status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/sessions/ghost", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown session status = %d", rec.Code)
	}
}

func TestInsertMessageRules(t *testing.T) {
	h := newTestRouter(t)
	session := decode[chat.Session](t, do(t, h, http.MethodPost, "/sessions", `{"visitor_id":"visitor_1"}`, nil))

	tests := []struct {
		name   string
		body   string
		header http.Header
		want   int
	}{
		{"visitor text", `{"session_id":"` + session.ID + `","content":"hi"}`, nil, http.StatusCreated},
		{"empty", `{"session_id":"` + session.ID + `","content":"  "}`, nil, http.StatusBadRequest},
		{"missing session id", `{"content":"hi"}`, nil, http.StatusBadRequest},
		{"unknown session", `{"session_id":"ghost","content":"hi"}`, nil, http.StatusNotFound},
		{"admin without token", `{"session_id":"` + session.ID + `","content":"hi","is_admin":true}`, nil, http.StatusForbidden},
		{
			"admin with bad token",
			`{"session_id":"` + session.ID + `","content":"hi","is_admin":true}`,
			http.Header{"Authorization": {"Bearer nope"}},
			http.StatusForbidden,
		},
		{
			"admin with token",
			`{"session_id":"` + session.ID + `","content":"hello","is_admin":true}`,
			http.Header{"Authorization": {"Bearer admin-token"}},
			http.StatusCreated,
		},
		{"malformed", `{`, nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/messages", tt.body, tt.header)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d, body %s", rec.Code, tt.want, rec.Body)
			}
		})
	}

	rec := do(t, h, http.MethodGet, "/sessions/"+session.ID+"/messages", "", nil)
	messages := decode[[]chat.Message](t, rec)
	if len(messages) != 2 {
		t.Fatalf("expected 2 stored messages, got %d", len(messages))
	}
	if messages[0].IsAdmin || !messages[1].IsAdmin {
		t.Fatalf("unexpected message order: %+v", messages)
	}
}

func TestUpdateMessageStatus(t *testing.T) {
	h := newTestRouter(t)
	session := decode[chat.Session](t, do(t, h, http.MethodPost, "/sessions", `{"visitor_id":"visitor_1"}`, nil))
	msg := decode[chat.Message](t, do(t, h, http.MethodPost, "/messages", `{"session_id":"`+session.ID+`","content":"hi"}`, nil))

	rec := do(t, h, http.MethodPatch, "/messages/"+msg.ID, `{"status":"read"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body)
	}
	if got := decode[chat.Message](t, rec); got.Status != chat.MessageRead {
		t.Fatalf("status = %q, want read", got.Status)
	}

	if rec := do(t, h, http.MethodPatch, "/messages/"+msg.ID, `{"status":"lost"}`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid status code = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPatch, "/messages/ghost", `{"status":"read"}`, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown message code = %d", rec.Code)
	}
}
