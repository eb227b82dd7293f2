package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"print-relay/internal/dispatch"
	"print-relay/internal/policy/engine"
	"print-relay/internal/security"
)

type fakeRelayer struct {
	calls  []string
	result dispatch.Result
}

func (f *fakeRelayer) Relay(ctx context.Context, message, source string) dispatch.Result {
	f.calls = append(f.calls, message)
	return f.result
}

type auditEntry struct{ source, status, message string }

type recordingAudit struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (a *recordingAudit) Log(ctx context.Context, source, status, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditEntry{source, status, message})
}

func newTestHandler(t *testing.T, limit int, relay *fakeRelayer) (*Handler, *recordingAudit) {
	t.Helper()
	eval, err := engine.NewOPAEvaluator(context.Background(), limit, "")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	a := &recordingAudit{}
	return NewHandler(security.NewSecret("password"), eval, relay, a, limit), a
}

func submitForm(h *Handler, password, message string) (*httptest.ResponseRecorder, Response) {
	form := url.Values{"password": {password}, "message": {message}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "198.51.100.4:4242"
	rec := httptest.NewRecorder()
	h.Submit(rec, req)
	var resp Response
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestSubmit_Success(t *testing.T) {
	relay := &fakeRelayer{result: dispatch.Result{Outcome: dispatch.OutcomeSuccess}}
	h, _ := newTestHandler(t, 0, relay)
	rec, resp := submitForm(h, "password", "Hello")
	if rec.Code != http.StatusOK || resp.Status != StatusPrinted {
		t.Errorf("response = %d %q", rec.Code, resp.Status)
	}
	if len(relay.calls) != 1 || relay.calls[0] != "Hello" {
		t.Errorf("relay calls = %v", relay.calls)
	}
}

func TestSubmit_WrongPassword(t *testing.T) {
	relay := &fakeRelayer{}
	h, a := newTestHandler(t, 0, relay)
	rec, resp := submitForm(h, "nope", "Hello")
	if rec.Code != http.StatusUnauthorized || resp.Status != StatusDenied {
		t.Errorf("response = %d %q", rec.Code, resp.Status)
	}
	if len(relay.calls) != 0 {
		t.Error("denied submission must not reach the relay")
	}
	if len(a.entries) != 1 || a.entries[0] != (auditEntry{"198.51.100.4", "DENIED", "Hello"}) {
		t.Errorf("audit = %+v", a.entries)
	}
}

func TestSubmit_OverCeiling(t *testing.T) {
	relay := &fakeRelayer{}
	h, a := newTestHandler(t, 10, relay)
	rec, resp := submitForm(h, "password", strings.Repeat("a", 11))
	if rec.Code != http.StatusRequestEntityTooLarge || !strings.HasPrefix(resp.Status, "❌ LIMIT_EXCEEDED") {
		t.Errorf("response = %d %q", rec.Code, resp.Status)
	}
	if len(relay.calls) != 0 {
		t.Error("over-long submission must not reach the relay")
	}
	if len(a.entries) != 1 || a.entries[0].status != "LIMIT_EXCEEDED" {
		t.Errorf("audit = %+v", a.entries)
	}
}

func TestSubmit_RelayFailures(t *testing.T) {
	testCases := []struct {
		name   string
		result dispatch.Result
		want   string
	}{
		{"rejected", dispatch.Result{Outcome: dispatch.OutcomeRejected, StatusCode: 500}, "❌ HA_ERR: Error: 500"},
		{"conn fail", dispatch.Result{Outcome: dispatch.OutcomeConnFail, Err: errors.New("connection refused")}, "❌ CONN_FAIL: connection refused"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := newTestHandler(t, 0, &fakeRelayer{result: tc.result})
			rec, resp := submitForm(h, "password", "Hello")
			if rec.Code != http.StatusBadGateway || resp.Status != tc.want {
				t.Errorf("response = %d %q, want %q", rec.Code, resp.Status, tc.want)
			}
		})
	}
}

func TestSubmit_JSONBody(t *testing.T) {
	relay := &fakeRelayer{result: dispatch.Result{Outcome: dispatch.OutcomeSuccess}}
	h, _ := newTestHandler(t, 0, relay)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"password":"password","message":"From JSON"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	rec := httptest.NewRecorder()
	h.Submit(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, body %q", rec.Code, rec.Body.String())
	}
	if len(relay.calls) != 1 || relay.calls[0] != "From JSON" {
		t.Errorf("relay calls = %v", relay.calls)
	}
}

func TestSubmit_BadJSON(t *testing.T) {
	h, _ := newTestHandler(t, 0, &fakeRelayer{})
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Submit(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", rec.Code)
	}
}

func TestSubmit_EmptyMessage(t *testing.T) {
	relay := &fakeRelayer{}
	h, _ := newTestHandler(t, 0, relay)
	rec, resp := submitForm(h, "password", "")
	if rec.Code != http.StatusBadRequest || resp.Status != StatusEmpty {
		t.Errorf("response = %d %q", rec.Code, resp.Status)
	}
}

func TestInfo(t *testing.T) {
	h, _ := newTestHandler(t, 280, &fakeRelayer{})
	rec := httptest.NewRecorder()
	h.Info(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	var out map[string]int
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	if out["character_limit"] != 280 {
		t.Errorf("character_limit = %d, want 280", out["character_limit"])
	}
}
