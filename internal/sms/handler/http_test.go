package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"print-relay/internal/challenge"
	"print-relay/internal/dispatch"
	"print-relay/internal/docstore"
	"print-relay/internal/policy/engine"
	"print-relay/internal/relay"
)

type sentSMS struct{ to, body string }

type recordingSender struct {
	mu   sync.Mutex
	sent []sentSMS
}

func (s *recordingSender) Send(ctx context.Context, to, body string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentSMS{to, body})
	return "SM1", nil
}

func (s *recordingSender) bodies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, m := range s.sent {
		out = append(out, m.body)
	}
	return out
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

func (a *recordingAudit) statuses() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.status)
	}
	return out
}

// syncDispatcher runs jobs inline against a fixed result.
type syncDispatcher struct {
	mu     sync.Mutex
	jobs   []dispatch.Job
	result dispatch.Result
}

func (d *syncDispatcher) Submit(ctx context.Context, job dispatch.Job) error {
	d.mu.Lock()
	d.jobs = append(d.jobs, job)
	d.mu.Unlock()
	if job.Ack != nil {
		return job.Ack(ctx, d.result)
	}
	return nil
}

func (d *syncDispatcher) Notify(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type staticAuthorizer map[string]bool

func (a staticAuthorizer) IsAuthorized(ctx context.Context, identity string) bool { return a[identity] }

type fixture struct {
	handler    *Handler
	sender     *recordingSender
	audit      *recordingAudit
	dispatcher *syncDispatcher
	store      *docstore.MemoryStore
}

func newFixture(t *testing.T, whitelist staticAuthorizer, limit int) *fixture {
	t.Helper()
	store := docstore.NewMemoryStore()
	machine, err := challenge.NewMachine(store, func(s string) bool { return s == "1234" }, 0)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	eval, err := engine.NewOPAEvaluator(context.Background(), limit, "")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	f := &fixture{
		sender:     &recordingSender{},
		audit:      &recordingAudit{},
		dispatcher: &syncDispatcher{result: dispatch.Result{Outcome: dispatch.OutcomeSuccess, Status: "SUCCESS"}},
		store:      store,
	}
	f.handler = NewHandler(whitelist, machine, eval, f.dispatcher, f.sender, f.audit)
	return f
}

func postSMS(t *testing.T, h http.Handler, from, body string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"From": {from}, "Body": {body}}
	req := httptest.NewRequest(http.MethodPost, "/sms", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("response = %d %q, want 200 OK", rec.Code, rec.Body.String())
	}
	return rec
}

func TestSMS_NewMessagePromptsForPassword(t *testing.T) {
	f := newFixture(t, nil, 0)
	postSMS(t, f.handler, "+1234567890", "Hello")

	if got := f.sender.bodies(); len(got) != 1 || got[0] != ReplyPrompt {
		t.Errorf("replies = %q, want [%q]", got, ReplyPrompt)
	}
	doc, _ := f.store.Get(context.Background(), challenge.Collection, "+1234567890")
	if doc.String(challenge.FieldMessage) != "Hello" {
		t.Errorf("pending = %v, want Hello", doc)
	}
	if len(f.dispatcher.jobs) != 0 {
		t.Error("nothing should be relayed before the password")
	}
}

func TestSMS_CorrectPasswordRelaysPending(t *testing.T) {
	f := newFixture(t, nil, 0)
	postSMS(t, f.handler, "+1234567890", "Hello")
	postSMS(t, f.handler, "+1234567890", "1234")

	if len(f.dispatcher.jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(f.dispatcher.jobs))
	}
	job := f.dispatcher.jobs[0]
	if job.Message != "Hello" || job.Source != "SMS: +1234567890" {
		t.Errorf("job = %+v", job)
	}
	replies := f.sender.bodies()
	if replies[len(replies)-1] != ReplyPrinted {
		t.Errorf("last reply = %q, want %q", replies[len(replies)-1], ReplyPrinted)
	}
	if f.store.Len(challenge.Collection) != 0 {
		t.Error("pending record should be cleared")
	}
}

func TestSMS_WrongPasswordDenies(t *testing.T) {
	f := newFixture(t, nil, 0)
	postSMS(t, f.handler, "+1234567890", "Hello")
	postSMS(t, f.handler, "+1234567890", "wrongpass")

	if len(f.dispatcher.jobs) != 0 {
		t.Error("wrong password must not relay")
	}
	replies := f.sender.bodies()
	if replies[len(replies)-1] != ReplyDenied {
		t.Errorf("last reply = %q, want %q", replies[len(replies)-1], ReplyDenied)
	}
	if len(f.audit.entries) != 1 || f.audit.entries[0] != (auditEntry{"SMS: +1234567890", "DENIED", "Hello"}) {
		t.Errorf("audit = %+v", f.audit.entries)
	}
	if f.store.Len(challenge.Collection) != 0 {
		t.Error("pending record should be cleared after denial")
	}
}

func TestSMS_WhitelistedSenderBypassesChallenge(t *testing.T) {
	f := newFixture(t, staticAuthorizer{"+15550001": true}, 0)
	postSMS(t, f.handler, "+15550001", "Print me")

	if len(f.dispatcher.jobs) != 1 || f.dispatcher.jobs[0].Message != "Print me" {
		t.Fatalf("jobs = %+v, want one relay of the message", f.dispatcher.jobs)
	}
	for _, body := range f.sender.bodies() {
		if body == ReplyPrompt {
			t.Error("whitelisted sender should never be prompted")
		}
	}
	if f.store.Len(challenge.Collection) != 0 {
		t.Error("whitelisted sender should not create a pending record")
	}
}

func TestSMS_LengthCeiling(t *testing.T) {
	testCases := []struct {
		name      string
		whitelist staticAuthorizer
	}{
		{"challenged", nil},
		{"whitelisted", staticAuthorizer{"+1555": true}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.whitelist, 5)
			postSMS(t, f.handler, "+1555", "way too long")

			if len(f.dispatcher.jobs) != 0 {
				t.Error("over-long message must not be relayed")
			}
			if f.store.Len(challenge.Collection) != 0 {
				t.Error("over-long message must not be stored")
			}
			if got := f.audit.statuses(); len(got) != 1 || got[0] != "LIMIT_EXCEEDED" {
				t.Errorf("audit statuses = %v, want [LIMIT_EXCEEDED]", got)
			}
			if got := f.sender.bodies(); len(got) != 1 || !strings.Contains(got[0], "max 5") {
				t.Errorf("replies = %q", got)
			}
		})
	}
}

func TestSMS_PasswordReplyIgnoresCeiling(t *testing.T) {
	f := newFixture(t, nil, 5)
	postSMS(t, f.handler, "+1555", "Hi")
	f.handler.challenges = mustMachine(t, f.store, "longer-secret")
	postSMS(t, f.handler, "+1555", "longer-secret")
	if len(f.dispatcher.jobs) != 1 {
		t.Errorf("jobs = %d, want 1", len(f.dispatcher.jobs))
	}
}

func mustMachine(t *testing.T, store docstore.KV, secret string) *challenge.Machine {
	t.Helper()
	m, err := challenge.NewMachine(store, func(s string) bool { return s == secret }, 0)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	return m
}

func TestSMS_RelayFailureReplies(t *testing.T) {
	testCases := []struct {
		name   string
		result dispatch.Result
		want   string
	}{
		{"rejected", dispatch.Result{Outcome: dispatch.OutcomeRejected, StatusCode: 500}, "❌ Printer error: 500"},
		{"conn fail", dispatch.Result{Outcome: dispatch.OutcomeConnFail}, ReplyConnFail},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, staticAuthorizer{"+1555": true}, 0)
			f.dispatcher.result = tc.result
			postSMS(t, f.handler, "+1555", "hello")
			if got := f.sender.bodies(); len(got) != 1 || got[0] != tc.want {
				t.Errorf("replies = %q, want [%q]", got, tc.want)
			}
		})
	}
}

func TestSMS_EmptyBodyIgnored(t *testing.T) {
	f := newFixture(t, nil, 0)
	postSMS(t, f.handler, "+1555", "   ")
	if len(f.sender.bodies()) != 0 || f.store.Len(challenge.Collection) != 0 {
		t.Error("empty body should be ignored")
	}
}

// End to end through the real pool and relay client: "Pizza" then the secret yields one relay call.
func TestSMS_PizzaScenario(t *testing.T) {
	var mu sync.Mutex
	var payloads []map[string]string
	relayed := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		payloads = append(payloads, body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		relayed <- struct{}{}
	}))
	defer srv.Close()

	a := &recordingAudit{}
	d, err := dispatch.NewDispatcher(dispatch.NewPool(2, 10), relay.NewClient(srv.URL, http.StatusOK, time.Second), a)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	defer d.Pool().Shutdown(context.Background())

	store := docstore.NewMemoryStore()
	sender := &recordingSender{}
	h := NewHandler(staticAuthorizer{}, mustMachine(t, store, "1234"), nil, d, sender, a)

	postSMS(t, h, "+1999", "Pizza")
	postSMS(t, h, "+1999", "1234")

	select {
	case <-relayed:
	case <-time.After(2 * time.Second):
		t.Fatal("relay not called")
	}
	_ = d.Pool().Shutdown(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(payloads) != 1 || payloads[0]["message"] != "Pizza" {
		t.Errorf("relay payloads = %v, want one {message: Pizza}", payloads)
	}
	if got := a.statuses(); len(got) != 1 || got[0] != "SUCCESS" {
		t.Errorf("audit statuses = %v, want [SUCCESS]", got)
	}
}
