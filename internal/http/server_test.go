package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	stdhttp "net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/rotisserie/eris"

	"medfront/app/internal/backend"
	"medfront/app/internal/chat"
	"medfront/app/internal/db"
	applog "medfront/app/internal/log"
	"medfront/app/internal/ui"
)

func TestHomeRouteRendersPageAndIssuesSession(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testEnvOptions{})
	rec := env.do(t, "GET", "/", "", "", nil)

	if rec.Code != 200 {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != htmlContentType {
		t.Fatalf("expected content type %q, got %q", htmlContentType, ct)
	}

	body := rec.Body.String()
	for _, want := range []string{"Symptom &amp; Disease Lookup", `id="views"`, `id="results"`, `id="apiMessages"`, `id="geminiMessages"`} {
		if !contains(body, want) {
			t.Fatalf("expected body to contain %q, got %q", want, body)
		}
	}

	cookie := sessionCookie(rec)
	if cookie == nil || !ui.ValidSessionID(cookie.Value) {
		t.Fatalf("expected a session cookie, got %v", rec.Header().Values("Set-Cookie"))
	}
	if !cookie.HttpOnly {
		t.Fatalf("expected session cookie to be HttpOnly")
	}
}

func TestHomeRouteReusesExistingSession(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testEnvOptions{})
	cookie := env.session(t)

	rec := env.do(t, "GET", "/", "", "", cookie)
	if sessionCookie(rec) != nil {
		t.Fatalf("expected no new cookie for a known session")
	}
	if env.sessions.Len() != 1 {
		t.Fatalf("expected a single session, got %d", env.sessions.Len())
	}
}

func TestToggleKeepsExactlyOneFormVisible(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testEnvOptions{})
	cookie := env.session(t)

	sequence := []string{"diagnosis", "diagnosis", "lookup", "diagnosis", "lookup", "lookup"}
	for _, view := range sequence {
		rec := env.do(t, "POST", "/fragments/views/"+view, "", "", cookie)
		if rec.Code != 200 {
			t.Fatalf("expected status 200 for %s, got %d", view, rec.Code)
		}

		body := rec.Body.String()
		if got := strings.Count(body, `class="toggle selected"`); got != 1 {
			t.Fatalf("expected exactly one selected button after %s, got %d", view, got)
		}
		if got := strings.Count(body, `class="form hidden"`); got != 1 {
			t.Fatalf("expected exactly one hidden form after %s, got %d", view, got)
		}
		if !contains(body, `id="`+view+`Form" class="form"`) {
			t.Fatalf("expected %s form to be visible, got %q", view, body)
		}
		if got := strings.Count(body, `hx-preserve="true"`); got != 2 {
			t.Fatalf("expected both form inputs to survive the swap, got %d preserved", got)
		}
	}

	page := env.do(t, "GET", "/", "", "", cookie)
	if !contains(page.Body.String(), `id="lookupForm" class="form"`) {
		t.Fatalf("expected page reload to keep the last selection")
	}
}

func TestToggleRejectsUnknownView(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testEnvOptions{})
	rec := env.do(t, "POST", "/fragments/views/settings", "", "", env.session(t))

	if rec.Code != 422 {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
}

func TestLookupRendersCards(t *testing.T) {
	t.Parallel()

	stub := &stubBackend{lookupResults: []backend.DiseaseLookupResult{{
		PrimaryName:  "Appendectomy",
		ICD10CMCodes: "0DTJ4ZZ",
		IsProcedure:  true,
		Synonyms:     []string{"appendix removal", "append surgery"},
		InfoLinks:    []backend.InfoLink{{URL: "https://example.org/a", Label: "MedlinePlus"}},
	}}}
	env := newTestEnv(t, testEnvOptions{backend: stub})

	rec := env.do(t, "POST", "/fragments/lookup", "application/x-www-form-urlencoded", "query=appendix", env.session(t))
	if rec.Code != 200 {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if got := stub.lastFields().Get("query"); got != "appendix" {
		t.Fatalf("expected query field to be forwarded, got %q", got)
	}

	body := rec.Body.String()
	for _, want := range []string{"Results:", "Appendectomy", "Medical Procedure (e.g., surgery, diagnostic tests)", "appendix removal, append surgery", `href="https://example.org/a"`} {
		if !contains(body, want) {
			t.Fatalf("expected body to contain %q, got %q", want, body)
		}
	}
}

func TestLookupAcceptsMultipartForms(t *testing.T) {
	t.Parallel()

	stub := &stubBackend{}
	env := newTestEnv(t, testEnvOptions{backend: stub})

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("query", "influenza"); err != nil {
		t.Fatalf("WriteField returned error: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	rec := env.do(t, "POST", "/fragments/lookup", writer.FormDataContentType(), buf.String(), env.session(t))
	if rec.Code != 200 {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got := stub.lastFields().Get("query"); got != "influenza" {
		t.Fatalf("expected multipart field to be forwarded, got %q", got)
	}
	if !contains(rec.Body.String(), "No results found.") {
		t.Fatalf("expected empty-state message, got %q", rec.Body.String())
	}
}

func TestLookupFailureRendersNotice(t *testing.T) {
	t.Parallel()

	stub := &stubBackend{lookupErr: eris.Wrap(backend.ErrUnexpectedStatus, "status 500")}
	env := newTestEnv(t, testEnvOptions{backend: stub})
	cookie := env.session(t)

	rec := env.do(t, "POST", "/fragments/lookup", "application/x-www-form-urlencoded", "query=flu", cookie)
	if rec.Code != 502 {
		t.Fatalf("expected status 502, got %d", rec.Code)
	}
	if !contains(rec.Body.String(), templ.EscapeString(lookupFailureMessage)) {
		t.Fatalf("expected failure notice, got %q", rec.Body.String())
	}

	vm := env.sessions.Get(cookie.Value)
	if vm.Results.Loading() {
		t.Fatalf("expected loading state to end after a failure")
	}
}

func TestDiagnosisForwardsQueryAndRendersCards(t *testing.T) {
	t.Parallel()

	stub := &stubBackend{diagnoseResults: []backend.DiagnosisResult{{
		PrimaryName: "Migraine",
		Description: "Recurring headache",
		Remedies:    "Rest & hydration",
	}}}
	env := newTestEnv(t, testEnvOptions{backend: stub})
	cookie := env.session(t)

	rec := env.do(t, "GET", "/fragments/diagnosis?symptoms=headache&duration=2d", "", "", cookie)
	if rec.Code != 200 {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	fields := stub.lastFields()
	if fields.Get("symptoms") != "headache" || fields.Get("duration") != "2d" {
		t.Fatalf("expected every query field to be forwarded, got %v", fields)
	}

	body := rec.Body.String()
	if !contains(body, "Diagnosis:") || !contains(body, "Migraine") || !contains(body, "Rest &amp; hydration") {
		t.Fatalf("expected diagnosis card, got %q", body)
	}

	vm := env.sessions.Get(cookie.Value)
	if vm.Results.Loading() {
		t.Fatalf("expected spinner to be hidden after success")
	}
	if string(vm.Results.Content()) != body {
		t.Fatalf("expected results panel to hold the rendered cards")
	}
}

func TestDiagnosisFailureHidesSpinnerAndRendersNotice(t *testing.T) {
	t.Parallel()

	stub := &stubBackend{diagnoseErr: eris.New("connection refused")}
	env := newTestEnv(t, testEnvOptions{backend: stub})
	cookie := env.session(t)

	rec := env.do(t, "GET", "/fragments/diagnosis?symptoms=cough", "", "", cookie)
	if rec.Code != 502 {
		t.Fatalf("expected status 502, got %d", rec.Code)
	}
	if !contains(rec.Body.String(), templ.EscapeString(diagnosisFailureMessage)) {
		t.Fatalf("expected failure notice, got %q", rec.Body.String())
	}
	if env.sessions.Get(cookie.Value).Results.Loading() {
		t.Fatalf("expected spinner to be hidden after failure")
	}
}

func TestDiagnosisReplyAfterClearIsDiscarded(t *testing.T) {
	t.Parallel()

	stub := &stubBackend{
		diagnoseResults: []backend.DiagnosisResult{{PrimaryName: "Stale"}},
		started:         make(chan struct{}),
		release:         make(chan struct{}),
	}
	env := newTestEnv(t, testEnvOptions{backend: stub})
	cookie := env.session(t)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- env.do(t, "GET", "/fragments/diagnosis?symptoms=fever", "", "", cookie)
	}()

	select {
	case <-stub.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("diagnosis request never reached the backend")
	}

	cleared := env.do(t, "POST", "/fragments/results/clear", "", "", cookie)
	if cleared.Code != 200 {
		t.Fatalf("expected clear to return 200, got %d", cleared.Code)
	}
	close(stub.release)

	rec := <-done
	if rec.Code != 204 {
		t.Fatalf("expected stale reply to return 204, got %d", rec.Code)
	}

	vm := env.sessions.Get(cookie.Value)
	if len(vm.Results.Content()) != 0 {
		t.Fatalf("expected results panel to stay empty, got %q", vm.Results.Content())
	}
}

func TestClearEmptiesResultsPanel(t *testing.T) {
	t.Parallel()

	stub := &stubBackend{lookupResults: []backend.DiseaseLookupResult{{PrimaryName: "Asthma"}}}
	env := newTestEnv(t, testEnvOptions{backend: stub})
	cookie := env.session(t)

	env.do(t, "POST", "/fragments/lookup", "application/x-www-form-urlencoded", "query=asthma", cookie)
	if len(env.sessions.Get(cookie.Value).Results.Content()) == 0 {
		t.Fatalf("expected lookup to populate the panel")
	}

	rec := env.do(t, "POST", "/fragments/results/clear", "", "", cookie)
	if rec.Code != 200 || rec.Body.Len() != 0 {
		t.Fatalf("expected empty 200 response, got %d %q", rec.Code, rec.Body.String())
	}
	if len(env.sessions.Get(cookie.Value).Results.Content()) != 0 {
		t.Fatalf("expected results panel to be empty")
	}
}

func TestChatIgnoresBlankMessage(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testEnvOptions{})
	cookie := env.session(t)

	rec := env.do(t, "POST", "/fragments/chat", "application/x-www-form-urlencoded", "message=+++", cookie)
	if rec.Code != 204 {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
	if env.diagnoser.calls.Load() != 0 || env.assistant.calls.Load() != 0 {
		t.Fatalf("expected no backend calls for a blank message")
	}

	transcripts := env.do(t, "GET", "/fragments/transcripts", "", "", cookie)
	if contains(transcripts.Body.String(), "You:") {
		t.Fatalf("expected transcripts to stay empty, got %q", transcripts.Body.String())
	}
}

func TestChatRendersBothPanels(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testEnvOptions{
		diagnosis: backend.ChatDiagnosis{Kind: backend.ChatDiagnosisMessage, Message: "try again"},
		reply:     "Drink **water**.",
	})
	cookie := env.session(t)

	rec := env.do(t, "POST", "/fragments/chat", "application/x-www-form-urlencoded", "message=hello", cookie)
	if rec.Code != 200 {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	for _, want := range []string{
		`hx-swap-oob="beforeend:#apiMessages"`,
		`hx-swap-oob="beforeend:#geminiMessages"`,
		"You: hello",
		"Bot: try again",
		"<strong>water</strong>",
	} {
		if !contains(body, want) {
			t.Fatalf("expected body to contain %q, got %q", want, body)
		}
	}
	if strings.Count(body, "You: hello") != 2 {
		t.Fatalf("expected user line in both panels, got %q", body)
	}
	if got := env.diagnoser.lastSymptoms(); got != "hello" {
		t.Fatalf("expected diagnoser to receive %q, got %q", "hello", got)
	}
}

func TestChatRendersMatches(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testEnvOptions{
		diagnosis: backend.ChatDiagnosis{Kind: backend.ChatDiagnosisMatches, Matches: []backend.ChatMatch{
			{Name: "Influenza", ICD10Codes: "J11", InfoLink: "https://example.org/flu"},
		}},
	})

	rec := env.do(t, "POST", "/fragments/chat", "application/x-www-form-urlencoded", "message=fever", env.session(t))
	body := rec.Body.String()
	if !contains(body, "Bot: Possible diseases found:") || !contains(body, "<strong>Influenza</strong> (ICD-10: J11)") {
		t.Fatalf("expected match list, got %q", body)
	}
	if !contains(body, `href="https://example.org/flu"`) {
		t.Fatalf("expected more info link, got %q", body)
	}
}

func TestChatFailureStaysInItsPanel(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testEnvOptions{
		diagnosis:    backend.ChatDiagnosis{Kind: backend.ChatDiagnosisError, Error: "No symptoms provided"},
		assistantErr: eris.New("upstream timeout"),
	})

	rec := env.do(t, "POST", "/fragments/chat", "application/x-www-form-urlencoded", "message=ache", env.session(t))
	if rec.Code != 200 {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	if !contains(body, "Bot: No symptoms provided") {
		t.Fatalf("expected diagnosis error line, got %q", body)
	}
	if !contains(body, "Gemini: We couldn&#39;t reach the assistant.") {
		t.Fatalf("expected assistant failure line, got %q", body)
	}
}

func TestTranscriptsSurviveReload(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testEnvOptions{
		diagnosis: backend.ChatDiagnosis{Kind: backend.ChatDiagnosisMessage, Message: "No matching diseases found"},
		reply:     "Rest up.",
	})
	cookie := env.session(t)

	env.do(t, "POST", "/fragments/chat", "application/x-www-form-urlencoded", "message=tired", cookie)

	rec := env.do(t, "GET", "/fragments/transcripts", "", "", cookie)
	body := rec.Body.String()
	if !contains(body, "You: tired") || !contains(body, "Bot: No matching diseases found") || !contains(body, "Rest up.") {
		t.Fatalf("expected persisted transcript, got %q", body)
	}

	other := env.do(t, "GET", "/fragments/transcripts", "", "", nil)
	if contains(other.Body.String(), "You: tired") {
		t.Fatalf("expected transcripts to be scoped to the session")
	}
}

func TestHealthRouteReportsDatabase(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testEnvOptions{})
	rec := env.do(t, "GET", "/healthz", "", "", nil)

	if rec.Code != 200 {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var payload struct {
		Status   string `json:"status"`
		Database string `json:"database"`
		Backend  string `json:"backend"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decoding health payload: %v", err)
	}
	if payload.Status != "ok" || payload.Database != "ok" || payload.Backend != "configured" {
		t.Fatalf("unexpected health payload %+v", payload)
	}
}

func TestRateLimitedRequestsReceiveNotice(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testEnvOptions{burst: 1})
	cookie := env.session(t)

	rec := env.do(t, "POST", "/fragments/lookup", "application/x-www-form-urlencoded", "query=flu", cookie)
	if rec.Code != 429 {
		t.Fatalf("expected status 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After header")
	}
	if !contains(rec.Body.String(), templ.EscapeString(rateLimitMessage)) {
		t.Fatalf("expected rate limit notice, got %q", rec.Body.String())
	}
}

func TestClearingWhileTypingDoesNotSpendRequestBudget(t *testing.T) {
	t.Parallel()

	stub := &stubBackend{diagnoseResults: []backend.DiagnosisResult{{PrimaryName: "Migraine"}}}
	env := newTestEnv(t, testEnvOptions{backend: stub, burst: 20, rps: 5})
	cookie := env.session(t)

	for i := 0; i < 30; i++ {
		rec := env.do(t, "POST", "/fragments/results/clear", "", "", cookie)
		if rec.Code != 200 {
			t.Fatalf("clear %d: expected status 200, got %d", i+1, rec.Code)
		}
	}

	rec := env.do(t, "GET", "/fragments/diagnosis?symptoms=headache", "", "", cookie)
	if rec.Code != 200 {
		t.Fatalf("expected diagnosis after typing to succeed, got %d %q", rec.Code, rec.Body.String())
	}
	if !contains(rec.Body.String(), "Migraine") {
		t.Fatalf("expected diagnosis card, got %q", rec.Body.String())
	}
}

func TestStaticAssetsAreServed(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testEnvOptions{})
	rec := env.do(t, "GET", "/static/app.css", "", "", nil)

	if rec.Code != 200 {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/css") {
		t.Fatalf("expected css content type, got %q", rec.Header().Get("Content-Type"))
	}
}

func TestNewServerValidatesOptions(t *testing.T) {
	t.Parallel()

	if _, err := NewServer(Options{}); err == nil {
		t.Fatalf("expected error for missing backend")
	}
}

// helper utilities

type testEnvOptions struct {
	backend      *stubBackend
	diagnosis    backend.ChatDiagnosis
	reply        string
	assistantErr error
	burst        int
	rps          float64
}

type testEnv struct {
	srv       *Server
	sessions  *ui.Store
	diagnoser *stubDiagnoser
	assistant *stubAssistant
}

func newTestEnv(t *testing.T, opts testEnvOptions) *testEnv {
	t.Helper()

	database, err := db.Open(db.Options{Path: filepath.Join(t.TempDir(), "medfront.db")})
	if err != nil {
		t.Fatalf("db.Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(database) })

	logger := applog.Silent()
	if err := chat.Migrate(context.Background(), database, logger); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}

	repo, err := chat.NewRepository(database, logger)
	if err != nil {
		t.Fatalf("NewRepository returned error: %v", err)
	}

	diagnoser := &stubDiagnoser{result: opts.diagnosis}
	if diagnoser.result.Kind == "" {
		diagnoser.result = backend.ChatDiagnosis{Kind: backend.ChatDiagnosisMatches}
	}
	responder := &stubAssistant{reply: opts.reply, err: opts.assistantErr}

	chatService, err := chat.NewService(repo, diagnoser, responder, logger, nil)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}

	stub := opts.backend
	if stub == nil {
		stub = &stubBackend{}
	}

	burst := opts.burst
	if burst == 0 {
		burst = 1000
	}
	rps := opts.rps
	if rps == 0 {
		rps = 0.001
	}

	sessions := ui.NewStore(ui.ViewLookup, 0)
	srv, err := NewServer(Options{
		Backend:  stub,
		Chat:     chatService,
		Sessions: sessions,
		Database: database,
		Logger:   logger,
		RateLimiter: RateLimiterSettings{
			RequestsPerSecond: rps,
			Burst:             burst,
			ClientTTL:         time.Minute,
		},
	})
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, sessions: sessions, diagnoser: diagnoser, assistant: responder}
}

// session opens the page once and returns the issued session cookie.
func (e *testEnv) session(t *testing.T) *stdhttp.Cookie {
	t.Helper()

	rec := e.do(t, "GET", "/", "", "", nil)
	cookie := sessionCookie(rec)
	if cookie == nil {
		t.Fatalf("expected session cookie from home page")
	}
	return cookie
}

func (e *testEnv) do(t *testing.T, method, target, contentType, body string, cookie *stdhttp.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("HX-Request", "true")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(rec *httptest.ResponseRecorder) *stdhttp.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == sessionCookieName {
			return cookie
		}
	}
	return nil
}

func contains(body, substring string) bool {
	return strings.Contains(body, substring)
}

// stubs

type stubBackend struct {
	mu              sync.Mutex
	fields          url.Values
	lookupResults   []backend.DiseaseLookupResult
	lookupErr       error
	diagnoseResults []backend.DiagnosisResult
	diagnoseErr     error

	started chan struct{}
	release chan struct{}
}

func (s *stubBackend) Lookup(_ context.Context, fields url.Values) ([]backend.DiseaseLookupResult, error) {
	s.record(fields)
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	return s.lookupResults, nil
}

func (s *stubBackend) Diagnose(_ context.Context, fields url.Values) ([]backend.DiagnosisResult, error) {
	s.record(fields)
	if s.started != nil {
		close(s.started)
		<-s.release
	}
	if s.diagnoseErr != nil {
		return nil, s.diagnoseErr
	}
	return s.diagnoseResults, nil
}

func (s *stubBackend) record(fields url.Values) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = fields
}

func (s *stubBackend) lastFields() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fields
}

type stubDiagnoser struct {
	mu       sync.Mutex
	calls    atomic.Int32
	symptoms string
	result   backend.ChatDiagnosis
}

func (s *stubDiagnoser) ChatDiagnose(_ context.Context, symptoms string) (backend.ChatDiagnosis, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.symptoms = symptoms
	s.mu.Unlock()
	return s.result, nil
}

func (s *stubDiagnoser) lastSymptoms() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.symptoms
}

type stubAssistant struct {
	calls atomic.Int32
	reply string
	err   error
}

func (s *stubAssistant) Reply(_ context.Context, _ string) (string, error) {
	s.calls.Add(1)
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

var _ Backend = (*stubBackend)(nil)
var _ chat.Diagnoser = (*stubDiagnoser)(nil)
