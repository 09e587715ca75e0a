package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rotisserie/eris"

	applog "medfront/app/internal/log"
)

func TestNewClientRequiresBaseURL(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(ClientOptions{}); err == nil {
		t.Fatalf("expected error when base url is missing")
	}

	if _, err := NewClient(ClientOptions{BaseURL: "ftp://example.com"}); err == nil {
		t.Fatalf("expected error for non-http scheme")
	}
}

func TestLookupPostsMultipartForm(t *testing.T) {
	t.Parallel()

	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/lookup" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("expected multipart content type, got %q", r.Header.Get("Content-Type"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm returned error: %v", err)
		}
		gotQuery = r.FormValue("disease")
		_, _ = io.WriteString(w, `[{"primary_name":"Flu","icd10cm_codes":"J11","is_procedure":false,"synonyms":["Influenza"],"info_links":[["http://x","X"]]}]`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	results, err := client.Lookup(context.Background(), url.Values{"disease": {"flu"}})
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}

	if gotQuery != "flu" {
		t.Fatalf("expected form field disease=flu, got %q", gotQuery)
	}

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	result := results[0]
	if result.PrimaryName != "Flu" || result.ICD10CMCodes != "J11" || result.IsProcedure {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.InfoLinks) != 1 || result.InfoLinks[0].URL != "http://x" || result.InfoLinks[0].Label != "X" {
		t.Fatalf("unexpected info links: %+v", result.InfoLinks)
	}
}

func TestLookupRejectsErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Lookup(context.Background(), url.Values{})
	if err == nil {
		t.Fatalf("expected error for 502 response")
	}
	if !eris.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("expected ErrUnexpectedStatus, got %v", err)
	}
}

func TestLookupRejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"not":"an array"`)
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv.URL).Lookup(context.Background(), url.Values{}); err == nil {
		t.Fatalf("expected decoding error")
	}
}

func TestDiagnoseSendsQueryParameters(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/diagnosis" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("symptoms"); got != "fever & cough" {
			t.Errorf("expected decoded symptoms, got %q", got)
		}
		_ = json.NewEncoder(w).Encode([]DiagnosisResult{{PrimaryName: "Flu", Description: "Viral", Remedies: "Rest"}})
	}))
	defer srv.Close()

	results, err := newTestClient(t, srv.URL).Diagnose(context.Background(), url.Values{"symptoms": {"fever & cough"}})
	if err != nil {
		t.Fatalf("Diagnose returned error: %v", err)
	}

	if len(results) != 1 || results[0].Remedies != "Rest" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestChatDiagnoseEncodesMessage(t *testing.T) {
	t.Parallel()

	var rawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		_, _ = io.WriteString(w, `[{"name":"Flu","icd10_codes":"J11","info_link":"http://x"}]`)
	}))
	defer srv.Close()

	result, err := newTestClient(t, srv.URL).ChatDiagnose(context.Background(), "headache & fever #1?")
	if err != nil {
		t.Fatalf("ChatDiagnose returned error: %v", err)
	}

	if rawQuery != "symptoms=headache+%26+fever+%231%3F" {
		t.Fatalf("expected percent-encoded query, got %q", rawQuery)
	}

	if result.Kind != ChatDiagnosisMatches || len(result.Matches) != 1 || result.Matches[0].Name != "Flu" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestChatDiagnoseDecodesNoticeBodiesOnClientErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
		kind   ChatDiagnosisKind
		text   string
	}{
		{name: "error", status: http.StatusBadRequest, body: `{"error":"Please provide symptoms parameter"}`, kind: ChatDiagnosisError, text: "Please provide symptoms parameter"},
		{name: "message", status: http.StatusNotFound, body: `{"message":"try again"}`, kind: ChatDiagnosisMessage, text: "try again"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			result, err := newTestClient(t, srv.URL).ChatDiagnose(context.Background(), "x")
			if err != nil {
				t.Fatalf("ChatDiagnose returned error: %v", err)
			}

			if result.Kind != tc.kind {
				t.Fatalf("expected kind %q, got %q", tc.kind, result.Kind)
			}
			if result.Error+result.Message != tc.text {
				t.Fatalf("expected text %q, got %+v", tc.text, result)
			}
			if result.Matches != nil {
				t.Fatalf("expected no matches, got %+v", result.Matches)
			}
		})
	}
}

func TestChatDiagnoseFailsOnServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"boom"}`)
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv.URL).ChatDiagnose(context.Background(), "x"); !eris.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("expected ErrUnexpectedStatus, got %v", err)
	}
}

func TestAskPostsJSONMessage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/gemini" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body GeminiRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		if body.Message != "I have a cough" {
			t.Errorf("expected message to be forwarded, got %q", body.Message)
		}
		_, _ = io.WriteString(w, `{"response":"Possibly a cold."}`)
	}))
	defer srv.Close()

	response, err := newTestClient(t, srv.URL).Ask(context.Background(), "I have a cough")
	if err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}

	if response.Text() != "Possibly a cold." {
		t.Fatalf("unexpected response text %q", response.Text())
	}
}

func TestGeminiResponseFallsBackWhenMissing(t *testing.T) {
	t.Parallel()

	var response GeminiResponse
	if err := json.Unmarshal([]byte(`{}`), &response); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}

	if response.Text() != NoResponseText {
		t.Fatalf("expected fallback text, got %q", response.Text())
	}
}

func TestDecodeChatDiagnosisPrefersErrorOverMessage(t *testing.T) {
	t.Parallel()

	result, err := DecodeChatDiagnosis([]byte(` {"error":"bad","message":"ignored"}`))
	if err != nil {
		t.Fatalf("DecodeChatDiagnosis returned error: %v", err)
	}

	if result.Kind != ChatDiagnosisError || result.Error != "bad" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestDecodeChatDiagnosisRejectsUnknownObject(t *testing.T) {
	t.Parallel()

	if _, err := DecodeChatDiagnosis([]byte(`{"status":"ok"}`)); err == nil {
		t.Fatalf("expected error for object without error or message")
	}
}

func TestInfoLinkRejectsWrongArity(t *testing.T) {
	t.Parallel()

	var link InfoLink
	if err := json.Unmarshal([]byte(`["only-url"]`), &link); err == nil {
		t.Fatalf("expected error for single element link")
	}
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	client, err := NewClient(ClientOptions{BaseURL: baseURL, Logger: applog.Silent()})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client
}
