package http

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"net/url"
	"strconv"

	"github.com/a-h/templ"
	"github.com/danielgtaylor/huma/v2"
	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"medfront/app/internal/chat"
	"medfront/app/internal/db"
	"medfront/app/internal/http/templates"
	"medfront/app/internal/ui"
)

const (
	htmlContentType      = "text/html; charset=utf-8"
	errorFallbackMessage = "We couldn't process your request right now."

	formFailureMessage      = "We couldn't read the submitted form."
	lookupFailureMessage    = "We couldn't look up that disease right now. Please try again."
	diagnosisFailureMessage = "We couldn't load a diagnosis right now. Please try again."
	chatFailureMessage      = "We couldn't send your message. Please try again."
)

type htmlResponse struct {
	Status      int
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type viewInput struct {
	View string `path:"view" enum:"lookup,diagnosis" doc:"Form to show"`
}

type formInput struct {
	ContentType string `header:"Content-Type"`
	RawBody     []byte `contentType:"application/x-www-form-urlencoded" required:"false"`
}

// diagnosisInput forwards every query field, not just the documented one.
type diagnosisInput struct {
	Symptoms string `query:"symptoms" doc:"Free-text symptoms"`

	fields url.Values
}

// Resolve captures the raw query string.
func (i *diagnosisInput) Resolve(ctx huma.Context) []error {
	u := ctx.URL()
	i.fields = u.Query()
	return nil
}

type healthResponse struct {
	Status int
	Body   struct {
		Status   string `json:"status"`
		Database string `json:"database"`
		Backend  string `json:"backend"`
		Sessions int    `json:"sessions"`
	}
}

func (s *Server) registerHomeRoute() {
	huma.Get(s.api, "/", s.homeHandler, htmlOperation("Symptom lookup page", stdhttp.StatusInternalServerError))
}

func (s *Server) registerToggleRoute() {
	huma.Post(s.api, "/fragments/views/{view}", s.toggleHandler, htmlOperation("Switch the visible form"))
}

func (s *Server) registerLookupRoute() {
	huma.Post(s.api, "/fragments/lookup", s.lookupHandler, htmlOperation(
		"Look up a disease",
		stdhttp.StatusNoContent,
		stdhttp.StatusBadRequest,
		stdhttp.StatusInternalServerError,
		stdhttp.StatusBadGateway,
	))
}

func (s *Server) registerDiagnosisRoute() {
	huma.Get(s.api, "/fragments/diagnosis", s.diagnosisHandler, htmlOperation(
		"Diagnose symptoms",
		stdhttp.StatusNoContent,
		stdhttp.StatusInternalServerError,
		stdhttp.StatusBadGateway,
	))
}

func (s *Server) registerClearResultsRoute() {
	huma.Post(s.api, "/fragments/results/clear", s.clearResultsHandler, htmlOperation("Clear the results panel"), exemptFromRateLimit)
}

func (s *Server) registerChatRoute() {
	huma.Post(s.api, "/fragments/chat", s.chatHandler, htmlOperation(
		"Send a chat message",
		stdhttp.StatusNoContent,
		stdhttp.StatusBadRequest,
		stdhttp.StatusInternalServerError,
	))
}

func (s *Server) registerTranscriptsRoute() {
	huma.Get(s.api, "/fragments/transcripts", s.transcriptsHandler, htmlOperation(
		"Load both chat transcripts",
		stdhttp.StatusInternalServerError,
	))
}

func (s *Server) registerHealthRoute() {
	huma.Get(s.api, "/healthz", s.healthHandler, func(op *huma.Operation) {
		op.Summary = "Health check"
	})
}

func (s *Server) homeHandler(ctx context.Context, _ *struct{}) (*htmlResponse, error) {
	vm := s.viewModel(ctx)

	transcripts, err := s.chat.Transcripts(ctx, vm.SessionID)
	if err != nil {
		s.recordError(ctx, err, "loading transcripts", nil)
		return s.renderErrorResponse(ctx, stdhttp.StatusInternalServerError, "We couldn't load your conversation right now.")
	}

	data := templates.PageData{
		Title:       templates.DefaultTitle,
		Toggle:      templates.ToggleView{Selected: string(vm.Toggle().Selected())},
		ResultsHTML: string(vm.Results.Content()),
		Loading:     vm.Results.Loading(),
		Diagnosis:   entryViews(transcripts.Diagnosis, diagnosisSpeaker),
		Assistant:   entryViews(transcripts.Assistant, assistantSpeaker),
	}

	body, err := renderComponent(ctx, templates.HomePage(data))
	if err != nil {
		s.recordError(ctx, err, "rendering home page", nil)
		return s.renderErrorResponse(ctx, stdhttp.StatusInternalServerError, "We couldn't render the page.")
	}

	return newHTMLResponse(stdhttp.StatusOK, body), nil
}

func (s *Server) toggleHandler(ctx context.Context, input *viewInput) (*htmlResponse, error) {
	view, err := ui.ParseView(input.View)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}

	vm := s.viewModel(ctx)
	if err := vm.Select(view); err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}

	body, err := renderComponent(ctx, templates.Toggler(templates.ToggleView{Selected: string(vm.Toggle().Selected())}))
	if err != nil {
		s.recordError(ctx, err, "rendering toggle", logrus.Fields{"view": view})
		return s.renderNotice(ctx, stdhttp.StatusInternalServerError, errorFallbackMessage)
	}

	return newHTMLResponse(stdhttp.StatusOK, body), nil
}

func (s *Server) lookupHandler(ctx context.Context, input *formInput) (*htmlResponse, error) {
	fields, err := parseForm(input.ContentType, input.RawBody)
	if err != nil {
		s.recordError(ctx, err, "parsing lookup form", nil)
		return s.renderNotice(ctx, stdhttp.StatusBadRequest, formFailureMessage)
	}

	vm := s.viewModel(ctx)
	token := vm.Results.Begin()

	results, err := s.backend.Lookup(ctx, fields)
	if err != nil {
		s.recordError(ctx, err, "disease lookup failed", nil)
		return s.commitNotice(ctx, vm, token, stdhttp.StatusBadGateway, lookupFailureMessage)
	}

	body, err := renderComponent(ctx, templates.LookupResults(lookupCards(results)))
	if err != nil {
		s.recordError(ctx, err, "rendering lookup results", nil)
		return s.commitNotice(ctx, vm, token, stdhttp.StatusInternalServerError, errorFallbackMessage)
	}

	return s.commitResults(ctx, vm, token, stdhttp.StatusOK, body), nil
}

func (s *Server) diagnosisHandler(ctx context.Context, input *diagnosisInput) (*htmlResponse, error) {
	vm := s.viewModel(ctx)
	token := vm.Results.Begin()

	results, err := s.backend.Diagnose(ctx, input.fields)
	if err != nil {
		s.recordError(ctx, err, "diagnosis failed", nil)
		return s.commitNotice(ctx, vm, token, stdhttp.StatusBadGateway, diagnosisFailureMessage)
	}

	body, err := renderComponent(ctx, templates.DiagnosisResults(diagnosisCards(results)))
	if err != nil {
		s.recordError(ctx, err, "rendering diagnosis results", nil)
		return s.commitNotice(ctx, vm, token, stdhttp.StatusInternalServerError, errorFallbackMessage)
	}

	return s.commitResults(ctx, vm, token, stdhttp.StatusOK, body), nil
}

func (s *Server) clearResultsHandler(ctx context.Context, _ *struct{}) (*htmlResponse, error) {
	s.viewModel(ctx).Results.Clear()
	return newHTMLResponse(stdhttp.StatusOK, nil), nil
}

func (s *Server) chatHandler(ctx context.Context, input *formInput) (*htmlResponse, error) {
	fields, err := parseForm(input.ContentType, input.RawBody)
	if err != nil {
		s.recordError(ctx, err, "parsing chat form", nil)
		return s.renderNotice(ctx, stdhttp.StatusBadRequest, formFailureMessage)
	}

	exchange, err := s.chat.Send(ctx, SessionIDFromContext(ctx), fields.Get("message"))
	switch {
	case eris.Is(err, chat.ErrEmptyMessage):
		return &htmlResponse{Status: stdhttp.StatusNoContent}, nil
	case err != nil && exchange == nil:
		s.recordError(ctx, err, "sending chat message", nil)
		failure := []templates.EntryView{{Speaker: diagnosisSpeaker, Kind: templates.EntryFailure, Text: chatFailureMessage}}
		body, renderErr := renderComponent(ctx, templates.ChatUpdate(failure, nil))
		if renderErr != nil {
			s.recordError(ctx, renderErr, "rendering chat failure", nil)
			return s.renderNotice(ctx, stdhttp.StatusInternalServerError, chatFailureMessage)
		}
		return newHTMLResponse(stdhttp.StatusInternalServerError, body), nil
	case err != nil:
		s.recordError(ctx, err, "recording chat replies", nil)
	}

	body, err := renderComponent(ctx, templates.ChatUpdate(
		entryViews(exchange.Diagnosis, diagnosisSpeaker),
		entryViews(exchange.Assistant, assistantSpeaker),
	))
	if err != nil {
		s.recordError(ctx, err, "rendering chat update", nil)
		return s.renderNotice(ctx, stdhttp.StatusInternalServerError, chatFailureMessage)
	}

	return newHTMLResponse(stdhttp.StatusOK, body), nil
}

func (s *Server) transcriptsHandler(ctx context.Context, _ *struct{}) (*htmlResponse, error) {
	transcripts, err := s.chat.Transcripts(ctx, SessionIDFromContext(ctx))
	if err != nil {
		s.recordError(ctx, err, "loading transcripts", nil)
		return s.renderNotice(ctx, stdhttp.StatusInternalServerError, "We couldn't load your conversation right now.")
	}

	body, err := renderComponent(ctx, templates.Transcripts(
		entryViews(transcripts.Diagnosis, diagnosisSpeaker),
		entryViews(transcripts.Assistant, assistantSpeaker),
	))
	if err != nil {
		s.recordError(ctx, err, "rendering transcripts", nil)
		return s.renderNotice(ctx, stdhttp.StatusInternalServerError, errorFallbackMessage)
	}

	return newHTMLResponse(stdhttp.StatusOK, body), nil
}

func (s *Server) healthHandler(ctx context.Context, _ *struct{}) (*healthResponse, error) {
	resp := &healthResponse{}
	resp.Body.Status = "ok"
	resp.Body.Database = "ok"
	resp.Body.Backend = "configured"
	resp.Body.Sessions = s.sessions.Len()

	if err := db.Ping(ctx, s.db); err != nil {
		s.recordError(ctx, err, "pinging database", nil)
		resp.Body.Status = "degraded"
		resp.Body.Database = "error"
		resp.Status = stdhttp.StatusServiceUnavailable
	}

	if named, ok := s.backend.(interface{ BaseURL() string }); ok {
		resp.Body.Backend = named.BaseURL()
	}

	if resp.Status == 0 {
		resp.Status = stdhttp.StatusOK
	}

	return resp, nil
}

// commitResults writes body to the results panel when token is still current.
// Stale replies become 204 so the browser leaves the panel alone.
func (s *Server) commitResults(ctx context.Context, vm *ui.ViewModel, token ui.Token, status int, body []byte) *htmlResponse {
	if !vm.Results.Commit(token, body) {
		s.logStale(ctx, token)
		return &htmlResponse{Status: stdhttp.StatusNoContent}
	}
	return newHTMLResponse(status, body)
}

func (s *Server) commitNotice(ctx context.Context, vm *ui.ViewModel, token ui.Token, status int, message string) (*htmlResponse, error) {
	resp, err := s.renderNotice(ctx, status, message)
	if err != nil {
		vm.Results.Fail(token)
		return nil, err
	}
	return s.commitResults(ctx, vm, token, status, resp.Body), nil
}

func (s *Server) logStale(ctx context.Context, token ui.Token) {
	if s.logger == nil {
		return
	}

	entry := s.logger.WithField("token", uint64(token))
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		entry = entry.WithField("request_id", requestID)
	}
	entry.Debug("discarding stale results")
}

func newHTMLResponse(status int, body []byte) *htmlResponse {
	return &htmlResponse{
		Status:      status,
		ContentType: htmlContentType,
		Body:        body,
	}
}

// exemptFromRateLimit marks operations fired by typing, which must not spend
// the client's request budget.
func exemptFromRateLimit(op *huma.Operation) {
	if op.Metadata == nil {
		op.Metadata = map[string]any{}
	}
	op.Metadata[rateLimitExemptKey] = true
}

func htmlOperation(summary string, statuses ...int) func(op *huma.Operation) {
	return func(op *huma.Operation) {
		if summary != "" {
			op.Summary = summary
		}
		if op.Responses == nil {
			op.Responses = map[string]*huma.Response{}
		}

		statusCodes := append([]int{stdhttp.StatusOK}, statuses...)
		for _, status := range statusCodes {
			code := strconv.Itoa(status)
			if status == stdhttp.StatusNoContent {
				op.Responses[code] = &huma.Response{Description: stdhttp.StatusText(status)}
				continue
			}
			op.Responses[code] = &huma.Response{
				Description: stdhttp.StatusText(status),
				Content: map[string]*huma.MediaType{
					htmlContentType: {
						Schema: &huma.Schema{Type: "string"},
					},
				},
			}
		}
	}
}

// renderNotice renders an inline failure notice for fragment responses.
func (s *Server) renderNotice(ctx context.Context, status int, message string) (*htmlResponse, error) {
	body, err := renderComponent(ctx, templates.ErrorNotice(message))
	if err != nil {
		s.recordError(ctx, err, "rendering notice", logrus.Fields{"status": status})
		return newHTMLResponse(status, []byte("<p>"+templ.EscapeString(message)+"</p>")), nil
	}
	return newHTMLResponse(status, body), nil
}

func (s *Server) renderErrorResponse(ctx context.Context, status int, message string) (*htmlResponse, error) {
	label := fmt.Sprintf("%d %s", status, stdhttp.StatusText(status))
	title := fmt.Sprintf("%s • %s", label, templates.DefaultTitle)
	template := templates.ErrorPage(templates.ErrorPageData{
		Title:       title,
		StatusLabel: label,
		Message:     message,
	})

	body, err := renderComponent(ctx, template)
	if err != nil {
		s.recordError(ctx, err, "rendering error page", logrus.Fields{"status": status})
		fallback := []byte(fmt.Sprintf("<html><body><h1>%s</h1><p>%s</p></body></html>", label, templ.EscapeString(message)))
		return newHTMLResponse(status, fallback), nil
	}

	return newHTMLResponse(status, body), nil
}

func (s *Server) recordError(ctx context.Context, err error, message string, fields logrus.Fields) {
	if err == nil {
		return
	}

	if s.logger != nil {
		entry := s.logger.WithField("error", err.Error())
		if fields != nil {
			entry = entry.WithFields(fields)
		}
		if requestID := RequestIDFromContext(ctx); requestID != "" {
			entry = entry.WithField("request_id", requestID)
		}
		if sessionID := SessionIDFromContext(ctx); sessionID != "" {
			entry = entry.WithField("session_id", sessionID)
		}
		entry.Error(message)
	}

	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
		return
	}
	if s.sentry != nil {
		s.sentry.CaptureException(err)
	}
}
