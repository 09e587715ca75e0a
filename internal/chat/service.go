package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"medfront/app/internal/assistant"
	"medfront/app/internal/backend"
)

// ErrEmptyMessage is returned by Send for blank input; nothing is recorded or requested.
var ErrEmptyMessage = eris.New("message is empty")

const (
	diagnosisFailureText = "We couldn't reach the diagnosis service. Please try again."
	assistantFailureText = "We couldn't reach the assistant. Please try again."
)

// Diagnoser is the subset of the backend client used for the diagnosis panel.
type Diagnoser interface {
	ChatDiagnose(ctx context.Context, symptoms string) (backend.ChatDiagnosis, error)
}

// Service defines the dual chat operations.
type Service interface {
	Send(ctx context.Context, sessionID, message string) (*Exchange, error)
	Transcripts(ctx context.Context, sessionID string) (*Transcripts, error)
}

// Exchange holds the entries one Send appended, per panel, in append order.
type Exchange struct {
	Diagnosis []Entry
	Assistant []Entry
}

type service struct {
	repo      Repository
	diagnoser Diagnoser
	assistant assistant.Assistant
	logger    *logrus.Logger
	sentryHub *sentry.Hub
}

var _ Service = (*service)(nil)

// NewService wires the chat service with its dependencies.
func NewService(repo Repository, diagnoser Diagnoser, responder assistant.Assistant, logger *logrus.Logger, hub *sentry.Hub) (Service, error) {
	if repo == nil {
		return nil, eris.New("chat repository is required")
	}
	if diagnoser == nil {
		return nil, eris.New("diagnoser is required")
	}
	if responder == nil {
		return nil, eris.New("assistant is required")
	}

	return &service{
		repo:      repo,
		diagnoser: diagnoser,
		assistant: responder,
		logger:    logger,
		sentryHub: hub,
	}, nil
}

// Send records the user's message in both panels, then queries the diagnosis
// endpoint and the assistant concurrently. Each reply lands in its own panel
// as soon as it arrives; a failure on one side becomes a failure entry in that
// panel only.
func (s *service) Send(ctx context.Context, sessionID, message string) (*Exchange, error) {
	trimmedSession := strings.TrimSpace(sessionID)
	if trimmedSession == "" {
		return nil, eris.New("session id is required")
	}

	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return nil, ErrEmptyMessage
	}

	userLines := []*Entry{
		{SessionID: trimmedSession, Panel: PanelDiagnosis, Kind: KindUser, Text: trimmed},
		{SessionID: trimmedSession, Panel: PanelAssistant, Kind: KindUser, Text: trimmed},
	}
	if err := s.repo.AppendBatch(ctx, userLines); err != nil {
		s.recordError(logrus.Fields{"session_id": trimmedSession}, err, "recording user message")
		return nil, eris.Wrap(err, "recording user message")
	}

	exchange := &Exchange{}
	for _, entry := range userLines {
		exchange.add(*entry)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		persist []error
	)

	reply := func(build func() Entry) {
		defer wg.Done()

		entry := build()
		entry.SessionID = trimmedSession

		// mu orders repository writes with the exchange.
		mu.Lock()
		defer mu.Unlock()

		if err := s.repo.Append(ctx, &entry); err != nil {
			s.recordError(logrus.Fields{"session_id": trimmedSession, "panel": entry.Panel}, err, "recording reply")
			persist = append(persist, err)
			return
		}
		exchange.add(entry)
	}

	wg.Add(2)
	go reply(func() Entry { return s.diagnosisEntry(ctx, trimmed) })
	go reply(func() Entry { return s.assistantEntry(ctx, trimmed) })
	wg.Wait()

	if len(persist) > 0 {
		return exchange, eris.Wrap(persist[0], "recording chat replies")
	}

	return exchange, nil
}

func (s *service) diagnosisEntry(ctx context.Context, message string) Entry {
	result, err := s.diagnoser.ChatDiagnose(ctx, message)
	if err != nil {
		s.recordError(logrus.Fields{"panel": PanelDiagnosis}, err, "chat diagnosis request failed")
		return Entry{Panel: PanelDiagnosis, Kind: KindFailure, Text: diagnosisFailureText}
	}

	switch result.Kind {
	case backend.ChatDiagnosisError:
		return Entry{Panel: PanelDiagnosis, Kind: KindError, Text: result.Error}
	case backend.ChatDiagnosisMessage:
		return Entry{Panel: PanelDiagnosis, Kind: KindMessage, Text: result.Message}
	default:
		matches := result.Matches
		if matches == nil {
			matches = []backend.ChatMatch{}
		}
		return Entry{Panel: PanelDiagnosis, Kind: KindMatches, Matches: matches}
	}
}

func (s *service) assistantEntry(ctx context.Context, message string) Entry {
	text, err := s.assistant.Reply(ctx, message)
	if err != nil {
		s.recordError(logrus.Fields{"panel": PanelAssistant}, err, "assistant request failed")
		return Entry{Panel: PanelAssistant, Kind: KindFailure, Text: assistantFailureText}
	}

	if strings.TrimSpace(text) == "" {
		text = backend.NoResponseText
	}

	return Entry{Panel: PanelAssistant, Kind: KindReply, Text: text}
}

// Transcripts loads both panels for the session.
func (s *service) Transcripts(ctx context.Context, sessionID string) (*Transcripts, error) {
	entries, err := s.repo.ListBySession(ctx, sessionID)
	if err != nil {
		s.recordError(logrus.Fields{"session_id": sessionID}, err, "loading transcripts")
		return nil, eris.Wrap(err, "loading transcripts")
	}

	transcripts := &Transcripts{}
	for _, entry := range entries {
		switch entry.Panel {
		case PanelDiagnosis:
			transcripts.Diagnosis = append(transcripts.Diagnosis, entry)
		case PanelAssistant:
			transcripts.Assistant = append(transcripts.Assistant, entry)
		}
	}

	return transcripts, nil
}

func (e *Exchange) add(entry Entry) {
	switch entry.Panel {
	case PanelDiagnosis:
		e.Diagnosis = append(e.Diagnosis, entry)
	case PanelAssistant:
		e.Assistant = append(e.Assistant, entry)
	}
}

func (s *service) recordError(fields logrus.Fields, err error, message string) {
	if err == nil {
		return
	}

	if s.logger != nil {
		entry := s.logger.WithField("error", err.Error())
		if len(fields) > 0 {
			entry = entry.WithFields(fields)
		}
		entry.Error(message)
	}

	if s.sentryHub != nil {
		s.sentryHub.CaptureException(err)
	}
}
