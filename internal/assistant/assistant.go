package assistant

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"medfront/app/internal/backend"
)

// Assistant produces the free-text reply shown in the assistant transcript panel.
type Assistant interface {
	Reply(ctx context.Context, message string) (string, error)
}

// Asker is the subset of the backend client used by the Backend assistant.
type Asker interface {
	Ask(ctx context.Context, message string) (backend.GeminiResponse, error)
}

// Backend forwards messages to the backend's /gemini endpoint.
type Backend struct {
	asker Asker
}

var _ Assistant = (*Backend)(nil)

// NewBackend wraps the backend client.
func NewBackend(asker Asker) (*Backend, error) {
	if asker == nil {
		return nil, eris.New("backend asker is required")
	}
	return &Backend{asker: asker}, nil
}

// Reply returns the backend's response text, or backend.NoResponseText when it sent none.
func (b *Backend) Reply(ctx context.Context, message string) (string, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return "", eris.New("message is required")
	}

	response, err := b.asker.Ask(ctx, trimmed)
	if err != nil {
		return "", eris.Wrap(err, "asking backend assistant")
	}

	return response.Text(), nil
}
