package assistant

import (
	"context"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"medfront/app/internal/backend"
)

// GeminiCompatBaseURL is Gemini's OpenAI-compatible API root.
const GeminiCompatBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

const (
	defaultSystemPrompt = "You are a medical assistant that provides disease diagnosis. " +
		"Given the user's symptoms, provide a possible diagnosis with reasoning. " +
		"Remind the user to consult a medical professional."
	defaultTemperature = 0.4
)

// OpenAIOptions configures the OpenAI-compatible assistant.
type OpenAIOptions struct {
	APIKey       string
	BaseURL      string
	Model        string
	Temperature  float64
	SystemPrompt string
	HTTPClient   *http.Client
	Logger       *logrus.Logger
}

type chatCompletionClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAI answers through a chat completion API speaking the OpenAI protocol.
type OpenAI struct {
	chat         chatCompletionClient
	logger       *logrus.Logger
	model        string
	temperature  float64
	systemPrompt string
	baseURL      string
}

var _ Assistant = (*OpenAI)(nil)

// NewOpenAI constructs an assistant backed by openai-go.
func NewOpenAI(opts OpenAIOptions) (*OpenAI, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, eris.New("assistant api key is required")
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		return nil, eris.New("assistant model is required")
	}

	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		baseURL = GeminiCompatBaseURL
	}

	requestOptions := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithBaseURL(baseURL),
	}
	if opts.HTTPClient != nil {
		requestOptions = append(requestOptions, option.WithHTTPClient(opts.HTTPClient))
	}

	apiClient := openai.NewClient(requestOptions...)

	return newOpenAI(&apiClient.Chat.Completions, opts, model, baseURL), nil
}

func newOpenAI(chat chatCompletionClient, opts OpenAIOptions, model, baseURL string) *OpenAI {
	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}

	systemPrompt := strings.TrimSpace(opts.SystemPrompt)
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	return &OpenAI{
		chat:         chat,
		logger:       opts.Logger,
		model:        model,
		temperature:  temperature,
		systemPrompt: systemPrompt,
		baseURL:      baseURL,
	}
}

// BaseURL returns the configured base URL for outbound requests.
func (a *OpenAI) BaseURL() string {
	return a.baseURL
}

// Reply sends the symptoms as a user message and returns the first choice's content.
func (a *OpenAI) Reply(ctx context.Context, message string) (string, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return "", eris.New("message is required")
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(a.systemPrompt),
			openai.UserMessage("User symptoms: " + trimmed),
		},
		Temperature: openai.Float(a.temperature),
	}

	completion, err := a.chat.New(ctx, params)
	if err != nil {
		a.logError(err, "requesting chat completion")
		return "", eris.Wrap(err, "requesting chat completion")
	}

	if len(completion.Choices) == 0 {
		err := eris.New("assistant completion returned no choices")
		a.logError(err, "processing chat completion")
		return "", err
	}

	choice := completion.Choices[0]
	if strings.EqualFold(strings.TrimSpace(choice.FinishReason), "content_filter") {
		err := eris.New("assistant blocked the request via content filter")
		a.logError(err, "assistant blocked")
		return "", err
	}

	if refusal := strings.TrimSpace(choice.Message.Refusal); refusal != "" {
		return refusal, nil
	}

	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		return backend.NoResponseText, nil
	}

	return content, nil
}

func (a *OpenAI) logError(err error, message string) {
	if a.logger == nil || err == nil {
		return
	}

	a.logger.WithFields(logrus.Fields{
		"error": err.Error(),
		"model": a.model,
	}).Error(message)
}
