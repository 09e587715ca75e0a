package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

const (
	lookupPath    = "/lookup"
	diagnosisPath = "/diagnosis"
	geminiPath    = "/gemini"

	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 4 << 20
)

// ErrUnexpectedStatus is wrapped into errors for replies outside the accepted status range.
var ErrUnexpectedStatus = eris.New("unexpected backend status")

// ClientOptions controls how the backend client is initialised.
type ClientOptions struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logrus.Logger
}

// Client talks to the lookup, diagnosis and gemini endpoints of the medical backend.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *logrus.Logger
}

// NewClient constructs a Client rooted at opts.BaseURL.
func NewClient(opts ClientOptions) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, eris.New("backend base url is required")
	}

	baseURL, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, eris.Wrapf(err, "parsing backend base url: %s", raw)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, eris.Errorf("backend base url must be http or https: %s", raw)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{baseURL: baseURL, http: httpClient, logger: opts.Logger}, nil
}

// BaseURL returns the configured base URL for outbound requests.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Lookup posts the form fields as multipart form data to /lookup.
func (c *Client) Lookup(ctx context.Context, fields url.Values) ([]DiseaseLookupResult, error) {
	body, contentType, err := encodeMultipart(fields)
	if err != nil {
		return nil, eris.Wrap(err, "encoding lookup form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(lookupPath, nil), body)
	if err != nil {
		return nil, eris.Wrap(err, "building lookup request")
	}
	req.Header.Set("Content-Type", contentType)

	payload, status, err := c.do(req)
	if err != nil {
		return nil, eris.Wrap(err, "requesting lookup")
	}
	if !isSuccess(status) {
		return nil, eris.Wrapf(ErrUnexpectedStatus, "lookup returned %d", status)
	}

	var results []DiseaseLookupResult
	if err := json.Unmarshal(payload, &results); err != nil {
		c.logError(logrus.Fields{"path": lookupPath}, err, "decoding lookup response")
		return nil, eris.Wrap(err, "decoding lookup response")
	}

	return results, nil
}

// Diagnose sends the form fields as query parameters to GET /diagnosis.
func (c *Client) Diagnose(ctx context.Context, fields url.Values) ([]DiagnosisResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(diagnosisPath, fields), nil)
	if err != nil {
		return nil, eris.Wrap(err, "building diagnosis request")
	}

	payload, status, err := c.do(req)
	if err != nil {
		return nil, eris.Wrap(err, "requesting diagnosis")
	}
	if !isSuccess(status) {
		return nil, eris.Wrapf(ErrUnexpectedStatus, "diagnosis returned %d", status)
	}

	var results []DiagnosisResult
	if err := json.Unmarshal(payload, &results); err != nil {
		c.logError(logrus.Fields{"path": diagnosisPath}, err, "decoding diagnosis response")
		return nil, eris.Wrap(err, "decoding diagnosis response")
	}

	return results, nil
}

// ChatDiagnose queries GET /diagnosis?symptoms=<message>. The backend answers
// notices with 400 and 404, so bodies are decoded regardless of status.
func (c *Client) ChatDiagnose(ctx context.Context, symptoms string) (ChatDiagnosis, error) {
	query := url.Values{"symptoms": []string{symptoms}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(diagnosisPath, query), nil)
	if err != nil {
		return ChatDiagnosis{}, eris.Wrap(err, "building chat diagnosis request")
	}

	payload, status, err := c.do(req)
	if err != nil {
		return ChatDiagnosis{}, eris.Wrap(err, "requesting chat diagnosis")
	}
	if status >= http.StatusInternalServerError {
		return ChatDiagnosis{}, eris.Wrapf(ErrUnexpectedStatus, "chat diagnosis returned %d", status)
	}

	result, err := DecodeChatDiagnosis(payload)
	if err != nil {
		c.logError(logrus.Fields{"path": diagnosisPath, "status": status}, err, "decoding chat diagnosis response")
		if !isSuccess(status) {
			return ChatDiagnosis{}, eris.Wrapf(ErrUnexpectedStatus, "chat diagnosis returned %d", status)
		}
		return ChatDiagnosis{}, err
	}

	return result, nil
}

// Ask posts the message as JSON to /gemini.
func (c *Client) Ask(ctx context.Context, message string) (GeminiResponse, error) {
	encoded, err := json.Marshal(GeminiRequest{Message: message})
	if err != nil {
		return GeminiResponse{}, eris.Wrap(err, "encoding gemini request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(geminiPath, nil), bytes.NewReader(encoded))
	if err != nil {
		return GeminiResponse{}, eris.Wrap(err, "building gemini request")
	}
	req.Header.Set("Content-Type", "application/json")

	payload, status, err := c.do(req)
	if err != nil {
		return GeminiResponse{}, eris.Wrap(err, "requesting gemini")
	}
	if !isSuccess(status) {
		return GeminiResponse{}, eris.Wrapf(ErrUnexpectedStatus, "gemini returned %d", status)
	}

	var response GeminiResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		c.logError(logrus.Fields{"path": geminiPath}, err, "decoding gemini response")
		return GeminiResponse{}, eris.Wrap(err, "decoding gemini response")
	}

	return response, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	target := *c.baseURL
	target.Path = strings.TrimRight(target.Path, "/") + path
	target.RawQuery = ""
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}
	return target.String()
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logError(logrus.Fields{"method": req.Method, "path": req.URL.Path}, err, "backend request failed")
		return nil, 0, eris.Wrap(err, "sending request")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, eris.Wrap(err, "reading response body")
	}

	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{
			"method":      req.Method,
			"path":        req.URL.Path,
			"status":      resp.StatusCode,
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000,
		}).Debug("backend request completed")
	}

	return payload, resp.StatusCode, nil
}

func (c *Client) logError(fields logrus.Fields, err error, message string) {
	if c.logger == nil || err == nil {
		return
	}

	entry := c.logger.WithField("error", err.Error())
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Error(message)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func encodeMultipart(fields url.Values) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		for _, value := range fields[key] {
			if err := writer.WriteField(key, value); err != nil {
				return nil, "", eris.Wrapf(err, "writing form field %s", key)
			}
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", eris.Wrap(err, "closing multipart writer")
	}

	return &buf, writer.FormDataContentType(), nil
}
