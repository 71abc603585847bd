package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"sentinel/internal/domain"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-3-flash-preview"
)

// Options configures the client. Zero values fall back to defaults.
type Options struct {
	BaseURL          string
	APIKey           string
	Model            string
	Timeout          time.Duration
	Retries          int
	RetryBase        time.Duration
	MaxResponseBytes int64
	HTTPClient       *http.Client
}

// Provider asks a Gemini model for a structured threat report.
type Provider struct {
	baseURL          string
	apiKey           string
	model            string
	retries          int
	retryBase        time.Duration
	maxResponseBytes int64
	client           *http.Client
}

func New(opts Options) *Provider {
	p := &Provider{
		baseURL:          strings.TrimRight(opts.BaseURL, "/"),
		apiKey:           opts.APIKey,
		model:            opts.Model,
		retries:          opts.Retries,
		retryBase:        opts.RetryBase,
		maxResponseBytes: opts.MaxResponseBytes,
		client:           opts.HTTPClient,
	}
	if p.baseURL == "" {
		p.baseURL = DefaultBaseURL
	}
	if p.model == "" {
		p.model = DefaultModel
	}
	if p.retries < 0 {
		p.retries = 0
	}
	if p.retryBase <= 0 {
		p.retryBase = 500 * time.Millisecond
	}
	if p.maxResponseBytes <= 0 {
		p.maxResponseBytes = 2 * 1024 * 1024
	}
	if p.client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		p.client = &http.Client{Timeout: timeout}
	}
	return p
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	Tools            []map[string]any `json:"tools,omitempty"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string         `json:"responseMimeType"`
	ResponseSchema   map[string]any `json:"responseSchema"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// statusError is a non-2xx reply from the API.
type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string { return fmt.Sprintf("gemini status %d: %s", e.code, e.msg) }

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// Analyze implements ports.AnalysisProvider. Transport errors, 429 and 5xx
// replies are retried with exponential backoff; a reply that does not decode
// into a ThreatAnalysis is returned as domain.ErrMalformedResponse.
func (p *Provider) Analyze(ctx context.Context, url string) (domain.ThreatAnalysis, error) {
	body, err := json.Marshal(p.buildRequest(url))
	if err != nil {
		return domain.ThreatAnalysis{}, fmt.Errorf("marshal gemini request: %w", err)
	}

	b := retry.NewExponential(p.retryBase)
	b = retry.WithCappedDuration(10*time.Second, b)
	b = retry.WithMaxRetries(uint64(p.retries), b)

	var out domain.ThreatAnalysis
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		text, err := p.generate(ctx, body)
		if err != nil {
			if retryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		a, err := domain.DecodeThreatAnalysis([]byte(stripFences(text)))
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return domain.ThreatAnalysis{}, err
	}
	out.URL = url
	return out, nil
}

func (p *Provider) buildRequest(url string) generateRequest {
	return generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt(url)}}}},
		Tools:    []map[string]any{{"googleSearch": map[string]any{}}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   responseSchema,
		},
	}
}

func (p *Provider) generate(ctx context.Context, body []byte) (string, error) {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, p.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call gemini: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, p.maxResponseBytes+1))
	if err != nil {
		return "", fmt.Errorf("read gemini response: %w", err)
	}
	if int64(len(respBody)) > p.maxResponseBytes {
		return "", &permanent{fmt.Errorf("%w: body exceeded %d bytes", domain.ErrMalformedResponse, p.maxResponseBytes)}
	}

	if resp.StatusCode >= 300 {
		var ae apiError
		msg := http.StatusText(resp.StatusCode)
		if err := json.Unmarshal(respBody, &ae); err == nil && ae.Error.Message != "" {
			msg = ae.Error.Message
		}
		return "", &statusError{code: resp.StatusCode, msg: msg}
	}

	var gr generateResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return "", &permanent{fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)}
	}
	if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
		return "", &permanent{fmt.Errorf("gemini blocked prompt: %s", gr.PromptFeedback.BlockReason)}
	}
	if len(gr.Candidates) == 0 {
		return "", &permanent{fmt.Errorf("%w: no candidates", domain.ErrMalformedResponse)}
	}
	var sb strings.Builder
	for _, pt := range gr.Candidates[0].Content.Parts {
		sb.WriteString(pt.Text)
	}
	return sb.String(), nil
}

// permanent marks a reply that retrying would only repeat.
type permanent struct{ err error }

func (e *permanent) Error() string { return e.err.Error() }
func (e *permanent) Unwrap() error { return e.err }

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.retryable()
	}
	var pe *permanent
	return !errors.As(err, &pe)
}

// stripFences removes a ```json fence some model versions wrap around the
// payload when tools are enabled.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
