package dashscope

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shelfscan/backend/internal/domain"
	"golang.org/x/time/rate"
)

const (
	providerName = "dashscope"

	// maxResponseBytes caps how much of a response body is read
	maxResponseBytes = 4 << 20

	describeMaxTokens   = 300
	describeTemperature = 0.3
	extractMaxTokens    = 512
	extractTemperature  = 0.1
	structTemperature   = 0.1
	structMaxTokens     = 300

	structureSystemPrompt = "You convert retail product descriptions into strict JSON objects."
)

// Config holds DashScope client configuration
type Config struct {
	BaseURL           string // OpenAI-compatible endpoint root
	VisionURL         string // native multimodal generation endpoint
	VisionModel       string
	TextModel         string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

// Client talks to Alibaba DashScope (Qwen models)
type Client struct {
	httpClient  *http.Client
	credentials domain.CredentialProvider
	baseURL     string
	visionURL   string
	visionModel string
	textModel   string
	rateLimiter *rate.Limiter
	logger      *slog.Logger
}

// NewClient creates a new DashScope API client
func NewClient(cfg Config, credentials domain.CredentialProvider, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		credentials: credentials,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		visionURL:   cfg.VisionURL,
		visionModel: cfg.VisionModel,
		textModel:   cfg.TextModel,
		rateLimiter: rate.NewLimiter(limit, burst),
		logger:      logger.With("provider", providerName),
	}
}

// Native multimodal request body
type visionRequest struct {
	Model      string           `json:"model"`
	Input      visionInput      `json:"input"`
	Parameters visionParameters `json:"parameters"`
}

type visionInput struct {
	Messages []visionMessage `json:"messages"`
}

type visionMessage struct {
	Role    string              `json:"role"`
	Content []map[string]string `json:"content"`
}

type visionParameters struct {
	MaxTokens    int     `json:"max_tokens"`
	Temperature  float64 `json:"temperature"`
	ResultFormat string  `json:"result_format"`
}

// OpenAI-compatible chat completions request body
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// ReadText asks the vision model for a one-line description of an image
func (c *Client) ReadText(ctx context.Context, item domain.MediaItem, prompt string) (string, error) {
	content, err := c.vision(ctx, item, prompt, describeMaxTokens, describeTemperature)
	if err != nil {
		return "", err
	}

	line := stripQuotes(content)
	if line == "" {
		return "", &domain.MalformedResponseError{Reason: "empty description"}
	}
	return line, nil
}

// Extract asks the vision model for the product JSON directly
func (c *Client) Extract(ctx context.Context, item domain.MediaItem, prompt string) (domain.RawResult, error) {
	content, err := c.vision(ctx, item, prompt, extractMaxTokens, extractTemperature)
	if err != nil {
		return domain.RawResult{}, err
	}
	return domain.ParseRawText(content)
}

// StructureText asks the text model to turn a product line into JSON
func (c *Client) StructureText(ctx context.Context, line, prompt string) (domain.RawResult, error) {
	if strings.TrimSpace(line) == "" {
		return domain.RawResult{}, domain.NewConfigurationError("structure text", domain.ErrEmptyPayload)
	}

	body := chatRequest{
		Model: c.textModel,
		Messages: []chatMessage{
			{Role: "system", Content: structureSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:    structTemperature,
		MaxTokens:      structMaxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	respBody, err := c.doRequest(ctx, c.baseURL+"/chat/completions", c.textModel, body)
	if err != nil {
		return domain.RawResult{}, err
	}

	content, err := extractContent(respBody)
	if err != nil {
		return domain.RawResult{}, err
	}
	return domain.ParseRawText(content)
}

func (c *Client) vision(ctx context.Context, item domain.MediaItem, prompt string, maxTokens int, temperature float64) (string, error) {
	if len(item.Payload) == 0 {
		return "", domain.NewConfigurationError("vision request", domain.ErrEmptyPayload)
	}
	if item.Kind != domain.MediaImage {
		return "", domain.NewConfigurationError(
			fmt.Sprintf("%s does not accept %s media", providerName, item.Kind), domain.ErrUnsupportedMedia)
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", item.MIMEType, base64.StdEncoding.EncodeToString(item.Payload))
	body := visionRequest{
		Model: c.visionModel,
		Input: visionInput{
			Messages: []visionMessage{{
				Role: "user",
				Content: []map[string]string{
					{"image": dataURL},
					{"text": prompt},
				},
			}},
		},
		Parameters: visionParameters{
			MaxTokens:    maxTokens,
			Temperature:  temperature,
			ResultFormat: "message",
		},
	}

	respBody, err := c.doRequest(ctx, c.visionURL, c.visionModel, body)
	if err != nil {
		return "", err
	}
	return extractContent(respBody)
}

// doRequest executes an authenticated JSON POST and returns the 2xx body.
// Non-2xx responses become *domain.ProviderError.
func (c *Client) doRequest(ctx context.Context, url, model string, payload any) ([]byte, error) {
	key, err := c.credentials.Credential(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("User-Agent", "ShelfScan/1.0")
	req.Header.Set("X-Request-Id", requestID)

	start := time.Now()
	c.logger.Debug("dashscope.request", "request_id", requestID, "model", model, "bytes", len(data))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("dashscope.request.error", "request_id", requestID, "model", model, "error", err)
		return nil, fmt.Errorf("dashscope request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := errorMessage(resp.StatusCode, body)
		c.logger.Warn("dashscope.response.error",
			"request_id", requestID,
			"model", model,
			"status", resp.StatusCode,
			"message", message,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, &domain.ProviderError{
			Provider: providerName,
			Status:   resp.StatusCode,
			Message:  message,
		}
	}

	c.logger.Debug("dashscope.response",
		"request_id", requestID,
		"model", model,
		"status", resp.StatusCode,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return body, nil
}
