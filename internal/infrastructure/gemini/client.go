package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/auth"
	"github.com/shelfscan/backend/internal/domain"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const providerName = "gemini"

// Backend names
const (
	BackendGemini = "gemini"
	BackendVertex = "vertex"
)

// Config holds Gemini client configuration
type Config struct {
	Model             string
	BaseURL           string // optional endpoint override
	Backend           string // "gemini" or "vertex"
	Project           string
	Location          string
	Credentials       *auth.Credentials // Vertex AI with a project; nil uses ADC
	Temperature       float32
	MaxOutputTokens   int32
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

// Client extracts product data with Gemini models through the genai SDK.
// SDK clients are created lazily per credential, since the key may be
// supplied per batch.
type Client struct {
	cfg         Config
	credentials domain.CredentialProvider
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      *slog.Logger

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewClient creates a new Gemini client
func NewClient(cfg Config, credentials domain.CredentialProvider, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendGemini
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		cfg:         cfg,
		credentials: credentials,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		rateLimiter: rate.NewLimiter(limit, max(cfg.Burst, 1)),
		logger:      logger.With("provider", providerName, "model", cfg.Model),
		clients:     make(map[string]*genai.Client),
	}
}

// Extract sends an image or audio payload with the prompt and expects a
// JSON object back
func (c *Client) Extract(ctx context.Context, item domain.MediaItem, prompt string) (domain.RawResult, error) {
	if err := validateItem(item); err != nil {
		return domain.RawResult{}, err
	}

	parts := []*genai.Part{
		genai.NewPartFromBytes(item.Payload, item.MIMEType),
		genai.NewPartFromText(prompt),
	}
	text, err := c.generate(ctx, parts, true)
	if err != nil {
		return domain.RawResult{}, err
	}
	return domain.ParseRawText(text)
}

// ReadText asks for a one-line product description of the media
func (c *Client) ReadText(ctx context.Context, item domain.MediaItem, prompt string) (string, error) {
	if err := validateItem(item); err != nil {
		return "", err
	}

	parts := []*genai.Part{
		genai.NewPartFromBytes(item.Payload, item.MIMEType),
		genai.NewPartFromText(prompt),
	}
	text, err := c.generate(ctx, parts, false)
	if err != nil {
		return "", err
	}

	line := strings.Trim(strings.TrimSpace(text), "\"'`")
	if line == "" {
		return "", &domain.MalformedResponseError{Reason: "empty description"}
	}
	return line, nil
}

// StructureText turns a product line into a JSON object
func (c *Client) StructureText(ctx context.Context, line, prompt string) (domain.RawResult, error) {
	if strings.TrimSpace(line) == "" {
		return domain.RawResult{}, domain.NewConfigurationError("structure text", domain.ErrEmptyPayload)
	}

	text, err := c.generate(ctx, []*genai.Part{genai.NewPartFromText(prompt)}, true)
	if err != nil {
		return domain.RawResult{}, err
	}
	return domain.ParseRawText(text)
}

// NeedsAPIKey reports whether calls authenticate with an API key. Vertex AI
// with a project authenticates through Google credentials instead.
func (c *Client) NeedsAPIKey() bool {
	return c.cfg.Backend != BackendVertex || c.cfg.Project == ""
}

// generate runs one GenerateContent call and returns the concatenated text
func (c *Client) generate(ctx context.Context, parts []*genai.Part, jsonMode bool) (string, error) {
	var key string
	if c.NeedsAPIKey() {
		var err error
		if key, err = c.credentials.Credential(ctx); err != nil {
			return "", err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	client, err := c.client(ctx, key)
	if err != nil {
		return "", err
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	config := &genai.GenerateContentConfig{}
	if jsonMode {
		config.ResponseMIMEType = "application/json"
	}
	if c.cfg.Temperature > 0 {
		temperature := c.cfg.Temperature
		config.Temperature = &temperature
	}
	if c.cfg.MaxOutputTokens > 0 {
		config.MaxOutputTokens = c.cfg.MaxOutputTokens
	}

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	start := time.Now()
	c.logger.Debug("gemini.generate.start", "parts", len(parts), "json", jsonMode)

	resp, err := client.Models.GenerateContent(ctx, c.cfg.Model, contents, config)
	if err != nil {
		mapped := mapError(err)
		c.logger.Warn("gemini.generate.error",
			"error", mapped,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", mapped
	}

	text, err := responseText(resp)
	if err != nil {
		return "", err
	}

	c.logger.Debug("gemini.generate.done",
		"chars", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

// client returns the cached SDK client for key, creating it on first use
func (c *Client) client(ctx context.Context, key string) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[key]; ok {
		return client, nil
	}

	cc := &genai.ClientConfig{
		HTTPClient: c.httpClient,
	}
	switch c.cfg.Backend {
	case BackendVertex:
		cc.Backend = genai.BackendVertexAI
		cc.Project = c.cfg.Project
		cc.Location = c.cfg.Location
		if c.cfg.Project == "" {
			// Vertex AI express mode authenticates with an API key
			cc.APIKey = key
		} else {
			// the SDK builds an authenticated transport only when HTTPClient is nil
			cc.HTTPClient = nil
			cc.Credentials = c.cfg.Credentials
		}
	default:
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = key
	}
	if c.cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: c.cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, domain.NewConfigurationError("create gemini client", err)
	}
	c.clients[key] = client
	return client, nil
}

// responseText joins the text parts of the first candidate
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", &domain.MalformedResponseError{Reason: "nil response"}
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", &domain.MalformedResponseError{Reason: fmt.Sprintf("prompt blocked: %s", resp.PromptFeedback.BlockReason)}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", &domain.MalformedResponseError{Reason: "no candidates"}
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", &domain.MalformedResponseError{Reason: "empty response"}
	}
	return text, nil
}

// mapError converts SDK API errors into provider errors so the retry
// controller can see the HTTP status
func mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &domain.ProviderError{Provider: providerName, Status: apiErr.Code, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &domain.ProviderError{Provider: providerName, Status: apiErrPtr.Code, Message: apiErrPtr.Message}
	}
	return fmt.Errorf("gemini request: %w", err)
}

func validateItem(item domain.MediaItem) error {
	if len(item.Payload) == 0 {
		return domain.NewConfigurationError("gemini request", domain.ErrEmptyPayload)
	}
	if !item.Kind.Supported() {
		return domain.NewConfigurationError(
			fmt.Sprintf("%s does not accept %s media", providerName, item.Kind), domain.ErrUnsupportedMedia)
	}
	return nil
}
