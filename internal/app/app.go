// Package app wires configuration into a ready scan pipeline. Both the HTTP
// server and the batch CLI build their dependencies here.
package app

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/shelfscan/backend/config"
	"github.com/shelfscan/backend/internal/domain"
	"github.com/shelfscan/backend/internal/infrastructure/credential"
	"github.com/shelfscan/backend/internal/infrastructure/dashscope"
	"github.com/shelfscan/backend/internal/infrastructure/gemini"
	"github.com/shelfscan/backend/internal/infrastructure/ledger"
	"github.com/shelfscan/backend/internal/infrastructure/prompt"
	"github.com/shelfscan/backend/internal/usecase"
)

// Backend is a provider client able to serve every pipeline stage
type Backend interface {
	domain.Extractor
	domain.TextReader
	domain.TextStructurer
}

// App holds the wired pipeline
type App struct {
	Scanner *usecase.ScanService
	Ledger  *ledger.MemoryLedger
	Prompts *prompt.Provider
}

// NewLogger builds the process logger from log configuration
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Build creates the ledger, prompt provider, provider clients and scan
// service described by cfg
func Build(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	prompts, err := prompt.New()
	if err != nil {
		return nil, fmt.Errorf("load prompt templates: %w", err)
	}

	schema, err := usecase.NewSchemaChecker()
	if err != nil {
		return nil, fmt.Errorf("compile response schema: %w", err)
	}

	credentials := map[string]domain.CredentialProvider{
		config.ProviderGemini:    credential.ForProvider(cfg.Gemini.APIKey),
		config.ProviderDashScope: credential.ForProvider(cfg.DashScope.APIKey),
	}

	geminiClient := gemini.NewClient(gemini.Config{
		Model:             cfg.Gemini.Model,
		BaseURL:           cfg.Gemini.BaseURL,
		Backend:           cfg.Gemini.Backend,
		Project:           cfg.Gemini.Project,
		Location:          cfg.Gemini.Location,
		Temperature:       cfg.Gemini.Temperature,
		MaxOutputTokens:   cfg.Gemini.MaxOutputTokens,
		RequestsPerSecond: cfg.RateLimit.ProviderRPS,
		Burst:             cfg.RateLimit.ProviderBurst,
	}, credentials[config.ProviderGemini], logger)
	if !geminiClient.NeedsAPIKey() {
		credentials[config.ProviderGemini] = credential.Optional{Provider: credentials[config.ProviderGemini]}
	}

	backends := map[string]Backend{
		config.ProviderGemini: geminiClient,
		config.ProviderDashScope: dashscope.NewClient(dashscope.Config{
			BaseURL:           cfg.DashScope.BaseURL,
			VisionURL:         cfg.DashScope.VisionURL,
			VisionModel:       cfg.DashScope.VisionModel,
			TextModel:         cfg.DashScope.TextModel,
			RequestsPerSecond: cfg.RateLimit.ProviderRPS,
			Burst:             cfg.RateLimit.ProviderBurst,
		}, credentials[config.ProviderDashScope], logger),
	}

	routes, err := Routes(cfg.Pipeline, backends, credentials, prompts, logger)
	if err != nil {
		return nil, err
	}

	keys := map[string]string{
		config.ProviderGemini:    cfg.Gemini.APIKey,
		config.ProviderDashScope: cfg.DashScope.APIKey,
	}
	// Any credential at all lets a batch past the first check; each route
	// then checks its own backends.
	inUse := credential.Chain{}
	for _, name := range ProvidersInUse(cfg.Pipeline) {
		inUse = append(inUse, credentials[name])
		masked := MaskKey(keys[name])
		if name == config.ProviderGemini && !geminiClient.NeedsAPIKey() {
			masked = "google credentials"
		}
		logger.Info("provider.configured", "provider", name, "key", masked)
	}

	memoryLedger := ledger.NewMemoryLedger()
	scanner := usecase.NewScanService(memoryLedger, prompts, inUse, usecase.ScanServiceConfig{
		Routes: routes,
		Retry: usecase.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
			Jitter:      cfg.Retry.Jitter,
		},
		Schema: schema,
		Logger: logger,
	})

	logger.Info("pipeline.configured",
		"image_variant", cfg.Pipeline.ImageVariant,
		"image_provider", cfg.Pipeline.ImageProvider,
		"audio_provider", cfg.Pipeline.AudioProvider,
		"max_attempts", cfg.Retry.MaxAttempts,
	)

	return &App{
		Scanner: scanner,
		Ledger:  memoryLedger,
		Prompts: prompts,
	}, nil
}

// Routes selects the extractor, prompt and credential providers for each
// media kind
func Routes(
	pipeline config.PipelineConfig,
	backends map[string]Backend,
	credentials map[string]domain.CredentialProvider,
	prompts domain.PromptProvider,
	logger *slog.Logger,
) (map[domain.MediaKind]usecase.Route, error) {
	lookup := func(name string) (Backend, error) {
		backend, ok := backends[name]
		if !ok {
			return nil, fmt.Errorf("unknown provider %q", name)
		}
		return backend, nil
	}

	var image usecase.Route
	switch pipeline.ImageVariant {
	case config.VariantTwoStage:
		reader, err := lookup(pipeline.ReaderProvider)
		if err != nil {
			return nil, err
		}
		structurer, err := lookup(pipeline.StructurerProvider)
		if err != nil {
			return nil, err
		}
		image = usecase.Route{
			Extractor: usecase.NewTwoStageExtractor(reader, structurer, prompts, logger),
			Prompt:    domain.PromptImageDescribe,
			Credentials: []domain.CredentialProvider{
				credentials[pipeline.ReaderProvider],
				credentials[pipeline.StructurerProvider],
			},
		}
	default:
		extractor, err := lookup(pipeline.ImageProvider)
		if err != nil {
			return nil, err
		}
		image = usecase.Route{
			Extractor:   extractor,
			Prompt:      domain.PromptImageStructured,
			Credentials: []domain.CredentialProvider{credentials[pipeline.ImageProvider]},
		}
	}

	audio, err := lookup(pipeline.AudioProvider)
	if err != nil {
		return nil, err
	}

	return map[domain.MediaKind]usecase.Route{
		domain.MediaImage: image,
		domain.MediaAudio: {
			Extractor:   audio,
			Prompt:      domain.PromptAudioStructured,
			Credentials: []domain.CredentialProvider{credentials[pipeline.AudioProvider]},
		},
	}, nil
}

// ProvidersInUse lists the providers the pipeline calls, without duplicates
func ProvidersInUse(pipeline config.PipelineConfig) []string {
	names := []string{pipeline.AudioProvider}
	if pipeline.ImageVariant == config.VariantTwoStage {
		names = append(names, pipeline.ReaderProvider, pipeline.StructurerProvider)
	} else {
		names = append(names, pipeline.ImageProvider)
	}

	var unique []string
	seen := make(map[string]bool)
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		unique = append(unique, name)
	}
	return unique
}

// MaskKey shows only the first characters of a credential
func MaskKey(key string) string {
	switch {
	case key == "":
		return "NOT CONFIGURED"
	case len(key) <= 8:
		return "****"
	default:
		return key[:4] + "****"
	}
}
