package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shelfscan/backend/internal/domain"
)

// TwoStageExtractor reads a one-line summary from an image with a cheap
// vision model, then asks a text model to structure that line as JSON.
type TwoStageExtractor struct {
	reader     domain.TextReader
	structurer domain.TextStructurer
	prompts    domain.PromptProvider
	logger     *slog.Logger
}

// NewTwoStageExtractor composes a reader and a structurer into one extractor
func NewTwoStageExtractor(
	reader domain.TextReader,
	structurer domain.TextStructurer,
	prompts domain.PromptProvider,
	logger *slog.Logger,
) *TwoStageExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TwoStageExtractor{
		reader:     reader,
		structurer: structurer,
		prompts:    prompts,
		logger:     logger,
	}
}

// Extract runs both stages. When the second stage returns unusable text the
// stage-one line is passed on so the record still carries a name.
func (e *TwoStageExtractor) Extract(ctx context.Context, item domain.MediaItem, prompt string) (domain.RawResult, error) {
	line, err := e.reader.ReadText(ctx, item, prompt)
	if err != nil {
		return domain.RawResult{}, fmt.Errorf("read text: %w", err)
	}

	structurePrompt, err := e.prompts.Render(domain.PromptStructureText, map[string]any{"line": line})
	if err != nil {
		return domain.RawResult{}, domain.NewConfigurationError("render structure prompt", err)
	}

	raw, err := e.structurer.StructureText(ctx, line, structurePrompt)
	if err != nil {
		if domain.IsMalformedResponse(err) {
			e.logger.Warn("scan.structure.fallback",
				"filename", item.Filename,
				"line", line,
				"error", err,
			)
			return domain.RawResult{Line: line}, nil
		}
		return domain.RawResult{}, fmt.Errorf("structure text: %w", err)
	}

	raw.Line = line
	return raw, nil
}
