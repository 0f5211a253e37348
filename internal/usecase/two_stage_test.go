package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shelfscan/backend/internal/domain"
)

// MockTextReader is a mock implementation of domain.TextReader
type MockTextReader struct {
	line   string
	err    error
	prompt string
}

func (m *MockTextReader) ReadText(ctx context.Context, item domain.MediaItem, prompt string) (string, error) {
	m.prompt = prompt
	return m.line, m.err
}

// MockTextStructurer is a mock implementation of domain.TextStructurer
type MockTextStructurer struct {
	result domain.RawResult
	err    error
	called bool
	line   string
	prompt string
}

func (m *MockTextStructurer) StructureText(ctx context.Context, line, prompt string) (domain.RawResult, error) {
	m.called = true
	m.line = line
	m.prompt = prompt
	return m.result, m.err
}

func TestTwoStageExtractor_Extract(t *testing.T) {
	ctx := context.Background()
	item := domain.MediaItem{Filename: "a.jpg", Kind: domain.MediaImage, Payload: []byte{1}}

	t.Run("passes the line to the structurer", func(t *testing.T) {
		reader := &MockTextReader{line: "Aqua 600ml Rp 3.500"}
		structurer := &MockTextStructurer{result: domain.RawResult{Object: map[string]any{"name": "Aqua"}}}
		extractor := NewTwoStageExtractor(reader, structurer, NewMockPromptProvider(), nil)

		raw, err := extractor.Extract(ctx, item, "describe")

		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if reader.prompt != "describe" {
			t.Errorf("reader prompt = %q, want describe", reader.prompt)
		}
		if structurer.line != "Aqua 600ml Rp 3.500" {
			t.Errorf("structurer line = %q", structurer.line)
		}
		if structurer.prompt != "structure_text|Aqua 600ml Rp 3.500" {
			t.Errorf("structurer prompt = %q", structurer.prompt)
		}
		if raw.Line != "Aqua 600ml Rp 3.500" {
			t.Errorf("raw.Line = %q, want the stage-one line", raw.Line)
		}
		if raw.Object["name"] != "Aqua" {
			t.Errorf("raw.Object = %v", raw.Object)
		}
	})

	t.Run("malformed structure falls back to the line", func(t *testing.T) {
		reader := &MockTextReader{line: "Clear Shampoo 170ml"}
		structurer := &MockTextStructurer{err: &domain.MalformedResponseError{Reason: "no JSON"}}
		extractor := NewTwoStageExtractor(reader, structurer, NewMockPromptProvider(), nil)

		raw, err := extractor.Extract(ctx, item, "describe")

		if err != nil {
			t.Fatalf("Extract() error = %v, want nil", err)
		}
		if raw.Object != nil || raw.Line != "Clear Shampoo 170ml" {
			t.Errorf("raw = %+v, want line-only result", raw)
		}
	})

	t.Run("rate limit in stage two stays retryable", func(t *testing.T) {
		reader := &MockTextReader{line: "line"}
		structurer := &MockTextStructurer{err: rateLimitErr()}
		extractor := NewTwoStageExtractor(reader, structurer, NewMockPromptProvider(), nil)

		_, err := extractor.Extract(ctx, item, "describe")

		if !IsRateLimited(err) {
			t.Errorf("error = %v, want rate limited", err)
		}
	})

	t.Run("reader failure skips stage two", func(t *testing.T) {
		readErr := errors.New("vision down")
		reader := &MockTextReader{err: readErr}
		structurer := &MockTextStructurer{}
		extractor := NewTwoStageExtractor(reader, structurer, NewMockPromptProvider(), nil)

		_, err := extractor.Extract(ctx, item, "describe")

		if !errors.Is(err, readErr) {
			t.Errorf("error = %v, want %v", err, readErr)
		}
		if structurer.called {
			t.Error("structurer called after reader failure")
		}
	})

	t.Run("prompt failure is a configuration error", func(t *testing.T) {
		prompts := NewMockPromptProvider()
		prompts.err = fmt.Errorf("template missing")
		extractor := NewTwoStageExtractor(&MockTextReader{line: "line"}, &MockTextStructurer{}, prompts, nil)

		_, err := extractor.Extract(ctx, item, "describe")

		if !domain.IsConfigurationError(err) {
			t.Errorf("error = %v, want ConfigurationError", err)
		}
	})
}
