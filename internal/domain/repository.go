package domain

import "context"

// Extractor turns one media item into a raw extraction result
type Extractor interface {
	Extract(ctx context.Context, item MediaItem, prompt string) (RawResult, error)
}

// TextReader reads a one-line text summary out of a media item
type TextReader interface {
	ReadText(ctx context.Context, item MediaItem, prompt string) (string, error)
}

// TextStructurer restructures a free-text product line into JSON
type TextStructurer interface {
	StructureText(ctx context.Context, line, prompt string) (RawResult, error)
}

// PromptProvider renders named prompt templates
type PromptProvider interface {
	Render(tag string, vars map[string]any) (string, error)
}

// CredentialProvider resolves the API credential for an outbound call
type CredentialProvider interface {
	Credential(ctx context.Context) (string, error)
}

// LedgerRepository is the append-only ordered record store
type LedgerRepository interface {
	Append(record Record)
	Count() int
	Clear()
	Records() []Record
	ToCSV() string
}
