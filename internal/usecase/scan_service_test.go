package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shelfscan/backend/internal/domain"
)

// MockLedger is a mock implementation of domain.LedgerRepository
type MockLedger struct {
	mu      sync.Mutex
	records []domain.Record
}

func (m *MockLedger) Append(record domain.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
}

func (m *MockLedger) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *MockLedger) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
}

func (m *MockLedger) Records() []domain.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Record(nil), m.records...)
}

func (m *MockLedger) ToCSV() string { return "" }

// MockPromptProvider is a mock implementation of domain.PromptProvider
type MockPromptProvider struct {
	err error
}

func NewMockPromptProvider() *MockPromptProvider {
	return &MockPromptProvider{}
}

func (m *MockPromptProvider) Render(tag string, vars map[string]any) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if line, ok := vars["line"]; ok {
		return fmt.Sprintf("%s|%v", tag, line), nil
	}
	return tag, nil
}

// MockCredentials resolves the request credential first, then a fixed key
type MockCredentials struct {
	key string
}

func (m *MockCredentials) Credential(ctx context.Context) (string, error) {
	if key, ok := domain.CredentialFromContext(ctx); ok {
		return key, nil
	}
	if m.key != "" {
		return m.key, nil
	}
	return "", domain.NewConfigurationError("no key", domain.ErrMissingCredential)
}

type extractResponse struct {
	raw domain.RawResult
	err error
}

// MockExtractor replays scripted responses per filename; the last response
// repeats once the script runs out
type MockExtractor struct {
	mu          sync.Mutex
	responses   map[string][]extractResponse
	calls       []string
	credentials []string
	prompts     []string
	cancelled   bool

	started chan struct{}
	release chan struct{}
}

func NewMockExtractor() *MockExtractor {
	return &MockExtractor{responses: make(map[string][]extractResponse)}
}

func (m *MockExtractor) script(filename string, responses ...extractResponse) {
	m.responses[filename] = responses
}

func (m *MockExtractor) Extract(ctx context.Context, item domain.MediaItem, prompt string) (domain.RawResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, item.Filename)
	key, _ := domain.CredentialFromContext(ctx)
	m.credentials = append(m.credentials, key)
	m.prompts = append(m.prompts, prompt)
	if ctx.Err() != nil {
		m.cancelled = true
	}
	started, release := m.started, m.release
	m.started = nil
	m.mu.Unlock()

	if started != nil {
		close(started)
		<-release
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	script := m.responses[item.Filename]
	if len(script) == 0 {
		return domain.RawResult{Object: map[string]any{"name": item.Filename, "category": "Other"}}, nil
	}
	next := script[0]
	if len(script) > 1 {
		m.responses[item.Filename] = script[1:]
	}
	return next.raw, next.err
}

func product(name string, price float64) extractResponse {
	return extractResponse{raw: domain.RawResult{Object: map[string]any{
		"name":     name,
		"price":    price,
		"category": "Food",
	}}}
}

func imageItems(names ...string) []domain.MediaItem {
	items := make([]domain.MediaItem, 0, len(names))
	for _, name := range names {
		items = append(items, domain.MediaItem{
			Filename: name,
			Kind:     domain.MediaImage,
			MIMEType: "image/jpeg",
			Payload:  []byte{0xff, 0xd8},
		})
	}
	return items
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestScanService(ledger *MockLedger, extractor domain.Extractor, creds *MockCredentials) *ScanService {
	return NewScanService(ledger, NewMockPromptProvider(), creds, ScanServiceConfig{
		Routes: map[domain.MediaKind]Route{
			domain.MediaImage: {Extractor: extractor, Prompt: domain.PromptImageStructured},
		},
		Retry: RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Sleep: noSleep},
	})
}

type eventLog struct {
	mu     sync.Mutex
	events []domain.ProgressEvent
}

func (l *eventLog) record(event domain.ProgressEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	types := make([]string, 0, len(l.events))
	for _, e := range l.events {
		types = append(types, e.Type+":"+e.Filename)
	}
	return types
}

func TestScanService_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("preserves submission order across retries", func(t *testing.T) {
		ledger := &MockLedger{}
		extractor := NewMockExtractor()
		extractor.script("a.jpg", product("Alpha", 1000))
		extractor.script("b.jpg", extractResponse{err: rateLimitErr()}, product("Bravo", 2000))
		extractor.script("c.jpg", product("Charlie", 3000))
		svc := newTestScanService(ledger, extractor, &MockCredentials{key: "k"})
		events := &eventLog{}

		result, err := svc.Run(ctx, domain.Batch{Items: imageItems("a.jpg", "b.jpg", "c.jpg")}, events.record)

		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		records := ledger.Records()
		if len(records) != 3 {
			t.Fatalf("ledger has %d records, want 3", len(records))
		}
		for i, want := range []string{"Alpha", "Bravo", "Charlie"} {
			if records[i].Name != want {
				t.Errorf("records[%d].Name = %q, want %q", i, records[i].Name, want)
			}
			if records[i].Category != domain.CategoryFood {
				t.Errorf("records[%d].Category = %q, want Food & Beverage", i, records[i].Category)
			}
		}
		if *records[1].Price != 2000 {
			t.Errorf("records[1].Price = %d, want 2000", *records[1].Price)
		}

		if got := strings.Join(extractor.calls, ","); got != "a.jpg,b.jpg,b.jpg,c.jpg" {
			t.Errorf("extract calls = %s", got)
		}

		wantEvents := []string{
			domain.EventItemProcessed + ":a.jpg",
			domain.EventItemRetrying + ":b.jpg",
			domain.EventItemProcessed + ":b.jpg",
			domain.EventItemProcessed + ":c.jpg",
			domain.EventBatchCompleted + ":",
		}
		if got := events.types(); strings.Join(got, " ") != strings.Join(wantEvents, " ") {
			t.Errorf("events = %v, want %v", got, wantEvents)
		}

		retry := events.events[1]
		if retry.Attempt != 1 || retry.Delay != time.Second || retry.Index != 1 || retry.Total != 3 {
			t.Errorf("retry event = %+v", retry)
		}
		last := events.events[len(events.events)-1]
		if last.Percent != 100 || last.BatchID != result.BatchID {
			t.Errorf("completed event = %+v", last)
		}

		if result.Attempted != 3 || result.Succeeded != 3 || result.Failed != 0 || result.LedgerCount != 3 {
			t.Errorf("result = %+v", result)
		}
		if result.BatchID == "" {
			t.Error("result.BatchID is empty")
		}
	})

	t.Run("failed items become placeholders without aborting", func(t *testing.T) {
		ledger := &MockLedger{}
		extractor := NewMockExtractor()
		extractor.script("a.jpg", extractResponse{err: rateLimitErr()})
		extractor.script("b.jpg", extractResponse{raw: domain.RawResult{Text: "I cannot see a product."}})
		extractor.script("c.jpg", extractResponse{err: errors.New("connection reset")})
		extractor.script("d.jpg", product("Delta", 500))
		svc := newTestScanService(ledger, extractor, &MockCredentials{key: "k"})
		events := &eventLog{}

		result, err := svc.Run(ctx, domain.Batch{Items: imageItems("a.jpg", "b.jpg", "c.jpg", "d.jpg")}, events.record)

		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		records := ledger.Records()
		if len(records) != 4 {
			t.Fatalf("ledger has %d records, want 4", len(records))
		}
		for i := 0; i < 3; i++ {
			if !records[i].IsError || records[i].Name != domain.ImageErrorName {
				t.Errorf("records[%d] = %+v, want image placeholder", i, records[i])
			}
		}
		if records[3].Name != "Delta" || records[3].IsError {
			t.Errorf("records[3] = %+v, want Delta", records[3])
		}

		attemptsA := 0
		for _, call := range extractor.calls {
			if call == "a.jpg" {
				attemptsA++
			}
		}
		if attemptsA != 5 {
			t.Errorf("a.jpg attempted %d times, want 5", attemptsA)
		}

		var failed []domain.ProgressEvent
		for _, e := range events.events {
			if e.Type == domain.EventItemFailed {
				failed = append(failed, e)
			}
		}
		if len(failed) != 3 {
			t.Fatalf("failed events = %d, want 3", len(failed))
		}
		if !strings.Contains(failed[0].Error, domain.ErrRetriesExhausted.Error()) {
			t.Errorf("failed[0].Error = %q, want retries exhausted", failed[0].Error)
		}
		for _, e := range failed {
			if e.Error == "" || e.Record == nil || !e.Record.IsError {
				t.Errorf("failed event = %+v, want error text and placeholder record", e)
			}
		}

		if result.Succeeded != 1 || result.Failed != 3 || result.Attempted != 4 {
			t.Errorf("result = %+v", result)
		}
	})

	t.Run("missing credential fails before any item", func(t *testing.T) {
		ledger := &MockLedger{}
		extractor := NewMockExtractor()
		svc := newTestScanService(ledger, extractor, &MockCredentials{})

		_, err := svc.Run(ctx, domain.Batch{Items: imageItems("a.jpg"), Credential: ` "" `}, nil)

		if !domain.IsConfigurationError(err) {
			t.Errorf("error = %v, want ConfigurationError", err)
		}
		if len(extractor.calls) != 0 {
			t.Errorf("extract calls = %v, want none", extractor.calls)
		}
		if ledger.Count() != 0 {
			t.Errorf("ledger count = %d, want 0", ledger.Count())
		}
	})

	t.Run("batch credential is sanitized and overrides the configured key", func(t *testing.T) {
		extractor := NewMockExtractor()
		svc := newTestScanService(&MockLedger{}, extractor, &MockCredentials{key: "configured"})

		_, err := svc.Run(ctx, domain.Batch{Items: imageItems("a.jpg"), Credential: "  'sk-request'\n"}, nil)

		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(extractor.credentials) != 1 || extractor.credentials[0] != "sk-request" {
			t.Errorf("credentials seen = %q, want [sk-request]", extractor.credentials)
		}
		if extractor.prompts[0] != domain.PromptImageStructured {
			t.Errorf("prompt = %q, want %q", extractor.prompts[0], domain.PromptImageStructured)
		}
	})

	t.Run("batch without supported media is a no-op", func(t *testing.T) {
		ledger := &MockLedger{}
		ledger.Append(domain.Record{Name: "existing"})
		extractor := NewMockExtractor()
		svc := newTestScanService(ledger, extractor, &MockCredentials{key: "k"})
		events := &eventLog{}

		items := []domain.MediaItem{{Filename: "notes.txt", Kind: domain.MediaUnknown, Payload: []byte("hi")}}
		result, err := svc.Run(ctx, domain.Batch{Items: items}, events.record)

		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if result.Attempted != 0 || result.LedgerCount != 1 || result.BatchID != "" {
			t.Errorf("result = %+v, want empty result with ledger count 1", result)
		}
		if len(events.events) != 0 || len(extractor.calls) != 0 {
			t.Errorf("events = %v, calls = %v, want none", events.events, extractor.calls)
		}
	})

	t.Run("kind without a route gets a placeholder", func(t *testing.T) {
		ledger := &MockLedger{}
		extractor := NewMockExtractor()
		svc := newTestScanService(ledger, extractor, &MockCredentials{key: "k"})

		items := append(imageItems("a.jpg"), domain.MediaItem{
			Filename: "memo.mp3",
			Kind:     domain.MediaAudio,
			MIMEType: "audio/mpeg",
			Payload:  []byte{1},
		})
		result, err := svc.Run(ctx, domain.Batch{Items: items}, nil)

		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		records := ledger.Records()
		if len(records) != 2 || records[1].Name != domain.AudioErrorName || !records[1].IsError {
			t.Errorf("records = %+v, want audio placeholder second", records)
		}
		if result.Failed != 1 || result.Succeeded != 1 {
			t.Errorf("result = %+v", result)
		}
	})

	t.Run("cancelled caller does not stop the batch", func(t *testing.T) {
		ledger := &MockLedger{}
		extractor := NewMockExtractor()
		svc := newTestScanService(ledger, extractor, &MockCredentials{key: "k"})

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		result, err := svc.Run(cancelled, domain.Batch{Items: imageItems("a.jpg", "b.jpg")}, nil)

		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if extractor.cancelled {
			t.Error("extractor saw a cancelled context")
		}
		if result.Succeeded != 2 || ledger.Count() != 2 {
			t.Errorf("result = %+v, ledger count = %d", result, ledger.Count())
		}
	})
}

func TestScanService_SingleBatchGate(t *testing.T) {
	ctx := context.Background()
	ledger := &MockLedger{}
	extractor := NewMockExtractor()
	extractor.started = make(chan struct{})
	extractor.release = make(chan struct{})
	started := extractor.started
	svc := newTestScanService(ledger, extractor, &MockCredentials{key: "k"})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(ctx, domain.Batch{Items: imageItems("first.jpg")}, nil)
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first batch never started")
	}

	_, err := svc.Run(ctx, domain.Batch{Items: imageItems("second.jpg")}, nil)
	if !IsBatchInProgress(err) {
		t.Errorf("second Run() error = %v, want ErrBatchInProgress", err)
	}
	if err := svc.ClearLedger(); !errors.Is(err, domain.ErrBatchInProgress) {
		t.Errorf("ClearLedger() error = %v, want ErrBatchInProgress", err)
	}

	close(extractor.release)
	if err := <-done; err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	records := ledger.Records()
	if len(records) != 1 || records[0].Name != "first.jpg" {
		t.Errorf("records = %+v, want only the first batch", records)
	}

	// The gate reopens once the batch completes
	if _, err := svc.Run(ctx, domain.Batch{Items: imageItems("third.jpg")}, nil); err != nil {
		t.Errorf("Run() after completion error = %v", err)
	}
}

func TestScanService_RouteCredentials(t *testing.T) {
	ctx := context.Background()

	newService := func(ledger *MockLedger, extractor *MockExtractor) *ScanService {
		return NewScanService(ledger, NewMockPromptProvider(), &MockCredentials{key: "structurer-key"}, ScanServiceConfig{
			Routes: map[domain.MediaKind]Route{
				domain.MediaImage: {
					Extractor: extractor,
					Prompt:    domain.PromptImageDescribe,
					// reader has no key, structurer has one
					Credentials: []domain.CredentialProvider{&MockCredentials{}, &MockCredentials{key: "structurer-key"}},
				},
				domain.MediaAudio: {
					Extractor:   extractor,
					Prompt:      domain.PromptAudioStructured,
					Credentials: []domain.CredentialProvider{&MockCredentials{key: "audio-key"}},
				},
			},
			Retry: RetryPolicy{MaxAttempts: 1, Sleep: noSleep},
		})
	}

	t.Run("any backend of a used route without a key rejects the batch", func(t *testing.T) {
		ledger := &MockLedger{}
		extractor := NewMockExtractor()
		svc := newService(ledger, extractor)

		_, err := svc.Run(ctx, domain.Batch{Items: imageItems("a.jpg", "b.jpg", "c.jpg")}, nil)

		if !domain.IsConfigurationError(err) {
			t.Fatalf("Run() error = %v, want ConfigurationError", err)
		}
		if !errors.Is(err, domain.ErrMissingCredential) {
			t.Errorf("Run() error = %v, want ErrMissingCredential", err)
		}
		if len(extractor.calls) != 0 {
			t.Errorf("extractor calls = %v, want none", extractor.calls)
		}
		if ledger.Count() != 0 {
			t.Errorf("ledger count = %d, want 0", ledger.Count())
		}
	})

	t.Run("request credential covers every backend", func(t *testing.T) {
		ledger := &MockLedger{}
		svc := newService(ledger, NewMockExtractor())

		_, err := svc.Run(ctx, domain.Batch{Items: imageItems("a.jpg"), Credential: "sk-request"}, nil)

		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if ledger.Count() != 1 {
			t.Errorf("ledger count = %d, want 1", ledger.Count())
		}
	})

	t.Run("routes for absent media kinds are not checked", func(t *testing.T) {
		svc := newService(&MockLedger{}, NewMockExtractor())
		audio := []domain.MediaItem{{Filename: "a.mp3", Kind: domain.MediaAudio, MIMEType: "audio/mpeg", Payload: []byte{1}}}

		if err := svc.CheckCredentials(ctx, audio); err != nil {
			t.Errorf("CheckCredentials() error = %v, want nil", err)
		}
	})
}

func TestScanService_GateOpenOnCompletion(t *testing.T) {
	ledger := &MockLedger{}
	svc := newTestScanService(ledger, NewMockExtractor(), &MockCredentials{key: "k"})

	var clearErr error
	completed := false
	_, err := svc.Run(context.Background(), domain.Batch{Items: imageItems("a.jpg")}, func(event domain.ProgressEvent) {
		if event.Type == domain.EventBatchCompleted {
			completed = true
			clearErr = svc.ClearLedger()
		}
	})

	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !completed {
		t.Fatal("batch.completed was not emitted")
	}
	if clearErr != nil {
		t.Errorf("ClearLedger() on completion error = %v, want nil", clearErr)
	}
}

func TestScanService_ClearLedger(t *testing.T) {
	ledger := &MockLedger{}
	ledger.Append(domain.Record{Name: "a"})
	ledger.Append(domain.Record{Name: "b"})
	svc := newTestScanService(ledger, NewMockExtractor(), &MockCredentials{key: "k"})

	if err := svc.ClearLedger(); err != nil {
		t.Fatalf("ClearLedger() error = %v", err)
	}
	if ledger.Count() != 0 {
		t.Errorf("ledger count = %d, want 0", ledger.Count())
	}
	if svc.Ledger() != ledger {
		t.Error("Ledger() does not return the injected ledger")
	}
}

func TestFilterSupported(t *testing.T) {
	items := []domain.MediaItem{
		{Filename: "a.jpg", Kind: domain.MediaImage},
		{Filename: "b.pdf", Kind: domain.MediaUnknown},
		{Filename: "c.mp3", Kind: domain.MediaAudio},
	}

	got := FilterSupported(items)

	if len(got) != 2 || got[0].Filename != "a.jpg" || got[1].Filename != "c.mp3" {
		t.Errorf("FilterSupported() = %+v", got)
	}
}
