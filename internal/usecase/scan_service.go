package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shelfscan/backend/internal/domain"
	"golang.org/x/sync/semaphore"
)

// Route binds a media kind to the extractor and prompt template that serve it.
// Credentials lists one provider per backend the extractor calls; each must
// resolve before a batch containing that media kind starts.
type Route struct {
	Extractor   domain.Extractor
	Prompt      string
	Credentials []domain.CredentialProvider
}

// ScanServiceConfig holds configuration for the scan service
type ScanServiceConfig struct {
	Routes map[domain.MediaKind]Route
	Retry  RetryPolicy
	Schema *SchemaChecker // optional
	Logger *slog.Logger
}

// ProgressFunc receives progress events while a batch runs
type ProgressFunc func(domain.ProgressEvent)

// ScanService drives batches of media items through extraction, retry and
// normalization, appending one record per attempted item to the ledger.
// Only one batch runs at a time.
type ScanService struct {
	ledger      domain.LedgerRepository
	prompts     domain.PromptProvider
	credentials domain.CredentialProvider
	routes      map[domain.MediaKind]Route
	retry       RetryPolicy
	schema      *SchemaChecker
	gate        *semaphore.Weighted
	logger      *slog.Logger
}

// NewScanService creates a new scan service with dependencies
func NewScanService(
	ledger domain.LedgerRepository,
	prompts domain.PromptProvider,
	credentials domain.CredentialProvider,
	config ScanServiceConfig,
) *ScanService {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	retry := config.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy()
	}

	return &ScanService{
		ledger:      ledger,
		prompts:     prompts,
		credentials: credentials,
		routes:      config.Routes,
		retry:       retry,
		schema:      config.Schema,
		gate:        semaphore.NewWeighted(1),
		logger:      logger,
	}
}

// Run processes a batch sequentially in submission order.
// Flow: filter media -> check credentials -> acquire gate -> per item:
// extract with retry -> normalize -> append -> report progress.
//
// A missing credential fails before any item is attempted. Per-item
// failures become placeholder records and never abort the batch. Once
// started, a batch runs to completion even if ctx is cancelled.
func (s *ScanService) Run(ctx context.Context, batch domain.Batch, progress ProgressFunc) (*domain.BatchResult, error) {
	if credential := domain.SanitizeCredential(batch.Credential); credential != "" {
		ctx = domain.WithCredential(ctx, credential)
	}

	items := FilterSupported(batch.Items)
	if len(items) == 0 {
		return &domain.BatchResult{LedgerCount: s.ledger.Count()}, nil
	}

	if err := s.CheckCredentials(ctx, items); err != nil {
		return nil, err
	}

	if !s.gate.TryAcquire(1) {
		return nil, domain.ErrBatchInProgress
	}
	released := false
	release := func() {
		if !released {
			released = true
			s.gate.Release(1)
		}
	}
	defer release()

	ctx = context.WithoutCancel(ctx)
	batchID := uuid.NewString()
	total := len(items)
	start := time.Now()

	emit := func(event domain.ProgressEvent) {
		if progress == nil {
			return
		}
		event.BatchID = batchID
		event.Total = total
		progress(event)
	}

	s.logger.Info("scan.batch.start", "batch_id", batchID, "items", total)

	result := &domain.BatchResult{BatchID: batchID, Attempted: total}
	for i, item := range items {
		record, err := s.processItem(ctx, batchID, i, total, item, emit)

		// Appending before reporting keeps ledger order equal to submission order
		s.ledger.Append(record)

		event := domain.ProgressEvent{
			Type:     domain.EventItemProcessed,
			Index:    i,
			Filename: item.Filename,
			Record:   &record,
			Percent:  percent(i+1, total),
		}
		if err != nil || record.IsError {
			result.Failed++
			event.Type = domain.EventItemFailed
			if err == nil {
				err = &domain.MalformedResponseError{Reason: "no JSON object in model response"}
			}
			event.Error = err.Error()
			s.logger.Warn("scan.item.failed",
				"batch_id", batchID,
				"index", i,
				"filename", item.Filename,
				"error", err,
			)
		} else {
			result.Succeeded++
			s.logger.Info("scan.item.processed",
				"batch_id", batchID,
				"index", i,
				"filename", item.Filename,
				"name", record.Name,
			)
		}
		emit(event)
	}

	result.LedgerCount = s.ledger.Count()

	// Reopen the gate first so a caller reacting to completion can submit again
	release()
	emit(domain.ProgressEvent{
		Type:    domain.EventBatchCompleted,
		Index:   total - 1,
		Percent: 100,
	})

	s.logger.Info("scan.batch.done",
		"batch_id", batchID,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"ledger_count", result.LedgerCount,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}

// CheckCredentials verifies that a credential resolves from ctx and that
// every backend serving the media kinds in items can resolve its own
func (s *ScanService) CheckCredentials(ctx context.Context, items []domain.MediaItem) error {
	if s.credentials != nil {
		if _, err := s.credentials.Credential(ctx); err != nil {
			if !domain.IsConfigurationError(err) {
				err = domain.NewConfigurationError("resolve credential", err)
			}
			return err
		}
	}

	checked := make(map[domain.MediaKind]bool)
	for _, item := range items {
		if checked[item.Kind] {
			continue
		}
		checked[item.Kind] = true

		for _, provider := range s.routes[item.Kind].Credentials {
			if provider == nil {
				continue
			}
			if _, err := provider.Credential(ctx); err != nil {
				return domain.NewConfigurationError(fmt.Sprintf("%s route credential", item.Kind), err)
			}
		}
	}
	return nil
}

// processItem returns the record to append for one item. On error the
// record is the placeholder for the item's media kind.
func (s *ScanService) processItem(
	ctx context.Context,
	batchID string,
	index, total int,
	item domain.MediaItem,
	emit ProgressFunc,
) (domain.Record, error) {
	route, ok := s.routes[item.Kind]
	if !ok || route.Extractor == nil {
		return domain.PlaceholderRecord(item.Kind), domain.NewConfigurationError(
			fmt.Sprintf("no extraction backend for %s", item.Kind), domain.ErrUnsupportedMedia)
	}

	prompt, err := s.prompts.Render(route.Prompt, nil)
	if err != nil {
		return domain.PlaceholderRecord(item.Kind), domain.NewConfigurationError("render prompt", err)
	}

	raw, err := s.retry.Do(ctx,
		func(ctx context.Context) (domain.RawResult, error) {
			return route.Extractor.Extract(ctx, item, prompt)
		},
		func(attempt int, delay time.Duration, err error) {
			s.logger.Warn("scan.item.retry",
				"batch_id", batchID,
				"index", index,
				"filename", item.Filename,
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
			emit(domain.ProgressEvent{
				Type:     domain.EventItemRetrying,
				Index:    index,
				Filename: item.Filename,
				Attempt:  attempt,
				Delay:    delay,
				Error:    err.Error(),
				Percent:  percent(index, total),
			})
		},
	)
	if err != nil {
		return domain.PlaceholderRecord(item.Kind), err
	}

	s.checkSchema(batchID, index, raw)

	return Normalize(raw, item.Kind), nil
}

func (s *ScanService) checkSchema(batchID string, index int, raw domain.RawResult) {
	if s.schema == nil || raw.Object == nil {
		return
	}
	if err := s.schema.Check(raw.Object); err != nil {
		s.logger.Debug("scan.item.schema_mismatch",
			"batch_id", batchID,
			"index", index,
			"error", err,
		)
	}
}

// ClearLedger empties the ledger. It is rejected while a batch is running so
// that a batch never appends into a ledger cleared halfway through.
func (s *ScanService) ClearLedger() error {
	if !s.gate.TryAcquire(1) {
		return domain.ErrBatchInProgress
	}
	defer s.gate.Release(1)

	s.ledger.Clear()
	s.logger.Info("ledger.cleared")
	return nil
}

// Ledger returns the ledger the service appends to
func (s *ScanService) Ledger() domain.LedgerRepository {
	return s.ledger
}

// FilterSupported drops items whose media kind the pipeline cannot extract,
// preserving order
func FilterSupported(items []domain.MediaItem) []domain.MediaItem {
	supported := make([]domain.MediaItem, 0, len(items))
	for _, item := range items {
		if item.Kind.Supported() {
			supported = append(supported, item)
		}
	}
	return supported
}

// IsBatchInProgress reports whether err is the single-batch gate rejection
func IsBatchInProgress(err error) bool {
	return errors.Is(err, domain.ErrBatchInProgress)
}

func percent(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) / float64(total) * 100
}
