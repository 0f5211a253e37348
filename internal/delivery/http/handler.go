package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shelfscan/backend/internal/domain"
	"github.com/shelfscan/backend/internal/infrastructure/ledger"
	"github.com/shelfscan/backend/internal/infrastructure/media"
	"github.com/shelfscan/backend/internal/usecase"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// HandlerConfig holds handler settings
type HandlerConfig struct {
	ExportPath     string
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	scanner        *usecase.ScanService
	exportPath     string
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(scanner *usecase.ScanService, config HandlerConfig) *Handler {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	exportPath := config.ExportPath
	if exportPath == "" {
		exportPath = ledger.DefaultCSVFile
	}
	return &Handler{
		scanner:        scanner,
		exportPath:     exportPath,
		maxUploadBytes: config.MaxUploadBytes,
		logger:         logger,
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "shelfscan-backend",
		"version": "1.0.0",
	})
}

// scanResponse is the JSON body returned for a completed batch
type scanResponse struct {
	Batch   *domain.BatchResult `json:"batch"`
	Records []domain.Record     `json:"records"`
	Failed  []string            `json:"failed,omitempty"`
	Skipped []string            `json:"skipped,omitempty"`
}

// SubmitScan runs one batch over the uploaded files. Progress is streamed
// as server-sent events when the client accepts text/event-stream.
func (h *Handler) SubmitScan(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid upload: expected multipart form with 'files'",
		})
		return
	}

	items, skipped, err := readItems(form.File["files"])
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(items) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "No image or audio files to scan",
			"skipped": skipped,
		})
		return
	}

	batch := domain.Batch{Items: items, Credential: requestCredential(c)}

	if strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		h.streamScan(c, batch)
		return
	}

	var (
		records []domain.Record
		failed  []string
	)
	result, err := h.scanner.Run(c.Request.Context(), batch, func(event domain.ProgressEvent) {
		switch event.Type {
		case domain.EventItemProcessed, domain.EventItemFailed:
			records = append(records, *event.Record)
			if event.Type == domain.EventItemFailed {
				failed = append(failed, fmt.Sprintf("%s: %s", event.Filename, event.Error))
			}
		}
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, scanResponse{
		Batch:   result,
		Records: records,
		Failed:  failed,
		Skipped: skipped,
	})
}

// streamScan writes each progress event as an SSE message. A client that
// disconnects stops receiving events; the batch itself keeps running.
func (h *Handler) streamScan(c *gin.Context, batch domain.Batch) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	events := make(chan domain.ProgressEvent, 16)
	done := make(chan struct{})
	errc := make(chan error, 1)
	defer close(done)

	ctx := c.Request.Context()
	go func() {
		_, err := h.scanner.Run(ctx, batch, func(event domain.ProgressEvent) {
			select {
			case events <- event:
			case <-done:
			}
		})
		errc <- err
		close(events)
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				if err := <-errc; err != nil {
					c.SSEvent("error", gin.H{"error": err.Error(), "status": errorStatus(err)})
					c.Writer.Flush()
				}
				return
			}
			c.SSEvent(event.Type, event)
			c.Writer.Flush()
		case <-ctx.Done():
			h.logger.Info("scan.stream.client_gone")
			return
		}
	}
}

// GetLedger returns every record in the ledger
func (h *Handler) GetLedger(c *gin.Context) {
	records := h.scanner.Ledger().Records()
	if records == nil {
		records = []domain.Record{}
	}
	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"count":   len(records),
	})
}

// GetLedgerCount returns the number of ledger records
func (h *Handler) GetLedgerCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"count": h.scanner.Ledger().Count()})
}

// DownloadCSV serves the ledger as products.csv
func (h *Handler) DownloadCSV(c *gin.Context) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ledger.DefaultCSVFile))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(h.scanner.Ledger().ToCSV()))
}

// DownloadXLSX serves the ledger as a spreadsheet
func (h *Handler) DownloadXLSX(c *gin.Context) {
	var buf bytes.Buffer
	if err := ledger.WriteXLSX(&buf, h.scanner.Ledger().Records()); err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="products.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// SaveLedger writes the CSV export to the configured path on the server
func (h *Handler) SaveLedger(c *gin.Context) {
	records := h.scanner.Ledger().Records()
	if err := ledger.SaveToFile(h.exportPath, records); err != nil {
		h.writeError(c, err)
		return
	}
	h.logger.Info("ledger.saved", "path", h.exportPath, "count", len(records))
	c.JSON(http.StatusOK, gin.H{
		"path":  h.exportPath,
		"count": len(records),
	})
}

// ClearLedger empties the ledger unless a batch is running
func (h *Handler) ClearLedger(c *gin.Context) {
	if err := h.scanner.ClearLedger(); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": 0})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("http.request.error", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func errorStatus(err error) int {
	switch {
	case domain.IsConfigurationError(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrBatchInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// readItems classifies uploaded files in upload order. Files the pipeline
// cannot scan are returned by name in skipped.
func readItems(files []*multipart.FileHeader) ([]domain.MediaItem, []string, error) {
	if len(files) == 0 {
		return nil, nil, errors.New("no files uploaded")
	}

	items := make([]domain.MediaItem, 0, len(files))
	var skipped []string
	for _, fh := range files {
		payload, err := readFile(fh)
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		item := media.Classify(fh.Filename, fh.Header.Get("Content-Type"), payload)
		if !item.Kind.Supported() || len(item.Payload) == 0 {
			skipped = append(skipped, fh.Filename)
			continue
		}
		items = append(items, item)
	}
	return items, skipped, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// requestCredential reads a per-request API key from X-API-Key, a bearer
// token, or the api_key form field
func requestCredential(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return c.PostForm("api_key")
}
