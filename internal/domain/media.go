package domain

import "time"

// MediaKind identifies how a media payload is processed
type MediaKind string

const (
	MediaImage   MediaKind = "image"
	MediaAudio   MediaKind = "audio"
	MediaUnknown MediaKind = "unknown"
)

// Supported reports whether the pipeline can extract from this kind
func (k MediaKind) Supported() bool {
	return k == MediaImage || k == MediaAudio
}

// MediaItem is one input unit of a batch
type MediaItem struct {
	Filename string    `json:"filename"`
	Kind     MediaKind `json:"kind"`
	MIMEType string    `json:"mimeType"`
	Payload  []byte    `json:"-"`
}

// Batch is an ordered set of media items submitted together
type Batch struct {
	Items      []MediaItem
	Credential string
}

// RawResult is an extraction backend's loosely typed output.
// Object is set when the backend already parsed a JSON object, Text holds
// free-form model output, and Line carries a stage-one text summary.
type RawResult struct {
	Object map[string]any
	Text   string
	Line   string
}

// Progress event types emitted by the batch orchestrator
const (
	EventItemProcessed  = "item.processed"
	EventItemRetrying   = "item.retrying"
	EventItemFailed     = "item.failed"
	EventBatchCompleted = "batch.completed"
)

// ProgressEvent reports batch progress to the caller
type ProgressEvent struct {
	Type     string        `json:"type"`
	BatchID  string        `json:"batchId"`
	Index    int           `json:"index"`
	Total    int           `json:"total"`
	Filename string        `json:"filename,omitempty"`
	Record   *Record       `json:"record,omitempty"`
	Attempt  int           `json:"attempt,omitempty"`
	Delay    time.Duration `json:"delay,omitempty"`
	Error    string        `json:"error,omitempty"`
	Percent  float64       `json:"percent"`
}

// BatchResult summarizes a completed batch
type BatchResult struct {
	BatchID     string `json:"batchId"`
	Attempted   int    `json:"attempted"`
	Succeeded   int    `json:"succeeded"`
	Failed      int    `json:"failed"`
	LedgerCount int    `json:"ledgerCount"`
}
