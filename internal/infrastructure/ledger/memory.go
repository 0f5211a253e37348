package ledger

import (
	"sync"

	"github.com/shelfscan/backend/internal/domain"
)

// MemoryLedger is a thread-safe, append-only, insertion-ordered record list.
// It lives for the process lifetime; ToCSV is the way to persist it.
type MemoryLedger struct {
	records []domain.Record
	mutex   sync.RWMutex
}

// NewMemoryLedger creates an empty ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

// Append adds a record at the end of the ledger
func (l *MemoryLedger) Append(record domain.Record) {
	if record.Price != nil {
		// Records are immutable once appended
		record.Price = domain.Int64(*record.Price)
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.records = append(l.records, record)
}

// Count returns the number of records
func (l *MemoryLedger) Count() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return len(l.records)
}

// Clear removes all records
func (l *MemoryLedger) Clear() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.records = nil
}

// Records returns a snapshot of all records in insertion order
func (l *MemoryLedger) Records() []domain.Record {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	snapshot := make([]domain.Record, len(l.records))
	for i, r := range l.records {
		if r.Price != nil {
			r.Price = domain.Int64(*r.Price)
		}
		snapshot[i] = r
	}
	return snapshot
}

// ToCSV serializes the ledger. An empty ledger yields the header row only.
func (l *MemoryLedger) ToCSV() string {
	return ToCSV(l.Records())
}
