// Package journal persists per (row, destination) attempt state for
// diagnostics and post-run auditing. Resume decisions come from the
// receipt manifest, not from here.
package journal

import "time"

// Status of one (row, destination) pair.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Entry is one journal record.
type Entry struct {
	RowKey      string
	Input       string
	Destination string
	Status      Status
	Attempts    int
	LastError   string
	UpdatedAt   time.Time
}

// Store persists journal entries.
type Store interface {
	Save(entry *Entry) error
	Get(rowKey, destination string) (*Entry, error)
	ListFailed() ([]*Entry, error)
	Close() error
}

// Noop is the store used when no journal path is configured.
type Noop struct{}

func (Noop) Save(*Entry) error                  { return nil }
func (Noop) Get(string, string) (*Entry, error) { return nil, nil }
func (Noop) ListFailed() ([]*Entry, error)      { return nil, nil }
func (Noop) Close() error                       { return nil }
