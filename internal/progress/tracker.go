// Package progress keeps running counts of a transfer run for periodic
// status reporting.
package progress

import (
	"fmt"
	"sync"
	"time"
)

// Status is a snapshot of the run so far.
type Status struct {
	TotalObjects     int64
	ProcessedObjects int64
	SucceededObjects int64
	FailedObjects    int64
	SkippedObjects   int64
	TotalBytes       int64
	ProcessedBytes   int64
	StartTime        time.Time
	AverageSpeed     float64 // bytes/second
	ETA              time.Duration
}

// Tracker accumulates transfer counts. Safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	status Status
}

func NewTracker() *Tracker {
	return &Tracker{status: Status{StartTime: time.Now()}}
}

// SetTotal sets the expected number of objects and bytes. Bytes may be
// zero when source sizes are unknown up front; ETA stays zero then.
func (t *Tracker) SetTotal(objects, bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.TotalObjects = objects
	t.status.TotalBytes = bytes
}

func (t *Tracker) AddSucceeded(bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.SucceededObjects++
	t.status.ProcessedObjects++
	t.status.ProcessedBytes += bytes
	t.recalculate()
}

func (t *Tracker) AddFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.FailedObjects++
	t.status.ProcessedObjects++
	t.recalculate()
}

func (t *Tracker) AddSkipped(bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.SkippedObjects++
	t.status.ProcessedObjects++
	t.status.ProcessedBytes += bytes
	t.recalculate()
}

// recalculate updates derived rates. Caller holds the lock.
func (t *Tracker) recalculate() {
	elapsed := time.Since(t.status.StartTime)
	if elapsed <= 0 {
		return
	}
	t.status.AverageSpeed = float64(t.status.ProcessedBytes) / elapsed.Seconds()

	remaining := t.status.TotalBytes - t.status.ProcessedBytes
	if remaining <= 0 || t.status.AverageSpeed == 0 {
		t.status.ETA = 0
		return
	}
	t.status.ETA = time.Duration(float64(remaining)/t.status.AverageSpeed) * time.Second
}

// GetStatus returns the current status snapshot.
func (t *Tracker) GetStatus() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.status
}

// GetProgressPercent returns processed objects as a percentage of total.
func (t *Tracker) GetProgressPercent() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.status.TotalObjects == 0 {
		return 0
	}
	return float64(t.status.ProcessedObjects) / float64(t.status.TotalObjects) * 100
}

// FormatSpeed formats a byte rate in human readable form.
func FormatSpeed(bytesPerSecond float64) string {
	switch {
	case bytesPerSecond < 1024:
		return fmt.Sprintf("%.1f B/s", bytesPerSecond)
	case bytesPerSecond < 1024*1024:
		return fmt.Sprintf("%.1f KB/s", bytesPerSecond/1024)
	case bytesPerSecond < 1024*1024*1024:
		return fmt.Sprintf("%.1f MB/s", bytesPerSecond/(1024*1024))
	default:
		return fmt.Sprintf("%.1f GB/s", bytesPerSecond/(1024*1024*1024))
	}
}

// FormatBytes formats a byte count in human readable form.
func FormatBytes(bytes int64) string {
	switch {
	case bytes < 1024:
		return fmt.Sprintf("%d B", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	case bytes < 1024*1024*1024:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	default:
		return fmt.Sprintf("%.1f GB", float64(bytes)/(1024*1024*1024))
	}
}

// FormatDuration formats a duration as 1h2m3s style text.
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "estimating..."
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
