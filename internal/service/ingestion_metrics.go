package service

import (
	"fmt"
	"sync"
	"time"
)

// IngestionMetrics tracks statistics about live snapshot ingestion
type IngestionMetrics struct {
	mu                sync.RWMutex
	StartTime         time.Time
	LastApply         time.Duration
	TotalSnapshots    int
	SuccessfulApplies int
	KartsSkipped      int
	LapsWritten       int
	Merges            int
	StatusTransitions int
	Errors            int
}

// NewIngestionMetrics creates a new metrics tracker
func NewIngestionMetrics(now time.Time) *IngestionMetrics {
	return &IngestionMetrics{
		StartTime: now,
	}
}

// Reset resets all metrics
func (m *IngestionMetrics) Reset(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StartTime = now
	m.LastApply = 0
	m.TotalSnapshots = 0
	m.SuccessfulApplies = 0
	m.KartsSkipped = 0
	m.LapsWritten = 0
	m.Merges = 0
	m.StatusTransitions = 0
	m.Errors = 0
}

// RecordApply records one committed snapshot
func (m *IngestionMetrics) RecordApply(d time.Duration, skipped, laps, merges int, transitioned bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalSnapshots++
	m.SuccessfulApplies++
	m.LastApply = d
	m.KartsSkipped += skipped
	m.LapsWritten += laps
	m.Merges += merges
	if transitioned {
		m.StatusTransitions++
	}
}

// RecordError records a rolled back snapshot
func (m *IngestionMetrics) RecordError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalSnapshots++
	m.Errors++
}

// String returns a formatted string representation of metrics
func (m *IngestionMetrics) String() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	successRate := float64(0)
	if m.TotalSnapshots > 0 {
		successRate = float64(m.SuccessfulApplies) / float64(m.TotalSnapshots) * 100
	}

	return fmt.Sprintf(
		"IngestionMetrics{Total=%d, Successful=%d (%.1f%%), Laps=%d, Skipped=%d, Merges=%d, Transitions=%d, Errors=%d, LastApply=%v}",
		m.TotalSnapshots,
		m.SuccessfulApplies,
		successRate,
		m.LapsWritten,
		m.KartsSkipped,
		m.Merges,
		m.StatusTransitions,
		m.Errors,
		m.LastApply,
	)
}
