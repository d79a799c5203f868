package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"
)

// Limiter caps the number of concurrent per-file operations (hashing,
// metadata reads and writes, copies) across the entire run. Directory
// recursion fans out freely; every worker acquires the same weighted
// semaphore, so the cap is global rather than per-level.
type Limiter struct {
	sem *semaphore.Weighted
}

// NewLimiter creates a limiter allowing max concurrent operations.
func NewLimiter(max int64) *Limiter {
	if max < 1 {
		max = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(max)}
}

// Acquire blocks until a slot is free or the context is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// Release frees a slot.
func (l *Limiter) Release() {
	l.sem.Release(1)
}

// ProgressTracker tracks processing progress with thread safety.
type ProgressTracker struct {
	Total     int
	Completed int
	Failed    int
	Skipped   int
	StartTime time.Time
	mu        sync.Mutex
}

// NewProgressTracker creates a new progress tracker.
func NewProgressTracker(total int) *ProgressTracker {
	return &ProgressTracker{Total: total, StartTime: time.Now()}
}

// Update increments the completed count.
func (pt *ProgressTracker) Update(success bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.Completed++
	if !success {
		pt.Failed++
	}
}

// Skip increments the skipped count.
func (pt *ProgressTracker) Skip() {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.Skipped++
}

// Stats returns current progress statistics.
func (pt *ProgressTracker) Stats() (total, completed, failed, skipped int, elapsed time.Duration) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.Total, pt.Completed, pt.Failed, pt.Skipped, time.Since(pt.StartTime)
}

// FormatProgress returns a formatted progress string.
func (pt *ProgressTracker) FormatProgress() string {
	total, completed, failed, skipped, elapsed := pt.Stats()
	percentage := 0.0
	if total > 0 {
		percentage = float64(completed+skipped) / float64(total) * 100
	}
	return fmt.Sprintf("Progress: %d/%d (%.1f%%) | Success: %d | Failed: %d | Skipped: %d | Elapsed: %v",
		completed+skipped, total, percentage, completed-failed, failed, skipped,
		elapsed.Round(time.Second))
}

// CancellationManager handles graceful shutdown on SIGINT/SIGTERM.
type CancellationManager struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCancellationManager creates a manager whose context is cancelled on
// the first interrupt signal.
func NewCancellationManager() *CancellationManager {
	ctx, cancel := context.WithCancel(context.Background())
	cm := &CancellationManager{ctx: ctx, cancel: cancel}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		fmt.Println("\n🛑 Cancellation requested, finishing in-flight work...")
		cm.cancel()
	}()
	return cm
}

// Context returns the cancellation context.
func (cm *CancellationManager) Context() context.Context {
	return cm.ctx
}

// Cancel cancels all operations.
func (cm *CancellationManager) Cancel() {
	cm.cancel()
}
