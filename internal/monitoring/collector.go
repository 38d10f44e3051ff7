// Package monitoring aggregates correction counters and store health into
// point-in-time snapshots.
package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docfix/internal/model"
	"github.com/sells-group/docfix/internal/store"
)

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Correction counters since process start.
	CorrectionsTotal    int64            `json:"corrections_total"`
	CorrectionsBySource map[string]int64 `json:"corrections_by_source"`
	CorrectionsByKind   map[string]int64 `json:"corrections_by_kind"`
	UnresolvedRate      float64          `json:"unresolved_rate"`

	// Feedback log totals.
	FeedbackTotal     int `json:"feedback_total"`
	FeedbackAccepted  int `json:"feedback_accepted"`
	FeedbackFlagged   int `json:"feedback_flagged"`
	FeedbackApplied   int `json:"feedback_applied"`
	FeedbackUnapplied int `json:"feedback_unapplied"`

	// DLQ depth.
	DLQDepth int `json:"dlq_depth"`

	CollectedAt time.Time `json:"collected_at"`
}

// StatsSource abstracts the store methods needed by the collector.
type StatsSource interface {
	FeedbackStats(ctx context.Context) (*model.FeedbackStats, error)
	ListDeadLetters(ctx context.Context, limit int) ([]store.DeadLetter, error)
}

// Collector counts resolved corrections and gathers store metrics.
// Counter methods are safe for concurrent use.
type Collector struct {
	src StatsSource

	mu       sync.Mutex
	bySource map[model.Source]int64
	byKind   map[model.FieldKind]int64
}

// NewCollector creates a metrics collector over the given store.
func NewCollector(src StatsSource) *Collector {
	return &Collector{
		src:      src,
		bySource: make(map[model.Source]int64),
		byKind:   make(map[model.FieldKind]int64),
	}
}

// ObserveCorrection counts one resolved field by its producing source.
func (c *Collector) ObserveCorrection(kind model.FieldKind, source model.Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bySource[source]++
	c.byKind[kind]++
}

// Collect gathers a snapshot of correction counters and store health.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		CorrectionsBySource: make(map[string]int64),
		CorrectionsByKind:   make(map[string]int64),
		CollectedAt:         time.Now().UTC(),
	}

	c.mu.Lock()
	for src, n := range c.bySource {
		snap.CorrectionsBySource[string(src)] = n
		snap.CorrectionsTotal += n
	}
	for kind, n := range c.byKind {
		snap.CorrectionsByKind[string(kind)] = n
	}
	c.mu.Unlock()

	if snap.CorrectionsTotal > 0 {
		snap.UnresolvedRate = float64(snap.CorrectionsBySource[string(model.SourceUnresolved)]) /
			float64(snap.CorrectionsTotal)
	}

	if c.src != nil {
		stats, err := c.src.FeedbackStats(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: feedback stats")
		}
		snap.FeedbackTotal = stats.Total
		snap.FeedbackAccepted = stats.Accepted
		snap.FeedbackFlagged = stats.Flagged
		snap.FeedbackApplied = stats.Applied
		snap.FeedbackUnapplied = stats.Unapplied

		letters, err := c.src.ListDeadLetters(ctx, 10000)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list dead letters")
		}
		snap.DLQDepth = len(letters)
	}

	return snap, nil
}
