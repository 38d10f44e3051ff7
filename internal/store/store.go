package store

import (
	"context"
	"time"

	"github.com/sells-group/docfix/internal/model"
)

// FeedbackWindow selects a slice of feedback history for the analyzer.
type FeedbackWindow struct {
	Since         time.Time `json:"since,omitempty"`
	Limit         int       `json:"limit,omitempty"`
	UnappliedOnly bool      `json:"unapplied_only,omitempty"`
}

// DeadLetter records a document that failed during batch processing so it
// can be inspected and retried later.
type DeadLetter struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Error      string    `json:"error"`
	ErrorType  string    `json:"error_type"` // "transient" or "permanent"
	CreatedAt  time.Time `json:"created_at"`
}

// Store is the persistence interface for the corrections database and the
// append-only feedback log. It is the only shared mutable state in the
// system: Upsert and RecordUsage are serialized per affected entry by the
// implementations, reads are snapshot-consistent and never observe a
// half-applied upsert.
type Store interface {
	// Corrections. Lookup is exact-match within a single scope; the empty
	// kind hint is the global scope. A miss returns (nil, nil).
	Lookup(ctx context.Context, original string, hint model.FieldKind) (*model.CorrectionEntry, error)
	RecordUsage(ctx context.Context, entryID string) error
	Upsert(ctx context.Context, original, corrected string, hint model.FieldKind, confirmedByHuman bool) (*model.CorrectionEntry, error)
	Export(ctx context.Context) ([]model.CorrectionEntry, error)

	// Feedback log.
	AppendFeedback(ctx context.Context, rec *model.FeedbackRecord) error
	ListFeedback(ctx context.Context, window FeedbackWindow) ([]model.FeedbackRecord, error)
	MarkFeedbackApplied(ctx context.Context, ids []string) error
	FeedbackStats(ctx context.Context) (*model.FeedbackStats, error)

	// Dead letter log for failed batch documents.
	AppendDeadLetter(ctx context.Context, dl DeadLetter) error
	ListDeadLetters(ctx context.Context, limit int) ([]DeadLetter, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}
