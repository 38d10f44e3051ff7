// Package feedback records human review decisions and feeds confirmed
// corrections back into the store.
package feedback

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docfix/internal/model"
	"github.com/sells-group/docfix/internal/store"
	"github.com/sells-group/docfix/internal/validate"
)

// Sink is the subset of the corrections store the ingestor needs.
type Sink interface {
	AppendFeedback(ctx context.Context, rec *model.FeedbackRecord) error
	Upsert(ctx context.Context, original, corrected string, hint model.FieldKind, confirmedByHuman bool) (*model.CorrectionEntry, error)
	FeedbackStats(ctx context.Context) (*model.FeedbackStats, error)
}

// Submission is one human review decision for a field value.
type Submission struct {
	// Original is the raw OCR text the reviewer saw.
	Original string `json:"original"`

	// Corrected is the value the reviewer settled on. Empty when Rejected.
	Corrected string `json:"corrected"`

	Kind       model.FieldKind `json:"field_kind"`
	DocumentID string          `json:"document_id,omitempty"`

	// AddToStore asks for the mapping to be learned immediately instead of
	// waiting for the pattern analyzer to pick it up.
	AddToStore bool `json:"add_to_store,omitempty"`

	// Rejected marks the proposed correction as wrong with no replacement.
	Rejected bool `json:"rejected,omitempty"`
}

// Ingestor validates and persists review submissions.
type Ingestor struct {
	sink      Sink
	validator *validate.Validator
}

// NewIngestor creates an Ingestor writing to the given store.
func NewIngestor(sink Sink) *Ingestor {
	return &Ingestor{sink: sink, validator: validate.New()}
}

// Submit records one review decision. The feedback row is always written;
// when AddToStore is set the mapping is also upserted into the corrections
// store. A corrected value that fails its shape rule is flagged and, if
// stored, counts as unconfirmed until the analyzer or a clean submission
// vouches for it.
func (i *Ingestor) Submit(ctx context.Context, sub Submission) (*model.FeedbackRecord, error) {
	original := validate.Normalize(sub.Original)
	corrected := validate.Normalize(sub.Corrected)

	if strings.TrimSpace(original) == "" {
		return nil, eris.New("feedback: original text is empty")
	}
	if sub.Kind != model.KindAny && !sub.Kind.Valid() {
		return nil, eris.Errorf("feedback: unknown field kind %q", sub.Kind)
	}
	if !sub.Rejected && strings.TrimSpace(corrected) == "" {
		return nil, eris.New("feedback: corrected text is empty")
	}

	flagged := false
	if !sub.Rejected && i.validator.HasShape(sub.Kind) {
		res := i.validator.Validate(sub.Kind, corrected)
		if res.WellFormed {
			corrected = res.Candidate
		} else {
			flagged = true
			zap.L().Warn("corrected value fails shape rule",
				zap.String("kind", string(sub.Kind)),
				zap.String("corrected", corrected),
			)
		}
	}

	rec := &model.FeedbackRecord{
		ID:         uuid.New().String(),
		Original:   original,
		Corrected:  corrected,
		Kind:       sub.Kind,
		DocumentID: sub.DocumentID,
		Accepted:   !sub.Rejected,
		Flagged:    flagged,
		CreatedAt:  time.Now().UTC(),
	}

	var upsertErr error
	if sub.AddToStore && !sub.Rejected {
		if _, err := i.sink.Upsert(ctx, original, corrected, sub.Kind, !flagged); err != nil {
			upsertErr = eris.Wrap(err, "feedback: store correction")
		} else {
			rec.Applied = true
		}
	}

	// The review decision is recorded even when the store write failed, so
	// the analyzer can still pick the mapping up later.
	if err := i.sink.AppendFeedback(ctx, rec); err != nil {
		return nil, eris.Wrap(err, "feedback: append record")
	}
	if upsertErr != nil {
		return nil, upsertErr
	}
	return rec, nil
}

// Stats reports totals for the feedback log.
func (i *Ingestor) Stats(ctx context.Context) (*model.FeedbackStats, error) {
	return i.sink.FeedbackStats(ctx)
}

var _ Sink = (store.Store)(nil)
