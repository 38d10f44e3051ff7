package model

import (
	"math"
	"time"
)

// CorrectionEntry is a persistent mapping from erroneous OCR output to its
// canonical correction, scoped by an optional field kind hint. The empty
// hint means the entry applies globally.
type CorrectionEntry struct {
	ID            string    `json:"id"`
	Original      string    `json:"original"`
	Corrected     string    `json:"corrected"`
	KindHint      FieldKind `json:"field_kind_hint,omitempty"`
	UsageCount    int       `json:"usage_count"`
	HumanConfirms int       `json:"human_confirms"`
	Active        bool      `json:"active"`
	FirstSeen     time.Time `json:"first_seen"`
	LastConfirmed time.Time `json:"last_confirmed"`
}

// Confidence derives the entry's usage-weighted confidence. It grows
// monotonically with UsageCount, is weighted by the share of human-confirmed
// uses, and stays capped at 0.9 until confirmThreshold uses have accumulated.
func (e *CorrectionEntry) Confidence(confirmThreshold int) float64 {
	if e.UsageCount <= 0 {
		return 0
	}
	base := 1 - math.Pow(0.5, float64(e.UsageCount))
	humanRatio := float64(e.HumanConfirms) / float64(e.UsageCount)
	conf := base * (0.7 + 0.3*humanRatio)
	if confirmThreshold > 0 && e.UsageCount < confirmThreshold {
		return math.Min(conf, 0.9)
	}
	return conf
}

// FeedbackRecord is one append-only audit entry of user feedback on a
// proposed or missing correction. Never mutated except for the Applied
// marker set by the pattern analyzer.
type FeedbackRecord struct {
	ID         string    `json:"id"`
	Original   string    `json:"original"`
	Corrected  string    `json:"proposed_correction"`
	Kind       FieldKind `json:"field_kind,omitempty"`
	DocumentID string    `json:"document_id"`
	Accepted   bool      `json:"accepted"`
	Flagged    bool      `json:"flagged"`
	Applied    bool      `json:"applied"`
	CreatedAt  time.Time `json:"timestamp"`
}

// ProposedEntry is a corrections-store candidate mined from feedback
// history by the pattern analyzer. It is not written to the store until
// applied automatically (AutoApply) or approved by a human.
type ProposedEntry struct {
	Original    string    `json:"original"`
	Corrected   string    `json:"corrected"`
	Kind        FieldKind `json:"field_kind,omitempty"`
	Occurrences int       `json:"occurrences"`
	AcceptRate  float64   `json:"accept_rate"`
	Confidence  float64   `json:"confidence"`
	AutoApply   bool      `json:"auto_apply"`
	FeedbackIDs []string  `json:"feedback_ids"`
}

// FeedbackStats summarizes the feedback log for monitoring.
type FeedbackStats struct {
	Total     int `json:"total"`
	Accepted  int `json:"accepted"`
	Flagged   int `json:"flagged"`
	Applied   int `json:"applied"`
	Unapplied int `json:"unapplied"`
}
