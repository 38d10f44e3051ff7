package model

// Document is one scanned file queued for batch correction.
type Document struct {
	ID         string `json:"id"`
	Path       string `json:"path"`
	TemplateID string `json:"template_id,omitempty"`
}

// Region is the bounding box of an extracted field on the source page,
// in pixel coordinates.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ExtractedField is raw OCR output for a single field before correction.
type ExtractedField struct {
	Kind    FieldKind `json:"field_kind_guess"`
	RawText string    `json:"raw_text"`
	Region  Region    `json:"bounding_region,omitempty"`
}

// OutcomeStatus is the terminal state of one document within a batch.
type OutcomeStatus string

const (
	OutcomeOK        OutcomeStatus = "ok"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeCancelled OutcomeStatus = "cancelled"
)

// DocumentOutcome is the atomic per-document result: either all fields
// corrected, or a failure descriptor. Never partially constructed.
type DocumentOutcome struct {
	DocumentID string        `json:"document_id"`
	Status     OutcomeStatus `json:"status"`
	Fields     []FieldValue  `json:"fields,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// BatchResult aggregates per-document outcomes, index-aligned with the
// input document order.
type BatchResult struct {
	Outcomes []DocumentOutcome `json:"outcomes"`
}

// Succeeded returns the number of ok outcomes.
func (r *BatchResult) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == OutcomeOK {
			n++
		}
	}
	return n
}

// Failed returns the number of failed outcomes.
func (r *BatchResult) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == OutcomeFailed {
			n++
		}
	}
	return n
}
