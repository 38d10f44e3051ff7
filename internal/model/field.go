package model

// FieldKind is the semantic category of an extracted document field.
type FieldKind string

const (
	// KindAny is the global correction scope: entries stored under it apply
	// to any field kind.
	KindAny FieldKind = ""

	KindRegistrationNumber FieldKind = "registration-number"
	KindTaxID              FieldKind = "tax-id"
	KindTaxRegCode         FieldKind = "tax-registration-code"
	KindDate               FieldKind = "date"
	KindInsuranceNumber    FieldKind = "national-insurance-number"
	KindCertificateNumber  FieldKind = "certificate-number"
	KindPhone              FieldKind = "phone"
	KindEmail              FieldKind = "email"
	KindAddress            FieldKind = "address"
	KindFreeText           FieldKind = "free-text"
)

// AllKinds lists every known field kind in declaration order.
var AllKinds = []FieldKind{
	KindRegistrationNumber,
	KindTaxID,
	KindTaxRegCode,
	KindDate,
	KindInsuranceNumber,
	KindCertificateNumber,
	KindPhone,
	KindEmail,
	KindAddress,
	KindFreeText,
}

// Valid reports whether k is a known field kind.
func (k FieldKind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Source identifies which layer produced a corrected value.
type Source string

const (
	SourceRule       Source = "rule"
	SourceStore      Source = "corrections-store"
	SourceMLScorer   Source = "ml-scorer"
	SourceUnresolved Source = "unresolved"
)

// FieldValue is a single corrected field as returned to callers.
// Immutable once returned; a later human correction produces a new
// FeedbackRecord linked by RawText, never a mutation of this value.
type FieldValue struct {
	Kind           FieldKind `json:"field_kind"`
	RawText        string    `json:"raw_text"`
	NormalizedText string    `json:"normalized_text"`
	Confidence     float64   `json:"confidence"`
	Source         Source    `json:"source"`

	// Warning carries a recoverable persistence failure note (for example a
	// failed usage-count write). The correction itself is still valid.
	Warning string `json:"warning,omitempty"`
}
