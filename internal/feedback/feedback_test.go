package feedback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/docfix/internal/model"
)

type fakeSink struct {
	records   []*model.FeedbackRecord
	upserts   []upsertCall
	appendErr error
	upsertErr error
}

type upsertCall struct {
	original, corrected string
	hint                model.FieldKind
	confirmed           bool
}

func (f *fakeSink) AppendFeedback(_ context.Context, rec *model.FeedbackRecord) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeSink) Upsert(_ context.Context, original, corrected string, hint model.FieldKind, confirmed bool) (*model.CorrectionEntry, error) {
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	f.upserts = append(f.upserts, upsertCall{original, corrected, hint, confirmed})
	return &model.CorrectionEntry{ID: "e1", Original: original, Corrected: corrected, KindHint: hint, UsageCount: 1, Active: true}, nil
}

func (f *fakeSink) FeedbackStats(_ context.Context) (*model.FeedbackStats, error) {
	return &model.FeedbackStats{Total: len(f.records)}, nil
}

func TestSubmit_RecordsAcceptedCorrection(t *testing.T) {
	sink := &fakeSink{}
	ing := NewIngestor(sink)

	rec, err := ing.Submit(context.Background(), Submission{
		Original:   "771О14О679",
		Corrected:  "7710140679",
		Kind:       model.KindTaxID,
		DocumentID: "doc-1",
	})
	require.NoError(t, err)
	assert.True(t, rec.Accepted)
	assert.False(t, rec.Flagged)
	assert.False(t, rec.Applied)
	assert.NotEmpty(t, rec.ID)
	require.Len(t, sink.records, 1)
	assert.Empty(t, sink.upserts)
}

func TestSubmit_AddToStoreUpsertsConfirmed(t *testing.T) {
	sink := &fakeSink{}
	ing := NewIngestor(sink)

	rec, err := ing.Submit(context.Background(), Submission{
		Original:   "З01",
		Corrected:  "301000001",
		Kind:       model.KindTaxRegCode,
		AddToStore: true,
	})
	require.NoError(t, err)
	assert.True(t, rec.Applied)
	require.Len(t, sink.upserts, 1)
	assert.Equal(t, "З01", sink.upserts[0].original)
	assert.Equal(t, "301000001", sink.upserts[0].corrected)
	assert.True(t, sink.upserts[0].confirmed)
}

func TestSubmit_MalformedCorrectedIsFlagged(t *testing.T) {
	sink := &fakeSink{}
	ing := NewIngestor(sink)

	// tax-id must be 10 or 12 digits.
	rec, err := ing.Submit(context.Background(), Submission{
		Original:   "771О14О",
		Corrected:  "77101",
		Kind:       model.KindTaxID,
		AddToStore: true,
	})
	require.NoError(t, err)
	assert.True(t, rec.Flagged)
	require.Len(t, sink.upserts, 1)
	assert.False(t, sink.upserts[0].confirmed, "flagged correction must not count as human-confirmed")
}

func TestSubmit_CanonicalizesCorrectedValue(t *testing.T) {
	sink := &fakeSink{}
	ing := NewIngestor(sink)

	rec, err := ing.Submit(context.Background(), Submission{
		Original:  "8926один234567",
		Corrected: "8 (926) 123-45-67",
		Kind:      model.KindPhone,
	})
	require.NoError(t, err)
	assert.False(t, rec.Flagged)
	assert.Equal(t, "+79261234567", rec.Corrected)
}

func TestSubmit_ShapelessKindNeverFlagged(t *testing.T) {
	sink := &fakeSink{}
	ing := NewIngestor(sink)

	rec, err := ing.Submit(context.Background(), Submission{
		Original:  "горот Маркуталь",
		Corrected: "город Мариуполь",
		Kind:      model.KindAddress,
	})
	require.NoError(t, err)
	assert.False(t, rec.Flagged)
	assert.Equal(t, "город Мариуполь", rec.Corrected)
}

func TestSubmit_RejectionNeedsNoCorrectedValue(t *testing.T) {
	sink := &fakeSink{}
	ing := NewIngestor(sink)

	rec, err := ing.Submit(context.Background(), Submission{
		Original: "1О27ОО1ЗЗ",
		Kind:     model.KindRegistrationNumber,
		Rejected: true,
	})
	require.NoError(t, err)
	assert.False(t, rec.Accepted)
	assert.Empty(t, rec.Corrected)
	assert.Empty(t, sink.upserts)
}

func TestSubmit_RejectedNeverStored(t *testing.T) {
	sink := &fakeSink{}
	ing := NewIngestor(sink)

	_, err := ing.Submit(context.Background(), Submission{
		Original:   "1О27ОО1ЗЗ",
		Kind:       model.KindRegistrationNumber,
		Rejected:   true,
		AddToStore: true,
	})
	require.NoError(t, err)
	assert.Empty(t, sink.upserts)
}

func TestSubmit_Validation(t *testing.T) {
	ing := NewIngestor(&fakeSink{})

	_, err := ing.Submit(context.Background(), Submission{Corrected: "x", Kind: model.KindTaxID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "original text is empty")

	_, err = ing.Submit(context.Background(), Submission{Original: "x", Kind: model.KindTaxID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrected text is empty")

	_, err = ing.Submit(context.Background(), Submission{Original: "x", Corrected: "y", Kind: "barcode"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field kind")
}

func TestSubmit_UpsertErrorPropagates(t *testing.T) {
	sink := &fakeSink{upsertErr: errors.New("database is locked")}
	ing := NewIngestor(sink)

	_, err := ing.Submit(context.Background(), Submission{
		Original:   "a",
		Corrected:  "b",
		Kind:       model.KindFreeText,
		AddToStore: true,
	})
	require.Error(t, err)
	require.Len(t, sink.records, 1, "decision is recorded even when the store write fails")
	assert.False(t, sink.records[0].Applied)
}
