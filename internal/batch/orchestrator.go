// Package batch runs whole documents through extraction and correction with
// bounded concurrency.
package batch

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/docfix/internal/model"
	"github.com/sells-group/docfix/internal/ocr"
	"github.com/sells-group/docfix/internal/resilience"
	"github.com/sells-group/docfix/internal/store"
	"github.com/sells-group/docfix/pkg/classifier"
)

// Corrector resolves one raw field value.
type Corrector interface {
	Correct(ctx context.Context, kind model.FieldKind, raw string) (*model.FieldValue, error)
}

// DeadLetterSink records documents that could not be processed.
type DeadLetterSink interface {
	AppendDeadLetter(ctx context.Context, dl store.DeadLetter) error
}

// Config tunes batch processing.
type Config struct {
	// MaxConcurrentDocuments bounds in-flight documents. Default: 4.
	MaxConcurrentDocuments int

	// ExtractTimeout bounds OCR extraction per document. Default: 60s.
	ExtractTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentDocuments <= 0 {
		c.MaxConcurrentDocuments = 4
	}
	if c.ExtractTimeout <= 0 {
		c.ExtractTimeout = 60 * time.Second
	}
	return c
}

// Orchestrator fans documents out to extraction and correction workers.
type Orchestrator struct {
	extractor  ocr.Extractor
	corrector  Corrector
	classifier classifier.Client
	templates  *model.TemplateRegistry
	dlq        DeadLetterSink
	cfg        Config
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithClassifier attaches a template classifier used for documents that
// arrive without a template id.
func WithClassifier(c classifier.Client) Option {
	return func(o *Orchestrator) { o.classifier = c }
}

// WithTemplates attaches the template registry that decides which field
// kinds each document type carries.
func WithTemplates(r *model.TemplateRegistry) Option {
	return func(o *Orchestrator) { o.templates = r }
}

// WithDeadLetters attaches a sink for failed documents.
func WithDeadLetters(dlq DeadLetterSink) Option {
	return func(o *Orchestrator) { o.dlq = dlq }
}

// New creates an Orchestrator.
func New(extractor ocr.Extractor, corrector Corrector, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		extractor: extractor,
		corrector: corrector,
		cfg:       cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProcessBatch runs every document through extraction and correction.
// Outcomes are index-aligned with docs. One document's failure never stops
// the others; failures land in the dead-letter sink. Cancelling ctx marks
// documents that have not started yet as cancelled.
func (o *Orchestrator) ProcessBatch(ctx context.Context, docs []model.Document) (*model.BatchResult, error) {
	outcomes := make([]model.DocumentOutcome, len(docs))

	var g errgroup.Group
	g.SetLimit(o.cfg.MaxConcurrentDocuments)

	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i] = model.DocumentOutcome{
					DocumentID: doc.ID,
					Status:     model.OutcomeCancelled,
					Error:      ctx.Err().Error(),
				}
				return nil
			}

			fields, err := o.processOne(ctx, doc)
			if err != nil {
				if ctx.Err() != nil {
					outcomes[i] = model.DocumentOutcome{
						DocumentID: doc.ID,
						Status:     model.OutcomeCancelled,
						Error:      err.Error(),
					}
					return nil
				}
				o.deadLetter(doc, err)
				outcomes[i] = model.DocumentOutcome{
					DocumentID: doc.ID,
					Status:     model.OutcomeFailed,
					Error:      err.Error(),
				}
				return nil // don't fail the group
			}

			outcomes[i] = model.DocumentOutcome{
				DocumentID: doc.ID,
				Status:     model.OutcomeOK,
				Fields:     fields,
			}
			return nil
		})
	}

	_ = g.Wait()
	return &model.BatchResult{Outcomes: outcomes}, nil
}

func (o *Orchestrator) processOne(ctx context.Context, doc model.Document) ([]model.FieldValue, error) {
	templateID := doc.TemplateID
	if templateID == "" && o.classifier != nil {
		cls, err := o.classifier.Classify(ctx, doc.Path)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: classify %s", doc.ID)
		}
		templateID = cls.TemplateID
	}

	kinds := o.templates.FieldsFor(templateID)

	extractCtx, cancel := context.WithTimeout(ctx, o.cfg.ExtractTimeout)
	defer cancel()
	extracted, err := o.extractor.ExtractFields(extractCtx, doc, kinds)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: extract %s", doc.ID)
	}

	// A document's outcome is atomic: every extracted field corrects or the
	// whole document fails.
	fields := make([]model.FieldValue, 0, len(extracted))
	for _, f := range extracted {
		fv, err := o.corrector.Correct(ctx, f.Kind, f.RawText)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: correct %s field %s", doc.ID, f.Kind)
		}
		fields = append(fields, *fv)
	}
	return fields, nil
}

func (o *Orchestrator) deadLetter(doc model.Document, err error) {
	if o.dlq == nil {
		return
	}
	// Best effort with its own deadline: the batch context may already be in
	// a bad state when we get here.
	dlqCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dl := store.DeadLetter{
		DocumentID: doc.ID,
		Error:      err.Error(),
		ErrorType:  resilience.ClassifyError(err),
	}
	if dlqErr := o.dlq.AppendDeadLetter(dlqCtx, dl); dlqErr != nil {
		zap.L().Error("dead letter write failed",
			zap.String("document_id", doc.ID),
			zap.Error(dlqErr),
		)
	}
}
