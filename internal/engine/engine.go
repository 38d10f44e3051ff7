// Package engine resolves raw OCR field values into corrected ones by
// combining shape validation, the learned corrections store, and the ML
// scoring service.
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docfix/internal/model"
	"github.com/sells-group/docfix/internal/validate"
	"github.com/sells-group/docfix/pkg/mlscorer"
)

// CorrectionSource is the subset of the corrections store the engine needs.
type CorrectionSource interface {
	Lookup(ctx context.Context, original string, hint model.FieldKind) (*model.CorrectionEntry, error)
	RecordUsage(ctx context.Context, entryID string) error
}

// Scorer matches the ML scorer client surface.
type Scorer interface {
	Score(ctx context.Context, fieldKind, text string) ([]mlscorer.Candidate, error)
}

// Observer receives a notification for each resolved field, keyed by the
// source that produced the final value.
type Observer interface {
	ObserveCorrection(kind model.FieldKind, source model.Source)
}

// Config tunes the resolution behavior.
type Config struct {
	// AcceptThreshold is the minimum scorer probability required to accept
	// a candidate. Default: 0.7.
	AcceptThreshold float64

	// ConfirmationThreshold is the usage count below which a stored
	// correction's confidence stays capped. Default: 3.
	ConfirmationThreshold int

	// ScorerTimeout bounds each call to the scoring service. Default: 5s.
	ScorerTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.AcceptThreshold <= 0 {
		c.AcceptThreshold = 0.7
	}
	if c.ConfirmationThreshold <= 0 {
		c.ConfirmationThreshold = 3
	}
	if c.ScorerTimeout <= 0 {
		c.ScorerTimeout = 5 * time.Second
	}
	return c
}

// Engine corrects individual field values.
type Engine struct {
	validator *validate.Validator
	store     CorrectionSource
	scorer    Scorer
	observer  Observer
	cfg       Config
}

// Option configures the engine.
type Option func(*Engine)

// WithScorer attaches an ML scorer used as the last resort for values the
// rules and the store cannot resolve.
func WithScorer(s Scorer) Option {
	return func(e *Engine) { e.scorer = s }
}

// WithObserver attaches a per-correction observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// New creates an Engine backed by the given corrections store.
func New(store CorrectionSource, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		validator: validate.New(),
		store:     store,
		cfg:       cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Correct resolves one raw OCR value of the given kind. Resolution order:
// a learned correction for the exact text (field scope first, then global),
// then the shape rule, then the ML scorer. Values nothing can resolve come
// back with SourceUnresolved and zero confidence rather than an error.
func (e *Engine) Correct(ctx context.Context, kind model.FieldKind, raw string) (*model.FieldValue, error) {
	if !kind.Valid() {
		return nil, eris.Errorf("engine: unknown field kind %q", kind)
	}
	normalized := validate.Normalize(raw)
	if strings.TrimSpace(normalized) == "" {
		return nil, eris.New("engine: field text is empty")
	}

	fv := &model.FieldValue{
		Kind:           kind,
		RawText:        raw,
		NormalizedText: normalized,
	}

	entry, warning := e.lookupCorrection(ctx, normalized, kind)
	fv.Warning = warning
	if entry != nil {
		fv.NormalizedText = entry.Corrected
		fv.Confidence = entry.Confidence(e.cfg.ConfirmationThreshold)
		fv.Source = model.SourceStore
		e.observe(kind, model.SourceStore)
		return fv, nil
	}

	res := e.validator.Validate(kind, normalized)
	if res.WellFormed {
		fv.NormalizedText = res.Candidate
		fv.Confidence = 1.0
		fv.Source = model.SourceRule
		e.observe(kind, model.SourceRule)
		return fv, nil
	}

	if e.scorer != nil {
		val, prob, ok, scoreWarning := e.score(ctx, kind, normalized)
		if scoreWarning != "" {
			fv.Warning = scoreWarning
		}
		if ok {
			fv.NormalizedText = val
			fv.Confidence = prob
			fv.Source = model.SourceMLScorer
			e.observe(kind, model.SourceMLScorer)
			return fv, nil
		}
	}

	fv.Confidence = 0
	fv.Source = model.SourceUnresolved
	e.observe(kind, model.SourceUnresolved)
	return fv, nil
}

// lookupCorrection checks the store under the field scope and falls back to
// the global scope. Store failures degrade to a warning so a flaky store
// never blocks resolution.
func (e *Engine) lookupCorrection(ctx context.Context, text string, kind model.FieldKind) (*model.CorrectionEntry, string) {
	for _, hint := range []model.FieldKind{kind, model.KindAny} {
		entry, err := e.store.Lookup(ctx, text, hint)
		if err != nil {
			zap.L().Warn("corrections lookup failed",
				zap.String("kind", string(hint)),
				zap.Error(err),
			)
			return nil, "corrections lookup failed: " + err.Error()
		}
		if entry == nil {
			continue
		}
		var warning string
		if err := e.store.RecordUsage(ctx, entry.ID); err != nil {
			zap.L().Warn("record usage failed",
				zap.String("entry_id", entry.ID),
				zap.Error(err),
			)
			warning = "usage not recorded"
		}
		return entry, warning
	}
	return nil, ""
}

// score asks the ML scorer for candidates. Only the top candidate is
// considered: it is accepted when its probability clears the threshold and
// the shape rule (if any) accepts it, otherwise the value stays unresolved.
// Lower-ranked candidates never win over an unresolved outcome.
func (e *Engine) score(ctx context.Context, kind model.FieldKind, text string) (string, float64, bool, string) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ScorerTimeout)
	defer cancel()

	candidates, err := e.scorer.Score(ctx, string(kind), text)
	if err != nil {
		zap.L().Warn("scorer call failed",
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return "", 0, false, "scorer unavailable: " + err.Error()
	}

	if len(candidates) == 0 {
		return "", 0, false, ""
	}
	top := candidates[0]
	if top.Probability < e.cfg.AcceptThreshold {
		return "", 0, false, ""
	}
	if e.validator.HasShape(kind) {
		res := e.validator.Validate(kind, top.Value)
		if !res.WellFormed {
			return "", 0, false, ""
		}
		return res.Candidate, top.Probability, true, ""
	}
	return top.Value, top.Probability, true, ""
}

func (e *Engine) observe(kind model.FieldKind, source model.Source) {
	if e.observer != nil {
		e.observer.ObserveCorrection(kind, source)
	}
}
