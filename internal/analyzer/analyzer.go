// Package analyzer mines the feedback log for recurring OCR mistakes and
// promotes stable ones into the corrections store.
package analyzer

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docfix/internal/model"
	"github.com/sells-group/docfix/internal/store"
)

// Source is the subset of the corrections store the analyzer needs.
type Source interface {
	ListFeedback(ctx context.Context, window store.FeedbackWindow) ([]model.FeedbackRecord, error)
	Lookup(ctx context.Context, original string, hint model.FieldKind) (*model.CorrectionEntry, error)
	Upsert(ctx context.Context, original, corrected string, hint model.FieldKind, confirmedByHuman bool) (*model.CorrectionEntry, error)
	MarkFeedbackApplied(ctx context.Context, ids []string) error
}

// Config tunes pattern promotion.
type Config struct {
	// MinOccurrences is how many agreeing reviews a mapping needs before it
	// becomes a proposal. Default: 2.
	MinOccurrences int

	// AutoApplyConfidence is the minimum agreement ratio for unattended
	// promotion. Default: 0.7.
	AutoApplyConfidence float64

	// Window bounds how far back feedback is considered. Default: 168h.
	Window time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinOccurrences <= 0 {
		c.MinOccurrences = 2
	}
	if c.AutoApplyConfidence <= 0 {
		c.AutoApplyConfidence = 0.7
	}
	if c.Window <= 0 {
		c.Window = 168 * time.Hour
	}
	return c
}

// Analyzer groups unapplied feedback into correction proposals.
type Analyzer struct {
	src Source
	cfg Config
	now func() time.Time
}

// New creates an Analyzer over the given feedback source.
func New(src Source, cfg Config) *Analyzer {
	return &Analyzer{src: src, cfg: cfg.withDefaults(), now: time.Now}
}

type scopeKey struct {
	original string
	kind     model.FieldKind
}

// Analyze reads unapplied feedback from the configured window and returns
// one proposal per (original, kind) scope that has enough agreeing reviews.
// Flagged records count against agreement but never vote for a value.
// Scopes whose winning value is already served by an active store entry are
// skipped; an active entry the reviewers voted against stays contested and
// still produces a proposal.
func (a *Analyzer) Analyze(ctx context.Context) ([]model.ProposedEntry, error) {
	records, err := a.src.ListFeedback(ctx, store.FeedbackWindow{
		Since:         a.now().Add(-a.cfg.Window),
		UnappliedOnly: true,
	})
	if err != nil {
		return nil, eris.Wrap(err, "analyzer: list feedback")
	}

	groups := make(map[scopeKey][]model.FeedbackRecord)
	for _, r := range records {
		key := scopeKey{original: r.Original, kind: r.Kind}
		groups[key] = append(groups[key], r)
	}

	var proposals []model.ProposedEntry
	for key, recs := range groups {
		p, ok := a.propose(key, recs)
		if !ok {
			continue
		}
		covered, err := a.alreadyCovered(ctx, p)
		if err != nil {
			return nil, err
		}
		if covered {
			continue
		}
		proposals = append(proposals, p)
	}

	sort.Slice(proposals, func(i, j int) bool {
		if proposals[i].Occurrences != proposals[j].Occurrences {
			return proposals[i].Occurrences > proposals[j].Occurrences
		}
		if proposals[i].Original != proposals[j].Original {
			return proposals[i].Original < proposals[j].Original
		}
		return proposals[i].Kind < proposals[j].Kind
	})
	return proposals, nil
}

// alreadyCovered reports whether an active store entry already maps the
// proposal's original to its corrected value. An entry with a different
// corrected value does not cover the scope: the feedback majority disagrees
// with it, so the proposal goes forward for review.
func (a *Analyzer) alreadyCovered(ctx context.Context, p model.ProposedEntry) (bool, error) {
	entry, err := a.src.Lookup(ctx, p.Original, p.Kind)
	if err != nil {
		return false, eris.Wrapf(err, "analyzer: lookup %q", p.Original)
	}
	return entry != nil && entry.Corrected == p.Corrected, nil
}

// propose picks the majority corrected value for one scope. Ties go to the
// most recently reviewed value.
func (a *Analyzer) propose(key scopeKey, recs []model.FeedbackRecord) (model.ProposedEntry, bool) {
	votes := make(map[string]int)
	latest := make(map[string]time.Time)
	ids := make(map[string][]string)
	accepted := 0

	for _, r := range recs {
		if r.Accepted {
			accepted++
		}
		if !r.Accepted || r.Flagged || r.Corrected == "" {
			continue
		}
		votes[r.Corrected]++
		ids[r.Corrected] = append(ids[r.Corrected], r.ID)
		if r.CreatedAt.After(latest[r.Corrected]) {
			latest[r.Corrected] = r.CreatedAt
		}
	}
	if len(votes) == 0 {
		return model.ProposedEntry{}, false
	}

	var winner string
	for value, n := range votes {
		if winner == "" || n > votes[winner] ||
			(n == votes[winner] && latest[value].After(latest[winner])) {
			winner = value
		}
	}

	occurrences := votes[winner]
	if occurrences < a.cfg.MinOccurrences {
		return model.ProposedEntry{}, false
	}

	total := len(recs)
	confidence := float64(occurrences) / float64(total)
	p := model.ProposedEntry{
		Original:    key.original,
		Corrected:   winner,
		Kind:        key.kind,
		Occurrences: occurrences,
		AcceptRate:  float64(accepted) / float64(total),
		Confidence:  confidence,
		AutoApply:   confidence >= a.cfg.AutoApplyConfidence,
		FeedbackIDs: ids[winner],
	}
	return p, true
}

// Apply promotes every auto-apply proposal into the corrections store and
// marks its supporting feedback as applied. Returns how many were promoted.
func (a *Analyzer) Apply(ctx context.Context, proposals []model.ProposedEntry) (int, error) {
	applied := 0
	for _, p := range proposals {
		if !p.AutoApply {
			continue
		}
		if _, err := a.src.Upsert(ctx, p.Original, p.Corrected, p.Kind, true); err != nil {
			return applied, eris.Wrapf(err, "analyzer: promote %q", p.Original)
		}
		if err := a.src.MarkFeedbackApplied(ctx, p.FeedbackIDs); err != nil {
			return applied, eris.Wrapf(err, "analyzer: mark applied %q", p.Original)
		}
		applied++
		zap.L().Info("promoted correction",
			zap.String("original", p.Original),
			zap.String("corrected", p.Corrected),
			zap.String("kind", string(p.Kind)),
			zap.Int("occurrences", p.Occurrences),
		)
	}
	return applied, nil
}

// Run is Analyze followed by Apply.
func (a *Analyzer) Run(ctx context.Context) ([]model.ProposedEntry, int, error) {
	proposals, err := a.Analyze(ctx)
	if err != nil {
		return nil, 0, err
	}
	applied, err := a.Apply(ctx, proposals)
	return proposals, applied, err
}
