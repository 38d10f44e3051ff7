package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docfix/internal/analyzer"
	"github.com/sells-group/docfix/internal/batch"
	"github.com/sells-group/docfix/internal/engine"
	"github.com/sells-group/docfix/internal/feedback"
	"github.com/sells-group/docfix/internal/model"
	"github.com/sells-group/docfix/internal/monitoring"
	"github.com/sells-group/docfix/internal/ocr"
	"github.com/sells-group/docfix/internal/store"
	"github.com/sells-group/docfix/pkg/classifier"
	"github.com/sells-group/docfix/pkg/mlscorer"
)

// appEnv holds every wired service a command may need.
type appEnv struct {
	Store        store.Store
	Engine       *engine.Engine
	Ingestor     *feedback.Ingestor
	Analyzer     *analyzer.Analyzer
	Orchestrator *batch.Orchestrator
	Collector    *monitoring.Collector
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		dsn := cfg.Store.SQLitePath
		if dsn == "" {
			dsn = "docfix.db"
		}
		return store.NewSQLite(dsn, cfg.Engine.ConfirmationThreshold)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		}, cfg.Engine.ConfirmationThreshold)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initScorer() mlscorer.Client {
	if cfg.Scorer.BaseURL == "" {
		return nil
	}
	return mlscorer.NewClient(cfg.Scorer.BaseURL, cfg.Scorer.Key,
		mlscorer.WithRateLimit(cfg.Scorer.RateLimit, cfg.Scorer.RateBurst),
		mlscorer.WithMaxAttempts(cfg.Scorer.MaxAttempts),
	)
}

func initEngine(st store.Store, collector *monitoring.Collector) *engine.Engine {
	opts := []engine.Option{engine.WithObserver(collector)}
	if scorer := initScorer(); scorer != nil {
		opts = append(opts, engine.WithScorer(scorer))
	} else {
		zap.L().Warn("scorer base url not set, unresolved values will not be scored")
	}
	return engine.New(st, engine.Config{
		AcceptThreshold:       cfg.Engine.AcceptThreshold,
		ConfirmationThreshold: cfg.Engine.ConfirmationThreshold,
		ScorerTimeout:         time.Duration(cfg.Engine.ScorerTimeoutSecs) * time.Second,
	}, opts...)
}

func initTemplates() (*model.TemplateRegistry, error) {
	if cfg.Templates.Path == "" {
		return nil, nil
	}
	return model.LoadTemplates(cfg.Templates.Path)
}

// initEnv wires the full service graph and migrates the store.
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	collector := monitoring.NewCollector(st)
	eng := initEngine(st, collector)

	extractor, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		st.Close()
		return nil, err
	}

	templates, err := initTemplates()
	if err != nil {
		st.Close()
		return nil, err
	}

	batchOpts := []batch.Option{
		batch.WithDeadLetters(st),
		batch.WithTemplates(templates),
	}
	if cfg.Classifier.BaseURL != "" {
		batchOpts = append(batchOpts, batch.WithClassifier(classifier.NewClient(cfg.Classifier.BaseURL)))
	}

	return &appEnv{
		Store:    st,
		Engine:   eng,
		Ingestor: feedback.NewIngestor(st),
		Analyzer: analyzer.New(st, analyzer.Config{
			MinOccurrences:      cfg.Analyzer.MinOccurrences,
			AutoApplyConfidence: cfg.Analyzer.AutoApplyConfidence,
			Window:              time.Duration(cfg.Analyzer.WindowHours) * time.Hour,
		}),
		Orchestrator: batch.New(extractor, eng, batch.Config{
			MaxConcurrentDocuments: cfg.Batch.MaxConcurrentDocuments,
			ExtractTimeout:         time.Duration(cfg.Batch.ExtractTimeoutSecs) * time.Second,
		}, batchOpts...),
		Collector: collector,
	}, nil
}

func (e *appEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}
