package store

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/docfix/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB

	// confirmThreshold parameterizes entry confidence for conflict
	// resolution; see model.CorrectionEntry.Confidence.
	confirmThreshold int

	// upsertMu serializes conflict resolution. SQLite has a single writer
	// anyway; the mutex keeps read-modify-write upserts from interleaving
	// under the driver's connection pool.
	upsertMu sync.Mutex
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string, confirmThreshold int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, confirmThreshold: confirmThreshold}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS corrections (
	id             TEXT PRIMARY KEY,
	original       TEXT NOT NULL,
	corrected      TEXT NOT NULL,
	kind_hint      TEXT NOT NULL DEFAULT '',
	usage_count    INTEGER NOT NULL DEFAULT 1,
	human_confirms INTEGER NOT NULL DEFAULT 0,
	active         INTEGER NOT NULL DEFAULT 1,
	first_seen     DATETIME NOT NULL,
	last_confirmed DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_corrections_active_scope
	ON corrections(original, kind_hint) WHERE active = 1;
CREATE INDEX IF NOT EXISTS idx_corrections_scope
	ON corrections(original, kind_hint);

CREATE TABLE IF NOT EXISTS feedback (
	id          TEXT PRIMARY KEY,
	original    TEXT NOT NULL,
	corrected   TEXT NOT NULL,
	kind        TEXT NOT NULL DEFAULT '',
	document_id TEXT NOT NULL DEFAULT '',
	accepted    INTEGER NOT NULL DEFAULT 1,
	flagged     INTEGER NOT NULL DEFAULT 0,
	applied     INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_created ON feedback(created_at);
CREATE INDEX IF NOT EXISTS idx_feedback_applied ON feedback(applied);

CREATE TABLE IF NOT EXISTS dead_letters (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	error       TEXT NOT NULL,
	error_type  TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const correctionColumns = `id, original, corrected, kind_hint, usage_count, human_confirms, active, first_seen, last_confirmed`

func (s *SQLiteStore) Lookup(ctx context.Context, original string, hint model.FieldKind) (*model.CorrectionEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+correctionColumns+` FROM corrections
		 WHERE original = ? AND kind_hint = ? AND active = 1`,
		original, string(hint),
	)
	e, err := scanCorrection(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: lookup correction")
	}
	return e, nil
}

func (s *SQLiteStore) RecordUsage(ctx context.Context, entryID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE corrections
		 SET usage_count = usage_count + 1, last_confirmed = ?
		 WHERE id = ?`,
		time.Now().UTC(), entryID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: record usage %s", entryID)
	}
	return checkRowsAffected(res, "correction", entryID)
}

func (s *SQLiteStore) Upsert(ctx context.Context, original, corrected string, hint model.FieldKind, confirmedByHuman bool) (*model.CorrectionEntry, error) {
	s.upsertMu.Lock()
	defer s.upsertMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	human := 0
	if confirmedByHuman {
		human = 1
	}

	incumbent, err := scanOptional(tx.QueryRowContext(ctx,
		`SELECT `+correctionColumns+` FROM corrections
		 WHERE original = ? AND kind_hint = ? AND active = 1`,
		original, string(hint),
	))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: upsert read incumbent")
	}

	// Reinforcement: same corrected value for the scope, or no entry yet.
	if incumbent != nil && incumbent.Corrected == corrected {
		if _, err := tx.ExecContext(ctx,
			`UPDATE corrections
			 SET usage_count = usage_count + 1, human_confirms = human_confirms + ?, last_confirmed = ?
			 WHERE id = ?`,
			human, now, incumbent.ID,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: upsert reinforce")
		}
		incumbent.UsageCount++
		incumbent.HumanConfirms += human
		incumbent.LastConfirmed = now
		return incumbent, eris.Wrap(tx.Commit(), "sqlite: upsert commit")
	}

	// Locate a prior (inactive) entry for this exact mapping so superseded
	// corrections can regain their history instead of starting over.
	challenger, err := scanOptional(tx.QueryRowContext(ctx,
		`SELECT `+correctionColumns+` FROM corrections
		 WHERE original = ? AND kind_hint = ? AND corrected = ? AND active = 0
		 ORDER BY last_confirmed DESC LIMIT 1`,
		original, string(hint), corrected,
	))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: upsert read challenger")
	}

	if challenger == nil {
		challenger = &model.CorrectionEntry{
			ID:            uuid.New().String(),
			Original:      original,
			Corrected:     corrected,
			KindHint:      hint,
			UsageCount:    1,
			HumanConfirms: human,
			FirstSeen:     now,
			LastConfirmed: now,
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO corrections (`+correctionColumns+`) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			challenger.ID, original, corrected, string(hint),
			challenger.UsageCount, challenger.HumanConfirms, now, now,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: upsert insert challenger")
		}
	} else {
		challenger.UsageCount++
		challenger.HumanConfirms += human
		challenger.LastConfirmed = now
		if _, err := tx.ExecContext(ctx,
			`UPDATE corrections
			 SET usage_count = ?, human_confirms = ?, last_confirmed = ?
			 WHERE id = ?`,
			challenger.UsageCount, challenger.HumanConfirms, now, challenger.ID,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: upsert bump challenger")
		}
	}

	// Conflict resolution: the higher weighted confidence stays active;
	// the loser is retained inactive for audit. Ties favor the most
	// recently confirmed entry, which is always the challenger here.
	winner := challenger
	if incumbent != nil {
		if challenger.Confidence(s.confirmThreshold) >= incumbent.Confidence(s.confirmThreshold) {
			if _, err := tx.ExecContext(ctx,
				`UPDATE corrections SET active = 0 WHERE id = ?`, incumbent.ID,
			); err != nil {
				return nil, eris.Wrap(err, "sqlite: upsert deactivate incumbent")
			}
		} else {
			winner = incumbent
		}
	}
	if winner == challenger {
		if _, err := tx.ExecContext(ctx,
			`UPDATE corrections SET active = 1 WHERE id = ?`, challenger.ID,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: upsert activate challenger")
		}
		challenger.Active = true
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: upsert commit")
	}
	return winner, nil
}

func (s *SQLiteStore) Export(ctx context.Context) ([]model.CorrectionEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+correctionColumns+` FROM corrections
		 WHERE active = 1 ORDER BY original ASC, kind_hint ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: export corrections")
	}
	defer rows.Close()

	var out []model.CorrectionEntry
	for rows.Next() {
		e, err := scanCorrection(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: export scan")
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: export iterate")
}

func (s *SQLiteStore) AppendFeedback(ctx context.Context, rec *model.FeedbackRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (id, original, corrected, kind, document_id, accepted, flagged, applied, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Original, rec.Corrected, string(rec.Kind), rec.DocumentID,
		boolToInt(rec.Accepted), boolToInt(rec.Flagged), boolToInt(rec.Applied), rec.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: append feedback")
}

func (s *SQLiteStore) ListFeedback(ctx context.Context, window FeedbackWindow) ([]model.FeedbackRecord, error) {
	query := `SELECT id, original, corrected, kind, document_id, accepted, flagged, applied, created_at
	          FROM feedback WHERE 1=1`
	var args []any

	if !window.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, window.Since.UTC())
	}
	if window.UnappliedOnly {
		query += ` AND applied = 0`
	}
	query += ` ORDER BY created_at ASC`

	limit := window.Limit
	if limit <= 0 {
		limit = 10000
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list feedback")
	}
	defer rows.Close()

	var out []model.FeedbackRecord
	for rows.Next() {
		var r model.FeedbackRecord
		var kind string
		var accepted, flagged, applied int
		if err := rows.Scan(&r.ID, &r.Original, &r.Corrected, &kind, &r.DocumentID,
			&accepted, &flagged, &applied, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feedback")
		}
		r.Kind = model.FieldKind(kind)
		r.Accepted = accepted == 1
		r.Flagged = flagged == 1
		r.Applied = applied == 1
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list feedback iterate")
}

func (s *SQLiteStore) MarkFeedbackApplied(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: mark applied begin")
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`UPDATE feedback SET applied = 1 WHERE id = ?`, id,
		); err != nil {
			return eris.Wrapf(err, "sqlite: mark applied %s", id)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: mark applied commit")
}

func (s *SQLiteStore) FeedbackStats(ctx context.Context) (*model.FeedbackStats, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(accepted), 0),
		        COALESCE(SUM(flagged), 0),
		        COALESCE(SUM(applied), 0)
		 FROM feedback`,
	)
	var st model.FeedbackStats
	if err := row.Scan(&st.Total, &st.Accepted, &st.Flagged, &st.Applied); err != nil {
		return nil, eris.Wrap(err, "sqlite: feedback stats")
	}
	st.Unapplied = st.Total - st.Applied
	return &st, nil
}

func (s *SQLiteStore) AppendDeadLetter(ctx context.Context, dl DeadLetter) error {
	if dl.ID == "" {
		dl.ID = uuid.New().String()
	}
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dead_letters (id, document_id, error, error_type, created_at) VALUES (?, ?, ?, ?, ?)`,
		dl.ID, dl.DocumentID, dl.Error, dl.ErrorType, dl.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: append dead letter")
}

func (s *SQLiteStore) ListDeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, error, error_type, created_at
		 FROM dead_letters ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dead letters")
	}
	defer rows.Close()

	var out []DeadLetter
	for rows.Next() {
		var dl DeadLetter
		if err := rows.Scan(&dl.ID, &dl.DocumentID, &dl.Error, &dl.ErrorType, &dl.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dead letter")
		}
		out = append(out, dl)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list dead letters iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCorrection(row scannable) (*model.CorrectionEntry, error) {
	var e model.CorrectionEntry
	var hint string
	var active int
	err := row.Scan(&e.ID, &e.Original, &e.Corrected, &hint,
		&e.UsageCount, &e.HumanConfirms, &active, &e.FirstSeen, &e.LastConfirmed)
	if err != nil {
		return nil, err
	}
	e.KindHint = model.FieldKind(hint)
	e.Active = active == 1
	return &e, nil
}

func scanOptional(row scannable) (*model.CorrectionEntry, error) {
	e, err := scanCorrection(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}
