package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/docfix/internal/model"
)

// Pool abstracts the pgxpool methods used by PostgresStore so the store can
// be unit-tested against pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool             Pool
	confirmThreshold int
	closeFn          func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"lookup_correction": `SELECT ` + correctionColumns + ` FROM corrections WHERE original = $1 AND kind_hint = $2 AND active`,
	"record_usage":      `UPDATE corrections SET usage_count = usage_count + 1, last_confirmed = $1 WHERE id = $2`,
	"export_active":     `SELECT ` + correctionColumns + ` FROM corrections WHERE active ORDER BY original ASC, kind_hint ASC`,
	"insert_feedback":   `INSERT INTO feedback (id, original, corrected, kind, document_id, accepted, flagged, applied, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig, confirmThreshold int) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, confirmThreshold: confirmThreshold, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS corrections (
	id             TEXT PRIMARY KEY,
	original       TEXT NOT NULL,
	corrected      TEXT NOT NULL,
	kind_hint      TEXT NOT NULL DEFAULT '',
	usage_count    INTEGER NOT NULL DEFAULT 1,
	human_confirms INTEGER NOT NULL DEFAULT 0,
	active         BOOLEAN NOT NULL DEFAULT true,
	first_seen     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_confirmed TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_corrections_active_scope
	ON corrections(original, kind_hint) WHERE active;
CREATE INDEX IF NOT EXISTS idx_corrections_scope ON corrections(original, kind_hint);

CREATE TABLE IF NOT EXISTS feedback (
	id          TEXT PRIMARY KEY,
	original    TEXT NOT NULL,
	corrected   TEXT NOT NULL,
	kind        TEXT NOT NULL DEFAULT '',
	document_id TEXT NOT NULL DEFAULT '',
	accepted    BOOLEAN NOT NULL DEFAULT true,
	flagged     BOOLEAN NOT NULL DEFAULT false,
	applied     BOOLEAN NOT NULL DEFAULT false,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_feedback_created ON feedback(created_at);
CREATE INDEX IF NOT EXISTS idx_feedback_applied ON feedback(applied);

CREATE TABLE IF NOT EXISTS dead_letters (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	error       TEXT NOT NULL,
	error_type  TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Lookup(ctx context.Context, original string, hint model.FieldKind) (*model.CorrectionEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+correctionColumns+` FROM corrections WHERE original = $1 AND kind_hint = $2 AND active`,
		original, string(hint),
	)
	e, err := scanPgCorrection(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: lookup correction")
	}
	return e, nil
}

func (s *PostgresStore) RecordUsage(ctx context.Context, entryID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE corrections SET usage_count = usage_count + 1, last_confirmed = $1 WHERE id = $2`,
		time.Now().UTC(), entryID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: record usage %s", entryID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("correction not found: %s", entryID)
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, original, corrected string, hint model.FieldKind, confirmedByHuman bool) (*model.CorrectionEntry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin upsert")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	human := 0
	if confirmedByHuman {
		human = 1
	}

	// Transaction-scoped advisory lock on the scope hash. FOR UPDATE alone
	// cannot serialize first-time upserts: with no row to lock, two writers
	// would both see a nil incumbent and race the partial unique index.
	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1 || '|' || $2, 0))`,
		original, string(hint),
	); err != nil {
		return nil, eris.Wrap(err, "postgres: upsert lock scope")
	}

	incumbent, err := scanPgOptional(tx.QueryRow(ctx,
		`SELECT `+correctionColumns+` FROM corrections
		 WHERE original = $1 AND kind_hint = $2 AND active FOR UPDATE`,
		original, string(hint),
	))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: upsert read incumbent")
	}

	if incumbent != nil && incumbent.Corrected == corrected {
		if _, err := tx.Exec(ctx,
			`UPDATE corrections
			 SET usage_count = usage_count + 1, human_confirms = human_confirms + $1, last_confirmed = $2
			 WHERE id = $3`,
			human, now, incumbent.ID,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: upsert reinforce")
		}
		incumbent.UsageCount++
		incumbent.HumanConfirms += human
		incumbent.LastConfirmed = now
		return incumbent, eris.Wrap(tx.Commit(ctx), "postgres: upsert commit")
	}

	challenger, err := scanPgOptional(tx.QueryRow(ctx,
		`SELECT `+correctionColumns+` FROM corrections
		 WHERE original = $1 AND kind_hint = $2 AND corrected = $3 AND NOT active
		 ORDER BY last_confirmed DESC LIMIT 1 FOR UPDATE`,
		original, string(hint), corrected,
	))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: upsert read challenger")
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
		if _, err := tx.Exec(ctx,
			`INSERT INTO corrections (`+correctionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, false, $7, $8)`,
			challenger.ID, original, corrected, string(hint),
			challenger.UsageCount, challenger.HumanConfirms, now, now,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: upsert insert challenger")
		}
	} else {
		challenger.UsageCount++
		challenger.HumanConfirms += human
		challenger.LastConfirmed = now
		if _, err := tx.Exec(ctx,
			`UPDATE corrections SET usage_count = $1, human_confirms = $2, last_confirmed = $3 WHERE id = $4`,
			challenger.UsageCount, challenger.HumanConfirms, now, challenger.ID,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: upsert bump challenger")
		}
	}

	winner := challenger
	if incumbent != nil {
		if challenger.Confidence(s.confirmThreshold) >= incumbent.Confidence(s.confirmThreshold) {
			if _, err := tx.Exec(ctx,
				`UPDATE corrections SET active = false WHERE id = $1`, incumbent.ID,
			); err != nil {
				return nil, eris.Wrap(err, "postgres: upsert deactivate incumbent")
			}
		} else {
			winner = incumbent
		}
	}
	if winner == challenger {
		if _, err := tx.Exec(ctx,
			`UPDATE corrections SET active = true WHERE id = $1`, challenger.ID,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: upsert activate challenger")
		}
		challenger.Active = true
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: upsert commit")
	}
	return winner, nil
}

func (s *PostgresStore) Export(ctx context.Context) ([]model.CorrectionEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+correctionColumns+` FROM corrections WHERE active ORDER BY original ASC, kind_hint ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: export corrections")
	}
	defer rows.Close()

	var out []model.CorrectionEntry
	for rows.Next() {
		e, err := scanPgCorrection(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: export scan")
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: export iterate")
}

func (s *PostgresStore) AppendFeedback(ctx context.Context, rec *model.FeedbackRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO feedback (id, original, corrected, kind, document_id, accepted, flagged, applied, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.Original, rec.Corrected, string(rec.Kind), rec.DocumentID,
		rec.Accepted, rec.Flagged, rec.Applied, rec.CreatedAt,
	)
	return eris.Wrap(err, "postgres: append feedback")
}

func (s *PostgresStore) ListFeedback(ctx context.Context, window FeedbackWindow) ([]model.FeedbackRecord, error) {
	query := `SELECT id, original, corrected, kind, document_id, accepted, flagged, applied, created_at
	          FROM feedback WHERE true`
	var args []any

	if !window.Since.IsZero() {
		args = append(args, window.Since.UTC())
		query += ` AND created_at >= $1`
	}
	if window.UnappliedOnly {
		query += ` AND NOT applied`
	}
	query += ` ORDER BY created_at ASC`

	limit := window.Limit
	if limit <= 0 {
		limit = 10000
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list feedback")
	}
	defer rows.Close()

	var out []model.FeedbackRecord
	for rows.Next() {
		var r model.FeedbackRecord
		var kind string
		if err := rows.Scan(&r.ID, &r.Original, &r.Corrected, &kind, &r.DocumentID,
			&r.Accepted, &r.Flagged, &r.Applied, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan feedback")
		}
		r.Kind = model.FieldKind(kind)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list feedback iterate")
}

func (s *PostgresStore) MarkFeedbackApplied(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE feedback SET applied = true WHERE id = ANY($1)`, ids,
	)
	return eris.Wrap(err, "postgres: mark feedback applied")
}

func (s *PostgresStore) FeedbackStats(ctx context.Context) (*model.FeedbackStats, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE accepted),
		        COUNT(*) FILTER (WHERE flagged),
		        COUNT(*) FILTER (WHERE applied)
		 FROM feedback`,
	)
	var st model.FeedbackStats
	if err := row.Scan(&st.Total, &st.Accepted, &st.Flagged, &st.Applied); err != nil {
		return nil, eris.Wrap(err, "postgres: feedback stats")
	}
	st.Unapplied = st.Total - st.Applied
	return &st, nil
}

func (s *PostgresStore) AppendDeadLetter(ctx context.Context, dl DeadLetter) error {
	if dl.ID == "" {
		dl.ID = uuid.New().String()
	}
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO dead_letters (id, document_id, error, error_type, created_at) VALUES ($1, $2, $3, $4, $5)`,
		dl.ID, dl.DocumentID, dl.Error, dl.ErrorType, dl.CreatedAt,
	)
	return eris.Wrap(err, "postgres: append dead letter")
}

func (s *PostgresStore) ListDeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, error, error_type, created_at FROM dead_letters ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dead letters")
	}
	defer rows.Close()

	var out []DeadLetter
	for rows.Next() {
		var dl DeadLetter
		if err := rows.Scan(&dl.ID, &dl.DocumentID, &dl.Error, &dl.ErrorType, &dl.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dead letter")
		}
		out = append(out, dl)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list dead letters iterate")
}

// helpers

type pgScannable interface {
	Scan(dest ...any) error
}

func scanPgCorrection(row pgScannable) (*model.CorrectionEntry, error) {
	var e model.CorrectionEntry
	var hint string
	err := row.Scan(&e.ID, &e.Original, &e.Corrected, &hint,
		&e.UsageCount, &e.HumanConfirms, &e.Active, &e.FirstSeen, &e.LastConfirmed)
	if err != nil {
		return nil, err
	}
	e.KindHint = model.FieldKind(hint)
	return &e, nil
}

func scanPgOptional(row pgScannable) (*model.CorrectionEntry, error) {
	e, err := scanPgCorrection(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}
