package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/itchlabs/itch/api/schemas"
)

// PgxIface is the slice of pgxpool.Pool the Postgres sink depends on.
// pgxmock implements it for tests.
type PgxIface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Close()
}

// Postgres mirrors succeeded records and permanent failures into two
// tables, keyed by record/task ID so re-running a task list upserts
// instead of duplicating.
type Postgres struct {
	db PgxIface
}

var _ schemas.Sink = (*Postgres)(nil)

// NewPostgres connects a pool to the database and ensures the tables exist.
func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	s := &Postgres{db: pool}
	if err := s.ensureTables(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresWithDB wraps an existing connection, used by tests with pgxmock.
func NewPostgresWithDB(db PgxIface) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) ensureTables(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS records (
			id           TEXT PRIMARY KEY,
			task_id      TEXT NOT NULL,
			extracted_at TIMESTAMPTZ NOT NULL,
			fields       JSONB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS task_failures (
			task_id   TEXT PRIMARY KEY,
			error     TEXT NOT NULL,
			attempts  INT NOT NULL,
			failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		return fmt.Errorf("ensuring result tables: %w", err)
	}
	return nil
}

func (s *Postgres) Emit(ctx context.Context, ev schemas.Event) error {
	switch ev.Outcome {
	case schemas.OutcomeSucceeded:
		fields, err := json.Marshal(ev.Record.Fields)
		if err != nil {
			return fmt.Errorf("marshalling record fields: %w", err)
		}
		_, err = s.db.Exec(ctx, `
			INSERT INTO records (id, task_id, extracted_at, fields)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING;
		`, ev.Record.ID, ev.Record.TaskID, ev.Record.ExtractedAt, fields)
		return err

	case schemas.OutcomeFailed:
		errText := ""
		if ev.Err != nil {
			errText = ev.Err.Error()
		}
		_, err := s.db.Exec(ctx, `
			INSERT INTO task_failures (task_id, error, attempts)
			VALUES ($1, $2, $3)
			ON CONFLICT (task_id) DO UPDATE SET
				error    = EXCLUDED.error,
				attempts = EXCLUDED.attempts,
				failed_at = now();
		`, ev.TaskID, errText, ev.Attempts)
		return err
	}
	return fmt.Errorf("unknown event outcome %q", ev.Outcome)
}

func (s *Postgres) Close() error {
	s.db.Close()
	return nil
}
