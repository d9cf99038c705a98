package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jirevwe/litejob"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
)

var (
	createJobs = `create table if not exists jobs (
			id TEXT not null primary key,
			kind TEXT not null,
			status TEXT not null,
			created_at TEXT not null default (strftime('%Y-%m-%dT%H:%M:%fZ')),
			updated_at TEXT not null default (strftime('%Y-%m-%dT%H:%M:%fZ'))
		) strict;`

	createTransitions = `CREATE TABLE IF NOT EXISTS job_transitions (
			id TEXT NOT NULL PRIMARY KEY,
			seq INTEGER NOT NULL,
			job_id TEXT NOT NULL,
			from_status TEXT not null,
			to_status TEXT not null,
			worker_id INTEGER not null,
			at TEXT not null,
			record BLOB not null,
			FOREIGN KEY(job_id) REFERENCES jobs(id)
		) strict;`

	createTransitionsJobIndex = `create index if not exists idx_job_transitions_job_id on job_transitions (job_id, seq);`
)

func openSqlite(dbPath string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", fmt.Sprintf("%s?mode=rwc&_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath))
	if err != nil {
		return nil, err
	}

	// one connection: the flusher and readers take turns instead of
	// contending for the write lock
	db.SetMaxOpenConns(1)

	_, err = db.Exec("PRAGMA journal_size_limit = 67108864;")
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	_, err = db.Exec("PRAGMA cache_size = 2000;")
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func (l *Ledger) migrate(ctx context.Context) error {
	return l.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, q := range []string{createJobs, createTransitions, createTransitionsJobIndex} {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeBatch stores a batch of transitions in one transaction. A transition
// that would move a job backwards, or keep it where it is, is skipped.
func (l *Ledger) writeBatch(ctx context.Context, batch []*entry) error {
	return l.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, e := range batch {
			if err := l.writeOne(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (l *Ledger) writeOne(ctx context.Context, tx *sqlx.Tx, e *entry) error {
	t := e.t
	jobID := t.JobID.String()
	at := t.At.UTC().Format(rfc3339Milli)

	var current string
	err := tx.QueryRowxContext(ctx, `select status from jobs where id = $1`, jobID).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			`insert into jobs (id, kind, status, created_at, updated_at) values ($1, $2, $3, $4, $4)`,
			jobID, t.Kind, t.To.String(), at)
		if err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		state, parseErr := litejob.ParseStatus(current)
		if parseErr != nil {
			return parseErr
		}

		if state >= t.To {
			l.logger.Warn(fmt.Sprintf("job %s is already in the %s state", jobID, current),
				slog.String("skipped", t.To.String()),
				slog.Int64("seq", e.seq),
			)
			return nil
		}

		_, err = tx.ExecContext(ctx, `update jobs set status = $1, updated_at = $2 where id = $3`, t.To.String(), at, jobID)
		if err != nil {
			return err
		}
	}

	raw, err := encodeTransition(t)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`insert into job_transitions (id, seq, job_id, from_status, to_status, worker_id, at, record) values ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ulid.Make().String(), e.seq, jobID, t.From.String(), t.To.String(), t.WorkerID, at, raw)
	return err
}

// Job returns the latest stored state of a job.
func (l *Ledger) Job(ctx context.Context, id ulid.ULID) (job JobRow, err error) {
	row := l.db.QueryRowxContext(ctx, `select * from jobs where id = $1`, id.String())
	if err = row.StructScan(&job); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return JobRow{}, ErrJobNotFound
		}
		return JobRow{}, err
	}
	return job, nil
}

// History returns a job's stored transitions in the order they happened.
func (l *Ledger) History(ctx context.Context, id ulid.ULID) ([]litejob.Transition, error) {
	var rows []transitionRow
	err := l.db.SelectContext(ctx, &rows, `select * from job_transitions where job_id = $1 order by seq`, id.String())
	if err != nil {
		return nil, err
	}

	history := make([]litejob.Transition, 0, len(rows))
	for _, r := range rows {
		t, decodeErr := decodeTransition(r.Record)
		if decodeErr != nil {
			return nil, decodeErr
		}
		history = append(history, t)
	}

	return history, nil
}

// CountByStatus returns how many stored jobs are in each state.
func (l *Ledger) CountByStatus(ctx context.Context) (map[litejob.Status]int, error) {
	rows, err := l.db.QueryxContext(ctx, `select status, count(*) from jobs group by status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[litejob.Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err = rows.Scan(&status, &count); err != nil {
			return nil, err
		}

		s, parseErr := litejob.ParseStatus(status)
		if parseErr != nil {
			return nil, parseErr
		}
		counts[s] = count
	}

	return counts, rows.Err()
}

func (l *Ledger) inTx(ctx context.Context, cb func(*sqlx.Tx) error) (err error) {
	tx, beginErr := l.db.BeginTxx(ctx, nil)
	if beginErr != nil {
		return fmt.Errorf("cannot start tx: %w", beginErr)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = rollback(tx, nil)
			panic(rec)
		}
	}()

	if err = cb(tx); err != nil {
		return rollback(tx, err)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("cannot commit tx: %w", commitErr)
	}

	return nil
}

func rollback(tx *sqlx.Tx, err error) error {
	if rollbackErr := tx.Rollback(); rollbackErr != nil {
		return fmt.Errorf("cannot roll back tx after error (tx error: %v), original error: %w", rollbackErr, err)
	}
	return err
}
