// Package ledger journals job status transitions to SQLite.
//
// A Ledger is registered on a JobSystem as an observer. Transitions are
// buffered in memory while the job system's queue locks are held and written
// to the database in batches by a background flusher, so storage latency never
// reaches the workers.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jirevwe/litejob"
	"github.com/jirevwe/litejob/queue"
	"github.com/jmoiron/sqlx"
)

var (
	ErrJobNotFound = errors.New("ledger: job not found")
	ErrClosed      = errors.New("ledger: ledger is closed")
)

// Ledger is a litejob.Observer that persists every transition it sees.
type Ledger struct {
	logger *slog.Logger
	db     *sqlx.DB

	// transitions waiting to be written, in arrival order
	pending *queue.Queue[*entry]

	// next sequence number, only touched under the pending queue's lock
	nextSeq int64

	flushInterval time.Duration
	batchSize     int
	retries       int
	retryDelay    time.Duration

	// serializes flushes from the background loop and Flush callers
	flushMu sync.Mutex

	// ensure the flusher can only be started once
	start sync.Once

	// ensure the ledger can only be closed once
	stop sync.Once

	quit    chan struct{}
	done    chan struct{}
	running bool

	// set once Close begins, after which transitions are no longer buffered
	closed atomic.Bool
}

var _ litejob.Observer = (*Ledger)(nil)

// Option configures a Ledger.
type Option func(*Ledger)

// WithFlushInterval sets how often the background flusher writes buffered
// transitions.
func WithFlushInterval(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.flushInterval = d
		}
	}
}

// WithBatchSize caps the number of transitions written per transaction.
func WithBatchSize(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

// WithRetries sets how many times a failed batch write is attempted.
func WithRetries(n int, delay time.Duration) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.retries = n
		}
		l.retryDelay = delay
	}
}

// Open opens (creating if needed) the SQLite database at dbPath and prepares
// the ledger tables. Call Start to run the background flusher.
func Open(dbPath string, logger *slog.Logger, opts ...Option) (*Ledger, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}

	db, err := openSqlite(dbPath)
	if err != nil {
		return nil, err
	}

	l := &Ledger{
		logger:        logger,
		db:            db,
		pending:       queue.New[*entry](),
		flushInterval: 100 * time.Millisecond,
		batchSize:     500,
		retries:       3,
		retryDelay:    50 * time.Millisecond,
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	for _, opt := range opts {
		opt(l)
	}

	if err = l.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return l, nil
}

// OnTransition buffers t for the next flush. It never blocks on the database.
// Transitions observed once the ledger is closing are dropped.
func (l *Ledger) OnTransition(t litejob.Transition) {
	if l.closed.Load() {
		return
	}

	_ = l.pending.Push(&entry{t: t}, func(e *entry) error {
		l.nextSeq++
		e.seq = l.nextSeq
		return nil
	})
}

// Pending returns the number of buffered transitions not yet written.
func (l *Ledger) Pending() int {
	return l.pending.Len()
}

// Start runs the background flusher. Calling it more than once has no effect.
func (l *Ledger) Start() {
	l.start.Do(func() {
		l.logger.Info("starting ledger flusher", slog.Duration("flush_interval", l.flushInterval))
		l.running = true
		go l.run()
	})
}

func (l *Ledger) run() {
	defer close(l.done)

	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.quit:
			return
		case <-ticker.C:
			if err := l.flush(context.Background()); err != nil {
				l.logger.Error(fmt.Sprintf("ledger flush failed: %v", err))
			}
		}
	}
}

// Flush writes every buffered transition, in batches, before returning.
// A batch that cannot be written stays buffered for the next flush.
func (l *Ledger) Flush(ctx context.Context) error {
	if l.closed.Load() {
		return ErrClosed
	}
	return l.flush(ctx)
}

func (l *Ledger) flush(ctx context.Context) error {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	for {
		batch := l.pending.Peek(l.batchSize)
		if len(batch) == 0 {
			return nil
		}

		err := NewRetry(l.retries, l.retryDelay, func() error {
			return l.writeBatch(ctx, batch)
		}).Do()
		if err != nil {
			return fmt.Errorf("cannot write %d transitions: %w", len(batch), err)
		}

		// flushMu makes this the only consumer, so the head is still the batch
		l.pending.Discard(len(batch))
	}
}

// Close stops the flusher, writes what is still buffered and closes the
// database. Transitions observed after Close are dropped, and so is whatever
// the final flush could not write.
func (l *Ledger) Close() (err error) {
	l.stop.Do(func() {
		l.closed.Store(true)
		l.start.Do(func() {})

		if l.running {
			close(l.quit)
			<-l.done
		}

		flushErr := l.flush(context.Background())
		if dropped := l.pending.Discard(l.pending.Len()); dropped > 0 {
			l.logger.Error(fmt.Sprintf("ledger closed with %d unwritten transitions", dropped))
		}
		closeErr := l.db.Close()
		err = errors.Join(flushErr, closeErr)

		l.logger.Info("ledger has been closed")
	})
	return err
}
