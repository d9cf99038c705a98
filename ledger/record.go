package ledger

import (
	"fmt"
	"time"

	"github.com/jirevwe/litejob"
	"github.com/oklog/ulid/v2"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// rfc3339Milli is like time.RFC3339Nano, but with millisecond precision
	rfc3339Milli = "2006-01-02T15:04:05.000Z07:00"
)

// entry is a transition waiting in the write buffer.
type entry struct {
	seq int64
	t   litejob.Transition
}

// record is the msgpack form of a transition stored in job_transitions.record.
type record struct {
	JobID    string    `msgpack:"job_id"`
	Kind     string    `msgpack:"kind"`
	From     string    `msgpack:"from"`
	To       string    `msgpack:"to"`
	WorkerID int       `msgpack:"worker_id"`
	At       time.Time `msgpack:"at"`
}

func encodeTransition(t litejob.Transition) ([]byte, error) {
	return msgpack.Marshal(&record{
		JobID:    t.JobID.String(),
		Kind:     t.Kind,
		From:     t.From.String(),
		To:       t.To.String(),
		WorkerID: t.WorkerID,
		At:       t.At.UTC(),
	})
}

func decodeTransition(raw []byte) (litejob.Transition, error) {
	var r record
	if err := msgpack.Unmarshal(raw, &r); err != nil {
		return litejob.Transition{}, fmt.Errorf("cannot decode transition record: %w", err)
	}

	id, err := ulid.Parse(r.JobID)
	if err != nil {
		return litejob.Transition{}, fmt.Errorf("cannot decode transition record: %w", err)
	}

	from, err := litejob.ParseStatus(r.From)
	if err != nil {
		return litejob.Transition{}, err
	}

	to, err := litejob.ParseStatus(r.To)
	if err != nil {
		return litejob.Transition{}, err
	}

	return litejob.Transition{
		JobID:    id,
		Kind:     r.Kind,
		From:     from,
		To:       to,
		WorkerID: r.WorkerID,
		At:       r.At,
	}, nil
}

// JobRow is the latest known state of a job.
type JobRow struct {
	Id        string `json:"id" db:"id"`
	Kind      string `json:"kind" db:"kind"`
	Status    string `json:"status" db:"status"`
	CreatedAt string `json:"created_at" db:"created_at"`
	UpdatedAt string `json:"updated_at" db:"updated_at"`
}

// State parses the stored status.
func (j JobRow) State() (litejob.Status, error) {
	return litejob.ParseStatus(j.Status)
}

type transitionRow struct {
	Id         string `db:"id"`
	Seq        int64  `db:"seq"`
	JobId      string `db:"job_id"`
	FromStatus string `db:"from_status"`
	ToStatus   string `db:"to_status"`
	WorkerId   int    `db:"worker_id"`
	At         string `db:"at"`
	Record     []byte `db:"record"`
}
