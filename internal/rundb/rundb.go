// Package rundb records rr replacement-driver run history in an embedded
// bbolt database: one record per build or fetch attempt of a pkgbase
// (keyed by a google/uuid run ID) plus a rolling index of the most recent
// attempt per pkgbase, so a resumed or
// repeated invocation can report "last attempted at" without re-deriving
// it from log files.
//
// Grounded on the teacher's builddb.DB (bucket-per-concern bbolt wrapper,
// JSON-encoded records, sentinel + structured error pairing for
// errors.Is/errors.As).
package rundb

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

const (
	bucketRuns     = "runs"
	bucketAttempts = "attempts" // pkgbase -> most recent RunID
)

// ErrRunNotFound is returned when a run ID has no matching record.
var ErrRunNotFound = fmt.Errorf("rundb: run not found")

// Outcome is a replacement attempt's terminal state.
type Outcome string

const (
	OutcomeRunning Outcome = "running"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Run is the record of one build or fetch attempt of a single pkgbase
// during an rr invocation: identity, timing and outcome (the latest per
// pkgbase is mirrored into bucketAttempts for fast lookup).
type Run struct {
	ID        string    `json:"id"`
	PkgBase   string    `json:"pkgbase"`
	PkgPath   string    `json:"pkgpath"`
	Outcome   Outcome   `json:"outcome"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Reason    string    `json:"reason,omitempty"`
}

// DB wraps a bbolt database of run history.
type DB struct {
	bolt *bolt.DB
}

// Open opens (creating if absent) the run-history database at path.
func Open(path string) (*DB, error) {
	bdb, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, &OpenError{Path: path, Err: err}
	}

	err = bdb.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketRuns)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(bucketAttempts))
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, &OpenError{Path: path, Err: err}
	}

	return &DB{bolt: bdb}, nil
}

// Close closes the underlying bbolt database.
func (d *DB) Close() error { return d.bolt.Close() }

// StartRun creates a new Run record with a fresh UUID and OutcomeRunning.
func (d *DB) StartRun(pkgbase, pkgpath string) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		PkgBase:   pkgbase,
		PkgPath:   pkgpath,
		Outcome:   OutcomeRunning,
		StartedAt: time.Now(),
	}
	if err := d.save(run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// Finish stamps a run's terminal outcome and persists it, also updating
// the per-pkgbase "most recent attempt" index.
func (d *DB) Finish(run Run, outcome Outcome, reason string) error {
	run.Outcome = outcome
	run.Reason = reason
	run.EndedAt = time.Now()
	return d.save(run)
}

func (d *DB) save(run Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return &RecordError{Op: "marshal", ID: run.ID, Err: err}
	}
	err = d.bolt.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket([]byte(bucketRuns)).Put([]byte(run.ID), data); err != nil {
			return err
		}
		return tx.Bucket([]byte(bucketAttempts)).Put([]byte(run.PkgBase), []byte(run.ID))
	})
	if err != nil {
		return &RecordError{Op: "save", ID: run.ID, Err: err}
	}
	return nil
}

// Get retrieves a run by ID.
func (d *DB) Get(id string) (Run, error) {
	var run Run
	err := d.bolt.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketRuns)).Get([]byte(id))
		if data == nil {
			return ErrRunNotFound
		}
		return json.Unmarshal(data, &run)
	})
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// LastAttempt returns the most recently recorded run for pkgbase, if any.
func (d *DB) LastAttempt(pkgbase string) (Run, bool, error) {
	var id []byte
	err := d.bolt.View(func(tx *bolt.Tx) error {
		id = tx.Bucket([]byte(bucketAttempts)).Get([]byte(pkgbase))
		return nil
	})
	if err != nil {
		return Run{}, false, err
	}
	if id == nil {
		return Run{}, false, nil
	}
	run, err := d.Get(string(id))
	if err != nil {
		return Run{}, false, err
	}
	return run, true, nil
}

// ListAttempts returns the most recent run for every pkgbase ever
// recorded, ordered by pkgbase, for rr's "status" report.
func (d *DB) ListAttempts() ([]Run, error) {
	var ids [][]byte
	if err := d.bolt.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketAttempts)).ForEach(func(_, id []byte) error {
			ids = append(ids, append([]byte(nil), id...))
			return nil
		})
	}); err != nil {
		return nil, err
	}

	runs := make([]Run, 0, len(ids))
	for _, id := range ids {
		run, err := d.Get(string(id))
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// OpenError wraps a failure to open or initialize the database file.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string { return fmt.Sprintf("rundb: opening %s: %v", e.Path, e.Err) }
func (e *OpenError) Unwrap() error { return e.Err }

// RecordError wraps a failure to read or write a run record.
type RecordError struct {
	Op  string
	ID  string
	Err error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("rundb: %s run %s: %v", e.Op, e.ID, e.Err)
}
func (e *RecordError) Unwrap() error { return e.Err }
