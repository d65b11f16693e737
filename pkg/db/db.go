package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	txnConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "custody_db_txn_conflicts_total",
			Help: "Total number of read-write transactions that hit a badger conflict and were retried",
		})
	txnCommitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "custody_db_txn_commits_total",
			Help: "Total number of read-write transactions committed",
		})
)

const (
	// A conflicting transaction is retried this many times before the conflict is returned to the caller.
	maxConflictRetries = 16

	conflictInitialInterval = 2 * time.Millisecond
	conflictMaxInterval     = 250 * time.Millisecond
)

type Database struct {
	db *badger.DB
}

// Open opens (or creates) the on-disk database at path.
func Open(path string) (*Database, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{
		db: db,
	}, nil
}

// OpenInMemory opens a database that lives only as long as the process. Used by tests and devnet.
func OpenInMemory() (*Database, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}

	return &Database{
		db: db,
	}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Update runs fn inside a single read-write transaction. Either every write made by fn is committed or none is.
//
// Badger uses serializable snapshot isolation, so a transaction that raced a concurrent writer on any key
// it read fails at commit with badger.ErrConflict. Such transactions are rerun from scratch, which means fn
// must not carry state between invocations. Any other error returned by fn aborts the transaction and is
// returned unchanged.
func (d *Database) Update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = conflictInitialInterval
	bo.MaxInterval = conflictMaxInterval
	bo.MaxElapsedTime = 0

	op := func() error {
		err := d.db.Update(fn)
		if err == nil {
			txnCommitsTotal.Inc()
			return nil
		}
		if errors.Is(err, badger.ErrConflict) {
			txnConflictsTotal.Inc()
			return err
		}
		return backoff.Permanent(err)
	}

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, maxConflictRetries), ctx))
}

// View runs fn inside a read-only snapshot.
func (d *Database) View(fn func(txn *badger.Txn) error) error {
	return d.db.View(fn)
}

// Conn returns a pointer to the underlying database connection.
func (d *Database) Conn() *badger.DB {
	return d.db
}
