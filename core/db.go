package core

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type (
	// DBExecutor is satisfied by both *sqlx.DB and *sqlx.Tx.
	DBExecutor interface {
		sqlx.ExtContext
		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	}

	DB interface {
		DBExecutor

		PingContext(ctx context.Context) error
		BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
		Close() error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// FilterOrderings keeps the orderings whose field is a key of allowed, renaming them to the mapped column.
func FilterOrderings(ords []DBOrdering, allowed map[string]string) []DBOrdering {
	out := make([]DBOrdering, 0, len(ords))
	for _, ord := range ords {
		if col, ok := allowed[ord.Field]; ok {
			out = append(out, DBOrdering{Field: col, Ascending: ord.Ascending})
		}
	}
	return out
}

// TxRunner runs fn within a single transaction, committing only when fn succeeds.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(tx DBExecutor) error) error
}

type sqlxTxRunner struct {
	db DB
}

func NewTxRunner(db DB) TxRunner {
	return &sqlxTxRunner{db: db}
}

func (r *sqlxTxRunner) RunInTx(ctx context.Context, fn func(tx DBExecutor) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = errors.Wrap(tx.Commit(), "committing transaction")
	}()
	return fn(tx)
}
