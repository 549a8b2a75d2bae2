package orm

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Storm is the main entry point for all ORM operations
// It holds the repositories used for relation traversal and manages database connections
type Storm struct {
	db       DBExecutor
	executor DBExecutor // Current executor (DB or TX)

	// repositories are keyed by table name
	repositories map[string]interface{}
}

func NewStorm(db *sqlx.DB) *Storm {
	return &Storm{
		db:           db,
		executor:     db,
		repositories: make(map[string]interface{}),
	}
}

func newStormWithExecutor(db *sqlx.DB, executor DBExecutor, repositories map[string]interface{}) *Storm {
	return &Storm{
		db:           db,
		executor:     executor,
		repositories: repositories,
	}
}

// Register publishes repo as the repository relation traversal uses for
// its table, replacing any earlier registration.
func Register[T any](s *Storm, repo *Repository[T]) {
	s.repositories[repo.metadata.TableName] = repo
}

// RepositoryFor returns the repository registered for table, bound to the
// current executor.
func RepositoryFor[T any](s *Storm, table string) (*Repository[T], error) {
	registered, ok := s.repositories[table]
	if !ok {
		return nil, &Error{Op: "repository", Table: table, Err: ErrNoRepository}
	}
	repo, ok := registered.(*Repository[T])
	if !ok {
		var zero T
		return nil, &Error{Op: "repository", Table: table, Err: fmt.Errorf("%w: registered repository does not hold %T", ErrInvalidStruct, zero)}
	}
	return repo.WithExecutor(s.executor), nil
}

// RelatedQuery starts a query on the rows of table that reference the
// given value through field, using the registered repository.
func RelatedQuery[T any](ctx context.Context, s *Storm, table, field string, value interface{}) (*Query[T], error) {
	repo, err := RepositoryFor[T](s, table)
	if err != nil {
		return nil, err
	}
	return repo.Query(ctx).Filter(Q{field: value}), nil
}

func (s *Storm) WithTransaction(ctx context.Context, fn func(*Storm) error) error {
	return s.WithTransactionOptions(ctx, nil, fn)
}

func (s *Storm) WithTransactionOptions(ctx context.Context, opts *TransactionOptions, fn func(*Storm) error) error {
	if _, isTransaction := s.executor.(*sqlx.Tx); isTransaction {
		return fn(s)
	}

	db, ok := s.db.(*sqlx.DB)
	if !ok {
		return fmt.Errorf("cannot start transaction: executor is not a database connection")
	}

	tx, err := db.BeginTxx(ctx, opts.ToTxOptions())
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txStorm := newStormWithExecutor(db, tx, s.repositories)

	if err := fn(txStorm); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("failed to rollback transaction: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (s *Storm) GetExecutor() DBExecutor {
	return s.executor
}

func (s *Storm) GetDB() *sqlx.DB {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db
	}
	return nil
}

// TransactionOptions configures transaction behavior
type TransactionOptions struct {
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

// ToTxOptions converts TransactionOptions to sql.TxOptions
func (o *TransactionOptions) ToTxOptions() *sql.TxOptions {
	if o == nil {
		return nil
	}
	return &sql.TxOptions{
		Isolation: o.Isolation,
		ReadOnly:  o.ReadOnly,
	}
}
