package orm

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/eleven-am/storm-composite/internal/logger"
)

// Repository provides CRUD operations and queries for one model type
type Repository[T any] struct {
	db       DBExecutor
	metadata *ModelMetadata

	middlewareManager *middlewareManager

	// identity overrides the single-column primary key read used to
	// address a record in Update, Save and Delete
	identity func(record *T) (interface{}, error)
	rewriter LookupRewriter
}

// NewRepository creates a repository for T. The metadata must describe T.
func NewRepository[T any](db DBExecutor, metadata *ModelMetadata) (*Repository[T], error) {
	if metadata == nil {
		parsed, err := ParseModel[T]()
		if err != nil {
			return nil, err
		}
		metadata = parsed
	}

	var zero T
	if typ := reflect.TypeOf(zero); metadata.Type != nil && typ != metadata.Type {
		return nil, fmt.Errorf("%w: metadata describes %v, not %v", ErrInvalidStruct, metadata.Type, typ)
	}

	if metadata.Abstract {
		return nil, &Error{Op: "repository", Table: metadata.TableName, Err: ErrAbstractModel}
	}

	if len(metadata.Columns) == 0 {
		return nil, &Error{Op: "repository", Table: metadata.TableName, Err: ErrInvalidStruct}
	}

	return &Repository[T]{
		db:       db,
		metadata: metadata,
	}, nil
}

// Metadata returns the model metadata backing the repository
func (r *Repository[T]) Metadata() *ModelMetadata {
	return r.metadata
}

// Columns returns the selected column names
func (r *Repository[T]) Columns() []string {
	return r.metadata.ColumnNames()
}

// SetIdentity replaces the identity read used to address existing records.
// The returned value is used as the "pk" lookup value.
func (r *Repository[T]) SetIdentity(fn func(record *T) (interface{}, error)) {
	r.identity = fn
}

// SetLookupRewriter installs a rewrite step applied to the keyword lookups
// of every query built from this repository.
func (r *Repository[T]) SetLookupRewriter(rewriter LookupRewriter) {
	r.rewriter = rewriter
}

// PK reads the single-column primary key of record
func (r *Repository[T]) PK(record *T) (interface{}, error) {
	return r.metadata.PK(record)
}

// SetPK assigns the single-column primary key of record
func (r *Repository[T]) SetPK(record *T, value interface{}) error {
	return r.metadata.SetPK(record, value)
}

func (r *Repository[T]) identityOf(record *T) (interface{}, error) {
	if r.identity != nil {
		return r.identity(record)
	}
	return r.PK(record)
}

// FindByID loads the record whose identity equals id
func (r *Repository[T]) FindByID(ctx context.Context, id interface{}) (*T, error) {
	return r.Query(ctx).Get(Q{PKName: id})
}

// Count counts all records
func (r *Repository[T]) Count(ctx context.Context) (int64, error) {
	return r.Query(ctx).Count()
}

// Create inserts record. A zero primary key that the database fills in
// (default or serial) is omitted and read back.
func (r *Repository[T]) Create(ctx context.Context, record *T) error {
	if record == nil {
		return &Error{Op: "create", Table: r.metadata.TableName, Err: ErrInvalidStruct}
	}

	var (
		columns   []string
		values    []interface{}
		returning *ColumnMetadata
	)

	for _, col := range r.metadata.Columns {
		field, err := r.metadata.FieldValue(record, col)
		if err != nil {
			return err
		}
		if col.IsPrimaryKey && col.HasDefault && field.IsZero() {
			returning = col
			continue
		}
		columns = append(columns, col.DBName)
		values = append(values, field.Interface())
	}

	insertBuilder := squirrel.Insert(r.metadata.TableName).
		Columns(columns...).
		Values(values...).
		PlaceholderFormat(squirrel.Dollar)

	if returning != nil {
		insertBuilder = insertBuilder.Suffix("RETURNING " + returning.DBName)
	}

	return r.executeQueryMiddleware(OpCreate, ctx, record, insertBuilder, func(middlewareCtx *MiddlewareContext) error {
		finalQuery := middlewareCtx.QueryBuilder.(squirrel.InsertBuilder)

		sqlQuery, args, err := finalQuery.ToSql()
		if err != nil {
			return &Error{
				Op:    "create",
				Table: r.metadata.TableName,
				Err:   fmt.Errorf("failed to build insert query: %w", err),
			}
		}

		middlewareCtx.Query = sqlQuery
		middlewareCtx.Args = args

		if returning == nil {
			if _, err := r.db.ExecContext(ctx, sqlQuery, args...); err != nil {
				return parsePostgreSQLError(err, "create", r.metadata.TableName)
			}
			return nil
		}

		field, err := r.metadata.FieldValue(record, returning)
		if err != nil {
			return err
		}
		if err := r.db.QueryRowxContext(ctx, sqlQuery, args...).Scan(field.Addr().Interface()); err != nil {
			return parsePostgreSQLError(err, "create", r.metadata.TableName)
		}
		return nil
	})
}

// Update writes every non primary key column of record to the row
// addressed by its identity
func (r *Repository[T]) Update(ctx context.Context, record *T) error {
	affected, err := r.update(ctx, record)
	if err != nil {
		return err
	}
	if affected == 0 {
		return &Error{Op: "update", Table: r.metadata.TableName, Err: ErrNotFound}
	}
	return nil
}

func (r *Repository[T]) update(ctx context.Context, record *T) (int64, error) {
	if record == nil {
		return 0, &Error{Op: "update", Table: r.metadata.TableName, Err: ErrInvalidStruct}
	}

	id, err := r.identityOf(record)
	if err != nil {
		return 0, err
	}

	updates := make(map[string]interface{})
	for _, col := range r.metadata.Columns {
		if col.IsPrimaryKey {
			continue
		}
		field, err := r.metadata.FieldValue(record, col)
		if err != nil {
			return 0, err
		}
		updates[col.DBName] = field.Interface()
	}

	return r.Query(ctx).Filter(Q{PKName: id}).Update(updates)
}

// Save updates record when a row with its identity exists and inserts it
// otherwise
func (r *Repository[T]) Save(ctx context.Context, record *T) error {
	if record == nil {
		return &Error{Op: "save", Table: r.metadata.TableName, Err: ErrInvalidStruct}
	}

	if r.identity == nil {
		pk, err := r.PK(record)
		if err != nil && !errors.Is(err, ErrNoPrimaryKey) {
			return err
		}
		if err != nil || reflect.ValueOf(pk).IsZero() {
			return r.Create(ctx, record)
		}
	}

	affected, err := r.update(ctx, record)
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	logger.ORM().WithField("table", r.metadata.TableName).Debug("save matched no row, inserting")
	return r.Create(ctx, record)
}

// Delete removes the row addressed by record's identity
func (r *Repository[T]) Delete(ctx context.Context, record *T) error {
	if record == nil {
		return &Error{Op: "delete", Table: r.metadata.TableName, Err: ErrInvalidStruct}
	}

	id, err := r.identityOf(record)
	if err != nil {
		return err
	}

	affected, err := r.Query(ctx).Filter(Q{PKName: id}).Delete()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &Error{Op: "delete", Table: r.metadata.TableName, Err: ErrNotFound}
	}
	return nil
}

// WithTx returns a copy of the repository bound to tx
func (r *Repository[T]) WithTx(tx *sqlx.Tx) *Repository[T] {
	clone := *r
	clone.db = tx
	return &clone
}

// WithExecutor returns a copy of the repository bound to exec
func (r *Repository[T]) WithExecutor(exec DBExecutor) *Repository[T] {
	clone := *r
	clone.db = exec
	return &clone
}

