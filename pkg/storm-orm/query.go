package orm

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// Query provides a fluent interface for building database queries.
// The first error recorded while building is returned by the terminal call.
type Query[T any] struct {
	repo    *Repository[T]
	builder squirrel.SelectBuilder
	err     error
	ctx     context.Context

	limit       *uint64
	offset      *uint64
	orderBy     []string
	whereClause squirrel.And

	tx *sqlx.Tx
}

func (r *Repository[T]) Query(ctx context.Context) *Query[T] {
	return &Query[T]{
		repo: r,
		builder: squirrel.Select(r.Columns()...).
			From(r.metadata.TableName).
			PlaceholderFormat(squirrel.Dollar),
		ctx:         ctx,
		whereClause: squirrel.And{},
	}
}

func (q *Query[T]) WithTx(tx *sqlx.Tx) *Query[T] {
	q.tx = tx
	return q
}

func (q *Query[T]) Where(condition Condition) *Query[T] {
	if q.err != nil {
		return q
	}
	q.whereClause = append(q.whereClause, condition.ToSqlizer())
	return q
}

// Filter narrows the query to rows matching the keyword lookups and
// conditions, ANDed.
func (q *Query[T]) Filter(kw Q, conds ...Condition) *Query[T] {
	return q.filterOrExclude(false, conds, ParseQ(kw))
}

// Exclude narrows the query to rows NOT matching the keyword lookups and
// conditions taken together.
func (q *Query[T]) Exclude(kw Q, conds ...Condition) *Query[T] {
	return q.filterOrExclude(true, conds, ParseQ(kw))
}

// filterOrExclude is the single filter construction primitive. Keyword
// lookups go through the repository's rewriter; conditions pass untouched.
func (q *Query[T]) filterOrExclude(negate bool, conds []Condition, lookups []Lookup) *Query[T] {
	if q.err != nil {
		return q
	}

	if q.repo.rewriter != nil && len(lookups) > 0 {
		rewritten, err := q.repo.rewriter(lookups)
		if err != nil {
			q.err = err
			return q
		}
		lookups = rewritten
	}

	lookupConds, err := q.repo.metadata.LookupConditions(lookups)
	if err != nil {
		q.err = err
		return q
	}

	all := append(append(make([]Condition, 0, len(conds)+len(lookupConds)), conds...), lookupConds...)
	if len(all) == 0 {
		return q
	}

	combined := And(all...)
	if negate {
		combined = combined.Not()
	}
	q.whereClause = append(q.whereClause, combined.ToSqlizer())
	return q
}

func (q *Query[T]) OrderBy(expressions ...string) *Query[T] {
	if q.err != nil {
		return q
	}
	q.orderBy = append(q.orderBy, expressions...)
	return q
}

func (q *Query[T]) Limit(limit uint64) *Query[T] {
	if q.err != nil {
		return q
	}
	q.limit = &limit
	return q
}

func (q *Query[T]) Offset(offset uint64) *Query[T] {
	if q.err != nil {
		return q
	}
	q.offset = &offset
	return q
}

// Err returns the first error recorded while building the query
func (q *Query[T]) Err() error {
	return q.err
}

func (q *Query[T]) selectBuilder(builder squirrel.SelectBuilder) squirrel.SelectBuilder {
	if len(q.whereClause) > 0 {
		builder = builder.Where(q.whereClause)
	}

	for _, orderBy := range q.orderBy {
		builder = builder.OrderBy(orderBy)
	}

	if q.limit != nil {
		builder = builder.Limit(*q.limit)
	}

	if q.offset != nil {
		builder = builder.Offset(*q.offset)
	}

	return builder
}

func (q *Query[T]) buildQuery() (string, []interface{}, error) {
	if q.err != nil {
		return "", nil, q.err
	}
	return q.selectBuilder(q.builder).ToSql()
}

func (q *Query[T]) executor() DBExecutor {
	if q.tx != nil {
		return q.tx
	}
	return q.repo.db
}

func (q *Query[T]) Find() ([]T, error) {
	if q.err != nil {
		return nil, q.err
	}

	var records []T
	err := q.repo.executeQueryMiddleware(OpQuery, q.ctx, nil, q.selectBuilder(q.builder), func(middlewareCtx *MiddlewareContext) error {
		finalQuery := middlewareCtx.QueryBuilder.(squirrel.SelectBuilder)

		sqlQuery, args, err := finalQuery.ToSql()
		if err != nil {
			return &Error{
				Op:    "find",
				Table: q.repo.metadata.TableName,
				Err:   fmt.Errorf("failed to build query: %w", err),
			}
		}

		middlewareCtx.Query = sqlQuery
		middlewareCtx.Args = args

		rows, err := q.executor().QueryxContext(q.ctx, sqlQuery, args...)
		if err != nil {
			return &Error{
				Op:    "find",
				Table: q.repo.metadata.TableName,
				Query: sqlQuery,
				Args:  args,
				Err:   fmt.Errorf("failed to execute query: %w", err),
			}
		}

		records, err = q.scanRecords(rows)
		if err != nil {
			return &Error{
				Op:    "find",
				Table: q.repo.metadata.TableName,
				Query: sqlQuery,
				Args:  args,
				Err:   fmt.Errorf("failed to scan rows: %w", err),
			}
		}
		return nil
	})

	return records, err
}

func (q *Query[T]) scanRecords(rows *sqlx.Rows) ([]T, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []T
	for rows.Next() {
		var record T
		targets, err := q.repo.metadata.ScanTargets(&record, columns)
		if err != nil {
			return nil, err
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (q *Query[T]) First() (*T, error) {
	q.Limit(1)
	records, err := q.Find()
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, &Error{
			Op:    "first",
			Table: q.repo.metadata.TableName,
			Err:   ErrNotFound,
		}
	}

	return &records[0], nil
}

// Get returns the single record matching kw. No match is ErrNotFound,
// more than one is ErrMultipleRows.
func (q *Query[T]) Get(kw Q, conds ...Condition) (*T, error) {
	q.Filter(kw, conds...).Limit(2)
	records, err := q.Find()
	if err != nil {
		return nil, err
	}

	switch len(records) {
	case 0:
		return nil, &Error{Op: "get", Table: q.repo.metadata.TableName, Err: ErrNotFound}
	case 1:
		return &records[0], nil
	default:
		return nil, &Error{Op: "get", Table: q.repo.metadata.TableName, Err: ErrMultipleRows}
	}
}

func (q *Query[T]) Count() (int64, error) {
	if q.err != nil {
		return 0, q.err
	}

	countBuilder := squirrel.Select("COUNT(*)").
		From(q.repo.metadata.TableName).
		PlaceholderFormat(squirrel.Dollar)

	if len(q.whereClause) > 0 {
		countBuilder = countBuilder.Where(q.whereClause)
	}

	var count int64
	err := q.repo.executeQueryMiddleware(OpQuery, q.ctx, nil, countBuilder, func(middlewareCtx *MiddlewareContext) error {
		finalQuery := middlewareCtx.QueryBuilder.(squirrel.SelectBuilder)

		sqlQuery, args, err := finalQuery.ToSql()
		if err != nil {
			return &Error{
				Op:    "count",
				Table: q.repo.metadata.TableName,
				Err:   fmt.Errorf("failed to build count query: %w", err),
			}
		}

		if err := q.executor().GetContext(q.ctx, &count, sqlQuery, args...); err != nil {
			return &Error{
				Op:    "count",
				Table: q.repo.metadata.TableName,
				Err:   fmt.Errorf("failed to execute count query: %w", err),
			}
		}

		return nil
	})

	return count, err
}

func (q *Query[T]) Exists() (bool, error) {
	count, err := q.Count()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (q *Query[T]) Delete() (int64, error) {
	if q.err != nil {
		return 0, q.err
	}

	deleteBuilder := squirrel.Delete(q.repo.metadata.TableName).
		PlaceholderFormat(squirrel.Dollar)

	if len(q.whereClause) > 0 {
		deleteBuilder = deleteBuilder.Where(q.whereClause)
	}

	var rowsAffected int64
	err := q.repo.executeQueryMiddleware(OpDelete, q.ctx, nil, deleteBuilder, func(middlewareCtx *MiddlewareContext) error {
		finalQuery := middlewareCtx.QueryBuilder.(squirrel.DeleteBuilder)

		sqlQuery, args, err := finalQuery.ToSql()
		if err != nil {
			return &Error{
				Op:    "delete",
				Table: q.repo.metadata.TableName,
				Err:   fmt.Errorf("failed to build delete query: %w", err),
			}
		}

		result, err := q.executor().ExecContext(q.ctx, sqlQuery, args...)
		if err != nil {
			return parsePostgreSQLError(err, "delete", q.repo.metadata.TableName)
		}

		rowsAffected, err = result.RowsAffected()
		if err != nil {
			return &Error{
				Op:    "delete",
				Table: q.repo.metadata.TableName,
				Err:   fmt.Errorf("failed to get rows affected: %w", err),
			}
		}

		return nil
	})

	return rowsAffected, err
}

// Update sets columns on every matching row. Columns are written in sorted
// order.
func (q *Query[T]) Update(updates map[string]interface{}) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}

	if len(updates) == 0 {
		return 0, &Error{
			Op:    "update",
			Table: q.repo.metadata.TableName,
			Err:   fmt.Errorf("no updates provided"),
		}
	}

	updateBuilder := squirrel.Update(q.repo.metadata.TableName).
		SetMap(updates).
		PlaceholderFormat(squirrel.Dollar)

	if len(q.whereClause) > 0 {
		updateBuilder = updateBuilder.Where(q.whereClause)
	}

	var rowsAffected int64
	err := q.repo.executeQueryMiddleware(OpUpdateMany, q.ctx, updates, updateBuilder, func(middlewareCtx *MiddlewareContext) error {
		finalQuery := middlewareCtx.QueryBuilder.(squirrel.UpdateBuilder)

		sqlQuery, args, err := finalQuery.ToSql()
		if err != nil {
			return &Error{
				Op:    "update",
				Table: q.repo.metadata.TableName,
				Err:   fmt.Errorf("failed to build update query: %w", err),
			}
		}

		middlewareCtx.Query = sqlQuery
		middlewareCtx.Args = args

		var result sql.Result
		result, err = q.executor().ExecContext(q.ctx, sqlQuery, args...)
		if err != nil {
			return parsePostgreSQLError(err, "update", q.repo.metadata.TableName)
		}

		rowsAffected, err = result.RowsAffected()
		if err != nil {
			return &Error{
				Op:    "update",
				Table: q.repo.metadata.TableName,
				Err:   fmt.Errorf("failed to get rows affected: %w", err),
			}
		}

		return nil
	})

	return rowsAffected, err
}

// Pluck returns the values of a single field for every matching row, in
// the query's order (a flat values list).
func Pluck[T any, V any](q *Query[T], field string) ([]V, error) {
	if q.err != nil {
		return nil, q.err
	}

	col, err := q.repo.metadata.Field(field)
	if err != nil {
		return nil, err
	}

	builder := q.selectBuilder(squirrel.Select(col.DBName).
		From(q.repo.metadata.TableName).
		PlaceholderFormat(squirrel.Dollar))

	var values []V
	err = q.repo.executeQueryMiddleware(OpQuery, q.ctx, nil, builder, func(middlewareCtx *MiddlewareContext) error {
		finalQuery := middlewareCtx.QueryBuilder.(squirrel.SelectBuilder)

		sqlQuery, args, err := finalQuery.ToSql()
		if err != nil {
			return &Error{
				Op:    "pluck",
				Table: q.repo.metadata.TableName,
				Err:   fmt.Errorf("failed to build query: %w", err),
			}
		}

		if err := q.executor().SelectContext(q.ctx, &values, sqlQuery, args...); err != nil {
			return &Error{
				Op:     "pluck",
				Table:  q.repo.metadata.TableName,
				Column: col.DBName,
				Err:    fmt.Errorf("failed to execute query: %w", err),
			}
		}
		return nil
	})

	return values, err
}
