package orm

import (
	"github.com/Masterminds/squirrel"
)

// Column is a typed reference to one column, optionally table qualified.
type Column[T any] struct {
	Name  string
	Table string
}

func (c Column[T]) String() string {
	if c.Table == "" {
		return c.Name
	}
	return c.Table + "." + c.Name
}

func (c Column[T]) Eq(value T) Condition {
	return Condition{squirrel.Eq{c.String(): value}}
}

func (c Column[T]) NotEq(value T) Condition {
	return Condition{squirrel.NotEq{c.String(): value}}
}

func (c Column[T]) In(values ...T) Condition {
	return Condition{squirrel.Eq{c.String(): valueList(values)}}
}

func (c Column[T]) NotIn(values ...T) Condition {
	return Condition{squirrel.NotEq{c.String(): valueList(values)}}
}

func (c Column[T]) IsNull() Condition {
	return Condition{squirrel.Eq{c.String(): nil}}
}

func (c Column[T]) IsNotNull() Condition {
	return Condition{squirrel.NotEq{c.String(): nil}}
}

// Asc and Desc render ORDER BY terms
func (c Column[T]) Asc() string  { return c.String() + " ASC" }
func (c Column[T]) Desc() string { return c.String() + " DESC" }

// valueList widens a typed slice so squirrel renders it as an IN list
func valueList[T any](values []T) []interface{} {
	list := make([]interface{}, len(values))
	for i, v := range values {
		list[i] = v
	}
	return list
}

// Ordered covers the types the range comparisons accept
type Ordered interface {
	Numeric | ~string
}

// Numeric covers integer and floating point column types
type Numeric interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// ComparableColumn adds range comparisons
type ComparableColumn[T Ordered] struct {
	Column[T]
}

func (c ComparableColumn[T]) Gt(value T) Condition {
	return Condition{squirrel.Gt{c.String(): value}}
}

func (c ComparableColumn[T]) Gte(value T) Condition {
	return Condition{squirrel.GtOrEq{c.String(): value}}
}

func (c ComparableColumn[T]) Lt(value T) Condition {
	return Condition{squirrel.Lt{c.String(): value}}
}

func (c ComparableColumn[T]) Lte(value T) Condition {
	return Condition{squirrel.LtOrEq{c.String(): value}}
}

// NumericColumn is a ComparableColumn over a number type
type NumericColumn[T Numeric] struct {
	ComparableColumn[T]
}

// StringColumn adds pattern matching. Like and ILike take raw patterns;
// the substring helpers escape their argument first.
type StringColumn struct {
	Column[string]
}

func (c StringColumn) Like(pattern string) Condition {
	return Condition{squirrel.Like{c.String(): pattern}}
}

func (c StringColumn) ILike(pattern string) Condition {
	return Condition{squirrel.ILike{c.String(): pattern}}
}

func (c StringColumn) StartsWith(prefix string) Condition {
	return c.Like(escapeLike(prefix) + "%")
}

func (c StringColumn) EndsWith(suffix string) Condition {
	return c.Like("%" + escapeLike(suffix))
}

func (c StringColumn) Contains(substring string) Condition {
	return c.Like("%" + escapeLike(substring) + "%")
}

// BoolColumn is a Column over a boolean flag
type BoolColumn struct {
	Column[bool]
}

func (c BoolColumn) IsTrue() Condition  { return c.Eq(true) }
func (c BoolColumn) IsFalse() Condition { return c.Eq(false) }

// Condition is a composable WHERE fragment
type Condition struct {
	condition squirrel.Sqlizer
}

// Expr builds a condition from a raw SQL fragment with ? placeholders
func Expr(sql string, args ...interface{}) Condition {
	return Condition{squirrel.Expr(sql, args...)}
}

// And joins conditions with AND
func And(conditions ...Condition) Condition {
	group := make(squirrel.And, 0, len(conditions))
	for _, c := range conditions {
		group = append(group, c.condition)
	}
	return Condition{group}
}

// Or joins conditions with OR
func Or(conditions ...Condition) Condition {
	group := make(squirrel.Or, 0, len(conditions))
	for _, c := range conditions {
		group = append(group, c.condition)
	}
	return Condition{group}
}

func Not(condition Condition) Condition {
	return condition.Not()
}

func (c Condition) And(other Condition) Condition {
	return And(c, other)
}

func (c Condition) Or(other Condition) Condition {
	return Or(c, other)
}

func (c Condition) Not() Condition {
	return Condition{squirrel.Expr("NOT (?)", c.condition)}
}

func (c Condition) ToSqlizer() squirrel.Sqlizer {
	return c.condition
}

// ToSql renders the condition with ? placeholders. The zero Condition
// renders nothing.
func (c Condition) ToSql() (string, []interface{}, error) {
	if c.condition == nil {
		return "", nil, nil
	}
	return c.condition.ToSql()
}
