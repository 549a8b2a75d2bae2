package orm

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/Masterminds/squirrel"
)

// LookupSep separates a field name from its lookup operator ("lot_number__gte").
const LookupSep = "__"

// Q holds keyword filters, keyed by field name with an optional lookup
// suffix:
//
//	orm.Q{"first_name": "Joe", "lot_number__gte": 2}
type Q map[string]interface{}

// Lookup is one parsed keyword filter: a field, an operator and a value.
// An empty Op means exact equality.
type Lookup struct {
	Field string
	Op    string
	Value interface{}
}

// Key rebuilds the keyword form of the lookup
func (l Lookup) Key() string {
	if l.Op == "" {
		return l.Field
	}
	return l.Field + LookupSep + l.Op
}

// LookupRewriter transforms keyword lookups before conditions are built.
// Implementations must return a new slice rather than modify the input.
type LookupRewriter func(lookups []Lookup) ([]Lookup, error)

// ParseLookup splits a keyword at the first separator
func ParseLookup(key string, value interface{}) Lookup {
	field, op, _ := strings.Cut(key, LookupSep)
	return Lookup{Field: field, Op: op, Value: value}
}

// ParseQ converts keyword filters into lookups, ordered by keyword so that
// generated SQL and its arguments are deterministic.
func ParseQ(q Q) []Lookup {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lookups := make([]Lookup, 0, len(keys))
	for _, k := range keys {
		lookups = append(lookups, ParseLookup(k, q[k]))
	}
	return lookups
}

// LookupCondition renders a lookup against the metadata's columns
func (m *ModelMetadata) LookupCondition(l Lookup) (Condition, error) {
	col, err := m.Field(l.Field)
	if err != nil {
		return Condition{}, err
	}
	column := col.DBName
	like := escapeLike(fmt.Sprint(l.Value))

	switch l.Op {
	case "", "exact":
		return Condition{squirrel.Eq{column: l.Value}}, nil
	case "iexact":
		return Condition{squirrel.Expr(fmt.Sprintf("LOWER(%s) = LOWER(?)", column), l.Value)}, nil
	case "in":
		values, ok := asSlice(l.Value)
		if !ok {
			return Condition{}, m.lookupError(l, "in requires a slice value")
		}
		return Condition{squirrel.Eq{column: values}}, nil
	case "gt":
		return Condition{squirrel.Gt{column: l.Value}}, nil
	case "gte":
		return Condition{squirrel.GtOrEq{column: l.Value}}, nil
	case "lt":
		return Condition{squirrel.Lt{column: l.Value}}, nil
	case "lte":
		return Condition{squirrel.LtOrEq{column: l.Value}}, nil
	case "contains":
		return Condition{squirrel.Like{column: "%" + like + "%"}}, nil
	case "icontains":
		return Condition{squirrel.ILike{column: "%" + like + "%"}}, nil
	case "startswith":
		return Condition{squirrel.Like{column: like + "%"}}, nil
	case "istartswith":
		return Condition{squirrel.ILike{column: like + "%"}}, nil
	case "endswith":
		return Condition{squirrel.Like{column: "%" + like}}, nil
	case "iendswith":
		return Condition{squirrel.ILike{column: "%" + like}}, nil
	case "isnull":
		isNull, ok := l.Value.(bool)
		if !ok {
			return Condition{}, m.lookupError(l, "isnull requires a bool value")
		}
		if isNull {
			return Condition{squirrel.Eq{column: nil}}, nil
		}
		return Condition{squirrel.NotEq{column: nil}}, nil
	case "range":
		bounds, ok := asSlice(l.Value)
		if !ok || len(bounds) != 2 {
			return Condition{}, m.lookupError(l, "range requires two bounds")
		}
		return Condition{squirrel.And{
			squirrel.GtOrEq{column: bounds[0]},
			squirrel.LtOrEq{column: bounds[1]},
		}}, nil
	}

	return Condition{}, m.lookupError(l, "unknown operator")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike quotes LIKE wildcards so s matches literally under the
// default backslash escape.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// LookupConditions renders all lookups, ANDed
func (m *ModelMetadata) LookupConditions(lookups []Lookup) ([]Condition, error) {
	conds := make([]Condition, 0, len(lookups))
	for _, l := range lookups {
		cond, err := m.LookupCondition(l)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	return conds, nil
}

func (m *ModelMetadata) lookupError(l Lookup, reason string) error {
	return &Error{
		Op:     "filter",
		Table:  m.TableName,
		Column: l.Key(),
		Err:    fmt.Errorf("%w: %s", ErrUnsupportedLookup, reason),
	}
}

// asSlice flattens any slice or array value into []interface{}
func asSlice(value interface{}) ([]interface{}, bool) {
	if values, ok := value.([]interface{}); ok {
		return values, true
	}
	v := reflect.ValueOf(value)
	if !v.IsValid() || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
		return nil, false
	}
	// []byte is a scalar value for database/sql
	if v.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	values := make([]interface{}, v.Len())
	for i := range values {
		values[i] = v.Index(i).Interface()
	}
	return values, true
}

// IsSequence reports whether a lookup value is a collection of values
func IsSequence(value interface{}) bool {
	_, ok := asSlice(value)
	return ok
}

// Sequence flattens a collection lookup value
func Sequence(value interface{}) []interface{} {
	values, _ := asSlice(value)
	return values
}
