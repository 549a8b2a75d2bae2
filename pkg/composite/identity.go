package composite

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Key is a composite identity: key field name -> value
type Key map[string]interface{}

// Equal reports whether both keys hold the same fields with equal values
func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	for name, v := range k {
		ov, ok := other[name]
		if !ok || !reflect.DeepEqual(v, ov) {
			return false
		}
	}
	return true
}

// Values returns the values for fields, in that order
func (k Key) Values(fields []string) []interface{} {
	values := make([]interface{}, len(fields))
	for i, f := range fields {
		values[i] = k[f]
	}
	return values
}

func (k Key) String() string {
	names := make([]string, 0, len(k))
	for name := range k {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s:%v", name, k[name])
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// Identity is the identity of a record: either the host's single column
// value or a composite Key.
type Identity struct {
	value     interface{}
	key       Key
	composite bool
}

// Single wraps a single-column primary key value
func Single(value interface{}) Identity {
	return Identity{value: value}
}

// Composite wraps a composite key
func Composite(key Key) Identity {
	return Identity{key: key, composite: true}
}

func (id Identity) IsComposite() bool {
	return id.composite
}

// Value returns the single-column value, nil for composite identities
func (id Identity) Value() interface{} {
	return id.value
}

// Key returns the composite key, nil for single identities
func (id Identity) Key() Key {
	return id.key
}

// Equal compares two identities structurally
func (id Identity) Equal(other Identity) bool {
	if id.composite != other.composite {
		return false
	}
	if id.composite {
		return id.key.Equal(other.key)
	}
	return reflect.DeepEqual(id.value, other.value)
}

func (id Identity) String() string {
	if id.composite {
		return id.key.String()
	}
	return fmt.Sprintf("%v", id.value)
}

// PK computes the identity of record. With a recorded key list it builds a
// fresh Key from each key field's storage attribute, keyed by field name;
// otherwise it reads the host's single primary key column.
func (m *Model) PK(record interface{}) (Identity, error) {
	if len(m.primaryKeys) == 0 {
		value, err := m.hostPK(record)
		if err != nil {
			return Identity{}, err
		}
		return Single(value), nil
	}

	key := make(Key, len(m.primaryKeys))
	for _, name := range m.primaryKeys {
		col, err := m.metadata.Field(name)
		if err != nil {
			return Identity{}, err
		}
		field, err := m.metadata.FieldValue(record, col)
		if err != nil {
			return Identity{}, err
		}
		key[name] = field.Interface()
	}
	return Composite(key), nil
}

// MustPK works like PK, but panics if there's an error.
func (m *Model) MustPK(record interface{}) Identity {
	id, err := m.PK(record)
	if err != nil {
		panic(err)
	}
	return id
}

func (m *Model) hostPK(record interface{}) (interface{}, error) {
	return m.metadata.PK(record)
}

// SetPK always delegates to the host's single-column write. A composite
// identity cannot be assigned; set the key fields instead.
func (m *Model) SetPK(record interface{}, value interface{}) error {
	if id, ok := value.(Identity); ok {
		if id.IsComposite() {
			return m.metadata.SetPK(record, id.Key())
		}
		value = id.Value()
	}
	return m.metadata.SetPK(record, value)
}

// PK computes the identity of a record of any defined model type
func PK(record interface{}) (Identity, error) {
	m, err := Lookup(reflect.TypeOf(record))
	if err != nil {
		return Identity{}, err
	}
	return m.PK(record)
}
