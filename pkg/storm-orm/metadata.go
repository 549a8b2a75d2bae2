package orm

import (
	"fmt"
	"reflect"
	"strings"
)

// PKName is the identity pseudo-field accepted by lookups in place of the
// model's primary key column.
const PKName = "pk"

// ColumnMetadata describes one persisted struct field
type ColumnMetadata struct {
	FieldName    string // Go struct field name
	Name         string // Declared field name used by lookups
	DBName       string // Storage column (attribute) name
	Index        []int  // Field index path, through embedded structs
	Type         reflect.Type
	IsPrimaryKey bool
	IsForeignKey bool
	References   string // table.column for foreign keys
	HasDefault   bool
	NotNull      bool
	DBDef        map[string]string
}

// ModelMetadata is the host-side description of a model type.
type ModelMetadata struct {
	TableName string
	Type      reflect.Type
	Abstract  bool
	Columns   []*ColumnMetadata

	// PrimaryKey is the single identity column the repository uses for
	// FindByID and pk lookups. It is the first field flagged primary_key,
	// or a column named "id".
	PrimaryKey string

	byName   map[string]*ColumnMetadata
	byDBName map[string]*ColumnMetadata
}

// ParseModel builds metadata for T from its db/dbdef struct tags
func ParseModel[T any]() (*ModelMetadata, error) {
	var zero T
	return ParseModelType(reflect.TypeOf(zero))
}

// ParseModelType builds metadata for a struct type. Embedded structs
// contribute their fields in declaration order, before the fields that
// follow them. A `_ struct{}` marker carries table level attributes:
//
//	_ struct{} `dbdef:"table:lots"`
//	_ struct{} `dbdef:"abstract"`
func ParseModelType(typ reflect.Type) (*ModelMetadata, error) {
	for typ != nil && typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ == nil || typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: only structs can be models (got %v)", ErrInvalidStruct, typ)
	}

	metadata := &ModelMetadata{
		TableName: deriveTableName(typ.Name()),
		Type:      typ,
		byName:    make(map[string]*ColumnMetadata),
		byDBName:  make(map[string]*ColumnMetadata),
	}

	tableLevel := make(map[string]string)
	if err := metadata.collect(typ, nil, tableLevel); err != nil {
		return nil, err
	}

	if name, ok := tableLevel["table"]; ok && name != "" {
		metadata.TableName = name
	}

	if _, ok := tableLevel["abstract"]; ok {
		metadata.Abstract = true
		metadata.Columns = nil
		metadata.byName = map[string]*ColumnMetadata{}
		metadata.byDBName = map[string]*ColumnMetadata{}
		return metadata, nil
	}

	for _, col := range metadata.Columns {
		if col.IsPrimaryKey {
			metadata.PrimaryKey = col.DBName
			break
		}
	}
	if metadata.PrimaryKey == "" {
		if col, ok := metadata.byDBName["id"]; ok {
			metadata.PrimaryKey = col.DBName
		}
	}

	return metadata, nil
}

func (m *ModelMetadata) collect(typ reflect.Type, index []int, tableLevel map[string]string) error {
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)

		idx := make([]int, len(index), len(index)+1)
		copy(idx, index)
		idx = append(idx, i)

		if field.Name == "_" {
			// Table markers only count on the outermost struct
			if index == nil {
				for k, v := range parseDBDefTag(field.Tag.Get("dbdef")) {
					tableLevel[k] = v
				}
			}
			continue
		}

		if field.Anonymous {
			ft := field.Type
			if ft.Kind() == reflect.Ptr {
				return fmt.Errorf("%w: embedded pointer %s in %v is not supported", ErrInvalidStruct, field.Name, typ)
			}
			if ft.Kind() == reflect.Struct && field.Tag.Get("db") == "" {
				if err := m.collect(ft, idx, tableLevel); err != nil {
					return err
				}
				continue
			}
		}

		if field.PkgPath != "" {
			continue
		}

		dbName := field.Tag.Get("db")
		if dbName == "-" {
			continue
		}
		if dbName == "" {
			dbName = toSnakeCase(field.Name)
		}

		dbdef := parseDBDefTag(field.Tag.Get("dbdef"))

		col := &ColumnMetadata{
			FieldName: field.Name,
			DBName:    dbName,
			Index:     idx,
			Type:      field.Type,
			DBDef:     dbdef,
		}
		_, col.IsPrimaryKey = dbdef["primary_key"]
		_, col.HasDefault = dbdef["default"]
		_, col.NotNull = dbdef["not_null"]

		if ref, ok := dbdef["foreign_key"]; ok {
			col.IsForeignKey = true
			col.References = ref
		} else if ref, ok := dbdef["fk"]; ok {
			col.IsForeignKey = true
			col.References = ref
		}

		col.Name = declaredName(field.Name, col)

		if _, exists := m.byDBName[col.DBName]; exists {
			return fmt.Errorf("%w: duplicate column %q in struct %v", ErrInvalidStruct, col.DBName, typ)
		}
		if _, exists := m.byName[col.Name]; exists {
			return fmt.Errorf("%w: duplicate field %q in struct %v", ErrInvalidStruct, col.Name, typ)
		}
		if col.Name == PKName {
			return fmt.Errorf("%w: field name %q is reserved", ErrInvalidStruct, PKName)
		}

		m.Columns = append(m.Columns, col)
		m.byName[col.Name] = col
		m.byDBName[col.DBName] = col
	}

	return nil
}

// declaredName is the lookup name of a field: an explicit name attribute,
// the relation name for foreign keys (auction_id -> auction), or the
// snake_case Go name.
func declaredName(goName string, col *ColumnMetadata) string {
	if name, ok := col.DBDef["name"]; ok && name != "" {
		return name
	}
	name := toSnakeCase(goName)
	if col.IsForeignKey && strings.HasSuffix(name, "_id") && len(name) > 3 {
		return strings.TrimSuffix(name, "_id")
	}
	return name
}

// Field resolves a declared field name, a column name or "pk" to its column.
func (m *ModelMetadata) Field(name string) (*ColumnMetadata, error) {
	if name == PKName {
		if m.PrimaryKey == "" {
			return nil, &Error{Op: "resolve", Table: m.TableName, Err: ErrNoPrimaryKey}
		}
		return m.byDBName[m.PrimaryKey], nil
	}
	if col, ok := m.byName[name]; ok {
		return col, nil
	}
	if col, ok := m.byDBName[name]; ok {
		return col, nil
	}
	return nil, &Error{Op: "resolve", Table: m.TableName, Column: name, Err: ErrUnknownField}
}

// ColumnNames returns the storage column names in declaration order
func (m *ModelMetadata) ColumnNames() []string {
	names := make([]string, len(m.Columns))
	for i, col := range m.Columns {
		names[i] = col.DBName
	}
	return names
}

// Table returns the table-level view of the metadata
func (m *ModelMetadata) Table() Table {
	var pks []string
	if m.PrimaryKey != "" {
		pks = []string{m.PrimaryKey}
	}
	return Table{Name: m.TableName, PrimaryKeys: pks}
}

// FieldValue returns the addressable struct field backing col on record.
func (m *ModelMetadata) FieldValue(record interface{}, col *ColumnMetadata) (reflect.Value, error) {
	v := reflect.ValueOf(record)
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("%w: nil record", ErrInvalidStruct)
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return reflect.Value{}, fmt.Errorf("%w: nil record", ErrInvalidStruct)
	}
	if v.Type() != m.Type {
		return reflect.Value{}, fmt.Errorf("%w: expected %v, got %v", ErrInvalidStruct, m.Type, v.Type())
	}
	return v.FieldByIndex(col.Index), nil
}

// ScanTargets returns pointers into record for each result column, in
// order. Columns resolve through the metadata so untagged fields receive
// their snake_case column.
func (m *ModelMetadata) ScanTargets(record interface{}, columns []string) ([]interface{}, error) {
	targets := make([]interface{}, len(columns))
	for i, name := range columns {
		col, ok := m.byDBName[name]
		if !ok {
			return nil, &Error{Op: "scan", Table: m.TableName, Column: name, Err: ErrUnknownField}
		}
		field, err := m.FieldValue(record, col)
		if err != nil {
			return nil, err
		}
		targets[i] = field.Addr().Interface()
	}
	return targets, nil
}

// PK reads the single-column primary key of record
func (m *ModelMetadata) PK(record interface{}) (interface{}, error) {
	col, err := m.Field(PKName)
	if err != nil {
		return nil, err
	}
	field, err := m.FieldValue(record, col)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// SetPK assigns the single-column primary key of record, which must be a
// pointer. Numeric values are converted to the field's type.
func (m *ModelMetadata) SetPK(record interface{}, value interface{}) error {
	col, err := m.Field(PKName)
	if err != nil {
		return err
	}
	field, err := m.FieldValue(record, col)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return &Error{Op: "set_pk", Table: m.TableName, Column: col.DBName, Err: fmt.Errorf("%w: record is not addressable", ErrInvalidStruct)}
	}

	v := reflect.ValueOf(value)
	switch {
	case !v.IsValid():
		field.Set(reflect.Zero(field.Type()))
	case v.Type().AssignableTo(field.Type()):
		field.Set(v)
	case isNumeric(v.Kind()) && isNumeric(field.Kind()):
		field.Set(v.Convert(field.Type()))
	default:
		return &Error{
			Op:     "set_pk",
			Table:  m.TableName,
			Column: col.DBName,
			Err:    fmt.Errorf("cannot assign %T to %v", value, field.Type()),
		}
	}
	return nil
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
