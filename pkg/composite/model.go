// Package composite adds rudimentary composite primary keys to storm models.
//
// A model opts in by declaring two or more fields with the primary_key
// dbdef attribute, defining itself once with Define and querying through a
// Manager:
//
//	type Lot struct {
//		_         struct{} `dbdef:"table:lots"`
//		AuctionID int64    `db:"auction_id" dbdef:"primary_key;foreign_key:auctions.id"`
//		LotNumber int      `db:"lot_number" dbdef:"primary_key"`
//		Notes     string   `db:"description"`
//	}
//
//	var LotModel = composite.MustDefine[Lot]()
//
// Define demotes the key fields to ordinary columns, so the host ORM keeps
// its single-key assumptions, and records their names in declaration order.
// The identity of a record is then a Key mapping field names to values, and
// a "pk" lookup whose value is a Key is expanded into one lookup per field.
//
// Retrieval and saving are supported; other ORM features used with a
// composite model are not guaranteed to work.
package composite

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/eleven-am/storm-composite/internal/logger"
	orm "github.com/eleven-am/storm-composite/pkg/storm-orm"
)

var (
	ErrAlreadyDefined = errors.New("model already defined")
	ErrNotDefined     = errors.New("model not defined")
	ErrNotComposite   = errors.New("model has fewer than two primary key fields")
)

// Model is a host model whose declared primary key fields were demoted and
// recorded as a composite key.
type Model struct {
	metadata    *orm.ModelMetadata
	primaryKeys []string
}

// Option configures Define
type Option func(*options)

type options struct {
	requireComposite bool
	metadata         *orm.ModelMetadata
}

// WithRequireComposite makes Define fail with ErrNotComposite when fewer
// than two key fields result.
func WithRequireComposite() Option {
	return func(o *options) {
		o.requireComposite = true
	}
}

// WithMetadata defines the model from already parsed host metadata instead
// of parsing the type again.
func WithMetadata(metadata *orm.ModelMetadata) Option {
	return func(o *options) {
		o.metadata = metadata
	}
}

var (
	registryMu sync.RWMutex
	registry   = map[reflect.Type]*Model{}
)

// Define runs the demotion step for T. It must run once per model type,
// typically from a package level var.
func Define[T any](opts ...Option) (*Model, error) {
	var zero T
	return DefineType(reflect.TypeOf(zero), opts...)
}

// MustDefine works like Define, but panics if there's an error.
func MustDefine[T any](opts ...Option) *Model {
	m, err := Define[T](opts...)
	if err != nil {
		panic(err)
	}
	return m
}

// DefineType is Define for a reflect.Type
func DefineType(typ reflect.Type, opts ...Option) (*Model, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	metadata := o.metadata
	if metadata == nil {
		parsed, err := orm.ParseModelType(typ)
		if err != nil {
			return nil, err
		}
		metadata = parsed
	}
	typ = metadata.Type

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, ok := registry[typ]; ok {
		return nil, fmt.Errorf("%w: %v", ErrAlreadyDefined, typ)
	}

	model := &Model{metadata: metadata}

	if !metadata.Abstract && len(metadata.Columns) > 0 {
		keys := inheritedKeys(typ)
		if keys == nil {
			keys = []string{}
		}
		for _, col := range metadata.Columns {
			if !col.IsPrimaryKey {
				continue
			}
			col.IsPrimaryKey = false
			if !contains(keys, col.Name) {
				keys = append(keys, col.Name)
			}
		}
		model.primaryKeys = keys
	}

	if o.requireComposite && len(model.primaryKeys) < 2 {
		return nil, fmt.Errorf("%w: %v declares %d", ErrNotComposite, typ, len(model.primaryKeys))
	}

	registry[typ] = model

	logger.Composite().WithFields(map[string]interface{}{
		"model":        typ.String(),
		"table":        metadata.TableName,
		"primary_keys": model.primaryKeys,
	}).Debug("defined model")

	return model, nil
}

// inheritedKeys returns a copy of the key list of the first embedded struct
// already defined as a model, searching embedded structs depth first. It
// returns nil when no embedded struct leads to one. Callers hold registryMu.
func inheritedKeys(typ reflect.Type) []string {
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.Anonymous || field.Type.Kind() != reflect.Struct {
			continue
		}
		if parent, ok := registry[field.Type]; ok && parent.primaryKeys != nil {
			return append([]string(nil), parent.primaryKeys...)
		}
		if keys := inheritedKeys(field.Type); keys != nil {
			return keys
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Lookup returns the model defined for typ
func Lookup(typ reflect.Type) (*Model, error) {
	for typ != nil && typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	if m, ok := registry[typ]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrNotDefined, typ)
}

// Metadata returns the host metadata, with the key fields demoted
func (m *Model) Metadata() *orm.ModelMetadata {
	return m.metadata
}

// Table returns the table name
func (m *Model) Table() string {
	return m.metadata.TableName
}

// PrimaryKeys returns the composite key field names in declaration order
func (m *Model) PrimaryKeys() []string {
	return append([]string(nil), m.primaryKeys...)
}

// IsComposite reports whether the model has a recorded key list
func (m *Model) IsComposite() bool {
	return len(m.primaryKeys) > 0
}

// Abstract reports whether the model is an abstract base
func (m *Model) Abstract() bool {
	return m.metadata.Abstract
}
