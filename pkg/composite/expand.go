package composite

import (
	"fmt"

	"github.com/eleven-am/storm-composite/internal/logger"
	orm "github.com/eleven-am/storm-composite/pkg/storm-orm"
)

// ExpandPK rewrites every "pk" lookup whose value is a composite identity
// into one lookup per key field, in key order and at the position of the
// original lookup. The operator suffix is carried over, so pk__gte expands
// to auction__gte and lot_number__gte. Other lookups, and "pk" lookups with
// scalar or scalar sequence values, are returned unchanged.
//
// The input slice is never modified.
func ExpandPK(keys []string, lookups []orm.Lookup) ([]orm.Lookup, error) {
	expanded := make([]orm.Lookup, 0, len(lookups)+len(keys))

	for _, l := range lookups {
		if l.Field != orm.PKName {
			expanded = append(expanded, l)
			continue
		}

		key, ok := asKey(l.Value)
		if !ok {
			if id, single := l.Value.(Identity); single {
				l.Value = id.Value()
			}
			if orm.IsSequence(l.Value) {
				if err := checkScalars(l); err != nil {
					return nil, err
				}
			}
			expanded = append(expanded, l)
			continue
		}

		if len(keys) == 0 {
			return nil, unsupported(l, "model has no composite key")
		}

		for _, name := range keys {
			value, ok := key[name]
			if !ok {
				return nil, &orm.Error{
					Op:     "filter",
					Column: name,
					Err:    fmt.Errorf("%w: %s missing key field %q", orm.ErrUnknownField, l.Key(), name),
				}
			}
			expanded = append(expanded, orm.Lookup{Field: name, Op: l.Op, Value: value})
		}

		logger.Composite().WithFields(map[string]interface{}{
			"lookup": l.Key(),
			"key":    key.String(),
		}).Debug("expanded pk lookup")
	}

	return expanded, nil
}

// Rewriter returns the lookup rewriter for the model's key list
func (m *Model) Rewriter() orm.LookupRewriter {
	keys := m.PrimaryKeys()
	return func(lookups []orm.Lookup) ([]orm.Lookup, error) {
		return ExpandPK(keys, lookups)
	}
}

// asKey recognizes the composite identity forms accepted as a pk value
func asKey(value interface{}) (Key, bool) {
	switch v := value.(type) {
	case Key:
		return v, true
	case map[string]interface{}:
		return Key(v), true
	case orm.Q:
		return Key(v), true
	case Identity:
		if v.IsComposite() {
			return v.Key(), true
		}
	}
	return nil, false
}

// checkScalars rejects multi-value lookups over composite identities:
// pk__in=[Key{...}, Key{...}] has no per-field equivalent.
func checkScalars(l orm.Lookup) error {
	for _, v := range orm.Sequence(l.Value) {
		if _, ok := asKey(v); ok {
			return unsupported(l, "multi-value lookups on a composite key")
		}
	}
	return nil
}

func unsupported(l orm.Lookup, reason string) error {
	return &orm.Error{
		Op:     "filter",
		Column: l.Key(),
		Err:    fmt.Errorf("%w: %s", orm.ErrUnsupportedLookup, reason),
	}
}
