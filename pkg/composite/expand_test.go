package composite

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orm "github.com/eleven-am/storm-composite/pkg/storm-orm"
)

func TestExpandPK(t *testing.T) {
	keys := []string{"auction", "lot_number"}
	key := Key{"auction": int64(1), "lot_number": 2}

	tests := []struct {
		name     string
		lookups  []orm.Lookup
		expected []orm.Lookup
	}{
		{
			name:    "exact",
			lookups: []orm.Lookup{{Field: "pk", Value: key}},
			expected: []orm.Lookup{
				{Field: "auction", Value: int64(1)},
				{Field: "lot_number", Value: 2},
			},
		},
		{
			name:    "operator suffix is kept",
			lookups: []orm.Lookup{{Field: "pk", Op: "gte", Value: key}},
			expected: []orm.Lookup{
				{Field: "auction", Op: "gte", Value: int64(1)},
				{Field: "lot_number", Op: "gte", Value: 2},
			},
		},
		{
			name: "position among other lookups",
			lookups: []orm.Lookup{
				{Field: "description", Op: "icontains", Value: "bike"},
				{Field: "pk", Value: Composite(key)},
				{Field: "lot_number", Op: "lt", Value: 9},
			},
			expected: []orm.Lookup{
				{Field: "description", Op: "icontains", Value: "bike"},
				{Field: "auction", Value: int64(1)},
				{Field: "lot_number", Value: 2},
				{Field: "lot_number", Op: "lt", Value: 9},
			},
		},
		{
			name:    "plain maps",
			lookups: []orm.Lookup{{Field: "pk", Value: map[string]interface{}{"auction": int64(1), "lot_number": 2, "extra": true}}},
			expected: []orm.Lookup{
				{Field: "auction", Value: int64(1)},
				{Field: "lot_number", Value: 2},
			},
		},
		{
			name:     "scalar pk",
			lookups:  []orm.Lookup{{Field: "pk", Value: int64(4)}},
			expected: []orm.Lookup{{Field: "pk", Value: int64(4)}},
		},
		{
			name:     "single identity is unwrapped",
			lookups:  []orm.Lookup{{Field: "pk", Value: Single("Joe")}},
			expected: []orm.Lookup{{Field: "pk", Value: "Joe"}},
		},
		{
			name:     "scalar sequence",
			lookups:  []orm.Lookup{{Field: "pk", Op: "in", Value: []int64{1, 2}}},
			expected: []orm.Lookup{{Field: "pk", Op: "in", Value: []int64{1, 2}}},
		},
		{
			name:     "no pk lookups",
			lookups:  []orm.Lookup{{Field: "auction", Value: int64(1)}},
			expected: []orm.Lookup{{Field: "auction", Value: int64(1)}},
		},
		{
			name:     "empty",
			lookups:  nil,
			expected: []orm.Lookup{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandPK(keys, tt.lookups)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestExpandPKErrors(t *testing.T) {
	keys := []string{"auction", "lot_number"}

	t.Run("sequence of keys", func(t *testing.T) {
		_, err := ExpandPK(keys, []orm.Lookup{{
			Field: "pk",
			Op:    "in",
			Value: []Key{{"auction": int64(1), "lot_number": 2}},
		}})
		assert.True(t, errors.Is(err, orm.ErrUnsupportedLookup))

		var ormErr *orm.Error
		require.True(t, errors.As(err, &ormErr))
		assert.Equal(t, "pk__in", ormErr.Column)
	})

	t.Run("sequence with a composite identity", func(t *testing.T) {
		_, err := ExpandPK(keys, []orm.Lookup{{
			Field: "pk",
			Op:    "in",
			Value: []interface{}{int64(3), Composite(Key{"auction": int64(1)})},
		}})
		assert.True(t, errors.Is(err, orm.ErrUnsupportedLookup))
	})

	t.Run("missing key field", func(t *testing.T) {
		_, err := ExpandPK(keys, []orm.Lookup{{Field: "pk", Value: Key{"auction": int64(1)}}})
		assert.True(t, errors.Is(err, orm.ErrUnknownField))
		assert.ErrorContains(t, err, `"lot_number"`)
	})

	t.Run("model without keys", func(t *testing.T) {
		_, err := ExpandPK(nil, []orm.Lookup{{Field: "pk", Value: Key{"auction": int64(1)}}})
		assert.True(t, errors.Is(err, orm.ErrUnsupportedLookup))
	})
}

func TestExpandPKLeavesInputAlone(t *testing.T) {
	lookups := []orm.Lookup{
		{Field: "pk", Value: Single(int64(4))},
		{Field: "pk", Value: Key{"auction": int64(1), "lot_number": 2}},
	}
	before := append([]orm.Lookup(nil), lookups...)

	got, err := ExpandPK([]string{"auction", "lot_number"}, lookups)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, before, lookups)
}

func TestRewriter(t *testing.T) {
	rewrite := lotModel.Rewriter()

	got, err := rewrite(orm.ParseQ(orm.Q{"pk__lte": Key{"auction": int64(1), "lot_number": 2}}))
	require.NoError(t, err)
	assert.Equal(t, []orm.Lookup{
		{Field: "auction", Op: "lte", Value: int64(1)},
		{Field: "lot_number", Op: "lte", Value: 2},
	}, got)

	conds, err := lotModel.Metadata().LookupConditions(got)
	require.NoError(t, err)
	sql, args, err := orm.And(conds...).ToSqlizer().ToSql()
	require.NoError(t, err)
	assert.Equal(t, "(auction_id <= ? AND lot_number <= ?)", sql)
	assert.Equal(t, []interface{}{int64(1), 2}, args)
}
