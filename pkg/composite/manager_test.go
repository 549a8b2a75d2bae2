package composite

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orm "github.com/eleven-am/storm-composite/pkg/storm-orm"
)

const (
	updatePerson = `UPDATE people SET cool = \$1, first_name = \$2, last_name = \$3 WHERE \(\(first_name = \$4 AND last_name = \$5\)\)`
	insertPerson = `INSERT INTO people \(first_name,last_name,cool\) VALUES \(\$1,\$2,\$3\)`
)

func newPeople(t *testing.T) (*Manager[person], sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newTestDB(t)
	people, err := NewManager[person](db, personModel)
	require.NoError(t, err)
	return people, mock
}

func TestNewManager(t *testing.T) {
	db, _ := newTestDB(t)

	_, err := NewManager[person](db, nil)
	assert.True(t, errors.Is(err, ErrNotDefined))

	_, err = NewManager[lot](db, personModel)
	assert.True(t, errors.Is(err, orm.ErrInvalidStruct))

	lots, err := ManagerFor[lot](db)
	require.NoError(t, err)
	assert.Same(t, lotModel, lots.Model())
	assert.Equal(t, lotColumns, lots.Repository().Columns())
	assert.True(t, lots.UseForRelatedFields)

	type undefined struct {
		ID int64 `db:"id"`
	}
	_, err = ManagerFor[undefined](db)
	assert.True(t, errors.Is(err, ErrNotDefined))
}

func TestManagerGetByPK(t *testing.T) {
	people, mock := newPeople(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT first_name, last_name, cool FROM people WHERE \(\(first_name = \$1 AND last_name = \$2\)\) LIMIT 2`).
		WithArgs("Joe", "Bloggs").
		WillReturnRows(sqlmock.NewRows(personColumns).AddRow("Joe", "Bloggs", true))

	joe, err := people.Get(ctx, orm.Q{"pk": Key{"first_name": "Joe", "last_name": "Bloggs"}})
	require.NoError(t, err)
	assert.True(t, joe.Cool)

	id, err := people.PK(joe)
	require.NoError(t, err)
	assert.Equal(t, Key{"first_name": "Joe", "last_name": "Bloggs"}, id.Key())

	mock.ExpectQuery(`SELECT .* FROM people WHERE \(\(first_name = \$1 AND last_name = \$2\)\) LIMIT 2`).
		WithArgs("Jane", "Doe").
		WillReturnRows(sqlmock.NewRows(personColumns))

	_, err = people.FindByPK(ctx, Composite(Key{"first_name": "Jane", "last_name": "Doe"}))
	assert.True(t, errors.Is(err, orm.ErrNotFound))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManagerGetByForeignKeyPK(t *testing.T) {
	db, mock := newTestDB(t)
	lots, err := NewManager[lot](db, lotModel)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT auction_id, lot_number, description FROM lots WHERE \(\(auction_id = \$1 AND lot_number = \$2\)\) LIMIT 2`).
		WithArgs(int64(1), 2).
		WillReturnRows(sqlmock.NewRows(lotColumns).AddRow(1, 2, "Raleigh"))

	l, err := lots.Get(context.Background(), orm.Q{"pk": Key{"auction": int64(1), "lot_number": 2}})
	require.NoError(t, err)
	assert.Equal(t, "Raleigh", l.Description)
	assert.Equal(t, Key{"auction": int64(1), "lot_number": 2}, lots.Model().MustPK(l).Key())

	require.NoError(t, mock.ExpectationsWereMet())
}

type orderItem struct {
	_ struct{} `dbdef:"table:order_items"`

	OrderID int64 `dbdef:"primary_key"`
	LineNo  int   `dbdef:"primary_key"`
	Sku     string
}

var orderItemModel = MustDefine[orderItem]()

func TestManagerGetUntaggedModel(t *testing.T) {
	db, mock := newTestDB(t)
	items, err := NewManager[orderItem](db, orderItemModel)
	require.NoError(t, err)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT order_id, line_no, sku FROM order_items WHERE \(\(order_id = \$1 AND line_no = \$2\)\) LIMIT 2`).
		WithArgs(int64(5), 2).
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "line_no", "sku"}).AddRow(5, 2, "SKU-9"))

	item, err := items.Get(ctx, orm.Q{"pk": Key{"order_id": int64(5), "line_no": 2}})
	require.NoError(t, err)
	assert.Equal(t, orderItem{OrderID: 5, LineNo: 2, Sku: "SKU-9"}, *item)
	assert.Equal(t, Key{"order_id": int64(5), "line_no": 2}, orderItemModel.MustPK(item).Key())

	mock.ExpectQuery(`SELECT order_id, line_no, sku FROM order_items WHERE \(\(order_id = \$1\)\)`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "line_no", "sku"}).
			AddRow(5, 1, "SKU-1").
			AddRow(5, 2, "SKU-9"))

	all, err := items.Filter(ctx, orm.Q{"order_id": int64(5)}).Find()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].LineNo)
	assert.Equal(t, "SKU-9", all[1].Sku)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManagerFilters(t *testing.T) {
	joe := Key{"first_name": "Joe", "last_name": "Bloggs"}

	tests := []struct {
		name  string
		build func(ctx context.Context, m *Manager[person]) *orm.Query[person]
		where string
		args  []driver.Value
	}{
		{
			name: "filter by key and field",
			build: func(ctx context.Context, m *Manager[person]) *orm.Query[person] {
				return m.Filter(ctx, orm.Q{"pk": joe, "cool": true})
			},
			where: `WHERE \(\(cool = \$1 AND first_name = \$2 AND last_name = \$3\)\)`,
			args:  []driver.Value{true, "Joe", "Bloggs"},
		},
		{
			name: "exclude negates the expanded key as a whole",
			build: func(ctx context.Context, m *Manager[person]) *orm.Query[person] {
				return m.Exclude(ctx, orm.Q{"pk": joe})
			},
			where: `WHERE \(NOT \(\(first_name = \$1 AND last_name = \$2\)\)\)`,
			args:  []driver.Value{"Joe", "Bloggs"},
		},
		{
			name: "key fields stay addressable",
			build: func(ctx context.Context, m *Manager[person]) *orm.Query[person] {
				return m.Query(ctx).Filter(orm.Q{"last_name__istartswith": "blo"})
			},
			where: `WHERE \(\(last_name ILIKE \$1\)\)`,
			args:  []driver.Value{"blo%"},
		},
		{
			name: "scalar pk uses the host key column",
			build: func(ctx context.Context, m *Manager[person]) *orm.Query[person] {
				return m.Filter(ctx, orm.Q{"pk__in": []string{"Joe", "Jane"}})
			},
			where: `WHERE \(\(first_name IN \(\$1,\$2\)\)\)`,
			args:  []driver.Value{"Joe", "Jane"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			people, mock := newPeople(t)

			mock.ExpectQuery(`SELECT COUNT\(\*\) FROM people ` + tt.where).
				WithArgs(tt.args...).
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

			count, err := tt.build(context.Background(), people).Count()
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestManagerFilterErrors(t *testing.T) {
	people, _ := newPeople(t)
	ctx := context.Background()

	_, err := people.Filter(ctx, orm.Q{"pk__in": []Key{{"first_name": "Joe", "last_name": "Bloggs"}}}).Find()
	assert.True(t, errors.Is(err, orm.ErrUnsupportedLookup))

	_, err = people.Get(ctx, orm.Q{"pk": Key{"first_name": "Joe"}})
	assert.True(t, errors.Is(err, orm.ErrUnknownField))
}

func TestManagerSave(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts when no row matched", func(t *testing.T) {
		people, mock := newPeople(t)

		mock.ExpectExec(updatePerson).
			WithArgs(true, "Joe", "Bloggs", "Joe", "Bloggs").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(insertPerson).
			WithArgs("Joe", "Bloggs", true).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, people.Save(ctx, &person{FirstName: "Joe", LastName: "Bloggs", Cool: true}))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("updates an existing row", func(t *testing.T) {
		people, mock := newPeople(t)

		mock.ExpectExec(updatePerson).
			WithArgs(false, "Jane", "Doe", "Jane", "Doe").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, people.Save(ctx, &person{FirstName: "Jane", LastName: "Doe"}))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("update of a missing row", func(t *testing.T) {
		people, mock := newPeople(t)

		mock.ExpectExec(updatePerson).
			WithArgs(false, "Jane", "Doe", "Jane", "Doe").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := people.Update(ctx, &person{FirstName: "Jane", LastName: "Doe"})
		assert.True(t, errors.Is(err, orm.ErrNotFound))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestManagerCreateAndCount(t *testing.T) {
	people, mock := newPeople(t)
	ctx := context.Background()

	mock.ExpectExec(insertPerson).
		WithArgs("Fred", "Bloggs", false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM people`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	require.NoError(t, people.Create(ctx, &person{FirstName: "Fred", LastName: "Bloggs"}))

	count, err := people.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManagerDelete(t *testing.T) {
	db, mock := newTestDB(t)
	lots, err := NewManager[lot](db, lotModel)
	require.NoError(t, err)
	ctx := context.Background()

	deleteLot := `DELETE FROM lots WHERE \(\(auction_id = \$1 AND lot_number = \$2\)\)`

	mock.ExpectExec(deleteLot).WithArgs(int64(1), 2).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, lots.Delete(ctx, &lot{AuctionID: 1, LotNumber: 2}))

	mock.ExpectExec(deleteLot).WithArgs(int64(1), 3).WillReturnResult(sqlmock.NewResult(0, 0))
	err = lots.Delete(ctx, &lot{AuctionID: 1, LotNumber: 3})
	assert.True(t, errors.Is(err, orm.ErrNotFound))
	var ormErr *orm.Error
	require.True(t, errors.As(err, &ormErr))
	assert.Equal(t, "delete", ormErr.Op)
	assert.Equal(t, "lots", ormErr.Table)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManagerWithTx(t *testing.T) {
	db, mock := newTestDB(t)
	lots, err := NewManager[lot](db, lotModel)
	require.NoError(t, err)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM lots WHERE \(\(auction_id = \$1 AND lot_number = \$2\)\)`).
		WithArgs(int64(4), 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)

	bound := lots.WithTx(tx)
	assert.NotSame(t, lots.Repository(), bound.Repository())
	require.NoError(t, bound.Delete(ctx, &lot{AuctionID: 4, LotNumber: 1}))
	require.NoError(t, tx.Commit())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManagerRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("related queries expand pk", func(t *testing.T) {
		db, mock := newTestDB(t)
		s := orm.NewStorm(db)

		lots, err := NewManager[lot](db, lotModel)
		require.NoError(t, err)
		lots.Register(s)

		mock.ExpectQuery(`SELECT .* FROM lots WHERE \(\(auction_id = \$1 AND lot_number = \$2\)\)`).
			WithArgs(int64(1), 2).
			WillReturnRows(sqlmock.NewRows(lotColumns).AddRow(1, 2, "Raleigh"))

		q, err := orm.RelatedQuery[lot](ctx, s, "lots", "pk", Key{"auction": int64(1), "lot_number": 2})
		require.NoError(t, err)

		found, err := q.Find()
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "Raleigh", found[0].Description)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("disabled", func(t *testing.T) {
		db, _ := newTestDB(t)
		s := orm.NewStorm(db)

		lots, err := NewManager[lot](db, lotModel)
		require.NoError(t, err)
		lots.UseForRelatedFields = false
		lots.Register(s)

		_, err = orm.RepositoryFor[lot](s, "lots")
		assert.True(t, errors.Is(err, orm.ErrNoRepository))
	})
}
