package composite

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

type person struct {
	_ struct{} `dbdef:"table:people"`

	FirstName string `db:"first_name" dbdef:"primary_key"`
	LastName  string `db:"last_name" dbdef:"primary_key"`
	Cool      bool   `db:"cool"`
}

type lot struct {
	_ struct{} `dbdef:"table:lots"`

	AuctionID   int64  `db:"auction_id" dbdef:"primary_key;foreign_key:auctions.id"`
	LotNumber   int    `db:"lot_number" dbdef:"primary_key"`
	Description string `db:"description"`
}

var (
	personModel = MustDefine[person]()
	lotModel    = MustDefine[lot](WithRequireComposite())
)

var (
	personColumns = []string{"first_name", "last_name", "cool"}
	lotColumns    = []string{"auction_id", "lot_number", "description"}
)

func newTestDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return sqlx.NewDb(db, "postgres"), mock
}
