package orm

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

type TestUser struct {
	_ struct{} `dbdef:"table:users"`

	ID       int64  `db:"id" dbdef:"type:bigserial;primary_key;default:nextval('users_id_seq')"`
	Name     string `db:"name" dbdef:"type:varchar(100);not_null"`
	Email    string `db:"email" dbdef:"type:varchar(255)"`
	IsActive bool   `db:"is_active" dbdef:"type:boolean;default:true"`
}

type TestMembership struct {
	UserID  int64  `db:"user_id" dbdef:"primary_key;foreign_key:users.id"`
	GroupID int64  `db:"group_id" dbdef:"primary_key;foreign_key:groups.id"`
	Role    string `db:"role"`
}

type testTimestamps struct {
	CreatedBy string `db:"created_by"`
}

type TestCategory struct {
	testTimestamps
	ID    string `db:"id"`
	Label string `dbdef:"name:title"`
	notes string
	Skip  string `db:"-"`
}

var userColumns = []string{"id", "name", "email", "is_active"}

func newTestRepo[T any](t *testing.T) (*Repository[T], sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := NewRepository[T](sqlx.NewDb(db, "postgres"), nil)
	require.NoError(t, err)

	return repo, mock
}
