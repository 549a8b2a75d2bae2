// Package gormpk applies composite pk lookups to gorm queries.
package gormpk

import (
	"gorm.io/gorm"

	"github.com/eleven-am/storm-composite/pkg/composite"
	orm "github.com/eleven-am/storm-composite/pkg/storm-orm"
)

// Scope filters a gorm query by keyword lookups on a composite model, pk
// lookups included:
//
//	db.Scopes(gormpk.Scope(auction.LotModel, orm.Q{"pk": key})).First(&lot)
//
// Failures are added to the statement and surface as the query's Error.
func Scope(model *composite.Model, q orm.Q) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		lookups, err := composite.ExpandPK(model.PrimaryKeys(), orm.ParseQ(q))
		if err != nil {
			_ = db.AddError(err)
			return db
		}

		conds, err := model.Metadata().LookupConditions(lookups)
		if err != nil {
			_ = db.AddError(err)
			return db
		}

		for _, cond := range conds {
			sql, args, err := cond.ToSql()
			if err != nil {
				_ = db.AddError(err)
				return db
			}
			db = db.Where(sql, args...)
		}
		return db
	}
}

// FindByPK loads the row of a composite model with the given identity into
// dest. A missing row is gorm.ErrRecordNotFound.
func FindByPK(db *gorm.DB, model *composite.Model, id interface{}, dest interface{}) error {
	return db.Table(model.Table()).Scopes(Scope(model, orm.Q{orm.PKName: id})).Take(dest).Error
}
