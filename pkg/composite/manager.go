package composite

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jmoiron/sqlx"

	orm "github.com/eleven-am/storm-composite/pkg/storm-orm"
)

// Manager is the composite-aware entry point for a model. Queries built
// through it expand pk lookups, and records are addressed by their
// composite identity when updated, saved or deleted.
type Manager[T any] struct {
	model *Model
	repo  *orm.Repository[T]

	// UseForRelatedFields makes Register publish this manager's repository
	// for relation traversal.
	UseForRelatedFields bool
}

// NewManager creates the host repository for T on db and installs the
// composite identity and pk expansion hooks.
func NewManager[T any](db orm.DBExecutor, model *Model) (*Manager[T], error) {
	if model == nil {
		return nil, fmt.Errorf("%w: nil model", ErrNotDefined)
	}

	var zero T
	if typ := reflect.TypeOf(zero); typ != model.metadata.Type {
		return nil, fmt.Errorf("%w: model describes %v, not %v", orm.ErrInvalidStruct, model.metadata.Type, typ)
	}

	repo, err := orm.NewRepository[T](db, model.metadata)
	if err != nil {
		return nil, err
	}

	m := &Manager[T]{
		model:               model,
		repo:                repo,
		UseForRelatedFields: true,
	}
	repo.SetIdentity(m.lookupValue)
	repo.SetLookupRewriter(model.Rewriter())

	return m, nil
}

// ManagerFor is NewManager for a type already passed to Define
func ManagerFor[T any](db orm.DBExecutor) (*Manager[T], error) {
	var zero T
	model, err := Lookup(reflect.TypeOf(zero))
	if err != nil {
		return nil, err
	}
	return NewManager[T](db, model)
}

// lookupValue is the "pk" lookup value addressing record
func (m *Manager[T]) lookupValue(record *T) (interface{}, error) {
	id, err := m.model.PK(record)
	if err != nil {
		return nil, err
	}
	if id.IsComposite() {
		return id.Key(), nil
	}
	return id.Value(), nil
}

func (m *Manager[T]) Model() *Model {
	return m.model
}

// Repository returns the underlying host repository, hooks installed
func (m *Manager[T]) Repository() *orm.Repository[T] {
	return m.repo
}

func (m *Manager[T]) Query(ctx context.Context) *orm.Query[T] {
	return m.repo.Query(ctx)
}

func (m *Manager[T]) Filter(ctx context.Context, kw orm.Q, conds ...orm.Condition) *orm.Query[T] {
	return m.repo.Query(ctx).Filter(kw, conds...)
}

func (m *Manager[T]) Exclude(ctx context.Context, kw orm.Q, conds ...orm.Condition) *orm.Query[T] {
	return m.repo.Query(ctx).Exclude(kw, conds...)
}

func (m *Manager[T]) Get(ctx context.Context, kw orm.Q, conds ...orm.Condition) (*T, error) {
	return m.repo.Query(ctx).Get(kw, conds...)
}

// FindByPK loads the record with the given identity. id may be a Key, an
// Identity or a single column value.
func (m *Manager[T]) FindByPK(ctx context.Context, id interface{}) (*T, error) {
	return m.repo.FindByID(ctx, id)
}

func (m *Manager[T]) Count(ctx context.Context) (int64, error) {
	return m.repo.Count(ctx)
}

func (m *Manager[T]) Create(ctx context.Context, record *T) error {
	return m.repo.Create(ctx, record)
}

// Save updates the row addressed by record's identity, inserting when none
// matched.
func (m *Manager[T]) Save(ctx context.Context, record *T) error {
	return m.repo.Save(ctx, record)
}

func (m *Manager[T]) Update(ctx context.Context, record *T) error {
	return m.repo.Update(ctx, record)
}

func (m *Manager[T]) Delete(ctx context.Context, record *T) error {
	return m.repo.Delete(ctx, record)
}

// PK returns the identity of record
func (m *Manager[T]) PK(record *T) (Identity, error) {
	return m.model.PK(record)
}

// WithTx returns a copy of the manager bound to tx
func (m *Manager[T]) WithTx(tx *sqlx.Tx) *Manager[T] {
	clone := *m
	clone.repo = m.repo.WithTx(tx)
	return &clone
}

// Register publishes the composite-aware repository on s so relation
// traversal to this model expands pk lookups too. It does nothing when
// UseForRelatedFields is off.
func (m *Manager[T]) Register(s *orm.Storm) {
	if !m.UseForRelatedFields {
		return
	}
	orm.Register(s, m.repo)
}
