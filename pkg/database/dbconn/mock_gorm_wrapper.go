package dbconn

import (
	"errors"
	"reflect"
)

// MockGormWrapper records calls instead of touching a database, every
// query returns the configured result and error.
type MockGormWrapper interface {
	GormWrapper
	Created() []interface{}
	Saved() []interface{}
	Chain() *queryChain
	SetError(error) MockGormWrapper
	SetResult(interface{}) MockGormWrapper
}

type mockGormWrapper struct {
	error   error
	created []interface{}
	saved   []interface{}
	chain   *queryChain
	result  interface{}
}

type queryChain struct {
	Model   interface{}
	Where   whereQuery
	Updates map[string]interface{}
	Deleted bool
}

type whereQuery struct {
	Query interface{}
	Args  []interface{}
}

func Mock() MockGormWrapper {
	return &mockGormWrapper{}
}

func (w *mockGormWrapper) Created() []interface{} {
	return w.created
}

func (w *mockGormWrapper) Saved() []interface{} {
	return w.saved
}

func (w *mockGormWrapper) Chain() *queryChain {
	return w.chain
}

func (w *mockGormWrapper) SetError(e error) MockGormWrapper {
	w.error = e
	return w
}

func (w *mockGormWrapper) SetResult(r interface{}) MockGormWrapper {
	w.result = r
	return w
}

func (w *mockGormWrapper) Error() error {
	return w.error
}

func (w *mockGormWrapper) AutoMigrate(...interface{}) error {
	return w.error
}

func (w *mockGormWrapper) Create(value interface{}) GormWrapper {
	if w.error == nil {
		w.created = append(w.created, value)
	}
	return w
}

func (w *mockGormWrapper) Save(value interface{}) GormWrapper {
	if w.error == nil {
		w.saved = append(w.saved, value)
	}
	return w
}

func (w *mockGormWrapper) ensureChain() *queryChain {
	if w.chain == nil {
		w.chain = &queryChain{}
	}
	return w.chain
}

func (w *mockGormWrapper) Model(value interface{}) GormWrapper {
	w.ensureChain().Model = value
	return w
}

func (w *mockGormWrapper) Where(query interface{}, args ...interface{}) GormWrapper {
	w.ensureChain().Where = whereQuery{
		Query: query,
		Args:  args,
	}
	return w
}

func (w *mockGormWrapper) First(dest interface{}, conds ...interface{}) GormWrapper {
	if w.chain == nil {
		w.error = errors.New("need to call query first")
		return w
	}
	return w.fill(dest)
}

func (w *mockGormWrapper) Find(dest interface{}, conds ...interface{}) GormWrapper {
	return w.fill(dest)
}

func (w *mockGormWrapper) fill(dest interface{}) GormWrapper {
	if w.error != nil || w.result == nil {
		return w
	}
	w.error = Replace(dest, w.result)
	return w
}

func (w *mockGormWrapper) Update(column string, value interface{}) GormWrapper {
	chain := w.ensureChain()
	if chain.Updates == nil {
		chain.Updates = map[string]interface{}{}
	}
	chain.Updates[column] = value
	return w
}

func (w *mockGormWrapper) Delete(value interface{}, conds ...interface{}) GormWrapper {
	w.ensureChain().Deleted = true
	return w
}

func (w *mockGormWrapper) Unscoped() GormWrapper {
	return w
}

func (w *mockGormWrapper) Close() error {
	return nil
}

func Replace(i, v interface{}) error {
	val := reflect.ValueOf(i)
	if val.Kind() != reflect.Ptr {
		return errors.New("not a pointer")
	}

	val = val.Elem()

	newVal := reflect.Indirect(reflect.ValueOf(v))

	if !newVal.Type().AssignableTo(val.Type()) {
		return errors.New("mismatched types")
	}

	val.Set(newVal)
	return nil
}
