package storage

import (
	"reflect"
	"sync"

	"github.com/dpup/grantrelay/errors"
	pluralize "github.com/gertd/go-pluralize"
	"github.com/iancoleman/strcase"
)

// Model is a document a Store can persist.
type Model interface {
	// PK is the key the document is stored under, e.g. the subject for
	// credentials.
	PK() string
}

// Namer overrides the table name derived from a model's type.
type Namer interface {
	Name() string
}

var (
	pluralizer = pluralize.NewClient()
	tableNames sync.Map // map[reflect.Type]string
)

// Name is the table a model lives in. Unless the model implements Namer it is
// derived from the type, so `UserDoc` and `*[]UserDoc` both map to
// "user_docs".
func Name(m any) string {
	if n, ok := m.(Namer); ok {
		return n.Name()
	}
	t := reflect.TypeOf(m)
	for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	if cached, ok := tableNames.Load(t); ok {
		return cached.(string)
	}
	name := pluralizer.Plural(strcase.ToSnake(t.Name()))
	tableNames.Store(t, name)
	return name
}

// ValidateReceiver checks that model is a non-nil pointer a document can be
// decoded into.
func ValidateReceiver(model Model) error {
	if model == nil {
		return errors.Mark(ErrNilModel, 0)
	}
	if v := reflect.ValueOf(model); v.Kind() != reflect.Pointer || v.IsNil() {
		return errors.Mark(ErrNilModel, 0)
	}
	return nil
}
