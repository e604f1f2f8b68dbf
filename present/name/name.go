// Package name provides a presenter that renders one name per line.
package name

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// Presenter formats the name column of a listing, one entry per line.
type Presenter struct{}

func NewPresenter() *Presenter {
	return &Presenter{}
}

// Format renders v, a struct holding a slice of structs, by printing each
// element's name field: the field tagged `table:"name"`, or failing that
// the field named Name.
func (p *Presenter) Format(v interface{}) (string, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return "", errors.Errorf("expected a struct, but got %T", v)
	}

	var slice reflect.Value
	for i := 0; i < rv.NumField(); i++ {
		if rv.Field(i).Kind() == reflect.Slice {
			slice = rv.Field(i)
			break
		}
	}
	if !slice.IsValid() {
		return "", errors.New("the struct has no slice field to list")
	}

	rows := make([]string, slice.Len())
	for i := 0; i < slice.Len(); i++ {
		e := slice.Index(i)
		if e.Kind() != reflect.Struct {
			return "", errors.New("the listed elements are not structs")
		}
		f, ok := nameField(e)
		if !ok {
			return "", errors.Errorf("%s has no name field", e.Type())
		}
		rows[i] = fmt.Sprint(f.Interface())
	}
	return strings.Join(rows, "\n"), nil
}

func nameField(e reflect.Value) (reflect.Value, bool) {
	t := e.Type()
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).Tag.Get("table") == "name" {
			return e.Field(i), true
		}
	}
	f := e.FieldByName("Name")
	return f, f.IsValid()
}
