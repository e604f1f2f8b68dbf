// Package table provides a table like formatting.
package table

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
)

// Presenter is a presenter that formats v into a table.
type Presenter struct{}

func indirect(rv reflect.Value) reflect.Value {
	if rv.Type().Kind() != reflect.Ptr {
		return rv
	}
	return indirect(reflect.Indirect(rv))
}

func indirectType(rt reflect.Type) reflect.Type {
	if rt.Kind() != reflect.Ptr {
		return rt
	}
	return indirectType(rt.Elem())
}

func findSlice(rv reflect.Value) (reflect.Value, bool) {
	for i := 0; i < rv.NumField(); i++ {
		sf := rv.Field(i)
		if sf.Kind() == reflect.Slice {
			return sf, true
		}
	}
	return rv, false
}

// Format formats v into a table. v should be a struct type that has a
// slice of structs; each element becomes one row, and the element's
// fields become the columns. Lower-cased field names are used as column
// headers unless a `table` tag overrides them, and fields tagged with
// "-" are skipped.
func (p *Presenter) Format(v interface{}) (string, error) {
	rv := indirect(reflect.ValueOf(v))
	rt := rv.Type()
	if rt.Kind() != reflect.Struct {
		return "", errors.New("v should be a struct type")
	}

	slice, ok := findSlice(rv)
	if !ok {
		return "", errors.New("the struct should have a slice field")
	}
	elemType := indirectType(slice.Type().Elem())
	if elemType.Kind() != reflect.Struct {
		return "", errors.New("v should have a slice of a struct")
	}

	keys := processStructKeys(elemType)
	vals := make([][]string, 0, slice.Len())
	for i := 0; i < slice.Len(); i++ {
		vals = append(vals, processStructValues(indirect(slice.Index(i))))
	}

	var w bytes.Buffer
	table := tablewriter.NewWriter(&w)
	table.SetHeader(keys)
	table.AppendBulk(vals)
	table.Render()
	return w.String(), nil
}

func processStructKeys(rt reflect.Type) []string {
	keys := make([]string, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		key := sf.Tag.Get("table")
		if key == "-" {
			continue
		}
		if key == "" {
			key = strings.ToLower(sf.Name)
		}
		keys = append(keys, key)
	}
	return keys
}

func processStructValues(rv reflect.Value) []string {
	row := make([]string, 0, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		if rv.Type().Field(i).Tag.Get("table") == "-" {
			continue
		}
		row = append(row, fmt.Sprint(rv.Field(i).Interface()))
	}
	return row
}

func NewPresenter() *Presenter {
	return &Presenter{}
}
