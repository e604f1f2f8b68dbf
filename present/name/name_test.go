package name_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ktr0731/dynpb/present/name"
)

func TestPresenter(t *testing.T) {
	cases := map[string]struct {
		v        interface{}
		expected string
		hasErr   bool
	}{
		"not a struct": {
			v:      100,
			hasErr: true,
		},
		"doesn't have a slice": {
			v:      struct{}{},
			hasErr: true,
		},
		"doesn't have a slice of a struct": {
			v:      struct{ V []int }{[]int{1}},
			hasErr: true,
		},
		"the slice type has no name field": {
			v: struct {
				V []struct{}
			}{
				V: []struct{}{struct{}{}},
			},
			hasErr: true,
		},
		"normal": {
			v: struct {
				V []struct{ Name string }
			}{
				V: []struct{ Name string }{{"library.Book"}, {"library.Genre"}},
			},
			expected: "library.Book\nlibrary.Genre",
		},
		"the tagged field wins over position": {
			v: struct {
				V []struct {
					Kind string
					Name string `table:"name"`
				}
			}{
				V: []struct {
					Kind string
					Name string `table:"name"`
				}{{"message", "library.Book"}, {"enum", "library.Genre"}},
			},
			expected: "library.Book\nlibrary.Genre",
		},
	}
	for tname, c := range cases {
		c := c
		t.Run(tname, func(t *testing.T) {
			p := name.NewPresenter()
			actual, err := p.Format(c.v)
			if c.hasErr {
				if err == nil {
					t.Errorf("Format must return an error, but got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("Format must not return an error, but got an error: '%s'", err)
			}
			if diff := cmp.Diff(c.expected, actual); diff != "" {
				t.Errorf("(-want, +got)\n%s", diff)
			}
		})
	}
}
