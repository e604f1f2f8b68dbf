// Package present defines presenters for formatting values the
// application shows to the user.
package present

// Presenter formats processed results such as type listings, type
// descriptions and decoded messages for displaying them.
type Presenter interface {
	// Format receives a value v and returns the formatted output as string.
	Format(v interface{}) (string, error)
}
