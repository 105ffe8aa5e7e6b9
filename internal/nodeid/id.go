// Package nodeid defines the structured identity of a node in the provider
// graph: a registration name plus, for family instances, the canonical form
// of the family argument.
package nodeid

import (
	"strings"
)

// ID is the structured representation of a unique node identifier.
type ID struct {
	// Name is the registration name of the provider, e.g. "counter".
	Name string
	// Arg is the canonical key of the family argument. It is empty for
	// non-family providers.
	Arg string
}

// New returns the ID of a plain (non-family) provider.
func New(name string) ID {
	return ID{Name: name}
}

// Family returns the ID of one family instance, identified by the canonical
// key of its argument.
func Family(name, argKey string) ID {
	return ID{Name: name, Arg: argKey}
}

// String serializes the ID into its canonical string representation,
// e.g. "counter" or "user[9f86d081884c7d65]".
func (id ID) String() string {
	if id.Arg == "" {
		return id.Name
	}
	var sb strings.Builder
	sb.WriteString(id.Name)
	sb.WriteRune('[')
	sb.WriteString(id.Arg)
	sb.WriteRune(']')
	return sb.String()
}

// Equal reports whether two IDs name the same node.
func (id ID) Equal(other ID) bool {
	return id.Name == other.Name && id.Arg == other.Arg
}

// IsFamily reports whether the ID belongs to a family instance.
func (id ID) IsFamily() bool {
	return id.Arg != ""
}
