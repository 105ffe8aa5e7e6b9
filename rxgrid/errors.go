package rxgrid

import (
	"errors"
	"fmt"
	"strings"
)

// ErrContainerClosed is returned by every operation on a closed container.
var ErrContainerClosed = errors.New("rxgrid: container closed")

// BuildError reports that a provider's builder returned an error, panicked,
// or read a dependency that is itself in an error state. The failure is
// confined to the node: it surfaces through Read/Use/AsyncValue, never as a
// process-level fault.
type BuildError struct {
	// Key is the canonical node key, e.g. "session" or "user[9f86d081]".
	Key string
	// Err is the builder's error.
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("provider %s: build failed: %v", e.Key, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// CyclicDependencyError reports a dependency cycle detected while building.
// Only the build chain named in Chain is aborted; the rest of the graph is
// unaffected.
type CyclicDependencyError struct {
	// Chain lists the node keys along the offending build chain, ending with
	// the node whose read closed the cycle.
	Chain []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic dependency: %s", strings.Join(e.Chain, " -> "))
}

// InvalidFamilyArgumentError reports a family argument that does not satisfy
// the equality/hashing contract of its family's key function.
type InvalidFamilyArgumentError struct {
	Family string
	Err    error
}

func (e *InvalidFamilyArgumentError) Error() string {
	return fmt.Sprintf("family %s: invalid argument: %v", e.Family, e.Err)
}

func (e *InvalidFamilyArgumentError) Unwrap() error { return e.Err }

// DisposedNodeAccessError reports an operation on a key after explicit
// disposal. Nodes reclaimed by auto-dispose are re-creatable and never
// produce this error.
type DisposedNodeAccessError struct {
	Key string
}

func (e *DisposedNodeAccessError) Error() string {
	return fmt.Sprintf("provider %s: accessed after explicit disposal", e.Key)
}

// wrapBuildErr normalizes a builder failure. Errors already belonging to the
// taxonomy pass through so a dependent re-throwing its dependency's failure
// keeps the original key and chain.
func wrapBuildErr(key string, err error) error {
	var be *BuildError
	var ce *CyclicDependencyError
	var de *DisposedNodeAccessError
	if errors.As(err, &be) || errors.As(err, &ce) || errors.As(err, &de) {
		return err
	}
	return &BuildError{Key: key, Err: err}
}
