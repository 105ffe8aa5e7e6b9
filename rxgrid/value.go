package rxgrid

// AsyncState tags the observable state of an async or stream provider.
type AsyncState int

const (
	// AsyncLoading means a build is in flight and no result has landed yet.
	AsyncLoading AsyncState = iota
	// AsyncReady means the last build completed with a value.
	AsyncReady
	// AsyncError means the last build completed with an error.
	AsyncError
)

func (s AsyncState) String() string {
	switch s {
	case AsyncLoading:
		return "Loading"
	case AsyncReady:
		return "Ready"
	case AsyncError:
		return "Error"
	default:
		return "Unknown"
	}
}

// AsyncValue is the value type of async and stream providers: the current
// state of the computation plus, when available, its data.
//
// Under refresh semantics (WithKeepPrevious), a Loading or Error value still
// carries the last Ready value: State describes the in-flight build while
// Value/HasValue expose what consumers may keep showing.
type AsyncValue[T any] struct {
	State AsyncState
	// Value holds data when HasValue is true: the latest Ready result, or a
	// retained previous result while State is Loading/Error.
	Value    T
	HasValue bool
	// Err is set when State is AsyncError.
	Err error
}

// IsLoading reports whether a build is in flight.
func (v AsyncValue[T]) IsLoading() bool { return v.State == AsyncLoading }

// IsReady reports whether the latest build landed with a value.
func (v AsyncValue[T]) IsReady() bool { return v.State == AsyncReady }

// IsError reports whether the latest build failed.
func (v AsyncValue[T]) IsError() bool { return v.State == AsyncError }

// Get returns the carried value, or the build error if the state is
// AsyncError. While loading with no retained value, ok is false.
func (v AsyncValue[T]) Get() (value T, ok bool, err error) {
	if v.State == AsyncError {
		return value, false, v.Err
	}
	return v.Value, v.HasValue, nil
}
