package engine

import "fmt"

// unsupportedModelError: requested display name is not in the catalog.
type unsupportedModelError struct{ name string }

func (e unsupportedModelError) Error() string { return "model not supported: " + e.name }

// ErrUnsupportedModel constructs an unsupportedModelError.
func ErrUnsupportedModel(name string) error { return unsupportedModelError{name: name} }

// IsUnsupportedModel reports whether err indicates an unknown model name.
func IsUnsupportedModel(err error) bool {
	_, ok := err.(unsupportedModelError)
	return ok
}

// loadFailureError: the backend failed while loading model or tokenizer.
type loadFailureError struct {
	name string
	err  error
}

func (e loadFailureError) Error() string { return fmt.Sprintf("load %s: %v", e.name, e.err) }
func (e loadFailureError) Unwrap() error { return e.err }

// ErrLoadFailure constructs a loadFailureError.
func ErrLoadFailure(name string, err error) error { return loadFailureError{name: name, err: err} }

// IsLoadFailure reports whether err came from the model loading path.
func IsLoadFailure(err error) bool {
	_, ok := err.(loadFailureError)
	return ok
}

// generationFailureError: decoding failed after a successful load.
type generationFailureError struct {
	name string
	err  error
}

func (e generationFailureError) Error() string {
	return fmt.Sprintf("generate with %s: %v", e.name, e.err)
}
func (e generationFailureError) Unwrap() error { return e.err }

// ErrGenerationFailure constructs a generationFailureError.
func ErrGenerationFailure(name string, err error) error {
	return generationFailureError{name: name, err: err}
}

// IsGenerationFailure reports whether err came from the decoding path.
func IsGenerationFailure(err error) bool {
	_, ok := err.(generationFailureError)
	return ok
}

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct{ name string }

func (e tooBusyError) Error() string { return "too busy: " + e.name }

// ErrTooBusy constructs a tooBusyError.
func ErrTooBusy(name string) error { return tooBusyError{name: name} }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	_, ok := err.(tooBusyError)
	return ok
}
