package meta

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

var (
	// ErrNotFound is the kind of every metadata, alias, identity, query or
	// sequence lookup miss under strict lookup.
	ErrNotFound = errors.New("metadata not found")

	// ErrResolution is the kind of failures raised while resolving metadata.
	ErrResolution = errors.New("metadata resolution failed")

	// ErrInvalid is the kind of illegal registrations and arguments.
	ErrInvalid = errors.New("invalid metadata")

	// ErrSuperclassAlreadySet is returned when a superclass link would change.
	ErrSuperclassAlreadySet = errors.New("superclass metadata already set")

	// ErrPreloaded is returned by registrations made after Preload.
	ErrPreloaded = errors.New("metadata repository is preloaded and read-only")
)

// MetaDataError describes a metadata failure. Kind is one of ErrNotFound,
// ErrResolution or ErrInvalid; errors.Is matches against it and against every
// nested cause.
type MetaDataError struct {
	Kind    error
	Message string
	Failed  any
	Nested  []error
	Fatal   bool
}

func (e *MetaDataError) Error() string {
	if len(e.Nested) == 0 {
		return e.Message
	}
	var b strings.Builder
	b.WriteString(e.Message)
	for _, err := range e.Nested {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap exposes the kind followed by all nested causes.
func (e *MetaDataError) Unwrap() []error {
	errs := make([]error, 0, len(e.Nested)+1)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	return append(errs, e.Nested...)
}

func notFound(failed any, format string, args ...any) *MetaDataError {
	return &MetaDataError{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...), Failed: failed}
}

func invalid(failed any, format string, args ...any) *MetaDataError {
	return &MetaDataError{Kind: ErrInvalid, Message: fmt.Sprintf(format, args...), Failed: failed, Fatal: true}
}

func resolutionError(failed any, cause error, format string, args ...any) *MetaDataError {
	e := &MetaDataError{Kind: ErrResolution, Message: fmt.Sprintf(format, args...), Failed: failed}
	if cause != nil {
		e.Nested = []error{cause}
	}
	return e
}

// combineErrors turns an accumulated multierr value into the single error
// returned from a resolution pass.
func combineErrors(err error) error {
	errs := multierr.Errors(err)
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return &MetaDataError{
			Kind:    ErrResolution,
			Message: fmt.Sprintf("%d errors occurred while resolving metadata", len(errs)),
			Nested:  errs,
			Fatal:   true,
		}
	}
}

// IsNotFound reports whether err is a lookup miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
