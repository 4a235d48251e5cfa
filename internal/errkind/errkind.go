// Package errkind classifies errors into the taxonomy of spec.md §7:
// programmer, resource, environmental, data-shape and benign-race kinds.
//
// The style — marker interfaces plus Is* predicates, rather than sentinel
// values or a single enum field — follows the classification idiom used by
// the pack's container-orchestration teacher for its own error taxonomy
// (moby-moby's errdefs package classifies by interface assertion; see
// errdefs/is_test.go in the retrieved pack). No source of that package
// survived retrieval (test files only), so the implementation here is
// original in that idiom rather than adapted line-for-line.
package errkind

import "errors"

// Programmer errors indicate an invariant violation (e.g. double-set of a
// result). They are never meant to be handled; callers should let them
// propagate and the top-level dispatch loop should log and re-panic.
type Programmer interface {
	error
	programmerError()
}

// Resource errors indicate exhaustion of a bounded resource (no executable
// memory slot, no trace buffer capacity). The caller surfaces these and a
// patch or allocation moves to its error state; the collector retries after
// the next drain.
type Resource interface {
	error
	resourceError()
}

// Environmental errors indicate a failure of something outside process
// control (IPC disconnect, file open failure). These are logged and the
// owning session or manager is torn down and reaped.
type Environmental interface {
	error
	environmentalError()
}

// DataShape errors indicate malformed input (a truncated protocol frame, a
// corrupt metadata row). The originating session terminates or the
// offending row is skipped; other state is preserved.
type DataShape interface {
	error
	dataShapeError()
}

// BenignRace errors indicate a race that resolves to a safe default (e.g. a
// module unloaded mid-symbolization). Callers should treat these as
// "unknown, continue" rather than surfacing them.
type BenignRace interface {
	error
	benignRaceError()
}

type wrapped struct {
	error
	kind string
}

func (w wrapped) Unwrap() error { return w.error }

type programmerErr struct{ wrapped }

func (programmerErr) programmerError() {}

type resourceErr struct{ wrapped }

func (resourceErr) resourceError() {}

type environmentalErr struct{ wrapped }

func (environmentalErr) environmentalError() {}

type dataShapeErr struct{ wrapped }

func (dataShapeErr) dataShapeError() {}

type benignRaceErr struct{ wrapped }

func (benignRaceErr) benignRaceError() {}

// NewProgrammer wraps err (or a message, via errors.New semantics at the
// call site) as a Programmer error.
func NewProgrammer(err error) error { return programmerErr{wrapped{err, "programmer"}} }

// NewResource wraps err as a Resource error.
func NewResource(err error) error { return resourceErr{wrapped{err, "resource"}} }

// NewEnvironmental wraps err as an Environmental error.
func NewEnvironmental(err error) error { return environmentalErr{wrapped{err, "environmental"}} }

// NewDataShape wraps err as a DataShape error.
func NewDataShape(err error) error { return dataShapeErr{wrapped{err, "data-shape"}} }

// NewBenignRace wraps err as a BenignRace error.
func NewBenignRace(err error) error { return benignRaceErr{wrapped{err, "benign-race"}} }

// IsProgrammer reports whether err or any error in its chain is a Programmer error.
func IsProgrammer(err error) bool { var t Programmer; return errors.As(err, &t) }

// IsResource reports whether err or any error in its chain is a Resource error.
func IsResource(err error) bool { var t Resource; return errors.As(err, &t) }

// IsEnvironmental reports whether err or any error in its chain is an Environmental error.
func IsEnvironmental(err error) bool { var t Environmental; return errors.As(err, &t) }

// IsDataShape reports whether err or any error in its chain is a DataShape error.
func IsDataShape(err error) bool { var t DataShape; return errors.As(err, &t) }

// IsBenignRace reports whether err or any error in its chain is a BenignRace error.
func IsBenignRace(err error) bool { var t BenignRace; return errors.As(err, &t) }
