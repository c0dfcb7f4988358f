package ir

import "errors"

// All failures in this package are precondition or invariant violations:
// malformed IR is a front-end bug, so every checked condition surfaces as an
// error at the call that introduced it instead of accumulating diagnostics.
var (
	// ErrNameNotFound is returned when a name is absent from a whole
	// scope chain.
	ErrNameNotFound = errors.New("name not found")
	// ErrValueNotFound is returned when a value was never named in a
	// scope chain.
	ErrValueNotFound = errors.New("value not named in scope")
	// ErrDuplicateName rejects a second direct definition of a name.
	ErrDuplicateName = errors.New("duplicate definition")
	// ErrActivation is returned when a name binding was requested but the
	// instruction's activation produced no entity.
	ErrActivation = errors.New("instruction produced no value to bind")
	// ErrNotPreambleSafe rejects control-flow-dependent instructions from
	// a preamble.
	ErrNotPreambleSafe = errors.New("instruction not allowed in preamble")
	// ErrTerminated rejects appends to a block that already ends in a
	// terminator.
	ErrTerminated = errors.New("block already terminated")
	// ErrBlockUndefined flags a block that was referenced but never
	// explicitly defined by the front end.
	ErrBlockUndefined = errors.New("block never defined")
	// ErrFunctionState flags a lifecycle violation on a function
	// (finishing twice, finalizing an undefined function, ...).
	ErrFunctionState = errors.New("invalid function state")
	// ErrStackLayout flags a frame layout that is not a dense 0..N-1
	// offset permutation.
	ErrStackLayout = errors.New("stack layout corrupt")
	// ErrSignature flags a parameter/return mismatch between two
	// declarations of the same function.
	ErrSignature = errors.New("signature mismatch")
	// ErrBadArgs flags call arguments that do not match the callee's
	// declared signature.
	ErrBadArgs = errors.New("arguments do not match signature")
	// ErrUnfinishedFunction is returned by TopLevel.End when a visible
	// function was never finished.
	ErrUnfinishedFunction = errors.New("unfinished function")
	// ErrUnlinkedExtern flags code generation reaching an extern stub
	// that was never resolved by linking.
	ErrUnlinkedExtern = errors.New("extern function not linked")
	// ErrUnknownPragma flags a pragma key with no registered handler.
	ErrUnknownPragma = errors.New("no handler for pragma")
	// ErrVersionMismatch rejects an object blob stamped with a different
	// format version.
	ErrVersionMismatch = errors.New("object format version mismatch")
	// ErrTempPool flags scratch pool misuse: freeing a cell that was not
	// checked out, or finishing with cells still in flight.
	ErrTempPool = errors.New("scratch pool misuse")
)
