package kernel

// ErrorKind classifies a kernel error by how the fault path must react to it.
type ErrorKind uint8

const (
	// KindNone is used by errors that do not belong to the fault taxonomy,
	// e.g. bad arguments passed to a registration call.
	KindNone ErrorKind = iota

	// KindInvalidAddress is reported for null or kernel-space accesses,
	// stack growth outside the configured window and protection
	// violations.
	KindInvalidAddress

	// KindResourceExhausted is reported when no frame can be produced by
	// the pool or no swap slot is available.
	KindResourceExhausted

	// KindShortIO is reported when a file or swap transfer moves fewer
	// bytes than requested.
	KindShortIO

	// KindInvariantViolation marks internal consistency failures, e.g.
	// installing a mapping over an existing one.
	KindInvariantViolation
)

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	switch k {
	case KindInvalidAddress:
		return "invalid address"
	case KindResourceExhausted:
		return "resource exhausted"
	case KindShortIO:
		return "short I/O"
	case KindInvariantViolation:
		return "invariant violation"
	default:
		return "none"
	}
}

// Error describes a kernel error. Kernel errors are defined as global
// variables that are pointers to the Error structure so callers can compare
// them by identity.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string

	// Kind places the error in the fault taxonomy.
	Kind ErrorKind
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Fatal returns true if the error must terminate the process that triggered
// it.
func (e *Error) Fatal() bool {
	return e != nil && e.Kind != KindNone
}
