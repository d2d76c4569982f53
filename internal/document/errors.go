package document

import "errors"

// Command-local failure taxonomy. None of these tear down a coordinator;
// each aborts exactly one command.
var (
	// ErrValidation: the operation is out of bounds or structurally invalid
	// for the current content. State is untouched.
	ErrValidation = errors.New("operation invalid for current content")

	// ErrStaleVersion: the client's baseline version cannot be reconciled,
	// either because it is ahead of the server or because it predates the
	// retained history window.
	ErrStaleVersion = errors.New("client version cannot be reconciled")

	// ErrPersistence: the durable append or snapshot failed. The command is
	// retryable; state and version did not advance.
	ErrPersistence = errors.New("event log write failed")

	// ErrUnsupportedOperation: an operation outside the closed set reached
	// the transform engine. A defect, fatal to the one command.
	ErrUnsupportedOperation = errors.New("unsupported operation kind")

	// ErrClosed: the coordinator has shut down and accepts no commands.
	ErrClosed = errors.New("document coordinator closed")
)
