package tools

import (
	"errors"
	"fmt"
)

// ErrUnknownTool is returned when a model requests a tool the registry does
// not hold. Dispatch wraps it with the requested name.
var ErrUnknownTool = errors.New("unknown tool")

type ErrorKind string

const (
	// KindPathEscape marks attempts to reach outside the plugin workspace.
	KindPathEscape ErrorKind = "path_escape"
	// KindNotFound marks reads of files that do not exist.
	KindNotFound ErrorKind = "not_found"
	// KindTimeout marks external processes that exceeded their bound.
	KindTimeout ErrorKind = "timeout"
	// KindUnavailable marks missing binaries or unreachable daemons.
	KindUnavailable ErrorKind = "unavailable"
	// KindExternalFailure marks external processes that started but broke in
	// a way that is not the plugin's fault.
	KindExternalFailure ErrorKind = "external_failure"
)

type ToolError struct {
	Kind    ErrorKind
	Tool    string
	Message string
	Err     error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Tool, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Tool, e.Message)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

func newToolError(kind ErrorKind, toolName, message string, err error) *ToolError {
	return &ToolError{Kind: kind, Tool: toolName, Message: message, Err: err}
}

// IsKind reports whether err carries a ToolError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var te *ToolError
	return errors.As(err, &te) && te.Kind == kind
}
