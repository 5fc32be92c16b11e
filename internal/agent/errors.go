package agent

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	// KindMalformedOutput means the final message did not contain the JSON
	// the phase contract requires. Retryable with a stricter reminder.
	KindMalformedOutput ErrorKind = "malformed_output"
	// KindToolLoopExceeded means the agent kept requesting tools past the
	// loop budget without producing a final answer.
	KindToolLoopExceeded ErrorKind = "tool_loop_exceeded"
	// KindModelUnavailable covers transport and provider failures. Retryable.
	KindModelUnavailable ErrorKind = "model_unavailable"
)

type AgentError struct {
	Kind    ErrorKind
	Role    Role
	Message string
	Err     error
}

func (e *AgentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s agent: %s: %v", e.Role, e.Message, e.Err)
	}
	return fmt.Sprintf("%s agent: %s", e.Role, e.Message)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

func IsKind(err error, kind ErrorKind) bool {
	var agentErr *AgentError
	return errors.As(err, &agentErr) && agentErr.Kind == kind
}
