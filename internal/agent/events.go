package agent

import "time"

type EventType int

const (
	EventThinking EventType = iota
	EventToolCall
	EventToolResult
	EventDone
	EventError
)

// Event narrates one step of an agent loop for the TUI and the log.
type Event struct {
	Type   EventType
	Role   Role
	Detail string
	At     time.Time
}
