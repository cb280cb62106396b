package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, carried through the call chain on the context logger.
const (
	FieldRequestID   = "request_id"
	FieldCycleID     = "cycle_id"
	FieldOrderNumber = "order_number"
	FieldComponent   = "component"
	FieldCommand     = "command"
	FieldChatID      = "chat_id"
)

// Metric fields, attached per entry for aggregation.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldWrites     = "writes"
	FieldStatus     = "status"
	FieldAttempt    = "attempt"
	FieldSize       = "size"
)
