package wireformat

import "time"

// LogMessage is the JSON wire format for a log record sent from guest to host
// through the log_message import.
type LogMessage struct {
	Timestamp time.Time `json:"timestamp"`
	Attrs     []LogAttr `json:"attrs,omitempty"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// LogAttr is a single slog attribute in wire form.
type LogAttr struct {
	Key   string `json:"key"`
	Type  string `json:"type"` // "string", "int64", "uint64", "bool", "float64", "time", "duration", "error", "json", "any", "group"
	Value string `json:"value"`
}
