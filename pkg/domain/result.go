package domain

// Result is the per-agent outcome recorded by parallel steps.
// Completed agents keep their output; failed agents are marked with the
// error message so partial failures never drop the other slots.
type Result struct {
	Agent   string `json:"agent"`
	Success bool   `json:"success"`
	Output  any    `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}
