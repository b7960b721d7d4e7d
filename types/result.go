package types

// ExecutionError is the serializable failure detail of a result.
type ExecutionError struct {
	Code        ErrorCode `json:"code"`
	Message     string    `json:"message"`
	Remediation string    `json:"remediation,omitempty"`
}

// ExecutionInfo carries audit metadata about a completed execution.
// It is absent on requests rejected before the interpreter ran.
type ExecutionInfo struct {
	ExecutionID       string `json:"execution_id"`
	ExecutedBy        string `json:"executed_by"`
	LinesExecuted     int    `json:"lines_executed"`
	VariablesReturned int    `json:"variables_returned"`
	DurationMS        int64  `json:"duration_ms"`
}

// ExecutionResult is the only shape the engine ever returns. Failures
// of any pipeline stage are expressed here, never as a raw error or
// panic escaping the engine boundary.
type ExecutionResult struct {
	Success       bool            `json:"success"`
	Output        string          `json:"output,omitempty"`
	StderrOutput  string          `json:"stderr_output,omitempty"`
	Variables     map[string]any  `json:"variables,omitempty"`
	Error         *ExecutionError `json:"error,omitempty"`
	Warnings      []string        `json:"warnings,omitempty"`
	FixesApplied  []string        `json:"fixes_applied,omitempty"`
	UserContext   string          `json:"user_context,omitempty"`
	ExecutionInfo *ExecutionInfo  `json:"execution_info,omitempty"`
}

// FailureResult builds a failed result from a structured error,
// preserving remediation text when present.
func FailureResult(err error) *ExecutionResult {
	e := AsError(err)
	return &ExecutionResult{
		Success: false,
		Error: &ExecutionError{
			Code:        e.Code,
			Message:     e.Message,
			Remediation: e.Remediation,
		},
	}
}
