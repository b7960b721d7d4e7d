package types

import (
	"strings"
	"time"
)

// Timeout bounds applied to every execution request.
const (
	DefaultTimeout = 30 * time.Second
	MinTimeout     = 1 * time.Second
	MaxTimeout     = 300 * time.Second
)

// DataQuery describes an optional read-only prefetch executed before the
// script runs. Matching rows are bound into the environment as `data`.
type DataQuery struct {
	Collection string         `json:"collection"`
	Fields     []string       `json:"fields,omitempty"`
	Filters    map[string]any `json:"filters,omitempty"`
	Limit      int            `json:"limit,omitempty"`
}

// ExecutionRequest is the single entry point payload of the engine.
type ExecutionRequest struct {
	Code            string     `json:"code"`
	DataQuery       *DataQuery `json:"data_query,omitempty"`
	TimeoutSeconds  int        `json:"timeout_seconds,omitempty"`
	CaptureOutput   *bool      `json:"capture_output,omitempty"`
	ReturnVariables []string   `json:"return_variables,omitempty"`
}

// Timeout returns the effective wall-clock limit, clamped to the
// supported range. Zero means the default.
func (r *ExecutionRequest) Timeout() time.Duration {
	if r.TimeoutSeconds <= 0 {
		return DefaultTimeout
	}
	d := time.Duration(r.TimeoutSeconds) * time.Second
	if d < MinTimeout {
		return MinTimeout
	}
	if d > MaxTimeout {
		return MaxTimeout
	}
	return d
}

// Capture reports whether stdout capture is enabled (default true).
func (r *ExecutionRequest) Capture() bool {
	return r.CaptureOutput == nil || *r.CaptureOutput
}

// Validate checks the request for structural problems before any
// pipeline stage runs.
func (r *ExecutionRequest) Validate() error {
	if strings.TrimSpace(r.Code) == "" {
		return NewError(ErrInvalidRequest, "code is required")
	}
	if r.DataQuery != nil && strings.TrimSpace(r.DataQuery.Collection) == "" {
		return NewError(ErrInvalidRequest, "data_query.collection is required when data_query is set")
	}
	if r.DataQuery != nil && r.DataQuery.Limit < 0 {
		return NewError(ErrInvalidRequest, "data_query.limit must not be negative")
	}
	return nil
}

// SecurityFinding is produced by the pattern scanner when code matches
// a denied construct. MatchedText carries the offending snippet.
type SecurityFinding struct {
	PatternID   string `json:"pattern_id"`
	Message     string `json:"message"`
	MatchedText string `json:"matched_text"`
}

// Principal identifies the authenticated caller on whose behalf a
// script executes. Roles gate access to the tools facade.
type Principal struct {
	ID      string   `json:"id"`
	Roles   []string `json:"roles,omitempty"`
	Enabled bool     `json:"enabled"`
}

// HasRole reports whether the principal carries the given role.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}
