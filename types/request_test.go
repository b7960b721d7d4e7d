package types

import (
	"testing"
	"time"
)

func TestExecutionRequest_Timeout(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		seconds int
		want    time.Duration
	}{
		{"default", 0, DefaultTimeout},
		{"negative", -5, DefaultTimeout},
		{"in range", 60, 60 * time.Second},
		{"clamped high", 9999, MaxTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := &ExecutionRequest{Code: "x = 1", TimeoutSeconds: tc.seconds}
			if got := r.Timeout(); got != tc.want {
				t.Fatalf("Timeout() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestExecutionRequest_Validate(t *testing.T) {
	t.Parallel()

	r := &ExecutionRequest{}
	if err := r.Validate(); GetErrorCode(err) != ErrInvalidRequest {
		t.Fatalf("expected INVALID_REQUEST for empty code, got %v", err)
	}

	r = &ExecutionRequest{Code: "x = 1", DataQuery: &DataQuery{}}
	if err := r.Validate(); GetErrorCode(err) != ErrInvalidRequest {
		t.Fatalf("expected INVALID_REQUEST for empty collection, got %v", err)
	}

	r = &ExecutionRequest{Code: "x = 1"}
	if err := r.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestExecutionRequest_Capture(t *testing.T) {
	t.Parallel()

	r := &ExecutionRequest{Code: "x = 1"}
	if !r.Capture() {
		t.Fatalf("capture should default to true")
	}
	off := false
	r.CaptureOutput = &off
	if r.Capture() {
		t.Fatalf("capture should respect explicit false")
	}
}
