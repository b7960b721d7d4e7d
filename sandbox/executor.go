package sandbox

import (
	"context"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/BaSui01/sandflow/types"
)

// remediationTable maps runtime error substrings to fix suggestions.
// Checked in order, first match wins.
var remediationTable = []struct {
	substr string
	hint   string
}{
	{"attempt to call a non-function", "the value being called is not a function; check the name and call capabilities() to list available modules"},
	{"attempt to call a nil value", "the function does not exist in the sandbox; check the spelling and call capabilities() to list available modules"},
	{"attempt to index a non-table", "the value being indexed is not a table; check what the previous step assigned"},
	{"attempt to index a nil value", "a variable or field is nil; check the spelling and make sure an earlier step assigned it"},
	{"attempt to perform arithmetic", "one operand is not a number; convert it with tonumber() first"},
	{"attempt to compare", "the compared values have incompatible types; convert them before comparing"},
	{"attempt to concatenate", "use tostring() to convert non-string values before concatenating"},
	{"parse error", "the code has a syntax error at the reported line; fix it and resubmit"},
	{"syntax error", "the code has a syntax error at the reported line; fix it and resubmit"},
}

// Executor runs prepared code inside an environment under a hard
// wall-clock deadline.
type Executor struct {
	logger *zap.Logger
}

// NewExecutor creates an executor.
func NewExecutor(logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{logger: logger}
}

// Execute runs code in env with the given timeout. The deadline is
// enforced by the interpreter itself between VM instructions, so a
// busy loop cannot outlive it. On failure the returned error is
// always a classified *types.Error; output captured up to the
// failure point stays readable through env.Output().
func (x *Executor) Execute(ctx context.Context, env *Environment, code string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	env.L.SetContext(ctx)

	start := time.Now()
	err := env.L.DoString(code)
	elapsed := time.Since(start)

	if err == nil {
		x.logger.Debug("execution completed",
			zap.Duration("elapsed", elapsed),
			zap.Int("output_bytes", len(env.Output())),
		)
		return nil
	}
	return classifyRuntimeError(err, ctx, timeout)
}

// classifyRuntimeError turns an interpreter error into a structured
// error with a remediation hint.
func classifyRuntimeError(err error, ctx context.Context, timeout time.Duration) *types.Error {
	msg := firstLine(err.Error())

	if ctx.Err() == context.DeadlineExceeded || strings.Contains(msg, context.DeadlineExceeded.Error()) {
		return types.NewErrorf(types.ErrTimeout,
			"execution exceeded the %s time limit", timeout).
			WithRemediation("reduce the amount of work per request or raise timeout_seconds (maximum 300)")
	}

	if i := strings.Index(msg, securityMarker); i >= 0 {
		detail := strings.TrimSpace(msg[i+len(securityMarker):])
		return types.NewError(types.ErrSecurityViolation, detail).
			WithRemediation("the store is read-only inside the sandbox; rewrite the query as a SELECT")
	}

	if i := strings.Index(msg, unavailableMarker); i >= 0 {
		detail := strings.TrimSpace(msg[i+len(unavailableMarker):])
		return types.NewError(types.ErrCapabilityUnavailable, detail).
			WithRemediation("call capabilities() to check which modules this deployment provides")
	}

	if _, ok := err.(*lua.ApiError); ok {
		for _, entry := range remediationTable {
			if strings.Contains(msg, entry.substr) {
				return types.NewError(types.ErrRuntimeFault, msg).WithRemediation(entry.hint)
			}
		}
	}
	return types.NewError(types.ErrRuntimeFault, msg).
		WithRemediation("review the error message; the code failed at the reported line").
		WithCause(err)
}

// firstLine strips the interpreter's stack traceback from an error
// message, keeping the human-relevant first line.
func firstLine(msg string) string {
	if i := strings.Index(msg, "\nstack traceback:"); i >= 0 {
		msg = msg[:i]
	}
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return strings.TrimSpace(msg)
}
