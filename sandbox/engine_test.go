package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/sandflow/store"
	"github.com/BaSui01/sandflow/types"
)

func newTestEngine(t *testing.T, backend store.Backend) *Engine {
	t.Helper()
	return NewEngine(EngineConfig{MaxConcurrent: 2}, backend, nil, nil, nil, zap.NewNop())
}

func seededEngineBackend() *store.MemoryBackend {
	b := store.NewMemoryBackend()
	b.Load("invoices", []store.Document{
		{"name": "INV-001", "total": 120, "paid": true},
		{"name": "INV-002", "total": 80, "paid": false},
		{"name": "INV-003", "total": 200, "paid": true},
	})
	return b
}

func TestEngine_SimpleExpression(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	res := e.Execute(context.Background(), "tester", &types.ExecutionRequest{Code: "x = 1 + 1"})
	require.True(t, res.Success, "result: %+v", res)
	assert.Equal(t, int64(2), res.Variables["x"])
	assert.Nil(t, res.Error)
	require.NotNil(t, res.ExecutionInfo)
	assert.Equal(t, "tester", res.ExecutionInfo.ExecutedBy)
	assert.NotEmpty(t, res.ExecutionInfo.ExecutionID)
}

func TestEngine_ImportRejection(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	res := e.Execute(context.Background(), "tester", &types.ExecutionRequest{
		Code: "import os\nos.system('ls')",
	})
	require.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, types.ErrCapabilityRejected, res.Error.Code)
	assert.Contains(t, res.Error.Message, "os")
	// available capabilities are enumerated for the caller
	assert.Contains(t, res.Error.Remediation, "json")
	// nothing executed, so no execution metadata
	assert.Nil(t, res.ExecutionInfo)
}

func TestEngine_DestructiveQueryBlocked(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	res := e.Execute(context.Background(), "tester", &types.ExecutionRequest{
		Code: `frappe.db.sql('DELETE FROM tabUser')`,
	})
	require.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, types.ErrSecurityViolation, res.Error.Code)
	assert.Nil(t, res.ExecutionInfo)
}

func TestEngine_RuntimeFaultWithPartialOutput(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	res := e.Execute(context.Background(), "tester", &types.ExecutionRequest{
		Code: "print('step 1 done')\ntotal = missing + 1",
	})
	require.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, types.ErrRuntimeFault, res.Error.Code)
	assert.NotEmpty(t, res.Error.Remediation)
	assert.Contains(t, res.Output, "step 1 done")
	// execution happened, so metadata is present
	require.NotNil(t, res.ExecutionInfo)
}

func TestEngine_ReturnVariables(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	res := e.Execute(context.Background(), "tester", &types.ExecutionRequest{
		Code:            "y = {1, 2, 3}",
		ReturnVariables: []string{"y"},
	})
	require.True(t, res.Success)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, res.Variables["y"])
	assert.Equal(t, 1, res.ExecutionInfo.VariablesReturned)
}

func TestEngine_EmptyCodeRejected(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	res := e.Execute(context.Background(), "tester", &types.ExecutionRequest{Code: "   "})
	require.False(t, res.Success)
	assert.Equal(t, types.ErrInvalidRequest, res.Error.Code)
}

func TestEngine_MissingIdentityRejected(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	res := e.Execute(context.Background(), "", &types.ExecutionRequest{Code: "x = 1"})
	require.False(t, res.Success)
	assert.Equal(t, types.ErrPermissionDenied, res.Error.Code)
}

func TestEngine_PreprocessorFixesReported(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	res := e.Execute(context.Background(), "tester", &types.ExecutionRequest{
		Code: "rows = {}\nrows[1] = {}\nrows[1][2] = 5\nx = 1",
	})
	require.True(t, res.Success, "result: %+v", res)
	assert.NotEmpty(t, res.FixesApplied)
}

func TestEngine_SanitizerWarningSurfaces(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	res := e.Execute(context.Background(), "tester", &types.ExecutionRequest{
		Code: "x = 1" + string([]byte{0xff}) + "\ny = 2",
	})
	require.True(t, res.Success, "result: %+v", res)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "replaced")
}

func TestEngine_DataQueryPrefetch(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, seededEngineBackend())

	res := e.Execute(context.Background(), "tester", &types.ExecutionRequest{
		Code:      "count = #data\nfirst = data[1].name",
		DataQuery: &types.DataQuery{Collection: "invoices"},
	})
	require.True(t, res.Success, "result: %+v", res)
	assert.Equal(t, int64(3), res.Variables["count"])
	assert.Contains(t, []any{"INV-001", "INV-002", "INV-003"}, res.Variables["first"])
}

func TestEngine_DataQueryWithoutStore(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	res := e.Execute(context.Background(), "tester", &types.ExecutionRequest{
		Code:      "x = 1",
		DataQuery: &types.DataQuery{Collection: "invoices"},
	})
	require.False(t, res.Success)
	assert.Equal(t, types.ErrStoreUnavailable, res.Error.Code)
}

func TestEngine_StoreFacadeInScript(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, seededEngineBackend())

	res := e.Execute(context.Background(), "tester", &types.ExecutionRequest{
		Code: `
			paid = db.count("invoices", {paid = true})
			lookup = tools.get_document("invoices", "INV-002")
			total = lookup.data.total
		`,
	})
	require.True(t, res.Success, "result: %+v", res)
	assert.Equal(t, int64(2), res.Variables["paid"])
	assert.Equal(t, int64(80), res.Variables["total"])
}

func TestEngine_RuntimeDestructiveQueryBlocked(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, seededEngineBackend())

	// assembled at runtime, so only the facade validation can catch it
	res := e.Execute(context.Background(), "tester", &types.ExecutionRequest{
		Code: `verb = "DEL" .. "ETE"
rows = db.sql(verb .. " FROM invoices")`,
	})
	require.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, types.ErrSecurityViolation, res.Error.Code)
}

func TestEngine_ImportRewriteStillRuns(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	res := e.Execute(context.Background(), "tester", &types.ExecutionRequest{
		Code: "import math\nr = math.floor(3.7)",
	})
	require.True(t, res.Success, "result: %+v", res)
	assert.Equal(t, int64(3), res.Variables["r"])
}

func TestEngine_CaptureDisabled(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	off := false
	res := e.Execute(context.Background(), "tester", &types.ExecutionRequest{
		Code:          `print("noisy")`,
		CaptureOutput: &off,
	})
	require.True(t, res.Success)
	assert.Empty(t, res.Output)
}

func TestEngine_Timeout(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	res := e.Execute(context.Background(), "tester", &types.ExecutionRequest{
		Code:           "while true do end",
		TimeoutSeconds: 1,
	})
	require.False(t, res.Success)
	assert.Equal(t, types.ErrTimeout, res.Error.Code)
	assert.Contains(t, res.Error.Remediation, "timeout_seconds")
}

// ctxRecordingBackend captures the execution id the engine threads
// through the store context.
type ctxRecordingBackend struct {
	*store.MemoryBackend
	executionID string
	sawID       bool
}

func (b *ctxRecordingBackend) Find(ctx context.Context, q store.Query) ([]store.Document, error) {
	b.executionID, b.sawID = types.ExecutionID(ctx)
	return b.MemoryBackend.Find(ctx, q)
}

func TestEngine_ExecutionIDReachesStore(t *testing.T) {
	t.Parallel()
	backend := &ctxRecordingBackend{MemoryBackend: seededEngineBackend()}
	e := newTestEngine(t, backend)

	res := e.Execute(context.Background(), "tester", &types.ExecutionRequest{
		Code:      "n = #data",
		DataQuery: &types.DataQuery{Collection: "invoices"},
	})
	require.True(t, res.Success, "result: %+v", res)
	require.True(t, backend.sawID)
	require.NotNil(t, res.ExecutionInfo)
	assert.Equal(t, res.ExecutionInfo.ExecutionID, backend.executionID)
}

func TestEngine_IdempotentVariables(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)
	req := &types.ExecutionRequest{
		Code:            "x = 2 * 21\ny = {1, 2, 3}\ns = 'a' .. 'b'",
		ReturnVariables: []string{"x", "y", "s"},
	}

	first := e.Execute(context.Background(), "tester", req)
	second := e.Execute(context.Background(), "tester", req)
	require.True(t, first.Success, "result: %+v", first)
	require.True(t, second.Success, "result: %+v", second)
	assert.Equal(t, first.Variables, second.Variables)
	assert.Equal(t, first.Output, second.Output)
}

func TestEngine_DeterministicRejection(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)
	req := &types.ExecutionRequest{Code: "import socket"}

	first := e.Execute(context.Background(), "tester", req)
	second := e.Execute(context.Background(), "tester", req)
	require.False(t, first.Success)
	require.False(t, second.Success)
	assert.Equal(t, first.Error.Code, second.Error.Code)
	assert.Equal(t, first.Error.Message, second.Error.Message)
}
