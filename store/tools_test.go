package store

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/sandflow/internal/metrics"
	"github.com/BaSui01/sandflow/types"
)

func seededBackend() *MemoryBackend {
	b := NewMemoryBackend()
	b.Load("users", []Document{
		{"name": "alice", "department": "sales", "active": true},
		{"name": "bob", "department": "ops", "active": true},
		{"name": "carol", "department": "sales", "active": false},
	})
	b.AddReport(ReportInfo{Name: "active-users", Collection: "users", Filters: []string{"department"}}, 0,
		func(filters map[string]any) []Document {
			return []Document{{"name": "alice"}, {"name": "bob"}}
		})
	return b
}

func enabledPrincipal() *types.Principal {
	return &types.Principal{ID: "tester", Roles: []string{"analyst"}, Enabled: true}
}

func TestTools_GetDocument(t *testing.T) {
	t.Parallel()
	tools := NewTools(seededBackend(), nil, enabledPrincipal(), zap.NewNop())

	res := tools.GetDocument(context.Background(), "users", "alice")
	require.Equal(t, true, res["success"])
	doc := res["data"].(Document)
	assert.Equal(t, "sales", doc["department"])

	res = tools.GetDocument(context.Background(), "users", "nobody")
	assert.Equal(t, false, res["success"])
	assert.Equal(t, string(types.ErrNotFound), res["code"])
}

func TestTools_GetDocumentsWithFilters(t *testing.T) {
	t.Parallel()
	tools := NewTools(seededBackend(), nil, enabledPrincipal(), zap.NewNop())

	res := tools.GetDocuments(context.Background(), "users", map[string]any{"department": "sales"}, nil, 10)
	require.Equal(t, true, res["success"])
	assert.Equal(t, 2, res["count"])
}

func TestTools_DisabledPrincipal(t *testing.T) {
	t.Parallel()
	p := &types.Principal{ID: "ghost", Enabled: false}
	tools := NewTools(seededBackend(), nil, p, zap.NewNop())

	res := tools.GetDocuments(context.Background(), "users", nil, nil, 10)
	assert.Equal(t, false, res["success"])
	assert.Equal(t, string(types.ErrPermissionDenied), res["code"])
}

func TestTools_ReportRoleGate(t *testing.T) {
	t.Parallel()
	checker := &RoleChecker{ReportRoles: []string{"analyst"}}

	allowed := NewTools(seededBackend(), checker, enabledPrincipal(), zap.NewNop())
	res := allowed.RunReport(context.Background(), "active-users", map[string]any{"department": "sales"})
	require.Equal(t, true, res["success"])
	assert.Equal(t, 2, res["count"])

	denied := NewTools(seededBackend(), checker, &types.Principal{ID: "intern", Enabled: true}, zap.NewNop())
	res = denied.RunReport(context.Background(), "active-users", map[string]any{"department": "sales"})
	assert.Equal(t, false, res["success"])
	assert.Equal(t, string(types.ErrPermissionDenied), res["code"])
}

func TestTools_RunReportMissingFilters(t *testing.T) {
	t.Parallel()
	tools := NewTools(seededBackend(), nil, enabledPrincipal(), zap.NewNop())

	// declared filters must be supplied before the report runs
	res := tools.RunReport(context.Background(), "active-users", nil)
	require.Equal(t, false, res["success"])
	assert.Equal(t, string(types.ErrInvalidRequest), res["code"])
	assert.Contains(t, res["error"], "department")

	// an explicit nil value counts as missing
	res = tools.RunReport(context.Background(), "active-users", map[string]any{"department": nil})
	require.Equal(t, false, res["success"])
	assert.Equal(t, string(types.ErrInvalidRequest), res["code"])

	res = tools.RunReport(context.Background(), "active-users", map[string]any{"department": "sales"})
	assert.Equal(t, true, res["success"])
}

func TestTools_RunReportUnknownReport(t *testing.T) {
	t.Parallel()
	tools := NewTools(seededBackend(), nil, enabledPrincipal(), zap.NewNop())

	res := tools.RunReport(context.Background(), "no-such-report", nil)
	require.Equal(t, false, res["success"])
	assert.Equal(t, string(types.ErrNotFound), res["code"])
}

func TestTools_PreparedReportPolling(t *testing.T) {
	t.Parallel()
	b := seededBackend()
	b.AddReport(ReportInfo{Name: "quarterly", Collection: "users", Prepared: true}, 1,
		func(filters map[string]any) []Document {
			return []Document{{"quarter": "Q3", "total": 42}}
		})
	tools := NewTools(b, nil, enabledPrincipal(), zap.NewNop())
	tools.pollInterval = time.Millisecond

	res := tools.RunReport(context.Background(), "quarterly", nil)
	require.Equal(t, true, res["success"], "report should resolve after one poll: %v", res)
	assert.Equal(t, 1, res["count"])
}

func TestTools_ReportPollMetrics(t *testing.T) {
	t.Parallel()
	b := seededBackend()
	b.AddReport(ReportInfo{Name: "slow", Collection: "users", Prepared: true}, 1,
		func(filters map[string]any) []Document {
			return []Document{{"ok": true}}
		})

	collector := metrics.NewCollector("storetest_reportpolls", zap.NewNop())
	tools := NewTools(b, nil, enabledPrincipal(), zap.NewNop()).WithMetrics(collector)
	tools.pollInterval = time.Millisecond

	res := tools.RunReport(context.Background(), "slow", nil)
	require.Equal(t, true, res["success"])

	// one not_ready poll plus the ready one
	n, err := testutil.GatherAndCount(prometheus.DefaultGatherer, "storetest_reportpolls_report_polls_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTools_SearchAndInfo(t *testing.T) {
	t.Parallel()
	tools := NewTools(seededBackend(), nil, enabledPrincipal(), zap.NewNop())

	res := tools.Search(context.Background(), "users", "ali", 10)
	require.Equal(t, true, res["success"])
	assert.Equal(t, 1, res["count"])

	res = tools.GetCollectionInfo(context.Background(), "users")
	require.Equal(t, true, res["success"])
	info := res["data"].(*CollectionInfo)
	assert.Equal(t, int64(3), info.Count)

	res = tools.ListReports(context.Background())
	require.Equal(t, true, res["success"])
	assert.Equal(t, 1, res["count"])

	res = tools.GetReportInfo(context.Background(), "active-users")
	require.Equal(t, true, res["success"])
	ri := res["data"].(*ReportInfo)
	assert.Contains(t, ri.Filters, "department")
}
