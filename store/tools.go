package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/sandflow/internal/metrics"
	"github.com/BaSui01/sandflow/types"
)

// Report polling bounds for prepared reports that generate in the
// background.
const (
	reportPollInterval = 2 * time.Second
	reportPollMax      = 5 * time.Minute
)

// PermissionChecker decides whether a principal may read a collection
// or run a report. Every Tools call re-validates; the facade never
// caches a verdict across calls.
type PermissionChecker interface {
	CanRead(principal *types.Principal, collection string) error
	CanRunReport(principal *types.Principal, report string) error
}

// RoleChecker grants read access to every enabled principal and
// report access to principals holding one of the given roles. An
// empty role list means reports are open to all enabled principals.
type RoleChecker struct {
	ReportRoles []string
}

// CanRead implements PermissionChecker.
func (c *RoleChecker) CanRead(p *types.Principal, collection string) error {
	if p == nil || !p.Enabled {
		return types.NewError(types.ErrPermissionDenied, "caller is not enabled")
	}
	return nil
}

// CanRunReport implements PermissionChecker.
func (c *RoleChecker) CanRunReport(p *types.Principal, report string) error {
	if err := c.CanRead(p, ""); err != nil {
		return err
	}
	if len(c.ReportRoles) == 0 {
		return nil
	}
	for _, role := range c.ReportRoles {
		if p.HasRole(role) {
			return nil
		}
	}
	return types.NewErrorf(types.ErrPermissionDenied,
		"running report %q requires one of roles %v", report, c.ReportRoles)
}

// Tools is the identity-scoped facade bound into the sandbox as
// `tools`. Results are envelope maps because that is the shape
// scripts consume directly.
type Tools struct {
	backend      Backend
	checker      PermissionChecker
	principal    *types.Principal
	logger       *zap.Logger
	metrics      *metrics.Collector
	pollInterval time.Duration
}

// NewTools creates a facade scoped to one principal.
func NewTools(backend Backend, checker PermissionChecker, principal *types.Principal, logger *zap.Logger) *Tools {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checker == nil {
		checker = &RoleChecker{}
	}
	return &Tools{backend: backend, checker: checker, principal: principal, logger: logger, pollInterval: reportPollInterval}
}

// WithMetrics attaches a collector for report-poll accounting. A nil
// collector leaves the facade unmetered.
func (t *Tools) WithMetrics(c *metrics.Collector) *Tools {
	t.metrics = c
	return t
}

func (t *Tools) recordPoll(outcome string) {
	if t.metrics != nil {
		t.metrics.RecordReportPoll(outcome)
	}
}

func envelope(data any, count int) map[string]any {
	return map[string]any{"success": true, "data": data, "count": count}
}

func failure(err error) map[string]any {
	e := types.AsError(err)
	return map[string]any{
		"success": false,
		"error":   e.Message,
		"code":    string(e.Code),
	}
}

// GetDocument fetches a single document by name.
func (t *Tools) GetDocument(ctx context.Context, collection, name string) map[string]any {
	if err := t.checker.CanRead(t.principal, collection); err != nil {
		return failure(err)
	}
	doc, err := t.backend.FindOne(ctx, collection, map[string]any{"name": name}, nil)
	if err != nil {
		return failure(err)
	}
	if doc == nil {
		return failure(types.NewErrorf(types.ErrNotFound, "%s %q does not exist", collection, name))
	}
	return envelope(doc, 1)
}

// GetDocuments fetches matching documents from a collection.
func (t *Tools) GetDocuments(ctx context.Context, collection string, filters map[string]any, fields []string, limit int) map[string]any {
	if err := t.checker.CanRead(t.principal, collection); err != nil {
		return failure(err)
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	docs, err := t.backend.Find(ctx, Query{Collection: collection, Filters: filters, Fields: fields, Limit: limit})
	if err != nil {
		return failure(err)
	}
	return envelope(docs, len(docs))
}

// Search looks up documents whose name contains the term.
func (t *Tools) Search(ctx context.Context, collection, term string, limit int) map[string]any {
	if err := t.checker.CanRead(t.principal, collection); err != nil {
		return failure(err)
	}
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	docs, err := t.backend.Search(ctx, collection, term, limit)
	if err != nil {
		return failure(err)
	}
	return envelope(docs, len(docs))
}

// GetCollectionInfo describes a collection's fields and row count.
func (t *Tools) GetCollectionInfo(ctx context.Context, collection string) map[string]any {
	if err := t.checker.CanRead(t.principal, collection); err != nil {
		return failure(err)
	}
	info, err := t.backend.CollectionInfo(ctx, collection)
	if err != nil {
		return failure(err)
	}
	return envelope(info, 1)
}

// ListReports enumerates stored report definitions.
func (t *Tools) ListReports(ctx context.Context) map[string]any {
	if err := t.checker.CanRead(t.principal, ""); err != nil {
		return failure(err)
	}
	reports, err := t.backend.ListReports(ctx)
	if err != nil {
		return failure(err)
	}
	return envelope(reports, len(reports))
}

// GetReportInfo describes one report, including which filters it
// expects, so scripts can build a valid RunReport call.
func (t *Tools) GetReportInfo(ctx context.Context, name string) map[string]any {
	if err := t.checker.CanRead(t.principal, ""); err != nil {
		return failure(err)
	}
	info, err := t.backend.ReportInfo(ctx, name)
	if err != nil {
		return failure(err)
	}
	if info == nil {
		return failure(types.NewErrorf(types.ErrNotFound, "report %q does not exist", name))
	}
	return envelope(info, 1)
}

// RunReport executes a stored report. Prepared reports generate in
// the background; the facade polls until the result is ready or the
// poll budget runs out.
func (t *Tools) RunReport(ctx context.Context, name string, filters map[string]any) map[string]any {
	if err := t.checker.CanRunReport(t.principal, name); err != nil {
		return failure(err)
	}

	info, err := t.backend.ReportInfo(ctx, name)
	if err != nil {
		return failure(err)
	}
	if info == nil {
		return failure(types.NewErrorf(types.ErrNotFound, "report %q does not exist", name))
	}
	if missing := missingReportFilters(info.Filters, filters); len(missing) > 0 {
		return failure(types.NewErrorf(types.ErrInvalidRequest,
			"report %q requires filters %v; missing: %v", name, info.Filters, missing))
	}

	deadline := time.Now().Add(reportPollMax)
	for {
		rows, err := t.backend.RunReport(ctx, name, filters)
		if err == nil {
			t.recordPoll("ready")
			return envelope(rows, len(rows))
		}
		if !errors.Is(err, ErrReportNotReady) {
			t.recordPoll("error")
			return failure(err)
		}
		if time.Now().After(deadline) {
			t.recordPoll("timeout")
			return failure(types.NewErrorf(types.ErrReportTimeout,
				"report %q did not finish within %s", name, reportPollMax))
		}
		t.recordPoll("not_ready")
		fields := []zap.Field{zap.String("report", name)}
		if id, ok := types.ExecutionID(ctx); ok {
			fields = append(fields, zap.String("execution_id", id))
		}
		t.logger.Debug("report not ready, polling", fields...)
		select {
		case <-ctx.Done():
			t.recordPoll("cancelled")
			return failure(types.NewError(types.ErrTimeout, fmt.Sprintf("report %q cancelled: %v", name, ctx.Err())))
		case <-time.After(t.pollInterval):
		}
	}
}

// missingReportFilters lists declared report filters the caller did
// not supply a value for.
func missingReportFilters(declared []string, supplied map[string]any) []string {
	var missing []string
	for _, f := range declared {
		if v, ok := supplied[f]; !ok || v == nil {
			missing = append(missing, f)
		}
	}
	return missing
}

// Principal returns the identity this facade is scoped to.
func (t *Tools) Principal() *types.Principal {
	return t.principal
}
