// Package store provides the read-only document-store facades bound
// into the sandbox. Write access is structurally absent: no interface
// in this package declares a mutating method, so sandboxed code has
// nothing to call even if every other guard failed.
package store

import (
	"context"

	"github.com/BaSui01/sandflow/types"
)

// Document is a plain row as scripts consume it.
type Document = map[string]any

// Query describes a read against one collection.
type Query struct {
	Collection string
	Filters    map[string]any
	Fields     []string
	Sort       string
	Limit      int
}

// FieldInfo describes one field of a collection schema.
type FieldInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// CollectionInfo describes a collection's shape.
type CollectionInfo struct {
	Name   string      `json:"name"`
	Fields []FieldInfo `json:"fields,omitempty"`
	Count  int64       `json:"count"`
}

// ReportInfo describes a stored report definition.
type ReportInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Collection  string   `json:"collection"`
	Filters     []string `json:"filters,omitempty"`
	Prepared    bool     `json:"prepared"`
}

// ErrReportNotReady is the sentinel a backend returns while a
// prepared report is still being generated in the background.
var ErrReportNotReady = types.NewError(types.ErrReportTimeout, "report is not ready yet").WithRetryable(true)

// Backend is the read-side contract every store implementation
// satisfies. Deliberately no Insert/Update/Delete: the absence is the
// security property.
type Backend interface {
	FindOne(ctx context.Context, collection string, filters map[string]any, fields []string) (Document, error)
	Find(ctx context.Context, q Query) ([]Document, error)
	Count(ctx context.Context, collection string, filters map[string]any) (int64, error)
	Aggregate(ctx context.Context, collection string, pipeline []map[string]any) ([]Document, error)
	Collections(ctx context.Context) ([]string, error)
	CollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error)
	ListReports(ctx context.Context) ([]ReportInfo, error)
	ReportInfo(ctx context.Context, name string) (*ReportInfo, error)
	// RunReport executes a stored report. Prepared reports may return
	// ErrReportNotReady; callers poll until ready or deadline.
	RunReport(ctx context.Context, name string, filters map[string]any) ([]Document, error)
	Search(ctx context.Context, collection, term string, limit int) ([]Document, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
