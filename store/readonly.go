package store

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/sandflow/types"
)

// destructiveKeywords are rejected anywhere inside a raw query, even
// nested in subexpressions. Mirrors the deny-list the scanner applies
// to code; the facade re-checks so a string assembled at runtime
// cannot slip past the static pass.
var destructiveKeywords = []string{
	"DELETE", "DROP", "INSERT", "UPDATE", "ALTER", "CREATE",
	"TRUNCATE", "REPLACE", "MERGE", "UPSERT", "CALL", "EXECUTE",
}

// allowedQueryPrefixes are the only statements the raw escape hatch
// accepts.
var allowedQueryPrefixes = []string{"SELECT", "SHOW", "DESCRIBE", "DESC", "EXPLAIN"}

var queryCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/|--[^\n]*`)

// ValidateRawQuery checks a raw query string for destructive
// statements. Comments are stripped first so a keyword cannot hide
// behind them.
func ValidateRawQuery(query string) error {
	normalized := strings.ToUpper(strings.TrimSpace(queryCommentRe.ReplaceAllString(query, " ")))
	if normalized == "" {
		return types.NewError(types.ErrInvalidRequest, "query is empty")
	}

	allowed := false
	for _, prefix := range allowedQueryPrefixes {
		if strings.HasPrefix(normalized, prefix+" ") || normalized == prefix {
			allowed = true
			break
		}
	}
	if !allowed {
		return types.NewErrorf(types.ErrSecurityViolation,
			"only read queries are permitted (%s)", strings.Join(allowedQueryPrefixes, ", "))
	}

	for _, kw := range destructiveKeywords {
		if containsWord(normalized, kw) {
			return types.NewErrorf(types.ErrSecurityViolation,
				"query contains forbidden keyword %s", kw)
		}
	}
	return nil
}

// containsWord reports whether word occurs in s on word boundaries.
func containsWord(s, word string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordByte(s[start-1])
		afterOK := end == len(s) || !isWordByte(s[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// ReadOnly wraps a Backend and is what the sandbox sees as `db`. It
// adds the validated raw-query escape hatch and normalizes every
// result to plain documents.
type ReadOnly struct {
	backend Backend
	logger  *zap.Logger
}

// NewReadOnly creates the facade.
func NewReadOnly(backend Backend, logger *zap.Logger) *ReadOnly {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReadOnly{backend: backend, logger: logger}
}

// Get returns a single document.
func (r *ReadOnly) Get(ctx context.Context, collection string, filters map[string]any, fields []string) (Document, error) {
	return r.backend.FindOne(ctx, collection, filters, fields)
}

// GetAll returns matching documents, bounded by limit.
func (r *ReadOnly) GetAll(ctx context.Context, q Query) ([]Document, error) {
	if q.Limit <= 0 || q.Limit > 1000 {
		q.Limit = 1000
	}
	return r.backend.Find(ctx, q)
}

// Count returns the number of matching documents.
func (r *ReadOnly) Count(ctx context.Context, collection string, filters map[string]any) (int64, error) {
	return r.backend.Count(ctx, collection, filters)
}

// Aggregate runs a read-side aggregation pipeline.
func (r *ReadOnly) Aggregate(ctx context.Context, collection string, pipeline []map[string]any) ([]Document, error) {
	return r.backend.Aggregate(ctx, collection, pipeline)
}

// Sql runs a validated raw read query against the backend. The name
// matches what scripts expect; anything but a read statement is
// rejected before the backend sees it.
func (r *ReadOnly) Sql(ctx context.Context, query string, limit int) ([]Document, error) {
	if err := ValidateRawQuery(query); err != nil {
		r.logger.Warn("raw query rejected", zap.String("query", query), zap.Error(err))
		return nil, err
	}
	return r.backend.Find(ctx, Query{Collection: rawQueryCollection(query), Limit: limit})
}

// rawQueryCollection extracts the FROM target of a validated query so
// backends without a SQL engine can serve the common SELECT form.
func rawQueryCollection(query string) string {
	fields := strings.Fields(strings.ToUpper(query))
	for i, f := range fields {
		if f == "FROM" && i+1 < len(fields) {
			orig := strings.Fields(query)
			return strings.Trim(orig[i+1], "`\"';")
		}
	}
	return ""
}
