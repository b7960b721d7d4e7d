package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/BaSui01/sandflow/types"
)

// memoryReport is a stored report over the in-memory backend.
type memoryReport struct {
	info ReportInfo
	run  func(filters map[string]any) []Document
	// remaining polls before a prepared report is ready
	notReadyFor int
}

// MemoryBackend is a deterministic in-memory Backend used in tests
// and in deployments that run the engine without a live store.
type MemoryBackend struct {
	mu          sync.RWMutex
	collections map[string][]Document
	reports     map[string]*memoryReport
}

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		collections: make(map[string][]Document),
		reports:     make(map[string]*memoryReport),
	}
}

// Load seeds a collection. Test helper, not part of Backend.
func (m *MemoryBackend) Load(collection string, docs []Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[collection] = docs
}

// AddReport registers a report definition. notReadyFor simulates a
// prepared report that needs that many polls before it resolves.
func (m *MemoryBackend) AddReport(info ReportInfo, notReadyFor int, run func(filters map[string]any) []Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[info.Name] = &memoryReport{info: info, run: run, notReadyFor: notReadyFor}
}

func (m *MemoryBackend) docs(collection string) ([]Document, error) {
	docs, ok := m.collections[collection]
	if !ok {
		return nil, types.NewErrorf(types.ErrNotFound, "collection %q does not exist", collection)
	}
	return docs, nil
}

func matches(doc Document, filters map[string]any) bool {
	for k, want := range filters {
		if fmt.Sprintf("%v", doc[k]) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

func project(doc Document, fields []string) Document {
	if len(fields) == 0 {
		return doc
	}
	out := make(Document, len(fields))
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out
}

// FindOne implements Backend.
func (m *MemoryBackend) FindOne(ctx context.Context, collection string, filters map[string]any, fields []string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, err := m.docs(collection)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if matches(doc, filters) {
			return project(doc, fields), nil
		}
	}
	return nil, nil
}

// Find implements Backend.
func (m *MemoryBackend) Find(ctx context.Context, q Query) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, err := m.docs(q.Collection)
	if err != nil {
		return nil, err
	}
	out := make([]Document, 0)
	for _, doc := range docs {
		if matches(doc, q.Filters) {
			out = append(out, project(doc, q.Fields))
			if q.Limit > 0 && len(out) >= q.Limit {
				break
			}
		}
	}
	return out, nil
}

// Count implements Backend.
func (m *MemoryBackend) Count(ctx context.Context, collection string, filters map[string]any) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, err := m.docs(collection)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, doc := range docs {
		if matches(doc, filters) {
			n++
		}
	}
	return n, nil
}

// Aggregate implements Backend. The in-memory backend only supports
// an empty pipeline, which returns all documents.
func (m *MemoryBackend) Aggregate(ctx context.Context, collection string, pipeline []map[string]any) ([]Document, error) {
	if len(pipeline) > 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "memory backend does not support aggregation stages")
	}
	return m.Find(ctx, Query{Collection: collection})
}

// Collections implements Backend.
func (m *MemoryBackend) Collections(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// CollectionInfo implements Backend. Field types are inferred from
// the first document.
func (m *MemoryBackend) CollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, err := m.docs(collection)
	if err != nil {
		return nil, err
	}
	info := &CollectionInfo{Name: collection, Count: int64(len(docs))}
	if len(docs) > 0 {
		names := make([]string, 0, len(docs[0]))
		for k := range docs[0] {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			info.Fields = append(info.Fields, FieldInfo{Name: k, Type: fmt.Sprintf("%T", docs[0][k])})
		}
	}
	return info, nil
}

// ListReports implements Backend.
func (m *MemoryBackend) ListReports(ctx context.Context) ([]ReportInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ReportInfo, 0, len(m.reports))
	for _, r := range m.reports {
		out = append(out, r.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ReportInfo implements Backend.
func (m *MemoryBackend) ReportInfo(ctx context.Context, name string) (*ReportInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[name]
	if !ok {
		return nil, nil
	}
	info := r.info
	return &info, nil
}

// RunReport implements Backend.
func (m *MemoryBackend) RunReport(ctx context.Context, name string, filters map[string]any) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[name]
	if !ok {
		return nil, types.NewErrorf(types.ErrNotFound, "report %q does not exist", name)
	}
	if r.notReadyFor > 0 {
		r.notReadyFor--
		return nil, ErrReportNotReady
	}
	return r.run(filters), nil
}

// Search implements Backend.
func (m *MemoryBackend) Search(ctx context.Context, collection, term string, limit int) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, err := m.docs(collection)
	if err != nil {
		return nil, err
	}
	term = strings.ToLower(term)
	out := make([]Document, 0)
	for _, doc := range docs {
		name, _ := doc["name"].(string)
		if strings.Contains(strings.ToLower(name), term) {
			out = append(out, doc)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// Ping implements Backend.
func (m *MemoryBackend) Ping(ctx context.Context) error { return nil }

// Close implements Backend.
func (m *MemoryBackend) Close(ctx context.Context) error { return nil }
