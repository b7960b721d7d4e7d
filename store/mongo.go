package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/BaSui01/sandflow/types"
)

// Collections holding report definitions and prepared results.
const (
	reportDefsCollection    = "sandflow_reports"
	reportResultsCollection = "sandflow_report_results"
)

// MongoBackend implements Backend over a MongoDB database.
type MongoBackend struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// NewMongoBackend connects to the given URI and database.
func NewMongoBackend(ctx context.Context, uri, database string, logger *zap.Logger) (*MongoBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri).SetTimeout(10 * time.Second))
	if err != nil {
		return nil, types.NewError(types.ErrStoreUnavailable, "connecting to store").WithCause(err).WithRetryable(true)
	}
	b := &MongoBackend{client: client, db: client.Database(database), logger: logger}
	if err := b.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	logger.Info("store connected", zap.String("database", database))
	return b, nil
}

func toBson(filters map[string]any) bson.M {
	if filters == nil {
		return bson.M{}
	}
	return bson.M(filters)
}

func projection(fields []string) bson.M {
	p := bson.M{}
	for _, f := range fields {
		p[f] = 1
	}
	return p
}

// FindOne implements Backend.
func (b *MongoBackend) FindOne(ctx context.Context, collection string, filters map[string]any, fields []string) (Document, error) {
	opts := options.FindOne()
	if len(fields) > 0 {
		opts = opts.SetProjection(projection(fields))
	}
	var doc Document
	err := b.db.Collection(collection).FindOne(ctx, toBson(filters), opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewError(types.ErrStoreUnavailable, "find_one failed").WithCause(err).WithRetryable(true)
	}
	return doc, nil
}

// Find implements Backend.
func (b *MongoBackend) Find(ctx context.Context, q Query) ([]Document, error) {
	opts := options.Find()
	if q.Limit > 0 {
		opts = opts.SetLimit(int64(q.Limit))
	}
	if len(q.Fields) > 0 {
		opts = opts.SetProjection(projection(q.Fields))
	}
	if q.Sort != "" {
		field, dir := q.Sort, 1
		if field[0] == '-' {
			field, dir = field[1:], -1
		}
		opts = opts.SetSort(bson.D{{Key: field, Value: dir}})
	}
	cur, err := b.db.Collection(q.Collection).Find(ctx, toBson(q.Filters), opts)
	if err != nil {
		return nil, types.NewError(types.ErrStoreUnavailable, "find failed").WithCause(err).WithRetryable(true)
	}
	var docs []Document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, types.NewError(types.ErrStoreUnavailable, "decoding documents").WithCause(err)
	}
	return docs, nil
}

// Count implements Backend.
func (b *MongoBackend) Count(ctx context.Context, collection string, filters map[string]any) (int64, error) {
	n, err := b.db.Collection(collection).CountDocuments(ctx, toBson(filters))
	if err != nil {
		return 0, types.NewError(types.ErrStoreUnavailable, "count failed").WithCause(err).WithRetryable(true)
	}
	return n, nil
}

// Aggregate implements Backend. The pipeline is caller-provided but
// reaches the server under a read-only user, so write stages fail at
// the store even if they slip through here.
func (b *MongoBackend) Aggregate(ctx context.Context, collection string, pipeline []map[string]any) ([]Document, error) {
	stages := make(mongo.Pipeline, 0, len(pipeline))
	for _, stage := range pipeline {
		doc := bson.D{}
		for k, v := range stage {
			doc = append(doc, bson.E{Key: k, Value: v})
		}
		stages = append(stages, doc)
	}
	cur, err := b.db.Collection(collection).Aggregate(ctx, stages)
	if err != nil {
		return nil, types.NewError(types.ErrStoreUnavailable, "aggregate failed").WithCause(err).WithRetryable(true)
	}
	var docs []Document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, types.NewError(types.ErrStoreUnavailable, "decoding documents").WithCause(err)
	}
	return docs, nil
}

// Collections implements Backend.
func (b *MongoBackend) Collections(ctx context.Context) ([]string, error) {
	names, err := b.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, types.NewError(types.ErrStoreUnavailable, "listing collections").WithCause(err).WithRetryable(true)
	}
	return names, nil
}

// CollectionInfo implements Backend. Field shapes are sampled from
// one document.
func (b *MongoBackend) CollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error) {
	count, err := b.Count(ctx, collection, nil)
	if err != nil {
		return nil, err
	}
	info := &CollectionInfo{Name: collection, Count: count}
	sample, err := b.FindOne(ctx, collection, nil, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range sample {
		info.Fields = append(info.Fields, FieldInfo{Name: k, Type: bsonTypeName(v)})
	}
	return info, nil
}

func bsonTypeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case int32, int64, float64:
		return "number"
	case bool:
		return "bool"
	case bson.A:
		return "array"
	case bson.M, bson.D:
		return "object"
	default:
		return "unknown"
	}
}

func (b *MongoBackend) reportDef(ctx context.Context, name string) (Document, error) {
	return b.FindOne(ctx, reportDefsCollection, map[string]any{"name": name}, nil)
}

// ListReports implements Backend.
func (b *MongoBackend) ListReports(ctx context.Context) ([]ReportInfo, error) {
	docs, err := b.Find(ctx, Query{Collection: reportDefsCollection, Limit: 500})
	if err != nil {
		return nil, err
	}
	out := make([]ReportInfo, 0, len(docs))
	for _, doc := range docs {
		out = append(out, decodeReportInfo(doc))
	}
	return out, nil
}

// ReportInfo implements Backend.
func (b *MongoBackend) ReportInfo(ctx context.Context, name string) (*ReportInfo, error) {
	doc, err := b.reportDef(ctx, name)
	if err != nil || doc == nil {
		return nil, err
	}
	info := decodeReportInfo(doc)
	return &info, nil
}

func decodeReportInfo(doc Document) ReportInfo {
	info := ReportInfo{Prepared: doc["prepared"] == true}
	info.Name, _ = doc["name"].(string)
	info.Description, _ = doc["description"].(string)
	info.Collection, _ = doc["collection"].(string)
	if raw, ok := doc["filters"].(bson.A); ok {
		for _, f := range raw {
			if s, ok := f.(string); ok {
				info.Filters = append(info.Filters, s)
			}
		}
	}
	return info
}

// RunReport implements Backend. Direct reports run their stored
// pipeline immediately; prepared reports resolve from the results
// collection and return ErrReportNotReady while generation is still
// queued.
func (b *MongoBackend) RunReport(ctx context.Context, name string, filters map[string]any) ([]Document, error) {
	def, err := b.reportDef(ctx, name)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, types.NewErrorf(types.ErrNotFound, "report %q does not exist", name)
	}

	if def["prepared"] == true {
		result, err := b.FindOne(ctx, reportResultsCollection, map[string]any{"report": name}, nil)
		if err != nil {
			return nil, err
		}
		if result == nil || result["status"] != "ready" {
			return nil, ErrReportNotReady
		}
		rows, _ := result["rows"].(bson.A)
		out := make([]Document, 0, len(rows))
		for _, row := range rows {
			if m, ok := row.(bson.M); ok {
				out = append(out, Document(m))
			}
		}
		return out, nil
	}

	collection, _ := def["collection"].(string)
	query := Query{Collection: collection, Filters: filters, Limit: 1000}
	return b.Find(ctx, query)
}

// Search implements Backend. Matches by case-insensitive regex on the
// name field, the way document stores expose their quick search.
func (b *MongoBackend) Search(ctx context.Context, collection, term string, limit int) ([]Document, error) {
	filter := bson.M{"name": bson.M{"$regex": term, "$options": "i"}}
	cur, err := b.db.Collection(collection).Find(ctx, filter, options.Find().SetLimit(int64(limit)))
	if err != nil {
		return nil, types.NewError(types.ErrStoreUnavailable, "search failed").WithCause(err).WithRetryable(true)
	}
	var docs []Document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, types.NewError(types.ErrStoreUnavailable, "decoding documents").WithCause(err)
	}
	return docs, nil
}

// Ping implements Backend.
func (b *MongoBackend) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx, nil); err != nil {
		return types.NewError(types.ErrStoreUnavailable, "store unreachable").WithCause(err).WithRetryable(true)
	}
	return nil
}

// Close implements Backend.
func (b *MongoBackend) Close(ctx context.Context) error {
	return b.client.Disconnect(ctx)
}
