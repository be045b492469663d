package dbclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// mongoConnector implements Connector for MongoDB.
type mongoConnector struct {
	client *mongo.Client
	dbName string
	log    *zap.SugaredLogger

	mu      sync.Mutex
	cursor  *mongo.Cursor
	cancel  context.CancelFunc
	fetched int
}

// mongoQuery is the JSON document used as a MongoDB import query.
type mongoQuery struct {
	Collection string         `json:"collection"`
	Operation  string         `json:"operation,omitempty"` // find (default) | aggregate
	Filter     map[string]any `json:"filter,omitempty"`
	Projection map[string]any `json:"projection,omitempty"`
	Sort       map[string]any `json:"sort,omitempty"`
	Limit      int64          `json:"limit,omitempty"`
	Pipeline   []any          `json:"pipeline,omitempty"`
}

func mongoURI(conn Connection) string {
	if strings.HasPrefix(conn.Host, "mongodb+srv://") || strings.HasPrefix(conn.Host, "mongodb://") {
		uri := conn.Host
		if pw := conn.password(); pw != "" {
			uri = strings.ReplaceAll(uri, "<password>", pw)
			uri = strings.ReplaceAll(uri, "<db_password>", pw)
		}
		return uri
	}

	port := conn.Port
	if port == 0 {
		port = 27017
	}
	var uri string
	if conn.Username != "" {
		uri = fmt.Sprintf("mongodb://%s:%s@%s:%d", conn.Username, conn.password(), conn.Host, port)
	} else {
		uri = fmt.Sprintf("mongodb://%s:%d", conn.Host, port)
	}
	if len(conn.Extra) > 0 {
		keys := make([]string, 0, len(conn.Extra))
		for k := range conn.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		params := make([]string, len(keys))
		for i, k := range keys {
			params[i] = k + "=" + conn.Extra[k]
		}
		uri += "/?" + strings.Join(params, "&")
	}
	return uri
}

func newMongoConnector(conn Connection, log *zap.SugaredLogger) (*mongoConnector, error) {
	dbName := conn.Database
	if dbName == "" {
		dbName = "test"
	}
	client, err := mongo.Connect(options.Client().ApplyURI(mongoURI(conn)))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	log.Debugw("mongo: client created", "database", dbName)
	return &mongoConnector{client: client, dbName: dbName, log: log}, nil
}

// unmarshalEJSON converts Extended JSON values ($oid, $date, ...) in a
// decoded JSON object to their BSON types.
func unmarshalEJSON(field map[string]any) (map[string]any, error) {
	if field == nil {
		return nil, nil
	}
	raw, err := json.Marshal(field)
	if err != nil {
		return nil, err
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		return nil, fmt.Errorf("extended json: %w", err)
	}
	out := make(map[string]any, len(doc))
	for _, elem := range doc {
		out[elem.Key] = elem.Value
	}
	return out, nil
}

func parseMongoQuery(query string) (*mongoQuery, error) {
	var mq mongoQuery
	if err := json.Unmarshal([]byte(query), &mq); err != nil {
		return nil, fmt.Errorf("invalid query JSON: %w", err)
	}
	if mq.Collection == "" {
		return nil, errors.New("query must specify 'collection'")
	}
	var err error
	if mq.Filter, err = unmarshalEJSON(mq.Filter); err != nil {
		return nil, err
	}
	if mq.Projection, err = unmarshalEJSON(mq.Projection); err != nil {
		return nil, err
	}
	if mq.Sort, err = unmarshalEJSON(mq.Sort); err != nil {
		return nil, err
	}
	if mq.Operation == "" {
		mq.Operation = "find"
	}
	return &mq, nil
}

func (m *mongoConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return m.client.Ping(ctx, nil)
}

func (m *mongoConnector) Execute(ctx context.Context, query string, fetchSize int) (*QueryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeCursorLocked(ctx)
	if fetchSize <= 0 {
		fetchSize = 50
	}

	mq, err := parseMongoQuery(query)
	if err != nil {
		return nil, err
	}
	m.log.Debugw("mongo: query", "collection", mq.Collection, "operation", mq.Operation)

	coll := m.client.Database(m.dbName).Collection(mq.Collection)
	cctx, cancel := context.WithTimeout(ctx, 5*time.Minute)

	var cursor *mongo.Cursor
	switch mq.Operation {
	case "find":
		opts := options.Find().SetBatchSize(int32(fetchSize))
		if mq.Projection != nil {
			opts.SetProjection(mq.Projection)
		}
		if mq.Sort != nil {
			opts.SetSort(mq.Sort)
		}
		if mq.Limit > 0 {
			opts.SetLimit(mq.Limit)
		}
		filter := mq.Filter
		if filter == nil {
			filter = map[string]any{}
		}
		cursor, err = coll.Find(cctx, filter, opts)
	case "aggregate":
		pipeline := mq.Pipeline
		if pipeline == nil {
			pipeline = []any{}
		}
		cursor, err = coll.Aggregate(cctx, pipeline)
	default:
		cancel()
		return nil, fmt.Errorf("unsupported operation: %s", mq.Operation)
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s: %w", mq.Operation, err)
	}

	m.cursor = cursor
	m.cancel = cancel
	m.fetched = 0
	return m.fetchBatchLocked(cctx, fetchSize)
}

func (m *mongoConnector) FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cursor == nil {
		return nil, errors.New("no active cursor, execute a query first")
	}
	if fetchSize <= 0 {
		fetchSize = 50
	}
	return m.fetchBatchLocked(ctx, fetchSize)
}

func (m *mongoConnector) fetchBatchLocked(ctx context.Context, fetchSize int) (*QueryPage, error) {
	var docs []bson.D
	for i := 0; i < fetchSize; i++ {
		if !m.cursor.Next(ctx) {
			break
		}
		var doc bson.D
		if err := m.cursor.Decode(&doc); err != nil {
			m.closeCursorLocked(ctx)
			return nil, fmt.Errorf("decode: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := m.cursor.Err(); err != nil {
		m.closeCursorLocked(ctx)
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	m.fetched += len(docs)

	// Columns in first-seen order, with _id first
	seen := map[string]bool{}
	var columns []string
	for _, doc := range docs {
		for _, elem := range doc {
			if !seen[elem.Key] {
				seen[elem.Key] = true
				columns = append(columns, elem.Key)
			}
		}
	}
	sort.SliceStable(columns, func(i, j int) bool {
		return columns[i] == "_id" && columns[j] != "_id"
	})

	rows := make([][]any, 0, len(docs))
	for _, doc := range docs {
		byKey := make(map[string]any, len(doc))
		for _, elem := range doc {
			byKey[elem.Key] = elem.Value
		}
		row := make([]any, len(columns))
		for j, col := range columns {
			if v, ok := byKey[col]; ok {
				row[j] = mongoScalar(v)
			}
		}
		rows = append(rows, row)
	}

	hasMore := len(docs) == fetchSize
	if !hasMore {
		m.closeCursorLocked(ctx)
	}
	return &QueryPage{Columns: columns, Rows: rows, TotalFetched: m.fetched, HasMore: hasMore}, nil
}

// mongoScalar keeps strings, numbers and booleans and stringifies the rest.
func mongoScalar(v any) any {
	switch x := v.(type) {
	case nil, string, bool, float64:
		return x
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case bson.ObjectID:
		return x.Hex()
	case bson.DateTime:
		return x.Time().UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func (m *mongoConnector) Close() error {
	m.mu.Lock()
	m.closeCursorLocked(context.Background())
	m.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *mongoConnector) closeCursorLocked(ctx context.Context) {
	if m.cursor != nil {
		m.cursor.Close(ctx)
		m.cursor = nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}
