// Package vectorstoreclient wraps the Qdrant gRPC client with the exact
// operation set the indexing pipeline needs: collection lifecycle, batched
// point upserts with whole-batch retry, filtered scroll and search, and
// payload index management.
package vectorstoreclient

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog"

	"github.com/codelens/indexcore/internal/errs"
)

// Client wraps a Qdrant connection for a single logical deployment; callers
// address collections by name on every call, since one project's indexer
// may manage several collections (one per embedding model ever used).
type Client struct {
	qc     *qdrant.Client
	logger zerolog.Logger
}

// HNSW parameters tuned for code search: M=16 balances recall against
// memory, EfConstruct=128 trades index build time for search quality.
const (
	hnswM           = uint64(16)
	hnswEfConstruct = uint64(128)
)

// New dials addr ("host:port", defaulting to port 6334 if omitted).
func New(addr string, logger zerolog.Logger) (*Client, error) {
	host, port := parseAddr(addr)
	qc, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return &Client{qc: qc, logger: logger}, nil
}

func (c *Client) Close() error {
	if c.qc == nil {
		return nil
	}
	return c.qc.Close()
}

// CollectionExists reports whether name already exists.
func (c *Client) CollectionExists(ctx context.Context, name string) (bool, error) {
	exists, err := c.qc.CollectionExists(ctx, name)
	if err != nil {
		return false, classify("collection_exists", err)
	}
	return exists, nil
}

// CreateCollection creates name sized for vectorDim-dimensional vectors
// using cosine distance. A 409/already-exists response from Qdrant is
// treated as success since collection creation is idempotent at the
// orchestrator level.
func (c *Client) CreateCollection(ctx context.Context, name string, vectorDim int) error {
	err := c.qc.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(vectorDim),
			Distance: qdrant.Distance_Cosine,
			HnswConfig: &qdrant.HnswConfigDiff{
				M:           ptr(hnswM),
				EfConstruct: ptr(hnswEfConstruct),
			},
		}),
	})
	if err != nil {
		if isAlreadyExists(err) {
			return nil
		}
		return classify("create_collection", err)
	}
	c.logger.Info().Str("collection", name).Int("dim", vectorDim).Msg("collection created")
	return nil
}

// DeleteCollection drops name entirely, including all points and indexes.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	if err := c.qc.DeleteCollection(ctx, name); err != nil {
		return classify("delete_collection", err)
	}
	return nil
}

// Point is a single vector plus its metadata payload.
type Point struct {
	ID      uuid.UUID
	Vector  []float32
	Payload map[string]any
}

// UpsertPoints writes points to collection, waiting for the write to be
// acknowledged. A transient failure is retried once with the entire batch;
// Qdrant upserts are idempotent on point id so a retry after a partial
// failure is safe.
func (c *Client) UpsertPoints(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	pbPoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		pbPoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID.String()),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(p.Payload),
		}
	}

	req := &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         pbPoints,
		Wait:           ptr(true),
	}
	_, err := c.qc.Upsert(ctx, req)
	if err != nil && errs.IsRetryable(classify("upsert_points", err)) {
		c.logger.Warn().Str("collection", collection).Int("points", len(points)).Err(err).Msg("upsert failed, retrying whole batch")
		_, err = c.qc.Upsert(ctx, req)
	}
	if err != nil {
		return classify("upsert_points", err)
	}
	return nil
}

// FieldMatch is a single equality condition in a Filter.
type FieldMatch struct {
	Key   string
	Value string
}

// Filter is Must (AND), MustNot (AND NOT) and Should (OR) field-match
// conditions, sufficient for the project id, path, branch-visibility and
// branch-ancestry filters the pipeline needs. A Match condition against a
// repeated payload field (like hidden_branches) matches on membership.
type Filter struct {
	Must    []FieldMatch
	MustNot []FieldMatch
	Should  []FieldMatch
}

func (f Filter) toQdrant() *qdrant.Filter {
	if len(f.Must) == 0 && len(f.MustNot) == 0 && len(f.Should) == 0 {
		return nil
	}
	qf := &qdrant.Filter{}
	if len(f.Must) > 0 {
		qf.Must = toConditions(f.Must)
	}
	if len(f.MustNot) > 0 {
		qf.MustNot = toConditions(f.MustNot)
	}
	if len(f.Should) > 0 {
		qf.Should = toConditions(f.Should)
	}
	return qf
}

func toConditions(ms []FieldMatch) []*qdrant.Condition {
	conditions := make([]*qdrant.Condition, len(ms))
	for i, m := range ms {
		conditions[i] = &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   m.Key,
					Match: qdrant.NewMatch(m.Value),
				},
			},
		}
	}
	return conditions
}

// DeleteByFilter removes every point in collection matching filter.
func (c *Client) DeleteByFilter(ctx context.Context, collection string, filter Filter) error {
	_, err := c.qc.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: filter.toQdrant()},
		},
	})
	if err != nil {
		return classify("delete_by_filter", err)
	}
	return nil
}

// ScrollPage is one page of Scroll results plus the cursor to pass as
// Offset on the next call; Offset is empty on the final page.
type ScrollPage struct {
	Points []Point
	Offset string
}

// Scroll pages through points matching filter, withPayload always true
// since the orchestrator's reconcile pass needs full metadata. One point
// beyond limit is requested; when it comes back, its id becomes the next
// page's Offset and it is left out of this page.
func (c *Client) Scroll(ctx context.Context, collection string, filter Filter, limit uint32, offset string) (ScrollPage, error) {
	req := &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter:         filter.toQdrant(),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
		Limit:          ptr(limit + 1),
	}
	if offset != "" {
		req.Offset = qdrant.NewID(offset)
	}

	result, err := c.qc.Scroll(ctx, req)
	if err != nil {
		return ScrollPage{}, classify("scroll", err)
	}

	var next string
	if uint32(len(result)) > limit {
		next = result[limit].GetId().GetUuid()
		result = result[:limit]
	}

	page := ScrollPage{Points: make([]Point, 0, len(result)), Offset: next}
	for _, p := range result {
		page.Points = append(page.Points, Point{
			ID:      parsePointID(p.GetId()),
			Payload: valueMapToAny(p.GetPayload()),
		})
	}
	return page, nil
}

// SearchHit is one ranked result from Search.
type SearchHit struct {
	ID      uuid.UUID
	Score   float32
	Payload map[string]any
}

// SearchParams configures a single vector similarity search.
type SearchParams struct {
	Vector        []float32
	Filter        Filter
	Limit         uint64
	ScoreThreshold float32 // 0 disables thresholding
}

// Search runs a vector similarity query against collection.
func (c *Client) Search(ctx context.Context, collection string, params SearchParams) ([]SearchHit, error) {
	req := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(params.Vector...),
		Filter:         params.Filter.toQdrant(),
		Limit:          ptr(params.Limit),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if params.ScoreThreshold > 0 {
		req.ScoreThreshold = ptr(params.ScoreThreshold)
	}

	result, err := c.qc.Query(ctx, req)
	if err != nil {
		return nil, classify("search", err)
	}

	hits := make([]SearchHit, 0, len(result))
	for _, p := range result {
		hits = append(hits, SearchHit{
			ID:      parsePointID(p.GetId()),
			Score:   p.GetScore(),
			Payload: valueMapToAny(p.GetPayload()),
		})
	}
	return hits, nil
}

func parsePointID(id *qdrant.PointId) uuid.UUID {
	if u, err := uuid.Parse(id.GetUuid()); err == nil {
		return u
	}
	return uuid.Nil
}

func valueMapToAny(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		switch {
		case v.GetStringValue() != "":
			out[k] = v.GetStringValue()
		case v.GetIntegerValue() != 0:
			out[k] = v.GetIntegerValue()
		case v.GetBoolValue():
			out[k] = true
		default:
			out[k] = v.String()
		}
	}
	return out
}

func isAlreadyExists(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}

// classify maps a raw client error onto the shared retry taxonomy. The
// Qdrant gRPC client doesn't expose structured status codes through this
// wrapper's import surface, so classification falls back to substring
// matching on the error text.
func classify(op string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "already exists"), strings.Contains(msg, "not found"), strings.Contains(msg, "invalid"):
		return &errs.PermanentError{Op: op, Err: err}
	default:
		return &errs.TransientError{Op: op, Err: err}
	}
}

func ptr[T any](v T) *T { return &v }

func parseAddr(addr string) (host string, port int) {
	port = 6334
	if addr == "" {
		return "localhost", port
	}
	parts := strings.Split(addr, ":")
	if len(parts) == 2 {
		if p, err := strconv.Atoi(parts[1]); err == nil {
			port = p
		}
		return parts[0], port
	}
	return addr, port
}

// WaitForReady polls Qdrant's health check every 500ms until it answers or
// timeout elapses, so a caller can wait out a cold-started container before
// its first real indexing run.
func (c *Client) WaitForReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		_, err := c.qc.HealthCheck(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return fmt.Errorf("qdrant not ready after %s: %w", timeout, lastErr)
}
