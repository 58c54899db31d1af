package databases

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Qdrant point ids must be UUIDs or positive integers, but our doc ids are
// domain keys (interaction ids, graph node ids, mistake ids). Non-UUID ids
// are mapped to a deterministic UUIDv5 and the original id travels in the
// payload so search results report the caller's key, not the mapped one.
const payloadOriginalID = "_original_id"

// qdrantVector backs one named collection (interactions, facts, graph_nodes,
// mistakes) with a Qdrant collection of the same name.
type qdrantVector struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     string
}

// NewQdrantVector connects to a Qdrant instance and ensures collection
// exists at the configured dimensionality. The DSN is host-shaped
// ("http://localhost:6334"); the Go client speaks Qdrant's gRPC API, which
// listens on 6334 by default. An API key may ride along as a query
// parameter ("?api_key=...").
func NewQdrantVector(dsn string, collection string, dimensions int, metric string) (VectorStore, error) {
	if collection == "" {
		return nil, fmt.Errorf("qdrant: collection name is required")
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("qdrant: parse DSN: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := u.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("qdrant: invalid port in DSN: %w", err)
	}
	ccfg := &qdrant.Config{Host: host, Port: portNum}
	if u.Scheme == "https" {
		ccfg.UseTLS = true
	}
	if apiKey := u.Query().Get("api_key"); apiKey != "" {
		ccfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(ccfg)
	if err != nil {
		return nil, fmt.Errorf("qdrant: create client: %w", err)
	}
	qv := &qdrantVector{
		client:     client,
		collection: collection,
		dimension:  dimensions,
		metric:     strings.ToLower(strings.TrimSpace(metric)),
	}
	if err := qv.ensureCollection(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("qdrant: ensure collection %q: %w", collection, err)
	}
	return qv, nil
}

func (q *qdrantVector) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	if q.dimension <= 0 {
		return fmt.Errorf("dimensions must be > 0")
	}
	// Cosine is the default: the relevance formula the memory and mistake
	// layers apply (1 − distance/2) assumes cosine space.
	distance := qdrant.Distance_Cosine
	switch q.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: distance,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

func pointID(id string) (qid *qdrant.PointId, mapped bool) {
	if _, err := uuid.Parse(id); err == nil {
		return qdrant.NewIDUUID(id), false
	}
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()), true
}

func (q *qdrantVector) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	pid, mapped := pointID(id)
	payload := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = v
	}
	if mapped {
		payload[payloadOriginalID] = id
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{{
			Id:      pid,
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	return err
}

func (q *qdrantVector) Delete(ctx context.Context, id string) error {
	pid, _ := pointID(id)
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(pid),
	})
	return err
}

func (q *qdrantVector) SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]VectorResult, error) {
	if k <= 0 {
		k = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	var queryFilter *qdrant.Filter
	if len(filter) > 0 {
		must := make([]*qdrant.Condition, 0, len(filter))
		for key, v := range filter {
			must = append(must, qdrant.NewMatch(key, v))
		}
		queryFilter = &qdrant.Filter{Must: must}
	}
	limit := uint64(k)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         queryFilter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	results := make([]VectorResult, 0, len(hits))
	for _, hit := range hits {
		id := hit.Id.GetUuid()
		if id == "" {
			id = hit.Id.String()
		}
		metadata := make(map[string]string)
		for k, v := range hit.Payload {
			if k == payloadOriginalID {
				id = v.GetStringValue()
				continue
			}
			metadata[k] = v.GetStringValue()
		}
		results = append(results, VectorResult{
			ID:       id,
			Score:    float64(hit.Score),
			Metadata: metadata,
		})
	}
	return results, nil
}

func (q *qdrantVector) Close() error {
	return q.client.Close()
}
