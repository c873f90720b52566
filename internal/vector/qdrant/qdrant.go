// Package qdrant implements the vector store on a Qdrant instance over
// gRPC.
package qdrant

import (
	"context"
	"fmt"
	"strings"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/soliscan/soliscan/internal/vector"
)

// Store implements vector.Store using Qdrant.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// New connects to a Qdrant instance. The connection is lazy; failures
// surface on the first call.
func New(host string, port int, collection string) (*Store, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// EnsureCollection creates the collection with cosine distance when it does
// not exist yet. Losing a concurrent creation race counts as success; an
// existing collection with a different dimension does not.
func (s *Store) EnsureCollection(ctx context.Context, dimension int) error {
	exists, err := s.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{
		CollectionName: s.collection,
	})
	if err != nil {
		return fmt.Errorf("qdrant collection lookup: %w", err)
	}

	if !exists.GetResult().GetExists() {
		_, err = s.collections.Create(ctx, &pb.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: &pb.VectorsConfig{
				Config: &pb.VectorsConfig_Params{
					Params: &pb.VectorParams{
						Size:     uint64(dimension),
						Distance: pb.Distance_Cosine,
					},
				},
			},
		})
		if err != nil && !creationRaceLost(err) {
			return fmt.Errorf("qdrant collection create: %w", err)
		}
	}

	return s.verifyDimension(ctx, dimension)
}

// creationRaceLost reports whether a create failed only because another
// writer created the collection first.
func creationRaceLost(err error) bool {
	if status.Code(err) == codes.AlreadyExists {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}

func (s *Store) verifyDimension(ctx context.Context, dimension int) error {
	info, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: s.collection,
	})
	if err != nil {
		return fmt.Errorf("qdrant collection info: %w", err)
	}
	params := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return fmt.Errorf("qdrant collection %q has no vector params", s.collection)
	}
	if got := int(params.GetSize()); got != dimension {
		return fmt.Errorf("qdrant collection %q has dimension %d, want %d", s.collection, got, dimension)
	}
	return nil
}

// Upsert writes documents with wait enabled so a search issued right after
// observes them. The sequential duplicate probe depends on that.
func (s *Store) Upsert(ctx context.Context, docs []vector.Document) error {
	points := make([]*pb.PointStruct, len(docs))
	for i, d := range docs {
		payload := map[string]*pb.Value{
			"content": {Kind: &pb.Value_StringValue{StringValue: d.Content}},
		}
		for k, v := range d.Metadata {
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
		}
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: d.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: d.Vector}}},
			Payload: payload,
		}
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	return err
}

func (s *Store) Search(ctx context.Context, vec []float32, topK int, filter map[string]string) ([]vector.SearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vec,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if len(filter) > 0 {
		req.Filter = keywordFilter(filter)
	}

	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	results := make([]vector.SearchResult, len(resp.Result))
	for i, pt := range resp.Result {
		content := ""
		meta := make(map[string]string)
		for k, v := range pt.Payload {
			if k == "content" {
				content = v.GetStringValue()
			} else {
				meta[k] = v.GetStringValue()
			}
		}
		results[i] = vector.SearchResult{
			ID:       pt.Id.GetUuid(),
			Score:    pt.Score,
			Content:  content,
			Metadata: meta,
		}
	}
	return results, nil
}

// keywordFilter builds an exact-match condition per metadata pair, all of
// which must hold.
func keywordFilter(filter map[string]string) *pb.Filter {
	conditions := make([]*pb.Condition, 0, len(filter))
	for k, v := range filter {
		conditions = append(conditions, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key:   k,
					Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: v}},
				},
			},
		})
	}
	return &pb.Filter{Must: conditions}
}

func (s *Store) Stats(ctx context.Context) (vector.IndexStats, error) {
	info, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: s.collection,
	})
	if err != nil {
		return vector.IndexStats{}, fmt.Errorf("qdrant collection info: %w", err)
	}

	stats := vector.IndexStats{Vectors: info.GetResult().GetPointsCount()}
	if params := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams(); params != nil {
		stats.Dimension = int(params.GetSize())
	}
	return stats, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

var _ vector.Store = (*Store)(nil)
