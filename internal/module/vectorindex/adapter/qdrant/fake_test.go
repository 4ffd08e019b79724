package qdrant

import (
	"context"
	"sort"
	"sync"

	"github.com/jinford/semsearch/internal/module/vectorindex/domain"
	qdrantclient "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// fakeServer は Qdrant の gRPC サービスをメモリ上で再現するテスト用のフェイク
type fakeServer struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
	// err が設定されている場合、すべての呼び出しがこのエラーを返す
	err error
	// apiKeys は受け取った api-key メタデータ
	apiKeys []string
}

type fakeCollection struct {
	size   uint64
	points map[string]*qdrantclient.PointStruct
}

func newFakeServer() *fakeServer {
	return &fakeServer{collections: make(map[string]*fakeCollection)}
}

func (s *fakeServer) record(ctx context.Context) error {
	if md, ok := metadata.FromOutgoingContext(ctx); ok {
		s.apiKeys = append(s.apiKeys, md.Get("api-key")...)
	}
	return s.err
}

type fakeCollections struct {
	qdrantclient.CollectionsClient
	s *fakeServer
}

func (c *fakeCollections) Get(ctx context.Context, in *qdrantclient.GetCollectionInfoRequest, _ ...grpc.CallOption) (*qdrantclient.GetCollectionInfoResponse, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.record(ctx); err != nil {
		return nil, err
	}

	col, ok := c.s.collections[in.GetCollectionName()]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "Collection `%s` doesn't exist!", in.GetCollectionName())
	}
	return &qdrantclient.GetCollectionInfoResponse{
		Result: &qdrantclient.CollectionInfo{
			Config: &qdrantclient.CollectionConfig{
				Params: &qdrantclient.CollectionParams{
					VectorsConfig: &qdrantclient.VectorsConfig{
						Config: &qdrantclient.VectorsConfig_Params{
							Params: &qdrantclient.VectorParams{Size: col.size, Distance: qdrantclient.Distance_Cosine},
						},
					},
				},
			},
		},
	}, nil
}

func (c *fakeCollections) Create(ctx context.Context, in *qdrantclient.CreateCollection, _ ...grpc.CallOption) (*qdrantclient.CollectionOperationResponse, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.record(ctx); err != nil {
		return nil, err
	}

	if _, ok := c.s.collections[in.GetCollectionName()]; ok {
		return nil, status.Errorf(codes.AlreadyExists, "collection exists")
	}
	c.s.collections[in.GetCollectionName()] = &fakeCollection{
		size:   in.GetVectorsConfig().GetParams().GetSize(),
		points: make(map[string]*qdrantclient.PointStruct),
	}
	return &qdrantclient.CollectionOperationResponse{Result: true}, nil
}

func (c *fakeCollections) Delete(ctx context.Context, in *qdrantclient.DeleteCollection, _ ...grpc.CallOption) (*qdrantclient.CollectionOperationResponse, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.record(ctx); err != nil {
		return nil, err
	}

	_, ok := c.s.collections[in.GetCollectionName()]
	delete(c.s.collections, in.GetCollectionName())
	return &qdrantclient.CollectionOperationResponse{Result: ok}, nil
}

func (c *fakeCollections) CollectionExists(ctx context.Context, in *qdrantclient.CollectionExistsRequest, _ ...grpc.CallOption) (*qdrantclient.CollectionExistsResponse, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.record(ctx); err != nil {
		return nil, err
	}

	_, ok := c.s.collections[in.GetCollectionName()]
	return &qdrantclient.CollectionExistsResponse{Result: &qdrantclient.CollectionExists{Exists: ok}}, nil
}

type fakePoints struct {
	qdrantclient.PointsClient
	s *fakeServer
}

func (p *fakePoints) Upsert(ctx context.Context, in *qdrantclient.UpsertPoints, _ ...grpc.CallOption) (*qdrantclient.PointsOperationResponse, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if err := p.s.record(ctx); err != nil {
		return nil, err
	}

	col, ok := p.s.collections[in.GetCollectionName()]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "collection not found")
	}
	for _, pt := range in.GetPoints() {
		if uint64(len(pt.GetVectors().GetVector().GetData())) != col.size {
			return nil, status.Errorf(codes.InvalidArgument, "wrong vector dimension")
		}
		col.points[pt.GetId().GetUuid()] = pt
	}
	return &qdrantclient.PointsOperationResponse{
		Result: &qdrantclient.UpdateResult{Status: qdrantclient.UpdateStatus_Completed},
	}, nil
}

func (p *fakePoints) Search(ctx context.Context, in *qdrantclient.SearchPoints, _ ...grpc.CallOption) (*qdrantclient.SearchResponse, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if err := p.s.record(ctx); err != nil {
		return nil, err
	}

	col, ok := p.s.collections[in.GetCollectionName()]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "collection not found")
	}

	var scored []*qdrantclient.ScoredPoint
	for id, pt := range col.points {
		if !matches(in.GetFilter(), pt.GetPayload()) {
			continue
		}
		score := domain.Cosine(in.GetVector(), pt.GetVectors().GetVector().GetData())
		scored = append(scored, &qdrantclient.ScoredPoint{
			Id:      &qdrantclient.PointId{PointIdOptions: &qdrantclient.PointId_Uuid{Uuid: id}},
			Payload: pt.GetPayload(),
			Score:   float32(score),
		})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].GetId().GetUuid() < scored[j].GetId().GetUuid()
	})
	if limit := int(in.GetLimit()); limit < len(scored) {
		scored = scored[:limit]
	}
	return &qdrantclient.SearchResponse{Result: scored}, nil
}

func (p *fakePoints) Count(ctx context.Context, in *qdrantclient.CountPoints, _ ...grpc.CallOption) (*qdrantclient.CountResponse, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if err := p.s.record(ctx); err != nil {
		return nil, err
	}

	col, ok := p.s.collections[in.GetCollectionName()]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "collection not found")
	}
	return &qdrantclient.CountResponse{Result: &qdrantclient.CountResult{Count: uint64(len(col.points))}}, nil
}

func matches(filter *qdrantclient.Filter, payload map[string]*qdrantclient.Value) bool {
	for _, cond := range filter.GetMust() {
		field := cond.GetField()
		if payload[field.GetKey()].GetStringValue() != field.GetMatch().GetKeyword() {
			return false
		}
	}
	return true
}

func newFakeIndex(s *fakeServer, name, apiKey string) *Index {
	return New(&fakeCollections{s: s}, &fakePoints{s: s}, name, apiKey)
}
