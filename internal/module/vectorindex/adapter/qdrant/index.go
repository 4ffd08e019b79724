package qdrant

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/jinford/semsearch/internal/module/vectorindex/domain"
	"github.com/jinford/semsearch/internal/shared/failure"
	qdrantclient "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const backendName = "qdrant"

// Config は Qdrant の gRPC 接続設定
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// Index は Qdrant のコレクションに保存するベクトルインデックス
// ポイントIDはレコードID（UUID）、ペイロードはメタデータです
type Index struct {
	conn        *grpc.ClientConn
	collections qdrantclient.CollectionsClient
	points      qdrantclient.PointsClient
	name        string
	apiKey      string
}

// Dial は Qdrant に接続して Index を作成します
func Dial(cfg Config, name string) (*Index, error) {
	creds := insecure.NewCredentials()
	if cfg.UseTLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	conn, err := grpc.NewClient(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	idx := New(qdrantclient.NewCollectionsClient(conn), qdrantclient.NewPointsClient(conn), name, cfg.APIKey)
	idx.conn = conn
	return idx, nil
}

// New は gRPC クライアントから Index を作成します
func New(collections qdrantclient.CollectionsClient, points qdrantclient.PointsClient, name, apiKey string) *Index {
	return &Index{
		collections: collections,
		points:      points,
		name:        name,
		apiKey:      apiKey,
	}
}

// Close は接続を閉じます
func (i *Index) Close() error {
	if i.conn == nil {
		return nil
	}
	return i.conn.Close()
}

func (i *Index) withAuth(ctx context.Context) context.Context {
	if i.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", i.apiKey)
}

// Ensure はコレクションを作成するか、既存の次元数と一致するか確認します
func (i *Index) Ensure(ctx context.Context, spec domain.Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	i.name = spec.Name

	dim, _, err := i.lookup(ctx)
	switch {
	case errors.Is(err, domain.ErrIndexNotFound):
		_, err := i.collections.Create(i.withAuth(ctx), &qdrantclient.CreateCollection{
			CollectionName: i.name,
			VectorsConfig: &qdrantclient.VectorsConfig{
				Config: &qdrantclient.VectorsConfig_Params{
					Params: &qdrantclient.VectorParams{
						Size:     uint64(spec.Dimension),
						Distance: qdrantclient.Distance_Cosine,
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create collection %s: %w", i.name, classify("qdrant.ensure", err))
		}
		return nil
	case err != nil:
		return err
	case dim != spec.Dimension:
		return failure.DimensionMismatch("qdrant.ensure", dim, spec.Dimension)
	}
	return nil
}

// Drop はコレクションを削除します
func (i *Index) Drop(ctx context.Context) (bool, error) {
	exists, err := i.collections.CollectionExists(i.withAuth(ctx), &qdrantclient.CollectionExistsRequest{
		CollectionName: i.name,
	})
	if err != nil {
		return false, fmt.Errorf("failed to check collection %s: %w", i.name, classify("qdrant.drop", err))
	}
	if !exists.GetResult().GetExists() {
		return false, nil
	}

	resp, err := i.collections.Delete(i.withAuth(ctx), &qdrantclient.DeleteCollection{
		CollectionName: i.name,
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete collection %s: %w", i.name, classify("qdrant.drop", err))
	}
	return resp.GetResult(), nil
}

// Upsert はポイントを挿入または上書きします（書き込み完了まで待機）
func (i *Index) Upsert(ctx context.Context, records []domain.Record) (int, error) {
	dim, _, err := i.lookup(ctx)
	if err != nil {
		return 0, err
	}
	if err := domain.ValidateRecords("qdrant.upsert", records, dim); err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	points := make([]*qdrantclient.PointStruct, 0, len(records))
	for _, r := range records {
		points = append(points, &qdrantclient.PointStruct{
			Id: &qdrantclient.PointId{
				PointIdOptions: &qdrantclient.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &qdrantclient.Vectors{
				VectorsOptions: &qdrantclient.Vectors_Vector{
					Vector: &qdrantclient.Vector{Data: r.Vector},
				},
			},
			Payload: toPayload(r.Metadata),
		})
	}

	wait := true
	if _, err := i.points.Upsert(i.withAuth(ctx), &qdrantclient.UpsertPoints{
		CollectionName: i.name,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return 0, fmt.Errorf("failed to upsert points: %w", classify("qdrant.upsert", err))
	}
	return len(records), nil
}

// Query は類似度の高い順に最大 k 件を返します
func (i *Index) Query(ctx context.Context, vector []float32, k int, filter *domain.Filter) ([]domain.Result, error) {
	dim, _, err := i.lookup(ctx)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateQuery("qdrant.query", vector, dim); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	resp, err := i.points.Search(i.withAuth(ctx), &qdrantclient.SearchPoints{
		CollectionName: i.name,
		Vector:         vector,
		Limit:          uint64(k),
		Filter:         toFilter(filter),
		WithPayload: &qdrantclient.WithPayloadSelector{
			SelectorOptions: &qdrantclient.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search points: %w", classify("qdrant.query", err))
	}

	results := make([]domain.Result, 0, len(resp.GetResult()))
	for _, point := range resp.GetResult() {
		results = append(results, domain.ResultFrom(
			point.GetId().GetUuid(),
			fromPayload(point.GetPayload()),
			float64(point.GetScore()),
		))
	}
	return results, nil
}

// Describe はコレクションの状態を返します
func (i *Index) Describe(ctx context.Context) (domain.Stats, error) {
	stats := domain.Stats{Name: i.name, Backend: backendName}

	dim, metric, err := i.lookup(ctx)
	if err != nil {
		return stats, err
	}

	exact := true
	resp, err := i.points.Count(i.withAuth(ctx), &qdrantclient.CountPoints{
		CollectionName: i.name,
		Exact:          &exact,
	})
	if err != nil {
		return stats, fmt.Errorf("failed to count points: %w", classify("qdrant.describe", err))
	}

	stats.RecordCount = int(resp.GetResult().GetCount())
	stats.Dimension = dim
	stats.Metric = metric
	return stats, nil
}

// lookup はコレクションの次元数と尺度を取得します
func (i *Index) lookup(ctx context.Context) (int, domain.Metric, error) {
	resp, err := i.collections.Get(i.withAuth(ctx), &qdrantclient.GetCollectionInfoRequest{
		CollectionName: i.name,
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return 0, "", domain.ErrIndexNotFound
		}
		return 0, "", fmt.Errorf("failed to get collection %s: %w", i.name, classify("qdrant.lookup", err))
	}

	params := resp.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return 0, "", fmt.Errorf("collection %s has no single unnamed vector config", i.name)
	}

	metric := domain.Metric(params.GetDistance().String())
	if params.GetDistance() == qdrantclient.Distance_Cosine {
		metric = domain.MetricCosine
	}
	return int(params.GetSize()), metric, nil
}

// classify は到達不能を示す gRPC ステータスを IndexUnavailable に変換します
func classify(op string, err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return failure.IndexUnavailable(op, err)
	}
	return err
}

func toPayload(md map[string]string) map[string]*qdrantclient.Value {
	payload := make(map[string]*qdrantclient.Value, len(md))
	for k, v := range md {
		payload[k] = &qdrantclient.Value{Kind: &qdrantclient.Value_StringValue{StringValue: v}}
	}
	return payload
}

func fromPayload(payload map[string]*qdrantclient.Value) map[string]string {
	md := make(map[string]string, len(payload))
	for k, v := range payload {
		md[k] = v.GetStringValue()
	}
	return md
}

func toFilter(filter *domain.Filter) *qdrantclient.Filter {
	if filter.Empty() {
		return nil
	}
	must := make([]*qdrantclient.Condition, 0, len(filter.Equals))
	for k, v := range filter.Equals {
		must = append(must, &qdrantclient.Condition{
			ConditionOneOf: &qdrantclient.Condition_Field{
				Field: &qdrantclient.FieldCondition{
					Key: k,
					Match: &qdrantclient.Match{
						MatchValue: &qdrantclient.Match_Keyword{Keyword: v},
					},
				},
			},
		})
	}
	return &qdrantclient.Filter{Must: must}
}

var _ domain.Store = (*Index)(nil)
