package provider

import (
	"context"
	"errors"
	"math"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/llm"
)

type fakePoints struct {
	pb.PointsClient
	upserts    []*pb.UpsertPoints
	upsertErr  error
	searches   []*pb.SearchPoints
	searchResp *pb.SearchResponse
	searchErr  error
	deletes    []*pb.DeletePoints
}

func (f *fakePoints) Delete(_ context.Context, in *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.deletes = append(f.deletes, in)
	return &pb.PointsOperationResponse{}, nil
}

func (f *fakePoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.upserts = append(f.upserts, in)
	return &pb.PointsOperationResponse{}, f.upsertErr
}

func (f *fakePoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	f.searches = append(f.searches, in)
	return f.searchResp, f.searchErr
}

type fakeCollections struct {
	pb.CollectionsClient
	existing []string
	created  []*pb.CreateCollection
	listErr  error
}

func (f *fakeCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	resp := &pb.ListCollectionsResponse{}
	for _, name := range f.existing {
		resp.Collections = append(resp.Collections, &pb.CollectionDescription{Name: name})
	}
	return resp, nil
}

func (f *fakeCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	f.created = append(f.created, in)
	f.existing = append(f.existing, in.CollectionName)
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func TestQdrantProvider_BindCreatesCollectionOnce(t *testing.T) {
	ctx := context.Background()
	cols := &fakeCollections{}
	p := NewQdrantProviderWithClients(&fakePoints{}, cols, "ruiji_", embedding.NewMockEmbedder(16), Options{})

	if err := p.BindRecordType(ctx, "recipes"); err != nil {
		t.Fatal(err)
	}
	if len(cols.created) != 1 {
		t.Fatalf("expected one create, got %d", len(cols.created))
	}
	c := cols.created[0]
	if c.CollectionName != "ruiji_recipes" {
		t.Errorf("collection name: %s", c.CollectionName)
	}
	params := c.GetVectorsConfig().GetParams()
	if params.GetSize() != 16 || params.GetDistance() != pb.Distance_Cosine {
		t.Errorf("vector params: %+v", params)
	}

	if err := p.BindRecordType(ctx, "recipes"); err != nil {
		t.Fatal(err)
	}
	if len(cols.created) != 1 {
		t.Errorf("existing collection should not be recreated")
	}
}

func TestQdrantProvider_BindErrors(t *testing.T) {
	ctx := context.Background()
	rpcErr := errors.New("unavailable")
	p := NewQdrantProviderWithClients(&fakePoints{}, &fakeCollections{listErr: rpcErr}, "", embedding.NewMockEmbedder(16), Options{})
	if err := p.BindRecordType(ctx, "recipes"); !errors.Is(err, rpcErr) {
		t.Errorf("expected list error, got %v", err)
	}
	if err := p.BindRecordType(ctx, "bad name"); err == nil {
		t.Error("expected invalid name error")
	}
}

func TestQdrantProvider_NotBound(t *testing.T) {
	ctx := context.Background()
	p := NewQdrantProviderWithClients(&fakePoints{}, &fakeCollections{}, "", embedding.NewMockEmbedder(16), Options{})
	if err := p.AddTexts(ctx, []string{"a"}, []string{"1"}); !errors.Is(err, ErrNotBound) {
		t.Errorf("AddTexts: expected ErrNotBound, got %v", err)
	}
	if _, err := p.SimilaritySearch(ctx, "a", 1); !errors.Is(err, ErrNotBound) {
		t.Errorf("SimilaritySearch: expected ErrNotBound, got %v", err)
	}
}

func TestQdrantProvider_Upsert(t *testing.T) {
	ctx := context.Background()
	pts := &fakePoints{}
	p := NewQdrantProviderWithClients(pts, &fakeCollections{}, "ruiji_", embedding.NewMockEmbedder(16), Options{})
	_ = p.BindRecordType(ctx, "recipes")

	if err := p.AddTexts(ctx, recipeTexts[:2], recipeIDs[:2]); err != nil {
		t.Fatal(err)
	}
	if len(pts.upserts) != 1 {
		t.Fatalf("upsert calls: %d", len(pts.upserts))
	}
	req := pts.upserts[0]
	if req.CollectionName != "ruiji_recipes" || !req.GetWait() {
		t.Errorf("request: %s wait=%v", req.CollectionName, req.GetWait())
	}
	if len(req.Points) != 2 {
		t.Fatalf("points: %d", len(req.Points))
	}
	pt := req.Points[0]
	if pt.GetId().GetUuid() != PointID("curry") {
		t.Errorf("point id: %s", pt.GetId().GetUuid())
	}
	if got := pt.GetPayload()[payloadRecordID].GetStringValue(); got != "curry" {
		t.Errorf("record_id payload: %s", got)
	}
	if got := pt.GetPayload()[payloadContent].GetStringValue(); got != recipeTexts[0] {
		t.Errorf("content payload: %s", got)
	}
	if len(pt.GetVectors().GetVector().GetData()) != 16 {
		t.Errorf("vector size: %d", len(pt.GetVectors().GetVector().GetData()))
	}

	pts.upsertErr = errors.New("disk full")
	if err := p.UpdateTexts(ctx, []string{"x"}, []string{"curry"}); !errors.Is(err, pts.upsertErr) {
		t.Errorf("expected upsert error, got %v", err)
	}
}

func TestQdrantProvider_PointIDStable(t *testing.T) {
	if PointID("abc") != PointID("abc") {
		t.Error("point id should be deterministic")
	}
	if PointID("abc") == PointID("abd") {
		t.Error("different records should map to different points")
	}
}

func TestQdrantProvider_SearchAndAsk(t *testing.T) {
	ctx := context.Background()
	pts := &fakePoints{searchResp: &pb.SearchResponse{Result: []*pb.ScoredPoint{
		{Score: 0.9, Payload: map[string]*pb.Value{payloadRecordID: stringValue("curry"), payloadContent: stringValue("green curry")}},
		{Score: -0.5, Payload: map[string]*pb.Value{payloadRecordID: stringValue("soup"), payloadContent: stringValue("onion soup")}},
	}}}
	gen := llm.NewStaticGenerator("coconut")
	p := NewQdrantProviderWithClients(pts, &fakeCollections{}, "ruiji_", embedding.NewMockEmbedder(16), Options{Generator: gen})
	_ = p.BindRecordType(ctx, "recipes")

	hits, err := p.SimilaritySearch(ctx, "curry", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 || hits[0].ID != "curry" || hits[1].ID != "soup" {
		t.Fatalf("hits: %+v", hits)
	}
	if math.Abs(*hits[0].Distance-0.1) > 1e-6 || math.Abs(*hits[1].Distance-1.5) > 1e-6 {
		t.Errorf("distances: %v %v", *hits[0].Distance, *hits[1].Distance)
	}
	req := pts.searches[0]
	if req.Limit != 2 || !req.GetWithPayload().GetEnable() || len(req.Vector) != 16 {
		t.Errorf("search request: limit=%d vector=%d", req.Limit, len(req.Vector))
	}

	c, err := p.Ask(ctx, "curry?", 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.Text != "coconut" || len(c.Sources) != 2 {
		t.Errorf("completion: %+v", c)
	}
}

func TestQdrantProvider_CloseWithoutConn(t *testing.T) {
	p := NewQdrantProviderWithClients(&fakePoints{}, &fakeCollections{}, "", embedding.NewMockEmbedder(16), Options{})
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if p.Name() != "qdrant" {
		t.Errorf("name: %s", p.Name())
	}
}

func TestQdrantProvider_RemoveTexts(t *testing.T) {
	ctx := context.Background()
	pts := &fakePoints{}
	p := NewQdrantProviderWithClients(pts, &fakeCollections{}, "ruiji_", embedding.NewMockEmbedder(16), Options{})
	if err := p.RemoveTexts(ctx, []string{"curry"}); !errors.Is(err, ErrNotBound) {
		t.Errorf("unbound: expected ErrNotBound, got %v", err)
	}
	_ = p.BindRecordType(ctx, "recipes")

	if err := p.RemoveTexts(ctx, []string{"curry", "soup"}); err != nil {
		t.Fatal(err)
	}
	if len(pts.deletes) != 1 {
		t.Fatalf("delete calls: %d", len(pts.deletes))
	}
	req := pts.deletes[0]
	if req.CollectionName != "ruiji_recipes" || !req.GetWait() {
		t.Errorf("request: %s wait=%v", req.CollectionName, req.GetWait())
	}
	ids := req.GetPoints().GetPoints().GetIds()
	if len(ids) != 2 || ids[0].GetUuid() != PointID("curry") || ids[1].GetUuid() != PointID("soup") {
		t.Errorf("point ids: %v", ids)
	}
}
