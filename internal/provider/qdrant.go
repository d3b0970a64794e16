package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/models"
)

// pointNamespace derives Qdrant point UUIDs from record IDs, which Qdrant
// would otherwise reject unless they are integers or UUIDs.
var pointNamespace = uuid.MustParse("6f1c2d8e-4b3a-5e9f-8a7d-2c1b0e9f3a4d")

const (
	payloadRecordID = "record_id"
	payloadContent  = "content"
)

// QdrantProvider stores record embeddings in a Qdrant collection named
// prefix + record type.
type QdrantProvider struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	embedder    embedding.Embedder
	prefix      string
	opts        Options
	log         *zap.Logger

	mu         sync.RWMutex
	collection string
}

// NewQdrantProvider connects to Qdrant at the given gRPC address.
func NewQdrantProvider(addr, prefix string, embedder embedding.Embedder, opts Options) (*QdrantProvider, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial qdrant %s: %w", addr, err)
	}
	p := NewQdrantProviderWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), prefix, embedder, opts)
	p.conn = conn
	return p, nil
}

// NewQdrantProviderWithClients builds a provider over existing gRPC clients.
func NewQdrantProviderWithClients(points pb.PointsClient, collections pb.CollectionsClient, prefix string, embedder embedding.Embedder, opts Options) *QdrantProvider {
	return &QdrantProvider{
		points:      points,
		collections: collections,
		embedder:    embedder,
		prefix:      prefix,
		opts:        opts,
		log:         opts.logger("qdrant"),
	}
}

// PointID returns the Qdrant point UUID for a record ID.
func PointID(recordID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(recordID)).String()
}

// BindRecordType creates the collection for recordType if it does not exist.
func (p *QdrantProvider) BindRecordType(ctx context.Context, recordType string) error {
	if err := ValidateRecordType(recordType); err != nil {
		return err
	}
	name := p.prefix + recordType

	list, err := p.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	exists := false
	for _, c := range list.GetCollections() {
		if c.GetName() == name {
			exists = true
			break
		}
	}
	if !exists {
		_, err = p.collections.Create(ctx, &pb.CreateCollection{
			CollectionName: name,
			VectorsConfig: &pb.VectorsConfig{
				Config: &pb.VectorsConfig_Params{
					Params: &pb.VectorParams{
						Size:     uint64(p.embedder.Dimensions()),
						Distance: pb.Distance_Cosine,
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("create collection %s: %w", name, err)
		}
		p.log.Info("created collection", zap.String("collection", name), zap.Int("dimensions", p.embedder.Dimensions()))
	}

	p.mu.Lock()
	p.collection = name
	p.mu.Unlock()
	return nil
}

func (p *QdrantProvider) bound() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.collection == "" {
		return "", ErrNotBound
	}
	return p.collection, nil
}

// AddTexts embeds texts and upserts them as points.
func (p *QdrantProvider) AddTexts(ctx context.Context, texts, ids []string) error {
	return p.upsert(ctx, texts, ids)
}

// UpdateTexts re-embeds texts and overwrites their points.
func (p *QdrantProvider) UpdateTexts(ctx context.Context, texts, ids []string) error {
	return p.upsert(ctx, texts, ids)
}

func (p *QdrantProvider) upsert(ctx context.Context, texts, ids []string) error {
	collection, err := p.bound()
	if err != nil {
		return err
	}
	if err := checkPairs(texts, ids); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	vecs, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}

	points := make([]*pb.PointStruct, len(ids))
	for i, id := range ids {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(id)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vecs[i]},
				},
			},
			Payload: map[string]*pb.Value{
				payloadRecordID: {Kind: &pb.Value_StringValue{StringValue: id}},
				payloadContent:  {Kind: &pb.Value_StringValue{StringValue: texts[i]}},
			},
		}
	}

	wait := true
	_, err = p.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert %d points: %w", len(points), err)
	}
	p.log.Debug("upserted", zap.String("collection", collection), zap.Int("count", len(points)))
	return nil
}

// RemoveTexts deletes the points of ids.
func (p *QdrantProvider) RemoveTexts(ctx context.Context, ids []string) error {
	collection, err := p.bound()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(id)}}
	}
	wait := true
	_, err = p.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete %d points: %w", len(ids), err)
	}
	return nil
}

func (p *QdrantProvider) search(ctx context.Context, query string, k int) ([]passage, error) {
	collection, err := p.bound()
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	qv, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	resp, err := p.points.Search(ctx, &pb.SearchPoints{
		CollectionName: collection,
		Vector:         qv,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	out := make([]passage, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		payload := r.GetPayload()
		id := payload[payloadRecordID].GetStringValue()
		// cosine score is similarity in [-1, 1]
		out = append(out, passage{
			hit:  models.NewHit(id, 1-float64(r.GetScore())),
			text: payload[payloadContent].GetStringValue(),
		})
	}
	return out, nil
}

// SimilaritySearch returns the k nearest records. Points without a record_id
// payload come back as hits with an empty ID.
func (p *QdrantProvider) SimilaritySearch(ctx context.Context, query string, k int) ([]models.Hit, error) {
	passages, err := p.search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	hits := make([]models.Hit, len(passages))
	for i, ps := range passages {
		hits[i] = ps.hit
	}
	return hits, nil
}

// Ask answers question from the k nearest record texts.
func (p *QdrantProvider) Ask(ctx context.Context, question string, k int, onChunk ChunkFunc) (*Completion, error) {
	return answer(ctx, p.opts, p.log, p.search, question, k, onChunk)
}

// Name returns "qdrant".
func (p *QdrantProvider) Name() string {
	return "qdrant"
}

// Close closes the gRPC connection if the provider opened it.
func (p *QdrantProvider) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
