package e2e

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/cli"
	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/fixtures"
	"github.com/hyperjump/ruiji/internal/keyword"
	"github.com/hyperjump/ruiji/internal/llm"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/provider"
	"github.com/hyperjump/ruiji/internal/server"
	"github.com/hyperjump/ruiji/internal/storage"
	"github.com/hyperjump/ruiji/internal/vectorsearch"
)

const (
	e2eRecordType  = "articles"
	e2eCorpusSize  = 60
	e2eSearchLimit = 10
)

type e2eEnv struct {
	client *cli.Client
	gen    *llm.StaticGenerator
}

// startServer runs the full HTTP stack with a bleve-backed keyword provider,
// so rankings are deterministic without a real embedding model.
func startServer(t *testing.T) *e2eEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = filepath.Join(dir, "records.db")

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	idx, err := keyword.NewBleveIndex("")
	if err != nil {
		t.Fatal(err)
	}
	gen := llm.NewStaticGenerator("Feed it ", "twice a day.")
	p := provider.NewKeywordProvider(idx, 0, provider.Options{Generator: gen})

	reg := vectorsearch.NewRegistry(store, zap.NewNop())
	if _, err := reg.Declare(context.Background(), e2eRecordType, p); err != nil {
		t.Fatal(err)
	}
	srv := server.NewServer(reg, store, fixtures.NewImporter(reg, zap.NewNop()), cfg, zap.NewNop())
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		ts.Close()
		_ = reg.Close()
		_ = store.Close()
	})
	return &e2eEnv{client: cli.NewClient(ts.URL), gen: gen}
}

func runQueryCases(t *testing.T, client *cli.Client, corpus *Corpus) {
	t.Helper()
	ctx := context.Background()
	for _, tc := range corpus.TestCases {
		t.Run(tc.Description, func(t *testing.T) {
			resp, err := client.Search(ctx, e2eRecordType, models.SearchRequest{Query: tc.Query, Limit: e2eSearchLimit})
			if err != nil {
				t.Fatalf("search failed: %v", err)
			}
			got := recordIDs(resp.Records)
			if !containsAny(got, tc.ExpectedIDs) {
				t.Errorf("query %q: expected one of %v in results, got %v", tc.Query, tc.ExpectedIDs, got)
			}
		})
	}
}

func TestE2E_SaveAndSearch(t *testing.T) {
	env := startServer(t)
	corpus := BuildCorpus(e2eCorpusSize)
	ctx := context.Background()

	for _, in := range corpus.RecordInputs(e2eRecordType) {
		if _, err := env.client.Save(ctx, e2eRecordType, in); err != nil {
			t.Fatalf("save %s: %v", in.ID, err)
		}
	}
	t.Logf("saved %d records; running %d query test cases", corpus.TotalRecords, corpus.TotalQueries)
	runQueryCases(t, env.client, corpus)

	status, err := env.client.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := status.Types[e2eRecordType].Records; got != int64(corpus.TotalRecords) {
		t.Errorf("status records = %d, want %d", got, corpus.TotalRecords)
	}
}

func TestE2E_ImportAndSearch(t *testing.T) {
	env := startServer(t)
	corpus := BuildCorpus(e2eCorpusSize)
	dir := filepath.Join(t.TempDir(), "fixtures")
	paths, err := WriteFixtureFiles(dir, e2eRecordType, corpus, 15)
	if err != nil {
		t.Fatal(err)
	}

	report, err := env.client.Import(context.Background(), dir, true)
	if err != nil {
		t.Fatal(err)
	}
	if report["files"] != float64(len(paths)) || report["saved"] != float64(corpus.TotalRecords) {
		t.Fatalf("import report: %v", report)
	}
	runQueryCases(t, env.client, corpus)
}

func TestE2E_ReembedKeepsResults(t *testing.T) {
	env := startServer(t)
	corpus := BuildCorpus(len(topics))
	ctx := context.Background()
	for _, in := range corpus.RecordInputs(e2eRecordType) {
		if _, err := env.client.Save(ctx, e2eRecordType, in); err != nil {
			t.Fatal(err)
		}
	}

	report, err := env.client.Reembed(ctx, e2eRecordType)
	if err != nil {
		t.Fatal(err)
	}
	if report["processed"] != float64(corpus.TotalRecords) || report["failed"] != float64(0) {
		t.Fatalf("reembed report: %v", report)
	}
	runQueryCases(t, env.client, corpus)
}

func TestE2E_AskStreamsAnswer(t *testing.T) {
	env := startServer(t)
	corpus := BuildCorpus(len(topics))
	ctx := context.Background()
	for _, in := range corpus.RecordInputs(e2eRecordType) {
		if _, err := env.client.Save(ctx, e2eRecordType, in); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer
	err := env.client.AskStream(ctx, e2eRecordType, models.AskRequest{Question: "how often do I feed a wild yeast starter", K: 2}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if buf.String() != "Feed it twice a day." {
		t.Errorf("streamed answer: %q", buf.String())
	}
	if len(env.gen.Requests) != 1 {
		t.Fatalf("generator requests: %d", len(env.gen.Requests))
	}
	if prompt := env.gen.Requests[0].Prompt; !strings.Contains(prompt, "equal weights of flour") {
		t.Errorf("prompt should carry the matching record, got:\n%s", prompt)
	}
}

func TestE2E_UnknownTypeIsNotFound(t *testing.T) {
	env := startServer(t)
	_, err := env.client.Search(context.Background(), "books", models.SearchRequest{Query: "anything"})
	apiErr, ok := err.(*cli.APIError)
	if !ok || apiErr.Status != 404 {
		t.Errorf("expected 404 APIError, got %v", err)
	}
}

func recordIDs(recs []*models.Record) []string {
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	return ids
}

func containsAny(got []string, expected []string) bool {
	set := make(map[string]bool, len(got))
	for _, id := range got {
		set[id] = true
	}
	for _, id := range expected {
		if set[id] {
			return true
		}
	}
	return false
}
