// Package integration provides end-to-end tests against a real SQLite knowledge base.
package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kbserve/internal/answer"
	"github.com/hyperjump/kbserve/internal/config"
	"github.com/hyperjump/kbserve/internal/health"
	"github.com/hyperjump/kbserve/internal/models"
	"github.com/hyperjump/kbserve/internal/server"
	"github.com/hyperjump/kbserve/internal/storage"
	"go.uber.org/zap"
)

func TestIntegration_HealthAndQuery(t *testing.T) {
	dir := t.TempDir()
	const keyVar = "KBSERVE_INTEGRATION_KEY"
	t.Cleanup(func() { _ = os.Unsetenv(keyVar) })
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(keyVar+"=sk-test\n"), 0600); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(dir, "config.yaml")
	content := "storage:\n  database_path: \"./knowledge_base.db\"\nauth:\n  api_key_env: \"" + keyVar + "\"\n"
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatal(err)
	}

	srv := server.NewServer(
		health.NewReporter(health.SQLiteOpener(cfg.Storage.DatabasePath), cfg.APIKeySet(),
			health.WithTimeout(cfg.Health.Timeout)),
		answer.NewEchoAnswerer(),
		&cfg.Server,
		zap.NewNop(),
	)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	getHealth := func() map[string]interface{} {
		t.Helper()
		resp, err := http.Get(ts.URL + "/health")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("health status code = %d", resp.StatusCode)
		}
		var out map[string]interface{}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		return out
	}

	// Before ingestion the database file does not exist.
	out := getHealth()
	if out["status"] != "unhealthy" || out["error"] == "" || out["api_key_set"] != true {
		t.Errorf("pre-ingestion health = %v", out)
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	out = getHealth()
	if out["status"] != "healthy" || out["discourse_chunks"] != float64(0) || out["markdown_embeddings"] != float64(0) {
		t.Errorf("empty store health = %v", out)
	}

	ctx := context.Background()
	if err := store.BatchInsertChunks(ctx, []*models.Chunk{
		{Collection: models.CollectionDiscourse, Title: "GA5", Content: "post", Embedding: []float32{0.1}},
		{Collection: models.CollectionDiscourse, Title: "GA5", Content: "reply"},
		{Collection: models.CollectionMarkdown, Title: "Docker", Content: "section", Embedding: []float32{0.2}},
	}); err != nil {
		t.Fatal(err)
	}
	out = getHealth()
	want := map[string]float64{
		"discourse_chunks": 2, "markdown_chunks": 1, "discourse_embeddings": 1, "markdown_embeddings": 1,
	}
	for k, v := range want {
		if out[k] != v {
			t.Errorf("%s = %v, want %v", k, out[k], v)
		}
	}

	resp, err := http.Post(ts.URL+"/query", "application/json", strings.NewReader(`{"question":"How do I submit GA5?"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var qr models.QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		t.Fatal(err)
	}
	if qr.Answer != "Received question: How do I submit GA5?" || qr.Links == nil {
		t.Errorf("query response = %+v", qr)
	}
}
