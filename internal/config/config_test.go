package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, "project_root: /repo\nembedding_provider: ollama\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.QdrantURL != "localhost:6334" {
		t.Errorf("expected default qdrant_url, got %q", cfg.QdrantURL)
	}
	if cfg.Indexing.ChunkSize != 1000 || cfg.Indexing.ChunkOverlap != 150 {
		t.Errorf("expected default chunk sizing, got %+v", cfg.Indexing)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_QDRANT_URL", "qdrant.internal:6334")
	path := writeConfig(t, "project_root: /repo\nembedding_provider: ollama\nqdrant_url: ${TEST_QDRANT_URL}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.QdrantURL != "qdrant.internal:6334" {
		t.Errorf("expected env var expansion, got %q", cfg.QdrantURL)
	}
}

func TestLoad_MissingProjectRoot(t *testing.T) {
	path := writeConfig(t, "embedding_provider: ollama\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for missing project_root")
	}
}

func TestLoad_OpenAIRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	path := writeConfig(t, "project_root: /repo\nembedding_provider: openai\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for missing openai_key with no OPENAI_API_KEY env var")
	}
}

func TestLoad_UnknownProviderRejected(t *testing.T) {
	path := writeConfig(t, "project_root: /repo\nembedding_provider: madeup\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for unrecognized embedding_provider")
	}
}

func TestLoad_IgnoresUnknownFields(t *testing.T) {
	path := writeConfig(t, "project_root: /repo\nembedding_provider: ollama\nsome_future_field: true\n")
	if _, err := Load(path); err != nil {
		t.Errorf("expected unknown fields to be ignored, got %v", err)
	}
}

func TestValidate_RejectsOverlapNotSmallerThanChunkSize(t *testing.T) {
	cfg := Default()
	cfg.ProjectRoot = "/repo"
	cfg.Indexing.ChunkSize = 100
	cfg.Indexing.ChunkOverlap = 100
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error when overlap >= chunk size")
	}
}

func TestDefaultIndexingConfig_WorkerCountBounded(t *testing.T) {
	cfg := DefaultIndexingConfig()
	if cfg.MaxWorkers < 3 || cfg.MaxWorkers > 8 {
		t.Errorf("expected MaxWorkers in [3,8], got %d", cfg.MaxWorkers)
	}
}
