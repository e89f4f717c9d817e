package announce

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// readDocument reads and decodes the client config document
func readDocument(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read document: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Failed to decode document: %v", err)
	}
	return doc
}

// TestPublishCreatesDocument verifies first publication creates the file
func TestPublishCreatesDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clients.json")
	p := New(path, nil)

	if err := p.Publish("clock", "http://127.0.0.1:8100/sse", ModeMergeWrite); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	doc := readDocument(t, path)
	servers, ok := doc[Namespace].(map[string]any)
	if !ok {
		t.Fatalf("Expected %s container, got %v", Namespace, doc)
	}
	entry, ok := servers["clock"].(map[string]any)
	if !ok || entry["url"] != "http://127.0.0.1:8100/sse" {
		t.Errorf("Expected clock entry with url, got %v", servers["clock"])
	}
}

// TestPublishPreservesUnrelatedContent verifies merge-write touches
// only this service's own entry
func TestPublishPreservesUnrelatedContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clients.json")
	existing := `{
		"theme": "dark",
		"mcpServers": {
			"weather": {"url": "http://127.0.0.1:9000/sse", "note": "keep me"}
		}
	}`
	if err := os.WriteFile(path, []byte(existing), 0644); err != nil {
		t.Fatalf("Failed to seed document: %v", err)
	}

	p := New(path, nil)
	if err := p.Publish("clock", "http://127.0.0.1:8100/sse", ModeMergeWrite); err != nil {
		t.Fatalf("First publish returned error: %v", err)
	}
	if err := p.Publish("calendar", "http://127.0.0.1:8101/sse", ModeMergeWrite); err != nil {
		t.Fatalf("Second publish returned error: %v", err)
	}

	doc := readDocument(t, path)
	if doc["theme"] != "dark" {
		t.Error("Expected unrelated top-level key preserved")
	}

	servers := doc[Namespace].(map[string]any)
	for _, name := range []string{"weather", "clock", "calendar"} {
		if _, ok := servers[name]; !ok {
			t.Errorf("Expected entry %s present, got %v", name, servers)
		}
	}
	weather := servers["weather"].(map[string]any)
	if weather["note"] != "keep me" {
		t.Error("Expected pre-existing entry left untouched")
	}
}

// TestPublishIdempotent verifies republishing the same service upserts
func TestPublishIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clients.json")
	p := New(path, nil)

	if err := p.Publish("clock", "http://127.0.0.1:8100/sse", ModeMergeWrite); err != nil {
		t.Fatalf("First publish returned error: %v", err)
	}
	if err := p.Publish("clock", "http://127.0.0.1:8200/sse", ModeMergeWrite); err != nil {
		t.Fatalf("Second publish returned error: %v", err)
	}

	servers := readDocument(t, path)[Namespace].(map[string]any)
	if len(servers) != 1 {
		t.Fatalf("Expected a single entry, got %v", servers)
	}
	entry := servers["clock"].(map[string]any)
	if entry["url"] != "http://127.0.0.1:8200/sse" {
		t.Errorf("Expected updated url, got %v", entry["url"])
	}
}

// TestPublishCorruptDocument verifies a corrupt document is treated as empty
func TestPublishCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clients.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to seed corrupt document: %v", err)
	}

	p := New(path, nil)
	if err := p.Publish("clock", "http://127.0.0.1:8100/sse", ModeMergeWrite); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	servers := readDocument(t, path)[Namespace].(map[string]any)
	if _, ok := servers["clock"]; !ok {
		t.Error("Expected clock entry after recovering from corrupt document")
	}
}

// TestPublishPrintMode verifies print mode emits the entry and touches no file
func TestPublishPrintMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clients.json")
	p := New(path, nil)

	var out bytes.Buffer
	p.Out = &out

	if err := p.Publish("clock", "http://127.0.0.1:8100/sse", ModePrint); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	if !strings.Contains(out.String(), "http://127.0.0.1:8100/sse") {
		t.Errorf("Expected printed entry to contain the url, got: %s", out.String())
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected print mode to leave the document untouched")
	}
}

// TestPublishUnknownMode verifies an invalid mode is rejected
func TestPublishUnknownMode(t *testing.T) {
	p := New(filepath.Join(t.TempDir(), "clients.json"), nil)

	if err := p.Publish("clock", "http://x/sse", Mode("bogus")); err == nil {
		t.Fatal("Expected error for unknown mode, got nil")
	}
}
