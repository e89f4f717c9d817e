package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/toolhost/toolhost/internal/errortypes"
)

// writeSchema writes a schema document to a temp path and returns the path
func writeSchema(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tools.json")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("Failed to write schema document: %v", err)
	}
	return path
}

// TestLoadJoinsHandlersAndSchema verifies the basic join and rename
func TestLoadJoinsHandlersAndSchema(t *testing.T) {
	path := writeSchema(t, `[
		{"name": "get_time", "description": "current time", "parameters": {"type": "object"}, "category": "time"},
		{"name": "wait", "parameters": {"type": "object", "properties": {"seconds": {"type": "number"}}}}
	]`)
	handlers := map[string]string{
		"get_time": "clock.get_time",
		"wait":     "clock.wait",
	}

	cat, err := Load("clock", handlers, path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cat.Len() != 2 {
		t.Fatalf("Expected 2 tools, got %d", cat.Len())
	}

	// Document order is preserved
	specs := cat.Specs()
	if specs[0].Name != "get_time" || specs[1].Name != "wait" {
		t.Errorf("Expected document order [get_time wait], got [%s %s]", specs[0].Name, specs[1].Name)
	}

	spec, ok := cat.Lookup("get_time")
	if !ok {
		t.Fatal("Expected get_time in catalog")
	}
	if spec.HandlerRef != "clock.get_time" {
		t.Errorf("Expected handler ref clock.get_time, got %s", spec.HandlerRef)
	}
	if spec.Description != "current time" {
		t.Errorf("Expected description 'current time', got %q", spec.Description)
	}

	// "parameters" is renamed to the wire key, other keys survive
	if _, ok := spec.Fields["parameters"]; ok {
		t.Error("Expected parameters key to be renamed")
	}
	if string(spec.Fields["inputSchema"]) != `{"type": "object"}` {
		t.Errorf("Expected inputSchema carried verbatim, got %s", spec.Fields["inputSchema"])
	}
	if string(spec.Fields["category"]) != `"time"` {
		t.Errorf("Expected unrelated category key preserved, got %s", spec.Fields["category"])
	}
}

// TestLoadMissingSchemaFile verifies the error is a ConfigError with a
// regeneration hint
func TestLoadMissingSchemaFile(t *testing.T) {
	handlers := map[string]string{"get_time": "clock.get_time"}

	_, err := Load("clock", handlers, filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Fatal("Expected error for missing schema file, got nil")
	}
	if !errortypes.IsConfigError(err) {
		t.Errorf("Expected a config error, got %v", err)
	}
	if !strings.Contains(err.Error(), "schema-gen") {
		t.Errorf("Expected a regeneration hint in error, got: %v", err)
	}
}

// TestLoadNonArrayTopLevel verifies a non-list document is rejected
func TestLoadNonArrayTopLevel(t *testing.T) {
	path := writeSchema(t, `{"name": "get_time", "parameters": {}}`)
	handlers := map[string]string{"get_time": "clock.get_time"}

	_, err := Load("clock", handlers, path)
	if err == nil {
		t.Fatal("Expected error for non-array schema document, got nil")
	}
	if !errortypes.IsConfigError(err) {
		t.Errorf("Expected a config error, got %v", err)
	}
}

// TestLoadMissingParameters verifies the error names the offending tool
func TestLoadMissingParameters(t *testing.T) {
	path := writeSchema(t, `[
		{"name": "get_time", "parameters": {}},
		{"name": "broken", "description": "no parameters here"}
	]`)
	handlers := map[string]string{
		"get_time": "clock.get_time",
		"broken":   "clock.broken",
	}

	_, err := Load("clock", handlers, path)
	if err == nil {
		t.Fatal("Expected error for missing parameters, got nil")
	}
	if !errortypes.IsConfigError(err) {
		t.Errorf("Expected a config error, got %v", err)
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("Expected error to name the tool, got: %v", err)
	}
}

// TestLoadHandlerWithoutSchema verifies the join is checked in both directions
func TestLoadHandlerWithoutSchema(t *testing.T) {
	path := writeSchema(t, `[{"name": "get_time", "parameters": {}}]`)
	handlers := map[string]string{
		"get_time": "clock.get_time",
		"orphan":   "clock.orphan",
	}

	_, err := Load("clock", handlers, path)
	if err == nil {
		t.Fatal("Expected error for handler without schema entry, got nil")
	}
	if !strings.Contains(err.Error(), "orphan") {
		t.Errorf("Expected error to name the tool, got: %v", err)
	}
}

// TestLoadSchemaWithoutHandler verifies a schema-only tool is rejected
func TestLoadSchemaWithoutHandler(t *testing.T) {
	path := writeSchema(t, `[
		{"name": "get_time", "parameters": {}},
		{"name": "ghost", "parameters": {}}
	]`)
	handlers := map[string]string{"get_time": "clock.get_time"}

	_, err := Load("clock", handlers, path)
	if err == nil {
		t.Fatal("Expected error for schema entry without handler, got nil")
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Errorf("Expected error to name the tool, got: %v", err)
	}
}

// TestLoadEmptyHandlerMap verifies a missing handler map is rejected
func TestLoadEmptyHandlerMap(t *testing.T) {
	path := writeSchema(t, `[]`)

	_, err := Load("clock", nil, path)
	if err == nil {
		t.Fatal("Expected error for empty handler map, got nil")
	}
	if !errortypes.IsConfigError(err) {
		t.Errorf("Expected a config error, got %v", err)
	}
}

// TestLoadDuplicateTool verifies duplicate names are rejected
func TestLoadDuplicateTool(t *testing.T) {
	path := writeSchema(t, `[
		{"name": "get_time", "parameters": {}},
		{"name": "get_time", "parameters": {}}
	]`)
	handlers := map[string]string{"get_time": "clock.get_time"}

	_, err := Load("clock", handlers, path)
	if err == nil {
		t.Fatal("Expected error for duplicate tool, got nil")
	}
}
