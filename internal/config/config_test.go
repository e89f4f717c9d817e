package config

import (
	"path/filepath"
	"testing"
)

// TestDefaults verifies NewConfig fills every default
func TestDefaults(t *testing.T) {
	cfg := NewConfig()

	if cfg.Services.Root != DefaultServicesRoot {
		t.Errorf("Expected services root %q, got %q", DefaultServicesRoot, cfg.Services.Root)
	}
	if cfg.Services.BasePort != DefaultBasePort {
		t.Errorf("Expected base port %d, got %d", DefaultBasePort, cfg.Services.BasePort)
	}
	if cfg.Server.Host != DefaultHost {
		t.Errorf("Expected host %q, got %q", DefaultHost, cfg.Server.Host)
	}
	if cfg.Announce.ClientConfigPath != DefaultClientConfigPath {
		t.Errorf("Expected client config path %q, got %q", DefaultClientConfigPath, cfg.Announce.ClientConfigPath)
	}
	if cfg.Logging.Level != DefaultLogLevel || cfg.Logging.Format != DefaultLogFormat {
		t.Errorf("Expected logging defaults, got level=%q format=%q", cfg.Logging.Level, cfg.Logging.Format)
	}
}

// TestLoadMissingFileUsesDefaults verifies an absent file is not an error
func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.json")

	cfg, err := LoadConfigWithPath(path)
	if err != nil {
		t.Fatalf("LoadConfigWithPath returned error: %v", err)
	}
	if cfg.Services.BasePort != DefaultBasePort {
		t.Errorf("Expected default base port, got %d", cfg.Services.BasePort)
	}
	if cfg.GetConfigPath() != path {
		t.Errorf("Expected config path %q remembered, got %q", path, cfg.GetConfigPath())
	}
}

// TestSchemaPath verifies the conventional schema document location
func TestSchemaPath(t *testing.T) {
	cfg := NewConfig()
	cfg.Services.Root = "/srv/tools"

	want := filepath.Join("/srv/tools", "clock", SchemaFilename)
	if got := cfg.SchemaPath("clock"); got != want {
		t.Errorf("Expected schema path %q, got %q", want, got)
	}
}

// TestSaveRoundTrip verifies SaveToFile then load returns the same values
func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", ".toolhostconfig")

	cfg := NewConfig()
	cfg.Services.BasePort = 9200
	cfg.Server.Host = "0.0.0.0"
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile returned error: %v", err)
	}

	loaded, err := LoadConfigWithPath(path)
	if err != nil {
		t.Fatalf("LoadConfigWithPath returned error: %v", err)
	}
	if loaded.Services.BasePort != 9200 {
		t.Errorf("Expected base port 9200 after round trip, got %d", loaded.Services.BasePort)
	}
	if loaded.Server.Host != "0.0.0.0" {
		t.Errorf("Expected host 0.0.0.0 after round trip, got %q", loaded.Server.Host)
	}
}
