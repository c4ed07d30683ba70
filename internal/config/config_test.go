package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerURL == "" || cfg.ListenAddr == "" || cfg.DBPath == "" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server_url: https://file.example\nlisten_addr: 127.0.0.1:9000\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("SPARRING_SERVER_URL", "https://env.example")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerURL != "https://env.example" {
		t.Fatalf("server url = %q", cfg.ServerURL)
	}
	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Fatalf("listen addr = %q, file value lost", cfg.ListenAddr)
	}
}

func TestWSBaseDerivation(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"http://localhost:8000", "ws://localhost:8000"},
		{"https://debates.example/", "wss://debates.example"},
	}
	for _, tc := range cases {
		cfg := &Config{ServerURL: tc.in}
		if got := cfg.WSBase(); got != tc.want {
			t.Errorf("WSBase(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
