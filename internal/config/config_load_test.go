package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollIntervalSecs != 30 {
		t.Errorf("PollIntervalSecs = %d, want 30", cfg.PollIntervalSecs)
	}
	if cfg.MinSources != 2 {
		t.Errorf("MinSources = %d, want 2", cfg.MinSources)
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tideline.yaml")
	contents := "data_dir: /var/tideline\npoll_interval_seconds: 15\ncurrencies:\n  alpha: GBP\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/var/tideline" {
		t.Errorf("DataDir = %q, want /var/tideline", cfg.DataDir)
	}
	if cfg.PollIntervalSecs != 15 {
		t.Errorf("PollIntervalSecs = %d, want 15", cfg.PollIntervalSecs)
	}
	if cfg.Currencies["alpha"] != "GBP" {
		t.Errorf("Currencies[alpha] = %q, want GBP", cfg.Currencies["alpha"])
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TIDELINE_DATA_DIR", "/tmp/from-env")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/tmp/from-env" {
		t.Errorf("DataDir = %q, want /tmp/from-env", cfg.DataDir)
	}
}
