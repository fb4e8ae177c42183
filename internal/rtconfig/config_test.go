package rtconfig

import "testing"

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxTurns != 64 {
		t.Fatalf("MaxTurns = %d, want 64", cfg.MaxTurns)
	}
	if cfg.CompressionThreshold != 0.7 {
		t.Fatalf("CompressionThreshold = %v, want 0.7", cfg.CompressionThreshold)
	}
	if cfg.Providers == nil {
		t.Fatal("expected non-nil Providers map")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("TURNSCHED_MAX_TURNS", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxTurns != 10 {
		t.Fatalf("MaxTurns = %d, want 10 from env override", cfg.MaxTurns)
	}
}
