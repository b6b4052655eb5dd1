package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ServerPort == "" {
		t.Fatalf("expected default server port")
	}
	if cfg.PostgresURL == "" {
		t.Fatalf("expected default postgres url")
	}
	if cfg.MinRecordingDistance <= 0 {
		t.Fatalf("expected default min recording distance")
	}
	if cfg.MaxRecordingDistance <= cfg.MinRecordingDistance {
		t.Fatalf("expected max recording distance above min")
	}
	if cfg.MaxPollingIntervalS < cfg.MinPollingIntervalS {
		t.Fatalf("expected polling interval bounds ordered")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9000")
	t.Setenv("POSTGRES_URL", "postgres://example")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("MIN_RECORDING_DISTANCE", "2.5")
	t.Setenv("AUTO_RESUME_TIMEOUT_MIN", "-1")

	cfg := Load()
	if cfg.ServerPort != ":9000" {
		t.Fatalf("expected override port")
	}
	if cfg.PostgresURL != "postgres://example" {
		t.Fatalf("expected override postgres")
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("expected override redis")
	}
	if cfg.JWTSecret != "secret" {
		t.Fatalf("expected override secret")
	}
	if cfg.MinRecordingDistance != 2.5 {
		t.Fatalf("expected override min recording distance")
	}
	if cfg.AutoResumeTimeoutMin != -1 {
		t.Fatalf("expected override auto resume timeout")
	}
}
