package config

import "testing"

func TestFromEnvAppliesDefaults(t *testing.T) {
	t.Setenv("CHIDORI_OPENAI_API_KEY", "sk-test")
	c, err := fromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ListenAddr != ":8080" {
		t.Fatalf("expected default listen addr, got %q", c.ListenAddr)
	}
	if c.LogLevel != "info" {
		t.Fatalf("expected default log level info, got %q", c.LogLevel)
	}
	if c.MaxStepsPerLineage != 10_000 {
		t.Fatalf("expected default step budget, got %d", c.MaxStepsPerLineage)
	}
}

func TestFromEnvRejectsMissingAPIKey(t *testing.T) {
	t.Setenv("CHIDORI_OPENAI_API_KEY", "")
	if _, err := fromEnv(); err == nil {
		t.Fatalf("expected validation error for missing OpenAI API key")
	}
}

func TestFromEnvRejectsInvalidLogLevel(t *testing.T) {
	t.Setenv("CHIDORI_OPENAI_API_KEY", "sk-test")
	t.Setenv("CHIDORI_LOG_LEVEL", "verbose")
	if _, err := fromEnv(); err == nil {
		t.Fatalf("expected validation error for an invalid log level")
	}
}

func TestFromEnvReadsOverrides(t *testing.T) {
	t.Setenv("CHIDORI_OPENAI_API_KEY", "sk-test")
	t.Setenv("CHIDORI_LISTEN_ADDR", ":9000")
	t.Setenv("CHIDORI_LOG_PRETTY", "true")
	t.Setenv("CHIDORI_MAX_CONCURRENT_OPERATIONS", "4")

	c, err := fromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ListenAddr != ":9000" {
		t.Fatalf("expected overridden listen addr, got %q", c.ListenAddr)
	}
	if !c.LogPretty {
		t.Fatalf("expected LogPretty true")
	}
	if c.MaxConcurrentOperations != 4 {
		t.Fatalf("expected overridden concurrency, got %d", c.MaxConcurrentOperations)
	}
}
