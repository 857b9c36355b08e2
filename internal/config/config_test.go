package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Dispatch.MinConfidence != 0.5 {
		t.Fatalf("expected default min confidence 0.5, got %v", cfg.Dispatch.MinConfidence)
	}
	if cfg.Dispatch.MaxProcessingTimeMS != 5000 {
		t.Fatalf("expected default deadline 5000ms, got %d", cfg.Dispatch.MaxProcessingTimeMS)
	}
	if !cfg.Dispatch.AutoFallback {
		t.Fatal("expected auto fallback enabled by default")
	}
	if cfg.Audio.TargetSampleRate != 16000 {
		t.Fatalf("expected default target sample rate 16000, got %d", cfg.Audio.TargetSampleRate)
	}
	if len(cfg.Node.Modalities) != 5 {
		t.Fatalf("expected five default modalities, got %v", cfg.Node.Modalities)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MODAL_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("MODAL_BUS_USERNAME", "alice")
	t.Setenv("MODAL_BUS_PASSWORD", "secret")
	t.Setenv("MODAL_DISPATCH_MIN_CONFIDENCE", "0.65")
	t.Setenv("MODAL_DISPATCH_MAX_PROCESSING_TIME_MS", "2500")
	t.Setenv("MODAL_DISPATCH_AUTO_FALLBACK", "false")
	t.Setenv("MODAL_AUDIO_TARGET_SAMPLE_RATE", "8000")
	t.Setenv("MODAL_EXTRACT_MODE", "exec")
	t.Setenv("MODAL_EXTRACT_COMMAND", "ocr-tool --json")
	t.Setenv("MODAL_RESULT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("MODAL_RESULT_STORE_MAX_RESULTS", "123")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.Dispatch.MinConfidence != 0.65 {
		t.Fatalf("expected min confidence override, got %v", cfg.Dispatch.MinConfidence)
	}
	if cfg.Dispatch.MaxProcessingTimeMS != 2500 {
		t.Fatalf("expected deadline override, got %d", cfg.Dispatch.MaxProcessingTimeMS)
	}
	if cfg.Dispatch.AutoFallback {
		t.Fatal("expected auto fallback override false")
	}
	if cfg.Audio.TargetSampleRate != 8000 {
		t.Fatalf("expected sample rate override, got %d", cfg.Audio.TargetSampleRate)
	}
	if cfg.Extract.Mode != "exec" || cfg.Extract.Command != "ocr-tool --json" {
		t.Fatalf("expected extract override, got %q %q", cfg.Extract.Mode, cfg.Extract.Command)
	}
	if cfg.ResultStore.RetentionMode != "persistent" {
		t.Fatalf("expected retention mode override")
	}
	if cfg.ResultStore.MaxResults != 123 {
		t.Fatalf("expected max results override, got %d", cfg.ResultStore.MaxResults)
	}
}

func TestValidateRejectsExecWithoutCommand(t *testing.T) {
	t.Setenv("MODAL_EXTRACT_MODE", "exec")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for exec mode without command")
	}
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	t.Setenv("MODAL_DISPATCH_MIN_CONFIDENCE", "1.5")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for out-of-range min confidence")
	}
}
