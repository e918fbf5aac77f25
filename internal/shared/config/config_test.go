package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("PORT", "")
	t.Setenv("OBJECT_STORE", "")
	t.Setenv("LLM_MODEL", "")
	t.Setenv("ANALYSIS_TIMEOUT_SECONDS", "")
	t.Setenv("WORKER_CONCURRENCY", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.Env != "dev" {
		t.Errorf("Env = %q, want dev", cfg.Env)
	}
	if cfg.ObjectStoreType != "local" {
		t.Errorf("ObjectStoreType = %q, want local", cfg.ObjectStoreType)
	}
	if cfg.LLMModel != "gpt-4-turbo-preview" {
		t.Errorf("LLMModel = %q, want gpt-4-turbo-preview", cfg.LLMModel)
	}
	if cfg.WorkerConcurrency != 4 {
		t.Errorf("WorkerConcurrency = %d, want 4", cfg.WorkerConcurrency)
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Errorf("MaxUploadBytes = %d, want %d", cfg.MaxUploadBytes, 10<<20)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENV", "PROD")
	t.Setenv("OBJECT_STORE", "S3")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example , https://b.example,")
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("ANALYSIS_TIMEOUT_SECONDS", "notanumber")

	cfg := Load()
	if cfg.Env != "production" {
		t.Errorf("Env = %q, want production", cfg.Env)
	}
	if cfg.ObjectStoreType != "s3" {
		t.Errorf("ObjectStoreType = %q, want s3", cfg.ObjectStoreType)
	}
	if len(cfg.CORSAllowOrigin) != 2 || cfg.CORSAllowOrigin[0] != "https://a.example" {
		t.Errorf("CORSAllowOrigin = %v", cfg.CORSAllowOrigin)
	}
	if cfg.WorkerConcurrency != 8 {
		t.Errorf("WorkerConcurrency = %d, want 8", cfg.WorkerConcurrency)
	}
	if cfg.AnalysisTimeoutSec != 180 {
		t.Errorf("AnalysisTimeoutSec = %d, want default 180 on invalid input", cfg.AnalysisTimeoutSec)
	}
}
