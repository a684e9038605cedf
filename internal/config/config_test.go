package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configFile
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LLMProviders["deepseek"].APIKey != "${DEEPSEEK_API_KEY}" {
		t.Error("expected deepseek API key placeholder")
	}
	if cfg.Defaults.Oracle != OracleLLM {
		t.Errorf("default oracle = %q", cfg.Defaults.Oracle)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	if cfg.Server.Addr() != "127.0.0.1:8484" {
		t.Errorf("addr = %q", cfg.Server.Addr())
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestConfig_ToProviderRegistryConfig(t *testing.T) {
	t.Setenv("TEST_OPENROUTER_KEY", "or-key-123")

	cfg := DefaultConfig()
	cfg.LLMProviders = map[string]LLMProviderCfg{
		"openrouter": {Type: "openrouter", APIKey: "${TEST_OPENROUTER_KEY}", RequestInterval: 2 * time.Second, Enabled: true},
		"literal":    {Type: "openai", APIKey: "direct-key", BaseURL: "http://localhost:9999/v1"},
	}
	cfg.Retry.MaxRetries = 5

	reg := cfg.ToProviderRegistryConfig()
	if got := reg.LLMProviders["openrouter"]; got.APIKey != "or-key-123" || got.RequestInterval != 2*time.Second || !got.Enabled {
		t.Errorf("openrouter = %+v", got)
	}
	if got := reg.LLMProviders["literal"]; got.APIKey != "direct-key" || got.BaseURL != "http://localhost:9999/v1" || got.Enabled {
		t.Errorf("literal = %+v", got)
	}
	if reg.Retry.MaxRetries != 5 || reg.Retry.MaxDelay != 30*time.Second {
		t.Errorf("retry = %+v", reg.Retry)
	}
}

func TestNewManager(t *testing.T) {
	t.Run("partial file merges with defaults", func(t *testing.T) {
		configFile := writeConfig(t, `
mapping:
  similarity_threshold: 0.6
retry:
  initial_delay: 2s
defaults:
  oracle: text
`)
		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Mapping.SimilarityThreshold != 0.6 {
			t.Errorf("similarity threshold = %v, want 0.6", cfg.Mapping.SimilarityThreshold)
		}
		if cfg.Mapping.TitleWeight != 0.4 || !cfg.Mapping.EnableContextAware {
			t.Errorf("mapping defaults lost: %+v", cfg.Mapping)
		}
		if cfg.Retry.InitialDelay != 2*time.Second || cfg.Retry.MaxRetries != 3 {
			t.Errorf("retry = %+v", cfg.Retry)
		}
		if cfg.Defaults.Oracle != OracleText || cfg.Defaults.LLMProvider != "deepseek" {
			t.Errorf("defaults = %+v", cfg.Defaults)
		}
		if mgr.ConfigFile() != configFile {
			t.Errorf("config file = %q", mgr.ConfigFile())
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("OUTLINE_MAPPING_SEMANTIC_MATCH_THRESHOLD", "0.65")
		configFile := writeConfig(t, "mapping:\n  semantic_match_threshold: 0.9\n")

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if got := mgr.Get().Mapping.SemanticMatchThreshold; got != 0.65 {
			t.Errorf("semantic threshold = %v, want 0.65", got)
		}
	})

	t.Run("rejects invalid settings", func(t *testing.T) {
		configFile := writeConfig(t, `
defaults:
  oracle: magic
mapping:
  similarity_threshold: 1.5
`)
		if _, err := NewManager(configFile); err == nil {
			t.Fatal("expected validation error")
		}
	})

	t.Run("missing explicit file is an error", func(t *testing.T) {
		if _, err := NewManager(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Fatal("expected error for missing file")
		}
	})
}

func TestManager_Value(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "server:\n  port: \"9000\"\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	if v, err := mgr.Value("server.port"); err != nil || v != "9000" {
		t.Errorf("server.port = %v, %v", v, err)
	}
	if v, err := mgr.Value("mapping.max_batch_size"); err != nil || v != 10 {
		t.Errorf("mapping.max_batch_size = %v, %v", v, err)
	}
	if _, err := mgr.Value("mapping.nope"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("unknown key error = %v", err)
	}
	if _, err := mgr.Value("bad key!"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("invalid key error = %v", err)
	}

	keys := mgr.Keys()
	found := false
	for _, k := range keys {
		if k == "cache.redis_addr" {
			found = true
		}
	}
	if !found {
		t.Errorf("keys missing cache.redis_addr: %v", keys)
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"mapping.title_weight", false},
		{"llm_providers.deepseek.base-url", false},
		{"", true},
		{".mapping", true},
		{"mapping.", true},
		{"mapping title", true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateKey(%q) = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("failed to load written config: %v", err)
	}
	cfg := mgr.Get()
	if cfg.Defaults.Oracle != OracleLLM {
		t.Errorf("oracle = %q", cfg.Defaults.Oracle)
	}
	if p := cfg.LLMProviders["deepseek"]; p.RequestInterval != time.Second || p.BaseURL != "https://api.deepseek.com/v1" {
		t.Errorf("deepseek = %+v", p)
	}
	if cfg.Cache.TTL != 7*24*time.Hour {
		t.Errorf("cache ttl = %v", cfg.Cache.TTL)
	}
}

func TestManager_OnChange_Multiple(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "logging:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "logging:\n  level: warn\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				cfg := mgr.Get()
				_ = cfg.Logging.SlogLevel()
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	configFile := writeConfig(t, "mapping:\n  similarity_threshold: 0.5\n")

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	var callbackCount atomic.Int32
	var lastValue atomic.Value

	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastValue.Store(cfg.Mapping.SimilarityThreshold)
	})

	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configFile, []byte("mapping:\n  similarity_threshold: 0.75\n"), 0644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if callbackCount.Load() > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Fatal("callback was not invoked after config file change")
	}
	if got := mgr.Get().Mapping.SimilarityThreshold; got != 0.75 {
		t.Errorf("config not updated: got %v", got)
	}
	if v := lastValue.Load(); v != 0.75 {
		t.Errorf("callback received %v, want 0.75", v)
	}
}

func TestRedact(t *testing.T) {
	tests := []struct {
		key   string
		value any
		want  any
	}{
		{"llm_providers.deepseek.api_key", "sk-123", "********"},
		{"llm_providers.deepseek.api_key", "${DEEPSEEK_API_KEY}", "${DEEPSEEK_API_KEY}"},
		{"llm_providers.deepseek.api_key", "", ""},
		{"cache.password", "hunter2", "********"},
		{"cache.redis_addr", "localhost:6379", "localhost:6379"},
		{"mapping.max_batch_size", 10, 10},
	}
	for _, tt := range tests {
		if got := Redact(tt.key, tt.value); got != tt.want {
			t.Errorf("Redact(%q, %v) = %v, want %v", tt.key, tt.value, got, tt.want)
		}
	}
}
