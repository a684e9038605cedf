package compare

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/jackzampolin/outline/internal/cache"
	"github.com/jackzampolin/outline/internal/config"
	"github.com/jackzampolin/outline/internal/llmcall"
	"github.com/jackzampolin/outline/internal/mapping"
	"github.com/jackzampolin/outline/internal/providers"
	"github.com/jackzampolin/outline/internal/semantic"
	"github.com/jackzampolin/outline/internal/store"
	"github.com/jackzampolin/outline/internal/types"
)

func insertionRequest() Request {
	return Request{
		Template: []types.Chapter{
			{Title: "1. Overview", Level: 1},
			{Title: "2. Design", Level: 1},
		},
		Target: []types.Chapter{
			{Title: "1. Overview", Level: 1},
			{Title: "2. Requirements", Level: 1},
			{Title: "3. Design", Level: 1},
		},
		TemplateSource: "template.yaml",
		TargetSource:   "target.yaml",
	}
}

func textSettings() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Defaults.Oracle = config.OracleText
	return cfg
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "outline.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestService_Compare(t *testing.T) {
	ctx := context.Background()

	t.Run("text oracle without saving", func(t *testing.T) {
		svc := New(Config{Settings: textSettings()})
		resp, err := svc.Compare(ctx, insertionRequest())
		if err != nil {
			t.Fatalf("Compare() error = %v", err)
		}
		if resp.Oracle != semantic.TextOracleName {
			t.Errorf("oracle = %q", resp.Oracle)
		}
		if resp.RunID != "" {
			t.Errorf("unsaved run has id %q", resp.RunID)
		}
		if len(resp.Result.Mappings) != 2 || resp.Statistics.TotalTemplate != 2 {
			t.Fatalf("result = %+v", resp.Result)
		}
		for _, mp := range resp.Result.Mappings {
			if mp.Missing() {
				t.Errorf("%q unmapped", mp.TemplateChapter.Title)
			}
		}
		if len(resp.Result.UnmappedTarget) != 1 || resp.Result.UnmappedTarget[0].Title != "2. Requirements" {
			t.Errorf("unmapped target = %+v", resp.Result.UnmappedTarget)
		}
		if !resp.Shift.HasShift {
			t.Error("expected insertion shift")
		}
		if resp.TemplateIssues == nil || resp.TargetIssues == nil {
			t.Error("issue lists should be non-nil")
		}
	})

	t.Run("save requires a store", func(t *testing.T) {
		svc := New(Config{Settings: textSettings()})
		req := insertionRequest()
		req.Save = true
		if _, err := svc.Compare(ctx, req); !errors.Is(err, ErrNoStore) {
			t.Errorf("error = %v, want ErrNoStore", err)
		}
	})

	t.Run("saved run is retrievable", func(t *testing.T) {
		st := openStore(t)
		svc := New(Config{Settings: textSettings(), Store: st})
		req := insertionRequest()
		req.Save = true

		resp, err := svc.Compare(ctx, req)
		if err != nil {
			t.Fatalf("Compare() error = %v", err)
		}
		if resp.RunID == "" {
			t.Fatal("saved run has no id")
		}
		run, err := st.GetRun(ctx, resp.RunID)
		if err != nil {
			t.Fatalf("GetRun() error = %v", err)
		}
		if run.TemplateSource != "template.yaml" || run.Oracle != semantic.TextOracleName {
			t.Errorf("run = %+v", run)
		}
		if run.Result == nil || len(run.Result.Mappings) != 2 {
			t.Errorf("stored result = %+v", run.Result)
		}
	})

	t.Run("unknown oracle", func(t *testing.T) {
		svc := New(Config{Settings: textSettings()})
		req := insertionRequest()
		req.Oracle = "magic"
		if _, err := svc.Compare(ctx, req); !errors.Is(err, ErrUnknownOracle) {
			t.Errorf("error = %v, want ErrUnknownOracle", err)
		}
	})

	t.Run("invalid overrides", func(t *testing.T) {
		svc := New(Config{Settings: textSettings()})
		req := insertionRequest()
		req.Mapping = json.RawMessage(`{"similarity_threshold": 2}`)
		if _, err := svc.Compare(ctx, req); !errors.Is(err, ErrInvalidMapping) {
			t.Errorf("error = %v, want ErrInvalidMapping", err)
		}
	})
}

func TestService_MappingConfig(t *testing.T) {
	svc := New(Config{Settings: textSettings()})

	mc, err := svc.MappingConfig(json.RawMessage(`{"similarity_threshold":0.9,"enable_context_aware":false}`))
	if err != nil {
		t.Fatalf("MappingConfig() error = %v", err)
	}
	if mc.SimilarityThreshold != 0.9 || mc.EnableContextAware {
		t.Errorf("overrides not applied: %+v", mc)
	}
	if mc.TitleWeight != 0.4 || mc.MaxBatchSize != 10 {
		t.Errorf("unset fields changed: %+v", mc)
	}

	if _, err := svc.MappingConfig(json.RawMessage(`{"title_weight":"heavy"}`)); !errors.Is(err, ErrInvalidMapping) {
		t.Errorf("decode error = %v", err)
	}

	svc.SetSettings(func() *config.Config {
		c := textSettings()
		c.Mapping.SimilarityThreshold = 0.6
		return c
	}())
	if mc, _ := svc.MappingConfig(nil); mc.SimilarityThreshold != 0.6 {
		t.Errorf("SetSettings not applied: %v", mc.SimilarityThreshold)
	}
}

func TestService_Oracle(t *testing.T) {
	mock := providers.NewMockClient()
	reg := providers.NewRegistry()
	reg.RegisterLLM("local", mock)

	settings := config.DefaultConfig()
	settings.Defaults.LLMProvider = "local"

	t.Run("llm oracle behind cache", func(t *testing.T) {
		svc := New(Config{Settings: settings, Registry: reg, Cache: cache.NewMemory(0)})
		o, err := svc.Oracle("")
		if err != nil {
			t.Fatalf("Oracle() error = %v", err)
		}
		if _, ok := o.(*semantic.CachedOracle); !ok {
			t.Errorf("oracle type = %T, want *semantic.CachedOracle", o)
		}
		if o.Name() != "llm:mock" {
			t.Errorf("name = %q", o.Name())
		}
	})

	t.Run("missing provider falls back to text", func(t *testing.T) {
		svc := New(Config{Settings: config.DefaultConfig(), Registry: reg})
		o, err := svc.Oracle(config.OracleLLM)
		if err != nil {
			t.Fatalf("Oracle() error = %v", err)
		}
		if o.Name() != semantic.TextOracleName {
			t.Errorf("name = %q", o.Name())
		}
	})

	t.Run("text oracle is never cached", func(t *testing.T) {
		svc := New(Config{Settings: settings, Cache: cache.NewMemory(0)})
		o, _ := svc.Oracle(config.OracleText)
		if _, ok := o.(*semantic.TextOracle); !ok {
			t.Errorf("oracle type = %T", o)
		}
	})
}

func TestService_CompareRecordsCalls(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)

	sink := llmcall.NewSink(llmcall.SinkConfig{Writer: st})
	sink.Start(ctx)
	defer sink.Stop()

	mock := providers.NewMockClient()
	mock.Responder = func(req *providers.ChatRequest) (string, error) {
		if req.PromptKey == semantic.BatchPromptKey {
			return `{"scores":[{"template":1,"target":1,"score":1},{"template":2,"target":3,"score":0.9}]}`, nil
		}
		return `{"best":0,"score":0,"reason":"none"}`, nil
	}
	reg := providers.NewRegistry()
	reg.RegisterLLM("local", mock)

	settings := config.DefaultConfig()
	settings.Defaults.LLMProvider = "local"

	svc := New(Config{
		Settings: settings,
		Registry: reg,
		Recorder: llmcall.NewRecorder(sink),
		Cache:    cache.NewMemory(0),
		Store:    st,
	})

	req := insertionRequest()
	req.Save = true
	resp, err := svc.Compare(ctx, req)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if resp.Result.Degraded {
		t.Error("unexpected degraded result")
	}
	if resp.CacheStats == nil || resp.CacheStats.Misses == 0 {
		t.Errorf("cache stats = %+v", resp.CacheStats)
	}

	if err := sink.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	calls, err := st.ListCalls(ctx, llmcall.QueryFilter{RunID: resp.RunID})
	if err != nil {
		t.Fatalf("ListCalls() error = %v", err)
	}
	if len(calls) == 0 || int64(len(calls)) != mock.RequestCount() {
		t.Errorf("recorded %d calls, mock saw %d", len(calls), mock.RequestCount())
	}
	if calls[0].PromptKey == "" || calls[0].Provider != providers.MockClientName {
		t.Errorf("call = %+v", calls[0])
	}
}

func TestService_Patterns(t *testing.T) {
	svc := New(Config{})
	report := svc.Patterns(
		[]types.Chapter{{Title: "1 Alpha", Level: 1}, {Title: "2 Beta", Level: 1}, {Title: "3 Gamma", Level: 1}},
		[]types.Chapter{{Title: "2 Alpha", Level: 1}, {Title: "3 Beta", Level: 1}, {Title: "4 Gamma", Level: 1}},
	)
	if len(report.Patterns) != 1 || report.Patterns[0].Type != mapping.PatternOffset {
		t.Fatalf("patterns = %+v", report.Patterns)
	}
	if report.Rejected == nil || len(report.Rejected) != 0 {
		t.Errorf("rejected = %+v", report.Rejected)
	}
	if !report.Shift.HasShift || report.Degraded {
		t.Errorf("report = %+v", report)
	}
}

func TestOpenCache(t *testing.T) {
	ctx := context.Background()

	c, closeFn, err := OpenCache(ctx, config.CacheCfg{Backend: config.CacheNone})
	if err != nil || c != nil || closeFn() != nil {
		t.Errorf("none backend = %v, %v", c, err)
	}

	c, _, err = OpenCache(ctx, config.CacheCfg{Backend: config.CacheMemory, MemoryLimit: 5})
	if _, ok := c.(*cache.Memory); !ok || err != nil {
		t.Errorf("memory backend = %T, %v", c, err)
	}

	mr := miniredis.RunT(t)
	c, closeFn, err = OpenCache(ctx, config.CacheCfg{Backend: config.CacheRedis, RedisAddr: mr.Addr()})
	if err != nil {
		t.Fatalf("redis backend error = %v", err)
	}
	if _, ok := c.(*cache.Redis); !ok {
		t.Errorf("redis backend = %T", c)
	}
	if err := closeFn(); err != nil {
		t.Errorf("close = %v", err)
	}

	if _, _, err := OpenCache(ctx, config.CacheCfg{Backend: "disk"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
