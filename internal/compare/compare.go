// Package compare runs outline comparisons for the CLI and the HTTP server.
// It assembles the oracle chain from configuration (provider client, call
// recording, score cache), runs the mapper and optionally persists the run.
package compare

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/jackzampolin/outline/internal/cache"
	"github.com/jackzampolin/outline/internal/config"
	"github.com/jackzampolin/outline/internal/llmcall"
	"github.com/jackzampolin/outline/internal/mapping"
	"github.com/jackzampolin/outline/internal/outline"
	"github.com/jackzampolin/outline/internal/providers"
	"github.com/jackzampolin/outline/internal/semantic"
	"github.com/jackzampolin/outline/internal/store"
	"github.com/jackzampolin/outline/internal/types"
)

// ErrUnknownOracle is returned for an oracle name other than llm or text.
var ErrUnknownOracle = errors.New("unknown oracle")

// ErrInvalidMapping is returned for mapping overrides that fail to decode or validate.
var ErrInvalidMapping = errors.New("invalid mapping settings")

// ErrNoStore is returned when a save is requested without a store.
var ErrNoStore = errors.New("run store not configured")

// Config holds the collaborators of a Service. Only Settings is required.
type Config struct {
	Settings *config.Config
	Registry *providers.Registry
	Recorder *llmcall.Recorder
	Cache    cache.Cache
	Store    *store.Store
	Logger   *slog.Logger
}

// Service compares outlines.
type Service struct {
	settings atomic.Pointer[config.Config]
	registry *providers.Registry
	recorder *llmcall.Recorder
	cache    cache.Cache
	store    *store.Store
	logger   *slog.Logger
}

// New creates a Service.
func New(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Settings == nil {
		cfg.Settings = config.DefaultConfig()
	}
	s := &Service{
		registry: cfg.Registry,
		recorder: cfg.Recorder,
		cache:    cfg.Cache,
		store:    cfg.Store,
		logger:   cfg.Logger,
	}
	s.settings.Store(cfg.Settings)
	return s
}

// SetSettings swaps the configuration used by subsequent comparisons.
func (s *Service) SetSettings(c *config.Config) {
	s.settings.Store(c)
}

// Settings returns the current configuration.
func (s *Service) Settings() *config.Config {
	return s.settings.Load()
}

// Request is one comparison.
type Request struct {
	Template []types.Chapter `json:"template"`
	Target   []types.Chapter `json:"target"`

	// TemplateSource and TargetSource label the inputs in saved runs.
	TemplateSource string `json:"template_source,omitempty"`
	TargetSource   string `json:"target_source,omitempty"`

	// Oracle is "llm" or "text"; empty uses defaults.oracle.
	Oracle string `json:"oracle,omitempty"`

	// Mapping overrides individual fields of the configured mapping settings.
	Mapping json.RawMessage `json:"mapping,omitempty"`

	Save bool `json:"save,omitempty"`
}

// LoadFiles reads two outline files into a request labelled with their base names.
func LoadFiles(templatePath, targetPath string) (Request, error) {
	template, err := outline.Load(templatePath)
	if err != nil {
		return Request{}, err
	}
	target, err := outline.Load(targetPath)
	if err != nil {
		return Request{}, err
	}
	return Request{
		Template:       template,
		Target:         target,
		TemplateSource: filepath.Base(templatePath),
		TargetSource:   filepath.Base(targetPath),
	}, nil
}

// Response is the outcome of a comparison.
type Response struct {
	RunID          string                   `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Oracle         string                   `json:"oracle" yaml:"oracle"`
	Result         mapping.MappingResult    `json:"result" yaml:"result"`
	Statistics     mapping.Statistics       `json:"statistics" yaml:"statistics"`
	Shift          mapping.ShiftAnalysis    `json:"shift" yaml:"shift"`
	TemplateIssues []mapping.StructureIssue `json:"template_issues" yaml:"template_issues"`
	TargetIssues   []mapping.StructureIssue `json:"target_issues" yaml:"target_issues"`
	CacheStats     *semantic.CacheStats     `json:"cache_stats,omitempty" yaml:"cache_stats,omitempty"`
}

// MappingConfig applies raw JSON overrides on top of the configured mapping settings.
func (s *Service) MappingConfig(overrides json.RawMessage) (mapping.Config, error) {
	mc := s.Settings().Mapping
	if len(overrides) > 0 && string(overrides) != "null" {
		if err := json.Unmarshal(overrides, &mc); err != nil {
			return mc, fmt.Errorf("%w: %w", ErrInvalidMapping, err)
		}
	}
	if err := mc.Validate(); err != nil {
		return mc, fmt.Errorf("%w: %w", ErrInvalidMapping, err)
	}
	return mc, nil
}

// Oracle builds the oracle for name. An llm oracle whose provider is not
// registered falls back to the text oracle with a warning.
func (s *Service) Oracle(name string) (semantic.Oracle, error) {
	settings := s.Settings()
	if name == "" {
		name = settings.Defaults.Oracle
	}

	var oracle semantic.Oracle
	switch name {
	case config.OracleText:
		return semantic.NewTextOracle(), nil
	case config.OracleLLM:
		client, err := s.llmClient(settings.Defaults.LLMProvider)
		if err != nil {
			s.logger.Warn("llm oracle unavailable, using text oracle",
				"provider", settings.Defaults.LLMProvider, "error", err)
			return semantic.NewTextOracle(), nil
		}
		oracle = semantic.NewLLMOracle(client, semantic.DefaultLLMConfig(), s.logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOracle, name)
	}

	if s.cache != nil {
		oracle = semantic.NewCachedOracle(oracle, s.cache, s.logger)
	}
	return oracle, nil
}

func (s *Service) llmClient(provider string) (providers.LLMClient, error) {
	if s.registry == nil {
		return nil, providers.ErrNoClient
	}
	client, err := s.registry.GetLLM(provider)
	if err != nil {
		return nil, err
	}
	if s.recorder != nil {
		client = llmcall.NewRecordingClient(client, s.recorder)
	}
	return client, nil
}

// Compare maps req.Template onto req.Target. Mapping itself never fails;
// errors come from invalid settings or from saving the run.
func (s *Service) Compare(ctx context.Context, req Request) (*Response, error) {
	mc, err := s.MappingConfig(req.Mapping)
	if err != nil {
		return nil, err
	}
	if req.Save && s.store == nil {
		return nil, ErrNoStore
	}
	oracle, err := s.Oracle(req.Oracle)
	if err != nil {
		return nil, err
	}

	template := types.Normalize(req.Template)
	target := types.Normalize(req.Target)

	runID := uuid.New().String()
	ctx = llmcall.WithRunID(ctx, runID)

	res := mapping.New(mc, oracle, s.logger).CreateGlobalMapping(ctx, template, target)

	resp := &Response{
		Oracle:         oracle.Name(),
		Result:         res,
		Statistics:     res.Statistics(),
		Shift:          mapping.AnalyzeShift(res.Patterns),
		TemplateIssues: mapping.StructureIssues(template),
		TargetIssues:   mapping.StructureIssues(target),
	}
	if co, ok := oracle.(*semantic.CachedOracle); ok {
		stats := co.Stats()
		resp.CacheStats = &stats
	}

	if req.Save {
		run := store.NewRun(runID, req.TemplateSource, req.TargetSource, resp.Oracle, res)
		if err := s.store.SaveRun(ctx, run); err != nil {
			return nil, err
		}
		resp.RunID = runID
		s.logger.Info("saved comparison run", "run_id", runID)
	}
	return resp, nil
}

// PatternReport lists detected renumbering patterns, split by whether
// they pass ValidatePattern.
type PatternReport struct {
	Patterns []mapping.RenumberingPattern `json:"patterns" yaml:"patterns"`
	Rejected []mapping.RenumberingPattern `json:"rejected" yaml:"rejected"`
	Shift    mapping.ShiftAnalysis        `json:"shift" yaml:"shift"`
	Degraded bool                         `json:"degraded" yaml:"degraded"`
}

// Patterns runs renumbering detection alone.
func (s *Service) Patterns(template, target []types.Chapter) PatternReport {
	det := mapping.NewDetector(s.logger).Detect(types.Normalize(template), types.Normalize(target))
	report := PatternReport{
		Patterns: []mapping.RenumberingPattern{},
		Rejected: []mapping.RenumberingPattern{},
		Degraded: det.Degraded,
	}
	for _, p := range det.Patterns {
		if mapping.ValidatePattern(p) {
			report.Patterns = append(report.Patterns, p)
		} else {
			report.Rejected = append(report.Rejected, p)
		}
	}
	report.Shift = mapping.AnalyzeShift(report.Patterns)
	return report
}

// OpenCache builds the score cache selected by cfg. The returned close
// function is never nil.
func OpenCache(ctx context.Context, cfg config.CacheCfg) (cache.Cache, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.CacheNone, "":
		return nil, noop, nil
	case config.CacheMemory:
		return cache.NewMemory(cfg.MemoryLimit), noop, nil
	case config.CacheRedis:
		r, err := cache.Dial(ctx, cfg.RedisAddr, config.ResolveEnvVars(cfg.Password), cfg.DB, cfg.TTL)
		if err != nil {
			return nil, noop, err
		}
		return r, r.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
