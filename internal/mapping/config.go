package mapping

import (
	"errors"
	"fmt"
)

// Config holds the thresholds and weights for one mapping run.
// A Config is read-only once handed to a Mapper.
type Config struct {
	SimilarityThreshold    float64 `mapstructure:"similarity_threshold" json:"similarity_threshold" yaml:"similarity_threshold"`
	ExactMatchThreshold    float64 `mapstructure:"exact_match_threshold" json:"exact_match_threshold" yaml:"exact_match_threshold"`
	SemanticMatchThreshold float64 `mapstructure:"semantic_match_threshold" json:"semantic_match_threshold" yaml:"semantic_match_threshold"`

	TitleWeight     float64 `mapstructure:"title_weight" json:"title_weight" yaml:"title_weight"`
	ContentWeight   float64 `mapstructure:"content_weight" json:"content_weight" yaml:"content_weight"`
	PositionWeight  float64 `mapstructure:"position_weight" json:"position_weight" yaml:"position_weight"`
	StructureWeight float64 `mapstructure:"structure_weight" json:"structure_weight" yaml:"structure_weight"`

	// MaxBatchSize bounds the titles per side in one oracle request.
	MaxBatchSize int `mapstructure:"max_batch_size" json:"max_batch_size" yaml:"max_batch_size"`

	EnableContextAware         bool `mapstructure:"enable_context_aware" json:"enable_context_aware" yaml:"enable_context_aware"`
	EnableRenumberingDetection bool `mapstructure:"enable_renumbering_detection" json:"enable_renumbering_detection" yaml:"enable_renumbering_detection"`
}

// DefaultConfig returns the standard thresholds and weights.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold:        0.5,
		ExactMatchThreshold:        0.95,
		SemanticMatchThreshold:     0.7,
		TitleWeight:                0.4,
		ContentWeight:              0.3,
		PositionWeight:             0.2,
		StructureWeight:            0.1,
		MaxBatchSize:               10,
		EnableContextAware:         true,
		EnableRenumberingDetection: true,
	}
}

// Weights returns the configured component weights.
func (c Config) Weights() Weights {
	return Weights{
		Title:     c.TitleWeight,
		Content:   c.ContentWeight,
		Position:  c.PositionWeight,
		Structure: c.StructureWeight,
	}
}

// Validate checks that thresholds are in [0,1] and weights are usable.
func (c Config) Validate() error {
	var errs []error
	for name, v := range map[string]float64{
		"similarity_threshold":     c.SimilarityThreshold,
		"exact_match_threshold":    c.ExactMatchThreshold,
		"semantic_match_threshold": c.SemanticMatchThreshold,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be in [0,1], got %v", name, v))
		}
	}
	w := c.Weights()
	if w.Title < 0 || w.Content < 0 || w.Position < 0 || w.Structure < 0 {
		errs = append(errs, errors.New("weights must not be negative"))
	} else if w.sum() == 0 {
		errs = append(errs, errors.New("at least one weight must be positive"))
	}
	if c.MaxBatchSize < 0 {
		errs = append(errs, fmt.Errorf("max_batch_size must not be negative, got %d", c.MaxBatchSize))
	}
	return errors.Join(errs...)
}
