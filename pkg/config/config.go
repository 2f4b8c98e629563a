// Package config holds the engine configuration: turn and time budgets,
// retry policy, field-size caps, reasoning knobs, and dedupe/loop-detection
// tuning. Zero values are filled in by SetDefaults; Validate rejects
// configurations the engine cannot run.
package config

import (
	"fmt"
	"time"
)

// ReasoningType selects the reasoning engine variant.
type ReasoningType string

const (
	ReasoningNone           ReasoningType = "none"
	ReasoningChainOfThought ReasoningType = "chain_of_thought"
	ReasoningTreeOfThoughts ReasoningType = "tree_of_thoughts"
)

// ExplorationStrategy selects the tree-of-thoughts frontier policy.
type ExplorationStrategy string

const (
	ExploreBestFirst  ExplorationStrategy = "best_first"
	ExploreBeamSearch ExplorationStrategy = "beam_search"
	ExploreDepthFirst ExplorationStrategy = "depth_first"
)

// SummaryMode selects how elided history is summarized.
type SummaryMode string

const (
	// SummaryModeModel asks the model to summarize elided turns.
	SummaryModeModel SummaryMode = "model"
	// SummaryModeDeterministic renders a fixed-format digest without a model
	// call.
	SummaryModeDeterministic SummaryMode = "deterministic"
)

// ReasoningConfig carries the chain-of-thought and tree-of-thoughts knobs.
type ReasoningConfig struct {
	Type ReasoningType `yaml:"type"`

	// Chain-of-thought.
	MaxReasoningSteps         int     `yaml:"max_reasoning_steps"`
	ConfidenceThreshold       float64 `yaml:"confidence_threshold"`
	EnableReasoningValidation bool    `yaml:"enable_reasoning_validation"`
	ValidationRetries         int     `yaml:"validation_retries"`

	// Tree-of-thoughts.
	MaxDepth            int                 `yaml:"max_depth"`
	MaxBranching        int                 `yaml:"max_branching"`
	BeamWidth           int                 `yaml:"beam_width"`
	ExplorationStrategy ExplorationStrategy `yaml:"exploration_strategy"`
	AcceptanceThreshold float64             `yaml:"acceptance_threshold"`
}

// Config is the full engine configuration.
type Config struct {
	// MaxTurns caps turns per run. Zero is honored as "terminate
	// immediately"; nil selects the default.
	MaxTurns *int `yaml:"max_turns"`

	// MaxRecentTurns bounds the turns rendered verbatim into the prompt;
	// older turns are summarized when history summarization is enabled.
	MaxRecentTurns int `yaml:"max_recent_turns"`

	LLMTimeout  time.Duration `yaml:"llm_timeout"`
	ToolTimeout time.Duration `yaml:"tool_timeout"`
	RunTimeout  time.Duration `yaml:"run_timeout"`

	MaxRetries        int           `yaml:"max_retries"`
	InitialRetryDelay time.Duration `yaml:"initial_retry_delay"`
	MaxRetryDelay     time.Duration `yaml:"max_retry_delay"`

	EnableHistorySummarization bool        `yaml:"enable_history_summarization"`
	SummaryMode                SummaryMode `yaml:"summary_mode"`
	SummaryModel               string      `yaml:"summary_model"`

	MaxToolOutputSize int `yaml:"max_tool_output_size"`
	MaxThoughtsLength int `yaml:"max_thoughts_length"`
	MaxFinalLength    int `yaml:"max_final_length"`
	MaxSummaryLength  int `yaml:"max_summary_length"`

	ConsecutiveFailureThreshold int `yaml:"consecutive_failure_threshold"`
	MaxToolCallHistory          int `yaml:"max_tool_call_history"`

	DedupeStalenessThreshold time.Duration `yaml:"dedupe_staleness_threshold"`
	DedupeCacheSize          int           `yaml:"dedupe_cache_size"`

	UseFunctionCalling bool `yaml:"use_function_calling"`
	EmitPublicStatus   bool `yaml:"emit_public_status"`

	// DisableResultMemoization turns off the terminal-result shortcut that
	// makes re-running a completed (agentId, goal) a no-op.
	DisableResultMemoization bool `yaml:"disable_result_memoization"`

	MaxParallelTools int `yaml:"max_parallel_tools"`

	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`

	Reasoning ReasoningConfig `yaml:"reasoning"`
}

// DefaultMaxTurns applies when Config.MaxTurns is nil.
const DefaultMaxTurns = 10

// DefaultConfig returns a fully-defaulted configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills unset fields. MaxTurns is left alone when explicitly set,
// including an explicit zero.
func (c *Config) SetDefaults() {
	if c.MaxTurns == nil {
		v := DefaultMaxTurns
		c.MaxTurns = &v
	}
	if c.MaxRecentTurns == 0 {
		c.MaxRecentTurns = 10
	}
	if c.LLMTimeout == 0 {
		c.LLMTimeout = 60 * time.Second
	}
	if c.ToolTimeout == 0 {
		c.ToolTimeout = 30 * time.Second
	}
	if c.RunTimeout == 0 {
		c.RunTimeout = 10 * time.Minute
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InitialRetryDelay == 0 {
		c.InitialRetryDelay = time.Second
	}
	if c.MaxRetryDelay == 0 {
		c.MaxRetryDelay = 30 * time.Second
	}
	if c.SummaryMode == "" {
		c.SummaryMode = SummaryModeModel
	}
	if c.SummaryModel == "" {
		c.SummaryModel = "gpt-4o"
	}
	if c.MaxToolOutputSize == 0 {
		c.MaxToolOutputSize = 8192
	}
	if c.MaxThoughtsLength == 0 {
		c.MaxThoughtsLength = 4096
	}
	if c.MaxFinalLength == 0 {
		c.MaxFinalLength = 16384
	}
	if c.MaxSummaryLength == 0 {
		c.MaxSummaryLength = 2048
	}
	if c.ConsecutiveFailureThreshold == 0 {
		c.ConsecutiveFailureThreshold = 3
	}
	if c.MaxToolCallHistory == 0 {
		c.MaxToolCallHistory = 50
	}
	if c.DedupeStalenessThreshold == 0 {
		c.DedupeStalenessThreshold = 5 * time.Minute
	}
	if c.DedupeCacheSize == 0 {
		c.DedupeCacheSize = 256
	}
	if c.MaxParallelTools == 0 {
		c.MaxParallelTools = 4
	}

	r := &c.Reasoning
	if r.Type == "" {
		r.Type = ReasoningNone
	}
	if r.MaxReasoningSteps == 0 {
		r.MaxReasoningSteps = 10
	}
	if r.ConfidenceThreshold == 0 {
		r.ConfidenceThreshold = 0.8
	}
	if r.ValidationRetries == 0 {
		r.ValidationRetries = 2
	}
	if r.MaxDepth == 0 {
		r.MaxDepth = 4
	}
	if r.MaxBranching == 0 {
		r.MaxBranching = 3
	}
	if r.BeamWidth == 0 {
		r.BeamWidth = 2
	}
	if r.ExplorationStrategy == "" {
		r.ExplorationStrategy = ExploreBestFirst
	}
	if r.AcceptanceThreshold == 0 {
		r.AcceptanceThreshold = 0.9
	}
}

// EffectiveMaxTurns resolves the turn cap.
func (c *Config) EffectiveMaxTurns() int {
	if c.MaxTurns == nil {
		return DefaultMaxTurns
	}
	return *c.MaxTurns
}

// ValidationError reports an invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Message)
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.MaxTurns != nil && *c.MaxTurns < 0 {
		return &ValidationError{Field: "max_turns", Message: "must be >= 0"}
	}
	if c.MaxRecentTurns < 0 {
		return &ValidationError{Field: "max_recent_turns", Message: "must be >= 0"}
	}
	if c.MaxRetries < 0 {
		return &ValidationError{Field: "max_retries", Message: "must be >= 0"}
	}
	if c.InitialRetryDelay < 0 || c.MaxRetryDelay < 0 {
		return &ValidationError{Field: "retry_delay", Message: "must be >= 0"}
	}
	if c.MaxRetryDelay > 0 && c.InitialRetryDelay > c.MaxRetryDelay {
		return &ValidationError{Field: "initial_retry_delay", Message: "must not exceed max_retry_delay"}
	}
	if c.MaxParallelTools < 1 {
		return &ValidationError{Field: "max_parallel_tools", Message: "must be >= 1"}
	}
	if c.ConsecutiveFailureThreshold < 1 {
		return &ValidationError{Field: "consecutive_failure_threshold", Message: "must be >= 1"}
	}
	if c.MaxToolCallHistory < 1 {
		return &ValidationError{Field: "max_tool_call_history", Message: "must be >= 1"}
	}
	if c.DedupeCacheSize < 1 {
		return &ValidationError{Field: "dedupe_cache_size", Message: "must be >= 1"}
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return &ValidationError{Field: "temperature", Message: "must be in [0, 2]"}
	}
	if c.TopP < 0 || c.TopP > 1 {
		return &ValidationError{Field: "top_p", Message: "must be in [0, 1]"}
	}

	switch c.SummaryMode {
	case SummaryModeModel, SummaryModeDeterministic:
	default:
		return &ValidationError{Field: "summary_mode", Message: fmt.Sprintf("unknown mode %q", c.SummaryMode)}
	}

	return c.Reasoning.validate()
}

func (r *ReasoningConfig) validate() error {
	switch r.Type {
	case ReasoningNone, ReasoningChainOfThought, ReasoningTreeOfThoughts:
	default:
		return &ValidationError{Field: "reasoning.type", Message: fmt.Sprintf("unknown type %q", r.Type)}
	}

	if r.ConfidenceThreshold < 0 || r.ConfidenceThreshold > 1 {
		return &ValidationError{Field: "reasoning.confidence_threshold", Message: "must be in [0, 1]"}
	}
	if r.AcceptanceThreshold < 0 || r.AcceptanceThreshold > 1 {
		return &ValidationError{Field: "reasoning.acceptance_threshold", Message: "must be in [0, 1]"}
	}

	if r.Type == ReasoningChainOfThought && r.MaxReasoningSteps < 1 {
		return &ValidationError{Field: "reasoning.max_reasoning_steps", Message: "must be >= 1"}
	}

	if r.Type == ReasoningTreeOfThoughts {
		if r.MaxDepth < 1 {
			return &ValidationError{Field: "reasoning.max_depth", Message: "must be >= 1"}
		}
		if r.MaxBranching < 1 {
			return &ValidationError{Field: "reasoning.max_branching", Message: "must be >= 1"}
		}
		switch r.ExplorationStrategy {
		case ExploreBestFirst, ExploreBeamSearch, ExploreDepthFirst:
		default:
			return &ValidationError{Field: "reasoning.exploration_strategy", Message: fmt.Sprintf("unknown strategy %q", r.ExplorationStrategy)}
		}
		if r.ExplorationStrategy == ExploreBeamSearch && r.BeamWidth < 1 {
			return &ValidationError{Field: "reasoning.beam_width", Message: "must be >= 1"}
		}
	}

	return nil
}
