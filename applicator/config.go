package applicator

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/pflag"
)

const (
	// DefaultMaxScopeDepth bounds scope nesting for corrupted streams.
	DefaultMaxScopeDepth = 256

	maxScopeDepthLimit = 1 << 16
)

// Config controls which scope interiors a run descends into.
type Config struct {
	// SkipProcedureBodies jumps from a procedure record straight to its end
	// record, leaving nested blocks, data and labels unapplied.
	SkipProcedureBodies bool `yaml:"skip_procedure_bodies"`
	// SkipBlockBodies does the same for lexical blocks.
	SkipBlockBodies bool `yaml:"skip_block_bodies"`
	// SkipInlineSites does the same for inline call sites.
	SkipInlineSites bool `yaml:"skip_inline_sites"`
	// MaxScopeDepth is the deepest scope nesting accepted.
	MaxScopeDepth int `yaml:"max_scope_depth"`
}

// DefaultConfig returns a Config that applies everything.
func DefaultConfig() Config {
	return Config{MaxScopeDepth: DefaultMaxScopeDepth}
}

// RegisterFlags registers the config flags on f, using the current values
// as defaults.
func (cfg *Config) RegisterFlags(f *pflag.FlagSet) {
	f.BoolVar(&cfg.SkipProcedureBodies, "skip-procedure-bodies", cfg.SkipProcedureBodies, "do not apply records nested in procedures")
	f.BoolVar(&cfg.SkipBlockBodies, "skip-block-bodies", cfg.SkipBlockBodies, "do not apply records nested in lexical blocks")
	f.BoolVar(&cfg.SkipInlineSites, "skip-inline-sites", cfg.SkipInlineSites, "do not apply records nested in inline call sites")
	f.IntVar(&cfg.MaxScopeDepth, "max-scope-depth", cfg.MaxScopeDepth, "maximum scope nesting depth")
}

// Validate checks the config for invalid values.
func (cfg *Config) Validate() error {
	var merr *multierror.Error
	if cfg.MaxScopeDepth < 1 {
		merr = multierror.Append(merr, fmt.Errorf("%w: max-scope-depth must be positive, got %d", ErrInvalidConfig, cfg.MaxScopeDepth))
	}
	if cfg.MaxScopeDepth > maxScopeDepthLimit {
		merr = multierror.Append(merr, fmt.Errorf("%w: max-scope-depth %d exceeds %d", ErrInvalidConfig, cfg.MaxScopeDepth, maxScopeDepthLimit))
	}
	return merr.ErrorOrNil()
}

func (cfg *Config) skips(k ScopeKind) bool {
	switch k {
	case ScopeProcedure, ScopeProcedureID, ScopeThunk:
		return cfg.SkipProcedureBodies
	case ScopeBlock:
		return cfg.SkipBlockBodies
	case ScopeInlineSite:
		return cfg.SkipInlineSites
	}
	return false
}
