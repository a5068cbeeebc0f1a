// Package policy provides the CEL-based spending policy engine.
package policy

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/agentic-finance/kestrel/internal/domain"
)

// Engine compiles and evaluates operator-authored spending policies.
// Matching policies raise advisory flags; they never block a transaction
// and never touch the resilience score.
type Engine struct {
	mu         sync.RWMutex
	env        *cel.Env
	compiled   map[string]*CompiledPolicy
	maxWorkers int
}

// CompiledPolicy holds a pre-compiled CEL program.
type CompiledPolicy struct {
	Config  *domain.PolicyConfig
	Program cel.Program
}

// NewEngine creates a policy engine with the transaction and recipient
// context variables declared.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("recipient", cel.StringType),
		cel.Variable("purpose", cel.StringType),
		cel.Variable("recipient_tx_count", cel.IntType),
		cel.Variable("recipient_total", cel.DoubleType),
		cel.Variable("recipient_share", cel.DoubleType),
		cel.Variable("resilience_score", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:        env,
		compiled:   make(map[string]*CompiledPolicy),
		maxWorkers: maxWorkers,
	}, nil
}

// ValidatePolicy compiles a policy without loading it.
func (e *Engine) ValidatePolicy(cfg *domain.PolicyConfig) error {
	if cfg == nil {
		return fmt.Errorf("policy config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compilePolicy(cfg)
	return err
}

// LoadPolicy compiles and loads a policy into the engine.
func (e *Engine) LoadPolicy(cfg *domain.PolicyConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compilePolicy(cfg)
	if err != nil {
		return err
	}

	e.compiled[cfg.ID] = compiled

	return nil
}

// LoadPolicies compiles and loads the enabled policies from a list.
func (e *Engine) LoadPolicies(configs []*domain.PolicyConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadPolicy(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// Reload clears all loaded policies and loads new ones. This enables
// hot-reloading after policy CRUD without restarting the engine.
func (e *Engine) Reload(configs []*domain.PolicyConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	fresh := make(map[string]*CompiledPolicy)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compilePolicy(cfg)
		if err != nil {
			return err
		}
		fresh[cfg.ID] = compiled
	}

	e.compiled = fresh

	return nil
}

// Unload removes a policy from the engine if loaded.
func (e *Engine) Unload(policyID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.compiled, policyID)
}

// Input holds the transaction and recipient context a policy sees.
type Input struct {
	Amount           float64
	Recipient        string
	Purpose          string
	RecipientTxCount int
	RecipientTotal   float64
	RecipientShare   float64
	ResilienceScore  int
}

// EvaluateAll evaluates every loaded policy against the input and
// returns the flags of the matching ones. A policy that errors at
// evaluation time is skipped; flags carry only confirmed matches.
func (e *Engine) EvaluateAll(input *Input) []domain.PolicyFlag {
	e.mu.RLock()
	policies := make([]*CompiledPolicy, 0, len(e.compiled))
	for _, p := range e.compiled {
		policies = append(policies, p)
	}
	e.mu.RUnlock()

	if len(policies) == 0 {
		return nil
	}

	activation := map[string]any{
		"amount":             input.Amount,
		"recipient":          input.Recipient,
		"purpose":            input.Purpose,
		"recipient_tx_count": int64(input.RecipientTxCount),
		"recipient_total":    input.RecipientTotal,
		"recipient_share":    input.RecipientShare,
		"resilience_score":   int64(input.ResilienceScore),
	}

	matched := make([]bool, len(policies))
	var wg sync.WaitGroup

	sem := make(chan struct{}, e.maxWorkers)

	for i, p := range policies {
		wg.Add(1)
		go func(idx int, cp *CompiledPolicy) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			out, _, err := cp.Program.Eval(activation)
			if err != nil {
				return
			}
			if b, ok := out.(types.Bool); ok && bool(b) {
				matched[idx] = true
			}
		}(i, p)
	}

	wg.Wait()

	var flags []domain.PolicyFlag
	for i, p := range policies {
		if matched[i] {
			flags = append(flags, domain.PolicyFlag{
				PolicyID: p.Config.ID,
				Name:     p.Config.Name,
				Message:  p.Config.Message,
			})
		}
	}

	return flags
}

// Count returns the number of loaded policies.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// Loaded returns the currently loaded policy configurations.
func (e *Engine) Loaded() []*domain.PolicyConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	configs := make([]*domain.PolicyConfig, 0, len(e.compiled))
	for _, p := range e.compiled {
		configs = append(configs, p.Config)
	}
	return configs
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]*CompiledPolicy)
	return nil
}

func (e *Engine) compilePolicy(cfg *domain.PolicyConfig) (*CompiledPolicy, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile policy %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("policy %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for policy %s: %w", cfg.ID, err)
	}

	return &CompiledPolicy{
		Config:  cfg,
		Program: program,
	}, nil
}
