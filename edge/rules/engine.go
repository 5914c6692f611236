// Package rules implements the edge rules engine: a loadable, hot-swappable
// list of named predicates evaluated against a numeric context map on every
// telemetry tick.
package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/ghuser/xscontrol/pkg/logger"
	"github.com/ghuser/xscontrol/pkg/model"
)

// Persister records rule firings. Satisfied by storage.EdgeStore.
type Persister interface {
	InsertEvent(name string, data any) error
}

type compiledRule struct {
	model.Rule
	predicate boolExpr
	freeVars  map[string]struct{}
}

// Engine holds an ordered, atomically-replaceable compiled rule set.
type Engine struct {
	log   logger.Logger
	store Persister

	mu    sync.RWMutex
	rules []compiledRule
}

// New returns an Engine with no rules loaded. store may be nil, in which
// case firings are evaluated but not persisted.
func New(log logger.Logger, store Persister) *Engine {
	return &Engine{log: log, store: store}
}

// Load parses the rules file at path and replaces the active rule set in
// one atomic swap. On any parse failure the previous rule set is retained
// and the error is returned; callers should log it and continue running
// with whatever rules were already loaded.
func (e *Engine) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read rules file %s: %w", path, err)
	}
	return e.loadBytes(path, data)
}

// LoadJSON compiles rules from an in-memory JSON payload, bypassing the
// file system read in Load. Pushed rulesets (edge/rulessync, edge/command)
// are written to disk and reloaded through Load instead.
func (e *Engine) LoadJSON(data []byte) error {
	return e.loadBytes("<pushed ruleset>", data)
}

func (e *Engine) loadBytes(source string, data []byte) error {
	var raw []model.Rule
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse rules from %s: %w", source, err)
	}

	compiled := make([]compiledRule, 0, len(raw))
	for _, r := range raw {
		pred, err := parsePredicate(r.If)
		if err != nil {
			return fmt.Errorf("rule %q: compile predicate %q: %w", r.Name, r.If, err)
		}
		vars := map[string]struct{}{}
		pred.collectVars(vars)
		compiled = append(compiled, compiledRule{Rule: r, predicate: pred, freeVars: vars})
	}

	e.mu.Lock()
	e.rules = compiled
	e.mu.Unlock()
	e.log.Info("rules loaded", "source", source, "count", len(compiled))
	return nil
}

// Rules returns a snapshot of the currently active rule definitions.
func (e *Engine) Rules() []model.Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.Rule, len(e.rules))
	for i, r := range e.rules {
		out[i] = r.Rule
	}
	return out
}

// Evaluate runs every rule whose free variables are all present in ctx. A
// predicate error is logged and that rule is skipped; evaluation of the
// remaining rules continues regardless. Each rule whose predicate
// evaluates true produces a firing persisted through the storage hook.
func (e *Engine) Evaluate(ctx model.RulesContext) {
	e.mu.RLock()
	active := e.rules
	e.mu.RUnlock()

	for _, r := range active {
		if !varsPresent(r.freeVars, ctx) {
			continue
		}

		fired, err := r.predicate.eval(ctx)
		if err != nil {
			e.log.Error("rule evaluation failed", "rule", r.Name, "error", err)
			continue
		}
		if !fired {
			continue
		}

		e.log.Warn("rule triggered", "rule", r.Name)
		if e.store == nil {
			continue
		}
		if err := e.store.InsertEvent(r.Name, ctx); err != nil {
			e.log.Error("failed to persist rule firing", "rule", r.Name, "error", err)
		}
	}
}

func varsPresent(vars map[string]struct{}, ctx model.RulesContext) bool {
	for v := range vars {
		if _, ok := ctx[v]; !ok {
			return false
		}
	}
	return true
}
