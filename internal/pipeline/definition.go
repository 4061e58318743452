package pipeline

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jonathan/ideaforge/internal/types"
)

// Expectation is one weighted quality check over the final run state
type Expectation struct {
	Name   string
	Weight float64
	Check  func(state types.RunState) (bool, string)
}

// Definition is a named, fixed sequence of steps
type Definition struct {
	Name         string
	Steps        []Descriptor
	Expectations []Expectation
}

// StepNames returns the step names in execution order
func (d *Definition) StepNames() []string {
	names := make([]string, len(d.Steps))
	for i, s := range d.Steps {
		names[i] = s.Step.Name()
	}
	return names
}

// Validate checks the definition is usable
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("pipeline name is empty")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("pipeline %s has no steps", d.Name)
	}
	seen := make(map[string]bool, len(d.Steps))
	for i, s := range d.Steps {
		if s.Step == nil {
			return fmt.Errorf("pipeline %s: step %d is nil", d.Name, i)
		}
		name := s.Step.Name()
		if seen[name] {
			return fmt.Errorf("pipeline %s: duplicate step %s", d.Name, name)
		}
		seen[name] = true
	}
	for _, e := range d.Expectations {
		if e.Weight <= 0 {
			return fmt.Errorf("pipeline %s: expectation %s must have a positive weight", d.Name, e.Name)
		}
		if e.Check == nil {
			return fmt.Errorf("pipeline %s: expectation %s has no check", d.Name, e.Name)
		}
	}
	return nil
}

// NewRun creates a queued run of the pipeline for projectID
func (d *Definition) NewRun(projectID string) *types.Run {
	return &types.Run{
		ID:        uuid.New(),
		ProjectID: projectID,
		Pipeline:  d.Name,
		Status:    types.RunStatusQueued,
		Steps:     d.StepNames(),
		Errors:    []types.RunError{},
		Artifacts: []types.Artifact{},
	}
}

// Evaluate runs every expectation against state.
func (d *Definition) Evaluate(state types.RunState) []types.QualityCheck {
	checks := make([]types.QualityCheck, 0, len(d.Expectations))
	for _, e := range d.Expectations {
		ok, detail := e.Check(state)
		checks = append(checks, types.QualityCheck{Name: e.Name, Passed: ok, Detail: detail})
	}
	return checks
}

// Score is the weighted share of expectations met, in [0, 1]. A pipeline
// without expectations scores 1.
func (d *Definition) Score(state types.RunState) float64 {
	var total, met float64
	for _, e := range d.Expectations {
		total += e.Weight
		if ok, _ := e.Check(state); ok {
			met += e.Weight
		}
	}
	if total == 0 {
		return 1
	}
	return met / total
}

// Catalog maps pipeline names to definitions
type Catalog struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewCatalog creates a catalog holding defs
func NewCatalog(defs ...*Definition) (*Catalog, error) {
	c := &Catalog{defs: make(map[string]*Definition)}
	for _, d := range defs {
		if err := c.Register(d); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register adds a definition. Names are unique.
func (c *Catalog) Register(d *Definition) error {
	if err := d.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.defs[d.Name]; ok {
		return fmt.Errorf("pipeline %s already registered", d.Name)
	}
	c.defs[d.Name] = d
	return nil
}

// Get looks up a definition by name
func (c *Catalog) Get(name string) (*Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.defs[name]
	return d, ok
}

// Names lists the registered pipelines
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.defs))
	for n := range c.defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
