package agent

import (
	"context"
	"errors"
	"fmt"
)

// End terminates a workflow run when used as an edge target
const End = "__end__"

const defaultMaxSteps = 25

var (
	ErrNoEntryPoint  = errors.New("workflow has no entry point")
	ErrMaxSteps      = errors.New("workflow exceeded maximum steps")
	ErrUnknownNode   = errors.New("unknown workflow node")
	ErrDanglingRoute = errors.New("conditional route returned an unmapped key")
)

// NodeFunc transforms the turn state
type NodeFunc func(ctx context.Context, state *TurnState) (*TurnState, error)

// RouterFunc picks the next route key from the state
type RouterFunc func(ctx context.Context, state *TurnState) string

type conditionalEdge struct {
	router RouterFunc
	routes map[string]string
}

// Workflow is a small directed state graph. Nodes run one at a time; each
// node has either a fixed edge or a conditional edge to its successor.
type Workflow struct {
	nodes       map[string]NodeFunc
	edges       map[string]string
	conditional map[string]conditionalEdge
	entry       string
	maxSteps    int
}

// NewWorkflow creates an empty workflow
func NewWorkflow() *Workflow {
	return &Workflow{
		nodes:       make(map[string]NodeFunc),
		edges:       make(map[string]string),
		conditional: make(map[string]conditionalEdge),
		maxSteps:    defaultMaxSteps,
	}
}

// AddNode registers a node
func (w *Workflow) AddNode(name string, fn NodeFunc) {
	w.nodes[name] = fn
}

// AddEdge connects from to to unconditionally
func (w *Workflow) AddEdge(from, to string) {
	w.edges[from] = to
}

// AddConditionalEdges routes from a node through router; routes maps router keys to nodes
func (w *Workflow) AddConditionalEdges(from string, router RouterFunc, routes map[string]string) {
	w.conditional[from] = conditionalEdge{router: router, routes: routes}
}

// SetEntryPoint sets the first node
func (w *Workflow) SetEntryPoint(name string) {
	w.entry = name
}

// SetMaxSteps bounds the number of node executions per run
func (w *Workflow) SetMaxSteps(n int) {
	if n > 0 {
		w.maxSteps = n
	}
}

// Compile checks that every edge points at a known node
func (w *Workflow) Compile() (*CompiledWorkflow, error) {
	if w.entry == "" {
		return nil, ErrNoEntryPoint
	}
	if _, ok := w.nodes[w.entry]; !ok {
		return nil, fmt.Errorf("%w: entry %q", ErrUnknownNode, w.entry)
	}
	known := func(name string) bool {
		if name == End {
			return true
		}
		_, ok := w.nodes[name]
		return ok
	}
	for from, to := range w.edges {
		if !known(from) || !known(to) {
			return nil, fmt.Errorf("%w: edge %s -> %s", ErrUnknownNode, from, to)
		}
	}
	for from, c := range w.conditional {
		if !known(from) {
			return nil, fmt.Errorf("%w: conditional edge from %q", ErrUnknownNode, from)
		}
		for key, to := range c.routes {
			if !known(to) {
				return nil, fmt.Errorf("%w: route %q -> %q", ErrUnknownNode, key, to)
			}
		}
	}
	for name := range w.nodes {
		_, fixed := w.edges[name]
		_, cond := w.conditional[name]
		if !fixed && !cond {
			return nil, fmt.Errorf("node %q has no outgoing edge", name)
		}
	}

	return &CompiledWorkflow{
		nodes:       w.nodes,
		edges:       w.edges,
		conditional: w.conditional,
		entry:       w.entry,
		maxSteps:    w.maxSteps,
	}, nil
}

// CompiledWorkflow is an immutable, runnable workflow
type CompiledWorkflow struct {
	nodes       map[string]NodeFunc
	edges       map[string]string
	conditional map[string]conditionalEdge
	entry       string
	maxSteps    int
}

// Run executes nodes from the entry point until End
func (c *CompiledWorkflow) Run(ctx context.Context, state *TurnState) (*TurnState, error) {
	current := c.entry
	for step := 0; current != End; step++ {
		if step >= c.maxSteps {
			return state, ErrMaxSteps
		}
		if err := ctx.Err(); err != nil {
			return state, err
		}

		node := c.nodes[current]
		next, err := node(ctx, state)
		if err != nil {
			return state, fmt.Errorf("node %s: %w", current, err)
		}
		if next != nil {
			state = next
		}

		if cond, ok := c.conditional[current]; ok {
			key := cond.router(ctx, state)
			target, ok := cond.routes[key]
			if !ok {
				return state, fmt.Errorf("%w: %s from %s", ErrDanglingRoute, key, current)
			}
			current = target
			continue
		}
		current = c.edges[current]
	}
	return state, nil
}
