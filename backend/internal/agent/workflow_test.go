package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendNode(label string) NodeFunc {
	return func(ctx context.Context, s *TurnState) (*TurnState, error) {
		s.ToolsUsed = append(s.ToolsUsed, label)
		return s, nil
	}
}

func TestWorkflow_LinearRun(t *testing.T) {
	wf := NewWorkflow()
	wf.AddNode("a", appendNode("a"))
	wf.AddNode("b", appendNode("b"))
	wf.SetEntryPoint("a")
	wf.AddEdge("a", "b")
	wf.AddEdge("b", End)

	compiled, err := wf.Compile()
	require.NoError(t, err)

	out, err := compiled.Run(context.Background(), &TurnState{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.ToolsUsed)
}

func TestWorkflow_ConditionalRoute(t *testing.T) {
	build := func(response string) *CompiledWorkflow {
		wf := NewWorkflow()
		wf.AddNode("first", func(ctx context.Context, s *TurnState) (*TurnState, error) {
			s.Response = response
			return s, nil
		})
		wf.AddNode("second", appendNode("second"))
		wf.SetEntryPoint("first")
		wf.AddConditionalEdges("first", checkUnifiedResult, map[string]string{
			"complete": End,
			"fallback": "second",
		})
		wf.AddEdge("second", End)
		compiled, err := wf.Compile()
		require.NoError(t, err)
		return compiled
	}

	out, err := build("done").Run(context.Background(), &TurnState{})
	require.NoError(t, err)
	assert.Empty(t, out.ToolsUsed)

	out, err = build("").Run(context.Background(), &TurnState{})
	require.NoError(t, err)
	assert.Equal(t, []string{"second"}, out.ToolsUsed)
}

func TestWorkflow_CompileErrors(t *testing.T) {
	wf := NewWorkflow()
	_, err := wf.Compile()
	assert.ErrorIs(t, err, ErrNoEntryPoint)

	wf.AddNode("a", appendNode("a"))
	wf.SetEntryPoint("a")
	wf.AddEdge("a", "missing")
	_, err = wf.Compile()
	assert.ErrorIs(t, err, ErrUnknownNode)

	wf = NewWorkflow()
	wf.AddNode("a", appendNode("a"))
	wf.SetEntryPoint("a")
	_, err = wf.Compile()
	assert.Error(t, err, "node without outgoing edge")
}

func TestWorkflow_MaxSteps(t *testing.T) {
	wf := NewWorkflow()
	wf.AddNode("loop", appendNode("loop"))
	wf.SetEntryPoint("loop")
	wf.AddEdge("loop", "loop")
	wf.SetMaxSteps(3)

	compiled, err := wf.Compile()
	require.NoError(t, err)

	out, err := compiled.Run(context.Background(), &TurnState{})
	assert.ErrorIs(t, err, ErrMaxSteps)
	assert.Len(t, out.ToolsUsed, 3)
}

func TestWorkflow_DanglingRoute(t *testing.T) {
	wf := NewWorkflow()
	wf.AddNode("a", appendNode("a"))
	wf.SetEntryPoint("a")
	wf.AddConditionalEdges("a", func(context.Context, *TurnState) string { return "nowhere" }, map[string]string{"done": End})

	compiled, err := wf.Compile()
	require.NoError(t, err)
	_, err = compiled.Run(context.Background(), &TurnState{})
	assert.ErrorIs(t, err, ErrDanglingRoute)
}

func TestWorkflow_CancelledContext(t *testing.T) {
	wf := NewWorkflow()
	wf.AddNode("a", appendNode("a"))
	wf.SetEntryPoint("a")
	wf.AddEdge("a", End)
	compiled, err := wf.Compile()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = compiled.Run(ctx, &TurnState{})
	assert.ErrorIs(t, err, context.Canceled)
}
