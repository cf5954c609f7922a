package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamAccumulator_TextOnly(t *testing.T) {
	a := newStreamAccumulator()
	a.appendText("hel")
	a.appendText("lo")

	resp, err := a.finalize()
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.False(t, resp.IsToolCalls())
}

func TestStreamAccumulator_SingleToolCall(t *testing.T) {
	a := newStreamAccumulator()
	a.setToolMeta(0, "call_1", "get_weather")
	a.appendArgs(0, `{"city":`)
	a.appendArgs(0, `"nyc"}`)

	resp, err := a.finalize()
	require.NoError(t, err)
	require.True(t, resp.IsToolCalls())
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "get_weather", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"city":"nyc"}`, string(resp.ToolCalls[0].Arguments))
}

func TestStreamAccumulator_MultipleToolCallsPreserveIndexOrder(t *testing.T) {
	a := newStreamAccumulator()
	a.setToolMeta(1, "call_b", "second")
	a.appendArgs(1, "{}")
	a.setToolMeta(0, "call_a", "first")
	a.appendArgs(0, "{}")

	resp, err := a.finalize()
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, "call_a", resp.ToolCalls[0].ID)
	assert.Equal(t, "call_b", resp.ToolCalls[1].ID)
}

func TestStreamAccumulator_MalformedArgsFail(t *testing.T) {
	a := newStreamAccumulator()
	a.setToolMeta(0, "call_1", "broken")
	a.appendArgs(0, `{"city":`) // never closed

	_, err := a.finalize()
	assert.Error(t, err)
	var pe *ParseFailedError
	assert.ErrorAs(t, err, &pe)
}

func TestStreamAccumulator_EmptyArgsDefaultsToEmptyObject(t *testing.T) {
	a := newStreamAccumulator()
	a.setToolMeta(0, "call_1", "no_args")

	resp, err := a.finalize()
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(resp.ToolCalls[0].Arguments))
}
