package live

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func modeTool(mode *string) Tool {
	return EnumTool("changeMode", "Switch the app mode.", "mode", []string{"chat", "image", "diary"}, func(v string) string {
		*mode = v
		return "Switched to " + v
	})
}

func TestDispatchEnumToolApplies(t *testing.T) {
	mode := "chat"
	d := NewDispatcher(modeTool(&mode))

	resp, status := d.Dispatch(ToolCall{ID: "call-1", Name: "changeMode", Args: map[string]any{"mode": "diary"}})

	assert.Equal(t, ToolResponse{ID: "call-1", Name: "changeMode", Result: ResultOK}, resp)
	assert.Equal(t, "Switched to diary", status)
	assert.Equal(t, "diary", mode)
}

func TestDispatchEnumToolRejectsUnknownValue(t *testing.T) {
	mode := "chat"
	d := NewDispatcher(modeTool(&mode))

	resp, status := d.Dispatch(ToolCall{ID: "call-2", Name: "changeMode", Args: map[string]any{"mode": "InvalidValue"}})

	assert.Equal(t, "call-2", resp.ID)
	assert.Equal(t, ResultOK, resp.Result)
	assert.Empty(t, status)
	assert.Equal(t, "chat", mode)
}

func TestDispatchEnumToolMissingArgument(t *testing.T) {
	mode := "chat"
	d := NewDispatcher(modeTool(&mode))

	resp, _ := d.Dispatch(ToolCall{ID: "call-3", Name: "changeMode"})
	assert.Equal(t, ResultOK, resp.Result)
	assert.Equal(t, "chat", mode)
}

func TestDispatchUnknownTool(t *testing.T) {
	d := NewDispatcher()
	resp, status := d.Dispatch(ToolCall{ID: "x", Name: "launchRocket"})
	assert.Equal(t, ToolResponse{ID: "x", Name: "launchRocket", Result: ResultUnknownTool}, resp)
	assert.Empty(t, status)

	var nilDispatcher *Dispatcher
	resp, _ = nilDispatcher.Dispatch(ToolCall{ID: "y", Name: "anything"})
	assert.Equal(t, "y", resp.ID)
	assert.Equal(t, ResultUnknownTool, resp.Result)
}

func TestDispatchEmptyResultDefaultsToOK(t *testing.T) {
	d := NewDispatcher(Tool{
		Spec:   ToolSpec{Name: "noop"},
		Handle: func(map[string]any) (string, string) { return "", "" },
	})
	resp, _ := d.Dispatch(ToolCall{ID: "1", Name: "noop"})
	assert.Equal(t, ResultOK, resp.Result)
}

func TestDispatcherSpecsKeepRegistrationOrder(t *testing.T) {
	mode := ""
	d := NewDispatcher(
		Tool{Spec: ToolSpec{Name: "b"}},
		modeTool(&mode),
		Tool{Spec: ToolSpec{Name: "a"}},
	)
	specs := d.Specs()
	require.Len(t, specs, 3)
	assert.Equal(t, "b", specs[0].Name)
	assert.Equal(t, "changeMode", specs[1].Name)
	assert.Equal(t, []string{"chat", "image", "diary"}, specs[1].Params[0].Enum)
	assert.Equal(t, "a", specs[2].Name)

	var nilDispatcher *Dispatcher
	assert.Nil(t, nilDispatcher.Specs())
}

func TestStringArg(t *testing.T) {
	args := map[string]any{"s": "text", "n": 3.5, "nil": nil}
	assert.Equal(t, "text", StringArg(args, "s"))
	assert.Equal(t, "3.5", StringArg(args, "n"))
	assert.Empty(t, StringArg(args, "nil"))
	assert.Empty(t, StringArg(args, "missing"))
}
