package live

import (
	"fmt"
	"slices"
)

const (
	// ResultOK is the generic acknowledgement returned to the model. It is
	// also returned when an argument is not a recognized enum member and the
	// state change was skipped.
	ResultOK = "ok"
	// ResultUnknownTool acknowledges calls to names outside the registry.
	ResultUnknownTool = "unknown tool"
)

// ToolFunc handles one invocation. result goes back to the model; status, if
// not empty, is shown to the user as a transient action status.
type ToolFunc func(args map[string]any) (result, status string)

// Tool is one registry entry.
type Tool struct {
	Spec   ToolSpec
	Handle ToolFunc
}

// Dispatcher maps tool names to handlers. Every call gets exactly one response
// carrying the call's id.
type Dispatcher struct {
	tools map[string]Tool
	order []string
}

func NewDispatcher(tools ...Tool) *Dispatcher {
	d := &Dispatcher{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if _, dup := d.tools[t.Spec.Name]; !dup {
			d.order = append(d.order, t.Spec.Name)
		}
		d.tools[t.Spec.Name] = t
	}
	return d
}

// Specs lists declarations in registration order.
func (d *Dispatcher) Specs() []ToolSpec {
	if d == nil {
		return nil
	}
	out := make([]ToolSpec, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.tools[name].Spec)
	}
	return out
}

// Dispatch runs the handler for call and returns its acknowledgement.
func (d *Dispatcher) Dispatch(call ToolCall) (ToolResponse, string) {
	resp := ToolResponse{ID: call.ID, Name: call.Name, Result: ResultUnknownTool}
	if d == nil {
		return resp, ""
	}
	t, ok := d.tools[call.Name]
	if !ok || t.Handle == nil {
		return resp, ""
	}
	result, status := t.Handle(call.Args)
	if result == "" {
		result = ResultOK
	}
	resp.Result = result
	return resp, status
}

// EnumTool builds a single-argument tool whose value must be one of allowed.
// Unrecognized values leave state untouched and are still acknowledged with
// ResultOK.
func EnumTool(name, description, param string, allowed []string, apply func(value string) string) Tool {
	return Tool{
		Spec: ToolSpec{
			Name:        name,
			Description: description,
			Params: []ToolParam{{
				Name:     param,
				Enum:     slices.Clone(allowed),
				Required: true,
			}},
		},
		Handle: func(args map[string]any) (string, string) {
			value, _ := args[param].(string)
			if !slices.Contains(allowed, value) {
				return ResultOK, ""
			}
			return ResultOK, apply(value)
		},
	}
}

// StringArg fetches a string argument, formatting non-string values.
func StringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
