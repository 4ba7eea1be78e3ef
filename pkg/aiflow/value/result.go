package value

import (
	"encoding/json"
	"fmt"
)

// ResultType classifies a resolved step value.
type ResultType string

// Result types, in classification precedence order (error aside).
const (
	TypeObject      ResultType = "object"
	TypeText        ResultType = "text"
	TypeToolCalls   ResultType = "toolCalls"
	TypeToolResults ResultType = "toolResults"
	TypeItems       ResultType = "items"
	TypeError       ResultType = "error"
)

// Error codes used by synthesized error results.
const (
	CodeError         = "error"
	CodeCancelled     = "cancelled"
	CodeTimeout       = "timeout"
	CodeIncomplete    = "incomplete"
	CodeStreamFailure = "stream_failure"
)

// ToolCall is a model's request to invoke a tool.
type ToolCall struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	Args       any    `json:"args,omitempty"`
}

// ToolResult is the outcome of a tool invocation.
type ToolResult struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	Result     any    `json:"result,omitempty"`
}

// ErrorResult is the value of a step that failed. It implements error.
type ErrorResult struct {
	Type    string `json:"type"`
	Message string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// NewErrorResult returns an ErrorResult with Type "error".
func NewErrorResult(message, code string) *ErrorResult {
	return &ErrorResult{Type: string(TypeError), Message: message, Code: code}
}

// Error implements the error interface.
func (e *ErrorResult) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// Result is a resolved step value. Kind, when empty, is derived from the
// populated fields: object, then text, tool calls, tool results, items.
type Result struct {
	Kind        ResultType
	Text        string
	Object      any
	ToolCalls   []ToolCall
	ToolResults []ToolResult
	Items       []any
	Err         *ErrorResult
}

// TextResult returns a text result.
func TextResult(s string) *Result {
	return &Result{Kind: TypeText, Text: s}
}

// ObjectResult returns an object result.
func ObjectResult(v any) *Result {
	return &Result{Kind: TypeObject, Object: v}
}

// ItemsResult returns an items result.
func ItemsResult(items []any) *Result {
	return &Result{Kind: TypeItems, Items: items}
}

// ErrResult wraps an ErrorResult.
func ErrResult(e *ErrorResult) *Result {
	return &Result{Kind: TypeError, Err: e}
}

// Type returns the result's classification.
func (r *Result) Type() ResultType {
	if r.Kind != "" {
		return r.Kind
	}
	switch {
	case r.Err != nil:
		return TypeError
	case r.Object != nil:
		return TypeObject
	case r.Text != "":
		return TypeText
	case len(r.ToolCalls) > 0:
		return TypeToolCalls
	case len(r.ToolResults) > 0:
		return TypeToolResults
	case r.Items != nil:
		return TypeItems
	default:
		return TypeText
	}
}

// Simple unwraps the result to its bare payload.
func (r *Result) Simple() any {
	switch r.Type() {
	case TypeError:
		return r.Err
	case TypeObject:
		return r.Object
	case TypeToolCalls:
		return r.ToolCalls
	case TypeToolResults:
		return r.ToolResults
	case TypeItems:
		return r.Items
	default:
		return r.Text
	}
}

// AsText renders the result as a string. Text is returned as-is, errors as
// their message, everything else as JSON.
func (r *Result) AsText() string {
	switch r.Type() {
	case TypeText:
		return r.Text
	case TypeError:
		return r.Err.Message
	default:
		data, err := json.Marshal(r.Simple())
		if err != nil {
			return fmt.Sprintf("%v", r.Simple())
		}
		return string(data)
	}
}

// MarshalJSON encodes the result in its result-shaped form, e.g.
// {"text":"hi"} or {"type":"error","error":"...","code":"..."}.
func (r *Result) MarshalJSON() ([]byte, error) {
	switch r.Type() {
	case TypeError:
		return json.Marshal(r.Err)
	case TypeObject:
		return json.Marshal(map[string]any{"object": r.Object})
	case TypeToolCalls:
		return json.Marshal(map[string]any{"toolCalls": r.ToolCalls})
	case TypeToolResults:
		return json.Marshal(map[string]any{"toolResults": r.ToolResults})
	case TypeItems:
		return json.Marshal(map[string]any{"items": r.Items})
	default:
		return json.Marshal(map[string]any{"text": r.Text})
	}
}

// chunks renders a resolved result as the chunk sequence a stream producing
// it would have emitted.
func (r *Result) chunks() []Chunk {
	switch r.Type() {
	case TypeError:
		return []Chunk{ErrorChunk(r.Err.Message, r.Err.Code)}
	case TypeObject:
		return []Chunk{{Type: ChunkObject, Object: r.Object}, Finish("stop", nil)}
	case TypeToolCalls:
		out := make([]Chunk, 0, len(r.ToolCalls)+1)
		for _, tc := range r.ToolCalls {
			out = append(out, Chunk{Type: ChunkToolCall, ToolCallID: tc.ToolCallID, ToolName: tc.ToolName, Args: tc.Args})
		}
		return append(out, Finish("tool-calls", nil))
	case TypeToolResults:
		out := make([]Chunk, 0, len(r.ToolResults)+1)
		for _, tr := range r.ToolResults {
			out = append(out, Chunk{Type: ChunkToolResult, ToolCallID: tr.ToolCallID, ToolName: tr.ToolName, Result: tr.Result})
		}
		return append(out, Finish("stop", nil))
	case TypeItems:
		return []Chunk{{Type: ChunkObject, Object: r.Items}, Finish("stop", nil)}
	default:
		return []Chunk{TextDelta(r.Text), Finish("stop", nil)}
	}
}

// resultKeys are the map keys that mark a map as already result-shaped.
var resultKeys = []string{"object", "text", "toolCalls", "toolResults", "items"}

// isResultShaped reports whether m is already in result form.
func isResultShaped(m map[string]any) bool {
	if t, ok := m["type"].(string); ok && t == string(TypeError) {
		return true
	}
	for _, k := range resultKeys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

// resultFromMap converts a result-shaped map.
func resultFromMap(m map[string]any) *Result {
	if t, ok := m["type"].(string); ok && t == string(TypeError) {
		msg, _ := m["error"].(string)
		code, _ := m["code"].(string)
		if msg == "" {
			msg = "step failed"
		}
		return ErrResult(NewErrorResult(msg, code))
	}

	r := &Result{}
	if v, ok := m["object"]; ok {
		r.Object = v
	}
	if v, ok := m["text"]; ok {
		if s, isString := v.(string); isString {
			r.Text = s
		} else {
			r.Text = fmt.Sprintf("%v", v)
		}
	}
	if v, ok := m["toolCalls"]; ok {
		if err := convert(v, &r.ToolCalls); err != nil {
			return ErrResult(NewErrorResult("decode toolCalls: "+err.Error(), CodeError))
		}
	}
	if v, ok := m["toolResults"]; ok {
		if err := convert(v, &r.ToolResults); err != nil {
			return ErrResult(NewErrorResult("decode toolResults: "+err.Error(), CodeError))
		}
	}
	if v, ok := m["items"]; ok {
		if items, isSlice := toItems(v); isSlice {
			r.Items = items
		}
	}

	// Classify in precedence order over the keys actually present.
	switch {
	case hasKey(m, "object"):
		r.Kind = TypeObject
	case hasKey(m, "text"):
		r.Kind = TypeText
	case hasKey(m, "toolCalls"):
		r.Kind = TypeToolCalls
	case hasKey(m, "toolResults"):
		r.Kind = TypeToolResults
	default:
		r.Kind = TypeItems
	}
	return r
}

func hasKey(m map[string]any, k string) bool {
	_, ok := m[k]
	return ok
}

// convert re-decodes v into out through JSON.
func convert(v any, out any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
