package value

// ChunkType identifies the kind of a stream chunk.
type ChunkType string

// Chunk types understood by the stream consumer.
const (
	ChunkTextDelta    ChunkType = "text-delta"
	ChunkToolCall     ChunkType = "tool-call"
	ChunkToolResult   ChunkType = "tool-result"
	ChunkObject       ChunkType = "object"
	ChunkFinish       ChunkType = "finish"
	ChunkStepFinish   ChunkType = "step-finish"
	ChunkStepComplete ChunkType = "step-complete"
	ChunkError        ChunkType = "error"
)

// TokenUsage counts tokens consumed by a model call or a whole run.
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	ReasoningTokens  int `json:"reasoningTokens,omitempty"`
	TotalTokens      int `json:"totalTokens"`
}

// Add returns the field-wise sum of u and other.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		ReasoningTokens:  u.ReasoningTokens + other.ReasoningTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// Chunk is one event of a step's output stream.
type Chunk struct {
	Type ChunkType `json:"type"`

	TextDelta string `json:"textDelta,omitempty"`

	// Tool call and tool result fields.
	ToolCallID string `json:"toolCallId,omitempty"`
	ToolName   string `json:"toolName,omitempty"`
	Args       any    `json:"args,omitempty"`
	Result     any    `json:"result,omitempty"`

	Object any `json:"object,omitempty"`

	FinishReason string      `json:"finishReason,omitempty"`
	Usage        *TokenUsage `json:"usage,omitempty"`

	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// IsTerminal reports whether the chunk ends a response stream.
func (c Chunk) IsTerminal() bool {
	switch c.Type {
	case ChunkFinish, ChunkStepComplete, ChunkError:
		return true
	default:
		return false
	}
}

// TextDelta returns a text-delta chunk.
func TextDelta(s string) Chunk {
	return Chunk{Type: ChunkTextDelta, TextDelta: s}
}

// Finish returns a finish chunk carrying usage, which may be nil.
func Finish(reason string, usage *TokenUsage) Chunk {
	return Chunk{Type: ChunkFinish, FinishReason: reason, Usage: usage}
}

// ErrorChunk returns an error chunk.
func ErrorChunk(message, code string) Chunk {
	return Chunk{Type: ChunkError, Error: message, Code: code}
}
