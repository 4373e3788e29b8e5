package conversation

import "encoding/json"

// CallParams is the parsed, validated payload of a tool invocation: the
// tool name plus its arguments.
type CallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ParseError records why a raw tool-call payload could not be parsed into
// CallParams (malformed JSON args, unknown tool name at parse time, …).
type ParseError struct {
	Message string `json:"message"`
	Raw     string `json:"raw,omitempty"`
}

func (e *ParseError) Error() string { return e.Message }

// Result is a minimal Ok/Err sum type, mirroring the source's Result<T, E>
// so ToolRequest.Call can express "parsed" vs "failed to parse" without a
// sentinel zero value.
type Result[T any, E error] struct {
	value T
	err   E
	ok    bool
}

func Ok[T any, E error](v T) Result[T, E] {
	return Result[T, E]{value: v, ok: true}
}

func Err[T any, E error](e E) Result[T, E] {
	return Result[T, E]{err: e, ok: false}
}

func (r Result[T, E]) IsOk() bool { return r.ok }

// Unwrap returns the contained value and whether it was present.
func (r Result[T, E]) Unwrap() (T, bool) { return r.value, r.ok }

// UnwrapErr returns the contained error and whether it was present.
func (r Result[T, E]) UnwrapErr() (E, bool) { return r.err, !r.ok }

// ToolRequest is the id-correlated wrapper around a tool invocation attempt:
// either a successfully parsed CallParams or a ParseError, plus metadata
// attached by the caller (tool_meta) or the driver (metadata).
type ToolRequest struct {
	ID       string                    `json:"id"`
	ToolCall Result[*CallParams, *ParseError] `json:"-"`
	Metadata map[string]interface{}   `json:"metadata,omitempty"`
	ToolMeta map[string]interface{}   `json:"tool_meta,omitempty"`
}

// NewToolRequest builds a successfully-parsed ToolRequest.
func NewToolRequest(id string, call *CallParams) *ToolRequest {
	return &ToolRequest{
		ID:       id,
		ToolCall: Ok[*CallParams, *ParseError](call),
		Metadata: make(map[string]interface{}),
		ToolMeta: make(map[string]interface{}),
	}
}

// NewFailedToolRequest builds a ToolRequest whose raw payload failed to parse.
func NewFailedToolRequest(id string, parseErr *ParseError) *ToolRequest {
	return &ToolRequest{
		ID:       id,
		ToolCall: Err[*CallParams, *ParseError](parseErr),
		Metadata: make(map[string]interface{}),
		ToolMeta: make(map[string]interface{}),
	}
}

// MarshalJSON flattens the ToolCall result for the wire: {"ok": {...}} or
// {"err": {...}}.
func (t *ToolRequest) MarshalJSON() ([]byte, error) {
	type wire struct {
		ID       string                 `json:"id"`
		Ok       *CallParams            `json:"ok,omitempty"`
		Err      *ParseError            `json:"err,omitempty"`
		Metadata map[string]interface{} `json:"metadata,omitempty"`
		ToolMeta map[string]interface{} `json:"tool_meta,omitempty"`
	}
	w := wire{ID: t.ID, Metadata: t.Metadata, ToolMeta: t.ToolMeta}
	if v, ok := t.ToolCall.Unwrap(); ok {
		w.Ok = v
	} else {
		e, _ := t.ToolCall.UnwrapErr()
		w.Err = e
	}
	return json.Marshal(w)
}

// ErrorData describes a dispatch-time failure surfaced through ToolCallResult.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorData) Error() string { return e.Message }

// ErrorCodeCancelled is the ErrorData.Code used when a dispatch is aborted by its
// cancellation token (§4.K, §5).
const ErrorCodeCancelled = "cancelled"

// ToolCallOutput is the successful payload a dispatch resolves to.
type ToolCallOutput struct {
	Output   string                 `json:"output"`
	Display  string                 `json:"display,omitempty"`
	IsError  bool                   `json:"is_error"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ServerNotification is one element of a ToolCallResult's lazy notification
// stream (progress updates, partial output) emitted before the final result.
type ServerNotification struct {
	RequestID string                 `json:"request_id"`
	Kind      string                 `json:"kind"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// ToolCallResult is the §3/§4.K dispatch handle: a channel of
// ServerNotification followed by exactly one terminal Result.
type ToolCallResult struct {
	Notifications <-chan ServerNotification
	Result        <-chan Result[*ToolCallOutput, *ErrorData]
}
