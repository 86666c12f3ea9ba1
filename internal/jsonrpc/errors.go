package jsonrpc

import "errors"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Application codes used by async deferral.
const (
	CodeAsyncPending = -799
	CodeNotCompleted = -789
)

// Messages paired with the async application codes.
const (
	MessageAsyncPending = "异步执行中"
	MessageNotCompleted = "未执行完成"
)

// ParseError reports a payload that is not valid JSON.
func ParseError(err error) *Error {
	return &Error{Code: CodeParseError, Message: "Parse error", Data: detail(err)}
}

// InvalidRequest reports a payload that is JSON but not a valid request.
func InvalidRequest(reason string) *Error {
	return &Error{Code: CodeInvalidRequest, Message: "Invalid Request", Data: map[string]any{"detail": reason}}
}

// MethodNotFound reports an unregistered method.
func MethodNotFound(method string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: "Method not found", Data: map[string]any{"method": method}}
}

// InvalidParams reports parameters a procedure could not accept.
func InvalidParams(err error) *Error {
	return &Error{Code: CodeInvalidParams, Message: "Invalid params", Data: detail(err)}
}

// InternalError wraps an arbitrary failure.
func InternalError(err error) *Error {
	return &Error{Code: CodeInternalError, Message: "Internal error", Data: detail(err)}
}

// AsyncPending is the placeholder error returned for a deferred call.
func AsyncPending(taskID string) *Error {
	return &Error{Code: CodeAsyncPending, Message: MessageAsyncPending, Data: map[string]any{"taskId": taskID}}
}

// NotCompleted is returned when a task has no result yet.
func NotCompleted() *Error {
	return &Error{Code: CodeNotCompleted, Message: MessageNotCompleted}
}

// AsError converts err to a JSON-RPC error. Application errors pass through
// unchanged; anything else becomes an internal error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return InternalError(err)
}

func detail(err error) map[string]any {
	if err == nil {
		return nil
	}
	return map[string]any{"detail": err.Error()}
}
