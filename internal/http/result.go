package httpapi

import "fmt"

// Result is the JSON envelope of every API response. Code is ResultSuccess
// or ResultError and Type mirrors it as "success" or "error".
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1
)

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

// Fail carries no result; clients read only the message.
func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: "error", Message: message}
}

func Failf(format string, args ...any) Result[any] {
	return Fail(fmt.Sprintf(format, args...))
}
