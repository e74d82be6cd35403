// Package tools wraps external-service tool invocations with per-user
// credential binding. Wrappers return structured results instead of raising,
// so the agent runner always receives a clean outcome it can narrate.
package tools

import (
	"context"
	"fmt"
	"strings"
)

// Result statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Result is the structured outcome of one tool call.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// OK builds a success result carrying data.
func OK(data any) Result {
	return Result{Status: StatusOK, Data: data}
}

// Errorf builds an error result with a formatted user-safe message.
func Errorf(format string, args ...any) Result {
	return Result{Status: StatusError, Message: fmt.Sprintf(format, args...)}
}

// IsError reports whether the result carries an error status.
func (r Result) IsError() bool {
	return r.Status == StatusError
}

// Tool is one invocable capability exposed to the agent runner.
type Tool interface {
	Name() string
	Call(ctx context.Context, args map[string]any) (Result, error)
}

// UserIDArg is the per-call state key carrying the acting user's identity.
const UserIDArg = "user_id"

func argString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
