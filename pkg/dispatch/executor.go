package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Executor performs the actual business side effect of a tool call.
// Implementations live outside this package (send message, mutate
// ticket, call the payment provider).
type Executor interface {
	Execute(ctx context.Context, toolName string, args map[string]interface{}, invCtx Context) (interface{}, error)
}

// ExecutorError classifies an executor failure as retryable or not.
// Executors return it so the agent loop knows whether correcting
// nothing and retrying can ever succeed.
type ExecutorError struct {
	Retryable bool
	Message   string
}

// Error implements the error interface
func (e *ExecutorError) Error() string {
	return e.Message
}

// IsRetryable classifies an executor failure. Timeouts count as
// retryable; unclassified errors default to non-retryable.
func IsRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var execErr *ExecutorError
	if errors.As(err, &execErr) {
		return execErr.Retryable
	}
	return false
}

// MockExecutor is a configurable executor for testing
type MockExecutor struct {
	Result interface{}
	Err    error
	Delay  time.Duration

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records one Execute invocation
type MockCall struct {
	ToolName string
	Args     map[string]interface{}
	Context  Context
}

// Execute implements Executor
func (m *MockExecutor) Execute(ctx context.Context, toolName string, args map[string]interface{}, invCtx Context) (interface{}, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{ToolName: toolName, Args: args, Context: invCtx})
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.Err != nil {
		return nil, m.Err
	}
	return m.Result, nil
}

// Calls returns the recorded Execute invocations
func (m *MockExecutor) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}
