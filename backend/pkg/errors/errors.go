package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeTelegram represents Telegram transport errors
	ErrorTypeTelegram ErrorType = "telegram"
	// ErrorTypeAgent represents agent/LLM-related errors
	ErrorTypeAgent ErrorType = "agent"
	// ErrorTypeGraph represents graph database errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeTool represents tool execution errors
	ErrorTypeTool ErrorType = "tool"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
	// ErrorTypeMemory represents chat session memory errors
	ErrorTypeMemory ErrorType = "memory"
	// ErrorTypeLedger represents relational ledger errors
	ErrorTypeLedger ErrorType = "ledger"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// Kind reports the error category. Promoted to every typed error embedding BaseError.
func (e *BaseError) Kind() ErrorType {
	return e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Telegram Errors

// ErrTelegramSendFailed is returned when a reply cannot be delivered to a chat
type ErrTelegramSendFailed struct {
	*BaseError
	ChatID int64
}

func NewTelegramSendFailed(chatID int64, err error) *ErrTelegramSendFailed {
	return &ErrTelegramSendFailed{
		BaseError: NewBaseError(ErrorTypeTelegram, fmt.Sprintf("failed to send message to chat %d", chatID), err),
		ChatID:    chatID,
	}
}

// ErrTelegramUnauthorized is returned when a sender is not on the allowlist
var ErrTelegramUnauthorized = NewBaseError(ErrorTypeTelegram, "sender is not allowed to use this bot", nil)

// Agent Errors

// ErrAgentLLMFailed is returned when LLM request fails
type ErrAgentLLMFailed struct {
	*BaseError
	Model     string
	Attempts  int
	Retryable bool
}

func NewAgentLLMFailed(model string, attempts int, retryable bool, err error) *ErrAgentLLMFailed {
	return &ErrAgentLLMFailed{
		BaseError: NewBaseError(ErrorTypeAgent, fmt.Sprintf("LLM request failed after %d attempts", attempts), err),
		Model:     model,
		Attempts:  attempts,
		Retryable: retryable,
	}
}

// ErrAgentNoResponse is returned when LLM returns no response
var ErrAgentNoResponse = NewBaseError(ErrorTypeAgent, "no response from LLM", nil)

// ErrAgentInvalidIntent is returned when intent detection output cannot be parsed
type ErrAgentInvalidIntent struct {
	*BaseError
	Raw string
}

func NewAgentInvalidIntent(raw string, err error) *ErrAgentInvalidIntent {
	return &ErrAgentInvalidIntent{
		BaseError: NewBaseError(ErrorTypeAgent, "could not parse intent", err),
		Raw:       raw,
	}
}

// ErrAgentInvalidToolCall is returned when a tool call is invalid
type ErrAgentInvalidToolCall struct {
	*BaseError
	ToolName string
	Reason   string
}

func NewAgentInvalidToolCall(toolName, reason string) *ErrAgentInvalidToolCall {
	return &ErrAgentInvalidToolCall{
		BaseError: NewBaseError(ErrorTypeAgent, fmt.Sprintf("invalid tool call: %s", toolName), nil),
		ToolName:  toolName,
		Reason:    reason,
	}
}

// Graph Errors

// ErrGraphConnectionFailed is returned when Neo4j connection fails
type ErrGraphConnectionFailed struct {
	*BaseError
	URI string
}

func NewGraphConnectionFailed(uri string, err error) *ErrGraphConnectionFailed {
	return &ErrGraphConnectionFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("failed to connect to Neo4j: %s", uri), err),
		URI:       uri,
	}
}

// ErrGraphQueryFailed is returned when a graph query fails
type ErrGraphQueryFailed struct {
	*BaseError
	Query string
}

func NewGraphQueryFailed(query string, err error) *ErrGraphQueryFailed {
	return &ErrGraphQueryFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("query failed: %s", query), err),
		Query:     query,
	}
}

// ErrGraphUnsafeQuery is returned when generated Cypher is rejected before execution
type ErrGraphUnsafeQuery struct {
	*BaseError
	Query  string
	Reason string
}

func NewGraphUnsafeQuery(query, reason string) *ErrGraphUnsafeQuery {
	return &ErrGraphUnsafeQuery{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("query rejected: %s", reason), nil),
		Query:     query,
		Reason:    reason,
	}
}

// Tool Errors

// ErrToolExecutionFailed is returned when tool execution fails
type ErrToolExecutionFailed struct {
	*BaseError
	ToolName string
	Reason   string
}

func NewToolExecutionFailed(toolName, reason string, err error) *ErrToolExecutionFailed {
	return &ErrToolExecutionFailed{
		BaseError: NewBaseError(ErrorTypeTool, fmt.Sprintf("tool execution failed: %s", toolName), err),
		ToolName:  toolName,
		Reason:    reason,
	}
}

// ErrToolNotFound is returned when a requested tool is not found
type ErrToolNotFound struct {
	*BaseError
	ToolName string
}

func NewToolNotFound(toolName string) *ErrToolNotFound {
	return &ErrToolNotFound{
		BaseError: NewBaseError(ErrorTypeTool, fmt.Sprintf("tool not found: %s", toolName), nil),
		ToolName:  toolName,
	}
}

// Context Errors

// ErrContextCancelled is returned when context is cancelled
type ErrContextCancelled struct {
	*BaseError
	Operation string
}

func NewContextCancelled(operation string, err error) *ErrContextCancelled {
	return &ErrContextCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context cancelled: %s", operation), err),
		Operation: operation,
	}
}

// ErrContextTimeout is returned when context times out
type ErrContextTimeout struct {
	*BaseError
	Operation string
	Timeout   time.Duration
}

func NewContextTimeout(operation string, timeout time.Duration) *ErrContextTimeout {
	return &ErrContextTimeout{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context timeout: %s (timeout: %v)", operation, timeout), nil),
		Operation: operation,
		Timeout:   timeout,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Memory Errors

// ErrMemoryStoreFailed is returned when the session store cannot be read or written
type ErrMemoryStoreFailed struct {
	*BaseError
	Operation string
}

func NewMemoryStoreFailed(operation string, err error) *ErrMemoryStoreFailed {
	return &ErrMemoryStoreFailed{
		BaseError: NewBaseError(ErrorTypeMemory, fmt.Sprintf("memory store %s failed", operation), err),
		Operation: operation,
	}
}

// Ledger Errors

// ErrLedgerUnavailable is returned when the relational ledger is not configured or unreachable
var ErrLedgerUnavailable = NewBaseError(ErrorTypeLedger, "ledger is not available", nil)

// ErrLedgerWriteFailed is returned when mirroring a record to the ledger fails
type ErrLedgerWriteFailed struct {
	*BaseError
	Table string
}

func NewLedgerWriteFailed(table string, err error) *ErrLedgerWriteFailed {
	return &ErrLedgerWriteFailed{
		BaseError: NewBaseError(ErrorTypeLedger, fmt.Sprintf("failed to write %s", table), err),
		Table:     table,
	}
}

// Helper functions

type kinded interface {
	Kind() ErrorType
}

// IsErrorType checks if an error (or anything it wraps) is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if k, ok := err.(kinded); ok && k.Kind() == errType {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	// Context errors are not retryable
	if IsErrorType(err, ErrorTypeContext) {
		return false
	}
	var llmErr *ErrAgentLLMFailed
	if stderrors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	var unsafe *ErrGraphUnsafeQuery
	if stderrors.As(err, &unsafe) {
		return false
	}
	// Graph connection errors are retryable
	if IsErrorType(err, ErrorTypeGraph) {
		return true
	}
	return false
}
