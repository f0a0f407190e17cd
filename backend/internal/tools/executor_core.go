package tools

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bizgraph-bot/backend/internal/adapter"
	"bizgraph-bot/backend/internal/graph"
	"bizgraph-bot/backend/internal/ledger"
	"bizgraph-bot/backend/pkg/config"
	"bizgraph-bot/backend/pkg/logger"
)

// ExecutionContext holds context for tool execution
type ExecutionContext struct {
	UserID string
	// Message is the raw user text, kept on ledger rows
	Message string
	// Date is when the user sent the message; default transaction date
	Date time.Time
	// Conversation is the rendered session context for LLM-backed tools
	Conversation string
}

// ToolResult represents the result of a tool execution
type ToolResult struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// GraphStore is the slice of the graph repository the tools use
type GraphStore interface {
	AddProduct(ctx context.Context, in graph.ProductInput) (*graph.Product, error)
	GetProduct(ctx context.Context, name string) (*graph.Product, error)
	ListProducts(ctx context.Context) ([]graph.Product, error)
	LogTransaction(ctx context.Context, in graph.TransactionInput) (*graph.Transaction, error)
	ListTransactions(ctx context.Context, filter graph.TransactionFilter) ([]graph.Transaction, error)
	LogCommission(ctx context.Context, in graph.CommissionInput) (*graph.Commission, error)
	SummarizeSales(ctx context.Context, from, to time.Time) (*graph.SalesSummary, error)
	TopProducts(ctx context.Context, limit int) ([]graph.ProductStat, error)
	ProductPerformance(ctx context.Context, product string) (*graph.ProductStat, error)
	VendorSummary(ctx context.Context) ([]graph.VendorStat, error)
	RevenueTrends(ctx context.Context, days int) ([]graph.DailyTotal, error)
	RunCypher(ctx context.Context, query string, params map[string]interface{}, allowWrites bool) ([]map[string]interface{}, error)
}

// LedgerMirror receives copies of catalog and ledger writes
type LedgerMirror interface {
	UpsertProduct(ctx context.Context, p graph.Product) (int64, error)
	RecordTransaction(ctx context.Context, t graph.Transaction, rawMessage string) error
	RecentTransactions(ctx context.Context, limit int) ([]ledger.Entry, error)
}

// TextGenerator is the LLM surface used by graph_query and answer_question
type TextGenerator interface {
	Chat(ctx context.Context, r adapter.Request) (string, error)
}

// Executor handles tool execution
type Executor struct {
	repo        GraphStore
	ledger      LedgerMirror
	llm         TextGenerator
	profile     *config.Profile
	allowWrites bool
	logger      *zap.Logger
}

// NewExecutor creates a new tool executor
func NewExecutor(repo GraphStore, llm TextGenerator, profile *config.Profile, allowWrites bool) *Executor {
	if profile == nil {
		profile = config.DefaultProfile()
	}
	return &Executor{
		repo:        repo,
		llm:         llm,
		profile:     profile,
		allowWrites: allowWrites,
		logger:      logger.Get(),
	}
}

// SetLedger enables mirroring writes to the relational ledger
func (e *Executor) SetLedger(l LedgerMirror) {
	e.ledger = l
}

// Profile returns the business profile the executor formats with
func (e *Executor) Profile() *config.Profile {
	return e.profile
}

// Execute runs a tool call and returns the result
func (e *Executor) Execute(ctx context.Context, execCtx *ExecutionContext, toolCall adapter.ToolCall) *ToolResult {
	e.logger.Debug("Executing tool",
		zap.String("tool", toolCall.Name),
		zap.String("user_id", execCtx.UserID),
	)

	args := toolCall.Arguments
	if args == nil {
		args = map[string]interface{}{}
	}

	switch toolCall.Name {
	// Catalog & Ledger Tools
	case ToolAddProduct:
		return e.executeAddProduct(ctx, execCtx, args)
	case ToolLogTransaction:
		return e.executeLogTransaction(ctx, execCtx, args)
	case ToolLogCommission:
		return e.executeLogCommission(ctx, execCtx, args)
	case ToolListProducts:
		return e.executeListProducts(ctx)
	case ToolListTransactions:
		return e.executeListTransactions(ctx, execCtx, args)

	// Query Tools
	case ToolBusinessAnalytics:
		return e.executeAnalytics(ctx, execCtx, args)
	case ToolGraphQuery:
		return e.executeGraphQuery(ctx, execCtx, args)
	case ToolAnswerQuestion:
		return e.executeAnswerQuestion(ctx, execCtx, args)

	default:
		e.logger.Warn("Unknown tool", zap.String("tool", toolCall.Name))
		return &ToolResult{
			Success: false,
			Error:   fmt.Sprintf("Unknown tool: %s", toolCall.Name),
		}
	}
}
