package agent

import (
	"time"

	"bizgraph-bot/backend/internal/adapter"
)

// Intents produced by the fallback intent detector
const (
	IntentGraphQuery     = "graph_query"
	IntentAddProduct     = "add_product"
	IntentLogTransaction = "log_transaction"
	IntentLogCommission  = "log_commission"
	IntentAnalytics      = "analytics"
	IntentReport         = "report"
	IntentQA             = "qa"
	IntentAnswerQuestion = "answer_question"
	IntentChat           = "chat"
)

// Operations recorded on a turn for formatting
const (
	OperationChat           = "chat"
	OperationGraphQuery     = "graph_query"
	OperationAddProduct     = "add_product"
	OperationLogTransaction = "log_transaction"
	OperationLogCommission  = "log_commission"
	OperationListProducts   = "list_products"
	OperationAnalytics      = "analytics"
	OperationAnswer         = "answer_question"
)

// ErrorReply is sent when nothing else could be produced
const ErrorReply = "I'm sorry, there was an error processing your request. Please try again."

// TurnState is the value threaded through the workflow for one message
type TurnState struct {
	UserID  string
	ChatID  int64
	Message string
	Date    time.Time
	// Context is the rendered session memory
	Context string
	History []adapter.ChatMessage

	Intent   string
	Entities map[string]interface{}
	Cypher   string

	Operation string
	RawResult interface{}
	Response  string
	ToolsUsed []string
	Err       error
}

func (s *TurnState) addTool(name string) {
	for _, t := range s.ToolsUsed {
		if t == name {
			return
		}
	}
	s.ToolsUsed = append(s.ToolsUsed, name)
}

// Request is an inbound chat message
type Request struct {
	UserID string
	ChatID int64
	Text   string
	Date   time.Time
}

// Reply is the outbound answer for a Request
type Reply struct {
	Text      string
	Intent    string
	ToolsUsed []string
	// HTML marks Text as Telegram HTML
	HTML bool
}
