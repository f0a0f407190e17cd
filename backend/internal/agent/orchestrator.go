package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"bizgraph-bot/backend/internal/adapter"
	"bizgraph-bot/backend/internal/graph"
	"bizgraph-bot/backend/internal/memory"
	"bizgraph-bot/backend/internal/tools"
	"bizgraph-bot/backend/pkg/config"
	apperrors "bizgraph-bot/backend/pkg/errors"
	"bizgraph-bot/backend/pkg/logger"
)

// Workflow node names
const (
	NodeUnified  = "unified"
	NodeFallback = "fallback"
)

const emptyMessageReply = "Tell me about a purchase, a sale or a product, or ask about your business."

// Chatter produces plain text completions
type Chatter interface {
	Chat(ctx context.Context, r adapter.Request) (string, error)
}

// LLM is the model surface the agent needs
type LLM interface {
	Chatter
	Generate(ctx context.Context, r adapter.Request) (*adapter.Response, error)
}

// ToolRunner executes tool calls
type ToolRunner interface {
	Execute(ctx context.Context, execCtx *tools.ExecutionContext, toolCall adapter.ToolCall) *tools.ToolResult
}

// SessionMemory is per-user chat memory
type SessionMemory interface {
	Record(ctx context.Context, userID, userMsg, reply, intent string) error
	History(ctx context.Context, userID string) ([]adapter.ChatMessage, error)
	Context(ctx context.Context, userID string) string
	UpdateBusiness(userID string, update memory.BusinessContext)
	Reset(ctx context.Context, userID string) error
	Restore(ctx context.Context, userID string, turns []memory.Turn) (int, error)
}

// ConversationLog persists messages to the graph
type ConversationLog interface {
	LogMessage(ctx context.Context, userID, role, content, intent string) error
	GetConversationHistory(ctx context.Context, userID string, limit int) ([]graph.Message, error)
}

// restoreLimit bounds how many logged messages are read back into a session
const restoreLimit = 20

// Orchestrator runs one message through the workflow and keeps session state
type Orchestrator struct {
	llm       LLM
	executor  ToolRunner
	sessions  SessionMemory
	convo     ConversationLog
	formatter *Formatter
	intents   *IntentDetector
	profile   *config.Profile
	workflow  *CompiledWorkflow
	logger    *zap.Logger

	// users whose session was checked against the conversation log
	restored sync.Map
}

// NewOrchestrator creates a new agent orchestrator. sessions may be nil.
func NewOrchestrator(llm LLM, executor ToolRunner, sessions SessionMemory, profile *config.Profile) (*Orchestrator, error) {
	if profile == nil {
		profile = config.DefaultProfile()
	}
	o := &Orchestrator{
		llm:      llm,
		executor: executor,
		sessions: sessions,
		profile:  profile,
		logger:   logger.Get(),
	}
	var chatter Chatter
	if llm != nil {
		chatter = llm
		o.intents = NewIntentDetector(llm)
	}
	o.formatter = NewFormatter(chatter, profile)

	wf, err := o.buildWorkflow()
	if err != nil {
		return nil, fmt.Errorf("failed to compile workflow: %w", err)
	}
	o.workflow = wf
	return o, nil
}

// SetConversationLog enables logging each exchange to the graph
func (o *Orchestrator) SetConversationLog(c ConversationLog) {
	o.convo = c
}

// ResetSession clears a user's chat memory. The reset is logged so the
// cleared turns are not restored from the graph later.
func (o *Orchestrator) ResetSession(ctx context.Context, userID string) error {
	if o.sessions == nil {
		return nil
	}
	o.restored.Store(userID, true)
	if o.convo != nil {
		if err := o.convo.LogMessage(ctx, userID, graph.RoleSystem, "session reset", graph.IntentSessionReset); err != nil {
			o.logger.Debug("Failed to log session reset", zap.Error(err))
		}
	}
	return o.sessions.Reset(ctx, userID)
}

// restore seeds an empty session from the conversation log, once per user
func (o *Orchestrator) restore(ctx context.Context, userID string) {
	if o.sessions == nil || o.convo == nil {
		return
	}
	if _, done := o.restored.LoadOrStore(userID, true); done {
		return
	}

	msgs, err := o.convo.GetConversationHistory(ctx, userID, restoreLimit)
	if err != nil {
		o.logger.Debug("Failed to read conversation log", zap.String("user_id", userID), zap.Error(err))
		return
	}
	n, err := o.sessions.Restore(ctx, userID, turnsSinceReset(msgs))
	if err != nil {
		o.logger.Warn("Failed to restore session", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if n > 0 {
		o.logger.Info("Restored session from conversation log", zap.String("user_id", userID), zap.Int("turns", n))
	}
}

// turnsSinceReset converts logged messages (oldest first) to session turns,
// dropping everything up to the user's last reset
func turnsSinceReset(msgs []graph.Message) []memory.Turn {
	start := 0
	for i, m := range msgs {
		if m.Intent == graph.IntentSessionReset {
			start = i + 1
		}
	}
	turns := make([]memory.Turn, 0, len(msgs)-start)
	for _, m := range msgs[start:] {
		var role string
		switch m.Role {
		case graph.RoleUser:
			role = memory.RoleUser
		case graph.RoleAssistant:
			role = memory.RoleAssistant
		default:
			continue
		}
		turns = append(turns, memory.Turn{Role: role, Content: m.Content, Intent: m.Intent, Timestamp: m.Timestamp})
	}
	return turns
}

func (o *Orchestrator) buildWorkflow() (*CompiledWorkflow, error) {
	wf := NewWorkflow()
	wf.AddNode(NodeUnified, o.unifiedNode)
	wf.AddNode(NodeFallback, o.fallbackNode)
	wf.SetEntryPoint(NodeUnified)
	wf.AddConditionalEdges(NodeUnified, checkUnifiedResult, map[string]string{
		"complete": End,
		"fallback": NodeFallback,
	})
	wf.AddEdge(NodeFallback, End)
	return wf.Compile()
}

func checkUnifiedResult(_ context.Context, s *TurnState) string {
	if s.Response != "" && s.Err == nil {
		return "complete"
	}
	return "fallback"
}

// HandleMessage processes one chat message and always returns a non-empty reply
func (o *Orchestrator) HandleMessage(ctx context.Context, req Request) (*Reply, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return &Reply{Text: emptyMessageReply, Intent: IntentChat}, nil
	}

	date := req.Date
	if date.IsZero() {
		date = time.Now()
	}
	state := &TurnState{
		UserID:  req.UserID,
		ChatID:  req.ChatID,
		Message: text,
		Date:    date.In(o.profile.Location()),
	}

	if o.sessions != nil {
		o.restore(ctx, req.UserID)
		state.Context = o.sessions.Context(ctx, req.UserID)
		history, err := o.sessions.History(ctx, req.UserID)
		if err != nil {
			o.logger.Warn("Failed to load session history", zap.String("user_id", req.UserID), zap.Error(err))
		}
		state.History = history
	}

	o.logger.Debug("Starting turn",
		zap.String("user_id", req.UserID),
		zap.Int64("chat_id", req.ChatID),
		zap.Int("history", len(state.History)),
	)

	final, err := o.workflow.Run(ctx, state)
	if final == nil {
		final = state
	}
	if err != nil {
		o.logger.Error("Workflow failed", zap.String("user_id", req.UserID), zap.Error(err))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &Reply{Text: ErrorReply, Intent: final.Intent}, apperrors.NewContextCancelled("handle message", ctxErr)
		}
	}

	reply := strings.TrimSpace(final.Response)
	if reply == "" {
		if final.Err != nil {
			o.logger.Warn("Turn produced no reply", zap.String("user_id", req.UserID), zap.Error(final.Err))
		}
		reply = ErrorReply
	}
	intent := final.Intent
	if intent == "" {
		intent = IntentChat
	}

	o.remember(ctx, final, reply, intent)

	o.logger.Info("Turn complete",
		zap.String("user_id", req.UserID),
		zap.String("intent", intent),
		zap.Strings("tools", final.ToolsUsed),
	)

	return &Reply{Text: reply, Intent: intent, ToolsUsed: final.ToolsUsed, HTML: true}, nil
}

// remember records the exchange in session memory and the graph, best effort
func (o *Orchestrator) remember(ctx context.Context, s *TurnState, reply, intent string) {
	if o.sessions != nil {
		if err := o.sessions.Record(ctx, s.UserID, s.Message, reply, intent); err != nil {
			o.logger.Warn("Failed to record session turn", zap.String("user_id", s.UserID), zap.Error(err))
		}
		o.sessions.UpdateBusiness(s.UserID, extractBusinessContext(s))
	}
	if o.convo != nil {
		if err := o.convo.LogMessage(ctx, s.UserID, graph.RoleUser, s.Message, intent); err != nil {
			o.logger.Debug("Failed to log user message", zap.Error(err))
		}
		if err := o.convo.LogMessage(ctx, s.UserID, graph.RoleAssistant, reply, intent); err != nil {
			o.logger.Debug("Failed to log reply", zap.Error(err))
		}
	}
}

func (o *Orchestrator) execCtx(s *TurnState) *tools.ExecutionContext {
	return &tools.ExecutionContext{
		UserID:       s.UserID,
		Message:      s.Message,
		Date:         s.Date,
		Conversation: s.Context,
	}
}

// unifiedNode lets the model pick tools directly in a single call
func (o *Orchestrator) unifiedNode(ctx context.Context, s *TurnState) (*TurnState, error) {
	if o.llm == nil {
		s.Err = apperrors.ErrAgentNoResponse
		return s, nil
	}

	resp, err := o.llm.Generate(ctx, adapter.Request{
		System:  buildUnifiedPrompt(o.profile, s),
		History: s.History,
		Message: s.Message,
		Tools:   tools.GetAllTools(),
	})
	if err != nil {
		if ctx.Err() != nil {
			return s, ctx.Err()
		}
		s.Err = err
		return s, nil
	}

	if len(resp.ToolCalls) == 0 {
		content := strings.TrimSpace(resp.Content)
		if content == "" {
			s.Err = apperrors.ErrAgentNoResponse
			return s, nil
		}
		s.Intent = IntentChat
		s.Operation = OperationChat
		s.Response = content
		return s, nil
	}

	var (
		results []*tools.ToolResult
		parts   []string
		handled bool
	)
	for _, call := range resp.ToolCalls {
		res := o.executor.Execute(ctx, o.execCtx(s), call)
		s.addTool(call.Name)
		results = append(results, res)
		o.logToolResult(call.Name, res)

		// A failure with a user-facing message is still an answer
		if res.Success || res.Message != "" {
			handled = true
		}
		if q := cypherOf(res); q != "" {
			s.Cypher = q
		}
		parts = append(parts, o.formatter.Format(ctx, operationForTool(call.Name), s.Message, res))
	}

	s.Intent = resp.ToolCalls[0].Name
	s.Operation = operationForTool(resp.ToolCalls[0].Name)
	if len(results) == 1 {
		s.RawResult = results[0]
	} else {
		s.RawResult = results
	}
	s.Response = strings.TrimSpace(strings.Join(parts, "\n\n"))
	if !handled {
		s.Err = errors.New(results[0].Error)
	}
	return s, nil
}

// fallbackNode detects intent explicitly, routes to one operation and formats it
func (o *Orchestrator) fallbackNode(ctx context.Context, s *TurnState) (*TurnState, error) {
	if s.Err != nil {
		o.logger.Info("Using fallback processing", zap.String("user_id", s.UserID), zap.Error(s.Err))
	}
	s.Err = nil
	s.Response = ""
	s.RawResult = nil

	var detected *IntentResult
	if o.intents != nil {
		result, err := o.intents.Detect(ctx, s.Message, s.Context)
		if err != nil {
			if ctx.Err() != nil {
				return s, ctx.Err()
			}
			o.logger.Warn("Intent detection failed, trying rules", zap.Error(err))
			s.Err = err
		}
		detected = result
	}
	if detected == nil {
		detected = MatchRule(s.Message)
	}
	if detected == nil {
		if s.Err == nil {
			s.Err = apperrors.ErrAgentNoResponse
		}
		return s, nil
	}
	s.Err = nil
	s.Intent = detected.Intent
	s.Entities = cleanEntities(detected.Entities)

	call, operation := o.route(s)
	if call == nil {
		return o.chatNode(ctx, s)
	}

	res := o.executor.Execute(ctx, o.execCtx(s), *call)
	s.addTool(call.Name)
	o.logToolResult(call.Name, res)
	if q := cypherOf(res); q != "" {
		s.Cypher = q
	}
	s.Operation = operation
	s.RawResult = res
	s.Response = o.formatter.Format(ctx, operation, s.Message, res)
	if !res.Success && res.Message == "" {
		s.Err = errors.New(res.Error)
	}
	return s, nil
}

// route maps a detected intent onto a tool call; nil means chat
func (o *Orchestrator) route(s *TurnState) (*adapter.ToolCall, string) {
	e := s.Entities
	switch s.Intent {
	case IntentGraphQuery:
		return &adapter.ToolCall{Name: tools.ToolGraphQuery, Arguments: map[string]interface{}{"request": s.Message}}, OperationGraphQuery

	case IntentAddProduct:
		args := copyArgs(e)
		if _, ok := args["price"]; !ok {
			if amount, ok := args["amount"]; ok {
				args["price"] = amount
			}
		}
		return &adapter.ToolCall{Name: tools.ToolAddProduct, Arguments: args}, OperationAddProduct

	case IntentLogTransaction, IntentLogCommission:
		args := copyArgs(e)
		txType := strings.ToLower(entityString(e, "transaction_type", "type"))
		if s.Intent == IntentLogCommission || txType == "commission" {
			return &adapter.ToolCall{Name: tools.ToolLogCommission, Arguments: args}, OperationLogCommission
		}
		if txType == "" {
			txType = "purchase"
		}
		args["type"] = txType
		if _, ok := args["unit_price"]; !ok {
			if price, ok := args["price"]; ok {
				args["unit_price"] = price
			}
		}
		return &adapter.ToolCall{Name: tools.ToolLogTransaction, Arguments: args}, OperationLogTransaction

	case IntentAnalytics, IntentReport:
		args := copyArgs(e)
		args["report"] = tools.ReportFromText(s.Message)
		return &adapter.ToolCall{Name: tools.ToolBusinessAnalytics, Arguments: args}, OperationAnalytics

	case IntentQA, IntentAnswerQuestion:
		return &adapter.ToolCall{Name: tools.ToolAnswerQuestion, Arguments: map[string]interface{}{"question": s.Message}}, OperationAnswer

	case OperationListProducts:
		return &adapter.ToolCall{Name: tools.ToolListProducts}, OperationListProducts
	}
	return nil, OperationChat
}

// chatNode produces a conversational reply with session history
func (o *Orchestrator) chatNode(ctx context.Context, s *TurnState) (*TurnState, error) {
	s.Intent = IntentChat
	s.Operation = OperationChat
	if o.llm == nil {
		s.Err = apperrors.ErrAgentNoResponse
		return s, nil
	}

	reply, err := o.llm.Chat(ctx, adapter.Request{
		System:  fmt.Sprintf(chatSystemPrompt, o.profile.BusinessName),
		History: s.History,
		Message: s.Message,
	})
	if err != nil {
		if ctx.Err() != nil {
			return s, ctx.Err()
		}
		s.Err = err
		return s, nil
	}
	s.Response = reply
	return s, nil
}

func (o *Orchestrator) logToolResult(name string, res *tools.ToolResult) {
	if res.Success {
		o.logger.Info("Tool executed successfully",
			zap.String("tool", name),
			zap.String("message", res.Message),
		)
		return
	}
	o.logger.Warn("Tool execution failed",
		zap.String("tool", name),
		zap.String("error", res.Error),
	)
}

func operationForTool(name string) string {
	switch name {
	case tools.ToolAddProduct:
		return OperationAddProduct
	case tools.ToolLogTransaction:
		return OperationLogTransaction
	case tools.ToolLogCommission:
		return OperationLogCommission
	case tools.ToolListProducts:
		return OperationListProducts
	case tools.ToolListTransactions, tools.ToolGraphQuery:
		return OperationGraphQuery
	case tools.ToolBusinessAnalytics:
		return OperationAnalytics
	case tools.ToolAnswerQuestion:
		return OperationAnswer
	}
	return OperationChat
}

func cypherOf(res *tools.ToolResult) string {
	if res == nil {
		return ""
	}
	if m, ok := res.Data.(map[string]interface{}); ok {
		if q, ok := m["query"].(string); ok {
			return q
		}
	}
	return ""
}

// cleanEntities drops empty and placeholder values the model emits for unknown fields
func cleanEntities(entities map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(entities))
	for k, v := range entities {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			t := strings.TrimSpace(s)
			switch strings.ToLower(t) {
			case "", "null", "none", "n/a", "unknown", "not mentioned":
				continue
			}
			v = t
		}
		out[strings.ToLower(k)] = v
	}
	return out
}

func copyArgs(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}
