package tools

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bizgraph-bot/backend/internal/adapter"
	"bizgraph-bot/backend/internal/graph"
)

const cypherSystemPrompt = `You translate business requests into a single Neo4j Cypher query.
Return only the query, no explanation.

%s

Business currency: %s. Today is %s.
Always alias returned columns with readable names and add LIMIT %d to reads.`

const answerSystemPrompt = `You are the bookkeeping assistant for %s. Answer the question using only the facts below.
If the facts do not contain the answer, say so briefly. Amounts are in %s.

Products:
%s

Recent transactions:
%s`

type graphQueryArgs struct {
	Request string `json:"request"`
}

type answerArgs struct {
	Question string `json:"question"`
}

func (e *Executor) executeGraphQuery(ctx context.Context, execCtx *ExecutionContext, args map[string]interface{}) *ToolResult {
	var in graphQueryArgs
	if err := decodeArgs(canonicalize(args), e.profile.Location(), &in); err != nil {
		return &ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}
	}
	request := strings.TrimSpace(in.Request)
	if request == "" {
		request = execCtx.Message
	}
	if e.llm == nil {
		return &ToolResult{Success: false, Error: "no language model configured for graph queries"}
	}

	system := fmt.Sprintf(cypherSystemPrompt,
		graph.SchemaDescription,
		e.profile.CurrencyCode,
		execCtx.Date.Format("2006-01-02"),
		graph.MaxCypherRows,
	)
	userMsg := request
	if execCtx.Conversation != "" {
		userMsg = execCtx.Conversation + "\n\nRequest: " + request
	}

	query, err := e.generateCypher(ctx, system, userMsg)
	if err != nil {
		return &ToolResult{Success: false, Error: err.Error()}
	}

	rows, err := e.repo.RunCypher(ctx, query, nil, e.allowWrites)
	if err != nil {
		// One repair attempt with the error in hand
		e.logger.Info("Generated Cypher failed, asking for a repair",
			zap.String("query", query),
			zap.Error(err),
		)
		repairMsg := fmt.Sprintf("%s\n\nThis query failed:\n%s\n\nError: %v\n\nReturn a corrected query.", userMsg, query, err)
		query, genErr := e.generateCypher(ctx, system, repairMsg)
		if genErr != nil {
			return &ToolResult{Success: false, Error: genErr.Error()}
		}
		rows, err = e.repo.RunCypher(ctx, query, nil, e.allowWrites)
		if err != nil {
			return &ToolResult{Success: false, Error: err.Error()}
		}
		return cypherResult(query, rows)
	}
	return cypherResult(query, rows)
}

func (e *Executor) generateCypher(ctx context.Context, system, userMsg string) (string, error) {
	raw, err := e.llm.Chat(ctx, adapter.Request{System: system, Message: userMsg})
	if err != nil {
		return "", fmt.Errorf("failed to generate cypher: %w", err)
	}
	query := strings.TrimSuffix(strings.TrimSpace(adapter.ExtractCodeBlock(raw)), ";")
	if query == "" {
		return "", fmt.Errorf("model returned an empty query")
	}
	return query, nil
}

func cypherResult(query string, rows []map[string]interface{}) *ToolResult {
	msg := fmt.Sprintf("Query returned %d rows", len(rows))
	if len(rows) == 0 && graph.IsWriteQuery(query) {
		msg = "Update applied"
	}
	return &ToolResult{
		Success: true,
		Data: map[string]interface{}{
			"query": query,
			"rows":  rows,
		},
		Message: msg,
	}
}

func (e *Executor) executeAnswerQuestion(ctx context.Context, execCtx *ExecutionContext, args map[string]interface{}) *ToolResult {
	var in answerArgs
	if err := decodeArgs(canonicalize(args), e.profile.Location(), &in); err != nil {
		return &ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}
	}
	question := strings.TrimSpace(in.Question)
	if question == "" {
		question = execCtx.Message
	}
	if e.llm == nil {
		return &ToolResult{Success: false, Error: "no language model configured for answers"}
	}

	var (
		txs      []graph.Transaction
		products []graph.Product
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		txs, err = e.recentTransactions(gctx, 25)
		return err
	})
	g.Go(func() (err error) {
		products, err = e.repo.ListProducts(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return &ToolResult{Success: false, Error: err.Error()}
	}

	var productLines, txLines strings.Builder
	for _, p := range products {
		fmt.Fprintf(&productLines, "- %s: %s\n", p.Name, e.profile.FormatAmount(p.Price))
	}
	for _, t := range txs {
		fmt.Fprintf(&txLines, "- %s %s: %s x%s for %s",
			t.Date.Format("2006-01-02"), t.Type, orDash(t.Product), formatNumber(t.Quantity), e.profile.FormatAmount(t.Amount))
		if t.Vendor != "" {
			txLines.WriteString(" from " + t.Vendor)
		}
		if t.Customer != "" {
			txLines.WriteString(" to " + t.Customer)
		}
		txLines.WriteString("\n")
	}

	system := fmt.Sprintf(answerSystemPrompt,
		e.profile.BusinessName,
		e.profile.CurrencyCode,
		orDash(productLines.String()),
		orDash(txLines.String()),
	)
	answer, err := e.llm.Chat(ctx, adapter.Request{System: system, Message: question})
	if err != nil {
		return &ToolResult{Success: false, Error: err.Error()}
	}

	return &ToolResult{
		Success: true,
		Data:    map[string]interface{}{"answer": answer},
		Message: answer,
	}
}

// recentTransactions prefers the ledger mirror and falls back to the graph
func (e *Executor) recentTransactions(ctx context.Context, limit int) ([]graph.Transaction, error) {
	if e.ledger != nil {
		entries, err := e.ledger.RecentTransactions(ctx, limit)
		if err == nil {
			txs := make([]graph.Transaction, 0, len(entries))
			for _, entry := range entries {
				txs = append(txs, entry.ToTransaction())
			}
			return txs, nil
		}
		e.logger.Warn("Ledger read failed, using graph", zap.Error(err))
	}
	return e.repo.ListTransactions(ctx, graph.TransactionFilter{Limit: limit})
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return strings.TrimRight(s, "\n")
}
