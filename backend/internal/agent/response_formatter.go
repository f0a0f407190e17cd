package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"reflect"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"bizgraph-bot/backend/internal/adapter"
	"bizgraph-bot/backend/internal/graph"
	"bizgraph-bot/backend/internal/tools"
	"bizgraph-bot/backend/pkg/config"
	"bizgraph-bot/backend/pkg/logger"
)

// Deterministic replies used when the model cannot format a result
const (
	EmptyResultReply   = "Action completed successfully, but there is nothing to display."
	GenericDoneReply   = "Action completed successfully."
	errorReplyTemplate = "Sorry, there was an error: %s"
)

const (
	minFormattedLength = 5
	maxPromptData      = 6000
)

// Formatter turns tool results into chat replies
type Formatter struct {
	llm     Chatter
	profile *config.Profile
	logger  *zap.Logger
}

// NewFormatter creates a formatter; llm may be nil for template-only output
func NewFormatter(llm Chatter, profile *config.Profile) *Formatter {
	if profile == nil {
		profile = config.DefaultProfile()
	}
	return &Formatter{llm: llm, profile: profile, logger: logger.Get()}
}

// Format renders the state's raw result for operation. Failures and unusable
// model output fall back to Fallback.
func (f *Formatter) Format(ctx context.Context, operation, message string, result *tools.ToolResult) string {
	if result == nil {
		return GenericDoneReply
	}
	if !result.Success {
		return f.Fallback(operation, result)
	}
	if answer := strings.TrimSpace(result.Message); operation == OperationAnswer && answer != "" {
		return answer
	}
	if f.llm == nil || result.Data == nil || isEmpty(result.Data) {
		return f.Fallback(operation, result)
	}

	data, err := json.Marshal(result.Data)
	if err != nil {
		return f.Fallback(operation, result)
	}
	payload := clip(string(data), maxPromptData)

	out, err := f.llm.Chat(ctx, adapter.Request{
		System:  formatterSystemPrompt,
		Message: formatPrompt(operation, message, payload, f.profile),
	})
	if err != nil {
		f.logger.Warn("Formatting failed, using template",
			zap.String("operation", operation),
			zap.Error(err),
		)
		return f.Fallback(operation, result)
	}
	if !usableFormatting(out) {
		f.logger.Debug("Formatted output unusable, using template",
			zap.String("operation", operation),
			zap.String("output", out),
		)
		return f.Fallback(operation, result)
	}
	return out
}

// usableFormatting rejects empty, very short, raw JSON and raw list output
func usableFormatting(s string) bool {
	s = strings.TrimSpace(adapter.ExtractCodeBlock(s))
	if len([]rune(s)) < minFormattedLength {
		return false
	}
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		var v interface{}
		if json.Unmarshal([]byte(s), &v) == nil {
			return false
		}
		if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
			return false
		}
	}
	return true
}

func isEmpty(data interface{}) bool {
	v := reflect.ValueOf(data)
	switch v.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return v.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// Fallback renders a result without the model
func (f *Formatter) Fallback(operation string, result *tools.ToolResult) string {
	if result == nil {
		return GenericDoneReply
	}
	if !result.Success {
		if strings.HasPrefix(result.Message, "Sorry") || strings.HasSuffix(result.Message, "?") {
			return result.Message
		}
		reason := result.Error
		if reason == "" {
			reason = "unknown error"
		}
		return fmt.Sprintf(errorReplyTemplate, html.EscapeString(reason))
	}

	switch data := result.Data.(type) {
	case *graph.Product:
		return fmt.Sprintf("Product '%s' added with price %s.", html.EscapeString(data.Name), formatNumber(data.Price))
	case *graph.Transaction:
		if result.Message != "" {
			return html.EscapeString(result.Message)
		}
		return html.EscapeString(tools.TransactionConfirmation(data, data.Quantity > 0))
	case []graph.Product:
		if len(data) == 0 {
			return EmptyResultReply
		}
		var sb strings.Builder
		sb.WriteString("<b>Products</b>\n")
		for _, p := range data {
			fmt.Fprintf(&sb, "• %s: %s\n", html.EscapeString(p.Name), f.profile.FormatAmount(p.Price))
		}
		return strings.TrimSpace(sb.String())
	case []graph.Transaction:
		if len(data) == 0 {
			return EmptyResultReply
		}
		var sb strings.Builder
		sb.WriteString("<b>Transactions</b>\n")
		for _, t := range data {
			fmt.Fprintf(&sb, "• %s %s %s", t.Date.Format("2006-01-02"), t.Type, f.profile.FormatAmount(t.Amount))
			if t.Product != "" {
				fmt.Fprintf(&sb, " %s", html.EscapeString(t.Product))
			}
			if t.Vendor != "" {
				fmt.Fprintf(&sb, " from %s", html.EscapeString(t.Vendor))
			}
			if t.Customer != "" {
				fmt.Fprintf(&sb, " to %s", html.EscapeString(t.Customer))
			}
			sb.WriteString("\n")
		}
		return strings.TrimSpace(sb.String())
	case *graph.Commission:
		return html.EscapeString(result.Message)
	case []graph.ProductStat:
		if len(data) == 0 {
			return EmptyResultReply
		}
		var sb strings.Builder
		sb.WriteString("<b>Top products</b>\n")
		for _, p := range data {
			fmt.Fprintf(&sb, "• %s: %s revenue, %s sold\n", html.EscapeString(p.Name), f.profile.FormatAmount(p.Revenue), formatNumber(p.QuantitySold))
		}
		return strings.TrimSpace(sb.String())
	case *graph.ProductStat:
		return fmt.Sprintf("<b>%s</b>: %d transactions, %s revenue, %s spent",
			html.EscapeString(data.Name), data.Transactions, f.profile.FormatAmount(data.Revenue), f.profile.FormatAmount(data.Spent))
	case []graph.VendorStat:
		if len(data) == 0 {
			return EmptyResultReply
		}
		var sb strings.Builder
		sb.WriteString("<b>Vendors</b>\n")
		for _, v := range data {
			fmt.Fprintf(&sb, "• %s: %d purchases, %s total\n", html.EscapeString(v.Name), v.Purchases, f.profile.FormatAmount(v.Total))
		}
		return strings.TrimSpace(sb.String())
	case []graph.DailyTotal:
		if len(data) == 0 {
			return EmptyResultReply
		}
		var sb strings.Builder
		sb.WriteString("<b>Daily totals</b>\n")
		for _, d := range data {
			fmt.Fprintf(&sb, "• %s: sales %s, purchases %s\n", html.EscapeString(d.Day), f.profile.FormatAmount(d.Sales), f.profile.FormatAmount(d.Purchases))
		}
		return strings.TrimSpace(sb.String())
	case *graph.SalesSummary:
		return fmt.Sprintf("<b>Sales</b>: %s (%d)\n<b>Purchases</b>: %s (%d)\n<b>Commissions</b>: %s\n<b>Net</b>: %s",
			f.profile.FormatAmount(data.SalesTotal), data.SalesCount,
			f.profile.FormatAmount(data.PurchasesTotal), data.PurchasesCount,
			f.profile.FormatAmount(data.Commissions),
			f.profile.FormatAmount(data.Net),
		)
	case map[string]interface{}:
		if e, ok := data["error"]; ok {
			return fmt.Sprintf(errorReplyTemplate, html.EscapeString(fmt.Sprint(e)))
		}
		if rows, ok := data["rows"].([]map[string]interface{}); ok {
			if len(rows) == 0 {
				if result.Message != "" && !strings.HasPrefix(result.Message, "Query returned") {
					return html.EscapeString(result.Message) + "."
				}
				return EmptyResultReply
			}
			return html.EscapeString(graph.DescribeRows(rows))
		}
	}

	if result.Data != nil && isEmpty(result.Data) {
		return EmptyResultReply
	}
	if result.Data == nil && result.Message != "" && strings.HasSuffix(result.Message, ".") {
		return html.EscapeString(result.Message)
	}
	return GenericDoneReply
}

// clip cuts s to at most n bytes without splitting a rune
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
