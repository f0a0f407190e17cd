package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

type analyticsArgs struct {
	Report  string    `json:"report"`
	Product string    `json:"product"`
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	Days    int       `json:"days"`
	Limit   int       `json:"limit"`
}

// ReportFromText maps a free-form request onto a report kind
func ReportFromText(text string) string {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "product") && strings.Contains(t, "perform"):
		return ReportProductPerformance
	case strings.Contains(t, "vendor") || strings.Contains(t, "supplier"):
		return ReportVendorSummary
	case strings.Contains(t, "trend") || strings.Contains(t, "daily") || strings.Contains(t, "per day"):
		return ReportRevenueTrends
	case strings.Contains(t, "top") || strings.Contains(t, "best"):
		return ReportTopProducts
	default:
		return ReportTotalSales
	}
}

func (e *Executor) executeAnalytics(ctx context.Context, execCtx *ExecutionContext, args map[string]interface{}) *ToolResult {
	var in analyticsArgs
	if err := decodeArgs(canonicalize(args, "product"), e.profile.Location(), &in); err != nil {
		return &ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}
	}

	report := strings.ToLower(strings.TrimSpace(in.Report))
	switch report {
	case ReportTotalSales, ReportTopProducts, ReportVendorSummary, ReportRevenueTrends, ReportProductPerformance:
	default:
		report = ReportFromText(in.Report + " " + execCtx.Message)
	}

	e.logger.Debug("Running analytics", zap.String("report", report))

	switch report {
	case ReportTopProducts:
		limit := in.Limit
		if limit <= 0 {
			limit = 5
		}
		stats, err := e.repo.TopProducts(ctx, limit)
		if err != nil {
			return &ToolResult{Success: false, Error: err.Error()}
		}
		return &ToolResult{Success: true, Data: stats, Message: fmt.Sprintf("Top %d products by revenue", len(stats))}

	case ReportVendorSummary:
		stats, err := e.repo.VendorSummary(ctx)
		if err != nil {
			return &ToolResult{Success: false, Error: err.Error()}
		}
		return &ToolResult{Success: true, Data: stats, Message: fmt.Sprintf("Summary of %d vendors", len(stats))}

	case ReportRevenueTrends:
		days := in.Days
		if days <= 0 {
			days = 30
		}
		trend, err := e.repo.RevenueTrends(ctx, days)
		if err != nil {
			return &ToolResult{Success: false, Error: err.Error()}
		}
		return &ToolResult{Success: true, Data: trend, Message: fmt.Sprintf("Revenue over the last %d days", days)}

	case ReportProductPerformance:
		name := e.profile.ResolveProduct(in.Product)
		if name == "" {
			return &ToolResult{
				Success: false,
				Error:   "product is required",
				Message: "Which product should I report on?",
			}
		}
		stat, err := e.repo.ProductPerformance(ctx, name)
		if err != nil {
			return &ToolResult{Success: false, Error: err.Error()}
		}
		if stat == nil {
			return &ToolResult{Success: true, Message: fmt.Sprintf("No transactions found for '%s'.", name)}
		}
		return &ToolResult{Success: true, Data: stat, Message: fmt.Sprintf("Performance of %s", stat.Name)}

	default:
		from, to := in.From, in.To
		if to.IsZero() {
			to = execCtx.Date
			if to.IsZero() {
				to = time.Now().In(e.profile.Location())
			}
		}
		if from.IsZero() {
			from = time.Date(1970, 1, 1, 0, 0, 0, 0, e.profile.Location())
		}
		summary, err := e.repo.SummarizeSales(ctx, from, to)
		if err != nil {
			return &ToolResult{Success: false, Error: err.Error()}
		}
		return &ToolResult{
			Success: true,
			Data:    summary,
			Message: fmt.Sprintf("Sales total %s across %d sales", e.profile.FormatAmount(summary.SalesTotal), summary.SalesCount),
		}
	}
}
