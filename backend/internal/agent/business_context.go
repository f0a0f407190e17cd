package agent

import (
	"fmt"
	"strings"

	"bizgraph-bot/backend/internal/graph"
	"bizgraph-bot/backend/internal/memory"
	"bizgraph-bot/backend/internal/tools"
)

// extractBusinessContext derives the "last seen" entities from a finished turn.
// Executed results win over detector entities because they carry resolved names.
func extractBusinessContext(state *TurnState) memory.BusinessContext {
	var bc memory.BusinessContext

	if state.Entities != nil {
		bc.LastProduct = entityString(state.Entities, "product", "name", "item")
		bc.LastVendor = entityString(state.Entities, "vendor")
		bc.LastCustomer = entityString(state.Entities, "customer")
		bc.LastTransactionType = entityString(state.Entities, "transaction_type", "type")
	}

	var results []*tools.ToolResult
	switch raw := state.RawResult.(type) {
	case *tools.ToolResult:
		results = append(results, raw)
	case []*tools.ToolResult:
		results = raw
	}

	for _, r := range results {
		if r == nil || !r.Success {
			continue
		}
		switch data := r.Data.(type) {
		case *graph.Product:
			bc.LastProduct = data.Name
		case *graph.Transaction:
			if data.Product != "" {
				bc.LastProduct = data.Product
			}
			if data.Vendor != "" {
				bc.LastVendor = data.Vendor
			}
			if data.Customer != "" {
				bc.LastCustomer = data.Customer
			}
			bc.LastTransactionType = data.Type
		case *graph.Commission:
			if data.Vendor != "" {
				bc.LastVendor = data.Vendor
			}
			bc.LastTransactionType = "commission"
		}
	}
	return bc
}

func entityString(entities map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		v, ok := entities[k]
		if !ok || v == nil {
			continue
		}
		s := strings.TrimSpace(fmt.Sprint(v))
		if s != "" && !strings.EqualFold(s, "null") && !strings.EqualFold(s, "none") {
			return s
		}
	}
	return ""
}
