package tools

import (
	"bizgraph-bot/backend/internal/adapter"
)

// Tool names - Catalog & Ledger Tools
const (
	ToolAddProduct       = "add_product"
	ToolLogTransaction   = "log_transaction"
	ToolLogCommission    = "log_commission"
	ToolListProducts     = "list_products"
	ToolListTransactions = "list_transactions"
)

// Tool names - Query Tools
const (
	ToolBusinessAnalytics = "business_analytics"
	ToolGraphQuery        = "graph_query"
	ToolAnswerQuestion    = "answer_question"
)

// Analytics report kinds
const (
	ReportTotalSales         = "total_sales"
	ReportTopProducts        = "top_products"
	ReportVendorSummary      = "vendor_summary"
	ReportRevenueTrends      = "revenue_trends"
	ReportProductPerformance = "product_performance"
)

// GetAllTools returns all available tools for the agent
func GetAllTools() []adapter.Tool {
	tools := []adapter.Tool{}

	// Catalog & Ledger Tools
	tools = append(tools, GetLedgerTools()...)

	// Query Tools
	tools = append(tools, GetQueryTools()...)

	return tools
}

func str(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func num(description string) map[string]interface{} {
	return map[string]interface{}{"type": "number", "description": description}
}

// GetLedgerTools returns tools that write or list catalog and ledger records
func GetLedgerTools() []adapter.Tool {
	return []adapter.Tool{
		{
			Type: "function",
			Function: adapter.FunctionDefinition{
				Name:        ToolAddProduct,
				Description: "Add a product to the catalog or update its price. Use when the user says things like 'Add product ortho kit price 500'.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"name":        str("Product name as the user wrote it, e.g. 'ortho kit'"),
						"price":       num("Unit price in the business currency"),
						"description": str("Optional short description"),
					},
					"required": []string{"name", "price"},
				},
			},
		},
		{
			Type: "function",
			Function: adapter.FunctionDefinition{
				Name:        ToolLogTransaction,
				Description: "Record a purchase (bought from a vendor) or a sale (sold to a customer). Use for messages like 'Bought ortho kits for 5000 from sajan' or 'Sold 2 brackets to Dr. Rao for 800'.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"type": map[string]interface{}{
							"type":        "string",
							"enum":        []string{"purchase", "sale"},
							"description": "purchase when the business bought, sale when it sold",
						},
						"product":    str("Product or item name"),
						"quantity":   num("Number of units; omit if not stated"),
						"unit_price": num("Price per unit if stated"),
						"amount":     num("Total amount of the transaction"),
						"vendor":     str("Who the business bought from (purchases)"),
						"customer":   str("Who the business sold to (sales)"),
						"date":       str("Date if stated, e.g. '2024-03-15' or 'yesterday'; omit for today"),
						"notes":      str("Anything else worth keeping"),
					},
					"required": []string{"type"},
				},
			},
		},
		{
			Type: "function",
			Function: adapter.FunctionDefinition{
				Name:        ToolLogCommission,
				Description: "Record a commission received from a vendor, e.g. 'Got 300 commission from sajan'.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"vendor": str("Vendor paying the commission"),
						"amount": num("Commission amount"),
						"date":   str("Date if stated"),
						"ref_id": str("Reference such as an invoice number"),
						"notes":  str("Anything else worth keeping"),
					},
					"required": []string{"amount"},
				},
			},
		},
		{
			Type: "function",
			Function: adapter.FunctionDefinition{
				Name:        ToolListProducts,
				Description: "List every product in the catalog with its price. Use for 'Show me all products'.",
				Parameters: map[string]interface{}{
					"type":       "object",
					"properties": map[string]interface{}{},
				},
			},
		},
		{
			Type: "function",
			Function: adapter.FunctionDefinition{
				Name:        ToolListTransactions,
				Description: "List recent transactions, optionally filtered.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"type":     str("purchase or sale"),
						"product":  str("Only this product"),
						"vendor":   str("Only this vendor"),
						"customer": str("Only this customer"),
						"from":     str("Start date"),
						"to":       str("End date"),
						"limit":    num("Maximum rows, default 20"),
					},
				},
			},
		},
	}
}

// GetQueryTools returns tools that answer questions about the data
func GetQueryTools() []adapter.Tool {
	return []adapter.Tool{
		{
			Type: "function",
			Function: adapter.FunctionDefinition{
				Name:        ToolBusinessAnalytics,
				Description: "Compute a business report: total sales, top products, vendor summary, revenue trends or one product's performance.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"report": map[string]interface{}{
							"type":        "string",
							"enum":        []string{ReportTotalSales, ReportTopProducts, ReportVendorSummary, ReportRevenueTrends, ReportProductPerformance},
							"description": "Which report to compute",
						},
						"product": str("Product for product_performance"),
						"from":    str("Start date for total_sales"),
						"to":      str("End date for total_sales"),
						"days":    num("Window for revenue_trends, default 30"),
						"limit":   num("Rows for top_products, default 5"),
					},
					"required": []string{"report"},
				},
			},
		},
		{
			Type: "function",
			Function: adapter.FunctionDefinition{
				Name:        ToolGraphQuery,
				Description: "Answer an ad-hoc question or perform an update no other tool covers by generating and running a Cypher query against the business graph.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"request": str("The user's request restated precisely"),
					},
					"required": []string{"request"},
				},
			},
		},
		{
			Type: "function",
			Function: adapter.FunctionDefinition{
				Name:        ToolAnswerQuestion,
				Description: "Answer a general question about recent business activity using the latest transactions as facts.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"question": str("The question to answer"),
					},
					"required": []string{"question"},
				},
			},
		},
	}
}
