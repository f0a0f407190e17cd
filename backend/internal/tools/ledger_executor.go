package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"bizgraph-bot/backend/internal/graph"
)

// ============================================================================
// Catalog & Ledger Tool Implementations
// ============================================================================

type productArgs struct {
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
}

type transactionArgs struct {
	Type      string    `json:"type"`
	Product   string    `json:"product"`
	Quantity  float64   `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
	Amount    float64   `json:"amount"`
	Vendor    string    `json:"vendor"`
	Customer  string    `json:"customer"`
	Date      time.Time `json:"date"`
	Notes     string    `json:"notes"`
}

type commissionArgs struct {
	Vendor string    `json:"vendor"`
	Amount float64   `json:"amount"`
	Date   time.Time `json:"date"`
	RefID  string    `json:"ref_id"`
	Notes  string    `json:"notes"`
}

type listTransactionArgs struct {
	Type     string    `json:"type"`
	Product  string    `json:"product"`
	Vendor   string    `json:"vendor"`
	Customer string    `json:"customer"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Limit    int       `json:"limit"`
}

// MissingProductFields is the reply when add_product lacks a name or price
const MissingProductFields = "Sorry, I couldn't add the product. Please specify both name and price."

func (e *Executor) executeAddProduct(ctx context.Context, execCtx *ExecutionContext, args map[string]interface{}) *ToolResult {
	var in productArgs
	if err := decodeArgs(canonicalize(args, "name", "price"), e.profile.Location(), &in); err != nil {
		return &ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err), Message: MissingProductFields}
	}
	name := strings.TrimSpace(e.profile.ResolveProduct(in.Name))
	if name == "" || in.Price <= 0 {
		return &ToolResult{Success: false, Error: "name and price are required", Message: MissingProductFields}
	}

	product, err := e.repo.AddProduct(ctx, graph.ProductInput{Name: name, Price: in.Price, Description: in.Description})
	if err != nil {
		return &ToolResult{Success: false, Error: err.Error()}
	}

	if e.ledger != nil {
		if _, err := e.ledger.UpsertProduct(ctx, *product); err != nil {
			e.logger.Warn("Ledger product mirror failed", zap.String("product", product.Name), zap.Error(err))
		}
	}

	return &ToolResult{
		Success: true,
		Data:    product,
		Message: fmt.Sprintf("Product '%s' added with price %s.", product.Name, formatNumber(product.Price)),
	}
}

func (e *Executor) executeLogTransaction(ctx context.Context, execCtx *ExecutionContext, args map[string]interface{}) *ToolResult {
	var in transactionArgs
	canon := canonicalize(args, "type", "product", "vendor", "customer", "unit_price", "amount", "quantity", "date")
	if err := decodeArgs(canon, e.profile.Location(), &in); err != nil {
		return &ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}
	}

	txType := normalizeTransactionType(in.Type)
	if txType == "" {
		return &ToolResult{
			Success: false,
			Error:   "transaction type is required",
			Message: "Sorry, I couldn't tell whether that was a purchase or a sale.",
		}
	}
	if in.Amount <= 0 && in.Quantity <= 0 {
		return &ToolResult{
			Success: false,
			Error:   "amount is required",
			Message: "Sorry, I couldn't log that transaction. Please include the amount.",
		}
	}

	vendor := in.Vendor
	if txType == graph.TransactionPurchase && vendor == "" {
		vendor = e.profile.DefaultVendor
	}
	date := in.Date
	if date.IsZero() {
		date = execCtx.Date
	}

	tx, err := e.repo.LogTransaction(ctx, graph.TransactionInput{
		Type:       txType,
		Product:    e.profile.ResolveProduct(in.Product),
		Vendor:     vendor,
		Customer:   in.Customer,
		Quantity:   in.Quantity,
		UnitPrice:  in.UnitPrice,
		Amount:     in.Amount,
		Date:       date,
		Notes:      in.Notes,
		RawMessage: execCtx.Message,
		UserID:     execCtx.UserID,
	})
	if err != nil {
		return &ToolResult{Success: false, Error: err.Error()}
	}

	if e.ledger != nil {
		if err := e.ledger.RecordTransaction(ctx, *tx, execCtx.Message); err != nil {
			e.logger.Warn("Ledger transaction mirror failed", zap.String("id", tx.ID), zap.Error(err))
		}
	}

	return &ToolResult{
		Success: true,
		Data:    tx,
		Message: TransactionConfirmation(tx, in.Quantity > 0),
	}
}

// TransactionConfirmation renders the deterministic confirmation for a logged
// transaction. The quantity is shown only when the user gave one.
func TransactionConfirmation(tx *graph.Transaction, withQuantity bool) string {
	product := tx.Product
	if product == "" {
		product = "items"
	}
	if withQuantity {
		product = formatNumber(tx.Quantity) + " " + product
	}
	msg := fmt.Sprintf("Logged %s of %s for %s", tx.Type, product, formatNumber(tx.Amount))
	switch {
	case tx.Type == graph.TransactionPurchase && tx.Vendor != "":
		msg += " from " + tx.Vendor
	case tx.Type == graph.TransactionSale && tx.Customer != "":
		msg += " to " + tx.Customer
	}
	return msg + "."
}

func normalizeTransactionType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "purchase", "buy", "bought", "purchased", "expense":
		return graph.TransactionPurchase
	case "sale", "sell", "sold", "sales", "income":
		return graph.TransactionSale
	}
	return ""
}

func (e *Executor) executeLogCommission(ctx context.Context, execCtx *ExecutionContext, args map[string]interface{}) *ToolResult {
	var in commissionArgs
	if err := decodeArgs(canonicalize(args, "vendor", "amount", "date", "ref_id"), e.profile.Location(), &in); err != nil {
		return &ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}
	}
	if in.Amount <= 0 {
		return &ToolResult{
			Success: false,
			Error:   "amount is required",
			Message: "Sorry, I couldn't log the commission. Please include the amount.",
		}
	}
	date := in.Date
	if date.IsZero() {
		date = execCtx.Date
	}

	c, err := e.repo.LogCommission(ctx, graph.CommissionInput{
		Vendor: in.Vendor,
		Amount: in.Amount,
		Date:   date,
		RefID:  in.RefID,
		Notes:  in.Notes,
		UserID: execCtx.UserID,
	})
	if err != nil {
		return &ToolResult{Success: false, Error: err.Error()}
	}

	msg := fmt.Sprintf("Logged commission of %s", formatNumber(c.Amount))
	if c.Vendor != "" {
		msg += " from " + c.Vendor
	}
	return &ToolResult{Success: true, Data: c, Message: msg + "."}
}

func (e *Executor) executeListProducts(ctx context.Context) *ToolResult {
	products, err := e.repo.ListProducts(ctx)
	if err != nil {
		return &ToolResult{Success: false, Error: err.Error()}
	}
	return &ToolResult{
		Success: true,
		Data:    products,
		Message: fmt.Sprintf("Found %d products", len(products)),
	}
}

func (e *Executor) executeListTransactions(ctx context.Context, execCtx *ExecutionContext, args map[string]interface{}) *ToolResult {
	var in listTransactionArgs
	if err := decodeArgs(canonicalize(args, "type", "vendor", "customer"), e.profile.Location(), &in); err != nil {
		return &ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}
	}
	if in.Limit <= 0 {
		in.Limit = 20
	}

	txs, err := e.repo.ListTransactions(ctx, graph.TransactionFilter{
		Type:     normalizeTransactionType(in.Type),
		Product:  e.profile.ResolveProduct(in.Product),
		Vendor:   in.Vendor,
		Customer: in.Customer,
		From:     in.From,
		To:       in.To,
		Limit:    in.Limit,
	})
	if err != nil {
		return &ToolResult{Success: false, Error: err.Error()}
	}
	return &ToolResult{
		Success: true,
		Data:    txs,
		Message: fmt.Sprintf("Found %d transactions", len(txs)),
	}
}
