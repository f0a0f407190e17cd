package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// ============================================================================
// Transaction & Commission Operations
// ============================================================================

const transactionReturn = `
		RETURN t.id as id, t.type as type, t.amount as amount, t.quantity as quantity,
		       t.unit_price as unit_price, t.date as date, t.notes as notes, t.user_id as user_id,
		       p.name as product, v.name as vendor, c.name as customer
`

// LogTransaction records a purchase or sale and links it to product, vendor and customer nodes
func (r *Repository) LogTransaction(ctx context.Context, in TransactionInput) (*Transaction, error) {
	txType := strings.ToLower(strings.TrimSpace(in.Type))
	if txType != TransactionPurchase && txType != TransactionSale {
		return nil, fmt.Errorf("unknown transaction type %q", in.Type)
	}
	if in.Amount <= 0 && in.Quantity <= 0 {
		return nil, fmt.Errorf("transaction needs an amount or a quantity")
	}
	quantity := in.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	query := `
		MERGE (u:User {id: $userID})
		CREATE (t:Transaction {
			id: $id,
			type: $type,
			quantity: $quantity,
			date: date($date),
			notes: $notes,
			raw_message: $raw,
			user_id: $userID,
			created_at: datetime()
		})
		MERGE (u)-[:RECORDED]->(t)
		FOREACH (ignored IN CASE WHEN $productKey <> '' THEN [1] ELSE [] END |
			MERGE (p:Product {normalized_name: $productKey})
			ON CREATE SET p.name = $product, p.created_at = datetime()
			MERGE (t)-[:INVOLVES_PRODUCT]->(p)
		)
		FOREACH (ignored IN CASE WHEN $vendorKey <> '' THEN [1] ELSE [] END |
			MERGE (v:Vendor {normalized_name: $vendorKey})
			ON CREATE SET v.name = $vendor
			MERGE (t)-[:FROM_VENDOR]->(v)
		)
		FOREACH (ignored IN CASE WHEN $customerKey <> '' THEN [1] ELSE [] END |
			MERGE (c:Customer {normalized_name: $customerKey})
			ON CREATE SET c.name = $customer
			MERGE (t)-[:TO_CUSTOMER]->(c)
		)
		WITH t
		OPTIONAL MATCH (t)-[:INVOLVES_PRODUCT]->(p:Product)
		OPTIONAL MATCH (t)-[:FROM_VENDOR]->(v:Vendor)
		OPTIONAL MATCH (t)-[:TO_CUSTOMER]->(c:Customer)
		SET t.unit_price = coalesce($unitPrice, p.price),
		    t.amount = coalesce($amount, t.quantity * coalesce($unitPrice, p.price), 0.0)
	` + transactionReturn

	result, err := session.Run(ctx, query, map[string]interface{}{
		"id":          uuid.New().String(),
		"userID":      in.UserID,
		"type":        txType,
		"quantity":    quantity,
		"unitPrice":   optionalFloat(in.UnitPrice),
		"amount":      optionalFloat(in.Amount),
		"date":        dateParam(in.Date),
		"notes":       strings.TrimSpace(in.Notes),
		"raw":         in.RawMessage,
		"product":     strings.TrimSpace(in.Product),
		"productKey":  Normalize(in.Product),
		"vendor":      strings.TrimSpace(in.Vendor),
		"vendorKey":   Normalize(in.Vendor),
		"customer":    strings.TrimSpace(in.Customer),
		"customerKey": Normalize(in.Customer),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to log transaction: %w", err)
	}

	record, err := result.Single(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify transaction: %w", err)
	}

	t := transactionFromRecord(record)
	r.logger.Info("Transaction logged",
		zap.String("id", t.ID),
		zap.String("type", t.Type),
		zap.Float64("amount", t.Amount),
		zap.String("product", t.Product),
	)
	return t, nil
}

// ListTransactions returns the newest transactions matching filter
func (r *Repository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `
		MATCH (t:Transaction)
		OPTIONAL MATCH (t)-[:INVOLVES_PRODUCT]->(p:Product)
		OPTIONAL MATCH (t)-[:FROM_VENDOR]->(v:Vendor)
		OPTIONAL MATCH (t)-[:TO_CUSTOMER]->(c:Customer)
		WITH t, p, v, c
		WHERE ($type = '' OR t.type = $type)
		  AND ($productKey = '' OR p.normalized_name = $productKey)
		  AND ($vendorKey = '' OR v.normalized_name = $vendorKey)
		  AND ($customerKey = '' OR c.normalized_name = $customerKey)
		  AND ($from = '' OR t.date >= date($from))
		  AND ($to = '' OR t.date <= date($to))
	` + transactionReturn + `
		ORDER BY t.date DESC, t.created_at DESC
		LIMIT $limit
	`

	params := map[string]interface{}{
		"type":        strings.ToLower(strings.TrimSpace(filter.Type)),
		"productKey":  Normalize(filter.Product),
		"vendorKey":   Normalize(filter.Vendor),
		"customerKey": Normalize(filter.Customer),
		"from":        "",
		"to":          "",
		"limit":       int64(limit),
	}
	if !filter.From.IsZero() {
		params["from"] = dateParam(filter.From)
	}
	if !filter.To.IsZero() {
		params["to"] = dateParam(filter.To)
	}

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	txs := []Transaction{}
	for result.Next(ctx) {
		txs = append(txs, *transactionFromRecord(result.Record()))
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txs, nil
}

// LogCommission records a commission received from a vendor
func (r *Repository) LogCommission(ctx context.Context, in CommissionInput) (*Commission, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("commission amount must be positive")
	}

	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	query := `
		MERGE (u:User {id: $userID})
		CREATE (cm:Commission {
			id: $id,
			amount: $amount,
			date: date($date),
			ref_id: $refID,
			notes: $notes,
			user_id: $userID,
			created_at: datetime()
		})
		MERGE (u)-[:RECORDED]->(cm)
		FOREACH (ignored IN CASE WHEN $vendorKey <> '' THEN [1] ELSE [] END |
			MERGE (v:Vendor {normalized_name: $vendorKey})
			ON CREATE SET v.name = $vendor
			MERGE (cm)-[:FROM_VENDOR]->(v)
		)
		WITH cm
		OPTIONAL MATCH (cm)-[:FROM_VENDOR]->(v:Vendor)
		RETURN cm.id as id, cm.amount as amount, cm.date as date, cm.ref_id as ref_id,
		       cm.notes as notes, v.name as vendor
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"id":        uuid.New().String(),
		"userID":    in.UserID,
		"amount":    in.Amount,
		"date":      dateParam(in.Date),
		"refID":     strings.TrimSpace(in.RefID),
		"notes":     strings.TrimSpace(in.Notes),
		"vendor":    strings.TrimSpace(in.Vendor),
		"vendorKey": Normalize(in.Vendor),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to log commission: %w", err)
	}

	record, err := result.Single(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify commission: %w", err)
	}

	c := &Commission{
		ID:     getStringFromRecord(record, "id"),
		Amount: getFloat64FromRecord(record, "amount"),
		Date:   getTimeFromRecord(record, "date"),
		RefID:  getStringFromRecord(record, "ref_id"),
		Notes:  getStringFromRecord(record, "notes"),
		Vendor: getStringFromRecord(record, "vendor"),
	}
	r.logger.Info("Commission logged",
		zap.String("id", c.ID),
		zap.Float64("amount", c.Amount),
		zap.String("vendor", c.Vendor),
	)
	return c, nil
}

func transactionFromRecord(record *neo4j.Record) *Transaction {
	return &Transaction{
		ID:        getStringFromRecord(record, "id"),
		Type:      getStringFromRecord(record, "type"),
		Amount:    getFloat64FromRecord(record, "amount"),
		Quantity:  getFloat64FromRecord(record, "quantity"),
		UnitPrice: getFloat64FromRecord(record, "unit_price"),
		Date:      getTimeFromRecord(record, "date"),
		Product:   getStringFromRecord(record, "product"),
		Vendor:    getStringFromRecord(record, "vendor"),
		Customer:  getStringFromRecord(record, "customer"),
		Notes:     getStringFromRecord(record, "notes"),
		UserID:    getStringFromRecord(record, "user_id"),
	}
}
