package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ============================================================================
// Analytics Operations
// ============================================================================

// SummarizeSales totals sales, purchases and commissions between from and to (inclusive dates)
func (r *Repository) SummarizeSales(ctx context.Context, from, to time.Time) (*SalesSummary, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := `
		CALL {
			MATCH (t:Transaction)
			WHERE t.date >= date($from) AND t.date <= date($to)
			RETURN
				sum(CASE WHEN t.type = 'sale' THEN t.amount ELSE 0 END) as sales_total,
				sum(CASE WHEN t.type = 'sale' THEN 1 ELSE 0 END) as sales_count,
				sum(CASE WHEN t.type = 'purchase' THEN t.amount ELSE 0 END) as purchases_total,
				sum(CASE WHEN t.type = 'purchase' THEN 1 ELSE 0 END) as purchases_count
		}
		CALL {
			OPTIONAL MATCH (cm:Commission)
			WHERE cm.date >= date($from) AND cm.date <= date($to)
			RETURN coalesce(sum(cm.amount), 0) as commissions
		}
		RETURN sales_total, sales_count, purchases_total, purchases_count, commissions
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"from": dateParam(from),
		"to":   dateParam(to),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to summarize sales: %w", err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read sales summary: %w", err)
	}

	s := &SalesSummary{
		From:           from,
		To:             to,
		SalesTotal:     getFloat64FromRecord(record, "sales_total"),
		SalesCount:     getInt64FromRecord(record, "sales_count"),
		PurchasesTotal: getFloat64FromRecord(record, "purchases_total"),
		PurchasesCount: getInt64FromRecord(record, "purchases_count"),
		Commissions:    getFloat64FromRecord(record, "commissions"),
	}
	s.Net = s.SalesTotal + s.Commissions - s.PurchasesTotal
	return s, nil
}

// TopProducts ranks products by sales revenue
func (r *Repository) TopProducts(ctx context.Context, limit int) ([]ProductStat, error) {
	if limit <= 0 {
		limit = 5
	}
	return r.productStats(ctx, "", int64(limit))
}

// ProductPerformance returns activity for a single product; nil when it has none
func (r *Repository) ProductPerformance(ctx context.Context, product string) (*ProductStat, error) {
	stats, err := r.productStats(ctx, Normalize(product), 1)
	if err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return nil, nil
	}
	return &stats[0], nil
}

func (r *Repository) productStats(ctx context.Context, key string, limit int64) ([]ProductStat, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := `
		MATCH (t:Transaction)-[:INVOLVES_PRODUCT]->(p:Product)
		WHERE $key = '' OR p.normalized_name = $key
		RETURN p.name as name,
		       count(t) as transactions,
		       sum(CASE WHEN t.type = 'sale' THEN t.quantity ELSE 0 END) as quantity_sold,
		       sum(CASE WHEN t.type = 'sale' THEN t.amount ELSE 0 END) as revenue,
		       sum(CASE WHEN t.type = 'purchase' THEN t.amount ELSE 0 END) as spent
		ORDER BY revenue DESC, transactions DESC
		LIMIT $limit
	`

	result, err := session.Run(ctx, query, map[string]interface{}{"key": key, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("failed to compute product stats: %w", err)
	}

	stats := []ProductStat{}
	for result.Next(ctx) {
		record := result.Record()
		stats = append(stats, ProductStat{
			Name:         getStringFromRecord(record, "name"),
			Transactions: getInt64FromRecord(record, "transactions"),
			QuantitySold: getFloat64FromRecord(record, "quantity_sold"),
			Revenue:      getFloat64FromRecord(record, "revenue"),
			Spent:        getFloat64FromRecord(record, "spent"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate product stats: %w", err)
	}
	return stats, nil
}

// VendorSummary totals purchases and commissions per vendor
func (r *Repository) VendorSummary(ctx context.Context) ([]VendorStat, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := `
		MATCH (v:Vendor)
		OPTIONAL MATCH (t:Transaction {type: 'purchase'})-[:FROM_VENDOR]->(v)
		WITH v, count(t) as purchases, coalesce(sum(t.amount), 0) as total
		OPTIONAL MATCH (cm:Commission)-[:FROM_VENDOR]->(v)
		RETURN v.name as name, purchases, total, coalesce(sum(cm.amount), 0) as commissions
		ORDER BY total DESC
	`

	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize vendors: %w", err)
	}

	stats := []VendorStat{}
	for result.Next(ctx) {
		record := result.Record()
		stats = append(stats, VendorStat{
			Name:        getStringFromRecord(record, "name"),
			Purchases:   getInt64FromRecord(record, "purchases"),
			Total:       getFloat64FromRecord(record, "total"),
			Commissions: getFloat64FromRecord(record, "commissions"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vendor stats: %w", err)
	}
	return stats, nil
}

// RevenueTrends returns per-day sales and purchases for the last days days
func (r *Repository) RevenueTrends(ctx context.Context, days int) ([]DailyTotal, error) {
	if days <= 0 {
		days = 30
	}

	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := `
		MATCH (t:Transaction)
		WHERE t.date >= date() - duration({days: $days})
		RETURN toString(t.date) as day,
		       sum(CASE WHEN t.type = 'sale' THEN t.amount ELSE 0 END) as sales,
		       sum(CASE WHEN t.type = 'purchase' THEN t.amount ELSE 0 END) as purchases
		ORDER BY day
	`

	result, err := session.Run(ctx, query, map[string]interface{}{"days": int64(days)})
	if err != nil {
		return nil, fmt.Errorf("failed to compute revenue trends: %w", err)
	}

	trend := []DailyTotal{}
	for result.Next(ctx) {
		record := result.Record()
		trend = append(trend, DailyTotal{
			Day:       getStringFromRecord(record, "day"),
			Sales:     getFloat64FromRecord(record, "sales"),
			Purchases: getFloat64FromRecord(record, "purchases"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate revenue trends: %w", err)
	}
	return trend, nil
}
