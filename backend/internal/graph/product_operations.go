package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// ============================================================================
// Product Operations
// ============================================================================

// AddProduct creates or updates a catalog product, merged on its normalized name
func (r *Repository) AddProduct(ctx context.Context, in ProductInput) (*Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("product name is required")
	}
	if in.Price < 0 {
		return nil, fmt.Errorf("product price must not be negative")
	}

	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	query := `
		MERGE (p:Product {normalized_name: $key})
		ON CREATE SET p.created_at = datetime()
		SET p.name = $name,
		    p.price = $price,
		    p.description = CASE WHEN $description = '' THEN p.description ELSE $description END,
		    p.updated_at = datetime()
		RETURN p.name as name, p.price as price, p.description as description, p.updated_at as updated_at
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"key":         Normalize(name),
		"name":        name,
		"price":       in.Price,
		"description": strings.TrimSpace(in.Description),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add product: %w", err)
	}

	record, err := result.Single(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify product: %w", err)
	}

	p := productFromRecord(record)
	r.logger.Info("Product saved",
		zap.String("name", p.Name),
		zap.Float64("price", p.Price),
	)
	return p, nil
}

// GetProduct looks a product up by name; returns nil when absent
func (r *Repository) GetProduct(ctx context.Context, name string) (*Product, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := `
		MATCH (p:Product {normalized_name: $key})
		RETURN p.name as name, p.price as price, p.description as description, p.updated_at as updated_at
	`

	result, err := session.Run(ctx, query, map[string]interface{}{"key": Normalize(name)})
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("failed to fetch product: %w", err)
		}
		return nil, nil
	}
	return productFromRecord(result.Record()), nil
}

// ListProducts returns the catalog ordered by name
func (r *Repository) ListProducts(ctx context.Context) ([]Product, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := `
		MATCH (p:Product)
		RETURN p.name as name, p.price as price, p.description as description, p.updated_at as updated_at
		ORDER BY toLower(p.name)
	`

	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	products := []Product{}
	for result.Next(ctx) {
		products = append(products, *productFromRecord(result.Record()))
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}
	return products, nil
}

func productFromRecord(record *neo4j.Record) *Product {
	return &Product{
		Name:        getStringFromRecord(record, "name"),
		Price:       getFloat64FromRecord(record, "price"),
		Description: getStringFromRecord(record, "description"),
		UpdatedAt:   getTimeFromRecord(record, "updated_at"),
	}
}
