package graph

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"go.uber.org/zap"

	apperrors "bizgraph-bot/backend/pkg/errors"
)

// SchemaDescription is handed to the LLM when it writes Cypher
const SchemaDescription = `Nodes:
- (:Product {name, normalized_name, price, description})
- (:Vendor {name, normalized_name})
- (:Customer {name, normalized_name})
- (:Transaction {id, type: 'purchase'|'sale', amount, quantity, unit_price, date: Date, notes, user_id})
- (:Commission {id, amount, date: Date, ref_id, notes})
- (:User {id})
Relationships:
- (:Transaction)-[:INVOLVES_PRODUCT]->(:Product)
- (:Transaction)-[:FROM_VENDOR]->(:Vendor)
- (:Transaction)-[:TO_CUSTOMER]->(:Customer)
- (:Commission)-[:FROM_VENDOR]->(:Vendor)
- (:User)-[:RECORDED]->(:Transaction|:Commission)
Rules:
- normalized_name is always toLower(trim(name)); MERGE named nodes on normalized_name and SET name.
- Dates are Neo4j Date values: use date('YYYY-MM-DD') or date() for today.
- New ids use randomUUID().
- Do not use APOC procedures or functions.`

// MaxCypherRows caps rows returned from generated queries
const MaxCypherRows = 100

var (
	alwaysForbidden = []struct {
		pattern *regexp.Regexp
		reason  string
	}{
		{regexp.MustCompile(`(?i)\bapoc\.`), "APOC procedures are not available"},
		{regexp.MustCompile(`(?i)\bDETACH\s+DELETE\b`), "deleting data is not allowed"},
		{regexp.MustCompile(`(?i)\bDELETE\b`), "deleting data is not allowed"},
		{regexp.MustCompile(`(?i)\bREMOVE\b`), "removing properties or labels is not allowed"},
		{regexp.MustCompile(`(?i)\bDROP\b`), "schema changes are not allowed"},
		{regexp.MustCompile(`(?i)\bCALL\s+dbms\.`), "dbms procedures are not allowed"},
		{regexp.MustCompile(`(?i)\bLOAD\s+CSV\b`), "LOAD CSV is not allowed"},
		{regexp.MustCompile(`(?i)\b(CREATE|DROP)\s+(CONSTRAINT|INDEX|DATABASE|USER|ROLE)\b`), "schema changes are not allowed"},
	}

	writeClauses = regexp.MustCompile(`(?i)\b(CREATE|MERGE|SET|FOREACH)\b`)
)

// ValidateCypher rejects generated queries the bot must never run. Writes
// (CREATE, MERGE, SET) pass only when allowWrites is set.
func ValidateCypher(query string, allowWrites bool) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return apperrors.NewGraphUnsafeQuery(query, "empty query")
	}

	// Keywords inside string literals ("set top box") and comments must not trip the checks
	scrubbed, ok := scrubCypher(trimmed)
	if !ok {
		return apperrors.NewGraphUnsafeQuery(query, "unterminated string or comment")
	}
	scrubbed = strings.TrimSpace(scrubbed)

	for _, f := range alwaysForbidden {
		if f.pattern.MatchString(scrubbed) {
			return apperrors.NewGraphUnsafeQuery(query, f.reason)
		}
	}
	if !allowWrites && writeClauses.MatchString(scrubbed) {
		return apperrors.NewGraphUnsafeQuery(query, "write queries are disabled")
	}
	if strings.Count(scrubbed, ";") > 1 || (strings.Contains(scrubbed, ";") && !strings.HasSuffix(scrubbed, ";")) {
		return apperrors.NewGraphUnsafeQuery(query, "multiple statements are not allowed")
	}
	return nil
}

// IsWriteQuery reports whether query contains write clauses
func IsWriteQuery(query string) bool {
	scrubbed, _ := scrubCypher(query)
	if writeClauses.MatchString(scrubbed) {
		return true
	}
	for _, f := range alwaysForbidden {
		if f.pattern.MatchString(scrubbed) {
			return true
		}
	}
	return false
}

// scrubCypher blanks string literals and comments in a single left-to-right pass, so a quote inside a comment or a comment marker
// inside a string cannot hide the text that follows. ok is false when a
// literal or block comment is left open.
func scrubCypher(query string) (string, bool) {
	var sb strings.Builder
	sb.Grow(len(query))

	for i := 0; i < len(query); {
		c := query[i]
		switch {
		case c == '\'' || c == '"':
			end := closingQuote(query, i+1, c)
			if end < 0 {
				return sb.String(), false
			}
			sb.WriteByte(c)
			sb.WriteByte(c)
			i = end + 1
		case c == '`':
			// quoted identifiers keep their text so `apoc`.x is still caught
			end := closingQuote(query, i+1, c)
			if end < 0 {
				return sb.String(), false
			}
			sb.WriteString(query[i+1 : end])
			i = end + 1
		case c == '/' && i+1 < len(query) && query[i+1] == '/':
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				return sb.String(), true
			}
			sb.WriteByte('\n')
			i += end + 1
		case c == '/' && i+1 < len(query) && query[i+1] == '*':
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				return sb.String(), false
			}
			sb.WriteByte(' ')
			i += end + 4
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), true
}

// closingQuote returns the index of the quote closing a literal that opened
// just before start, or -1. Backslash escapes apply to string literals only.
func closingQuote(query string, start int, quote byte) int {
	for i := start; i < len(query); i++ {
		switch query[i] {
		case '\\':
			if quote != '`' {
				i++
			}
		case quote:
			return i
		}
	}
	return -1
}

// RunCypher validates and executes a generated query, returning driver values
// normalized to plain Go maps, slices, strings and numbers.
func (r *Repository) RunCypher(ctx context.Context, query string, params map[string]interface{}, allowWrites bool) ([]map[string]interface{}, error) {
	if err := ValidateCypher(query, allowWrites); err != nil {
		r.logger.Warn("Rejected generated Cypher", zap.String("query", query), zap.Error(err))
		return nil, err
	}
	query = strings.TrimSuffix(strings.TrimSpace(query), ";")

	mode := neo4j.AccessModeRead
	if IsWriteQuery(query) {
		mode = neo4j.AccessModeWrite
	}
	session := r.session(ctx, mode)
	defer session.Close(ctx)

	start := time.Now()
	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, apperrors.NewGraphQueryFailed(query, err)
	}

	rows := []map[string]interface{}{}
	for result.Next(ctx) {
		if len(rows) >= MaxCypherRows {
			break
		}
		record := result.Record()
		row := make(map[string]interface{}, len(record.Keys))
		for i, key := range record.Keys {
			row[key] = NormalizeValue(record.Values[i])
		}
		rows = append(rows, row)
	}
	if err := result.Err(); err != nil {
		return nil, apperrors.NewGraphQueryFailed(query, err)
	}

	r.logger.Debug("Generated Cypher executed",
		zap.String("query", query),
		zap.Int("rows", len(rows)),
		zap.Duration("took", time.Since(start)),
	)
	return rows, nil
}

// NormalizeValue converts driver values into JSON-friendly Go values
func NormalizeValue(v interface{}) interface{} {
	switch x := v.(type) {
	case dbtype.Node:
		return normalizeProps(x.Props)
	case dbtype.Relationship:
		props := normalizeProps(x.Props)
		props["_type"] = x.Type
		return props
	case dbtype.Path:
		nodes := make([]interface{}, 0, len(x.Nodes))
		for _, n := range x.Nodes {
			nodes = append(nodes, normalizeProps(n.Props))
		}
		return nodes
	case dbtype.Date:
		return x.Time().Format("2006-01-02")
	case dbtype.LocalDateTime:
		return x.Time().Format("2006-01-02T15:04:05")
	case dbtype.LocalTime:
		return x.Time().Format("15:04:05")
	case dbtype.Time:
		return x.Time().Format("15:04:05Z07:00")
	case dbtype.Duration:
		return x.String()
	case time.Time:
		return x.Format(time.RFC3339)
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, item := range x {
			out[i] = NormalizeValue(item)
		}
		return out
	case map[string]interface{}:
		return normalizeProps(x)
	default:
		return v
	}
}

func normalizeProps(props map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(props))
	for k, v := range props {
		// MERGE keys are an implementation detail
		if k == "normalized_name" {
			continue
		}
		out[k] = NormalizeValue(v)
	}
	return out
}

// DescribeRows renders rows compactly for prompts and fallbacks
func DescribeRows(rows []map[string]interface{}) string {
	if len(rows) == 0 {
		return "(no rows)"
	}
	var sb strings.Builder
	for i, row := range rows {
		fmt.Fprintf(&sb, "%d. %v\n", i+1, row)
	}
	return strings.TrimSpace(sb.String())
}
