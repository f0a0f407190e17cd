package agent

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"bizgraph-bot/backend/internal/adapter"
	apperrors "bizgraph-bot/backend/pkg/errors"
	"bizgraph-bot/backend/pkg/logger"
)

// IntentResult is the detector's reading of a message
type IntentResult struct {
	Intent     string                 `json:"intent"`
	Confidence float64                `json:"confidence"`
	Entities   map[string]interface{} `json:"entities"`
	Action     string                 `json:"action"`
}

// IntentDetector classifies a message and extracts entities with one JSON-mode LLM call
type IntentDetector struct {
	llm    LLM
	logger *zap.Logger
}

// NewIntentDetector creates a detector
func NewIntentDetector(llm LLM) *IntentDetector {
	return &IntentDetector{llm: llm, logger: logger.Get()}
}

// Detect returns the intent for message. An unparseable model reply yields the
// chat intent; a failed model call is returned as an error.
func (d *IntentDetector) Detect(ctx context.Context, message, conversation string) (*IntentResult, error) {
	userMsg := message
	if conversation != "" {
		userMsg = conversation + "\n\nMessage: " + message
	}

	resp, err := d.llm.Generate(ctx, adapter.Request{
		System:  intentSystemPrompt,
		Message: userMsg,
		JSON:    true,
	})
	if err != nil {
		return nil, err
	}

	result, err := ParseIntent(resp.Content)
	if err != nil {
		d.logger.Warn("Failed to parse intent response",
			zap.String("raw", resp.Content),
			zap.Error(err),
		)
		return &IntentResult{Intent: IntentChat, Entities: map[string]interface{}{}}, nil
	}

	d.logger.Info("Intent detected",
		zap.String("intent", result.Intent),
		zap.Float64("confidence", result.Confidence),
		zap.Any("entities", result.Entities),
	)
	return result, nil
}

// ParseIntent decodes the detector's JSON reply, tolerating code fences and prose around it
func ParseIntent(raw string) (*IntentResult, error) {
	var result IntentResult
	if err := json.Unmarshal([]byte(adapter.ExtractJSONObject(raw)), &result); err != nil {
		return nil, apperrors.NewAgentInvalidIntent(raw, err)
	}
	result.Intent = strings.ToLower(strings.TrimSpace(result.Intent))
	if result.Intent == "" {
		result.Intent = IntentChat
	}
	if result.Entities == nil {
		result.Entities = map[string]interface{}{}
	}
	return &result, nil
}

const amountPattern = `(?:rs\.?|₹|inr)?\s*([\d][\d,]*(?:\.\d+)?\s*(?:k|lakh|lac|cr)?)`

var (
	addProductRule = regexp.MustCompile(`(?i)^\s*add\s+(?:a\s+)?(?:new\s+)?product\s+(.+?)\s+(?:with\s+)?(?:price|at|for|@)\s*(?:of\s+)?` + amountPattern + `\s*$`)
	purchaseRule   = regexp.MustCompile(`(?i)^\s*(?:bought|purchased)\s+(?:(\d+)\s+)?(.+?)\s+(?:for|at|worth)\s+` + amountPattern + `\s+from\s+(.+?)\s*\.?$`)
	saleRule       = regexp.MustCompile(`(?i)^\s*sold\s+(?:(\d+)\s+)?(.+?)\s+(?:for|at|worth)\s+` + amountPattern + `\s+to\s+(.+?)\s*\.?$`)
	listRule       = regexp.MustCompile(`(?i)\b(?:show|list|display|view)\b.*\bproducts?\b|^\s*products\s*\??$`)
)

// MatchRule recognizes the most common phrasings without a model call.
// It returns nil when nothing matches.
func MatchRule(message string) *IntentResult {
	if m := addProductRule.FindStringSubmatch(message); m != nil {
		return &IntentResult{
			Intent:     IntentAddProduct,
			Confidence: 1,
			Entities:   map[string]interface{}{"product": strings.TrimSpace(m[1]), "price": m[2]},
		}
	}
	if m := purchaseRule.FindStringSubmatch(message); m != nil {
		entities := map[string]interface{}{
			"transaction_type": "purchase",
			"product":          strings.TrimSpace(m[2]),
			"amount":           m[3],
			"vendor":           strings.TrimSpace(m[4]),
		}
		if m[1] != "" {
			entities["quantity"] = m[1]
		}
		return &IntentResult{Intent: IntentLogTransaction, Confidence: 1, Entities: entities}
	}
	if m := saleRule.FindStringSubmatch(message); m != nil {
		entities := map[string]interface{}{
			"transaction_type": "sale",
			"product":          strings.TrimSpace(m[2]),
			"amount":           m[3],
			"customer":         strings.TrimSpace(m[4]),
		}
		if m[1] != "" {
			entities["quantity"] = m[1]
		}
		return &IntentResult{Intent: IntentLogTransaction, Confidence: 1, Entities: entities}
	}
	if listRule.MatchString(message) {
		return &IntentResult{Intent: OperationListProducts, Confidence: 1, Entities: map[string]interface{}{}}
	}
	return nil
}
