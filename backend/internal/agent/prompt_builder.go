package agent

import (
	"fmt"
	"strings"
	"time"

	"bizgraph-bot/backend/pkg/config"
)

const intentSystemPrompt = `You are an intent detection agent for a business tracking system.
Analyze the user message and determine the appropriate action.

Available intents:
- graph_query: the user asks about business data, products, vendors, transactions
- add_product: the user wants to add or create a product, or change its price
- log_transaction: the user mentions buying or selling
- log_commission: the user received a commission from a vendor
- analytics: the user wants totals, top products, vendor summaries or trends
- qa: the user asks a business question that needs reasoning over recent activity
- chat: greetings and general conversation

Return only a JSON object:
{
  "intent": "one of the intents above",
  "confidence": 0.0-1.0,
  "entities": {
    "product": "product name if mentioned",
    "price": "unit price if mentioned",
    "quantity": "quantity if mentioned",
    "vendor": "vendor name if mentioned",
    "customer": "customer name if mentioned",
    "amount": "total amount if mentioned",
    "transaction_type": "purchase, sale or commission if mentioned",
    "date": "date if mentioned"
  },
  "action": "short description of what to do"
}

Consider the conversation context when determining intent; "same vendor" or "it"
refer to the business context.`

const chatSystemPrompt = `You are a helpful business assistant for %s. Reply in a friendly, contextual way.
Consider the conversation history. Keep replies within 3-4 lines unless more is needed.
Format with Telegram HTML only: <b>, <i>, <code>. No Markdown.`

// buildUnifiedPrompt is the system prompt for the single tool-calling pass
func buildUnifiedPrompt(profile *config.Profile, state *TurnState) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are the bookkeeping assistant for %s, chatting on Telegram.\n", profile.BusinessName)
	sb.WriteString(`
## What you do
Turn the user's free-form messages into records using the tools:
- products and price changes -> add_product
- purchases ("Bought ortho kits for 5000 from sajan") and sales -> log_transaction
- commissions received -> log_commission
- "Show me all products" -> list_products
- recent activity listings -> list_transactions
- totals, top products, vendors, trends -> business_analytics
- anything else about the data -> graph_query or answer_question
For greetings and small talk, reply directly without tools.

## Rules
- Call a tool whenever the message records or asks for business data. Never invent numbers.
- Amounts are plain numbers ("5k" is 5000). Omit fields the user did not give.
- Use the business context below to resolve "same vendor", "it", "that product".
- Reply in Telegram HTML (<b>, <i>, <code>), never Markdown.
`)

	fmt.Fprintf(&sb, "\n## Business\nCurrency: %s (%s)\nToday: %s\n",
		profile.CurrencyCode,
		profile.CurrencySymbol,
		turnDate(state, profile).Format("Monday, 2006-01-02"),
	)
	if profile.DefaultVendor != "" {
		fmt.Fprintf(&sb, "Default vendor for purchases: %s\n", profile.DefaultVendor)
	}
	if len(profile.ProductAliases) > 0 {
		sb.WriteString("Product shorthand:\n")
		for alias, name := range profile.ProductAliases {
			fmt.Fprintf(&sb, "- %s = %s\n", alias, name)
		}
	}

	if state.Context != "" {
		sb.WriteString("\n## Session\n")
		sb.WriteString(state.Context)
		sb.WriteString("\n")
	}

	return sb.String()
}

func turnDate(state *TurnState, profile *config.Profile) time.Time {
	if !state.Date.IsZero() {
		return state.Date.In(profile.Location())
	}
	return time.Now().In(profile.Location())
}

// formatPrompt returns the formatting instructions for an operation's raw result
func formatPrompt(operation, message, data string, profile *config.Profile) string {
	currency := fmt.Sprintf("Amounts are in %s; prefix them with %s.", profile.CurrencyCode, profile.CurrencySymbol)

	switch operation {
	case OperationGraphQuery, OperationListProducts, OperationAnalytics:
		return fmt.Sprintf(`Format this database result into a user-friendly Telegram message.

Original user message: %s
Result: %s

- Use <b> for headers and important figures
- Use bullet points (•) for lists, one item per line
- %s
- If the result is empty, say that no data was found
Return only the message.`, message, data, currency)

	case OperationAddProduct:
		return fmt.Sprintf(`Format this product result into a short confirmation message.

Result: %s

Use <b> for the product name and price. %s Sound like a helpful assistant confirming the action.
Return only the message.`, data, currency)

	case OperationLogTransaction, OperationLogCommission:
		return fmt.Sprintf(`Format this transaction result into a short confirmation message.

Result: %s

Use <b> for the amount, product and counterparty. %s Sound like a helpful assistant confirming the transaction.
Return only the message.`, data, currency)

	default:
		return fmt.Sprintf(`Format this business operation result into a user-friendly Telegram message.

Original user message: %s
Result: %s

Use <b> for important information. %s Be conversational and brief.
Return only the message.`, message, data, currency)
	}
}

const formatterSystemPrompt = "You are a formatting assistant. Format replies for Telegram using only the HTML tags <b>, <i>, <u>, <code>, <pre>. Never use Markdown."
