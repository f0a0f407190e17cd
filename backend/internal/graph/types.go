package graph

import "time"

// ============================================================================
// Ledger Graph Types
// ============================================================================

// Transaction types
const (
	TransactionPurchase = "purchase"
	TransactionSale     = "sale"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// IntentSessionReset marks the system message logged when a user clears their session
const IntentSessionReset = "session_reset"

// Product is a catalog entry
type Product struct {
	Name        string    `json:"name"`
	Price       float64   `json:"price"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// ProductInput is the payload for AddProduct
type ProductInput struct {
	Name        string
	Price       float64
	Description string
}

// Transaction is a purchase or sale recorded against a product and counterparty
type Transaction struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Amount    float64   `json:"amount"`
	Quantity  float64   `json:"quantity"`
	UnitPrice float64   `json:"unit_price,omitempty"`
	Date      time.Time `json:"date"`
	Product   string    `json:"product,omitempty"`
	Vendor    string    `json:"vendor,omitempty"`
	Customer  string    `json:"customer,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
}

// TransactionInput is the payload for LogTransaction. Zero UnitPrice means
// "use the catalog price"; zero Amount is derived from quantity and unit price.
type TransactionInput struct {
	Type       string
	Product    string
	Vendor     string
	Customer   string
	Quantity   float64
	UnitPrice  float64
	Amount     float64
	Date       time.Time
	Notes      string
	RawMessage string
	UserID     string
}

// Commission is money received from a vendor outside a sale
type Commission struct {
	ID     string    `json:"id"`
	Amount float64   `json:"amount"`
	Date   time.Time `json:"date"`
	RefID  string    `json:"ref_id,omitempty"`
	Vendor string    `json:"vendor,omitempty"`
	Notes  string    `json:"notes,omitempty"`
}

// CommissionInput is the payload for LogCommission
type CommissionInput struct {
	Vendor string
	Amount float64
	Date   time.Time
	RefID  string
	Notes  string
	UserID string
}

// TransactionFilter narrows ListTransactions. Empty fields match everything.
type TransactionFilter struct {
	Type     string
	Product  string
	Vendor   string
	Customer string
	From     time.Time
	To       time.Time
	Limit    int
}

// SalesSummary aggregates transactions over a period
type SalesSummary struct {
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	SalesTotal     float64   `json:"sales_total"`
	SalesCount     int64     `json:"sales_count"`
	PurchasesTotal float64   `json:"purchases_total"`
	PurchasesCount int64     `json:"purchases_count"`
	Commissions    float64   `json:"commissions"`
	Net            float64   `json:"net"`
}

// ProductStat is per-product activity
type ProductStat struct {
	Name         string  `json:"name"`
	Transactions int64   `json:"transactions"`
	QuantitySold float64 `json:"quantity_sold"`
	Revenue      float64 `json:"revenue"`
	Spent        float64 `json:"spent"`
}

// VendorStat is per-vendor activity
type VendorStat struct {
	Name        string  `json:"name"`
	Purchases   int64   `json:"purchases"`
	Total       float64 `json:"total"`
	Commissions float64 `json:"commissions"`
}

// DailyTotal is one day of a revenue trend
type DailyTotal struct {
	Day       string  `json:"day"`
	Sales     float64 `json:"sales"`
	Purchases float64 `json:"purchases"`
}

// Message represents a logged chat message
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Role      string    `json:"role"`
	Intent    string    `json:"intent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
