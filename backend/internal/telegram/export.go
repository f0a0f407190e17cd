package telegram

import (
	"fmt"

	"github.com/gocarina/gocsv"

	"bizgraph-bot/backend/internal/graph"
)

// exportRow is one CSV line of /export
type exportRow struct {
	Date      string  `csv:"date"`
	Type      string  `csv:"type"`
	Product   string  `csv:"product"`
	Quantity  float64 `csv:"quantity"`
	UnitPrice float64 `csv:"unit_price"`
	Amount    float64 `csv:"amount"`
	Vendor    string  `csv:"vendor"`
	Customer  string  `csv:"customer"`
	Notes     string  `csv:"notes"`
	ID        string  `csv:"id"`
}

// TransactionsCSV renders transactions as CSV with a header row
func TransactionsCSV(txs []graph.Transaction) ([]byte, error) {
	rows := make([]*exportRow, 0, len(txs))
	for _, t := range txs {
		rows = append(rows, &exportRow{
			Date:      t.Date.Format("2006-01-02"),
			Type:      t.Type,
			Product:   t.Product,
			Quantity:  t.Quantity,
			UnitPrice: t.UnitPrice,
			Amount:    t.Amount,
			Vendor:    t.Vendor,
			Customer:  t.Customer,
			Notes:     t.Notes,
			ID:        t.ID,
		})
	}
	out, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transactions: %w", err)
	}
	return out, nil
}
