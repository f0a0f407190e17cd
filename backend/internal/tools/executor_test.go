package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizgraph-bot/backend/internal/adapter"
	"bizgraph-bot/backend/internal/graph"
	"bizgraph-bot/backend/internal/ledger"
	"bizgraph-bot/backend/pkg/config"
)

// Mock implementations for testing

type mockGraph struct {
	products     []graph.Product
	transactions []graph.Transaction
	lastTxInput  graph.TransactionInput
	lastFilter   graph.TransactionFilter
	cypherCalls  []string
	cypherErrs   []error
	cypherRows   []map[string]interface{}
	summary      *graph.SalesSummary
	err          error
}

func (m *mockGraph) AddProduct(ctx context.Context, in graph.ProductInput) (*graph.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	p := graph.Product{Name: in.Name, Price: in.Price, Description: in.Description}
	m.products = append(m.products, p)
	return &p, nil
}

func (m *mockGraph) GetProduct(ctx context.Context, name string) (*graph.Product, error) {
	for _, p := range m.products {
		if graph.Normalize(p.Name) == graph.Normalize(name) {
			return &p, nil
		}
	}
	return nil, nil
}

func (m *mockGraph) ListProducts(ctx context.Context) ([]graph.Product, error) {
	return m.products, m.err
}

func (m *mockGraph) LogTransaction(ctx context.Context, in graph.TransactionInput) (*graph.Transaction, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.lastTxInput = in
	qty := in.Quantity
	if qty == 0 {
		qty = 1
	}
	tx := graph.Transaction{
		ID:       "tx-1",
		Type:     in.Type,
		Amount:   in.Amount,
		Quantity: qty,
		Date:     in.Date,
		Product:  graph.Normalize(in.Product),
		Vendor:   in.Vendor,
		Customer: in.Customer,
		UserID:   in.UserID,
	}
	m.transactions = append(m.transactions, tx)
	return &tx, nil
}

func (m *mockGraph) ListTransactions(ctx context.Context, filter graph.TransactionFilter) ([]graph.Transaction, error) {
	m.lastFilter = filter
	return m.transactions, m.err
}

func (m *mockGraph) LogCommission(ctx context.Context, in graph.CommissionInput) (*graph.Commission, error) {
	return &graph.Commission{ID: "c-1", Amount: in.Amount, Vendor: in.Vendor, Date: in.Date}, m.err
}

func (m *mockGraph) SummarizeSales(ctx context.Context, from, to time.Time) (*graph.SalesSummary, error) {
	if m.summary != nil {
		return m.summary, nil
	}
	return &graph.SalesSummary{From: from, To: to}, m.err
}

func (m *mockGraph) TopProducts(ctx context.Context, limit int) ([]graph.ProductStat, error) {
	return []graph.ProductStat{{Name: "ortho kit", Revenue: 1000}}, m.err
}

func (m *mockGraph) ProductPerformance(ctx context.Context, product string) (*graph.ProductStat, error) {
	if product == "unknown" {
		return nil, nil
	}
	return &graph.ProductStat{Name: product}, m.err
}

func (m *mockGraph) VendorSummary(ctx context.Context) ([]graph.VendorStat, error) {
	return []graph.VendorStat{{Name: "sajan", Total: 5000}}, m.err
}

func (m *mockGraph) RevenueTrends(ctx context.Context, days int) ([]graph.DailyTotal, error) {
	return []graph.DailyTotal{{Day: "2024-03-15", Sales: 100}}, m.err
}

func (m *mockGraph) RunCypher(ctx context.Context, query string, params map[string]interface{}, allowWrites bool) ([]map[string]interface{}, error) {
	m.cypherCalls = append(m.cypherCalls, query)
	if len(m.cypherErrs) > 0 {
		err := m.cypherErrs[0]
		m.cypherErrs = m.cypherErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return m.cypherRows, nil
}

type mockLLM struct {
	replies  []string
	requests []adapter.Request
	err      error
}

func (m *mockLLM) Chat(ctx context.Context, r adapter.Request) (string, error) {
	m.requests = append(m.requests, r)
	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) == 0 {
		return "", nil
	}
	reply := m.replies[0]
	if len(m.replies) > 1 {
		m.replies = m.replies[1:]
	}
	return reply, nil
}

type mockLedger struct {
	products []graph.Product
	txs      []graph.Transaction
	entries  []ledger.Entry
	err      error
}

func (m *mockLedger) UpsertProduct(ctx context.Context, p graph.Product) (int64, error) {
	m.products = append(m.products, p)
	return int64(len(m.products)), m.err
}

func (m *mockLedger) RecordTransaction(ctx context.Context, t graph.Transaction, rawMessage string) error {
	m.txs = append(m.txs, t)
	return m.err
}

func (m *mockLedger) RecentTransactions(ctx context.Context, limit int) ([]ledger.Entry, error) {
	return m.entries, m.err
}

func newTestExecutor(repo *mockGraph, llm *mockLLM) *Executor {
	profile := config.DefaultProfile()
	profile.Timezone = "UTC"
	profile.ProductAliases = map[string]string{"ok": "ortho kit"}
	return NewExecutor(repo, llm, profile, true)
}

func execCtx(msg string) *ExecutionContext {
	return &ExecutionContext{
		UserID:  "42",
		Message: msg,
		Date:    time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestExecute_AddProduct(t *testing.T) {
	repo := &mockGraph{}
	l := &mockLedger{}
	e := newTestExecutor(repo, nil)
	e.SetLedger(l)

	res := e.Execute(context.Background(), execCtx("Add product ortho kit price 500"), adapter.ToolCall{
		Name:      ToolAddProduct,
		Arguments: map[string]interface{}{"name": "ortho kit", "price": "500"},
	})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Product 'ortho kit' added with price 500.", res.Message)
	require.Len(t, repo.products, 1)
	assert.Equal(t, 500.0, repo.products[0].Price)
	assert.Len(t, l.products, 1)
}

func TestExecute_AddProduct_ResolvesAlias(t *testing.T) {
	repo := &mockGraph{}
	e := newTestExecutor(repo, nil)

	res := e.Execute(context.Background(), execCtx(""), adapter.ToolCall{
		Name:      ToolAddProduct,
		Arguments: map[string]interface{}{"product_name": "OK", "cost": 450},
	})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "ortho kit", repo.products[0].Name)
}

func TestExecute_AddProduct_MissingFields(t *testing.T) {
	e := newTestExecutor(&mockGraph{}, nil)

	for _, args := range []map[string]interface{}{
		{"name": "ortho kit"},
		{"price": 500},
		{},
	} {
		res := e.Execute(context.Background(), execCtx(""), adapter.ToolCall{Name: ToolAddProduct, Arguments: args})
		assert.False(t, res.Success)
		assert.Equal(t, MissingProductFields, res.Message)
	}
}

func TestExecute_LogTransaction_Purchase(t *testing.T) {
	repo := &mockGraph{}
	l := &mockLedger{}
	e := newTestExecutor(repo, nil)
	e.SetLedger(l)

	res := e.Execute(context.Background(), execCtx("Bought ortho kits for 5000 from sajan"), adapter.ToolCall{
		Name: ToolLogTransaction,
		Arguments: map[string]interface{}{
			"type":   "bought",
			"item":   "ortho kits",
			"total":  5000,
			"vendor": "sajan",
		},
	})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Logged purchase of ortho kits for 5000 from sajan.", res.Message)
	assert.Equal(t, graph.TransactionPurchase, repo.lastTxInput.Type)
	assert.Equal(t, "Bought ortho kits for 5000 from sajan", repo.lastTxInput.RawMessage)
	assert.Equal(t, "42", repo.lastTxInput.UserID)
	assert.Equal(t, "2024-03-15", repo.lastTxInput.Date.Format("2006-01-02"))
	assert.Len(t, l.txs, 1)
}

func TestExecute_LogTransaction_Sale(t *testing.T) {
	repo := &mockGraph{}
	e := newTestExecutor(repo, nil)

	res := e.Execute(context.Background(), execCtx(""), adapter.ToolCall{
		Name: ToolLogTransaction,
		Arguments: map[string]interface{}{
			"type":     "sale",
			"product":  "bracket",
			"quantity": 2,
			"amount":   "800",
			"customer": "Dr. Rao",
			"date":     "yesterday",
		},
	})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Logged sale of 2 bracket for 800 to Dr. Rao.", res.Message)
	assert.False(t, repo.lastTxInput.Date.IsZero())
}

func TestExecute_LogTransaction_DefaultVendor(t *testing.T) {
	repo := &mockGraph{}
	e := newTestExecutor(repo, nil)
	e.Profile().DefaultVendor = "local market"

	res := e.Execute(context.Background(), execCtx(""), adapter.ToolCall{
		Name:      ToolLogTransaction,
		Arguments: map[string]interface{}{"type": "purchase", "amount": 100},
	})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "local market", repo.lastTxInput.Vendor)
}

func TestExecute_LogTransaction_Invalid(t *testing.T) {
	e := newTestExecutor(&mockGraph{}, nil)

	res := e.Execute(context.Background(), execCtx(""), adapter.ToolCall{
		Name:      ToolLogTransaction,
		Arguments: map[string]interface{}{"amount": 100},
	})
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Message)

	res = e.Execute(context.Background(), execCtx(""), adapter.ToolCall{
		Name:      ToolLogTransaction,
		Arguments: map[string]interface{}{"type": "purchase"},
	})
	assert.False(t, res.Success)
}

func TestExecute_LedgerFailureIsNotFatal(t *testing.T) {
	e := newTestExecutor(&mockGraph{}, nil)
	e.SetLedger(&mockLedger{err: errors.New("postgres down")})

	res := e.Execute(context.Background(), execCtx(""), adapter.ToolCall{
		Name:      ToolLogTransaction,
		Arguments: map[string]interface{}{"type": "purchase", "amount": 100, "vendor": "sajan"},
	})
	assert.True(t, res.Success)
}

func TestExecute_LogCommission(t *testing.T) {
	e := newTestExecutor(&mockGraph{}, nil)

	res := e.Execute(context.Background(), execCtx(""), adapter.ToolCall{
		Name:      ToolLogCommission,
		Arguments: map[string]interface{}{"amount": "300", "from": "sajan"},
	})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Logged commission of 300 from sajan.", res.Message)
}

func TestExecute_ListProducts(t *testing.T) {
	repo := &mockGraph{products: []graph.Product{{Name: "ortho kit", Price: 500}, {Name: "bracket", Price: 40}}}
	e := newTestExecutor(repo, nil)

	res := e.Execute(context.Background(), execCtx("Show me all products"), adapter.ToolCall{Name: ToolListProducts})
	require.True(t, res.Success)
	products, ok := res.Data.([]graph.Product)
	require.True(t, ok)
	assert.Len(t, products, 2)
}

func TestExecute_ListTransactions_Filter(t *testing.T) {
	repo := &mockGraph{}
	e := newTestExecutor(repo, nil)

	res := e.Execute(context.Background(), execCtx(""), adapter.ToolCall{
		Name:      ToolListTransactions,
		Arguments: map[string]interface{}{"type": "sold", "supplier": "ignored", "vendor": "sajan"},
	})
	require.True(t, res.Success)
	assert.Equal(t, graph.TransactionSale, repo.lastFilter.Type)
	assert.Equal(t, "sajan", repo.lastFilter.Vendor)
	assert.Equal(t, 20, repo.lastFilter.Limit)
}

func TestExecute_Analytics(t *testing.T) {
	repo := &mockGraph{}
	e := newTestExecutor(repo, nil)
	ctx := context.Background()

	res := e.Execute(ctx, execCtx(""), adapter.ToolCall{
		Name:      ToolBusinessAnalytics,
		Arguments: map[string]interface{}{"report": ReportTopProducts},
	})
	require.True(t, res.Success)
	assert.IsType(t, []graph.ProductStat{}, res.Data)

	res = e.Execute(ctx, execCtx("who are my vendors"), adapter.ToolCall{
		Name:      ToolBusinessAnalytics,
		Arguments: map[string]interface{}{"report": "something"},
	})
	require.True(t, res.Success)
	assert.IsType(t, []graph.VendorStat{}, res.Data)

	res = e.Execute(ctx, execCtx("total sales"), adapter.ToolCall{Name: ToolBusinessAnalytics})
	require.True(t, res.Success)
	summary, ok := res.Data.(*graph.SalesSummary)
	require.True(t, ok)
	assert.Equal(t, 1970, summary.From.Year())
	assert.Equal(t, "2024-03-15", summary.To.Format("2006-01-02"))

	res = e.Execute(ctx, execCtx(""), adapter.ToolCall{
		Name:      ToolBusinessAnalytics,
		Arguments: map[string]interface{}{"report": ReportProductPerformance, "product": "unknown"},
	})
	require.True(t, res.Success)
	assert.Contains(t, res.Message, "No transactions found")

	res = e.Execute(ctx, execCtx(""), adapter.ToolCall{
		Name:      ToolBusinessAnalytics,
		Arguments: map[string]interface{}{"report": ReportProductPerformance},
	})
	assert.False(t, res.Success)
}

func TestExecute_GraphQuery(t *testing.T) {
	repo := &mockGraph{cypherRows: []map[string]interface{}{{"name": "ortho kit"}}}
	llm := &mockLLM{replies: []string{"```cypher\nMATCH (p:Product) RETURN p.name AS name LIMIT 100;\n```"}}
	e := newTestExecutor(repo, llm)

	res := e.Execute(context.Background(), execCtx("which products do I have"), adapter.ToolCall{
		Name:      ToolGraphQuery,
		Arguments: map[string]interface{}{"request": "list product names"},
	})

	require.True(t, res.Success, res.Error)
	require.Len(t, repo.cypherCalls, 1)
	assert.Equal(t, "MATCH (p:Product) RETURN p.name AS name LIMIT 100", repo.cypherCalls[0])
	assert.Contains(t, llm.requests[0].System, "INVOLVES_PRODUCT")
	assert.Equal(t, "Query returned 1 rows", res.Message)
}

func TestExecute_GraphQuery_Repair(t *testing.T) {
	repo := &mockGraph{cypherErrs: []error{errors.New("syntax error"), nil}}
	llm := &mockLLM{replies: []string{"MATCH (p:Prodct RETURN p", "MATCH (p:Product) SET p.price = 600"}}
	e := newTestExecutor(repo, llm)

	res := e.Execute(context.Background(), execCtx("set ortho kit price to 600"), adapter.ToolCall{Name: ToolGraphQuery})

	require.True(t, res.Success, res.Error)
	assert.Len(t, repo.cypherCalls, 2)
	require.Len(t, llm.requests, 2)
	assert.Contains(t, llm.requests[1].Message, "syntax error")
	assert.Equal(t, "Update applied", res.Message)
}

func TestExecute_GraphQuery_RepairFails(t *testing.T) {
	repo := &mockGraph{cypherErrs: []error{errors.New("bad"), errors.New("still bad")}}
	llm := &mockLLM{replies: []string{"MATCH (n) RETURN n"}}
	e := newTestExecutor(repo, llm)

	res := e.Execute(context.Background(), execCtx("anything"), adapter.ToolCall{Name: ToolGraphQuery})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "still bad")
}

func TestExecute_AnswerQuestion(t *testing.T) {
	repo := &mockGraph{
		products:     []graph.Product{{Name: "ortho kit", Price: 500}},
		transactions: []graph.Transaction{{Type: "purchase", Product: "ortho kit", Quantity: 1, Amount: 5000, Vendor: "sajan"}},
	}
	llm := &mockLLM{replies: []string{"You bought ortho kits from sajan for ₹5000."}}
	e := newTestExecutor(repo, llm)

	res := e.Execute(context.Background(), execCtx("what did I buy from sajan?"), adapter.ToolCall{Name: ToolAnswerQuestion})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "You bought ortho kits from sajan for ₹5000.", res.Message)
	assert.Contains(t, llm.requests[0].System, "from sajan")
	assert.Equal(t, "what did I buy from sajan?", llm.requests[0].Message)
}

func TestExecute_AnswerQuestion_PrefersLedger(t *testing.T) {
	l := &mockLedger{entries: []ledger.Entry{{ID: "1", Type: "sale", Amount: 800, Customer: "Dr. Rao"}}}
	llm := &mockLLM{replies: []string{"ok"}}
	e := newTestExecutor(&mockGraph{}, llm)
	e.SetLedger(l)

	res := e.Execute(context.Background(), execCtx("who bought from me?"), adapter.ToolCall{Name: ToolAnswerQuestion})
	require.True(t, res.Success)
	assert.True(t, strings.Contains(llm.requests[0].System, "to Dr. Rao"))
}

func TestExecute_UnknownTool(t *testing.T) {
	e := newTestExecutor(&mockGraph{}, nil)
	res := e.Execute(context.Background(), execCtx(""), adapter.ToolCall{Name: "play_music"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Unknown tool")
}

func TestGetAllTools(t *testing.T) {
	names := map[string]bool{}
	for _, tool := range GetAllTools() {
		names[tool.Function.Name] = true
	}
	for _, want := range []string{
		ToolAddProduct, ToolLogTransaction, ToolLogCommission, ToolListProducts,
		ToolListTransactions, ToolBusinessAnalytics, ToolGraphQuery, ToolAnswerQuestion,
	} {
		assert.True(t, names[want], want)
	}
}

func TestTransactionConfirmation(t *testing.T) {
	tx := &graph.Transaction{Type: graph.TransactionSale, Product: "bracket", Quantity: 1, Amount: 120, Customer: "Dr. Rao"}
	assert.Equal(t, "Logged sale of bracket for 120 to Dr. Rao.", TransactionConfirmation(tx, false))
	assert.Equal(t, "Logged sale of 1 bracket for 120 to Dr. Rao.", TransactionConfirmation(tx, true))

	assert.Equal(t, "Logged purchase of items for 50.", TransactionConfirmation(&graph.Transaction{Type: graph.TransactionPurchase, Amount: 50}, false))
}
