package telegram

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"bizgraph-bot/backend/internal/agent"
	"bizgraph-bot/backend/internal/graph"
	"bizgraph-bot/backend/pkg/config"
)

func testProfile() *config.Profile {
	p := config.DefaultProfile()
	p.BusinessName = "Smile Dental Supplies"
	p.Timezone = "UTC"
	return p
}

func TestOnText_RepliesWithAgentAnswer(t *testing.T) {
	convo := &mockConversation{reply: &agent.Reply{Text: "Product 'ortho kit' added with price ₹500.", HTML: true}}
	h := NewHandlers(convo, &mockCatalog{}, testProfile(), nil)
	c := newFakeContext(7, "Add product ortho kit price 500")

	require.NoError(t, h.OnText(c))

	require.Len(t, convo.requests, 1)
	req := convo.requests[0]
	assert.Equal(t, "7", req.UserID)
	assert.Equal(t, int64(7), req.ChatID)
	assert.Equal(t, "Add product ortho kit price 500", req.Text)
	assert.True(t, req.Date.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)))

	assert.Equal(t, []tele.ChatAction{tele.Typing}, c.notified)
	assert.Equal(t, []string{"Product &#39;ortho kit&#39; added with price ₹500."}, c.texts())
}

func TestOnText_IgnoresCommandsAndBlank(t *testing.T) {
	convo := &mockConversation{}
	h := NewHandlers(convo, &mockCatalog{}, testProfile(), nil)

	require.NoError(t, h.OnText(newFakeContext(1, "/unknown")))
	require.NoError(t, h.OnText(newFakeContext(1, "   ")))

	assert.Empty(t, convo.requests)
}

func TestOnText_AgentFailureSendsErrorReply(t *testing.T) {
	convo := &mockConversation{err: errors.New("workflow failed")}
	h := NewHandlers(convo, &mockCatalog{}, testProfile(), nil)
	c := newFakeContext(1, "Bought ortho kits for 5000 from sajan")

	require.NoError(t, h.OnText(c))

	assert.Equal(t, []string{agent.ErrorReply}, c.texts())
}

func TestOnText_BusyPool(t *testing.T) {
	convo := &mockConversation{}
	h := NewHandlers(convo, &mockCatalog{}, testProfile(), rejectingPool{})
	c := newFakeContext(1, "Show me all products")

	require.NoError(t, h.OnText(c))

	assert.Empty(t, convo.requests)
	assert.Equal(t, []string{busyReply}, c.texts())
}

func TestOnProducts(t *testing.T) {
	catalog := &mockCatalog{products: []graph.Product{
		{Name: "ortho kit", Price: 500},
		{Name: "bracket", Price: 120.5},
	}}
	h := NewHandlers(&mockConversation{}, catalog, testProfile(), nil)
	c := newFakeContext(1, "/products")

	require.NoError(t, h.OnProducts(c))

	assert.Equal(t, []string{"<b>Products (2)</b>\n• ortho kit: ₹500\n• bracket: ₹120.50"}, c.texts())
}

func TestRenderProducts_Empty(t *testing.T) {
	assert.Contains(t, RenderProducts(nil, testProfile()), "No products yet")
}

func TestOnExport(t *testing.T) {
	catalog := &mockCatalog{transactions: []graph.Transaction{
		{ID: "tx-1", Type: "purchase", Amount: 5000, Quantity: 1, Product: "ortho kit", Vendor: "sajan",
			Date: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
	}}
	h := NewHandlers(&mockConversation{}, catalog, testProfile(), nil)
	c := newFakeContext(1, "/export")

	require.NoError(t, h.OnExport(c))

	require.Len(t, catalog.filters, 1)
	assert.Equal(t, exportLimit, catalog.filters[0].Limit)
	require.Len(t, c.sent, 1)
	doc, ok := c.sent[0].what.(*tele.Document)
	require.True(t, ok)
	assert.Equal(t, "text/csv", doc.MIME)
	assert.Contains(t, doc.FileName, "transactions-")
	assert.Equal(t, "1 transactions", doc.Caption)
}

func TestOnExport_NothingToExport(t *testing.T) {
	h := NewHandlers(&mockConversation{}, &mockCatalog{}, testProfile(), nil)
	c := newFakeContext(1, "/export")

	require.NoError(t, h.OnExport(c))
	assert.Equal(t, []string{"There are no transactions to export yet."}, c.texts())
}

func TestOnReset(t *testing.T) {
	convo := &mockConversation{}
	h := NewHandlers(convo, &mockCatalog{}, testProfile(), nil)
	c := newFakeContext(5, "/reset")

	require.NoError(t, h.OnReset(c))
	assert.Equal(t, []string{"5"}, convo.resets)
	require.Len(t, c.texts(), 1)
}

func TestOnStart_GreetsByName(t *testing.T) {
	h := NewHandlers(&mockConversation{}, &mockCatalog{}, testProfile(), nil)
	c := newFakeContext(1, "/start")

	require.NoError(t, h.OnStart(c))
	require.Len(t, c.texts(), 1)
	assert.Contains(t, c.texts()[0], "Hi Asha!")
	assert.Contains(t, c.texts()[0], "<b>Smile Dental Supplies</b>")
}
