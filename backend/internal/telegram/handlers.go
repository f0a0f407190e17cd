package telegram

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"

	"bizgraph-bot/backend/internal/agent"
	"bizgraph-bot/backend/internal/graph"
	"bizgraph-bot/backend/pkg/config"
	"bizgraph-bot/backend/pkg/logger"
)

const (
	handleTimeout  = 3 * time.Minute
	exportLimit    = 1000
	busyReply      = "I'm a bit busy right now. Please try again in a moment."
	rateLimitReply = "Slow down a little, I'm still working on your last message."
	rejectReply    = "Sorry, this bot is private."
)

const helpText = `<b>What I understand</b>
• <code>Add product ortho kit price 500</code>
• <code>Bought ortho kits for 5000 from sajan</code>
• <code>Sold 2 brackets for 800 to Dr. Rao</code>
• <code>Got 300 commission from sajan</code>
• <code>Show me all products</code>
• <code>Total sales this month?</code>

<b>Commands</b>
/products - list the catalog
/export - download transactions as CSV
/reset - forget our conversation
/help - this message`

// Conversation handles free-form chat messages
type Conversation interface {
	HandleMessage(ctx context.Context, req agent.Request) (*agent.Reply, error)
	ResetSession(ctx context.Context, userID string) error
}

// Catalog is the read side used by commands
type Catalog interface {
	ListProducts(ctx context.Context) ([]graph.Product, error)
	ListTransactions(ctx context.Context, filter graph.TransactionFilter) ([]graph.Transaction, error)
}

// Submitter runs work off the update loop
type Submitter interface {
	Submit(task func()) error
}

// Handlers binds Telegram updates to the agent and catalog
type Handlers struct {
	convo   Conversation
	catalog Catalog
	profile *config.Profile
	pool    Submitter
	baseCtx context.Context
	logger  *zap.Logger
}

// NewHandlers creates handlers; pool may be nil to run inline
func NewHandlers(convo Conversation, catalog Catalog, profile *config.Profile, pool Submitter) *Handlers {
	if profile == nil {
		profile = config.DefaultProfile()
	}
	return &Handlers{
		convo:   convo,
		catalog: catalog,
		profile: profile,
		pool:    pool,
		baseCtx: context.Background(),
		logger:  logger.Get(),
	}
}

// SetBaseContext sets the context handler work derives from; cancelling it aborts in-flight turns
func (h *Handlers) SetBaseContext(ctx context.Context) {
	h.baseCtx = ctx
}

func userID(c tele.Context) string {
	if u := c.Sender(); u != nil {
		return strconv.FormatInt(u.ID, 10)
	}
	if ch := c.Chat(); ch != nil {
		return strconv.FormatInt(ch.ID, 10)
	}
	return ""
}

// OnText forwards a non-command message to the agent
func (h *Handlers) OnText(c tele.Context) error {
	text := strings.TrimSpace(c.Text())
	if text == "" || strings.HasPrefix(text, "/") {
		return nil
	}

	req := agent.Request{UserID: userID(c), Text: text, Date: time.Now()}
	if ch := c.Chat(); ch != nil {
		req.ChatID = ch.ID
	}
	if msg := c.Message(); msg != nil && msg.Unixtime > 0 {
		req.Date = msg.Time()
	}

	work := func() { h.processText(c, req) }
	if h.pool == nil {
		work()
		return nil
	}
	if err := h.pool.Submit(work); err != nil {
		h.logger.Warn("Worker pool rejected update", zap.String("user_id", req.UserID), zap.Error(err))
		return c.Send(busyReply)
	}
	return nil
}

func (h *Handlers) processText(c tele.Context, req agent.Request) {
	ctx, cancel := context.WithTimeout(h.baseCtx, handleTimeout)
	defer cancel()

	_ = c.Notify(tele.Typing)

	reply, err := h.convo.HandleMessage(ctx, req)
	if err != nil {
		h.logger.Error("Failed to handle message", zap.String("user_id", req.UserID), zap.Error(err))
	}
	text := agent.ErrorReply
	asHTML := false
	if reply != nil && strings.TrimSpace(reply.Text) != "" {
		text = reply.Text
		asHTML = reply.HTML
	}

	if err := SendReply(c, text, asHTML); err != nil {
		h.logger.Error("Failed to send reply", zap.String("user_id", req.UserID), zap.Error(err))
	}
}

// OnStart greets the user
func (h *Handlers) OnStart(c tele.Context) error {
	name := "there"
	if u := c.Sender(); u != nil && u.FirstName != "" {
		name = u.FirstName
	}
	greeting := fmt.Sprintf("Hi %s! I keep the books for <b>%s</b>. Tell me what you bought or sold and I'll record it.\n\n%s",
		html.EscapeString(name), html.EscapeString(h.profile.BusinessName), helpText)
	return SendReply(c, greeting, true)
}

// OnHelp lists what the bot understands
func (h *Handlers) OnHelp(c tele.Context) error {
	return SendReply(c, helpText, true)
}

// OnProducts lists the catalog without involving the model
func (h *Handlers) OnProducts(c tele.Context) error {
	ctx, cancel := context.WithTimeout(h.baseCtx, 30*time.Second)
	defer cancel()

	products, err := h.catalog.ListProducts(ctx)
	if err != nil {
		h.logger.Error("Failed to list products", zap.Error(err))
		return SendReply(c, agent.ErrorReply, false)
	}
	return SendReply(c, RenderProducts(products, h.profile), true)
}

// RenderProducts formats the catalog as Telegram HTML
func RenderProducts(products []graph.Product, profile *config.Profile) string {
	if len(products) == 0 {
		return "No products yet. Try <code>Add product ortho kit price 500</code>."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Products (%d)</b>\n", len(products))
	for _, p := range products {
		fmt.Fprintf(&sb, "• %s: %s\n", html.EscapeString(p.Name), profile.FormatAmount(p.Price))
	}
	return strings.TrimSpace(sb.String())
}

// OnExport sends recent transactions as a CSV document
func (h *Handlers) OnExport(c tele.Context) error {
	ctx, cancel := context.WithTimeout(h.baseCtx, time.Minute)
	defer cancel()

	txs, err := h.catalog.ListTransactions(ctx, graph.TransactionFilter{Limit: exportLimit})
	if err != nil {
		h.logger.Error("Failed to load transactions for export", zap.Error(err))
		return SendReply(c, agent.ErrorReply, false)
	}
	if len(txs) == 0 {
		return c.Send("There are no transactions to export yet.")
	}

	data, err := TransactionsCSV(txs)
	if err != nil {
		h.logger.Error("Failed to build export", zap.Error(err))
		return SendReply(c, agent.ErrorReply, false)
	}

	doc := &tele.Document{
		File:     tele.FromReader(bytes.NewReader(data)),
		FileName: fmt.Sprintf("transactions-%s.csv", time.Now().In(h.profile.Location()).Format("2006-01-02")),
		MIME:     "text/csv",
		Caption:  fmt.Sprintf("%d transactions", len(txs)),
	}
	return c.Send(doc)
}

// OnReset clears the user's chat memory
func (h *Handlers) OnReset(c tele.Context) error {
	if err := h.convo.ResetSession(h.baseCtx, userID(c)); err != nil {
		h.logger.Error("Failed to reset session", zap.String("user_id", userID(c)), zap.Error(err))
		return SendReply(c, agent.ErrorReply, false)
	}
	return c.Send("Done. I've forgotten our conversation; your records are untouched.")
}

// OnRateLimited tells a user they are sending too fast
func (h *Handlers) OnRateLimited(c tele.Context) error {
	return c.Send(rateLimitReply)
}

// OnRejected answers senders outside the allowlist
func (h *Handlers) OnRejected(c tele.Context) error {
	return c.Send(rejectReply)
}
