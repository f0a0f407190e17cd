package telegram

import (
	"context"
	"errors"
	"sync"

	tele "gopkg.in/telebot.v4"

	"bizgraph-bot/backend/internal/agent"
	"bizgraph-bot/backend/internal/graph"
)

// sentMessage records one Send call
type sentMessage struct {
	what interface{}
	opts []interface{}
}

// fakeContext implements the parts of tele.Context the handlers use.
// Calling anything else panics on the nil embedded interface.
type fakeContext struct {
	tele.Context

	sender  *tele.User
	chat    *tele.Chat
	message *tele.Message
	text    string

	htmlErr error
	sendErr error

	mu       sync.Mutex
	sent     []sentMessage
	notified []tele.ChatAction
}

func newFakeContext(userID int64, text string) *fakeContext {
	return &fakeContext{
		sender:  &tele.User{ID: userID, FirstName: "Asha"},
		chat:    &tele.Chat{ID: userID},
		message: &tele.Message{Text: text, Unixtime: 1710460800},
		text:    text,
	}
}

func (f *fakeContext) Sender() *tele.User { return f.sender }
func (f *fakeContext) Chat() *tele.Chat { return f.chat }
func (f *fakeContext) Message() *tele.Message { return f.message }
func (f *fakeContext) Text() string { return f.text }
func (f *fakeContext) Update() tele.Update { return tele.Update{Message: f.message} }

func (f *fakeContext) Notify(action tele.ChatAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, action)
	return nil
}

func (f *fakeContext) Send(what interface{}, opts ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{what: what, opts: opts})
	for _, o := range opts {
		if o == tele.ModeHTML && f.htmlErr != nil {
			return f.htmlErr
		}
	}
	return f.sendErr
}

func (f *fakeContext) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if s, ok := m.what.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

type mockConversation struct {
	reply    *agent.Reply
	err      error
	requests []agent.Request
	resets   []string
	resetErr error
}

func (m *mockConversation) HandleMessage(ctx context.Context, req agent.Request) (*agent.Reply, error) {
	m.requests = append(m.requests, req)
	return m.reply, m.err
}

func (m *mockConversation) ResetSession(ctx context.Context, userID string) error {
	m.resets = append(m.resets, userID)
	return m.resetErr
}

type mockCatalog struct {
	products     []graph.Product
	transactions []graph.Transaction
	err          error
	filters      []graph.TransactionFilter
}

func (m *mockCatalog) ListProducts(ctx context.Context) ([]graph.Product, error) {
	return m.products, m.err
}

func (m *mockCatalog) ListTransactions(ctx context.Context, filter graph.TransactionFilter) ([]graph.Transaction, error) {
	m.filters = append(m.filters, filter)
	return m.transactions, m.err
}

type rejectingPool struct{}

func (rejectingPool) Submit(task func()) error { return errors.New("pool overload") }
