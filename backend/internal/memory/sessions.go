package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"bizgraph-bot/backend/internal/adapter"
	"bizgraph-bot/backend/pkg/logger"
)

const maxContextChars = 300

// BusinessContext remembers the entities a user last worked with, so follow-ups
// like "sold 2 more of those" can be resolved.
type BusinessContext struct {
	LastProduct         string
	LastVendor          string
	LastCustomer        string
	LastTransactionType string
	UpdatedAt           time.Time
}

func (b BusinessContext) empty() bool {
	return b.LastProduct == "" && b.LastVendor == "" && b.LastCustomer == "" && b.LastTransactionType == ""
}

// Sessions wraps a Store with the per-user conversation policies: history
// window, context summary, session cap and retention.
type Sessions struct {
	store        Store
	historyLimit int
	contextTurns int
	logger       *zap.Logger

	mu       sync.RWMutex
	business map[string]BusinessContext
}

// NewSessions creates a session manager over store
func NewSessions(store Store, historyLimit, contextTurns int) *Sessions {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	if contextTurns <= 0 {
		contextTurns = 5
	}
	return &Sessions{
		store:        store,
		historyLimit: historyLimit,
		contextTurns: contextTurns,
		logger:       logger.Get(),
		business:     make(map[string]BusinessContext),
	}
}

// Record stores one exchange
func (s *Sessions) Record(ctx context.Context, userID, userMsg, reply, intent string) error {
	now := time.Now()
	return s.store.Append(ctx, userID,
		Turn{Role: RoleUser, Content: userMsg, Intent: intent, Timestamp: now},
		Turn{Role: RoleAssistant, Content: reply, Intent: intent, Timestamp: now.Add(time.Nanosecond)},
	)
}

// History returns the recent turns as LLM chat messages
func (s *Sessions) History(ctx context.Context, userID string) ([]adapter.ChatMessage, error) {
	turns, err := s.store.History(ctx, userID, s.historyLimit)
	if err != nil {
		return nil, err
	}
	out := make([]adapter.ChatMessage, 0, len(turns))
	for _, t := range turns {
		out = append(out, adapter.ChatMessage{Role: t.Role, Content: t.Content})
	}
	return out, nil
}

// Context renders the last few turns plus the business context as prompt text.
// Store failures degrade to an empty context.
func (s *Sessions) Context(ctx context.Context, userID string) string {
	turns, err := s.store.History(ctx, userID, s.contextTurns*2)
	if err != nil {
		s.logger.Warn("Failed to load session context", zap.String("user_id", userID), zap.Error(err))
		turns = nil
	}

	var sb strings.Builder
	if len(turns) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, t := range turns {
			speaker := "User"
			if t.Role == RoleAssistant {
				speaker = "Assistant"
			}
			fmt.Fprintf(&sb, "%s: %s\n", speaker, truncate(t.Content, maxContextChars))
		}
	}

	if b := s.Business(userID); !b.empty() {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("Business context:\n")
		if b.LastProduct != "" {
			fmt.Fprintf(&sb, "- last product: %s\n", b.LastProduct)
		}
		if b.LastVendor != "" {
			fmt.Fprintf(&sb, "- last vendor: %s\n", b.LastVendor)
		}
		if b.LastCustomer != "" {
			fmt.Fprintf(&sb, "- last customer: %s\n", b.LastCustomer)
		}
		if b.LastTransactionType != "" {
			fmt.Fprintf(&sb, "- last transaction type: %s\n", b.LastTransactionType)
		}
	}
	return strings.TrimSpace(sb.String())
}

// Business returns the user's business context
func (s *Sessions) Business(userID string) BusinessContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.business[userID]
}

// UpdateBusiness merges non-empty fields of update into the user's business context
func (s *Sessions) UpdateBusiness(userID string, update BusinessContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.business[userID]
	if update.LastProduct != "" {
		cur.LastProduct = update.LastProduct
	}
	if update.LastVendor != "" {
		cur.LastVendor = update.LastVendor
	}
	if update.LastCustomer != "" {
		cur.LastCustomer = update.LastCustomer
	}
	if update.LastTransactionType != "" {
		cur.LastTransactionType = update.LastTransactionType
	}
	cur.UpdatedAt = time.Now()
	s.business[userID] = cur
}

// Restore seeds an empty session with turns from another source, such as the
// graph conversation log after a restart. It is a no-op when the user already
// has history.
func (s *Sessions) Restore(ctx context.Context, userID string, turns []Turn) (int, error) {
	if len(turns) == 0 {
		return 0, nil
	}
	existing, err := s.store.History(ctx, userID, 1)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	turns = tail(turns, s.historyLimit)
	if err := s.store.Append(ctx, userID, turns...); err != nil {
		return 0, err
	}
	return len(turns), nil
}

// Reset clears a user's session and business context
func (s *Sessions) Reset(ctx context.Context, userID string) error {
	s.mu.Lock()
	delete(s.business, userID)
	s.mu.Unlock()
	return s.store.Clear(ctx, userID)
}

// EnforceCap drops the least recently active sessions beyond max.
// max <= 0 disables the cap.
func (s *Sessions) EnforceCap(ctx context.Context, max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}
	infos, err := s.store.Sessions(ctx)
	if err != nil {
		return 0, err
	}
	if len(infos) <= max {
		return 0, nil
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].LastActive.Before(infos[j].LastActive)
	})

	dropped := 0
	for _, info := range infos[:len(infos)-max] {
		if err := s.Reset(ctx, info.UserID); err != nil {
			return dropped, err
		}
		dropped++
	}
	s.logger.Info("Session cap enforced", zap.Int("dropped", dropped), zap.Int("max", max))
	return dropped, nil
}

// Prune removes turns older than retention
func (s *Sessions) Prune(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}
	removed, err := s.store.Prune(ctx, time.Now().Add(-retention))
	if err != nil {
		return removed, err
	}

	cutoff := time.Now().Add(-retention)
	s.mu.Lock()
	for id, b := range s.business {
		if b.UpdatedAt.Before(cutoff) {
			delete(s.business, id)
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Info("Pruned old session turns", zap.Int("removed", removed), zap.Duration("retention", retention))
	}
	return removed, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
