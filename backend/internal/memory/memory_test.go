package memory

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	bs, err := NewBoltStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bs.Close() })

	return map[string]Store{
		"inmemory": NewInMemoryStore(),
		"bolt":     bs,
	}
}

func TestStore_HistoryIsChronological(t *testing.T) {
	ctx := context.Background()
	base := time.Now()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 5; i++ {
				require.NoError(t, s.Append(ctx, "42", Turn{
					Role:      RoleUser,
					Content:   string(rune('a' + i)),
					Timestamp: base.Add(time.Duration(i) * time.Second),
				}))
			}

			turns, err := s.History(ctx, "42", 3)
			require.NoError(t, err)
			require.Len(t, turns, 3)
			assert.Equal(t, "c", turns[0].Content)
			assert.Equal(t, "e", turns[2].Content)

			empty, err := s.History(ctx, "unknown", 3)
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestStore_SameTimestampKeepsInsertOrder(t *testing.T) {
	ctx := context.Background()
	ts := time.Now()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Append(ctx, "7",
				Turn{Role: RoleUser, Content: "first", Timestamp: ts},
				Turn{Role: RoleAssistant, Content: "second", Timestamp: ts},
			))
			turns, err := s.History(ctx, "7", 0)
			require.NoError(t, err)
			require.Len(t, turns, 2)
			assert.Equal(t, "first", turns[0].Content)
			assert.Equal(t, "second", turns[1].Content)
		})
	}
}

func TestStore_PruneAndSessions(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Append(ctx, "old", Turn{Role: RoleUser, Content: "x", Timestamp: now.Add(-40 * 24 * time.Hour)}))
			require.NoError(t, s.Append(ctx, "mixed",
				Turn{Role: RoleUser, Content: "stale", Timestamp: now.Add(-31 * 24 * time.Hour)},
				Turn{Role: RoleUser, Content: "fresh", Timestamp: now},
			))

			removed, err := s.Prune(ctx, now.Add(-30*24*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, 2, removed)

			infos, err := s.Sessions(ctx)
			require.NoError(t, err)
			require.Len(t, infos, 1)
			assert.Equal(t, "mixed", infos[0].UserID)
			assert.Equal(t, 1, infos[0].Turns)
		})
	}
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Append(ctx, "1", Turn{Role: RoleUser, Content: "hi"}))
			require.NoError(t, s.Clear(ctx, "1"))
			require.NoError(t, s.Clear(ctx, "1"))

			turns, err := s.History(ctx, "1", 10)
			require.NoError(t, err)
			assert.Empty(t, turns)
		})
	}
}

func TestSessions_ContextAndHistory(t *testing.T) {
	ctx := context.Background()
	s := NewSessions(NewInMemoryStore(), 10, 5)

	require.NoError(t, s.Record(ctx, "42", "Add product ortho kit price 500", "Product 'ortho kit' added with price 500.", "add_product"))
	s.UpdateBusiness("42", BusinessContext{LastProduct: "ortho kit"})
	s.UpdateBusiness("42", BusinessContext{LastVendor: "sajan"})

	history, err := s.History(ctx, "42")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, RoleUser, history[0].Role)
	assert.Equal(t, RoleAssistant, history[1].Role)

	summary := s.Context(ctx, "42")
	assert.Contains(t, summary, "User: Add product ortho kit price 500")
	assert.Contains(t, summary, "Assistant: Product 'ortho kit' added")
	assert.Contains(t, summary, "last product: ortho kit")
	assert.Contains(t, summary, "last vendor: sajan")

	assert.Empty(t, s.Context(ctx, "nobody"))
}

func TestSessions_ContextTruncatesLongTurns(t *testing.T) {
	ctx := context.Background()
	s := NewSessions(NewInMemoryStore(), 10, 5)
	require.NoError(t, s.Record(ctx, "1", strings.Repeat("x", 1000), "ok", "chat"))

	summary := s.Context(ctx, "1")
	assert.Contains(t, summary, strings.Repeat("x", maxContextChars)+"...")
	assert.NotContains(t, summary, strings.Repeat("x", maxContextChars+1))
}

func TestSessions_EnforceCap(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	s := NewSessions(store, 10, 5)
	base := time.Now()

	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, store.Append(ctx, id, Turn{Role: RoleUser, Content: id, Timestamp: base.Add(time.Duration(i) * time.Minute)}))
	}

	dropped, err := s.EnforceCap(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)

	infos, err := store.Sessions(ctx)
	require.NoError(t, err)
	ids := []string{}
	for _, info := range infos {
		ids = append(ids, info.UserID)
	}
	assert.ElementsMatch(t, []string{"c", "d"}, ids)

	dropped, err = s.EnforceCap(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, dropped)
}

func TestSessions_Reset(t *testing.T) {
	ctx := context.Background()
	s := NewSessions(NewInMemoryStore(), 10, 5)
	require.NoError(t, s.Record(ctx, "1", "hi", "hello", "chat"))
	s.UpdateBusiness("1", BusinessContext{LastProduct: "bracket"})

	require.NoError(t, s.Reset(ctx, "1"))
	assert.Empty(t, s.Context(ctx, "1"))
	assert.Equal(t, BusinessContext{}, s.Business("1"))
}

func TestSessions_Restore(t *testing.T) {
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	logged := make([]Turn, 0, 12)
	for i := 0; i < 6; i++ {
		logged = append(logged,
			Turn{Role: RoleUser, Content: "q", Timestamp: base.Add(time.Duration(2*i) * time.Second)},
			Turn{Role: RoleAssistant, Content: "a", Timestamp: base.Add(time.Duration(2*i+1) * time.Second)},
		)
	}

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := NewSessions(store, 10, 5)

			n, err := s.Restore(ctx, "1", logged)
			require.NoError(t, err)
			assert.Equal(t, 10, n)

			history, err := s.History(ctx, "1")
			require.NoError(t, err)
			assert.Len(t, history, 10)

			// A session with history is left alone
			n, err = s.Restore(ctx, "1", logged)
			require.NoError(t, err)
			assert.Zero(t, n)

			n, err = s.Restore(ctx, "2", nil)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}
