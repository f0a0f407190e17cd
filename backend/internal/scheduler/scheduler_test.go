package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPruner struct {
	mu         sync.Mutex
	retentions []time.Duration
	caps       []int
	pruneErr   error
}

func (m *mockPruner) Prune(ctx context.Context, retention time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retentions = append(m.retentions, retention)
	return 2, m.pruneErr
}

func (m *mockPruner) EnforceCap(ctx context.Context, max int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caps = append(m.caps, max)
	return 1, nil
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New(&mockPruner{}, Options{Schedule: "not a schedule"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a schedule")
}

func TestNew_AcceptsDescriptorsAndSeconds(t *testing.T) {
	for _, schedule := range []string{"@daily", "@every 1h", "0 30 3 * * *", "15 4 * * *"} {
		_, err := New(&mockPruner{}, Options{Schedule: schedule})
		assert.NoError(t, err, schedule)
	}
}

func TestRunOnce(t *testing.T) {
	p := &mockPruner{}
	s, err := New(p, Options{Retention: 30 * 24 * time.Hour, MaxSessions: 100})
	require.NoError(t, err)

	s.RunOnce(context.Background())

	assert.Equal(t, []time.Duration{30 * 24 * time.Hour}, p.retentions)
	assert.Equal(t, []int{100}, p.caps)
}

func TestRunOnce_PruneFailureStillEnforcesCap(t *testing.T) {
	p := &mockPruner{pruneErr: errors.New("disk full")}
	s, err := New(p, Options{Retention: time.Hour, MaxSessions: 10})
	require.NoError(t, err)

	s.RunOnce(context.Background())

	assert.Equal(t, []int{10}, p.caps)
}

func TestRunOnce_DisabledLimits(t *testing.T) {
	p := &mockPruner{}
	s, err := New(p, Options{})
	require.NoError(t, err)

	s.RunOnce(context.Background())

	assert.Empty(t, p.retentions)
	assert.Empty(t, p.caps)
}

func TestRun_PrunesAtStartupAndStops(t *testing.T) {
	p := &mockPruner{}
	s, err := New(p, Options{Retention: time.Hour, MaxSessions: 5})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return len(p.caps) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
