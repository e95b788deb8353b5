package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourpie/gitknow/internal/adapter/store"
	"github.com/sourpie/gitknow/internal/domain"
)

func TestPollAllSkipsFailingProjects(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	good := newTestProject(t, s, "https://github.com/acme/demo")
	newTestProject(t, s, "") // no repository url, fails every round
	archived := newTestProject(t, s, "https://github.com/acme/old")
	require.NoError(t, s.ArchiveProject(ctx, archived.ID))

	now := time.Now()
	host := &fakeHost{commits: []domain.RemoteCommit{commitAt("a", 1, now), commitAt("b", 2, now)}}
	p := NewPoller(s, newTestIngestor(s, &fakeAI{}, host), time.Minute, nil)

	assert.Equal(t, 2, p.PollAll(ctx))
	assert.Equal(t, 1, host.listCall)
	assert.Zero(t, p.PollAll(ctx))

	stored, err := s.ListCommits(ctx, good.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	s := store.NewMemoryStore()
	p := NewPoller(s, newTestIngestor(s, &fakeAI{}, &fakeHost{}), 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestPollerDisabled(t *testing.T) {
	s := store.NewMemoryStore()
	p := NewPoller(s, newTestIngestor(s, &fakeAI{}, &fakeHost{}), 0, nil)
	p.Run(context.Background()) // returns immediately
}
