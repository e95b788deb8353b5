package vcs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitHistoryIsCachedPerURL(t *testing.T) {
	g := NewGitProvider("", nil)
	var clones atomic.Int32
	g.clone = func(ctx context.Context, url string) (*git.Repository, error) {
		clones.Add(1)
		return git.Init(memory.NewStorage(), nil)
	}

	first, err := g.history(context.Background(), "https://github.com/acme/a")
	require.NoError(t, err)
	again, err := g.history(context.Background(), "https://github.com/acme/a")
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.EqualValues(t, 1, clones.Load())

	_, err = g.history(context.Background(), "https://github.com/acme/b")
	require.NoError(t, err)
	assert.EqualValues(t, 2, clones.Load())
}

func TestGitHistorySlowRemoteDoesNotBlockOthers(t *testing.T) {
	g := NewGitProvider("", nil)
	release := make(chan struct{})
	started := make(chan struct{})
	g.clone = func(ctx context.Context, url string) (*git.Repository, error) {
		if url == "https://github.com/acme/slow" {
			close(started)
			<-release
		}
		return git.Init(memory.NewStorage(), nil)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = g.history(context.Background(), "https://github.com/acme/slow")
	}()
	<-started

	done := make(chan error, 1)
	go func() {
		_, err := g.history(context.Background(), "https://github.com/acme/fast")
		done <- err
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("fast remote waited for the slow clone")
	}

	close(release)
	wg.Wait()
}

func TestGitHistoryFailedCloneIsRetried(t *testing.T) {
	g := NewGitProvider("", nil)
	calls := 0
	g.clone = func(ctx context.Context, url string) (*git.Repository, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("unreachable")
		}
		return git.Init(memory.NewStorage(), nil)
	}

	_, err := g.history(context.Background(), "https://github.com/acme/a")
	require.Error(t, err)
	repo, err := g.history(context.Background(), "https://github.com/acme/a")
	require.NoError(t, err)
	assert.NotNil(t, repo)
	assert.Equal(t, 2, calls)
}
