package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourpie/gitknow/internal/adapter/store"
	"github.com/sourpie/gitknow/internal/adapter/vcs"
	"github.com/sourpie/gitknow/pkg/config"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("AI_PROVIDER", "ollama")
	t.Setenv("REPO_SOURCE", "github")
	cfg := config.Load()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNewWiresMemoryBackend(t *testing.T) {
	cfg := memoryConfig(t)

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &store.MemoryStore{}, a.Store)
	assert.IsType(t, &vcs.GitHubProvider{}, a.Host)
	assert.NotNil(t, a.Projects)
	assert.NotNil(t, a.Poller)
	assert.Equal(t, cfg.OllamaChatModel, a.AI.ModelName())
}

func TestNewSelectsGitHost(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.RepoSource = "git"

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	assert.IsType(t, &vcs.GitProvider{}, a.Host)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.AIProvider = "unknown"

	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestJWTConfig(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.JWTExpiration = 2

	jc := JWTConfig(cfg)
	assert.Equal(t, cfg.JWTSecret, jc.Secret)
	assert.Equal(t, "2h0m0s", jc.ExpiresIn.String())
}
