package service

import (
	"context"
	"errors"
	"sync"

	"github.com/sourpie/gitknow/internal/adapter/vcs"
	"github.com/sourpie/gitknow/internal/domain"
	"github.com/sourpie/gitknow/internal/port"
	"github.com/sourpie/gitknow/internal/service/servicetest"
)

const testDim = servicetest.Dimension

func hashEmbed(text string) []float32 { return servicetest.HashEmbed(text) }

// fakeAI is a scriptable port.AIProvider.
type fakeAI struct {
	mu sync.Mutex

	chat   func(system, user string) (string, error)
	embed  func(text string) ([]float32, error)
	stream func(system, user string) (<-chan port.StreamChunk, error)

	prompts []string // user prompts seen by ChatStream
}

func (f *fakeAI) ModelName() string { return "fake" }

func (f *fakeAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.embed != nil {
		return f.embed(text)
	}
	return hashEmbed(text), nil
}

func (f *fakeAI) Chat(ctx context.Context, system, user string) (string, error) {
	if f.chat != nil {
		return f.chat(system, user)
	}
	return "a short summary", nil
}

func (f *fakeAI) ChatStream(ctx context.Context, system, user string) (<-chan port.StreamChunk, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, user)
	f.mu.Unlock()
	if f.stream != nil {
		return f.stream(system, user)
	}
	return chunks("hello", " world"), nil
}

func (f *fakeAI) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

func chunks(parts ...string) <-chan port.StreamChunk {
	ch := make(chan port.StreamChunk, len(parts))
	for _, p := range parts {
		ch <- port.StreamChunk{Text: p}
	}
	close(ch)
	return ch
}

// fakeHost serves a fixed file set and commit list. It applies ignore
// globs the way the real hosts do.
type fakeHost struct {
	mu sync.Mutex

	files   []domain.SourceFile
	loadErr error

	commits  []domain.RemoteCommit
	listErr  error
	diffErr  map[string]error
	listCall int
	loadOpts port.LoadOptions
}

func (h *fakeHost) LoadRepository(ctx context.Context, opts port.LoadOptions) ([]domain.SourceFile, error) {
	h.mu.Lock()
	h.loadOpts = opts
	h.mu.Unlock()
	if h.loadErr != nil {
		return nil, h.loadErr
	}
	ignore := vcs.NewIgnoreMatcher(opts.Ignore)
	var out []domain.SourceFile
	for _, f := range h.files {
		if !ignore.Match(f.Path) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (h *fakeHost) ListCommits(ctx context.Context, repoURL string) ([]domain.RemoteCommit, error) {
	h.mu.Lock()
	h.listCall++
	h.mu.Unlock()
	if h.listErr != nil {
		return nil, h.listErr
	}
	return append([]domain.RemoteCommit(nil), h.commits...), nil
}

func (h *fakeHost) Diff(ctx context.Context, repoURL, hash string) (string, error) {
	if err, ok := h.diffErr[hash]; ok {
		return "", err
	}
	return "diff --git a/" + hash + " b/" + hash + "\n+change\n", nil
}

var errBoom = errors.New("boom")
