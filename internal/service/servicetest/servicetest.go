// Package servicetest provides deterministic model and repository stand-ins
// for tests that need a working service stack without network access.
package servicetest

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/sourpie/gitknow/internal/domain"
	"github.com/sourpie/gitknow/internal/port"
)

// Dimension is the vector size produced by HashEmbed.
const Dimension = 768

// HashEmbed is a deterministic bag-of-stems embedder: every word is cut to
// its first four letters and hashed into one of Dimension buckets. Texts
// sharing stems score a positive cosine similarity; others score zero.
func HashEmbed(text string) []float32 {
	vec := make([]float32, Dimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		if r := []rune(w); len(r) > 4 {
			w = string(r[:4])
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%Dimension]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}

// Provider is a port.AIProvider that embeds with HashEmbed and streams
// Answer word by word. Chat returns the Summaries entry whose key appears in
// the prompt, or Summary.
type Provider struct {
	Summaries map[string]string
	Summary   string
	Answer    string
}

func (p *Provider) ModelName() string { return "stub" }

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	return HashEmbed(text), nil
}

func (p *Provider) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	for key, summary := range p.Summaries {
		if strings.Contains(userPrompt, key) {
			return summary, nil
		}
	}
	if p.Summary == "" {
		return "a short summary", nil
	}
	return p.Summary, nil
}

func (p *Provider) ChatStream(ctx context.Context, systemPrompt, userPrompt string) (<-chan port.StreamChunk, error) {
	answer := p.Answer
	if answer == "" {
		answer = "hello world"
	}
	words := strings.SplitAfter(answer, " ")
	ch := make(chan port.StreamChunk, len(words))
	for _, w := range words {
		ch <- port.StreamChunk{Text: w}
	}
	close(ch)
	return ch, nil
}

// Host is a port.RepoHost serving a fixed file set and commit list.
type Host struct {
	mu      sync.Mutex
	Files   []domain.SourceFile
	Commits []domain.RemoteCommit
	LoadErr error

	lastLoad port.LoadOptions
}

func (h *Host) LoadRepository(ctx context.Context, opts port.LoadOptions) ([]domain.SourceFile, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastLoad = opts
	if h.LoadErr != nil {
		return nil, h.LoadErr
	}
	return append([]domain.SourceFile(nil), h.Files...), nil
}

func (h *Host) ListCommits(ctx context.Context, repoURL string) ([]domain.RemoteCommit, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.RemoteCommit(nil), h.Commits...), nil
}

// LastLoad returns the options of the most recent LoadRepository call.
func (h *Host) LastLoad() port.LoadOptions {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastLoad
}

// AddCommit makes a new commit visible to the next ListCommits.
func (h *Host) AddCommit(c domain.RemoteCommit) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Commits = append(h.Commits, c)
}

func (h *Host) Diff(ctx context.Context, repoURL, hash string) (string, error) {
	return "diff --git a/" + hash + " b/" + hash + "\n+change\n", nil
}

var (
	_ port.AIProvider = (*Provider)(nil)
	_ port.RepoHost   = (*Host)(nil)
)
