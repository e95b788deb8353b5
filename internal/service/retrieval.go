package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sourpie/gitknow/internal/domain"
	"github.com/sourpie/gitknow/internal/port"
)

// IndirectPrefix marks a context assembled without any similarity match.
const IndirectPrefix = "INDIRECT CONTEXT: \n\n"

// AnswerFailedFragment is the single fragment emitted when generation fails.
const AnswerFailedFragment = "Failed to answer question!"

const answerSystemPrompt = `You are an AI code assistant who answers questions about the codebase. Your target audience is a technical intern.
The AI assistant is a brand new, powerful, human-like artificial intelligence.
The traits of AI include expert knowledge, helpfulness, cleverness, and articulateness.
AI is a well-behaved and well-mannered individual.
AI is always friendly, kind, and inspiring, and is eager to provide vivid and thoughtful responses to the user.
AI has the sum of all knowledge in their brain, and is able to accurately answer nearly any question about any topic in the codebase.
If the question is asking about code or a specific file, AI will provide the detailed answer, giving step by step instructions.

If the context begins with "INDIRECT CONTEXT", no file matched the question directly. In that case start your answer with:
"I was unable to find information directly relevant to your question in the available code. However, based on the codebase I can see, here's what I can tell you:"
and then answer as well as the provided code allows.

AI assistant will take into account any CONTEXT BLOCK that is provided in a conversation.
AI assistant will not apologize for previous responses, but instead will indicate new information was gained.
AI assistant will not invent anything that is not drawn directly from the context.
Answer in markdown syntax, with code snippets if needed. Be as detailed as possible when answering, and make sure there is no ambiguity.
Do not repeat code that is identical to the code in the context; refer to the file instead.`

// RetrievalOptions tunes similarity search and the fallback context.
type RetrievalOptions struct {
	Threshold   float64
	MatchLimit  int
	TokenBudget int
	Logger      *slog.Logger
}

// Answer is a streamed answer together with the files that ground it.
// FileReferences is known before the first fragment arrives.
type Answer struct {
	Fragments      <-chan string
	FileReferences []domain.FileReference
	Indirect       bool
}

// Retriever answers questions about an indexed project.
type Retriever struct {
	store port.EmbeddingStore
	ai    port.AIProvider
	opts  RetrievalOptions
	log   *slog.Logger
}

// NewRetriever creates a retriever. Zero MatchLimit or TokenBudget pick the defaults.
func NewRetriever(store port.EmbeddingStore, ai port.AIProvider, opts RetrievalOptions) *Retriever {
	if opts.MatchLimit <= 0 {
		opts.MatchLimit = 10
	}
	if opts.TokenBudget <= 0 {
		opts.TokenBudget = 900000
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Retriever{store: store, ai: ai, opts: opts, log: opts.Logger}
}

// AnswerQuestion finds the files most similar to the question and streams an
// answer grounded on them. When nothing is similar enough it falls back to as
// much of the whole project as fits in the token budget.
//
// Errors are returned only for failures before streaming starts. Generation
// failures surface as a single AnswerFailedFragment on the channel.
func (r *Retriever) AnswerQuestion(ctx context.Context, projectID, question string) (*Answer, error) {
	vector, err := r.ai.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	matches, err := r.store.SearchSimilar(ctx, projectID, vector, r.opts.Threshold, r.opts.MatchLimit)
	if err != nil {
		return nil, fmt.Errorf("search similar: %w", err)
	}

	answer := &Answer{FileReferences: []domain.FileReference{}}
	var contextBlock string
	if len(matches) == 0 {
		files, err := r.store.ListFileEmbeddings(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("load project files: %w", err)
		}
		entries := make([]string, len(files))
		for idx, f := range files {
			entries[idx] = formatEntry(f)
		}
		kept := fitToBudget(entries, r.opts.TokenBudget)
		contextBlock = IndirectPrefix + strings.Join(kept, "")
		answer.Indirect = true
		questionsAnswered.WithLabelValues(pathIndirect).Inc()
		r.log.Info("no similar files, using indirect context", "project_id", projectID,
			"files", len(files), "kept", len(kept))
	} else {
		var b strings.Builder
		for _, m := range matches {
			b.WriteString(formatEntry(m.FileEmbedding))
			answer.FileReferences = append(answer.FileReferences, m.Reference())
		}
		contextBlock = b.String()
		questionsAnswered.WithLabelValues(pathDirect).Inc()
		r.log.Info("answering from similar files", "project_id", projectID, "matches", len(matches))
	}

	answer.Fragments = r.stream(ctx, userPrompt(contextBlock, question))
	return answer, nil
}

func (r *Retriever) stream(ctx context.Context, prompt string) <-chan string {
	out := make(chan string, 64)
	go func() {
		defer close(out)

		send := func(s string) bool {
			select {
			case out <- s:
				return true
			case <-ctx.Done():
				return false
			}
		}

		chunks, err := r.ai.ChatStream(ctx, answerSystemPrompt, prompt)
		if err != nil {
			r.log.Error("answer stream failed to start", "error", err)
			send(AnswerFailedFragment)
			return
		}
		for {
			var chunk port.StreamChunk
			var ok bool
			select {
			case <-ctx.Done():
				return
			case chunk, ok = <-chunks:
			}
			if !ok {
				return
			}
			if chunk.Err != nil {
				r.log.Error("answer stream failed", "error", chunk.Err)
				send(AnswerFailedFragment)
				return
			}
			if chunk.Text == "" {
				continue
			}
			if !send(chunk.Text) {
				return
			}
		}
	}()
	return out
}

func formatEntry(f domain.FileEmbedding) string {
	return fmt.Sprintf("source: %s \n Code content: %s \n summary of file: %s \n", f.FileName, f.SourceCode, f.Summary)
}

func userPrompt(contextBlock, question string) string {
	return "START CONTEXT BLOCK\n" + contextBlock + "\nEND OF CONTEXT BLOCK\n\n" +
		"START QUESTION\n" + question + "\nEND OF QUESTION\n"
}

// estimateTokens approximates four characters per token, rounding up.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// fitToBudget keeps entries in order while their estimated total stays within
// budget. It stops at the first entry that does not fit.
func fitToBudget(entries []string, budget int) []string {
	kept := make([]string, 0, len(entries))
	total := 0
	for _, e := range entries {
		cost := estimateTokens(e)
		if total+cost > budget {
			break
		}
		total += cost
		kept = append(kept, e)
	}
	return kept
}
