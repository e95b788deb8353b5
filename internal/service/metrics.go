package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sourpie/gitknow/internal/port"
)

var (
	filesIndexed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gitknow_files_indexed_total",
		Help: "Files processed by the ingestion pipeline, by outcome.",
	}, []string{"status"})

	commitsSummarized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gitknow_commits_summarized_total",
		Help: "Commits summarized while polling, by outcome.",
	}, []string{"status"})

	questionsAnswered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gitknow_questions_total",
		Help: "Questions answered, by retrieval path.",
	}, []string{"path"})

	modelCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gitknow_model_call_duration_seconds",
		Help:    "Latency of model calls.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"operation"})
)

// Outcome labels.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFailed   = "failed"

	pathDirect   = "direct"
	pathIndirect = "indirect"
)

// instrumentedProvider records call latency for every model operation.
type instrumentedProvider struct {
	port.AIProvider
}

// Instrument wraps a provider so its calls show up in gitknow_model_call_duration_seconds.
func Instrument(p port.AIProvider) port.AIProvider {
	if _, ok := p.(instrumentedProvider); ok {
		return p
	}
	return instrumentedProvider{AIProvider: p}
}

func observe(operation string, start time.Time) {
	modelCallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (p instrumentedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	defer observe("embed", time.Now())
	return p.AIProvider.Embed(ctx, text)
}

func (p instrumentedProvider) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	defer observe("chat", time.Now())
	return p.AIProvider.Chat(ctx, systemPrompt, userPrompt)
}

// ChatStream measures time to open the stream, not time to drain it.
func (p instrumentedProvider) ChatStream(ctx context.Context, systemPrompt, userPrompt string) (<-chan port.StreamChunk, error) {
	defer observe("chat_stream", time.Now())
	return p.AIProvider.ChatStream(ctx, systemPrompt, userPrompt)
}
