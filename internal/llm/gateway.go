package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"video-transcript-go/internal/chunker"
	"video-transcript-go/internal/extractor"
	"video-transcript-go/internal/logger"
	"video-transcript-go/internal/types"
)

const (
	DefaultStructuredTimeout = 120 * time.Second
	DefaultReformatTimeout   = 180 * time.Second

	structuredTemperature = 0.3
	structuredMaxTokens   = 1500
	reformatTemperature   = 0.2
	reformatMaxTokens     = 3000

	paragraphSep = "\n\n"
)

type Options struct {
	ChunkSize         int
	StructuredTimeout time.Duration
	ReformatTimeout   time.Duration
}

// Gateway issues generation requests one at a time. Callers must not share a
// Gateway call across goroutines expecting parallelism; every method blocks
// until its request(s) finish.
type Gateway struct {
	backend Backend
	opts    Options
	log     *logger.Logger
}

func NewGateway(backend Backend, opts Options, log *logger.Logger) *Gateway {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = chunker.DefaultSize
	}
	if opts.StructuredTimeout <= 0 {
		opts.StructuredTimeout = DefaultStructuredTimeout
	}
	if opts.ReformatTimeout <= 0 {
		opts.ReformatTimeout = DefaultReformatTimeout
	}
	return &Gateway{backend: backend, opts: opts, log: log.Component("llm-gateway")}
}

// GenerateStructured asks for chapters and takeaways. Transport and status
// failures are returned; unparseable output becomes the fallback record.
func (g *Gateway) GenerateStructured(ctx context.Context, transcript string, segments []types.Segment, title string) (types.Structured, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.StructuredTimeout)
	defer cancel()

	prompt := extractor.BuildStructuredPrompt(title, transcript, segments)
	start := time.Now()
	raw, err := g.backend.Generate(ctx, Request{
		Prompt:      prompt,
		Temperature: structuredTemperature,
		MaxTokens:   structuredMaxTokens,
	})
	if err != nil {
		g.log.WithError(err).Warn("structured generation failed")
		return types.Structured{}, fmt.Errorf("structured generation: %w", err)
	}

	out := extractor.ExtractStructured(raw)
	g.log.WithField("duration_ms", time.Since(start).Milliseconds()).
		WithField("chapters", len(out.Chapters)).
		WithField("takeaways", len(out.Takeaways)).
		WithField("fallback", out.Fallback).
		Info("structured generation finished")
	return out, nil
}

// Reformat rewrites one chunk. Any failure, or a blank answer, returns chunk
// unchanged.
func (g *Gateway) Reformat(ctx context.Context, chunk string, index, total int) string {
	ctx, cancel := context.WithTimeout(ctx, g.opts.ReformatTimeout)
	defer cancel()

	out, err := g.backend.Generate(ctx, Request{
		Prompt:      extractor.BuildReformatPrompt(chunk, index, total),
		Temperature: reformatTemperature,
		MaxTokens:   reformatMaxTokens,
	})
	log := g.log.WithField("chunk", index+1).WithField("chunks", total)
	if err != nil {
		log.WithField("error", err.Error()).Warn("reformat failed, keeping original chunk")
		return chunk
	}
	if strings.TrimSpace(out) == "" {
		log.Warn("reformat returned nothing, keeping original chunk")
		return chunk
	}
	log.Debug("chunk reformatted")
	return out
}

// FormatTranscript splits text into chunks, reformats them sequentially in
// order and joins the results with a blank line.
func (g *Gateway) FormatTranscript(ctx context.Context, text string) string {
	chunks := chunker.Split(text, g.opts.ChunkSize)
	if len(chunks) == 0 {
		return ""
	}

	parts := make([]string, len(chunks))
	for _, c := range chunks {
		parts[c.Index] = g.Reformat(ctx, c.Text, c.Index, len(chunks))
	}
	return strings.Join(parts, paragraphSep)
}

func (g *Gateway) Healthy(ctx context.Context) bool {
	return g.backend.Healthy(ctx)
}
