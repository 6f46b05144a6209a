package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"video-transcript-go/internal/chunker"
	"video-transcript-go/internal/logger"
	"video-transcript-go/internal/types"
)

// scriptedBackend answers each Generate call through fn and records prompts.
type scriptedBackend struct {
	mu       sync.Mutex
	prompts  []string
	inFlight int
	maxSeen  int
	fn       func(call int, req Request) (string, error)
}

func (s *scriptedBackend) Generate(ctx context.Context, req Request) (string, error) {
	s.mu.Lock()
	call := len(s.prompts)
	s.prompts = append(s.prompts, req.Prompt)
	s.inFlight++
	if s.inFlight > s.maxSeen {
		s.maxSeen = s.inFlight
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()
	return s.fn(call, req)
}

func (s *scriptedBackend) Healthy(context.Context) bool { return true }

var sectionRe = regexp.MustCompile(`(?s)Transcript section \d+/\d+:\n(.*)\n\nFormatted output`)

// chunkFromPrompt recovers the chunk text embedded in a reformat prompt.
func chunkFromPrompt(prompt string) string {
	m := sectionRe.FindStringSubmatch(prompt)
	if m == nil {
		return ""
	}
	return m[1]
}

func newTestGateway(b Backend, chunkSize int) *Gateway {
	return NewGateway(b, Options{ChunkSize: chunkSize}, logger.NewNop())
}

func TestFormatTranscriptReformatResilience(t *testing.T) {
	text := "alpha one two three. beta four five six. gamma seven nine."
	chunks := chunker.Split(text, 22)
	if len(chunks) != 3 {
		t.Fatalf("test setup: %d chunks, want 3: %+v", len(chunks), chunks)
	}

	b := &scriptedBackend{fn: func(call int, req Request) (string, error) {
		if call == 1 {
			return "", &StatusError{Backend: "ollama", Code: 500, Body: "boom"}
		}
		return "FORMATTED " + chunkFromPrompt(req.Prompt), nil
	}}

	got := newTestGateway(b, 22).FormatTranscript(context.Background(), text)
	want := strings.Join([]string{
		"FORMATTED " + chunks[0].Text,
		chunks[1].Text,
		"FORMATTED " + chunks[2].Text,
	}, "\n\n")
	if got != want {
		t.Fatalf("FormatTranscript() =\n%q\nwant\n%q", got, want)
	}
	if len(b.prompts) != 3 {
		t.Fatalf("calls = %d, want 3 (failure must not abort remaining chunks)", len(b.prompts))
	}
}

func TestFormatTranscriptSequentialInOrder(t *testing.T) {
	text := strings.Repeat("word ", 200)
	b := &scriptedBackend{fn: func(call int, req Request) (string, error) {
		time.Sleep(time.Millisecond)
		return chunkFromPrompt(req.Prompt), nil
	}}

	g := newTestGateway(b, 50)
	got := g.FormatTranscript(context.Background(), text)

	if b.maxSeen != 1 {
		t.Fatalf("max concurrent requests = %d, want 1", b.maxSeen)
	}
	chunks := chunker.Split(text, 50)
	if len(b.prompts) != len(chunks) {
		t.Fatalf("calls = %d, want %d", len(b.prompts), len(chunks))
	}
	for i, p := range b.prompts {
		if !strings.Contains(p, fmt.Sprintf("Transcript section %d/%d:", i+1, len(chunks))) {
			t.Fatalf("prompt %d out of order:\n%s", i, p)
		}
	}
	if strings.Join(strings.Fields(got), " ") != strings.Join(strings.Fields(text), " ") {
		t.Fatal("echo backend should reproduce the token sequence")
	}
}

func TestFormatTranscriptEmpty(t *testing.T) {
	b := &scriptedBackend{fn: func(int, Request) (string, error) { return "x", nil }}
	if got := newTestGateway(b, 10).FormatTranscript(context.Background(), "   "); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
	if len(b.prompts) != 0 {
		t.Fatal("no requests expected for empty input")
	}
}

func TestReformatBlankAnswerKeepsChunk(t *testing.T) {
	b := &scriptedBackend{fn: func(int, Request) (string, error) { return "  \n", nil }}
	if got := newTestGateway(b, 10).Reformat(context.Background(), "keep me", 0, 1); got != "keep me" {
		t.Fatalf("got %q", got)
	}
}

func TestReformatUsesReformatOptions(t *testing.T) {
	var seen Request
	b := &scriptedBackend{fn: func(_ int, req Request) (string, error) {
		seen = req
		return "ok", nil
	}}
	newTestGateway(b, 10).Reformat(context.Background(), "c", 0, 1)
	if seen.Temperature != reformatTemperature || seen.MaxTokens != reformatMaxTokens {
		t.Fatalf("request options = %+v", seen)
	}
}

func TestGenerateStructuredParses(t *testing.T) {
	b := &scriptedBackend{fn: func(_ int, req Request) (string, error) {
		if req.Temperature != structuredTemperature || req.MaxTokens != structuredMaxTokens {
			t.Errorf("request options = %+v", req)
		}
		return `Here: {"chapters":[{"timestamp":"00:00","title":"Intro"}],"takeaways":["A"]}`, nil
	}}

	got, err := newTestGateway(b, 10).GenerateStructured(context.Background(), "t", []types.Segment{{Start: 0, Text: "hi"}}, "Title")
	if err != nil {
		t.Fatalf("GenerateStructured() error = %v", err)
	}
	if got.Fallback || len(got.Chapters) != 1 || got.Chapters[0].Title != "Intro" || got.Takeaways[0] != "A" {
		t.Fatalf("got %+v", got)
	}
}

func TestGenerateStructuredFallbackIsNotAnError(t *testing.T) {
	b := &scriptedBackend{fn: func(int, Request) (string, error) { return "no json here", nil }}
	got, err := newTestGateway(b, 10).GenerateStructured(context.Background(), "t", nil, "Title")
	if err != nil {
		t.Fatalf("GenerateStructured() error = %v", err)
	}
	if !got.Fallback || got.RawResponse != "no json here" {
		t.Fatalf("got %+v", got)
	}
}

func TestGenerateStructuredPropagatesFailure(t *testing.T) {
	wantErr := &StatusError{Backend: "ollama", Code: 503, Body: "loading"}
	b := &scriptedBackend{fn: func(int, Request) (string, error) { return "", wantErr }}

	_, err := newTestGateway(b, 10).GenerateStructured(context.Background(), "t", nil, "Title")
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want wrapped %v", err, wantErr)
	}
}

func TestGenerateStructuredTimeout(t *testing.T) {
	g := NewGateway(blockingBackend{}, Options{StructuredTimeout: 20 * time.Millisecond}, logger.NewNop())

	_, err := g.GenerateStructured(context.Background(), "t", nil, "Title")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
}

// blockingBackend waits for the context to end.
type blockingBackend struct{}

func (blockingBackend) Generate(ctx context.Context, _ Request) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (blockingBackend) Healthy(context.Context) bool { return false }

func TestWaitUntilHealthy(t *testing.T) {
	calls := 0
	b := &flakyHealth{ready: 3, calls: &calls}
	if !WaitUntilHealthy(context.Background(), b, 5*time.Second, logger.NewNop()) {
		t.Fatal("expected backend to become healthy")
	}
	if calls != 3 {
		t.Fatalf("probes = %d, want 3", calls)
	}
}

func TestWaitUntilHealthyGivesUp(t *testing.T) {
	if WaitUntilHealthy(context.Background(), blockingBackend{}, 300*time.Millisecond, logger.NewNop()) {
		t.Fatal("expected unhealthy result")
	}
}

type flakyHealth struct {
	ready int
	calls *int
}

func (f *flakyHealth) Generate(context.Context, Request) (string, error) { return "", nil }

func (f *flakyHealth) Healthy(context.Context) bool {
	*f.calls++
	return *f.calls >= f.ready
}
