package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"video-transcript-go/internal/logger"
	"video-transcript-go/internal/types"
)

const DefaultTimeout = 30 * time.Minute

type Config struct {
	// URL is the whisper.cpp server base, e.g. http://localhost:8080.
	URL      string
	Language string
	Timeout  time.Duration
	// Mock skips the server and returns a fixed transcript. Also enabled by
	// USE_MOCK_TRANSCRIBE=true.
	Mock bool
}

// Client uploads audio to a whisper.cpp server's /inference endpoint.
type Client struct {
	cfg    Config
	client *http.Client
	log    *logger.Logger
}

func New(cfg Config, log *logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Language == "" {
		cfg.Language = "auto"
	}
	if os.Getenv("USE_MOCK_TRANSCRIBE") == "true" {
		cfg.Mock = true
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{},
		log:    log.Component("transcription"),
	}
}

type inferenceSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type inferenceResponse struct {
	Text     string             `json:"text"`
	Language string             `json:"language"`
	Segments []inferenceSegment `json:"segments"`
	Error    string             `json:"error,omitempty"`
}

// Transcribe converts the audio file at audioPath to text with segment
// timestamps. Failures are returned as-is; nothing is retried.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (types.Transcription, error) {
	if c.cfg.Mock {
		return mockTranscription(), nil
	}
	if c.cfg.URL == "" {
		return types.Transcription{}, errors.New("TRANSCRIBE_URL not set")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, contentType, err := c.buildUpload(audioPath)
	if err != nil {
		return types.Transcription{}, err
	}

	endpoint := strings.TrimRight(c.cfg.URL, "/") + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return types.Transcription{}, err
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return types.Transcription{}, fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.Transcription{}, fmt.Errorf("read whisper response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return types.Transcription{}, fmt.Errorf("whisper error: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out inferenceResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return types.Transcription{}, fmt.Errorf("json decode error: %v body=%s", err, string(raw))
	}
	if out.Error != "" {
		return types.Transcription{}, fmt.Errorf("whisper error: %s", out.Error)
	}

	t := types.Transcription{
		Text:     strings.TrimSpace(out.Text),
		Language: out.Language,
		Segments: make([]types.Segment, 0, len(out.Segments)),
	}
	for _, s := range out.Segments {
		t.Segments = append(t.Segments, types.Segment{Start: s.Start, End: s.End, Text: strings.TrimSpace(s.Text)})
	}
	if t.Language == "" {
		t.Language = "en"
	}

	c.log.WithField("audio", filepath.Base(audioPath)).
		WithField("segments", len(t.Segments)).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("transcription finished")
	return t, nil
}

func (c *Client) buildUpload(audioPath string) (io.Reader, string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("read audio: %w", err)
	}
	_ = w.WriteField("response_format", "verbose_json")
	_ = w.WriteField("temperature", "0.0")
	if c.cfg.Language != "auto" {
		_ = w.WriteField("language", c.cfg.Language)
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &b, w.FormDataContentType(), nil
}

func mockTranscription() types.Transcription {
	segs := []types.Segment{
		{Start: 0, End: 4.2, Text: "MOCK TRANSCRIPT: welcome to the show."},
		{Start: 4.2, End: 9.8, Text: "Today we talk about building reliable pipelines."},
		{Start: 9.8, End: 15.1, Text: "Thanks for listening."},
	}
	texts := make([]string, len(segs))
	for i, s := range segs {
		texts[i] = s.Text
	}
	return types.Transcription{Text: strings.Join(texts, " "), Segments: segs, Language: "en"}
}
