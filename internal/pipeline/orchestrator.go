package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"video-transcript-go/internal/jobs"
	"video-transcript-go/internal/logger"
	"video-transcript-go/internal/types"
	"video-transcript-go/internal/worker"
)

var ErrEmptyURL = errors.New("url is required")

// msgNotStarted is the error message for jobs the pool never started.
const msgNotStarted = "shutting down: job was not started"

// Downloader fetches the audio behind a media URL.
type Downloader interface {
	Extract(ctx context.Context, url string) (types.MediaInfo, error)
}

// Transcriber turns an audio file into timestamped text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (types.Transcription, error)
}

// Generator is the LLM side of the pipeline.
type Generator interface {
	GenerateStructured(ctx context.Context, transcript string, segments []types.Segment, title string) (types.Structured, error)
	FormatTranscript(ctx context.Context, text string) string
}

type Options struct {
	// ThumbnailDir receives <jobID>_thumb.<ext> copies for finished jobs.
	// Empty disables thumbnail retention.
	ThumbnailDir string
}

// Orchestrator drives a job from URL to finished transcript and publishes
// every stage to the job store.
type Orchestrator struct {
	store       jobs.Store
	downloader  Downloader
	transcriber Transcriber
	gen         Generator
	pool        *worker.Pool
	opts        Options
	log         *logger.Logger
}

func New(store jobs.Store, d Downloader, t Transcriber, g Generator, pool *worker.Pool, opts Options, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		store:       store,
		downloader:  d,
		transcriber: t,
		gen:         g,
		pool:        pool,
		opts:        opts,
		log:         log.Component("pipeline"),
	}
}

// Submit registers a job for url and starts it in the background. It returns
// as soon as the job exists.
func (o *Orchestrator) Submit(ctx context.Context, url string) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", ErrEmptyURL
	}

	id, err := o.store.Create(ctx)
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	o.pool.SubmitWithDrop("job "+id,
		func(ctx context.Context) { o.run(ctx, id, url) },
		func() { o.set(context.Background(), id, types.StatusError, 0, msgNotStarted, nil) },
	)
	o.log.WithField("job_id", id).WithField("url", url).Info("job submitted")
	return id, nil
}

// Regenerate reruns structured generation on an existing transcript.
func (o *Orchestrator) Regenerate(ctx context.Context, transcript string, segments []types.Segment, title string) (types.Structured, error) {
	return o.gen.GenerateStructured(ctx, transcript, segments, title)
}

// Wait blocks until all submitted jobs have finished.
func (o *Orchestrator) Wait() {
	o.pool.Wait()
}

func (o *Orchestrator) run(ctx context.Context, id, url string) {
	log := o.log.WithField("job_id", id)

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", fmt.Sprint(r)).Error("job panicked")
			o.set(ctx, id, types.StatusError, 0, fmt.Sprintf("internal error: %v", r), nil)
		}
	}()

	o.set(ctx, id, types.StatusDownloading, 10, "Downloading audio...", nil)
	media, err := o.downloader.Extract(ctx, url)
	if err != nil {
		o.fail(ctx, id, fmt.Errorf("download: %w", err))
		return
	}
	defer o.cleanup(id, media)

	o.set(ctx, id, types.StatusTranscribing, 30, "Transcribing audio...", nil)
	tr, err := o.transcriber.Transcribe(ctx, media.AudioPath)
	if err != nil {
		o.fail(ctx, id, fmt.Errorf("transcription: %w", err))
		return
	}

	o.set(ctx, id, types.StatusProcessing, 70, "Generating chapters and takeaways...", nil)
	structured, err := o.gen.GenerateStructured(ctx, tr.Text, tr.Segments, media.Title)
	if err != nil {
		o.fail(ctx, id, fmt.Errorf("llm: %w", err))
		return
	}

	o.set(ctx, id, types.StatusProcessing, 85, "Formatting transcript...", nil)
	formatted := o.gen.FormatTranscript(ctx, tr.Text)

	result := &types.TranscriptResult{
		Title:           media.Title,
		RawText:         tr.Text,
		FormattedText:   formatted,
		Segments:        tr.Segments,
		Chapters:        structured.Chapters,
		Takeaways:       structured.Takeaways,
		Language:        tr.Language,
		Channel:         media.Channel,
		ThumbnailRef:    o.keepThumbnail(id, media.ThumbnailPath),
		DurationSeconds: media.DurationSeconds,
		SourceURL:       url,
	}
	o.set(ctx, id, types.StatusComplete, 100, "Done!", result)
	log.WithField("chapters", len(result.Chapters)).WithField("fallback", structured.Fallback).Info("job complete")
}

func (o *Orchestrator) fail(ctx context.Context, id string, err error) {
	o.log.WithField("job_id", id).WithError(err).Warn("job failed")
	o.set(ctx, id, types.StatusError, 0, err.Error(), nil)
}

func (o *Orchestrator) set(ctx context.Context, id string, status types.JobStatus, progress int, message string, result *types.TranscriptResult) {
	// The job must still reach a terminal state when ctx is cancelled.
	if err := o.store.Set(context.WithoutCancel(ctx), id, status, progress, message, result); err != nil {
		o.log.WithField("job_id", id).WithError(err).Error("store update failed")
	}
}

// cleanup removes downloaded artifacts. Failures are not job failures.
func (o *Orchestrator) cleanup(id string, media types.MediaInfo) {
	for _, p := range []string{media.AudioPath, media.ThumbnailPath} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			o.log.WithField("job_id", id).WithField("path", p).WithField("error", err.Error()).Debug("cleanup failed")
		}
	}
}

// keepThumbnail copies the downloaded thumbnail into ThumbnailDir and returns
// the stored file name, or "" when there is nothing to keep.
func (o *Orchestrator) keepThumbnail(id, src string) string {
	if src == "" || o.opts.ThumbnailDir == "" {
		return ""
	}
	// Only formats the thumbnail route and the exporters can handle.
	ext := strings.ToLower(filepath.Ext(src))
	if ext != ".jpg" && ext != ".png" {
		o.log.WithField("job_id", id).WithField("thumbnail", src).Warn("thumbnail format not supported, not kept")
		return ""
	}
	name := id + "_thumb" + ext

	if err := copyFile(src, filepath.Join(o.opts.ThumbnailDir, name)); err != nil {
		o.log.WithField("job_id", id).WithField("error", err.Error()).Warn("could not keep thumbnail")
		return ""
	}
	return name
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
